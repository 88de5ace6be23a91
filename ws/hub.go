package ws

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "ws")

// HandlerFunc, bir inbound op'u işler. Dönen error isteği yapan
// bağlantıya "error" event'i olarak yazılır.
type HandlerFunc func(ctx context.Context, req Request) error

// Hub, canlı bağlantıların transport tablosudur.
//
// Kimin online olduğunu Registry bilir; Hub sadece connectionID'den
// Client'a ulaşıp event yazar. Bağlantı yaşam döngüsü callback'leri
// (OnConnect / OnDisconnect) main.go'da bağlanır, Hub hiçbir service'e
// bağımlı değildir.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Client // connID → Client
	closed bool

	// active: attach edilmiş ve OnDisconnect'i henüz bitmemiş bağlantılar.
	// Shutdown bunu bekler.
	active sync.WaitGroup

	// seq: Her outbound event'e verilen artan sayaç.
	seq atomic.Int64

	// handlers: op → HandlerFunc. Sunucu dinlemeye başlamadan önce doldurulur,
	// sonrasında sadece okunur.
	handlers map[string]HandlerFunc

	onConnect    func(userID, connID string)
	onDisconnect func(userID, connID string)
}

// NewHub, yeni bir Hub oluşturur.
func NewHub() *Hub {
	return &Hub{
		conns:    make(map[string]*Client),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle, op için handler kaydeder.
func (h *Hub) Handle(op string, fn HandlerFunc) {
	h.handlers[op] = fn
}

// OnConnect, bağlantı kurulduktan sonra, ilk inbound event okunmadan önce
// bağlantının kendi goroutine'inde çağrılır.
func (h *Hub) OnConnect(fn func(userID, connID string)) {
	h.onConnect = fn
}

// OnDisconnect, bağlantının read loop'u bittikten sonra aynı goroutine'de
// çağrılır. Bir bağlantı için OnConnect'ten önce asla çağrılmaz.
func (h *Hub) OnDisconnect(fn func(userID, connID string)) {
	h.onDisconnect = fn
}

// SendToConnection, event'i tek bir bağlantıya yazar.
//
// false: bağlantı yok veya send buffer dolu. Buffer dolu client yavaştır,
// bağlantısı kapatılır; ReadPump sonlanınca normal disconnect akışı çalışır.
func (h *Hub) SendToConnection(connID string, event Event) bool {
	h.mu.RLock()
	client, ok := h.conns[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	event.Seq = h.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).WithField("op", event.Op).Error("failed to marshal event")
		return false
	}

	return client.enqueue(data)
}

// ConnectionCount, transport tablosundaki bağlantı sayısı.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// attach, client'ı tabloya ekler. Shutdown sonrası false döner.
func (h *Hub) attach(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.conns[c.connID] = c
	h.active.Add(1)
	return true
}

// detach, client'ı tablodan çıkarır ve WritePump'ı durdurur.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	if h.conns[c.connID] == c {
		delete(h.conns, c.connID)
	}
	h.mu.Unlock()

	c.stop()
}

func (h *Hub) handler(op string) (HandlerFunc, bool) {
	fn, ok := h.handlers[op]
	return fn, ok
}

// Shutdown, tüm bağlantıları close frame ile kapatır ve her bağlantının
// OnDisconnect'i bitene kadar bekler. Böylece çağıran taraf service'leri
// kapatmadan önce bağlantı kaynaklı tüm temizlik tamamlanmış olur.
// ctx dolarsa beklemeyi bırakır ve ctx.Err() döner.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.closeWithFrame()
	}

	drained := make(chan struct{})
	go func() {
		h.active.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		log.WithField("connections", len(clients)).Info("hub shut down, all connections closed")
		return nil
	case <-ctx.Done():
		log.WithField("connections", len(clients)).Warn("hub shutdown timed out waiting for disconnects")
		return ctx.Err()
	}
}
