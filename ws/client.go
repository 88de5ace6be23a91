package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: Bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: Client'ın heartbeat göndermesi için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: SDP offer'ları birkaç KB tutar, simulcast'li video
	// offer'ları 10 KB'ı geçebilir.
	maxMessageSize = 64 * 1024

	// sendBufferSize: Her client'ın send channel'ının buffer boyutu.
	// Buffer dolarsa client yavaş kabul edilir ve bağlantısı kapatılır.
	sendBufferSize = 256
)

var errUnknownOp = fmt.Errorf("%w: unknown op", pkg.ErrBadRequest)

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
//   - ReadPump: inbound event'leri okur ve sırayla işler
//   - WritePump: send channel'daki mesajları WebSocket'e yazar
//
// send channel'ı hiçbir zaman kapatılmaz; yazıcıyı done durdurur. Böylece
// başka goroutine'lerden gelen SendToConnection çağrıları kapanmış bir
// channel'a yazıp panic'e düşmez.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	connID string
	log    *logrus.Entry

	send chan []byte
	done chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
	mu        sync.Mutex // conn.WriteMessage çağrılarını korur
}

func newClient(hub *Hub, conn *websocket.Conn, userID, connID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		connID: connID,
		log:    log.WithFields(logrus.Fields{"user_id": userID, "conn_id": connID}),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// UserID, bağlantının sahibi.
func (c *Client) UserID() string { return c.userID }

// ConnID, bağlantının benzersiz kimliği.
func (c *Client) ConnID() string { return c.connID }

// ReadPump, bağlantıdan gelen event'leri okur ve işler.
//
// Event'ler bu goroutine'de SENKRON işlenir: aynı bağlantıdan gelen
// ICE candidate'ları gönderildiği sırayla buffer'a ulaşır.
// Bağlantı kapandığında client Hub'dan çıkarılır ve OnDisconnect çalışır.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.detach(c)
		c.close()
		if c.hub.onDisconnect != nil {
			c.hub.onDisconnect(c.userID, c.connID)
		}
		c.hub.active.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.WithError(err).Warn("failed to set read deadline")
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Info("unexpected close")
			}
			return
		}

		var event InboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.log.WithError(err).Debug("invalid message")
			c.sendError("", nil, pkg.ErrBadRequest)
			continue
		}

		c.dispatch(ctx, event)
	}
}

// dispatch, event'i op'una göre işler.
func (c *Client) dispatch(ctx context.Context, event InboundEvent) {
	if event.Op == OpHeartbeat {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.WithError(err).Warn("failed to set read deadline")
			return
		}
		c.hub.SendToConnection(c.connID, Event{Op: OpHeartbeatAck})
		return
	}

	fn, ok := c.hub.handler(event.Op)
	if !ok {
		c.log.WithField("op", event.Op).Debug("unknown op")
		c.sendError(event.Op, event.Data, errUnknownOp)
		return
	}

	err := fn(ctx, Request{
		UserID: c.userID,
		ConnID: c.connID,
		Op:     event.Op,
		Data:   event.Data,
	})
	if err != nil {
		c.sendError(event.Op, event.Data, err)
	}
}

// sendError, isteği yapan bağlantıya error event'i yazar. Payload'da
// session_id veya request_id varsa client eşleştirebilsin diye kopyalanır.
func (c *Client) sendError(op string, data json.RawMessage, err error) {
	var refs requestRefs
	if len(data) > 0 {
		_ = json.Unmarshal(data, &refs)
	}

	code := pkg.ErrorCode(err)
	if code == pkg.CodeInternal {
		c.log.WithError(err).WithField("op", op).Error("handler failed")
	} else {
		c.log.WithError(err).WithField("op", op).Debug("request rejected")
	}

	c.hub.SendToConnection(c.connID, Event{
		Op: OpError,
		Data: models.ErrorPayload{
			Op:        op,
			SessionID: refs.SessionID,
			RequestID: refs.RequestID,
			Code:      code,
			Message:   err.Error(),
		},
	})
}

// enqueue, mesajı send buffer'ına ekler. Buffer doluysa bağlantı kapatılır.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		c.log.Warn("send buffer full, dropping connection")
		c.close()
		return false
	}
}

// WritePump, send channel'daki mesajları WebSocket bağlantısına yazar.
func (c *Client) WritePump() {
	defer c.close()

	for {
		select {
		case message := <-c.send:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// writeMessage, WebSocket'e mesaj yazar (mutex ile korunur).
// gorilla/websocket aynı anda birden fazla writer'a izin vermez.
func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// stop, WritePump'ı durdurur ve yeni mesaj kabulünü keser.
func (c *Client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// close, alttaki TCP bağlantısını kapatır; ReadPump hata alıp sonlanır.
func (c *Client) close() {
	c.closeOnce.Do(func() { c.conn.Close() })
}

// closeWithFrame, close frame gönderip bağlantıyı kapatır (graceful shutdown).
func (c *Client) closeWithFrame() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.close()
}
