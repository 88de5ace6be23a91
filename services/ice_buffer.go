package services

import (
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/pion/webrtc/v4"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/ws"
)

// BufferedCandidate, kuyruktaki tek bir ICE candidate ve göndereni.
type BufferedCandidate struct {
	FromID    string
	Candidate webrtc.ICECandidateInit
}

// ICECandidateBuffer, bir aramanın her iki tarafı için ICE candidate
// kuyruğu tutar.
//
// Alıcı taraf remote description'ını set etmeden önce gelen candidate'ler
// addIceCandidate'de hata verir; bu yüzden alıcı "ready" olana kadar
// candidate'ler sırayla biriktirilir, ready olunca aynı sırayla iletilir.
//
// Key: (sessionID, alıcı userID). Her kuyruğun kendi mutex'i vardır;
// ekleme, flush ve iletim aynı kilit altında yapıldığı için sıra korunur.
type ICECandidateBuffer interface {
	// Open, session için verilen kullanıcıların kuyruklarını oluşturur.
	Open(sessionID string, userIDs ...string)

	// Bind, alıcının candidate'lerinin iletileceği bağlantıyı sabitler.
	// Bind edilmemiş kuyruk kullanıcının tüm bağlantılarına iletir.
	Bind(sessionID, recipientID, connID string)

	// BufferOrFlush, kuyruk ready ise candidate'i hemen iletir, değilse ekler.
	// remoteDescSet true ise kuyruk ready işaretlenir; bekleyen candidate'ler
	// önce iletilir, yenisi onların arkasından gider.
	BufferOrFlush(sessionID, recipientID string, c BufferedCandidate, remoteDescSet bool) error

	// MarkReadyAndFlush, kuyruğu ready işaretler ve bekleyenleri sırayla iletir.
	// İkinci çağrı 0 döner.
	MarkReadyAndFlush(sessionID, recipientID string) (int, error)

	// Drop, session'ın tüm kuyruklarını siler.
	Drop(sessionID string)

	IsReady(sessionID, recipientID string) bool
	Pending(sessionID, recipientID string) int
}

type candidateQueue struct {
	mu     sync.Mutex
	ready  bool
	connID string
	items  deque.Deque[BufferedCandidate]
}

type iceCandidateBuffer struct {
	router  SignalingRouter
	metrics *Metrics

	mu       sync.Mutex
	sessions map[string]map[string]*candidateQueue // sessionID → recipientID → queue
}

// NewICECandidateBuffer, constructor.
func NewICECandidateBuffer(router SignalingRouter, metrics *Metrics) ICECandidateBuffer {
	return &iceCandidateBuffer{
		router:   router,
		metrics:  metrics,
		sessions: make(map[string]map[string]*candidateQueue),
	}
}

func (b *iceCandidateBuffer) Open(sessionID string, userIDs ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queues, ok := b.sessions[sessionID]
	if !ok {
		queues = make(map[string]*candidateQueue, len(userIDs))
		b.sessions[sessionID] = queues
	}
	for _, id := range userIDs {
		if _, exists := queues[id]; !exists {
			queues[id] = &candidateQueue{}
		}
	}
}

func (b *iceCandidateBuffer) Bind(sessionID, recipientID, connID string) {
	q := b.queue(sessionID, recipientID)
	if q == nil {
		return
	}
	q.mu.Lock()
	q.connID = connID
	q.mu.Unlock()
}

func (b *iceCandidateBuffer) BufferOrFlush(sessionID, recipientID string, c BufferedCandidate, remoteDescSet bool) error {
	q := b.queue(sessionID, recipientID)
	if q == nil {
		return fmt.Errorf("%w: no candidate queue for session", pkg.ErrNotFound)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if remoteDescSet && !q.ready {
		b.metrics.ICEFlushed(b.flushLocked(sessionID, recipientID, q))
		q.ready = true
	}

	if q.ready {
		b.deliverLocked(sessionID, recipientID, q, c)
		b.metrics.ICERelayed()
		return nil
	}

	q.items.PushBack(c)
	b.metrics.ICEBuffered()
	return nil
}

func (b *iceCandidateBuffer) MarkReadyAndFlush(sessionID, recipientID string) (int, error) {
	q := b.queue(sessionID, recipientID)
	if q == nil {
		return 0, fmt.Errorf("%w: no candidate queue for session", pkg.ErrNotFound)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ready {
		return 0, nil
	}
	n := b.flushLocked(sessionID, recipientID, q)
	q.ready = true
	b.metrics.ICEFlushed(n)
	return n, nil
}

func (b *iceCandidateBuffer) Drop(sessionID string) {
	b.mu.Lock()
	queues := b.sessions[sessionID]
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	// Bekleyen candidate'ler iletilmeden atılır
	for _, q := range queues {
		q.mu.Lock()
		q.items.Clear()
		q.mu.Unlock()
	}
}

func (b *iceCandidateBuffer) IsReady(sessionID, recipientID string) bool {
	q := b.queue(sessionID, recipientID)
	if q == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

func (b *iceCandidateBuffer) Pending(sessionID, recipientID string) int {
	q := b.queue(sessionID, recipientID)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

func (b *iceCandidateBuffer) queue(sessionID, recipientID string) *candidateQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[sessionID][recipientID]
}

// flushLocked, kuyruğu FIFO sırayla boşaltır. q.mu tutuluyor olmalı.
func (b *iceCandidateBuffer) flushLocked(sessionID, recipientID string, q *candidateQueue) int {
	n := 0
	for q.items.Len() > 0 {
		b.deliverLocked(sessionID, recipientID, q, q.items.PopFront())
		n++
	}
	return n
}

func (b *iceCandidateBuffer) deliverLocked(sessionID, recipientID string, q *candidateQueue, c BufferedCandidate) {
	event := ws.Event{
		Op: ws.OpCallICECandidate,
		Data: models.ICECandidatePayload{
			SessionID: sessionID,
			FromID:    c.FromID,
			Candidate: c.Candidate,
		},
	}

	if q.connID != "" {
		b.router.DeliverTo(q.connID, event)
		return
	}
	b.router.Deliver(recipientID, event)
}
