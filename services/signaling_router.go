package services

import (
	"github.com/akinalp/nexus/ws"
)

// ConnectionDirectory, kullanıcının canlı bağlantılarını veren minimal interface.
// ws.Registry bunu karşılar.
type ConnectionDirectory interface {
	ConnectionsFor(userID string) []string
}

// ConnectionSender, tek bir bağlantıya event yazan minimal interface.
// ws.Hub bunu karşılar.
type ConnectionSender interface {
	SendToConnection(connID string, event ws.Event) bool
}

// SignalingRouter, event'leri kullanıcılara veya tek bir cihaza iletir.
//
// Router bir kullanıcıyı "ulaşılabilir" sayar ancak en az bir bağlantısına
// yazım kabul edildiyse. Bağlantı listesi her çağrıda registry'den
// anlık okunur; router kendi state'ini tutmaz.
type SignalingRouter interface {
	// Deliver, event'i kullanıcının tüm bağlantılarına gönderir.
	// false: hiçbir bağlantıya ulaşılamadı.
	Deliver(userID string, event ws.Event) bool

	// DeliverExcept, event'i exceptConnID dışındaki bağlantılara gönderir.
	// Ulaşılan bağlantı sayısını döner.
	DeliverExcept(userID, exceptConnID string, event ws.Event) int

	// DeliverTo, event'i tek bir bağlantıya gönderir.
	DeliverTo(connID string, event ws.Event) bool
}

type signalingRouter struct {
	directory ConnectionDirectory
	sender    ConnectionSender
}

// NewSignalingRouter, constructor.
func NewSignalingRouter(directory ConnectionDirectory, sender ConnectionSender) SignalingRouter {
	return &signalingRouter{directory: directory, sender: sender}
}

func (r *signalingRouter) Deliver(userID string, event ws.Event) bool {
	return r.DeliverExcept(userID, "", event) > 0
}

func (r *signalingRouter) DeliverExcept(userID, exceptConnID string, event ws.Event) int {
	delivered := 0
	for _, connID := range r.directory.ConnectionsFor(userID) {
		if connID == exceptConnID {
			continue
		}
		if r.sender.SendToConnection(connID, event) {
			delivered++
		}
	}
	return delivered
}

func (r *signalingRouter) DeliverTo(connID string, event ws.Event) bool {
	if connID == "" {
		return false
	}
	return r.sender.SendToConnection(connID, event)
}
