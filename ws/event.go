// Package ws, WebSocket bağlantı yönetimi ve gerçek zamanlı event dağıtımını sağlar.
//
// Mimari:
//   - Registry: userID ↔ connectionID eşlemesi (presence'ın tek kaynağı)
//   - Hub: connectionID → Client transport tablosu, event yazımı
//   - Client: tek bir WebSocket bağlantısı (ReadPump + WritePump)
//   - Handler: HTTP → WebSocket upgrade, token doğrulama
//
// Event akışı (inbound):
//  1. Client {op, d} gönderir → ReadPump parse eder
//  2. Hub'a kayıtlı HandlerFunc senkron çağrılır (aynı bağlantının event'leri sırayla işlenir)
//  3. Handler error dönerse isteği yapan bağlantıya "error" event'i yazılır
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/akinalp/nexus/pkg"
)

// Event, server → client yönünde iletilen mesaj.
//
// Seq: Her outbound event'e verilen artan sayı. Client eksik event
// tespit etmek için takip eder.
type Event struct {
	Op   string `json:"op"`
	Data any    `json:"d,omitempty"`
	Seq  int64  `json:"seq,omitempty"`
}

// InboundEvent, client → server mesajı. Data handler'a ham olarak geçer.
type InboundEvent struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
}

// Request, bir inbound event'in handler'a verilen hali.
type Request struct {
	UserID string
	ConnID string
	Op     string
	Data   json.RawMessage
}

// Bind, payload'ı v'ye parse eder. Hatalı JSON ErrBadRequest olur.
func (r Request) Bind(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("%w: missing payload", pkg.ErrBadRequest)
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("%w: invalid payload: %v", pkg.ErrBadRequest, err)
	}
	return nil
}

// requestRefs, error event'ine kopyalanacak korelasyon alanları.
type requestRefs struct {
	SessionID string `json:"session_id"`
	RequestID string `json:"request_id"`
}

// ────────────────────────────────────────────
// Operation sabitleri
// ────────────────────────────────────────────

// Client → Server
const (
	OpHeartbeat = "heartbeat" // Client periyodik gönderir, read deadline yenilenir

	OpCallInitiate             = "call.initiate"
	OpCallAnswer               = "call.answer"
	OpCallReject               = "call.reject"
	OpCallCancel               = "call.cancel"
	OpCallEnd                  = "call.end"
	OpCallConnected            = "call.connected"
	OpCallRemoteDescriptionSet = "call.remote_description_set"
	OpCallICEState             = "call.ice_state"
	OpPresenceQuery            = "presence.query"
)

// Server → Client
const (
	OpReady        = "ready"
	OpHeartbeatAck = "heartbeat_ack"
	OpError        = "error"

	OpPresenceOnline   = "presence.online"
	OpPresenceOffline  = "presence.offline"
	OpPresenceStatuses = "presence.statuses"

	OpCallIncoming          = "call.incoming"
	OpCallRinging           = "call.ringing"
	OpCallAnswered          = "call.answered"
	OpCallAnsweredElsewhere = "call.answered_elsewhere"
	OpCallRejected          = "call.rejected"
	OpCallEnded             = "call.ended"
	OpCallFailed            = "call.failed"
)

// İki yönde de kullanılanlar
const (
	OpCallICECandidate = "call.ice_candidate"
	OpCallScreenShare  = "call.screen_share"
)
