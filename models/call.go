package models

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// CallKind, arama türü.
type CallKind string

const (
	CallKindVoice CallKind = "voice"
	CallKindVideo CallKind = "video"
)

// Valid, kind'ın desteklenen bir değer olup olmadığını döner.
func (k CallKind) Valid() bool {
	return k == CallKindVoice || k == CallKindVideo
}

// CallState, arama state machine'inin durumları.
//
//	ringing ──answer──▶ answered ──negotiate──▶ connecting ──connect──▶ connected
//	   │                   │                        │                      │
//	   ├─reject▶ rejected  └──────── hangup / fail ─┴──────────────────────┘
//	   ├─cancel▶ cancelled
//	   └─expire▶ timed_out
type CallState string

const (
	CallStateRinging    CallState = "ringing"
	CallStateAnswered   CallState = "answered"
	CallStateConnecting CallState = "connecting"
	CallStateConnected  CallState = "connected"
	CallStateEnded      CallState = "ended"
	CallStateRejected   CallState = "rejected"
	CallStateCancelled  CallState = "cancelled"
	CallStateFailed     CallState = "failed"
	CallStateTimedOut   CallState = "timed_out"
)

// Terminal, state'in son durum olup olmadığını döner.
// Terminal durumdan başka bir duruma geçiş yoktur.
func (s CallState) Terminal() bool {
	switch s {
	case CallStateEnded, CallStateRejected, CallStateCancelled, CallStateFailed, CallStateTimedOut:
		return true
	}
	return false
}

// EndReason, aramanın neden bittiği.
type EndReason string

const (
	EndReasonCompleted       EndReason = "completed"
	EndReasonRejected        EndReason = "rejected"
	EndReasonCallerCancelled EndReason = "caller-cancelled"
	EndReasonTimeout         EndReason = "timeout"
	EndReasonICEFailure      EndReason = "ice-failure"
	EndReasonDisconnected    EndReason = "disconnected"
)

// CallSession, bir aramanın dışarıya verilen snapshot'ı.
// Canlı kayıt CallService içindedir; bu struct kopyadır.
type CallSession struct {
	ID              string     `json:"id"`
	CallerID        string     `json:"caller_id"`
	CalleeID        string     `json:"callee_id"`
	Kind            CallKind   `json:"kind"`
	ConversationRef string     `json:"conversation_ref,omitempty"`
	State           CallState  `json:"state"`
	CreatedAt       time.Time  `json:"created_at"`
	AnsweredAt      *time.Time `json:"answered_at,omitempty"`
	ConnectedAt     *time.Time `json:"connected_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	EndReason       *EndReason `json:"end_reason,omitempty"`
}

// Participant, userID aramanın taraflarından biri mi.
func (s *CallSession) Participant(userID string) bool {
	return s.CallerID == userID || s.CalleeID == userID
}

// OtherParty, verilen katılımcının karşı tarafını döner.
func (s *CallSession) OtherParty(userID string) string {
	if s.CallerID == userID {
		return s.CalleeID
	}
	return s.CallerID
}

// CallLog, call_logs tablosuna yazılan arama sonucu.
type CallLog struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	CallerID        string    `json:"caller_id"`
	CalleeID        string    `json:"callee_id"`
	Kind            CallKind  `json:"kind"`
	ConversationRef string    `json:"conversation_ref,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	EndReason       EndReason `json:"end_reason"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
}

// ─── Inbound Payload'lar ───

// InitiateCallRequest, call.initiate event'inin payload'ı.
type InitiateCallRequest struct {
	CalleeID        string   `json:"callee_id"`
	Kind            CallKind `json:"kind"`
	ConversationRef string   `json:"conversation_ref"`
	SDPOffer        string   `json:"sdp_offer"`
	RequestID       string   `json:"request_id,omitempty"` // client'ın ack eşlemesi için
}

// AnswerCallRequest, call.answer payload'ı.
type AnswerCallRequest struct {
	SessionID string `json:"session_id"`
	SDPAnswer string `json:"sdp_answer"`
}

// SessionRequest, sadece session id taşıyan event'ler:
// call.reject, call.cancel, call.end, call.connected, call.remote_description_set.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// ICECandidateRequest, call.ice_candidate payload'ı.
// TargetSide opsiyoneldir; boşsa gönderenin karşı tarafı hedeflenir.
type ICECandidateRequest struct {
	SessionID  string                  `json:"session_id"`
	Candidate  webrtc.ICECandidateInit `json:"candidate"`
	TargetSide string                  `json:"target_side,omitempty"`
}

// ICEStateRequest, call.ice_state payload'ı. State değerleri
// RTCPeerConnection.iceConnectionState ile aynıdır.
type ICEStateRequest struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// ScreenShareRequest, call.screen_share payload'ı.
type ScreenShareRequest struct {
	SessionID string `json:"session_id"`
	Active    bool   `json:"active"`
}

// ─── Outbound Payload'lar ───

// IncomingCallPayload, call.incoming event'i. Aranan kullanıcının
// tüm cihazlarına gider.
type IncomingCallPayload struct {
	SessionID         string   `json:"session_id"`
	CallerID          string   `json:"caller_id"`
	CallerDisplayName string   `json:"caller_display_name"`
	CallerAvatar      string   `json:"caller_avatar"`
	Kind              CallKind `json:"kind"`
	ConversationRef   string   `json:"conversation_ref,omitempty"`
	SDPOffer          string   `json:"sdp_offer"`
}

// RingingPayload, call.ringing event'i. Arayan cihaza initiate ack'i.
type RingingPayload struct {
	SessionID string `json:"session_id"`
	CalleeID  string `json:"callee_id"`
	RequestID string `json:"request_id,omitempty"`
}

// AnsweredPayload, call.answered event'i.
type AnsweredPayload struct {
	SessionID string `json:"session_id"`
	SDPAnswer string `json:"sdp_answer"`
}

// SessionPayload, call.answered_elsewhere gibi sadece id taşıyan event'ler.
type SessionPayload struct {
	SessionID string `json:"session_id"`
}

// CallReasonPayload, call.rejected, call.ended ve call.failed event'leri.
type CallReasonPayload struct {
	SessionID string    `json:"session_id"`
	Reason    EndReason `json:"reason,omitempty"`
}

// ICECandidatePayload, karşı tarafa iletilen call.ice_candidate event'i.
type ICECandidatePayload struct {
	SessionID string                  `json:"session_id"`
	FromID    string                  `json:"from_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// ScreenSharePayload, call.screen_share event'i.
type ScreenSharePayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Active    bool   `json:"active"`
}

// ErrorPayload, isteği yapan bağlantıya dönen error event'i.
type ErrorPayload struct {
	Op        string `json:"op"`
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}
