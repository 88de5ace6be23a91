package models

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// PresenceOnlinePayload, presence.online event'i.
type PresenceOnlinePayload struct {
	UserID string `json:"user_id"`
}

// PresenceOfflinePayload, presence.offline event'i.
type PresenceOfflinePayload struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// PresenceQueryRequest, presence.query payload'ı.
type PresenceQueryRequest struct {
	UserIDs []string `json:"user_ids"`
}

// PresenceStatus, tek bir kullanıcının anlık durumu.
type PresenceStatus struct {
	UserID   string     `json:"user_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// PresenceStatusesPayload, presence.statuses event'i ve GET /api/presence yanıtı.
type PresenceStatusesPayload struct {
	Statuses []PresenceStatus `json:"statuses"`
}

// ReadyPayload, bağlantı kurulunca client'a giden ilk event.
type ReadyPayload struct {
	UserID       string   `json:"user_id"`
	ConnectionID string   `json:"connection_id"`
	OnlineUsers  []string `json:"online_users"`
}

// ICEServersResponse, GET /api/ice-servers yanıtı.
// Alan adları RTCConfiguration.iceServers ile uyumludur.
type ICEServersResponse struct {
	ICEServers []webrtc.ICEServer `json:"ice_servers"`
}
