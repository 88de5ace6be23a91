package ws

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg/ratelimit"
)

// TokenValidator, WebSocket handler'ın JWT doğrulaması için kullandığı interface.
// ws → services import döngüsünü önlemek için burada tanımlıdır.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

// ConnectLimiter, IP bazlı upgrade limiti. nil olabilir.
type ConnectLimiter interface {
	Allow(key string) bool
	RetryAfterSeconds(key string) int
}

// Handler, WebSocket bağlantı isteklerini işleyen HTTP handler'ı.
type Handler struct {
	hub            *Hub
	tokenValidator TokenValidator
	limiter        ConnectLimiter
	upgrader       websocket.Upgrader
}

// NewHandler, yeni bir WebSocket handler oluşturur.
//
// allowedOrigins: "*" içeriyorsa tüm origin'ler kabul edilir.
func NewHandler(hub *Hub, tokenValidator TokenValidator, limiter ConnectLimiter, allowedOrigins []string) *Handler {
	allowAll := len(allowedOrigins) == 0
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return &Handler{
		hub:            hub,
		tokenValidator: tokenValidator,
		limiter:        limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || origins[origin]
			},
		},
	}
}

// HandleConnection, HTTP bağlantısını WebSocket'e yükseltir ve bağlantının
// yaşam döngüsünü yönetir.
//
// Tarayıcı WS handshake'inde header gönderemediği için token query
// parameter olarak gelir:
//
//	ws://server/ws?token=JWT_TOKEN
//
// Flow:
//  1. IP limiti
//  2. Token doğrulama
//  3. HTTP → WebSocket upgrade
//  4. Client'ı Hub'a ekle, WritePump'ı başlat
//  5. OnConnect (presence + ready)
//  6. ReadPump bağlantı kapanana kadar bloklar, ardından OnDisconnect
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		ip := ratelimit.ExtractIP(r)
		if !h.limiter.Allow(ip) {
			w.Header().Set("Retry-After", strconv.Itoa(h.limiter.RetryAfterSeconds(ip)))
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := h.tokenValidator.ValidateAccessToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithField("user_id", claims.UserID).Warn("upgrade failed")
		return
	}

	client := newClient(h.hub, conn, claims.UserID, uuid.NewString())
	if !h.hub.attach(client) {
		conn.Close()
		return
	}

	client.log.Info("client connected")

	// Bağlantı context'i: handler'lar context'i bağlantının ömrüne bağlı
	// işler için kullanır. Hijack sonrası r.Context() güvenilir değildir.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.WritePump()

	if h.hub.onConnect != nil {
		h.hub.onConnect(client.userID, client.connID)
	}

	client.ReadPump(ctx)

	client.log.WithFields(logrus.Fields{"remaining": h.hub.ConnectionCount()}).Info("client disconnected")
}
