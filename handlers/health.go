package handlers

import (
	"net/http"

	"github.com/akinalp/nexus/pkg"
)

// ConnectionCounter, health yanıtındaki canlı bağlantı sayısı için.
type ConnectionCounter interface {
	ConnectionCount() int
}

// HealthHandler, liveness endpoint'i.
type HealthHandler struct {
	conns ConnectionCounter
}

// NewHealthHandler, constructor.
func NewHealthHandler(conns ConnectionCounter) *HealthHandler {
	return &HealthHandler{conns: conns}
}

// Health godoc
// GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	pkg.JSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"service":     "nexus",
		"connections": h.conns.ConnectionCount(),
	})
}
