// Package main: HTTP route registration.
//
// initRoutes, tüm API endpoint'lerini mux'a bağlar.
// Middleware chain helper'ı burada tanımlıdır:
//   - auth: JWT token doğrulaması
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akinalp/nexus/middleware"
	"github.com/akinalp/nexus/services"
)

// initRoutes, middleware chain'i kurar ve tüm endpoint'leri mux'a bağlar.
func initRoutes(mux *http.ServeMux, h *Handlers, tokenService services.TokenService, users services.UserDirectory) {
	// ─── Middleware ───
	authMw := middleware.NewAuthMiddleware(tokenService, users)

	// ─── Middleware Chain Helpers ───
	auth := func(handler http.HandlerFunc) http.Handler {
		return authMw.Require(handler)
	}

	// ─── Public ───
	mux.HandleFunc("GET /api/health", h.Health.Health)
	mux.HandleFunc("GET /api/ice-servers", h.ICE.Servers)
	mux.Handle("GET /metrics", promhttp.Handler())

	// ─── Presence ───
	mux.Handle("GET /api/presence", auth(h.Presence.Query))

	// ─── Calls ───
	mux.Handle("GET /api/calls/active", auth(h.Call.Active))
	mux.Handle("GET /api/calls/history", auth(h.Call.History))

	// ─── WebSocket ───
	// Token query parameter'dan okunur, auth middleware'ı kullanılmaz.
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
