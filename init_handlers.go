// Package main: Handler katmanı başlatma.
//
// initHandlers, tüm HTTP ve WS op handler'larını oluşturur.
// Handler'lar "thin" dir: sadece parse + service call + response write.
package main

import (
	"github.com/akinalp/nexus/config"
	"github.com/akinalp/nexus/handlers"
	"github.com/akinalp/nexus/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Health    *handlers.HealthHandler
	ICE       *handlers.ICEHandler
	Presence  *handlers.PresenceHandler
	Call      *handlers.CallHandler
	Signaling *handlers.SignalingHandler
	WS        *ws.Handler
}

// initHandlers, tüm handler'ları service ve rate limiter dependency'leri ile oluşturur.
func initHandlers(svcs *Services, limiters *RateLimiters, hub *ws.Hub, cfg *config.Config) *Handlers {
	return &Handlers{
		Health:    handlers.NewHealthHandler(hub),
		ICE:       handlers.NewICEHandler(svcs.ICEConfig),
		Presence:  handlers.NewPresenceHandler(svcs.Presence),
		Call:      handlers.NewCallHandler(svcs.Call, svcs.CallLog),
		Signaling: handlers.NewSignalingHandler(svcs.Call, svcs.Presence, svcs.Router, limiters.Initiate, svcs.Metrics),
		WS:        ws.NewHandler(hub, svcs.Token, limiters.Connect, cfg.Server.CORSOrigins),
	}
}
