// Package main: Service katmanı başlatma.
//
// initServices, tüm service implementasyonlarını oluşturur.
// Her service, ihtiyaç duyduğu repository interface'lerini ve diğer
// dependency'leri constructor injection ile alır.
//
// ÖNEMLİ sıralama kuralları:
// 1. router → callService ve ICE buffer'dan ÖNCE
// 2. callService → presenceService'ten ÖNCE (presence disconnect'i callService'e iletir)
// 3. presenceService → Hub callback'lerinden ÖNCE
package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akinalp/nexus/config"
	"github.com/akinalp/nexus/pkg/ratelimit"
	"github.com/akinalp/nexus/services"
	"github.com/akinalp/nexus/ws"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Token     services.TokenService
	Router    services.SignalingRouter
	ICEBuffer services.ICECandidateBuffer
	Users     services.UserDirectory
	CallLog   services.CallLogService
	Call      services.CallService
	Presence  services.PresenceService
	ICEConfig services.ICEConfigService
	Metrics   *services.Metrics
}

// initServices, tüm service'leri oluşturur.
//
// registry presence'ın tek kaynağıdır; hub sadece bağlantılara event yazar.
// İkisi de router üzerinden service'lere görünür.
func initServices(repos *Repositories, registry *ws.Registry, hub *ws.Hub, cfg *config.Config) *Services {
	metrics := services.NewMetrics(prometheus.DefaultRegisterer)

	router := services.NewSignalingRouter(registry, hub)
	iceBuffer := services.NewICECandidateBuffer(router, metrics)
	users := services.NewUserDirectory(repos.User, cfg.Cache.UserTTL)
	callLog := services.NewCallLogService(repos.CallLog, cfg.CallLog.Buffer, metrics)

	callService := services.NewCallService(
		router,
		registry,
		users,
		iceBuffer,
		callLog,
		metrics,
		cfg.Call,
	)

	presenceService := services.NewPresenceService(
		registry,
		repos.Conversation,
		repos.User,
		router,
		callService,
		metrics,
		cfg.Presence.OfflineGrace,
	)

	return &Services{
		Token:     services.NewTokenService(cfg.JWT.Secret),
		Router:    router,
		ICEBuffer: iceBuffer,
		Users:     users,
		CallLog:   callLog,
		Call:      callService,
		Presence:  presenceService,
		ICEConfig: services.NewICEConfigService(cfg.ICE),
		Metrics:   metrics,
	}
}

// RateLimiters, uygulama genelindeki rate limiter'lar.
type RateLimiters struct {
	Initiate *ratelimit.Limiter // kullanıcı bazlı call.initiate limiti
	Connect  *ratelimit.Limiter // IP bazlı /ws upgrade limiti
}

// initRateLimiters, config'teki limitlerle limiter'ları oluşturur.
// Limit 0 ise limiter her isteğe izin verir.
func initRateLimiters(cfg *config.Config) *RateLimiters {
	return &RateLimiters{
		Initiate: ratelimit.New(cfg.RateLimit.InitiateMax, cfg.RateLimit.InitiateWindow, cfg.RateLimit.InitiateCooldown),
		Connect:  ratelimit.New(cfg.RateLimit.ConnectMax, time.Minute, time.Minute),
	}
}

// Stop, limiter'ların temizleme goroutine'lerini durdurur.
func (l *RateLimiters) Stop() {
	l.Initiate.Stop()
	l.Connect.Stop()
}
