// Package main, nexus signaling sunucusunun giriş noktasıdır.
//
// Bu dosyanın görevi, Dependency Injection "wire-up":
//  1. Config'i yükle, logger'ı ayarla
//  2. Database'i başlat (embed migration'lar)
//  3. Repository'leri oluştur
//  4. Registry + WebSocket Hub
//  5. Service'leri oluştur
//  6. Handler'ları oluştur, Hub callback'lerini bağla
//  7. HTTP router + CORS
//  8. HTTP Server'ı başlat
//  9. Graceful shutdown
//
// Modüler yapı:
//   - init_repos.go     → Repository'ler
//   - init_services.go  → Service'ler + rate limiter'lar
//   - init_handlers.go  → Handler'lar
//   - init_callbacks.go → Hub callback ve op'ları
//   - init_routes.go    → Route tanımları
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/akinalp/nexus/config"
	"github.com/akinalp/nexus/database"
	"github.com/akinalp/nexus/ws"
)

var log = logrus.WithField("component", "main")

func main() {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	configureLogging(cfg.Log)
	log.WithField("port", cfg.Server.Port).Info("nexus server starting")

	// ─── 2. Database ───
	db, err := database.New(cfg.Database.Path, database.Migrations())
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// ─── 3. Repository Layer ───
	repos := initRepositories(db.Conn)

	// Önceki process'ten kalan online işaretleri; bu noktada hiçbir
	// bağlantı yok, herkes offline.
	if n, err := repos.User.ResetOnline(context.Background()); err != nil {
		log.WithError(err).Warn("failed to reset stale presence")
	} else if n > 0 {
		log.WithField("users", n).Info("stale presence reset")
	}

	// ─── 4. Registry + WebSocket Hub ───
	registry := ws.NewRegistry()
	hub := ws.NewHub()

	// ─── 5. Service Layer ───
	svcs := initServices(repos, registry, hub, cfg)
	limiters := initRateLimiters(cfg)

	// ─── 6. Handler Layer + Hub Callbacks ───
	h := initHandlers(svcs, limiters, hub, cfg)
	registerHubCallbacks(hub, h.Signaling)

	// ─── 7. HTTP Router + CORS ───
	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Token, svcs.Users)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	// ─── 8. HTTP Server ───
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      c.Handler(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// ─── 9. Graceful Shutdown ───
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Yeni istek kabul etme, sonra canlı WS bağlantılarını kapat.
	// Hub.Shutdown her bağlantının OnDisconnect'i bitene kadar bekler; açık
	// aramalar bu akışta failed{disconnected} ile kapanır ve call log
	// kuyruğuna CallLog.Close'dan önce düşer.
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if err := hub.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("some connections did not finish disconnecting")
	}
	svcs.Call.Shutdown()
	svcs.CallLog.Close()
	svcs.Users.Close()
	limiters.Stop()

	log.Info("server exited")
}

// configureLogging, logrus seviyesini ve formatını config'ten ayarlar.
// Bilinmeyen seviye info'ya düşer.
func configureLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logrus.SetOutput(os.Stdout)
}
