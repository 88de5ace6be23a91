// Package main: WebSocket Hub callback ve op wire-up.
//
// registerHubCallbacks, Hub'ın bağlantı yaşam döngüsü callback'lerini
// ve inbound op handler'larını ayarlar.
//
// Hub ws paketinde yaşıyor, presence ve arama mantığı services paketinde.
// Hub'ın service'lere bağımlı olmasını istemiyoruz (Dependency Inversion);
// main package wire-up noktasıdır.
//
// Callback'ler bağlantının kendi goroutine'inde, senkron çalışır. Aynı
// bağlantının OnConnect'i her zaman OnDisconnect'inden önce biter.
package main

import (
	"github.com/akinalp/nexus/handlers"
	"github.com/akinalp/nexus/ws"
)

// registerHubCallbacks, tüm Hub callback'lerini ve op'ları register eder.
// Sunucu dinlemeye başlamadan önce çağrılmalıdır.
func registerHubCallbacks(hub *ws.Hub, signaling *handlers.SignalingHandler) {
	// ─── Bağlantı Yaşam Döngüsü ───
	hub.OnConnect(signaling.OnConnect)
	hub.OnDisconnect(signaling.OnDisconnect)

	// ─── Inbound Op'lar ───
	signaling.Register(hub)
}
