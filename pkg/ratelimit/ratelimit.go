// Package ratelimit, in-memory sabit pencere + cooldown rate limiter'ı içerir.
//
// İki yerde kullanılır:
//   - call.initiate: kullanıcı bazlı (key = userID), arama spam'ini keser.
//   - /ws upgrade: IP bazlı (key = ExtractIP), reconnect fırtınasını keser.
//
// pkg/ratelimit hiçbir proje içi pakete bağımlı değildir (leaf dependency).
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// bucket, bir key için sayaç ve cooldown bilgisi tutar.
//
// İki durumlu:
//  1. Normal mod: count artırılır, windowStart bazlı pencere kontrolü.
//  2. Cooldown mod: cooldownUntil > now → tüm istekler reddedilir.
type bucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero value = cooldown yok
}

// Limiter, key bazlı rate limiter.
//
// max: Bir window içinde izin verilen maksimum istek sayısı.
// window: Sayaç pencere süresi.
// cooldown: Limit aşıldığında uygulanan ceza süresi. 0 ise kalan window beklenir.
//
// Kullanım:
//
//	limiter := ratelimit.New(5, 30*time.Second, time.Minute)
//	defer limiter.Stop()
//	if !limiter.Allow(userID) { return pkg.ErrRateLimited }
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	max      int
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time

	stopOnce    sync.Once
	stopCleanup chan struct{}
}

// New, yeni limiter oluşturur ve arka plan temizleme goroutine'ini başlatır.
// max <= 0 ise limiter her isteğe izin verir.
func New(max int, window, cooldown time.Duration) *Limiter {
	rl := &Limiter{
		buckets:     make(map[string]*bucket),
		max:         max,
		window:      window,
		cooldown:    cooldown,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow, key için isteğe izin verilip verilmediğini döner.
// Her çağrı sayacı artırır.
func (rl *Limiter) Allow(key string) bool {
	if rl.max <= 0 {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		// Cooldown bitti, temiz pencere
		b.cooldownUntil = time.Time{}
		b.count = 1
		b.windowStart = now
		return true
	}

	if now.Sub(b.windowStart) > rl.window {
		b.count = 1
		b.windowStart = now
		return true
	}

	b.count++
	if b.count > rl.max {
		if rl.cooldown > 0 {
			b.cooldownUntil = now.Add(rl.cooldown)
		} else {
			b.cooldownUntil = b.windowStart.Add(rl.window)
		}
		return false
	}
	return true
}

// RetryAfterSeconds, reddedilen key'in tekrar denemeden önce beklemesi
// gereken süreyi saniye cinsinden döner. Limit yoksa 0.
func (rl *Limiter) RetryAfterSeconds(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, exists := rl.buckets[key]
	if !exists || b.cooldownUntil.IsZero() {
		return 0
	}

	remaining := b.cooldownUntil.Sub(rl.now())
	if remaining <= 0 {
		return 0
	}
	return int(remaining.Seconds()) + 1
}

// Reset, key'in sayacını siler.
func (rl *Limiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Stop, temizleme goroutine'ini durdurur. Birden fazla çağrılabilir.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func (rl *Limiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup, penceresi ve cooldown'u bitmiş bucket'ları siler.
func (rl *Limiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, b := range rl.buckets {
		if now.Before(b.cooldownUntil) {
			continue
		}
		if now.Sub(b.windowStart) > rl.window {
			delete(rl.buckets, key)
		}
	}
}

// ExtractIP, HTTP request'ten client IP adresini çıkarır.
//
// Öncelik sırası:
//  1. X-Forwarded-For header (ilk IP)
//  2. X-Real-IP header
//  3. RemoteAddr
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
