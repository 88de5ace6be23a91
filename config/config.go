// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Call      CallConfig
	Presence  PresenceConfig
	ICE       ICEConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	CallLog   CallLogConfig
	Log       LogConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string // virgülle ayrılmış, boşsa "*"
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/nexus.db)
}

// JWTConfig, token doğrulama ayarları. Token bu serviste üretilmez.
type JWTConfig struct {
	Secret string
}

// CallConfig, arama state machine zamanlayıcıları.
type CallConfig struct {
	RingTimeout     time.Duration // ringing → timed_out
	ConnectTimeout  time.Duration // answered/connecting → failed{timeout}
	ICEFailureGrace time.Duration // ICE "disconnected" → failed{ice-failure}
}

// PresenceConfig, presence ayarları.
type PresenceConfig struct {
	// OfflineGrace, son bağlantı kapandıktan sonra presence.offline
	// yayınlanmadan önce beklenen süre. 0 ise anında yayınlanır.
	OfflineGrace time.Duration
}

// ICEConfig, client'lara dağıtılan STUN/TURN bilgisi.
type ICEConfig struct {
	STUNURLs       []string
	TURNURL        string
	TURNUsername   string
	TURNCredential string
}

// RateLimitConfig, call.initiate ve WS bağlantı limitleri.
type RateLimitConfig struct {
	InitiateMax      int // window başına izin verilen initiate, 0 = limitsiz
	InitiateWindow   time.Duration
	InitiateCooldown time.Duration
	ConnectMax       int // IP başına dakikadaki WS upgrade, 0 = limitsiz
}

// CacheConfig, kullanıcı display bilgisi cache'i.
type CacheConfig struct {
	UserTTL time.Duration
}

// CallLogConfig, asenkron call log yazıcısı.
type CallLogConfig struct {
	Buffer int // kuyruk kapasitesi, dolunca kayıt düşer
}

// LogConfig, logrus ayarları.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text veya json
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler.
func Load() (*Config, error) {
	// .env yoksa sessizce devam et; production'da gerçek env kullanılır.
	_ = godotenv.Load()

	port, err := getInt("SERVER_PORT", 9090)
	if err != nil {
		return nil, err
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	ringTimeout, err := getMillis("CALL_RING_TIMEOUT_MS", 45000)
	if err != nil {
		return nil, err
	}
	connectTimeout, err := getMillis("CALL_CONNECT_TIMEOUT_MS", 30000)
	if err != nil {
		return nil, err
	}
	iceGrace, err := getMillis("CALL_ICE_FAILURE_GRACE_MS", 5000)
	if err != nil {
		return nil, err
	}
	offlineGrace, err := getMillis("PRESENCE_OFFLINE_GRACE_MS", 2000)
	if err != nil {
		return nil, err
	}

	initiateMax, err := getInt("CALL_INITIATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	initiateWindow, err := getSeconds("CALL_INITIATE_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	initiateCooldown, err := getSeconds("CALL_INITIATE_COOLDOWN_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	connectMax, err := getInt("WS_CONNECT_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}

	userTTL, err := getSeconds("USER_CACHE_TTL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	logBuffer, err := getInt("CALL_LOG_BUFFER", 256)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        port,
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/nexus.db"),
		},
		JWT: JWTConfig{
			Secret: jwtSecret,
		},
		Call: CallConfig{
			RingTimeout:     ringTimeout,
			ConnectTimeout:  connectTimeout,
			ICEFailureGrace: iceGrace,
		},
		Presence: PresenceConfig{
			OfflineGrace: offlineGrace,
		},
		ICE: ICEConfig{
			STUNURLs: splitList(getEnv("STUN_URLS",
				"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302")),
			TURNURL:        getEnv("TURN_URL", ""),
			TURNUsername:   getEnv("TURN_USERNAME", ""),
			TURNCredential: getEnv("TURN_CREDENTIAL", ""),
		},
		RateLimit: RateLimitConfig{
			InitiateMax:      initiateMax,
			InitiateWindow:   initiateWindow,
			InitiateCooldown: initiateCooldown,
			ConnectMax:       connectMax,
		},
		Cache: CacheConfig{
			UserTTL: userTTL,
		},
		CallLog: CallLogConfig{
			Buffer: logBuffer,
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func getMillis(key string, fallback int) (time.Duration, error) {
	n, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Millisecond, nil
}

func getSeconds(key string, fallback int) (time.Duration, error) {
	n, err := getInt(key, fallback)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

// splitList, virgülle ayrılmış listeyi parçalar, boş elemanları atar.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
