// Package repository, veritabanı erişim katmanını tanımlar.
//
// Service katmanı doğrudan SQL yazmaz; bu paketteki interface'ler
// üzerinden çalışır. Her interface'in bir sqlite_*.go implementasyonu vardır.
package repository

import (
	"context"
	"time"

	"github.com/akinalp/nexus/models"
)

// UserRepository, kullanıcı dizini işlemleri.
type UserRepository interface {
	// GetByID, kullanıcıyı döner. Yoksa pkg.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByIDs, verilen id'lerden var olanları döner. Sıra garanti değildir.
	GetByIDs(ctx context.Context, ids []string) ([]models.User, error)
	// UpdatePresence, is_online ve last_seen alanlarını günceller.
	UpdatePresence(ctx context.Context, userID string, online bool, lastSeen time.Time) error
	// ResetOnline, tüm kullanıcıları offline işaretler. Sunucu başlangıcında
	// önceki process'ten kalan is_online=1 satırlarını temizler.
	ResetOnline(ctx context.Context) (int64, error)
}
