package repository

import (
	"context"
	"time"

	"github.com/akinalp/nexus/models"
)

// CallLogRepository, arama sonuç kayıtları.
type CallLogRepository interface {
	// Create, kaydı ekler. log.ID boşsa üretilir. Aynı session için
	// ikinci kayıt pkg.ErrConflict döner.
	Create(ctx context.Context, log *models.CallLog) error
	// ListByUser, kullanıcının arayan veya aranan olduğu kayıtları
	// ended_at azalan sırada döner. before sıfır değilse ondan eski
	// kayıtlar döner (sayfalama).
	ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]models.CallLog, error)
}
