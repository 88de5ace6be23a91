package services

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/akinalp/nexus/models"
)

// UserGetter, tek kullanıcı okumak için minimal interface.
// repository.UserRepository bunu karşılar.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// UserDirectory, signaling payload'larında kullanılan görünen kullanıcı bilgisi.
//
// call.incoming gibi sık ve gecikmeye duyarlı event'ler için her seferinde
// DB'ye gidilmez; sonuçlar kısa TTL ile cache'lenir.
type UserDirectory interface {
	// GetDisplayInfo, kullanıcının görünen adı ve avatarını döner.
	// Kullanıcı dizinde yoksa pkg.ErrNotFound.
	GetDisplayInfo(ctx context.Context, userID string) (models.DisplayInfo, error)

	// Invalidate, kullanıcının cache kaydını siler.
	Invalidate(userID string)

	// Close, cache'in expire döngüsünü durdurur.
	Close()
}

type userDirectory struct {
	users UserGetter
	cache *ttlcache.Cache[string, models.DisplayInfo]
}

// NewUserDirectory, constructor. ttl <= 0 ise cache kullanılmaz.
func NewUserDirectory(users UserGetter, ttl time.Duration) UserDirectory {
	d := &userDirectory{users: users}
	if ttl > 0 {
		d.cache = ttlcache.New(
			ttlcache.WithTTL[string, models.DisplayInfo](ttl),
			ttlcache.WithDisableTouchOnHit[string, models.DisplayInfo](),
		)
		go d.cache.Start()
	}
	return d
}

func (d *userDirectory) GetDisplayInfo(ctx context.Context, userID string) (models.DisplayInfo, error) {
	if d.cache != nil {
		if item := d.cache.Get(userID); item != nil {
			return item.Value(), nil
		}
	}

	user, err := d.users.GetByID(ctx, userID)
	if err != nil {
		return models.DisplayInfo{}, err
	}

	info := user.DisplayInfo()
	if d.cache != nil {
		d.cache.Set(userID, info, ttlcache.DefaultTTL)
	}
	return info, nil
}

func (d *userDirectory) Invalidate(userID string) {
	if d.cache != nil {
		d.cache.Delete(userID)
	}
}

func (d *userDirectory) Close() {
	if d.cache != nil {
		d.cache.Stop()
	}
}
