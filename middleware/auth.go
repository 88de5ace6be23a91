// Package middleware, HTTP request pipeline'ına eklenen ara katmanları barındırır.
//
// Go'da middleware bir fonksiyondur:
//
//	func(next http.Handler) http.Handler
//
// Middleware kendi işini yapar (ör: token doğrula), sonra next'i çağırır.
// Hata varsa next çağrılmaz, request burada durur.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/akinalp/nexus/handlers"
	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
	"github.com/akinalp/nexus/services"
)

// UserLookup, token sahibinin hâlâ var olduğunu doğrulamak için.
// services.UserDirectory bunu cache'li olarak karşılar.
type UserLookup interface {
	GetDisplayInfo(ctx context.Context, userID string) (models.DisplayInfo, error)
}

// AuthMiddleware, JWT token doğrulama middleware'ı.
type AuthMiddleware struct {
	tokenService services.TokenService
	users        UserLookup
}

// NewAuthMiddleware, constructor.
func NewAuthMiddleware(tokenService services.TokenService, users UserLookup) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
		users:        users,
	}
}

// Require, JWT token zorunlu kılan middleware.
// Token yoksa veya geçersizse → 401 Unauthorized.
//
// HTTP header formatı: Authorization: Bearer <token>
//
// Akış:
//  1. "Authorization" header'ını oku, "Bearer " prefix'ini kaldır
//  2. TokenService.ValidateAccessToken() ile doğrula
//  3. Kullanıcı dizinde var mı bak (token geçerli ama kullanıcı silinmiş olabilir)
//  4. Claim'leri context'e ekle, next handler'ı çağır
func (m *AuthMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "authorization header required")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <token>")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := m.tokenService.ValidateAccessToken(tokenString)
		if err != nil {
			pkg.Error(w, err)
			return
		}

		if _, err := m.users.GetDisplayInfo(r.Context(), claims.UserID); err != nil {
			pkg.ErrorWithMessage(w, http.StatusUnauthorized, "user not found")
			return
		}

		next.ServeHTTP(w, r.WithContext(handlers.WithClaims(r.Context(), claims)))
	})
}
