// Package handlers, HTTP ve WebSocket op handler'larını barındırır.
//
// Handler'lar "thin" dir: request parse + service call + response write.
// İş kuralları services paketindedir.
package handlers

import (
	"context"

	"github.com/akinalp/nexus/models"
)

// contextKey, context.Value çakışmalarını önlemek için özel key tipi.
type contextKey string

// ClaimsContextKey, AuthMiddleware'ın doğrulanmış token claim'lerini
// taşıdığı key. Değer *models.TokenClaims'tir.
const ClaimsContextKey contextKey = "claims"

// ClaimsFromContext, AuthMiddleware'ın eklediği claim'leri döner.
func ClaimsFromContext(ctx context.Context) (*models.TokenClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*models.TokenClaims)
	return claims, ok && claims != nil && claims.UserID != ""
}

// WithClaims, claim'leri context'e ekler.
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}
