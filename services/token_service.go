// Package services, iş mantığı katmanıdır.
//
// Her service bir interface + private struct + constructor üçlüsüdür;
// constructor interface döner. Service'ler birbirine ve repository'lere
// küçük (ISP) interface'ler üzerinden bağımlıdır.
package services

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akinalp/nexus/models"
	"github.com/akinalp/nexus/pkg"
)

// TokenService, access token doğrulaması.
//
// Token'ları auth servisi üretir; bu servis sadece ortak secret ile
// imzayı ve süreyi doğrular. ws.TokenValidator ve middleware bunu kullanır.
type TokenService interface {
	ValidateAccessToken(tokenString string) (*models.TokenClaims, error)
}

type tokenService struct {
	jwtSecret []byte
}

// NewTokenService, constructor.
func NewTokenService(jwtSecret string) TokenService {
	return &tokenService{jwtSecret: []byte(jwtSecret)}
}

func (s *tokenService) ValidateAccessToken(tokenString string) (*models.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthorized)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthorized)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: token has no user", pkg.ErrUnauthorized)
	}

	return claims, nil
}
