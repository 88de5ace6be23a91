package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims, access token payload'ı.
//
// Token'ı bu servis üretmez; auth servisiyle paylaşılan secret ile
// imzalanmış token'lar sadece doğrulanır (WS handshake ve REST middleware).
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
