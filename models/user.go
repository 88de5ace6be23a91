// Package models, uygulamanın domain modellerini tanımlar.
//
// Signaling çekirdeği kullanıcıyı sadece kimlik ve görünen bilgi olarak
// tanır; kayıt, profil düzenleme gibi işlemler başka servislerin işidir.
package models

import "time"

// User, users tablosundaki bir satır.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName *string    `json:"display_name"` // nullable
	AvatarURL   *string    `json:"avatar_url"`
	IsOnline    bool       `json:"is_online"`
	LastSeen    *time.Time `json:"last_seen"`
	CreatedAt   time.Time  `json:"created_at"`
}

// DisplayInfo, signaling payload'larını zenginleştirmek için kullanılan
// görünen kullanıcı bilgisi.
type DisplayInfo struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar"`
}

// DisplayInfo, kullanıcıdan görünen bilgiyi üretir.
// DisplayName boşsa username kullanılır.
func (u *User) DisplayInfo() DisplayInfo {
	info := DisplayInfo{UserID: u.ID, DisplayName: u.Username}
	if u.DisplayName != nil && *u.DisplayName != "" {
		info.DisplayName = *u.DisplayName
	}
	if u.AvatarURL != nil {
		info.AvatarRef = *u.AvatarURL
	}
	return info
}
