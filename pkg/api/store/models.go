package store

import (
	"time"
)

// Session represents an authenticated browser session. The GitHub access
// token is stored sealed and only decrypted on lookup.
type Session struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Token        string     `gorm:"uniqueIndex;not null" json:"-"`
	Username     string     `gorm:"index;not null" json:"username"`
	Avatar       string     `json:"avatar"`
	SealedToken  []byte     `gorm:"not null" json:"-"`
	AccessToken  string     `gorm:"-" json:"-"`
	LastOwner    string     `json:"last_owner"`
	LastRepo     string     `json:"last_repo"`
	ExpiresAt    time.Time  `gorm:"not null" json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt *time.Time `json:"last_active_at"`
}
