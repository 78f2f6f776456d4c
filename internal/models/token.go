package models

import "time"

// RefreshToken is the persisted half of a refresh credential. Only the hash of
// the token string is stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
