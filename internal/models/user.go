package models

import "time"

// User captures application-facing fields for an authenticated identity.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Address      string    `json:"address"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity is the verified subject of an access token.
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// UserQuery filters and orders the admin user listing.
type UserQuery struct {
	Search    string
	SortField string
	SortOrder string
}

// Stats holds the dashboard counters.
type Stats struct {
	TotalUsers   int64 `json:"total_users"`
	TotalStores  int64 `json:"total_stores"`
	TotalRatings int64 `json:"total_ratings"`
}

// CanActFor reports whether the identity may act on resources owned by
// userID: it is that user, or an admin.
func (i Identity) CanActFor(userID int64) bool {
	return i.IsAdmin() || (i.UserID != 0 && i.UserID == userID)
}
