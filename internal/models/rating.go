package models

import "time"

// Rating is one user's score for one store. At most one exists per pair.
type Rating struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	StoreID   int64     `json:"store_id"`
	Value     int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRating is a rating joined with the rated store, for the user's history.
type UserRating struct {
	Rating
	StoreName    string `json:"store_name"`
	StoreAddress string `json:"store_address"`
}

// OwnerRating is a rating joined with the rater and store, for owner views.
type OwnerRating struct {
	Rating
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	StoreName string `json:"store_name"`
}
