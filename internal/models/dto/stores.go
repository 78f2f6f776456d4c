package dto

// StoreRequest is the body of store create and update calls.
type StoreRequest struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Email     string   `json:"email"`
	OwnerID   *int64   `json:"owner_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// RatingRequest is the body of a rating submission. UserID may be omitted, in
// which case the caller's own id is used.
type RatingRequest struct {
	UserID  int64  `json:"user_id"`
	StoreID int64  `json:"store_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
