package models

import (
	"strings"
	"time"
)

// Sort fields and orders accepted by the store listing.
const (
	SortByName   = "name"
	SortByRating = "rating"
	OrderAsc     = "asc"
	OrderDesc    = "desc"
)

// Store is a rateable business. OwnerID is nil when nobody owns it.
type Store struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Email     string    `json:"email,omitempty"`
	OwnerID   *int64    `json:"owner_id"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}

// StoreAggregate is a store projection with its rating statistics.
type StoreAggregate struct {
	ID            int64    `json:"id"`
	Name          string   `json:"name"`
	Address       string   `json:"address"`
	Email         string   `json:"email,omitempty"`
	OwnerID       *int64   `json:"owner_id"`
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	AverageRating float64  `json:"average_rating"`
	TotalRatings  int64    `json:"total_ratings"`
	MyRating      *int     `json:"my_rating"`
}

// AggregateQuery describes one logical store listing. RequesterID is zero for
// anonymous requests.
type AggregateQuery struct {
	RequesterID int64
	Search      string
	SortField   string
	SortOrder   string
}

// Normalized returns q with the search trimmed and lower-cased and the sort
// options collapsed onto their accepted values. Two queries that return the
// same listing normalize to the same value.
func (q AggregateQuery) Normalized() AggregateQuery {
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	if q.SortField != SortByRating {
		q.SortField = SortByName
	}
	if q.SortOrder != OrderDesc {
		q.SortOrder = OrderAsc
	}
	if q.RequesterID < 0 {
		q.RequesterID = 0
	}
	return q
}
