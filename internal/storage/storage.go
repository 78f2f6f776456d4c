package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/store-rating-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrInvalidReference indicates a write pointed at a row that does not exist.
var ErrInvalidReference = errors.New("referenced record not found")

// UserStore is the credential store.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error)
}

// RefreshTokenStore persists refresh tokens by hash. A missing row means the
// token was revoked.
type RefreshTokenStore interface {
	SaveRefreshToken(ctx context.Context, token models.RefreshToken) error
	RefreshTokenByHash(ctx context.Context, hash string) (models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, hash string) error
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}

// StoreCatalog persists stores and computes their rating aggregates.
type StoreCatalog interface {
	CreateStore(ctx context.Context, store models.Store) (models.Store, error)
	UpdateStore(ctx context.Context, store models.Store) (models.Store, error)
	StoreByID(ctx context.Context, id int64) (models.Store, error)
	AggregateStores(ctx context.Context, q models.AggregateQuery) ([]models.StoreAggregate, error)
}

// RatingStore persists ratings. Implementations enforce one row per
// (user, store) and return ErrAlreadyExists when an insert would break that.
type RatingStore interface {
	RatingFor(ctx context.Context, userID, storeID int64) (models.Rating, error)
	InsertRating(ctx context.Context, rating models.Rating) (models.Rating, error)
	UpdateRating(ctx context.Context, rating models.Rating) (models.Rating, error)
	RatingsByUser(ctx context.Context, userID int64) ([]models.UserRating, error)
	RatingsByOwner(ctx context.Context, ownerID int64) ([]models.OwnerRating, error)
}

// StatsStore reports dashboard counters.
type StatsStore interface {
	Stats(ctx context.Context) (models.Stats, error)
}

// Repository is the full set of persistence operations.
type Repository interface {
	UserStore
	RefreshTokenStore
	StoreCatalog
	RatingStore
	StatsStore
}

// Store is a Repository that can run a function inside a transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
