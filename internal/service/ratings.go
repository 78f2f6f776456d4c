package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/cache"
	"github.com/hongminglow/store-rating-be/internal/logctx"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/notify"
	"github.com/hongminglow/store-rating-be/internal/storage"
)

const (
	// maxUpsertAttempts bounds retries after losing an insert race on (user, store).
	maxUpsertAttempts = 3
	// postCommitTimeout bounds the invalidation and broadcast after a write.
	postCommitTimeout = 2 * time.Second
)

// Ratings owns rating submission, the cached store listing and store writes.
type Ratings struct {
	store  storage.Store
	cache  *cache.Aggregates
	events notify.Broadcaster
}

// NewRatings wires the rating engine. events may be nil.
func NewRatings(store storage.Store, aggregates *cache.Aggregates, events notify.Broadcaster) *Ratings {
	return &Ratings{store: store, cache: aggregates, events: events}
}

// SubmitRating records caller's rating for a store, replacing any earlier one.
// Admins may rate on behalf of another user by naming them in UserID.
func (s *Ratings) SubmitRating(ctx context.Context, caller models.Identity, req dto.RatingRequest) (models.Rating, error) {
	const op = "service.Ratings.SubmitRating"

	comment := strings.TrimSpace(req.Comment)
	if err := validateRating(req.Rating, comment); err != nil {
		return models.Rating{}, err
	}
	if req.StoreID <= 0 {
		return models.Rating{}, apperr.Validation("store_id is required")
	}

	userID := req.UserID
	if userID == 0 {
		userID = caller.UserID
	}
	if userID != caller.UserID {
		if !caller.IsAdmin() {
			return models.Rating{}, apperr.Authorization("access denied")
		}
		if _, err := s.store.UserByID(ctx, userID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return models.Rating{}, apperr.NotFound("user not found")
			}
			return models.Rating{}, apperr.Internal(err)
		}
	}

	rating := models.Rating{UserID: userID, StoreID: req.StoreID, Value: req.Rating, Comment: comment}
	saved, err := s.upsert(ctx, rating)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidReference):
			return models.Rating{}, apperr.NotFound("store not found")
		case errors.Is(err, storage.ErrAlreadyExists):
			return models.Rating{}, apperr.Wrap(apperr.KindConflict, "rating was changed concurrently, please retry", err)
		default:
			return models.Rating{}, apperr.Internal(err)
		}
	}

	s.afterWrite(ctx, &notify.Event{StoreID: saved.StoreID, Value: saved.Value, UserID: saved.UserID})

	logctx.From(ctx).Info("rating_submitted",
		slog.String("op", op),
		slog.Int64("user_id", saved.UserID),
		slog.Int64("store_id", saved.StoreID),
		slog.Int("rating", saved.Value),
	)
	return saved, nil
}

// upsert updates the (user, store) row if it exists and inserts it otherwise.
// A unique violation on insert means a concurrent request inserted first; the
// whole transaction is retried so the second pass takes the update branch.
func (s *Ratings) upsert(ctx context.Context, rating models.Rating) (models.Rating, error) {
	var (
		saved models.Rating
		err   error
	)
	for attempt := 1; attempt <= maxUpsertAttempts; attempt++ {
		err = s.store.InTx(ctx, func(tx storage.Repository) error {
			_, err := tx.RatingFor(ctx, rating.UserID, rating.StoreID)
			switch {
			case err == nil:
				saved, err = tx.UpdateRating(ctx, rating)
			case errors.Is(err, storage.ErrNotFound):
				saved, err = tx.InsertRating(ctx, rating)
			}
			return err
		})
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return saved, err
		}
		logctx.From(ctx).Debug("rating_upsert_retry", slog.Int("attempt", attempt), slog.Any("err", err))
	}
	return models.Rating{}, err
}

// afterWrite retires cached listings and, when e is set, announces it. It runs
// once the write has committed and ignores the request's cancellation: a
// committed write always retires the listings computed before it.
func (s *Ratings) afterWrite(ctx context.Context, e *notify.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
	defer cancel()

	s.cache.InvalidateStores(ctx)
	if e != nil {
		s.broadcast(ctx, *e)
	}
}

func (s *Ratings) broadcast(ctx context.Context, e notify.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Broadcast(ctx, e); err != nil {
		logctx.From(ctx).Warn("rating_broadcast_failed", slog.Int64("store_id", e.StoreID), slog.Any("err", err))
	}
}

// AggregateStores returns the store listing for q, from cache when possible.
// Averages are rounded to one decimal; ordering uses full precision.
func (s *Ratings) AggregateStores(ctx context.Context, q models.AggregateQuery) ([]models.StoreAggregate, error) {
	q = q.Normalized()

	key, cacheable := s.cache.Key(ctx, q)
	if cacheable {
		if listing, hit := s.cache.Get(ctx, key); hit {
			return listing, nil
		}
	}

	listing, err := s.store.AggregateStores(ctx, q)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if listing == nil {
		listing = []models.StoreAggregate{}
	}
	for i := range listing {
		listing[i].AverageRating = roundRating(listing[i].AverageRating)
	}

	if cacheable {
		s.cache.Put(ctx, key, listing)
	}
	return listing, nil
}

func roundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// CreateStore adds a store. Only admins may do this.
func (s *Ratings) CreateStore(ctx context.Context, caller models.Identity, req dto.StoreRequest) (models.Store, error) {
	if !caller.IsAdmin() {
		return models.Store{}, apperr.Authorization("access denied")
	}
	store, err := s.storeFromRequest(ctx, req)
	if err != nil {
		return models.Store{}, err
	}

	created, err := s.store.CreateStore(ctx, store)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidReference) {
			return models.Store{}, apperr.NotFound("owner not found")
		}
		return models.Store{}, apperr.Internal(err)
	}

	s.afterWrite(ctx, nil)
	logctx.From(ctx).Info("store_created", slog.Int64("store_id", created.ID))
	return created, nil
}

// UpdateStore edits a store. Admins may edit any store and reassign its owner;
// a store owner may edit the stores they own but not hand them over.
// Coordinates and owner left unset keep their current values.
func (s *Ratings) UpdateStore(ctx context.Context, caller models.Identity, storeID int64, req dto.StoreRequest) (models.Store, error) {
	existing, err := s.store.StoreByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Store{}, apperr.NotFound("store not found")
		}
		return models.Store{}, apperr.Internal(err)
	}

	owns := caller.Role == models.RoleStoreOwner && existing.OwnerID != nil && *existing.OwnerID == caller.UserID
	if !caller.IsAdmin() && !owns {
		return models.Store{}, apperr.Authorization("access denied")
	}
	if !caller.IsAdmin() || req.OwnerID == nil {
		req.OwnerID = existing.OwnerID
	}
	if req.Latitude == nil {
		req.Latitude = existing.Latitude
	}
	if req.Longitude == nil {
		req.Longitude = existing.Longitude
	}

	store, err := s.storeFromRequest(ctx, req)
	if err != nil {
		return models.Store{}, err
	}
	store.ID = existing.ID

	updated, err := s.store.UpdateStore(ctx, store)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return models.Store{}, apperr.NotFound("store not found")
		case errors.Is(err, storage.ErrInvalidReference):
			return models.Store{}, apperr.NotFound("owner not found")
		}
		return models.Store{}, apperr.Internal(err)
	}

	s.afterWrite(ctx, nil)
	logctx.From(ctx).Info("store_updated", slog.Int64("store_id", updated.ID), slog.Int64("by", caller.UserID))
	return updated, nil
}

func (s *Ratings) storeFromRequest(ctx context.Context, req dto.StoreRequest) (models.Store, error) {
	store := models.Store{
		Name:      strings.TrimSpace(req.Name),
		Address:   strings.TrimSpace(req.Address),
		Email:     normalizeEmail(req.Email),
		OwnerID:   req.OwnerID,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
	if store.Name == "" || store.Address == "" {
		return models.Store{}, apperr.Validation("name and address are required")
	}
	if len([]rune(store.Name)) > maxNameLen {
		return models.Store{}, apperr.Validation("name must be at most 60 characters")
	}
	if err := validateAddress(store.Address); err != nil {
		return models.Store{}, err
	}
	if store.Email != "" {
		if err := validateEmail(store.Email); err != nil {
			return models.Store{}, err
		}
	}
	if err := validateCoordinates(store.Latitude, store.Longitude); err != nil {
		return models.Store{}, err
	}
	if store.OwnerID != nil {
		owner, err := s.store.UserByID(ctx, *store.OwnerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return models.Store{}, apperr.NotFound("owner not found")
			}
			return models.Store{}, apperr.Internal(err)
		}
		if owner.Role != models.RoleStoreOwner {
			return models.Store{}, apperr.Validation("owner must have the store_owner role")
		}
	}
	return store, nil
}

// RatingsByUser lists the ratings a user has given. Callers see their own;
// admins see anyone's.
func (s *Ratings) RatingsByUser(ctx context.Context, caller models.Identity, userID int64) ([]models.UserRating, error) {
	if !caller.CanActFor(userID) {
		return nil, apperr.Authorization("access denied")
	}
	ratings, err := s.store.RatingsByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if ratings == nil {
		ratings = []models.UserRating{}
	}
	return ratings, nil
}

// RatingsByOwner lists ratings across the stores an owner holds.
func (s *Ratings) RatingsByOwner(ctx context.Context, caller models.Identity, ownerID int64) ([]models.OwnerRating, error) {
	if !caller.CanActFor(ownerID) {
		return nil, apperr.Authorization("access denied")
	}
	ratings, err := s.store.RatingsByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if ratings == nil {
		ratings = []models.OwnerRating{}
	}
	return ratings, nil
}
