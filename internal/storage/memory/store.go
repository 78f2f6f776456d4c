// Package memory is an in-process storage.Store. It enforces the same unique
// and reference constraints as the Postgres schema.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

type pair struct{ user, store int64 }

type data struct {
	now func() time.Time

	nextUser, nextToken, nextStore, nextRating int64

	users   map[int64]models.User
	emails  map[string]int64
	tokens  map[string]models.RefreshToken
	stores  map[int64]models.Store
	ratings map[int64]models.Rating
	byPair  map[pair]int64
}

// Store guards a data set with a single mutex. Transactions hold the lock for
// their whole duration and work on a copy that replaces the original on commit.
type Store struct {
	mu sync.Mutex
	d  *data
}

// New returns an empty store.
func New() *Store {
	return &Store{d: &data{
		now:     time.Now,
		users:   map[int64]models.User{},
		emails:  map[string]int64{},
		tokens:  map[string]models.RefreshToken{},
		stores:  map[int64]models.Store{},
		ratings: map[int64]models.Rating{},
		byPair:  map[pair]int64{},
	}}
}

// SetClock replaces the time source used for timestamps and expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.now = now
}

// InTx runs fn against a copy of the data and keeps the copy only if fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.d.clone()
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.d = tx
	return nil
}

func (d *data) clone() *data {
	c := *d
	c.users = maps.Clone(d.users)
	c.emails = maps.Clone(d.emails)
	c.tokens = maps.Clone(d.tokens)
	c.stores = maps.Clone(d.stores)
	c.ratings = maps.Clone(d.ratings)
	c.byPair = maps.Clone(d.byPair)
	return &c
}

func locked[T any](s *Store, fn func(d *data) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.d)
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	return locked(s, func(d *data) (models.User, error) { return d.CreateUser(ctx, user) })
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return locked(s, func(d *data) (models.User, error) { return d.UserByEmail(ctx, email) })
}

func (s *Store) UserByID(ctx context.Context, id int64) (models.User, error) {
	return locked(s, func(d *data) (models.User, error) { return d.UserByID(ctx, id) })
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := locked(s, func(d *data) (struct{}, error) { return struct{}{}, d.UpdatePasswordHash(ctx, id, hash) })
	return err
}

func (s *Store) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error) {
	return locked(s, func(d *data) ([]models.User, error) { return d.ListUsers(ctx, q) })
}

func (s *Store) SaveRefreshToken(ctx context.Context, token models.RefreshToken) error {
	_, err := locked(s, func(d *data) (struct{}, error) { return struct{}{}, d.SaveRefreshToken(ctx, token) })
	return err
}

func (s *Store) RefreshTokenByHash(ctx context.Context, hash string) (models.RefreshToken, error) {
	return locked(s, func(d *data) (models.RefreshToken, error) { return d.RefreshTokenByHash(ctx, hash) })
}

func (s *Store) DeleteRefreshToken(ctx context.Context, hash string) error {
	_, err := locked(s, func(d *data) (struct{}, error) { return struct{}{}, d.DeleteRefreshToken(ctx, hash) })
	return err
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return locked(s, func(d *data) (int64, error) { return d.DeleteExpiredRefreshTokens(ctx) })
}

func (s *Store) CreateStore(ctx context.Context, store models.Store) (models.Store, error) {
	return locked(s, func(d *data) (models.Store, error) { return d.CreateStore(ctx, store) })
}

func (s *Store) UpdateStore(ctx context.Context, store models.Store) (models.Store, error) {
	return locked(s, func(d *data) (models.Store, error) { return d.UpdateStore(ctx, store) })
}

func (s *Store) StoreByID(ctx context.Context, id int64) (models.Store, error) {
	return locked(s, func(d *data) (models.Store, error) { return d.StoreByID(ctx, id) })
}

func (s *Store) AggregateStores(ctx context.Context, q models.AggregateQuery) ([]models.StoreAggregate, error) {
	return locked(s, func(d *data) ([]models.StoreAggregate, error) { return d.AggregateStores(ctx, q) })
}

func (s *Store) RatingFor(ctx context.Context, userID, storeID int64) (models.Rating, error) {
	return locked(s, func(d *data) (models.Rating, error) { return d.RatingFor(ctx, userID, storeID) })
}

func (s *Store) InsertRating(ctx context.Context, rating models.Rating) (models.Rating, error) {
	return locked(s, func(d *data) (models.Rating, error) { return d.InsertRating(ctx, rating) })
}

func (s *Store) UpdateRating(ctx context.Context, rating models.Rating) (models.Rating, error) {
	return locked(s, func(d *data) (models.Rating, error) { return d.UpdateRating(ctx, rating) })
}

func (s *Store) RatingsByUser(ctx context.Context, userID int64) ([]models.UserRating, error) {
	return locked(s, func(d *data) ([]models.UserRating, error) { return d.RatingsByUser(ctx, userID) })
}

func (s *Store) RatingsByOwner(ctx context.Context, ownerID int64) ([]models.OwnerRating, error) {
	return locked(s, func(d *data) ([]models.OwnerRating, error) { return d.RatingsByOwner(ctx, ownerID) })
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	return locked(s, func(d *data) (models.Stats, error) { return d.Stats(ctx) })
}

func notFound(op string) error      { return fmt.Errorf("%s: %w", op, storage.ErrNotFound) }
func alreadyExists(op string) error { return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists) }
func badReference(op string) error  { return fmt.Errorf("%s: %w", op, storage.ErrInvalidReference) }

func (d *data) CreateUser(_ context.Context, user models.User) (models.User, error) {
	const op = "storage.memory.CreateUser"
	if _, ok := d.emails[user.Email]; ok {
		return models.User{}, alreadyExists(op)
	}
	d.nextUser++
	user.ID = d.nextUser
	user.CreatedAt = d.now()
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	d.users[user.ID] = user
	d.emails[user.Email] = user.ID
	return user, nil
}

func (d *data) UserByEmail(_ context.Context, email string) (models.User, error) {
	id, ok := d.emails[email]
	if !ok {
		return models.User{}, notFound("storage.memory.UserByEmail")
	}
	return d.users[id], nil
}

func (d *data) UserByID(_ context.Context, id int64) (models.User, error) {
	u, ok := d.users[id]
	if !ok {
		return models.User{}, notFound("storage.memory.UserByID")
	}
	return u, nil
}

func (d *data) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	u, ok := d.users[id]
	if !ok {
		return notFound("storage.memory.UpdatePasswordHash")
	}
	u.PasswordHash = hash
	d.users[id] = u
	return nil
}

func (d *data) ListUsers(_ context.Context, q models.UserQuery) ([]models.User, error) {
	var out []models.User
	for _, u := range d.users {
		if q.Search == "" || containsFold(q.Search, u.Name, u.Email, u.Address, u.Role) {
			out = append(out, u)
		}
	}
	field := func(u models.User) string {
		switch q.SortField {
		case "email":
			return u.Email
		case "role":
			return u.Role
		}
		return u.Name
	}
	slices.SortFunc(out, func(a, b models.User) int {
		c := cmp.Compare(field(a), field(b))
		if q.SortOrder == models.OrderDesc {
			c = -c
		}
		return cmp.Or(c, cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (d *data) SaveRefreshToken(_ context.Context, token models.RefreshToken) error {
	const op = "storage.memory.SaveRefreshToken"
	if _, ok := d.tokens[token.TokenHash]; ok {
		return alreadyExists(op)
	}
	if _, ok := d.users[token.UserID]; !ok {
		return badReference(op)
	}
	d.nextToken++
	token.ID = d.nextToken
	d.tokens[token.TokenHash] = token
	return nil
}

func (d *data) RefreshTokenByHash(_ context.Context, hash string) (models.RefreshToken, error) {
	t, ok := d.tokens[hash]
	if !ok {
		return models.RefreshToken{}, notFound("storage.memory.RefreshTokenByHash")
	}
	return t, nil
}

func (d *data) DeleteRefreshToken(_ context.Context, hash string) error {
	delete(d.tokens, hash)
	return nil
}

func (d *data) DeleteExpiredRefreshTokens(_ context.Context) (int64, error) {
	now := d.now()
	var n int64
	for hash, t := range d.tokens {
		if !t.ExpiresAt.After(now) {
			delete(d.tokens, hash)
			n++
		}
	}
	return n, nil
}

func (d *data) CreateStore(_ context.Context, store models.Store) (models.Store, error) {
	if store.OwnerID != nil {
		if _, ok := d.users[*store.OwnerID]; !ok {
			return models.Store{}, badReference("storage.memory.CreateStore")
		}
	}
	d.nextStore++
	store.ID = d.nextStore
	store.CreatedAt = d.now()
	d.stores[store.ID] = store
	return store, nil
}

func (d *data) UpdateStore(_ context.Context, store models.Store) (models.Store, error) {
	const op = "storage.memory.UpdateStore"
	existing, ok := d.stores[store.ID]
	if !ok {
		return models.Store{}, notFound(op)
	}
	if store.OwnerID != nil {
		if _, ok := d.users[*store.OwnerID]; !ok {
			return models.Store{}, badReference(op)
		}
	}
	store.CreatedAt = existing.CreatedAt
	d.stores[store.ID] = store
	return store, nil
}

func (d *data) StoreByID(_ context.Context, id int64) (models.Store, error) {
	s, ok := d.stores[id]
	if !ok {
		return models.Store{}, notFound("storage.memory.StoreByID")
	}
	return s, nil
}

func (d *data) AggregateStores(_ context.Context, q models.AggregateQuery) ([]models.StoreAggregate, error) {
	type acc struct {
		sum, count int64
	}
	totals := map[int64]acc{}
	for _, r := range d.ratings {
		a := totals[r.StoreID]
		a.sum += int64(r.Value)
		a.count++
		totals[r.StoreID] = a
	}

	var out []models.StoreAggregate
	for _, s := range d.stores {
		if q.Search != "" && !containsFold(q.Search, s.Name, s.Address, s.Email) {
			continue
		}
		agg := models.StoreAggregate{
			ID:        s.ID,
			Name:      s.Name,
			Address:   s.Address,
			Email:     s.Email,
			OwnerID:   s.OwnerID,
			Latitude:  s.Latitude,
			Longitude: s.Longitude,
		}
		if a := totals[s.ID]; a.count > 0 {
			agg.AverageRating = float64(a.sum) / float64(a.count)
			agg.TotalRatings = a.count
		}
		if id, ok := d.byPair[pair{q.RequesterID, s.ID}]; ok {
			v := d.ratings[id].Value
			agg.MyRating = &v
		}
		out = append(out, agg)
	}

	slices.SortFunc(out, func(a, b models.StoreAggregate) int {
		var c int
		if q.SortField == models.SortByRating {
			c = cmp.Compare(a.AverageRating, b.AverageRating)
		} else {
			c = cmp.Compare(a.Name, b.Name)
		}
		if q.SortOrder == models.OrderDesc {
			c = -c
		}
		return cmp.Or(c, cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (d *data) RatingFor(_ context.Context, userID, storeID int64) (models.Rating, error) {
	id, ok := d.byPair[pair{userID, storeID}]
	if !ok {
		return models.Rating{}, notFound("storage.memory.RatingFor")
	}
	return d.ratings[id], nil
}

func (d *data) InsertRating(_ context.Context, rating models.Rating) (models.Rating, error) {
	const op = "storage.memory.InsertRating"
	if _, ok := d.byPair[pair{rating.UserID, rating.StoreID}]; ok {
		return models.Rating{}, alreadyExists(op)
	}
	if _, ok := d.users[rating.UserID]; !ok {
		return models.Rating{}, badReference(op)
	}
	if _, ok := d.stores[rating.StoreID]; !ok {
		return models.Rating{}, badReference(op)
	}
	d.nextRating++
	rating.ID = d.nextRating
	rating.CreatedAt = d.now()
	rating.UpdatedAt = rating.CreatedAt
	d.ratings[rating.ID] = rating
	d.byPair[pair{rating.UserID, rating.StoreID}] = rating.ID
	return rating, nil
}

func (d *data) UpdateRating(_ context.Context, rating models.Rating) (models.Rating, error) {
	id, ok := d.byPair[pair{rating.UserID, rating.StoreID}]
	if !ok {
		return models.Rating{}, notFound("storage.memory.UpdateRating")
	}
	existing := d.ratings[id]
	existing.Value = rating.Value
	existing.Comment = rating.Comment
	existing.UpdatedAt = d.now()
	d.ratings[id] = existing
	return existing, nil
}

func (d *data) RatingsByUser(_ context.Context, userID int64) ([]models.UserRating, error) {
	var out []models.UserRating
	for _, r := range d.ratings {
		if r.UserID != userID {
			continue
		}
		s := d.stores[r.StoreID]
		out = append(out, models.UserRating{Rating: r, StoreName: s.Name, StoreAddress: s.Address})
	}
	slices.SortFunc(out, func(a, b models.UserRating) int { return newestFirst(a.Rating, b.Rating) })
	return out, nil
}

func (d *data) RatingsByOwner(_ context.Context, ownerID int64) ([]models.OwnerRating, error) {
	var out []models.OwnerRating
	for _, r := range d.ratings {
		s := d.stores[r.StoreID]
		if s.OwnerID == nil || *s.OwnerID != ownerID {
			continue
		}
		u := d.users[r.UserID]
		out = append(out, models.OwnerRating{Rating: r, UserName: u.Name, UserEmail: u.Email, StoreName: s.Name})
	}
	slices.SortFunc(out, func(a, b models.OwnerRating) int { return newestFirst(a.Rating, b.Rating) })
	return out, nil
}

func (d *data) Stats(_ context.Context) (models.Stats, error) {
	return models.Stats{
		TotalUsers:   int64(len(d.users)),
		TotalStores:  int64(len(d.stores)),
		TotalRatings: int64(len(d.ratings)),
	}, nil
}

func newestFirst(a, b models.Rating) int {
	return cmp.Or(b.UpdatedAt.Compare(a.UpdatedAt), cmp.Compare(b.ID, a.ID))
}

func containsFold(needle string, fields ...string) bool {
	needle = strings.ToLower(needle)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}
