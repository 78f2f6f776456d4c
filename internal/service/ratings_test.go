package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/cache"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/notify"
	"github.com/hongminglow/store-rating-be/internal/storage"
	"github.com/hongminglow/store-rating-be/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

func findStore(t *testing.T, listing []models.StoreAggregate, id int64) models.StoreAggregate {
	t.Helper()
	for _, s := range listing {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("store %d not in listing", id)
	return models.StoreAggregate{}
}

func TestEndToEndRatingScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var store7 models.Store
	for i := 1; i <= 7; i++ {
		store7 = env.createStore(t, "Store Number "+string(rune('A'+i-1)), nil)
	}
	require.Equal(t, int64(7), store7.ID)

	env.register(t, "Jordan Smith Two", "jordan@example.com", "")
	session, err := env.auth.Login(ctx, dto.LoginRequest{Email: "jordan@example.com", Password: "Secret@123"})
	require.NoError(t, err)
	claims, err := env.tokens.ParseAccessToken(session.AccessToken)
	require.NoError(t, err)
	caller := claims.Identity()

	before, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	_, err = env.ratings.AggregateStores(ctx, models.AggregateQuery{RequesterID: caller.UserID})
	require.NoError(t, err)

	_, err = env.ratings.SubmitRating(ctx, caller, dto.RatingRequest{StoreID: 7, Rating: 5, Comment: "Great"})
	require.NoError(t, err)

	after, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, before.TotalRatings+1, after.TotalRatings)

	listing, err := env.ratings.AggregateStores(ctx, models.AggregateQuery{RequesterID: caller.UserID})
	require.NoError(t, err)
	got := findStore(t, listing, 7)
	require.Equal(t, 5.0, got.AverageRating)
	require.Equal(t, int64(1), got.TotalRatings)
	require.Equal(t, 5, *got.MyRating)

	_, err = env.ratings.SubmitRating(ctx, caller, dto.RatingRequest{UserID: caller.UserID, StoreID: 7, Rating: 3})
	require.NoError(t, err)

	final, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, after.TotalRatings, final.TotalRatings)

	mine, err := env.ratings.RatingsByUser(ctx, caller, caller.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, 3, mine[0].Value)
	require.Empty(t, mine[0].Comment)

	listing, err = env.ratings.AggregateStores(ctx, models.AggregateQuery{RequesterID: caller.UserID})
	require.NoError(t, err)
	got = findStore(t, listing, 7)
	require.Equal(t, 3.0, got.AverageRating)
	require.Equal(t, 3, *got.MyRating)
}

func TestRepeatedSubmissionsKeepOneRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := identityOf(env.register(t, "Repeat Rater", "repeat@example.com", ""))
	store := env.createStore(t, "Repeat Shop", nil)

	for _, v := range []int{1, 4, 2, 5, 3} {
		_, err := env.ratings.SubmitRating(ctx, user, dto.RatingRequest{StoreID: store.ID, Rating: v, Comment: "take " + string(rune('0'+v))})
		require.NoError(t, err)
	}

	stats, err := env.admin.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalRatings)

	r, err := env.store.RatingFor(ctx, user.UserID, store.ID)
	require.NoError(t, err)
	require.Equal(t, 3, r.Value)
	require.Equal(t, "take 3", r.Comment)
}

func TestAggregateMeanRounding(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rated := env.createStore(t, "Rated Shop", nil)
	empty := env.createStore(t, "Empty Shop", nil)

	for i, v := range []int{5, 4, 5} {
		u := env.register(t, "Rater Number "+string(rune('A'+i)), "rater"+string(rune('a'+i))+"@example.com", "")
		_, err := env.ratings.SubmitRating(ctx, identityOf(u), dto.RatingRequest{StoreID: rated.ID, Rating: v})
		require.NoError(t, err)
	}

	listing, err := env.ratings.AggregateStores(ctx, models.AggregateQuery{SortField: models.SortByRating, SortOrder: models.OrderDesc})
	require.NoError(t, err)
	require.Len(t, listing, 2)
	require.Equal(t, rated.ID, listing[0].ID)
	require.Equal(t, 4.7, listing[0].AverageRating)
	require.Equal(t, int64(3), listing[0].TotalRatings)
	require.Nil(t, listing[0].MyRating)
	require.Equal(t, empty.ID, listing[1].ID)
	require.Equal(t, 0.0, listing[1].AverageRating)
	require.Equal(t, int64(0), listing[1].TotalRatings)
}

func TestRoundRating(t *testing.T) {
	require.Equal(t, 4.7, roundRating(14.0/3.0))
	require.Equal(t, 4.5, roundRating(4.45000001))
	require.Equal(t, 0.0, roundRating(0))
	require.Equal(t, 5.0, roundRating(5))
}

func TestSubmitRatingValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := identityOf(env.register(t, "Validating User", "valid@example.com", ""))
	store := env.createStore(t, "Valid Shop", nil)

	cases := map[string]dto.RatingRequest{
		"zero":         {StoreID: store.ID, Rating: 0},
		"six":          {StoreID: store.ID, Rating: 6},
		"long comment": {StoreID: store.ID, Rating: 3, Comment: strings.Repeat("x", 501)},
		"no store":     {Rating: 3},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.ratings.SubmitRating(ctx, user, req)
			requireKind(t, err, apperr.KindValidation)
		})
	}

	_, err := env.ratings.SubmitRating(ctx, user, dto.RatingRequest{StoreID: store.ID, Rating: 3, Comment: strings.Repeat("x", 500)})
	require.NoError(t, err)

	_, err = env.ratings.SubmitRating(ctx, user, dto.RatingRequest{StoreID: 999, Rating: 3})
	requireKind(t, err, apperr.KindNotFound)
}

func TestSubmitRatingOnBehalfOfAnotherUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := identityOf(env.register(t, "Alice Person", "alice@example.com", ""))
	bob := identityOf(env.register(t, "Bobby Person", "bob@example.com", ""))
	store := env.createStore(t, "Shared Shop", nil)

	_, err := env.ratings.SubmitRating(ctx, alice, dto.RatingRequest{UserID: bob.UserID, StoreID: store.ID, Rating: 1})
	requireKind(t, err, apperr.KindAuthorization)

	r, err := env.ratings.SubmitRating(ctx, adminIdentity, dto.RatingRequest{UserID: bob.UserID, StoreID: store.ID, Rating: 4})
	require.NoError(t, err)
	require.Equal(t, bob.UserID, r.UserID)

	_, err = env.ratings.SubmitRating(ctx, adminIdentity, dto.RatingRequest{UserID: 4242, StoreID: store.ID, Rating: 4})
	requireKind(t, err, apperr.KindNotFound)
}

func TestWritesInvalidateEveryCachedListing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := identityOf(env.register(t, "Cache Watcher", "cache@example.com", ""))
	store := env.createStore(t, "Cached Shop", nil)

	queries := []models.AggregateQuery{
		{},
		{RequesterID: user.UserID},
		{RequesterID: user.UserID, SortField: models.SortByRating, SortOrder: models.OrderDesc},
		{Search: "cached"},
	}
	populate := func() []string {
		for _, q := range queries {
			_, err := env.ratings.AggregateStores(ctx, q)
			require.NoError(t, err)
		}
		keys, err := env.kv.Keys(ctx, cache.StoresNamespace)
		require.NoError(t, err)
		require.Len(t, keys, len(queries))
		return keys
	}
	requireAllMiss := func(keys []string) {
		for _, key := range keys {
			_, err := env.kv.Get(ctx, key)
			require.ErrorIs(t, err, cache.ErrMiss, key)
		}
	}

	keys := populate()
	_, err := env.ratings.SubmitRating(ctx, user, dto.RatingRequest{StoreID: store.ID, Rating: 2})
	require.NoError(t, err)
	requireAllMiss(keys)

	listing, err := env.ratings.AggregateStores(ctx, models.AggregateQuery{RequesterID: user.UserID})
	require.NoError(t, err)
	require.Equal(t, 2, *findStore(t, listing, store.ID).MyRating)

	keys = populate()
	_, err = env.ratings.UpdateStore(ctx, adminIdentity, store.ID, dto.StoreRequest{Name: "Renamed Shop", Address: "2 High Street"})
	require.NoError(t, err)
	requireAllMiss(keys)

	keys = populate()
	env.createStore(t, "Brand New Shop", nil)
	requireAllMiss(keys)

	listing, err = env.ratings.AggregateStores(ctx, models.AggregateQuery{})
	require.NoError(t, err)
	require.Len(t, listing, 2)
}

func TestAggregateStoresReadsThroughCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	store := env.createStore(t, "Original Name", nil)

	first, err := env.ratings.AggregateStores(ctx, models.AggregateQuery{})
	require.NoError(t, err)

	// a write that bypasses the engine is invisible until the entry expires
	_, err = env.store.UpdateStore(ctx, models.Store{ID: store.ID, Name: "Sneaky Rename", Address: store.Address})
	require.NoError(t, err)

	second, err := env.ratings.AggregateStores(ctx, models.AggregateQuery{})
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, "Original Name", second[0].Name)
}

type downCache struct{}

var errCacheDown = errors.New("cache down")

func (downCache) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }
func (downCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }
func (downCache) Keys(context.Context, string) ([]string, error) { return nil, errCacheDown }
func (downCache) DeletePrefix(context.Context, string) (int64, error) { return 0, errCacheDown }
func (downCache) Incr(context.Context, string) (int64, error) { return 0, errCacheDown }

type failingBroadcaster struct{}

func (failingBroadcaster) Broadcast(context.Context, notify.Event) error {
	return errors.New("socket closed")
}

func TestCacheAndBroadcastFailuresNeverFailRequests(t *testing.T) {
	st := memory.New()
	env := newTestEnvWith(t, st)
	ratings := NewRatings(st, cache.NewAggregates(downCache{}, time.Minute, nil), failingBroadcaster{})
	ctx := context.Background()

	user := identityOf(env.register(t, "Resilient User", "resilient@example.com", ""))
	store, err := ratings.CreateStore(ctx, adminIdentity, dto.StoreRequest{Name: "Resilient Shop", Address: "Main St"})
	require.NoError(t, err)

	_, err = ratings.SubmitRating(ctx, user, dto.RatingRequest{StoreID: store.ID, Rating: 4})
	require.NoError(t, err)

	listing, err := ratings.AggregateStores(ctx, models.AggregateQuery{RequesterID: user.UserID})
	require.NoError(t, err)
	require.Len(t, listing, 1)
	require.Equal(t, 4.0, listing[0].AverageRating)
}

func TestSubmitRatingBroadcastsEvent(t *testing.T) {
	env := newTestEnv(t)
	events, stop := env.hub.Subscribe()
	defer stop()

	user := identityOf(env.register(t, "Event Person", "event@example.com", ""))
	store := env.createStore(t, "Event Shop", nil)
	_, err := env.ratings.SubmitRating(context.Background(), user, dto.RatingRequest{StoreID: store.ID, Rating: 5})
	require.NoError(t, err)

	select {
	case e := <-events:
		require.Equal(t, notify.Event{StoreID: store.ID, Value: 5, UserID: user.UserID}, e)
	case <-time.After(time.Second):
		t.Fatal("no event broadcast")
	}
}

// racingStore makes the first transaction lose an insert race: a competing row
// lands just after the transaction looked for one.
type racingStore struct {
	storage.Store
	raced bool
}

func (r *racingStore) InTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	if r.raced {
		return r.Store.InTx(ctx, fn)
	}
	r.raced = true
	return r.Store.InTx(ctx, func(tx storage.Repository) error {
		return fn(racingRepo{Repository: tx})
	})
}

type racingRepo struct{ storage.Repository }

func (racingRepo) RatingFor(context.Context, int64, int64) (models.Rating, error) {
	return models.Rating{}, storage.ErrNotFound
}

func TestSubmitRatingRetriesAfterLosingInsertRace(t *testing.T) {
	base := memory.New()
	ctx := context.Background()

	u, err := base.CreateUser(ctx, models.User{Name: "Double Clicker", Email: "dbl@example.com", Role: models.RoleUser})
	require.NoError(t, err)
	s, err := base.CreateStore(ctx, models.Store{Name: "Race Shop", Address: "Main St"})
	require.NoError(t, err)
	_, err = base.InsertRating(ctx, models.Rating{UserID: u.ID, StoreID: s.ID, Value: 1})
	require.NoError(t, err)

	racing := &racingStore{Store: base}
	ratings := NewRatings(racing, cache.NewAggregates(cache.NewMemoryStore(), time.Minute, nil), nil)

	saved, err := ratings.SubmitRating(ctx, models.Identity{UserID: u.ID, Role: models.RoleUser}, dto.RatingRequest{StoreID: s.ID, Rating: 5})
	require.NoError(t, err)
	require.Equal(t, 5, saved.Value)
	require.True(t, racing.raced)

	stats, err := base.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalRatings)
}

func TestStoreWritesAuthorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := identityOf(env.register(t, "Owner Person", "owner@example.com", models.RoleStoreOwner))
	other := identityOf(env.register(t, "Other Owner", "other@example.com", models.RoleStoreOwner))
	plain := identityOf(env.register(t, "Plain User", "plain@example.com", ""))

	_, err := env.ratings.CreateStore(ctx, owner, dto.StoreRequest{Name: "Self Made", Address: "A"})
	requireKind(t, err, apperr.KindAuthorization)

	_, err = env.ratings.CreateStore(ctx, adminIdentity, dto.StoreRequest{Name: "Bad Owner", Address: "A", OwnerID: &plain.UserID})
	requireKind(t, err, apperr.KindValidation)
	_, err = env.ratings.CreateStore(ctx, adminIdentity, dto.StoreRequest{Name: "", Address: "A"})
	requireKind(t, err, apperr.KindValidation)

	store := env.createStore(t, "Owned Shop", &owner.UserID)

	_, err = env.ratings.UpdateStore(ctx, other, store.ID, dto.StoreRequest{Name: "Hijack", Address: "A"})
	requireKind(t, err, apperr.KindAuthorization)
	_, err = env.ratings.UpdateStore(ctx, plain, store.ID, dto.StoreRequest{Name: "Hijack", Address: "A"})
	requireKind(t, err, apperr.KindAuthorization)
	_, err = env.ratings.UpdateStore(ctx, owner, 999, dto.StoreRequest{Name: "Ghost", Address: "A"})
	requireKind(t, err, apperr.KindNotFound)

	updated, err := env.ratings.UpdateStore(ctx, owner, store.ID, dto.StoreRequest{Name: "Owner Renamed", Address: "B", OwnerID: &other.UserID})
	require.NoError(t, err)
	require.Equal(t, "Owner Renamed", updated.Name)
	require.Equal(t, owner.UserID, *updated.OwnerID)

	moved, err := env.ratings.UpdateStore(ctx, adminIdentity, store.ID, dto.StoreRequest{Name: "Moved Shop", Address: "C", OwnerID: &other.UserID})
	require.NoError(t, err)
	require.Equal(t, other.UserID, *moved.OwnerID)
}

func TestOwnerScopedRatings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := identityOf(env.register(t, "Owner Person", "owner@example.com", models.RoleStoreOwner))
	other := identityOf(env.register(t, "Other Owner", "other@example.com", models.RoleStoreOwner))
	rater := identityOf(env.register(t, "Rater Person", "rater@example.com", ""))

	owned := env.createStore(t, "Owned Shop", &owner.UserID)
	unowned := env.createStore(t, "Unowned Shop", nil)
	for _, id := range []int64{owned.ID, unowned.ID} {
		_, err := env.ratings.SubmitRating(ctx, rater, dto.RatingRequest{StoreID: id, Rating: 4})
		require.NoError(t, err)
	}

	got, err := env.ratings.RatingsByOwner(ctx, owner, owner.UserID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Rater Person", got[0].UserName)

	_, err = env.ratings.RatingsByOwner(ctx, other, owner.UserID)
	requireKind(t, err, apperr.KindAuthorization)

	got, err = env.ratings.RatingsByOwner(ctx, adminIdentity, owner.UserID)
	require.NoError(t, err)
	require.Len(t, got, 1)

	none, err := env.ratings.RatingsByOwner(ctx, other, other.UserID)
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)

	_, err = env.ratings.RatingsByUser(ctx, owner, rater.UserID)
	requireKind(t, err, apperr.KindAuthorization)
	mine, err := env.ratings.RatingsByUser(ctx, rater, rater.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
}

// ctxCache fails like Redis does once the caller's context is done.
type ctxCache struct{ *cache.MemoryStore }

func (c ctxCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.MemoryStore.Get(ctx, key)
}

func (c ctxCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryStore.Set(ctx, key, value, ttl)
}

func (c ctxCache) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.MemoryStore.DeletePrefix(ctx, prefix)
}

func (c ctxCache) Incr(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.MemoryStore.Incr(ctx, key)
}

// cancelOnCommit cancels the request context as soon as a write commits.
type cancelOnCommit struct {
	storage.Store
	cancel context.CancelFunc
}

func (c cancelOnCommit) InTx(ctx context.Context, fn func(tx storage.Repository) error) error {
	err := c.Store.InTx(ctx, fn)
	if err == nil {
		c.cancel()
	}
	return err
}

func (c cancelOnCommit) CreateStore(ctx context.Context, store models.Store) (models.Store, error) {
	created, err := c.Store.CreateStore(ctx, store)
	if err == nil {
		c.cancel()
	}
	return created, err
}

func (c cancelOnCommit) UpdateStore(ctx context.Context, store models.Store) (models.Store, error) {
	updated, err := c.Store.UpdateStore(ctx, store)
	if err == nil {
		c.cancel()
	}
	return updated, err
}

type ctxBroadcaster struct{ live []bool }

func (b *ctxBroadcaster) Broadcast(ctx context.Context, _ notify.Event) error {
	b.live = append(b.live, ctx.Err() == nil)
	return ctx.Err()
}

func TestWritesInvalidateAfterRequestIsCancelled(t *testing.T) {
	base := memory.New()
	env := newTestEnvWith(t, base)
	kv := ctxCache{MemoryStore: cache.NewMemoryStore()}
	events := &ctxBroadcaster{}
	bg := context.Background()

	withCancelledCommit := func() (*Ratings, context.Context) {
		ctx, cancel := context.WithCancel(bg)
		t.Cleanup(cancel)
		st := cancelOnCommit{Store: base, cancel: cancel}
		return NewRatings(st, cache.NewAggregates(kv, time.Minute, nil), events), ctx
	}
	reader := NewRatings(base, cache.NewAggregates(kv, time.Minute, nil), nil)

	user := identityOf(env.register(t, "Late Rater", "late@example.com", ""))
	shop := env.createStore(t, "Deadline Shop", nil)

	listing, err := reader.AggregateStores(bg, models.AggregateQuery{})
	require.NoError(t, err)
	require.Equal(t, int64(0), findStore(t, listing, shop.ID).TotalRatings)

	ratings, ctx := withCancelledCommit()
	_, err = ratings.SubmitRating(ctx, user, dto.RatingRequest{StoreID: shop.ID, Rating: 5})
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	require.Equal(t, []bool{true}, events.live)

	listing, err = reader.AggregateStores(bg, models.AggregateQuery{})
	require.NoError(t, err)
	got := findStore(t, listing, shop.ID)
	require.Equal(t, int64(1), got.TotalRatings)
	require.Equal(t, 5.0, got.AverageRating)

	ratings, ctx = withCancelledCommit()
	_, err = ratings.UpdateStore(ctx, adminIdentity, shop.ID, dto.StoreRequest{Name: "Deadline Shop Two", Address: "1 High Street"})
	require.NoError(t, err)
	listing, err = reader.AggregateStores(bg, models.AggregateQuery{})
	require.NoError(t, err)
	require.Equal(t, "Deadline Shop Two", findStore(t, listing, shop.ID).Name)

	ratings, ctx = withCancelledCommit()
	_, err = ratings.CreateStore(ctx, adminIdentity, dto.StoreRequest{Name: "Second Shop", Address: "2 High Street"})
	require.NoError(t, err)
	listing, err = reader.AggregateStores(bg, models.AggregateQuery{})
	require.NoError(t, err)
	require.Len(t, listing, 2)
}
