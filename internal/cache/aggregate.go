package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hongminglow/store-rating-be/internal/logctx"
	"github.com/hongminglow/store-rating-be/internal/models"
)

// Aggregates caches store listings on top of a Store. Every failure of the
// underlying store is logged and reported as a miss; nothing here returns an
// error to the caller.
type Aggregates struct {
	store   Store
	ttl     time.Duration
	metrics *Metrics
}

// NewAggregates wraps store. metrics may be nil.
func NewAggregates(store Store, ttl time.Duration, metrics *Metrics) *Aggregates {
	return &Aggregates{store: store, ttl: ttl, metrics: metrics}
}

// TTL reports how long entries written by Put live.
func (a *Aggregates) TTL() time.Duration { return a.ttl }

// Key resolves the key for q at the current namespace generation. ok is false
// when the generation cannot be read, in which case the cache must be bypassed.
func (a *Aggregates) Key(ctx context.Context, q models.AggregateQuery) (string, bool) {
	generation, err := a.generation(ctx)
	if err != nil {
		a.metrics.observe(resultError)
		logctx.From(ctx).Warn("cache_generation_failed", slog.String("op", "cache.Key"), slog.Any("err", err))
		return "", false
	}
	return StoresKey(generation, q), true
}

func (a *Aggregates) generation(ctx context.Context) (int64, error) {
	raw, err := a.store.Get(ctx, storesGenerationKey)
	if errors.Is(err, ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(raw), 10, 64)
}

// Get returns the cached listing for key. It never waits for a recomputation.
func (a *Aggregates) Get(ctx context.Context, key string) ([]models.StoreAggregate, bool) {
	raw, err := a.store.Get(ctx, key)
	if errors.Is(err, ErrMiss) {
		a.metrics.observe(resultMiss)
		return nil, false
	}
	if err != nil {
		a.metrics.observe(resultError)
		logctx.From(ctx).Warn("cache_get_failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}

	var value []models.StoreAggregate
	if err := json.Unmarshal(raw, &value); err != nil {
		a.metrics.observe(resultError)
		logctx.From(ctx).Warn("cache_decode_failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	a.metrics.observe(resultHit)
	if value == nil {
		value = []models.StoreAggregate{}
	}
	return value, true
}

// Put stores value under key for the configured TTL, replacing any entry.
func (a *Aggregates) Put(ctx context.Context, key string, value []models.StoreAggregate) {
	if value == nil {
		value = []models.StoreAggregate{}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logctx.From(ctx).Warn("cache_encode_failed", slog.String("key", key), slog.Any("err", err))
		return
	}
	if err := a.store.Set(ctx, key, raw, a.ttl); err != nil {
		a.metrics.observe(resultError)
		logctx.From(ctx).Warn("cache_put_failed", slog.String("key", key), slog.Any("err", err))
	}
}

// InvalidateNamespace removes every entry whose key starts with prefix.
func (a *Aggregates) InvalidateNamespace(ctx context.Context, prefix string) {
	n, err := a.store.DeletePrefix(ctx, prefix)
	if err != nil {
		a.metrics.observe(resultError)
		logctx.From(ctx).Warn("cache_invalidate_failed", slog.String("prefix", prefix), slog.Any("err", err))
		return
	}
	logctx.From(ctx).Debug("cache_invalidated", slog.String("prefix", prefix), slog.Int64("keys", n))
}

// InvalidateStores retires every store listing. The generation bump makes
// entries written by readers that raced the write unreachable; the prefix
// delete then frees them.
func (a *Aggregates) InvalidateStores(ctx context.Context) {
	a.metrics.invalidated()
	if _, err := a.store.Incr(ctx, storesGenerationKey); err != nil {
		a.metrics.observe(resultError)
		logctx.From(ctx).Warn("cache_generation_bump_failed", slog.Any("err", err))
	}
	a.InvalidateNamespace(ctx, StoresNamespace)
}
