package service

import (
	"context"
	"testing"
	"time"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/auth"
	"github.com/hongminglow/store-rating-be/internal/cache"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/notify"
	"github.com/hongminglow/store-rating-be/internal/storage"
	"github.com/hongminglow/store-rating-be/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *memory.Store
	kv      *cache.MemoryStore
	tokens  *auth.TokenManager
	hub     *notify.Hub
	auth    *Auth
	ratings *Ratings
	admin   *Admin
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, memory.New())
}

func newTestEnvWith(t *testing.T, base *memory.Store, wrap ...func(storage.Store) storage.Store) *testEnv {
	t.Helper()
	var st storage.Store = base
	for _, w := range wrap {
		st = w(st)
	}
	kv := cache.NewMemoryStore()
	tokens := auth.NewTokenManager("access-secret", "refresh-secret", "test", 15*time.Minute, 7*24*time.Hour)
	hub := notify.NewHub()
	return &testEnv{
		store:   base,
		kv:      kv,
		tokens:  tokens,
		hub:     hub,
		auth:    NewAuth(st, tokens),
		ratings: NewRatings(st, cache.NewAggregates(kv, time.Minute, nil), hub),
		admin:   NewAdmin(st),
	}
}

var adminIdentity = models.Identity{UserID: 1_000_000, Email: "root@example.com", Role: models.RoleAdmin}

func (e *testEnv) register(t *testing.T, name, email, role string) Session {
	t.Helper()
	s, err := e.auth.Register(context.Background(), dto.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: "Secret@123",
		Address:  "12 Market Street",
		Role:     role,
	})
	require.NoError(t, err)
	return s
}

func (e *testEnv) createStore(t *testing.T, name string, owner *int64) models.Store {
	t.Helper()
	s, err := e.ratings.CreateStore(context.Background(), adminIdentity, dto.StoreRequest{Name: name, Address: "1 High Street", OwnerID: owner})
	require.NoError(t, err)
	return s
}

func identityOf(s Session) models.Identity {
	return models.Identity{UserID: s.User.ID, Email: s.User.Email, Role: s.User.Role}
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err), "unexpected kind for %v", err)
}
