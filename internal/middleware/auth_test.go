package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/store-rating-be/internal/auth"
	"github.com/hongminglow/store-rating-be/internal/models"
)

func newTokens() *auth.TokenManager {
	return auth.NewTokenManager("access-secret", "refresh-secret", "test", 15*time.Minute, time.Hour)
}

func identityEcho(t *testing.T, got *models.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFrom(r.Context())
		require.True(t, ok)
		*got = id
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	tokens := newTokens()
	user := models.User{ID: 7, Email: "owner@example.com", Role: models.RoleStoreOwner}
	access, _, err := tokens.IssueAccessToken(user)
	require.NoError(t, err)
	refresh, _, err := tokens.IssueRefreshToken(user)
	require.NoError(t, err)

	var got models.Identity
	h := NewAuthenticator(tokens).Authenticate()(identityEcho(t, &got))

	cases := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "access token required"},
		{"wrong scheme", "Basic " + access, http.StatusUnauthorized, "access token required"},
		{"garbage", "Bearer not-a-jwt", http.StatusForbidden, "forbidden, please re-authenticate"},
		{"refresh as access", "Bearer " + refresh, http.StatusForbidden, "forbidden, please re-authenticate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := makeReq(http.MethodGet, "/api/stores")
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
			require.Contains(t, rec.Body.String(), tc.message)
		})
	}

	req := makeReq(http.MethodGet, "/api/stores")
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, models.Identity{UserID: 7, Email: "owner@example.com", Role: models.RoleStoreOwner}, got)
}

func TestAuthenticateExpiredToken(t *testing.T) {
	tokens := auth.NewTokenManager("access-secret", "refresh-secret", "test", -time.Minute, time.Hour)
	access, _, err := tokens.IssueAccessToken(models.User{ID: 1, Role: models.RoleUser})
	require.NoError(t, err)

	var got models.Identity
	h := NewAuthenticator(tokens).Authenticate()(identityEcho(t, &got))
	req := makeReq(http.MethodGet, "/")
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func serveAs(h http.Handler, id *models.Identity, req *http.Request) *httptest.ResponseRecorder {
	if id != nil {
		req = req.WithContext(WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAnyRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireAnyRole(models.RoleAdmin, models.RoleStoreOwner)(ok)

	admin := models.Identity{UserID: 1, Role: models.RoleAdmin}
	owner := models.Identity{UserID: 2, Role: models.RoleStoreOwner}
	user := models.Identity{UserID: 3, Role: models.RoleUser}

	require.Equal(t, http.StatusOK, serveAs(h, &admin, makeReq(http.MethodGet, "/")).Code)
	require.Equal(t, http.StatusOK, serveAs(h, &owner, makeReq(http.MethodGet, "/")).Code)

	rec := serveAs(h, &user, makeReq(http.MethodGet, "/"))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "access denied")

	require.Equal(t, http.StatusForbidden, serveAs(h, nil, makeReq(http.MethodGet, "/")).Code)
	require.Equal(t, http.StatusForbidden, serveAs(RequireRole(models.RoleAdmin)(ok), &owner, makeReq(http.MethodGet, "/")).Code)
}

func TestRequireSelfOrAdmin(t *testing.T) {
	r := chi.NewRouter()
	r.With(RequireSelfOrAdmin("userId")).Get("/user-ratings/{userId}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	self := models.Identity{UserID: 5, Role: models.RoleUser}
	admin := models.Identity{UserID: 1, Role: models.RoleAdmin}

	require.Equal(t, http.StatusOK, serveAs(r, &self, makeReq(http.MethodGet, "/user-ratings/5")).Code)
	require.Equal(t, http.StatusForbidden, serveAs(r, &self, makeReq(http.MethodGet, "/user-ratings/6")).Code)
	require.Equal(t, http.StatusOK, serveAs(r, &admin, makeReq(http.MethodGet, "/user-ratings/6")).Code)
	require.Equal(t, http.StatusBadRequest, serveAs(r, &admin, makeReq(http.MethodGet, "/user-ratings/abc")).Code)
	require.Equal(t, http.StatusForbidden, serveAs(r, nil, makeReq(http.MethodGet, "/user-ratings/5")).Code)
}
