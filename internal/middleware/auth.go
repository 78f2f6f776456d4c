package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/store-rating-be/internal/auth"
	"github.com/hongminglow/store-rating-be/internal/http/respond"
	"github.com/hongminglow/store-rating-be/internal/logctx"
	"github.com/hongminglow/store-rating-be/internal/models"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity placed in ctx by Authenticate.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}

// Authenticator verifies bearer access tokens.
type Authenticator struct {
	tokens *auth.TokenManager
}

func NewAuthenticator(tokens *auth.TokenManager) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Authenticate answers 401 when no bearer token is sent and 403 when the token
// does not verify, so clients know when a refresh is worth trying.
func (a *Authenticator) Authenticate() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "access token required")
				return
			}
			claims, err := a.tokens.ParseAccessToken(raw)
			if err != nil {
				logctx.From(r.Context()).Debug("access_token_rejected", slog.Any("err", err))
				respond.Error(w, http.StatusForbidden, "forbidden, please re-authenticate")
				return
			}

			id := claims.Identity()
			ctx := WithIdentity(r.Context(), id)
			ctx = logctx.Into(ctx, logctx.From(ctx).With(slog.Int64("user_id", id.UserID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireRole allows only identities holding role.
func RequireRole(role string) Middleware {
	return RequireAnyRole(role)
}

// RequireAnyRole allows identities holding one of roles. Requests without an
// identity are denied.
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok || !slices.Contains(roles, id.Role) {
				respond.Error(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrAdmin allows the request when the numeric URL parameter param
// names the caller, or the caller is an admin.
func RequireSelfOrAdmin(param string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			target, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil || target <= 0 {
				respond.Error(w, http.StatusBadRequest, "invalid "+param)
				return
			}
			id, ok := IdentityFrom(r.Context())
			if !ok || !id.CanActFor(target) {
				respond.Error(w, http.StatusForbidden, "access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
