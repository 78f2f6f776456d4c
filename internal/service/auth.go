package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/auth"
	"github.com/hongminglow/store-rating-be/internal/logctx"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/storage"
)

// ErrRefreshTokenNotFound means the refresh token has no stored row, either
// because it was never issued here or because it was revoked.
var ErrRefreshTokenNotFound = errors.New("refresh token not found")

// Session is what a successful register or login hands back.
type Session struct {
	User         models.User
	AccessToken  string
	RefreshToken string
}

// Auth runs the credential and token flows.
type Auth struct {
	store  storage.Store
	tokens *auth.TokenManager
}

// NewAuth wires the auth flows to storage and a token manager.
func NewAuth(store storage.Store, tokens *auth.TokenManager) *Auth {
	return &Auth{store: store, tokens: tokens}
}

// Register creates a user with a self-service role and opens a session. The
// user row and the refresh token row commit together or not at all.
func (a *Auth) Register(ctx context.Context, req dto.RegisterRequest) (Session, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = models.RoleUser
	}
	if role != models.RoleUser && role != models.RoleStoreOwner {
		return Session{}, apperr.Validation("role must be user or store_owner")
	}
	user, err := newUser(req, role)
	if err != nil {
		return Session{}, err
	}

	var refresh string
	err = a.store.InTx(ctx, func(tx storage.Repository) error {
		created, err := tx.CreateUser(ctx, user)
		if err != nil {
			return err
		}
		user = created
		refresh, err = a.saveRefreshToken(ctx, tx, user)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return Session{}, apperr.Conflict("email already registered")
		}
		return Session{}, apperr.Internal(err)
	}

	access, _, err := a.tokens.IssueAccessToken(user)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	logctx.From(ctx).Info("user_registered", slog.Int64("user_id", user.ID), slog.String("role", user.Role))
	return Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// CreateUser lets an admin create an account with any role. No session is opened.
func (a *Auth) CreateUser(ctx context.Context, req dto.RegisterRequest) (models.User, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return models.User{}, apperr.Validation("role must be admin, user or store_owner")
	}
	user, err := newUser(req, role)
	if err != nil {
		return models.User{}, err
	}

	created, err := a.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return models.User{}, apperr.Conflict("email already registered")
		}
		return models.User{}, apperr.Internal(err)
	}
	logctx.From(ctx).Info("user_created", slog.Int64("user_id", created.ID), slog.String("role", created.Role))
	return created, nil
}

func newUser(req dto.RegisterRequest, role string) (models.User, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	address := strings.TrimSpace(req.Address)

	if err := validateName(name); err != nil {
		return models.User{}, err
	}
	if err := validateEmail(email); err != nil {
		return models.User{}, err
	}
	if err := validateAddress(address); err != nil {
		return models.User{}, err
	}
	if err := validatePassword(req.Password); err != nil {
		return models.User{}, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	return models.User{Name: name, Email: email, Address: address, Role: role, PasswordHash: hash}, nil
}

// Login checks credentials and opens a session. Unknown emails and wrong
// passwords fail identically.
func (a *Auth) Login(ctx context.Context, req dto.LoginRequest) (Session, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return Session{}, apperr.Validation("email and password are required")
	}

	user, err := a.store.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, apperr.Authentication("invalid credentials")
		}
		return Session{}, apperr.Internal(err)
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		return Session{}, apperr.Authentication("invalid credentials")
	}

	refresh, err := a.saveRefreshToken(ctx, a.store, user)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	access, _, err := a.tokens.IssueAccessToken(user)
	if err != nil {
		return Session{}, apperr.Internal(err)
	}
	logctx.From(ctx).Info("user_logged_in", slog.Int64("user_id", user.ID))
	return Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// saveRefreshToken issues a refresh token and persists it through repo. The
// token is only returned once the row is written.
func (a *Auth) saveRefreshToken(ctx context.Context, repo storage.RefreshTokenStore, user models.User) (string, error) {
	token, expiresAt, err := a.tokens.IssueRefreshToken(user)
	if err != nil {
		return "", err
	}
	row := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: auth.HashToken(token),
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	if err := repo.SaveRefreshToken(ctx, row); err != nil {
		return "", err
	}
	return token, nil
}

// Refresh exchanges a stored, valid refresh token for a new access token. The
// refresh token itself is not rotated.
func (a *Auth) Refresh(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperr.Authentication("refresh token required")
	}

	row, err := a.store.RefreshTokenByHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.Wrap(apperr.KindAuthorization, "refresh token not found", ErrRefreshTokenNotFound)
		}
		return "", apperr.Internal(err)
	}

	claims, err := a.tokens.ParseRefreshToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return "", apperr.Wrap(apperr.KindAuthorization, "refresh token expired", err)
		}
		return "", apperr.Wrap(apperr.KindAuthorization, "invalid refresh token", err)
	}
	if claims.UserID != row.UserID {
		return "", apperr.Wrap(apperr.KindAuthorization, "invalid refresh token", auth.ErrTokenInvalid)
	}

	user, err := a.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", apperr.Wrap(apperr.KindAuthorization, "invalid refresh token", auth.ErrTokenInvalid)
		}
		return "", apperr.Internal(err)
	}

	access, _, err := a.tokens.IssueAccessToken(user)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return access, nil
}

// Logout revokes a refresh token. It succeeds whether or not the token exists;
// storage failures are logged rather than returned.
func (a *Auth) Logout(ctx context.Context, token string) {
	token = strings.TrimSpace(token)
	if token == "" {
		return
	}
	if err := a.store.DeleteRefreshToken(ctx, auth.HashToken(token)); err != nil {
		logctx.From(ctx).Error("logout_revoke_failed", slog.Any("err", err))
	}
}

// UpdatePassword changes a password after checking the current one. Callers may
// change their own password; admins may change anyone's.
func (a *Auth) UpdatePassword(ctx context.Context, caller models.Identity, req dto.UpdatePasswordRequest) error {
	if req.UserID == 0 || req.CurrentPassword == "" || req.NewPassword == "" {
		return apperr.Validation("userId, currentPassword and newPassword are required")
	}
	if !caller.CanActFor(req.UserID) {
		return apperr.Authorization("access denied")
	}

	user, err := a.store.UserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		return apperr.Validation("current password is incorrect")
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := a.store.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return apperr.Internal(err)
	}
	logctx.From(ctx).Info("password_updated", slog.Int64("user_id", user.ID), slog.Int64("by", caller.UserID))
	return nil
}

// PurgeExpiredRefreshTokens drops refresh token rows past their expiry.
func (a *Auth) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return a.store.DeleteExpiredRefreshTokens(ctx)
}
