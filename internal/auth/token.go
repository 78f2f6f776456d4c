package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/hongminglow/store-rating-be/internal/models"
)

// Token types carried in the typ claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrTokenExpired is returned when a token is well-formed but past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid covers bad signatures, wrong issuer or type, and malformed tokens.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the payload of both access and refresh tokens.
type Claims struct {
	UserID int64  `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the authenticated principal described by the claims.
func (c *Claims) Identity() models.Identity {
	return models.Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}
}

// TokenManager issues and verifies signed JWTs for authenticated users.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenManager creates a manager with the provided secrets, issuer, and lifetimes.
func NewTokenManager(accessSecret, refreshSecret, issuer string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

// AccessTTL reports the lifetime of access tokens.
func (t *TokenManager) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL reports the lifetime of refresh tokens.
func (t *TokenManager) RefreshTTL() time.Duration { return t.refreshTTL }

// IssueAccessToken signs a short-lived access token for user.
func (t *TokenManager) IssueAccessToken(user models.User) (string, time.Time, error) {
	return t.issue(user, TypeAccess, t.accessSecret, t.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for user. The caller
// persists it before handing it out.
func (t *TokenManager) IssueRefreshToken(user models.User) (string, time.Time, error) {
	return t.issue(user, TypeRefresh, t.refreshSecret, t.refreshTTL)
}

// ParseAccessToken verifies an access token and returns its claims.
func (t *TokenManager) ParseAccessToken(token string) (*Claims, error) {
	return t.parse(token, TypeAccess, t.accessSecret)
}

// ParseRefreshToken verifies a refresh token and returns its claims.
func (t *TokenManager) ParseRefreshToken(token string) (*Claims, error) {
	return t.parse(token, TypeRefresh, t.refreshSecret)
}

func (t *TokenManager) issue(user models.User, typ string, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := t.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Type:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, expiresAt, nil
}

func (t *TokenManager) parse(token, typ string, secret []byte) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Type != typ || claims.UserID == 0 {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// HashToken returns the digest under which a refresh token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
