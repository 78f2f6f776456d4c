package postgres

import (
	"context"

	"github.com/hongminglow/store-rating-be/internal/models"
)

// SaveRefreshToken stores the hash of a newly issued refresh token.
func (r *repo) SaveRefreshToken(ctx context.Context, token models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.q.Exec(ctx, query, token.UserID, token.TokenHash, token.IssuedAt, token.ExpiresAt); err != nil {
		return classify(op, err)
	}
	return nil
}

// RefreshTokenByHash finds a stored refresh token by its hash.
func (r *repo) RefreshTokenByHash(ctx context.Context, hash string) (models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
		SELECT id, user_id, token_hash, issued_at, expires_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	var token models.RefreshToken
	err := r.q.QueryRow(ctx, query, hash).Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
	)
	if err != nil {
		return models.RefreshToken{}, classify(op, err)
	}
	return token, nil
}

// DeleteRefreshToken removes the token row. Deleting a missing row is not an error.
func (r *repo) DeleteRefreshToken(ctx context.Context, hash string) error {
	const op = "storage.postgres.DeleteRefreshToken"

	if _, err := r.q.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash); err != nil {
		return classify(op, err)
	}
	return nil
}

// DeleteExpiredRefreshTokens purges rows past their expiry and reports how many went.
func (r *repo) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	const op = "storage.postgres.DeleteExpiredRefreshTokens"

	tag, err := r.q.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, classify(op, err)
	}
	return tag.RowsAffected(), nil
}
