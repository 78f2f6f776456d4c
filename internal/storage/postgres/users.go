package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/storage"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, name, email, address, role, password_hash, created_at`

// CreateUser inserts a new user row.
func (r *repo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	const op = "storage.postgres.CreateUser"

	query := `
		INSERT INTO users (name, email, address, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	row := r.q.QueryRow(ctx, query, user.Name, user.Email, user.Address, user.Role, user.PasswordHash)
	created, err := scanUser(row)
	if err != nil {
		return models.User{}, classify(op, err)
	}
	return created, nil
}

// UserByEmail fetches a user by email address.
func (r *repo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "storage.postgres.UserByEmail"

	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, classify(op, err)
	}
	return user, nil
}

// UserByID fetches a user by id.
func (r *repo) UserByID(ctx context.Context, id int64) (models.User, error) {
	const op = "storage.postgres.UserByID"

	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return models.User{}, classify(op, err)
	}
	return user, nil
}

// UpdatePasswordHash replaces the stored password hash for a user.
func (r *repo) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	const op = "storage.postgres.UpdatePasswordHash"

	tag, err := r.q.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return nil
}

// ListUsers returns users matching the optional search, ordered as requested.
func (r *repo) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error) {
	const op = "storage.postgres.ListUsers"

	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + userColumns + ` FROM users`)
	if q.Search != "" {
		args = append(args, likePattern(q.Search))
		sb.WriteString(` WHERE name ILIKE $1 OR email ILIKE $1 OR address ILIKE $1 OR role ILIKE $1`)
	}

	column := "name"
	switch q.SortField {
	case "email", "role":
		column = q.SortField
	}
	fmt.Fprintf(&sb, ` ORDER BY %s %s, id`, column, direction(q.SortOrder))

	rows, err := r.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classify(op, err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return users, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Address, &user.Role, &user.PasswordHash, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	return user, nil
}
