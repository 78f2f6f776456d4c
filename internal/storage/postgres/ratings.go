package postgres

import (
	"context"

	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/jackc/pgx/v5"
)

const ratingColumns = `id, user_id, store_id, rating, comment, created_at, updated_at`

// RatingFor fetches the rating one user gave one store.
func (r *repo) RatingFor(ctx context.Context, userID, storeID int64) (models.Rating, error) {
	const op = "storage.postgres.RatingFor"

	row := r.q.QueryRow(ctx, `SELECT `+ratingColumns+` FROM ratings WHERE user_id = $1 AND store_id = $2`, userID, storeID)
	rating, err := scanRating(row)
	if err != nil {
		return models.Rating{}, classify(op, err)
	}
	return rating, nil
}

// InsertRating creates the first rating for a (user, store) pair. A second
// insert for the same pair fails with storage.ErrAlreadyExists.
func (r *repo) InsertRating(ctx context.Context, rating models.Rating) (models.Rating, error) {
	const op = "storage.postgres.InsertRating"

	query := `
		INSERT INTO ratings (user_id, store_id, rating, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + ratingColumns

	row := r.q.QueryRow(ctx, query, rating.UserID, rating.StoreID, rating.Value, rating.Comment)
	created, err := scanRating(row)
	if err != nil {
		return models.Rating{}, classify(op, err)
	}
	return created, nil
}

// UpdateRating overwrites value, comment and timestamp of an existing rating.
func (r *repo) UpdateRating(ctx context.Context, rating models.Rating) (models.Rating, error) {
	const op = "storage.postgres.UpdateRating"

	query := `
		UPDATE ratings
		SET rating = $3, comment = $4, updated_at = NOW()
		WHERE user_id = $1 AND store_id = $2
		RETURNING ` + ratingColumns

	row := r.q.QueryRow(ctx, query, rating.UserID, rating.StoreID, rating.Value, rating.Comment)
	updated, err := scanRating(row)
	if err != nil {
		return models.Rating{}, classify(op, err)
	}
	return updated, nil
}

// RatingsByUser lists a user's ratings with the rated store, newest first.
func (r *repo) RatingsByUser(ctx context.Context, userID int64) ([]models.UserRating, error) {
	const op = "storage.postgres.RatingsByUser"

	query := `
		SELECT r.id, r.user_id, r.store_id, r.rating, r.comment, r.created_at, r.updated_at,
			s.name, s.address
		FROM ratings r
		JOIN stores s ON s.id = r.store_id
		WHERE r.user_id = $1
		ORDER BY r.updated_at DESC, r.id DESC
	`
	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(op, err)
	}
	ratings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.UserRating, error) {
		var ur models.UserRating
		err := row.Scan(&ur.ID, &ur.UserID, &ur.StoreID, &ur.Value, &ur.Comment, &ur.CreatedAt, &ur.UpdatedAt,
			&ur.StoreName, &ur.StoreAddress)
		return ur, err
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return ratings, nil
}

// RatingsByOwner lists ratings for every store the owner holds, with the
// rater's name and email. Stores without an owner never match.
func (r *repo) RatingsByOwner(ctx context.Context, ownerID int64) ([]models.OwnerRating, error) {
	const op = "storage.postgres.RatingsByOwner"

	query := `
		SELECT r.id, r.user_id, r.store_id, r.rating, r.comment, r.created_at, r.updated_at,
			u.name, u.email, s.name
		FROM ratings r
		JOIN stores s ON s.id = r.store_id
		JOIN users u ON u.id = r.user_id
		WHERE s.owner_id = $1
		ORDER BY r.updated_at DESC, r.id DESC
	`
	rows, err := r.q.Query(ctx, query, ownerID)
	if err != nil {
		return nil, classify(op, err)
	}
	ratings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OwnerRating, error) {
		var owned models.OwnerRating
		err := row.Scan(&owned.ID, &owned.UserID, &owned.StoreID, &owned.Value, &owned.Comment, &owned.CreatedAt, &owned.UpdatedAt,
			&owned.UserName, &owned.UserEmail, &owned.StoreName)
		return owned, err
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return ratings, nil
}

func scanRating(row pgx.Row) (models.Rating, error) {
	var r models.Rating
	if err := row.Scan(&r.ID, &r.UserID, &r.StoreID, &r.Value, &r.Comment, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return models.Rating{}, err
	}
	return r, nil
}
