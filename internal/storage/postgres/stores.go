package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/jackc/pgx/v5"
)

const storeColumns = `id, name, address, email, owner_id, latitude, longitude, created_at`

// CreateStore inserts a store row.
func (r *repo) CreateStore(ctx context.Context, store models.Store) (models.Store, error) {
	const op = "storage.postgres.CreateStore"

	query := `
		INSERT INTO stores (name, address, email, owner_id, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + storeColumns

	row := r.q.QueryRow(ctx, query, store.Name, store.Address, store.Email, store.OwnerID, store.Latitude, store.Longitude)
	created, err := scanStore(row)
	if err != nil {
		return models.Store{}, classify(op, err)
	}
	return created, nil
}

// UpdateStore overwrites the mutable fields of a store.
func (r *repo) UpdateStore(ctx context.Context, store models.Store) (models.Store, error) {
	const op = "storage.postgres.UpdateStore"

	query := `
		UPDATE stores
		SET name = $2, address = $3, email = $4, owner_id = $5, latitude = $6, longitude = $7
		WHERE id = $1
		RETURNING ` + storeColumns

	row := r.q.QueryRow(ctx, query, store.ID, store.Name, store.Address, store.Email, store.OwnerID, store.Latitude, store.Longitude)
	updated, err := scanStore(row)
	if err != nil {
		return models.Store{}, classify(op, err)
	}
	return updated, nil
}

// StoreByID fetches a store by id.
func (r *repo) StoreByID(ctx context.Context, id int64) (models.Store, error) {
	const op = "storage.postgres.StoreByID"

	row := r.q.QueryRow(ctx, `SELECT `+storeColumns+` FROM stores WHERE id = $1`, id)
	store, err := scanStore(row)
	if err != nil {
		return models.Store{}, classify(op, err)
	}
	return store, nil
}

// AggregateStores returns each matching store with its rating count, mean and
// the requester's own rating. The mean is returned at full precision.
func (r *repo) AggregateStores(ctx context.Context, q models.AggregateQuery) ([]models.StoreAggregate, error) {
	const op = "storage.postgres.AggregateStores"

	var sb strings.Builder
	args := []any{q.RequesterID}
	sb.WriteString(`
		SELECT
			s.id, s.name, s.address, s.email, s.owner_id, s.latitude, s.longitude,
			COALESCE(AVG(r.rating), 0)::float8 AS average_rating,
			COUNT(r.id) AS total_ratings,
			(SELECT mr.rating FROM ratings mr WHERE mr.store_id = s.id AND mr.user_id = $1) AS my_rating
		FROM stores s
		LEFT JOIN ratings r ON r.store_id = s.id`)
	if q.Search != "" {
		args = append(args, likePattern(q.Search))
		sb.WriteString(`
		WHERE s.name ILIKE $2 OR s.address ILIKE $2 OR s.email ILIKE $2`)
	}

	column := "s.name"
	if q.SortField == models.SortByRating {
		column = "average_rating"
	}
	fmt.Fprintf(&sb, `
		GROUP BY s.id
		ORDER BY %s %s, s.id`, column, direction(q.SortOrder))

	rows, err := r.q.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classify(op, err)
	}
	aggregates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StoreAggregate, error) {
		var a models.StoreAggregate
		err := row.Scan(&a.ID, &a.Name, &a.Address, &a.Email, &a.OwnerID, &a.Latitude, &a.Longitude,
			&a.AverageRating, &a.TotalRatings, &a.MyRating)
		return a, err
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return aggregates, nil
}

func scanStore(row pgx.Row) (models.Store, error) {
	var s models.Store
	if err := row.Scan(&s.ID, &s.Name, &s.Address, &s.Email, &s.OwnerID, &s.Latitude, &s.Longitude, &s.CreatedAt); err != nil {
		return models.Store{}, err
	}
	return s, nil
}
