package postgres

import (
	"context"

	"github.com/hongminglow/store-rating-be/internal/models"
)

// Stats counts users, stores and ratings.
func (r *repo) Stats(ctx context.Context) (models.Stats, error) {
	const op = "storage.postgres.Stats"

	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM stores),
			(SELECT COUNT(*) FROM ratings)
	`
	var stats models.Stats
	if err := r.q.QueryRow(ctx, query).Scan(&stats.TotalUsers, &stats.TotalStores, &stats.TotalRatings); err != nil {
		return models.Stats{}, classify(op, err)
	}
	return stats, nil
}
