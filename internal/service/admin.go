package service

import (
	"context"
	"strings"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/storage"
)

// Admin serves the dashboard listings.
type Admin struct {
	store storage.Store
}

// NewAdmin wires the admin queries to storage.
func NewAdmin(store storage.Store) *Admin {
	return &Admin{store: store}
}

// ListUsers returns users filtered by a substring over name, email, address
// and role, sorted by name, email or role.
func (a *Admin) ListUsers(ctx context.Context, q models.UserQuery) ([]models.User, error) {
	q.Search = strings.TrimSpace(q.Search)
	switch q.SortField {
	case "name", "email", "role":
	default:
		q.SortField = "name"
	}
	if q.SortOrder != models.OrderDesc {
		q.SortOrder = models.OrderAsc
	}

	users, err := a.store.ListUsers(ctx, q)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if users == nil {
		users = []models.User{}
	}
	return users, nil
}

// Stats returns the user, store and rating totals.
func (a *Admin) Stats(ctx context.Context) (models.Stats, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return models.Stats{}, apperr.Internal(err)
	}
	return stats, nil
}
