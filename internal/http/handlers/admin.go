package handlers

import (
	"net/http"

	"github.com/hongminglow/store-rating-be/internal/http/respond"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/service"
)

// AdminHandler serves the user listing and dashboard counters.
type AdminHandler struct {
	admin *service.Admin
}

func NewAdminHandler(admin *service.Admin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// Users answers GET /users?sortBy&order&search.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	users, err := h.admin.ListUsers(r.Context(), models.UserQuery{
		Search:    query.Get("search"),
		SortField: query.Get("sortBy"),
		SortOrder: query.Get("order"),
	})
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "users fetched", users)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "stats fetched", stats)
}
