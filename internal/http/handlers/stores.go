package handlers

import (
	"net/http"
	"strconv"

	"github.com/hongminglow/store-rating-be/internal/apperr"
	"github.com/hongminglow/store-rating-be/internal/http/respond"
	"github.com/hongminglow/store-rating-be/internal/middleware"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/service"
)

// StoreHandler serves the store listing and catalog writes.
type StoreHandler struct {
	ratings *service.Ratings
}

func NewStoreHandler(ratings *service.Ratings) *StoreHandler {
	return &StoreHandler{ratings: ratings}
}

// List answers GET /stores?sortBy&order&userId&search. userId defaults to the
// caller and may name someone else only for admins.
func (h *StoreHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.IdentityFrom(r.Context())
	query := r.URL.Query()

	requester := caller.UserID
	if raw := query.Get("userId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			respond.Error(w, http.StatusBadRequest, "invalid userId")
			return
		}
		if !caller.CanActFor(id) {
			respond.Fail(w, r, apperr.Authorization("access denied"))
			return
		}
		requester = id
	}

	stores, err := h.ratings.AggregateStores(r.Context(), models.AggregateQuery{
		RequesterID: requester,
		Search:      query.Get("search"),
		SortField:   query.Get("sortBy"),
		SortOrder:   query.Get("order"),
	})
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "stores fetched", stores)
}

func (h *StoreHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.StoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	store, err := h.ratings.CreateStore(r.Context(), caller, req)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "store created", store)
}

func (h *StoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req dto.StoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	store, err := h.ratings.UpdateStore(r.Context(), caller, id, req)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "store updated", store)
}
