package handlers

import (
	"net/http"

	"github.com/hongminglow/store-rating-be/internal/http/respond"
	"github.com/hongminglow/store-rating-be/internal/middleware"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/service"
)

// RatingHandler serves rating submission and the rating histories.
type RatingHandler struct {
	ratings *service.Ratings
}

func NewRatingHandler(ratings *service.Ratings) *RatingHandler {
	return &RatingHandler{ratings: ratings}
}

func (h *RatingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req dto.RatingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	rating, err := h.ratings.SubmitRating(r.Context(), caller, req)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "rating submitted", rating)
}

// ByUser answers GET /user-ratings/{userId}.
func (h *RatingHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userId")
	if !ok {
		return
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	ratings, err := h.ratings.RatingsByUser(r.Context(), caller, userID)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ratings fetched", ratings)
}

// ByOwner answers GET /store-owner/{ownerId}/ratings.
func (h *RatingHandler) ByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := pathID(w, r, "ownerId")
	if !ok {
		return
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	ratings, err := h.ratings.RatingsByOwner(r.Context(), caller, ownerID)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "ratings fetched", ratings)
}
