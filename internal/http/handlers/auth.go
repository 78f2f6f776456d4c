package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/hongminglow/store-rating-be/internal/http/respond"
	"github.com/hongminglow/store-rating-be/internal/middleware"
	"github.com/hongminglow/store-rating-be/internal/models/dto"
	"github.com/hongminglow/store-rating-be/internal/service"
)

// AuthHandler owns the account and token endpoints.
type AuthHandler struct {
	auth *service.Auth
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(auth *service.Auth) *AuthHandler {
	return &AuthHandler{auth: auth}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.auth.Register(r.Context(), req)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "User created successfully", sessionResponse(s))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.auth.Login(r.Context(), req)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "login successful", sessionResponse(s))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	access, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "token refreshed", dto.RefreshResponse{AccessToken: access})
}

// Logout always answers 200, even for an unreadable body.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req dto.RefreshRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.auth.Logout(r.Context(), req.RefreshToken)
	respond.JSON(w, http.StatusOK, "logged out", nil)
}

func (h *AuthHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	caller, _ := middleware.IdentityFrom(r.Context())
	if err := h.auth.UpdatePassword(r.Context(), caller, req); err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "password updated", nil)
}

// CreateUser is the admin path for adding accounts of any role.
func (h *AuthHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := h.auth.CreateUser(r.Context(), req)
	if err != nil {
		respond.Fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, "User created successfully", user)
}

func sessionResponse(s service.Session) dto.AuthResponse {
	return dto.AuthResponse{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, User: s.User}
}
