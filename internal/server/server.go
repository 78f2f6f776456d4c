package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hongminglow/store-rating-be/internal/auth"
	"github.com/hongminglow/store-rating-be/internal/config"
	"github.com/hongminglow/store-rating-be/internal/http/handlers"
	"github.com/hongminglow/store-rating-be/internal/http/respond"
	"github.com/hongminglow/store-rating-be/internal/middleware"
	"github.com/hongminglow/store-rating-be/internal/models"
	"github.com/hongminglow/store-rating-be/internal/notify"
	"github.com/hongminglow/store-rating-be/internal/service"
)

const eventsHeartbeat = 25 * time.Second

// Deps are the collaborators the routes are served from.
type Deps struct {
	Auth    *service.Auth
	Ratings *service.Ratings
	Admin   *service.Admin
	Tokens  *auth.TokenManager
	Events  notify.Subscriber
	// DB is pinged by /health when set.
	DB handlers.Pinger
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, deps Deps) *Server {
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return &Server{inner: httpServer}
}

// NewRouter builds the full route tree.
func NewRouter(cfg config.Config, deps Deps) http.Handler {
	health := handlers.NewHealthHandler(time.Now(), deps.DB)
	authH := handlers.NewAuthHandler(deps.Auth)
	stores := handlers.NewStoreHandler(deps.Ratings)
	ratings := handlers.NewRatingHandler(deps.Ratings)
	admin := handlers.NewAdminHandler(deps.Admin)
	events := handlers.NewEventsHandler(deps.Events, eventsHeartbeat)

	authn := middleware.NewAuthenticator(deps.Tokens).Authenticate()
	adminOnly := middleware.RequireRole(models.RoleAdmin)
	adminOrOwner := middleware.RequireAnyRole(models.RoleAdmin, models.RoleStoreOwner)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(deps.Logger),
		middleware.Recover(),
		middleware.CORS(cfg.CORSOrigins),
	)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", health.Health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", health.Health)
		api.With(authn).Get("/events", events.Stream)

		api.Group(func(g chi.Router) {
			g.Use(middleware.Timeout(cfg.Timeout))

			g.Post("/register", authH.Register)
			g.Post("/login", authH.Login)
			g.Post("/refresh-token", authH.Refresh)
			g.Post("/logout", authH.Logout)

			g.Group(func(a chi.Router) {
				a.Use(authn)

				a.Post("/auth/update-password", authH.UpdatePassword)
				a.Get("/stores", stores.List)
				a.Post("/ratings", ratings.Submit)
				a.With(middleware.RequireSelfOrAdmin("userId")).Get("/user-ratings/{userId}", ratings.ByUser)

				a.With(adminOrOwner).Put("/stores/{id}", stores.Update)
				a.With(adminOrOwner).Get("/stats", admin.Stats)
				a.With(adminOrOwner, middleware.RequireSelfOrAdmin("ownerId")).
					Get("/store-owner/{ownerId}/ratings", ratings.ByOwner)

				a.Group(func(ad chi.Router) {
					ad.Use(adminOnly)
					ad.Post("/stores", stores.Create)
					ad.Get("/users", admin.Users)
					ad.Post("/admin/users", authH.CreateUser)
				})
			})
		})
	})

	return r
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
