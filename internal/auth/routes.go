package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/middleware"
)

// Deps are the collaborators of the session lifecycle endpoints.
type Deps struct {
	Provider     identity.Provider
	Broker       *identity.Broker
	Profiles     guard.ProfileStore
	Guard        guard.Config
	LoginLimiter *middleware.RateLimiter
	CookieSecure bool
	Logger       *slog.Logger
}

// SetupRoutes expects SessionMiddleware to run before it.
func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handler{d}

	r := chi.NewRouter()

	login := r.With()
	if d.LoginLimiter != nil {
		login = r.With(d.LoginLimiter.Middleware)
	}
	login.Post("/login", h.Login)

	r.Post("/logout", h.Logout)
	r.Post("/refresh", h.Refresh)
	r.With(middleware.RequireRoles(d.Guard)).Get("/me", h.Me)
	r.Get("/watch", h.Watch)

	return r
}
