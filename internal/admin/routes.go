package admin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitlink/fitlink-backend/internal/accounts"
	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/middleware"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

type Deps struct {
	Profiles  ProfileStore
	Contracts ContractStore
	SignUp    accounts.SignUpper
	Guard     guard.Config
	Logger    *slog.Logger
}

// SetupRoutes serves the admin tree; every route requires the admin role.
func SetupRoutes(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{profiles: d.Profiles, contracts: d.Contracts, signer: d.SignUp, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequireRoles(d.Guard, roles.Admin))

	r.Get("/", h.Dashboard)
	r.Post("/trainers", h.CreateTrainer)

	return r
}
