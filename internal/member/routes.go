package member

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/middleware"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

type Deps struct {
	Schedules ScheduleStore
	Guard     guard.Config
	Logger    *slog.Logger
}

func SetupRoutes(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{schedules: d.Schedules, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequireRoles(d.Guard, roles.Member))

	r.Get("/my-schedule", h.MySchedule)

	return r
}
