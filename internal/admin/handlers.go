package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/fitlink/fitlink-backend/internal/accounts"
	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/profiles"
	"github.com/fitlink/fitlink-backend/internal/roles"
	"github.com/fitlink/fitlink-backend/internal/training"
)

type ProfileStore interface {
	ListByRole(ctx context.Context, role roles.Role) ([]profiles.Profile, error)
	Create(ctx context.Context, p *profiles.Profile) error
}

type ContractStore interface {
	AllContracts(ctx context.Context) ([]training.Contract, error)
}

type handler struct {
	profiles  ProfileStore
	contracts ContractStore
	signer    accounts.SignUpper
	logger    *slog.Logger
}

// DashboardResponse is the admin landing payload.
type DashboardResponse struct {
	Trainers []profiles.Profile `json:"trainers"`
	Stats    []TrainerStats     `json:"stats"`
	Totals   Totals             `json:"totals"`
}

func (h *handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	var (
		trainers  []profiles.Profile
		contracts []training.Contract
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		trainers, err = h.profiles.ListByRole(ctx, roles.Trainer)
		return err
	})
	g.Go(func() error {
		var err error
		contracts, err = h.contracts.AllContracts(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("dashboard load failed", "error", err)
		http.Error(w, "Failed to load dashboard", http.StatusInternalServerError)
		return
	}
	if trainers == nil {
		trainers = []profiles.Profile{}
	}

	stats, totals := Aggregate(trainers, contracts)
	writeJSON(w, http.StatusOK, DashboardResponse{Trainers: trainers, Stats: stats, Totals: totals})
}

func (h *handler) CreateTrainer(w http.ResponseWriter, r *http.Request) {
	var req accounts.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	req.Role = roles.Trainer

	p, err := accounts.Provision(r.Context(), h.signer, h.profiles, req)
	switch {
	case err == nil:
		h.logger.Info("trainer provisioned", "trainer_id", p.ID)
		writeJSON(w, http.StatusCreated, p)
	case accounts.IsClientError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, identity.ErrUserExists):
		http.Error(w, "An account with this email already exists", http.StatusConflict)
	default:
		h.logger.Error("trainer provisioning failed", "error", err)
		http.Error(w, "Failed to create trainer", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
