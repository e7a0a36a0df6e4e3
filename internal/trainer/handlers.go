package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fitlink/fitlink-backend/internal/accounts"
	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/profiles"
	"github.com/fitlink/fitlink-backend/internal/roles"
	"github.com/fitlink/fitlink-backend/internal/training"
	"github.com/fitlink/fitlink-backend/internal/utils"
)

type ProfileStore interface {
	Get(ctx context.Context, id string) (*profiles.Profile, error)
	ListByIDs(ctx context.Context, ids []string, role roles.Role) ([]profiles.Profile, error)
	Create(ctx context.Context, p *profiles.Profile) error
}

type ContractStore interface {
	ActiveMemberIDs(ctx context.Context, trainerID string) ([]string, error)
	ActiveContracts(ctx context.Context, trainerID string) ([]training.Contract, error)
	CreateContract(ctx context.Context, c *training.Contract) error
}

type handler struct {
	profiles  ProfileStore
	contracts ContractStore
	signer    accounts.SignUpper
	logger    *slog.Logger
}

// ListMembers returns the members holding an active contract with the caller.
func (h *handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}

	ids, err := h.contracts.ActiveMemberIDs(r.Context(), trainerID)
	if err != nil {
		h.logger.Error("active members lookup failed", "trainer_id", trainerID, "error", err)
		http.Error(w, "Failed to fetch members", http.StatusInternalServerError)
		return
	}
	members, err := h.profiles.ListByIDs(r.Context(), ids, roles.Member)
	if err != nil {
		h.logger.Error("member profiles lookup failed", "trainer_id", trainerID, "error", err)
		http.Error(w, "Failed to fetch members", http.StatusInternalServerError)
		return
	}
	if members == nil {
		members = []profiles.Profile{}
	}
	writeJSON(w, http.StatusOK, members)
}

type registerResponse struct {
	Member   *profiles.Profile  `json:"member"`
	Contract *training.Contract `json:"contract"`
	Warning  string             `json:"warning,omitempty"`
}

// RegisterMember creates a member account and an empty PT contract between
// the member and the caller. When only the contract fails the member is
// still returned, with a warning naming the route that completes it.
func (h *handler) RegisterMember(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}

	var req accounts.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	req.Role = roles.Member

	member, err := accounts.Provision(r.Context(), h.signer, h.profiles, req)
	switch {
	case err == nil:
	case accounts.IsClientError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, identity.ErrUserExists):
		http.Error(w, "An account with this email already exists", http.StatusConflict)
		return
	default:
		h.logger.Error("member provisioning failed", "trainer_id", trainerID, "error", err)
		http.Error(w, "Failed to create member", http.StatusInternalServerError)
		return
	}

	contract, _, err := h.ensureContract(r.Context(), trainerID, member.ID)
	if err != nil {
		h.logger.Error("contract creation failed", "trainer_id", trainerID, "member_id", member.ID, "error", err)
		writeJSON(w, http.StatusCreated, registerResponse{
			Member:  member,
			Warning: "member created without a contract; retry with POST /trainer/members/" + member.ID + "/contract",
		})
		return
	}

	h.logger.Info("member registered", "trainer_id", trainerID, "member_id", member.ID)
	writeJSON(w, http.StatusCreated, registerResponse{Member: member, Contract: contract})
}

// AttachContract opens an empty PT contract between the caller and an
// existing member. It is idempotent: an active contract is returned as is.
func (h *handler) AttachContract(w http.ResponseWriter, r *http.Request) {
	trainerID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}
	memberID := chi.URLParam(r, "member_id")
	if _, err := uuid.Parse(memberID); err != nil {
		http.Error(w, "Invalid member ID", http.StatusBadRequest)
		return
	}

	member, err := h.profiles.Get(r.Context(), memberID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		http.Error(w, "Member not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("member lookup failed", "member_id", memberID, "error", err)
		http.Error(w, "Failed to fetch member", http.StatusInternalServerError)
		return
	}
	if roles.Normalize(member.Role) != roles.Member {
		http.Error(w, "Profile is not a member", http.StatusBadRequest)
		return
	}

	contract, created, err := h.ensureContract(r.Context(), trainerID, memberID)
	if err != nil {
		h.logger.Error("contract creation failed", "trainer_id", trainerID, "member_id", memberID, "error", err)
		http.Error(w, "Failed to create contract", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, registerResponse{Member: member, Contract: contract})
}

// ensureContract returns the active contract between trainerID and memberID,
// creating an empty one when there is none.
func (h *handler) ensureContract(ctx context.Context, trainerID, memberID string) (*training.Contract, bool, error) {
	active, err := h.contracts.ActiveContracts(ctx, trainerID)
	if err != nil {
		return nil, false, err
	}
	for i := range active {
		if active[i].MemberID == memberID {
			return &active[i], false, nil
		}
	}

	c := &training.Contract{TrainerID: trainerID, MemberID: memberID, IsActive: true}
	if err := h.contracts.CreateContract(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
