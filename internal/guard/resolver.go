package guard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

// ProfileStore is the authoritative source of roles.
type ProfileStore interface {
	ProfileRole(ctx context.Context, userID string) (roles.Role, error)
}

const defaultWriteBackTimeout = 5 * time.Second

// Resolver finds a user's role: the metadata cache first, then the profile
// store, caching what the store returned back into the metadata.
type Resolver struct {
	profiles         ProfileStore
	logger           *slog.Logger
	writeBackTimeout time.Duration

	writes sync.WaitGroup
}

// NewResolver builds a Resolver. A nil logger logs to slog.Default().
func NewResolver(profiles ProfileStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		profiles:         profiles,
		logger:           logger,
		writeBackTimeout: defaultWriteBackTimeout,
	}
}

// Resolve returns the role of user. A cached metadata role short-circuits
// the profile store. On lookup failure it returns roles.Unresolved and an
// error wrapping ErrProfileLookupFailed.
func (r *Resolver) Resolve(ctx context.Context, auth identity.AuthSession, user *identity.User) (roles.Role, error) {
	if cached := strings.TrimSpace(user.Metadata.Role()); cached != "" {
		r.logger.DebugContext(ctx, "role from session metadata", "user_id", user.ID, "role", cached)
		return roles.Normalize(cached), nil
	}

	role, err := r.profiles.ProfileRole(ctx, user.ID)
	if err != nil {
		r.logger.WarnContext(ctx, "profile role lookup failed", "user_id", user.ID, "error", err)
		return roles.Unresolved, fmt.Errorf("%w: %w", ErrProfileLookupFailed, err)
	}
	if role == roles.Unresolved {
		return roles.Unresolved, nil
	}

	r.writeBack(ctx, auth, user.ID, role)
	return roles.Normalize(string(role)), nil
}

// writeBack caches role in the session metadata without blocking the caller.
func (r *Resolver) writeBack(ctx context.Context, auth identity.AuthSession, userID string, role roles.Role) {
	r.writes.Add(1)
	go func() {
		defer r.writes.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeBackTimeout)
		defer cancel()

		patch := identity.Metadata{identity.MetadataRoleKey: string(role)}
		if err := auth.UpdateUserMetadata(wctx, patch); err != nil {
			r.logger.Warn("role metadata write-back failed",
				"user_id", userID, "error", fmt.Errorf("%w: %w", ErrMetadataWriteFailed, err))
			return
		}
		r.logger.Debug("role saved to session metadata", "user_id", userID, "role", string(role))
	}()
}

// Drain waits for in-flight metadata write-backs. Used on shutdown.
func (r *Resolver) Drain() {
	r.writes.Wait()
}
