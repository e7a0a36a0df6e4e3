package guard

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/fitlink/fitlink-backend/internal/roles"
)

var errProfileMissing = errors.New("profile not found")

type fakeProfiles struct {
	mu    sync.Mutex
	roles map[string]roles.Role
	err   error
	hold  chan struct{}
	calls int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{roles: make(map[string]roles.Role)}
}

func (f *fakeProfiles) set(userID string, role roles.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[userID] = role
}

func (f *fakeProfiles) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProfiles) ProfileRole(ctx context.Context, userID string) (roles.Role, error) {
	f.mu.Lock()
	f.calls++
	hold, err := f.hold, f.err
	role, ok := f.roles[userID]
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return roles.Unresolved, ctx.Err()
		}
	}
	if err != nil {
		return roles.Unresolved, err
	}
	if !ok {
		return roles.Unresolved, errProfileMissing
	}
	return role, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
