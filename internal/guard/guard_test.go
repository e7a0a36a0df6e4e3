package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/identity/identitytest"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

type harness struct {
	auth     *identitytest.Provider
	profiles *fakeProfiles
	resolver *Resolver
}

func newHarness() *harness {
	profiles := newFakeProfiles()
	return &harness{
		auth:     identitytest.New(),
		profiles: profiles,
		resolver: NewResolver(profiles, quietLogger()),
	}
}

func (h *harness) mount(t *testing.T, token string, allowed roles.Set, path string, timeout time.Duration) *Guard {
	t.Helper()
	g := New(h.auth.Bind(token), allowed, path, Config{Resolver: h.resolver, Timeout: timeout, Logger: quietLogger()})
	g.Mount(context.Background())
	t.Cleanup(g.Unmount)
	return g
}

func settle(t *testing.T, g *Guard) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := g.Wait(ctx)
	require.NoError(t, err, "guard never settled")
	return st
}

func TestTrainerWithoutCachedRoleRendersAndCachesRole(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("coach@fitlink.test", "pw", nil)
	h.profiles.set(uid, roles.Trainer)
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Trainer), "/trainer/members", time.Second)
	st := settle(t, g)

	assert.Equal(t, Authenticated, st.Phase)
	assert.Equal(t, roles.Trainer, st.Role)
	assert.Equal(t, Render, g.Decision().Kind)
	assert.Equal(t, 1, h.profiles.Calls())

	require.Eventually(t, func() bool {
		return len(h.auth.MetadataUpdates()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "trainer", h.auth.MetadataUpdates()[0][identity.MetadataRoleKey])
}

func TestMemberOnTrainerTreeGoesToOwnLanding(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Trainer), "/trainer/members", time.Second)
	settle(t, g)

	d := g.Decision()
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, "/member/my-schedule", d.Path)
	assert.Zero(t, h.profiles.Calls())
}

func TestNoSessionRedirectsToLoginWithOrigin(t *testing.T) {
	h := newHarness()

	g := h.mount(t, "", roles.NewSet(roles.Admin), "/admin", time.Second)
	st := settle(t, g)

	assert.Equal(t, Unauthenticated, st.Phase)
	d := g.Decision()
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, roles.LoginRoute, d.Path)
	assert.Equal(t, "/admin", d.Origin)
	assert.ErrorIs(t, d.Cause, ErrNoSession)
}

func TestExpiredTokenIsNoSession(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, -time.Minute)

	g := h.mount(t, tok, roles.NewSet(roles.Member), "/member/my-schedule", time.Second)
	st := settle(t, g)

	assert.Equal(t, Unauthenticated, st.Phase)
	assert.ErrorIs(t, st.Err, ErrNoSession)
	assert.ErrorIs(t, st.Err, identity.ErrSessionExpired)
}

func TestTimeoutWithKnownUserFailsClosed(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("t@fitlink.test", "pw", nil)
	h.profiles.set(uid, roles.Trainer)
	h.profiles.hold = make(chan struct{})
	defer close(h.profiles.hold)
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Trainer), "/trainer/members", 50*time.Millisecond)
	st := settle(t, g)

	assert.Equal(t, Authenticated, st.Phase)
	assert.Equal(t, uid, st.UserID)
	assert.Equal(t, roles.Unresolved, st.Role)
	assert.ErrorIs(t, st.Err, ErrResolutionTimeout)

	d := g.Decision()
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, roles.LoginRoute, d.Path)
}

func TestTimeoutWithNothingKnownIsUnauthenticated(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("t@fitlink.test", "pw", nil)
	h.auth.Hold = make(chan struct{})
	defer close(h.auth.Hold)
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(), "/auth/me", 50*time.Millisecond)
	st := settle(t, g)

	assert.Equal(t, Unauthenticated, st.Phase)
	assert.ErrorIs(t, st.Err, ErrResolutionTimeout)
}

func TestLateResultAfterTimeoutIsStillApplied(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("t@fitlink.test", "pw", nil)
	h.profiles.set(uid, roles.Trainer)
	h.profiles.hold = make(chan struct{})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Trainer), "/trainer/members", 50*time.Millisecond)
	st := settle(t, g)
	require.Equal(t, roles.Unresolved, st.Role)

	close(h.profiles.hold)
	require.Eventually(t, func() bool {
		return g.State().Role == roles.Trainer
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, Render, g.Decision().Kind)
}

func TestProfileLookupFailure(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("t@fitlink.test", "pw", nil)
	h.profiles.err = errors.New("connection refused")
	tok := h.auth.IssueToken(uid, time.Hour)

	t.Run("restricted tree redirects to login", func(t *testing.T) {
		g := h.mount(t, tok, roles.NewSet(roles.Trainer), "/trainer/members", time.Second)
		st := settle(t, g)

		assert.Equal(t, Authenticated, st.Phase)
		assert.Equal(t, roles.Unresolved, st.Role)
		assert.ErrorIs(t, st.Err, ErrProfileLookupFailed)

		d := g.Decision()
		assert.Equal(t, Redirect, d.Kind)
		assert.Equal(t, roles.LoginRoute, d.Path)
		assert.ErrorIs(t, d.Cause, ErrProfileLookupFailed)
	})

	t.Run("unrestricted tree renders", func(t *testing.T) {
		g := h.mount(t, tok, roles.NewSet(), "/auth/me", time.Second)
		settle(t, g)
		assert.Equal(t, Render, g.Decision().Kind)
	})

	assert.Empty(t, h.auth.MetadataUpdates())
}

func TestMetadataWriteFailureDoesNotChangeDecision(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("a@fitlink.test", "pw", nil)
	h.profiles.set(uid, roles.Admin)
	h.auth.UpdateErr = errors.New("rate limited")
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Admin), "/admin", time.Second)
	settle(t, g)
	h.resolver.Drain()

	assert.Equal(t, Render, g.Decision().Kind)
	assert.NoError(t, g.State().Err)
	assert.Len(t, h.auth.MetadataUpdates(), 1)
}

func TestUnmountDuringResolutionCommitsNothing(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("t@fitlink.test", "pw", nil)
	h.profiles.set(uid, roles.Trainer)
	h.profiles.hold = make(chan struct{})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := New(h.auth.Bind(tok), roles.NewSet(roles.Trainer), "/trainer/members",
		Config{Resolver: h.resolver, Timeout: 50 * time.Millisecond, Logger: quietLogger()})
	g.Mount(context.Background())
	require.Equal(t, 1, h.auth.Broker.Subscribers(uid))

	require.Eventually(t, func() bool { return h.profiles.Calls() == 1 }, time.Second, 5*time.Millisecond)
	g.Unmount()
	close(h.profiles.hold)

	// Past both the pending lookup and the timeout.
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, Loading, g.State().Phase)
	assert.Equal(t, Placeholder, g.Decision().Kind)
	assert.Zero(t, h.auth.Broker.Subscribers(uid))
	select {
	case <-g.Settled():
		t.Fatal("guard settled after unmount")
	default:
	}

	h.auth.Broker.Publish(identity.Event{Kind: identity.SignedOut, UserID: uid})
	assert.Equal(t, Loading, g.State().Phase)
	g.Unmount()
}

func TestSignedOutEventUnauthenticatesImmediately(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Member), "/member/my-schedule", time.Second)
	settle(t, g)
	require.Equal(t, Render, g.Decision().Kind)

	h.auth.Broker.Publish(identity.Event{Kind: identity.SignedOut, UserID: uid})

	st := g.State()
	assert.Equal(t, Unauthenticated, st.Phase)
	d := g.Decision()
	assert.Equal(t, Redirect, d.Kind)
	assert.Equal(t, roles.LoginRoute, d.Path)
	assert.Equal(t, "/member/my-schedule", d.Origin)
}

func TestTokenRefreshedEventReResolves(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(roles.Admin), "/admin", time.Second)
	settle(t, g)
	require.Equal(t, "/member/my-schedule", g.Decision().Path)

	sess := &identity.Session{
		AccessToken: "at-new",
		User:        identity.User{ID: uid, Metadata: identity.Metadata{"role": "admin"}},
	}
	h.auth.Broker.Publish(identity.Event{Kind: identity.TokenRefreshed, UserID: uid, Session: sess})

	require.Eventually(t, func() bool {
		return g.State().Role == roles.Admin
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Render, g.Decision().Kind)
}

func TestEventWithoutSessionUnauthenticates(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(), "/auth/me", time.Second)
	settle(t, g)

	h.auth.Broker.Publish(identity.Event{Kind: identity.SessionRestored, UserID: uid})
	assert.Equal(t, Unauthenticated, g.State().Phase)
}

func TestChangesSignalsStateTransitions(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(), "/auth/me", time.Second)
	select {
	case <-g.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change notification")
	}
	assert.Equal(t, Authenticated, g.State().Phase)
}

func TestMountTwiceIsNoop(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("m@fitlink.test", "pw", identity.Metadata{"role": "member"})
	tok := h.auth.IssueToken(uid, time.Hour)

	g := h.mount(t, tok, roles.NewSet(), "/auth/me", time.Second)
	g.Mount(context.Background())
	settle(t, g)

	assert.Equal(t, 1, h.auth.Broker.Subscribers(uid))
	assert.Equal(t, 1, h.auth.UserCalls())
}

func TestParentContextCancelDoesNotCommitPartial(t *testing.T) {
	h := newHarness()
	uid := h.auth.AddUser("t@fitlink.test", "pw", nil)
	h.auth.Hold = make(chan struct{})
	defer close(h.auth.Hold)
	tok := h.auth.IssueToken(uid, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	g := New(h.auth.Bind(tok), roles.NewSet(), "/auth/me", Config{Resolver: h.resolver, Timeout: time.Second, Logger: quietLogger()})
	g.Mount(ctx)
	t.Cleanup(g.Unmount)
	cancel()

	st := settle(t, g)
	assert.Equal(t, Unauthenticated, st.Phase)
	assert.ErrorIs(t, st.Err, context.Canceled)
}
