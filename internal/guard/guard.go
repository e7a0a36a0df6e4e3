package guard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

// DefaultTimeout bounds how long a guard may stay in Loading.
const DefaultTimeout = 10 * time.Second

// Config holds what every guard shares.
type Config struct {
	Resolver *Resolver
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Guard is the authorization state of one protected view between Mount and
// Unmount. It resolves the caller's session and role, follows auth events,
// and exposes the resulting render decision.
//
// State is committed only while the guard is mounted and only by the latest
// resolution pass; results of superseded passes are dropped.
type Guard struct {
	auth     identity.AuthSession
	allowed  roles.Set
	path     string
	resolver *Resolver
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	partial string // user id known to the current pass, role pending
	pass    uint64
	mounted bool
	active  bool
	ctx     context.Context
	cancel  context.CancelFunc
	timer   *time.Timer
	sub     identity.Subscription

	settled     chan struct{}
	settledDone bool
	changes     chan struct{}
}

// New creates an unmounted guard for the view at path admitting allowed.
func New(auth identity.AuthSession, allowed roles.Set, path string, cfg Config) *Guard {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	resolver := cfg.Resolver
	if resolver == nil {
		panic("guard: Config.Resolver is required")
	}
	return &Guard{
		auth:     auth,
		allowed:  allowed,
		path:     path,
		resolver: resolver,
		timeout:  timeout,
		logger:   logger.With("component", "guard", "path", path),
		state:    State{Phase: Loading},
		settled:  make(chan struct{}),
		changes:  make(chan struct{}, 1),
	}
}

// Mount subscribes to auth events, arms the timeout and starts the first
// resolution pass. Calling Mount more than once has no effect.
func (g *Guard) Mount(ctx context.Context) {
	g.mu.Lock()
	if g.mounted {
		g.mu.Unlock()
		return
	}
	g.mounted, g.active = true, true
	g.ctx, g.cancel = context.WithCancel(ctx)
	pass := g.nextPassLocked()
	g.timer = time.AfterFunc(g.timeout, g.expire)
	g.mu.Unlock()

	sub := g.auth.Subscribe(g.onEvent)

	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		sub.Unsubscribe()
		return
	}
	g.sub = sub
	g.mu.Unlock()

	go g.resolve(pass, nil)
}

// Unmount releases the subscription and the timer and drops any result
// still in flight. It is safe to call more than once.
func (g *Guard) Unmount() {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return
	}
	g.active = false
	timer, sub, cancel := g.timer, g.sub, g.cancel
	g.timer, g.sub = nil, nil
	g.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
}

// State returns a snapshot of the current state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Decision returns the render decision for the current state.
func (g *Guard) Decision() Decision {
	return Decide(g.State(), g.allowed, g.path)
}

// Settled is closed the first time the phase leaves Loading.
func (g *Guard) Settled() <-chan struct{} { return g.settled }

// Changes receives a value whenever the state changes. Bursts coalesce.
func (g *Guard) Changes() <-chan struct{} { return g.changes }

// Wait blocks until the guard settles or ctx ends.
func (g *Guard) Wait(ctx context.Context) (State, error) {
	select {
	case <-g.settled:
		return g.State(), nil
	case <-ctx.Done():
		return g.State(), ctx.Err()
	}
}

func (g *Guard) resolve(pass uint64, restored *identity.Session) {
	ctx := g.passContext()

	var user *identity.User
	if restored != nil {
		u := restored.User
		user = &u
	} else {
		sess, err := g.auth.CurrentSession(ctx)
		if err != nil || sess == nil {
			g.commit(pass, State{Phase: Unauthenticated, Err: noSession(err)})
			return
		}
		user, err = g.auth.CurrentUser(ctx)
		if err != nil || user == nil {
			g.commit(pass, State{Phase: Unauthenticated, Err: noSession(err)})
			return
		}
	}

	if !g.notePartial(pass, user.ID) {
		return
	}

	role, err := g.resolver.Resolve(ctx, g.auth, user)
	g.commit(pass, State{Phase: Authenticated, UserID: user.ID, Role: role, Err: err})
}

func (g *Guard) onEvent(ev identity.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active {
		return
	}
	g.logger.Debug("auth state change", "event", string(ev.Kind))

	if ev.Kind == identity.SignedOut || ev.Session == nil || ev.Session.User.ID == "" {
		g.pass++
		g.partial = ""
		g.setLocked(State{Phase: Unauthenticated, Err: ErrNoSession})
		return
	}

	switch ev.Kind {
	case identity.SignedIn, identity.SessionRestored, identity.TokenRefreshed:
	default:
		return
	}

	pass := g.nextPassLocked()
	g.partial = ev.Session.User.ID
	g.setLocked(State{Phase: Loading, UserID: ev.Session.User.ID})
	if g.timer != nil {
		g.timer.Reset(g.timeout)
	}

	sess := *ev.Session
	go g.resolve(pass, &sess)
}

// expire forces the phase out of Loading with whatever the current pass
// has learned so far.
func (g *Guard) expire() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || g.state.Phase != Loading {
		return
	}
	g.logger.Warn("authorization check timeout", "timeout", g.timeout.String())

	if g.partial != "" {
		g.setLocked(State{Phase: Authenticated, UserID: g.partial, Role: roles.Unresolved, Err: ErrResolutionTimeout})
		return
	}
	g.setLocked(State{Phase: Unauthenticated, Err: ErrResolutionTimeout})
}

func (g *Guard) commit(pass uint64, st State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || pass != g.pass {
		g.logger.Debug("dropping stale resolution", "pass", pass, "current", g.pass, "active", g.active)
		return false
	}
	if st.Phase == Authenticated {
		g.partial = st.UserID
	} else {
		g.partial = ""
	}
	g.setLocked(st)
	return true
}

func (g *Guard) notePartial(pass uint64, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || pass != g.pass {
		return false
	}
	g.partial = userID
	return true
}

func (g *Guard) passContext() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

func (g *Guard) nextPassLocked() uint64 {
	g.pass++
	return g.pass
}

func (g *Guard) setLocked(st State) {
	g.state = st
	if st.Settled() && !g.settledDone {
		g.settledDone = true
		close(g.settled)
	}
	select {
	case g.changes <- struct{}{}:
	default:
	}
}

func noSession(err error) error {
	if err == nil || errors.Is(err, identity.ErrNoSession) {
		return ErrNoSession
	}
	return errors.Join(ErrNoSession, err)
}
