// Package identitytest provides an in-memory identity.Provider for tests.
package identitytest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

// Provider is an in-memory auth backend. The zero value is not usable; call New.
type Provider struct {
	Broker *identity.Broker

	mu        sync.Mutex
	users     map[string]*identity.User
	passwords map[string]string // email -> password
	tokens    map[string]tokenInfo
	refresh   map[string]string // refresh token -> user id
	updates   []identity.Metadata
	userCalls int

	// CurrentUserErr, when set, is returned by every CurrentUser call.
	CurrentUserErr error
	// UpdateErr, when set, is returned by every UpdateUserMetadata call.
	UpdateErr error
	// Hold, when non-nil, blocks CurrentUser until it is closed or the
	// context ends.
	Hold chan struct{}
}

type tokenInfo struct {
	userID    string
	expiresAt time.Time
}

// New returns an empty provider with its own broker.
func New() *Provider {
	return &Provider{
		Broker:    identity.NewBroker(),
		users:     make(map[string]*identity.User),
		passwords: make(map[string]string),
		tokens:    make(map[string]tokenInfo),
		refresh:   make(map[string]string),
	}
}

func (p *Provider) Name() string { return "memory" }

// AddUser registers a user and returns its id.
func (p *Provider) AddUser(email, password string, md identity.Metadata) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	p.users[id] = &identity.User{ID: id, Email: email, Metadata: md.Clone()}
	p.passwords[email] = password
	return id
}

// IssueToken mints an access token for userID valid for ttl. A non-positive
// ttl yields an already expired token.
func (p *Provider) IssueToken(userID string, ttl time.Duration) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok := "at-" + uuid.NewString()
	p.tokens[tok] = tokenInfo{userID: userID, expiresAt: time.Now().Add(ttl)}
	return tok
}

// IssueRefreshToken mints a refresh token for userID.
func (p *Provider) IssueRefreshToken(userID string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok := "rt-" + uuid.NewString()
	p.refresh[tok] = userID
	return tok
}

// MetadataUpdates returns every patch passed to UpdateUserMetadata.
func (p *Provider) MetadataUpdates() []identity.Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]identity.Metadata, len(p.updates))
	copy(out, p.updates)
	return out
}

// UserCalls returns how many times CurrentUser was called.
func (p *Provider) UserCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userCalls
}

// User returns a copy of the stored user.
func (p *Provider) User(id string) (identity.User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[id]
	if !ok {
		return identity.User{}, false
	}
	cp := *u
	cp.Metadata = u.Metadata.Clone()
	return cp, true
}

func (p *Provider) Bind(accessToken string) identity.AuthSession {
	return &boundSession{p: p, token: accessToken}
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	p.mu.Lock()
	want, ok := p.passwords[email]
	var userID string
	for id, u := range p.users {
		if u.Email == email {
			userID = id
		}
	}
	p.mu.Unlock()

	if !ok || want != password || userID == "" {
		return nil, identity.ErrInvalidCredentials
	}
	return p.newSession(userID), nil
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.User, error) {
	p.mu.Lock()
	_, exists := p.passwords[email]
	p.mu.Unlock()
	if exists {
		return nil, identity.ErrUserExists
	}

	id := p.AddUser(email, password, metadata)
	u, _ := p.User(id)
	return &u, nil
}

func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	p.mu.Lock()
	userID, ok := p.refresh[refreshToken]
	delete(p.refresh, refreshToken)
	p.mu.Unlock()

	if !ok {
		return nil, identity.ErrNoSession
	}
	return p.newSession(userID), nil
}

// SignOut ends every session of the token's user.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	info, ok := p.tokens[accessToken]
	if !ok {
		return identity.ErrNoSession
	}
	for tok, ti := range p.tokens {
		if ti.userID == info.userID {
			delete(p.tokens, tok)
		}
	}
	for tok, userID := range p.refresh {
		if userID == info.userID {
			delete(p.refresh, tok)
		}
	}
	return nil
}

func (p *Provider) newSession(userID string) *identity.Session {
	access := p.IssueToken(userID, time.Hour)
	refresh := p.IssueRefreshToken(userID)
	u, _ := p.User(userID)
	return &identity.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         u,
	}
}

type boundSession struct {
	p     *Provider
	token string
}

func (s *boundSession) lookup() (tokenInfo, *identity.User, bool) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	info, ok := s.p.tokens[s.token]
	if !ok {
		return tokenInfo{}, nil, false
	}
	u, ok := s.p.users[info.userID]
	if !ok {
		return tokenInfo{}, nil, false
	}
	cp := *u
	cp.Metadata = u.Metadata.Clone()
	return info, &cp, true
}

func (s *boundSession) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if s.token == "" {
		return nil, nil
	}
	info, u, ok := s.lookup()
	if !ok {
		return nil, nil
	}
	if !time.Now().Before(info.expiresAt) {
		return nil, identity.ErrSessionExpired
	}
	return &identity.Session{AccessToken: s.token, ExpiresAt: info.expiresAt, User: *u}, nil
}

func (s *boundSession) CurrentUser(ctx context.Context) (*identity.User, error) {
	s.p.mu.Lock()
	s.p.userCalls++
	hold := s.p.Hold
	userErr := s.p.CurrentUserErr
	s.p.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if userErr != nil {
		return nil, userErr
	}

	info, u, ok := s.lookup()
	if !ok || !time.Now().Before(info.expiresAt) {
		return nil, identity.ErrNoSession
	}
	return u, nil
}

func (s *boundSession) Subscribe(handler func(identity.Event)) identity.Subscription {
	info, _, _ := s.lookup()
	return s.p.Broker.Subscribe(info.userID, handler)
}

func (s *boundSession) UpdateUserMetadata(ctx context.Context, patch identity.Metadata) error {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	s.p.updates = append(s.p.updates, patch.Clone())
	if s.p.UpdateErr != nil {
		return s.p.UpdateErr
	}

	info, ok := s.p.tokens[s.token]
	if !ok {
		return identity.ErrNoSession
	}
	u := s.p.users[info.userID]
	if u.Metadata == nil {
		u.Metadata = identity.Metadata{}
	}
	for k, v := range patch {
		u.Metadata[k] = v
	}
	return nil
}
