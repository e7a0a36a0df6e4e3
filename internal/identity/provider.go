package identity

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Subscription is a handle on an auth event registration.
type Subscription interface {
	Unsubscribe()
}

// AuthSession is the auth state of one caller, bound to the access token it
// presented. A session bound to an empty token has no current session.
type AuthSession interface {
	// CurrentSession returns nil, nil when the caller is anonymous.
	CurrentSession(ctx context.Context) (*Session, error)

	// CurrentUser asks the provider for the user behind the token. It
	// returns ErrNoSession when there is none.
	CurrentUser(ctx context.Context) (*User, error)

	// Subscribe delivers auth events for the bound user until unsubscribed.
	Subscribe(handler func(Event)) Subscription

	// UpdateUserMetadata merges patch into the user's metadata.
	UpdateUserMetadata(ctx context.Context, patch Metadata) error
}

// Provider is an authentication backend.
type Provider interface {
	// Name returns the provider name for logging purposes.
	Name() string

	Bind(accessToken string) AuthSession
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata Metadata) (*User, error)
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
	// SignOut ends every session of the user behind accessToken, matching
	// the user-wide signed-out event.
	SignOut(ctx context.Context, accessToken string) error
}

// Options carries what every provider constructor needs.
type Options struct {
	Broker *Broker

	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string

	LocalJWTSecret string
}

var providerRegistry = make(map[string]func(Options) (Provider, error))

// RegisterProvider registers a provider constructor under name. Provider
// packages call it from init().
func RegisterProvider(name string, constructor func(Options) (Provider, error)) {
	providerRegistry[strings.ToLower(name)] = constructor
}

// NewProvider builds the provider registered under name.
func NewProvider(name string, opts Options) (Provider, error) {
	constructor, ok := providerRegistry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownProvider, name, strings.Join(Registered(), ", "))
	}
	if opts.Broker == nil {
		opts.Broker = NewBroker()
	}
	return constructor(opts)
}

// Registered lists registered provider names.
func Registered() []string {
	names := make([]string, 0, len(providerRegistry))
	for name := range providerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
