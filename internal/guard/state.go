package guard

import "github.com/fitlink/fitlink-backend/internal/roles"

// Phase is where a guard is in its authorization check.
type Phase int

const (
	Loading Phase = iota
	Authenticated
	Unauthenticated
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// State is the guard-local authorization state. When Phase is Authenticated
// UserID is set; Role may still be roles.Unresolved.
type State struct {
	Phase  Phase
	UserID string
	Role   roles.Role

	// Err is the last recovered failure behind this state, if any.
	Err error
}

// Settled reports whether the phase has left Loading.
func (s State) Settled() bool { return s.Phase != Loading }
