package guard

import (
	"github.com/fitlink/fitlink-backend/internal/roles"
)

// Kind is what the guarded view should do.
type Kind int

const (
	Placeholder Kind = iota
	Render
	Redirect
)

func (k Kind) String() string {
	switch k {
	case Placeholder:
		return "placeholder"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the outcome of a render check. Origin is only set on login
// redirects that should come back to the requested page.
type Decision struct {
	Kind   Kind
	Path   string
	Origin string
	Cause  error
}

// Decide maps a guard state to a render decision for a view at path that
// admits allowed. It has no side effects.
func Decide(st State, allowed roles.Set, path string) Decision {
	switch st.Phase {
	case Loading:
		return Decision{Kind: Placeholder}
	case Unauthenticated:
		cause := st.Err
		if cause == nil {
			cause = ErrNoSession
		}
		return Decision{Kind: Redirect, Path: roles.LoginRoute, Origin: path, Cause: cause}
	}

	if allowed.Empty() {
		return Decision{Kind: Render}
	}

	role := roles.Normalize(string(st.Role))
	if role == roles.Unresolved {
		cause := st.Err
		if cause == nil {
			cause = ErrRoleUnresolved
		}
		return Decision{Kind: Redirect, Path: roles.LoginRoute, Cause: cause}
	}
	if allowed.Contains(role) {
		return Decision{Kind: Render}
	}

	if landing, ok := roles.LandingRoute(role); ok {
		return Decision{Kind: Redirect, Path: landing}
	}
	return Decision{Kind: Redirect, Path: roles.LoginRoute, Cause: ErrUnknownRole}
}
