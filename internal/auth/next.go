package auth

import (
	"net/url"
	"strings"

	"github.com/fitlink/fitlink-backend/internal/roles"
)

// SafeNext reports whether next is a local path that is safe to redirect
// to after login.
func SafeNext(next string) (string, bool) {
	if next == "" || !strings.HasPrefix(next, "/") {
		return "", false
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "", false
	}
	if strings.ContainsAny(next, "\r\n\t\\") {
		return "", false
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "", false
	}
	if u.Path == roles.LoginRoute {
		return "", false
	}
	return u.RequestURI(), true
}
