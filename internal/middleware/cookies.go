package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

const (
	AccessCookie  = "fitlink_access"
	RefreshCookie = "fitlink_refresh"

	refreshCookieMaxAge = 7 * 24 * 60 * 60
)

// AccessToken returns the access token from the session cookie or, failing
// that, from an "Authorization: Bearer" header.
func AccessToken(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// RefreshToken returns the refresh cookie value, or "".
func RefreshToken(r *http.Request) string {
	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}
	return ""
}

// SetSessionCookies writes both session cookies for sess.
func SetSessionCookies(w http.ResponseWriter, sess *identity.Session, secure bool) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 60
	}
	http.SetCookie(w, sessionCookie(AccessCookie, sess.AccessToken, maxAge, secure))
	if sess.RefreshToken != "" {
		http.SetCookie(w, sessionCookie(RefreshCookie, sess.RefreshToken, refreshCookieMaxAge, secure))
	}
}

// ClearSessionCookies expires both session cookies.
func ClearSessionCookies(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, sessionCookie(AccessCookie, "", -1, secure))
	http.SetCookie(w, sessionCookie(RefreshCookie, "", -1, secure))
}

func sessionCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	sameSite := http.SameSiteLaxMode
	if secure {
		// Cross-site frontends need None, which browsers only accept with Secure.
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: sameSite,
	}
}
