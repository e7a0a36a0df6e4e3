package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/roles"
	"github.com/fitlink/fitlink-backend/internal/utils"
)

// RequireRoles mounts an authorization guard for each request and serves
// next only when the guard decides to render. With no roles any
// authenticated caller is admitted.
func RequireRoles(cfg guard.Config, rs ...roles.Role) func(http.Handler) http.Handler {
	allowed := roles.NewSet(rs...)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthSession(r.Context())

			path := r.URL.RequestURI()
			g := guard.New(auth, allowed, path, cfg)
			g.Mount(r.Context())
			defer g.Unmount()

			st, err := g.Wait(r.Context())
			if err != nil {
				// Client went away.
				return
			}

			serveDecision(w, r, next, st, allowed, path, logger)
		})
	}
}

// serveDecision renders or redirects for one settled snapshot, so the
// principal handed to next always matches the decision.
func serveDecision(w http.ResponseWriter, r *http.Request, next http.Handler, st guard.State, allowed roles.Set, path string, logger *slog.Logger) {
	d := guard.Decide(st, allowed, path)
	switch d.Kind {
	case guard.Render:
		ctx := utils.WithPrincipal(r.Context(), st.UserID, roles.Normalize(string(st.Role)))
		next.ServeHTTP(w, r.WithContext(ctx))
	case guard.Redirect:
		if d.Cause != nil {
			logger.Info("guard redirect", "path", r.URL.Path, "to", d.Path, "cause", d.Cause.Error())
		}
		WriteRedirect(w, r, d)
	default:
		http.Error(w, "Authorization pending", http.StatusServiceUnavailable)
	}
}

// AuthSession returns the request's bound auth session, or an anonymous one.
func AuthSession(ctx context.Context) identity.AuthSession {
	if auth, ok := utils.GetAuthSessionFromContext(ctx); ok {
		return auth
	}
	return anonymous{}
}

// RedirectTarget turns a redirect decision into a URL. Login redirects carry
// the origin as ?next=.
func RedirectTarget(d guard.Decision) string {
	if d.Path == roles.LoginRoute && d.Origin != "" {
		return d.Path + "?next=" + url.QueryEscape(d.Origin)
	}
	return d.Path
}

type redirectResponse struct {
	Error    string `json:"error"`
	Redirect string `json:"redirect"`
}

// WriteRedirect answers browsers with a 303 and API clients with a JSON
// envelope: 401 for login redirects, 403 otherwise.
func WriteRedirect(w http.ResponseWriter, r *http.Request, d guard.Decision) {
	target := RedirectTarget(d)
	if !WantsJSON(r) {
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	status := http.StatusForbidden
	msg := "Forbidden"
	if d.Path == roles.LoginRoute {
		status = http.StatusUnauthorized
		msg = "Unauthorized"
	}
	if d.Cause != nil && !errors.Is(d.Cause, guard.ErrNoSession) {
		msg += ": " + d.Cause.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", target)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(redirectResponse{Error: msg, Redirect: target})
}

// WantsJSON reports whether the caller is an API client rather than a
// browser navigation.
func WantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") != "" {
		return true
	}
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "text/html") {
		return false
	}
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "text/event-stream") || accept == ""
}

type anonymous struct{}

func (anonymous) CurrentSession(context.Context) (*identity.Session, error) { return nil, nil }
func (anonymous) CurrentUser(context.Context) (*identity.User, error) {
	return nil, identity.ErrNoSession
}
func (anonymous) Subscribe(func(identity.Event)) identity.Subscription { return noop{} }
func (anonymous) UpdateUserMetadata(context.Context, identity.Metadata) error {
	return identity.ErrNoSession
}

type noop struct{}

func (noop) Unsubscribe() {}
