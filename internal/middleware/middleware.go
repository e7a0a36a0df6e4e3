package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/utils"
)

// SessionConfig configures SessionMiddleware.
type SessionConfig struct {
	Provider     identity.Provider
	Broker       *identity.Broker
	CookieSecure bool
	Logger       *slog.Logger
}

// SessionMiddleware binds the caller's access token to the request context.
// It never rejects a request; RequireRoles decides what an anonymous caller
// may see. When the access token is missing or expired and a refresh cookie
// is present, the session is restored, the cookies are rewritten and a
// session-restored event is published. The restored session is recorded in
// the request context so handlers do not spend the refresh token again.
func SessionMiddleware(cfg SessionConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := AccessToken(r)
			if refresh := RefreshToken(r); refresh != "" && needsRestore(ctx, cfg.Provider, token) {
				sess, err := cfg.Provider.Refresh(ctx, refresh)
				switch {
				case err == nil:
					SetSessionCookies(w, sess, cfg.CookieSecure)
					token = sess.AccessToken
					ctx = utils.WithRestoredSession(ctx, sess)
					if cfg.Broker != nil {
						cfg.Broker.Publish(identity.Event{Kind: identity.SessionRestored, UserID: sess.User.ID, Session: sess})
					}
					logger.Debug("session restored", "user_id", sess.User.ID)
				case errors.Is(err, identity.ErrNoSession):
					ClearSessionCookies(w, cfg.CookieSecure)
				default:
					logger.Warn("session restore failed", "error", err)
				}
			}

			ctx = utils.WithAuthSession(ctx, cfg.Provider.Bind(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func needsRestore(ctx context.Context, p identity.Provider, token string) bool {
	if token == "" {
		return true
	}
	_, err := p.Bind(token).CurrentSession(ctx)
	return errors.Is(err, identity.ErrSessionExpired)
}

// CORSMiddleware echoes the request origin back when it is on allowedOrigins.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			// Echo the origin back only if it's on our allow-list
			if _, ok := allowed[origin]; ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods",
					"GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers",
					"Content-Type, Authorization")
			}

			w.Header().Set("Access-Control-Expose-Headers", "Retry-After, Location")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
