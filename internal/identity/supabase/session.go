package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

// Claims is the access token payload issued by Supabase Auth.
type Claims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email"`
	Role         string         `json:"role"` // "authenticated" or "anon"
	UserMetadata map[string]any `json:"user_metadata"`
	SessionID    string         `json:"session_id"`
}

// ParseToken verifies an access token against the project secret.
// Expired tokens return identity.ErrSessionExpired.
func (c *Client) ParseToken(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, identity.ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %w", identity.ErrNoSession, err)
	}
	if claims.Subject == "" || claims.Role == "anon" {
		return nil, identity.ErrNoSession
	}
	return claims, nil
}

type session struct {
	c     *Client
	token string
}

func (s *session) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if s.token == "" {
		return nil, nil
	}
	claims, err := s.c.ParseToken(s.token)
	if err != nil {
		return nil, err
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	return &identity.Session{
		AccessToken: s.token,
		ExpiresAt:   exp,
		User: identity.User{
			ID:       claims.Subject,
			Email:    claims.Email,
			Metadata: flattenMetadata(claims.UserMetadata),
		},
	}, nil
}

func (s *session) CurrentUser(ctx context.Context) (*identity.User, error) {
	if s.token == "" {
		return nil, identity.ErrNoSession
	}
	var u apiUser
	if err := s.c.do(ctx, http.MethodGet, "/user", s.token, nil, &u); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %w", identity.ErrNoSession, err)
		}
		return nil, err
	}
	user := u.toUser()
	return &user, nil
}

func (s *session) Subscribe(handler func(identity.Event)) identity.Subscription {
	var userID string
	if claims, err := s.c.ParseToken(s.token); err == nil {
		userID = claims.Subject
	}
	return s.c.broker.Subscribe(userID, handler)
}

func (s *session) UpdateUserMetadata(ctx context.Context, patch identity.Metadata) error {
	if s.token == "" {
		return identity.ErrNoSession
	}
	return s.c.do(ctx, http.MethodPut, "/user", s.token, map[string]any{"data": patch}, nil)
}
