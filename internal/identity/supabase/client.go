// Package supabase implements identity.Provider on top of the Supabase Auth
// (GoTrue) REST API.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

func init() {
	identity.RegisterProvider("supabase", func(opts identity.Options) (identity.Provider, error) {
		return New(opts)
	})
}

var (
	ErrMissingURL       = errors.New("supabase: project URL is required")
	ErrMissingAnonKey   = errors.New("supabase: anon key is required")
	ErrMissingJWTSecret = errors.New("supabase: JWT secret is required")
)

// APIError is a non-2xx answer from the auth API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("supabase auth: status %d: %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase auth: status %d: %s", e.Status, e.Message)
}

// Client talks to one Supabase project.
type Client struct {
	baseURL    string
	anonKey    string
	jwtSecret  []byte
	httpClient *http.Client
	broker     *identity.Broker
	now        func() time.Time
}

// New creates a client from provider options.
func New(opts identity.Options) (*Client, error) {
	switch {
	case opts.SupabaseURL == "":
		return nil, ErrMissingURL
	case opts.SupabaseAnonKey == "":
		return nil, ErrMissingAnonKey
	case opts.SupabaseJWTSecret == "":
		return nil, ErrMissingJWTSecret
	}
	broker := opts.Broker
	if broker == nil {
		broker = identity.NewBroker()
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.SupabaseURL, "/") + "/auth/v1",
		anonKey:   opts.SupabaseAnonKey,
		jwtSecret: []byte(opts.SupabaseJWTSecret),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		broker: broker,
		now:    time.Now,
	}, nil
}

func (c *Client) Name() string { return "supabase" }

func (c *Client) Bind(accessToken string) identity.AuthSession {
	return &session{c: c, token: accessToken}
}

type apiUser struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u apiUser) toUser() identity.User {
	return identity.User{ID: u.ID, Email: u.Email, Metadata: flattenMetadata(u.UserMetadata)}
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         *apiUser `json:"user"`
}

func (t tokenResponse) toSession(now time.Time) *identity.Session {
	exp := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	if t.ExpiresAt > 0 {
		exp = time.Unix(t.ExpiresAt, 0)
	}
	s := &identity.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		ExpiresAt:    exp,
	}
	if t.User != nil {
		s.User = t.User.toUser()
	}
	return s
}

// SignIn exchanges email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "",
		map[string]string{"email": email, "password": password}, &tok)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest {
			return nil, fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, err)
		}
		return nil, err
	}
	return tok.toSession(c.now()), nil
}

// SignUp registers a new user with metadata as user_metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	}
	// The answer is a session when auto-confirm is on, a bare user otherwise.
	var resp struct {
		apiUser
		User *apiUser `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/signup", "", body, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isUserExists(apiErr) {
			return nil, fmt.Errorf("%w: %w", identity.ErrUserExists, err)
		}
		return nil, err
	}
	u := resp.apiUser
	if resp.User != nil {
		u = *resp.User
	}
	user := u.toUser()
	return &user, nil
}

// Refresh trades a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	var tok tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "",
		map[string]string{"refresh_token": refreshToken}, &tok)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %w", identity.ErrNoSession, err)
		}
		return nil, err
	}
	return tok.toSession(c.now()), nil
}

// SignOut revokes the refresh tokens of every session of the user behind
// accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return identity.ErrNoSession
	}
	return c.do(ctx, http.MethodPost, "/logout?scope=global", accessToken, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, redactQuery(path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		ErrorCode        string `json:"error_code"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(raw, &body)

	apiErr := &APIError{Status: resp.StatusCode, Code: body.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.ErrorDescription, body.Msg, body.Message, strings.TrimSpace(string(raw))} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func isUserExists(e *APIError) bool {
	if e.Code == "user_already_exists" || e.Code == "email_exists" {
		return true
	}
	return (e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity) &&
		strings.Contains(strings.ToLower(e.Message), "already registered")
}

// flattenMetadata keeps user_metadata as strings; nested values are JSON encoded.
func flattenMetadata(in map[string]any) identity.Metadata {
	if len(in) == 0 {
		return nil
	}
	out := make(identity.Metadata, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
		case string:
			out[k] = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				continue
			}
			out[k] = string(b)
		}
	}
	return out
}

func redactQuery(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	return u.Path
}
