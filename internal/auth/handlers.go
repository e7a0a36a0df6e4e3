package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fitlink/fitlink-backend/internal/guard"
	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/middleware"
	"github.com/fitlink/fitlink-backend/internal/roles"
	"github.com/fitlink/fitlink-backend/internal/utils"
)

type handler struct {
	Deps
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

type loginResponse struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Redirect string `json:"redirect"`
}

type redirectBody struct {
	Error    string `json:"error,omitempty"`
	Redirect string `json:"redirect"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	sess, err := h.Provider.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.Logger.Error("sign in failed", "error", err)
		http.Error(w, "Authentication service unavailable", http.StatusBadGateway)
		return
	}

	role := h.loginRole(r.Context(), sess)
	landing, ok := roles.LandingRoute(role)
	if !ok {
		// No usable role: end the session instead of admitting the user.
		h.Logger.Warn("login without usable role", "user_id", sess.User.ID, "role", string(role))
		if err := h.Provider.SignOut(r.Context(), sess.AccessToken); err != nil {
			h.Logger.Warn("sign out after rejected login failed", "user_id", sess.User.ID, "error", err)
		}
		middleware.ClearSessionCookies(w, h.CookieSecure)
		writeJSON(w, http.StatusForbidden, redirectBody{
			Error:    guard.ErrUnknownRole.Error(),
			Redirect: roles.LoginRoute,
		})
		return
	}

	middleware.SetSessionCookies(w, sess, h.CookieSecure)
	h.publish(identity.SignedIn, sess)

	redirect := landing
	if next, ok := SafeNext(req.Next); ok {
		redirect = next
	}
	writeJSON(w, http.StatusOK, loginResponse{UserID: sess.User.ID, Role: string(role), Redirect: redirect})
}

// loginRole reads the authoritative role from the profile store and caches
// it in the user's metadata before the session is handed out.
func (h *handler) loginRole(ctx context.Context, sess *identity.Session) roles.Role {
	role, err := h.Profiles.ProfileRole(ctx, sess.User.ID)
	if err != nil {
		h.Logger.Warn("profile role lookup failed", "user_id", sess.User.ID, "error", err)
		return roles.Normalize(sess.User.Metadata.Role())
	}
	role = roles.Normalize(string(role))
	if role == roles.Unresolved || roles.Normalize(sess.User.Metadata.Role()) == role {
		return role
	}

	auth := h.Provider.Bind(sess.AccessToken)
	if err := auth.UpdateUserMetadata(ctx, identity.Metadata{identity.MetadataRoleKey: string(role)}); err != nil {
		h.Logger.Warn("role metadata write-back failed", "user_id", sess.User.ID,
			"error", fmt.Errorf("%w: %w", guard.ErrMetadataWriteFailed, err))
		return role
	}
	if sess.User.Metadata == nil {
		sess.User.Metadata = identity.Metadata{}
	}
	sess.User.Metadata[identity.MetadataRoleKey] = string(role)
	return role
}

func (h *handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessToken(r)
	if restored, ok := utils.GetRestoredSessionFromContext(r.Context()); ok {
		token = restored.AccessToken
	}
	middleware.ClearSessionCookies(w, h.CookieSecure)

	if token != "" {
		var userID string
		if sess, err := h.Provider.Bind(token).CurrentSession(r.Context()); err == nil && sess != nil {
			userID = sess.User.ID
		}

		err := h.Provider.SignOut(r.Context(), token)
		if err != nil && !errors.Is(err, identity.ErrNoSession) {
			h.Logger.Warn("sign out failed", "user_id", userID, "error", err)
		}
		if userID != "" && h.Broker != nil {
			h.Broker.Publish(identity.Event{Kind: identity.SignedOut, UserID: userID})
		}
	}

	writeJSON(w, http.StatusOK, redirectBody{Redirect: roles.LoginRoute})
}

type refreshResponse struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *handler) Refresh(w http.ResponseWriter, r *http.Request) {
	// SessionMiddleware already rotated the tokens, rewrote the cookies and
	// published the event.
	if restored, ok := utils.GetRestoredSessionFromContext(r.Context()); ok {
		writeJSON(w, http.StatusOK, refreshResponse{UserID: restored.User.ID, ExpiresAt: restored.ExpiresAt})
		return
	}

	refresh := middleware.RefreshToken(r)
	if refresh == "" {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		refresh = body.RefreshToken
	}
	if refresh == "" {
		http.Error(w, "Refresh token is required", http.StatusBadRequest)
		return
	}

	sess, err := h.Provider.Refresh(r.Context(), refresh)
	if errors.Is(err, identity.ErrNoSession) {
		middleware.ClearSessionCookies(w, h.CookieSecure)
		writeJSON(w, http.StatusUnauthorized, redirectBody{Error: "Session expired", Redirect: roles.LoginRoute})
		return
	}
	if err != nil {
		h.Logger.Error("refresh failed", "error", err)
		http.Error(w, "Authentication service unavailable", http.StatusBadGateway)
		return
	}

	middleware.SetSessionCookies(w, sess, h.CookieSecure)
	h.publish(identity.TokenRefreshed, sess)
	writeJSON(w, http.StatusOK, refreshResponse{UserID: sess.User.ID, ExpiresAt: sess.ExpiresAt})
}

type MeResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Landing string `json:"landing,omitempty"`
}

func (h *handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := utils.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: missing user ID in context", http.StatusUnauthorized)
		return
	}
	role, _ := utils.GetRoleFromContext(r.Context())

	resp := MeResponse{UserID: userID, Role: string(role)}
	resp.Landing, _ = roles.LandingRoute(role)
	if sess, err := middleware.AuthSession(r.Context()).CurrentSession(r.Context()); err == nil && sess != nil {
		resp.Email = sess.User.Email
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) publish(kind identity.EventKind, sess *identity.Session) {
	if h.Broker == nil || sess.User.ID == "" {
		return
	}
	h.Broker.Publish(identity.Event{Kind: kind, UserID: sess.User.ID, Session: sess})
}
