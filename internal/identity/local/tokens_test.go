package local

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ti := tokenIssuer{secret: []byte("dev-secret"), ttl: 15 * time.Minute, now: func() time.Time { return now }}

	tok, exp, err := ti.issue(User{UserID: "u1", Email: "t@fitlink.test"}, "s1")
	require.NoError(t, err)
	assert.Equal(t, now.Add(15*time.Minute), exp)

	claims, err := ti.parse(tok, false)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "s1", claims.SessionID)
	assert.Equal(t, "t@fitlink.test", claims.Email)
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	ti := tokenIssuer{secret: []byte("dev-secret"), ttl: time.Minute, now: func() time.Time { return clock }}

	tok, _, err := ti.issue(User{UserID: "u1"}, "s1")
	require.NoError(t, err)

	clock = now.Add(2 * time.Minute)
	_, err = ti.parse(tok, false)
	assert.ErrorIs(t, err, identity.ErrSessionExpired)

	claims, err := ti.parse(tok, true)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SessionID)
}

func TestTokenWrongSecret(t *testing.T) {
	issuer := tokenIssuer{secret: []byte("a"), ttl: time.Minute, now: time.Now}
	verifier := tokenIssuer{secret: []byte("b"), ttl: time.Minute, now: time.Now}

	tok, _, err := issuer.issue(User{UserID: "u1"}, "s1")
	require.NoError(t, err)

	_, err = verifier.parse(tok, false)
	assert.ErrorIs(t, err, identity.ErrNoSession)
	_, err = verifier.parse(tok, true)
	assert.ErrorIs(t, err, identity.ErrNoSession)
}

func TestHstoreConversion(t *testing.T) {
	md := identity.Metadata{"role": "trainer", "gym": "gangnam"}
	assert.Equal(t, md, fromHstore(toHstore(md)))
	assert.Nil(t, fromHstore(toHstore(nil)))
}

func TestNewRequiresSecret(t *testing.T) {
	_, err := New(nil, identity.Options{})
	assert.ErrorIs(t, err, ErrMissingJWTSecret)
}
