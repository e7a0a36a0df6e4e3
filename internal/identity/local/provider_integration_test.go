package local

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/fitlink/fitlink-backend/internal/identity"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	_ = godotenv.Load("../../../.env.local")
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("skipping integration test (requires DATABASE_URL)")
	}
	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Init(d))
	return d
}

func TestLocalProviderLifecycle(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	p, err := New(d, identity.Options{LocalJWTSecret: "integration-secret"})
	require.NoError(t, err)

	email := "it_" + uuid.NewString()[:8] + "@fitlink.test"
	u, err := p.SignUp(ctx, email, "TestPass123!", identity.Metadata{"full_name": "Kim"})
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Where("user_id = ?", u.ID).Delete(&Session{})
		d.Where("user_id = ?", u.ID).Delete(&User{})
	})

	_, err = p.SignUp(ctx, email, "other", nil)
	assert.ErrorIs(t, err, identity.ErrUserExists)

	_, err = p.SignIn(ctx, email, "wrong")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	sess, err := p.SignIn(ctx, email, "TestPass123!")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(accessTTL), sess.ExpiresAt, time.Minute)

	auth := p.Bind(sess.AccessToken)
	cur, err := auth.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, u.ID, cur.User.ID)

	require.NoError(t, auth.UpdateUserMetadata(ctx, identity.Metadata{"role": "trainer"}))
	user, err := auth.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "trainer", user.Metadata.Role())
	assert.Equal(t, "Kim", user.Metadata["full_name"])

	refreshed, err := p.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.RefreshToken, refreshed.RefreshToken)
	_, err = p.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrNoSession)

	require.NoError(t, p.SignOut(ctx, refreshed.AccessToken))
	_, err = p.Bind(refreshed.AccessToken).CurrentUser(ctx)
	assert.ErrorIs(t, err, identity.ErrNoSession)
}

func TestLocalSignOutEndsEverySession(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	p, err := New(d, identity.Options{LocalJWTSecret: "integration-secret"})
	require.NoError(t, err)

	email := "it_" + uuid.NewString()[:8] + "@fitlink.test"
	u, err := p.SignUp(ctx, email, "TestPass123!", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		d.Where("user_id = ?", u.ID).Delete(&Session{})
		d.Where("user_id = ?", u.ID).Delete(&User{})
	})

	laptop, err := p.SignIn(ctx, email, "TestPass123!")
	require.NoError(t, err)
	phone, err := p.SignIn(ctx, email, "TestPass123!")
	require.NoError(t, err)

	require.NoError(t, p.SignOut(ctx, laptop.AccessToken))

	_, err = p.Bind(phone.AccessToken).CurrentUser(ctx)
	assert.ErrorIs(t, err, identity.ErrNoSession)
	_, err = p.Refresh(ctx, phone.RefreshToken)
	assert.ErrorIs(t, err, identity.ErrNoSession)
	assert.ErrorIs(t, p.SignOut(ctx, phone.AccessToken), identity.ErrNoSession)
}
