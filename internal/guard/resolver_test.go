package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitlink/fitlink-backend/internal/identity"
	"github.com/fitlink/fitlink-backend/internal/identity/identitytest"
	"github.com/fitlink/fitlink-backend/internal/roles"
)

func TestResolveCachedRoleSkipsStore(t *testing.T) {
	profiles := newFakeProfiles()
	r := NewResolver(profiles, quietLogger())
	auth := identitytest.New()
	uid := auth.AddUser("t@fitlink.test", "pw", identity.Metadata{"role": " Trainer "})
	sess := auth.Bind(auth.IssueToken(uid, time.Hour))
	user, err := sess.CurrentUser(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		role, err := r.Resolve(context.Background(), sess, user)
		require.NoError(t, err)
		assert.Equal(t, roles.Trainer, role)
	}
	assert.Zero(t, profiles.Calls())
	assert.Empty(t, auth.MetadataUpdates())
}

func TestResolveSecondPassUsesWrittenBackRole(t *testing.T) {
	profiles := newFakeProfiles()
	r := NewResolver(profiles, quietLogger())
	auth := identitytest.New()
	uid := auth.AddUser("m@fitlink.test", "pw", nil)
	profiles.set(uid, roles.Member)
	sess := auth.Bind(auth.IssueToken(uid, time.Hour))

	user, err := sess.CurrentUser(context.Background())
	require.NoError(t, err)
	role, err := r.Resolve(context.Background(), sess, user)
	require.NoError(t, err)
	assert.Equal(t, roles.Member, role)
	r.Drain()

	user, err = sess.CurrentUser(context.Background())
	require.NoError(t, err)
	role, err = r.Resolve(context.Background(), sess, user)
	require.NoError(t, err)
	assert.Equal(t, roles.Member, role)
	assert.Equal(t, 1, profiles.Calls())
}

func TestResolveProfileWithoutRole(t *testing.T) {
	profiles := newFakeProfiles()
	r := NewResolver(profiles, quietLogger())
	auth := identitytest.New()
	uid := auth.AddUser("x@fitlink.test", "pw", nil)
	profiles.set(uid, roles.Unresolved)
	sess := auth.Bind(auth.IssueToken(uid, time.Hour))

	role, err := r.Resolve(context.Background(), sess, &identity.User{ID: uid})
	require.NoError(t, err)
	assert.Equal(t, roles.Unresolved, role)
	r.Drain()
	assert.Empty(t, auth.MetadataUpdates())
}

func TestResolveLookupError(t *testing.T) {
	profiles := newFakeProfiles()
	r := NewResolver(profiles, quietLogger())
	auth := identitytest.New()

	role, err := r.Resolve(context.Background(), auth.Bind(""), &identity.User{ID: "missing"})
	assert.Equal(t, roles.Unresolved, role)
	assert.ErrorIs(t, err, ErrProfileLookupFailed)
	assert.ErrorIs(t, err, errProfileMissing)
}

func TestWriteBackOutlivesCallerContext(t *testing.T) {
	profiles := newFakeProfiles()
	r := NewResolver(profiles, quietLogger())
	auth := identitytest.New()
	uid := auth.AddUser("a@fitlink.test", "pw", nil)
	profiles.set(uid, roles.Admin)
	sess := auth.Bind(auth.IssueToken(uid, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	role, err := r.Resolve(ctx, sess, &identity.User{ID: uid})
	cancel()
	require.NoError(t, err)
	assert.Equal(t, roles.Admin, role)

	r.Drain()
	u, ok := auth.User(uid)
	require.True(t, ok)
	assert.Equal(t, "admin", u.Metadata.Role())
}

func TestWriteBackFailureIsNotReturned(t *testing.T) {
	profiles := newFakeProfiles()
	r := NewResolver(profiles, quietLogger())
	auth := identitytest.New()
	auth.UpdateErr = errors.New("boom")
	uid := auth.AddUser("a@fitlink.test", "pw", nil)
	profiles.set(uid, roles.Admin)
	sess := auth.Bind(auth.IssueToken(uid, time.Hour))

	role, err := r.Resolve(context.Background(), sess, &identity.User{ID: uid})
	require.NoError(t, err)
	assert.Equal(t, roles.Admin, role)
	r.Drain()
}
