package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authgate/internal/auth"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open("sqlite", t.TempDir()+"/test.db", "")
	require.NoError(t, err)
	sq, ok := s.(*SQLiteStore)
	require.True(t, ok)
	t.Cleanup(func() { _ = sq.Close() })
	return sq
}

func TestSQLiteUsers(t *testing.T) {
	sq := newTestSQLite(t)

	u, err := sq.InsertUser(&auth.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", Role: auth.RoleUser, Active: true})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	got, err := sq.FindUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, auth.RoleUser, got.Role)
	assert.True(t, got.Active)

	_, err = sq.FindUserByEmail("nobody@example.com")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	_, err = sq.InsertUser(&auth.User{Username: "alice", Email: "dup@example.com", PasswordHash: "h", Role: auth.RoleUser, Active: true})
	assert.ErrorIs(t, err, auth.ErrConflict)

	u.Active = false
	require.NoError(t, sq.UpdateUser(u))
	got, err = sq.FindUserByID(u.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	assert.ErrorIs(t, sq.UpdateUser(&auth.User{ID: 999, Role: auth.RoleUser}), auth.ErrNotFound)
}

func TestSQLiteAPIKeys(t *testing.T) {
	sq := newTestSQLite(t)

	u, err := sq.InsertUser(&auth.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", Role: auth.RoleUser, Active: true})
	require.NoError(t, err)

	expires := time.Now().Add(time.Hour).UTC()
	k, err := sq.InsertAPIKey(&auth.APIKey{UserID: u.ID, KeyHash: "kh", KeyPrefix: "ag_ccccccccc", Name: "ci", ExpiresAt: &expires})
	require.NoError(t, err)
	assert.NotZero(t, k.ID)
	assert.Nil(t, k.LastUsedAt)

	byPrefix, err := sq.FindAPIKeysByPrefix("ag_ccccccccc")
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)
	require.NotNil(t, byPrefix[0].ExpiresAt)
	assert.WithinDuration(t, expires, *byPrefix[0].ExpiresAt, time.Second)

	none, err := sq.FindAPIKeysByPrefix("ag_zzzzzzzzz")
	require.NoError(t, err)
	assert.Empty(t, none)

	now := time.Now().UTC()
	k.Revoked = true
	k.LastUsedAt = &now
	require.NoError(t, sq.UpdateAPIKey(k))

	got, err := sq.FindAPIKeyByID(k.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	require.NotNil(t, got.LastUsedAt)

	listed, err := sq.FindAPIKeysByUser(u.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, sq.DeleteAPIKey(k.ID))
	_, err = sq.FindAPIKeyByID(k.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)

	assert.True(t, sq.Ping())
}
