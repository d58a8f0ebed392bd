package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authgate/internal/auth"
)

func TestMemStoreUsers(t *testing.T) {
	m := NewMemStore()

	u, err := m.InsertUser(&auth.User{Username: "alice", Email: "alice@example.com", PasswordHash: "h", Role: auth.RoleUser, Active: true})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.False(t, u.CreatedAt.IsZero())

	byName, err := m.FindUserByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := m.FindUserByEmail("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = m.FindUserByUsername("nobody")
	assert.ErrorIs(t, err, auth.ErrNotFound)

	// duplicate username or email conflicts
	_, err = m.InsertUser(&auth.User{Username: "alice", Email: "other@example.com"})
	assert.ErrorIs(t, err, auth.ErrConflict)
	_, err = m.InsertUser(&auth.User{Username: "bob", Email: "alice@example.com"})
	assert.ErrorIs(t, err, auth.ErrConflict)

	u.Role = auth.RoleAdmin
	require.NoError(t, m.UpdateUser(u))
	updated, err := m.FindUserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, updated.Role)

	assert.ErrorIs(t, m.UpdateUser(&auth.User{ID: 999}), auth.ErrNotFound)
}

func TestMemStoreReturnsCopies(t *testing.T) {
	m := NewMemStore()

	u, err := m.InsertUser(&auth.User{Username: "alice", Email: "alice@example.com", Active: true})
	require.NoError(t, err)

	// mutating a returned record must not affect the stored one
	u.Username = "clobbered"
	stored, err := m.FindUserByID(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
}

func TestMemStoreAPIKeys(t *testing.T) {
	m := NewMemStore()

	owner, err := m.InsertUser(&auth.User{Username: "alice", Email: "alice@example.com", Active: true})
	require.NoError(t, err)

	k1, err := m.InsertAPIKey(&auth.APIKey{UserID: owner.ID, KeyHash: "h1", KeyPrefix: "ag_aaaaaaaaa", Name: "one"})
	require.NoError(t, err)
	k2, err := m.InsertAPIKey(&auth.APIKey{UserID: owner.ID, KeyHash: "h2", KeyPrefix: "ag_bbbbbbbbb", Name: "two"})
	require.NoError(t, err)

	byPrefix, err := m.FindAPIKeysByPrefix("ag_aaaaaaaaa")
	require.NoError(t, err)
	require.Len(t, byPrefix, 1)
	assert.Equal(t, k1.ID, byPrefix[0].ID)

	byUser, err := m.FindAPIKeysByUser(owner.ID)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, []int64{k1.ID, k2.ID}, []int64{byUser[0].ID, byUser[1].ID})

	now := time.Now()
	k1.Revoked = true
	k1.LastUsedAt = &now
	require.NoError(t, m.UpdateAPIKey(k1))
	got, err := m.FindAPIKeyByID(k1.ID)
	require.NoError(t, err)
	assert.True(t, got.Revoked)
	assert.NotNil(t, got.LastUsedAt)

	require.NoError(t, m.DeleteAPIKey(k2.ID))
	_, err = m.FindAPIKeyByID(k2.ID)
	assert.ErrorIs(t, err, auth.ErrNotFound)
	assert.ErrorIs(t, m.DeleteAPIKey(k2.ID), auth.ErrNotFound)
}

func TestOpenMemory(t *testing.T) {
	s, err := Open("memory", "", "")
	require.NoError(t, err)
	_, ok := s.(*MemStore)
	assert.True(t, ok)

	_, err = Open("oracle", "", "")
	assert.Error(t, err)
}
