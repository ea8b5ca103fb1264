package userstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticate(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", "hunter2", Permissions{Admin: true}, time.Now(), ""))

	u, ok := s.Authenticate("alice", "hunter2")
	require.True(t, ok)
	assert.Equal(t, "alice", u.Username)

	_, ok = s.Authenticate("alice", "wrong")
	assert.False(t, ok)

	_, ok = s.Authenticate("nobody", "whatever")
	assert.False(t, ok)
}

func TestListUsersOrdering(t *testing.T) {
	s := NewStore()
	now := time.Now()
	require.NoError(t, s.Seed("zed", "pw", Permissions{}, now.Add(1*time.Hour), ""))
	require.NoError(t, s.Seed("amy", "pw", Permissions{}, now, ""))
	require.NoError(t, s.Seed("root", "pw", Permissions{Admin: true}, now.Add(2*time.Hour), ""))

	users := s.ListUsers()
	require.Len(t, users, 3)
	assert.Equal(t, "root", users[0].Username, "admins come first")
	assert.Equal(t, "amy", users[1].Username, "then ascending CreatedAt")
	assert.Equal(t, "zed", users[2].Username)
}

func TestSeedDuplicateRejected(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Seed("alice", "pw", Permissions{}, time.Now(), ""))
	err := s.Seed("alice", "pw2", Permissions{}, time.Now(), "")
	assert.ErrorIs(t, err, ErrUserExists)
}
