package session

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateMintsFreshSession(t *testing.T) {
	store := NewStore("sid")
	sess, id, created, err := store.GetOrCreate("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)
	assert.True(t, sess.IsAnonymous())
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	store := NewStore("sid")
	sess1, id, _, err := store.GetOrCreate("")
	require.NoError(t, err)
	sess2, id2, created, err := store.GetOrCreate(id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)
	assert.Same(t, sess1, sess2)
}

func TestGetOrCreateUnknownIDMintsNew(t *testing.T) {
	store := NewStore("sid")
	_, id, created, err := store.GetOrCreate("nonexistent-id")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, "nonexistent-id", id)
}

func TestSessionIdentityStableAcrossMutation(t *testing.T) {
	store := NewStore("sid")
	sess, id, _, _ := store.GetOrCreate("")
	sess.SetUser("u1")
	again, _ := store.Get(id)
	assert.False(t, again.IsAnonymous())
	assert.Equal(t, "u1", *again.UserID)
}

func TestLogoutClearsUserIDKeepsRecord(t *testing.T) {
	store := NewStore("sid")
	sess, id, _, _ := store.GetOrCreate("")
	sess.SetUser("u1")
	sess.Logout()
	assert.True(t, sess.IsAnonymous())
	_, ok := store.Get(id)
	assert.True(t, ok)
}

func TestCookieRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteCookie(rec, "sid", "abc123", false)
	resp := rec.Result()
	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range resp.Cookies() {
		req.AddCookie(c)
	}
	store := NewStore("sid")
	store.sessions["abc123"] = &Session{ID: "abc123", CreatedAt: time.Now(), LastSeenAt: time.Now()}
	sess, id, ok := store.ParseCookie(req)
	require.True(t, ok)
	assert.Equal(t, "abc123", id)
	assert.NotNil(t, sess)
}

func TestIsSecureRequestForwardedProto(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, IsSecureRequest(req))
}
