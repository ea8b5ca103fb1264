package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweepRemovesOnlyIdleAnonymousSessions(t *testing.T) {
	store := NewStore("sid")

	anon, anonID, _, _ := store.GetOrCreate("")
	anon.LastSeenAt = time.Now().Add(-2 * time.Hour)

	authed, authedID, _, _ := store.GetOrCreate("")
	authed.SetUser("u1")
	authed.LastSeenAt = time.Now().Add(-2 * time.Hour)

	fresh, freshID, _, _ := store.GetOrCreate("")
	_ = fresh

	sw := NewSweeper(store, nil, 30*time.Minute)
	sw.sweepOnce()

	_, ok := store.Get(anonID)
	assert.False(t, ok, "idle anonymous session should be swept")

	_, ok = store.Get(authedID)
	assert.True(t, ok, "authenticated session must never be swept")

	_, ok = store.Get(freshID)
	assert.True(t, ok, "recently-touched anonymous session must survive")
}
