package session

import (
	"context"
	"fmt"
	"time"

	"github.com/wsrelay/wsrelay/internal/cache"
)

// MirrorRecord is the serialized shape written to Redis. It is a
// read-through projection of a Session, not the authoritative record
// — the in-memory Store remains authoritative per spec.md §3.
type MirrorRecord struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RedisMirror mirrors session existence into Redis with a TTL so a
// horizontally-scaled deployment can validate a session minted on a
// sibling replica (SPEC_FULL.md §3). It never bounds the in-memory
// store's own lifetime; it only answers "is this session still live
// somewhere" for replicas that didn't mint it.
type RedisMirror struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisMirror wraps a cache client with a default mirror TTL.
func NewRedisMirror(c *cache.Cache, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMirror{cache: c, ttl: ttl}
}

func (m *RedisMirror) IsEnabled() bool {
	return m != nil && m.cache != nil && m.cache.IsEnabled()
}

func (m *RedisMirror) key(sessionID string) string {
	return fmt.Sprintf("wsrelay:session:%s", sessionID)
}

// Mirror writes (or refreshes) a session's Redis mirror entry.
func (m *RedisMirror) Mirror(ctx context.Context, sess *Session) error {
	if !m.IsEnabled() {
		return nil
	}
	rec := MirrorRecord{
		SessionID: sess.ID,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: time.Now().Add(m.ttl),
	}
	if sess.UserID != nil {
		rec.UserID = *sess.UserID
	}
	return m.cache.Set(ctx, m.key(sess.ID), rec, m.ttl)
}

// Exists reports whether a session's mirror entry is still present.
func (m *RedisMirror) Exists(ctx context.Context, sessionID string) (bool, error) {
	if !m.IsEnabled() {
		return false, nil
	}
	return m.cache.Exists(ctx, m.key(sessionID))
}

// Get reads a session's mirror entry, if any.
func (m *RedisMirror) Get(ctx context.Context, sessionID string) (*MirrorRecord, error) {
	if !m.IsEnabled() {
		return nil, nil
	}
	var rec MirrorRecord
	if err := m.cache.Get(ctx, m.key(sessionID), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a session's mirror entry.
func (m *RedisMirror) Delete(ctx context.Context, sessionID string) error {
	if !m.IsEnabled() {
		return nil
	}
	return m.cache.Delete(ctx, m.key(sessionID))
}

// Touch resets a mirror entry's TTL without rewriting its value,
// keeping a still-active session's mirror alive without the full
// rewrite Mirror performs. It has no effect on a missing entry.
func (m *RedisMirror) Touch(ctx context.Context, sessionID string) error {
	if !m.IsEnabled() {
		return nil
	}
	return m.cache.Expire(ctx, m.key(sessionID), m.ttl)
}
