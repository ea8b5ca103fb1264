// Package session implements the in-memory session store and cookie
// codec described in spec.md §3/§4.7: an opaque cookie identifies a
// mutable session record whose object identity is stable for the
// life of the process. An optional Redis mirror and cron sweep
// (SPEC_FULL.md §3) provide a bounded-growth path without changing
// that authoritative no-expiry contract.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Session is the record attached to a cookie-identified caller.
// UserID is nil for anonymous sessions; handlers and the auth gate
// mutate Extra in place.
type Session struct {
	mu         sync.Mutex
	ID         string
	UserID     *string
	Extra      map[string]any
	CreatedAt  time.Time
	LastSeenAt time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastSeenAt = time.Now()
}

// SetExtra sets a key on the session's extra bag, safe for concurrent use.
func (s *Session) SetExtra(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Extra == nil {
		s.Extra = map[string]any{}
	}
	s.Extra[key] = value
}

// GetExtra reads a key from the session's extra bag.
func (s *Session) GetExtra(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Extra[key]
	return v, ok
}

// SetUser assigns a userid to the session (login / no-security assignment).
func (s *Session) SetUser(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = &userID
}

// Logout clears the session's userid without destroying the record
// (spec.md §3: "destroyed only on explicit logout (clears userid) or
// process exit").
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UserID = nil
}

// IsAnonymous reports whether the session carries no user.
func (s *Session) IsAnonymous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.UserID == nil
}

// Store is the process-global, in-memory session map. Routes are
// write-once at registration; sessions are read/written only through
// this store (spec.md §3 ownership rule).
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	cookieName string
}

// NewStore constructs an empty store for the given cookie name.
func NewStore(cookieName string) *Store {
	return &Store{
		sessions:   map[string]*Session{},
		cookieName: cookieName,
	}
}

func (s *Store) CookieName() string {
	return s.cookieName
}

// GenerateSessionID mints a cryptographically random, URL-safe opaque id.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ParseCookie reads the configured cookie from the request. The
// third return value is false when the cookie is absent or unknown
// to the store.
func (s *Store) ParseCookie(r *http.Request) (*Session, string, bool) {
	c, err := r.Cookie(s.cookieName)
	if err != nil {
		return nil, "", false
	}
	sess, ok := s.Get(c.Value)
	if !ok {
		return nil, "", false
	}
	return sess, c.Value, true
}

// GetOrCreate returns the session bound to id if it exists, otherwise
// mints a fresh id and session record, stores it, and returns both
// (spec.md §4.7's session parsing step).
func (s *Store) GetOrCreate(id string) (sess *Session, sessID string, created bool, err error) {
	if id != "" {
		if existing, ok := s.Get(id); ok {
			existing.touch()
			return existing, id, false, nil
		}
	}
	newID, genErr := GenerateSessionID()
	if genErr != nil {
		return nil, "", false, genErr
	}
	now := time.Now()
	sess = &Session{ID: newID, CreatedAt: now, LastSeenAt: now}
	s.mu.Lock()
	s.sessions[newID] = sess
	s.mu.Unlock()
	return sess, newID, true, nil
}

// Get looks up a session by id.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete permanently removes a session record from the store. Used
// only by the optional sweep job (spec.md's default contract never
// deletes sessions itself); never called from the request path.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of sessions currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Snapshot returns a copy of the id->session map for iteration by the
// sweep job. Session pointers are shared, not copied.
func (s *Store) Snapshot() map[string]*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Session, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out
}

// WriteCookie emits the Set-Cookie header for the given session id,
// matching spec.md §4.7's cookie-emission contract: Path=/, HttpOnly,
// SameSite=Strict, Secure when the request arrived over HTTPS.
func WriteCookie(w http.ResponseWriter, name, id string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   secure,
	})
}

// IsSecureRequest detects HTTPS via the forwarded-proto header or the
// request's own TLS state.
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	return strings.EqualFold(proto, "https")
}
