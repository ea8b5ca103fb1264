// Package userstore is the external user-record collaborator spec.md
// §6 names at its interface (a key/value of user records with a
// password check). spec.md's Non-goals exclude a persistence *layer*,
// not the interface itself, so this backs it with an in-memory map and
// bcrypt password hashing — enough for authgate and the scenario tests
// to call something real.
package userstore

import (
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Permissions mirrors spec.md §6's user record shape.
type Permissions struct {
	Admin bool `json:"admin,omitempty"`
}

// User is a seeded account record.
type User struct {
	Username     string      `json:"username"`
	PasswordHash string      `json:"-"`
	Permissions  Permissions `json:"permissions"`
	CreatedAt    time.Time   `json:"createdAt"`
	TOTPSecret   string      `json:"-"` // empty when step-up is not required
}

var ErrUserExists = errors.New("user already exists")

// Store is an in-memory user-record collaborator.
type Store struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewStore() *Store {
	return &Store{users: map[string]*User{}}
}

// Seed adds a user with a plaintext password, hashing it with bcrypt.
// Intended for startup seeding (env/yaml roster), not request-path use.
func (s *Store) Seed(username, password string, perms Permissions, createdAt time.Time, totpSecret string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return ErrUserExists
	}
	s.users[username] = &User{
		Username:     username,
		PasswordHash: string(hash),
		Permissions:  perms,
		CreatedAt:    createdAt,
		TOTPSecret:   totpSecret,
	}
	return nil
}

// Authenticate checks a username/password pair per spec.md §6.
func (s *Store) Authenticate(username, password string) (*User, bool) {
	s.mu.RLock()
	u, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, false
	}
	return u, true
}

// GetUserByUsername looks up a user record.
func (s *Store) GetUserByUsername(name string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[name]
	return u, ok
}

// ListUsers returns every seeded user ordered admins-first, then by
// ascending CreatedAt — the ordering the no-security roster cycles
// through (spec.md §4.7).
func (s *Store) ListUsers() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Permissions.Admin != out[j].Permissions.Admin {
			return out[i].Permissions.Admin
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
