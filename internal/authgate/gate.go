// Package authgate implements spec.md §4.7's auth policy: an
// allow-list of unauthenticated paths, resolution of a session's
// userid against the user store, and a development "no-security" mode
// that deterministically cycles anonymous sessions through a seeded
// user roster.
package authgate

import (
	"strings"
	"sync/atomic"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/session"
	"github.com/wsrelay/wsrelay/internal/userstore"
	"github.com/wsrelay/wsrelay/internal/wserrors"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// authInternal endpoints always pass through to their handlers
// regardless of allow-list configuration (spec.md §6).
var authInternal = map[string]bool{
	"/api/context": true,
	"/api/login":   true,
	"/api/logout":  true,
	"/api/users/me": true,
}

// AllowList is a set of path prefixes that bypass the auth gate. A
// path is on the allow-list if it equals an entry exactly or begins
// with entry+"/" or entry+"?" (spec.md §6).
type AllowList []string

func (al AllowList) Allows(path string) bool {
	for _, entry := range al {
		if path == entry || strings.HasPrefix(path, entry+"/") || strings.HasPrefix(path, entry+"?") {
			return true
		}
	}
	return false
}

// NoSecurityMode controls the dev bypass. Empty disables it; "true",
// "yes" (both case-insensitive) or "1" enables roster cycling; any
// other non-empty value pins every session to that literal username.
type NoSecurityMode string

func (m NoSecurityMode) Enabled() bool {
	return m != ""
}

func (m NoSecurityMode) PinnedUsername() (string, bool) {
	s := string(m)
	if s == "" {
		return "", false
	}
	lower := strings.ToLower(s)
	if lower == "true" || lower == "1" || lower == "yes" {
		return "", false
	}
	return s, true
}

// Gate evaluates spec.md §4.7's auth policy for a given path/session pair.
type Gate struct {
	AllowList   AllowList
	Users       *userstore.Store
	NoSecurity  NoSecurityMode
	rosterIndex int64
}

func New(allowList AllowList, users *userstore.Store, noSecurity NoSecurityMode) *Gate {
	return &Gate{AllowList: allowList, Users: users, NoSecurity: noSecurity}
}

// Evaluate returns nil when the request is permitted, or a
// *wserrors.WSError (kind Unauthorized) when denied. Non-API paths
// bypass the gate entirely per spec.md §6.
func (g *Gate) Evaluate(path string, sess *session.Session) *wserrors.WSError {
	if !frame.IsAPIPath(path) {
		return nil
	}
	if authInternal[path] || g.AllowList.Allows(path) {
		return nil
	}

	if sess.UserID != nil {
		if _, ok := g.Users.GetUserByUsername(*sess.UserID); ok {
			return nil
		}
	}

	if g.NoSecurity.Enabled() {
		username := g.assignUser(sess)
		if username != "" {
			return nil
		}
	}

	wslog.Auth().Debug().Str("path", path).Msg("auth gate denied request")
	return wserrors.Unauthorized("Unauthorized")
}

// assignUser implements spec.md §4.7's no-security assignment: the
// same session retains the same user across requests for the process
// lifetime (enforced because a successful assignment sets sess.UserID,
// and future Evaluate calls resolve it on the first branch above).
func (g *Gate) assignUser(sess *session.Session) string {
	if pinned, ok := g.NoSecurity.PinnedUsername(); ok {
		if _, exists := g.Users.GetUserByUsername(pinned); exists {
			sess.SetUser(pinned)
			return pinned
		}
		return ""
	}

	roster := g.Users.ListUsers()
	if len(roster) == 0 {
		return ""
	}
	idx := atomic.AddInt64(&g.rosterIndex, 1) - 1
	user := roster[int(idx)%len(roster)]
	sess.SetUser(user.Username)
	return user.Username
}
