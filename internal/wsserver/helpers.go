package wsserver

import (
	"fmt"
	"net/http"
	"time"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/session"
)

// sessionFor resolves the caller's session from the request's cookie,
// minting a fresh one when absent or unknown (spec.md §4.7).
func (m *Manager) sessionFor(r *http.Request) (*session.Session, string, bool, error) {
	if m.Sessions == nil {
		return &session.Session{}, "", false, nil
	}
	if sess, id, ok := m.Sessions.ParseCookie(r); ok {
		return sess, id, false, nil
	}
	return m.Sessions.GetOrCreate("")
}

// sessionCookieValue formats the Set-Cookie header value for the
// upgrade response, matching spec.md §4.7's cookie-emission contract.
func sessionCookieValue(name, id string, r *http.Request) string {
	v := fmt.Sprintf("%s=%s; Path=/; HttpOnly; SameSite=Strict", name, id)
	if session.IsSecureRequest(r) {
		v += "; Secure"
	}
	return v
}

func splitPath(raw string) (string, map[string]string) {
	return frame.SplitURL(raw)
}

func deadlineNow() time.Time {
	return time.Now().Add(2 * time.Second)
}
