package wsserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wsrelay/wsrelay/internal/wslog"
)

// HandleUpgrade is the HTTP entrypoint mounted at m.Endpoint. It
// parses/mints the caller's session, evaluates the auth policy, and on
// acceptance upgrades the connection and starts its read loop in a new
// goroutine (spec.md §4.5's open sequence).
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	sess, sessID, _, err := m.sessionFor(r)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to resolve session for websocket upgrade")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	path, _ := splitPath(r.URL.String())
	if m.Auth != nil {
		if authErr := m.Auth.Evaluate(path, sess); authErr != nil {
			conn, upErr := m.upgrader.Upgrade(w, r, nil)
			if upErr != nil {
				return
			}
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(1008, "Unauthorized"),
				deadlineNow())
			conn.Close()
			return
		}
	}

	header := http.Header{}
	if m.Sessions != nil {
		header.Set("Set-Cookie", sessionCookieValue(m.Sessions.CookieName(), sessID, r))
	}

	conn, err := m.upgrader.Upgrade(w, r, header)
	if err != nil {
		wslog.WS().Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newConnection(uuid.NewString(), conn, sess, r.RemoteAddr)
	c.markOpen()
	m.addConnection(c)

	if m.devctx != nil {
		m.devctx.AddWS(map[string]any{"event": "open", "connection_id": c.ID, "endpoint": m.Endpoint})
	}

	go m.readLoop(c)
}

// closeConnection handles one connection's teardown: removes it from the live
// set and every subscription bucket, and emits a connection-closed
// topic event carrying the session's userid when it had one (spec.md
// §4.5's close sequence). Also opportunistically reaps any other
// connection observed not-open.
func (m *Manager) closeConnection(c *Connection) {
	c.markClosed()
	c.Conn.Close()

	m.mu.Lock()
	m.removeConnectionLocked(c)
	dead := m.collectDeadLocked()
	m.mu.Unlock()

	if m.devctx != nil {
		m.devctx.AddWS(map[string]any{"event": "close", "connection_id": c.ID, "endpoint": m.Endpoint})
	}

	if c.Session != nil && c.Session.UserID != nil {
		m.EmitEvent("connection-closed", map[string]any{"userid": *c.Session.UserID})
	}

	m.reap(dead)
}

// collectDeadLocked returns every connection whose state is not open.
// Caller holds m.mu.
func (m *Manager) collectDeadLocked() []*Connection {
	var dead []*Connection
	for _, c := range m.connections {
		if !c.isOpen() {
			dead = append(dead, c)
		}
	}
	return dead
}

// reap removes every connection in dead from the live set and its
// subscription buckets (spec.md §4.5's amortized reaper).
func (m *Manager) reap(dead []*Connection) {
	if len(dead) == 0 {
		return
	}
	m.mu.Lock()
	for _, c := range dead {
		m.removeConnectionLocked(c)
	}
	m.mu.Unlock()
}
