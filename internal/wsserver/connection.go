// Package wsserver implements the server half of the protocol: an
// upgraded-connection manager that dispatches inbound frames to a
// router.Table, fans broadcasts and topic events out to live
// connections, and reaps dead sockets amortized into every fan-out
// (spec.md §4.3-4.5).
package wsserver

import (
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/session"
)

// connState tracks a connection's lifecycle for dead-connection detection.
type connState int32

const (
	stateOpen connState = iota
	stateClosing
	stateClosed
)

// Connection wraps one upgraded socket with the bookkeeping the
// manager needs: a write mutex (gorilla/websocket connections are not
// safe for concurrent writers), the owning session, and this
// connection's topic subscription set.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Session *session.Session
	IP      string

	writeMu sync.Mutex
	state   int32

	subMu sync.Mutex
	subs  map[string]bool
}

func newConnection(id string, conn *websocket.Conn, sess *session.Session, ip string) *Connection {
	return &Connection{
		ID:      id,
		Conn:    conn,
		Session: sess,
		IP:      ip,
		subs:    map[string]bool{},
	}
}

func (c *Connection) isOpen() bool {
	return connState(atomic.LoadInt32(&c.state)) == stateOpen
}

func (c *Connection) markOpen() {
	atomic.StoreInt32(&c.state, int32(stateOpen))
}

func (c *Connection) markClosed() {
	atomic.StoreInt32(&c.state, int32(stateClosed))
}

// send writes a frame to the socket under the per-connection write
// lock. Callers treat any error as a signal to mark the connection
// dead (spec.md §4.3's send-failure handling).
func (c *Connection) send(f *frame.Frame) error {
	payload, err := frame.Encode(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) subscribe(topic string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subs[topic] = true
}

func (c *Connection) unsubscribe(topic string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	delete(c.subs, topic)
}

func (c *Connection) topics() []string {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}
