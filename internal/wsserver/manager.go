package wsserver

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wsrelay/wsrelay/internal/authgate"
	"github.com/wsrelay/wsrelay/internal/devctx"
	"github.com/wsrelay/wsrelay/internal/router"
	"github.com/wsrelay/wsrelay/internal/session"
)

// Manager owns one named endpoint's live-connection set, per-topic
// subscription buckets, and route table. One Manager per mounted
// endpoint (e.g. "/ws", "/bunchy" per spec.md §6).
type Manager struct {
	Endpoint string
	Table    *router.Table
	Sessions *session.Store
	Auth     *authgate.Gate

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
	topics      map[string]map[string]*Connection

	devctx *devctx.Sink
	relay  *ClusterRelay
}

// NewManager constructs a Manager for one endpoint. CheckOrigin is
// left permissive (callers that need origin checks run their own gin
// middleware ahead of the upgrade); this matches the teacher's own
// WebSocket entrypoints, which perform origin/auth checks in HTTP
// middleware rather than in the upgrader itself.
func NewManager(endpoint string, table *router.Table, sessions *session.Store, auth *authgate.Gate) *Manager {
	return &Manager{
		Endpoint:    endpoint,
		Table:       table,
		Sessions:    sessions,
		Auth:        auth,
		connections: map[string]*Connection{},
		topics:      map[string]map[string]*Connection{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetDevContext wires the optional diagnostics ring-buffer sink.
func (m *Manager) SetDevContext(sink *devctx.Sink) {
	m.devctx = sink
}

// ConnectionCount returns the number of live connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// SubscriberCount returns the number of connections subscribed to topic.
func (m *Manager) SubscriberCount(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.topics[topic])
}

func (m *Manager) addConnection(c *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = c
}

// removeConnectionLocked deletes c from the live set and every topic
// bucket it belonged to. Caller holds m.mu.
func (m *Manager) removeConnectionLocked(c *Connection) {
	delete(m.connections, c.ID)
	for _, topic := range c.topics() {
		bucket := m.topics[topic]
		delete(bucket, c.ID)
		if len(bucket) == 0 {
			delete(m.topics, topic)
		}
	}
}

func (m *Manager) subscribe(c *Connection, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.subscribe(topic)
	bucket, ok := m.topics[topic]
	if !ok {
		bucket = map[string]*Connection{}
		m.topics[topic] = bucket
	}
	bucket[c.ID] = c
}

func (m *Manager) unsubscribe(c *Connection, topic string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.unsubscribe(topic)
	if bucket, ok := m.topics[topic]; ok {
		delete(bucket, c.ID)
		if len(bucket) == 0 {
			delete(m.topics, topic)
		}
	}
}

// CloseAll forcibly closes every live connection, for graceful
// process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.connections = map[string]*Connection{}
	m.topics = map[string]map[string]*Connection{}
	m.mu.Unlock()

	for _, c := range conns {
		c.markClosed()
		c.Conn.Close()
	}
}
