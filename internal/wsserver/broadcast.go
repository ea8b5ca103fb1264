package wsserver

import (
	"github.com/gorilla/websocket"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// Broadcast fans a frame out to every live connection on this
// endpoint (spec.md §4.4). The payload is serialized once; any
// connection whose send fails is collected and reaped after the loop.
func (m *Manager) Broadcast(path string, data any, method frame.Method) {
	if method == "" {
		method = frame.MethodPOST
	}
	m.broadcastLocal(path, data, method)

	if m.relay != nil {
		m.relay.publishBroadcast(m.Endpoint, path, method, data)
	}
}

// broadcastLocal performs the fan-out against this process's own
// connection set only, without touching the cluster relay. Used both
// by Broadcast and by the relay itself when replaying a peer's publish.
func (m *Manager) broadcastLocal(path string, data any, method frame.Method) {
	f, err := frame.Marshal(path, method, "", data)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to marshal broadcast frame")
		return
	}
	payload, err := frame.Encode(f)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to encode broadcast frame")
		return
	}

	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	dead := m.fanOutRaw(conns, payload)
	m.reap(dead)
}

// EmitEvent delivers a frame to exactly the connections currently
// subscribed to topic (spec.md §4.4's topic-event contract).
func (m *Manager) EmitEvent(topic string, data any) {
	m.emitEventLocal(topic, data)

	if m.relay != nil {
		m.relay.publishEvent(m.Endpoint, topic, data)
	}
}

func (m *Manager) emitEventLocal(topic string, data any) {
	f, err := frame.Marshal(topic, frame.MethodPOST, "", data)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to marshal topic event frame")
		return
	}
	payload, err := frame.Encode(f)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to encode topic event frame")
		return
	}

	m.mu.RLock()
	bucket := m.topics[topic]
	conns := make([]*Connection, 0, len(bucket))
	for _, c := range bucket {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	dead := m.fanOutRaw(conns, payload)
	m.reap(dead)
}

// fanOutRaw writes pre-encoded bytes to every connection in conns,
// returning those whose write failed or were already not open.
func (m *Manager) fanOutRaw(conns []*Connection, payload []byte) []*Connection {
	var dead []*Connection
	for _, c := range conns {
		if !c.isOpen() {
			dead = append(dead, c)
			continue
		}
		c.writeMu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, payload)
		c.writeMu.Unlock()
		if err != nil {
			wslog.WS().Debug().Err(err).Str("connection_id", c.ID).Msg("fan-out send failed, marking dead")
			c.markClosed()
			dead = append(dead, c)
		}
	}
	return dead
}
