package wsserver

import (
	"context"

	"github.com/gorilla/websocket"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/router"
	"github.com/wsrelay/wsrelay/internal/wserrors"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// readLoop owns one connection's inbound stream: it blocks reading
// messages until the socket closes, dispatching each one in turn
// (preserving per-connection order per spec.md §5), then tears the
// connection down.
func (m *Manager) readLoop(c *Connection) {
	defer m.closeConnection(c)

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wslog.WS().Debug().Err(err).Str("connection_id", c.ID).Msg("websocket read error")
			}
			return
		}
		m.handleMessage(c, raw)
	}
}

// handleMessage implements spec.md §4.3's dispatch steps 1-7 for one
// inbound frame.
func (m *Manager) handleMessage(c *Connection, raw []byte) {
	f, err := frame.Decode(raw)
	if err != nil {
		wslog.WS().Debug().Err(err).Str("connection_id", c.ID).Msg("invalid JSON message")
		m.trySend(c, frame.ErrorFrame("", "Invalid JSON message"))
		return
	}

	if f.URL == "" {
		wslog.WS().Debug().Str("connection_id", c.ID).Msg("missing url field")
		m.trySend(c, frame.ErrorFrame(f.ID, "Missing required field: url"))
		return
	}

	path, query := frame.SplitURL(f.URL)

	route, params, ok := m.Table.Match(f.Method, path)
	if !ok {
		if f.ID != "" {
			m.trySend(c, frame.ErrorFrame(f.ID, wserrors.NoRouteMatched(string(f.Method), f.URL).Message))
		} else {
			wslog.WS().Debug().Str("connection_id", c.ID).Str("url", f.URL).Msg("no route matched, dropping")
		}
		return
	}

	ctx := &router.Context{
		Context: context.Background(),
		URL:     f.URL,
		Method:  f.Method,
		IP:      c.IP,
		Req: &router.Request{
			Data:   f.Data,
			ID:     f.ID,
			Params: params,
			Query:  query,
		},
		Broadcast: func(p string, data any, method frame.Method) {
			m.Broadcast(p, data, method)
		},
		Subscribe:   func(topic string) { m.subscribe(c, topic) },
		Unsubscribe: func(topic string) { m.unsubscribe(c, topic) },
	}
	if route.PluginID != "" {
		ctx.PluginID = route.PluginID
	}

	result, handlerErr := router.Dispatch(ctx, route)

	if f.ID == "" {
		return
	}

	if handlerErr != nil {
		message := handlerErr.Error()
		if wsErr, ok := handlerErr.(*wserrors.WSError); ok {
			message = wsErr.Message
		}
		errResp, err := frame.Marshal(f.URL, f.Method, f.ID, map[string]string{"error": message})
		if err != nil {
			wslog.WS().Error().Err(err).Msg("failed to marshal error response frame")
			return
		}
		m.trySend(c, errResp)
		return
	}

	resp, err := frame.Marshal(f.URL, f.Method, f.ID, result)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to marshal response frame")
		return
	}
	m.trySend(c, resp)
}

// trySend attempts to write a frame, marking the connection dead and
// reaping it on failure (spec.md §4.3's send-failure handling).
func (m *Manager) trySend(c *Connection, f *frame.Frame) {
	if err := c.send(f); err != nil {
		wslog.WS().Debug().Err(err).Str("connection_id", c.ID).Msg("send failed, marking connection dead")
		c.markClosed()
		m.reap([]*Connection{c})
	}
}
