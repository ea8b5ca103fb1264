// Package wsclient implements the client half of the protocol
// (spec.md §4.6): a reconnecting WebSocket connection that queues
// outbound frames while disconnected, correlates responses to pending
// requests by id, dispatches unsolicited broadcasts/events to
// registered listeners by path pattern, and enforces a per-request
// timeout.
package wsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/pathmatch"
	"github.com/wsrelay/wsrelay/internal/wserrors"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// State is one of the client's lifecycle states.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config configures a Client.
type Config struct {
	URL                string
	RequestTimeout     time.Duration
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	Dialer             *websocket.Dialer
}

func (c *Config) setDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

type pendingRequest struct {
	resultCh chan pendingResult
	timer    *time.Timer
}

type pendingResult struct {
	data json.RawMessage
	err  error
}

// Listener receives frames whose URL matches Pattern and were not
// correlated to a pending request (broadcasts and topic events).
type Listener struct {
	Pattern string
	matcher *pathmatch.Matcher
	Handle  func(f *frame.Frame, params map[string]string)
}

// Client is one reconnecting connection to a wsrelay endpoint.
type Client struct {
	cfg Config

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	queue   [][]byte
	pending map[string]*pendingRequest

	listenersMu sync.RWMutex
	listeners   []*Listener

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Client. Call Start to begin connecting.
func New(cfg Config) *Client {
	cfg.setDefaults()
	return &Client{
		cfg:     cfg,
		pending: map[string]*pendingRequest{},
		closed:  make(chan struct{}),
	}
}

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listen registers a callback for inbound frames whose URL matches
// pattern. Patterns use the same `:name` capture syntax as server routes.
func (c *Client) Listen(pattern string, handle func(f *frame.Frame, params map[string]string)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, &Listener{
		Pattern: pattern,
		matcher: pathmatch.Compile(pattern),
		Handle:  handle,
	})
}

// Start begins the connect/reconnect loop in a background goroutine.
func (c *Client) Start() {
	go c.connectLoop()
}

func (c *Client) connectLoop() {
	attempt := 0
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		c.setState(Connecting)
		conn, _, err := c.cfg.Dialer.Dial(c.cfg.URL, nil)
		if err != nil {
			wslog.Client().Debug().Err(err).Str("url", c.cfg.URL).Msg("dial failed, backing off")
			if !c.sleepBackoff(attempt) {
				return
			}
			attempt++
			continue
		}
		attempt = 0

		c.mu.Lock()
		c.conn = conn
		c.state = Open
		queued := c.queue
		c.queue = nil
		c.mu.Unlock()

		for _, payload := range queued {
			if err := c.writeRaw(payload); err != nil {
				break
			}
		}

		c.readLoop(conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		wasClosing := c.state == Closing
		c.state = Disconnected
		c.mu.Unlock()

		if wasClosing {
			return
		}
		if !c.sleepBackoff(attempt) {
			return
		}
		attempt++
	}
}

// sleepBackoff waits an exponential, capped delay. Returns false if the
// client was closed during the wait.
func (c *Client) sleepBackoff(attempt int) bool {
	delay := c.cfg.ReconnectBaseDelay * time.Duration(1<<uint(minInt(attempt, 10)))
	if delay > c.cfg.ReconnectMaxDelay {
		delay = c.cfg.ReconnectMaxDelay
	}
	select {
	case <-time.After(delay):
		return true
	case <-c.closed:
		return false
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close transitions to Closing, rejects all pending requests, clears
// the outbound queue, and closes the socket.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.mu.Lock()
	c.state = Closing
	conn := c.conn
	pending := c.pending
	c.pending = map[string]*pendingRequest{}
	c.queue = nil
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		select {
		case p.resultCh <- pendingResult{err: fmt.Errorf("client closed")}:
		default:
		}
	}
	if conn != nil {
		conn.Close()
	}
}

// Send transmits a fire-and-forget frame (no id, no response expected).
func (c *Client) Send(path string, data any) error {
	f, err := frame.Marshal(path, frame.MethodPOST, "", data)
	if err != nil {
		return err
	}
	return c.enqueueOrWrite(f)
}

// Request issues a correlated request and blocks until the response
// arrives, the context is cancelled, or the client's request timeout
// elapses, whichever comes first.
func (c *Client) Request(ctx context.Context, method frame.Method, path string, data any) (json.RawMessage, error) {
	id := frame.NewID()
	f, err := frame.Marshal(path, method, id, data)
	if err != nil {
		return nil, err
	}

	p := &pendingRequest{resultCh: make(chan pendingResult, 1)}
	c.mu.Lock()
	c.pending[id] = p
	c.mu.Unlock()

	p.timer = time.AfterFunc(c.cfg.RequestTimeout, func() {
		c.settlePending(id, pendingResult{err: wserrors.ClientTimeout()})
	})
	defer p.timer.Stop()

	if err := c.enqueueOrWrite(f); err != nil {
		c.settlePending(id, pendingResult{err: err})
	}

	select {
	case res := <-p.resultCh:
		return res.data, res.err
	case <-ctx.Done():
		c.settlePending(id, pendingResult{err: ctx.Err()})
		return nil, ctx.Err()
	}
}

func (c *Client) settlePending(id string, res pendingResult) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		select {
		case p.resultCh <- res:
		default:
		}
	}
}

func (c *Client) enqueueOrWrite(f *frame.Frame) error {
	payload, err := frame.Encode(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.state != Open || c.conn == nil {
		c.queue = append(c.queue, payload)
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()
	return c.writeToConn(conn, payload)
}

func (c *Client) writeRaw(payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no active connection")
	}
	return c.writeToConn(conn, payload)
}

func (c *Client) writeToConn(conn *websocket.Conn, payload []byte) error {
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			wslog.Client().Debug().Err(err).Msg("websocket read loop ended")
			return
		}
		c.handleMessage(raw)
	}
}

func (c *Client) handleMessage(raw []byte) {
	f, err := frame.Decode(raw)
	if err != nil {
		c.dispatchProtocolError(wserrors.ClientProtocolError("Invalid JSON"))
		return
	}
	if f.URL == "" {
		c.dispatchProtocolError(wserrors.ClientProtocolError("Invalid message format"))
		return
	}

	if f.ID != "" {
		c.mu.Lock()
		p, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			res := pendingResult{data: f.Data}
			var errBody struct {
				Error string `json:"error"`
			}
			if len(f.Data) > 0 && json.Unmarshal(f.Data, &errBody) == nil && errBody.Error != "" {
				res.err = fmt.Errorf("%s", errBody.Error)
				res.data = nil
			}
			c.settlePending(f.ID, res)
			return
		}
	}

	c.dispatchListener(f, nil)
}

// dispatchProtocolError surfaces a malformed inbound frame to "error"
// listeners, tagged with the typed client-protocol error kind rather
// than an ad-hoc string so callers can distinguish it from a
// server-reported handler error.
func (c *Client) dispatchProtocolError(e *wserrors.WSError) {
	c.dispatchListener(&frame.Frame{URL: "error"}, map[string]string{"reason": e.ToFrameError(), "kind": string(e.Kind)})
}

func (c *Client) dispatchListener(f *frame.Frame, errParams map[string]string) {
	if f.URL == "error" {
		c.listenersMu.RLock()
		defer c.listenersMu.RUnlock()
		for _, l := range c.listeners {
			if l.Pattern == "error" {
				l.Handle(f, errParams)
			}
		}
		return
	}

	path, _ := frame.SplitURL(f.URL)
	c.listenersMu.RLock()
	defer c.listenersMu.RUnlock()
	for _, l := range c.listeners {
		if params, ok := l.matcher.Match(path); ok {
			l.Handle(f, params)
		}
	}
}
