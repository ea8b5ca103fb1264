// Package router implements the per-endpoint route table and the
// middleware composer described in spec.md §4.2: ordered first-match
// dispatch over (method, pattern, handler, middleware chain) tuples,
// with a default observability middleware prepended to every route.
package router

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/pathmatch"
	"github.com/wsrelay/wsrelay/internal/wserrors"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// Request is the inbound side of a handler invocation (spec.md §3).
type Request struct {
	Data   json.RawMessage
	ID     string
	Params map[string]string
	Query  map[string]string
}

// Context is constructed per inbound frame and passed down the
// middleware chain to the terminal handler.
type Context struct {
	context.Context
	URL      string
	Method   frame.Method
	PluginID string
	IP       string
	Req      *Request

	// Broadcast fans a frame out to every live connection on the owning
	// endpoint. Unset in tests that don't need it.
	Broadcast func(path string, data any, method frame.Method)
	// Subscribe/Unsubscribe adjust this connection's topic memberships.
	Subscribe   func(topic string)
	Unsubscribe func(topic string)
}

// Handler is the terminal step of a route: it may return a value to
// be sent back as the response's data, or an error.
type Handler func(ctx *Context) (any, error)

// Middleware wraps a Next call around further processing. Contract:
// next must be invoked at most once per middleware invocation.
type Middleware func(ctx *Context, next Next) (any, error)

// Next invokes the remainder of the chain.
type Next func() (any, error)

// Route is a single registered endpoint route.
type Route struct {
	Method     frame.Method
	Pattern    string
	matcher    *pathmatch.Matcher
	Handler    Handler
	Middleware []Middleware
	PluginID   string
}

// Table is the ordered list of routes for one endpoint. Dispatch is
// first-match on (pattern test AND method equality); registration
// order is preserved.
type Table struct {
	routes       []*Route
	defaultChain []Middleware
}

// NewTable constructs an empty route table with the default
// observability middleware prepended to every future registration.
func NewTable() *Table {
	return &Table{defaultChain: []Middleware{Observability}}
}

func (t *Table) register(method frame.Method, pattern string, handler Handler, mw []Middleware, pluginID string) {
	r := &Route{
		Method:     method,
		Pattern:    pattern,
		matcher:    pathmatch.Compile(pattern),
		Handler:    handler,
		PluginID:   pluginID,
		Middleware: append(append([]Middleware{}, t.defaultChain...), mw...),
	}
	t.routes = append(t.routes, r)
}

func (t *Table) Get(pattern string, handler Handler, mw ...Middleware) {
	t.register(frame.MethodGET, pattern, handler, mw, "")
}

func (t *Table) Post(pattern string, handler Handler, mw ...Middleware) {
	t.register(frame.MethodPOST, pattern, handler, mw, "")
}

func (t *Table) Put(pattern string, handler Handler, mw ...Middleware) {
	t.register(frame.MethodPUT, pattern, handler, mw, "")
}

func (t *Table) Delete(pattern string, handler Handler, mw ...Middleware) {
	t.register(frame.MethodDELETE, pattern, handler, mw, "")
}

// RegisterPlugin tags a route registration with a plugin id, mirroring
// the route tuple's optional plugin tag (spec.md §3).
func (t *Table) RegisterPlugin(pluginID string, method frame.Method, pattern string, handler Handler, mw ...Middleware) {
	t.register(method, pattern, handler, mw, pluginID)
}

// Match walks the table in registration order and returns the first
// route whose pattern and method both match.
func (t *Table) Match(method frame.Method, path string) (*Route, map[string]string, bool) {
	for _, r := range t.routes {
		if r.Method != method {
			continue
		}
		if params, ok := r.matcher.Match(path); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}

// Dispatch composes a route's middleware chain around its handler and
// invokes it. Double-invocation of next from any middleware raises
// wserrors.MiddlewareMisuse, which Dispatch returns with that kind;
// the server dispatcher sends its message back like any handler error.
func Dispatch(ctx *Context, r *Route) (result any, err error) {
	chain := r.Middleware
	var invoke func(i int) (any, error)
	invoke = func(i int) (any, error) {
		if i >= len(chain) {
			return r.Handler(ctx)
		}
		mw := chain[i]
		called := false
		next := func() (any, error) {
			if called {
				return nil, wserrors.MiddlewareMisuse(middlewareName(i))
			}
			called = true
			return invoke(i + 1)
		}
		return mw(ctx, next)
	}
	return invoke(0)
}

func middlewareName(index int) string {
	return "mw#" + itoa(index)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}

var quietLogs = os.Getenv("WSRELAY_TEST_QUIET_LOGS") == "1"

// Observability is the default middleware prepended to every route:
// it records start time, delegates, and emits a structured log line on
// completion (success or error). Suppressible via
// WSRELAY_TEST_QUIET_LOGS=1 for test output hygiene.
func Observability(ctx *Context, next Next) (any, error) {
	start := time.Now()
	result, err := next()
	if quietLogs {
		return result, err
	}
	duration := time.Since(start)
	ev := wslog.Router().Info()
	if err != nil {
		ev = wslog.Router().Error().Err(err)
	}
	ev = ev.
		Str("method", string(ctx.Method)).
		Str("path", ctx.URL).
		Dur("duration", duration).
		Int64("duration_ms", duration.Milliseconds()).
		Str("client_ip", ctx.IP)
	if ctx.PluginID != "" {
		ev = ev.Str("plugin_id", ctx.PluginID)
	}
	ev.Msg("route dispatched")
	return result, err
}
