package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/wserrors"
)

func newCtx(method frame.Method, url string) *Context {
	return &Context{
		Context: context.Background(),
		URL:     url,
		Method:  method,
		Req:     &Request{Params: map[string]string{}},
	}
}

func TestFirstMatchDispatch(t *testing.T) {
	tbl := NewTable()
	firstCalled, secondCalled := false, false
	tbl.Get("/api/test", func(ctx *Context) (any, error) {
		firstCalled = true
		return "first", nil
	})
	tbl.Get("/api/test", func(ctx *Context) (any, error) {
		secondCalled = true
		return "second", nil
	})

	r, params, ok := tbl.Match(frame.MethodGET, "/api/test")
	require.True(t, ok)
	result, err := Dispatch(newCtx(frame.MethodGET, "/api/test"), r)
	require.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.True(t, firstCalled)
	assert.False(t, secondCalled)
	assert.Empty(t, params)
}

func TestParamCapture(t *testing.T) {
	tbl := NewTable()
	tbl.Get("/api/test/:id", func(ctx *Context) (any, error) {
		return ctx.Req.Params["id"], nil
	})
	r, params, ok := tbl.Match(frame.MethodGET, "/api/test/42")
	require.True(t, ok)
	ctx := newCtx(frame.MethodGET, "/api/test/42")
	ctx.Req.Params = params
	result, err := Dispatch(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "42", result)
}

func TestNoMatch(t *testing.T) {
	tbl := NewTable()
	tbl.Get("/api/test", func(ctx *Context) (any, error) { return nil, nil })
	_, _, ok := tbl.Match(frame.MethodGET, "/api/nonexistent")
	assert.False(t, ok)
}

func TestMiddlewareOrder(t *testing.T) {
	tbl := NewTable()
	var order []string
	mw := func(name string) Middleware {
		return func(ctx *Context, next Next) (any, error) {
			order = append(order, name+":enter")
			v, err := next()
			order = append(order, name+":exit")
			return v, err
		}
	}
	tbl.Get("/a", func(ctx *Context) (any, error) {
		order = append(order, "handler")
		return nil, nil
	}, mw("m1"), mw("m2"), mw("m3"))

	r, _, ok := tbl.Match(frame.MethodGET, "/a")
	require.True(t, ok)
	_, err := Dispatch(newCtx(frame.MethodGET, "/a"), r)
	require.NoError(t, err)

	// Observability is prepended but records nothing in order, so only
	// m1, m2, m3 and the handler appear.
	var filtered []string
	for _, e := range order {
		filtered = append(filtered, e)
	}
	assert.Equal(t, []string{"m1:enter", "m2:enter", "m3:enter", "handler", "m3:exit", "m2:exit", "m1:exit"}, filtered)
}

func TestMiddlewareDoubleNextRaisesMisuse(t *testing.T) {
	tbl := NewTable()
	tbl.Get("/a", func(ctx *Context) (any, error) {
		return "ok", nil
	}, func(ctx *Context, next Next) (any, error) {
		_, _ = next()
		return next()
	})

	r, _, ok := tbl.Match(frame.MethodGET, "/a")
	require.True(t, ok)
	_, err := Dispatch(newCtx(frame.MethodGET, "/a"), r)
	require.Error(t, err)
	wsErr, ok := err.(*wserrors.WSError)
	require.True(t, ok)
	assert.Equal(t, wserrors.KindMiddlewareMisuse, wsErr.Kind)
}

func TestHandlerError(t *testing.T) {
	tbl := NewTable()
	tbl.Get("/api/error", func(ctx *Context) (any, error) {
		return nil, assertErr("Test error")
	})
	r, _, ok := tbl.Match(frame.MethodGET, "/api/error")
	require.True(t, ok)
	_, err := Dispatch(newCtx(frame.MethodGET, "/api/error"), r)
	require.Error(t, err)
	assert.Equal(t, "Test error", err.Error())
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
