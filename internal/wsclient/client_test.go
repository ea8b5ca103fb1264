package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/router"
	"github.com/wsrelay/wsrelay/internal/session"
	"github.com/wsrelay/wsrelay/internal/wserrors"
	"github.com/wsrelay/wsrelay/internal/wsserver"
)

func newTestServer(t *testing.T, table *router.Table) (*wsserver.Manager, string) {
	t.Helper()
	m := wsserver.NewManager("/ws", table, session.NewStore("wsrelay_sid"), nil)
	srv := httptest.NewServer(http.HandlerFunc(m.HandleUpgrade))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return m, url
}

func newConnectedClient(t *testing.T, url string) *Client {
	t.Helper()
	c := New(Config{URL: url, RequestTimeout: 2 * time.Second})
	c.Start()
	t.Cleanup(c.Close)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == Open {
			return c
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("client did not reach Open state")
	return nil
}

func TestRequestResolvesWithResponseData(t *testing.T) {
	table := router.NewTable()
	table.Get("/api/test", func(ctx *router.Context) (any, error) {
		return map[string]any{"success": true, "data": "test"}, nil
	})
	_, url := newTestServer(t, table)
	c := newConnectedClient(t, url)

	data, err := c.Request(context.Background(), frame.MethodGET, "/api/test", nil)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"success":true`)
}

func TestRequestRejectsOnHandlerError(t *testing.T) {
	table := router.NewTable()
	table.Get("/api/error", func(ctx *router.Context) (any, error) {
		return nil, errText("Test error")
	})
	_, url := newTestServer(t, table)
	c := newConnectedClient(t, url)

	_, err := c.Request(context.Background(), frame.MethodGET, "/api/error", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Test error")
}

func TestRequestRejectsOnNoRouteMatched(t *testing.T) {
	table := router.NewTable()
	_, url := newTestServer(t, table)
	c := newConnectedClient(t, url)

	_, err := c.Request(context.Background(), frame.MethodGET, "/api/nonexistent", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No route matched")
}

func TestConcurrentParameterCaptureRequests(t *testing.T) {
	table := router.NewTable()
	table.Get("/api/test/:id", func(ctx *router.Context) (any, error) {
		return map[string]any{"id": ctx.Req.Params["id"]}, nil
	})
	_, url := newTestServer(t, table)
	c := newConnectedClient(t, url)

	var wg sync.WaitGroup
	results := make([]string, 3)
	for i, id := range []string{"1", "2", "3"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			data, err := c.Request(context.Background(), frame.MethodGET, "/api/test/"+id, nil)
			require.NoError(t, err)
			results[i] = string(data)
		}(i, id)
	}
	wg.Wait()
	assert.Contains(t, results[0], `"1"`)
	assert.Contains(t, results[1], `"2"`)
	assert.Contains(t, results[2], `"3"`)
}

func TestListenerReceivesBroadcast(t *testing.T) {
	table := router.NewTable()
	m, url := newTestServer(t, table)
	c := newConnectedClient(t, url)

	received := make(chan string, 1)
	c.Listen("/test", func(f *frame.Frame, params map[string]string) {
		received <- string(f.Data)
	})

	time.Sleep(50 * time.Millisecond)
	m.Broadcast("/test", map[string]any{"message": "hi"}, frame.MethodPOST)

	select {
	case data := <-received:
		assert.Contains(t, data, "hi")
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not receive broadcast")
	}
}

func TestRequestTimesOutWhenHandlerRespondsLate(t *testing.T) {
	table := router.NewTable()
	table.Get("/api/hang", func(ctx *router.Context) (any, error) {
		// The route exists, but its handler blocks past the client
		// timeout, so the response arrives too late to settle the request.
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	})
	_, url := newTestServer(t, table)
	c := New(Config{URL: url, RequestTimeout: 50 * time.Millisecond})
	c.Start()
	defer c.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && c.State() != Open {
		time.Sleep(10 * time.Millisecond)
	}

	_, err := c.Request(context.Background(), frame.MethodGET, "/api/hang", nil)
	require.Error(t, err)
}

func TestHandleMessageDispatchesTypedProtocolErrorOnMalformedJSON(t *testing.T) {
	c := New(Config{URL: "ws://unused"})

	received := make(chan map[string]string, 1)
	c.Listen("error", func(f *frame.Frame, params map[string]string) {
		received <- params
	})

	c.handleMessage([]byte("not json"))

	select {
	case params := <-received:
		assert.Equal(t, "Invalid JSON", params["reason"])
		assert.Equal(t, string(wserrors.KindClientProtocolError), params["kind"])
	case <-time.After(time.Second):
		t.Fatal("error listener was not invoked")
	}
}

type errText string

func (e errText) Error() string { return string(e) }
