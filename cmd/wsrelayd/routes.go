package main

import (
	"encoding/json"

	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/router"
)

// sanitizeHTML is the middleware named in SPEC_FULL.md §4.1: routes
// that echo user content back to other clients (chat, notifications)
// strip HTML from every string leaf of the inbound payload before the
// handler ever sees it.
func sanitizeHTML(ctx *router.Context, next router.Next) (any, error) {
	if ctx.Req != nil && len(ctx.Req.Data) > 0 {
		clean, err := frame.Sanitize(ctx.Req.Data)
		if err == nil {
			ctx.Req.Data = clean
		}
	}
	return next()
}

type chatMessage struct {
	Text string `json:"text"`
}

// registerWSRoutes wires the application routes exposed on the /ws
// endpoint: a liveness probe and a per-room chat topic exercising
// subscribe/unsubscribe/broadcast.
func registerWSRoutes(t *router.Table) {
	t.Get("/api/ping", func(ctx *router.Context) (any, error) {
		return map[string]any{"pong": true}, nil
	})

	t.Post("/api/chat/:room/subscribe", func(ctx *router.Context) (any, error) {
		ctx.Subscribe("chat:" + ctx.Req.Params["room"])
		return nil, nil
	})

	t.Post("/api/chat/:room/unsubscribe", func(ctx *router.Context) (any, error) {
		ctx.Unsubscribe("chat:" + ctx.Req.Params["room"])
		return nil, nil
	})

	t.Post("/api/chat/:room/publish", func(ctx *router.Context) (any, error) {
		var msg chatMessage
		if err := json.Unmarshal(ctx.Req.Data, &msg); err != nil {
			return nil, err
		}
		ctx.Broadcast("chat:"+ctx.Req.Params["room"], msg, frame.MethodPOST)
		return map[string]any{"delivered": true}, nil
	}, sanitizeHTML)
}

// registerBunchyRoutes wires the application routes exposed on the
// /bunchy endpoint: a generic notifications topic, independent of the
// chat routes above (distinct endpoint, distinct connection set and
// topic namespace per spec.md §4.4).
func registerBunchyRoutes(t *router.Table) {
	t.Get("/api/ping", func(ctx *router.Context) (any, error) {
		return map[string]any{"pong": true}, nil
	})

	t.Post("/api/notifications/subscribe", func(ctx *router.Context) (any, error) {
		ctx.Subscribe("notifications")
		return nil, nil
	})

	t.Post("/api/notifications/unsubscribe", func(ctx *router.Context) (any, error) {
		ctx.Unsubscribe("notifications")
		return nil, nil
	})
}
