package devctx

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wsrelay/wsrelay/internal/wslog"
)

// NATSFanout republishes devctx ring entries onto NATS so an external
// tailer can follow live diagnostics across replicas. Construction
// never fails: when url is empty or the broker is unreachable, it
// returns a disabled fan-out whose Publish calls are no-ops, following
// the teacher's connect-or-gracefully-disable convention.
type NATSFanout struct {
	conn    *nats.Conn
	enabled bool
}

// NewNATSFanout connects to the given NATS URL and returns a Fanout.
func NewNATSFanout(url string) *NATSFanout {
	if url == "" {
		wslog.DevCtx().Info().Msg("NATS_URL not configured, devctx fan-out disabled")
		return &NATSFanout{enabled: false}
	}

	opts := []nats.Option{
		nats.Name("wsrelay-devctx"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				wslog.DevCtx().Warn().Err(err).Msg("devctx fan-out disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			wslog.DevCtx().Info().Str("url", nc.ConnectedUrl()).Msg("devctx fan-out reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			wslog.DevCtx().Warn().Err(err).Msg("devctx fan-out error")
		}),
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		wslog.DevCtx().Warn().Err(err).Str("url", url).Msg("failed to connect devctx fan-out, disabling")
		return &NATSFanout{enabled: false}
	}

	wslog.DevCtx().Info().Str("url", conn.ConnectedUrl()).Msg("devctx fan-out connected")
	return &NATSFanout{conn: conn, enabled: true}
}

// IsEnabled reports whether the fan-out is actively publishing.
func (f *NATSFanout) IsEnabled() bool {
	return f.enabled
}

// Publish implements Fanout. Marshal failures and publish errors are
// logged and swallowed: devctx fan-out is diagnostics, never allowed
// to affect the request path that produced the entry.
func (f *NATSFanout) Publish(subject string, e Entry) {
	if !f.enabled {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		wslog.DevCtx().Warn().Err(err).Msg("failed to marshal devctx entry for fan-out")
		return
	}
	if err := f.conn.Publish(subject, payload); err != nil {
		wslog.DevCtx().Warn().Err(err).Str("subject", subject).Msg("failed to publish devctx entry")
	}
}

// Close drains and closes the underlying NATS connection, if any.
func (f *NATSFanout) Close() {
	if f.conn != nil {
		f.conn.Drain()
		f.conn.Close()
	}
}
