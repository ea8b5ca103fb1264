package wsserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wsrelay/wsrelay/internal/cache"
	"github.com/wsrelay/wsrelay/internal/frame"
	"github.com/wsrelay/wsrelay/internal/wslog"
)

// relayMessage is the payload published to the cross-replica channel.
// Kind distinguishes a full broadcast from a scoped topic event; the
// receiving replica replays whichever one it is against its own local
// connection set. ID guards against double delivery (see handle).
type relayMessage struct {
	ID     string          `json:"id"`
	PodID  string          `json:"podId"`
	Kind   string          `json:"kind"`
	Path   string          `json:"path"`
	Method frame.Method    `json:"method,omitempty"`
	Data   json.RawMessage `json:"data"`
}

const (
	relayKindBroadcast = "broadcast"
	relayKindEvent     = "event"

	// dedupeTTL bounds how long a relayed message's ID is remembered.
	// Redis Pub/Sub doesn't redeliver under normal operation, but a
	// replica that resubscribes mid-publish (reconnect handshake) can
	// observe the same message twice; this is long enough to cover
	// that window without growing unbounded.
	dedupeTTL = 30 * time.Second
)

// ClusterRelay fans a Manager's broadcasts and topic events out across
// replicas via Redis Pub/Sub, generalizing the teacher's per-agent
// pod-routing keys into one channel per endpoint. Every replica both
// publishes its own local fan-outs and replays peers' publishes
// locally, skipping its own messages by podID to avoid double delivery.
type ClusterRelay struct {
	rdb     *redis.Client
	cache   *cache.Cache
	manager *Manager
	podID   string
	channel string
	cancel  context.CancelFunc
}

// EnableClusterRelay wires a Redis-backed cross-replica relay onto m.
// Subscribing runs in a background goroutine; a broken Redis
// connection degrades to single-replica operation without affecting
// local broadcasts. c.Raw() provides the Pub/Sub connection; c itself
// provides the dedupe guard and publish counter.
func (m *Manager) EnableClusterRelay(c *cache.Cache) {
	if c == nil || c.Raw() == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	relay := &ClusterRelay{
		rdb:     c.Raw(),
		cache:   c,
		manager: m,
		podID:   uuid.NewString(),
		channel: "wsrelay:relay:" + m.Endpoint,
		cancel:  cancel,
	}
	m.relay = relay
	go relay.listen(ctx)
}

// DisableClusterRelay stops the background subscription, if any.
func (m *Manager) DisableClusterRelay() {
	if m.relay != nil {
		m.relay.cancel()
		m.relay = nil
	}
}

// PublishedCount reports how many messages this endpoint's relay has
// published across the cluster, for the /health endpoint. Returns 0
// when the relay isn't enabled.
func (m *Manager) PublishedCount(ctx context.Context) int64 {
	if m.relay == nil {
		return 0
	}
	var count int64
	if err := m.relay.cache.Get(ctx, m.relay.publishedCounterKey(), &count); err != nil {
		return 0
	}
	return count
}

func (r *ClusterRelay) publishedCounterKey() string {
	return r.channel + ":published"
}

func (r *ClusterRelay) listen(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	wslog.WS().Info().Str("channel", r.channel).Msg("cluster relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ctx, msg.Payload)
		}
	}
}

// handle replays a peer's publish locally, first checking the dedupe
// guard so a message observed twice during a resubscribe only ever
// applies once.
func (r *ClusterRelay) handle(ctx context.Context, payload string) {
	var m relayMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		wslog.WS().Warn().Err(err).Msg("cluster relay received malformed message")
		return
	}
	if m.PodID == r.podID {
		return
	}

	fresh, err := r.cache.SetNX(ctx, r.channel+":seen:"+m.ID, true, dedupeTTL)
	if err == nil && !fresh {
		return
	}

	switch m.Kind {
	case relayKindBroadcast:
		r.manager.broadcastLocal(m.Path, json.RawMessage(m.Data), m.Method)
	case relayKindEvent:
		r.manager.emitEventLocal(m.Path, json.RawMessage(m.Data))
	}
}

func (r *ClusterRelay) publish(m relayMessage) {
	m.ID = uuid.NewString()
	payload, err := json.Marshal(m)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to marshal cluster relay message")
		return
	}
	ctx := context.Background()
	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		wslog.WS().Warn().Err(err).Msg("failed to publish cluster relay message")
		return
	}
	if _, err := r.cache.Increment(ctx, r.publishedCounterKey()); err != nil {
		wslog.WS().Debug().Err(err).Msg("failed to increment cluster relay publish counter")
	}
}

func (r *ClusterRelay) publishBroadcast(endpoint, path string, method frame.Method, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to marshal cluster relay broadcast data")
		return
	}
	r.publish(relayMessage{PodID: r.podID, Kind: relayKindBroadcast, Path: path, Method: method, Data: raw})
}

func (r *ClusterRelay) publishEvent(endpoint, topic string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		wslog.WS().Error().Err(err).Msg("failed to marshal cluster relay event data")
		return
	}
	r.publish(relayMessage{PodID: r.podID, Kind: relayKindEvent, Path: topic, Data: raw})
}
