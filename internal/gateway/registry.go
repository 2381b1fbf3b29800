package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/anna0613/linebot-control-plane/internal/bus"
	"github.com/anna0613/linebot-control-plane/pkg/protocol"
)

// subKey identifies one (bot, channel) subscription set.
type subKey struct {
	botID   string
	channel string
}

// Registry is the process-local WebSocket connection registry plus the
// Redis pub/sub bridge that makes broadcasts visible across processes
// (spec §4.9, §5 "Shared-resource policy"). The registry is the only
// thing that knows about locally connected sockets; the Redis channel
// ws:{topic}:{bot_id} is the only authoritative cross-process channel.
type Registry struct {
	nodeID string
	rdb    *redis.Client

	mu       sync.RWMutex
	clients  map[string]*Client            // client id -> client
	subs     map[subKey]map[string]*Client  // (bot,channel) -> client id -> client
	dedup    map[string]*lruSet            // bot id -> recent line_message_ids

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistry builds a Registry. rdb may be nil, in which case the
// fabric operates single-process only (no cross-process bridge) — this
// is a valid, documented degraded mode, not an error.
func NewRegistry(rdb *redis.Client) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		nodeID:  uuid.NewString(),
		rdb:     rdb,
		clients: make(map[string]*Client),
		subs:    make(map[subKey]map[string]*Client),
		dedup:   make(map[string]*lruSet),
		ctx:     ctx,
		cancel:  cancel,
	}
	if rdb != nil {
		go r.subscribeLoop()
	}
	return r
}

// Close stops the Redis subscriber loop, if running.
func (r *Registry) Close() { r.cancel() }

// Register adds a connected client to the registry.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
	slog.Info("ws.client_connected", "id", c.id, "bot_id", c.botID)
}

// Unregister releases all registry slots for a disconnected client
// deterministically (spec §3 "Ownership").
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c.id)
	for key, set := range r.subs {
		delete(set, c.id)
		if len(set) == 0 {
			delete(r.subs, key)
		}
	}
	slog.Info("ws.client_disconnected", "id", c.id, "bot_id", c.botID)
}

// Subscribe adds a client to the (bot, channel) fan-out set.
func (r *Registry) Subscribe(c *Client, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := subKey{botID: c.botID, channel: channel}
	if r.subs[key] == nil {
		r.subs[key] = make(map[string]*Client)
	}
	r.subs[key][c.id] = c
}

// Broadcast delivers event to locally registered sockets for (bot, channel)
// and publishes it to the Redis bridge for other processes. Best-effort:
// failures are logged, never propagated to the webhook ACK (spec §7
// broadcast_failed).
func (r *Registry) Broadcast(event bus.Event) {
	if event.Channel == protocol.ChannelChatMessage || event.Channel == protocol.ChannelNewUserMessage {
		if id := lineMessageIDOf(event.Payload); id != "" && r.isDuplicate(event.BotID, id) {
			return
		}
	}

	env := event.ToEnvelope()
	r.deliverLocal(event.BotID, event.Channel, env)

	if r.rdb == nil {
		return
	}
	env.Meta = &protocol.Meta{Source: r.nodeID}
	payload, err := json.Marshal(env)
	if err != nil {
		slog.Error("ws.broadcast_marshal_failed", "error", err)
		return
	}
	topic := protocol.RedisTopic(event.Channel, event.BotID)
	if err := r.rdb.Publish(r.ctx, topic, payload).Err(); err != nil {
		slog.Error("ws.broadcast_publish_failed", "topic", topic, "error", err)
	}
}

func (r *Registry) deliverLocal(botID, channel string, env protocol.Envelope) {
	r.mu.RLock()
	key := subKey{botID: botID, channel: channel}
	targets := make([]*Client, 0, len(r.subs[key]))
	for _, c := range r.subs[key] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(env)
	}
}

// subscribeLoop reads ws:* from Redis and delivers to local sockets only,
// skipping frames this node itself published (spec §4.9 "tagging outbound
// payloads with a node id so the originating process does not echo to
// itself").
func (r *Registry) subscribeLoop() {
	pubsub := r.rdb.PSubscribe(r.ctx, "ws:*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env protocol.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("ws.bridge_decode_failed", "error", err)
				continue
			}
			if env.Meta != nil && env.Meta.Source == r.nodeID {
				continue // our own publish, echoed back by Redis
			}
			channel := topicChannel(msg.Channel)
			r.deliverLocal(env.BotID, channel, env)
		}
	}
}

func topicChannel(redisChannel string) string {
	// "ws:{topic}:{bot_id}" -> "{topic}"
	const prefix = "ws:"
	s := redisChannel
	if len(s) > len(prefix) && s[:len(prefix)] == prefix {
		s = s[len(prefix):]
	}
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i]
		}
	}
	return s
}

func lineMessageIDOf(payload interface{}) string {
	m, ok := payload.(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := m["line_message_id"].(string)
	return id
}

func (r *Registry) isDuplicate(botID, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.dedup[botID]
	if !ok {
		set = newLRUSet(1000)
		r.dedup[botID] = set
	}
	return !set.addIfAbsent(id)
}
