package gateway

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anna0613/linebot-control-plane/pkg/protocol"
)

// socketKind distinguishes the two endpoint shapes from spec §4.9.
type socketKind int

const (
	kindBot socketKind = iota
	kindDashboard
)

// Client wraps one upgraded WebSocket connection.
type Client struct {
	id       string
	kind     socketKind
	botID    string // set for kindBot
	userID   string // set for kindDashboard
	conn     *websocket.Conn
	registry *Registry
	send     chan protocol.Envelope
	done     chan struct{}
}

func newClient(id string, kind socketKind, botID, userID string, conn *websocket.Conn, reg *Registry) *Client {
	return &Client{
		id:       id,
		kind:     kind,
		botID:    botID,
		userID:   userID,
		conn:     conn,
		registry: reg,
		send:     make(chan protocol.Envelope, 64),
		done:     make(chan struct{}),
	}
}

// Send enqueues an envelope for delivery; never blocks the caller —
// broadcasts must stay best-effort (spec §7 broadcast_failed).
func (c *Client) Send(env protocol.Envelope) {
	select {
	case c.send <- env:
	default:
		slog.Warn("ws.client_backpressure_drop", "id", c.id)
	}
}

// run pumps writes until the connection closes and reads control frames
// from the client.
func (c *Client) run() {
	go c.writePump()
	c.Send(protocol.NewEnvelope(protocol.KindConnected, c.botID, map[string]string{"client_id": c.id}))

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			close(c.done)
			return
		}
		c.handleControlFrame(raw)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case env := <-c.send:
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

type controlFrame struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

func (c *Client) handleControlFrame(raw []byte) {
	var frame controlFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.Send(protocol.NewEnvelope(protocol.KindError, c.botID, map[string]string{"error": "malformed frame"}))
		return
	}

	switch frame.Type {
	case protocol.ControlPing:
		env := protocol.NewEnvelope(protocol.KindPong, c.botID, json.RawMessage(frame.Timestamp))
		c.Send(env)
	case protocol.ControlSubscribeAnalytics:
		c.registry.Subscribe(c, protocol.ChannelAnalyticsUpdate)
		c.Send(protocol.NewEnvelope(protocol.KindSubscribed, c.botID, map[string]string{"channel": protocol.ChannelAnalyticsUpdate}))
	case protocol.ControlSubscribeActivities:
		c.registry.Subscribe(c, protocol.ChannelActivityUpdate)
		c.Send(protocol.NewEnvelope(protocol.KindSubscribed, c.botID, map[string]string{"channel": protocol.ChannelActivityUpdate}))
	case protocol.ControlSubscribeWebhookStatus:
		c.registry.Subscribe(c, protocol.ChannelWebhookStatus)
		c.Send(protocol.NewEnvelope(protocol.KindSubscribed, c.botID, map[string]string{"channel": protocol.ChannelWebhookStatus}))
	case protocol.ControlGetInitialData:
		c.registry.Subscribe(c, protocol.ChannelChatMessage)
		c.registry.Subscribe(c, protocol.ChannelNewUserMessage)
		c.Send(protocol.NewEnvelope(protocol.KindInitialData, c.botID, map[string]interface{}{
			"bot_id": c.botID,
		}))
	default:
		c.Send(protocol.NewEnvelope(protocol.KindError, c.botID, map[string]string{"error": "unknown control frame: " + frame.Type}))
	}
}

// closeDeadline bounds how long a graceful close waits for the peer.
const closeDeadline = 5 * time.Second
