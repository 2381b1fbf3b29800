// Package bus defines the event types that flow between the orchestrator,
// the WebSocket fabric (C9), and its Redis cross-process bridge.
package bus

import "github.com/anna0613/linebot-control-plane/pkg/protocol"

// Event is a server-side broadcast destined for connected dashboards,
// scoped to one bot and one channel (spec §4.9).
type Event struct {
	BotID      string
	LineUserID string
	Channel    string // protocol.Channel* constant
	Payload    interface{}
}

// EventHandler receives broadcasts delivered to a locally registered
// WebSocket client.
type EventHandler func(Event)

// EventPublisher abstracts broadcast so the orchestrator and C8
// dispatcher never depend on the concrete WebSocket registry; fan-out
// to individual sockets is the registry's own concern (gateway.Registry
// keys subscriptions by *gateway.Client, which this package cannot name
// without an import cycle).
type EventPublisher interface {
	Broadcast(event Event)
}

// ToEnvelope renders an Event as the wire envelope sent to clients and
// published on the Redis bridge.
func (e Event) ToEnvelope() protocol.Envelope {
	env := protocol.NewEnvelope(e.Channel, e.BotID, e.Payload)
	env.LineUserID = e.LineUserID
	return env
}
