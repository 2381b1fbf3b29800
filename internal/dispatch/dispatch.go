// Package dispatch implements the Reply Dispatcher (C8): send-once
// reply-token semantics, falling back to push, with a conversation
// append and a WebSocket broadcast per successful send (spec §4.8).
package dispatch

import (
	"context"
	"fmt"

	"github.com/anna0613/linebot-control-plane/internal/bus"
	"github.com/anna0613/linebot-control-plane/internal/convo"
	"github.com/anna0613/linebot-control-plane/internal/lineapi"
)

// Sender is the LINE transport C8 depends on.
type Sender interface {
	Reply(ctx context.Context, replyToken string, messages []lineapi.Message) error
	Push(ctx context.Context, to string, messages []lineapi.Message) error
}

// Outbound is one message to send, pre-resolved from a logic.Reply or
// an LLM answer into wire form plus the conversation fields needed to
// record it.
type Outbound struct {
	Line        lineapi.Message
	MessageType string // text | image | sticker | flex
	Content     map[string]interface{}
	MediaURL    string
}

// Dispatcher holds the sender, conversation store and publisher shared by
// all Invocations; each Invocation tracks reply-token usage for one
// webhook delivery (spec §4.8: reply mode exactly once, then push for the
// rest).
type Dispatcher struct {
	sender Sender
	convo  convo.Store
	bus    bus.EventPublisher
}

func NewDispatcher(sender Sender, conv convo.Store, publisher bus.EventPublisher) *Dispatcher {
	return &Dispatcher{sender: sender, convo: conv, bus: publisher}
}

// Invocation scopes reply-token-once state to one webhook delivery.
type Invocation struct {
	d          *Dispatcher
	botID      string
	lineUserID string
	replyToken string
	usedReply  bool
}

func (d *Dispatcher) NewInvocation(botID, lineUserID, replyToken string) *Invocation {
	return &Invocation{d: d, botID: botID, lineUserID: lineUserID, replyToken: replyToken}
}

// Send transmits one Outbound message, using reply-mode exactly once
// per invocation and push-mode thereafter, then records it via
// convo.AppendBot and broadcasts a chat_message event (spec §4.8).
func (inv *Invocation) Send(ctx context.Context, out Outbound) error {
	if inv.replyToken != "" && !inv.usedReply {
		if err := inv.d.sender.Reply(ctx, inv.replyToken, []lineapi.Message{out.Line}); err != nil {
			return fmt.Errorf("reply send: %w", err)
		}
		inv.usedReply = true
	} else {
		if err := inv.d.sender.Push(ctx, inv.lineUserID, []lineapi.Message{out.Line}); err != nil {
			return fmt.Errorf("push send: %w", err)
		}
	}

	msg, err := inv.d.convo.AppendBot(ctx, inv.botID, inv.lineUserID, out.Content, out.MessageType, out.MediaURL)
	if err != nil {
		return fmt.Errorf("append bot message: %w", err)
	}

	if inv.d.bus != nil {
		inv.d.bus.Broadcast(bus.Event{
			BotID:      inv.botID,
			LineUserID: inv.lineUserID,
			Channel:    "chat_message",
			Payload:    messagePayload(msg),
		})
	}
	return nil
}

func messagePayload(m convo.Message) map[string]interface{} {
	var admin interface{}
	if m.AdminUser != nil {
		admin = m.AdminUser
	}
	return map[string]interface{}{
		"id":              m.ID,
		"event_type":      m.EventType,
		"message_type":    m.MessageType,
		"message_content": m.Content,
		"sender_type":     m.SenderType,
		"timestamp":       m.Timestamp,
		"media_url":       m.MediaURL,
		"media_path":      m.MediaPath,
		"admin_user":      admin,
	}
}
