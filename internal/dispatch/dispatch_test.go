package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/anna0613/linebot-control-plane/internal/bus"
	"github.com/anna0613/linebot-control-plane/internal/convo"
	"github.com/anna0613/linebot-control-plane/internal/lineapi"
)

type fakeSender struct {
	replyCalls int
	pushCalls  int
	replyErr   error
	pushErr    error
}

func (f *fakeSender) Reply(ctx context.Context, replyToken string, messages []lineapi.Message) error {
	f.replyCalls++
	return f.replyErr
}

func (f *fakeSender) Push(ctx context.Context, to string, messages []lineapi.Message) error {
	f.pushCalls++
	return f.pushErr
}

type fakeConvoStore struct {
	convo.Store
	appendBotCalls int
	appendErr      error
}

func (f *fakeConvoStore) AppendBot(ctx context.Context, botID, lineUserID string, content map[string]interface{}, messageType, mediaURL string) (convo.Message, error) {
	f.appendBotCalls++
	if f.appendErr != nil {
		return convo.Message{}, f.appendErr
	}
	return convo.Message{ID: "m1", BotID: botID, LineUserID: lineUserID, MessageType: messageType, Content: content}, nil
}

type fakePublisher struct {
	events []bus.Event
}

func (f *fakePublisher) Broadcast(event bus.Event) {
	f.events = append(f.events, event)
}

func TestInvocationUsesReplyExactlyOnce(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeConvoStore{}
	d := NewDispatcher(sender, store, nil)
	inv := d.NewInvocation("bot1", "U1", "tok-1")

	if err := inv.Send(context.Background(), Outbound{Line: lineapi.Message{Type: "text", Text: "hi"}, MessageType: "text"}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	if err := inv.Send(context.Background(), Outbound{Line: lineapi.Message{Type: "text", Text: "again"}, MessageType: "text"}); err != nil {
		t.Fatalf("second Send: %v", err)
	}

	if sender.replyCalls != 1 {
		t.Errorf("replyCalls = %d, want 1", sender.replyCalls)
	}
	if sender.pushCalls != 1 {
		t.Errorf("pushCalls = %d, want 1 (second send should fall back to push)", sender.pushCalls)
	}
	if store.appendBotCalls != 2 {
		t.Errorf("appendBotCalls = %d, want 2", store.appendBotCalls)
	}
}

func TestInvocationWithoutReplyTokenAlwaysPushes(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeConvoStore{}
	d := NewDispatcher(sender, store, nil)
	inv := d.NewInvocation("bot1", "U1", "")

	if err := inv.Send(context.Background(), Outbound{Line: lineapi.Message{Type: "text"}, MessageType: "text"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sender.replyCalls != 0 || sender.pushCalls != 1 {
		t.Errorf("replyCalls=%d pushCalls=%d, want 0/1", sender.replyCalls, sender.pushCalls)
	}
}

func TestInvocationBroadcastsOnSuccess(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeConvoStore{}
	pub := &fakePublisher{}
	d := NewDispatcher(sender, store, pub)
	inv := d.NewInvocation("bot1", "U1", "tok-1")

	if err := inv.Send(context.Background(), Outbound{Line: lineapi.Message{Type: "text"}, MessageType: "text"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 broadcast event, got %d", len(pub.events))
	}
	if pub.events[0].Channel != "chat_message" {
		t.Errorf("Channel = %q, want chat_message", pub.events[0].Channel)
	}
}

func TestInvocationNilPublisherDoesNotPanic(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeConvoStore{}
	d := NewDispatcher(sender, store, nil)
	inv := d.NewInvocation("bot1", "U1", "tok-1")
	if err := inv.Send(context.Background(), Outbound{Line: lineapi.Message{Type: "text"}, MessageType: "text"}); err != nil {
		t.Fatalf("Send with nil publisher: %v", err)
	}
}

func TestInvocationReplyErrorPropagates(t *testing.T) {
	wantErr := errors.New("line api down")
	sender := &fakeSender{replyErr: wantErr}
	store := &fakeConvoStore{}
	d := NewDispatcher(sender, store, nil)
	inv := d.NewInvocation("bot1", "U1", "tok-1")

	err := inv.Send(context.Background(), Outbound{Line: lineapi.Message{Type: "text"}, MessageType: "text"})
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapping %v", err, wantErr)
	}
	if store.appendBotCalls != 0 {
		t.Error("AppendBot should not be called when send fails")
	}
}
