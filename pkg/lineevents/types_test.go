package lineevents

import "testing"

func TestParseTextMessage(t *testing.T) {
	body := []byte(`{
		"events": [{
			"type": "message",
			"replyToken": "tok-1",
			"timestamp": 1700000000000,
			"source": {"type": "user", "userId": "U123"},
			"message": {"id": "msg-1", "type": "text", "text": "hello"}
		}]
	}`)

	events, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Type != EventMessage {
		t.Errorf("Type = %q, want %q", ev.Type, EventMessage)
	}
	if ev.MessageType != MessageText {
		t.Errorf("MessageType = %q, want %q", ev.MessageType, MessageText)
	}
	if ev.LineMessageID != "msg-1" {
		t.Errorf("LineMessageID = %q, want msg-1", ev.LineMessageID)
	}
	if ev.Text != "hello" {
		t.Errorf("Text = %q, want hello", ev.Text)
	}
	if ev.Source.UserID != "U123" {
		t.Errorf("Source.UserID = %q, want U123", ev.Source.UserID)
	}
	if ev.HasMedia() {
		t.Error("text message should not HasMedia()")
	}
}

func TestParseImageMessageHasMedia(t *testing.T) {
	body := []byte(`{"events": [{"type": "message", "message": {"id": "m1", "type": "image"}}]}`)
	events, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !events[0].HasMedia() {
		t.Error("image message should HasMedia()")
	}
}

func TestParsePostback(t *testing.T) {
	body := []byte(`{"events": [{"type": "postback", "postback": {"data": "action=confirm"}}]}`)
	events, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if events[0].Type != EventPostback {
		t.Errorf("Type = %q, want postback", events[0].Type)
	}
	if events[0].PostbackData != "action=confirm" {
		t.Errorf("PostbackData = %q, want action=confirm", events[0].PostbackData)
	}
}

func TestParseMultipleEvents(t *testing.T) {
	body := []byte(`{"events": [
		{"type": "follow", "source": {"type": "user", "userId": "U1"}},
		{"type": "unfollow", "source": {"type": "user", "userId": "U1"}}
	]}`)
	events, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != EventFollow || events[1].Type != EventUnfollow {
		t.Errorf("unexpected event types: %v, %v", events[0].Type, events[1].Type)
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestParseEmptyEventsArray(t *testing.T) {
	events, err := Parse([]byte(`{"events": []}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected 0 events, got %d", len(events))
	}
}
