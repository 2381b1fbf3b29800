// Package lineevents decodes LINE Messaging API webhook payloads into
// typed variants. Nothing downstream ever touches the raw JSON again.
package lineevents

import (
	"encoding/json"
	"fmt"
)

// EventType mirrors the LINE webhook "type" field.
type EventType string

const (
	EventMessage  EventType = "message"
	EventFollow   EventType = "follow"
	EventUnfollow EventType = "unfollow"
	EventPostback EventType = "postback"
	EventJoin     EventType = "join"
	EventLeave    EventType = "leave"
)

// MessageType mirrors LINE's message.type field.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageVideo    MessageType = "video"
	MessageAudio    MessageType = "audio"
	MessageSticker  MessageType = "sticker"
	MessageFlex     MessageType = "flex"
	MessageLocation MessageType = "location"
)

// Source identifies who the event is from.
type Source struct {
	Type   string `json:"type"` // "user", "group", "room"
	UserID string `json:"userId"`
}

// Event is the fully decoded, typed form of one entry in a LINE webhook
// "events" array. Exactly one of the payload fields is populated,
// selected by Type (and, for Type==message, by MessageType).
type Event struct {
	Type       EventType
	ReplyToken string
	Timestamp  int64
	Source     Source

	// populated when Type == EventMessage
	MessageType   MessageType
	LineMessageID string
	Text          string
	StickerPkgID  string
	StickerID     string
	Latitude      float64
	Longitude     float64

	// populated when Type == EventPostback
	PostbackData string
}

type envelope struct {
	Events []rawEvent `json:"events"`
}

type rawEvent struct {
	Type       string          `json:"type"`
	ReplyToken string          `json:"replyToken"`
	Timestamp  int64           `json:"timestamp"`
	Source     Source          `json:"source"`
	Message    json.RawMessage `json:"message"`
	Postback   struct {
		Data string `json:"data"`
	} `json:"postback"`
}

type rawMessage struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Text      string  `json:"text"`
	PackageID string  `json:"packageId"`
	StickerID string  `json:"stickerId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Parse decodes a raw webhook body into typed Events. An empty body is a
// decode error here, so callers special-case it upstream (LINE's
// verification probe) before calling Parse.
func Parse(body []byte) ([]Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}

	events := make([]Event, 0, len(env.Events))
	for _, re := range env.Events {
		ev := Event{
			Type:       EventType(re.Type),
			ReplyToken: re.ReplyToken,
			Timestamp:  re.Timestamp,
			Source:     re.Source,
		}

		switch ev.Type {
		case EventMessage:
			var rm rawMessage
			if len(re.Message) > 0 {
				if err := json.Unmarshal(re.Message, &rm); err != nil {
					return nil, fmt.Errorf("decode message event: %w", err)
				}
			}
			ev.MessageType = MessageType(rm.Type)
			ev.LineMessageID = rm.ID
			ev.Text = rm.Text
			ev.StickerPkgID = rm.PackageID
			ev.StickerID = rm.StickerID
			ev.Latitude = rm.Latitude
			ev.Longitude = rm.Longitude
		case EventPostback:
			ev.PostbackData = re.Postback.Data
		}

		events = append(events, ev)
	}
	return events, nil
}

// HasMedia reports whether this message event carries binary content that
// must be fetched from LINE's content API by the media worker.
func (e Event) HasMedia() bool {
	switch e.MessageType {
	case MessageImage, MessageVideo, MessageAudio:
		return true
	default:
		return false
	}
}
