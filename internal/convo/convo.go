// Package convo implements the Conversation Store (C2): an append-only
// per-(bot, user) message log with strict ordering, dedup by LINE message
// id, and media-field patching (spec §4.2).
package convo

import (
	"context"
	"time"
)

// SenderType identifies who authored a Message.
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderBot   SenderType = "bot"
	SenderAdmin SenderType = "admin"
)

// AdminUser identifies the operator who sent an admin message.
type AdminUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// Message is one append inside a Conversation (spec §3).
type Message struct {
	ID            string
	BotID         string
	LineUserID    string
	LineMessageID string // nullable; empty string means null
	EventType     string // message, follow, unfollow, postback, ...
	MessageType   string // text, image, video, audio, sticker, flex, location, ...
	Content       map[string]interface{}
	SenderType    SenderType
	AdminUser     *AdminUser
	Timestamp     time.Time
	MediaURL      string
	MediaPath     string

	// LegacyMedia is computed at read time, never persisted: true when
	// this is a media message with no line_message_id, so it can never
	// be re-fetched (spec §9 Open Questions).
	LegacyMedia bool
}

// TextContent returns the "text" field of Content, or "" if absent.
func (m Message) TextContent() string {
	if m.Content == nil {
		return ""
	}
	s, _ := m.Content["text"].(string)
	return s
}

// Conversation is the (bot_id, line_user_id) aggregate root.
type Conversation struct {
	ID         string
	BotID      string
	LineUserID string
	CreatedAt  time.Time
}

// SenderFilter restricts Read to a subset of sender types; nil means all.
type SenderFilter []SenderType

// Store is the C2 contract (spec §4.2).
type Store interface {
	GetOrCreate(ctx context.Context, botID, lineUserID string) (*Conversation, error)

	// AppendUser performs the atomic check-for-duplicate-then-insert that
	// is the at-most-once invariant's enforcement point (spec §4.1, §8
	// invariant 1). isNew is false when a message with the same
	// (bot_id, line_message_id) already existed, in which case the
	// returned Message is the pre-existing one.
	AppendUser(ctx context.Context, botID, lineUserID string, msg Message) (result Message, isNew bool, err error)

	AppendBot(ctx context.Context, botID, lineUserID string, content map[string]interface{}, messageType, mediaURL string) (Message, error)

	AppendAdmin(ctx context.Context, botID, lineUserID string, admin AdminUser, content map[string]interface{}, messageType string) (Message, error)

	// PatchMedia sets media fields on an existing user message. Returns
	// false (no-op, not an error) if the message already has either media
	// field set (spec §4.3 "never re-uploads").
	PatchMedia(ctx context.Context, messageID, mediaPath, mediaURL string) (bool, error)

	Read(ctx context.Context, botID, lineUserID string, limit, offset int, filter SenderFilter) (items []Message, total int, err error)

	// ExistsByLineMessageID reports whether a message with this
	// (bot_id, line_message_id) has already been persisted. The webhook
	// pipeline does not call it: duplicate deliveries are detected by
	// AppendUser's atomic insert (isNew == false).
	ExistsByLineMessageID(ctx context.Context, botID, lineMessageID string) (bool, error)

	// PendingMedia lists messages eligible for media reprocessing (spec
	// §13 "process-pending-media operation"): media type, null media
	// fields, non-null line_message_id.
	PendingMedia(ctx context.Context, botID string, limit int) ([]Message, error)

	// RecentHistory returns the last n messages for a conversation in
	// chronological (oldest-first) order — the shape the Retrieval
	// Engine's history assembly needs (spec §4.5 step 4), distinct from
	// Read's page-from-the-start pagination.
	RecentHistory(ctx context.Context, botID, lineUserID string, n int) ([]Message, error)
}
