package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anna0613/linebot-control-plane/internal/convo"
)

// ConvoStore implements convo.Store backed by Postgres. The at-most-once
// invariant (spec §8 invariant 1) is enforced by a partial unique index
// on messages(bot_id, line_message_id) WHERE line_message_id IS NOT NULL
// (see migrations/0001_init.up.sql); AppendUser relies on INSERT ... ON
// CONFLICT DO NOTHING to linearize concurrent webhook deliveries against
// that constraint rather than racing a check-then-insert in application
// code (spec §5 "Ordering guarantees").
type ConvoStore struct {
	db *sql.DB
}

func NewConvoStore(db *sql.DB) *ConvoStore {
	return &ConvoStore{db: db}
}

func (s *ConvoStore) GetOrCreate(ctx context.Context, botID, lineUserID string) (*convo.Conversation, error) {
	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, bot_id, line_user_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (bot_id, line_user_id) DO NOTHING`,
		id, botID, lineUserID, now)
	if err != nil {
		return nil, fmt.Errorf("get_or_create conversation: %w", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, bot_id, line_user_id, created_at FROM conversations WHERE bot_id = $1 AND line_user_id = $2`,
		botID, lineUserID)
	var c convo.Conversation
	if err := row.Scan(&c.ID, &c.BotID, &c.LineUserID, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &c, nil
}

func (s *ConvoStore) AppendUser(ctx context.Context, botID, lineUserID string, msg convo.Message) (convo.Message, bool, error) {
	if _, err := s.GetOrCreate(ctx, botID, lineUserID); err != nil {
		return convo.Message{}, false, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()
	contentJSON, err := json.Marshal(msg.Content)
	if err != nil {
		return convo.Message{}, false, fmt.Errorf("marshal message content: %w", err)
	}

	var lineMessageID interface{}
	if msg.LineMessageID != "" {
		lineMessageID = msg.LineMessageID
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, bot_id, line_user_id, line_message_id, event_type,
		                       message_type, content, sender_type, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (bot_id, line_message_id) WHERE line_message_id IS NOT NULL DO NOTHING`,
		id, botID, lineUserID, lineMessageID, msg.EventType, msg.MessageType,
		contentJSON, convo.SenderUser, now)
	if err != nil {
		return convo.Message{}, false, fmt.Errorf("append user message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return convo.Message{}, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 && msg.LineMessageID != "" {
		existing, err := s.findByLineMessageID(ctx, botID, msg.LineMessageID)
		if err != nil {
			return convo.Message{}, false, err
		}
		return *existing, false, nil
	}

	msg.ID = id
	msg.BotID = botID
	msg.LineUserID = lineUserID
	msg.SenderType = convo.SenderUser
	msg.Timestamp = now
	return msg, true, nil
}

func (s *ConvoStore) findByLineMessageID(ctx context.Context, botID, lineMessageID string) (*convo.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, line_user_id, line_message_id, event_type, message_type,
		       content, sender_type, timestamp, media_url, media_path
		FROM messages WHERE bot_id = $1 AND line_message_id = $2`,
		botID, lineMessageID)
	return scanMessage(row)
}

func (s *ConvoStore) AppendBot(ctx context.Context, botID, lineUserID string, content map[string]interface{}, messageType, mediaURL string) (convo.Message, error) {
	return s.appendSent(ctx, botID, lineUserID, content, messageType, mediaURL, convo.SenderBot, nil)
}

func (s *ConvoStore) AppendAdmin(ctx context.Context, botID, lineUserID string, admin convo.AdminUser, content map[string]interface{}, messageType string) (convo.Message, error) {
	return s.appendSent(ctx, botID, lineUserID, content, messageType, "", convo.SenderAdmin, &admin)
}

func (s *ConvoStore) appendSent(ctx context.Context, botID, lineUserID string, content map[string]interface{}, messageType, mediaURL string, sender convo.SenderType, admin *convo.AdminUser) (convo.Message, error) {
	if sender == convo.SenderAdmin && admin == nil {
		return convo.Message{}, errors.New("admin message requires admin_user")
	}
	if _, err := s.GetOrCreate(ctx, botID, lineUserID); err != nil {
		return convo.Message{}, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return convo.Message{}, fmt.Errorf("marshal message content: %w", err)
	}

	var adminJSON interface{}
	if admin != nil {
		b, err := json.Marshal(admin)
		if err != nil {
			return convo.Message{}, fmt.Errorf("marshal admin user: %w", err)
		}
		adminJSON = b
	}

	var mediaURLVal interface{}
	if mediaURL != "" {
		mediaURLVal = mediaURL
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, bot_id, line_user_id, event_type, message_type,
		                       content, sender_type, admin_user, timestamp, media_url)
		VALUES ($1, $2, $3, 'message', $4, $5, $6, $7, $8, $9)`,
		id, botID, lineUserID, messageType, contentJSON, sender, adminJSON, now, mediaURLVal)
	if err != nil {
		return convo.Message{}, fmt.Errorf("append %s message: %w", sender, err)
	}

	return convo.Message{
		ID: id, BotID: botID, LineUserID: lineUserID, EventType: "message",
		MessageType: messageType, Content: content, SenderType: sender,
		AdminUser: admin, Timestamp: now, MediaURL: mediaURL,
	}, nil
}

func (s *ConvoStore) PatchMedia(ctx context.Context, messageID, mediaPath, mediaURL string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET media_path = $2, media_url = $3
		WHERE id = $1 AND media_path IS NULL AND media_url IS NULL`,
		messageID, mediaPath, mediaURL)
	if err != nil {
		return false, fmt.Errorf("patch media: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *ConvoStore) Read(ctx context.Context, botID, lineUserID string, limit, offset int, filter convo.SenderFilter) ([]convo.Message, int, error) {
	query := `SELECT id, bot_id, line_user_id, line_message_id, event_type, message_type,
	                  content, sender_type, timestamp, media_url, media_path
	           FROM messages WHERE bot_id = $1 AND line_user_id = $2`
	args := []interface{}{botID, lineUserID}

	if len(filter) > 0 {
		query += ` AND sender_type = ANY($3)`
		senders := make([]string, len(filter))
		for i, f := range filter {
			senders[i] = string(f)
		}
		args = append(args, senders)
	}
	query += fmt.Sprintf(` ORDER BY timestamp ASC, id ASC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("read conversation: %w", err)
	}
	defer rows.Close()

	var items []convo.Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *m)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE bot_id = $1 AND line_user_id = $2`,
		botID, lineUserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversation: %w", err)
	}

	return items, total, nil
}

func (s *ConvoStore) ExistsByLineMessageID(ctx context.Context, botID, lineMessageID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM messages WHERE bot_id = $1 AND line_message_id = $2`,
		botID, lineMessageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return count > 0, nil
}

func (s *ConvoStore) PendingMedia(ctx context.Context, botID string, limit int) ([]convo.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, line_user_id, line_message_id, event_type, message_type,
		       content, sender_type, timestamp, media_url, media_path
		FROM messages
		WHERE bot_id = $1 AND media_url IS NULL AND message_type IN ('image','video','audio')
		      AND line_message_id IS NOT NULL
		ORDER BY timestamp ASC LIMIT $2`, botID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending media: %w", err)
	}
	defer rows.Close()

	var items []convo.Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, nil
}

// RecentHistory returns the last n messages oldest-first, for prompt
// assembly (spec §4.5 step 4).
func (s *ConvoStore) RecentHistory(ctx context.Context, botID, lineUserID string, n int) ([]convo.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, line_user_id, line_message_id, event_type, message_type,
		       content, sender_type, timestamp, media_url, media_path
		FROM (
			SELECT id, bot_id, line_user_id, line_message_id, event_type, message_type,
			       content, sender_type, timestamp, media_url, media_path
			FROM messages
			WHERE bot_id = $1 AND line_user_id = $2
			ORDER BY timestamp DESC, id DESC
			LIMIT $3
		) recent
		ORDER BY timestamp ASC, id ASC`, botID, lineUserID, n)
	if err != nil {
		return nil, fmt.Errorf("recent history: %w", err)
	}
	defer rows.Close()

	var items []convo.Message
	for rows.Next() {
		m, err := scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

// rowScanner abstracts *sql.Row / *sql.Rows for scanMessage.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row *sql.Row) (*convo.Message, error) {
	return scanMessageRows(row)
}

func scanMessageRows(row rowScanner) (*convo.Message, error) {
	var m convo.Message
	var lineMessageID, mediaURL, mediaPath sql.NullString
	var contentJSON []byte
	var senderType string

	if err := row.Scan(&m.ID, &m.BotID, &m.LineUserID, &lineMessageID, &m.EventType,
		&m.MessageType, &contentJSON, &senderType, &m.Timestamp, &mediaURL, &mediaPath); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}

	m.LineMessageID = lineMessageID.String
	m.MediaURL = mediaURL.String
	m.MediaPath = mediaPath.String
	m.SenderType = convo.SenderType(senderType)
	if len(contentJSON) > 0 {
		if err := json.Unmarshal(contentJSON, &m.Content); err != nil {
			return nil, fmt.Errorf("unmarshal message content: %w", err)
		}
	}
	m.LegacyMedia = m.LineMessageID == "" && isMediaType(m.MessageType) && m.MediaURL == ""
	return &m, nil
}

func isMediaType(t string) bool {
	switch t {
	case "image", "video", "audio":
		return true
	default:
		return false
	}
}
