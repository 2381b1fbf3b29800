package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/anna0613/linebot-control-plane/internal/store"
)

// BotStore implements store.BotStore backed by Postgres.
type BotStore struct {
	db *sql.DB
}

func NewBotStore(db *sql.DB) *BotStore {
	return &BotStore{db: db}
}

func (s *BotStore) Get(ctx context.Context, id string) (*store.Bot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, channel_token, channel_secret, ai_takeover_enabled,
		       ai_provider, ai_model, ai_system_prompt, ai_rag_threshold,
		       ai_rag_top_k, ai_history_messages
		FROM bots WHERE id = $1`, id)

	var b store.Bot
	err := row.Scan(&b.ID, &b.OwnerID, &b.ChannelToken, &b.ChannelSecret, &b.AITakeoverEnabled,
		&b.AIProvider, &b.AIModel, &b.AISystemPrompt, &b.AIRAGThreshold,
		&b.AIRAGTopK, &b.AIHistoryMessages)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot %s: %w", id, err)
	}
	return &b, nil
}

func (s *BotStore) OwnedBy(ctx context.Context, botID, userID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM bots WHERE id = $1 AND owner_id = $2`, botID, userID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check bot ownership: %w", err)
	}
	return count > 0, nil
}
