package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/anna0613/linebot-control-plane/internal/logic"
)

// LogicStore implements orchestrator.TemplateStore over Postgres.
type LogicStore struct {
	db *sql.DB
}

func NewLogicStore(db *sql.DB) *LogicStore {
	return &LogicStore{db: db}
}

// rawBlock mirrors the block-editor's JSON shape for one logic_blocks
// entry: {id, blockType, blockData}.
type rawBlock struct {
	ID        string                 `json:"id"`
	BlockType string                 `json:"blockType"`
	BlockData map[string]interface{} `json:"blockData"`
}

// ActiveTemplates returns active LogicTemplates for a bot ordered by
// updated_at desc (spec §4.7 "Input"), with logic_blocks decoded.
func (s *LogicStore) ActiveTemplates(ctx context.Context, botID string) ([]logic.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, logic_blocks
		FROM logic_templates
		WHERE bot_id = $1 AND is_active = true
		ORDER BY updated_at DESC
	`, botID)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var out []logic.Template
	for rows.Next() {
		var id, name string
		var raw []byte
		if err := rows.Scan(&id, &name, &raw); err != nil {
			return nil, fmt.Errorf("scan logic template: %w", err)
		}
		blocks, err := decodeBlocks(raw)
		if err != nil {
			return nil, fmt.Errorf("decode logic_blocks for template %s: %w", id, err)
		}
		out = append(out, logic.Template{ID: id, Name: name, Blocks: blocks})
	}
	return out, rows.Err()
}

func decodeBlocks(raw []byte) ([]logic.Block, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rawBlocks []rawBlock
	if err := json.Unmarshal(raw, &rawBlocks); err != nil {
		return nil, err
	}
	blocks := make([]logic.Block, len(rawBlocks))
	for i, rb := range rawBlocks {
		id := rb.ID
		if id == "" && rb.BlockData != nil {
			if bid, ok := rb.BlockData["id"].(string); ok {
				id = bid
			}
		}
		blocks[i] = logic.Block{ID: id, BlockType: rb.BlockType, BlockData: rb.BlockData}
	}
	return blocks, nil
}

// FlexMessageContent loads a stored FlexMessage's content, scoped to
// its owner (spec §4.7 "referenced FlexMessage exists for the bot's
// owner").
func (s *LogicStore) FlexMessageContent(ctx context.Context, flexMessageID, ownerID string) (interface{}, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT content FROM flex_messages WHERE id = $1 AND user_id = $2
	`, flexMessageID, ownerID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load flex message: %w", err)
	}
	var content interface{}
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, false, fmt.Errorf("decode flex message content: %w", err)
	}
	return content, true, nil
}
