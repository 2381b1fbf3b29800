package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/anna0613/linebot-control-plane/internal/knowledge"
)

// KnowledgeStore implements knowledge.Store over Postgres with the
// pgvector extension. Vectors travel as their text literal
// ("[0.1,0.2,...]"), cast server-side with ::vector — this avoids a
// pgvector-specific driver dependency the rest of the pack never uses,
// at the cost of building the literal by hand.
type KnowledgeStore struct {
	db *sql.DB
}

func NewKnowledgeStore(db *sql.DB) *KnowledgeStore {
	return &KnowledgeStore{db: db}
}

func (s *KnowledgeStore) UpsertDocument(ctx context.Context, doc knowledge.Document) (string, error) {
	if doc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate document id: %w", err)
		}
		doc.ID = id.String()
	}
	meta, err := marshalMeta(doc.Meta)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, bot_id, source_type, title, original_file_name, object_path, ai_summary, meta, deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			original_file_name = EXCLUDED.original_file_name,
			object_path = EXCLUDED.object_path,
			ai_summary = EXCLUDED.ai_summary,
			meta = EXCLUDED.meta
	`, doc.ID, nullableString(doc.BotID), doc.SourceType, doc.Title, doc.OriginalFileName, doc.ObjectPath, doc.AISummary, meta)
	if err != nil {
		return "", fmt.Errorf("upsert knowledge document: %w", err)
	}
	return doc.ID, nil
}

func (s *KnowledgeStore) UpsertChunks(ctx context.Context, documentID, botID string, chunks []knowledge.ChunkInput) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert chunks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for _, c := range chunks {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate chunk id: %w", err)
		}
		cleaned := knowledge.CleanEmbedding(c.Embedding)
		meta, err := marshalMeta(c.Meta)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO knowledge_chunks (id, document_id, bot_id, content, embedding, embedding_model, embedding_dimensions, meta, deleted)
			VALUES ($1, $2, $3, $4, $5::vector, $6, $7, $8, false)
		`, id.String(), documentID, nullableString(botID), c.Content, vectorLiteral(cleaned), "text-embedding-3-small", knowledge.EmbeddingDimensions, meta)
		if err != nil {
			return fmt.Errorf("insert knowledge chunk: %w", err)
		}
	}
	return tx.Commit()
}

func (s *KnowledgeStore) SearchVector(ctx context.Context, botID string, queryEmbedding []float32, threshold float64, k int) ([]knowledge.ScoredChunk, error) {
	cleaned := knowledge.CleanEmbedding(queryEmbedding)
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.bot_id, c.content, c.embedding_model, c.embedding_dimensions, c.meta,
		       1 - (c.embedding <=> $2::vector) AS similarity
		FROM knowledge_chunks c
		JOIN knowledge_documents d ON d.id = c.document_id
		WHERE (c.bot_id = $1 OR c.bot_id IS NULL)
		  AND c.deleted = false AND d.deleted = false
		  AND 1 - (c.embedding <=> $2::vector) >= $3
		ORDER BY c.embedding <=> $2::vector
		LIMIT $4
	`, nullableString(botID), vectorLiteral(cleaned), threshold, k)
	if err != nil {
		return nil, fmt.Errorf("search vector: %w", err)
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

func (s *KnowledgeStore) SearchLexical(ctx context.Context, botID string, query string, k int) ([]knowledge.ScoredChunk, error) {
	// Postgres full-text search (tsvector/ts_rank_cd) stands in for the
	// original's hand-rolled BM25 (SPEC_FULL §13 decision): the vector
	// store is already Postgres, so lexical ranking stays in the same
	// engine instead of pulling in a separate text-search library.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.bot_id, c.content, c.embedding_model, c.embedding_dimensions, c.meta,
		       ts_rank_cd(to_tsvector('simple', c.content), plainto_tsquery('simple', $2)) AS score
		FROM knowledge_chunks c
		JOIN knowledge_documents d ON d.id = c.document_id
		WHERE (c.bot_id = $1 OR c.bot_id IS NULL)
		  AND c.deleted = false AND d.deleted = false
		  AND to_tsvector('simple', c.content) @@ plainto_tsquery('simple', $2)
		ORDER BY score DESC
		LIMIT $3
	`, nullableString(botID), query, k)
	if err != nil {
		return nil, fmt.Errorf("search lexical: %w", err)
	}
	defer rows.Close()
	return scanScoredChunks(rows)
}

func (s *KnowledgeStore) SoftDeleteDocument(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin soft delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE knowledge_documents SET deleted = true WHERE id = $1`, documentID); err != nil {
		return fmt.Errorf("tombstone document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE knowledge_chunks SET deleted = true WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("tombstone chunks: %w", err)
	}
	return tx.Commit()
}

func (s *KnowledgeStore) DocumentSummaries(ctx context.Context, botID string, limit int) ([]knowledge.DocumentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT title, ai_summary FROM knowledge_documents
		WHERE (bot_id = $1 OR bot_id IS NULL) AND deleted = false
		ORDER BY title
		LIMIT $2
	`, nullableString(botID), limit)
	if err != nil {
		return nil, fmt.Errorf("list document summaries: %w", err)
	}
	defer rows.Close()

	var out []knowledge.DocumentSummary
	for rows.Next() {
		var d knowledge.DocumentSummary
		if err := rows.Scan(&d.Title, &d.AISummary); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanScoredChunks(rows *sql.Rows) ([]knowledge.ScoredChunk, error) {
	var out []knowledge.ScoredChunk
	for rows.Next() {
		var c knowledge.Chunk
		var botID sql.NullString
		var metaRaw []byte
		var score float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &botID, &c.Content, &c.EmbeddingModel, &c.EmbeddingDimensions, &metaRaw, &score); err != nil {
			return nil, fmt.Errorf("scan scored chunk: %w", err)
		}
		c.BotID = botID.String
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &c.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal chunk meta: %w", err)
			}
		}
		out = append(out, knowledge.ScoredChunk{Chunk: c, Score: score})
	}
	return out, rows.Err()
}

func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func marshalMeta(m map[string]interface{}) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	return b, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
