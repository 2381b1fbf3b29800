// Package analytics ships webhook-pipeline events into ClickHouse for
// offline reporting, grounded on intelligencedev-manifold's
// internal/agentd/metrics_clickhouse.go connection pattern (clickhouse.Conn
// opened via clickhouse.ParseDSN + clickhouse.Open). Analytics is
// best-effort and never blocks or fails the webhook ACK path.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/anna0613/linebot-control-plane/internal/config"
)

// Event is one recorded pipeline occurrence (spec §4.10 step 5's
// activity feed, mirrored into durable storage for reporting).
type Event struct {
	BotID       string
	LineUserID  string
	EventType   string
	MessageType string
	Outcome     string // "logic_match" | "rag_reply" | "no_match" | "no_user" | "duplicate" | "error"
	LatencyMS   int64
	Timestamp   time.Time
}

// Sink writes Events to ClickHouse. A nil *Sink is valid and Record
// becomes a no-op, so callers never need a feature flag at call sites.
type Sink struct {
	conn  clickhouse.Conn
	table string
}

// NewSink connects to ClickHouse using cfg.DSN. Returns (nil, nil) when
// analytics is disabled or unconfigured — a deliberate no-op, not an error.
func NewSink(cfg config.AnalyticsConfig) (*Sink, error) {
	if !cfg.Enabled || cfg.DSN == "" {
		return nil, nil
	}
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	return &Sink{conn: conn, table: "webhook_events"}, nil
}

// Record inserts one Event. Failures are returned to the caller (who
// should log-and-continue, per spec §5 "Observability is best-effort").
func (s *Sink) Record(ctx context.Context, e Event) error {
	if s == nil || s.conn == nil {
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return s.conn.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (bot_id, line_user_id, event_type, message_type, outcome, latency_ms, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.table), e.BotID, e.LineUserID, e.EventType, e.MessageType, e.Outcome, e.LatencyMS, e.Timestamp)
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
