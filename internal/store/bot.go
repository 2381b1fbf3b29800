// Package store defines the cross-cutting storage interfaces used by the
// webhook pipeline: the Bot store (tenant configuration). The Postgres
// implementations live in internal/store/pg. Conversation storage (C2)
// and the knowledge index (C4) have their own packages (internal/convo,
// internal/knowledge) since they are large enough contracts in their own
// right; this package holds the Bot entity they both key off of.
package store

import "context"

// Bot is the tenant-owned messaging endpoint described in spec §3.
type Bot struct {
	ID                string
	OwnerID           string
	ChannelToken      string
	ChannelSecret     string
	AITakeoverEnabled bool
	AIProvider        string
	AIModel           string
	AISystemPrompt    string
	AIRAGThreshold    float64
	AIRAGTopK         int
	AIHistoryMessages int
}

// BotStore is the read-mostly view onto bot configuration the webhook
// pipeline needs. Full bot CRUD lives in the external collaborator
// described in spec §1 (out of scope).
type BotStore interface {
	Get(ctx context.Context, id string) (*Bot, error)
	OwnedBy(ctx context.Context, botID, userID string) (bool, error)
}
