package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// WebhookStatus is the response shape for GET
// /api/v1/webhooks/{bot_id}/status (spec §6, supplemented per SPEC_FULL §13
// from the original's webhook status endpoint).
type WebhookStatus struct {
	Status            string    `json:"status"` // not_configured | configuration_error | active | inactive | error
	StatusText        string    `json:"status_text"`
	IsConfigured      bool      `json:"is_configured"`
	LineAPIAccessible bool      `json:"line_api_accessible"`
	WebhookWorking    bool      `json:"webhook_working"`
	WebhookURL        string    `json:"webhook_url"`
	CheckedAt         time.Time `json:"checked_at"`
}

// LineInfoChecker pings LINE's bot-info endpoint with the bot's channel
// token to determine reachability (§6 "Outbound HTTP to LINE").
type LineInfoChecker interface {
	CheckAccessible(ctx context.Context, channelToken string) bool
}

func (s *Server) handleWebhookStatus(w http.ResponseWriter, r *http.Request, botID string) {
	ctx := r.Context()
	status := s.computeStatus(ctx, botID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) computeStatus(ctx context.Context, botID string) WebhookStatus {
	now := time.Now().UTC()
	if s.bots == nil {
		return WebhookStatus{Status: "error", StatusText: "bot store unavailable", CheckedAt: now}
	}

	bot, err := s.bots.Get(ctx, botID)
	if err != nil || bot == nil {
		return WebhookStatus{Status: "not_configured", StatusText: "bot not found", CheckedAt: now}
	}

	configured := bot.ChannelToken != "" && bot.ChannelSecret != ""
	webhookURL := s.cfg.Gateway.PublicBaseURL + "/api/v1/webhooks/" + botID

	if !configured {
		return WebhookStatus{
			Status:       "configuration_error",
			StatusText:   "channel token/secret missing",
			IsConfigured: false,
			WebhookURL:   webhookURL,
			CheckedAt:    now,
		}
	}

	accessible := s.checker != nil && s.checker.CheckAccessible(ctx, bot.ChannelToken)
	if !accessible {
		return WebhookStatus{
			Status:            "inactive",
			StatusText:        "LINE API not reachable with stored credentials",
			IsConfigured:      true,
			LineAPIAccessible: false,
			WebhookURL:        webhookURL,
			CheckedAt:         now,
		}
	}

	return WebhookStatus{
		Status:            "active",
		StatusText:        "webhook operational",
		IsConfigured:      true,
		LineAPIAccessible: true,
		WebhookWorking:    true,
		WebhookURL:        webhookURL,
		CheckedAt:         now,
	}
}
