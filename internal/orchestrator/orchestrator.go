// Package orchestrator implements the top-level webhook handler (C10):
// wiring C1 -> C2 -> (C7 || C5 -> C6) -> C8 -> C9, enforcing ordering and
// failure isolation (spec §4.10).
package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/anna0613/linebot-control-plane/internal/analytics"
	"github.com/anna0613/linebot-control-plane/internal/apperr"
	"github.com/anna0613/linebot-control-plane/internal/bus"
	"github.com/anna0613/linebot-control-plane/internal/convo"
	"github.com/anna0613/linebot-control-plane/internal/dispatch"
	"github.com/anna0613/linebot-control-plane/internal/flex"
	"github.com/anna0613/linebot-control-plane/internal/lineapi"
	"github.com/anna0613/linebot-control-plane/internal/llm"
	"github.com/anna0613/linebot-control-plane/internal/logic"
	"github.com/anna0613/linebot-control-plane/internal/media"
	"github.com/anna0613/linebot-control-plane/internal/outbox"
	"github.com/anna0613/linebot-control-plane/internal/retrieval"
	"github.com/anna0613/linebot-control-plane/internal/signature"
	"github.com/anna0613/linebot-control-plane/internal/store"
	"github.com/anna0613/linebot-control-plane/internal/telemetry"
	"github.com/anna0613/linebot-control-plane/pkg/lineevents"
)

// TemplateStore lists a bot's active logic templates, ordered by
// updated_at desc (spec §4.7 "Input").
type TemplateStore interface {
	ActiveTemplates(ctx context.Context, botID string) ([]logic.Template, error)
	FlexMessageContent(ctx context.Context, flexMessageID, ownerID string) (interface{}, bool, error)
}

// Orchestrator holds every component the webhook handler drives.
type Orchestrator struct {
	bots      store.BotStore
	conversa  convo.Store
	media     *media.Worker
	templates TemplateStore
	retrieval *retrieval.Engine
	llmClient *llm.Client
	bus       bus.EventPublisher

	analytics *analytics.Sink
	outbox    *outbox.Publisher

	// retrievalDefaults holds the process-wide retrieval knobs that have
	// no per-bot column (mode, rerank fan-out, RRF weights); per-bot
	// threshold/top_k/history_n still come from store.Bot.
	retrievalDefaults retrieval.Params
	botSystem         func(botID string) (provider, model, systemPrompt string)
}

// SetAnalytics wires the optional ClickHouse event sink. A nil sink (the
// default) disables recording without needing a feature flag at call sites.
func (o *Orchestrator) SetAnalytics(sink *analytics.Sink) { o.analytics = sink }

// SetOutbox wires the optional Kafka event publisher.
func (o *Orchestrator) SetOutbox(pub *outbox.Publisher) { o.outbox = pub }

// SetRetrievalDefaults wires the process-wide retrieval mode/fan-out
// configuration (spec §4.5, SPEC_FULL Retrieval config).
func (o *Orchestrator) SetRetrievalDefaults(p retrieval.Params) { o.retrievalDefaults = p }

func New(
	bots store.BotStore,
	conversa convo.Store,
	mediaWorker *media.Worker,
	templates TemplateStore,
	retrievalEngine *retrieval.Engine,
	llmClient *llm.Client,
	publisher bus.EventPublisher,
	botSystem func(botID string) (provider, model, systemPrompt string),
) *Orchestrator {
	return &Orchestrator{
		bots: bots, conversa: conversa, media: mediaWorker, templates: templates,
		retrieval: retrievalEngine, llmClient: llmClient, bus: publisher,
		retrievalDefaults: retrieval.Params{Mode: retrieval.ModeVector},
		botSystem:         botSystem,
	}
}

// HandleWebhook implements spec §4.10's webhook handler shape, returning
// the HTTP status the caller (gateway.Server) must write. It never
// returns anything but 200 once the bot and signature are valid, per
// spec §6 "Response: 200 OK in all non-auth cases".
func (o *Orchestrator) HandleWebhook(ctx context.Context, botID string, body io.Reader, sig string) int {
	raw, err := io.ReadAll(body)
	if err != nil {
		slog.Error("orchestrator.read_body_failed", "bot_id", botID, "error", err)
		return http.StatusBadRequest
	}

	bot, err := o.bots.Get(ctx, botID)
	if err != nil {
		slog.Error("orchestrator.load_bot_failed", "bot_id", botID, "error", err)
		return http.StatusInternalServerError
	}
	if bot == nil {
		return http.StatusNotFound
	}
	if bot.ChannelToken == "" || bot.ChannelSecret == "" {
		return http.StatusBadRequest
	}

	events, err := signature.ParseAndVerify(raw, sig, bot.ChannelSecret)
	if err != nil {
		if err != apperr.InvalidSignature {
			slog.Error("orchestrator.verify_failed", "bot_id", botID, "error", err)
		}
		return http.StatusBadRequest
	}
	if events == nil {
		return http.StatusOK // empty body: LINE's verification probe
	}

	lineClient := lineapi.NewClient(bot.ChannelToken)

	for _, ev := range events {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("orchestrator.event_panic", "bot_id", botID, "error", r)
				}
			}()
			if err := o.handleOne(ctx, bot, lineClient, ev); err != nil {
				slog.Warn("orchestrator.event_failed", "bot_id", botID, "event_type", ev.Type, "error", err)
			}
		}()
	}

	return http.StatusOK
}

func (o *Orchestrator) handleOne(ctx context.Context, bot *store.Bot, lineClient *lineapi.Client, ev lineevents.Event) error {
	ctx, span := telemetry.Tracer().Start(ctx, "orchestrator.handle_event")
	defer span.End()

	start := time.Now()
	outcome := "no_match"
	defer func() {
		o.recordActivity(ctx, bot.ID, ev, outcome, time.Since(start))
	}()

	lineUserID := ev.Source.UserID
	if lineUserID == "" {
		outcome = "no_user"
		return nil // group/room source with no addressable user; nothing to append against
	}

	msg, isNew, err := o.conversa.AppendUser(ctx, bot.ID, lineUserID, toStoredMessage(ev))
	if err != nil {
		outcome = "error"
		return err
	}
	if !isNew {
		outcome = "duplicate"
		return nil // already processed this line_message_id
	}

	if ev.HasMedia() {
		o.media.Spawn(ctx, media.Task{
			BotID: bot.ID, LineUserID: lineUserID, MessageID: msg.ID,
			LineMessageID: ev.LineMessageID, MessageType: string(ev.MessageType),
			ChannelToken: bot.ChannelToken,
		})
	}

	invocation := dispatch.NewDispatcher(lineClient, o.conversa, o.bus).NewInvocation(bot.ID, lineUserID, ev.ReplyToken)

	templates, err := o.templates.ActiveTemplates(ctx, bot.ID)
	if err != nil {
		return err
	}
	match := logic.Evaluate(templates, ev, bot.AITakeoverEnabled)

	emitted := false
	if match != nil {
		if err := o.emitLogicReplies(ctx, bot, invocation, *match); err != nil {
			return err
		}
		emitted = true
		outcome = "logic_match"
	}

	isText := ev.Type == lineevents.EventMessage && ev.MessageType == lineevents.MessageText
	if !emitted && bot.AITakeoverEnabled && isText {
		if err := o.runRAGFallback(ctx, bot, lineUserID, invocation, ev.Text); err != nil {
			slog.Warn("orchestrator.rag_fallback_failed", "bot_id", bot.ID, "error", err)
			outcome = "error"
		} else {
			outcome = "rag_reply"
		}
	}

	o.broadcastActivityUpdate(bot.ID, lineUserID, ev)
	return nil
}

// recordActivity mirrors one handled event into the optional analytics
// sink and event outbox (spec §4.10 step 5, SPEC_FULL domain-stack
// wiring). Both are best-effort: a failure here never surfaces to the
// webhook ACK path.
func (o *Orchestrator) recordActivity(ctx context.Context, botID string, ev lineevents.Event, outcome string, elapsed time.Duration) {
	if o.analytics != nil {
		if err := o.analytics.Record(ctx, analytics.Event{
			BotID:       botID,
			LineUserID:  ev.Source.UserID,
			EventType:   string(ev.Type),
			MessageType: string(ev.MessageType),
			Outcome:     outcome,
			LatencyMS:   elapsed.Milliseconds(),
		}); err != nil {
			slog.Warn("orchestrator.analytics_record_failed", "bot_id", botID, "error", err)
		}
	}
	if o.outbox != nil {
		payload, _ := json.Marshal(map[string]string{
			"event_type":   string(ev.Type),
			"message_type": string(ev.MessageType),
			"outcome":      outcome,
		})
		if err := o.outbox.Publish(ctx, outbox.Message{BotID: botID, Kind: "event_handled", Payload: payload}); err != nil {
			slog.Warn("orchestrator.outbox_publish_failed", "bot_id", botID, "error", err)
		}
	}
}

func (o *Orchestrator) emitLogicReplies(ctx context.Context, bot *store.Bot, inv *dispatch.Invocation, match logic.Match) error {
	for _, rb := range match.ReplyBlocks {
		reply := logic.ResolveReply(rb)
		out, err := o.resolveOutbound(ctx, bot, reply)
		if err != nil {
			slog.Warn("orchestrator.resolve_reply_failed", "bot_id", bot.ID, "error", err)
			continue
		}
		if err := inv.Send(ctx, out); err != nil {
			slog.Warn("orchestrator.send_failed", "bot_id", bot.ID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) resolveOutbound(ctx context.Context, bot *store.Bot, r logic.Reply) (dispatch.Outbound, error) {
	switch r.Type {
	case "text":
		return dispatch.Outbound{
			Line:        lineapi.TextMessage(r.Text),
			MessageType: "text",
			Content:     map[string]interface{}{"text": r.Text},
		}, nil
	case "image":
		return dispatch.Outbound{
			Line:        lineapi.ImageMessage(r.ImageOriginalURL, r.ImagePreviewURL),
			MessageType: "image",
			Content:     map[string]interface{}{"originalContentUrl": r.ImageOriginalURL, "previewImageUrl": r.ImagePreviewURL},
			MediaURL:    r.ImageOriginalURL,
		}, nil
	case "sticker":
		return dispatch.Outbound{
			Line:        lineapi.StickerMessage(r.StickerPackageID, r.StickerID),
			MessageType: "sticker",
			Content:     map[string]interface{}{"packageId": r.StickerPackageID, "stickerId": r.StickerID},
		}, nil
	case "flex":
		contents := o.resolveFlexContents(ctx, bot, r)
		return dispatch.Outbound{
			Line:        lineapi.FlexMessage(r.FlexAltText, contents),
			MessageType: "flex",
			Content:     map[string]interface{}{"altText": r.FlexAltText, "contents": contents},
		}, nil
	default:
		return dispatch.Outbound{}, nil
	}
}

// resolveFlexContents implements spec §4.7 "flex" reply resolution:
// prefer a stored FlexMessage by id, else the inline flexContent.
func (o *Orchestrator) resolveFlexContents(ctx context.Context, bot *store.Bot, r logic.Reply) map[string]interface{} {
	if r.FlexMessageID != "" && o.templates != nil {
		if stored, ok, err := o.templates.FlexMessageContent(ctx, r.FlexMessageID, bot.OwnerID); err == nil && ok {
			return flex.FromStoredContent(stored)
		}
	}
	if r.FlexContent != nil {
		return flex.FromStoredContent(r.FlexContent)
	}
	return flex.FromStoredContent(nil)
}

// runRAGFallback implements spec §4.10 step 4: run C5, and if the
// answer is non-empty, emit one text via C8.
func (o *Orchestrator) runRAGFallback(ctx context.Context, bot *store.Bot, lineUserID string, inv *dispatch.Invocation, question string) error {
	params := o.retrievalDefaults
	params.HistoryN = bot.AIHistoryMessages
	params.Threshold = bot.AIRAGThreshold
	params.K = bot.AIRAGTopK

	result, err := o.retrieval.Run(ctx, bot.ID, lineUserID, question, params)
	if err != nil {
		return err
	}

	provider, model, systemPrompt := bot.AIProvider, bot.AIModel, bot.AISystemPrompt
	if o.botSystem != nil {
		provider, model, systemPrompt = o.botSystem(bot.ID)
	}

	answer, err := o.llmClient.Ask(ctx, provider, llm.Request{
		Model:        model,
		SystemPrompt: llm.BuildSystemPrompt(systemPrompt),
		History:      historyText(result.History),
		Context:      result.ContextText,
		Question:     question,
	})
	if err != nil {
		return apperr.Wrap(apperr.LLMUnavailable, err)
	}
	if answer == "" {
		return nil
	}

	return inv.Send(ctx, dispatch.Outbound{
		Line:        lineapi.TextMessage(answer),
		MessageType: "text",
		Content:     map[string]interface{}{"text": answer},
	})
}

func historyText(turns []retrieval.HistoryTurn) string {
	if len(turns) == 0 {
		return ""
	}
	var b []byte
	for _, t := range turns {
		b = append(b, []byte(t.Role+": "+t.Text+"\n")...)
	}
	return string(b)
}

// broadcastActivityUpdate summarizes the event for dashboards (spec
// §4.10 step 5). Best-effort: failures never affect the webhook ACK.
func (o *Orchestrator) broadcastActivityUpdate(botID, lineUserID string, ev lineevents.Event) {
	if o.bus == nil {
		return
	}
	o.bus.Broadcast(bus.Event{
		BotID:      botID,
		LineUserID: lineUserID,
		Channel:    "activity_update",
		Payload: map[string]interface{}{
			"event_type":   ev.Type,
			"message_type": ev.MessageType,
			"timestamp":    time.UnixMilli(ev.Timestamp).UTC(),
		},
	})
}

func toStoredMessage(ev lineevents.Event) convo.Message {
	content := map[string]interface{}{}
	switch ev.MessageType {
	case lineevents.MessageText:
		content["text"] = ev.Text
	case lineevents.MessageSticker:
		content["packageId"] = ev.StickerPkgID
		content["stickerId"] = ev.StickerID
	case lineevents.MessageLocation:
		content["latitude"] = ev.Latitude
		content["longitude"] = ev.Longitude
	}
	return convo.Message{
		LineMessageID: ev.LineMessageID,
		EventType:     string(ev.Type),
		MessageType:   string(ev.MessageType),
		Content:       content,
	}
}
