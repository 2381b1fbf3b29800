// Package media implements the Media Fetch Worker (C3): asynchronously
// pulling binary content from LINE's content API, uploading it to the
// object store, and patching the corresponding message with a proxy URL
// (spec §4.3).
package media

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anna0613/linebot-control-plane/internal/apperr"
	"github.com/anna0613/linebot-control-plane/internal/convo"
	"github.com/anna0613/linebot-control-plane/internal/objectstore"
)

// spawnTimeout bounds a detached Fetch once it has outlived the request
// that triggered it (spec §10 "spawn C3 task, do not await").
const spawnTimeout = 2 * time.Minute

// ContentFetcher retrieves the binary body and content-type for a LINE
// message id (spec §6 "GET .../v2/bot/message/{id}/content").
type ContentFetcher interface {
	FetchContent(ctx context.Context, channelToken, lineMessageID string) (data []byte, contentType string, err error)
}

// Worker fetches media, uploads it, and patches the message — bounded by
// a per-bot semaphore so one bot's media burst cannot starve the rest
// (spec §5 "Back-pressure", SPEC_FULL §13 adaptive concurrency).
type Worker struct {
	fetcher ContentFetcher
	store   objectstore.Store
	convo   convo.Store
	bucket  string

	maxInflightPerBot int
	mu                sync.Mutex
	inflight          map[string]chan struct{} // bot id -> semaphore
}

func NewWorker(fetcher ContentFetcher, store objectstore.Store, conv convo.Store, bucket string, maxInflightPerBot int) *Worker {
	if maxInflightPerBot <= 0 {
		maxInflightPerBot = 4
	}
	return &Worker{
		fetcher:           fetcher,
		store:             store,
		convo:             conv,
		bucket:            bucket,
		maxInflightPerBot: maxInflightPerBot,
		inflight:          make(map[string]chan struct{}),
	}
}

func (w *Worker) semaphore(botID string) chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	sem, ok := w.inflight[botID]
	if !ok {
		sem = make(chan struct{}, w.maxInflightPerBot)
		w.inflight[botID] = sem
	}
	return sem
}

// Task describes one media fetch job (spec §4.3 contract).
type Task struct {
	BotID         string // "" for global scope
	LineUserID    string
	MessageID     string // store-assigned message id to patch
	LineMessageID string
	MessageType   string // image | video | audio
	ChannelToken  string
}

// Fetch runs synchronously: fetch from LINE, upload, patch. Callers
// dispatch it as a detached goroutine (spec §10 "spawn C3 task, do not
// await"); Fetch itself never blocks a webhook ACK because the
// orchestrator never awaits it.
func (w *Worker) Fetch(ctx context.Context, t Task) error {
	sem := w.semaphore(scopeOf(t.BotID))
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	data, contentType, err := w.fetcher.FetchContent(ctx, t.ChannelToken, t.LineMessageID)
	if err != nil {
		slog.Error("media.fetch_failed", "bot_id", t.BotID, "message_id", t.MessageID, "error", err)
		return apperr.Wrap(apperr.MediaFetchFailed, err)
	}

	ext := extensionFor(t.MessageType, contentType)
	path := objectstore.MediaPath(scopeOf(t.BotID), t.MessageType, uuid.NewString(), ext)

	if err := w.store.Put(ctx, w.bucket, path, data, contentType); err != nil {
		slog.Error("media.upload_failed", "bot_id", t.BotID, "message_id", t.MessageID, "error", err)
		return apperr.Wrap(apperr.MediaFetchFailed, err)
	}

	url := w.store.PublicURL(w.bucket, path)
	patched, err := w.convo.PatchMedia(ctx, t.MessageID, path, url)
	if err != nil {
		slog.Error("media.patch_failed", "message_id", t.MessageID, "error", err)
		return apperr.Wrap(apperr.MediaFetchFailed, err)
	}
	if !patched {
		slog.Debug("media.already_patched", "message_id", t.MessageID)
	}
	return nil
}

// Spawn launches Fetch as a detached, failure-isolated goroutine. ctx is
// stripped of the caller's cancellation (almost always an HTTP request
// context that net/http cancels the instant the handler returns) and
// given its own bounded deadline, so the fetch/upload/patch calls that
// outlive the webhook response don't inherit an already-canceled ctx.
func (w *Worker) Spawn(ctx context.Context, t Task) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), spawnTimeout)
	go func() {
		defer cancel()
		if err := w.Fetch(detached, t); err != nil {
			slog.Warn("media.task_failed", "message_id", t.MessageID, "error", err)
		}
	}()
}

func scopeOf(botID string) string {
	if botID == "" {
		return "global"
	}
	return botID
}

func extensionFor(messageType, contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/png":
		return "png"
	case "video/mp4":
		return "mp4"
	case "audio/mp4", "audio/m4a":
		return "m4a"
	}
	switch messageType {
	case "image":
		return "jpg"
	case "video":
		return "mp4"
	case "audio":
		return "m4a"
	default:
		return "bin"
	}
}

// ReprocessPending re-enqueues fetch tasks for messages that are eligible
// for a retry (spec §13 "process-pending-media operation").
func (w *Worker) ReprocessPending(ctx context.Context, botID string, limit int, channelToken string) (int, error) {
	pending, err := w.convo.PendingMedia(ctx, botID, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending media: %w", err)
	}
	for _, m := range pending {
		w.Spawn(ctx, Task{
			BotID:         botID,
			LineUserID:    m.LineUserID,
			MessageID:     m.ID,
			LineMessageID: m.LineMessageID,
			MessageType:   m.MessageType,
			ChannelToken:  channelToken,
		})
	}
	return len(pending), nil
}
