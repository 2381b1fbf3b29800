// Package lineapi is a minimal client for the LINE Messaging API's
// reply/push/content endpoints (spec §4.8, §4.3), grounded on the
// teacher's plain net/http provider style (internal/providers/openai.go)
// since no third-party LINE SDK is present in the example pack.
package lineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	apiBase     = "https://api.line.me/v2/bot"
	contentBase = "https://api-data.line.me/v2/bot"
)

type Client struct {
	channelToken string
	http         *http.Client
}

func NewClient(channelToken string) *Client {
	return &Client{channelToken: channelToken, http: &http.Client{Timeout: 15 * time.Second}}
}

// Message is the wire shape for one of LINE's message objects; only the
// fields this system emits are modeled (spec §4.7 reply block kinds).
type Message struct {
	Type               string      `json:"type"`
	Text               string      `json:"text,omitempty"`
	OriginalContentURL string      `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string      `json:"previewImageUrl,omitempty"`
	PackageID          string      `json:"packageId,omitempty"`
	StickerID          string      `json:"stickerId,omitempty"`
	AltText            string      `json:"altText,omitempty"`
	Contents           interface{} `json:"contents,omitempty"`
}

func TextMessage(text string) Message { return Message{Type: "text", Text: text} }

func ImageMessage(original, preview string) Message {
	return Message{Type: "image", OriginalContentURL: original, PreviewImageURL: preview}
}

func StickerMessage(packageID, stickerID string) Message {
	return Message{Type: "sticker", PackageID: packageID, StickerID: stickerID}
}

func FlexMessage(altText string, contents interface{}) Message {
	return Message{Type: "flex", AltText: altText, Contents: contents}
}

func (c *Client) Reply(ctx context.Context, replyToken string, messages []Message) error {
	return c.post(ctx, apiBase+"/message/reply", map[string]interface{}{
		"replyToken": replyToken,
		"messages":   messages,
	})
}

func (c *Client) Push(ctx context.Context, to string, messages []Message) error {
	return c.post(ctx, apiBase+"/message/push", map[string]interface{}{
		"to":       to,
		"messages": messages,
	})
}

func (c *Client) post(ctx context.Context, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal line api payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build line api request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("line api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("line api %s returned %d: %s", url, resp.StatusCode, string(respBody))
	}
	return nil
}

// FetchContent implements media.ContentFetcher: GET
// /v2/bot/message/{id}/content (spec §6).
func (c *Client) FetchContent(ctx context.Context, channelToken, lineMessageID string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/message/%s/content", contentBase, lineMessageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+channelToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("fetch content returned %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read content body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// CheckAccessible implements gateway.LineInfoChecker: a cheap call to
// confirm the channel token is still valid (spec §4.9 webhook_status_update).
func (c *Client) CheckAccessible(ctx context.Context, channelToken string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/info", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+channelToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300
}
