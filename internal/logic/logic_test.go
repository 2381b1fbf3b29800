package logic

import (
	"testing"

	"github.com/anna0613/linebot-control-plane/pkg/lineevents"
)

func textEvent(text string) lineevents.Event {
	return lineevents.Event{Type: lineevents.EventMessage, MessageType: lineevents.MessageText, Text: text}
}

func TestMessageMatchEmptyConditionAlwaysMatches(t *testing.T) {
	if !MessageMatch("anything", "", false) {
		t.Error("empty condition should always match")
	}
}

func TestMessageMatchKeywordList(t *testing.T) {
	if !MessageMatch("I need help please", "support, help, urgent", false) {
		t.Error("expected substring match on comma-separated keyword list")
	}
	if MessageMatch("hello there", "support, urgent", false) {
		t.Error("expected no match when no keyword present")
	}
}

func TestMessageMatchCaseSensitivity(t *testing.T) {
	if MessageMatch("HELLO", "hello", true) {
		t.Error("case-sensitive match should fail on case mismatch")
	}
	if !MessageMatch("HELLO", "hello", false) {
		t.Error("case-insensitive match should succeed")
	}
}

func TestMessageMatchSubstring(t *testing.T) {
	if !MessageMatch("please reset my password", "reset", false) {
		t.Error("expected substring match")
	}
}

func TestEvaluateConditionalBeatsUnconditional(t *testing.T) {
	tpl := Template{
		ID: "tpl-1",
		Blocks: []Block{
			{ID: "e-uncond", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text"}},
			{ID: "r-uncond", BlockType: "reply", BlockData: map[string]interface{}{"replyType": "text", "text": "generic reply", "connectedTo": "e-uncond"}},
			{ID: "e-cond", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text", "condition": "hello"}},
			{ID: "r-cond", BlockType: "reply", BlockData: map[string]interface{}{"replyType": "text", "text": "hi there", "connectedTo": "e-cond"}},
		},
	}

	match := Evaluate([]Template{tpl}, textEvent("hello"), false)
	if match == nil {
		t.Fatal("expected a match")
	}
	if match.EventBlock.ID != "e-cond" {
		t.Errorf("EventBlock.ID = %q, want e-cond (conditional should win)", match.EventBlock.ID)
	}
	if len(match.ReplyBlocks) != 1 || match.ReplyBlocks[0].ID != "r-cond" {
		t.Errorf("unexpected ReplyBlocks: %+v", match.ReplyBlocks)
	}
}

func TestEvaluateNoMatchReturnsNil(t *testing.T) {
	tpl := Template{
		ID: "tpl-1",
		Blocks: []Block{
			{ID: "e1", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text", "condition": "only-this"}},
			{ID: "r1", BlockType: "reply", BlockData: map[string]interface{}{"replyType": "text", "text": "ok", "connectedTo": "e1"}},
		},
	}
	if match := Evaluate([]Template{tpl}, textEvent("unrelated"), false); match != nil {
		t.Errorf("expected nil match, got %+v", match)
	}
}

func TestEvaluateAITakeoverOverridesUnconditional(t *testing.T) {
	tpl := Template{
		ID: "tpl-1",
		Blocks: []Block{
			{ID: "e1", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text"}},
			{ID: "r1", BlockType: "reply", BlockData: map[string]interface{}{"replyType": "text", "text": "fallback", "connectedTo": "e1"}},
		},
	}
	if match := Evaluate([]Template{tpl}, textEvent("hello"), true); match != nil {
		t.Errorf("expected AI takeover to suppress unconditional match, got %+v", match)
	}
}

func TestEvaluateAITakeoverDoesNotOverrideConditional(t *testing.T) {
	tpl := Template{
		ID: "tpl-1",
		Blocks: []Block{
			{ID: "e1", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text", "condition": "hello"}},
			{ID: "r1", BlockType: "reply", BlockData: map[string]interface{}{"replyType": "text", "text": "hi", "connectedTo": "e1"}},
		},
	}
	match := Evaluate([]Template{tpl}, textEvent("hello"), true)
	if match == nil {
		t.Fatal("conditional match should survive AI takeover override")
	}
}

func TestEvaluateSkipsTemplateMissingEventOrReplyBlocks(t *testing.T) {
	emptyTpl := Template{ID: "empty"}
	onlyEvents := Template{ID: "only-events", Blocks: []Block{
		{ID: "e1", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text"}},
	}}
	good := Template{ID: "good", Blocks: []Block{
		{ID: "e1", BlockType: "event", BlockData: map[string]interface{}{"eventType": "message.text"}},
		{ID: "r1", BlockType: "reply", BlockData: map[string]interface{}{"replyType": "text", "text": "ok", "connectedTo": "e1"}},
	}}

	match := Evaluate([]Template{emptyTpl, onlyEvents, good}, textEvent("hi"), false)
	if match == nil || match.Template.ID != "good" {
		t.Errorf("expected match against 'good' template, got %+v", match)
	}
}

func TestCollectContiguousRepliesCapsAtFive(t *testing.T) {
	blocks := []Block{{ID: "e1", BlockType: "event"}}
	for i := 0; i < 7; i++ {
		blocks = append(blocks, Block{ID: "r" + string(rune('a'+i)), BlockType: "reply"})
	}
	out := collectContiguousReplies(blocks, "e1")
	if len(out) != maxContiguousReplies {
		t.Errorf("len(out) = %d, want %d", len(out), maxContiguousReplies)
	}
}

func TestCollectContiguousRepliesStopsAtNextEvent(t *testing.T) {
	blocks := []Block{
		{ID: "e1", BlockType: "event"},
		{ID: "r1", BlockType: "reply"},
		{ID: "e2", BlockType: "event"},
		{ID: "r2", BlockType: "reply"},
	}
	out := collectContiguousReplies(blocks, "e1")
	if len(out) != 1 || out[0].ID != "r1" {
		t.Errorf("expected only r1, got %+v", out)
	}
}

func TestResolveReplyTextFallsBackWhenEmpty(t *testing.T) {
	r := ResolveReply(Block{BlockData: map[string]interface{}{"replyType": "text", "text": ""}})
	if r.Type != "text" || r.Text != fallbackText {
		t.Errorf("expected fallback text reply, got %+v", r)
	}
}

func TestResolveReplyImagePreviewDefaultsToOriginal(t *testing.T) {
	r := ResolveReply(Block{BlockData: map[string]interface{}{
		"replyType":          "image",
		"originalContentUrl": "https://example.com/a.png",
	}})
	if r.ImagePreviewURL != "https://example.com/a.png" {
		t.Errorf("ImagePreviewURL = %q, want fallback to original", r.ImagePreviewURL)
	}
}

func TestResolveReplyFlexAltTextDefault(t *testing.T) {
	r := ResolveReply(Block{BlockData: map[string]interface{}{"replyType": "flex"}})
	if r.FlexAltText != "Flex 訊息" {
		t.Errorf("FlexAltText = %q, want default", r.FlexAltText)
	}
}

func TestResolveReplySticker(t *testing.T) {
	r := ResolveReply(Block{BlockData: map[string]interface{}{
		"replyType": "sticker", "packageId": "1", "stickerId": "2",
	}})
	if r.Type != "sticker" || r.StickerPackageID != "1" || r.StickerID != "2" {
		t.Errorf("unexpected sticker reply: %+v", r)
	}
}
