package flex

import "testing"

func TestToBubbleTextContentDefaultsWhenEmpty(t *testing.T) {
	bubble := ToBubble(nil)
	body, ok := bubble["body"].(map[string]interface{})
	if !ok {
		t.Fatalf("body missing or wrong type: %+v", bubble)
	}
	contents, _ := body["contents"].([]interface{})
	if len(contents) != 1 {
		t.Fatalf("expected placeholder content, got %+v", contents)
	}
}

func TestToBubbleGroupsByArea(t *testing.T) {
	blocks := []Block{
		{BlockType: "flex-content", BlockData: map[string]interface{}{"area": "header", "contentType": "text", "text": "Header"}},
		{BlockType: "flex-content", BlockData: map[string]interface{}{"area": "body", "contentType": "text", "text": "Body"}},
		{BlockType: "flex-content", BlockData: map[string]interface{}{"area": "footer", "contentType": "button", "label": "OK"}},
	}
	bubble := ToBubble(blocks)
	if _, ok := bubble["header"]; !ok {
		t.Error("expected header key present")
	}
	if _, ok := bubble["footer"]; !ok {
		t.Error("expected footer key present")
	}
	if _, ok := bubble["body"]; !ok {
		t.Error("expected body key present")
	}
}

func TestRenderContentTextDefaults(t *testing.T) {
	out := renderContent(map[string]interface{}{"contentType": "text"})
	if out["text"] != "文字內容" || out["color"] != "#000000" {
		t.Errorf("unexpected defaults: %+v", out)
	}
}

func TestRenderContentUnknownTypeReturnsNil(t *testing.T) {
	if out := renderContent(map[string]interface{}{"contentType": "nope"}); out != nil {
		t.Errorf("expected nil for unknown contentType, got %+v", out)
	}
}

func TestNormalizeActionMessage(t *testing.T) {
	out := NormalizeAction(map[string]interface{}{"type": "message"}, map[string]interface{}{"label": "Click me"})
	if out["type"] != "message" || out["text"] != "Click me" {
		t.Errorf("unexpected action: %+v", out)
	}
}

func TestNormalizeActionURI(t *testing.T) {
	out := NormalizeAction(map[string]interface{}{"type": "uri", "uri": "https://foo.bar"}, nil)
	if out["uri"] != "https://foo.bar" {
		t.Errorf("unexpected action: %+v", out)
	}
}

func TestNormalizeActionPostbackWithDisplayText(t *testing.T) {
	out := NormalizeAction(map[string]interface{}{"type": "postback", "data": "x=1", "displayText": "Confirmed"}, nil)
	if out["data"] != "x=1" || out["displayText"] != "Confirmed" {
		t.Errorf("unexpected action: %+v", out)
	}
}

func TestSanitizeDropsNulls(t *testing.T) {
	in := map[string]interface{}{"a": "keep", "b": nil}
	out := Sanitize(in).(map[string]interface{})
	if _, ok := out["b"]; ok {
		t.Error("nil-valued key should have been dropped")
	}
	if out["a"] != "keep" {
		t.Error("non-nil key should survive")
	}
}

func TestSanitizeCoercesMarginObject(t *testing.T) {
	in := map[string]interface{}{"margin": map[string]interface{}{"all": "lg"}}
	out := Sanitize(in).(map[string]interface{})
	if out["margin"] != "lg" {
		t.Errorf("margin = %v, want lg", out["margin"])
	}
}

func TestCoerceSpacingFallsBackToDefault(t *testing.T) {
	if got := coerceSpacing(nil, "md"); got != "md" {
		t.Errorf("coerceSpacing(nil) = %q, want md", got)
	}
	if got := coerceSpacing("", "md"); got != "md" {
		t.Errorf("coerceSpacing(\"\") = %q, want md", got)
	}
	if got := coerceSpacing("lg", "md"); got != "lg" {
		t.Errorf("coerceSpacing(lg) = %q, want lg", got)
	}
}

func TestFromStoredContentNilIsEmptyBubble(t *testing.T) {
	out := FromStoredContent(nil)
	if out["type"] != "bubble" {
		t.Errorf("expected bubble, got %+v", out)
	}
}

func TestFromStoredContentPlainStringFallsBackToText(t *testing.T) {
	out := FromStoredContent("just some text, not json")
	body := out["body"].(map[string]interface{})
	contents := body["contents"].([]interface{})
	text := contents[0].(map[string]interface{})
	if text["text"] != "just some text, not json" {
		t.Errorf("unexpected fallback text bubble: %+v", out)
	}
}

func TestFromStoredContentBlocksDocument(t *testing.T) {
	stored := map[string]interface{}{
		"blocks": []interface{}{
			map[string]interface{}{
				"blockType": "flex-content",
				"blockData": map[string]interface{}{"area": "body", "contentType": "text", "text": "hi"},
			},
		},
	}
	out := FromStoredContent(stored)
	if out["type"] != "bubble" {
		t.Errorf("expected bubble conversion, got %+v", out)
	}
}

func TestFromStoredContentAlreadyLineShaped(t *testing.T) {
	stored := map[string]interface{}{"type": "bubble", "body": map[string]interface{}{"type": "box"}}
	out := FromStoredContent(stored)
	if out["type"] != "bubble" {
		t.Errorf("expected passthrough bubble, got %+v", out)
	}
}
