// Package flex converts the block-editor's Flex message representation
// into LINE's Flex bubble JSON (spec §4.7 "flex" reply semantics),
// grounded on the original logic_engine_service's _to_flex_contents_from_blocks.
package flex

import (
	"encoding/json"
	"strings"
)

// Block is one block-editor node (spec §3 "blocks[] with area ∈
// {header, body, footer}").
type Block struct {
	BlockType string                 `json:"blockType"`
	BlockData map[string]interface{} `json:"blockData"`
}

// ToBubble converts design-time blocks into a LINE Flex bubble,
// grouping by area and rendering per contentType/layoutType, then
// sanitizing nulls and margin/spacing/padding coercion.
func ToBubble(blocks []Block) map[string]interface{} {
	var header, body, footer []map[string]interface{}

	for _, b := range blocks {
		d := b.BlockData
		if d == nil {
			d = map[string]interface{}{}
		}
		var target *[]map[string]interface{}
		switch strField(d, "area") {
		case "header":
			target = &header
		case "footer":
			target = &footer
		default:
			target = &body
		}

		switch b.BlockType {
		case "flex-content":
			if item := renderContent(d); item != nil {
				*target = append(*target, item)
			}
		case "flex-layout":
			if item := renderLayout(d); item != nil {
				*target = append(*target, item)
			}
		}
	}

	if len(body) == 0 {
		body = []map[string]interface{}{
			{"type": "text", "text": "請在 Flex 設計器中添加內容", "color": "#999999", "align": "center"},
		}
	}

	bubble := map[string]interface{}{"type": "bubble"}
	if len(header) > 0 {
		bubble["header"] = boxOf(header)
	}
	bubble["body"] = boxOf(body)
	if len(footer) > 0 {
		bubble["footer"] = boxOf(footer)
	}
	return Sanitize(bubble).(map[string]interface{})
}

func boxOf(contents []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "box", "layout": "vertical", "contents": toAnySlice(contents)}
}

func toAnySlice(in []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

func renderContent(d map[string]interface{}) map[string]interface{} {
	switch strField(d, "contentType") {
	case "text":
		return map[string]interface{}{
			"type":   "text",
			"text":   strOr(d, "text", "文字內容"),
			"color":  strOr(d, "color", "#000000"),
			"size":   strOr(d, "size", "md"),
			"weight": strOr(d, "weight", "regular"),
			"align":  strOr(d, "align", "start"),
			"wrap":   boolOr(d, "wrap", true),
		}
	case "image":
		return map[string]interface{}{
			"type":        "image",
			"url":         strOr(d, "url", "https://via.placeholder.com/300x200"),
			"aspectRatio": strOr(d, "aspectRatio", "20:13"),
			"aspectMode":  strOr(d, "aspectMode", "cover"),
			"size":        strOr(d, "size", "full"),
		}
	case "button":
		return renderButton(d)
	case "separator":
		margin := coerceSpacing(d["margin"], "md")
		obj := map[string]interface{}{"type": "separator", "margin": margin}
		if c := strField(d, "color"); c != "" {
			obj["color"] = c
		} else {
			obj["color"] = "#E0E0E0"
		}
		return obj
	default:
		return nil
	}
}

func renderButton(d map[string]interface{}) map[string]interface{} {
	action, _ := d["action"].(map[string]interface{})
	if action == nil {
		action = map[string]interface{}{}
	}
	label := strOr(action, "label", strOr(d, "label", "按鈕"))
	norm := NormalizeAction(action, d)
	norm["label"] = label

	btn := map[string]interface{}{"type": "button", "action": norm, "style": strOr(d, "style", "primary")}
	if c := strField(d, "color"); c != "" {
		btn["color"] = c
	}
	return btn
}

func renderLayout(d map[string]interface{}) map[string]interface{} {
	switch strField(d, "layoutType") {
	case "spacer":
		return map[string]interface{}{"type": "spacer", "size": strOr(d, "size", "md")}
	case "box":
		return map[string]interface{}{
			"type":     "box",
			"layout":   strOr(d, "layout", "vertical"),
			"contents": []interface{}{},
			"spacing":  coerceSpacing(d["spacing"], "md"),
			"margin":   coerceSpacing(d["margin"], "none"),
		}
	default:
		return nil
	}
}

// NormalizeAction builds a LINE action object with only the fields
// required for its type (spec §4.7 "Action normalization").
// fallback supplies text/label fallbacks from the containing block's data.
func NormalizeAction(action, fallback map[string]interface{}) map[string]interface{} {
	actionType := strOr(action, "type", "message")
	out := map[string]interface{}{"type": actionType}

	switch actionType {
	case "message":
		out["text"] = strOr(action, "text", strOr(fallback, "text", strOr(fallback, "label", "按鈕")))
	case "postback":
		out["data"] = strOr(action, "data", "action=default")
		if dt := strField(action, "displayText"); dt != "" {
			out["displayText"] = dt
		}
	case "uri":
		out["uri"] = strOr(action, "uri", "https://example.com")
	case "datetimepicker":
		out["data"] = strOr(action, "data", "action=default")
		out["mode"] = strOr(action, "mode", "date")
	case "richmenuswitch":
		out["richMenuAliasId"] = strField(action, "richMenuAliasId")
	}
	return out
}

// Sanitize recursively drops null-valued fields and coerces
// margin/spacing/padding object values to strings (spec §4.7).
func Sanitize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			if (k == "margin" || k == "spacing" || k == "padding") && isMap(val) {
				val = coerceSpacing(val, "md")
			}
			out[k] = Sanitize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = Sanitize(item)
		}
		return out
	default:
		return v
	}
}

func isMap(v interface{}) bool {
	_, ok := v.(map[string]interface{})
	return ok
}

// coerceSpacing turns an {"all": "md"} / {"top": "md"} style object into
// its string value, or passes a string through, defaulting to def.
func coerceSpacing(v interface{}, def string) string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return t
		}
	case map[string]interface{}:
		if all, ok := t["all"].(string); ok && all != "" {
			return all
		}
		if top, ok := t["top"].(string); ok && top != "" {
			return top
		}
	}
	return def
}

func strField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func strOr(m map[string]interface{}, key, def string) string {
	if s := strField(m, key); s != "" {
		return s
	}
	return def
}

func boolOr(m map[string]interface{}, key string, def bool) bool {
	if m == nil {
		return def
	}
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

// FromStoredContent converts a FlexMessage's stored `content` — which
// may be a design-time {blocks:[...]} document, an already-LINE-shaped
// bubble/carousel, a JSON string, or plain text — into emittable Flex
// contents (spec §4.7 "resolve content").
func FromStoredContent(stored interface{}) map[string]interface{} {
	empty := func(text string) map[string]interface{} {
		return map[string]interface{}{"type": "bubble", "body": map[string]interface{}{
			"type": "box", "layout": "vertical",
			"contents": []interface{}{map[string]interface{}{"type": "text", "text": text}},
		}}
	}

	switch t := stored.(type) {
	case nil:
		return empty("Empty Flex Message")
	case string:
		raw := strings.TrimSpace(t)
		if raw == "" {
			return empty("Empty Flex Message")
		}
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return empty(raw)
		}
		return FromStoredContent(parsed)
	case map[string]interface{}:
		if rawBlocks, ok := t["blocks"].([]interface{}); ok {
			blocks := make([]Block, 0, len(rawBlocks))
			for _, rb := range rawBlocks {
				m, ok := rb.(map[string]interface{})
				if !ok {
					continue
				}
				bd, _ := m["blockData"].(map[string]interface{})
				blocks = append(blocks, Block{BlockType: strField(m, "blockType"), BlockData: bd})
			}
			return ToBubble(blocks)
		}
		if kind, _ := t["type"].(string); kind == "bubble" || kind == "carousel" || t["body"] != nil || t["contents"] != nil {
			return Sanitize(t).(map[string]interface{})
		}
		return empty("Flex 無內容")
	default:
		return empty("Flex 無內容")
	}
}
