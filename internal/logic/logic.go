// Package logic implements the Logic Engine (C7): matching an inbound
// LINE event against a bot's active templates and resolving the reply
// blocks to emit (spec §4.7), grounded on the original
// logic_engine_service's _select_reply_block / _message_match /
// _find_connected_reply_block.
package logic

import (
	"strings"

	"github.com/anna0613/linebot-control-plane/pkg/lineevents"
)

// Block is one node inside a LogicTemplate's logic_blocks document
// (spec §3). Tagged by BlockType ("event" | "reply"); BlockData carries
// the type-specific fields as a decoded map, per spec §9's boundary
// tagged-variant guidance — block payload shapes vary too widely across
// event/reply/flex-content/flex-layout to model as one Go struct, so
// this is the one deliberate map[string]interface{} boundary in the
// reaction pipeline.
type Block struct {
	ID        string
	BlockType string // "event" | "reply"
	BlockData map[string]interface{}
}

func (b Block) str(key string) string {
	if b.BlockData == nil {
		return ""
	}
	s, _ := b.BlockData[key].(string)
	return s
}

func (b Block) boolField(key string) bool {
	if b.BlockData == nil {
		return false
	}
	v, _ := b.BlockData[key].(bool)
	return v
}

// EventType returns blockData.eventType for an event block.
func (b Block) EventType() string { return b.str("eventType") }

// Template is one LogicTemplate row (spec §3), pre-decoded into blocks.
type Template struct {
	ID     string
	Name   string
	Blocks []Block
}

// Reply describes one emittable reply, resolved from a matched reply
// block (spec §4.7 "Reply block semantics").
type Reply struct {
	Type string // text | flex | image | sticker
	Text string

	FlexAltText    string
	FlexMessageID  string
	FlexContent    interface{} // inline design-time or raw bubble JSON

	ImageOriginalURL string
	ImagePreviewURL  string

	StickerPackageID string
	StickerID        string
}

const maxContiguousReplies = 5

// Match represents spec §4.7 step 7's outcome: the contiguous reply
// blocks to emit for one matched event block.
type Match struct {
	Template    Template
	EventBlock  Block
	ReplyBlocks []Block
}

// Evaluate runs spec §4.7's algorithm over a bot's active templates,
// ordered by updated_at desc by the caller, returning the first
// template that matches (or nil if none does, or if the AI-takeover
// override applies).
func Evaluate(templates []Template, ev lineevents.Event, aiTakeoverEnabled bool) *Match {
	for _, tpl := range templates {
		eventBlocks, replyBlocks := partition(tpl.Blocks)
		if len(eventBlocks) == 0 || len(replyBlocks) == 0 {
			continue
		}

		eb := selectEventBlock(eventBlocks, ev)
		if eb == nil {
			continue
		}

		if aiTakeoverOverrides(*eb, ev, aiTakeoverEnabled) {
			continue
		}

		rb := findConnectedReplyBlock(*eb, replyBlocks)
		if rb == nil {
			continue
		}

		contiguous := collectContiguousReplies(tpl.Blocks, eb.ID)
		if len(contiguous) == 0 {
			continue
		}
		return &Match{Template: tpl, EventBlock: *eb, ReplyBlocks: contiguous}
	}
	return nil
}

func partition(blocks []Block) (events, replies []Block) {
	for _, b := range blocks {
		switch b.BlockType {
		case "event":
			events = append(events, b)
		case "reply":
			replies = append(replies, b)
		}
	}
	return
}

// selectEventBlock implements spec §4.7 steps 2-4: conditional matches
// win over unconditional ones, in source order within each group.
func selectEventBlock(eventBlocks []Block, ev lineevents.Event) *Block {
	var conditional, unconditional []Block
	for _, eb := range eventBlocks {
		switch eb.EventType() {
		case "message.text":
			if cond(eb) != "" {
				conditional = append(conditional, eb)
			} else {
				unconditional = append(unconditional, eb)
			}
		case "postback":
			if eb.str("data") != "" {
				conditional = append(conditional, eb)
			} else {
				unconditional = append(unconditional, eb)
			}
		case "follow", "unfollow", "message.image", "message.video", "message.audio":
			unconditional = append(unconditional, eb)
		}
	}

	for i := range conditional {
		if matchesConditional(conditional[i], ev) {
			eb := conditional[i]
			return &eb
		}
	}
	for i := range unconditional {
		if matchesUnconditional(unconditional[i], ev) {
			eb := unconditional[i]
			return &eb
		}
	}
	return nil
}

func cond(eb Block) string {
	if c := eb.str("condition"); c != "" {
		return strings.TrimSpace(c)
	}
	return strings.TrimSpace(eb.str("pattern"))
}

func matchesConditional(eb Block, ev lineevents.Event) bool {
	switch eb.EventType() {
	case "message.text":
		if ev.Type != lineevents.EventMessage || ev.MessageType != lineevents.MessageText {
			return false
		}
		return MessageMatch(ev.Text, cond(eb), eb.boolField("caseSensitive"))
	case "postback":
		if ev.Type != lineevents.EventPostback {
			return false
		}
		return ev.PostbackData == strings.TrimSpace(eb.str("data"))
	}
	return false
}

func matchesUnconditional(eb Block, ev lineevents.Event) bool {
	switch eb.EventType() {
	case "message.text":
		return ev.Type == lineevents.EventMessage && ev.MessageType == lineevents.MessageText
	case "postback":
		return ev.Type == lineevents.EventPostback
	case "follow":
		return ev.Type == lineevents.EventFollow
	case "unfollow":
		return ev.Type == lineevents.EventUnfollow
	case "message.image":
		return ev.Type == lineevents.EventMessage && ev.MessageType == lineevents.MessageImage
	case "message.video":
		return ev.Type == lineevents.EventMessage && ev.MessageType == lineevents.MessageVideo
	case "message.audio":
		return ev.Type == lineevents.EventMessage && ev.MessageType == lineevents.MessageAudio
	}
	return false
}

// MessageMatch implements spec §4.7 step 3's message.text rule: empty
// condition always matches; commas split into keywords, any exact or
// substring match wins; otherwise exact-or-substring on the whole
// condition, case-adjusted.
func MessageMatch(message, condition string, caseSensitive bool) bool {
	if condition == "" {
		return true
	}
	msg, cnd := message, condition
	if !caseSensitive {
		msg = strings.ToLower(msg)
		cnd = strings.ToLower(cnd)
	}

	if strings.Contains(cnd, ",") {
		for _, kw := range strings.Split(cnd, ",") {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if kw == msg || strings.Contains(msg, kw) {
				return true
			}
		}
		return false
	}

	return msg == cnd || strings.Contains(msg, cnd)
}

// findConnectedReplyBlock prefers a reply block whose connectedTo or
// parentId equals the event block's id; else the first reply block
// (spec §4.7 step 5).
func findConnectedReplyBlock(eb Block, replyBlocks []Block) *Block {
	if eb.ID != "" {
		for i := range replyBlocks {
			rb := replyBlocks[i]
			if rb.str("connectedTo") == eb.ID || rb.str("parentId") == eb.ID {
				return &rb
			}
		}
	}
	if len(replyBlocks) > 0 {
		rb := replyBlocks[0]
		return &rb
	}
	return nil
}

// aiTakeoverOverrides implements spec §4.7 step 6: unconditional
// message.text or a generic "message" event block yields to RAG when
// AI takeover is enabled for a text message. Conditional matches
// (non-empty condition) still win.
func aiTakeoverOverrides(eb Block, ev lineevents.Event, aiTakeoverEnabled bool) bool {
	if !aiTakeoverEnabled {
		return false
	}
	if ev.Type != lineevents.EventMessage || ev.MessageType != lineevents.MessageText {
		return false
	}
	et := eb.EventType()
	if et == "message.text" && cond(eb) == "" {
		return true
	}
	if et == "message" {
		return true
	}
	return false
}

// collectContiguousReplies implements spec §4.7 step 7: starting after
// the matched event block, consume up to 5 contiguous reply blocks,
// stopping at the next event block.
func collectContiguousReplies(all []Block, eventBlockID string) []Block {
	start := -1
	for i, b := range all {
		if b.ID == eventBlockID {
			start = i
			break
		}
	}
	if start == -1 {
		return nil
	}

	var out []Block
	for i := start + 1; i < len(all) && len(out) < maxContiguousReplies; i++ {
		b := all[i]
		if b.BlockType == "event" {
			break
		}
		if b.BlockType != "reply" {
			continue
		}
		out = append(out, b)
	}
	return out
}

// fallbackText is used when a text reply block's text is empty (spec
// §4.7 "empty → fallback string").
const fallbackText = "我還不知道如何回應您的訊息"

// ResolveReply converts a matched reply Block into an emittable Reply
// (spec §4.7 "Reply block semantics").
func ResolveReply(b Block) Reply {
	switch strings.ToLower(b.str("replyType")) {
	case "flex":
		r := Reply{Type: "flex", FlexAltText: b.str("altText")}
		if r.FlexAltText == "" {
			r.FlexAltText = "Flex 訊息"
		}
		r.FlexMessageID = b.str("flexMessageId")
		if c, ok := b.BlockData["flexContent"]; ok {
			r.FlexContent = c
		}
		return r
	case "image":
		original := b.str("originalContentUrl")
		preview := b.str("previewImageUrl")
		if preview == "" {
			preview = original
		}
		return Reply{Type: "image", ImageOriginalURL: original, ImagePreviewURL: preview}
	case "sticker":
		return Reply{Type: "sticker", StickerPackageID: b.str("packageId"), StickerID: b.str("stickerId")}
	default:
		text := b.str("text")
		if text == "" {
			text = fallbackText
		}
		return Reply{Type: "text", Text: text}
	}
}
