package rewind

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// RawMessage is one authored message from an export, reduced to the fields
// the classifier reads.
type RawMessage struct {
	Role string
	Text string
	At   *time.Time

	// BadTimestamp is set when a timestamp was present but unparseable.
	BadTimestamp bool
}

// RawConversation is one array element of an export. It is read-only and
// discarded after classification.
type RawConversation struct {
	ID         string
	Title      string
	CreateTime *time.Time
	Messages   []RawMessage
}

var errNotConversation = errors.New("element is not a JSON object")

// DecodeConversation accepts either the tree form ({"mapping": {id: {"message": ...}}},
// optionally nested under "conversation") or the flat form ({"messages": [...]}).
// Nodes that are not objects are skipped; the conversation is only rejected
// when the element itself is unusable.
func DecodeConversation(raw []byte) (RawConversation, error) {
	if !gjson.ValidBytes(raw) {
		return RawConversation{}, errors.New("DecodeConversation: invalid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return RawConversation{}, fmt.Errorf("DecodeConversation: %w", errNotConversation)
	}

	conv := root
	if nested := root.Get("conversation"); nested.IsObject() && !root.Get("mapping").Exists() && !root.Get("messages").Exists() {
		conv = nested
	}

	out := RawConversation{
		ID:    firstString(conv, root, "conversation_id", "id"),
		Title: strings.TrimSpace(firstString(conv, root, "title")),
	}
	if t, ok := parseTimestamp(conv.Get("create_time")); ok {
		out.CreateTime = t
	} else if t, ok := parseTimestamp(root.Get("create_time")); ok {
		out.CreateTime = t
	}

	// Mapping nodes are an unordered arena; the classifier orders messages
	// by timestamp.
	switch mapping, messages := conv.Get("mapping"), conv.Get("messages"); {
	case mapping.IsObject():
		mapping.ForEach(func(_, node gjson.Result) bool {
			if msg := node.Get("message"); msg.IsObject() {
				out.Messages = append(out.Messages, decodeMessage(msg))
			}
			return true
		})
	case messages.IsArray():
		messages.ForEach(func(_, msg gjson.Result) bool {
			if msg.IsObject() {
				out.Messages = append(out.Messages, decodeMessage(msg))
			}
			return true
		})
	}
	return out, nil
}

func firstString(conv, root gjson.Result, keys ...string) string {
	for _, src := range []gjson.Result{conv, root} {
		for _, k := range keys {
			if v := src.Get(k); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}
	return ""
}

func decodeMessage(msg gjson.Result) RawMessage {
	role := msg.Get("author.role").String()
	if role == "" {
		role = msg.Get("role").String()
	}
	m := RawMessage{
		Role: strings.ToLower(strings.TrimSpace(role)),
		Text: extractText(msg),
	}
	for _, key := range []string{"create_time", "timestamp", "created_at"} {
		v := msg.Get(key)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			m.At = t
		} else {
			m.BadTimestamp = true
		}
		break
	}
	return m
}

// extractText prefers content.parts (string parts joined with spaces), then
// content.text, then a bare string content, then a top-level text field.
func extractText(msg gjson.Result) string {
	content := msg.Get("content")
	switch {
	case content.Type == gjson.String:
		return content.Str
	case content.IsObject():
		if parts := content.Get("parts"); parts.IsArray() {
			var texts []string
			parts.ForEach(func(_, p gjson.Result) bool {
				switch {
				case p.Type == gjson.String:
					texts = append(texts, p.Str)
				case p.IsObject() && p.Get("text").Type == gjson.String:
					texts = append(texts, p.Get("text").Str)
				}
				return true
			})
			if len(texts) > 0 {
				return strings.Join(texts, " ")
			}
		}
		if t := content.Get("text"); t.Type == gjson.String {
			return t.Str
		}
	}
	if t := msg.Get("text"); t.Type == gjson.String {
		return t.Str
	}
	return ""
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp accepts epoch seconds, epoch milliseconds, or ISO-8601
// strings. Non-positive epochs are treated as unset.
func parseTimestamp(v gjson.Result) (*time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return epochTime(v.Num)
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return nil, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(f)
		}
		for _, layout := range isoLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t, true
			}
		}
	}
	return nil, false
}

func epochTime(f float64) (*time.Time, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	// Anything past year ~5138 in seconds is really milliseconds.
	if f > 1e11 {
		f /= 1000
	}
	t := time.Unix(0, int64(math.Round(f*1e9))).UTC()
	return &t, true
}

// userMessagesByTime returns the user messages ordered by timestamp. Untimed
// messages follow the timed ones in their original relative order; nodes of
// other roles never influence the ordering.
func userMessagesByTime(msgs []RawMessage) []RawMessage {
	out := make([]RawMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "user" {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].At, out[j].At
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.Before(*b)
	})
	return out
}
