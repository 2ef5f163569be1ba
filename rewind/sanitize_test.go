package rewind

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func richSummary(t *testing.T) RewindSummary {
	t.Helper()
	base := time.Date(2024, 6, 3, 23, 15, 0, 0, time.UTC)
	convs := []RawConversation{
		{
			ID:    "conv-secret-1",
			Title: "Fixing a Python bug for order 55512345",
			Messages: []RawMessage{
				userMsg("why is this broken?!?! call me Alex at +1 415 555 0199", &base),
				userMsg("still broken, order 99887766", at(base.Add(time.Minute))),
				userMsg("fixed it, thanks!", at(base.Add(2*time.Minute))),
			},
		},
		{
			ID:    "conv-secret-2",
			Title: "Haskell homework",
			Messages: []RawMessage{
				userMsg("should i use haskell or python? not sure, idk", at(base.AddDate(0, 0, 1))),
			},
		},
	}
	agg := NewAggregator(AggregateOptions{})
	for _, c := range convs {
		cs, contrib, ok := Classify(c, ClassifyOptions{})
		if !ok {
			t.Fatalf("Classify(%s): ok=false", c.ID)
		}
		agg.Add(cs, contrib)
	}
	s := agg.Summary()
	w := Synthesize(s, WrappedOptions{Now: base})
	s.Wrapped = &w
	return s
}

func TestSanitize_ClearsFreeText(t *testing.T) {
	t.Parallel()

	s := richSummary(t)
	if s.Evidence == nil || s.Conversations[0].Excerpt == "" {
		t.Fatalf("fixture has no free text to clear")
	}

	clean := Sanitize(s, nil)
	if !clean.Sanitized {
		t.Fatalf("Sanitized=false")
	}
	if clean.Evidence != nil {
		t.Fatalf("evidence kept: %v", clean.Evidence)
	}
	for _, c := range clean.Conversations {
		if c.ID != "" || c.Title != "" || c.Excerpt != "" {
			t.Fatalf("conversation text kept: %+v", c)
		}
	}
	for _, f := range clean.Wrapped.BossFights {
		if f.Examples != nil {
			t.Fatalf("boss fight examples kept: %+v", f)
		}
	}
	if cb := clean.Wrapped.Comeback; cb == nil || cb.Title != "" || cb.Excerpt != "" {
		t.Fatalf("comeback=%+v", cb)
	}
	if clean.Wrapped.Weird == nil || clean.Wrapped.Weird.Example != "" {
		t.Fatalf("weird=%+v", clean.Wrapped.Weird)
	}

	b, err := json.Marshal(clean)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, leak := range []string{"conv-secret", "Alex", "555", "99887766", "55512345", "broken?!?!"} {
		if strings.Contains(string(b), leak) {
			t.Fatalf("sanitized JSON leaks %q", leak)
		}
	}

	// Statistics pass through.
	if clean.TotalUserMessages != s.TotalUserMessages || clean.ActiveDays != s.ActiveDays || clean.Behavior != s.Behavior {
		t.Fatalf("statistics changed")
	}
	if clean.Conversations[0].Intent != s.Conversations[0].Intent || clean.Conversations[0].Month != s.Conversations[0].Month {
		t.Fatalf("categorical fields changed")
	}
}

func TestSanitize_IsAFixedPoint(t *testing.T) {
	t.Parallel()

	once := Sanitize(richSummary(t), nil)
	twice := Sanitize(once, nil)
	if !reflect.DeepEqual(once, twice) {
		a, _ := json.Marshal(once)
		b, _ := json.Marshal(twice)
		t.Fatalf("sanitize is not idempotent:\n%s\n%s", a, b)
	}
}

func TestSanitize_DoesNotAliasInput(t *testing.T) {
	t.Parallel()

	s := richSummary(t)
	clean := Sanitize(s, nil)
	clean.Conversations[0].Tags = append(clean.Conversations[0].Tags[:0], "mutated")
	clean.Wrapped.Projects = nil
	if s.Conversations[0].Title == "" || s.Evidence == nil {
		t.Fatalf("input was modified")
	}
	if len(s.Conversations[0].Tags) > 0 && s.Conversations[0].Tags[0] == "mutated" {
		t.Fatalf("tags slice aliased")
	}
}
