package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
)

type fakeResponder struct {
	errs   []error
	text   string
	calls  int
	params []responses.ResponseNewParams
}

func (f *fakeResponder) New(_ context.Context, body responses.ResponseNewParams, _ ...option.RequestOption) (*responses.Response, error) {
	f.calls++
	f.params = append(f.params, body)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return textResponse(f.text)
}

func textResponse(text string) (*responses.Response, error) {
	quoted, err := json.Marshal(text)
	if err != nil {
		return nil, err
	}
	raw := fmt.Sprintf(`{"id":"resp_1","object":"response","status":"completed","output":[`+
		`{"type":"message","id":"msg_1","role":"assistant","status":"completed",`+
		`"content":[{"type":"output_text","text":%s,"annotations":[]}]}]}`, quoted)
	var resp responses.Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

var noWait = RetryPolicy{
	RateLimitWaits:   []time.Duration{0, 0},
	ServerErrorWaits: []time.Duration{0},
}

func sanitizedSummary() rewind.RewindSummary {
	return rewind.RewindSummary{
		Sanitized:          true,
		TotalConversations: 12,
		TotalUserMessages:  80,
		ActiveDays:         9,
		LongestStreak:      rewind.Streak{Days: 4},
		TopTopics:          []rewind.TopicCount{{Topic: rewind.TopicCoding, Conversations: 10}},
		TopStack:           []rewind.TermCount{{Term: "Go", Count: 7}},
		Conversations:      []rewind.ConversationSummary{{Description: "Debugging code in Go", Intent: rewind.IntentDebug}},
		Wrapped: &rewind.WrappedSummary{
			Archetype:   &rewind.Archetype{Key: "builder", Name: "The Builder"},
			Projects:    []rewind.Project{{Key: "web-app/Go", Label: "Web app (Go)", Chats: 5}},
			BossFights:  []rewind.BossFight{{Key: "trouble", Label: "Things breaking", Count: 3}},
			Wins:        []rewind.WinEntry{{Key: "signals", Label: "It works!", Count: 2}},
			ClosingLine: "The Builder energy: 12 chats, 80 messages, and a 4-day streak.",
		},
	}
}

func TestCallWithRetry_RetriesRateLimitThenSucceeds(t *testing.T) {
	t.Parallel()

	f := &fakeResponder{errs: []error{errors.New("POST /responses: 429 Too Many Requests")}, text: "ok"}
	resp, err := noWait.Call(context.Background(), f, responses.ResponseNewParams{})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("calls=%d, want 2", f.calls)
	}
	if got := resp.OutputText(); got != "ok" {
		t.Fatalf("output=%q, want %q", got, "ok")
	}
}

func TestCallWithRetry_GivesUp(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		errs      []error
		wantCalls int
	}{
		{name: "client error", errs: []error{errors.New("400 Bad Request: invalid schema")}, wantCalls: 1},
		{name: "server errors exhausted", errs: []error{
			errors.New("500 Internal Server Error"),
			errors.New("500 Internal Server Error"),
			errors.New("500 Internal Server Error"),
		}, wantCalls: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := &fakeResponder{errs: tc.errs}
			if _, err := noWait.Call(context.Background(), f, responses.ResponseNewParams{}); err == nil {
				t.Fatalf("expected error")
			}
			if f.calls != tc.wantCalls {
				t.Fatalf("calls=%d, want %d", f.calls, tc.wantCalls)
			}
		})
	}
}

func TestCallWithRetry_WaitStopsOnContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := &fakeResponder{errs: []error{errors.New("rate limit reached")}}
	start := time.Now()
	_, err := DefaultRetryPolicy.Call(ctx, f, responses.ResponseNewParams{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v, want deadline exceeded", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("wait did not stop on context")
	}
}

func TestNewCaptionInput_RefusesUnsanitized(t *testing.T) {
	t.Parallel()

	s := sanitizedSummary()
	s.Sanitized = false
	if _, err := NewCaptionInput(s); !errors.Is(err, rewind.ErrNotSanitized) {
		t.Fatalf("err=%v, want ErrNotSanitized", err)
	}

	f := &fakeResponder{text: `{"closing_line":"nope"}`}
	if _, err := (CaptionPolisher{Client: f}).Polish(context.Background(), s); !errors.Is(err, rewind.ErrNotSanitized) {
		t.Fatalf("Polish err=%v, want ErrNotSanitized", err)
	}
	if f.calls != 0 {
		t.Fatalf("model was called for an unsanitized summary")
	}
}

func TestNewCaptionInput_CategoricalOnly(t *testing.T) {
	t.Parallel()

	in, err := NewCaptionInput(sanitizedSummary())
	if err != nil {
		t.Fatalf("NewCaptionInput: %v", err)
	}
	if in.Archetype != "The Builder" || in.StreakDays != 4 || in.Conversations != 12 {
		t.Fatalf("input=%+v", in)
	}
	if len(in.Projects) != 1 || in.Projects[0] != "Web app (Go)" {
		t.Fatalf("projects=%v", in.Projects)
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "Debugging code") {
		t.Fatalf("per-conversation text leaked into caption input: %s", b)
	}
}

func TestCaptionPolisher_Polish(t *testing.T) {
	t.Parallel()

	f := &fakeResponder{text: "```json\n{\"closing_line\": \"  Builder mode: 80 messages and not one quiet week.\\n\"}\n```"}
	p := CaptionPolisher{Client: f, Retry: noWait}
	line, err := p.Polish(context.Background(), sanitizedSummary())
	if err != nil {
		t.Fatalf("Polish: %v", err)
	}
	if line != "Builder mode: 80 messages and not one quiet week." {
		t.Fatalf("line=%q", line)
	}
	if f.calls != 1 {
		t.Fatalf("calls=%d, want 1", f.calls)
	}
	if got := f.params[0].Model; got != DefaultCaptionModel {
		t.Fatalf("model=%q, want %q", got, DefaultCaptionModel)
	}
}

func TestCaptionPolisher_RejectsUnusableLines(t *testing.T) {
	t.Parallel()

	for name, text := range map[string]string{
		"empty":    `{"closing_line": "   "}`,
		"too long": `{"closing_line": "` + strings.Repeat("na", 100) + `"}`,
		"not json": `I would rather not.`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := CaptionPolisher{Client: &fakeResponder{text: text}, Retry: noWait}
			if _, err := p.Polish(context.Background(), sanitizedSummary()); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDecodeModelJSON(t *testing.T) {
	t.Parallel()

	var out captionResponse
	if err := DecodeModelJSON("Sure! {\"closing_line\":\"hi\"} Hope that helps.", &out); err != nil {
		t.Fatalf("DecodeModelJSON: %v", err)
	}
	if out.ClosingLine != "hi" {
		t.Fatalf("closing_line=%q", out.ClosingLine)
	}
	if err := DecodeModelJSON("   ", &out); err == nil {
		t.Fatalf("expected error for empty output")
	}
}

func TestGenerateSchema_IsStrict(t *testing.T) {
	t.Parallel()

	schema := GenerateSchema[captionResponse]()
	if schema["additionalProperties"] != false {
		t.Fatalf("additionalProperties=%v, want false", schema["additionalProperties"])
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "closing_line" {
		t.Fatalf("required=%#v", schema["required"])
	}
}

func TestDocumentSchema_DescribesSummary(t *testing.T) {
	t.Parallel()

	b, err := DocumentSchema[rewind.RewindSummary]()
	if err != nil {
		t.Fatalf("DocumentSchema: %v", err)
	}
	for _, want := range []string{`"total_conversations"`, `"wrapped"`, `"closing_line"`} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("schema missing %s", want)
		}
	}
}
