package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/fileutils"
)

const (
	DefaultCaptionModel = "gpt-5-mini"
	maxCaptionRunes     = 160
	captionMaxOutTokens = 400
	captionListLimit    = 5
)

const captionPrompt = `You write the closing line of a playful "year in review" for someone's chatbot usage.
You receive only aggregate, categorical facts: counts, category labels and an archetype.
Write ONE sentence, at most 140 characters, warm and a little cheeky.
Do not invent facts, names, projects or numbers that are not in the input.
Return JSON: {"closing_line": "..."}`

// CaptionInput is everything the polisher may reveal to the model. It is
// built only from categorical fields of a sanitized summary.
type CaptionInput struct {
	Archetype     string   `json:"archetype,omitempty"`
	Conversations int      `json:"conversations"`
	Messages      int      `json:"messages"`
	ActiveDays    int      `json:"active_days"`
	StreakDays    int      `json:"streak_days"`
	Topics        []string `json:"topics,omitempty"`
	Stack         []string `json:"stack,omitempty"`
	Projects      []string `json:"projects,omitempty"`
	BossFights    []string `json:"boss_fights,omitempty"`
	Wins          []string `json:"wins,omitempty"`
	RuleBasedLine string   `json:"rule_based_line,omitempty"`
}

type captionResponse struct {
	ClosingLine string `json:"closing_line" jsonschema:"required"`
}

var captionSchema = GenerateSchema[captionResponse]()

// NewCaptionInput extracts the polisher input from a sanitized summary.
func NewCaptionInput(s rewind.RewindSummary) (CaptionInput, error) {
	if !s.Sanitized {
		return CaptionInput{}, fmt.Errorf("NewCaptionInput: %w", rewind.ErrNotSanitized)
	}
	in := CaptionInput{
		Conversations: s.TotalConversations,
		Messages:      s.TotalUserMessages,
		ActiveDays:    s.ActiveDays,
		StreakDays:    s.LongestStreak.Days,
	}
	for _, t := range s.TopTopics {
		in.Topics = appendLimited(in.Topics, string(t.Topic))
	}
	for _, t := range s.TopStack {
		in.Stack = appendLimited(in.Stack, t.Term)
	}
	if w := s.Wrapped; w != nil {
		if w.Archetype != nil {
			in.Archetype = w.Archetype.Name
		}
		for _, p := range w.Projects {
			in.Projects = appendLimited(in.Projects, p.Label)
		}
		for _, f := range w.BossFights {
			in.BossFights = appendLimited(in.BossFights, f.Label)
		}
		for _, e := range w.Wins {
			in.Wins = appendLimited(in.Wins, e.Label)
		}
		in.RuleBasedLine = w.ClosingLine
	}
	return in, nil
}

func appendLimited(list []string, v string) []string {
	if len(list) >= captionListLimit || strings.TrimSpace(v) == "" {
		return list
	}
	return append(list, v)
}

// CaptionPolisher asks a model for a friendlier closing line.
type CaptionPolisher struct {
	Client Responder
	Model  string
	Retry  RetryPolicy
}

// Polish returns a model-written closing line for s, which must be
// sanitized. Callers keep the rule-based line on error.
func (p CaptionPolisher) Polish(ctx context.Context, s rewind.RewindSummary) (string, error) {
	if p.Client == nil {
		return "", errors.New("CaptionPolisher: client is nil")
	}
	in, err := NewCaptionInput(s)
	if err != nil {
		return "", err
	}
	model := p.Model
	if model == "" {
		model = DefaultCaptionModel
	}
	input, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("CaptionPolisher: marshal input: %w", err)
	}

	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(captionMaxOutTokens),
		Instructions:    openai.String(captionPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(string(input), responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "ClosingLine",
					Schema:      captionSchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Closing line JSON"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := p.Retry.Call(ctx, p.Client, params)
	if err != nil {
		return "", fmt.Errorf("CaptionPolisher: %w", err)
	}
	var out captionResponse
	if err := DecodeModelJSON(resp.OutputText(), &out); err != nil {
		return "", fmt.Errorf("CaptionPolisher: unmarshal: %w (model_output_prefix=%q)", err, fileutils.Truncate(resp.OutputText(), 200))
	}
	line := strings.TrimSpace(fileutils.SanitizeNewlines(out.ClosingLine))
	switch {
	case line == "":
		return "", errors.New("CaptionPolisher: empty closing line")
	case utf8.RuneCountInString(line) > maxCaptionRunes:
		return "", fmt.Errorf("CaptionPolisher: closing line too long (%d runes)", utf8.RuneCountInString(line))
	}
	return line, nil
}
