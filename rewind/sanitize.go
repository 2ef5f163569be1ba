package rewind

import (
	"errors"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

// ErrNotSanitized is returned by collaborators that only accept the output
// of Sanitize, such as storage or a remote model.
var ErrNotSanitized = errors.New("summary is not sanitized")

// Sanitize returns a deep copy of s with every field that could carry
// user-authored text cleared or redacted. Counts, scores, enums and
// month/week labels pass through. A nil redactor means privacy.Default.
//
// Sanitize is a fixed point: sanitizing its own output changes nothing.
func Sanitize(s RewindSummary, r privacy.Redactor) RewindSummary {
	if r == nil {
		r = privacy.Default
	}
	out := s
	out.Sanitized = true
	out.Evidence = nil
	out.BusiestMonth = clonePtr(s.BusiestMonth)
	out.PeakHour = clonePtr(s.PeakHour)
	out.AvgPromptChars = clonePtr(s.AvgPromptChars)
	out.LongestPromptChars = clonePtr(s.LongestPromptChars)
	out.MostActiveWeek = clonePtr(s.MostActiveWeek)
	out.MostChaoticWeek = clonePtr(s.MostChaoticWeek)
	out.FirstActivity = clonePtr(s.FirstActivity)
	out.LastActivity = clonePtr(s.LastActivity)
	out.TopTopics = append([]TopicCount(nil), s.TopTopics...)
	out.TopStack = append([]TermCount(nil), s.TopStack...)
	out.TopPhrases = append([]TermCount(nil), s.TopPhrases...)
	out.Nicknames = append([]TermCount(nil), s.Nicknames...)
	out.Months = append([]MonthStat(nil), s.Months...)
	out.TopWords = redactTerms(s.TopWords, r)

	out.Conversations = make([]ConversationSummary, len(s.Conversations))
	for i, c := range s.Conversations {
		c.ID = ""
		c.Title = ""
		c.Excerpt = ""
		c.Description = r.Redact(c.Description)
		c.Tags = append([]string(nil), c.Tags...)
		c.Stack = append([]string(nil), c.Stack...)
		c.FirstAt = clonePtr(c.FirstAt)
		c.LastAt = clonePtr(c.LastAt)
		out.Conversations[i] = c
	}

	if s.Wrapped != nil {
		w := sanitizeWrapped(*s.Wrapped, r)
		out.Wrapped = &w
	}
	return out
}

func sanitizeWrapped(w WrappedSummary, r privacy.Redactor) WrappedSummary {
	out := w
	out.Projects = make([]Project, len(w.Projects))
	for i, p := range w.Projects {
		p.Evidence = nil
		p.LastActive = clonePtr(p.LastActive)
		out.Projects[i] = p
	}
	out.BossFights = make([]BossFight, len(w.BossFights))
	for i, b := range w.BossFights {
		b.Examples = nil
		out.BossFights[i] = b
	}
	out.Wins = append([]WinEntry(nil), w.Wins...)
	if w.Comeback != nil {
		c := *w.Comeback
		c.Title = ""
		c.Excerpt = ""
		c.Description = r.Redact(c.Description)
		out.Comeback = &c
	}
	out.Timeline.FlowMonths = append([]string(nil), w.Timeline.FlowMonths...)
	out.Timeline.FrictionMonths = append([]string(nil), w.Timeline.FrictionMonths...)
	out.Timeline.VillainMonth = clonePtr(w.Timeline.VillainMonth)
	out.Timeline.IndecisionMonth = clonePtr(w.Timeline.IndecisionMonth)
	if w.Weird != nil {
		wt := *w.Weird
		wt.Example = ""
		out.Weird = &wt
	}
	out.Archetype = clonePtr(w.Archetype)
	if len(w.Forecast) > 0 {
		out.Forecast = make([]string, 0, len(w.Forecast))
		for _, f := range w.Forecast {
			if red := r.Redact(f); red != "" {
				out.Forecast = append(out.Forecast, red)
			}
		}
	}
	out.ClosingLine = r.Redact(w.ClosingLine)
	return out
}

// redactTerms redacts each term and merges the ones that collapse together.
func redactTerms(in []TermCount, r privacy.Redactor) []TermCount {
	if len(in) == 0 {
		return nil
	}
	merged := Tally{}
	for _, tc := range in {
		merged.Add(r.Redact(tc.Term), tc.Count)
	}
	return merged.Top(0, 1)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
