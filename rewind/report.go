package rewind

import (
	"fmt"
	"sort"
	"strings"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/fileutils"
)

const reportTopConversations = 5

// RenderMarkdown renders a human-readable report. Pass a sanitized summary
// when the report will be stored or shared.
func RenderMarkdown(s RewindSummary, bangers BangerSet) string {
	var b strings.Builder
	b.WriteString("# Your year in chats\n\n")
	if s.RunID != "" {
		fmt.Fprintf(&b, "- run_id: `%s`\n", s.RunID)
	}
	if !s.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "- generated_at: `%s`\n", s.GeneratedAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if s.Sanitized {
		b.WriteString("- sanitized: `true`\n")
	}
	b.WriteString("\n")

	if s.TotalConversations == 0 {
		b.WriteString("No conversations in range.\n")
		return b.String()
	}

	b.WriteString("## At a glance\n")
	fmt.Fprintf(&b, "- conversations: %d\n", s.TotalConversations)
	fmt.Fprintf(&b, "- messages: %d\n", s.TotalUserMessages)
	fmt.Fprintf(&b, "- active days: %d\n", s.ActiveDays)
	if s.LongestStreak.Days > 0 {
		fmt.Fprintf(&b, "- longest streak: %d days (%s to %s)\n", s.LongestStreak.Days, s.LongestStreak.Start, s.LongestStreak.End)
	}
	if s.BusiestMonth != nil {
		fmt.Fprintf(&b, "- busiest month: %s (%d messages)\n", s.BusiestMonth.Month, s.BusiestMonth.Count)
	}
	if s.PeakHour != nil {
		fmt.Fprintf(&b, "- peak hour: %s\n", formatHour(*s.PeakHour))
	}
	fmt.Fprintf(&b, "- late night: %.1f%%\n", s.LateNightPercent)
	if s.AvgPromptChars != nil {
		fmt.Fprintf(&b, "- average prompt: %.0f characters (trend: %s)\n", *s.AvgPromptChars, s.PromptTrend)
	}
	b.WriteString("\n")

	if len(bangers.Share) > 0 {
		b.WriteString("## The one-liners\n")
		for _, bg := range bangers.Share {
			fmt.Fprintf(&b, "> **%s**", escapeMarkdownInline(bg.Line))
			if bg.Detail != "" {
				fmt.Fprintf(&b, " %s", escapeMarkdownInline(bg.Detail))
			}
			b.WriteString("\n>\n")
		}
		b.WriteString("\n")
	}

	if len(s.TopTopics) > 0 {
		b.WriteString("## Topics\n")
		for _, t := range s.TopTopics {
			fmt.Fprintf(&b, "- %s: %d\n", t.Topic, t.Conversations)
		}
		b.WriteString("\n")
	}
	writeTermList(&b, "Stack", s.TopStack)
	writeTermList(&b, "Phrases", s.TopPhrases)

	if w := s.Wrapped; w != nil {
		writeWrapped(&b, w)
	}

	top := append([]ConversationSummary(nil), s.Conversations...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].UserMessages > top[j].UserMessages })
	if len(top) > reportTopConversations {
		top = top[:reportTopConversations]
	}
	b.WriteString("## Biggest conversations\n")
	for _, c := range top {
		label := c.Description
		if c.Title != "" {
			label = c.Title + ": " + c.Description
		}
		fmt.Fprintf(&b, "- %s (%d messages, %s", escapeMarkdownInline(fileutils.Truncate(label, 100)), c.UserMessages, c.Mood)
		if c.Month != "" {
			fmt.Fprintf(&b, ", %s", c.Month)
		}
		b.WriteString(")\n")
	}
	b.WriteString("\n")
	return b.String()
}

func writeWrapped(b *strings.Builder, w *WrappedSummary) {
	if w.Archetype != nil {
		fmt.Fprintf(b, "## %s\n%s\n\n", w.Archetype.Name, w.Archetype.Tagline)
	}
	if len(w.Projects) > 0 {
		b.WriteString("## Projects\n")
		for _, p := range w.Projects {
			fmt.Fprintf(b, "- %s: %d chats over %d months, %s, %s\n", escapeMarkdownInline(p.Label), p.Chats, p.MonthsActive, p.Intensity, p.Status)
		}
		b.WriteString("\n")
	}
	if len(w.BossFights) > 0 {
		b.WriteString("## Boss fights\n")
		for _, f := range w.BossFights {
			fmt.Fprintf(b, "- %s (%d)\n", f.Label, f.Count)
			for _, ex := range f.Examples {
				fmt.Fprintf(b, "  - \"%s\"\n", escapeMarkdownInline(ex))
			}
		}
		b.WriteString("\n")
	}
	if len(w.Wins) > 0 {
		b.WriteString("## Wins\n")
		for _, e := range w.Wins {
			fmt.Fprintf(b, "- %s: %d\n", e.Label, e.Count)
		}
		b.WriteString("\n")
	}
	if c := w.Comeback; c != nil {
		fmt.Fprintf(b, "## Comeback of the year\n%s", escapeMarkdownInline(c.Description))
		if c.Month != "" {
			fmt.Fprintf(b, " (%s)", c.Month)
		}
		fmt.Fprintf(b, ": %d rough messages, then %d wins.\n\n", c.Friction, c.Wins)
	}
	t := w.Timeline
	if len(t.FlowMonths) > 0 || len(t.FrictionMonths) > 0 || t.VillainMonth != nil {
		b.WriteString("## Timeline\n")
		if len(t.FlowMonths) > 0 {
			fmt.Fprintf(b, "- flow months: %s\n", strings.Join(t.FlowMonths, ", "))
		}
		if len(t.FrictionMonths) > 0 {
			fmt.Fprintf(b, "- friction months: %s\n", strings.Join(t.FrictionMonths, ", "))
		}
		if t.VillainMonth != nil {
			fmt.Fprintf(b, "- villain month: %s\n", t.VillainMonth.Month)
		}
		if t.IndecisionMonth != nil {
			fmt.Fprintf(b, "- most indecisive month: %s\n", t.IndecisionMonth.Month)
		}
		b.WriteString("\n")
	}
	if w.Weird != nil {
		fmt.Fprintf(b, "## Weirdest tech\n%s, in %d conversations.\n\n", w.Weird.Term, w.Weird.Conversations)
	}
	if len(w.Forecast) > 0 || w.ClosingLine != "" {
		b.WriteString("## Next year\n")
		for _, f := range w.Forecast {
			fmt.Fprintf(b, "- %s\n", escapeMarkdownInline(f))
		}
		if w.ClosingLine != "" {
			fmt.Fprintf(b, "\n%s\n", escapeMarkdownInline(w.ClosingLine))
		}
		b.WriteString("\n")
	}
}

func writeTermList(b *strings.Builder, heading string, terms []TermCount) {
	if len(terms) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n", heading)
	for _, t := range terms {
		fmt.Fprintf(b, "- %s: %d\n", escapeMarkdownInline(t.Term), t.Count)
	}
	b.WriteString("\n")
}

func escapeMarkdownInline(s string) string {
	// Minimal: avoid accidental code fences/headers from user-derived text.
	s = fileutils.SanitizeNewlines(s)
	s = strings.ReplaceAll(s, "`", "'")
	return strings.TrimSpace(strings.TrimLeft(s, "#>"))
}
