package rewind

import (
	"fmt"
	"sort"
	"time"
)

const (
	maxProjects          = 5
	minProjectChats      = 2
	obsessiveChats       = 20
	steadyChats          = 6
	recurringWindow      = 45 * 24 * time.Hour
	abandonedMinChats    = 6
	timelineMinChats     = 10
	maxBossFights        = 3
	maxWins              = 3
	maxProjectEvidence   = 3
	builderMinProjects   = 3
	debuggerFrictionRate = 0.25
	recentWindow         = 90 * 24 * time.Hour
)

// Project statuses.
const (
	StatusRecurring = "recurring"
	StatusShipped   = "shipped"
	StatusAbandoned = "abandoned"
	StatusUnknown   = "unknown"
)

// WrappedOptions carries the clock used for recency checks.
type WrappedOptions struct {
	Now time.Time
}

// Synthesize derives the narrative view from a finished summary. Every
// section stays empty when its underlying counts are zero.
func Synthesize(s RewindSummary, opts WrappedOptions) WrappedSummary {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	w := WrappedSummary{}
	w.Projects = clusterProjects(s.Conversations, now)
	w.BossFights = bossFights(s)
	w.Wins = winTally(s, w.Projects)
	w.Comeback = comebackHighlight(s.Conversations)
	w.Timeline = timeline(s)
	w.Weird = weirdTech(s.Conversations)
	w.Archetype = archetype(s, w.Projects)
	w.Forecast = forecast(s, w.BossFights)
	w.ClosingLine = closingLine(s, w.Archetype)
	return w
}

type projectAcc struct {
	Project
	months map[string]struct{}
}

func projectKey(c ConversationSummary) (key, label string) {
	switch {
	case c.Theme != "":
		return c.Theme, themeLabel(c.Theme)
	case c.Topic != TopicOther:
		return string(c.Topic), topicLabels[c.Topic]
	default:
		return "intent:" + string(c.Intent), "assorted " + string(c.Intent) + " chats"
	}
}

func clusterProjects(convs []ConversationSummary, now time.Time) []Project {
	accs := map[string]*projectAcc{}
	for _, c := range convs {
		if c.Intent == IntentVent {
			continue
		}
		base, label := projectKey(c)
		stack := primaryStack(c.Stack)
		key := base
		if stack != "" {
			key += "/" + stack
			label += " (" + stack + ")"
		}
		p := accs[key]
		if p == nil {
			p = &projectAcc{Project: Project{Key: key, Label: label, Stack: stack}, months: map[string]struct{}{}}
			accs[key] = p
		}
		p.Chats++
		p.Messages += c.UserMessages
		p.Wins += c.Wins
		p.Friction += c.Friction
		if c.Month != "" {
			p.months[c.Month] = struct{}{}
		}
		if c.LastAt != nil && (p.LastActive == nil || c.LastAt.After(*p.LastActive)) {
			t := *c.LastAt
			p.LastActive = &t
		}
		if c.Title != "" && len(p.Evidence) < maxProjectEvidence {
			p.Evidence = append(p.Evidence, c.Title)
		}
	}

	var out []Project
	for _, p := range accs {
		if p.Chats < minProjectChats {
			continue
		}
		p.MonthsActive = len(p.months)
		p.Intensity = intensity(p.Chats)
		p.Status = projectStatus(p.Project, now)
		out = append(out, p.Project)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Messages != out[j].Messages {
			return out[i].Messages > out[j].Messages
		}
		if out[i].Chats != out[j].Chats {
			return out[i].Chats > out[j].Chats
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > maxProjects {
		out = out[:maxProjects]
	}
	return out
}

func intensity(chats int) string {
	switch {
	case chats >= obsessiveChats:
		return "obsessive"
	case chats >= steadyChats:
		return "steady"
	default:
		return "light"
	}
}

func projectStatus(p Project, now time.Time) string {
	switch {
	case p.LastActive != nil && now.Sub(*p.LastActive) <= recurringWindow:
		return StatusRecurring
	case p.Wins > 0 && p.Wins >= p.Friction:
		return StatusShipped
	case p.Friction >= 2*p.Wins && p.Chats >= abandonedMinChats:
		return StatusAbandoned
	default:
		return StatusUnknown
	}
}

var bossLabels = map[string]string{
	EvidenceTrouble:    "Things being broken",
	EvidenceAgainStill: "The \"again\" / \"still\" loop",
	EvidenceBursts:     "Punctuation meltdowns",
	EvidenceShouting:   "CAPS LOCK moments",
	EvidenceIndecision: "Decision paralysis",
}

func bossFights(s RewindSummary) []BossFight {
	b := s.Behavior
	candidates := []BossFight{
		{Key: EvidenceTrouble, Count: b.FrustrationCount},
		{Key: EvidenceAgainStill, Count: b.AgainStillCount},
		{Key: EvidenceBursts, Count: b.PunctuationBursts},
		{Key: EvidenceShouting, Count: b.ShoutingMessages},
		{Key: EvidenceIndecision, Count: b.IndecisionCount},
	}
	var out []BossFight
	for _, c := range candidates {
		if c.Count <= 0 {
			continue
		}
		c.Label = bossLabels[c.Key]
		c.Examples = append([]string(nil), s.Evidence[c.Key]...)
		if len(c.Examples) == 0 {
			c.Examples = nil
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > maxBossFights {
		out = out[:maxBossFights]
	}
	return out
}

func winTally(s RewindSummary, projects []Project) []WinEntry {
	var shipped, comebacks, flow int
	for _, p := range projects {
		if p.Status == StatusShipped {
			shipped++
		}
	}
	for _, c := range s.Conversations {
		if c.Comeback {
			comebacks++
		}
		if c.Mood == MoodFlow {
			flow++
		}
	}
	candidates := []WinEntry{
		{Key: "shipped", Label: "Projects that look shipped", Count: shipped},
		{Key: "comebacks", Label: "Comebacks from a broken state", Count: comebacks},
		{Key: "flow", Label: "Conversations in flow", Count: flow},
		{Key: "signals", Label: "\"It works\" moments", Count: s.Behavior.WinCount},
	}
	var out []WinEntry
	for _, c := range candidates {
		if c.Count > 0 {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > maxWins {
		out = out[:maxWins]
	}
	return out
}

// comebackHighlight picks the comeback with the most friction to overcome.
func comebackHighlight(convs []ConversationSummary) *ComebackHighlight {
	var best *ConversationSummary
	for i := range convs {
		c := &convs[i]
		if !c.Comeback {
			continue
		}
		if best == nil || c.Friction > best.Friction || (c.Friction == best.Friction && c.Wins > best.Wins) {
			best = c
		}
	}
	if best == nil {
		return nil
	}
	return &ComebackHighlight{
		Description: best.Description,
		Month:       best.Month,
		Friction:    best.Friction,
		Wins:        best.Wins,
		Title:       best.Title,
		Excerpt:     best.Excerpt,
	}
}

func timeline(s RewindSummary) Timeline {
	t := Timeline{LongestStreak: s.LongestStreak}
	for _, m := range s.Months {
		if m.Chats < timelineMinChats {
			continue
		}
		switch {
		case m.Wins > m.Friction:
			t.FlowMonths = append(t.FlowMonths, m.Month)
		case m.Friction > m.Wins:
			t.FrictionMonths = append(t.FrictionMonths, m.Month)
		}
	}
	for _, m := range s.Months {
		if m.Friction+m.Indecision == 0 {
			continue
		}
		score := float64(m.ChaosScore())
		if t.VillainMonth == nil || score > t.VillainMonth.Score {
			t.VillainMonth = &MonthScore{Month: m.Month, Score: score}
		}
	}
	for _, m := range s.Months {
		if m.Indecision == 0 || m.Chats == 0 {
			continue
		}
		ratio := float64(m.Indecision) / float64(m.Chats)
		if t.IndecisionMonth == nil || ratio > t.IndecisionMonth.Score {
			t.IndecisionMonth = &MonthScore{Month: m.Month, Score: ratio}
		}
	}
	return t
}

func weirdTech(convs []ConversationSummary) *WeirdTech {
	counts := map[string]int{}
	examples := map[string]string{}
	for _, c := range convs {
		for _, name := range c.Stack {
			if !stackByName[name].weird {
				continue
			}
			counts[name]++
			if examples[name] == "" {
				examples[name] = c.Title
			}
		}
	}
	var best *WeirdTech
	for _, r := range stackRules {
		n := counts[r.name]
		if n > 0 && (best == nil || n > best.Conversations) {
			best = &WeirdTech{Term: r.name, Conversations: n, Example: examples[r.name]}
		}
	}
	return best
}

var archetypes = map[string]Archetype{
	"builder":    {Key: "builder", Name: "The Builder", Tagline: "Always shipping something."},
	"debugger":   {Key: "debugger", Name: "The Debugger", Tagline: "Stared into the stack trace. It blinked first."},
	"tinkerer":   {Key: "tinkerer", Name: "The Tinkerer", Tagline: "Code as a hobby, curiosity as a lifestyle."},
	"editor":     {Key: "editor", Name: "The Editor", Tagline: "Every sentence deserves a second draft."},
	"scholar":    {Key: "scholar", Name: "The Scholar", Tagline: "Asked why until it made sense."},
	"planner":    {Key: "planner", Name: "The Planner", Tagline: "A checklist for the checklist."},
	"explorer":   {Key: "explorer", Name: "The Explorer", Tagline: "Always one itinerary away from the next trip."},
	"climber":    {Key: "climber", Name: "The Climber", Tagline: "Career moves, one draft at a time."},
	"dreamer":    {Key: "dreamer", Name: "The Dreamer", Tagline: "Worlds, stories and ideas on tap."},
	"generalist": {Key: "generalist", Name: "The Generalist", Tagline: "A little bit of everything."},
}

func archetype(s RewindSummary, projects []Project) *Archetype {
	if s.TotalConversations == 0 || len(s.TopTopics) == 0 {
		return nil
	}
	key := "generalist"
	switch s.TopTopics[0].Topic {
	case TopicCoding:
		frictionRate := 0.0
		if s.TotalUserMessages > 0 {
			frictionRate = float64(s.Behavior.FrictionMessages) / float64(s.TotalUserMessages)
		}
		switch {
		case len(projects) >= builderMinProjects:
			key = "builder"
		case frictionRate >= debuggerFrictionRate:
			key = "debugger"
		default:
			key = "tinkerer"
		}
	case TopicWriting:
		key = "editor"
	case TopicLearning:
		key = "scholar"
	case TopicPlanning:
		key = "planner"
	case TopicTravel:
		key = "explorer"
	case TopicCareer:
		key = "climber"
	case TopicCreative:
		key = "dreamer"
	}
	a := archetypes[key]
	return &a
}

// forecast looks at the last quarter of activity and the top boss fight.
func forecast(s RewindSummary, fights []BossFight) []string {
	if s.TotalConversations == 0 {
		return nil
	}
	var recent []ConversationSummary
	if s.LastActivity != nil {
		cutoff := s.LastActivity.Add(-recentWindow)
		for _, c := range s.Conversations {
			if c.FirstAt != nil && !c.FirstAt.Before(cutoff) {
				recent = append(recent, c)
			}
		}
	}
	if len(recent) == 0 {
		recent = s.Conversations
	}

	intents := map[Intent]int{}
	subjects := map[string]int{}
	for _, c := range recent {
		intents[c.Intent]++
		subjects[subjectLabel(c.Theme, c.Topic)]++
	}
	var topIntent Intent
	for _, r := range intentRules {
		if intents[r.intent] > intents[topIntent] {
			topIntent = r.intent
		}
	}
	if intents[IntentOther] > intents[topIntent] {
		topIntent = IntentOther
	}
	topSubject := ""
	for _, k := range sortedKeys(subjects) {
		if subjects[k] > subjects[topSubject] {
			topSubject = k
		}
	}

	var lines []string
	if topIntent != "" && topSubject != "" {
		lines = append(lines, fmt.Sprintf("More %s ahead: %s is where your head has been lately.", intentNouns[topIntent], topSubject))
	}
	if len(fights) > 0 {
		lines = append(lines, fmt.Sprintf("Next year's boss fight, same as this year's: %s.", fights[0].Label))
	}
	return lines
}

func closingLine(s RewindSummary, a *Archetype) string {
	if s.TotalConversations == 0 || a == nil {
		return ""
	}
	line := fmt.Sprintf("%s energy: %d chats, %d messages", a.Name, s.TotalConversations, s.TotalUserMessages)
	if s.LongestStreak.Days > 1 {
		line += fmt.Sprintf(", and a %d-day streak", s.LongestStreak.Days)
	}
	return line + "."
}

var intentNouns = map[Intent]string{
	IntentBuild:      "building",
	IntentDebug:      "debugging",
	IntentWrite:      "writing",
	IntentPlan:       "planning",
	IntentLearn:      "learning",
	IntentDecide:     "deciding",
	IntentVent:       "venting",
	IntentBrainstorm: "brainstorming",
	IntentOther:      "chatting",
}
