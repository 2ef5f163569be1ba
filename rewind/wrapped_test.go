package rewind

import (
	"testing"
	"time"
)

var wrappedNow = time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)

func summaryConv(theme string, topic Topic, intent Intent, stack []string, msgs, wins, friction int, last time.Time) ConversationSummary {
	first := last.Add(-time.Hour)
	return ConversationSummary{
		Theme:        theme,
		Topic:        topic,
		Intent:       intent,
		Stack:        stack,
		UserMessages: msgs,
		Wins:         wins,
		Friction:     friction,
		Month:        last.Format(monthLayout),
		StartDay:     last.Format(dayLayout),
		FirstAt:      &first,
		LastAt:       &last,
		Title:        "chat about " + theme,
	}
}

func TestSynthesize_EmptyDegradesToNothing(t *testing.T) {
	t.Parallel()

	w := Synthesize(RewindSummary{}, WrappedOptions{Now: wrappedNow})
	if len(w.Projects) != 0 || len(w.BossFights) != 0 || len(w.Wins) != 0 || len(w.Forecast) != 0 {
		t.Fatalf("non-empty sections: %+v", w)
	}
	if w.Comeback != nil || w.Weird != nil || w.Archetype != nil || w.ClosingLine != "" {
		t.Fatalf("fabricated highlight: %+v", w)
	}
	if w.Timeline.VillainMonth != nil || w.Timeline.IndecisionMonth != nil {
		t.Fatalf("fabricated timeline: %+v", w.Timeline)
	}
}

func TestClusterProjects(t *testing.T) {
	t.Parallel()

	old := wrappedNow.AddDate(0, -6, 0)
	var convs []ConversationSummary
	// Six web-app chats in React spread over two months; more wins than friction.
	for i := 0; i < 6; i++ {
		convs = append(convs, summaryConv("web-app", TopicCoding, IntentBuild, []string{"JSON", "React"}, 10, 1, 0, old.AddDate(0, 0, -20*i)))
	}
	// A recent trip.
	convs = append(convs,
		summaryConv("", TopicTravel, IntentPlan, nil, 3, 0, 0, wrappedNow.AddDate(0, 0, -3)),
		summaryConv("", TopicTravel, IntentPlan, nil, 3, 0, 0, wrappedNow.AddDate(0, 0, -10)),
	)
	// A rough homelab saga.
	for i := 0; i < 6; i++ {
		convs = append(convs, summaryConv("homelab", TopicCoding, IntentDebug, []string{"Docker"}, 2, 0, 3, old))
	}
	// Singletons and vents never form projects.
	convs = append(convs,
		summaryConv("novel", TopicCreative, IntentWrite, nil, 50, 0, 0, old),
		summaryConv("web-app", TopicCoding, IntentVent, []string{"React"}, 50, 0, 0, old),
		summaryConv("web-app", TopicCoding, IntentVent, []string{"React"}, 50, 0, 0, old),
	)

	projects := clusterProjects(convs, wrappedNow)
	if len(projects) != 3 {
		t.Fatalf("projects=%d, want 3: %+v", len(projects), projects)
	}

	web := projects[0]
	if web.Key != "web-app/React" || web.Label != "a web app (React)" {
		t.Fatalf("top project=%+v", web)
	}
	if web.Chats != 6 || web.Messages != 60 || web.Intensity != "steady" || web.Status != StatusShipped {
		t.Fatalf("web project=%+v", web)
	}
	if web.MonthsActive < 2 {
		t.Fatalf("months_active=%d, want >= 2", web.MonthsActive)
	}
	if len(web.Evidence) != maxProjectEvidence {
		t.Fatalf("evidence=%v", web.Evidence)
	}

	homelab := projects[1]
	if homelab.Key != "homelab/Docker" || homelab.Status != StatusAbandoned {
		t.Fatalf("homelab project=%+v", homelab)
	}

	trip := projects[2]
	if trip.Key != "travel" || trip.Status != StatusRecurring || trip.Intensity != "light" {
		t.Fatalf("trip project=%+v", trip)
	}
}

func TestBossFightsAndWins(t *testing.T) {
	t.Parallel()

	s := RewindSummary{
		TotalConversations: 3,
		Behavior: RewindBehavior{
			FrustrationCount:  9,
			AgainStillCount:   4,
			PunctuationBursts: 0,
			ShoutingMessages:  2,
			IndecisionCount:   7,
			WinCount:          5,
		},
		Evidence: map[string][]string{EvidenceTrouble: {"it is broken"}},
		Conversations: []ConversationSummary{
			{Comeback: true, Friction: 2, Wins: 1, Description: "Debugging code", Title: "t1"},
			{Comeback: true, Friction: 5, Wins: 1, Description: "Building a game", Title: "t2"},
			{Mood: MoodFlow},
		},
	}
	fights := bossFights(s)
	if len(fights) != 3 {
		t.Fatalf("fights=%+v", fights)
	}
	wantKeys := []string{EvidenceTrouble, EvidenceIndecision, EvidenceAgainStill}
	for i, k := range wantKeys {
		if fights[i].Key != k {
			t.Fatalf("fights[%d]=%q, want %q", i, fights[i].Key, k)
		}
	}
	if len(fights[0].Examples) != 1 || fights[1].Examples != nil {
		t.Fatalf("examples=%v / %v", fights[0].Examples, fights[1].Examples)
	}

	wins := winTally(s, nil)
	if len(wins) != 3 || wins[0].Key != "signals" || wins[1].Key != "comebacks" || wins[2].Key != "flow" {
		t.Fatalf("wins=%+v", wins)
	}

	cb := comebackHighlight(s.Conversations)
	if cb == nil || cb.Title != "t2" || cb.Friction != 5 {
		t.Fatalf("comeback=%+v", cb)
	}
}

func TestTimeline(t *testing.T) {
	t.Parallel()

	s := RewindSummary{
		LongestStreak: Streak{Days: 4},
		Months: []MonthStat{
			{Month: "2024-01", Chats: 12, Wins: 8, Friction: 2},
			{Month: "2024-02", Chats: 15, Wins: 1, Friction: 9, Indecision: 1},
			{Month: "2024-03", Chats: 4, Wins: 0, Friction: 1, Indecision: 3},
			{Month: "2024-04", Chats: 9, Wins: 0, Friction: 0},
		},
	}
	tl := timeline(s)
	if len(tl.FlowMonths) != 1 || tl.FlowMonths[0] != "2024-01" {
		t.Fatalf("flow=%v", tl.FlowMonths)
	}
	if len(tl.FrictionMonths) != 1 || tl.FrictionMonths[0] != "2024-02" {
		t.Fatalf("friction=%v", tl.FrictionMonths)
	}
	if tl.VillainMonth == nil || tl.VillainMonth.Month != "2024-02" || tl.VillainMonth.Score != 44 {
		t.Fatalf("villain=%+v", tl.VillainMonth)
	}
	if tl.IndecisionMonth == nil || tl.IndecisionMonth.Month != "2024-03" {
		t.Fatalf("indecision=%+v", tl.IndecisionMonth)
	}
	if tl.LongestStreak.Days != 4 {
		t.Fatalf("streak=%+v", tl.LongestStreak)
	}
}

func TestArchetype(t *testing.T) {
	t.Parallel()

	coding := RewindSummary{TotalConversations: 10, TotalUserMessages: 100, TopTopics: []TopicCount{{Topic: TopicCoding, Conversations: 8}}}
	three := []Project{{Key: "a"}, {Key: "b"}, {Key: "c"}}
	if a := archetype(coding, three); a == nil || a.Key != "builder" {
		t.Fatalf("archetype=%+v, want builder", a)
	}

	chaotic := coding
	chaotic.Behavior.FrictionMessages = 40
	if a := archetype(chaotic, nil); a == nil || a.Key != "debugger" {
		t.Fatalf("archetype=%+v, want debugger", a)
	}
	if a := archetype(coding, nil); a == nil || a.Key != "tinkerer" {
		t.Fatalf("archetype=%+v, want tinkerer", a)
	}

	writing := RewindSummary{TotalConversations: 2, TopTopics: []TopicCount{{Topic: TopicWriting, Conversations: 2}}}
	if a := archetype(writing, nil); a == nil || a.Key != "editor" {
		t.Fatalf("archetype=%+v, want editor", a)
	}
}

func TestWeirdTechAndForecast(t *testing.T) {
	t.Parallel()

	last := wrappedNow
	s := RewindSummary{
		TotalConversations: 3,
		TotalUserMessages:  9,
		LastActivity:       &last,
		LongestStreak:      Streak{Days: 3},
		Conversations: []ConversationSummary{
			summaryConv("", TopicCoding, IntentDebug, []string{"Haskell"}, 3, 0, 1, last),
			summaryConv("", TopicCoding, IntentDebug, []string{"Python", "Haskell"}, 3, 0, 1, last),
			summaryConv("", TopicCoding, IntentBuild, []string{"COBOL"}, 3, 0, 0, last.AddDate(-1, 0, 0)),
		},
		TopTopics: []TopicCount{{Topic: TopicCoding, Conversations: 3}},
	}
	weird := weirdTech(s.Conversations)
	if weird == nil || weird.Term != "Haskell" || weird.Conversations != 2 {
		t.Fatalf("weird=%+v", weird)
	}

	w := Synthesize(s, WrappedOptions{Now: wrappedNow})
	if len(w.Forecast) != 1 || w.Forecast[0] != "More debugging ahead: code is where your head has been lately." {
		t.Fatalf("forecast=%q", w.Forecast)
	}
	if w.ClosingLine != "The Tinkerer energy: 3 chats, 9 messages, and a 3-day streak." {
		t.Fatalf("closing=%q", w.ClosingLine)
	}
}
