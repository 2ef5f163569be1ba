package rewind

import (
	"strings"
	"testing"
)

func bangerSummary() RewindSummary {
	peak := 2
	longest := 2400
	s := RewindSummary{
		TotalConversations: 320,
		TotalUserMessages:  4100,
		ActiveDays:         180,
		PeakHour:           &peak,
		LateNightPercent:   31,
		LongestPromptChars: &longest,
		PromptTrend:        TrendLonger,
		LongestStreak:      Streak{Days: 21, Start: "2024-02-01", End: "2024-02-21"},
		Behavior: RewindBehavior{
			PleaseCount:        40,
			ThanksCount:        60,
			QuickQuestionCount: 12,
			ProfanityCount:     900,
			ShoutingMessages:   300,
			PunctuationBursts:  250,
			WhyBrokenCount:     80,
			IndecisionCount:    30,
			LateNightMessages:  1200,
		},
		Nicknames: []TermCount{{Term: "idiot", Count: 400}},
		TopStack:  []TermCount{{Term: "Python", Count: 90}},
	}
	s.Wrapped = &WrappedSummary{
		Projects:  []Project{{Key: "web-app/React", Label: "a web app (React)", Chats: 40, Intensity: "obsessive", Status: StatusShipped}},
		Wins:      []WinEntry{{Key: "comebacks", Count: 14}},
		Archetype: &Archetype{Key: "debugger", Name: "The Debugger", Tagline: "Stared into the stack trace."},
	}
	return s
}

func TestGenerateBangers_MildShareNeverRevealsRageOrNicknames(t *testing.T) {
	t.Parallel()

	set := GenerateBangers(bangerSummary(), BangerOptions{Spice: SpiceMild, IncludeSensitive: true})
	if len(set.Share) != 3 {
		t.Fatalf("share=%d, want 3", len(set.Share))
	}
	for _, b := range set.Share {
		if b.Category == CategoryRage || b.Category == CategoryNickname {
			t.Fatalf("mild share contains %q: %+v", b.Category, b)
		}
	}
	for _, b := range set.All {
		if mildExcluded[b.Category] {
			t.Fatalf("mild list contains %q", b.Category)
		}
		if strings.Contains(b.Line, "idiot") {
			t.Fatalf("mild line quotes a nickname: %q", b.Line)
		}
	}
}

func TestGenerateBangers_ShareUsesDisjointBuckets(t *testing.T) {
	t.Parallel()

	set := GenerateBangers(bangerSummary(), BangerOptions{Spice: SpiceSavage})
	if len(set.Share) != 3 {
		t.Fatalf("share=%+v", set.Share)
	}
	for i, b := range set.Share {
		found := false
		for _, c := range shareBuckets[i] {
			if c == b.Category {
				found = true
			}
		}
		if !found {
			t.Fatalf("share[%d] category %q not from bucket %v", i, b.Category, shareBuckets[i])
		}
		if !b.Shareable {
			t.Fatalf("share[%d] not shareable: %+v", i, b)
		}
	}
	// Savage with strong profanity ranks the rage line in the third bucket.
	if set.Share[2].Category != CategoryRage {
		t.Fatalf("share[2]=%q, want %q", set.Share[2].Category, CategoryRage)
	}
}

func TestGenerateBangers_SortedAndPaged(t *testing.T) {
	t.Parallel()

	set := GenerateBangers(bangerSummary(), BangerOptions{Spice: SpiceSpicy, PageSize: 4})
	if len(set.Page) != 4 {
		t.Fatalf("page=%d, want 4", len(set.Page))
	}
	for i := 1; i < len(set.All); i++ {
		if set.All[i-1].Score < set.All[i].Score {
			t.Fatalf("not sorted at %d: %d < %d", i, set.All[i-1].Score, set.All[i].Score)
		}
	}
	for _, b := range set.All {
		if b.Category == CategoryNickname && strings.Contains(b.Line, "idiot") {
			t.Fatalf("nickname quoted without IncludeSensitive: %q", b.Line)
		}
	}
}

func TestGenerateBangers_EmptySummary(t *testing.T) {
	t.Parallel()

	set := GenerateBangers(RewindSummary{}, BangerOptions{})
	if len(set.All) != 0 || len(set.Share) != 0 || len(set.Page) != 0 {
		t.Fatalf("set=%+v", set)
	}
}

func TestStepScoreIsMonotone(t *testing.T) {
	t.Parallel()

	prev := -1
	for _, n := range []int{0, 1, 2, 3, 9, 10, 24, 25, 99, 100, 249, 250, 999, 1000, 50000} {
		got := stepScore(n)
		if got < prev {
			t.Fatalf("stepScore(%d)=%d < %d", n, got, prev)
		}
		prev = got
	}
}

func TestParseSpice(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Spice{"mild": SpiceMild, " SAVAGE ": SpiceSavage, "": SpiceSpicy} {
		got, err := ParseSpice(in)
		if err != nil || got != want {
			t.Fatalf("ParseSpice(%q)=%q, %v", in, got, err)
		}
	}
	if _, err := ParseSpice("ghost pepper"); err == nil {
		t.Fatalf("expected error")
	}
}
