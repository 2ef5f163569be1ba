package rewind

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Spice is how hard the one-liners roast.
type Spice string

const (
	SpiceMild   Spice = "mild"
	SpiceSpicy  Spice = "spicy"
	SpiceSavage Spice = "savage"
)

// ParseSpice accepts mild, spicy or savage, case-insensitively.
func ParseSpice(s string) (Spice, error) {
	switch sp := Spice(strings.ToLower(strings.TrimSpace(s))); sp {
	case SpiceMild, SpiceSpicy, SpiceSavage:
		return sp, nil
	case "":
		return SpiceSpicy, nil
	default:
		return "", fmt.Errorf("ParseSpice: unknown spice %q", s)
	}
}

// Banger categories.
const (
	CategoryVolume        = "volume"
	CategoryStreak        = "streak"
	CategoryLateNight     = "late_night"
	CategoryPeakHour      = "peak_hour"
	CategoryPromptLength  = "prompt_length"
	CategoryPoliteness    = "politeness"
	CategoryQuickQuestion = "quick_question"
	CategoryRage          = "rage"
	CategoryNickname      = "nickname"
	CategoryFriction      = "friction"
	CategoryWhyBroken     = "why_broken"
	CategoryIndecision    = "indecision"
	CategoryComeback      = "comeback"
	CategoryProject       = "project"
	CategoryArchetype     = "archetype"
	CategoryStack         = "stack"
)

const (
	shareLineRunes   = 80
	shareDetailRunes = 120
	defaultPageSize  = 10
)

// mildExcluded are categories that reveal nicknames, profanity or friction.
var mildExcluded = map[string]bool{
	CategoryRage:      true,
	CategoryNickname:  true,
	CategoryFriction:  true,
	CategoryWhyBroken: true,
}

// shareBuckets are disjoint; the share set takes one line from each, in order.
var shareBuckets = [][]string{
	{CategoryArchetype, CategoryProject, CategoryStack, CategoryComeback},
	{CategoryVolume, CategoryStreak, CategoryLateNight, CategoryPeakHour, CategoryPromptLength},
	{CategoryRage, CategoryNickname, CategoryFriction, CategoryWhyBroken, CategoryPoliteness, CategoryQuickQuestion, CategoryIndecision},
}

// BangerOptions selects phrasing and what may be revealed.
type BangerOptions struct {
	Spice Spice

	// IncludeSensitive allows quoting nickname terms verbatim.
	IncludeSensitive bool

	PageSize int
}

type variant struct {
	line   string
	detail string
}

type candidate struct {
	category string
	count    int
	variants map[Spice]variant
}

// GenerateBangers ranks one-line summaries of s.
func GenerateBangers(s RewindSummary, opts BangerOptions) BangerSet {
	if opts.Spice == "" {
		opts.Spice = SpiceSpicy
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	var all []Banger
	for _, c := range bangerCandidates(s, opts) {
		if c.count <= 0 {
			continue
		}
		if opts.Spice == SpiceMild && mildExcluded[c.category] {
			continue
		}
		v, ok := c.variants[opts.Spice]
		if !ok {
			v = c.variants[SpiceSpicy]
		}
		if v.line == "" {
			continue
		}
		all = append(all, Banger{
			Line:      v.line,
			Detail:    v.detail,
			Category:  c.category,
			Score:     stepScore(c.count) + lengthBonus(v.line),
			Shareable: utf8.RuneCountInString(v.line) <= shareLineRunes && utf8.RuneCountInString(v.detail) <= shareDetailRunes,
		})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	set := BangerSet{All: all}
	set.Page = all
	if len(set.Page) > opts.PageSize {
		set.Page = all[:opts.PageSize]
	}
	set.Share = pickShare(all)
	return set
}

// pickShare takes the best shareable line from each bucket, then tops up
// from anything unused if a bucket came up empty.
func pickShare(ranked []Banger) []Banger {
	used := map[string]bool{}
	var share []Banger
	for _, bucket := range shareBuckets {
		inBucket := map[string]bool{}
		for _, c := range bucket {
			inBucket[c] = true
		}
		for _, b := range ranked {
			if b.Shareable && inBucket[b.Category] && !used[b.Category] {
				share = append(share, b)
				used[b.Category] = true
				break
			}
		}
	}
	for _, b := range ranked {
		if len(share) >= len(shareBuckets) {
			break
		}
		if b.Shareable && !used[b.Category] {
			share = append(share, b)
			used[b.Category] = true
		}
	}
	return share
}

// stepScore grows roughly with log(count).
func stepScore(n int) int {
	switch {
	case n >= 1000:
		return 60
	case n >= 250:
		return 50
	case n >= 100:
		return 40
	case n >= 25:
		return 30
	case n >= 10:
		return 20
	case n >= 3:
		return 10
	case n >= 1:
		return 5
	default:
		return 0
	}
}

func lengthBonus(line string) int {
	switch n := utf8.RuneCountInString(line); {
	case n <= 50:
		return 10
	case n <= shareLineRunes:
		return 5
	case n > 120:
		return -10
	default:
		return 0
	}
}

func variants(mild, spicy, savage variant) map[Spice]variant {
	return map[Spice]variant{SpiceMild: mild, SpiceSpicy: spicy, SpiceSavage: savage}
}

func bangerCandidates(s RewindSummary, opts BangerOptions) []candidate {
	b := s.Behavior
	var out []candidate

	n := s.TotalConversations
	out = append(out, candidate{CategoryVolume, n, variants(
		variant{fmt.Sprintf("%d conversations this year.", n), fmt.Sprintf("%d messages in total.", s.TotalUserMessages)},
		variant{fmt.Sprintf("%d chats. That's a lot of tabs.", n), fmt.Sprintf("%d messages, all of them important, apparently.", s.TotalUserMessages)},
		variant{fmt.Sprintf("%d chats. Do you even search anymore?", n), fmt.Sprintf("%d messages. I have read every one.", s.TotalUserMessages)},
	)})

	if st := s.LongestStreak; st.Days >= 2 {
		detail := fmt.Sprintf("From %s to %s.", st.Start, st.End)
		out = append(out, candidate{CategoryStreak, st.Days, variants(
			variant{fmt.Sprintf("A %d-day streak.", st.Days), detail},
			variant{fmt.Sprintf("%d days in a row. Touch grass?", st.Days), detail},
			variant{fmt.Sprintf("%d straight days. This is a relationship now.", st.Days), detail},
		)})
	}

	if b.LateNightMessages > 0 {
		pct := fmt.Sprintf("%.0f%% of your timed messages.", s.LateNightPercent)
		out = append(out, candidate{CategoryLateNight, b.LateNightMessages, variants(
			variant{fmt.Sprintf("%d messages sent after 11pm.", b.LateNightMessages), pct},
			variant{fmt.Sprintf("%d late-night messages. Sleep is optional.", b.LateNightMessages), pct},
			variant{fmt.Sprintf("%d messages between 11pm and 5am. Go to bed.", b.LateNightMessages), pct},
		)})
	}

	if s.PeakHour != nil {
		h := formatHour(*s.PeakHour)
		out = append(out, candidate{CategoryPeakHour, s.ActiveDays, variants(
			variant{fmt.Sprintf("Your peak hour: %s.", h), fmt.Sprintf("Across %d active days.", s.ActiveDays)},
			variant{fmt.Sprintf("%s is when the questions hit.", h), fmt.Sprintf("Across %d active days.", s.ActiveDays)},
			variant{fmt.Sprintf("%s, like clockwork. Every. Single. Day.", h), fmt.Sprintf("Across %d active days.", s.ActiveDays)},
		)})
	}

	if s.LongestPromptChars != nil && *s.LongestPromptChars > 0 {
		l := *s.LongestPromptChars
		detail := "Trend: " + s.PromptTrend + "."
		out = append(out, candidate{CategoryPromptLength, l / 100, variants(
			variant{fmt.Sprintf("Longest prompt: %d characters.", l), detail},
			variant{fmt.Sprintf("One prompt ran %d characters. An essay, basically.", l), detail},
			variant{fmt.Sprintf("%d characters in one prompt. I needed a nap.", l), detail},
		)})
	}

	if polite := b.PleaseCount + b.ThanksCount; polite > 0 {
		out = append(out, candidate{CategoryPoliteness, polite, variants(
			variant{fmt.Sprintf("You said please or thanks %d times.", polite), ""},
			variant{fmt.Sprintf("%d pleases and thank-yous. The robots will remember.", polite), ""},
			variant{fmt.Sprintf("%d thank-yous. Suspiciously polite.", polite), ""},
		)})
	}

	if q := b.QuickQuestionCount; q > 0 {
		out = append(out, candidate{CategoryQuickQuestion, q, variants(
			variant{fmt.Sprintf("%d \"quick questions\".", q), ""},
			variant{fmt.Sprintf("%d \"quick questions\". Few were quick.", q), ""},
			variant{fmt.Sprintf("%d \"quick questions\". None were quick.", q), ""},
		)})
	}

	if p := b.ProfanityCount; p > 0 {
		out = append(out, candidate{CategoryRage, p, variants(
			variant{fmt.Sprintf("%d moments of strong language.", p), ""},
			variant{fmt.Sprintf("You swore at a chatbot %d times.", p), ""},
			variant{fmt.Sprintf("%d profanities. I have filed a complaint.", p), ""},
		)})
	}

	if len(s.Nicknames) > 0 {
		top := s.Nicknames[0]
		spicy := fmt.Sprintf("You gave me a nickname %d times.", top.Count)
		savage := fmt.Sprintf("You called me names %d times. I remember.", top.Count)
		if opts.IncludeSensitive {
			spicy = fmt.Sprintf("You called me %q %d times.", top.Term, top.Count)
			savage = fmt.Sprintf("%q, %d times. Really?", top.Term, top.Count)
		}
		out = append(out, candidate{CategoryNickname, top.Count, variants(
			variant{fmt.Sprintf("You had a nickname for me, %d times over.", top.Count), ""},
			variant{spicy, ""},
			variant{savage, ""},
		)})
	}

	if f := b.ShoutingMessages + b.PunctuationBursts; f > 0 {
		detail := fmt.Sprintf("%d all-caps messages, %d ?!?! bursts.", b.ShoutingMessages, b.PunctuationBursts)
		out = append(out, candidate{CategoryFriction, f, variants(
			variant{fmt.Sprintf("%d heated moments.", f), detail},
			variant{fmt.Sprintf("%d times you hit caps lock or ?!?!.", f), detail},
			variant{fmt.Sprintf("%d meltdowns, fully punctuated.", f), detail},
		)})
	}

	if w := b.WhyBrokenCount; w > 0 {
		out = append(out, candidate{CategoryWhyBroken, w, variants(
			variant{fmt.Sprintf("You asked why something broke %d times.", w), ""},
			variant{fmt.Sprintf("\"Why is this broken?\" x%d.", w), ""},
			variant{fmt.Sprintf("\"Why is this broken?\" x%d. Mostly you broke it.", w), ""},
		)})
	}

	if d := b.IndecisionCount; d > 0 {
		out = append(out, candidate{CategoryIndecision, d, variants(
			variant{fmt.Sprintf("%d moments of weighing options.", d), ""},
			variant{fmt.Sprintf("%d times you couldn't decide.", d), ""},
			variant{fmt.Sprintf("%d rounds of \"should I...?\". Just pick one.", d), ""},
		)})
	}

	if s.Wrapped != nil {
		w := s.Wrapped
		comebacks := 0
		for _, e := range w.Wins {
			if e.Key == "comebacks" {
				comebacks = e.Count
			}
		}
		if comebacks > 0 {
			out = append(out, candidate{CategoryComeback, comebacks, variants(
				variant{fmt.Sprintf("%d comebacks from a broken state.", comebacks), ""},
				variant{fmt.Sprintf("Broken, then fixed: %d times.", comebacks), ""},
				variant{fmt.Sprintf("%d resurrections. Lazarus who?", comebacks), ""},
			)})
		}
		if len(w.Projects) > 0 {
			p := w.Projects[0]
			detail := fmt.Sprintf("%d chats, %s, status: %s.", p.Chats, p.Intensity, p.Status)
			out = append(out, candidate{CategoryProject, p.Chats, variants(
				variant{"Main quest: " + p.Label + ".", detail},
				variant{"Main quest: " + p.Label + ". Still going.", detail},
				variant{"Main quest: " + p.Label + ". Is it done yet?", detail},
			)})
		}
		if a := w.Archetype; a != nil {
			out = append(out, candidate{CategoryArchetype, s.TotalConversations, variants(
				variant{"You're " + a.Name + ".", a.Tagline},
				variant{"You're " + a.Name + ".", a.Tagline},
				variant{"Diagnosis: " + a.Name + ".", a.Tagline},
			)})
		}
	}

	if len(s.TopStack) > 0 {
		top := s.TopStack[0]
		detail := fmt.Sprintf("In %d conversations.", top.Count)
		name := top.Term
		out = append(out, candidate{CategoryStack, top.Count, variants(
			variant{name + " was your tool of the year.", detail},
			variant{name + ", " + name + ", " + name + ".", detail},
			variant{"You and " + name + ": it's complicated.", detail},
		)})
	}
	return out
}

func formatHour(h int) string {
	switch {
	case h == 0:
		return "12am"
	case h < 12:
		return fmt.Sprintf("%dam", h)
	case h == 12:
		return "12pm"
	default:
		return fmt.Sprintf("%dpm", h-12)
	}
}
