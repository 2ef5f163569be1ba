package rewind

import (
	"math"
	"sort"
	"time"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

const (
	trendMinSamples = 5
	trendThreshold  = 0.15
	minWordCount    = 2
)

// AggregateOptions tunes the finalize step.
type AggregateOptions struct {
	TopN             int
	MinPhraseCount   int
	MinNicknameCount int

	// MaxVocabulary caps distinct words; once exceeded, the rarest are pruned.
	MaxVocabulary int

	Location *time.Location
}

func (o *AggregateOptions) applyDefaults() {
	if o.TopN <= 0 {
		o.TopN = 10
	}
	if o.MinPhraseCount <= 0 {
		o.MinPhraseCount = 3
	}
	if o.MinNicknameCount <= 0 {
		o.MinNicknameCount = 2
	}
	if o.MaxVocabulary <= 0 {
		o.MaxVocabulary = 50000
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
}

// Aggregator folds classified conversations into a RewindSummary. One
// instance serves exactly one upload and is not safe for concurrent use.
type Aggregator struct {
	opts AggregateOptions

	convs       []ConversationSummary
	messages    int
	chars       int
	behavior    RewindBehavior
	privacy     privacy.Counts
	words       Tally
	phrases     Tally
	nicknames   Tally
	stack       Tally
	days        map[string]int
	months      map[string]int
	hours       [24]int
	timed       int
	prompts     []PromptSample
	evidence    map[string][]string
	skipped     int
	badTimes    int
	first, last *time.Time
}

func NewAggregator(opts AggregateOptions) *Aggregator {
	opts.applyDefaults()
	return &Aggregator{
		opts:      opts,
		words:     Tally{},
		phrases:   Tally{},
		nicknames: Tally{},
		stack:     Tally{},
		days:      map[string]int{},
		months:    map[string]int{},
		evidence:  map[string][]string{},
	}
}

// Add folds one conversation and its global contribution.
func (a *Aggregator) Add(cs ConversationSummary, c Contribution) {
	a.convs = append(a.convs, cs)
	a.messages += cs.UserMessages
	a.chars += c.Chars
	a.behavior.add(c.Behavior)
	a.privacy.Add(c.Privacy)
	a.phrases.Merge(c.Phrases)
	a.nicknames.Merge(c.Nicknames)
	a.words.Merge(c.Words)
	if len(a.words) > a.opts.MaxVocabulary {
		// Leave headroom so the next few merges do not shrink again.
		a.words.Shrink(a.opts.MaxVocabulary - a.opts.MaxVocabulary/4)
	}
	for _, name := range cs.Stack {
		a.stack[name]++
	}
	for k, v := range c.Days {
		a.days[k] += v
	}
	for k, v := range c.Months {
		a.months[k] += v
	}
	for h, v := range c.Hours {
		a.hours[h] += v
	}
	a.timed += c.TimedMessages
	a.prompts = append(a.prompts, c.Prompts...)
	for cat, snippets := range c.Evidence {
		for _, s := range snippets {
			if len(a.evidence[cat]) < maxEvidence {
				a.evidence[cat] = append(a.evidence[cat], s)
			}
		}
	}
	a.badTimes += c.BadTimestamps
	if cs.FirstAt != nil && (a.first == nil || cs.FirstAt.Before(*a.first)) {
		t := *cs.FirstAt
		a.first = &t
	}
	if cs.LastAt != nil && (a.last == nil || cs.LastAt.After(*a.last)) {
		t := *cs.LastAt
		a.last = &t
	}
}

// Skip records a conversation that could not be decoded.
func (a *Aggregator) Skip() { a.skipped++ }

// Conversations reports how many conversations have been folded in.
func (a *Aggregator) Conversations() int { return len(a.convs) }

// Summary computes the derived statistics. It does not reset the
// accumulator and does not fill Wrapped.
func (a *Aggregator) Summary() RewindSummary {
	s := RewindSummary{
		TotalConversations:   len(a.convs),
		TotalUserMessages:    a.messages,
		ActiveDays:           len(a.days),
		FirstActivity:        a.first,
		LastActivity:         a.last,
		Behavior:             a.behavior,
		Privacy:              a.privacy,
		SkippedConversations: a.skipped,
		SkippedTimestamps:    a.badTimes,
		PromptTrend:          promptTrend(a.prompts),
		LongestStreak:        longestStreak(a.days),
		TopPhrases:           a.phrases.Top(a.opts.TopN, a.opts.MinPhraseCount),
		Nicknames:            a.nicknames.Top(a.opts.TopN, a.opts.MinNicknameCount),
		TopWords:             a.words.Top(a.opts.TopN, minWordCount),
		TopStack:             a.stack.Top(a.opts.TopN, 1),
		Conversations:        append([]ConversationSummary{}, a.convs...),
	}
	if a.messages > 0 {
		avg := math.Round(float64(a.chars)/float64(a.messages)*10) / 10
		s.AvgPromptChars = &avg
		longest := 0
		for _, c := range a.convs {
			if c.MaxPromptChars > longest {
				longest = c.MaxPromptChars
			}
		}
		s.LongestPromptChars = &longest
	}
	if a.timed > 0 {
		peak := 0
		for h := range a.hours {
			if a.hours[h] > a.hours[peak] {
				peak = h
			}
		}
		s.PeakHour = &peak
		s.LateNightPercent = math.Round(float64(a.behavior.LateNightMessages)/float64(a.timed)*1000) / 10
	}
	s.BusiestMonth = busiestMonth(a.months)
	s.MostActiveWeek, s.MostChaoticWeek = a.weeks()
	s.TopTopics = a.topTopics()
	s.Months = a.monthStats()
	if len(a.evidence) > 0 {
		s.Evidence = make(map[string][]string, len(a.evidence))
		for k, v := range a.evidence {
			s.Evidence[k] = append([]string(nil), v...)
		}
	}
	return s
}

func busiestMonth(months map[string]int) *MonthCount {
	var best *MonthCount
	for _, m := range sortedKeys(months) {
		if best == nil || months[m] > best.Count {
			best = &MonthCount{Month: m, Count: months[m]}
		}
	}
	return best
}

func (a *Aggregator) topTopics() []TopicCount {
	counts := map[Topic]int{}
	for _, c := range a.convs {
		counts[c.Topic]++
	}
	order := make([]Topic, 0, len(topicRules)+1)
	for _, r := range topicRules {
		order = append(order, r.topic)
	}
	order = append(order, TopicOther)

	var out []TopicCount
	for _, t := range order {
		if counts[t] > 0 {
			out = append(out, TopicCount{Topic: t, Conversations: counts[t]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Conversations > out[j].Conversations })
	if len(out) > a.opts.TopN {
		out = out[:a.opts.TopN]
	}
	return out
}

func (a *Aggregator) monthStats() []MonthStat {
	byMonth := map[string]*MonthStat{}
	for _, c := range a.convs {
		if c.Month == "" {
			continue
		}
		m := byMonth[c.Month]
		if m == nil {
			m = &MonthStat{Month: c.Month}
			byMonth[c.Month] = m
		}
		m.Chats++
		m.Messages += c.UserMessages
		m.Wins += c.Wins
		m.Friction += c.Friction
		m.Indecision += c.Indecision
	}
	out := make([]MonthStat, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	if len(out) == 0 {
		return nil
	}
	return out
}

// weeks groups activity by Monday-aligned week. Activity counts messages;
// chaos weighs each conversation's friction and indecision.
func (a *Aggregator) weeks() (active, chaotic *WeekCount) {
	activity := map[string]int{}
	for day, n := range a.days {
		if w, ok := weekStart(day); ok {
			activity[w] += n
		}
	}
	chaos := map[string]int{}
	for _, c := range a.convs {
		if c.StartDay == "" || c.Friction+c.Indecision == 0 {
			continue
		}
		if w, ok := weekStart(c.StartDay); ok {
			chaos[w] += 3*c.Friction + 2*c.Indecision
		}
	}
	return maxWeek(activity), maxWeek(chaos)
}

func maxWeek(m map[string]int) *WeekCount {
	var best *WeekCount
	for _, w := range sortedKeys(m) {
		if m[w] > 0 && (best == nil || m[w] > best.Score) {
			best = &WeekCount{WeekStart: w, Score: m[w]}
		}
	}
	return best
}

func weekStart(day string) (string, bool) {
	d, err := time.Parse(dayLayout, day)
	if err != nil {
		return "", false
	}
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset).Format(dayLayout), true
}

// longestStreak walks sorted distinct days looking for deltas of exactly
// one calendar day.
func longestStreak(days map[string]int) Streak {
	keys := sortedKeys(days)
	var best, cur Streak
	var prev time.Time
	for i, k := range keys {
		d, err := time.Parse(dayLayout, k)
		if err != nil {
			continue
		}
		if i > 0 && cur.Days > 0 && prev.AddDate(0, 0, 1).Equal(d) {
			cur.Days++
			cur.End = k
		} else {
			cur = Streak{Days: 1, Start: k, End: k}
		}
		if cur.Days > best.Days {
			best = cur
		}
		prev = d
	}
	return best
}

// promptTrend compares average prompt length in the first and second half
// of the active time window.
func promptTrend(samples []PromptSample) string {
	if len(samples) < 2*trendMinSamples {
		return TrendUnknown
	}
	sorted := append([]PromptSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At.Before(sorted[j].At) })
	first, last := sorted[0].At, sorted[len(sorted)-1].At
	mid := first.Add(last.Sub(first) / 2)

	var earlyN, lateN, earlySum, lateSum int
	for _, s := range sorted {
		if s.At.Before(mid) {
			earlyN++
			earlySum += s.Chars
		} else {
			lateN++
			lateSum += s.Chars
		}
	}
	if earlyN < trendMinSamples || lateN < trendMinSamples {
		return TrendUnknown
	}
	early := float64(earlySum) / float64(earlyN)
	late := float64(lateSum) / float64(lateN)
	switch {
	case late > early*(1+trendThreshold):
		return TrendLonger
	case late < early*(1-trendThreshold):
		return TrendShorter
	default:
		return TrendSteady
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
