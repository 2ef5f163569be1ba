package rewind

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/fileutils"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

const (
	titleWeight     = 2
	excerptRunes    = 120
	evidenceRunes   = 80
	maxEvidence     = 3
	shoutMinLetters = 12
	shoutUpperRatio = 0.75
)

// Evidence categories, shared with boss fights.
const (
	EvidenceTrouble    = "trouble"
	EvidenceAgainStill = "again_still"
	EvidenceProfanity  = "profanity"
	EvidenceShouting   = "shouting"
	EvidenceBursts     = "punctuation"
	EvidenceIndecision = "indecision"
)

// ClassifyOptions controls which messages are in scope and how they are
// bucketed in time.
type ClassifyOptions struct {
	// Anonymizer runs on every message before it is inspected. nil means
	// privacy.Default.
	Anonymizer privacy.Anonymizer

	// Location buckets timestamps into days, months and hours. nil means UTC.
	Location *time.Location

	// Cutoff excludes timestamped messages before it. Zero keeps everything.
	Cutoff time.Time
}

// PromptSample is one timed prompt length, used for the length trend.
type PromptSample struct {
	At    time.Time
	Chars int
}

// Contribution is the part of a classification that feeds global counters
// rather than the conversation record.
type Contribution struct {
	Behavior  RewindBehavior
	Privacy   privacy.Counts
	Words     Tally
	Phrases   Tally
	Nicknames Tally

	Days          map[string]int
	Months        map[string]int
	Hours         [24]int
	TimedMessages int
	Prompts       []PromptSample
	Chars         int
	Evidence      map[string][]string

	BadTimestamps int
}

func newContribution() Contribution {
	return Contribution{
		Words:     Tally{},
		Phrases:   Tally{},
		Nicknames: Tally{},
		Days:      map[string]int{},
		Months:    map[string]int{},
		Evidence:  map[string][]string{},
	}
}

func (c *Contribution) addEvidence(category, text string) {
	if len(c.Evidence[category]) >= maxEvidence {
		return
	}
	c.Evidence[category] = append(c.Evidence[category], fileutils.Truncate(fileutils.SanitizeNewlines(text), evidenceRunes))
}

type scoreboard struct {
	intent      map[Intent]int
	deliverable map[Deliverable]int
	topic       map[Topic]int
	theme       map[string]int
	stack       map[string]int
}

func newScoreboard() scoreboard {
	return scoreboard{
		intent:      map[Intent]int{},
		deliverable: map[Deliverable]int{},
		topic:       map[Topic]int{},
		theme:       map[string]int{},
		stack:       map[string]int{},
	}
}

func (s scoreboard) score(lower string, weight int) {
	for _, r := range intentRules {
		if n := count(r.re, lower); n > 0 {
			s.intent[r.intent] += n * weight
		}
	}
	for _, r := range deliverableRules {
		if n := count(r.re, lower); n > 0 {
			s.deliverable[r.deliverable] += n * weight
		}
	}
	for _, r := range topicRules {
		if n := count(r.re, lower); n > 0 {
			s.topic[r.topic] += n * weight
		}
	}
	for _, r := range themeRules {
		if n := count(r.re, lower); n > 0 {
			s.theme[r.key] += n * weight
		}
	}
	for _, r := range stackRules {
		if r.re.MatchString(lower) {
			s.stack[r.name] += weight
		}
	}
}

// Classify scores one conversation. ok is false when no in-scope user message
// survived anonymization, in which case the conversation must not be counted
// anywhere.
func Classify(conv RawConversation, opts ClassifyOptions) (ConversationSummary, Contribution, bool) {
	anon := opts.Anonymizer
	if anon == nil {
		anon = privacy.Default
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	msgs := userMessagesByTime(conv.Messages)

	contrib := newContribution()
	board := newScoreboard()
	cs := ConversationSummary{ID: conv.ID}

	var (
		totalChars   int
		sawFriction  bool
		lateNight    bool
		first, last  *time.Time
		tags         []string
		titleScored  bool
		titleCleaned string
	)

	if conv.Title != "" {
		clean, _ := anon.Anonymize(conv.Title)
		if !privacy.IsEffectivelyEmpty(clean) {
			titleCleaned = clean
		}
	}

	for _, m := range msgs {
		if m.BadTimestamp {
			contrib.BadTimestamps++
		}
		at := m.At
		if at == nil {
			at = conv.CreateTime
		}
		if at != nil && !opts.Cutoff.IsZero() && at.Before(opts.Cutoff) {
			continue
		}
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		clean, counts := anon.Anonymize(text)
		if privacy.IsEffectivelyEmpty(clean) {
			continue
		}
		contrib.Privacy.Add(counts)
		lower := strings.ToLower(clean)
		chars := utf8.RuneCountInString(clean)

		cs.UserMessages++
		totalChars += chars
		if chars > cs.MaxPromptChars {
			cs.MaxPromptChars = chars
		}
		if cs.Excerpt == "" {
			cs.Excerpt = fileutils.Truncate(fileutils.SanitizeNewlines(clean), excerptRunes)
		}

		// The title only counts once the conversation has a message in scope.
		if !titleScored {
			titleScored = true
			if titleCleaned != "" {
				board.score(strings.ToLower(titleCleaned), titleWeight)
			}
		}
		board.score(lower, 1)

		b := &contrib.Behavior
		b.PleaseCount += count(pleasePattern, lower)
		b.ThanksCount += count(thanksPattern, lower)
		b.SorryCount += count(sorryPattern, lower)
		b.QuickQuestionCount += count(quickQPattern, lower)
		b.StepByStepCount += count(stepByStepPattern, lower)
		for _, r := range phraseRules {
			contrib.Phrases.Add(r.label, count(r.re, lower))
		}
		for _, r := range nicknameRules {
			contrib.Nicknames.Add(r.label, count(r.re, lower))
		}

		trouble := troublePattern.MatchString(lower)
		profanity := count(profanityPattern, lower)
		shouting := isShouting(clean)
		bursts := count(burstPattern, lower)
		againStill := againStillPattern.MatchString(lower)
		indecision := count(indecisionPattern, lower)
		win := winPattern.MatchString(lower)

		if trouble {
			b.FrustrationCount++
			contrib.addEvidence(EvidenceTrouble, clean)
		}
		if whyBrokenPattern.MatchString(lower) {
			b.WhyBrokenCount++
		}
		if profanity > 0 {
			b.ProfanityCount += profanity
			contrib.addEvidence(EvidenceProfanity, clean)
		}
		if shouting {
			b.ShoutingMessages++
			contrib.addEvidence(EvidenceShouting, clean)
		}
		if bursts > 0 {
			b.PunctuationBursts += bursts
			contrib.addEvidence(EvidenceBursts, clean)
		}
		if againStill {
			b.AgainStillCount++
			contrib.addEvidence(EvidenceAgainStill, clean)
		}
		if indecision > 0 {
			b.IndecisionCount += indecision
			cs.Indecision += indecision
			contrib.addEvidence(EvidenceIndecision, clean)
		}
		if win {
			b.WinCount++
			cs.Wins++
			// A win only redeems friction from an earlier message.
			if sawFriction {
				cs.Comeback = true
			}
		}
		if trouble || profanity > 0 || shouting || bursts > 0 || againStill {
			b.FrictionMessages++
			cs.Friction++
			sawFriction = true
		}

		for _, w := range Tokenize(clean) {
			contrib.Words[w]++
		}

		if at != nil {
			local := at.In(loc)
			contrib.TimedMessages++
			contrib.Days[local.Format(dayLayout)]++
			contrib.Months[local.Format(monthLayout)]++
			contrib.Hours[local.Hour()]++
			contrib.Prompts = append(contrib.Prompts, PromptSample{At: *at, Chars: chars})
			if isLateNight(local.Hour()) {
				b.LateNightMessages++
				lateNight = true
			}
			if first == nil || at.Before(*first) {
				first = at
			}
			if last == nil || at.After(*last) {
				last = at
			}
		}
	}

	if cs.UserMessages == 0 {
		return ConversationSummary{}, Contribution{}, false
	}

	contrib.Chars = totalChars
	cs.Title = titleCleaned
	cs.AvgPromptChars = float64(totalChars) / float64(cs.UserMessages)
	if first != nil {
		f, l := first.In(loc), last.In(loc)
		cs.FirstAt, cs.LastAt = &f, &l
		cs.Month = f.Format(monthLayout)
		cs.StartDay = f.Format(dayLayout)
		cs.DurationMinutes = l.Sub(f).Minutes()
	}

	cs.Topic = pickTopic(board.topic)
	cs.Intent = pickIntent(board.intent, defaultIntentByTopic[cs.Topic])
	cs.Deliverable = pickDeliverable(board.deliverable, defaultDeliverableByTopic[cs.Topic])
	cs.Theme = pickTheme(board.theme)
	cs.Stack = rankStack(board.stack)
	cs.Mood = deriveMood(cs)
	cs.Description = describe(cs)

	if cs.Theme != "" {
		tags = append(tags, cs.Theme)
	}
	if lateNight {
		tags = append(tags, "late-night")
	}
	if cs.Comeback {
		tags = append(tags, "comeback")
	}
	if cs.MaxPromptChars >= 1000 {
		tags = append(tags, "long-prompt")
	}
	if contrib.Behavior.QuickQuestionCount > 0 {
		tags = append(tags, "quick-question")
	}
	if contrib.Behavior.StepByStepCount > 0 {
		tags = append(tags, "step-by-step")
	}
	sort.Strings(tags)
	cs.Tags = tags

	return cs, contrib, true
}

func count(re *regexp.Regexp, s string) int {
	return len(re.FindAllStringIndex(s, -1))
}

func isLateNight(hour int) bool {
	return hour >= 23 || hour <= 4
}

// isShouting reports an all-caps message: enough letters, mostly upper case.
func isShouting(text string) bool {
	letters, upper := 0, 0
	for _, r := range privacy.StripPlaceholders(text) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return letters >= shoutMinLetters && float64(upper) >= shoutUpperRatio*float64(letters)
}

func pickTopic(scores map[Topic]int) Topic {
	best, bestScore := TopicOther, 0
	for _, r := range topicRules {
		if s := scores[r.topic]; s > bestScore {
			best, bestScore = r.topic, s
		}
	}
	return best
}

// pickIntent takes the highest score. On a tie the topic default wins if it
// is among the leaders, otherwise the earliest rule in intentRules.
func pickIntent(scores map[Intent]int, fallback Intent) Intent {
	top := 0
	for _, s := range scores {
		if s > top {
			top = s
		}
	}
	if top == 0 {
		return fallback
	}
	if scores[fallback] == top {
		return fallback
	}
	for _, r := range intentRules {
		if scores[r.intent] == top {
			return r.intent
		}
	}
	return fallback
}

func pickDeliverable(scores map[Deliverable]int, fallback Deliverable) Deliverable {
	top := 0
	for _, s := range scores {
		if s > top {
			top = s
		}
	}
	if top == 0 || scores[fallback] == top {
		return fallback
	}
	for _, r := range deliverableRules {
		if scores[r.deliverable] == top {
			return r.deliverable
		}
	}
	return fallback
}

func pickTheme(scores map[string]int) string {
	best, bestScore := "", 0
	for _, r := range themeRules {
		if s := scores[r.key]; s > bestScore {
			best, bestScore = r.key, s
		}
	}
	return best
}

// rankStack orders detected technologies by score, then table order.
func rankStack(scores map[string]int) []string {
	if len(scores) == 0 {
		return nil
	}
	out := make([]string, 0, len(scores))
	for _, r := range stackRules {
		if scores[r.name] > 0 {
			out = append(out, r.name)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return scores[out[i]] > scores[out[j]] })
	return out
}

// primaryStack is the first detected technology that says something about
// the project, skipping generic ones like JSON or Git.
func primaryStack(stack []string) string {
	for _, s := range stack {
		if !stackByName[s].generic {
			return s
		}
	}
	return ""
}

func deriveMood(cs ConversationSummary) Mood {
	switch {
	case cs.Friction >= 2 && float64(cs.Friction) >= 0.35*float64(cs.UserMessages) && cs.Wins == 0:
		return MoodFrustrated
	case cs.Wins >= 2 && cs.Friction == 0:
		return MoodFlow
	case cs.Indecision >= 3:
		return MoodUncertain
	case cs.Comeback:
		return MoodExcited
	default:
		return MoodNeutral
	}
}

var intentVerbs = map[Intent]string{
	IntentBuild:      "Building",
	IntentDebug:      "Debugging",
	IntentWrite:      "Writing",
	IntentPlan:       "Planning",
	IntentLearn:      "Learning about",
	IntentDecide:     "Deciding on",
	IntentVent:       "Venting about",
	IntentBrainstorm: "Brainstorming",
	IntentOther:      "Chatting about",
}

func themeLabel(key string) string {
	for _, r := range themeRules {
		if r.key == key {
			return r.label
		}
	}
	return ""
}

// subjectLabel names what a conversation was about from categorical fields.
func subjectLabel(theme string, topic Topic) string {
	if l := themeLabel(theme); l != "" {
		return l
	}
	return topicLabels[topic]
}

func describe(cs ConversationSummary) string {
	d := intentVerbs[cs.Intent] + " " + subjectLabel(cs.Theme, cs.Topic)
	if s := primaryStack(cs.Stack); s != "" {
		d += " in " + s
	}
	return d
}

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)
