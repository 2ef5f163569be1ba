// Package rewind turns a chat-history export into a year-in-review summary:
// per-conversation classification, global aggregation, a rule-based narrative
// and shareable one-liners.
package rewind

import (
	"time"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

// Intent is why a conversation happened.
type Intent string

const (
	IntentBuild      Intent = "build"
	IntentDebug      Intent = "debug"
	IntentWrite      Intent = "write"
	IntentPlan       Intent = "plan"
	IntentLearn      Intent = "learn"
	IntentDecide     Intent = "decide"
	IntentVent       Intent = "vent"
	IntentBrainstorm Intent = "brainstorm"
	IntentOther      Intent = "other"
)

// Deliverable is what a conversation produced.
type Deliverable string

const (
	DeliverableCode     Deliverable = "code"
	DeliverablePlan     Deliverable = "plan"
	DeliverableEmail    Deliverable = "email"
	DeliverableStory    Deliverable = "story"
	DeliverableAnalysis Deliverable = "analysis"
	DeliverableDecision Deliverable = "decision"
	DeliverableOther    Deliverable = "other"
)

// Mood is the emotional tenor of a conversation.
type Mood string

const (
	MoodFrustrated Mood = "frustrated"
	MoodFlow       Mood = "flow"
	MoodUncertain  Mood = "uncertain"
	MoodExcited    Mood = "excited"
	MoodNeutral    Mood = "neutral"
)

// Topic is a subject-matter bucket.
type Topic string

const (
	TopicCoding   Topic = "coding"
	TopicWriting  Topic = "writing"
	TopicLearning Topic = "learning"
	TopicPlanning Topic = "planning"
	TopicTravel   Topic = "travel"
	TopicCareer   Topic = "career"
	TopicCreative Topic = "creative"
	TopicOther    Topic = "other"
)

// Prompt-length trend values.
const (
	TrendLonger  = "longer"
	TrendShorter = "shorter"
	TrendSteady  = "steady"
	TrendUnknown = "unknown"
)

// ConversationSummary is the classifier's verdict on one conversation with at
// least one in-scope user message. Title, Excerpt and ID may carry
// user-authored text and are cleared by Sanitize.
type ConversationSummary struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`

	Topic       Topic  `json:"topic"`
	Theme       string `json:"theme,omitempty"`
	Month       string `json:"month,omitempty"`
	StartDay    string `json:"start_day,omitempty"`
	Description string `json:"description"`

	UserMessages    int     `json:"user_messages"`
	AvgPromptChars  float64 `json:"avg_prompt_chars"`
	MaxPromptChars  int     `json:"max_prompt_chars"`
	DurationMinutes float64 `json:"duration_minutes"`

	Intent      Intent      `json:"intent"`
	Deliverable Deliverable `json:"deliverable"`
	Mood        Mood        `json:"mood"`
	Tags        []string    `json:"tags,omitempty"`
	Stack       []string    `json:"stack,omitempty"`

	Wins       int  `json:"wins"`
	Friction   int  `json:"friction"`
	Indecision int  `json:"indecision"`
	Comeback   bool `json:"comeback"`

	FirstAt *time.Time `json:"first_at,omitempty"`
	LastAt  *time.Time `json:"last_at,omitempty"`
}

// RewindBehavior holds global message-level counters. They only ever grow.
type RewindBehavior struct {
	PleaseCount        int `json:"please_count"`
	ThanksCount        int `json:"thanks_count"`
	SorryCount         int `json:"sorry_count"`
	QuickQuestionCount int `json:"quick_question_count"`
	StepByStepCount    int `json:"step_by_step_count"`

	FrustrationCount  int `json:"frustration_count"`
	ProfanityCount    int `json:"profanity_count"`
	ShoutingMessages  int `json:"shouting_messages"`
	PunctuationBursts int `json:"punctuation_bursts"`
	AgainStillCount   int `json:"again_still_count"`
	WhyBrokenCount    int `json:"why_broken_count"`
	IndecisionCount   int `json:"indecision_count"`
	WinCount          int `json:"win_count"`
	FrictionMessages  int `json:"friction_messages"`
	LateNightMessages int `json:"late_night_messages"`
}

func (b *RewindBehavior) add(o RewindBehavior) {
	b.PleaseCount += o.PleaseCount
	b.ThanksCount += o.ThanksCount
	b.SorryCount += o.SorryCount
	b.QuickQuestionCount += o.QuickQuestionCount
	b.StepByStepCount += o.StepByStepCount
	b.FrustrationCount += o.FrustrationCount
	b.ProfanityCount += o.ProfanityCount
	b.ShoutingMessages += o.ShoutingMessages
	b.PunctuationBursts += o.PunctuationBursts
	b.AgainStillCount += o.AgainStillCount
	b.WhyBrokenCount += o.WhyBrokenCount
	b.IndecisionCount += o.IndecisionCount
	b.WinCount += o.WinCount
	b.FrictionMessages += o.FrictionMessages
	b.LateNightMessages += o.LateNightMessages
}

// TermCount is a ranked term with its occurrence count.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// TopicCount is a topic with the number of conversations assigned to it.
type TopicCount struct {
	Topic         Topic `json:"topic"`
	Conversations int   `json:"conversations"`
}

// MonthCount is a month label with a count.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// WeekCount is a Monday-aligned week with a score.
type WeekCount struct {
	WeekStart string `json:"week_start"`
	Score     int    `json:"score"`
}

// Streak is a run of consecutive active calendar days.
type Streak struct {
	Days  int    `json:"days"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// MonthStat aggregates the conversations that started in one month.
type MonthStat struct {
	Month      string `json:"month"`
	Chats      int    `json:"chats"`
	Messages   int    `json:"messages"`
	Wins       int    `json:"wins"`
	Friction   int    `json:"friction"`
	Indecision int    `json:"indecision"`
}

// ChaosScore weighs friction and indecision over plain volume.
func (m MonthStat) ChaosScore() int {
	return 3*m.Friction + 2*m.Indecision + m.Chats
}

// RewindSummary is the aggregate root of one export.
type RewindSummary struct {
	RunID       string    `json:"run_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Sanitized   bool      `json:"sanitized"`

	TotalConversations int `json:"total_conversations"`
	TotalUserMessages  int `json:"total_user_messages"`
	ActiveDays         int `json:"active_days"`

	FirstActivity *time.Time `json:"first_activity,omitempty"`
	LastActivity  *time.Time `json:"last_activity,omitempty"`

	BusiestMonth     *MonthCount `json:"busiest_month,omitempty"`
	PeakHour         *int        `json:"peak_hour,omitempty"`
	LateNightPercent float64     `json:"late_night_percent"`

	AvgPromptChars     *float64 `json:"avg_prompt_chars"`
	LongestPromptChars *int     `json:"longest_prompt_chars"`
	PromptTrend        string   `json:"prompt_trend"`

	LongestStreak   Streak     `json:"longest_streak"`
	MostActiveWeek  *WeekCount `json:"most_active_week,omitempty"`
	MostChaoticWeek *WeekCount `json:"most_chaotic_week,omitempty"`

	TopTopics  []TopicCount `json:"top_topics,omitempty"`
	TopStack   []TermCount  `json:"top_stack,omitempty"`
	TopPhrases []TermCount  `json:"top_phrases,omitempty"`
	Nicknames  []TermCount  `json:"nicknames,omitempty"`
	TopWords   []TermCount  `json:"top_words,omitempty"`
	Months     []MonthStat  `json:"months,omitempty"`

	Behavior RewindBehavior `json:"behavior"`
	Privacy  privacy.Counts `json:"privacy"`

	// Evidence holds short anonymized snippets per friction category.
	Evidence map[string][]string `json:"evidence,omitempty"`

	SkippedConversations int `json:"skipped_conversations"`
	SkippedTimestamps    int `json:"skipped_timestamps"`

	Conversations []ConversationSummary `json:"conversations"`
	Wrapped       *WrappedSummary       `json:"wrapped,omitempty"`
}

// Project is a cluster of related conversations.
type Project struct {
	Key          string     `json:"key"`
	Label        string     `json:"label"`
	Stack        string     `json:"stack,omitempty"`
	Chats        int        `json:"chats"`
	Messages     int        `json:"messages"`
	MonthsActive int        `json:"months_active"`
	Intensity    string     `json:"intensity"`
	Status       string     `json:"status"`
	Wins         int        `json:"wins"`
	Friction     int        `json:"friction"`
	LastActive   *time.Time `json:"last_active,omitempty"`
	Evidence     []string   `json:"evidence,omitempty"`
}

// BossFight is a recurring friction pattern.
type BossFight struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Count    int      `json:"count"`
	Examples []string `json:"examples,omitempty"`
}

// WinEntry is one line of the win tally.
type WinEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// ComebackHighlight is the single most dramatic friction-then-win conversation.
type ComebackHighlight struct {
	Description string `json:"description"`
	Month       string `json:"month,omitempty"`
	Friction    int    `json:"friction"`
	Wins        int    `json:"wins"`
	Title       string `json:"title,omitempty"`
	Excerpt     string `json:"excerpt,omitempty"`
}

// MonthScore labels a month with a score.
type MonthScore struct {
	Month string  `json:"month"`
	Score float64 `json:"score"`
}

// Timeline lists the extremes of the year.
type Timeline struct {
	FlowMonths      []string    `json:"flow_months,omitempty"`
	FrictionMonths  []string    `json:"friction_months,omitempty"`
	VillainMonth    *MonthScore `json:"villain_month,omitempty"`
	IndecisionMonth *MonthScore `json:"indecision_month,omitempty"`
	LongestStreak   Streak      `json:"longest_streak"`
}

// WeirdTech is the one unusual technology worth calling out.
type WeirdTech struct {
	Term          string `json:"term"`
	Conversations int    `json:"conversations"`
	Example       string `json:"example,omitempty"`
}

// Archetype is the persona assigned to the year.
type Archetype struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Tagline string `json:"tagline"`
}

// WrappedSummary is the narrative view derived from a finished RewindSummary.
type WrappedSummary struct {
	Projects    []Project          `json:"projects,omitempty"`
	BossFights  []BossFight        `json:"boss_fights,omitempty"`
	Wins        []WinEntry         `json:"wins,omitempty"`
	Comeback    *ComebackHighlight `json:"comeback,omitempty"`
	Timeline    Timeline           `json:"timeline"`
	Weird       *WeirdTech         `json:"weird,omitempty"`
	Archetype   *Archetype         `json:"archetype,omitempty"`
	Forecast    []string           `json:"forecast,omitempty"`
	ClosingLine string             `json:"closing_line,omitempty"`
}

// Banger is a ranked one-line summary candidate.
type Banger struct {
	Line      string `json:"line"`
	Detail    string `json:"detail,omitempty"`
	Category  string `json:"category"`
	Score     int    `json:"score"`
	Shareable bool   `json:"shareable"`
}

// BangerSet is the output of GenerateBangers.
type BangerSet struct {
	Page  []Banger `json:"page"`
	Share []Banger `json:"share"`
	All   []Banger `json:"all"`
}
