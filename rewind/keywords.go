package rewind

import (
	"regexp"
	"strings"
)

// Keyword tables are matched against lower-cased, anonymized text. Terms
// match at a word start, so "fix" also matches "fixing" and "fixed".

type intentRule struct {
	intent Intent
	re     *regexp.Regexp
}

type deliverableRule struct {
	deliverable Deliverable
	re          *regexp.Regexp
}

type topicRule struct {
	topic Topic
	re    *regexp.Regexp
}

type themeRule struct {
	key   string
	label string
	re    *regexp.Regexp
}

type stackRule struct {
	name    string
	re      *regexp.Regexp
	generic bool
	weird   bool
}

type phraseRule struct {
	label string
	re    *regexp.Regexp
}

// termsPattern builds a word-start alternation from plain terms.
func termsPattern(terms ...string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)`)
}

// wordsPattern is termsPattern anchored at both ends.
func wordsPattern(terms ...string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// intentRules order is the tie-break order when two intents score equally
// and neither is the topic default.
var intentRules = []intentRule{
	{IntentDebug, termsPattern("bug", "error", "broken", "fix", "crash", "exception", "traceback", "stack trace",
		"not working", "doesn't work", "does not work", "fails", "failing", "debug", "why is", "why does", "undefined", "segfault")},
	{IntentBuild, termsPattern("build", "implement", "create a", "set up", "setup", "deploy", "script", "scaffold",
		"integrate", "refactor", "add a feature", "make an app", "prototype", "automate")},
	{IntentWrite, termsPattern("write", "draft", "rewrite", "reword", "edit", "essay", "email", "letter", "blog",
		"proofread", "cover letter", "caption", "paragraph", "tone")},
	{IntentPlan, termsPattern("plan", "schedule", "roadmap", "itinerary", "organize", "timeline", "strategy",
		"checklist", "budget", "prioritize", "to-do", "todo")},
	{IntentLearn, termsPattern("explain", "what is", "what are", "how does", "how do", "teach", "learn", "understand",
		"difference between", "meaning of", "tutorial", "eli5", "example of")},
	{IntentDecide, termsPattern("should i", "which is better", "which one", "versus", " vs ", "compare", "pros and cons",
		"choose", "decide", "worth it", "recommend")},
	{IntentBrainstorm, termsPattern("ideas", "brainstorm", "suggest", "name for", "names for", "come up with",
		"alternatives", "what if", "inspiration")},
	{IntentVent, termsPattern("i feel", "i'm so tired", "stressed", "anxious", "overwhelmed", "burnt out", "burned out",
		"burnout", "can't sleep", "lonely", "vent", "hate my")},
}

var deliverableRules = []deliverableRule{
	{DeliverableCode, termsPattern("code", "function", "script", "snippet", "regex", "sql", "query", "class ",
		"bug", "error", "compile", "endpoint", "component")},
	{DeliverablePlan, termsPattern("plan", "itinerary", "schedule", "roadmap", "checklist", "timeline", "agenda")},
	{DeliverableEmail, termsPattern("email", "e-mail", "letter", "reply to", "message to", "cover letter", "dm ")},
	{DeliverableStory, termsPattern("story", "poem", "chapter", "character", "plot", "lyrics", "novel", "fiction")},
	{DeliverableAnalysis, termsPattern("analyze", "analyse", "analysis", "data", "report", "spreadsheet", "chart",
		"statistic", "metrics", "summarize", "summary")},
	{DeliverableDecision, termsPattern("should i", "decide", "choose", "which one", "which is better", "pros and cons")},
}

var topicRules = []topicRule{
	{TopicCoding, termsPattern("code", "coding", "program", "function", "bug", "error", "api", "database", "deploy",
		"git", "compile", "server", "regex", "sql", "script", "debug", "python", "javascript", "typescript",
		"golang", "java", "rust", "react", "docker", "kubernetes", "terminal")},
	{TopicWriting, termsPattern("essay", "email", "letter", "blog", "draft", "proofread", "article", "paragraph",
		"rewrite", "grammar", "newsletter", "copywriting", "tone")},
	{TopicLearning, termsPattern("explain", "learn", "study", "homework", "exam", "math", "history", "science",
		"understand", "course", "lecture", "physics", "chemistry", "theorem")},
	{TopicPlanning, termsPattern("plan", "schedule", "budget", "meal", "workout", "organize", "todo", "to-do",
		"calendar", "goal", "habit", "routine")},
	{TopicTravel, termsPattern("trip", "travel", "flight", "hotel", "itinerary", "visa", "vacation", "airbnb",
		"passport", "sightseeing", "road trip")},
	{TopicCareer, termsPattern("job", "interview", "resume", "cv ", "salary", "career", "promotion", "linkedin",
		"cover letter", "hiring", "recruiter", "manager")},
	{TopicCreative, termsPattern("poem", "song", "lyrics", "story", "character", "novel", "drawing", "painting",
		"design", "worldbuilding", "fantasy", "screenplay")},
}

// defaultIntentByTopic is the intent a conversation falls back to when no
// intent keyword outscores it.
var defaultIntentByTopic = map[Topic]Intent{
	TopicCoding:   IntentBuild,
	TopicWriting:  IntentWrite,
	TopicLearning: IntentLearn,
	TopicPlanning: IntentPlan,
	TopicTravel:   IntentPlan,
	TopicCareer:   IntentPlan,
	TopicCreative: IntentBrainstorm,
	TopicOther:    IntentOther,
}

var defaultDeliverableByTopic = map[Topic]Deliverable{
	TopicCoding:   DeliverableCode,
	TopicWriting:  DeliverableOther,
	TopicLearning: DeliverableAnalysis,
	TopicPlanning: DeliverablePlan,
	TopicTravel:   DeliverablePlan,
	TopicCareer:   DeliverableOther,
	TopicCreative: DeliverableStory,
	TopicOther:    DeliverableOther,
}

var topicLabels = map[Topic]string{
	TopicCoding:   "code",
	TopicWriting:  "some writing",
	TopicLearning: "a new subject",
	TopicPlanning: "a plan",
	TopicTravel:   "a trip",
	TopicCareer:   "career moves",
	TopicCreative: "a creative project",
	TopicOther:    "something",
}

var themeRules = []themeRule{
	{"web-app", "a web app", termsPattern("website", "web app", "webapp", "frontend", "landing page", "next.js", "react app")},
	{"api-backend", "a backend service", termsPattern("backend", "rest api", "endpoint", "microservice", "graphql", "server")},
	{"data-pipeline", "a data pipeline", termsPattern("etl", "pipeline", "dataset", "csv", "dataframe", "pandas", "scrape", "scraper")},
	{"chatbot", "a chatbot", termsPattern("chatbot", "discord bot", "telegram bot", "slack bot", "llm", "prompt engineering")},
	{"automation", "an automation", termsPattern("automate", "automation", "cron", "workflow", "zapier", "macro")},
	{"game", "a game", termsPattern("game", "unity", "godot", "sprite", "level design", "minecraft")},
	{"mobile-app", "a mobile app", termsPattern("ios app", "android", "mobile app", "swiftui", "flutter", "react native")},
	{"homelab", "the homelab", termsPattern("homelab", "raspberry pi", "nas", "proxmox", "home assistant", "self-host")},
	{"job-search", "the job hunt", termsPattern("job search", "interview", "resume", "cover letter", "recruiter", "offer letter")},
	{"trip", "a trip", termsPattern("trip", "itinerary", "flight", "hotel", "vacation")},
	{"fitness", "getting fit", termsPattern("workout", "gym", "protein", "calorie", "running plan", "marathon")},
	{"novel", "the novel", termsPattern("novel", "chapter", "manuscript", "worldbuilding", "plot")},
	{"thesis", "the thesis", termsPattern("thesis", "dissertation", "literature review", "research paper")},
	{"startup", "the startup", termsPattern("startup", "pitch deck", "investor", "mvp", "go-to-market", "saas")},
}

var stackRules = []stackRule{
	{name: "Python", re: regexp.MustCompile(`\bpython|\bpip install\b|\.py\b|\bdjango\b|\bflask\b|\bpandas\b`)},
	{name: "JavaScript", re: regexp.MustCompile(`\bjavascript\b|\bnode\.?js\b|\bnpm\b|\.js\b`)},
	{name: "TypeScript", re: regexp.MustCompile(`\btypescript\b|\.tsx?\b`)},
	{name: "Go", re: regexp.MustCompile(`\bgolang\b|\bgo (?:mod|build|test|run)\b|\bgoroutine`)},
	{name: "Rust", re: regexp.MustCompile(`\brust(?:c|up)?\b|\bcargo\b`)},
	{name: "Java", re: regexp.MustCompile(`\bjava\b|\bspring boot\b|\bmaven\b|\bgradle\b`)},
	{name: "C#", re: regexp.MustCompile(`(?:^|[^a-z])c#|\.net\b`)},
	{name: "C++", re: regexp.MustCompile(`(?:^|[^a-z])c\+\+`)},
	{name: "React", re: regexp.MustCompile(`\breact\b|\bjsx\b|\bnext\.?js\b`)},
	{name: "SQL", re: regexp.MustCompile(`\bsql\b|\bpostgres|\bmysql\b|\bsqlite\b`)},
	{name: "Docker", re: regexp.MustCompile(`\bdocker|\bcontainer`)},
	{name: "Kubernetes", re: regexp.MustCompile(`\bkubernetes\b|\bk8s\b|\bkubectl\b|\bhelm\b`)},
	{name: "AWS", re: regexp.MustCompile(`\baws\b|\bec2\b|\bs3 bucket|\blambda function`)},
	{name: "Swift", re: regexp.MustCompile(`\bswift(?:ui)?\b|\bxcode\b`)},
	{name: "Kotlin", re: regexp.MustCompile(`\bkotlin\b`)},
	{name: "PHP", re: regexp.MustCompile(`\bphp\b|\blaravel\b|\bwordpress\b`)},
	{name: "Ruby", re: regexp.MustCompile(`\bruby\b|\brails\b`)},
	{name: "Excel", re: regexp.MustCompile(`\bexcel\b|\bvlookup\b|\bgoogle sheets\b|\bspreadsheet`)},
	{name: "Bash", re: regexp.MustCompile(`\bbash\b|\bshell script|\bzsh\b`)},
	{name: "Git", re: regexp.MustCompile(`\bgit\b|\bgithub\b|\bmerge conflict|\brebase\b`), generic: true},
	{name: "JSON", re: regexp.MustCompile(`\bjson\b`), generic: true},
	{name: "API", re: regexp.MustCompile(`\bapis?\b`), generic: true},
	{name: "Linux", re: regexp.MustCompile(`\blinux\b|\bubuntu\b|\bdebian\b`), generic: true},
	{name: "Haskell", re: regexp.MustCompile(`\bhaskell\b`), weird: true},
	{name: "COBOL", re: regexp.MustCompile(`\bcobol\b`), weird: true},
	{name: "Fortran", re: regexp.MustCompile(`\bfortran\b`), weird: true},
	{name: "Elixir", re: regexp.MustCompile(`\belixir\b|\bphoenix liveview\b`), weird: true},
	{name: "Erlang", re: regexp.MustCompile(`\berlang\b`), weird: true},
	{name: "OCaml", re: regexp.MustCompile(`\bocaml\b`), weird: true},
	{name: "Lisp", re: regexp.MustCompile(`\blisp\b|\bclojure\b|\bscheme\b`), weird: true},
	{name: "Prolog", re: regexp.MustCompile(`\bprolog\b`), weird: true},
	{name: "Zig", re: regexp.MustCompile(`\bzig\b`), weird: true},
	{name: "Assembly", re: regexp.MustCompile(`\bassembly\b|\basm\b|\bx86\b`), weird: true},
	{name: "Solidity", re: regexp.MustCompile(`\bsolidity\b|\bsmart contract`), weird: true},
	{name: "VBA", re: regexp.MustCompile(`\bvba\b|\bexcel macro`), weird: true},
	{name: "AppleScript", re: regexp.MustCompile(`\bapplescript\b`), weird: true},
}

var stackByName = func() map[string]stackRule {
	m := make(map[string]stackRule, len(stackRules))
	for _, r := range stackRules {
		m[r.name] = r
	}
	return m
}()

// Habit phrases feed both the behavior counters and TopPhrases.
var (
	pleasePattern     = wordsPattern("please", "pls", "plz")
	thanksPattern     = wordsPattern("thanks", "thank you", "thx", "ty", "cheers")
	sorryPattern      = termsPattern("sorry", "my bad", "apologi")
	quickQPattern     = wordsPattern("quick question", "quick q", "simple question", "dumb question", "stupid question")
	stepByStepPattern = regexp.MustCompile(`\bstep[- ]by[- ]step\b|\bwalk me through\b`)
)

var phraseRules = []phraseRule{
	{"please", pleasePattern},
	{"thank you", thanksPattern},
	{"sorry", sorryPattern},
	{"quick question", quickQPattern},
	{"step by step", stepByStepPattern},
	{"can you", wordsPattern("can you", "could you")},
	{"help me", wordsPattern("help me")},
	{"make it shorter", wordsPattern("make it shorter", "shorter", "more concise")},
	{"one more thing", wordsPattern("one more thing", "also")},
	{"actually", wordsPattern("actually")},
	{"in simple terms", wordsPattern("in simple terms", "like i'm five", "like im five", "eli5")},
	{"try again", wordsPattern("try again", "redo", "regenerate")},
}

// nicknameRules are the terms people use to address the assistant.
var nicknameRules = []phraseRule{
	{"buddy", wordsPattern("buddy")},
	{"bro", wordsPattern("bro", "bruh")},
	{"dude", wordsPattern("dude")},
	{"pal", wordsPattern("pal")},
	{"mate", wordsPattern("mate")},
	{"chief", wordsPattern("chief", "boss")},
	{"my guy", wordsPattern("my guy", "my man")},
	{"bestie", wordsPattern("bestie")},
	{"king", wordsPattern("king", "queen", "legend")},
	{"genius", wordsPattern("genius", "einstein")},
	{"robot", wordsPattern("robot", "clanker", "toaster")},
	{"idiot", wordsPattern("idiot", "dummy", "moron", "stupid bot", "useless")},
}

// Signal detectors.
var (
	troublePattern = termsPattern("broken", "not working", "doesn't work", "does not work", "isn't working",
		"won't work", "still fails", "error", "crash", "stuck", "wrong", "bug", "failing", "fails", "keeps failing",
		"ugh", "argh", "i give up", "this is ridiculous", "annoying", "frustrat", "hate this")
	whyBrokenPattern  = regexp.MustCompile(`\bwhy (?:is|does|isn't|doesn't|won't|am i getting|do i get|did)\b[^.?!]*\b(?:broken|break|work|fail|error|crash|wrong)`)
	profanityPattern  = termsPattern("fuck", "shit", "damn", "crap", "wtf", "bullshit", "goddamn", "ffs", "piss", "bastard")
	againStillPattern = wordsPattern("again", "still")
	burstPattern      = regexp.MustCompile(`[?!]{3,}`)
	winPattern        = termsPattern("it works", "it worked", "that worked", "works now", "working now", "fixed it",
		"solved", "finally", "perfect", "nailed it", "that did it", "success", "shipped", "we did it", "awesome",
		"you're a lifesaver", "lifesaver")
	indecisionPattern = termsPattern("should i", "or should", "not sure", "can't decide", "cannot decide",
		"torn between", "which one", "which is better", "what do you think", "idk", "i don't know", "on second thought",
		"never mind", "nevermind", "second-guess", "second guess", "change my mind", "changed my mind")
)

// stopwords is deliberately small; the word list is a vibe check, not NLP.
var stopwords = func() map[string]struct{} {
	words := strings.Fields(`the and for you are but not with this that have from they will would there their what
		about which when make like time just know take into your some could them than then now only come its over
		also back after use two how our work first well way even want because any these give most was were been
		can has had did does doing done get got into out who why where all one more very much should here okay
		yes yeah thanks thank please hey hello i'm it's don't can't that's what's let i've i'll you're im dont
		cant need help something really still again other each same being through while those let's`)
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()
