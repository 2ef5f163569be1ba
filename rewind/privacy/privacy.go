// Package privacy strips personally identifying text from chat messages
// before anything else looks at them.
package privacy

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Placeholders substituted for removed text. None of them can match the
// patterns that produce them, which keeps Anonymize idempotent.
const (
	PlaceholderEmail = "[email]"
	PlaceholderPhone = "[phone]"
	PlaceholderURL   = "[url]"
	PlaceholderName  = "[name]"
)

// Counts tallies what Anonymize removed.
type Counts struct {
	Emails int `json:"emails"`
	Phones int `json:"phones"`
	URLs   int `json:"urls"`
	Names  int `json:"names"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.Emails += o.Emails
	c.Phones += o.Phones
	c.URLs += o.URLs
	c.Names += o.Names
}

// Total is the number of substitutions.
func (c Counts) Total() int { return c.Emails + c.Phones + c.URLs + c.Names }

// Anonymizer replaces identifying substrings with placeholders.
type Anonymizer interface {
	Anonymize(text string) (string, Counts)
}

// Redactor is the stricter pass applied before persistence.
type Redactor interface {
	Redact(text string) string
}

var (
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"'()\[\]]+`)
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
	namePattern  = regexp.MustCompile(`\b((?:[Mm]y name is|[Mm]y name's|[Cc]all me|[Dd]ear|[Ss]igned,?)\s+)([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	digitRun     = regexp.MustCompile(`\d{4,}`)

	placeholderPattern = regexp.MustCompile(`\[(?:email|phone|url|name)\]`)
)

// Sanitizer is the default Anonymizer and Redactor. Extra patterns only
// apply to Redact.
type Sanitizer struct {
	extra []*regexp.Regexp
}

// New compiles the optional extra redaction patterns.
func New(patterns []string) (*Sanitizer, error) {
	s := &Sanitizer{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("privacy.New: compile %q: %w", p, err)
		}
		s.extra = append(s.extra, re)
	}
	return s, nil
}

// Default is a Sanitizer without extra patterns.
var Default = &Sanitizer{}

// Anonymize replaces URLs, emails, phone numbers and self-introduced names.
// URLs go first because they may embed emails and digit runs.
func (s *Sanitizer) Anonymize(text string) (string, Counts) {
	var c Counts
	if text == "" {
		return "", c
	}
	text = urlPattern.ReplaceAllStringFunc(text, func(string) string {
		c.URLs++
		return PlaceholderURL
	})
	text = emailPattern.ReplaceAllStringFunc(text, func(string) string {
		c.Emails++
		return PlaceholderEmail
	})
	text = phonePattern.ReplaceAllStringFunc(text, func(m string) string {
		digits := countDigits(m)
		if digits < 8 || digits > 15 {
			return m
		}
		c.Phones++
		return PlaceholderPhone
	})
	text = namePattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := namePattern.FindStringSubmatch(m)
		c.Names++
		return sub[1] + PlaceholderName
	})
	return text, c
}

// Redact anonymizes text, blanks runs of four or more digits and anything
// matching the extra patterns, and collapses whitespace.
func (s *Sanitizer) Redact(text string) string {
	text, _ = s.Anonymize(text)
	text = digitRun.ReplaceAllString(text, "")
	for _, re := range s.extra {
		text = re.ReplaceAllString(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// StripPlaceholders removes anonymization placeholders, leaving only text
// the user actually wrote.
func StripPlaceholders(text string) string {
	return placeholderPattern.ReplaceAllString(text, " ")
}

// IsEffectivelyEmpty reports whether nothing but placeholders, whitespace
// and punctuation remains.
func IsEffectivelyEmpty(sanitized string) bool {
	for _, r := range StripPlaceholders(sanitized) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
