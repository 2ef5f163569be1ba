package rewind

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
)

// Tally counts occurrences of normalized terms.
type Tally map[string]int

// Add bumps term by n. Empty terms are ignored.
func (t Tally) Add(term string, n int) {
	key := normalizeTerm(term)
	if key == "" || n <= 0 {
		return
	}
	t[key] += n
}

// Merge adds every count in o.
func (t Tally) Merge(o Tally) {
	for k, v := range o {
		t[k] += v
	}
}

// Cull removes entries with a count below minCount.
func (t Tally) Cull(minCount int) {
	if minCount <= 1 {
		return
	}
	for k, v := range t {
		if v < minCount {
			delete(t, k)
		}
	}
}

// Shrink drops the rarest terms until at most size remain. Terms tied at the
// cut-off count are dropped together, so fewer may remain.
func (t Tally) Shrink(size int) {
	if size < 0 {
		size = 0
	}
	if len(t) <= size {
		return
	}
	counts := make([]int, 0, len(t))
	for _, v := range t {
		counts = append(counts, v)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))
	t.Cull(counts[size] + 1)
}

// Top returns up to n terms with at least minCount occurrences, highest count
// first, then alphabetically. n <= 0 means no limit.
func (t Tally) Top(n, minCount int) []TermCount {
	out := make([]TermCount, 0, len(t))
	for k, v := range t {
		if v >= minCount && v > 0 {
			out = append(out, TermCount{Term: k, Count: v})
		}
	}
	sortTermCounts(out)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sortTermCounts(tc []TermCount) {
	sort.SliceStable(tc, func(i, j int) bool {
		if tc[i].Count != tc[j].Count {
			return tc[i].Count > tc[j].Count
		}
		return tc[i].Term < tc[j].Term
	})
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// Tokenize splits sanitized text into lower-cased words of at least three
// characters, dropping stopwords, placeholders and pure numbers.
func Tokenize(sanitized string) []string {
	text := strings.ToLower(privacy.StripPlaceholders(sanitized))
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	var out []string
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if utf8.RuneCountInString(f) < 3 || !hasLetter(f) {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
