package ingest

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

const sampleDoc = "\xEF\xBB\xBF  [\n" +
	`{"title":"braces {in} strings","mapping":{"a":{"message":{"content":{"parts":["}}} \"quoted\" {{"]}}}}},` + "\n" +
	`{"title":"héllo","messages":[{"author":{"role":"user"},"content":"café 🌍 and \\ backslash"}]} ,` +
	`{"title":"empty","mapping":{}}` +
	"\n]\n"

func parseAll(t *testing.T, doc []byte, chunkSize int) ([]string, error) {
	t.Helper()

	var got []string
	p := NewArrayParser(func(raw json.RawMessage) error {
		got = append(got, string(raw))
		return nil
	}, ArrayParserOptions{})

	for start := 0; start < len(doc); start += chunkSize {
		end := start + chunkSize
		if end > len(doc) {
			end = len(doc)
		}
		if _, err := p.Write(doc[start:end]); err != nil {
			return got, err
		}
	}
	return got, p.Close()
}

func TestArrayParser_ChunkPartitionEquivalence(t *testing.T) {
	t.Parallel()

	doc := []byte(sampleDoc)
	want, err := parseAll(t, doc, len(doc))
	if err != nil {
		t.Fatalf("single chunk: %v", err)
	}
	if len(want) != 3 {
		t.Fatalf("elements=%d, want 3", len(want))
	}
	for _, el := range want {
		if !json.Valid([]byte(el)) {
			t.Fatalf("element is not valid JSON: %s", el)
		}
	}

	for size := 1; size < len(doc); size++ {
		got, err := parseAll(t, doc, size)
		if err != nil {
			t.Fatalf("chunk size %d: %v", size, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("chunk size %d: got %q, want %q", size, got, want)
		}
	}
}

func TestArrayParser_EmptyArray(t *testing.T) {
	t.Parallel()

	got, err := parseAll(t, []byte(" [ ] "), 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("elements=%d, want 0", len(got))
	}
}

func TestArrayParser_MalformedInputs(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unterminated string":  `[{"title":"never closed}]`,
		"no array":             `{"title":"x"}`,
		"stray close brace":    `[}`,
		"non-object element":   `[1,2]`,
		"invalid element":      `[{"a":}]`,
		"missing comma":        `[{"a":1}{"b":2}]`,
		"leading comma":        `[,{"a":1}]`,
		"truncated":            `[{"a":1},`,
		"trailing garbage":     `[{"a":1}] x`,
		"empty input":          ``,
		"unterminated element": `[{"a":{"b":1}`,
		"stray bom byte":       "\xBB[]",
		"incomplete bom":       "\xEF\xBB[]",
		"bom after space":      " \xEF\xBB\xBF[]",
	}
	for name, doc := range cases {
		_, err := parseAll(t, []byte(doc), 3)
		if !errors.Is(err, ErrMalformedDocument) {
			t.Fatalf("%s: err=%v, want ErrMalformedDocument", name, err)
		}
	}
}

func TestArrayParser_LeadingBOM(t *testing.T) {
	t.Parallel()

	for _, size := range []int{1, 2, 64} {
		got, err := parseAll(t, []byte("\xEF\xBB\xBF [{\"a\":1}]"), size)
		if err != nil {
			t.Fatalf("chunk size %d: %v", size, err)
		}
		if len(got) != 1 {
			t.Fatalf("chunk size %d: elements=%d, want 1", size, len(got))
		}
	}
}

func TestArrayParser_UnterminatedStringEmitsNothing(t *testing.T) {
	t.Parallel()

	got, err := parseAll(t, []byte(`[{"title":"oops}]`), 4)
	if !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("err=%v, want ErrMalformedDocument", err)
	}
	if len(got) != 0 {
		t.Fatalf("emitted %d elements, want 0", len(got))
	}
}

func TestArrayParser_ProgressIsThrottled(t *testing.T) {
	t.Parallel()

	var calls []int
	p := NewArrayParser(func(json.RawMessage) error { return nil }, ArrayParserOptions{
		OnProgress:    func(n int) { calls = append(calls, n) },
		EagerElements: 3,
		ProgressEvery: 10,
	})
	doc := "[" + strings.TrimSuffix(strings.Repeat(`{"a":1},`, 25), ",") + "]"
	if _, err := p.Write([]byte(doc)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	want := []int{1, 2, 3, 10, 20}
	if !reflect.DeepEqual(calls, want) {
		t.Fatalf("progress calls=%v, want %v", calls, want)
	}
	if p.Elements() != 25 {
		t.Fatalf("Elements=%d, want 25", p.Elements())
	}
}

func TestArrayParser_EmitErrorStopsParsing(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	n := 0
	p := NewArrayParser(func(json.RawMessage) error {
		n++
		return stop
	}, ArrayParserOptions{})
	_, err := p.Write([]byte(`[{"a":1},{"b":2}]`))
	if !errors.Is(err, stop) {
		t.Fatalf("err=%v, want stop", err)
	}
	if n != 1 {
		t.Fatalf("emit calls=%d, want 1", n)
	}
}
