package ingest

import (
	"encoding/json"
	"fmt"
)

type parserState int

const (
	stateBeforeArray parserState = iota
	stateBetweenElements
	stateInElement
	stateInString
	stateAfterArray
)

func (s parserState) String() string {
	switch s {
	case stateBeforeArray:
		return "before-array"
	case stateBetweenElements:
		return "between-elements"
	case stateInElement:
		return "inside-element"
	case stateInString:
		return "inside-string"
	case stateAfterArray:
		return "after-array"
	default:
		return "unknown"
	}
}

// ArrayParserOptions tunes progress reporting.
type ArrayParserOptions struct {
	// OnProgress is called with the number of elements emitted so far: after
	// each of the first EagerElements elements and then every ProgressEvery
	// elements.
	OnProgress    func(elements int)
	EagerElements int
	ProgressEvery int
}

// ArrayParser incrementally splits a top-level JSON array of objects into
// its elements. Feed it bytes with Write in chunks of any size; each element
// is handed to emit as soon as its closing brace is seen. Only the text of
// the element currently being scanned is buffered.
//
// The parser tracks structure at the byte level. UTF-8 continuation and lead
// bytes are never ASCII, so a multi-byte character split across two writes
// cannot be mistaken for a quote, backslash or brace.
type ArrayParser struct {
	emit func(json.RawMessage) error
	opts ArrayParserOptions

	state     parserState
	escaped   bool
	depth     int
	needComma bool
	buf       []byte
	bom       int

	elements int
	offset   int64
}

// NewArrayParser returns a parser that calls emit for each element. An error
// returned by emit stops parsing and is returned from Write unchanged.
func NewArrayParser(emit func(json.RawMessage) error, opts ArrayParserOptions) *ArrayParser {
	if opts.EagerElements <= 0 {
		opts.EagerElements = 10
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 100
	}
	return &ArrayParser{emit: emit, opts: opts}
}

// Elements reports how many elements were emitted.
func (p *ArrayParser) Elements() int { return p.elements }

// Write consumes the next chunk of the document.
func (p *ArrayParser) Write(chunk []byte) (int, error) {
	for i := 0; i < len(chunk); i++ {
		c := chunk[i]
		switch p.state {
		case stateBeforeArray:
			switch {
			case p.bom < len(utf8BOM) && p.offset == int64(p.bom) && c == utf8BOM[p.bom]:
				p.bom++
			case p.bom > 0 && p.bom < len(utf8BOM):
				return i, p.malformed(c, "incomplete byte order mark")
			case isSpace(c):
			case c == '[':
				p.state = stateBetweenElements
			default:
				return i, p.malformed(c, "expected '[' to open the conversations array")
			}

		case stateBetweenElements:
			switch {
			case isSpace(c):
			case c == ',':
				if !p.needComma {
					return i, p.malformed(c, "unexpected ','")
				}
				p.needComma = false
			case c == '{':
				if p.needComma {
					return i, p.malformed(c, "missing ',' between elements")
				}
				p.state = stateInElement
				p.depth = 1
				p.buf = append(p.buf[:0], c)
			case c == ']':
				p.state = stateAfterArray
			case c == '}':
				return i, p.malformed(c, "close brace with negative depth")
			default:
				return i, p.malformed(c, "array elements must be objects")
			}

		case stateInElement:
			// Copy the run up to the next structural byte in one append.
			j := i
			for j < len(chunk) && chunk[j] != '"' && chunk[j] != '{' && chunk[j] != '}' {
				j++
			}
			p.buf = append(p.buf, chunk[i:j]...)
			p.offset += int64(j - i)
			if j == len(chunk) {
				return len(chunk), nil
			}
			i = j
			c = chunk[i]
			p.buf = append(p.buf, c)
			switch c {
			case '"':
				p.state = stateInString
			case '{':
				p.depth++
			case '}':
				p.depth--
				if p.depth == 0 {
					if err := p.finishElement(); err != nil {
						p.offset++
						return i + 1, err
					}
				}
			}

		case stateInString:
			p.buf = append(p.buf, c)
			switch {
			case p.escaped:
				p.escaped = false
			case c == '\\':
				p.escaped = true
			case c == '"':
				p.state = stateInElement
			}

		case stateAfterArray:
			if !isSpace(c) {
				return i, p.malformed(c, "trailing data after the conversations array")
			}
		}
		p.offset++
	}
	return len(chunk), nil
}

// Close reports whether the document ended cleanly after the closing ']'.
func (p *ArrayParser) Close() error {
	if p.state != stateAfterArray {
		return fmt.Errorf("ArrayParser: unexpected end of document in state %s at offset %d: %w",
			p.state, p.offset, ErrMalformedDocument)
	}
	return nil
}

func (p *ArrayParser) finishElement() error {
	raw := json.RawMessage(p.buf)
	p.buf = nil
	p.state = stateBetweenElements
	p.needComma = true
	if !json.Valid(raw) {
		return fmt.Errorf("ArrayParser: element %d ending at offset %d is not valid JSON: %w",
			p.elements, p.offset, ErrMalformedDocument)
	}
	p.elements++
	if err := p.emit(raw); err != nil {
		return err
	}
	if fn := p.opts.OnProgress; fn != nil {
		if p.elements <= p.opts.EagerElements || p.elements%p.opts.ProgressEvery == 0 {
			fn(p.elements)
		}
	}
	return nil
}

func (p *ArrayParser) malformed(c byte, msg string) error {
	return fmt.Errorf("ArrayParser: %s (got %q at offset %d): %w", msg, c, p.offset, ErrMalformedDocument)
}

var utf8BOM = [...]byte{0xEF, 0xBB, 0xBF}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
