package ai

import (
	"encoding/json"
	"strings"
)

// TruncatedMessage is the failure text returned when model output cannot be repaired.
const TruncatedMessage = "Analysis response was truncated. Please try again."

// Strategy names the step that produced a recovered value.
type Strategy string

const (
	StrategyStrict          Strategy = "strict"
	StrategyArrayTruncation Strategy = "array_truncation"
	StrategyBracketBalance  Strategy = "bracket_balance"
	StrategySalvaged        Strategy = "salvaged"
	StrategyFailed          Strategy = "failed"
)

// Recovered is the result of RecoverJSON. On failure Value is the marker
// object {"error": TruncatedMessage} and Err carries the same message.
type Recovered struct {
	Value    any
	Strategy Strategy
	Err      string
	// Repaired is the exact text that parsed.
	Repaired string
}

// Failed reports whether recovery gave up.
func (r Recovered) Failed() bool {
	return r.Strategy == StrategyFailed
}

// Decode re-encodes the recovered value into v.
func (r Recovered) Decode(v any) error {
	b, err := json.Marshal(r.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// RecoverJSON parses model output that should be JSON but may be fenced,
// wrapped in prose or cut off mid-value. Repair only ever removes
// incomplete trailing content or closes what is already open.
func RecoverJSON(raw string) Recovered {
	text := stripFences(raw)
	if text == "" {
		return failed()
	}
	if v, ok := parse(text); ok {
		return Recovered{Value: v, Strategy: StrategyStrict, Repaired: text}
	}

	// Prose may hold its own brackets ahead of the payload. A candidate
	// that closes without parsing is skipped whole; one that never closes
	// is the last candidate.
	for start := 0; start < len(text); {
		i := strings.IndexAny(text[start:], "{[")
		if i < 0 {
			break
		}
		r, skip := recoverFrom(text[start+i:])
		if !r.Failed() || skip == 0 {
			return r
		}
		start += i + skip
	}
	return failed()
}

// recoverFrom repairs text starting at a bracket. When the root value
// closes but cannot be parsed, skip is its length.
func recoverFrom(text string) (r Recovered, skip int) {
	if v, ok := parse(text); ok {
		return Recovered{Value: v, Strategy: StrategyStrict, Repaired: text}, 0
	}

	s := scan(text)
	if s.rootEnd > 0 {
		if v, ok := parse(text[:s.rootEnd]); ok {
			return Recovered{Value: v, Strategy: StrategyStrict, Repaired: text[:s.rootEnd]}, 0
		}
		// The root value closed but is damaged inside; nothing trails to trim.
		return failed(), s.rootEnd
	}

	if r, ok := s.truncateArray(text); ok {
		return r, 0
	}
	if r, ok := s.balance(text); ok {
		return r, 0
	}
	if s.lastSafe.cut > 0 {
		candidate := text[:s.lastSafe.cut] + s.lastSafe.closers
		if v, ok := parse(candidate); ok {
			return Recovered{Value: v, Strategy: StrategySalvaged, Repaired: candidate}, 0
		}
	}
	return failed(), 0
}

func failed() Recovered {
	return Recovered{
		Value:    map[string]any{"error": TruncatedMessage},
		Strategy: StrategyFailed,
		Err:      TruncatedMessage,
	}
}

func parse(text string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	return v, true
}

// stripFences removes a leading ``` (with optional language tag) and a
// trailing ```, plus surrounding whitespace.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = s[3:]
		end := 0
		for end < len(s) && isTagByte(s[end]) {
			end++
		}
		s = s[end:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isTagByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

// Container phases.
const (
	phaseKey   = iota // object: expecting a key or '}'
	phaseColon        // object: key read, expecting ':'
	phaseValue        // expecting a value
	phaseAfter        // value read, expecting ',' or a closer
)

type frame struct {
	open  byte
	pos   int
	phase int
}

type cutPoint struct {
	cut     int
	closers string
}

// boundary is the end of a complete object element of the array opened at arrayPos.
type boundary struct {
	arrayPos int
	cut      int
}

type scanState struct {
	stack      []frame
	inString   bool
	stringKey  bool
	stringPos  int
	escaped    bool
	inScalar   bool
	scalarPos  int
	boundaries []boundary
	lastSafe   cutPoint
	rootEnd    int
}

// scan walks text once, tracking string state, open containers, the
// positions where a prefix can be closed into valid JSON, and where the
// root value ends if it does.
func scan(text string) *scanState {
	s := &scanState{}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
				if s.stringKey {
					s.top().phase = phaseColon
				} else {
					s.valueDone(i + 1)
				}
			}
			continue
		}

		if s.inScalar {
			if !isDelimiter(c) {
				continue
			}
			s.inScalar = false
			s.valueDone(i)
		}

		switch c {
		case '{', '[':
			phase := phaseValue
			if c == '{' {
				phase = phaseKey
			}
			s.stack = append(s.stack, frame{open: c, pos: i, phase: phase})
			s.markSafe(i + 1)
		case '}', ']':
			if len(s.stack) == 0 {
				continue
			}
			closed := s.stack[len(s.stack)-1]
			s.stack = s.stack[:len(s.stack)-1]
			if closed.open == '{' && len(s.stack) > 0 && s.top().open == '[' {
				s.boundaries = append(s.boundaries, boundary{arrayPos: s.top().pos, cut: i + 1})
			}
			if len(s.stack) == 0 {
				s.rootEnd = i + 1
				return s
			}
			s.valueDone(i + 1)
		case '"':
			s.inString = true
			s.stringPos = i
			s.stringKey = len(s.stack) > 0 && s.top().open == '{' && s.top().phase == phaseKey
		case ':':
			if len(s.stack) > 0 {
				s.top().phase = phaseValue
			}
		case ',':
			if len(s.stack) > 0 {
				if s.top().open == '{' {
					s.top().phase = phaseKey
				} else {
					s.top().phase = phaseValue
				}
			}
		case ' ', '\t', '\n', '\r':
		default:
			s.inScalar = true
			s.scalarPos = i
		}
	}
	return s
}

func isLiteral(s string) bool {
	switch strings.TrimSpace(s) {
	case "true", "false", "null":
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case ',', '}', ']', ':', ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func (s *scanState) top() *frame {
	return &s.stack[len(s.stack)-1]
}

func (s *scanState) valueDone(cut int) {
	if len(s.stack) == 0 {
		return
	}
	s.top().phase = phaseAfter
	s.markSafe(cut)
}

func (s *scanState) markSafe(cut int) {
	s.lastSafe = cutPoint{cut: cut, closers: closers(s.stack)}
}

func closers(stack []frame) string {
	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i].open == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// truncateArray handles text that ends inside an object element of an
// array. The outermost such array keeps its complete elements, tried
// rightmost first, and is closed empty when none is complete.
func (s *scanState) truncateArray(text string) (Recovered, bool) {
	k := -1
	for i := 0; i+1 < len(s.stack); i++ {
		if s.stack[i].open == '[' && s.stack[i+1].open == '{' {
			k = i
			break
		}
	}
	if k < 0 {
		return Recovered{}, false
	}
	array := s.stack[k]
	tail := closers(s.stack[:k+1])

	for j := len(s.boundaries) - 1; j >= 0; j-- {
		b := s.boundaries[j]
		if b.arrayPos != array.pos {
			continue
		}
		candidate := text[:b.cut] + tail
		if v, ok := parse(candidate); ok {
			return Recovered{Value: v, Strategy: StrategyArrayTruncation, Repaired: candidate}, true
		}
	}

	candidate := text[:array.pos+1] + tail
	if v, ok := parse(candidate); ok {
		return Recovered{Value: v, Strategy: StrategyArrayTruncation, Repaired: candidate}, true
	}
	return Recovered{}, false
}

// balance closes a dangling string and every open container. A dangling
// key or a partial scalar touching the end of text is dropped instead of
// closed. A complete true, false or null literal is kept; a number is
// always dropped since it may be cut short.
func (s *scanState) balance(text string) (Recovered, bool) {
	repaired := text
	switch {
	case s.inString && s.stringKey:
		repaired = repaired[:s.stringPos]
	case s.inString:
		if s.escaped {
			repaired = repaired[:len(repaired)-1]
		}
		repaired += `"`
	case s.inScalar && !isLiteral(text[s.scalarPos:]):
		repaired = repaired[:s.scalarPos]
	}
	repaired = strings.TrimRight(repaired, " \t\r\n")
	repaired = strings.TrimSuffix(repaired, ",")
	repaired += closers(s.stack)

	if v, ok := parse(repaired); ok {
		return Recovered{Value: v, Strategy: StrategyBracketBalance, Repaired: repaired}, true
	}
	return Recovered{}, false
}
