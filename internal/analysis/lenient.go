package analysis

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Model output is read through these types so that a field holding the
// wrong JSON kind degrades to a best-effort value instead of failing the
// whole decode.

// textKeys are tried in order when an object stands where text was expected.
var textKeys = []string{"gap", "area", "title", "name", "text", "description", "value"}

// Text accepts any JSON value and keeps a display string.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*t = Text(textOf(v))
	return nil
}

func (t Text) String() string { return string(t) }

func textOf(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		for _, k := range textKeys {
			if s := textOf(x[k]); s != "" {
				return s
			}
		}
		b, _ := json.Marshal(x)
		return string(b)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := textOf(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

var leadingNumber = regexp.MustCompile(`^-?\d+(\.\d+)?`)

// Number accepts a JSON number or a string starting with one ("12",
// "1-2", "3 inspectors"). Anything else reads as zero.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*n = Number(x)
	case string:
		m := leadingNumber.FindString(strings.ReplaceAll(strings.TrimSpace(x), ",", ""))
		f, _ := strconv.ParseFloat(m, 64)
		*n = Number(f)
	default:
		*n = 0
	}
	return nil
}

// List accepts an array, a single value standing in for a one-element
// array, or null. Elements that do not decode into T are skipped.
type List[T any] []T

func (l *List[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var raws []json.RawMessage
	switch {
	case len(b) > 0 && b[0] == '[':
		if err := json.Unmarshal(b, &raws); err != nil {
			return err
		}
	case !bytes.Equal(b, []byte("null")):
		raws = []json.RawMessage{b}
	}
	out := make(List[T], 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	*l = out
	return nil
}

// textStrings flattens a text list, dropping empty entries.
func textStrings(l List[Text]) []string {
	out := make([]string, 0, len(l))
	for _, t := range l {
		if t != "" {
			out = append(out, string(t))
		}
	}
	return out
}
