package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// ErrUnknownDeliverable is returned for deliverable names outside the closed set.
var ErrUnknownDeliverable = errors.New("invalid deliverable_type")

// DeliverableType names one of the follow-on artifacts generated from an analysis.
type DeliverableType string

const (
	RiskRegister       DeliverableType = "risk_register"
	StaffingEstimate   DeliverableType = "staffing_estimate"
	SpecGaps           DeliverableType = "spec_gaps"
	ExecutiveNarrative DeliverableType = "executive_narrative"
)

// DeliverableTypes lists every deliverable, sorted by name.
var DeliverableTypes = []DeliverableType{ExecutiveNarrative, RiskRegister, SpecGaps, StaffingEstimate}

// ParseDeliverableType validates s against the closed set.
func ParseDeliverableType(s string) (DeliverableType, error) {
	switch t := DeliverableType(s); t {
	case RiskRegister, StaffingEstimate, SpecGaps, ExecutiveNarrative:
		return t, nil
	}
	names := make([]string, len(DeliverableTypes))
	for i, t := range DeliverableTypes {
		names[i] = string(t)
	}
	return "", fmt.Errorf("%w. Must be one of: %s", ErrUnknownDeliverable, strings.Join(names, ", "))
}

// Title is the display title stored with a generated deliverable.
func (t DeliverableType) Title() string {
	switch t {
	case RiskRegister:
		return "Risk Register"
	case StaffingEstimate:
		return "Quality Staffing Estimate"
	case SpecGaps:
		return "Specification Gaps"
	case ExecutiveNarrative:
		return "Executive Summary"
	}
	return string(t)
}

// LessonRef is a lesson identifier as echoed back by the model, which may
// write it as a JSON number or a string.
type LessonRef struct {
	value   string
	numeric bool
}

// NewLessonRef wraps a string identifier.
func NewLessonRef(id string) LessonRef {
	return LessonRef{value: id}
}

func (r LessonRef) String() string { return r.value }

// IsZero reports whether the reference is empty.
func (r LessonRef) IsZero() bool { return r.value == "" }

func (r LessonRef) MarshalJSON() ([]byte, error) {
	if r.value == "" {
		return []byte("null"), nil
	}
	if r.numeric {
		return []byte(r.value), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON keeps strings and numbers. Any other kind reads as an
// empty reference.
func (r *LessonRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*r = LessonRef{}
	switch {
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		r.value = strings.TrimSpace(s)
	case len(b) > 0 && (b[0] == '-' || b[0] >= '0' && b[0] <= '9'):
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*r = LessonRef{value: n.String(), numeric: true}
	}
	return nil
}

// Param is a user-supplied scalar that may arrive as a string or a number.
type Param string

func (p *Param) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Param(strings.TrimSpace(s))
		return nil
	}
	*p = Param(b)
	return nil
}

// OrgProfile is the organization text used to keep recommendations from
// duplicating programs already in place.
type OrgProfile struct {
	Name        string `json:"name"`
	ProfileText string `json:"profile_text"`
}

// Match is one lesson the model judged applicable to a scope.
type Match struct {
	LessonID  LessonRef `json:"lessonId"`
	Relevance string    `json:"relevance"`
	Reason    string    `json:"reason"`
}

func (m *Match) UnmarshalJSON(b []byte) error {
	var aux struct {
		LessonID  LessonRef `json:"lessonId"`
		Relevance Text      `json:"relevance"`
		Reason    Text      `json:"reason"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = Match{LessonID: aux.LessonID, Relevance: string(aux.Relevance), Reason: string(aux.Reason)}
	return nil
}

// Result is the typed view of a scope analysis. Error is set when the model
// output could not be recovered. The recovered document itself is kept
// as-is and returned by Document.
type Result struct {
	Summary         string   `json:"summary"`
	Matches         []Match  `json:"matches"`
	Gaps            []string `json:"gaps"`
	Recommendations []string `json:"recommendations"`
	Error           string   `json:"error,omitempty"`

	raw map[string]any
}

// UnmarshalJSON reads each field leniently. Matches without a lesson id
// are left out of the typed view.
func (r *Result) UnmarshalJSON(b []byte) error {
	var aux struct {
		Summary         Text        `json:"summary"`
		Matches         List[Match] `json:"matches"`
		Gaps            List[Text]  `json:"gaps"`
		Recommendations List[Text]  `json:"recommendations"`
		Error           Text        `json:"error"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	matches := make([]Match, 0, len(aux.Matches))
	for _, m := range aux.Matches {
		if !m.LessonID.IsZero() {
			matches = append(matches, m)
		}
	}
	*r = Result{
		Summary:         string(aux.Summary),
		Matches:         matches,
		Gaps:            textStrings(aux.Gaps),
		Recommendations: textStrings(aux.Recommendations),
		Error:           string(aux.Error),
	}
	return nil
}

func (r Result) withEmptyLists() Result {
	if r.Matches == nil {
		r.Matches = []Match{}
	}
	if r.Gaps == nil {
		r.Gaps = []string{}
	}
	if r.Recommendations == nil {
		r.Recommendations = []string{}
	}
	return r
}

// Document returns the result for storage: the recovered document with
// its own keys and values untouched, plus empty defaults for any of the
// four result keys it lacks.
func (r Result) Document() (map[string]any, error) {
	doc := make(map[string]any, len(r.raw)+4)
	if r.raw != nil {
		maps.Copy(doc, r.raw)
	} else {
		type plain Result
		b, err := json.Marshal(plain(r.withEmptyLists()))
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
	}
	setDefault(doc, "summary", "")
	setDefault(doc, "matches", []any{})
	setDefault(doc, "gaps", []any{})
	setDefault(doc, "recommendations", []any{})
	if r.Error != "" {
		doc["error"] = r.Error
	}
	return doc, nil
}

func setDefault(doc map[string]any, key string, v any) {
	if _, ok := doc[key]; !ok {
		doc[key] = v
	}
}

// ResultFromDocument reads a recovered or stored results document, ignoring
// extra keys such as "deliverables".
func ResultFromDocument(doc map[string]any) (Result, error) {
	var r Result
	if len(doc) == 0 {
		return r, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(b, &r); err != nil {
		return r, err
	}
	r.raw = doc
	return r, nil
}
