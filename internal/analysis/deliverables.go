package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"go.uber.org/zap"
)

// ErrInvalidParams is returned when caller-supplied deliverable params cannot be read.
var ErrInvalidParams = errors.New("invalid deliverable params")

// Deliverable statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Deliverable is a generated artifact. Content is the recovered JSON object
// exactly as the model returned it; failures carry Status "error" and a
// Message instead.
type Deliverable struct {
	Type    DeliverableType
	Title   string
	Status  string
	Message string
	Content map[string]any
}

// Failed reports whether generation produced an error deliverable.
func (d *Deliverable) Failed() bool {
	return d.Status == StatusError
}

// Decode reads Content into one of the typed views below.
func (d *Deliverable) Decode(v any) error {
	b, err := json.Marshal(d.Content)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// MarshalJSON flattens the content fields next to title, matching the
// stored document shape {"title": ..., <content fields>}.
func (d Deliverable) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Content)+3)
	maps.Copy(out, d.Content)
	out["title"] = d.Title
	if d.Status == StatusError {
		out["status"] = StatusError
		out["message"] = d.Message
	}
	return json.Marshal(out)
}

// The content types are read-only views over a deliverable. Every field
// decodes leniently, so they never reject what the model returned.

type Risk struct {
	ID            Text            `json:"id"`
	Category      Text            `json:"category"`
	Description   Text            `json:"description"`
	Likelihood    Text            `json:"likelihood"`
	Consequence   Text            `json:"consequence"`
	RiskLevel     Text            `json:"risk_level"`
	SourceLessons List[LessonRef] `json:"source_lessons"`
	Mitigation    Text            `json:"mitigation"`
	ResidualRisk  Text            `json:"residual_risk"`
	Owner         Text            `json:"owner"`
}

type RiskRegisterContent struct {
	Risks   List[Risk] `json:"risks"`
	Summary Text       `json:"summary"`
}

type Position struct {
	Title          Text   `json:"title"`
	Count          Number `json:"count"`
	DurationMonths Number `json:"duration_months"`
	Justification  Text   `json:"justification"`
	Phase          Text   `json:"phase"`
}

type CostEstimate struct {
	Note            Text   `json:"note"`
	MonthlyBurnRate Number `json:"monthly_burn_rate"`
	TotalEstimated  Number `json:"total_estimated"`
	Basis           Text   `json:"basis"`
}

// UnmarshalJSON keeps a non-object estimate as its note.
func (c *CostEstimate) UnmarshalJSON(b []byte) error {
	type plain CostEstimate
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		var note Text
		if err := json.Unmarshal(b, &note); err != nil {
			return err
		}
		*c = CostEstimate{Note: note}
		return nil
	}
	*c = CostEstimate(p)
	return nil
}

type StaffingContent struct {
	Summary        Text           `json:"summary"`
	Positions      List[Position] `json:"positions"`
	TotalHeadcount Number         `json:"total_headcount"`
	PeakHeadcount  Number         `json:"peak_headcount"`
	Assumptions    List[Text]     `json:"assumptions"`
	LessonsImpact  List[Text]     `json:"lessons_impact"`
	CostEstimate   CostEstimate   `json:"cost_estimate"`
}

type SpecGap struct {
	Gap            Text            `json:"gap"`
	Codes          List[Text]      `json:"codes"`
	Risk           Text            `json:"risk"`
	Recommendation Text            `json:"recommendation"`
	SourceLessons  List[LessonRef] `json:"source_lessons"`
}

type SpecGapsContent struct {
	Items   List[SpecGap] `json:"items"`
	Summary Text          `json:"summary"`
}

type NarrativeContent struct {
	Headline          Text       `json:"headline"`
	Narrative         Text       `json:"narrative"`
	KeyRisks          List[Text] `json:"key_risks"`
	BidRecommendation Text       `json:"bid_recommendation"`
	Conditions        List[Text] `json:"conditions"`
}

// StaffingParams are the user-supplied sizing inputs for a staffing estimate.
type StaffingParams struct {
	PipeDiameter      Param    `json:"pipe_diameter"`
	WeldCount         Param    `json:"weld_count"`
	PipelineMileage   Param    `json:"pipeline_mileage"`
	NumSpreads        Param    `json:"num_spreads"`
	FacilitiesCount   Param    `json:"facilities_count"`
	DurationMonths    Param    `json:"duration_months"`
	SpecialConditions []string `json:"special_conditions"`
}

// ParseStaffingParams decodes raw params and fills defaults. Empty input is allowed.
func ParseStaffingParams(raw json.RawMessage) (StaffingParams, error) {
	var p StaffingParams
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &p); err != nil {
			return p, fmt.Errorf("%w: staffing estimate: %v", ErrInvalidParams, err)
		}
	}
	if p.NumSpreads == "" {
		p.NumSpreads = "1"
	}
	if p.FacilitiesCount == "" {
		p.FacilitiesCount = "0"
	}
	return p, nil
}

// Generate produces one deliverable. Unknown types are rejected before any
// upstream call. A nil error with a failed Deliverable means the model
// output could not be recovered.
func (a *Analyzer) Generate(ctx context.Context, t DeliverableType, c *Context, params json.RawMessage) (*Deliverable, error) {
	if c == nil {
		return nil, fmt.Errorf("deliverable %s: missing analysis context", t)
	}
	switch t {
	case RiskRegister:
		var content RiskRegisterContent
		return a.generate(ctx, t, riskRegisterSystem, riskRegisterPrompt(c), &content, func() int { return len(content.Risks) })
	case StaffingEstimate:
		p, err := ParseStaffingParams(params)
		if err != nil {
			return nil, err
		}
		var content StaffingContent
		return a.generate(ctx, t, staffingSystem, staffingPrompt(c, p), &content, func() int { return len(content.Positions) })
	case SpecGaps:
		var content SpecGapsContent
		return a.generate(ctx, t, specGapsSystem, specGapsPrompt(c), &content, func() int { return len(content.Items) })
	case ExecutiveNarrative:
		var content NarrativeContent
		return a.generate(ctx, t, executiveSystem, executivePrompt(c), &content, func() int { return len(content.KeyRisks) })
	}
	_, err := ParseDeliverableType(string(t))
	return nil, err
}

func (a *Analyzer) generate(ctx context.Context, t DeliverableType, system, prompt string, view any, count func() int) (*Deliverable, error) {
	rec, err := a.complete(ctx, string(t), system, prompt, a.cfg.DeliverableMaxTokens)
	if err != nil {
		return nil, err
	}
	if rec.Failed() {
		return &Deliverable{Type: t, Title: t.Title(), Status: StatusError, Message: rec.Err}, nil
	}
	doc, ok := rec.Value.(map[string]any)
	if !ok {
		a.logger.Warn("deliverable response is not a JSON object", zap.String("type", string(t)))
		return &Deliverable{Type: t, Title: t.Title(), Status: StatusError, Message: MalformedMessage}, nil
	}

	items := 0
	if err := rec.Decode(view); err == nil {
		items = count()
	}
	a.logger.Info("deliverable generated",
		zap.String("type", string(t)),
		zap.Int("items", items),
		zap.String("recovery", string(rec.Strategy)),
	)
	return &Deliverable{Type: t, Title: t.Title(), Status: StatusOK, Content: doc}, nil
}
