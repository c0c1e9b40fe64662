package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/metrics"
	"github.com/david/lessons-learned/internal/models"
)

// Payload caps for the scope analysis call.
const (
	analysisSOWChars            = 8000
	analysisDescriptionChars    = 300
	analysisRootCauseChars      = 200
	analysisRecommendationChars = 200
	analysisKeywordsChars       = 100
	analysisProfileChars        = 6000

	deliverableSOWChars     = 6000
	deliverableProfileChars = 4000
)

// MalformedMessage is the failure text used when recovered output is valid
// JSON but not an object.
const MalformedMessage = "Response was not a JSON object. Please try again."

// Config holds the response budgets for each call kind.
type Config struct {
	AnalysisMaxTokens    int
	DeliverableMaxTokens int
	ChatMaxTokens        int
}

func (c Config) withDefaults() Config {
	if c.AnalysisMaxTokens <= 0 {
		c.AnalysisMaxTokens = 4000
	}
	if c.DeliverableMaxTokens <= 0 {
		c.DeliverableMaxTokens = 8000
	}
	if c.ChatMaxTokens <= 0 {
		c.ChatMaxTokens = 1000
	}
	return c
}

// Analyzer cross-references scopes of work against the lesson corpus. It
// holds no per-request state; persistence is the caller's job.
type Analyzer struct {
	gen     ai.Generator
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func New(gen ai.Generator, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{gen: gen, cfg: cfg.withDefaults(), logger: logger, metrics: m}
}

type lessonSummary struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	RootCause      string `json:"rootCause"`
	Recommendation string `json:"recommendation"`
	WorkType       string `json:"workType"`
	Phase          string `json:"phase"`
	Discipline     string `json:"discipline"`
	Severity       string `json:"severity"`
	Environment    string `json:"environment"`
	Project        string `json:"project"`
	Location       string `json:"location"`
	Keywords       string `json:"keywords"`
}

func summarizeLessons(lessons []models.Lesson) []lessonSummary {
	out := make([]lessonSummary, 0, len(lessons))
	for _, l := range lessons {
		out = append(out, lessonSummary{
			ID:             l.ID.String(),
			Title:          l.Title,
			Description:    ingest.Clip(l.Description, analysisDescriptionChars),
			RootCause:      ingest.Clip(l.RootCause, analysisRootCauseChars),
			Recommendation: ingest.Clip(l.Recommendation, analysisRecommendationChars),
			WorkType:       l.WorkType,
			Phase:          l.Phase,
			Discipline:     l.Discipline,
			Severity:       l.Severity,
			Environment:    l.Environment,
			Project:        l.Project,
			Location:       l.Location,
			Keywords:       ingest.Clip(l.Keywords, analysisKeywordsChars),
		})
	}
	return out
}

// AnalyzeSOW matches a scope of work against lessons. Unrecoverable model
// output yields a Result with Error set, not an error.
func (a *Analyzer) AnalyzeSOW(ctx context.Context, sowText, workType string, lessons []models.Lesson, org OrgProfile) (Result, error) {
	summaries := summarizeLessons(lessons)
	rec, err := a.complete(ctx, "analyze", analyzeSystemPrompt(workType, org),
		analyzeUserMessage(ingest.Clip(sowText, analysisSOWChars), workType, summaries), a.cfg.AnalysisMaxTokens)
	if err != nil {
		return Result{}, err
	}
	if rec.Failed() {
		return Result{Error: rec.Err}.withEmptyLists(), nil
	}

	doc, ok := rec.Value.(map[string]any)
	if !ok {
		a.logger.Warn("analysis response is not a JSON object", zap.String("recovery", string(rec.Strategy)))
		return Result{Error: MalformedMessage}.withEmptyLists(), nil
	}
	result, err := ResultFromDocument(doc)
	if err != nil {
		return Result{}, fmt.Errorf("read analysis document: %w", err)
	}
	result = result.withEmptyLists()
	a.logger.Info("scope analysis complete",
		zap.Int("lessons", len(lessons)),
		zap.Int("matches", len(result.Matches)),
		zap.Int("gaps", len(result.Gaps)),
		zap.String("recovery", string(rec.Strategy)),
	)
	return result, nil
}

// complete issues one single-turn call and runs the reply through JSON recovery.
func (a *Analyzer) complete(ctx context.Context, operation, system, user string, maxTokens int) (ai.Recovered, error) {
	if a.gen == nil {
		return ai.Recovered{}, ai.ErrNotConfigured
	}
	resp, err := a.gen.Generate(ctx, ai.Request{
		Operation: operation,
		System:    system,
		Messages:  []ai.Message{{Role: ai.RoleUser, Content: user}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return ai.Recovered{}, fmt.Errorf("%s: %w", operation, err)
	}

	text := resp.Text()
	rec := ai.RecoverJSON(text)
	if a.metrics != nil {
		a.metrics.RecordRecovery(string(rec.Strategy))
	}
	if rec.Failed() {
		a.logger.Warn("JSON repair failed",
			zap.String("operation", operation),
			zap.Int("response_chars", len(text)),
		)
	}
	return rec, nil
}

// Retryable reports whether err came from the upstream call and may
// succeed on a later attempt.
func Retryable(err error) bool {
	return errors.Is(err, ai.ErrUpstream) || errors.Is(err, ai.ErrTimeout)
}
