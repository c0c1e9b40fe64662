package analysis

import (
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/models"
)

// Per-field caps applied when a deliverable context is rebuilt.
const (
	contextSOWChars            = 8000
	contextDescriptionChars    = 500
	contextRootCauseChars      = 300
	contextRecommendationChars = 300
	contextKeywordsChars       = 100
)

// LessonDetail is the capped view of a stored lesson attached to a match.
type LessonDetail struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	RootCause      string `json:"root_cause"`
	Recommendation string `json:"recommendation"`
	WorkType       string `json:"work_type"`
	Phase          string `json:"phase"`
	Discipline     string `json:"discipline"`
	Severity       string `json:"severity"`
	Environment    string `json:"environment"`
	Project        string `json:"project"`
	Location       string `json:"location"`
	Keywords       string `json:"keywords"`
}

// EnrichedMatch is a match plus the lesson it points at, when that lesson
// still exists.
type EnrichedMatch struct {
	LessonID  LessonRef     `json:"lessonId"`
	Relevance string        `json:"relevance"`
	Reason    string        `json:"reason"`
	Lesson    *LessonDetail `json:"lesson,omitempty"`
}

// Context aggregates everything a deliverable generator needs. It is
// rebuilt from the stored analysis on every request.
type Context struct {
	SOWText         string          `json:"sow_text"`
	WorkType        string          `json:"work_type"`
	Summary         string          `json:"summary"`
	Matches         []EnrichedMatch `json:"matches"`
	Gaps            []string        `json:"gaps"`
	Recommendations []string        `json:"recommendations"`
	Org             OrgProfile      `json:"org_profile"`
}

// BuildContext joins a stored analysis with the organization's lessons.
func BuildContext(a models.SOWAnalysis, lessons []models.Lesson, org OrgProfile) (*Context, error) {
	result, err := ResultFromDocument(a.Results)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID.String()] = l
	}

	matches := make([]EnrichedMatch, 0, len(result.Matches))
	for _, m := range result.Matches {
		em := EnrichedMatch{LessonID: m.LessonID, Relevance: m.Relevance, Reason: m.Reason}
		if l, ok := byID[m.LessonID.String()]; ok {
			em.Lesson = lessonDetail(l)
		}
		matches = append(matches, em)
	}

	gaps := result.Gaps
	if gaps == nil {
		gaps = []string{}
	}
	recs := result.Recommendations
	if recs == nil {
		recs = []string{}
	}
	return &Context{
		SOWText:         ingest.Clip(a.SOWText, contextSOWChars),
		WorkType:        a.WorkType,
		Summary:         result.Summary,
		Matches:         matches,
		Gaps:            gaps,
		Recommendations: recs,
		Org:             org,
	}, nil
}

func lessonDetail(l models.Lesson) *LessonDetail {
	return &LessonDetail{
		ID:             l.ID.String(),
		Title:          l.Title,
		Description:    ingest.Clip(l.Description, contextDescriptionChars),
		RootCause:      ingest.Clip(l.RootCause, contextRootCauseChars),
		Recommendation: ingest.Clip(l.Recommendation, contextRecommendationChars),
		WorkType:       l.WorkType,
		Phase:          l.Phase,
		Discipline:     l.Discipline,
		Severity:       l.Severity,
		Environment:    l.Environment,
		Project:        l.Project,
		Location:       l.Location,
		Keywords:       ingest.Clip(l.Keywords, contextKeywordsChars),
	}
}
