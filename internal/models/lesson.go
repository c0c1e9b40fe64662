package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/david/lessons-learned/internal/ingest"
)

type Organization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	ProfileText string    `json:"profile_text"`
	CreatedBy   uuid.UUID `json:"-"`
	LessonCount int       `json:"lesson_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Lesson struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	RootCause      string     `json:"root_cause"`
	Recommendation string     `json:"recommendation"`
	Impact         string     `json:"impact"`
	WorkType       string     `json:"work_type"`
	Phase          string     `json:"phase"`
	Discipline     string     `json:"discipline"`
	Severity       string     `json:"severity"`
	Environment    string     `json:"environment"`
	Project        string     `json:"project"`
	Location       string     `json:"location"`
	Keywords       string     `json:"keywords"`
	LoggedBy       string     `json:"logged_by"`
	Status         string     `json:"status"`
	AssignedTo     string     `json:"assigned_to"`
	SupportingDocs string     `json:"supporting_docs"`
	CreatedBy      *uuid.UUID `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LessonFromRecord converts an imported record into a lesson owned by orgID.
func LessonFromRecord(orgID uuid.UUID, createdBy *uuid.UUID, r ingest.Record) Lesson {
	severity := r.Severity
	if severity == "" {
		severity = ingest.SeverityMedium
	}
	return Lesson{
		OrganizationID: orgID,
		Title:          ingest.Clip(r.Title, 255),
		Description:    r.Description,
		RootCause:      r.RootCause,
		Recommendation: r.Recommendation,
		Impact:         r.Impact,
		WorkType:       r.WorkType,
		Phase:          r.Phase,
		Discipline:     r.Discipline,
		Severity:       severity,
		Environment:    r.Environment,
		Project:        r.Project,
		Location:       r.Location,
		Keywords:       r.Keywords,
		LoggedBy:       r.LoggedBy,
		Status:         r.Status,
		AssignedTo:     r.AssignedTo,
		SupportingDocs: r.SupportingDocs,
		CreatedBy:      createdBy,
	}
}

// SOWAnalysis is a persisted scope-of-work analysis. Results holds the
// recovered model output plus any generated deliverables under "deliverables".
type SOWAnalysis struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID uuid.UUID      `json:"organization"`
	Filename       string         `json:"filename"`
	SOWText        string         `json:"sow_text"`
	WorkType       string         `json:"work_type"`
	Results        map[string]any `json:"results"`
	CreatedBy      *uuid.UUID     `json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
}
