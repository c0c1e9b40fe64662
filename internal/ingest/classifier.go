package ingest

import (
	"slices"
	"strings"
)

// Severity levels.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

// Severities lists the levels from most to least severe.
var Severities = []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

type disciplineRule struct {
	keyword    string
	discipline string
}

// Order matters: the first keyword found wins.
var disciplineRules = []disciplineRule{
	{"weld", "Welding"},
	{"coat", "Coatings"},
	{"nde", "NDE"},
	{"ndt", "NDE"},
	{"inspect", "NDE"},
	{"environment", "Environmental"},
	{"safety", "Safety"},
	{"civil", "Civil"},
	{"mechanical", "Mechanical"},
	{"electric", "Electrical"},
	{"procur", "Materials/Procurement"},
	{"project", "Project Controls"},
	{"manage", "Project Controls"},
	{"survey", "Civil"},
	{"quality", "Quality"},
	{"regulat", "Regulatory"},
}

type severityRule struct {
	severity string
	keywords []string
}

// Checked top to bottom; Critical beats High beats Medium.
var severityRules = []severityRule{
	{SeverityCritical, []string{"critical", "safety", "injury", "fatality", "catastroph"}},
	{SeverityHigh, []string{"week", "month", "significant", "$", "major", "substantial"}},
	{SeverityMedium, []string{"delay", "rework", "slow", "moderate", "minor cost"}},
}

// Disciplines lists the canonical discipline values.
var Disciplines = []string{
	"Quality", "Welding", "NDE", "Coatings", "Civil", "Mechanical", "Electrical",
	"Environmental", "Safety", "Project Controls", "Materials/Procurement", "Regulatory",
}

// ValidDiscipline reports whether s is empty or one of Disciplines.
func ValidDiscipline(s string) bool {
	return s == "" || slices.Contains(Disciplines, s)
}

// ClassifyDiscipline maps a free-text discipline or category to a canonical
// discipline, or "" when nothing matches.
func ClassifyDiscipline(raw string) string {
	if raw == "" {
		return ""
	}
	lower := strings.ToLower(raw)
	for _, r := range disciplineRules {
		if strings.Contains(lower, r.keyword) {
			return r.discipline
		}
	}
	return ""
}

// ClassifySeverity infers a severity from impact text. Empty or unmatched
// text is Medium.
func ClassifySeverity(impact string) string {
	if impact == "" {
		return SeverityMedium
	}
	lower := strings.ToLower(impact)
	for _, r := range severityRules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.severity
			}
		}
	}
	return SeverityMedium
}

// ValidSeverity reports whether s is one of the four severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}
