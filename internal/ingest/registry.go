package ingest

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/columns.yaml
var columnsYAML embed.FS

// Canonical field names.
const (
	FieldID             = "id"
	FieldDate           = "date"
	FieldProject        = "project"
	FieldRegion         = "region"
	FieldDiscipline     = "discipline"
	FieldCategory       = "category"
	FieldPhase          = "phase"
	FieldLoggedBy       = "logged_by"
	FieldContext        = "context"
	FieldWhatHappened   = "what_happened"
	FieldImpact         = "impact"
	FieldRootCause      = "root_cause"
	FieldWorkedDidnt    = "worked_didnt"
	FieldRecommendation = "recommendation"
	FieldKeywords       = "keywords"
	FieldStatus         = "status"
	FieldAssignedTo     = "assigned_to"
	FieldDocs           = "docs"
)

// Profile names in columns.yaml.
const (
	ProfileTabular   = "tabular"
	ProfileDelimited = "delimited"
)

// FieldSpec is one canonical field and its priority-ordered header terms.
type FieldSpec struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// ColumnProfile is the set of fields recognized for one file format.
type ColumnProfile struct {
	SynthesizeTags bool        `yaml:"synthesize_tags"`
	Fields         []FieldSpec `yaml:"fields"`
}

// Registry holds the column profiles keyed by profile name.
type Registry struct {
	Profiles map[string]ColumnProfile `yaml:"profiles"`
}

var (
	registryOnce sync.Once
	registry     *Registry
	registryErr  error
)

// LoadRegistry parses the embedded columns.yaml. The result is cached.
func LoadRegistry() (*Registry, error) {
	registryOnce.Do(func() {
		data, err := columnsYAML.ReadFile("config/columns.yaml")
		if err != nil {
			registryErr = err
			return
		}
		var reg Registry
		if err := yaml.Unmarshal(data, &reg); err != nil {
			registryErr = fmt.Errorf("parse columns.yaml: %w", err)
			return
		}
		registry = &reg
	})
	return registry, registryErr
}

// Profile returns the named column profile.
func (r *Registry) Profile(name string) (ColumnProfile, error) {
	p, ok := r.Profiles[name]
	if !ok || len(p.Fields) == 0 {
		return ColumnProfile{}, fmt.Errorf("unknown column profile %q", name)
	}
	return p, nil
}
