package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		impact string
		want   string
	}{
		{"", SeverityMedium},
		{"resulted in a fatality", SeverityCritical},
		{"minor delay of one week", SeverityHigh},
		{"$50k rework, two week delay", SeverityHigh},
		{"Safety stand-down for a month", SeverityCritical},
		{"Some rework required", SeverityMedium},
		{"minor cost overrun", SeverityMedium},
		{"nothing notable", SeverityMedium},
		{"CATASTROPHIC failure", SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.impact, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.impact))
		})
	}
}

func TestClassifyDiscipline(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"NDE/UT inspection findings", "NDE"},
		{"Welding", "Welding"},
		{"Coating holidays", "Coatings"},
		{"Quality / Regulatory", "Quality"},
		{"Regulatory compliance", "Regulatory"},
		{"Project Management", "Project Controls"},
		{"Land survey", "Civil"},
		{"Procurement", "Materials/Procurement"},
		{"Electrical", "Electrical"},
		{"weld inspection", "Welding"},
		{"Logistics", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDiscipline(tt.raw))
		})
	}
}

func TestValidDiscipline(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"Welding", true},
		{"Materials/Procurement", true},
		{"welding", false},
		{"Piping", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidDiscipline(tt.in))
		})
	}

	for _, raw := range []string{"weld repair", "coating holiday", "UT inspection", "permit"} {
		assert.True(t, ValidDiscipline(ClassifyDiscipline(raw)), raw)
	}
}

func TestValidSeverity(t *testing.T) {
	assert.True(t, ValidSeverity("Low"))
	assert.False(t, ValidSeverity("low"))
	assert.False(t, ValidSeverity(""))
}
