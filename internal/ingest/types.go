package ingest

import "errors"

var (
	// ErrUnsupportedFormat is returned for file extensions the importer cannot read.
	ErrUnsupportedFormat = errors.New("unsupported file type")
	// ErrNoDataRows is returned when a file has a header row and nothing else.
	ErrNoDataRows = errors.New("no data rows")
	// ErrMalformedFile is returned when the container cannot be parsed at all.
	ErrMalformedFile = errors.New("malformed file")
)

// DefaultWorkType is assigned to every imported record unless overridden.
const DefaultWorkType = "Pipeline Construction"

// Format identifies how the file bytes are laid out.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
)

// Tabular reports whether the format is a spreadsheet workbook.
func (f Format) Tabular() bool {
	return f == FormatXLSX
}

// Profile names the column profile used to resolve the format's headers.
func (f Format) Profile() string {
	if f.Tabular() {
		return ProfileTabular
	}
	return ProfileDelimited
}

// Options tune an import.
type Options struct {
	// WorkType replaces DefaultWorkType on every record when non-empty.
	WorkType string
}

func (o Options) workType() string {
	if o.WorkType != "" {
		return o.WorkType
	}
	return DefaultWorkType
}

// Record is one normalized lesson produced by the importer.
type Record struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	RootCause      string `json:"root_cause"`
	Recommendation string `json:"recommendation"`
	Impact         string `json:"impact"`
	WorkType       string `json:"work_type"`
	Phase          string `json:"phase"`
	Discipline     string `json:"discipline"`
	Severity       string `json:"severity"`
	Environment    string `json:"environment"`
	Project        string `json:"project"`
	Location       string `json:"location"`
	Keywords       string `json:"keywords"`
	LoggedBy       string `json:"logged_by"`
	Status         string `json:"status"`
	AssignedTo     string `json:"assigned_to"`
	SupportingDocs string `json:"supporting_docs"`
}
