package ingest

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetFixture struct {
	name string
	rows [][]any
}

func buildWorkbook(t *testing.T, sheets ...sheetFixture) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", s.name))
		} else {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			values := row
			require.NoError(t, f.SetSheetRow(s.name, cell, &values))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var tabularHeader = []any{
	"LL # (Auto)", "Date Logged", "Project Name", "Region", "Discipline", "Category",
	"Phase", "Logged By", "Situation / Context", "What Happened", "Impact", "Root Cause",
	"What Worked / Didn't", "Recommendation", "Keywords", "Status", "Assigned To", "Supporting Docs",
}

func TestImportXLSX_FullRow(t *testing.T) {
	data := buildWorkbook(t,
		sheetFixture{name: "Instructions", rows: [][]any{{"Read me"}, {"nothing here"}}},
		sheetFixture{name: "Lessons Learned", rows: [][]any{
			tabularHeader,
			{
				"LL-001", "2024-03-01", "Line 12 Expansion", "Permian", "", "Welding",
				"Construction", "J. Smith", "Weld failed NDE. Crew re-shot it.", "Cracked weld found on tie-in",
				"$50k rework, two week delay", "Preheat skipped", "Hold point worked", "Enforce preheat logs",
				"preheat, tie-in", "Open", "QA Lead", "NCR-44.pdf",
			},
		}},
	)

	records, err := ImportXLSX(data, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "Weld failed NDE", r.Title)
	assert.Equal(t, "Weld failed NDE. Crew re-shot it.\n\nWhat happened: Cracked weld found on tie-in\n\nHold point worked", r.Description)
	assert.Equal(t, "Welding", r.Discipline)
	assert.Equal(t, SeverityHigh, r.Severity)
	assert.Equal(t, DefaultWorkType, r.WorkType)
	assert.Equal(t, "Preheat skipped", r.RootCause)
	assert.Equal(t, "Enforce preheat logs", r.Recommendation)
	assert.Equal(t, "Line 12 Expansion", r.Project)
	assert.Equal(t, "Permian", r.Location)
	assert.Equal(t, "Construction", r.Phase)
	assert.Equal(t, "preheat, tie-in, Welding, logged by: J. Smith, status: Open, NCR-44.pdf", r.Keywords)
	assert.Equal(t, "J. Smith", r.LoggedBy)
	assert.Equal(t, "Open", r.Status)
	assert.Equal(t, "QA Lead", r.AssignedTo)
	assert.Equal(t, "NCR-44.pdf", r.SupportingDocs)
}

func TestImportXLSX_FallsBackToFirstSheet(t *testing.T) {
	data := buildWorkbook(t,
		sheetFixture{name: "Data", rows: [][]any{
			{"Context", "Impact"},
			{"Coating holiday missed", "injury risk"},
		}},
		sheetFixture{name: "Other", rows: [][]any{{"Context"}, {"ignored"}}},
	)

	records, err := ImportXLSX(data, Options{WorkType: "Compressor Station"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Coating holiday missed", records[0].Title)
	assert.Equal(t, SeverityCritical, records[0].Severity)
	assert.Equal(t, "Compressor Station", records[0].WorkType)
}

func TestImportXLSX_SkipsUnusableRows(t *testing.T) {
	data := buildWorkbook(t, sheetFixture{name: "Lessons", rows: [][]any{
		{"Situation", "What Happened", "Impact"},
		{"", "", "huge"},
		{"None", "nan", "placeholder only"},
		{".", "", "no title"},
		{"Valid lesson", "", ""},
	}})

	records, err := ImportXLSX(data, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Valid lesson", records[0].Title)
	assert.Equal(t, SeverityMedium, records[0].Severity)
}

func TestImportXLSX_AllRowsEmptyYieldsNoError(t *testing.T) {
	data := buildWorkbook(t, sheetFixture{name: "Lessons", rows: [][]any{
		{"Situation", "What Happened", "Impact"},
		{"", "", "x"},
		{"", "", "y"},
	}})

	records, err := ImportXLSX(data, Options{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestImportXLSX_HeaderOnly(t *testing.T) {
	data := buildWorkbook(t, sheetFixture{name: "Lessons", rows: [][]any{{"Situation"}}})

	records, err := ImportXLSX(data, Options{})
	require.ErrorIs(t, err, ErrNoDataRows)
	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.Contains(t, err.Error(), `sheet "Lessons" has no data rows`)
}

func TestImportXLSX_Malformed(t *testing.T) {
	_, err := ImportXLSX([]byte("definitely not a zip"), Options{})
	require.ErrorIs(t, err, ErrMalformedFile)
}

func TestImportCSV_EndToEnd(t *testing.T) {
	data := []byte("Situation,What Happened,Impact,Discipline\n" +
		`"Weld failed NDE","Cracked weld found","$50k rework, two week delay","Welding"` + "\n")

	records, err := ImportCSV(data, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "Welding", r.Discipline)
	assert.Equal(t, SeverityHigh, r.Severity)
	assert.Equal(t, "Weld failed NDE", r.Title)
	assert.Equal(t, "Weld failed NDE\n\nWhat happened: Cracked weld found", r.Description)
	assert.Equal(t, "$50k rework, two week delay", r.Impact)
}

func TestImportCSV_DelimitedFieldSet(t *testing.T) {
	data := []byte("\xEF\xBB\xBFContext,Category,Keywords,Logged By,Status,What Worked,Assigned To,Supporting Docs\n" +
		"Hydrotest failed,Quality,hydro,Ann,Closed,retest worked,Bob,report.pdf\n")

	records, err := ImportCSV(data, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "Hydrotest failed", r.Title)
	assert.Equal(t, "Hydrotest failed", r.Description)
	assert.Equal(t, "Quality", r.Discipline)
	assert.Equal(t, "hydro, Quality", r.Keywords)
	assert.Equal(t, "Ann", r.LoggedBy)
	assert.Equal(t, "Closed", r.Status)
	assert.Empty(t, r.AssignedTo)
	assert.Empty(t, r.SupportingDocs)
}

func TestImport_TSV(t *testing.T) {
	data := []byte("Situation\tImpact\nLate pipe delivery\tthree month slip\n")

	records, err := Import(data, FormatTSV, Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Late pipe delivery", records[0].Title)
	assert.Equal(t, SeverityHigh, records[0].Severity)
}

func TestImportCSV_HeaderOnly(t *testing.T) {
	records, err := ImportCSV([]byte("Situation,Impact\n"), Options{})
	require.ErrorIs(t, err, ErrNoDataRows)
	assert.Empty(t, records)
}

func TestImport_RecordsAlwaysHaveTitleAndDescription(t *testing.T) {
	long := strings.Repeat("word ", 60)
	data := []byte("Situation,What Happened\n" +
		long + ",\n" +
		",Only what happened\n" +
		",\n")

	records, err := ImportCSV(data, Options{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.NotEmpty(t, r.Title)
		assert.LessOrEqual(t, utf8.RuneCountInString(r.Title), 100)
		assert.NotEmpty(t, r.Description)
	}
	assert.Equal(t, "Only what happened", records[1].Title)
}

func TestFormatProfile(t *testing.T) {
	tests := []struct {
		format  Format
		tabular bool
		profile string
	}{
		{FormatXLSX, true, ProfileTabular},
		{FormatCSV, false, ProfileDelimited},
		{FormatTSV, false, ProfileDelimited},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			assert.Equal(t, tt.tabular, tt.format.Tabular())
			assert.Equal(t, tt.profile, tt.format.Profile())

			reg, err := LoadRegistry()
			require.NoError(t, err)
			_, err = reg.Profile(tt.format.Profile())
			require.NoError(t, err)
		})
	}
}

func TestFormatFromFilename(t *testing.T) {
	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"lessons.xlsx", FormatXLSX, false},
		{"OLD.XLS", FormatXLSX, false},
		{"macro.xlsm", FormatXLSX, false},
		{"export.csv", FormatCSV, false},
		{"export.tsv", FormatTSV, false},
		{"notes.pdf", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatFromFilename(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
