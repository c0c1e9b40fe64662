package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FormatFromFilename picks the import format from a file extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "xlsx", "xls", "xlsm":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	}
	return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, ext)
}

// Import dispatches to the importer for format.
func Import(data []byte, format Format, opts Options) ([]Record, error) {
	switch format {
	case FormatXLSX:
		return ImportXLSX(data, opts)
	case FormatCSV, FormatTSV:
		return importDelimited(data, format, opts)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// ImportXLSX reads lessons from a workbook. The first sheet whose name
// mentions "lesson" or "experience" is used, else the first sheet.
func ImportXLSX(data []byte, opts Options) ([]Record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
	}
	defer f.Close()

	sheet := selectSheet(f.GetSheetList())
	if sheet == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrMalformedFile)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrMalformedFile, sheet, err)
	}
	if len(rows) < 2 {
		return []Record{}, fmt.Errorf("sheet %q has no data rows: %w", sheet, ErrNoDataRows)
	}

	for _, row := range rows[1:] {
		for i := range row {
			row[i] = cellString(row[i])
		}
	}
	return mapRows(rows, FormatXLSX, opts)
}

// ImportCSV reads lessons from comma-separated UTF-8 text.
func ImportCSV(data []byte, opts Options) ([]Record, error) {
	return importDelimited(data, FormatCSV, opts)
}

func importDelimited(data []byte, format Format, opts Options) ([]Record, error) {
	r := csv.NewReader(bytes.NewReader(stripBOM(data)))
	if format == FormatTSV {
		r.Comma = '\t'
	}
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedFile, err)
		}
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		rows = append(rows, rec)
	}
	if len(rows) < 2 {
		return []Record{}, fmt.Errorf("CSV has no data rows: %w", ErrNoDataRows)
	}
	return mapRows(rows, format, opts)
}

func selectSheet(names []string) string {
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "lesson") || strings.Contains(lower, "experience") {
			return name
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return ""
}

// mapRows turns a header row plus data rows into records. Rows without any
// context or what-happened text, or without a derivable title, are skipped.
func mapRows(rows [][]string, format Format, opts Options) ([]Record, error) {
	reg, err := LoadRegistry()
	if err != nil {
		return nil, err
	}
	profile, err := reg.Profile(format.Profile())
	if err != nil {
		return nil, err
	}

	cols := BuildHeaderMap(lowerHeaders(rows[0]), profile)
	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec, ok := mapRow(cols, row, profile.SynthesizeTags, opts)
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func mapRow(cols HeaderMap, row []string, synthesizeTags bool, opts Options) (Record, bool) {
	get := func(field string) string { return cols.Get(row, field) }

	context := get(FieldContext)
	whatHappened := get(FieldWhatHappened)
	if context == "" && whatHappened == "" {
		return Record{}, false
	}
	title := deriveTitle(context, whatHappened)
	if title == "" {
		return Record{}, false
	}

	disciplineRaw := get(FieldDiscipline)
	if disciplineRaw == "" {
		disciplineRaw = get(FieldCategory)
	}
	impact := get(FieldImpact)
	loggedBy := get(FieldLoggedBy)
	status := get(FieldStatus)
	docs := get(FieldDocs)

	keywords := []string{get(FieldKeywords), get(FieldCategory)}
	if synthesizeTags {
		if loggedBy != "" {
			keywords = append(keywords, "logged by: "+loggedBy)
		}
		if status != "" {
			keywords = append(keywords, "status: "+status)
		}
		keywords = append(keywords, docs)
	}

	return Record{
		Title:          title,
		Description:    buildDescription(context, whatHappened, get(FieldWorkedDidnt)),
		RootCause:      get(FieldRootCause),
		Recommendation: get(FieldRecommendation),
		Impact:         impact,
		WorkType:       opts.workType(),
		Phase:          get(FieldPhase),
		Discipline:     ClassifyDiscipline(disciplineRaw),
		Severity:       ClassifySeverity(impact),
		Project:        get(FieldProject),
		Location:       get(FieldRegion),
		Keywords:       joinNonEmpty(keywords, ", "),
		LoggedBy:       loggedBy,
		Status:         status,
		AssignedTo:     get(FieldAssignedTo),
		SupportingDocs: docs,
	}, true
}
