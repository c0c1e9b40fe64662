package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/david/lessons-learned/internal/analysis"
	"github.com/david/lessons-learned/internal/models"
)

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SheetLessons         = "Applicable Lessons"
	SheetRecommendations = "Recommendations"
	SheetGaps            = "Gaps"
)

var (
	lessonColumns = []string{"Relevance", "Lesson Title", "Discipline", "Work Type", "Project", "Why It Applies", "Recommendation"}
	lessonWidths  = []float64{12, 30, 16, 16, 20, 45, 45}
	relevances    = []string{"High", "Medium", "Low"}
)

type styles struct {
	header int
	cell   int
	row    int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	s.header, err = f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1E3A5F"}, Pattern: 1},
		Font:      &excelize.Font{Family: "Calibri", Bold: true, Color: "FFFFFF", Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return s, err
	}
	s.cell, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Calibri", Size: 11},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return s, err
	}
	s.row, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Family: "Calibri", Size: 11},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		Border:    []excelize.Border{{Type: "bottom", Color: "DDDDDD", Style: 1}},
	})
	return s, err
}

// Workbook renders an analysis as a three-sheet XLSX. lessons resolves match
// ids to titles; unknown ids are written as-is.
func Workbook(a models.SOWAnalysis, lessons []models.Lesson) ([]byte, error) {
	result, err := analysis.ResultFromDocument(a.Results)
	if err != nil {
		return nil, fmt.Errorf("decode analysis results: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	st, err := newStyles(f)
	if err != nil {
		return nil, fmt.Errorf("workbook styles: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetLessons); err != nil {
		return nil, err
	}
	if err := writeLessons(f, st, result.Matches, lessons); err != nil {
		return nil, err
	}

	recs := make([]string, len(result.Recommendations))
	for i, r := range result.Recommendations {
		recs[i] = fmt.Sprintf("%d. %s", i+1, r)
	}
	if err := writeList(f, st, SheetRecommendations, recs); err != nil {
		return nil, err
	}
	if err := writeList(f, st, SheetGaps, result.Gaps); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeLessons(f *excelize.File, st styles, matches []analysis.Match, lessons []models.Lesson) error {
	const sheet = SheetLessons
	byID := make(map[string]models.Lesson, len(lessons))
	for _, l := range lessons {
		byID[l.ID.String()] = l
	}

	header := make([]any, len(lessonColumns))
	for i, c := range lessonColumns {
		header[i] = c
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheet, col, col, lessonWidths[i]); err != nil {
			return err
		}
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "G1", st.header); err != nil {
		return err
	}

	row := 2
	for levelIdx, level := range relevances {
		var group []analysis.Match
		for _, m := range matches {
			if m.Relevance == level {
				group = append(group, m)
			}
		}
		if len(group) == 0 {
			continue
		}
		if levelIdx > 0 && row > 2 {
			row++
		}
		for _, m := range group {
			values := []any{level, m.LessonID.String(), "", "", "", m.Reason, ""}
			if l, ok := byID[m.LessonID.String()]; ok {
				values = []any{level, l.Title, l.Discipline, l.WorkType, l.Project, m.Reason, l.Recommendation}
			}
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(lessonColumns), row)
			if err := f.SetSheetRow(sheet, first, &values); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, first, last, st.row); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func writeList(f *excelize.File, st styles, sheet string, items []string) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "A", 80); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "A1", sheet); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", st.header); err != nil {
		return err
	}
	for i, item := range items {
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetCellValue(sheet, cell, item); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, st.cell); err != nil {
			return err
		}
	}
	return nil
}

// Filename is the download name for an analysis export. Document extensions
// are dropped and quotes removed so the name is safe in a header.
func Filename(analysisFilename string) string {
	name := analysisFilename
	if name == "" {
		name = "sow-analysis"
	}
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "docx", "pdf", "txt", "doc":
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	name = strings.ReplaceAll(name, `"`, "")
	return name + " - SOW Analysis.xlsx"
}
