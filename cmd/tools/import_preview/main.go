package main

import (
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/lessons-learned/internal/ingest"
)

func main() {
	path := flag.String("file", "", "Lessons file to parse (.xlsx, .csv, .tsv)")
	workType := flag.String("work-type", "", "Work type applied to every record")
	width := flag.Int("width", 40, "Maximum description width")
	flag.Parse()

	if *path == "" {
		log.Fatal("Please provide a file using -file flag")
	}
	data, err := os.ReadFile(*path)
	if err != nil {
		log.Fatalf("Failed to read file: %v", err)
	}
	format, err := ingest.FormatFromFilename(*path)
	if err != nil {
		log.Fatal(err)
	}

	records, err := ingest.Import(data, format, ingest.Options{WorkType: *workType})
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Title", "Discipline", "Severity", "Work Type", "Phase", "Description"})
	for i, r := range records {
		t.AppendRow(table.Row{i + 1, r.Title, r.Discipline, r.Severity, r.WorkType, r.Phase, ingest.TruncateText(r.Description, *width)})
	}
	t.AppendFooter(table.Row{"", "Total", len(records)})
	t.Render()
}
