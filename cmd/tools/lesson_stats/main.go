package main

import (
	"context"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/lessons-learned/internal/config"
	"github.com/david/lessons-learned/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	orgs, err := db.NewStore(pool).AllOrganizations(ctx)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Organization", "Lessons", "Profile", "Updated At"})

	total := 0
	for _, o := range orgs {
		profile := "no"
		if o.ProfileText != "" {
			profile = "yes"
		}
		total += o.LessonCount
		t.AppendRow(table.Row{o.Name, o.LessonCount, profile, o.UpdatedAt.Format("2006-01-02")})
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}
