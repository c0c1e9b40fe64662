package analysis

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/models"
)

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []ai.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req ai.Request) (*ai.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Response{Blocks: []ai.Block{{Type: ai.BlockTypeText, Text: f.reply}}}, nil
}

func (f *fakeGenerator) last() ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func testLesson(title string) models.Lesson {
	return models.Lesson{
		ID:          uuid.New(),
		Title:       title,
		Description: "Crew skipped preheat on cold mornings",
		RootCause:   "No WPS briefing",
		Discipline:  "Welding",
		Severity:    "High",
		WorkType:    "Pipeline Construction",
	}
}
