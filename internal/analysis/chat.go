package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/models"
)

const (
	chatFieldChars   = 200
	chatProfileChars = 4000
)

type chatLesson struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Desc       string `json:"desc"`
	RootCause  string `json:"rootCause"`
	Rec        string `json:"rec"`
	WorkType   string `json:"workType"`
	Discipline string `json:"discipline"`
	Severity   string `json:"severity"`
	Env        string `json:"env"`
}

// Chat answers a free-form question with the whole corpus in context and
// returns the model's plain text reply.
func (a *Analyzer) Chat(ctx context.Context, message string, history []ai.Message, lessons []models.Lesson, org OrgProfile) (string, error) {
	if a.gen == nil {
		return "", ai.ErrNotConfigured
	}
	corpus := make([]chatLesson, 0, len(lessons))
	for _, l := range lessons {
		corpus = append(corpus, chatLesson{
			ID:         l.ID.String(),
			Title:      l.Title,
			Desc:       ingest.Clip(l.Description, chatFieldChars),
			RootCause:  ingest.Clip(l.RootCause, chatFieldChars),
			Rec:        ingest.Clip(l.Recommendation, chatFieldChars),
			WorkType:   l.WorkType,
			Discipline: l.Discipline,
			Severity:   l.Severity,
			Env:        l.Environment,
		})
	}

	msgs := make([]ai.Message, 0, len(history)+1)
	for _, h := range history {
		role := ai.RoleUser
		if strings.EqualFold(h.Role, ai.RoleAssistant) {
			role = ai.RoleAssistant
		}
		if strings.TrimSpace(h.Content) == "" {
			continue
		}
		msgs = append(msgs, ai.Message{Role: role, Content: h.Content})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: message})

	resp, err := a.gen.Generate(ctx, ai.Request{
		Operation: "chat",
		System:    chatSystemPrompt(corpus, org),
		Messages:  msgs,
		MaxTokens: a.cfg.ChatMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return resp.Text(), nil
}
