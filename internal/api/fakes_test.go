package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/auth"
	"github.com/david/lessons-learned/internal/db"
	"github.com/david/lessons-learned/internal/models"
)

// memStore is an in-memory Store keyed by owner.
type memStore struct {
	mu           sync.Mutex
	orgs         map[uuid.UUID]models.Organization
	lessons      map[uuid.UUID]models.Lesson
	analyses     map[uuid.UUID]models.SOWAnalysis
	deliverables map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		orgs:         map[uuid.UUID]models.Organization{},
		lessons:      map[uuid.UUID]models.Lesson{},
		analyses:     map[uuid.UUID]models.SOWAnalysis{},
		deliverables: map[string]any{},
	}
}

func (m *memStore) owns(userID, orgID uuid.UUID) bool {
	o, ok := m.orgs[orgID]
	return ok && o.CreatedBy == userID
}

func (m *memStore) CreateOrganization(_ context.Context, userID uuid.UUID, name, profileText string) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := models.Organization{ID: uuid.New(), Name: name, ProfileText: profileText, CreatedBy: userID, CreatedAt: time.Now()}
	m.orgs[o.ID] = o
	return &o, nil
}

func (m *memStore) GetOrganization(_ context.Context, userID, id uuid.UUID) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.owns(userID, id) {
		return nil, fmt.Errorf("organization: %w", db.ErrNotFound)
	}
	o := m.orgs[id]
	return &o, nil
}

func (m *memStore) ListOrganizations(_ context.Context, userID uuid.UUID) ([]models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Organization{}
	for _, o := range m.orgs {
		if o.CreatedBy == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) UpdateOrganization(_ context.Context, userID, id uuid.UUID, upd db.OrganizationUpdate) (*models.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.owns(userID, id) {
		return nil, fmt.Errorf("organization: %w", db.ErrNotFound)
	}
	o := m.orgs[id]
	if upd.Name != nil {
		o.Name = *upd.Name
	}
	if upd.ProfileText != nil {
		o.ProfileText = *upd.ProfileText
	}
	m.orgs[id] = o
	return &o, nil
}

func (m *memStore) DeleteOrganization(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.owns(userID, id) {
		return fmt.Errorf("organization: %w", db.ErrNotFound)
	}
	delete(m.orgs, id)
	return nil
}

func (m *memStore) ListLessons(_ context.Context, userID uuid.UUID, f db.LessonFilter) ([]models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Lesson{}
	for _, l := range m.lessons {
		if !m.owns(userID, l.OrganizationID) {
			continue
		}
		if f.OrganizationID != nil && l.OrganizationID != *f.OrganizationID {
			continue
		}
		if f.Severity != "" && l.Severity != f.Severity {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *memStore) GetLesson(_ context.Context, userID, id uuid.UUID) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lessons[id]
	if !ok || !m.owns(userID, l.OrganizationID) {
		return nil, fmt.Errorf("lesson: %w", db.ErrNotFound)
	}
	return &l, nil
}

func (m *memStore) CreateLesson(_ context.Context, userID uuid.UUID, l models.Lesson) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.owns(userID, l.OrganizationID) {
		return nil, fmt.Errorf("organization: %w", db.ErrNotFound)
	}
	l.ID = uuid.New()
	m.lessons[l.ID] = l
	return &l, nil
}

func (m *memStore) UpdateLesson(_ context.Context, userID uuid.UUID, l models.Lesson) (*models.Lesson, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.owns(userID, l.OrganizationID) {
		return nil, fmt.Errorf("organization: %w", db.ErrNotFound)
	}
	m.lessons[l.ID] = l
	return &l, nil
}

func (m *memStore) DeleteLesson(_ context.Context, userID, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lessons[id]
	if !ok || !m.owns(userID, l.OrganizationID) {
		return fmt.Errorf("lesson: %w", db.ErrNotFound)
	}
	delete(m.lessons, id)
	return nil
}

func (m *memStore) InsertLessons(_ context.Context, lessons []models.Lesson) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range lessons {
		l.ID = uuid.New()
		m.lessons[l.ID] = l
	}
	return len(lessons), nil
}

func (m *memStore) missing(userID uuid.UUID, ids []uuid.UUID) error {
	var missing []string
	for _, id := range ids {
		l, ok := m.lessons[id]
		if !ok || !m.owns(userID, l.OrganizationID) {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return &db.MissingIDsError{IDs: missing}
	}
	return nil
}

func (m *memStore) BulkDeleteLessons(_ context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.missing(userID, ids); err != nil {
		return 0, err
	}
	for _, id := range ids {
		delete(m.lessons, id)
	}
	return len(ids), nil
}

func (m *memStore) BulkUpdateLessons(_ context.Context, userID uuid.UUID, ids []uuid.UUID, fields map[string]string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := db.ValidateBulkFields(fields); err != nil {
		return 0, err
	}
	if err := m.missing(userID, ids); err != nil {
		return 0, err
	}
	for _, id := range ids {
		l := m.lessons[id]
		if v, ok := fields["severity"]; ok {
			l.Severity = v
		}
		m.lessons[id] = l
	}
	return len(ids), nil
}

func (m *memStore) LessonStats(_ context.Context, userID uuid.UUID, orgID *uuid.UUID, _ time.Time) (*db.LessonStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &db.LessonStats{BySeverity: map[string]int{}, ByDiscipline: map[string]int{}, ByWorkType: map[string]int{}}
	for _, l := range m.lessons {
		if !m.owns(userID, l.OrganizationID) || (orgID != nil && l.OrganizationID != *orgID) {
			continue
		}
		stats.Total++
		stats.BySeverity[l.Severity]++
	}
	return stats, nil
}

func (m *memStore) CreateAnalysis(_ context.Context, a models.SOWAnalysis) (*models.SOWAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.analyses[a.ID] = a
	return &a, nil
}

func (m *memStore) GetAnalysis(_ context.Context, userID, id uuid.UUID) (*models.SOWAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[id]
	if !ok || !m.owns(userID, a.OrganizationID) {
		return nil, fmt.Errorf("analysis: %w", db.ErrNotFound)
	}
	return &a, nil
}

func (m *memStore) ListAnalyses(_ context.Context, userID uuid.UUID, _ *uuid.UUID) ([]models.SOWAnalysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SOWAnalysis{}
	for _, a := range m.analyses {
		if m.owns(userID, a.OrganizationID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) SaveDeliverable(_ context.Context, userID, analysisID uuid.UUID, deliverableType string, doc any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[analysisID]
	if !ok || !m.owns(userID, a.OrganizationID) {
		return fmt.Errorf("analysis: %w", db.ErrNotFound)
	}
	m.deliverables[analysisID.String()+"/"+deliverableType] = doc
	return nil
}

type fakeAuth struct {
	userID uuid.UUID
}

func (f *fakeAuth) Signup(_ context.Context, req auth.SignupRequest) (*auth.AuthResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Email == "taken@example.com" {
		return nil, auth.ErrUserExists
	}
	return &auth.AuthResponse{Token: "t", User: auth.User{ID: f.userID, Email: req.Email}}, nil
}

func (f *fakeAuth) Login(_ context.Context, req auth.LoginRequest) (*auth.AuthResponse, error) {
	if req.Password != "correct-horse" {
		return nil, auth.ErrInvalidCreds
	}
	return &auth.AuthResponse{Token: "t", User: auth.User{ID: f.userID, Email: req.Email}}, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, _ ai.Request) (*ai.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &ai.Response{Blocks: []ai.Block{{Type: ai.BlockTypeText, Text: g.reply}}}, nil
}
