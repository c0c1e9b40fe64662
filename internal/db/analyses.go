package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/models"
)

// StoredSOWChars caps the scope text persisted with an analysis.
const StoredSOWChars = 10000

const analysisCols = `a.id, a.organization_id, a.filename, a.sow_text, a.work_type, a.results, a.created_by, a.created_at`

const analysisFrom = `FROM sow_analyses a JOIN organizations o ON o.id = a.organization_id`

func scanAnalysis(scan func(dest ...any) error) (models.SOWAnalysis, error) {
	var a models.SOWAnalysis
	err := scan(&a.ID, &a.OrganizationID, &a.Filename, &a.SOWText, &a.WorkType, &a.Results, &a.CreatedBy, &a.CreatedAt)
	if a.Results == nil {
		a.Results = map[string]any{}
	}
	return a, err
}

// CreateAnalysis persists an analysis run. The organization must already be
// verified as owned by the caller.
func (s *Store) CreateAnalysis(ctx context.Context, a models.SOWAnalysis) (*models.SOWAnalysis, error) {
	if a.Results == nil {
		a.Results = map[string]any{}
	}
	a.SOWText = ingest.Clip(a.SOWText, StoredSOWChars)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sow_analyses (organization_id, filename, sow_text, work_type, results, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, a.OrganizationID, a.Filename, a.SOWText, a.WorkType, a.Results, a.CreatedBy).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}
	return &a, nil
}

func (s *Store) GetAnalysis(ctx context.Context, userID, id uuid.UUID) (*models.SOWAnalysis, error) {
	sql := fmt.Sprintf(`SELECT %s %s WHERE a.id = $1 AND o.created_by = $2`, analysisCols, analysisFrom)
	a, err := scanAnalysis(s.pool.QueryRow(ctx, sql, id, userID).Scan)
	if err != nil {
		return nil, notFound(err, "analysis")
	}
	return &a, nil
}

func (s *Store) ListAnalyses(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) ([]models.SOWAnalysis, error) {
	where := "WHERE o.created_by = $1"
	args := []any{userID}
	if orgID != nil {
		where += " AND a.organization_id = $2"
		args = append(args, *orgID)
	}
	sql := fmt.Sprintf(`SELECT %s %s %s ORDER BY a.created_at DESC`, analysisCols, analysisFrom, where)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	analyses := []models.SOWAnalysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, err
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// SaveDeliverable stores doc under results.deliverables.<deliverableType>,
// replacing any earlier version of the same type.
func (s *Store) SaveDeliverable(ctx context.Context, userID, analysisID uuid.UUID, deliverableType string, doc any) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sow_analyses a
		SET results = jsonb_set(
			a.results || jsonb_build_object('deliverables', COALESCE(a.results->'deliverables', '{}'::jsonb)),
			ARRAY['deliverables', $3::text],
			$4::jsonb
		)
		FROM organizations o
		WHERE a.id = $1 AND o.id = a.organization_id AND o.created_by = $2
	`, analysisID, userID, deliverableType, doc)
	if err != nil {
		return fmt.Errorf("save deliverable: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("analysis: %w", ErrNotFound)
	}
	return nil
}
