package db

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/david/lessons-learned/internal/models"
)

// BulkUpdatableFields are the lesson columns a bulk update may set.
var BulkUpdatableFields = []string{"discipline", "environment", "phase", "severity", "work_type"}

// InvalidFieldsError lists fields a bulk update is not allowed to change.
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return fmt.Sprintf("Cannot bulk-update fields: [%s]", strings.Join(e.Fields, ", "))
}

// LessonFilter narrows ListLessons. Empty fields do not filter.
type LessonFilter struct {
	OrganizationID *uuid.UUID
	Discipline     string
	Severity       string
	WorkType       string
	Search         string
}

// LessonStats is the dashboard aggregation over a user's lessons.
type LessonStats struct {
	Total        int            `json:"total"`
	BySeverity   map[string]int `json:"by_severity"`
	ByDiscipline map[string]int `json:"by_discipline"`
	ByWorkType   map[string]int `json:"by_work_type"`
	ThisMonth    int            `json:"this_month"`
	LastMonth    int            `json:"last_month"`
}

const lessonCols = `l.id, l.organization_id, l.title, l.description, l.root_cause, l.recommendation,
	l.impact, l.work_type, l.phase, l.discipline, l.severity, l.environment,
	l.project, l.location, l.keywords, l.logged_by, l.status, l.assigned_to,
	l.supporting_docs, l.created_by, l.created_at, l.updated_at`

const lessonFrom = `FROM lessons l JOIN organizations o ON o.id = l.organization_id`

var searchColumns = []string{"title", "description", "root_cause", "recommendation", "keywords", "project", "location"}

func scanLesson(scan func(dest ...any) error) (models.Lesson, error) {
	var l models.Lesson
	err := scan(
		&l.ID, &l.OrganizationID, &l.Title, &l.Description, &l.RootCause, &l.Recommendation,
		&l.Impact, &l.WorkType, &l.Phase, &l.Discipline, &l.Severity, &l.Environment,
		&l.Project, &l.Location, &l.Keywords, &l.LoggedBy, &l.Status, &l.AssignedTo,
		&l.SupportingDocs, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt,
	)
	return l, err
}

// buildLessonWhere renders the WHERE clause for a user's lessons.
func buildLessonWhere(userID uuid.UUID, f LessonFilter) (string, []any) {
	where := "WHERE o.created_by = $1"
	args := []any{userID}
	argIdx := 2

	if f.OrganizationID != nil {
		where += fmt.Sprintf(" AND l.organization_id = $%d", argIdx)
		args = append(args, *f.OrganizationID)
		argIdx++
	}
	if f.Discipline != "" {
		where += fmt.Sprintf(" AND l.discipline = $%d", argIdx)
		args = append(args, f.Discipline)
		argIdx++
	}
	if f.Severity != "" {
		where += fmt.Sprintf(" AND l.severity = $%d", argIdx)
		args = append(args, f.Severity)
		argIdx++
	}
	if f.WorkType != "" {
		where += fmt.Sprintf(" AND l.work_type = $%d", argIdx)
		args = append(args, f.WorkType)
		argIdx++
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		parts := make([]string, len(searchColumns))
		for i, col := range searchColumns {
			parts[i] = fmt.Sprintf("l.%s ILIKE $%d", col, argIdx)
		}
		where += " AND (" + strings.Join(parts, " OR ") + ")"
		args = append(args, "%"+search+"%")
	}
	return where, args
}

func (s *Store) ListLessons(ctx context.Context, userID uuid.UUID, f LessonFilter) ([]models.Lesson, error) {
	where, args := buildLessonWhere(userID, f)
	sql := fmt.Sprintf(`SELECT %s %s %s ORDER BY l.created_at DESC, l.id`, lessonCols, lessonFrom, where)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	lessons := []models.Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows.Scan)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, l)
	}
	return lessons, rows.Err()
}

func (s *Store) GetLesson(ctx context.Context, userID, id uuid.UUID) (*models.Lesson, error) {
	sql := fmt.Sprintf(`SELECT %s %s WHERE l.id = $1 AND o.created_by = $2`, lessonCols, lessonFrom)
	l, err := scanLesson(s.pool.QueryRow(ctx, sql, id, userID).Scan)
	if err != nil {
		return nil, notFound(err, "lesson")
	}
	return &l, nil
}

const insertLessonSQL = `
	INSERT INTO lessons (organization_id, title, description, root_cause, recommendation,
		impact, work_type, phase, discipline, severity, environment, project, location,
		keywords, logged_by, status, assigned_to, supporting_docs, created_by)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	RETURNING id`

func lessonArgs(l models.Lesson) []any {
	return []any{
		l.OrganizationID, l.Title, l.Description, l.RootCause, l.Recommendation,
		l.Impact, l.WorkType, l.Phase, l.Discipline, l.Severity, l.Environment, l.Project, l.Location,
		l.Keywords, l.LoggedBy, l.Status, l.AssignedTo, l.SupportingDocs, l.CreatedBy,
	}
}

// CreateLesson inserts a lesson into an organization the user owns.
func (s *Store) CreateLesson(ctx context.Context, userID uuid.UUID, l models.Lesson) (*models.Lesson, error) {
	if _, err := s.GetOrganization(ctx, userID, l.OrganizationID); err != nil {
		return nil, err
	}
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, insertLessonSQL, lessonArgs(l)...).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert lesson: %w", err)
	}
	return s.GetLesson(ctx, userID, id)
}

// InsertLessons writes an imported batch in one transaction and returns the
// number of rows created.
func (s *Store) InsertLessons(ctx context.Context, lessons []models.Lesson) (int, error) {
	if len(lessons) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, l := range lessons {
		batch.Queue(insertLessonSQL, lessonArgs(l)...)
	}
	results := tx.SendBatch(ctx, batch)
	for i := range lessons {
		var id uuid.UUID
		if err := results.QueryRow().Scan(&id); err != nil {
			results.Close()
			return 0, fmt.Errorf("insert lesson %d: %w", i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(lessons), nil
}

// UpdateLesson replaces the editable fields of a lesson. Moving a lesson to
// another organization requires owning that organization too.
func (s *Store) UpdateLesson(ctx context.Context, userID uuid.UUID, l models.Lesson) (*models.Lesson, error) {
	if _, err := s.GetOrganization(ctx, userID, l.OrganizationID); err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE lessons l
		SET organization_id = $3, title = $4, description = $5, root_cause = $6,
		    recommendation = $7, impact = $8, work_type = $9, phase = $10, discipline = $11,
		    severity = $12, environment = $13, project = $14, location = $15, keywords = $16,
		    logged_by = $17, status = $18, assigned_to = $19, supporting_docs = $20,
		    updated_at = NOW()
		FROM organizations o
		WHERE l.id = $1 AND o.id = l.organization_id AND o.created_by = $2
	`, l.ID, userID, l.OrganizationID, l.Title, l.Description, l.RootCause,
		l.Recommendation, l.Impact, l.WorkType, l.Phase, l.Discipline,
		l.Severity, l.Environment, l.Project, l.Location, l.Keywords,
		l.LoggedBy, l.Status, l.AssignedTo, l.SupportingDocs)
	if err != nil {
		return nil, fmt.Errorf("update lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("lesson: %w", ErrNotFound)
	}
	return s.GetLesson(ctx, userID, l.ID)
}

func (s *Store) DeleteLesson(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM lessons l USING organizations o
		WHERE l.id = $1 AND o.id = l.organization_id AND o.created_by = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lesson: %w", ErrNotFound)
	}
	return nil
}

// ownedLessonIDs returns which of ids belong to the user.
func ownedLessonIDs(ctx context.Context, q pgx.Tx, userID uuid.UUID, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx, `
		SELECT l.id `+lessonFrom+`
		WHERE o.created_by = $1 AND l.id = ANY($2::uuid[])
		FOR UPDATE OF l
	`, userID, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// BulkDeleteLessons deletes every id or none. Ids the user does not own
// produce a *MissingIDsError.
func (s *Store) BulkDeleteLessons(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	return s.bulk(ctx, userID, ids, func(tx pgx.Tx, owned []string) (int64, error) {
		tag, err := tx.Exec(ctx, `DELETE FROM lessons WHERE id = ANY($1::uuid[])`, owned)
		return tag.RowsAffected(), err
	})
}

// ValidateBulkFields rejects fields outside BulkUpdatableFields.
func ValidateBulkFields(fields map[string]string) error {
	var invalid []string
	for k := range fields {
		if !slices.Contains(BulkUpdatableFields, k) {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		slices.Sort(invalid)
		return &InvalidFieldsError{Fields: invalid}
	}
	return nil
}

// buildBulkSet renders the SET clause for fields, with placeholders starting at start.
func buildBulkSet(fields map[string]string, start int) (string, []any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys))
	for i, k := range keys {
		parts = append(parts, fmt.Sprintf("%s = $%d", k, start+i))
		args = append(args, fields[k])
	}
	parts = append(parts, "updated_at = NOW()")
	return strings.Join(parts, ", "), args
}

// BulkUpdateLessons sets the same field values on every id or none.
func (s *Store) BulkUpdateLessons(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, fields map[string]string) (int, error) {
	if err := ValidateBulkFields(fields); err != nil {
		return 0, err
	}
	set, setArgs := buildBulkSet(fields, 2)
	return s.bulk(ctx, userID, ids, func(tx pgx.Tx, owned []string) (int64, error) {
		args := append([]any{owned}, setArgs...)
		tag, err := tx.Exec(ctx, `UPDATE lessons SET `+set+` WHERE id = ANY($1::uuid[])`, args...)
		return tag.RowsAffected(), err
	})
}

func (s *Store) bulk(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, apply func(pgx.Tx, []string) (int64, error)) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	owned, err := ownedLessonIDs(ctx, tx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("check lesson ownership: %w", err)
	}
	if missing := missingIDs(ids, owned); len(missing) > 0 {
		return 0, &MissingIDsError{IDs: missing}
	}

	n, err := apply(tx, uuidStrings(owned))
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(n), nil
}

// monthBounds returns the start of now's month and of the month before it.
func monthBounds(now time.Time) (thisMonth, lastMonth time.Time) {
	thisMonth = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return thisMonth, thisMonth.AddDate(0, -1, 0)
}

func (s *Store) LessonStats(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID, now time.Time) (*LessonStats, error) {
	where, args := buildLessonWhere(userID, LessonFilter{OrganizationID: orgID})
	stats := &LessonStats{
		BySeverity:   map[string]int{},
		ByDiscipline: map[string]int{},
		ByWorkType:   map[string]int{},
	}

	thisMonth, lastMonth := monthBounds(now)
	n := len(args)
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE l.created_at >= $%d),
		       COUNT(*) FILTER (WHERE l.created_at >= $%d AND l.created_at < $%d)
		%s %s
	`, n+1, n+2, n+1, lessonFrom, where), append(args, thisMonth, lastMonth)...).
		Scan(&stats.Total, &stats.ThisMonth, &stats.LastMonth)
	if err != nil {
		return nil, fmt.Errorf("lesson counts: %w", err)
	}

	groups := []struct {
		col   string
		limit string
		into  map[string]int
	}{
		{"severity", "", stats.BySeverity},
		{"discipline", "LIMIT 3", stats.ByDiscipline},
		{"work_type", "LIMIT 3", stats.ByWorkType},
	}
	for _, g := range groups {
		exclude := ""
		if g.limit != "" {
			exclude = fmt.Sprintf(" AND l.%s <> ''", g.col)
		}
		sql := fmt.Sprintf(`SELECT l.%[1]s, COUNT(*) AS n %[2]s %[3]s%[4]s GROUP BY l.%[1]s ORDER BY n DESC, l.%[1]s %[5]s`,
			g.col, lessonFrom, where, exclude, g.limit)
		rows, err := s.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, fmt.Errorf("lesson stats by %s: %w", g.col, err)
		}
		for rows.Next() {
			var value string
			var count int
			if err := rows.Scan(&value, &count); err != nil {
				rows.Close()
				return nil, err
			}
			g.into[value] = count
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return stats, nil
}
