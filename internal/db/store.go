package db

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/lessons-learned/internal/models"
)

// Store is the storage collaborator for organizations, lessons and analyses.
// Every read and write is scoped to the owning user.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// OrganizationUpdate carries the fields a PATCH may change. Nil means unchanged.
type OrganizationUpdate struct {
	Name        *string
	ProfileText *string
}

const orgCols = `o.id, o.name, o.profile_text, o.created_by, o.created_at, o.updated_at,
	(SELECT COUNT(*) FROM lessons l WHERE l.organization_id = o.id)`

func scanOrganization(scan func(dest ...any) error) (models.Organization, error) {
	var o models.Organization
	err := scan(&o.ID, &o.Name, &o.ProfileText, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt, &o.LessonCount)
	return o, err
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

func (s *Store) CreateOrganization(ctx context.Context, userID uuid.UUID, name, profileText string) (*models.Organization, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO organizations (name, profile_text, created_by)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, profileText, userID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert organization: %w", err)
	}
	return s.GetOrganization(ctx, userID, id)
}

func (s *Store) GetOrganization(ctx context.Context, userID, id uuid.UUID) (*models.Organization, error) {
	sql := fmt.Sprintf(`SELECT %s FROM organizations o WHERE o.id = $1 AND o.created_by = $2`, orgCols)
	o, err := scanOrganization(s.pool.QueryRow(ctx, sql, id, userID).Scan)
	if err != nil {
		return nil, notFound(err, "organization")
	}
	return &o, nil
}

func (s *Store) ListOrganizations(ctx context.Context, userID uuid.UUID) ([]models.Organization, error) {
	sql := fmt.Sprintf(`SELECT %s FROM organizations o WHERE o.created_by = $1 ORDER BY o.name`, orgCols)
	return s.queryOrganizations(ctx, sql, userID)
}

// AllOrganizations lists every organization regardless of owner. It backs
// operator tooling, not the API.
func (s *Store) AllOrganizations(ctx context.Context) ([]models.Organization, error) {
	sql := fmt.Sprintf(`SELECT %s FROM organizations o ORDER BY o.name`, orgCols)
	return s.queryOrganizations(ctx, sql)
}

func (s *Store) queryOrganizations(ctx context.Context, sql string, args ...any) ([]models.Organization, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []models.Organization{}
	for rows.Next() {
		o, err := scanOrganization(rows.Scan)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *Store) UpdateOrganization(ctx context.Context, userID, id uuid.UUID, upd OrganizationUpdate) (*models.Organization, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE organizations
		SET name = COALESCE($3, name),
		    profile_text = COALESCE($4, profile_text),
		    updated_at = NOW()
		WHERE id = $1 AND created_by = $2
	`, id, userID, upd.Name, upd.ProfileText)
	if err != nil {
		return nil, fmt.Errorf("update organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("organization: %w", ErrNotFound)
	}
	return s.GetOrganization(ctx, userID, id)
}

func (s *Store) DeleteOrganization(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1 AND created_by = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete organization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization: %w", ErrNotFound)
	}
	return nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// missingIDs returns the requested ids absent from found, sorted.
func missingIDs(requested, found []uuid.UUID) []string {
	seen := make(map[uuid.UUID]bool, len(found))
	for _, id := range found {
		seen[id] = true
	}
	var missing []string
	for _, id := range requested {
		if !seen[id] {
			missing = append(missing, id.String())
		}
	}
	slices.Sort(missing)
	return slices.Compact(missing)
}

// MissingIDsError lists lesson ids that do not exist or belong to another user.
type MissingIDsError struct {
	IDs []string
}

func (e *MissingIDsError) Error() string {
	return fmt.Sprintf("Lessons not found or not authorized: [%s]", strings.Join(e.IDs, ", "))
}
