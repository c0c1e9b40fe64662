package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/lessons-learned/internal/db"
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/models"
)

const maxTitleLen = 255

// lessonRequest is the create/update body. Nil fields are left unchanged on update.
type lessonRequest struct {
	Organization   *string `json:"organization"`
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	RootCause      *string `json:"root_cause"`
	Recommendation *string `json:"recommendation"`
	Impact         *string `json:"impact"`
	WorkType       *string `json:"work_type"`
	Phase          *string `json:"phase"`
	Discipline     *string `json:"discipline"`
	Severity       *string `json:"severity"`
	Environment    *string `json:"environment"`
	Project        *string `json:"project"`
	Location       *string `json:"location"`
	Keywords       *string `json:"keywords"`
	LoggedBy       *string `json:"logged_by"`
	Status         *string `json:"status"`
	AssignedTo     *string `json:"assigned_to"`
	SupportingDocs *string `json:"supporting_docs"`
}

func set(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// apply copies the present fields onto l and validates the result.
func (r lessonRequest) apply(l *models.Lesson) error {
	if r.Organization != nil {
		id, err := requiredID(*r.Organization, "organization")
		if err != nil {
			return err
		}
		l.OrganizationID = id
	}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		r.Title = &title
	}
	set(&l.Title, r.Title)
	set(&l.Description, r.Description)
	set(&l.RootCause, r.RootCause)
	set(&l.Recommendation, r.Recommendation)
	set(&l.Impact, r.Impact)
	set(&l.WorkType, r.WorkType)
	set(&l.Phase, r.Phase)
	set(&l.Discipline, r.Discipline)
	set(&l.Severity, r.Severity)
	set(&l.Environment, r.Environment)
	set(&l.Project, r.Project)
	set(&l.Location, r.Location)
	set(&l.Keywords, r.Keywords)
	set(&l.LoggedBy, r.LoggedBy)
	set(&l.Status, r.Status)
	set(&l.AssignedTo, r.AssignedTo)
	set(&l.SupportingDocs, r.SupportingDocs)

	if l.OrganizationID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "organization is required")
	}
	if l.Title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	if len([]rune(l.Title)) > maxTitleLen {
		return echo.NewHTTPError(http.StatusBadRequest, "title is too long")
	}
	if l.Severity == "" {
		l.Severity = ingest.SeverityMedium
	}
	if err := validDiscipline(l.Discipline); err != nil {
		return err
	}
	return validSeverity(l.Severity)
}

func validDiscipline(s string) error {
	if !ingest.ValidDiscipline(s) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("discipline must be one of: %s", strings.Join(ingest.Disciplines, ", ")))
	}
	return nil
}

func validSeverity(s string) error {
	if !ingest.ValidSeverity(s) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("severity must be one of: %s", strings.Join(ingest.Severities, ", ")))
	}
	return nil
}

func (s *Server) handleListLessons(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	org, err := orgQuery(c)
	if err != nil {
		return err
	}
	lessons, err := s.store.ListLessons(c.Request().Context(), uid, db.LessonFilter{
		OrganizationID: org,
		Discipline:     c.QueryParam("discipline"),
		Severity:       c.QueryParam("severity"),
		WorkType:       c.QueryParam("work_type"),
		Search:         c.QueryParam("search"),
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, lessons)
}

func (s *Server) handleCreateLesson(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req lessonRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	l := models.Lesson{CreatedBy: &uid}
	if err := req.apply(&l); err != nil {
		return err
	}
	created, err := s.store.CreateLesson(c.Request().Context(), uid, l)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) handleGetLesson(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "lesson")
	if err != nil {
		return err
	}
	l, err := s.store.GetLesson(c.Request().Context(), uid, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (s *Server) handleUpdateLesson(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "lesson")
	if err != nil {
		return err
	}
	var req lessonRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}

	ctx := c.Request().Context()
	l, err := s.store.GetLesson(ctx, uid, id)
	if err != nil {
		return s.respondError(c, err)
	}
	if err := req.apply(l); err != nil {
		return err
	}
	updated, err := s.store.UpdateLesson(ctx, uid, *l)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) handleDeleteLesson(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "lesson")
	if err != nil {
		return err
	}
	if err := s.store.DeleteLesson(c.Request().Context(), uid, id); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLessonStats(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	org, err := orgQuery(c)
	if err != nil {
		return err
	}
	stats, err := s.store.LessonStats(c.Request().Context(), uid, org, s.now())
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

type bulkRequest struct {
	IDs    []string          `json:"ids"`
	Fields map[string]string `json:"fields"`
}

// parseIDs converts ids, reporting unparseable ones the same way as ids
// the caller does not own.
func parseIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "ids list is required")
	}
	ids := make([]uuid.UUID, 0, len(raw))
	var bad []string
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			bad = append(bad, r)
			continue
		}
		ids = append(ids, id)
	}
	if len(bad) > 0 {
		return nil, &db.MissingIDsError{IDs: bad}
	}
	return ids, nil
}

func (s *Server) handleBulkDelete(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "ids list is required")
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		return s.bulkError(c, err)
	}
	n, err := s.store.BulkDeleteLessons(c.Request().Context(), uid, ids)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) handleBulkUpdate(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req bulkRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "ids list is required")
	}
	if len(req.IDs) == 0 {
		return errorJSON(c, http.StatusBadRequest, "ids list is required")
	}
	if len(req.Fields) == 0 {
		return errorJSON(c, http.StatusBadRequest, "fields dict is required")
	}
	if err := db.ValidateBulkFields(req.Fields); err != nil {
		return s.respondError(c, err)
	}
	if sev, ok := req.Fields["severity"]; ok {
		if err := validSeverity(sev); err != nil {
			return err
		}
	}
	if err := validDiscipline(req.Fields["discipline"]); err != nil {
		return err
	}
	ids, err := parseIDs(req.IDs)
	if err != nil {
		return s.bulkError(c, err)
	}
	n, err := s.store.BulkUpdateLessons(c.Request().Context(), uid, ids, req.Fields)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) bulkError(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return err
	}
	return s.respondError(c, err)
}

type importResponse struct {
	Imported    int    `json:"imported"`
	TotalInFile int    `json:"total_in_file"`
	Filename    string `json:"filename"`
}

func (s *Server) handleImportLessons(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	orgID, err := requiredID(c.FormValue("organization"), "organization")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if _, err := s.store.GetOrganization(ctx, uid, orgID); err != nil {
		return s.respondError(c, err)
	}

	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	format, err := ingest.FormatFromFilename(filename)
	if err != nil {
		return s.respondError(c, err)
	}

	records, err := ingest.Import(data, format, ingest.Options{WorkType: strings.TrimSpace(c.FormValue("work_type"))})
	if s.metrics != nil {
		s.metrics.RecordImport(string(format), len(records), err)
	}
	if err != nil {
		s.logger.Warn("lesson import rejected", zap.String("filename", filename), zap.Error(err))
		return s.respondError(c, err)
	}
	if len(records) == 0 {
		return errorJSON(c, http.StatusBadRequest, "No valid lessons found in file")
	}

	lessons := make([]models.Lesson, len(records))
	for i, r := range records {
		lessons[i] = models.LessonFromRecord(orgID, &uid, r)
	}
	n, err := s.store.InsertLessons(ctx, lessons)
	if err != nil {
		return s.respondError(c, err)
	}
	s.logger.Info("lessons imported",
		zap.String("filename", filename),
		zap.String("format", string(format)),
		zap.Int("imported", n),
	)
	return c.JSON(http.StatusOK, importResponse{Imported: n, TotalInFile: len(records), Filename: filename})
}

// readUpload returns the "file" form part.
func readUpload(c echo.Context) (string, []byte, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", nil, echo.NewHTTPError(http.StatusBadRequest, "No file uploaded")
	}
	if fh.Size > maxUploadBytes {
		return "", nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return fh.Filename, data, nil
}
