package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/analysis"
	"github.com/david/lessons-learned/internal/auth"
	"github.com/david/lessons-learned/internal/db"
	"github.com/david/lessons-learned/internal/export"
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/metrics"
	"github.com/david/lessons-learned/internal/models"
)

var testSecret = []byte("api-test-secret")

type harness struct {
	t     *testing.T
	srv   *Server
	store *memStore
	gen   *fakeGenerator
	user  uuid.UUID
	token string
	org   *models.Organization
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	user := uuid.New()
	store := newMemStore()
	gen := &fakeGenerator{}
	log := zaptest.NewLogger(t)
	m := metrics.Default()

	srv := NewServer(Options{
		Store:     store,
		Auth:      &fakeAuth{userID: user},
		Analyzer:  analysis.New(gen, analysis.Config{}, log, m),
		JWTSecret: testSecret,
		Logger:    log,
		Metrics:   m,
	})
	token, err := auth.GenerateToken(testSecret, user, time.Now())
	require.NoError(t, err)

	org, err := store.CreateOrganization(t.Context(), user, "Acme Pipeline", "Existing WPS library")
	require.NoError(t, err)

	return &harness{t: t, srv: srv, store: store, gen: gen, user: user, token: token, org: org}
}

func (h *harness) send(req *http.Request) *httptest.ResponseRecorder {
	if h.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+h.token)
	}
	rec := httptest.NewRecorder()
	h.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return h.send(req)
}

func (h *harness) upload(path, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(h.t, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("file", filename)
	require.NoError(h.t, err)
	_, err = part.Write(data)
	require.NoError(h.t, err)
	require.NoError(h.t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return h.send(req)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) addLesson(title, severity string) models.Lesson {
	h.t.Helper()
	l, err := h.store.CreateLesson(h.t.Context(), h.user, models.Lesson{
		OrganizationID: h.org.ID, Title: title, Severity: severity, Discipline: "Welding",
	})
	require.NoError(h.t, err)
	return *l
}

func TestHealthAndAuthRequired(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	h.token = ""
	rec = h.do(http.MethodGet, "/api/v1/lessons", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing Authorization header", decode(t, rec)["error"])
}

func TestSignupAndLogin(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name   string
		path   string
		body   map[string]string
		status int
	}{
		{"signup ok", "/api/v1/auth/signup", map[string]string{"email": "qa@example.com", "password": "longenough"}, http.StatusCreated},
		{"signup taken", "/api/v1/auth/signup", map[string]string{"email": "taken@example.com", "password": "longenough"}, http.StatusConflict},
		{"signup invalid", "/api/v1/auth/signup", map[string]string{"email": "nope", "password": "longenough"}, http.StatusBadRequest},
		{"login ok", "/api/v1/auth/login", map[string]string{"email": "qa@example.com", "password": "correct-horse"}, http.StatusOK},
		{"login bad", "/api/v1/auth/login", map[string]string{"email": "qa@example.com", "password": "wrong"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, "Invalid credentials", decode(t, rec)["error"])
			}
		})
	}
}

func TestOrganizationCRUD(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/organizations", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/organizations", map[string]string{"name": "Second", "profile_text": "ISO 9001"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = h.do(http.MethodPatch, "/api/v1/organizations/"+id, map[string]string{"profile_text": "ISO 9001 and CWI staff"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ISO 9001 and CWI staff", decode(t, rec)["profile_text"])
	assert.Equal(t, "Second", decode(t, rec)["name"])

	rec = h.do(http.MethodGet, "/api/v1/organizations/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/organizations/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodDelete, "/api/v1/organizations/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/organizations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var orgs []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orgs))
	assert.Len(t, orgs, 1)
}

func TestLessonCreateAndUpdate(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/lessons", map[string]string{"organization": h.org.ID.String(), "title": "x", "severity": "Extreme"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "severity must be one of: Critical, High, Medium, Low")

	rec = h.do(http.MethodPost, "/api/v1/lessons", map[string]string{"organization": h.org.ID.String(), "title": "x", "discipline": "Piping"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "discipline must be one of: Quality, Welding")

	rec = h.do(http.MethodPost, "/api/v1/lessons", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/lessons", map[string]string{"organization": h.org.ID.String(), "title": " Preheat skipped "})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode(t, rec)
	assert.Equal(t, "Preheat skipped", created["title"])
	assert.Equal(t, "Medium", created["severity"])

	id := created["id"].(string)
	rec = h.do(http.MethodPatch, "/api/v1/lessons/"+id, map[string]string{"discipline": "welding"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPatch, "/api/v1/lessons/"+id, map[string]string{"severity": "High"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "High", decode(t, rec)["severity"])
	assert.Equal(t, "Preheat skipped", decode(t, rec)["title"])

	rec = h.do(http.MethodGet, "/api/v1/lessons?severity=High", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var lessons []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &lessons))
	assert.Len(t, lessons, 1)

	rec = h.do(http.MethodGet, "/api/v1/lessons/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])

	rec = h.do(http.MethodDelete, "/api/v1/lessons/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.do(http.MethodGet, "/api/v1/lessons/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkOperations(t *testing.T) {
	h := newHarness(t)
	a := h.addLesson("One", "Low")
	b := h.addLesson("Two", "Low")

	tests := []struct {
		name    string
		path    string
		body    map[string]any
		status  int
		errPart string
	}{
		{"delete needs ids", "/api/v1/lessons/bulk-delete", map[string]any{"ids": []string{}}, http.StatusBadRequest, "ids list is required"},
		{"update needs fields", "/api/v1/lessons/bulk-update", map[string]any{"ids": []string{a.ID.String()}}, http.StatusBadRequest, "fields dict is required"},
		{"update disallowed field", "/api/v1/lessons/bulk-update", map[string]any{"ids": []string{a.ID.String()}, "fields": map[string]string{"title": "x"}}, http.StatusBadRequest, "Cannot bulk-update fields: [title]"},
		{"update bad discipline", "/api/v1/lessons/bulk-update", map[string]any{"ids": []string{a.ID.String()}, "fields": map[string]string{"discipline": "Piping"}}, http.StatusBadRequest, "discipline must be one of"},
		{"update unknown id", "/api/v1/lessons/bulk-update", map[string]any{"ids": []string{a.ID.String(), "bogus"}, "fields": map[string]string{"severity": "High"}}, http.StatusForbidden, "bogus"},
		{"delete foreign id", "/api/v1/lessons/bulk-delete", map[string]any{"ids": []string{uuid.NewString()}}, http.StatusForbidden, "Lessons not found or not authorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode(t, rec)["error"], tt.errPart)
		})
	}

	rec := h.do(http.MethodPost, "/api/v1/lessons/bulk-update", map[string]any{"ids": []string{a.ID.String(), b.ID.String()}, "fields": map[string]string{"severity": "High"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["updated"])

	rec = h.do(http.MethodPost, "/api/v1/lessons/bulk-delete", map[string]any{"ids": []string{a.ID.String()}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["deleted"])
	assert.Len(t, h.store.lessons, 1)
}

func TestImportLessons(t *testing.T) {
	h := newHarness(t)
	csv := "Situation,What Happened,Impact,Discipline\n" +
		"Cold morning. Crew skipped preheat,Crack found at RT,Two week delay,Welding\n" +
		",,,\n"

	rec := h.upload("/api/v1/lessons/import", "lessons.csv", []byte(csv), map[string]string{"organization": h.org.ID.String(), "work_type": "Facilities"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["imported"])
	assert.Equal(t, float64(1), body["total_in_file"])
	assert.Equal(t, "lessons.csv", body["filename"])

	require.Len(t, h.store.lessons, 1)
	for _, l := range h.store.lessons {
		assert.Equal(t, "Cold morning", l.Title)
		assert.Equal(t, "Facilities", l.WorkType)
		assert.Equal(t, "High", l.Severity)
		assert.Equal(t, h.org.ID, l.OrganizationID)
		assert.Equal(t, h.user, *l.CreatedBy)
	}

	metricsRec := h.do(http.MethodGet, "/metrics", nil)
	assert.Contains(t, metricsRec.Body.String(), `lessons_import_records_total{format="csv"}`)
}

func TestImportLessonsRejections(t *testing.T) {
	h := newHarness(t)
	org := map[string]string{"organization": h.org.ID.String()}

	tests := []struct {
		name     string
		filename string
		data     string
		fields   map[string]string
		status   int
		errPart  string
	}{
		{"no organization", "a.csv", "x", nil, http.StatusBadRequest, "organization is required"},
		{"foreign organization", "a.csv", "x", map[string]string{"organization": uuid.NewString()}, http.StatusNotFound, "not found"},
		{"unsupported type", "a.pdf", "x", org, http.StatusBadRequest, "unsupported file type"},
		{"header only", "a.csv", "Situation,Impact\n", org, http.StatusBadRequest, "no data rows"},
		{"nothing usable", "a.csv", "Situation,Impact\n,\n", org, http.StatusBadRequest, "No valid lessons found in file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.upload("/api/v1/lessons/import", tt.filename, []byte(tt.data), tt.fields)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, decode(t, rec)["error"], tt.errPart)
		})
	}
	assert.Empty(t, h.store.lessons)
}

func TestAnalyzeSOW(t *testing.T) {
	h := newHarness(t)
	lesson := h.addLesson("Preheat skipped", "High")
	h.gen.reply = fmt.Sprintf(`{"summary":"Mainline","matches":[{"lessonId":"%s","relevance":"High","reason":"cold"}],"gaps":["HDD"],"recommendations":["Brief WPS"]}`, lesson.ID)

	rec := h.do(http.MethodPost, "/api/v1/sow/analyze", map[string]string{"organization": h.org.ID.String()})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "sow_text is required", decode(t, rec)["error"])

	rec = h.do(http.MethodPost, "/api/v1/sow/analyze", map[string]string{
		"organization": h.org.ID.String(), "sow_text": "24in mainline, winter", "filename": "scope.docx",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	results := body["results"].(map[string]any)
	assert.Equal(t, "Mainline", results["summary"])
	assert.Len(t, results["matches"], 1)

	id := uuid.MustParse(body["id"].(string))
	stored := h.store.analyses[id]
	assert.Equal(t, "scope.docx", stored.Filename)
	assert.Equal(t, "Mainline", stored.Results["summary"])
}

func TestAnalyzeSOWUpstreamFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.err = fmt.Errorf("%w: status 529: overloaded", ai.ErrUpstream)

	rec := h.do(http.MethodPost, "/api/v1/sow/analyze", map[string]string{"organization": h.org.ID.String(), "sow_text": "scope"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["retryable"])
	assert.Contains(t, body["error"], "status 529")
	assert.Empty(t, h.store.analyses)
}

func (h *harness) seedAnalysis() models.SOWAnalysis {
	h.t.Helper()
	a, err := h.store.CreateAnalysis(h.t.Context(), models.SOWAnalysis{
		OrganizationID: h.org.ID,
		Filename:       "Line 5.docx",
		SOWText:        "24in mainline",
		Results: map[string]any{
			"summary":         "Mainline",
			"matches":         []any{},
			"gaps":            []any{"HDD"},
			"recommendations": []any{"Brief WPS"},
		},
	})
	require.NoError(h.t, err)
	return *a
}

func TestGenerateDeliverable(t *testing.T) {
	h := newHarness(t)
	a := h.seedAnalysis()

	rec := h.do(http.MethodPost, "/api/v1/deliverables", map[string]string{"analysis_id": a.ID.String(), "deliverable_type": "budget"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Must be one of")
	assert.Zero(t, h.gen.calls)

	rec = h.do(http.MethodPost, "/api/v1/deliverables", map[string]string{"analysis_id": uuid.NewString(), "deliverable_type": "risk_register"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.gen.reply = `{"risks":[{"id":"QR-001","category":"Welding"}],"summary":"One risk"}`
	rec = h.do(http.MethodPost, "/api/v1/deliverables", map[string]string{"analysis_id": a.ID.String(), "deliverable_type": "risk_register"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "risk_register", body["deliverable_type"])
	content := body["content"].(map[string]any)
	assert.Equal(t, "Risk Register", content["title"])
	assert.Equal(t, "One risk", content["summary"])
	assert.Contains(t, h.store.deliverables, a.ID.String()+"/risk_register")
	assert.Equal(t, 1, h.gen.calls)
}

func TestGenerateDeliverableTruncated(t *testing.T) {
	h := newHarness(t)
	a := h.seedAnalysis()
	h.gen.reply = "not json at all"

	rec := h.do(http.MethodPost, "/api/v1/deliverables", map[string]any{
		"analysis_id": a.ID.String(), "deliverable_type": "staffing_estimate", "params": map[string]any{"weld_count": 1200},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	content := decode(t, rec)["content"].(map[string]any)
	assert.Equal(t, "error", content["status"])
	assert.Equal(t, ai.TruncatedMessage, content["message"])
	assert.Equal(t, "Quality Staffing Estimate", content["title"])
}

func TestGenerateDeliverableBadParams(t *testing.T) {
	h := newHarness(t)
	a := h.seedAnalysis()

	tests := []struct {
		name   string
		params any
	}{
		{name: "conditions not a list", params: map[string]any{"special_conditions": "cold"}},
		{name: "params not an object", params: "24in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(http.MethodPost, "/api/v1/deliverables", map[string]any{
				"analysis_id": a.ID.String(), "deliverable_type": "staffing_estimate", "params": tt.params,
			})
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Contains(t, decode(t, rec)["error"], "invalid deliverable params")
		})
	}
	assert.Zero(t, h.gen.calls)
	assert.Empty(t, h.store.deliverables)
}

func TestUploadSOW(t *testing.T) {
	h := newHarness(t)

	rec := h.upload("/api/v1/sow/upload", "scope.txt", []byte("\xef\xbb\xbfInstall 24in pipe"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Install 24in pipe", body["text"])
	assert.Equal(t, "scope.txt", body["filename"])
	assert.Equal(t, float64(17), body["length"])

	rec = h.upload("/api/v1/sow/upload", "scope.rtf", []byte("x"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportSOW(t *testing.T) {
	h := newHarness(t)
	a := h.seedAnalysis()

	rec := h.do(http.MethodPost, "/api/v1/sow/export", map[string]string{"analysis_id": a.ID.String()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Line 5 - SOW Analysis.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = h.do(http.MethodPost, "/api/v1/sow/export", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "analysis_id is required", decode(t, rec)["error"])
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	h.addLesson("Preheat skipped", "High")
	h.gen.reply = "Check preheat logs."

	rec := h.do(http.MethodPost, "/api/v1/chat", map[string]any{
		"organization": h.org.ID.String(),
		"message":      "What welding risks do we have?",
		"history":      []map[string]string{{"role": "user", "content": "hi"}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Check preheat logs.", decode(t, rec)["response"])

	rec = h.do(http.MethodPost, "/api/v1/chat", map[string]any{"organization": h.org.ID.String(), "message": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, errorStatus(fmt.Errorf("analyze: %w", ai.ErrTimeout)))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(ai.ErrNotConfigured))
	assert.Equal(t, http.StatusForbidden, errorStatus(&db.MissingIDsError{IDs: []string{"x"}}))
	assert.Equal(t, http.StatusBadRequest, errorStatus(fmt.Errorf("import: %w", ingest.ErrNoDataRows)))
	assert.Equal(t, http.StatusBadRequest, errorStatus(fmt.Errorf("%w: staffing estimate", analysis.ErrInvalidParams)))
	assert.Equal(t, http.StatusInternalServerError, errorStatus(errors.New("boom")))
}
