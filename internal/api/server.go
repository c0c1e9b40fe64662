package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/analysis"
	"github.com/david/lessons-learned/internal/auth"
	"github.com/david/lessons-learned/internal/db"
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/logger"
	"github.com/david/lessons-learned/internal/metrics"
	"github.com/david/lessons-learned/internal/models"
)

// maxUploadBytes bounds spreadsheet and scope document uploads.
const maxUploadBytes = 25 << 20

// Store is the storage collaborator the handlers depend on. *db.Store satisfies it.
type Store interface {
	CreateOrganization(ctx context.Context, userID uuid.UUID, name, profileText string) (*models.Organization, error)
	GetOrganization(ctx context.Context, userID, id uuid.UUID) (*models.Organization, error)
	ListOrganizations(ctx context.Context, userID uuid.UUID) ([]models.Organization, error)
	UpdateOrganization(ctx context.Context, userID, id uuid.UUID, upd db.OrganizationUpdate) (*models.Organization, error)
	DeleteOrganization(ctx context.Context, userID, id uuid.UUID) error

	ListLessons(ctx context.Context, userID uuid.UUID, f db.LessonFilter) ([]models.Lesson, error)
	GetLesson(ctx context.Context, userID, id uuid.UUID) (*models.Lesson, error)
	CreateLesson(ctx context.Context, userID uuid.UUID, l models.Lesson) (*models.Lesson, error)
	UpdateLesson(ctx context.Context, userID uuid.UUID, l models.Lesson) (*models.Lesson, error)
	DeleteLesson(ctx context.Context, userID, id uuid.UUID) error
	InsertLessons(ctx context.Context, lessons []models.Lesson) (int, error)
	BulkDeleteLessons(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error)
	BulkUpdateLessons(ctx context.Context, userID uuid.UUID, ids []uuid.UUID, fields map[string]string) (int, error)
	LessonStats(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID, now time.Time) (*db.LessonStats, error)

	CreateAnalysis(ctx context.Context, a models.SOWAnalysis) (*models.SOWAnalysis, error)
	GetAnalysis(ctx context.Context, userID, id uuid.UUID) (*models.SOWAnalysis, error)
	ListAnalyses(ctx context.Context, userID uuid.UUID, orgID *uuid.UUID) ([]models.SOWAnalysis, error)
	SaveDeliverable(ctx context.Context, userID, analysisID uuid.UUID, deliverableType string, doc any) error
}

// Authenticator signs users up and in. *auth.Service satisfies it.
type Authenticator interface {
	Signup(ctx context.Context, req auth.SignupRequest) (*auth.AuthResponse, error)
	Login(ctx context.Context, req auth.LoginRequest) (*auth.AuthResponse, error)
}

// Options wires a Server.
type Options struct {
	Store       Store
	Auth        Authenticator
	Analyzer    *analysis.Analyzer
	JWTSecret   []byte
	CORSOrigins []string
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	// Now is the clock used for stats windows; nil means time.Now.
	Now func() time.Time
}

type Server struct {
	Echo     *echo.Echo
	store    Store
	auth     Authenticator
	analyzer *analysis.Analyzer
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewServer(opts Options) *Server {
	log := logger.OrNop(opts.Logger)
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(logger.RequestLogger(log))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("30M"))

	allowedOrigins := opts.CORSOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:4200"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		Echo:     e,
		store:    opts.Store,
		auth:     opts.Auth,
		analyzer: opts.Analyzer,
		logger:   log,
		metrics:  opts.Metrics,
		now:      now,
	}
	e.HTTPErrorHandler = s.handleHTTPError
	s.routes(opts.JWTSecret)
	return s
}

func (s *Server) routes(secret []byte) {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	p := api.Group("")
	p.Use(auth.Middleware(secret))

	p.GET("/organizations", s.handleListOrganizations)
	p.POST("/organizations", s.handleCreateOrganization)
	p.GET("/organizations/:id", s.handleGetOrganization)
	p.PATCH("/organizations/:id", s.handleUpdateOrganization)
	p.DELETE("/organizations/:id", s.handleDeleteOrganization)

	p.GET("/lessons", s.handleListLessons)
	p.POST("/lessons", s.handleCreateLesson)
	p.GET("/lessons/stats", s.handleLessonStats)
	p.POST("/lessons/bulk-delete", s.handleBulkDelete)
	p.POST("/lessons/bulk-update", s.handleBulkUpdate)
	p.POST("/lessons/import", s.handleImportLessons)
	p.GET("/lessons/:id", s.handleGetLesson)
	p.PUT("/lessons/:id", s.handleUpdateLesson)
	p.PATCH("/lessons/:id", s.handleUpdateLesson)
	p.DELETE("/lessons/:id", s.handleDeleteLesson)

	p.GET("/sow-analyses", s.handleListAnalyses)
	p.GET("/sow-analyses/:id", s.handleGetAnalysis)
	p.POST("/sow/analyze", s.handleAnalyzeSOW)
	p.POST("/sow/upload", s.handleUploadSOW)
	p.POST("/sow/export", s.handleExportSOW)
	p.POST("/deliverables", s.handleGenerateDeliverable)
	p.POST("/chat", s.handleChat)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// errorStatus maps a domain error to its HTTP status.
func errorStatus(err error) int {
	var missing *db.MissingIDsError
	var invalid *db.InvalidFieldsError
	switch {
	case errors.Is(err, ingest.ErrUnsupportedFormat),
		errors.Is(err, ingest.ErrNoDataRows),
		errors.Is(err, ingest.ErrMalformedFile),
		errors.Is(err, analysis.ErrUnknownDeliverable),
		errors.Is(err, analysis.ErrInvalidParams),
		errors.Is(err, auth.ErrInvalidInput),
		errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &missing):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCreds):
		return http.StatusUnauthorized
	case analysis.Retryable(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...} for err. Upstream failures add
// "retryable": true; unexpected errors are logged and hidden.
func (s *Server) respondError(c echo.Context, err error) error {
	status := errorStatus(err)
	switch {
	case status == http.StatusBadGateway:
		return c.JSON(status, map[string]any{"error": err.Error(), "retryable": true})
	case status == http.StatusUnauthorized:
		return errorJSON(c, status, "Invalid credentials")
	case errors.Is(err, ai.ErrNotConfigured):
		return errorJSON(c, status, err.Error())
	case status == http.StatusInternalServerError:
		s.logger.Error("request failed",
			zap.String("method", c.Request().Method),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return errorJSON(c, status, "Internal Server Error")
	}
	return errorJSON(c, status, err.Error())
}

func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = errorJSON(c, he.Code, fmt.Sprint(he.Message))
		return
	}
	_ = s.respondError(c, err)
}

func userID(c echo.Context) (uuid.UUID, error) {
	id, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	}
	return id, nil
}

func pathID(c echo.Context, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid %s ID", what))
	}
	return id, nil
}

// orgQuery parses the optional ?org= filter.
func orgQuery(c echo.Context) (*uuid.UUID, error) {
	raw := c.QueryParam("org")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid org ID")
	}
	return &id, nil
}

// requiredID parses a required uuid body field.
func requiredID(raw, field string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, field+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+field)
	}
	return id, nil
}
