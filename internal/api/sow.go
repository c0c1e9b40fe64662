package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/david/lessons-learned/internal/ai"
	"github.com/david/lessons-learned/internal/analysis"
	"github.com/david/lessons-learned/internal/db"
	"github.com/david/lessons-learned/internal/export"
	"github.com/david/lessons-learned/internal/ingest"
	"github.com/david/lessons-learned/internal/models"
)

func (s *Server) handleListAnalyses(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	org, err := orgQuery(c)
	if err != nil {
		return err
	}
	analyses, err := s.store.ListAnalyses(c.Request().Context(), uid, org)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, analyses)
}

func (s *Server) handleGetAnalysis(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "analysis")
	if err != nil {
		return err
	}
	a, err := s.store.GetAnalysis(c.Request().Context(), uid, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// orgCorpus loads an owned organization with every lesson in it.
func (s *Server) orgCorpus(ctx context.Context, uid, orgID uuid.UUID) (*models.Organization, []models.Lesson, error) {
	org, err := s.store.GetOrganization(ctx, uid, orgID)
	if err != nil {
		return nil, nil, err
	}
	lessons, err := s.store.ListLessons(ctx, uid, db.LessonFilter{OrganizationID: &org.ID})
	if err != nil {
		return nil, nil, err
	}
	return org, lessons, nil
}

func profileOf(org *models.Organization) analysis.OrgProfile {
	return analysis.OrgProfile{Name: org.Name, ProfileText: org.ProfileText}
}

type analyzeRequest struct {
	Organization string `json:"organization"`
	SOWText      string `json:"sow_text"`
	WorkType     string `json:"work_type"`
	Filename     string `json:"filename"`
}

func (s *Server) handleAnalyzeSOW(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	orgID, err := requiredID(req.Organization, "organization")
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.SOWText) == "" {
		return errorJSON(c, http.StatusBadRequest, "sow_text is required")
	}

	ctx := c.Request().Context()
	org, lessons, err := s.orgCorpus(ctx, uid, orgID)
	if err != nil {
		return s.respondError(c, err)
	}

	result, err := s.analyzer.AnalyzeSOW(ctx, req.SOWText, req.WorkType, lessons, profileOf(org))
	if err != nil {
		return s.respondError(c, err)
	}
	doc, err := result.Document()
	if err != nil {
		return s.respondError(c, err)
	}

	saved, err := s.store.CreateAnalysis(ctx, models.SOWAnalysis{
		OrganizationID: org.ID,
		Filename:       req.Filename,
		SOWText:        req.SOWText,
		WorkType:       req.WorkType,
		Results:        doc,
		CreatedBy:      &uid,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": saved.ID, "results": doc})
}

type deliverableRequest struct {
	AnalysisID      string          `json:"analysis_id"`
	DeliverableType string          `json:"deliverable_type"`
	Params          json.RawMessage `json:"params"`
}

func (s *Server) handleGenerateDeliverable(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req deliverableRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	analysisID, err := requiredID(req.AnalysisID, "analysis_id")
	if err != nil {
		return err
	}
	dt, err := analysis.ParseDeliverableType(req.DeliverableType)
	if err != nil {
		return s.respondError(c, err)
	}

	ctx := c.Request().Context()
	a, err := s.store.GetAnalysis(ctx, uid, analysisID)
	if err != nil {
		return s.respondError(c, err)
	}
	org, lessons, err := s.orgCorpus(ctx, uid, a.OrganizationID)
	if err != nil {
		return s.respondError(c, err)
	}
	actx, err := analysis.BuildContext(*a, lessons, profileOf(org))
	if err != nil {
		return s.respondError(c, fmt.Errorf("rebuild analysis context: %w", err))
	}

	d, err := s.analyzer.Generate(ctx, dt, actx, req.Params)
	if err != nil {
		return s.respondError(c, err)
	}
	if err := s.store.SaveDeliverable(ctx, uid, a.ID, string(dt), d); err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"deliverable_type": dt, "content": d})
}

func (s *Server) handleUploadSOW(c echo.Context) error {
	if _, err := userID(c); err != nil {
		return err
	}
	filename, data, err := readUpload(c)
	if err != nil {
		return err
	}
	text, err := ingest.ExtractSOWText(filename, data)
	if err != nil {
		s.logger.Warn("scope document rejected", zap.String("filename", filename), zap.Error(err))
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"text":     text,
		"filename": filename,
		"length":   utf8.RuneCountInString(text),
	})
}

type exportRequest struct {
	AnalysisID string `json:"analysis_id"`
}

func (s *Server) handleExportSOW(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req exportRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	analysisID, err := requiredID(req.AnalysisID, "analysis_id")
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	a, err := s.store.GetAnalysis(ctx, uid, analysisID)
	if err != nil {
		return s.respondError(c, err)
	}
	lessons, err := s.store.ListLessons(ctx, uid, db.LessonFilter{OrganizationID: &a.OrganizationID})
	if err != nil {
		return s.respondError(c, err)
	}
	data, err := export.Workbook(*a, lessons)
	if err != nil {
		return s.respondError(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, export.Filename(a.Filename)))
	return c.Blob(http.StatusOK, export.ContentType, data)
}

type chatRequest struct {
	Organization string       `json:"organization"`
	Message      string       `json:"message"`
	History      []ai.Message `json:"history"`
}

func (s *Server) handleChat(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	orgID, err := requiredID(req.Organization, "organization")
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Message) == "" {
		return errorJSON(c, http.StatusBadRequest, "message is required")
	}

	ctx := c.Request().Context()
	org, lessons, err := s.orgCorpus(ctx, uid, orgID)
	if err != nil {
		return s.respondError(c, err)
	}
	reply, err := s.analyzer.Chat(ctx, req.Message, req.History, lessons, profileOf(org))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"response": reply})
}
