package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/lessons-learned/internal/db"
)

const maxOrgNameLen = 255

type organizationRequest struct {
	Name        *string `json:"name"`
	ProfileText *string `json:"profile_text"`
}

func (r *organizationRequest) validate(create bool) error {
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		r.Name = &name
	}
	switch {
	case create && (r.Name == nil || *r.Name == ""):
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	case r.Name != nil && *r.Name == "":
		return echo.NewHTTPError(http.StatusBadRequest, "name cannot be blank")
	case r.Name != nil && len([]rune(*r.Name)) > maxOrgNameLen:
		return echo.NewHTTPError(http.StatusBadRequest, "name is too long")
	}
	return nil
}

func (s *Server) handleListOrganizations(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	orgs, err := s.store.ListOrganizations(c.Request().Context(), uid)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, orgs)
}

func (s *Server) handleCreateOrganization(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var req organizationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	if err := req.validate(true); err != nil {
		return err
	}
	var profile string
	if req.ProfileText != nil {
		profile = *req.ProfileText
	}
	org, err := s.store.CreateOrganization(c.Request().Context(), uid, *req.Name, profile)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusCreated, org)
}

func (s *Server) handleGetOrganization(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "organization")
	if err != nil {
		return err
	}
	org, err := s.store.GetOrganization(c.Request().Context(), uid, id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, org)
}

func (s *Server) handleUpdateOrganization(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "organization")
	if err != nil {
		return err
	}
	var req organizationRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	if err := req.validate(false); err != nil {
		return err
	}
	org, err := s.store.UpdateOrganization(c.Request().Context(), uid, id, db.OrganizationUpdate{
		Name:        req.Name,
		ProfileText: req.ProfileText,
	})
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(http.StatusOK, org)
}

func (s *Server) handleDeleteOrganization(c echo.Context) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "organization")
	if err != nil {
		return err
	}
	if err := s.store.DeleteOrganization(c.Request().Context(), uid, id); err != nil {
		return s.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
