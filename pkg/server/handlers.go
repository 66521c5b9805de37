package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/session"
)

func (s *Server) startSession(c echo.Context) error {
	alias := c.Param("alias")

	strategy, err := bluegreen.ParseStrategy(c.QueryParam("strategy"))
	if err != nil {
		return respondError(c, err)
	}

	estimatedTotal := 0
	if raw := c.QueryParam("estimatedTotal"); raw != "" {
		estimatedTotal, err = strconv.Atoi(raw)
		if err != nil || estimatedTotal < 0 {
			return respondError(c, errs.New(errs.KindInvalidArgument,
				"estimatedTotal must be a non-negative integer"))
		}
	}

	sess, err := s.sessions.Start(c.Request().Context(), alias, strategy, estimatedTotal)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) processBatch(c echo.Context) error {
	sessionID := c.Param("sessionId")

	var docs []bluegreen.Document
	if err := c.Bind(&docs); err != nil {
		return respondError(c, errs.New(errs.KindInvalidArgument,
			"request body must be a JSON array of documents"))
	}

	result, err := s.sessions.ProcessBatch(c.Request().Context(), sessionID, docs)
	if err != nil {
		return respondError(c, err)
	}
	// per-document failures are reported in the body, not as an HTTP error
	return c.JSON(http.StatusOK, result)
}

func (s *Server) completeSession(c echo.Context) error {
	state, err := s.sessions.Complete(c.Request().Context(), c.Param("sessionId"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) cancelSession(c echo.Context) error {
	if err := s.sessions.Cancel(c.Request().Context(), c.Param("sessionId")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) sessionStatus(c echo.Context) error {
	sess, ok := s.sessions.Get(c.Param("sessionId"))
	if !ok {
		return respondError(c, errs.New(errs.KindNotFound,
			"session %s not found", c.Param("sessionId")))
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) activeSessions(c echo.Context) error {
	active := s.sessions.ListActive()
	if active == nil {
		active = []*session.Session{}
	}
	return c.JSON(http.StatusOK, active)
}

type promoteResponse struct {
	Success        bool   `json:"success"`
	Alias          string `json:"alias"`
	NewActiveIndex string `json:"newActiveIndex"`
	Message        string `json:"message"`
}

func (s *Server) promote(c echo.Context) error {
	alias := c.Param("alias")
	targetIndex := c.QueryParam("targetIndex")
	ctx := c.Request().Context()

	if err := bluegreen.ValidateAlias(alias); err != nil {
		return respondError(c, err)
	}
	if targetIndex == "" {
		return respondError(c, errs.New(errs.KindInvalidArgument,
			"targetIndex query parameter is required"))
	}

	exists, err := s.coordinator.Lifecycle().Exists(ctx, targetIndex)
	if err != nil {
		return respondError(c, err)
	}
	if !exists {
		return respondError(c, errs.New(errs.KindNotFound,
			"target index %s not found", targetIndex))
	}

	if _, err := s.coordinator.Registry().Swap(ctx, alias, targetIndex, false); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, promoteResponse{
		Success:        true,
		Alias:          alias,
		NewActiveIndex: targetIndex,
		Message:        "alias " + alias + " now points at " + targetIndex,
	})
}

type aliasStatusResponse struct {
	Alias       string          `json:"alias"`
	Exists      bool            `json:"exists"`
	ActiveIndex string          `json:"activeIndex,omitempty"`
	ActiveColor bluegreen.Color `json:"activeColor,omitempty"`
	Indices     []string        `json:"indices"`
}

func (s *Server) aliasStatus(c echo.Context) error {
	alias := c.Param("alias")
	ctx := c.Request().Context()

	if err := bluegreen.ValidateAlias(alias); err != nil {
		return respondError(c, err)
	}

	state, err := s.coordinator.GetStatus(ctx, alias)
	if err != nil {
		return respondError(c, err)
	}
	exists, err := s.coordinator.Registry().Exists(ctx, alias)
	if err != nil {
		return respondError(c, err)
	}
	indices, err := s.gateway.GetIndices(ctx, alias+"_*")
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, aliasStatusResponse{
		Alias:       alias,
		Exists:      exists,
		ActiveIndex: state.ActiveIndex,
		ActiveColor: state.ActiveColor,
		Indices:     indices,
	})
}

func (s *Server) aliasSchema(c echo.Context) error {
	alias := c.Param("alias")
	ctx := c.Request().Context()

	if err := bluegreen.ValidateAlias(alias); err != nil {
		return respondError(c, err)
	}

	mappings, err := s.gateway.GetMappings(ctx, alias+"_*")
	if err != nil {
		return respondError(c, err)
	}
	indices := make([]string, 0, len(mappings))
	for name := range mappings {
		indices = append(indices, name)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"alias":    alias,
		"indices":  indices,
		"mappings": mappings,
	})
}

type healthResponse struct {
	API           string `json:"api"`
	Elasticsearch struct {
		Connected bool   `json:"connected"`
		Cluster   string `json:"cluster,omitempty"`
	} `json:"elasticsearch"`
}

func (s *Server) healthCheck(c echo.Context) error {
	resp := healthResponse{API: "ok"}

	info, err := s.gateway.Info(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusOK, resp)
	}
	resp.Elasticsearch.Connected = true
	resp.Elasticsearch.Cluster = info.ClusterName
	return c.JSON(http.StatusOK, resp)
}
