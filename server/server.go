// Package server exposes the pipeline over HTTP: project CRUD, message
// submission, workflow status polling and a per-project SSE stream of agent
// response events. Handlers are thin; all logic lives in store and workflow.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/devteam-ai/devteam/core"
	"github.com/devteam-ai/devteam/logging"
	"github.com/devteam-ai/devteam/store"
	"github.com/devteam-ai/devteam/workflow"
)

// Options configure the Server.
type Options struct {
	Logger logging.Logger
}

// Server is the HTTP front door.
type Server struct {
	echo    *echo.Echo
	store   *store.Store
	manager *workflow.Manager
	logger  logging.Logger
}

// New creates a Server and registers its routes.
func New(s *store.Store, manager *workflow.Manager, optFns ...func(o *Options)) *Server {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	srv := &Server{
		echo:    e,
		store:   s,
		manager: manager,
		logger:  logging.OrNoOp(opts.Logger),
	}

	api := e.Group("/api")
	api.GET("/health", srv.health)
	api.POST("/projects", srv.createProject)
	api.DELETE("/projects/:id", srv.deleteProject)
	api.GET("/projects/:id/messages", srv.listMessages)
	api.GET("/projects/:id/artifacts", srv.listArtifacts)
	api.GET("/projects/:id/workflow", srv.projectWorkflow)
	api.GET("/projects/:id/events", srv.streamEvents)
	api.POST("/messages", srv.submitMessage)
	api.GET("/workflows/:id", srv.workflowStatus)

	return srv
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("http server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type createProjectRequest struct {
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) createProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	projectID := s.store.CreateProject(req.Name, req.Metadata)
	return c.JSON(http.StatusCreated, map[string]string{"projectId": projectID})
}

func (s *Server) deleteProject(c echo.Context) error {
	if !s.store.DeleteProject(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listMessages(c echo.Context) error {
	projectID := c.Param("id")
	if !s.store.HasProject(projectID) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
	}
	return c.JSON(http.StatusOK, s.store.GetConversation(projectID, limit))
}

func (s *Server) listArtifacts(c echo.Context) error {
	projectID := c.Param("id")
	if !s.store.HasProject(projectID) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}
	if typ := c.QueryParam("type"); typ != "" {
		return c.JSON(http.StatusOK, s.store.GetArtifactsByType(projectID, core.ArtifactType(typ)))
	}
	return c.JSON(http.StatusOK, s.store.GetArtifacts(projectID))
}

type submitMessageRequest struct {
	ProjectID string `json:"projectId"`
	Message   string `json:"message"`
}

func (s *Server) submitMessage(c echo.Context) error {
	var req submitMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	run, err := s.manager.Start(c.Request().Context(), req.ProjectID, req.Message)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "project not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{
		"projectId":  run.ProjectID,
		"messageId":  run.MessageID,
		"workflowId": run.WorkflowID,
	})
}

func (s *Server) workflowStatus(c echo.Context) error {
	view, ok := s.manager.Status(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) projectWorkflow(c echo.Context) error {
	view, ok := s.manager.StatusByProject(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no workflow for project")
	}
	return c.JSON(http.StatusOK, view)
}

// streamEvents serves the project's agent response events as SSE until the
// client disconnects.
func (s *Server) streamEvents(c echo.Context) error {
	projectID := c.Param("id")
	if !s.store.HasProject(projectID) {
		return echo.NewHTTPError(http.StatusNotFound, "project not found")
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	events, cancel := s.manager.Hub().Subscribe(projectID)
	defer cancel()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}
