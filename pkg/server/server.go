package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/ziflex/lecho/v3"

	"github.com/go-go-golems/swaperoo/pkg/bluegreen"
	"github.com/go-go-golems/swaperoo/pkg/errs"
	"github.com/go-go-golems/swaperoo/pkg/es"
	"github.com/go-go-golems/swaperoo/pkg/session"
)

// Server is the HTTP surface. It translates requests into control-plane
// calls and holds no state of its own.
type Server struct {
	echo         *echo.Echo
	gateway      *es.Gateway
	coordinator  *bluegreen.Coordinator
	sessions     *session.Manager
	defaultAlias string
}

func New(
	gateway *es.Gateway,
	coordinator *bluegreen.Coordinator,
	sessions *session.Manager,
	defaultAlias string,
) *Server {
	s := &Server{
		echo:         echo.New(),
		gateway:      gateway,
		coordinator:  coordinator,
		sessions:     sessions,
		defaultAlias: defaultAlias,
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true

	logger := lecho.From(log.Logger)
	s.echo.Logger = logger
	s.echo.Use(lecho.Middleware(lecho.Config{Logger: logger}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit("100M"))

	s.routes()
	return s
}

func (s *Server) routes() {
	g := s.echo.Group("/api/v1/products")

	g.POST("/batch/:sessionId/process", s.processBatch)
	g.POST("/batch/:sessionId/complete", s.completeSession)
	g.POST("/batch/:sessionId/cancel", s.cancelSession)
	g.GET("/batch/:sessionId/status", s.sessionStatus)
	g.GET("/batch/active", s.activeSessions)

	g.POST("/search/text", s.searchText)
	g.POST("/search/criteria", s.searchCriteria)

	g.GET("/health", s.healthCheck)

	g.POST("/:alias/batch/start", s.startSession)
	g.POST("/:alias/promote", s.promote)
	g.GET("/:alias/status", s.aliasStatus)
	g.GET("/:alias/schema", s.aliasSchema)

	g.GET("/:productId", s.getProduct)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// respondError maps the error kind taxonomy onto HTTP statuses.
func respondError(c echo.Context, err error) error {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindInvalidArgument, errs.KindConflict, errs.KindPreconditionFailed:
		status = http.StatusBadRequest
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindTimeout, errs.KindCluster:
		status = http.StatusInternalServerError
	}
	return c.JSON(status, errorResponse{Error: err.Error(), Kind: kind.String()})
}
