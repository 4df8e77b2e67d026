// Package httpapi exposes the tutoring core over HTTP.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tutord/internal/ingest"
	"github.com/fyrsmithlabs/tutord/internal/search"
	"github.com/fyrsmithlabs/tutord/internal/tutor"
	"github.com/fyrsmithlabs/tutord/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server routes HTTP requests to the tutoring core.
type Server struct {
	echo     *echo.Echo
	pipeline *ingest.Pipeline
	searcher *search.Service
	tutor    *tutor.Service
	chatter  tutor.Chatter
	store    vectorstore.Store
	logger   *zap.Logger
	config   Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(
	cfg Config,
	pipeline *ingest.Pipeline,
	searcher *search.Service,
	tutorSvc *tutor.Service,
	chatter tutor.Chatter,
	store vectorstore.Store,
	logger *zap.Logger,
) (*Server, error) {
	if pipeline == nil || searcher == nil || tutorSvc == nil || chatter == nil || store == nil {
		return nil, fmt.Errorf("all core services are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		pipeline: pipeline,
		searcher: searcher,
		tutor:    tutorSvc,
		chatter:  chatter,
		store:    store,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleIngest)
	v1.POST("/documents/bulk", s.handleBulkIngest)
	v1.GET("/documents", s.handleListDocuments)
	v1.GET("/documents/:id", s.handleGetDocument)
	v1.PATCH("/documents/:id", s.handleUpdateDocument)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)

	v1.GET("/search", s.handleSearch)
	v1.GET("/search/topic", s.handleSearchByTopic)

	v1.POST("/chat", s.handleChat)
	v1.POST("/tutor", s.handleTutor)
	v1.POST("/quiz", s.handleQuiz)
	v1.POST("/grade", s.handleGrade)

	v1.GET("/stats", s.handleStats)
}

// Start begins serving. Blocks until shutdown or failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// httpError maps core errors onto HTTP status codes.
func httpError(err error) *echo.HTTPError {
	switch {
	case isValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case isNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case isMalformedOutput(err):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case isExhausted(err):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
