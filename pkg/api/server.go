// Package api is the HTTP surface: run lifecycle endpoints, the WebSocket
// event stream, health, and metrics, with identity-based rate limiting on
// every API route.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IShalkin/manoe-sub005/pkg/database"
	"github.com/IShalkin/manoe-sub005/pkg/events"
	"github.com/IShalkin/manoe-sub005/pkg/metrics"
	"github.com/IShalkin/manoe-sub005/pkg/orchestrator"
	"github.com/IShalkin/manoe-sub005/pkg/ratelimit"
)

// ExpensivePaths selects the tighter rate-limit window; generation starts
// fan out dozens of model calls per request.
var ExpensivePaths = []string{"/api/v1/generate"}

// Server wires the orchestrator and event stream to HTTP.
type Server struct {
	orch      *orchestrator.Orchestrator
	streamer  *events.Streamer
	gate      *ratelimit.Gate
	db        *database.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
	wsOrigins []string

	engine  *gin.Engine
	httpSrv *http.Server
}

// NewServer builds the server and its routes. gate and db may be nil for
// tests and local runs; the corresponding features degrade gracefully.
func NewServer(orch *orchestrator.Orchestrator, streamer *events.Streamer, gate *ratelimit.Gate, db *database.Client, m *metrics.Metrics, wsOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	s := &Server{
		orch:      orch,
		streamer:  streamer,
		gate:      gate,
		db:        db,
		metrics:   m,
		logger:    logger,
		wsOrigins: wsOrigins,
	}
	s.engine = s.buildRoutes()
	return s
}

func (s *Server) buildRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1", s.rateLimit())
	v1.POST("/generate", s.startGeneration)
	v1.GET("/runs", s.listRuns)
	v1.GET("/runs/:id", s.getStatus)
	v1.POST("/runs/:id/pause", s.pauseRun)
	v1.POST("/runs/:id/resume", s.resumeRun)
	v1.POST("/runs/:id/cancel", s.cancelRun)
	v1.GET("/runs/:id/stream", s.streamEvents)
	return r
}

// Handler exposes the router, used by tests and by Start.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
