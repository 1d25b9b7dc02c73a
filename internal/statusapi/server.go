// Package statusapi provides the optional HTTP status server for a
// dnsperf run: live aggregate stats while a run is in progress, and the
// archived run history once runs have been persisted via -A.
package statusapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/jroosing/dnsperf/internal/archive"
)

// StatsProvider supplies the live snapshot the /stats endpoint reports.
// cmd/dnsperf supplies one built on engine.LiveSummary over the in-flight workers.
type StatsProvider func() Snapshot

// Snapshot is the live, in-progress aggregate exposed over HTTP while a
// run executes (spec.md §4.8's aggregate fields, sampled mid-run rather
// than after join).
type Snapshot struct {
	NumSent        uint64 `json:"num_sent"`
	NumCompleted   uint64 `json:"num_completed"`
	NumTimedOut    uint64 `json:"num_timed_out"`
	NumInterrupted uint64 `json:"num_interrupted"`
	LatencyAvgUs   float64 `json:"latency_avg_us"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Server is the status API's HTTP server, grounded on the teacher's
// internal/api.Server: a Gin engine wrapped in a *http.Server with a
// timeouts-configured listener.
type Server struct {
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds a status server bound to addr. archiveStore may be nil
// when -A was not given, in which case /api/v1/runs returns an empty
// list rather than erroring.
func New(addr string, stats StatsProvider, archiveStore *archive.Store, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(slogRequestLogger(logger))

	h := &handler{stats: stats, archiveStore: archiveStore, startTime: time.Now()}
	registerRoutes(engine, h)

	return &Server{
		logger: logger,
		engine: engine,
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *Server) Addr() string { return s.httpServer.Addr }

// Handler exposes the underlying router directly, for tests driving
// requests through httptest without binding a real listener.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }

func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

func registerRoutes(r *gin.Engine, h *handler) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.GET("/health", h.health)
	api.GET("/stats", h.getStats)
	api.GET("/runs", h.listRuns)
}

// slogRequestLogger logs each request through logger at Info level,
// the Gin middleware analogue of internal/api/middleware.SlogRequestLogger.
func slogRequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
