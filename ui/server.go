package ui

import (
	"context"
	"log"
	"net/http"
	"time"

	"tamcal/app"
	"tamcal/internal/calibration"
	"tamcal/ports"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"
)

// Calibrator runs a full calibration
type Calibrator interface {
	Run(ctx context.Context, req app.CalibrationRequest) (*calibration.Run, error)
}

// Server serves stored fits, reports and ad-hoc simulations over HTTP
type Server struct {
	router   *gin.Engine
	runner   Calibrator
	repo     ports.FitRepository
	defaults app.CalibrationRequest
	dataDir  string
	runSlot  *semaphore.Weighted
}

// NewServer creates the API server. runner may be nil, which disables
// POST /api/runs; defaults fill any table path a run request leaves empty.
// Table paths a request does give must resolve under dataDir.
func NewServer(runner Calibrator, repo ports.FitRepository, defaults app.CalibrationRequest, dataDir string) *Server {
	s := &Server{
		router:   gin.New(),
		runner:   runner,
		repo:     repo,
		defaults: defaults,
		dataDir:  dataDir,
		runSlot:  semaphore.NewWeighted(1),
	}
	s.router.Use(gin.Recovery(), requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := s.router.Group("/api")
	{
		api.GET("/fits", s.handleListFits)
		api.GET("/fits/:id", s.handleGetFit)
		api.GET("/runs/latest", s.handleLatestRun)
		api.GET("/runs/:id", s.handleGetRun)
		api.GET("/runs/:id/report", s.handleRunReport)
		api.POST("/runs", s.handleStartRun)
		api.POST("/simulate", s.handleSimulate)
	}
}

// Handler exposes the router for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the server on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Printf("[Server] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
