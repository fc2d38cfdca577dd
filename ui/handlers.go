package ui

import (
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"tamcal/adapters/report"
	"tamcal/app"
	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/errors"
	"tamcal/ports"

	"github.com/gin-gonic/gin"
)

// respondError writes err as {"error", "code"} with the status its code maps to
func respondError(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatus(code)
	if status >= http.StatusInternalServerError {
		log.Printf("[API] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func (s *Server) storeAvailable(c *gin.Context) bool {
	if s.repo == nil {
		respondError(c, errors.NotFound("fit store"))
		return false
	}
	return true
}

func (s *Server) handleListFits(c *gin.Context) {
	if !s.storeAvailable(c) {
		return
	}
	filters := ports.FitFilters{Problem: c.Query("problem")}
	if raw := c.Query("run_id"); raw != "" {
		runID, err := core.ParseRunID(raw)
		if err != nil {
			respondError(c, errors.InvalidInput(err.Error()))
			return
		}
		filters.RunID = &runID
	}
	for name, dst := range map[string]*int{"limit": &filters.Limit, "offset": &filters.Offset} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			respondError(c, errors.InvalidInput(name+" must be a non-negative integer"))
			return
		}
		*dst = v
	}

	fits, err := s.repo.ListFits(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}
	if fits == nil {
		fits = []ports.FitSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"fits": fits, "count": len(fits)})
}

func (s *Server) handleGetFit(c *gin.Context) {
	if !s.storeAvailable(c) {
		return
	}
	id, err := core.ParseFitID(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput(err.Error()))
		return
	}
	fit, err := s.repo.GetFit(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, fit)
}

func (s *Server) handleLatestRun(c *gin.Context) {
	if !s.storeAvailable(c) {
		return
	}
	run, err := s.repo.LatestRun(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (s *Server) loadRun(c *gin.Context) (*calibration.Run, bool) {
	if !s.storeAvailable(c) {
		return nil, false
	}
	id, err := core.ParseRunID(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput(err.Error()))
		return nil, false
	}
	run, err := s.repo.GetRun(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return run, true
}

func (s *Server) handleGetRun(c *gin.Context) {
	if run, ok := s.loadRun(c); ok {
		c.JSON(http.StatusOK, runView(run))
	}
}

// handleRunReport renders the markdown report; ?format=md returns it raw
func (s *Server) handleRunReport(c *gin.Context) {
	run, ok := s.loadRun(c)
	if !ok {
		return
	}
	md := report.Markdown(run)
	if c.Query("format") == "md" {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", md)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(md))
}

type runRequest struct {
	PePath        string `json:"pe_path"`
	QianFigCPath  string `json:"qian_figc_path"`
	QianFigDPath  string `json:"qian_figd_path"`
	PeGrowthPath  string `json:"pe_growth_path"`
	SigmaCCL2Path string `json:"sigma_ccl2_path"`
	KappaVEGFPath string `json:"kappa_vegf_path"`
}

func (s *Server) handleStartRun(c *gin.Context) {
	if s.runner == nil {
		respondError(c, errors.New(errors.CodeConfigInvalid, "calibration is not enabled on this server"))
		return
	}
	if !s.runSlot.TryAcquire(1) {
		respondError(c, errors.New(errors.CodeBusy, "a calibration run is already in progress"))
		return
	}
	defer s.runSlot.Release(1)

	var body runRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
			return
		}
	}

	req := s.defaults
	for _, o := range []struct {
		dst *string
		v   string
	}{
		{&req.PePath, body.PePath},
		{&req.QianFigCPath, body.QianFigCPath},
		{&req.QianFigDPath, body.QianFigDPath},
		{&req.PeGrowthPath, body.PeGrowthPath},
		{&req.SigmaCCL2Path, body.SigmaCCL2Path},
		{&req.KappaVEGFPath, body.KappaVEGFPath},
	} {
		if o.v == "" {
			continue
		}
		path, err := s.resolveDataPath(o.v)
		if err != nil {
			respondError(c, err)
			return
		}
		*o.dst = path
	}

	run, err := s.runner.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, runView(run))
}

// resolveDataPath confines a requested table path to the data directory.
// Relative paths are taken from the data directory; overrides are refused
// when the server has none.
func (s *Server) resolveDataPath(p string) (string, error) {
	if s.dataDir == "" {
		return "", errors.InvalidInput("table path overrides are disabled on this server")
	}
	root, err := filepath.Abs(s.dataDir)
	if err != nil {
		return "", errors.Wrap(err, "resolve data directory")
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	rel, err := filepath.Rel(root, filepath.Clean(target))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.InvalidInput(fmt.Sprintf("%s is outside the data directory", p))
	}
	return filepath.Join(s.dataDir, rel), nil
}

func (s *Server) handleSimulate(c *gin.Context) {
	var req app.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	res, err := app.Simulate(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// runView is a run with its combined parameter document
func runView(run *calibration.Run) gin.H {
	return gin.H{
		"run":      run,
		"combined": report.Combined(run),
	}
}
