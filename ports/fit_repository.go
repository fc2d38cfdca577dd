package ports

import (
	"context"
	"time"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
)

// FitRepository defines the interface for calibration run storage
type FitRepository interface {
	// SaveRun stores a run and every fit it holds atomically
	SaveRun(ctx context.Context, run *calibration.Run) error
	GetRun(ctx context.Context, id core.RunID) (*calibration.Run, error)
	LatestRun(ctx context.Context) (*calibration.Run, error)

	GetFit(ctx context.Context, id core.FitID) (*calibration.FitResult, error)
	ListFits(ctx context.Context, filters FitFilters) ([]FitSummary, error)
}

// FitFilters for querying fits
type FitFilters struct {
	Problem string
	RunID   *core.RunID
	Limit   int
	Offset  int
}

// FitSummary is the listing view of a stored fit
type FitSummary struct {
	ID        core.FitID `json:"id" db:"id"`
	RunID     core.RunID `json:"run_id" db:"run_id"`
	Problem   string     `json:"problem" db:"problem"`
	Loss      float64    `json:"loss" db:"loss"`
	Evaluated int        `json:"evaluated" db:"evaluated"`
	Excluded  int        `json:"excluded" db:"excluded"`
	Refined   bool       `json:"refined" db:"refined"`
	SpaceHash string     `json:"space_hash" db:"space_hash"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
