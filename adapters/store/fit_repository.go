package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/residual"
	"tamcal/ports"

	"github.com/jmoiron/sqlx"
)

// FitRepository implements ports.FitRepository over sqlx. Fits are stored
// as JSON payloads next to the columns the listing filters on.
type FitRepository struct {
	db *sqlx.DB
}

var _ ports.FitRepository = (*FitRepository)(nil)

// NewFitRepository creates a new fit repository
func NewFitRepository(db *sqlx.DB) *FitRepository {
	return &FitRepository{db: db}
}

// runDetails is everything of a run that is not a fit
type runDetails struct {
	Growth *residual.GrowthEstimate `json:"growth,omitempty"`
	Extras map[string]float64       `json:"extras,omitempty"`
	Demo   *calibration.DemoResult  `json:"demo,omitempty"`
}

type runRow struct {
	ID        string         `db:"id"`
	Settings  string         `db:"settings"`
	Details   sql.NullString `db:"details"`
	CreatedAt time.Time      `db:"created_at"`
}

// SaveRun inserts the run and its fits in one transaction
func (r *FitRepository) SaveRun(ctx context.Context, run *calibration.Run) error {
	settings, err := json.Marshal(run.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode run settings: %w", err)
	}
	details, err := json.Marshal(runDetails{Growth: run.Growth, Extras: run.Extras, Demo: run.Demo})
	if err != nil {
		return fmt.Errorf("failed to encode run details: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO fit_runs (id, settings, details, created_at)
		VALUES (?, ?, ?, ?)
	`), run.ID.String(), string(settings), string(details), run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	for _, fit := range run.Fits() {
		fit.RunID = run.ID
		payload, err := json.Marshal(fit)
		if err != nil {
			return fmt.Errorf("failed to encode %s fit: %w", fit.Problem, err)
		}
		_, err = tx.ExecContext(ctx, r.db.Rebind(`
			INSERT INTO fit_results (id, run_id, problem, loss, evaluated, excluded, refined, space_hash, payload, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`), fit.ID.String(), run.ID.String(), fit.Problem, fit.Loss, fit.Evaluated, fit.Excluded,
			fit.Refined, string(fit.SpaceHash), string(payload), fit.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert %s fit: %w", fit.Problem, err)
		}
	}

	return tx.Commit()
}

// GetFit retrieves one fit by ID
func (r *FitRepository) GetFit(ctx context.Context, id core.FitID) (*calibration.FitResult, error) {
	var payload string
	err := r.db.GetContext(ctx, &payload, r.db.Rebind(`SELECT payload FROM fit_results WHERE id = ?`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrFitNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeFit(payload)
}

// GetRun retrieves a run with its fits
func (r *FitRepository) GetRun(ctx context.Context, id core.RunID) (*calibration.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, settings, details, created_at FROM fit_runs WHERE id = ?
	`), id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", core.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, row)
}

// LatestRun retrieves the most recently created run
func (r *FitRepository) LatestRun(ctx context.Context) (*calibration.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, settings, details, created_at FROM fit_runs ORDER BY created_at DESC, id DESC LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no runs stored", core.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return r.assemble(ctx, row)
}

func (r *FitRepository) assemble(ctx context.Context, row runRow) (*calibration.Run, error) {
	run := &calibration.Run{ID: core.RunID(row.ID), CreatedAt: row.CreatedAt}
	if err := json.Unmarshal([]byte(row.Settings), &run.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode run settings: %w", err)
	}
	if row.Details.Valid && row.Details.String != "" {
		var d runDetails
		if err := json.Unmarshal([]byte(row.Details.String), &d); err != nil {
			return nil, fmt.Errorf("failed to decode run details: %w", err)
		}
		run.Growth, run.Extras, run.Demo = d.Growth, d.Extras, d.Demo
	}

	var payloads []string
	err := r.db.SelectContext(ctx, &payloads, r.db.Rebind(`
		SELECT payload FROM fit_results WHERE run_id = ? ORDER BY problem
	`), row.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range payloads {
		fit, err := decodeFit(p)
		if err != nil {
			return nil, err
		}
		switch fit.Problem {
		case calibration.ProblemPe:
			run.Pe = fit
		case calibration.ProblemQian:
			run.Qian = fit
		}
	}
	return run, nil
}

// ListFits lists stored fits, newest first
func (r *FitRepository) ListFits(ctx context.Context, filters ports.FitFilters) ([]ports.FitSummary, error) {
	query := `SELECT id, run_id, problem, loss, evaluated, excluded, refined, space_hash, created_at FROM fit_results`
	var where []string
	var args []interface{}
	if filters.Problem != "" {
		where = append(where, "problem = ?")
		args = append(args, filters.Problem)
	}
	if filters.RunID != nil {
		where = append(where, "run_id = ?")
		args = append(args, filters.RunID.String())
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(filters.Offset, 0))

	var out []ports.FitSummary
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeFit(payload string) (*calibration.FitResult, error) {
	var fit calibration.FitResult
	if err := json.Unmarshal([]byte(payload), &fit); err != nil {
		return nil, fmt.Errorf("failed to decode fit payload: %w", err)
	}
	return &fit, nil
}
