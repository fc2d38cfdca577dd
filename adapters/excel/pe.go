package excel

import (
	"fmt"
	"log"
	"math"
	"regexp"
	"strconv"

	"tamcal/domain/core"
	"tamcal/internal/residual"
)

// LoadPe reads the proliferation table. It accepts Time_h or Time for the
// time column and either SEM or a SEM+/SEM- pair, collapsed to
// 0.5*(|SEM+| + |SEM-|). A missing SEM column leaves every SEM undefined.
func LoadPe(path string) ([]residual.Measurement, error) {
	table, err := NewDataReader(path).ReadData()
	if err != nil {
		return nil, err
	}
	return PeMeasurements(table)
}

// PeMeasurements converts an already parsed table
func PeMeasurements(table *Table) ([]residual.Measurement, error) {
	timeCol, ok := table.FindColumn("Time_h", "Time")
	var missing []string
	if !ok {
		missing = append(missing, "Time_h")
	}
	condCol, ok := table.FindColumn("Condition")
	if !ok {
		missing = append(missing, "Condition")
	}
	meanCol, ok := table.FindColumn("Mean")
	if !ok {
		missing = append(missing, "Mean")
	}
	if len(missing) > 0 {
		return nil, &core.DataShapeError{Table: table.Name, Missing: missing, Columns: table.Headers}
	}

	semOf := semReader(table)
	out := make([]residual.Measurement, 0, len(table.Rows))
	for i, row := range table.Rows {
		t, err := parseCell(table, i, timeCol, row[timeCol])
		if err != nil {
			return nil, err
		}
		mean, err := parseCell(table, i, meanCol, row[meanCol])
		if err != nil {
			return nil, err
		}
		sem, err := semOf(i, row)
		if err != nil {
			return nil, err
		}
		out = append(out, residual.Measurement{Time: t, Condition: row[condCol], Mean: mean, SEM: sem})
	}
	if len(out) == 0 {
		return nil, core.NewDataShapeError(table.Name, "data rows")
	}
	log.Printf("[PeLoader] %s: %d measurements", table.Name, len(out))
	return out, nil
}

func semReader(table *Table) func(i int, row RawRowData) (float64, error) {
	if col, ok := table.FindColumn("SEM"); ok {
		return func(i int, row RawRowData) (float64, error) {
			return optionalCell(table, i, col, row[col])
		}
	}
	plus, okPlus := table.FindColumn("SEM+")
	minus, okMinus := table.FindColumn("SEM-")
	if okPlus && okMinus {
		return func(i int, row RawRowData) (float64, error) {
			p, err := optionalCell(table, i, plus, row[plus])
			if err != nil {
				return 0, err
			}
			m, err := optionalCell(table, i, minus, row[minus])
			if err != nil {
				return 0, err
			}
			return 0.5 * (math.Abs(p) + math.Abs(m)), nil
		}
	}
	log.Printf("[PeLoader] %s: no SEM column, weights fall back to 1", table.Name)
	return func(int, RawRowData) (float64, error) { return math.NaN(), nil }
}

func parseCell(table *Table, row int, col, cell string) (float64, error) {
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, &core.DataShapeError{
			Table:   table.Name,
			Missing: []string{fmt.Sprintf("numeric %s in row %d (got %q)", col, row+2, cell)},
		}
	}
	return v, nil
}

// optionalCell parses a cell where blank means undefined
func optionalCell(table *Table, row int, col, cell string) (float64, error) {
	if cell == "" || cell == "NA" || cell == "NaN" {
		return math.NaN(), nil
	}
	return parseCell(table, row, col, cell)
}

var (
	growthCondRe  = regexp.MustCompile(`(?i)(cond|group|label|treat|type)`)
	growthTimeRe  = regexp.MustCompile(`(?i)(time|hour|h)`)
	growthValueRe = regexp.MustCompile(`(?i)(mean|value|fold)`)
	controlRe     = regexp.MustCompile(`(?i)(ctrl|control|vehicle|isotype)`)
	tamRe         = regexp.MustCompile(`(?i)TAM`)
)

// LoadPeGrowth reads a per-condition growth time course and compares the
// log-linear growth rate of the TAM rows against the control rows.
func LoadPeGrowth(path string) (residual.GrowthEstimate, error) {
	table, err := NewDataReader(path).ReadData()
	if err != nil {
		return residual.GrowthEstimate{}, err
	}

	// value before time: "Mean_FoldChange" would otherwise match on its "h"
	var condCol, timeCol, valCol string
	for _, h := range table.Headers {
		switch {
		case growthCondRe.MatchString(h):
			condCol = firstOf(condCol, h)
		case growthValueRe.MatchString(h):
			valCol = firstOf(valCol, h)
		case growthTimeRe.MatchString(h):
			timeCol = firstOf(timeCol, h)
		}
	}
	if condCol == "" || timeCol == "" || valCol == "" {
		return residual.GrowthEstimate{}, &core.DataShapeError{
			Table: table.Name, Missing: []string{"condition", "time", "value"}, Columns: table.Headers,
		}
	}

	var ct, cv, tt, tv []float64
	for i, row := range table.Rows {
		t, err := parseCell(table, i, timeCol, row[timeCol])
		if err != nil {
			return residual.GrowthEstimate{}, err
		}
		v, err := parseCell(table, i, valCol, row[valCol])
		if err != nil {
			return residual.GrowthEstimate{}, err
		}
		switch label := row[condCol]; {
		case controlRe.MatchString(label):
			ct, cv = append(ct, t), append(cv, v)
		case tamRe.MatchString(label):
			tt, tv = append(tt, t), append(tv, v)
		}
	}
	if len(ct) == 0 || len(tt) == 0 {
		return residual.GrowthEstimate{}, core.NewDataShapeError(table.Name, "control rows", "TAM rows")
	}
	est, err := residual.CompareGrowth(ct, cv, tt, tv)
	if err != nil {
		return residual.GrowthEstimate{}, err
	}
	log.Printf("[PeLoader] %s: r_ctrl=%.3f r_tam=%.3f delta=%.3f per day",
		table.Name, est.ControlRate, est.TreatedRate, est.DeltaRate)
	return est, nil
}

func firstOf(current, candidate string) string {
	if current != "" {
		return current
	}
	return candidate
}
