package excel

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"tamcal/domain/core"
	"tamcal/internal/calibration"
	"tamcal/internal/residual"
)

var labelHeaderRe = regexp.MustCompile(`(?i)(cond|group|label|treat|type)`)

// labelled is a label column paired with a value column
type labelled struct {
	table  *Table
	label  string
	values string
}

// labelledColumns picks the label column (a cond/group/label/treat/type
// header, else the first column) and the value column (Mean, else the first
// numeric column).
func labelledColumns(table *Table) (labelled, error) {
	if len(table.Headers) == 0 {
		return labelled{}, core.NewDataShapeError(table.Name, "header row")
	}
	label, ok := table.MatchColumn(labelHeaderRe)
	if !ok {
		label = table.Headers[0]
	}
	values, ok := table.FindColumn("Mean")
	if !ok {
		values, ok = table.NumericColumn(label)
	}
	if !ok {
		return labelled{}, &core.DataShapeError{Table: table.Name, Missing: []string{"Mean"}, Columns: table.Headers}
	}
	return labelled{table: table, label: label, values: values}, nil
}

// matching returns the values of every row whose label satisfies match
func (l labelled) matching(match func(label string) bool) ([]float64, error) {
	var out []float64
	for i, row := range l.table.Rows {
		if !match(row[l.label]) {
			continue
		}
		cell := row[l.values]
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, &core.DataShapeError{
				Table:   l.table.Name,
				Missing: []string{fmt.Sprintf("numeric %s in row %d (got %q)", l.values, i+2, cell)},
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func contains(key string) func(string) bool {
	key = strings.ToLower(key)
	return func(label string) bool {
		return strings.Contains(strings.ToLower(label), key)
	}
}

func matches(re *regexp.Regexp) func(string) bool {
	return re.MatchString
}

// ratioFromTable computes mean(numerator rows) / mean(denominator rows)
func ratioFromTable(table *Table, name string, num, den func(string) bool) (residual.RatioTarget, error) {
	cols, err := labelledColumns(table)
	if err != nil {
		return residual.RatioTarget{}, err
	}
	n, err := cols.matching(num)
	if err != nil {
		return residual.RatioTarget{}, err
	}
	d, err := cols.matching(den)
	if err != nil {
		return residual.RatioTarget{}, err
	}
	rt, err := residual.Ratio(name, n, d)
	if err != nil {
		return residual.RatioTarget{}, fmt.Errorf("%s: %w", table.Name, err)
	}
	log.Printf("[QianLoader] %s: %s = %.4g (%d/%d rows)", table.Name, name, rt.Value, len(n), len(d))
	return rt, nil
}

// LoadQian reads the recruitment ratios: Fig C gives lung metastasis over
// control ("Mets" / "Control" labels) and Fig D gives CCL2 blockade over
// untreated ("anti" / "Ctrl" labels). Labels match case-insensitively by
// substring.
func LoadQian(figCPath, figDPath string) (calibration.QianTargets, error) {
	figC, err := NewDataReader(figCPath).ReadData()
	if err != nil {
		return calibration.QianTargets{}, err
	}
	figD, err := NewDataReader(figDPath).ReadData()
	if err != nil {
		return calibration.QianTargets{}, err
	}
	return QianTargets(figC, figD)
}

// QianTargets converts already parsed Fig C and Fig D tables
func QianTargets(figC, figD *Table) (calibration.QianTargets, error) {
	lung, err := ratioFromTable(figC, calibration.RatioLung, contains("Mets"), contains("Control"))
	if err != nil {
		return calibration.QianTargets{}, err
	}
	block, err := ratioFromTable(figD, calibration.RatioBlock, contains("anti"), contains("Ctrl"))
	if err != nil {
		return calibration.QianTargets{}, err
	}
	return calibration.QianTargets{Lung: lung, Block: block}, nil
}

var (
	ccl2ControlRe = regexp.MustCompile(`(?i)(ctrl|control|vehicle|isotype)`)
	ccl2AntiRe    = regexp.MustCompile(`(?i)(anti[-_ ]?CCL2|CCL2[-_ ]?Ab|αCCL2)`)
)

// LoadSigmaCCL2 extracts the anti-CCL2 over control ratio from a Qian panel
func LoadSigmaCCL2(path string) (residual.RatioTarget, error) {
	table, err := NewDataReader(path).ReadData()
	if err != nil {
		return residual.RatioTarget{}, err
	}
	return ratioFromTable(table, calibration.ExtraSigmaCCL2, matches(ccl2AntiRe), matches(ccl2ControlRe))
}

// LoadKappaVEGF extracts the VEGF knockout over wild-type ratio
func LoadKappaVEGF(path string) (residual.RatioTarget, error) {
	table, err := NewDataReader(path).ReadData()
	if err != nil {
		return residual.RatioTarget{}, err
	}
	return ratioFromTable(table, calibration.ExtraKappaVEGF, contains("KO"), contains("WT"))
}
