package excel

import (
	"regexp"
	"strconv"
	"strings"
)

// RawRowData represents a row of raw table data as header -> cell text
type RawRowData map[string]string

// Table is a parsed sheet or CSV file
type Table struct {
	Name    string       // file name, used in error messages
	Headers []string     // Column headers, trimmed
	Rows    []RawRowData // Data rows
}

// HasColumn reports whether a header matches name exactly
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Headers {
		if h == name {
			return true
		}
	}
	return false
}

// FindColumn returns the first header, in header order, matching any of the
// case-insensitive exact names.
func (t *Table) FindColumn(names ...string) (string, bool) {
	for _, h := range t.Headers {
		for _, n := range names {
			if strings.EqualFold(h, n) {
				return h, true
			}
		}
	}
	return "", false
}

// MatchColumn returns the first header matching re
func (t *Table) MatchColumn(re *regexp.Regexp) (string, bool) {
	for _, h := range t.Headers {
		if re.MatchString(h) {
			return h, true
		}
	}
	return "", false
}

// NumericColumn returns the first column whose non-empty cells all parse as
// numbers, skipping the excluded headers.
func (t *Table) NumericColumn(exclude ...string) (string, bool) {
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[e] = true
	}
	for _, h := range t.Headers {
		if skip[h] {
			continue
		}
		numeric, seen := true, 0
		for _, row := range t.Rows {
			cell := row[h]
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				numeric = false
				break
			}
			seen++
		}
		if numeric && seen > 0 {
			return h, true
		}
	}
	return "", false
}
