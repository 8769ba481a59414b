// Package workbook imports spreadsheet files and sequences their formulas.
//
// Import never evaluates a formula. It reads formula text and cached
// values, builds each sheet's intra-sheet dependency graph and reports the
// evaluation order. A sheet with a circular reference still imports; it is
// marked indeterminate and its failure is logged.
package workbook

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/sheetrelay/internal/depgraph"
	"github.com/roach88/sheetrelay/internal/formula"
)

// Sheet is the import result for one worksheet.
type Sheet struct {
	Name     string            `json:"name"`
	Rows     int               `json:"rows"`
	Cols     int               `json:"cols"`
	Values   int               `json:"values"`
	Formulas map[string]string `json:"formulas"`

	Sequence depgraph.Result `json:"sequence"`
}

// Indeterminate reports whether the sheet's formula state is unknown.
func (s Sheet) Indeterminate() bool { return s.Sequence.Indeterminate() }

// Report is the import result for a workbook, sheets in workbook order.
type Report struct {
	Sheets []Sheet `json:"sheets"`
}

// Indeterminate returns the names of sheets with circular references.
func (r Report) Indeterminate() []string {
	var out []string
	for _, s := range r.Sheets {
		if s.Indeterminate() {
			out = append(out, s.Name)
		}
	}
	return out
}

// Import opens an xlsx file and analyzes every sheet.
func Import(path string, logger *slog.Logger) (Report, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()
	return Analyze(f, logger)
}

// ImportReader analyzes an xlsx stream.
func ImportReader(r io.Reader, logger *slog.Logger) (Report, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Report{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return Analyze(f, logger)
}

// Analyze sequences every sheet of an open workbook.
func Analyze(f *excelize.File, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var rep Report
	for _, name := range f.GetSheetList() {
		s, err := analyzeSheet(f, name)
		if err != nil {
			return Report{}, err
		}
		if s.Sequence.Failure != nil {
			logger.Warn("sheet imported as indeterminate",
				"sheet", name, "error", s.Sequence.Failure.Error())
		}
		rep.Sheets = append(rep.Sheets, s)
	}
	return rep, nil
}

func analyzeSheet(f *excelize.File, name string) (Sheet, error) {
	rows, cols, err := extent(f, name)
	if err != nil {
		return Sheet{}, err
	}

	s := Sheet{Name: name, Rows: rows, Cols: cols, Formulas: make(map[string]string)}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			axis := formula.CellName(c, r)
			text, err := f.GetCellFormula(name, axis)
			if err != nil {
				return Sheet{}, fmt.Errorf("read %s!%s: %w", name, axis, err)
			}
			if text != "" {
				s.Formulas[axis] = text
				continue
			}
			v, err := f.GetCellValue(name, axis)
			if err != nil {
				return Sheet{}, fmt.Errorf("read %s!%s: %w", name, axis, err)
			}
			if v != "" {
				s.Values++
			}
		}
	}
	s.Sequence = depgraph.Sequence(name, s.Formulas)
	return s, nil
}

// extent is the used range of a sheet: the larger of the declared
// dimension and the cells GetRows returns. Trailing formula cells without
// a cached value may be trimmed from GetRows, so the dimension matters.
func extent(f *excelize.File, name string) (rows, cols int, err error) {
	data, err := f.GetRows(name)
	if err != nil {
		return 0, 0, fmt.Errorf("read sheet %s: %w", name, err)
	}
	rows = len(data)
	for _, row := range data {
		cols = max(cols, len(row))
	}

	dim, err := f.GetSheetDimension(name)
	if err != nil || dim == "" {
		return rows, cols, nil
	}
	// single-cell dimensions such as "A1" have no second corner
	corner := dim
	if _, end, ok := strings.Cut(dim, ":"); ok {
		corner = end
	}
	c, r, err := excelize.CellNameToCoordinates(corner)
	if err != nil {
		return rows, cols, nil
	}
	return max(rows, r), max(cols, c), nil
}
