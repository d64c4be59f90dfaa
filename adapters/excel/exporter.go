package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"mmmstudio/adapters/stats/correlation"
	"mmmstudio/domain/edit"
	"mmmstudio/internal/profiling"
)

// Sheet names used by the exporter
const (
	SheetCorrelation = "Correlation"
	SheetProfiles    = "Series"
	SheetComparison  = "Comparison"
	SheetSummary     = "Summary"
)

// ContentType is the MIME type of exported workbooks
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Exporter writes analysis results to xlsx workbooks
type Exporter struct{}

// NewExporter creates a workbook exporter
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCorrelation writes the matrix, and the series profiles when given, as one workbook
func (e *Exporter) WriteCorrelation(w io.Writer, m *correlation.Matrix, profiles []profiling.SeriesProfile) error {
	if m == nil {
		return fmt.Errorf("correlation matrix is nil")
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := renameDefault(f, SheetCorrelation); err != nil {
		return err
	}

	header := make([]any, 0, len(m.Variables)+1)
	header = append(header, "")
	for _, v := range m.Variables {
		header = append(header, v)
	}
	if err := setRow(f, SheetCorrelation, 1, header); err != nil {
		return err
	}
	for i, v := range m.Variables {
		row := make([]any, 0, len(m.Variables)+1)
		row = append(row, v)
		for _, r := range m.Values[i] {
			row = append(row, r)
		}
		if err := setRow(f, SheetCorrelation, i+2, row); err != nil {
			return err
		}
	}

	if len(profiles) > 0 {
		if _, err := f.NewSheet(SheetProfiles); err != nil {
			return err
		}
		if err := setRow(f, SheetProfiles, 1, []any{"Variable", "Count", "Mean", "StdDev", "Min", "Max", "Median", "ZeroShare", "Outliers", "Constant"}); err != nil {
			return err
		}
		for i, p := range profiles {
			row := []any{p.Variable, p.Count, p.Mean, p.StdDev, p.Min, p.Max, p.Median, p.ZeroShare, p.OutlierCount, p.Constant}
			if err := setRow(f, SheetProfiles, i+2, row); err != nil {
				return err
			}
		}
	}

	return f.Write(w)
}

// WriteComparison writes a previewed transaction's draft as a workbook
func (e *Exporter) WriteComparison(w io.Writer, tx *edit.Transaction) error {
	if tx == nil || tx.Draft == nil {
		return fmt.Errorf("transaction has no draft")
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := renameDefault(f, SheetComparison); err != nil {
		return err
	}
	header := []any{"Variable", "Coefficient", "New Coefficient", "Coefficient % Change", "T-stat", "New T-stat", "T-stat % Change", "Fixed"}
	if err := setRow(f, SheetComparison, 1, header); err != nil {
		return err
	}
	for i, r := range tx.Draft.Rows {
		row := []any{r.Variable, r.Coefficient, r.NewCoefficient, r.CoefficientPctChange,
			optional(r.TStat), optional(r.NewTStat), optional(r.TStatPctChange), r.Fixed}
		if err := setRow(f, SheetComparison, i+2, row); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}
	summary := [][]any{
		{"Transaction", tx.ID.String()},
		{"Model", tx.TargetModel},
		{"Mode", tx.Mode.String()},
		{"Variables", fmt.Sprint(tx.PendingVariables)},
		{"R-squared", optional(tx.Draft.RSquared)},
		{"Adjusted R-squared", optional(tx.Draft.RSquaredAdj)},
	}
	for i, row := range summary {
		if err := setRow(f, SheetSummary, i+1, row); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func renameDefault(f *excelize.File, name string) error {
	if err := f.SetSheetName("Sheet1", name); err != nil {
		return err
	}
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// optional renders a missing value as an empty cell
func optional(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
