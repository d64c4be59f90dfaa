package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mmmstudio/adapters/stats/correlation"
	"mmmstudio/domain/edit"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/profiling"
)

func TestWriteCorrelation(t *testing.T) {
	m := &correlation.Matrix{
		Variables: []string{"TV", "Sales"},
		Values:    [][]float64{{1, 0.42}, {0.42, 1}},
		Overlap:   [][]int{{3, 3}, {3, 3}},
	}
	profiles := []profiling.SeriesProfile{{Variable: "TV", Count: 3, Mean: 2}}

	var buf bytes.Buffer
	require.NoError(t, NewExporter().WriteCorrelation(&buf, m, profiles))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetCorrelation)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"", "TV", "Sales"}, rows[0])
	assert.Equal(t, []string{"TV", "1", "0.42"}, rows[1])

	series, err := f.GetRows(SheetProfiles)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "TV", series[1][0])
}

func TestWriteComparison(t *testing.T) {
	tx := edit.NewTransaction(edit.Request{Model: "base", Mode: edit.ModeAdd, Variables: []string{"Search"}}, time.Now())
	tx.Draft = &modeling.Comparison{
		Rows: []modeling.ComparisonRow{
			{Variable: "TV", Coefficient: 2, NewCoefficient: 1.8, CoefficientPctChange: -10, TStat: modeling.Float(3), NewTStat: modeling.Float(2.85), TStatPctChange: modeling.Float(-5)},
			{Variable: "Price", Coefficient: -1, NewCoefficient: -0.5, CoefficientPctChange: 50, Fixed: true},
		},
		RSquared: modeling.Float(0.61),
	}

	var buf bytes.Buffer
	require.NoError(t, NewExporter().WriteComparison(&buf, tx))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetComparison)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Variable", rows[0][0])
	assert.Equal(t, "TV", rows[1][0])
	assert.Equal(t, "-10", rows[1][3])

	fixed, err := f.GetCellValue(SheetComparison, "H3")
	require.NoError(t, err)
	assert.Equal(t, "TRUE", fixed)
	tstat, err := f.GetCellValue(SheetComparison, "E3")
	require.NoError(t, err)
	assert.Empty(t, tstat)

	model, err := f.GetCellValue(SheetSummary, "B2")
	require.NoError(t, err)
	assert.Equal(t, "base", model)
}

func TestWriteComparisonRequiresDraft(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewExporter().WriteComparison(&buf, nil))
	assert.Error(t, NewExporter().WriteCorrelation(&buf, nil, nil))
}
