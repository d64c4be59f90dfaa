package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmmstudio/domain/edit"
	"mmmstudio/domain/modeling"
)

func draftTransaction() *edit.Transaction {
	tx := edit.NewTransaction(edit.Request{Model: "base", Mode: edit.ModeAdd, Variables: []string{"Search|LOG"}}, time.Now())
	tx.Draft = &modeling.Comparison{
		Rows: []modeling.ComparisonRow{
			{Variable: "TV", Coefficient: 2, NewCoefficient: 1.8, CoefficientPctChange: -10, TStat: modeling.Float(3), NewTStat: modeling.Float(2.85), TStatPctChange: modeling.Float(-5)},
			{Variable: "Search|LOG", NewCoefficient: 0.7, TStat: modeling.Float(0), NewTStat: modeling.Float(2.5), TStatPctChange: modeling.Float(0)},
			{Variable: "Price", Coefficient: -1, NewCoefficient: -0.5, CoefficientPctChange: 50, Fixed: true},
		},
		RSquared:    modeling.Float(0.61),
		RSquaredAdj: modeling.Float(0.58),
	}
	return tx
}

func TestPreviewMarkdown(t *testing.T) {
	md := PreviewMarkdown(draftTransaction())

	assert.Contains(t, md, `## Preview: add Search\|LOG on base`)
	assert.Contains(t, md, "R² 0.610, adjusted R² 0.580")
	assert.Contains(t, md, "| TV | 2.0000 | 1.8000 | -10.0% | 3.000 | 2.850 | -5.0% |")
	assert.Contains(t, md, `| Search\|LOG |`)
	assert.Contains(t, md, "| Price (fixed) | -1.0000 | -0.5000 | +50.0% | – | – | – |")
}

func TestBuildPreviewReportRendersTable(t *testing.T) {
	r, err := BuildPreviewReport(draftTransaction())
	require.NoError(t, err)
	assert.True(t, strings.Contains(r.HTML, "<table>"), r.HTML)
	assert.Contains(t, r.HTML, "<td>TV</td>")
	assert.Equal(t, 4, strings.Count(r.HTML, "<tr>"))

	_, err = BuildPreviewReport(&edit.Transaction{})
	assert.Error(t, err)
}

func TestReportEscapesMarkupInNames(t *testing.T) {
	tx := edit.NewTransaction(edit.Request{
		Model:     "<b>base</b>",
		Mode:      edit.ModeAdd,
		Variables: []string{"<img src=x onerror=alert(1)>"},
	}, time.Now())
	tx.Draft = &modeling.Comparison{Rows: []modeling.ComparisonRow{
		{Variable: "<script>alert(2)</script>", Coefficient: 1, NewCoefficient: 2, CoefficientPctChange: 100},
	}}

	md := PreviewMarkdown(tx)
	assert.Contains(t, md, `\<script\>alert\(2\)\</script\>`)

	r, err := BuildPreviewReport(tx)
	require.NoError(t, err)
	assert.NotContains(t, r.HTML, "<script>")
	assert.NotContains(t, r.HTML, "<img")
	assert.NotContains(t, r.HTML, "<b>")
	assert.Contains(t, r.HTML, "<td>&lt;script&gt;alert(2)&lt;/script&gt;</td>")
	assert.Contains(t, r.HTML, "&lt;img src=x onerror=alert(1)&gt;")
}

func TestToHTMLDropsRawHTML(t *testing.T) {
	out := string(ToHTML("hello <script>alert(1)</script>\n\n[x](javascript:alert(1))\n"))
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, `href="javascript:`)
}
