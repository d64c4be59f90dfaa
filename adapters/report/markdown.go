package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"mmmstudio/domain/edit"
)

// PreviewReport is a draft comparison rendered for humans
type PreviewReport struct {
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// BuildPreviewReport renders the draft of a previewed transaction
func BuildPreviewReport(tx *edit.Transaction) (*PreviewReport, error) {
	if tx == nil || tx.Draft == nil {
		return nil, fmt.Errorf("transaction has no draft")
	}
	md := PreviewMarkdown(tx)
	return &PreviewReport{Markdown: md, HTML: string(ToHTML(md))}, nil
}

// PreviewMarkdown formats the draft as a Markdown table
func PreviewMarkdown(tx *edit.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Preview: %s %s on %s\n\n", tx.Mode, escape(strings.Join(tx.PendingVariables, ", ")), escape(tx.TargetModel))

	if d := tx.Draft; d.RSquared != nil || d.RSquaredAdj != nil {
		fmt.Fprintf(&b, "R² %s, adjusted R² %s\n\n", number(d.RSquared), number(d.RSquaredAdj))
	}

	b.WriteString("| Variable | Coefficient | New | Δ% | t | New t | Δt% |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
	for _, r := range tx.Draft.Rows {
		name := escape(r.Variable)
		if r.Fixed {
			name += " (fixed)"
		}
		fmt.Fprintf(&b, "| %s | %.4f | %.4f | %s | %s | %s | %s |\n",
			name, r.Coefficient, r.NewCoefficient, percent(&r.CoefficientPctChange),
			number(r.TStat), number(r.NewTStat), percent(r.TStatPctChange))
	}
	return b.String()
}

// ToHTML renders Markdown with table support. Raw HTML in the source is dropped.
func ToHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML | html.Safelink})
	return markdown.ToHTML([]byte(md), p, renderer)
}

func number(v *float64) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%.3f", *v)
}

func percent(v *float64) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%+.1f%%", *v)
}

// mdEscaper backslash-escapes characters Markdown would treat as markup,
// so names render as literal text
var mdEscaper = strings.NewReplacer(
	`\`, `\\`, "`", "\\`", "*", `\*`, "_", `\_`, "[", `\[`, "]", `\]`,
	"(", `\(`, ")", `\)`, "<", `\<`, ">", `\>`, "&", `\&`, "|", `\|`, "!", `\!`,
)

func escape(s string) string {
	return mdEscaper.Replace(s)
}
