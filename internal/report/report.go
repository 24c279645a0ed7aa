// Package report renders analysis results as an interactive HTML chart, a
// static SVG chart, an XLSX workbook and the notification email body.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
	"github.com/JakeFAU/niw-crawler/internal/crawler"
)

// Artifacts lists the files written by Render.
type Artifacts struct {
	HTMLPath string
	SVGPath  string
	XLSXPath string
}

// Paths returns the artifact paths in a stable order.
func (a Artifacts) Paths() []string {
	return []string{a.HTMLPath, a.SVGPath, a.XLSXPath}
}

// Basename returns the artifact stem for a center, e.g. "SRC_distribution".
func Basename(center crawler.ServiceCenter) string {
	return fmt.Sprintf("%s_distribution", center)
}

// Render writes <center>_distribution.{html,svg,xlsx} into dir.
func Render(dir string, t analysis.Table, p *analysis.Percentile) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return Artifacts{}, fmt.Errorf("create report dir: %w", err)
	}
	stem := filepath.Join(dir, Basename(t.Center))
	out := Artifacts{HTMLPath: stem + ".html", SVGPath: stem + ".svg", XLSXPath: stem + ".xlsx"}

	page, err := HTML(t, p)
	if err != nil {
		return Artifacts{}, err
	}
	if err := os.WriteFile(out.HTMLPath, []byte(page), 0o640); err != nil {
		return Artifacts{}, fmt.Errorf("write html: %w", err)
	}
	if err := os.WriteFile(out.SVGPath, []byte(SVG(t)), 0o640); err != nil {
		return Artifacts{}, fmt.Errorf("write svg: %w", err)
	}

	wb, err := Workbook(t, p)
	if err != nil {
		return Artifacts{}, err
	}
	defer func() { _ = wb.Close() }()
	if err := wb.SaveAs(out.XLSXPath); err != nil {
		return Artifacts{}, fmt.Errorf("write xlsx: %w", err)
	}
	return out, nil
}

var funcs = template.FuncMap{
	"date": func(t time.Time) string {
		return t.Format(time.DateOnly)
	},
}

// PercentileSentence is the one-line summary of a percentile result.
func PercentileSentence(p *analysis.Percentile) string {
	months := monthsBetween(p.WindowStart, p.WindowEnd)
	return fmt.Sprintf("Percentile of Days Elapsed Based on Last %d Months of I-140 NIW Data for %s: %.2f%%",
		months, p.Center, p.Value)
}

var emailTmpl = template.Must(template.New("email").Funcs(funcs).Parse(`<html>
<body>
<p>{{.Sentence}}</p>
<p>{{.Percentile.DaysElapsed}} days have elapsed since {{date .Percentile.ApplicationDate}}.
{{.Percentile.Samples}} approvals were issued between {{date .Percentile.WindowStart}} and {{date .Percentile.WindowEnd}}.</p>
<p>The processing time distribution is attached.</p>
</body>
</html>
`))

// EmailHTML renders the notification body for a percentile result.
func EmailHTML(p analysis.Percentile) (string, error) {
	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, struct {
		Sentence   string
		Percentile analysis.Percentile
	}{Sentence: PercentileSentence(&p), Percentile: p})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

func monthsBetween(start, end time.Time) int {
	return (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
}
