package report

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
)

const (
	chartWidth   = 960
	chartHeight  = 520
	marginLeft   = 72
	marginRight  = 160
	marginTop    = 56
	marginBottom = 64
	yTicks       = 5
)

var palette = []string{
	"#4c78a8", "#f58518", "#54a24b", "#e45756",
	"#72b7b2", "#eeca3b", "#b279a2", "#9d755d",
}

// ChartTitle is the heading used by every rendering of a center's table.
func ChartTitle(t analysis.Table) string {
	return fmt.Sprintf("%s Processing Time - NIW", t.Center)
}

// SVG draws the static counterpart of Bar for email attachments and mirrors:
// one group per notice year and one bar per quantile column.
func SVG(t analysis.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif" font-size="12">`,
		chartWidth, chartHeight, chartWidth, chartHeight)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#ffffff"/>`+"\n", chartWidth, chartHeight)
	fmt.Fprintf(&b, `<text x="%d" y="28" text-anchor="middle" font-size="18">%s</text>`+"\n",
		chartWidth/2, html.EscapeString(ChartTitle(t)))

	plotW := float64(chartWidth - marginLeft - marginRight)
	plotH := float64(chartHeight - marginTop - marginBottom)
	x0 := float64(marginLeft)
	y0 := float64(marginTop) + plotH

	top := niceCeil(t.MaxValue())
	for i := 0; i <= yTicks; i++ {
		v := top * float64(i) / yTicks
		y := y0 - plotH*float64(i)/yTicks
		fmt.Fprintf(&b, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#e0e0e0"/>`+"\n",
			num(x0), num(y), num(x0+plotW), num(y))
		fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="end">%s</text>`+"\n",
			num(x0-6), num(y+4), num(v))
	}
	fmt.Fprintf(&b, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#333"/>`+"\n", num(x0), num(y0), num(x0+plotW), num(y0))
	fmt.Fprintf(&b, `<line x1="%s" y1="%s" x2="%s" y2="%s" stroke="#333"/>`+"\n", num(x0), num(marginTop), num(x0), num(y0))

	if n := len(t.Rows); n > 0 && len(t.Labels) > 0 {
		groupW := plotW / float64(n)
		barW := groupW * 0.8 / float64(len(t.Labels))
		for gi, row := range t.Rows {
			gx := x0 + groupW*float64(gi) + groupW*0.1
			for qi, v := range row.Quantiles {
				h := 0.0
				if top > 0 {
					h = plotH * v / top
				}
				fmt.Fprintf(&b, `<rect x="%s" y="%s" width="%s" height="%s" fill="%s"><title>%d %s: %s</title></rect>`+"\n",
					num(gx+barW*float64(qi)), num(y0-h), num(barW), num(h), color(qi),
					row.Year, html.EscapeString(t.Labels[qi]), num(v))
			}
			fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="middle">%d</text>`+"\n",
				num(gx+groupW*0.4), num(y0+18), row.Year)
		}
	} else {
		fmt.Fprintf(&b, `<text x="%s" y="%s" text-anchor="middle" fill="#888">No data</text>`+"\n",
			num(x0+plotW/2), num(y0-plotH/2))
	}

	fmt.Fprintf(&b, `<text x="%s" y="%d" text-anchor="middle">Year Approved</text>`+"\n",
		num(x0+plotW/2), chartHeight-20)
	fmt.Fprintf(&b, `<text x="18" y="%s" text-anchor="middle" transform="rotate(-90 18 %s)">Days Elapsed</text>`+"\n",
		num(y0-plotH/2), num(y0-plotH/2))

	lx := x0 + plotW + 24
	for i, label := range t.Labels {
		ly := float64(marginTop) + float64(i)*20
		fmt.Fprintf(&b, `<rect x="%s" y="%s" width="12" height="12" fill="%s"/>`+"\n", num(lx), num(ly), color(i))
		fmt.Fprintf(&b, `<text x="%s" y="%s">%s</text>`+"\n", num(lx+18), num(ly+10), html.EscapeString(label))
	}
	b.WriteString("</svg>\n")
	return b.String()
}

func color(i int) string {
	return palette[i%len(palette)]
}

// niceCeil rounds v up to 1, 2 or 5 times a power of ten.
func niceCeil(v float64) float64 {
	if v <= 0 {
		return 1
	}
	exp := math.Pow(10, math.Floor(math.Log10(v)))
	for _, m := range []float64{1, 2, 5, 10} {
		if m*exp >= v {
			return m * exp
		}
	}
	return 10 * exp
}

func num(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
