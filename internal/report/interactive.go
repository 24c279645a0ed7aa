package report

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
)

// Bar builds the interactive grouped bar chart: one category per notice year
// and one series per quantile column. A non-nil p adds the percentile summary
// as the subtitle.
func Bar(t analysis.Table, p *analysis.Percentile) *charts.Bar {
	subtitle := ""
	switch {
	case p != nil:
		subtitle = PercentileSentence(p)
	case t.IsEmpty():
		subtitle = "No data"
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: ChartTitle(t),
			Width:     strconv.Itoa(chartWidth) + "px",
			Height:    strconv.Itoa(chartHeight) + "px",
		}),
		charts.WithTitleOpts(opts.Title{Title: ChartTitle(t), Subtitle: subtitle}),
		charts.WithLegendOpts(opts.Legend{Orient: "vertical", Right: "0"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Year Approved"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Days Elapsed"}),
	)

	years := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		years[i] = strconv.Itoa(row.Year)
	}
	bar.SetXAxis(years)

	for i, label := range t.Labels {
		data := make([]opts.BarData, len(t.Rows))
		for j, row := range t.Rows {
			if i < len(row.Quantiles) {
				data[j] = opts.BarData{Value: row.Quantiles[i]}
			}
		}
		bar.AddSeries(label, data)
	}
	return bar
}

// HTML renders the interactive chart as a standalone page.
func HTML(t analysis.Table, p *analysis.Percentile) (string, error) {
	var buf bytes.Buffer
	if err := Bar(t, p).Render(&buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}
