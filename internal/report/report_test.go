package report_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/report"
)

func sampleTable() analysis.Table {
	return analysis.Table{
		Center:    crawler.ServiceCenterSRC,
		Labels:    []string{"min", "50%", "max"},
		Quantiles: []float64{0, 0.5, 1},
		Rows: []analysis.Row{
			{Year: 2021, Summary: analysis.Summary{Count: 2, Mean: 150, Std: 70.71, Quantiles: []float64{100, 150, 200}}},
			{Year: 2022, Summary: analysis.Summary{Count: 1, Mean: 300, Quantiles: []float64{300, 300, 300}}},
		},
		Samples: 3,
	}
}

func samplePercentile() *analysis.Percentile {
	end := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	return &analysis.Percentile{
		Center:          crawler.ServiceCenterSRC,
		ApplicationDate: time.Date(2020, 12, 15, 0, 0, 0, 0, time.UTC),
		DaysElapsed:     1293,
		WindowStart:     end.AddDate(0, -6, 0),
		WindowEnd:       end,
		Samples:         42,
		Value:           87.5,
	}
}

func TestSVG(t *testing.T) {
	t.Parallel()

	svg := report.SVG(sampleTable())
	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.Contains(t, svg, "SRC Processing Time - NIW")
	assert.Contains(t, svg, "Year Approved")
	assert.Contains(t, svg, "Days Elapsed")
	assert.Contains(t, svg, ">2021<")
	assert.Contains(t, svg, ">2022<")
	// Two groups of three bars plus three legend swatches and the background.
	assert.Equal(t, 6+3+1, strings.Count(svg, "<rect"))
}

func TestBar(t *testing.T) {
	t.Parallel()

	bar := report.Bar(sampleTable(), nil)
	require.Len(t, bar.MultiSeries, 3)
	assert.Equal(t, "min", bar.MultiSeries[0].Name)
	assert.Equal(t, "max", bar.MultiSeries[2].Name)

	data, ok := bar.MultiSeries[1].Data.([]opts.BarData)
	require.True(t, ok)
	require.Len(t, data, 2)
	assert.Equal(t, 150.0, data[0].Value)
	assert.Equal(t, 300.0, data[1].Value)
}

func TestHTML(t *testing.T) {
	t.Parallel()

	page, err := report.HTML(sampleTable(), samplePercentile())
	require.NoError(t, err)
	assert.Contains(t, page, "SRC Processing Time - NIW")
	assert.Contains(t, page, "Year Approved")
	assert.Contains(t, page, "Days Elapsed")
	assert.Contains(t, page, "Percentile of Days Elapsed Based on Last 6 Months of I-140 NIW Data for SRC: 87.50%")

	empty, err := report.HTML(analysis.Table{Center: crawler.ServiceCenterLIN, Labels: []string{"min"}}, nil)
	require.NoError(t, err)
	assert.Contains(t, empty, "No data")
}

func TestSVGEmptyTable(t *testing.T) {
	t.Parallel()

	svg := report.SVG(analysis.Table{Center: crawler.ServiceCenterLIN, Labels: []string{"min"}})
	assert.Contains(t, svg, "No data")
}

func TestEmailHTML(t *testing.T) {
	t.Parallel()

	body, err := report.EmailHTML(*samplePercentile())
	require.NoError(t, err)
	assert.Contains(t, body, "Percentile of Days Elapsed Based on Last 6 Months of I-140 NIW Data for SRC: 87.50%")
	assert.Contains(t, body, "1293 days have elapsed since 2020-12-15")
	assert.Contains(t, body, "42 approvals")
}

func TestRender(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "reports")
	out, err := report.Render(dir, sampleTable(), samplePercentile())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "SRC_distribution.html"), out.HTMLPath)
	for _, p := range out.Paths() {
		assert.FileExists(t, p)
	}

	page, err := os.ReadFile(out.HTMLPath)
	require.NoError(t, err)
	assert.Contains(t, string(page), "echarts")
	assert.Contains(t, string(page), "<title>SRC Processing Time - NIW</title>")
	assert.Contains(t, string(page), "87.50%")

	wb, err := excelize.OpenFile(out.XLSXPath)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()

	rows, err := wb.GetRows("Distribution")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"notice_year", "count", "mean", "std", "min", "50%", "max"}, rows[0])
	assert.Equal(t, "2021", rows[1][0])
	assert.Equal(t, "200", rows[1][6])

	pct, err := wb.GetCellValue("Percentile", "B7")
	require.NoError(t, err)
	assert.Equal(t, "87.5", pct)
}

func TestRenderWithoutPercentile(t *testing.T) {
	t.Parallel()

	out, err := report.Render(t.TempDir(), sampleTable(), nil)
	require.NoError(t, err)

	wb, err := excelize.OpenFile(out.XLSXPath)
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	assert.Equal(t, []string{"Distribution"}, wb.GetSheetList())
}
