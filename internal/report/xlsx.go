package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
)

const (
	distributionSheet = "Distribution"
	percentileSheet   = "Percentile"
)

// Workbook builds an XLSX workbook with the distribution table and, when p is
// not nil, a sheet describing the percentile result.
func Workbook(t analysis.Table, p *analysis.Percentile) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", distributionSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := append([]string{"notice_year", "count", "mean", "std"}, t.Labels...)
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(distributionSheet, cell, h)
	}
	for r, row := range t.Rows {
		values := []any{row.Year, row.Count, row.Mean, row.Std}
		for _, q := range row.Quantiles {
			values = append(values, q)
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(distributionSheet, cell, v)
		}
	}
	_ = f.SetColWidth(distributionSheet, "A", "A", 14)

	if p != nil {
		if _, err := f.NewSheet(percentileSheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create sheet: %w", err)
		}
		rows := [][]any{
			{"service_center", string(p.Center)},
			{"application_date", p.ApplicationDate.Format(time.DateOnly)},
			{"days_elapsed", p.DaysElapsed},
			{"window_start", p.WindowStart.Format(time.DateOnly)},
			{"window_end", p.WindowEnd.Format(time.DateOnly)},
			{"samples", p.Samples},
			{"percentile", p.Value},
		}
		for r, kv := range rows {
			for c, v := range kv {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(percentileSheet, cell, v)
			}
		}
		_ = f.SetColWidth(percentileSheet, "A", "B", 18)
	}
	return f, nil
}
