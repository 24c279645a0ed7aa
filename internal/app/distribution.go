package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/analysis"
	"github.com/JakeFAU/niw-crawler/internal/crawler"
	"github.com/JakeFAU/niw-crawler/internal/report"
)

// DistributionResult summarizes one distribution command run.
type DistributionResult struct {
	Table      analysis.Table
	Percentile *analysis.Percentile
	Artifacts  report.Artifacts
	// AttachmentURI is the mirrored chart, empty when mirroring is disabled.
	AttachmentURI  string
	NotificationID string
}

// Distribution analyzes the dataset for center, renders the report
// artifacts and, when sendEmail is set, hands the email to the notifier.
func (a *App) Distribution(ctx context.Context, center crawler.ServiceCenter, sendEmail bool) (DistributionResult, error) {
	table, err := a.analyzer.Analyze(ctx, center)
	if err != nil {
		return DistributionResult{}, fmt.Errorf("analyze %s: %w", center, err)
	}
	res := DistributionResult{Table: table}

	appDate, err := a.cfg.ApplicationDate()
	if err != nil {
		return res, err
	}
	pct, err := a.analyzer.PercentileOfDaysElapsed(ctx, center, appDate)
	switch {
	case err == nil:
		res.Percentile = &pct
	case errors.Is(err, analysis.ErrNoSamples):
		a.logger.Warn("No recent approvals to rank against", zap.String("service_center", string(center)))
	default:
		return res, fmt.Errorf("percentile %s: %w", center, err)
	}

	artifacts, err := report.Render(a.dirs.Reports(), table, res.Percentile)
	if err != nil {
		return res, fmt.Errorf("render report: %w", err)
	}
	res.Artifacts = artifacts
	a.logger.Info("Rendered distribution report",
		zap.String("service_center", string(center)),
		zap.Strings("artifacts", artifacts.Paths()),
	)
	res.AttachmentURI = a.mirrorArtifacts(ctx, artifacts)

	if !sendEmail {
		return res, nil
	}
	if res.Percentile == nil {
		return res, fmt.Errorf("send email for %s: %w", center, analysis.ErrNoSamples)
	}
	body, err := report.EmailHTML(*res.Percentile)
	if err != nil {
		return res, err
	}
	runID, err := a.ids.NewID()
	if err != nil {
		return res, fmt.Errorf("generate run id: %w", err)
	}
	id, err := a.notifier.Notify(ctx, crawler.Notification{
		RunID:          runID,
		Center:         center,
		Percentile:     res.Percentile.Value,
		HTMLContent:    body,
		AttachmentPath: artifacts.SVGPath,
		AttachmentURI:  res.AttachmentURI,
		GeneratedAt:    a.clock.Now(),
	})
	if err != nil {
		return res, fmt.Errorf("notify: %w", err)
	}
	res.NotificationID = id
	return res, nil
}

// mirrorArtifacts copies the report files to the blob store and returns the
// chart's URI. Failures are logged and skipped.
func (a *App) mirrorArtifacts(ctx context.Context, artifacts report.Artifacts) string {
	if a.blobs == nil {
		return ""
	}
	types := map[string]string{
		artifacts.HTMLPath: "text/html; charset=utf-8",
		artifacts.SVGPath:  "image/svg+xml",
		artifacts.XLSXPath: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}
	var chartURI string
	for _, path := range artifacts.Paths() {
		uri, err := a.putFile(ctx, "reports/"+filepath.Base(path), types[path], path)
		if err != nil {
			a.logger.Warn("Report mirror failed", zap.String("path", path), zap.Error(err))
			continue
		}
		if path == artifacts.SVGPath {
			chartURI = uri
		}
	}
	return chartURI
}

func (a *App) putFile(ctx context.Context, key, contentType, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return a.blobs.PutObject(ctx, key, contentType, f)
}
