package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newScrapeCmd creates the 'scrape' subcommand, one incremental capture pass.
func newScrapeCmd() *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Download, convert and extract new receipt notices",
		Long: `Harvests the configured index pages, skips documents already in the
dataset, and appends the extracted records in chunks. Re-running resumes where
the previous run stopped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := a.Scrape(cmd.Context(), chunkSize)
			if errors.Is(err, context.Canceled) {
				a.Logger().Warn("Scrape interrupted", zap.Int("rows_written", stats.RowsWritten))
				return nil
			}
			if err != nil {
				return err
			}
			a.Logger().Info("Scrape command finished",
				zap.String("run_id", stats.RunID),
				zap.Int("rows_written", stats.RowsWritten),
				zap.Int("failed", stats.Failed),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "records per dataset append (default pipeline.chunk_size)")
	return cmd
}
