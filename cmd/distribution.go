package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/niw-crawler/internal/crawler"
)

// newDistributionCmd creates the 'distribution' subcommand.
func newDistributionCmd() *cobra.Command {
	var (
		centerFlag string
		sendEmail  bool
	)
	cmd := &cobra.Command{
		Use:   "distribution",
		Short: "Report NIW processing times for a service center",
		Long: `Computes per-year processing time quantiles for one service center,
writes <center>_distribution.{html,svg,xlsx} to the reports directory and
ranks the configured application date against recent approvals.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			center, ok := crawler.ParseServiceCenter(centerFlag)
			if !ok {
				return fmt.Errorf("unknown service center %q (want SRC or LIN)", centerFlag)
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Distribution(cmd.Context(), center, sendEmail)
			if err != nil {
				return err
			}
			fields := []zap.Field{
				zap.String("service_center", string(center)),
				zap.String("html", res.Artifacts.HTMLPath),
				zap.Int("samples", res.Table.Samples),
			}
			if res.Percentile != nil {
				fields = append(fields, zap.Float64("percentile", res.Percentile.Value))
			}
			if res.NotificationID != "" {
				fields = append(fields, zap.String("notification_id", res.NotificationID))
			}
			a.Logger().Info("Distribution command finished", fields...)
			return nil
		},
	}
	cmd.Flags().StringVar(&centerFlag, "service-center", "", "service center code (SRC or LIN)")
	cmd.Flags().BoolVar(&sendEmail, "send-email", false, "hand the report to the configured notifier")
	_ = cmd.MarkFlagRequired("service-center")
	return cmd
}
