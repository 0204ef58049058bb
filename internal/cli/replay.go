package cli

import (
	"context"
	"fmt"

	"examprep-service/internal/config"
	"examprep-service/internal/logger"
	"github.com/spf13/cobra"
)

// NewReplayCmd runs one pass over rollups deferred by taxonomy failures.
func NewReplayCmd(configPath *string) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "replay-rollups",
		Short: "Apply stats rollups that were deferred at grading time",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), *configPath, func(ctx context.Context, cfg config.Config, log *logger.Logger, svc *services) error {
				if batch <= 0 {
					batch = cfg.Rollup.ReplayBatch
				}
				report, err := svc.attempts.ReplayPendingRollups(ctx, batch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d applied=%d failed=%d\n", report.Scanned, report.Applied, report.Failed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "max pending rollups to replay (defaults to rollup.replay_batch)")
	return cmd
}
