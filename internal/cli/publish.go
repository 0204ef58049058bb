package cli

import (
	"context"
	"encoding/json"

	"examprep-service/internal/config"
	"examprep-service/internal/logger"
	"github.com/spf13/cobra"
)

// NewPublishCmd snapshots a quiz into a new immutable version.
func NewPublishCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <quizID>",
		Short: "Publish the current state of a quiz as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd.Context(), *configPath, func(ctx context.Context, cfg config.Config, log *logger.Logger, svc *services) error {
				res, err := svc.publisher.Publish(ctx, args[0])
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"quizVersionId":  res.QuizVersionID,
					"sequenceNumber": res.SequenceNumber,
					"questions":      len(res.SnapshotDocument.Questions),
				})
			})
		},
	}
}
