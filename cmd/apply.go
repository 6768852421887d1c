// -- cmd/apply.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/observability"
	"github.com/xkilldash9x/suture-cli/internal/patch"
	"github.com/xkilldash9x/suture-cli/internal/reporting"
)

func newApplyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "apply [fixes-file]",
		Short: "Apply previously extracted fix proposals to the working tree",
		Long: `Apply loads a fix artifact produced by analyze and performs the edits under
the safety budgets: per-file edit caps, exact-match substitution, and a
bounded size delta. Files that violate a budget are skipped with a logged
reason; a skip never aborts the batch. The last line on stdout is
"changes_applied=true|false".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runApply(cmd, path)
		},
	}
}

func runApply(cmd *cobra.Command, fixesPath string) error {
	logger := observability.GetLogger()

	artifacts := reporting.NewWriter(logger, cfg.Artifacts)
	fixes, err := artifacts.ReadFixes(fixesPath)
	if err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "changes_applied=false")
		return err
	}

	applier := patch.NewApplier(logger, cfg.Safety)
	outcomes := applier.Apply(fixes)

	for _, o := range outcomes {
		if o.Skipped {
			logger.Warn("File skipped",
				zap.String("file", o.FilePath),
				zap.String("reason", string(o.SkipReason)))
			continue
		}
		logger.Info("File processed",
			zap.String("file", o.FilePath),
			zap.Int("edits_attempted", o.EditsAttempted),
			zap.Int("edits_applied", o.EditsApplied),
			zap.Bool("modified", o.Modified))
	}

	summary := patch.Summarize(outcomes)
	logger.Info("Apply complete",
		zap.Int("files_modified", summary.FilesModified),
		zap.Int("total_edits_applied", summary.TotalEditsApplied))

	// Both "changes applied" and "no changes" are successful terminations;
	// the orchestrator reads the distinction from stdout.
	fmt.Fprintf(cmd.OutOrStdout(), "changes_applied=%t\n", summary.TotalEditsApplied > 0)
	return nil
}
