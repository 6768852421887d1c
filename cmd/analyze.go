// -- cmd/analyze.go --
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/internal/collect"
	"github.com/xkilldash9x/suture-cli/internal/llmclient"
	"github.com/xkilldash9x/suture-cli/internal/llmutil"
	"github.com/xkilldash9x/suture-cli/internal/observability"
	"github.com/xkilldash9x/suture-cli/internal/patch"
	"github.com/xkilldash9x/suture-cli/internal/reporting"
)

func newAnalyzeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Send analysis inputs to the model and extract fix proposals",
		Long: `Analyze gathers lint output, audit results and code samples, sends them to
the remote model, extracts the tagged fix proposals from the response, and
writes the response, report and fix artifacts. The last line on stdout is
always "fixes_available=true|false" for the CI orchestrator.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd)
		},
	}
}

func runAnalyze(cmd *cobra.Command) error {
	logger := observability.GetLogger()
	ctx := cmd.Context()

	// The pipeline signal goes to stdout; everything else stays on stderr.
	signal := func(available bool) {
		fmt.Fprintf(cmd.OutOrStdout(), "fixes_available=%t\n", available)
	}

	if err := cfg.ValidateCredential(); err != nil {
		signal(false)
		return err
	}

	client, err := llmclient.NewClient(cfg.LLM, logger)
	if err != nil {
		signal(false)
		return err
	}

	collector := collect.NewCollector(logger, cfg.Collect)
	lister := collect.NewChangeLister(logger, cfg.CI, cfg.Collect.SourceExtension)
	artifacts := reporting.NewWriter(logger, cfg.Artifacts)

	changed := lister.ChangedFiles(ctx)
	inputs := collector.Gather(changed)
	prompt := collect.BuildPrompt(inputs)

	logger.Info("Sending analysis request",
		zap.String("model", cfg.LLM.Model),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("changed_files", len(changed)))

	resp, err := client.Send(ctx, llmclient.AnalysisRequest{
		System: collect.SystemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		signal(false)
		return fmt.Errorf("analysis request failed: %w", err)
	}

	// The raw response is the primary audit artifact; losing it is a
	// catastrophic I/O failure.
	if err := artifacts.WriteResponse(resp.Text); err != nil {
		signal(false)
		return err
	}

	extractor := llmutil.NewExtractor(logger)
	if err := artifacts.WriteReport(extractor.StripProposal(resp.Text)); err != nil {
		signal(false)
		return err
	}

	payload, ok := extractor.ExtractProposal(resp.Text)
	if !ok {
		logger.Info("Response carries no fix proposals")
		if err := artifacts.WriteFixes(nil); err != nil {
			signal(false)
			return err
		}
		signal(false)
		return nil
	}

	fixes, err := patch.NewParser(logger).Parse(payload)
	if err != nil {
		var parseErr *patch.ParseError
		if errors.As(err, &parseErr) {
			// Malformed upstream content: preserve the payload, report
			// zero fixes, terminate cleanly.
			if werr := artifacts.WriteRawPayload(parseErr.Raw); werr != nil {
				signal(false)
				return werr
			}
			if werr := artifacts.WriteFixes(nil); werr != nil {
				signal(false)
				return werr
			}
			signal(false)
			return nil
		}
		signal(false)
		return err
	}

	if err := artifacts.WriteFixes(fixes); err != nil {
		signal(false)
		return err
	}

	logger.Info("Analysis complete", zap.Int("fix_records", len(fixes)))
	signal(len(fixes) > 0)
	return nil
}
