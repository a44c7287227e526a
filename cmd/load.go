// File: cmd/load.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/auditdb/api/schemas"
	"github.com/xkilldash9x/auditdb/internal/config"
	"github.com/xkilldash9x/auditdb/internal/ingest"
	"github.com/xkilldash9x/auditdb/internal/normalize"
	"github.com/xkilldash9x/auditdb/internal/observability"
	"github.com/xkilldash9x/auditdb/internal/reporting"
)

// newLoadCmd creates and configures the `load` command.
func newLoadCmd(provider storeProvider) *cobra.Command {
	var input string
	var rebuild bool

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Normalize an audit export and write it to the store",
		Long: `Reads a JSON export of audit engagements, flattens it into issues, auditors,
memberships and findings, and writes the rows in a single transaction.
With --new the schema is dropped and recreated first; otherwise the rows are
appended after the issues already stored. An input of "-" reads stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("input") {
				cfg.SetIngestInputPath(input)
			}
			if cmd.Flags().Changed("new") {
				cfg.SetIngestRebuild(rebuild)
			}

			summary, err := runLoad(ctx, observability.GetLogger(), cfg, cmd.InOrStdin(), provider)
			if err != nil {
				return err
			}
			return writeResult(cmd, cfg, summary)
		},
	}

	loadCmd.Flags().StringVarP(&input, "input", "i", "", "JSON export to load (default ingest.input_path)")
	loadCmd.Flags().BoolVar(&rebuild, "new", false, "drop and recreate the schema before loading")

	return loadCmd
}

// runLoad contains the core, testable logic of the load command.
func runLoad(ctx context.Context, logger *zap.Logger, cfg config.Interface, stdin io.Reader, provider storeProvider) (reporting.LoadSummary, error) {
	start := time.Now()
	ingestCfg := cfg.Ingest()
	loadID := uuid.NewString()
	logger = logger.With(zap.String("load_id", loadID))

	docs, err := readInput(ingestCfg.InputPath, stdin)
	if err != nil {
		return reporting.LoadSummary{}, err
	}
	logger.Info("Read source documents", zap.String("input", ingestCfg.InputPath), zap.Int("documents", len(docs)))

	batch, err := normalize.New(logger).Normalize(docs)
	if err != nil {
		return reporting.LoadSummary{}, fmt.Errorf("failed to normalize input: %w", err)
	}

	loader, cleanup, err := provider.CreateLoader(ctx, cfg)
	if err != nil {
		return reporting.LoadSummary{}, fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := loader.Load(ctx, batch, ingestCfg.Rebuild); err != nil {
		logger.Error("Load failed", zap.Error(err), zap.Bool("rebuild", ingestCfg.Rebuild))
		return reporting.LoadSummary{}, fmt.Errorf("failed to load batch: %w", err)
	}

	summary := summarize(len(docs), batch, ingestCfg.Rebuild, time.Since(start))
	summary.LoadID = loadID
	return summary, nil
}

func readInput(path string, stdin io.Reader) ([]schemas.SourceDocument, error) {
	switch path {
	case "":
		return nil, fmt.Errorf("no input given (use --input or ingest.input_path)")
	case "-":
		return ingest.Decode(stdin)
	default:
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("failed to expand input path %s: %w", path, err)
		}
		return ingest.ReadFile(expanded)
	}
}

func summarize(documents int, batch *schemas.Batch, rebuilt bool, elapsed time.Duration) reporting.LoadSummary {
	return reporting.LoadSummary{
		Documents:   documents,
		Issues:      len(batch.Issues),
		Auditors:    len(batch.Auditors),
		Memberships: len(batch.Memberships),
		Findings:    len(batch.Findings),
		Rebuilt:     rebuilt,
		DurationMS:  elapsed.Milliseconds(),
	}
}
