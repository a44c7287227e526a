// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/auditdb/internal/config"
	"github.com/xkilldash9x/auditdb/internal/observability"
	"github.com/xkilldash9x/auditdb/internal/reporting"
)

type contextKey string

const configKey contextKey = "config"

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	cfgFile string
	dbURL   string
	format  string
	output  string
}

// NewRootCmd builds the command tree. provider opens the store for commands
// that need one.
func NewRootCmd(provider storeProvider) *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "auditdb",
		Short:         "auditdb normalizes audit-engagement exports into PostgreSQL and queries them.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, flags.cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			if err := applyFlagOverrides(cmd, cfg, flags); err != nil {
				return err
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting auditdb", zap.String("version", Version), zap.String("command", cmd.Name()))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&flags.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&flags.dbURL, "db", "", "PostgreSQL connection URL; overrides database.url")
	rootCmd.PersistentFlags().StringVarP(&flags.format, "format", "f", "", "output format: table or json")
	rootCmd.PersistentFlags().StringVarP(&flags.output, "output", "o", "", "output file path (default stdout)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newLoadCmd(provider),
		newAuditorsCmd(provider),
		newFindingsCmd(provider),
		newIssuesCmd(provider),
		newCountCmd(provider),
		newSQLCmd(provider),
		newSeveritiesCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the CLI with the production store provider.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd(NewStoreProvider())
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		rootCmd.PrintErrln("Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads in config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path %s: %w", cfgFile, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("AUDITDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// applyFlagOverrides copies explicitly set persistent flags onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg config.Interface, flags *rootFlags) error {
	if cmd.Flags().Changed("db") {
		cfg.SetDatabaseURL(flags.dbURL)
	}
	if cmd.Flags().Changed("format") {
		out := config.OutputConfig{Format: flags.format}
		if err := out.Validate(); err != nil {
			return err
		}
		cfg.SetOutputFormat(flags.format)
	}
	if cmd.Flags().Changed("output") {
		cfg.SetOutputPath(flags.output)
	}
	return nil
}

// getConfigFromContext returns the config stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in command context")
	}
	return cfg, nil
}

// writeResult renders v with the configured reporter. Stdout results go to the
// command's output stream.
func writeResult(cmd *cobra.Command, cfg config.Interface, v any) error {
	out := cfg.Output()
	if out.Path != "" && out.Path != "stdout" {
		expanded, err := homedir.Expand(out.Path)
		if err != nil {
			return fmt.Errorf("failed to expand output path %s: %w", out.Path, err)
		}
		out.Path = expanded
	}
	reporter, err := reporting.New(out.Format, out.Path, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			observability.GetLogger().Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(v); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if out.Path != "" && out.Path != "stdout" {
		observability.GetLogger().Info("Result written to file", zap.String("path", out.Path))
	}
	return nil
}
