package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"omr-engine/internal/layout"
	"omr-engine/internal/logging"
	"omr-engine/internal/version"
)

// commandContext carries the persistent flags and lazily-loaded batch
// configuration shared by all subcommands.
type commandContext struct {
	thresholdsFlag string
	layoutsFlag    string
	keysFlag       string
	logLevelFlag   string
	logFormatFlag  string

	logger *slog.Logger
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	log, err := logging.New(logging.Options{
		Level:  c.logLevelFlag,
		Format: c.logFormatFlag,
	})
	if err != nil {
		return nil, err
	}
	c.logger = log
	return log, nil
}

func (c *commandContext) loadThresholds() (layout.Thresholds, error) {
	if c.thresholdsFlag == "" {
		return layout.DefaultThresholds(), nil
	}
	return layout.LoadThresholds(c.thresholdsFlag)
}

// loadTable builds the layout/key table. A layouts file is optional: without
// one, every version in the keys file uses the standard printed sheet.
func (c *commandContext) loadTable() (*layout.Table, error) {
	if c.layoutsFlag != "" {
		return layout.LoadTable(c.layoutsFlag, c.keysFlag)
	}
	return layout.LoadStandardTable(c.keysFlag)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "omrgrade",
		Short:         "Score photographed answer sheets",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.thresholdsFlag, "thresholds", "t", "", "Thresholds TOML file (defaults used when omitted)")
	rootCmd.PersistentFlags().StringVar(&ctx.layoutsFlag, "layouts", "", "Sheet layouts JSON file (standard sheet when omitted)")
	rootCmd.PersistentFlags().StringVarP(&ctx.keysFlag, "keys", "k", "", "Answer keys JSON file")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&ctx.logFormatFlag, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newValidateCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
