// Package main is the entry point for the texbridge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"texbridge/internal/config"
	"texbridge/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

// cfgManager holds the configuration loaded by PersistentPreRunE.
var cfgManager *config.ConfigManager

// rootCmd is the base command for the texbridge CLI.
var rootCmd = &cobra.Command{
	Use:   "texbridge",
	Short: "Convert documents between LaTeX and Typst",
	Long: `texbridge converts LaTeX documents and math to Typst and back. Macros are
expanded, Typst scripting is evaluated where it can be, and every construct that
could not be carried over is reported as a loss instead of failing the run.

Conversion is a subcommand: convert. lint and metrics inspect a single source,
and corpus converts a directory and compares it with earlier runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cm, err := config.NewConfigManager(path)
		if err != nil {
			return err
		}
		if err := cm.Load(); err != nil {
			return err
		}

		cfg := cm.GetConfig()
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-file") {
			cfg.Log.File, _ = cmd.Flags().GetString("log-file")
		}

		lc, err := cm.LoggerConfig()
		if err != nil {
			return err
		}
		if err := logger.Init(lc); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfgManager = cm
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./texbridge.yaml or ~/.config/texbridge/texbridge.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output (also NO_COLOR)")
}

func main() {
	err := rootCmd.Execute()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
