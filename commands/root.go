// Package commands implements the docbot command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github/itish2003/docbot/config"
	"github/itish2003/docbot/logging"
	"github/itish2003/docbot/services"
)

var (
	cfgFile       string
	logLevel      string
	currentConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "docbot",
	Short:         "docbot answers questions about the documents you upload",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if err := logging.Init(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
		}); err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		services.ConfigurePDFLicense(cfg.PDFLicense)
		currentConfig = cfg
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Close()
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./docbot.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}

func getConfig() *config.Config {
	return currentConfig
}
