package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/authgate/internal/config"
	"github.com/aretw0/authgate/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfg    config.Config
	logger *slog.Logger = logging.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "authgate",
	Short: "authgate turns suggestions into deliberately authorized, audited, reversible actions",
	Long: `authgate gates machine-generated suggestions behind a hold-and-double-confirm gesture,
records every authorized action in a hash-chained ledger and can undo it from a checkpoint.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.Log.Level = level
		}
		lvl, err := logging.ParseLevel(loaded.Log.Level)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = logging.New(lvl, logging.Format(cfg.Log.Format))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file (default $AUTHGATE_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
}
