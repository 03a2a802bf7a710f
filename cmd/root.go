package cmd

import (
	"fmt"
	"os"

	"nudfans-backend/config"
	"nudfans-backend/utils"

	"github.com/spf13/cobra"
)

var Version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nudfans",
		Short:         "Creator subscription platform backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(cronCmd())
	return root
}

// Execute runs the command line and exits the process on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		utils.LogError(err, "command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the logging settings.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	utils.ConfigureLogger(cfg.LogLevel, cfg.LogDir)
	return cfg, nil
}
