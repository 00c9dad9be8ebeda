// Package cmd implements the notifier CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	apiAddr  string
	apiToken string
)

var rootCmd = &cobra.Command{
	Use:   "notifier",
	Short: "notifier sends attendance notifications over WhatsApp",
	Long: "notifier keeps a WhatsApp session alive and posts a message to a group\n" +
		"whenever an employee logs in or out. Run `notifier serve` for the service;\n" +
		"the other commands talk to a running service over its admin API.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/notifier.local.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", envOr("NOTIFIER_ADDR", "http://localhost:8085"), "admin API base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("NOTIFIER_ADMIN_TOKEN"), "admin API bearer token")
}

// SetVersionInfo sets the version info from build-time ldflags.
func SetVersionInfo(version, commit, date string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("notifier version {{.Version}}\ncommit: %s\nbuilt: %s\n", commit, date))
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
