// Package cli implements the droplog command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/droplog/droplog/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "droplog",
	Short: "Local-first water intake tracker",
	Long: `droplog tracks your daily water intake with levels, achievements,
and streaks. Everything works offline; sign in to sync with the
cloud backend when connectivity allows.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon loads configuration and assembles the application for one-shot
// commands. Callers must Close it.
func openDaemon() (*daemon.Daemon, error) {
	cfg, err := daemon.LoadConfig(daemon.ConfigPath())
	if err != nil {
		return nil, err
	}
	return daemon.New(cfg)
}
