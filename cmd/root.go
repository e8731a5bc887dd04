// Package cmd holds the pipebased CLI: the daemon entrypoint and the
// command surface documented — not implemented — for the client
// commands, which are out of scope for this repository.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, matching the convention of returning a narrow, documented
// set rather than bare os.Exit(1) everywhere.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
)

// rootCmd is the base command for pipebased.
var rootCmd = &cobra.Command{
	Use:   "pipebased",
	Short: "Per-node pipe daemon: provisions and supervises long-running pipe processes",
	Long: `pipebased is a per-node build-and-deploy agent. It provisions,
activates, observes and tears down long-running "pipe" processes
through the host service manager, backed by a content-addressed
artifact repository.`,
	SilenceUsage: true,
}

// SetVersion sets the CLI version, injected at build time from main.
func SetVersion(v string) { rootCmd.Version = v }

// Execute runs the root command; it is the sole entry point called
// from main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "pipebased version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newClientCmd())
}
