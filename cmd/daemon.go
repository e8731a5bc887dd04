package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pipebase/pipebased/internal/config"
	"github.com/pipebase/pipebased/internal/daemond"
	"github.com/pipebase/pipebased/internal/rpcadapter"
	"github.com/pipebase/pipebased/pkg/logging"
)

var (
	daemonConfigPath string
	daemonLogLevel   string
)

// daemonCmd starts the daemon: load configuration, bootstrap the
// repository/pipe managers and façade, and serve the RPC adapter until
// terminated.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipebased daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemon,
}

func newDaemonCmd() *cobra.Command { return daemonCmd }

func runDaemon(cmd *cobra.Command, _ []string) error {
	logging.Init(logging.ParseLevel(daemonLogLevel), cmd.ErrOrStderr())

	var cfg *config.Config
	var err error
	if daemonConfigPath != "" {
		cfg, err = config.Load(daemonConfigPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	app, err := daemond.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to bootstrap daemon: %w", err)
	}

	server := rpcadapter.New(app.Facade())
	return app.Serve(ctx, server)
}

func init() {
	daemonCmd.Flags().StringVar(&daemonConfigPath, "config", "", "path to the daemon config file (overrides "+config.EnvVar+")")
	daemonCmd.Flags().StringVar(&daemonLogLevel, "log-level", "info", "log level: debug, info, warn, error")
}
