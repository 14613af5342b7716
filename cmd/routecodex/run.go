package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"routecodex-hq/routecodex/pkg/config"
	"routecodex-hq/routecodex/pkg/server"
	"routecodex-hq/routecodex/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	healthTimeout time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The server preloads the pipeline instance pool, validates the route
table, and then listens for client traffic.

Examples:
  # Start with default config
  routecodex run

  # Start with custom config and address override
  routecodex run --config /etc/routecodex/config.yaml --listen 0.0.0.0:5506`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().DurationVar(&runFlags.healthTimeout, "health-timeout", 30*time.Second, "max wait for the pipeline to become ready")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &exitError{code: exitConfigInvalid, err: err}
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	logger, err := logging.Setup(cfg.Telemetry.Logging)
	if err != nil {
		return &exitError{code: exitConfigInvalid, err: err}
	}

	srv, err := server.New(cfg)
	if err != nil {
		var pe *server.PreloadError
		if errors.As(err, &pe) {
			return &exitError{code: exitPreloadFailed, err: err}
		}
		return err
	}
	if err := waitReady(srv, runFlags.healthTimeout); err != nil {
		return &exitError{code: exitHealthTimeout, err: err}
	}

	logger.Info("gateway starting",
		"address", cfg.Server.ListenAddress,
		"providers", len(cfg.Providers),
		"routes", len(cfg.Routes),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}

func waitReady(srv *server.Server, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if srv.Ready() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("pipeline not ready after %s", timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}
