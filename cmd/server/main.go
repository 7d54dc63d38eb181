package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/akudrin/lobbywire/internal/app"
	"github.com/akudrin/lobbywire/internal/config"
	"github.com/akudrin/lobbywire/internal/log"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	root := &cobra.Command{
		Use:           "lobbywire",
		Short:         "Real-time game lobby session broker",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(configPath, overrides)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config file")
	flags.StringVar(&overrides.Addr, "addr", "", "lobby TCP listen address")
	flags.StringVar(&overrides.OpsAddr, "ops-addr", "", "ops HTTP listen address")
	flags.DurationVar(&overrides.HeartbeatTimeout, "heartbeat-timeout", 0, "drop peers silent for this long")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	return root
}

func serve(configPath string, overrides config.Config) error {
	// Bootstrap logger for config loading; rebuilt once the level is known.
	logger := log.New("info")

	cfg, path, err := config.Load(logger, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(overrides)

	logger = log.New(cfg.LogLevel)
	logger.Info().Str("config", path).Str("addr", cfg.Addr).Str("version", version).Msg("starting lobbywire")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
