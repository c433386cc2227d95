package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/tickitapp/tickit-sync/internal/di"
	"github.com/tickitapp/tickit-sync/internal/di/providers"
)

func newServeCmd() *cobra.Command {
	var flags providers.Flags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.Version = version
			return runServe(cmd, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path")
	cmd.Flags().IntVarP(&flags.Port, "port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().StringVarP(&flags.Bind, "bind", "b", "", "bind address (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, flags providers.Flags) error {
	injector := di.NewContainer(flags)

	if err := di.Bootstrap(injector); err != nil {
		_ = injector.Shutdown()
		return fmt.Errorf("failed to bootstrap server: %w", err)
	}

	log := do.MustInvoke[*providers.LoggerHandle](injector)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("Shutting down server gracefully...")

	// The container shuts services down in reverse dependency order.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Goodbye")
	return nil
}
