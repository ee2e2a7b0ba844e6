package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syncline/syncline/internal/config"
	"github.com/syncline/syncline/internal/initialization"
	"github.com/syncline/syncline/internal/server"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the orchestration service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	container, err := initialization.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}

	container.Start()

	app := server.NewHTTPServer(server.HTTPServerDependencies{
		OrchestrationController: container.OrchestrationController,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
			cancel()
		}
	}()

	log.Info().Str("address", cfg.HTTPAddress).Msg("Syncline started")

	<-ctx.Done()

	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}

	return container.Shutdown(shutdownCtx)
}
