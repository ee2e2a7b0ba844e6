package cli

import (
	"context"

	"github.com/syncline/syncline/internal/config"
	"github.com/syncline/syncline/internal/initialization"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()

			// Container construction runs AutoMigrate against the
			// configured database.
			container, err := initialization.NewContainer(ctx, cfg)
			if err != nil {
				return err
			}

			log.Info().Msg("Migrations applied")

			return container.Shutdown(ctx)
		},
	}
}
