package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Leganyst/appointment-booking/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c, err := openContainer(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Migrate(); err != nil {
				return fmt.Errorf("auto migrate: %w", err)
			}
			logger.Info("schema is up to date")
			return nil
		},
	}
}
