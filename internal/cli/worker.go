package cli

import (
	"github.com/spf13/cobra"

	"github.com/Leganyst/appointment-booking/internal/logger"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run slot refresh, reminders, token sweep and the mail dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			c, err := openContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.SubscribeNotifications(); err != nil {
				return err
			}
			runner := c.Runner()
			runner.Start(ctx)
			logger.Info("worker started")

			<-ctx.Done()
			logger.Info("stopping worker")
			runner.Stop()
			return nil
		},
	}
}
