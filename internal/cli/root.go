// Package cli: команды процесса: serve, worker, migrate, refresh-slots, onboard.
package cli

import (
	"context"
	"time"
	// таймзоны бизнесов не должны зависеть от tzdata в образе
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Leganyst/appointment-booking/internal/app"
	"github.com/Leganyst/appointment-booking/internal/config"
	"github.com/Leganyst/appointment-booking/internal/logger"
)

type runInfo struct {
	correlationID uuid.UUID
	startedAt     time.Time
}

type runInfoKey struct{}

// NewRootCommand собирает дерево команд.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "booking",
		Short:         "Multi-tenant appointment booking core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			info := runInfo{correlationID: uuid.New(), startedAt: time.Now()}
			cmd.SetContext(context.WithValue(cmd.Context(), runInfoKey{}, info))
			logger.Debug("command start", "command", cmd.CommandPath(), "correlation_id", info.correlationID.String())
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			info, ok := cmd.Context().Value(runInfoKey{}).(runInfo)
			if !ok {
				return
			}
			logger.Debug("command end",
				"command", cmd.CommandPath(),
				"correlation_id", info.correlationID.String(),
				"duration_ms", time.Since(info.startedAt).Milliseconds(),
			)
		},
	}

	root.AddCommand(
		newServeCommand(),
		newWorkerCommand(),
		newMigrateCommand(),
		newRefreshCommand(),
		newOnboardCommand(),
	)
	return root
}

// Execute запускает CLI; ctx отменяется по сигналу.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// loadConfig читает конфиг и настраивает уровень логов.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

func openContainer(ctx context.Context, cfg *config.Config) (*app.Container, error) {
	return app.NewContainer(ctx, cfg)
}
