package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Leganyst/appointment-booking/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var (
		migrate    bool
		withWorker bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}
			ctx := cmd.Context()

			c, err := openContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			if migrate {
				if err := c.Migrate(); err != nil {
					return fmt.Errorf("auto migrate: %w", err)
				}
			}

			httpSrv := &http.Server{
				Addr:         cfg.Server.HTTPAddr,
				Handler:      c.HTTPHandler(),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  cfg.Server.IdleTimeout,
			}
			grpcSrv, health := c.GRPCServer()
			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.Server.GRPCAddr, err)
			}

			if withWorker {
				if err := c.SubscribeNotifications(); err != nil {
					return err
				}
				runner := c.Runner()
				runner.Start(ctx)
				defer runner.Stop()
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("http server listening", "addr", cfg.Server.HTTPAddr)
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http serve: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				logger.Info("grpc server listening", "addr", cfg.Server.GRPCAddr)
				if err := grpcSrv.Serve(lis); err != nil {
					return fmt.Errorf("grpc serve: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down servers")
				health.Shutdown()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()
				err := httpSrv.Shutdown(shutdownCtx)
				grpcSrv.GracefulStop()
				return err
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply schema migrations on start")
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also run background jobs in this process")
	return cmd
}
