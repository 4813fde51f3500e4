package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Leganyst/appointment-booking/internal/availability"
	"github.com/Leganyst/appointment-booking/internal/model"
)

func newRefreshCommand() *cobra.Command {
	var businessID string
	cmd := &cobra.Command{
		Use:   "refresh-slots",
		Short: "Recompute the precomputed slot cache once",
		Long: `Recompute the precomputed slot cache over the configured horizon.

Examples:
  booking refresh-slots
  booking refresh-slots --business 3f0c6a8e-1b5e-4c39-9d43-0c1f4f8c2a11`,
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

			var stats availability.RefreshStats
			if businessID == "" {
				stats, err = c.Refresher.RefreshAll(ctx)
				if err != nil {
					return err
				}
			} else {
				id, err := uuid.Parse(businessID)
				if err != nil {
					return fmt.Errorf("invalid --business: %w", err)
				}
				biz, err := c.Engine.ResolveScope(ctx, model.Scope{BusinessID: id})
				if err != nil {
					return err
				}
				stats = c.Refresher.RefreshBusiness(ctx, biz)
				stats.Businesses = 1
			}

			fmt.Fprintf(cmd.OutOrStdout(), "businesses=%d days=%d slots=%d failed=%d purged=%d\n",
				stats.Businesses, stats.Days, stats.Slots, stats.Failed, stats.Purged)
			if stats.Failed > 0 {
				return fmt.Errorf("%d day(s) failed to refresh", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "refresh only this business")
	return cmd
}
