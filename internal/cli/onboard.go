package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/schedule"
)

func newOnboardCommand() *cobra.Command {
	var (
		name     string
		slug     string
		timezone string
		owner    string
	)
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create a business with the default weekly schedule and print an owner token",
		Long: `Create a business with Mon-Fri 09:00-17:00 rules and print a JWT for its owner.

Examples:
  booking onboard --name "Acme Dental" --slug acme-dental --timezone Europe/Berlin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireJWTSecret(); err != nil {
				return err
			}

			ownerID := uuid.New()
			if owner != "" {
				if ownerID, err = uuid.Parse(owner); err != nil {
					return fmt.Errorf("invalid --owner: %w", err)
				}
			}

			ctx := cmd.Context()
			c, err := openContainer(ctx, cfg)
			if err != nil {
				return err
			}
			defer c.Close()

			biz, err := c.Schedule.Onboard(ctx, schedule.BusinessInput{
				Name:        name,
				Slug:        slug,
				Timezone:    timezone,
				OwnerUserID: ownerID,
			})
			if err != nil {
				return err
			}
			token, err := c.Tokens.Issue(ownerID, biz.ID, auth.RoleOwner)
			if err != nil {
				return fmt.Errorf("issue owner token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "business_id=%s\n", biz.ID)
			fmt.Fprintf(out, "owner_user_id=%s\n", ownerID)
			fmt.Fprintf(out, "owner_token=%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "business name")
	cmd.Flags().StringVar(&slug, "slug", "", "unique slug")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA timezone")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id (generated when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("slug")
	return cmd
}
