package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/admxx9/pecc-studii-sub000/internal/models"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

// NewUsersCommand groups member account management.
func NewUsersCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage member accounts",
	}
	cmd.AddCommand(newUsersShowCommand(rootOpts))
	cmd.AddCommand(newUsersSetPlanCommand(rootOpts))
	cmd.AddCommand(newUsersPromoteCommand(rootOpts))
	return cmd
}

type userSummary struct {
	ID            string          `json:"id"`
	DisplayName   string          `json:"displayName"`
	Email         string          `json:"email"`
	IsAdmin       bool            `json:"isAdmin"`
	Plan          models.PlanType `json:"plan"`
	EffectivePlan models.PlanType `json:"effectivePlan"`
	ExpiresAt     string          `json:"expiresAt,omitempty"`
}

func newUsersShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a member and their plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			u, err := services.NewUserService(store, rootOpts.now).GetUser(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			s := userSummary{
				ID:            u.ID,
				DisplayName:   u.DisplayName,
				Email:         u.Email,
				IsAdmin:       u.IsAdmin,
				Plan:          u.Plan(),
				EffectivePlan: u.EffectivePlan(rootOpts.now()),
			}
			if u.PremiumExpiryDate != nil {
				s.ExpiresAt = u.PremiumExpiryDate.Format("2006-01-02 15:04")
			}

			f := newFormatter(rootOpts, cmd)
			return f.Result(s, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s) <%s>\n", s.DisplayName, s.ID, s.Email)
				fmt.Fprintf(w, "plan: %s, effective: %s", s.Plan, s.EffectivePlan)
				if s.ExpiresAt != "" {
					fmt.Fprintf(w, ", expires %s", s.ExpiresAt)
				}
				fmt.Fprintln(w)
				if s.IsAdmin {
					fmt.Fprintln(w, "admin")
				}
			})
		},
	}
}

func newUsersSetPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-plan <user-id> <none|basic|pro>",
		Short: "Set a member's plan without an expiry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			svc := services.NewEntitlementService(store)
			if err := svc.SetPlan(cmd.Context(), cliActor, args[0], models.PlanType(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "plan of %s set to %s\n", args[0], models.NormalizePlan(args[1]))
			return nil
		},
	}
}

func newUsersPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "promote <user-id>",
		Short: "Grant or revoke admin access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			if err := services.NewUserService(store, rootOpts.now).SetAdmin(cmd.Context(), args[0], !revoke); err != nil {
				return err
			}
			verb := "granted"
			if revoke {
				verb = "revoked"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s for %s\n", verb, args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove admin access instead")
	return cmd
}
