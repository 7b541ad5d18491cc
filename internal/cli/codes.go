package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/admxx9/pecc-studii-sub000/internal/models"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

// NewCodesCommand groups redemption code management.
func NewCodesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codes",
		Short: "Manage redemption codes",
	}
	cmd.AddCommand(newCodesGenerateCommand(rootOpts))
	cmd.AddCommand(newCodesListCommand(rootOpts))
	cmd.AddCommand(newCodesDeleteCommand(rootOpts))
	return cmd
}

func newCodesGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		plan     string
		days     int
		quantity int
		custom   string
		length   int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Create redemption codes for a plan",
		Example: `  admin codes generate --plan pro --days 30 --quantity 10
  admin codes generate --plan basic --days 7 --custom LANCAMENTO`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			svc := services.NewEntitlementService(store, services.WithCodeLength(length))
			codes, err := svc.GenerateCodes(cmd.Context(), cliActor, services.GenerateCodesRequest{
				PlanType:     models.PlanType(plan),
				DurationDays: days,
				Quantity:     quantity,
				CustomCode:   custom,
			})
			if err != nil {
				return fmt.Errorf("generated %d code(s) before failing: %w", len(codes), err)
			}

			f := newFormatter(rootOpts, cmd)
			return f.Result(codes, func(w io.Writer) {
				for _, c := range codes {
					fmt.Fprintln(w, c.Code)
				}
			})
		},
	}

	cmd.Flags().StringVar(&plan, "plan", "", "plan granted by the codes (basic|pro)")
	cmd.Flags().IntVar(&days, "days", 30, "days of access granted")
	cmd.Flags().IntVarP(&quantity, "quantity", "n", 1, "number of codes")
	cmd.Flags().StringVar(&custom, "custom", "", "use this code instead of a random one (quantity must be 1)")
	cmd.Flags().IntVar(&length, "length", 12, "length of random codes")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func newCodesListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List redemption codes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			codes, err := services.NewEntitlementService(store).ListCodes(cmd.Context(), cliActor, models.CodeStatus(status))
			if err != nil {
				return err
			}

			f := newFormatter(rootOpts, cmd)
			return f.Result(codes, func(w io.Writer) {
				rows := make([][]any, 0, len(codes))
				for _, c := range codes {
					rows = append(rows, []any{c.ID, c.Code, c.PlanType, c.DurationDays, c.Status, c.RedeemedByUserID})
				}
				f.Table([]any{"ID", "CODE", "PLAN", "DAYS", "STATUS", "REDEEMED BY"}, rows)
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by status (active|redeemed)")
	return cmd
}

func newCodesDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <code-id>...",
		Short: "Delete redemption codes by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := rootOpts.Store(cmd.Context())
			if err != nil {
				return err
			}
			svc := services.NewEntitlementService(store)
			for _, id := range args {
				if err := svc.DeleteCode(cmd.Context(), cliActor, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}
