package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openstage/verity/internal/config"
	"github.com/openstage/verity/internal/recon"
	"github.com/openstage/verity/internal/remote"
)

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <order-id>",
		Short: "Recompute an order's financial totals from live entity data",
		Long: `Recompute an order's financial totals from live entity data.

Fetches the order and everything hanging off it (add-ons, promotion,
ticket types, event), applies the fee and discount rules, and prints the
reference totals that a verification script should agree with.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, cmd, args[0])
		},
	}
}

func runReconcile(opts *RootOptions, cmd *cobra.Command, orderID string) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}

	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token)

	in, err := recon.LoadInputs(cmd.Context(), client, orderID)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading order data", err)
	}

	out, err := recon.Reconcile(in)
	if err != nil {
		return WrapExitError(ExitFailure, "reconciliation failed", err)
	}

	w := cmd.OutOrStdout()
	if opts.Format == "json" {
		if err := json.NewEncoder(w).Encode(out); err != nil {
			return WrapExitError(ExitCommandError, "encoding output", err)
		}
		return nil
	}

	printTotals(w, orderID, out)
	return nil
}

func printTotals(w io.Writer, orderID string, out recon.Outputs) {
	fmt.Fprintf(w, "Order %s\n", orderID)
	fmt.Fprintf(w, "  Tickets:              %d\n", out.TicketCount)
	fmt.Fprintf(w, "  Gross amount:         %s\n", money(out.GrossAmount))
	fmt.Fprintf(w, "  Service fees:         %s\n", money(out.TotalServiceFee))
	fmt.Fprintf(w, "  Donations:            %s\n", money(out.DonationTotal))
	fmt.Fprintf(w, "  Discounts:            %s\n", money(out.DiscountTotal))
	fmt.Fprintf(w, "  Processing fee:       %s\n", money(out.ProcessingFeeRevenue))
	fmt.Fprintf(w, "  Processor deduction:  %s\n", money(out.ProcessorDeduction))
	fmt.Fprintf(w, "  Total order value:    %s\n", money(out.TotalOrderValue))
}
