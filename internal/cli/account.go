package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/oauth"
	"github.com/rescale/drivectl/internal/state"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show your storage plan, usage and upgrades",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			if err := a.Store.FetchUserStoragePlanAndConsumption(ctx); err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), a.Store.Snapshot())
			return nil
		},
	}
}

func printPlan(out io.Writer, snap state.Snapshot) {
	fmt.Fprintf(out, "Plan:  %s\n", snap.StoragePlan)
	if snap.StorageTotal > 0 {
		pct := float64(snap.StorageUsed) / float64(snap.StorageTotal) * 100
		fmt.Fprintf(out, "Usage: %s of %s (%.1f%%)\n",
			models.FormatSize(snap.StorageUsed), models.FormatSize(snap.StorageTotal), pct)
	} else {
		fmt.Fprintf(out, "Usage: %s\n", models.FormatSize(snap.StorageUsed))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%-8s %-10s %s\n", "PLAN", "STORAGE", "PRICE")
	for _, p := range models.PricingPlans() {
		fmt.Fprintf(out, "%-8s %-10s $%d\n", p.Name, p.Storage, p.PriceUSD)
	}
	fmt.Fprintln(out, "\nUpgrade with: drivectl checkout <plan>")
}

func newCheckoutCmd() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "checkout <plan>",
		Short: "Buy a storage upgrade",
		Long: `Start a payment session for a storage plan (BASIC, PRO or TEAM) and open
the hosted checkout page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()
			a, err := requireApp(ctx)
			if err != nil {
				return err
			}
			url, err := a.Store.Checkout(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Complete your purchase at:\n\n  %s\n", url)
			if !noBrowser {
				if err := oauth.OpenBrowser(url); err != nil {
					a.Logger.Debug().Err(err).Msg("could not open browser")
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Only print the checkout URL")
	return cmd
}
