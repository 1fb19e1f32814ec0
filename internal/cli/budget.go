package cli

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/tripbook/backend/internal/budget"
)

// NewBudgetCommand creates the budget command, which exports the costs of
// one travel plan.
func NewBudgetCommand(rootOpts *RootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "budget <travel-plan-id>",
		Short: "Export the budget of a travel plan",
		Long: `Export the budget of a travel plan visible to --user.

csv   one row per schedule item (default)
json  grand total and the subtotal of every day with spend`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("budget: invalid travel plan id %q", args[0])
			}
			if format != "csv" && format != "json" {
				return fmt.Errorf("budget: invalid format %q: must be csv or json", format)
			}

			a, err := openApp(cmd.Context(), cmd, rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.TravelPlanService.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if format == "csv" {
				return budget.WriteCSV(cmd.OutOrStdout(), budget.Lines(plan))
			}
			sum := budget.Summarize(plan)
			sum.Days = sum.DaysWithSpend()
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "output format (csv|json)")
	return cmd
}
