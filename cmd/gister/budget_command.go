package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"gister/internal/api"
)

var budgetPrinter = message.NewPrinter(language.English)

func newBudgetCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show today's budget usage per dimension",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				days, err := svc.Budget(runCtx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.BudgetResponse{Days: days})
				}

				rows := make([][]string, 0, len(days))
				for _, day := range days {
					rows = append(rows, []string{
						day.Date,
						day.Dimension,
						formatAmount(day.Used, day.Unit),
						formatAmount(day.Reserved, day.Unit),
						formatAmount(day.Limit, day.Unit),
						formatAmount(day.Remaining, day.Unit),
						yesNo(day.Warned),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Date", "Dimension", "Used", "Reserved", "Limit", "Remaining", "Warned"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

// formatAmount renders a budget quantity for its unit: currency with two
// decimals, quota counts with thousands separators.
func formatAmount(value float64, unit string) string {
	if unit == "USD" {
		return budgetPrinter.Sprintf("$%.2f", value)
	}
	return budgetPrinter.Sprintf("%.0f %s", value, unit)
}

func formatBudgetLine(day api.BudgetDay) string {
	return fmt.Sprintf("%s used, %s reserved, %s remaining of %s",
		formatAmount(day.Used, day.Unit),
		formatAmount(day.Reserved, day.Unit),
		formatAmount(day.Remaining, day.Unit),
		formatAmount(day.Limit, day.Unit),
	)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
