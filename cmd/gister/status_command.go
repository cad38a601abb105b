package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gister/internal/api"
	"gister/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pipeline counts and today's budget usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				status, err := svc.Status(runCtx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}
				printStatus(cmd, status)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func printStatus(cmd *cobra.Command, status api.PipelineStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Pipeline", colorize) {
		fmt.Fprintln(out, line)
	}
	total := 0
	for _, st := range store.AllStatuses() {
		count := status.Counts[string(st)]
		total += count
		kind := statusInfo
		switch st {
		case store.StatusDone:
			kind = statusOK
		case store.StatusDeadLettered:
			if count > 0 {
				kind = statusError
			}
		case store.StatusRejected:
			if count > 0 {
				kind = statusWarn
			}
		}
		fmt.Fprintln(out, renderStatusLine(string(st), kind, fmt.Sprintf("%d", count), colorize))
	}
	fmt.Fprintln(out, renderStatusLine("total", statusInfo, fmt.Sprintf("%d", total), colorize))
	if status.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("last error", statusError, status.LastError, colorize))
	}

	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Budget", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, day := range status.Budget {
		kind := statusOK
		switch {
		case day.Remaining <= 0:
			kind = statusError
		case day.Warned:
			kind = statusWarn
		}
		fmt.Fprintln(out, renderStatusLine(day.Dimension, kind, formatBudgetLine(day), colorize))
	}
}
