package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gister/internal/api"
	"gister/internal/store"
)

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dl"},
		Short:   "Inspect and requeue dead-lettered items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newDeadLetterListCommand(ctx))
	cmd.AddCommand(newDeadLetterRequeueCommand(ctx))
	return cmd
}

func newDeadLetterListCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput  bool
		stageFilter string
		severity    string
		maxAgeHours int
		includeAll  bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parked entries awaiting triage",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.DeadLetterFilter{
				Stage:           store.Stage(strings.TrimSpace(stageFilter)),
				Severity:        store.Severity(strings.TrimSpace(severity)),
				IncludeRequeued: includeAll,
			}
			if maxAgeHours > 0 {
				filter.MaxAge = time.Duration(maxAgeHours) * time.Hour
			}
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				entries, err := svc.DeadLetters(runCtx, filter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.DeadLetterListResponse{Entries: entries})
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					lastFailure := ""
					if n := len(entry.Failures); n > 0 {
						lastFailure = entry.Failures[n-1].Message
					}
					requeued := entry.RequeuedAt
					if requeued == "" {
						requeued = "-"
					}
					rows = append(rows, []string{
						entry.ID,
						entry.ItemKey,
						entry.Stage,
						fmt.Sprintf("%d", entry.Attempts),
						entry.Severity,
						truncate(lastFailure, 40),
						requeued,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Item", "Stage", "Attempts", "Severity", "Last Failure", "Requeued"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	cmd.Flags().StringVar(&stageFilter, "stage", "", "Filter by stage")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity (warning, critical)")
	cmd.Flags().IntVar(&maxAgeHours, "max-age-hours", 0, "Only entries newer than this many hours")
	cmd.Flags().BoolVar(&includeAll, "all", false, "Include already requeued entries")
	return cmd
}

func newDeadLetterRequeueCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "requeue <entry-id>",
		Short: "Put a parked item back into its stage queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				entry, err := svc.RequeueDeadLetter(runCtx, id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s requeued: item %s returns to the %s queue\n",
					entry.ID, entry.ItemKey, entry.Stage)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of formatted text")
	return cmd
}
