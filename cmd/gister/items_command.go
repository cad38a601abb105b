package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gister/internal/api"
	"gister/internal/store"
)

func newItemsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "items",
		Short: "List pipeline items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]store.Status, 0, len(statusFilters))
			for _, raw := range statusFilters {
				parsed, ok := store.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, parsed)
			}
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				items, err := svc.Items(runCtx, statuses...)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.ItemListResponse{Items: items})
				}

				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.NaturalKey,
						truncate(item.Title, 40),
						item.Status,
						formatDuration(item.DurationSeconds),
						item.Source,
						truncate(item.LastError, 40),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Key", "Title", "Status", "Duration", "Source", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <natural-key>",
		Short: "Show one item with its stage attempt history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				item, jobs, err := svc.ItemDetail(runCtx, key)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %q not found", key)
				}
				if jsonOutput {
					return writeJSON(cmd, struct {
						Item api.Item  `json:"item"`
						Jobs []api.Job `json:"jobs"`
					}{Item: *item, Jobs: jobs})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader(item.NaturalKey, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("title", statusInfo, item.Title, colorize))
				fmt.Fprintln(out, renderStatusLine("status", statusInfo, item.Status, colorize))
				fmt.Fprintln(out, renderStatusLine("duration", statusInfo, formatDuration(item.DurationSeconds), colorize))
				fmt.Fprintln(out, renderStatusLine("source", statusInfo, item.Source, colorize))
				if item.SheetOrigin != "" {
					fmt.Fprintln(out, renderStatusLine("sheet origin", statusInfo, item.SheetOrigin, colorize))
				}
				if item.LastError != "" {
					fmt.Fprintln(out, renderStatusLine("last error", statusError, item.LastError, colorize))
				}

				if len(jobs) > 0 {
					fmt.Fprintln(out)
					rows := make([][]string, 0, len(jobs))
					for _, job := range jobs {
						resolved := job.ResolvedAt
						if resolved == "" {
							resolved = "-"
						}
						rows = append(rows, []string{
							job.Stage,
							fmt.Sprintf("%d", job.Attempts),
							truncate(job.ExternalRef, 30),
							truncate(job.LastError, 40),
							resolved,
						})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Stage", "Attempts", "External Ref", "Last Error", "Resolved"},
						rows,
						[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
					))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of formatted text")
	return cmd
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm%02ds", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%dh%02dm", seconds/3600, (seconds%3600)/60)
}
