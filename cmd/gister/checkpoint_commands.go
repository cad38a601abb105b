package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"gister/internal/api"
)

func newCheckpointsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Show discovery watermarks per source",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				checkpoints, err := svc.Checkpoints(runCtx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.CheckpointListResponse{Checkpoints: checkpoints})
				}

				rows := make([][]string, 0, len(checkpoints))
				for _, cp := range checkpoints {
					rows = append(rows, []string{cp.SourceID, cp.Watermark, cp.UpdatedAt})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Source", "Watermark", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show recent audit log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(runCtx context.Context, svc *api.Service) error {
				records, err := svc.Audit(runCtx, limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, api.AuditListResponse{Records: records})
				}

				rows := make([][]string, 0, len(records))
				for _, record := range records {
					rows = append(rows, []string{
						record.CreatedAt,
						record.Actor,
						record.Action,
						record.Entity,
						record.EntityID,
						truncate(record.Details, 50),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"When", "Actor", "Action", "Entity", "ID", "Details"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to show")
	return cmd
}
