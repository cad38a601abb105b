package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gister/internal/logging"
	"gister/internal/pipeline"
	"gister/internal/store"
)

// newBackfillCommand submits one video by hand, same as a sheet row but
// straight from the terminal. The admission guard applies, so resubmitting a
// known key is a safe no-op.
func newBackfillCommand(ctx *commandContext) *cobra.Command {
	var (
		title           string
		durationSeconds int
	)

	cmd := &cobra.Command{
		Use:   "backfill <natural-key>",
		Short: "Admit one video manually into the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])
			if key == "" {
				return fmt.Errorf("natural key must not be empty")
			}
			return ctx.withStore(func(runCtx context.Context, st *store.Store) error {
				guard := pipeline.NewGuard(st, logging.NewNop())
				admission, item, err := guard.Admit(runCtx, store.Candidate{
					NaturalKey:      key,
					Title:           title,
					DurationSeconds: durationSeconds,
					PublishedAt:     time.Now().UTC(),
					Source:          store.SourceBackfill,
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch admission {
				case pipeline.Admitted:
					fmt.Fprintf(out, "Admitted %s for transcription\n", item.NaturalKey)
				case pipeline.SkipTerminal:
					fmt.Fprintf(out, "Skipped %s: already finished (%s)\n", item.NaturalKey, item.Status)
				default:
					fmt.Fprintf(out, "Skipped %s: already in the pipeline (%s)\n", item.NaturalKey, item.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Video title")
	cmd.Flags().IntVar(&durationSeconds, "duration-seconds", 0, "Video duration, if known")
	return cmd
}
