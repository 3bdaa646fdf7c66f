package admin

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docrag/internal/jobs"
)

// BackfillCmd returns the backfill command
func BackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill [document|bot] [id]",
		Short: "Embed chunks left pending by failed ingestions",
		Long: `Embed chunks left pending by failed ingestions.

With an owner, that owner's pending chunks are embedded directly. Without one,
a sweep enqueues a job per owner with pending chunks and the queued jobs are
processed once, as the server's worker would.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 arg(s), received %d", len(args))
			}
			return nil
		},
		RunE: runBackfill,
	}

	addOutputFlag(cmd)

	return cmd
}

func runBackfill(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		owner, err := parseOwner(args[0], args[1])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			n, err := a.ingestion.BackfillOwner(ctx, owner)
			if err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}
			return printResult(cmd, map[string]int{"embedded": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Embedded %d pending chunks of %s\n", n, owner)
			})
		})
	}

	return withApp(func(ctx context.Context, a *app) error {
		queued, err := jobs.NewSweeper(a.chunks, a.jobs, a.cfg.JobRetention, a.logger).Sweep(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("backfill jobs queued", slog.Int("count", queued))

		if err := jobs.NewEmbeddingWorker(a.jobs, a.ingestion, a.metrics, a.logger).ProcessJobs(ctx); err != nil {
			return fmt.Errorf("backfill failed: %w", err)
		}
		return printResult(cmd, map[string]int{"queued": queued}, func(w io.Writer) {
			fmt.Fprintf(w, "Queued %d owners for backfill and processed one batch of jobs\n", queued)
		})
	})
}
