package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the AI job queue",
}

var (
	enqueueType        string
	enqueueBatchID     string
	enqueueIDs         []string
	enqueueHasDomain   bool
	enqueueNeedsNotes  bool
	enqueueNeedsStatus bool
)

var jobsEnqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Enqueue enrich or verify jobs for matching records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		jobType, err := model.ParseJobType(enqueueType)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "jobs")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Enqueuer.Enqueue(ctx, jobType, record.SelectFilter{
			IDs:                     enqueueIDs,
			ImportBatchID:           enqueueBatchID,
			HasDomain:               enqueueHasDomain,
			MissingResearchNotes:    enqueueNeedsNotes,
			MissingExecSearchStatus: enqueueNeedsStatus,
		})
		if err != nil {
			return eris.Wrap(err, "enqueue")
		}

		zap.L().Info("jobs enqueued",
			zap.String("job_type", string(jobType)),
			zap.Int("enqueued", res.Enqueued),
			zap.Int("skipped_cached", res.SkippedCached),
			zap.Int("skipped_active", res.SkippedActive),
			zap.Int("total_matched", res.TotalMatched),
		)
		return nil
	},
}

var (
	runMax  int
	runLoop bool
	runIdle time.Duration
)

var jobsRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run queued jobs",
	Long:  "Claims and runs up to --max jobs. With --loop, keeps polling until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "jobs")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Runner.BatchSize(runMax)
		if err != nil {
			return err
		}

		if runLoop {
			zap.L().Info("job worker started", zap.Int("batch", n), zap.Duration("idle", runIdle))
			return env.Runner.RunLoop(ctx, n, runIdle)
		}

		res, err := env.Runner.RunBatch(ctx, n)
		if res != nil {
			formatJobResults(os.Stdout, res.Processed)
		}
		return err
	},
}

var cancelStatuses []string

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel pending jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var statuses []model.JobStatus
		for _, s := range cancelStatuses {
			st, err := model.ParseJobStatus(s)
			if err != nil {
				return err
			}
			statuses = append(statuses, st)
		}

		pool, err := openPool(ctx, "jobs")
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := jobs.NewPostgresStore(pool).Cancel(ctx, statuses)
		if err != nil {
			return err
		}
		zap.L().Info("jobs cancelled", zap.Int64("cancelled", n))
		return nil
	},
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show job counts per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		pool, err := openPool(ctx, "jobs")
		if err != nil {
			return err
		}
		defer pool.Close()

		counts, err := jobs.NewPostgresStore(pool).Counts(ctx)
		if err != nil {
			return err
		}
		formatJobCounts(os.Stdout, counts)
		return nil
	},
}

func init() {
	jobsEnqueueCmd.Flags().StringVar(&enqueueType, "type", string(model.JobEnrichRecord), "enrich_record or verify_record")
	jobsEnqueueCmd.Flags().StringVar(&enqueueBatchID, "batch", "", "only records from this import batch")
	jobsEnqueueCmd.Flags().StringSliceVar(&enqueueIDs, "ids", nil, "only these record ids")
	jobsEnqueueCmd.Flags().BoolVar(&enqueueHasDomain, "has-domain", false, "only records with a domain")
	jobsEnqueueCmd.Flags().BoolVar(&enqueueNeedsNotes, "missing-notes", false, "only records without research notes")
	jobsEnqueueCmd.Flags().BoolVar(&enqueueNeedsStatus, "missing-status", false, "only records with an unknown exec search status")

	jobsRunCmd.Flags().IntVar(&runMax, "max", 0, "jobs per batch (default from config)")
	jobsRunCmd.Flags().BoolVar(&runLoop, "loop", false, "keep polling until interrupted")
	jobsRunCmd.Flags().DurationVar(&runIdle, "idle", 10*time.Second, "sleep between empty batches in loop mode")

	jobsCancelCmd.Flags().StringSliceVar(&cancelStatuses, "status", nil, "statuses to cancel (default queued,rate_limited)")

	jobsCmd.AddCommand(jobsEnqueueCmd, jobsRunCmd, jobsCancelCmd, jobsStatusCmd)
	rootCmd.AddCommand(jobsCmd)
}

// formatJobResults writes one line per processed job.
func formatJobResults(out io.Writer, results []jobs.JobResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "JOB\tRECORD\tTYPE\tSTATUS\tERROR")
	for _, r := range results {
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.JobID, r.RecordID, r.JobType, r.Status, truncate(errText, 80))
	}
	_ = w.Flush()
}

// formatJobCounts writes the per-status tally in queue order.
func formatJobCounts(out io.Writer, counts map[model.JobStatus]int) {
	order := []model.JobStatus{
		model.JobQueued, model.JobRunning, model.JobRateLimited,
		model.JobSucceeded, model.JobFailed, model.JobCancelled,
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STATUS\tJOBS")
	total := 0
	for _, st := range order {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", st, counts[st])
		total += counts[st]
	}
	_, _ = fmt.Fprintf(w, "total\t%d\n", total)
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
