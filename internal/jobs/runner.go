package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/model"
)

// Executor runs the pipeline for one claimed job.
type Executor interface {
	Execute(ctx context.Context, job model.Job) Outcome
}

// RunnerConfig tunes batch execution and backoff.
type RunnerConfig struct {
	MinDelay         time.Duration
	RateLimitBackoff time.Duration
	AuthBackoff      time.Duration
	MaxBatch         int
	DefaultBatch     int
}

// DefaultRunnerConfig mirrors the shipped config defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MinDelay:         1200 * time.Millisecond,
		RateLimitBackoff: 60 * time.Second,
		AuthBackoff:      6 * time.Hour,
		MaxBatch:         50,
		DefaultBatch:     5,
	}
}

// JobResult is the per-job line of a batch report.
type JobResult struct {
	JobID    string          `json:"jobId"`
	RecordID string          `json:"recordId"`
	JobType  model.JobType   `json:"jobType"`
	Status   model.JobStatus `json:"status"`
	Error    string          `json:"error,omitempty"`
	Skipped  []string        `json:"skipped,omitempty"`
}

// BatchResult summarizes one RunBatch call.
type BatchResult struct {
	Processed []JobResult `json:"processed"`
}

// Runner claims and executes jobs sequentially. It owns the throttle.
type Runner struct {
	store    Store
	exec     Executor
	throttle *Throttle
	cfg      RunnerConfig
	log      *zap.Logger
}

// NewRunner creates a Runner.
func NewRunner(store Store, exec Executor, cfg RunnerConfig) *Runner {
	def := DefaultRunnerConfig()
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = def.RateLimitBackoff
	}
	if cfg.AuthBackoff <= 0 {
		cfg.AuthBackoff = def.AuthBackoff
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = def.MaxBatch
	}
	if cfg.DefaultBatch <= 0 {
		cfg.DefaultBatch = def.DefaultBatch
	}
	return &Runner{
		store:    store,
		exec:     exec,
		throttle: NewThrottle(cfg.MinDelay),
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "jobs.runner")),
	}
}

// BatchSize validates a requested batch size. Zero means the default.
func (r *Runner) BatchSize(requested int) (int, error) {
	if requested == 0 {
		return r.cfg.DefaultBatch, nil
	}
	if requested < 1 || requested > r.cfg.MaxBatch {
		return 0, eris.Errorf("jobs: max must be between 1 and %d", r.cfg.MaxBatch)
	}
	return requested, nil
}

// RunBatch claims and runs up to max jobs, stopping early when the queue
// has nothing eligible. A failing or panicking job never stops the batch.
func (r *Runner) RunBatch(ctx context.Context, max int) (*BatchResult, error) {
	n, err := r.BatchSize(max)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{Processed: []JobResult{}}
	for i := 0; i < n; i++ {
		job, err := r.store.Claim(ctx)
		if err != nil {
			return res, err
		}
		if job == nil {
			break
		}

		if err := r.throttle.Wait(ctx); err != nil {
			// Hand the job back untouched so the next run picks it up.
			r.park(job, 0, "interrupted before dispatch")
			return res, err
		}

		res.Processed = append(res.Processed, r.runOne(ctx, *job))
	}
	return res, nil
}

func (r *Runner) runOne(ctx context.Context, job model.Job) JobResult {
	log := r.log.With(
		zap.String("job_id", job.ID),
		zap.String("record_id", job.RecordID),
		zap.String("job_type", string(job.JobType)),
		zap.Int("attempt", job.Attempts),
	)

	outcome := r.safeExecute(ctx, job)
	jr := JobResult{
		JobID:    job.ID,
		RecordID: job.RecordID,
		JobType:  job.JobType,
		Skipped:  outcome.SkippedSteps(),
	}

	jobErr := outcome.Err()
	// Record the outcome even if the caller went away mid-job.
	mctx := context.WithoutCancel(ctx)
	var markErr error
	switch Classify(jobErr) {
	case DispositionSucceeded:
		jr.Status = model.JobSucceeded
		markErr = r.store.MarkSucceeded(mctx, job.ID)
	case DispositionRateLimited:
		jr.Status = model.JobRateLimited
		markErr = r.store.MarkRateLimited(mctx, job.ID, r.cfg.RateLimitBackoff, jobErr.Error())
	case DispositionAuthBackoff:
		jr.Status = model.JobRateLimited
		markErr = r.store.MarkRateLimited(mctx, job.ID, r.cfg.AuthBackoff, jobErr.Error())
	default:
		jr.Status = model.JobFailed
		markErr = r.store.MarkFailed(mctx, job.ID, jobErr.Error())
	}
	if jobErr != nil {
		jr.Error = jobErr.Error()
	}

	if markErr != nil {
		log.Error("jobs: failed to record outcome", zap.String("status", string(jr.Status)), zap.Error(markErr))
	}
	if jobErr != nil {
		log.Warn("job finished with error",
			zap.String("status", string(jr.Status)),
			zap.Int("upstream_status", StatusOf(jobErr)),
			zap.Error(jobErr),
		)
	} else {
		log.Info("job succeeded", zap.Strings("skipped", jr.Skipped))
	}
	return jr
}

func (r *Runner) safeExecute(ctx context.Context, job model.Job) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("jobs: executor panic",
				zap.String("job_id", job.ID),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			out = Outcome{Steps: append(out.Steps, Failed("panic", fmt.Errorf("panic: %v", p)))}
		}
	}()
	return r.exec.Execute(ctx, job)
}

func (r *Runner) park(job *model.Job, backoff time.Duration, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.MarkRateLimited(ctx, job.ID, backoff, reason); err != nil {
		r.log.Error("jobs: failed to park job", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// RunLoop keeps running batches until ctx ends, sleeping idle between
// empty batches.
func (r *Runner) RunLoop(ctx context.Context, batch int, idle time.Duration) error {
	for {
		res, err := r.RunBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(res.Processed) > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(idle):
		}
	}
}
