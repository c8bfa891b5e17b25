// Package jobs is the durable AI work queue: fingerprinted enqueueing,
// SKIP LOCKED claiming, throttled execution and status-driven backoff.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/model"
)

// Candidate is a record considered for enqueueing with its fingerprint.
type Candidate struct {
	RecordID  string
	InputHash string
}

// EnqueueResult counts what Enqueue did with its candidates.
type EnqueueResult struct {
	Enqueued      int `json:"enqueued"`
	SkippedCached int `json:"skippedCached"`
	SkippedActive int `json:"skippedActive"`
	TotalMatched  int `json:"totalMatched"`
}

// Store is the ai_jobs persistence surface.
type Store interface {
	Enqueue(ctx context.Context, jobType model.JobType, candidates []Candidate) (*EnqueueResult, error)
	Claim(ctx context.Context) (*model.Job, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkRateLimited(ctx context.Context, id string, backoff time.Duration, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	Cancel(ctx context.Context, statuses []model.JobStatus) (int64, error)
	StatusByRecordIDs(ctx context.Context, recordIDs []string) (map[string]model.JobStatusView, error)
	Counts(ctx context.Context) (map[model.JobStatus]int, error)
}

// PostgresStore implements Store on the ai_jobs table.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const jobColumns = `j.id::text, j.record_id::text, j.job_type, j.status, j.run_after, j.attempts,
	coalesce(j.last_error, ''), coalesce(j.input_hash, ''), j.created_at, j.updated_at`

// Enqueue inserts one queued job per candidate unless a succeeded job with
// the same fingerprint exists (skipped as cached) or a non-terminal job of
// the same type is already present (skipped as active).
func (s *PostgresStore) Enqueue(ctx context.Context, jobType model.JobType, candidates []Candidate) (*EnqueueResult, error) {
	res := &EnqueueResult{TotalMatched: len(candidates)}

	for _, c := range candidates {
		if c.InputHash != "" {
			var cached bool
			err := s.pool.QueryRow(ctx, `
				SELECT EXISTS (
					SELECT 1 FROM ai_jobs
					WHERE record_id = $1 AND job_type = $2 AND status = 'succeeded' AND input_hash = $3
				)`, c.RecordID, string(jobType), c.InputHash).Scan(&cached)
			if err != nil {
				return nil, eris.Wrapf(err, "jobs: check cached %s for %s", jobType, c.RecordID)
			}
			if cached {
				res.SkippedCached++
				continue
			}
		}

		// ai_jobs_active_key makes the insert a no-op while a
		// queued/running/rate_limited job exists for the pair.
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO ai_jobs (id, record_id, job_type, status, run_after, attempts, last_error, input_hash, updated_at)
			VALUES ($1, $2, $3, 'queued', now(), 0, NULL, nullif($4, ''), now())
			ON CONFLICT DO NOTHING`,
			uuid.NewString(), c.RecordID, string(jobType), c.InputHash)
		if err != nil {
			return nil, eris.Wrapf(err, "jobs: enqueue %s for %s", jobType, c.RecordID)
		}
		if tag.RowsAffected() == 0 {
			res.SkippedActive++
			continue
		}
		res.Enqueued++
	}
	return res, nil
}

// Claim atomically takes the oldest eligible job and flips it to running.
// Returns nil when nothing is eligible.
func (s *PostgresStore) Claim(ctx context.Context) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id FROM ai_jobs
			WHERE status IN ('queued', 'rate_limited')
				AND (run_after IS NULL OR run_after <= now())
			ORDER BY run_after ASC NULLS FIRST, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE ai_jobs j
			SET status = 'running', attempts = j.attempts + 1, updated_at = now(), last_error = NULL
		FROM next
		WHERE j.id = next.id
		RETURNING `+jobColumns)

	job, err := scanJob(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "jobs: claim")
	}
	return job, nil
}

// MarkSucceeded completes a running job.
func (s *PostgresStore) MarkSucceeded(ctx context.Context, id string) error {
	return s.finish(ctx, id, model.JobSucceeded, `
		UPDATE ai_jobs SET status = 'succeeded', updated_at = now()
		WHERE id = $1 AND status = 'running'`, id)
}

// MarkRateLimited parks a running job until now + backoff.
func (s *PostgresStore) MarkRateLimited(ctx context.Context, id string, backoff time.Duration, lastError string) error {
	return s.finish(ctx, id, model.JobRateLimited, `
		UPDATE ai_jobs SET status = 'rate_limited', run_after = now() + make_interval(secs => $2),
			last_error = $3, updated_at = now()
		WHERE id = $1 AND status = 'running'`, id, backoff.Seconds(), lastError)
}

// MarkFailed terminates a running job with an error.
func (s *PostgresStore) MarkFailed(ctx context.Context, id string, lastError string) error {
	return s.finish(ctx, id, model.JobFailed, `
		UPDATE ai_jobs SET status = 'failed', last_error = $2, updated_at = now()
		WHERE id = $1 AND status = 'running'`, id, lastError)
}

// finish applies a running -> next transition. A job cancelled while it
// ran keeps its cancelled status.
func (s *PostgresStore) finish(ctx context.Context, id string, next model.JobStatus, query string, args ...any) error {
	if !model.JobRunning.CanTransition(next) {
		return eris.Errorf("jobs: illegal transition running -> %s", next)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return eris.Wrapf(err, "jobs: mark %s %s", id, next)
	}
	return nil
}

// Cancel moves every job in statuses to cancelled. Nil statuses default to
// queued + rate_limited.
func (s *PostgresStore) Cancel(ctx context.Context, statuses []model.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = model.DefaultCancelStatuses
	}
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if !st.CanTransition(model.JobCancelled) {
			return 0, eris.Errorf("jobs: status %q cannot be cancelled", st)
		}
		names = append(names, string(st))
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE ai_jobs SET status = 'cancelled', updated_at = now()
		WHERE status = any($1::text[])`, names)
	if err != nil {
		return 0, eris.Wrap(err, "jobs: cancel")
	}
	return tag.RowsAffected(), nil
}

// StatusByRecordIDs returns the latest job state per record.
func (s *PostgresStore) StatusByRecordIDs(ctx context.Context, recordIDs []string) (map[string]model.JobStatusView, error) {
	out := make(map[string]model.JobStatusView, len(recordIDs))
	if len(recordIDs) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (record_id) record_id::text, status, updated_at
		FROM ai_jobs
		WHERE record_id = any($1::uuid[])
		ORDER BY record_id, updated_at DESC`, recordIDs)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: status by record ids")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id     string
			status string
			v      model.JobStatusView
		)
		if err := rows.Scan(&id, &status, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "jobs: scan status")
		}
		v.Status = model.JobStatus(status)
		out[id] = v
	}
	return out, eris.Wrap(rows.Err(), "jobs: iterate status")
}

// Counts tallies jobs per status.
func (s *PostgresStore) Counts(ctx context.Context) (map[model.JobStatus]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, count(*)::int FROM ai_jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: counts")
	}
	defer rows.Close()

	out := make(map[model.JobStatus]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "jobs: scan count")
		}
		out[model.JobStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "jobs: iterate counts")
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j       model.Job
		jobType string
		status  string
	)
	if err := row.Scan(&j.ID, &j.RecordID, &jobType, &status, &j.RunAfter, &j.Attempts,
		&j.LastError, &j.InputHash, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.JobType = model.JobType(jobType)
	j.Status = model.JobStatus(status)
	return &j, nil
}
