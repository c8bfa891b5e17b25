package jobs

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

// RecordSource resolves enqueue filters to records.
type RecordSource interface {
	SelectIDs(ctx context.Context, f record.SelectFilter) ([]string, error)
	GetMany(ctx context.Context, ids []string) ([]model.Record, error)
}

// Enqueuer turns a record filter into fingerprinted jobs.
type Enqueuer struct {
	records RecordSource
	store   Store
}

// NewEnqueuer creates an Enqueuer.
func NewEnqueuer(records RecordSource, store Store) *Enqueuer {
	return &Enqueuer{records: records, store: store}
}

// Enqueue selects records matching f and schedules jobType for each,
// most recently updated first.
func (e *Enqueuer) Enqueue(ctx context.Context, jobType model.JobType, f record.SelectFilter) (*EnqueueResult, error) {
	if _, err := model.ParseJobType(string(jobType)); err != nil {
		return nil, err
	}

	ids, err := e.records.SelectIDs(ctx, f)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: select records")
	}
	recs, err := e.records.GetMany(ctx, ids)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: load records")
	}
	byID := make(map[string]model.Record, len(recs))
	for _, r := range recs {
		byID[r.ID] = r
	}

	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		r, ok := byID[id]
		if !ok {
			// Deleted between selection and load.
			continue
		}
		candidates = append(candidates, Candidate{RecordID: id, InputHash: InputHash(jobType, r)})
	}

	res, err := e.store.Enqueue(ctx, jobType, candidates)
	if err != nil {
		return nil, err
	}
	res.TotalMatched = len(ids)

	zap.L().Info("jobs enqueued",
		zap.String("job_type", string(jobType)),
		zap.Int("matched", res.TotalMatched),
		zap.Int("enqueued", res.Enqueued),
		zap.Int("skipped_cached", res.SkippedCached),
		zap.Int("skipped_active", res.SkippedActive),
	)
	return res, nil
}

// EnqueueOne schedules jobType for a single record without a fingerprint,
// so a previously succeeded job never suppresses it.
func (e *Enqueuer) EnqueueOne(ctx context.Context, jobType model.JobType, recordID string) (*EnqueueResult, error) {
	return e.store.Enqueue(ctx, jobType, []Candidate{{RecordID: recordID}})
}
