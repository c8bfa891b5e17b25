package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

type fakeSource struct {
	ids    []string
	recs   []model.Record
	filter record.SelectFilter
	err    error
}

func (f *fakeSource) SelectIDs(_ context.Context, sf record.SelectFilter) ([]string, error) {
	f.filter = sf
	return f.ids, f.err
}

func (f *fakeSource) GetMany(context.Context, []string) ([]model.Record, error) {
	return f.recs, nil
}

type captureStore struct {
	Store
	jobType    model.JobType
	candidates []Candidate
}

func (c *captureStore) Enqueue(_ context.Context, jobType model.JobType, cands []Candidate) (*EnqueueResult, error) {
	c.jobType = jobType
	c.candidates = cands
	return &EnqueueResult{Enqueued: len(cands), TotalMatched: len(cands)}, nil
}

func TestEnqueuer_FingerprintsEachRecord(t *testing.T) {
	src := &fakeSource{
		ids: []string{"b", "a", "gone"},
		recs: []model.Record{
			{ID: "a", CompanyName: "Alpha", Domain: "alpha.com"},
			{ID: "b", CompanyName: "Beta"},
		},
	}
	store := &captureStore{}
	f := record.SelectFilter{HasDomain: true}

	res, err := NewEnqueuer(src, store).Enqueue(context.Background(), model.JobVerifyRecord, f)
	require.NoError(t, err)

	assert.Equal(t, f, src.filter)
	assert.Equal(t, 3, res.TotalMatched)
	assert.Equal(t, 2, res.Enqueued)
	require.Len(t, store.candidates, 2)
	assert.Equal(t, "b", store.candidates[0].RecordID)
	assert.Equal(t, "a", store.candidates[1].RecordID)
	assert.Equal(t, VerifyInputHash(src.recs[0]), store.candidates[1].InputHash)
	assert.NotEqual(t, store.candidates[0].InputHash, store.candidates[1].InputHash)
}

func TestEnqueuer_RejectsUnknownType(t *testing.T) {
	_, err := NewEnqueuer(&fakeSource{}, &captureStore{}).Enqueue(context.Background(), "bogus", record.SelectFilter{})
	assert.Error(t, err)
}

func TestEnqueuer_SelectError(t *testing.T) {
	src := &fakeSource{err: errors.New("db down")}
	_, err := NewEnqueuer(src, &captureStore{}).Enqueue(context.Background(), model.JobEnrichRecord, record.SelectFilter{})
	assert.Error(t, err)
}

func TestEnqueuer_EnqueueOneHasNoFingerprint(t *testing.T) {
	store := &captureStore{}
	_, err := NewEnqueuer(&fakeSource{}, store).EnqueueOne(context.Background(), model.JobEnrichRecord, "r1")
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{RecordID: "r1"}}, store.candidates)
	assert.Equal(t, model.JobEnrichRecord, store.jobType)
}
