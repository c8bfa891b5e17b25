package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/company"
	"github.com/sells-group/sheets-crm/internal/enrich"
	"github.com/sells-group/sheets-crm/internal/importer"
	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
	"github.com/sells-group/sheets-crm/internal/research"
	"github.com/sells-group/sheets-crm/internal/snippet"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("upstream status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRecords struct {
	recs      []model.Record
	listLimit int
	search    record.SearchFilter
	deleted   []string
	updateErr error
}

func (f *fakeRecords) Get(_ context.Context, id string) (*model.Record, error) {
	for _, r := range f.recs {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, eris.Wrapf(record.ErrNotFound, "record: get %s", id)
}

func (f *fakeRecords) List(_ context.Context, limit int) ([]model.Record, error) {
	f.listLimit = limit
	return f.recs, nil
}

func (f *fakeRecords) Update(_ context.Context, id string, patch model.RecordPatch) (*model.Record, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	rec := model.Record{ID: id}
	if patch.CompanyName != nil {
		rec.CompanyName = *patch.CompanyName
	}
	return &rec, nil
}

func (f *fakeRecords) Delete(_ context.Context, ids []string) (int64, error) {
	f.deleted = ids
	return int64(len(ids)), nil
}

func (f *fakeRecords) Search(_ context.Context, sf record.SearchFilter) ([]model.Record, error) {
	f.search = sf
	return f.recs, nil
}

type fakeImporter struct {
	rows   []importer.Row
	source string
	undo   *record.UndoResult
}

func (f *fakeImporter) Import(_ context.Context, rows []importer.Row, sourceFile string) (*importer.Result, error) {
	f.rows, f.source = rows, sourceFile
	return &importer.Result{BatchID: "b1", Created: len(rows)}, nil
}

func (f *fakeImporter) UndoLatest(context.Context) (*record.UndoResult, error) {
	return f.undo, nil
}

type fakeQueue struct {
	views     map[string]model.JobStatusView
	cancelled []model.JobStatus
}

func (f *fakeQueue) StatusByRecordIDs(context.Context, []string) (map[string]model.JobStatusView, error) {
	return f.views, nil
}

func (f *fakeQueue) Cancel(_ context.Context, statuses []model.JobStatus) (int64, error) {
	f.cancelled = statuses
	return 3, nil
}

type fakeEnqueuer struct{ jobType model.JobType }

func (f *fakeEnqueuer) Enqueue(_ context.Context, jobType model.JobType, _ record.SelectFilter) (*jobs.EnqueueResult, error) {
	f.jobType = jobType
	return &jobs.EnqueueResult{Enqueued: 2, SkippedCached: 1, TotalMatched: 3}, nil
}

type emptyStore struct{ jobs.Store }

func (emptyStore) Claim(context.Context) (*model.Job, error) { return nil, nil }

type fakeSteps struct{ err error }

func (f fakeSteps) Run(_ context.Context, step, id string) (*enrich.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &enrich.Result{Step: step, Record: &model.Record{ID: id}}, nil
}

type fakeResearch struct{}

func (fakeResearch) Suggest(_ context.Context, command string) (*research.SuggestResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, research.ErrEmptyCommand
	}
	return &research.SuggestResult{Suggestions: []research.Suggestion{{CompanyName: "Acme", Domain: "acme.com"}}}, nil
}

func (fakeResearch) Add(_ context.Context, _ string, _ []research.Suggestion, domains []string) (*research.AddResult, error) {
	return &research.AddResult{AddedDomains: domains}, nil
}

type fakeSnippets struct {
	list    []model.Snippet
	deleted string
}

func (f *fakeSnippets) List(context.Context) ([]model.Snippet, error) { return f.list, nil }

func (f *fakeSnippets) Upsert(_ context.Context, key, value string) (*model.Snippet, error) {
	if strings.TrimSpace(key) == "" {
		return nil, snippet.ErrEmptyKey
	}
	return &model.Snippet{Key: key, Value: value}, nil
}

func (f *fakeSnippets) Delete(_ context.Context, key string) error {
	f.deleted = key
	return nil
}

type fakeDeduper struct{ dryRun *bool }

func (f *fakeDeduper) FindDuplicateDomains(context.Context, int) ([]company.DomainDuplicate, error) {
	return []company.DomainDuplicate{{Domain: "acme.com", CompanyCount: 2}}, nil
}

func (f *fakeDeduper) MergeByDomain(_ context.Context, domain string, dryRun bool) (*company.MergeResult, error) {
	f.dryRun = &dryRun
	return &company.MergeResult{Domain: domain, DryRun: dryRun}, nil
}

type fixture struct {
	records  *fakeRecords
	importer *fakeImporter
	queue    *fakeQueue
	enqueuer *fakeEnqueuer
	snippets *fakeSnippets
	deduper  *fakeDeduper
	deps     Deps
	cfg      Config
}

func newFixture() *fixture {
	f := &fixture{
		records:  &fakeRecords{},
		importer: &fakeImporter{},
		queue:    &fakeQueue{},
		enqueuer: &fakeEnqueuer{},
		snippets: &fakeSnippets{},
		deduper:  &fakeDeduper{},
	}
	runnerCfg := jobs.DefaultRunnerConfig()
	runnerCfg.MinDelay = 0
	f.deps = Deps{
		DB:       fakePinger{},
		Records:  f.records,
		Importer: f.importer,
		Jobs:     f.queue,
		Enqueuer: f.enqueuer,
		Runner:   jobs.NewRunner(emptyStore{}, nil, runnerCfg),
		Steps:    fakeSteps{},
		Research: fakeResearch{},
		Snippets: f.snippets,
		Deduper:  f.deduper,
	}
	f.cfg = Config{MaintenanceToken: "s3cret", MinDelay: 1200 * time.Millisecond}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	New(f.deps, f.cfg).ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error.Code
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["ok"])

	f.deps.DB = fakePinger{err: errors.New("connection refused")}
	rec = f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["ok"])
}

func TestListRecords(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/api/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2000, f.records.listLimit)
	assert.Equal(t, []any{}, decodeBody(t, rec)["records"])

	rec = f.do(t, http.MethodGet, "/api/records?limit=25", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, f.records.listLimit)

	rec = f.do(t, http.MethodGet, "/api/records?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", errorCode(t, rec))
}

func TestUpdateRecord(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPatch, "/api/records/"+idA, `{"companyName":"Acme"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)["record"].(map[string]any)
	assert.Equal(t, "Acme", got["companyName"])

	rec = f.do(t, http.MethodPatch, "/api/records/not-a-uuid", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.records.updateErr = eris.Wrapf(record.ErrNotFound, "record: update %s", idA)
	rec = f.do(t, http.MethodPatch, "/api/records/"+idA, `{"companyName":"Acme"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))

	f.records.updateErr = eris.Wrap(record.ErrInvalid, "bad status")
	rec = f.do(t, http.MethodPatch, "/api/records/"+idA, `{"execSearchStatus":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.records.updateErr = nil
	rec = f.do(t, http.MethodPatch, "/api/records/"+idA, `{"companyName":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteRecords(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/records/delete", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/records/delete", `{"ids":["nope"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, f.records.deleted)

	rec = f.do(t, http.MethodPost, "/api/records/delete", fmt.Sprintf(`{"ids":[%q,%q]}`, idA, idB))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decodeBody(t, rec)["deleted"])
	assert.Equal(t, []string{idA, idB}, f.records.deleted)
}

func TestImportAndUndo(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/records/import", `{"rows":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/records/import",
		`{"sourceFile":"leads.csv","rows":[{"companyName":"Acme","domain":"acme.com"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "leads.csv", f.importer.source)
	require.Len(t, f.importer.rows, 1)
	assert.Equal(t, "acme.com", f.importer.rows[0].Domain)
	assert.Equal(t, "b1", decodeBody(t, rec)["batchId"])

	rec = f.do(t, http.MethodPost, "/api/records/undo-latest-import", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["undone"])

	f.importer.undo = &record.UndoResult{BatchID: "b1", DeletedRecords: 4}
	rec = f.do(t, http.MethodPost, "/api/records/undo-latest-import", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["undone"])
	assert.Equal(t, float64(4), body["batch"].(map[string]any)["deletedRecords"])
}

func TestImportMap(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/import/map", `{"headers":["Company Name","Website","Email Address"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	mapping := decodeBody(t, rec)["mapping"].(map[string]any)
	assert.Equal(t, "Company Name", mapping["companyName"])
	assert.Equal(t, "Email Address", mapping["email"])

	rec = f.do(t, http.MethodPost, "/api/import/map", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordJobs_ProjectsNullForMissing(t *testing.T) {
	f := newFixture()
	f.records.recs = []model.Record{{ID: idA}, {ID: idB}}
	f.queue.views = map[string]model.JobStatusView{idA: {Status: model.JobQueued}}

	rec := f.do(t, http.MethodGet, "/api/records/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decodeBody(t, rec)["statuses"].(map[string]any)
	assert.Equal(t, "queued", statuses[idA].(map[string]any)["status"])
	v, ok := statuses[idB]
	assert.True(t, ok)
	assert.Nil(t, v)

	rec = f.do(t, http.MethodGet, "/api/records/jobs?limit=5001", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	f := newFixture()
	f.records.recs = []model.Record{{CompanyName: "Acme, Inc", Domain: "acme.com"}}

	rec := f.do(t, http.MethodPost, "/api/records/export", `{"format":"csv","filter":{"execSearchStatus":"yes","q":"acme"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Company Name,Domain,"))
	assert.True(t, strings.HasPrefix(lines[1], `"Acme, Inc",acme.com,`))
	assert.Equal(t, 5000, f.records.search.Limit)
	assert.Equal(t, "yes", f.records.search.ExecSearchStatus)

	rec = f.do(t, http.MethodPost, "/api/records/export", `{"format":"tsv"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "tab-separated")

	rec = f.do(t, http.MethodPost, "/api/records/export", `{"format":"xlsx"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/records/export", `{"filter":{"limit":20001}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIStep(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
		code   string
	}{
		{name: "ok", body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusOK},
		{name: "bad id", body: `{"id":"x"}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown step", err: enrich.ErrUnknownStep, body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "not configured", err: eris.Wrap(enrich.ErrLLMNotConfigured, "verify"), body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusServiceUnavailable, code: "not_configured"},
		{name: "rate limited", err: eris.Wrap(statusErr(429), "openai"), body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusTooManyRequests, code: "rate_limited"},
		{name: "upstream auth", err: statusErr(401), body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusBadGateway, code: "upstream_error"},
		{name: "missing record", err: record.ErrNotFound, body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusNotFound, code: "not_found"},
		{name: "internal", err: errors.New("boom"), body: fmt.Sprintf(`{"id":%q}`, idA), status: http.StatusInternalServerError, code: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.deps.Steps = fakeSteps{err: tt.err}
			rec := f.do(t, http.MethodPost, "/api/records/ai/infer-domain", tt.body)
			require.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				assert.Equal(t, tt.code, errorCode(t, rec))
			} else {
				assert.Equal(t, "infer-domain", decodeBody(t, rec)["step"])
			}
		})
	}
}

func TestEnqueue(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/jobs/enqueue", `{"action":"verify_all","filter":{"hasDomain":true}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.JobVerifyRecord, f.enqueuer.jobType)
	body := decodeBody(t, rec)
	assert.Equal(t, "verify_record", body["jobType"])
	assert.Equal(t, float64(2), body["enqueued"])
	assert.Equal(t, float64(1), body["skippedCached"])
	assert.Equal(t, float64(3), body["totalMatched"])

	rec = f.do(t, http.MethodPost, "/api/jobs/enqueue", `{"action":"enrich_all"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.JobEnrichRecord, f.enqueuer.jobType)

	rec = f.do(t, http.MethodPost, "/api/jobs/enqueue", `{"action":"delete_all"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEnqueue_RejectsMalformedIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"record id", `{"action":"enrich_all","filter":{"ids":["6f1c1d2e-8a4b-4c3d-9e2f-0a1b2c3d4e5f","not-a-uuid"]}}`},
		{"import batch id", `{"action":"verify_all","filter":{"importBatchId":"batch-7"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()

			rec := f.do(t, http.MethodPost, "/api/jobs/enqueue", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", errorCode(t, rec))
			assert.Empty(t, f.enqueuer.jobType)
		})
	}

	f := newFixture()
	rec := f.do(t, http.MethodPost, "/api/jobs/enqueue",
		`{"action":"enrich_all","filter":{"ids":["6f1c1d2e-8a4b-4c3d-9e2f-0a1b2c3d4e5f"],"importBatchId":"0b7e4a52-3c1d-4f6e-8a9b-1c2d3e4f5a6b"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRunJobs(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/jobs/run", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, []any{}, body["processed"])
	assert.Equal(t, float64(1200), body["minDelayMs"])

	for _, q := range []string{"0", "51", "x"} {
		rec = f.do(t, http.MethodGet, "/api/jobs/run?max="+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "max=%s", q)
	}

	rec = f.do(t, http.MethodGet, "/api/jobs/run?max=50", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelJobs(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/jobs/cancel", `{"statuses":["queued","rate_limited"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []model.JobStatus{model.JobQueued, model.JobRateLimited}, f.queue.cancelled)
	assert.Equal(t, float64(3), decodeBody(t, rec)["cancelled"])

	rec = f.do(t, http.MethodPost, "/api/jobs/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, f.queue.cancelled)

	rec = f.do(t, http.MethodPost, "/api/jobs/cancel", `{"statuses":["exploded"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/jobs/cancel", `{"statuses":["succeeded"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResearch(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/api/research/suggest", `{"command":"boutique search firms"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["suggestions"], 1)

	rec = f.do(t, http.MethodPost, "/api/research/suggest", `{"command":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/research/add", `{"command":"x","domains":["acme.com"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"acme.com"}, decodeBody(t, rec)["addedDomains"])
}

func TestSnippets(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/snippets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decodeBody(t, rec)["snippets"])

	rec = f.do(t, http.MethodPut, "/api/snippets", `{"key":"Sign_Off","value":"Best,\nSam"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sign_Off", decodeBody(t, rec)["snippet"].(map[string]any)["key"])

	rec = f.do(t, http.MethodPut, "/api/snippets", `{"key":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/snippets/Sign_Off", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sign_Off", f.snippets.deleted)
}

func TestMaintenanceAuth(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/api/maintenance/dedupe", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/maintenance/dedupe", "", "X-Maintenance-Token", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/maintenance/dedupe", "", "X-Maintenance-Token", "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["duplicates"], 1)

	rec = f.do(t, http.MethodGet, "/api/maintenance/dedupe?token=s3cret&limit=10", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/maintenance/dedupe?token=s3cret&limit=1001", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.cfg.MaintenanceToken = ""
	rec = f.do(t, http.MethodGet, "/api/maintenance/dedupe?token=s3cret", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMaintenanceMerge(t *testing.T) {
	f := newFixture()
	auth := []string{"X-Maintenance-Token", "s3cret"}

	rec := f.do(t, http.MethodPost, "/api/maintenance/dedupe", `{"domain":"acme.com"}`, auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.deduper.dryRun)
	assert.True(t, *f.deduper.dryRun)
	assert.Equal(t, false, decodeBody(t, rec)["applied"])

	rec = f.do(t, http.MethodPost, "/api/maintenance/dedupe", `{"domain":"acme.com","apply":true}`, auth...)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, *f.deduper.dryRun)
	assert.Equal(t, true, decodeBody(t, rec)["applied"])

	rec = f.do(t, http.MethodPost, "/api/maintenance/dedupe", `{"domain":""}`, auth...)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()
	f.cfg.CORSOrigins = []string{"https://crm.example.com"}

	req := httptest.NewRequest(http.MethodOptions, "/api/records", nil)
	req.Header.Set("Origin", "https://crm.example.com")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	New(f.deps, f.cfg).ServeHTTP(rec, req)

	assert.Equal(t, "https://crm.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRenderEmail(t *testing.T) {
	f := newFixture()
	f.records.recs = []model.Record{{
		ID:            idA,
		CompanyName:   "Acme",
		ExecutiveName: "Dana Reyes",
		EmailTemplate: "Hi {Executive_Name}, {Intro Line} {Missing}",
	}}
	f.snippets.list = []model.Snippet{{Key: "Intro_Line", Value: "saw Acme is hiring."}}

	rec := f.do(t, http.MethodGet, "/api/records/"+idA+"/email", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hi Dana Reyes, saw Acme is hiring. ", decodeBody(t, rec)["rendered"])

	rec = f.do(t, http.MethodGet, "/api/records/"+idB+"/email", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
