package research

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/aicache"
	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/llm"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
	"github.com/sells-group/sheets-crm/pkg/perplexity"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSearch struct{ calls int }

func (f *fakeSearch) ChatCompletion(context.Context, perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	f.calls++
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "Acme (acme.com), Beta (beta.io)"}}},
	}, nil
}

type fakeLLM struct{ answer string }

func (f fakeLLM) ChatJSON(_ context.Context, _ []llm.Message, _ float64, out any) error {
	return json.Unmarshal([]byte(f.answer), out)
}

type fakeCompanies struct {
	existing map[string]bool
	conflict map[string]bool
	upserts  []string
}

func (f *fakeCompanies) Upsert(_ context.Context, name, domain string) (*model.Company, error) {
	if f.conflict[domain] {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	f.upserts = append(f.upserts, domain)
	return &model.Company{ID: "co-" + domain, CompanyName: name, Domain: domain}, nil
}

func (f *fakeCompanies) ExistingDomains(_ context.Context, domains []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, d := range domains {
		if f.existing[d] {
			out[d] = true
		}
	}
	return out, nil
}

type fakeRecords struct {
	upserts []model.Record
	links   map[string]string
}

func (f *fakeRecords) UpsertMerged(_ context.Context, r model.Record) (*record.UpsertResult, error) {
	r.ID = "rec-" + r.Domain
	f.upserts = append(f.upserts, r)
	return &record.UpsertResult{Record: r, Created: true}, nil
}

func (f *fakeRecords) LinkCompany(_ context.Context, recordID, companyID string) error {
	f.links[recordID] = companyID
	return nil
}

type fakeJobs struct{ enqueued []string }

func (f *fakeJobs) EnqueueOne(_ context.Context, jt model.JobType, id string) (*jobs.EnqueueResult, error) {
	if jt != model.JobEnrichRecord {
		return nil, errors.New("unexpected job type")
	}
	f.enqueued = append(f.enqueued, id)
	return &jobs.EnqueueResult{Enqueued: 1}, nil
}

const extracted = `{"suggestions":[
	{"companyName":"Acme","domain":"https://www.acme.com/","notes":"retained search","sources":["https://acme.com"]},
	{"companyName":"Acme dup","domain":"acme.com"},
	{"companyName":"No domain","domain":""},
	{"companyName":"Beta","domain":"beta.io"}
]}`

func TestSuggest(t *testing.T) {
	cache, err := aicache.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() }) //nolint:errcheck

	search := &fakeSearch{}
	svc := NewService(Config{
		Search:    search,
		LLM:       fakeLLM{answer: extracted},
		Cache:     cache,
		Companies: &fakeCompanies{existing: map[string]bool{"beta.io": true}},
	})

	res, err := svc.Suggest(context.Background(), "boutique search firms in Ohio")
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 2)
	assert.Equal(t, "acme.com", res.Suggestions[0].Domain)
	assert.False(t, res.Suggestions[0].Existing)
	assert.True(t, res.Suggestions[1].Existing)
	assert.Equal(t, Telemetry{Suggested: 2, FilteredExisting: 1}, res.Telemetry)

	_, err = svc.Suggest(context.Background(), "boutique search firms in Ohio")
	require.NoError(t, err)
	assert.Equal(t, 1, search.calls)
}

func TestSuggest_Validation(t *testing.T) {
	svc := NewService(Config{Companies: &fakeCompanies{}})

	_, err := svc.Suggest(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = svc.Suggest(context.Background(), "firms")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAdd(t *testing.T) {
	companies := &fakeCompanies{conflict: map[string]bool{"beta.io": true}}
	recs := &fakeRecords{links: map[string]string{}}
	jq := &fakeJobs{}
	svc := NewService(Config{Companies: companies, Records: recs, Jobs: jq})

	suggestions := []Suggestion{
		{CompanyName: "Acme", Domain: "acme.com", Notes: "retained search", Sources: []string{"https://acme.com"}},
		{CompanyName: "Beta", Domain: "beta.io"},
		{CompanyName: "Gamma", Domain: "gamma.co"},
	}
	res, err := svc.Add(context.Background(), "ohio firms", suggestions, []string{"WWW.acme.com", "beta.io"})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme.com"}, res.AddedDomains)
	assert.Equal(t, Telemetry{Suggested: 3, FilteredExisting: 1, Added: 1}, res.Telemetry)

	require.Len(t, recs.upserts, 1)
	rec := recs.upserts[0]
	assert.Equal(t, "research:ohio firms", rec.SourceFile)
	assert.Equal(t, "retained search\n\nSources:\nhttps://acme.com", rec.PerplexityResearchNotes)
	assert.Equal(t, "co-acme.com", recs.links["rec-acme.com"])
	assert.Equal(t, []string{"rec-acme.com"}, jq.enqueued)
}
