package importer

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestReadDelimited_CSV(t *testing.T) {
	src := "\ufeffCompany,Website,Notes\n" +
		"Acme,acme.com,\"multi\nline, with comma\"\n" +
		"\n" +
		"Beta, beta.io \n"

	tbl, err := ReadDelimited(context.Background(), strings.NewReader(src), ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"Company", "Website", "Notes"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "multi\nline, with comma", tbl.Rows[0]["Notes"])
	assert.Equal(t, "beta.io", tbl.Rows[1]["Website"])
	assert.Equal(t, "", tbl.Rows[1]["Notes"])
}

func TestReadDelimited_TSV(t *testing.T) {
	tbl, err := ReadDelimited(context.Background(), strings.NewReader("Name\tEmail\nJane Doe\tjane@acme.com\n"), '\t')
	require.NoError(t, err)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "jane@acme.com", tbl.Rows[0]["Email"])
}

func TestReadDelimited_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadDelimited(ctx, strings.NewReader("a\nb\n"), ',')
	assert.Error(t, err)
}

func TestReadFile_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, vals := range [][]string{{"Company Name", "Email"}, {"Acme", "jane@acme.com"}} {
		row := sheet.AddRow()
		for _, v := range vals {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	require.NoError(t, f.Save(path))

	tbl, err := ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Company Name", "Email"}, tbl.Headers)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "Acme", tbl.Rows[0]["Company Name"])
}

func TestReadFile_Unsupported(t *testing.T) {
	_, err := ReadFile(context.Background(), "leads.pdf")
	assert.Error(t, err)
}

func TestGuessMapping(t *testing.T) {
	t.Parallel()

	headers := []string{
		"Company Name", "Website URL", "First Name", "Last Name", "Title",
		"Person Linkedin Url", "Email", "Email Status", "Exec Search?", "Firm Niche", "Notes",
	}
	m := GuessMapping(headers)

	assert.Equal(t, "Company Name", m[FieldCompanyName])
	assert.Equal(t, "Website URL", m[FieldDomain])
	assert.Equal(t, "First Name", m[FieldExecFirstName])
	assert.Equal(t, "Last Name", m[FieldExecLastName])
	assert.Equal(t, "Title", m[FieldExecutiveRole])
	assert.Equal(t, "Person Linkedin Url", m[FieldExecutiveLinkedIn])
	assert.Equal(t, "Email", m[FieldEmail])
	assert.Equal(t, "Exec Search?", m[FieldExecSearchStatus])
	assert.Equal(t, "Firm Niche", m[FieldFirmNiche])
	assert.Equal(t, "Notes", m[FieldResearchNotes])
	_, ok := m[FieldExecutiveName]
	assert.False(t, ok)
}

func TestMappingApply_CombinesNames(t *testing.T) {
	t.Parallel()

	m := Mapping{FieldExecFirstName: "First", FieldExecLastName: "Last", FieldCompanyName: "Co"}
	r := m.Apply(map[string]string{"First": "Jane", "Last": "Doe", "Co": "Acme"})
	assert.Equal(t, "Jane Doe", r.ExecutiveName)
	assert.Equal(t, "Acme", r.CompanyName)
	assert.Contains(t, r.RawRowJSON, `"First":"Jane"`)
}

func TestCleanupRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       Row
		want     Row
		warnings int
	}{
		{
			name:     "domain holding a company name is cleared",
			in:       Row{Domain: "Acme Consulting"},
			want:     Row{ExecSearchStatus: "unknown"},
			warnings: 1,
		},
		{
			name:     "url in company name moves to website and feeds domain",
			in:       Row{CompanyName: "https://www.acme.com/about"},
			want:     Row{Website: "acme.com", Domain: "acme.com", ExecSearchStatus: "unknown"},
			warnings: 1,
		},
		{
			name:     "email in name column moves to email",
			in:       Row{ExecutiveName: " Jane@Acme.com "},
			want:     Row{Email: "jane@acme.com", Domain: "acme.com", ExecSearchStatus: "unknown"},
			warnings: 1,
		},
		{
			name:     "name in email column moves to name",
			in:       Row{Email: "Jane Doe"},
			want:     Row{ExecutiveName: "Jane Doe", ExecSearchStatus: "unknown"},
			warnings: 1,
		},
		{
			name: "status and linkedin normalized",
			in:   Row{ExecSearchStatus: " YES ", ExecutiveLinkedIn: "linkedin.com/in/jane", Domain: "WWW.Acme.com/"},
			want: Row{ExecSearchStatus: "yes", ExecutiveLinkedIn: "https://linkedin.com/in/jane", Domain: "acme.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := CleanupRow(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Len(t, warnings, tt.warnings)
		})
	}
}

type fakeRecords struct {
	batches  int
	rowCount int
	upserts  []model.Record
	seen     map[string]bool
	failOn   string
}

func (f *fakeRecords) CreateBatch(_ context.Context, source string) (*model.ImportBatch, error) {
	f.batches++
	return &model.ImportBatch{ID: "batch-1", SourceFile: source}, nil
}

func (f *fakeRecords) SetBatchRowCount(_ context.Context, _ string, n int) error {
	f.rowCount = n
	return nil
}

func (f *fakeRecords) UndoLatestImport(context.Context) (*record.UndoResult, error) {
	return &record.UndoResult{BatchID: "batch-1", DeletedRecords: int64(f.rowCount)}, nil
}

func (f *fakeRecords) UpsertMerged(_ context.Context, r model.Record) (*record.UpsertResult, error) {
	if f.failOn != "" && r.CompanyName == f.failOn {
		return nil, errors.New("insert failed")
	}
	f.upserts = append(f.upserts, r)
	key := record.ComputeDedupKey(r)
	created := key.Kind == record.DedupNone || !f.seen[key.Key]
	f.seen[key.Key] = true
	r.ID = "id-" + r.Email
	return &record.UpsertResult{Record: r, Created: created, DedupKind: key.Kind}, nil
}

type fakeResolver struct{ calls int }

func (f *fakeResolver) Resolve(_ context.Context, rec model.Record) (string, error) {
	f.calls++
	if rec.Domain == "" {
		return "", nil
	}
	return "co-" + rec.Domain, nil
}

func TestImport(t *testing.T) {
	recs := &fakeRecords{seen: map[string]bool{}, failOn: "Broken"}
	res := &fakeResolver{}
	rows := []Row{
		{CompanyName: "Acme", Email: "jane@acme.com"},
		{CompanyName: "Acme", Email: "JANE@acme.com", FirmNiche: "search"},
		{CompanyName: "Broken"},
		{Domain: "Acme Consulting"},
	}

	out, err := New(recs, res).Import(context.Background(), rows, "leads.csv")
	require.NoError(t, err)

	assert.Equal(t, "batch-1", out.BatchID)
	assert.Equal(t, 2, out.Created)
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 2, out.DedupCounts["email"])
	assert.Equal(t, 1, out.DedupCounts["none"])
	require.Len(t, out.Errors, 1)
	assert.Equal(t, 2, out.Errors[0].Row)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, 3, out.Warnings[0].Row)

	assert.Equal(t, 2, recs.rowCount)
	assert.Equal(t, "batch-1", recs.upserts[0].ImportBatchID)
	assert.Equal(t, "leads.csv", recs.upserts[0].SourceFile)
	assert.Equal(t, "co-acme.com", out.Records[0].CompanyID)
	assert.Equal(t, 3, res.calls)

	undo, err := New(recs, nil).UndoLatest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), undo.DeletedRecords)
}
