package record

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/sheets-crm/internal/model"
)

func TestComputeDedupKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   model.Record
		want DedupKey
	}{
		{
			name: "email wins",
			in:   model.Record{Email: " Jane@Acme.com ", ExecutiveLinkedIn: "linkedin.com/in/jane", Domain: "acme.com", ExecutiveName: "Jane"},
			want: DedupKey{Kind: DedupEmail, Key: "jane@acme.com"},
		},
		{
			name: "linkedin when no email",
			in:   model.Record{ExecutiveLinkedIn: "LinkedIn.com/in/Jane", Domain: "acme.com", ExecutiveName: "Jane"},
			want: DedupKey{Kind: DedupLinkedIn, Key: "linkedin.com/in/jane"},
		},
		{
			name: "domain and exec",
			in:   model.Record{Domain: "Acme.com", ExecutiveName: " Jane Doe "},
			want: DedupKey{Kind: DedupDomainExec, Key: "acme.com::jane doe"},
		},
		{
			name: "domain alone is no key",
			in:   model.Record{Domain: "acme.com"},
			want: DedupKey{Kind: DedupNone},
		},
		{
			name: "empty",
			in:   model.Record{CompanyName: "Acme"},
			want: DedupKey{Kind: DedupNone},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ComputeDedupKey(tt.in))
		})
	}
}

func TestMerge_ExistingWins(t *testing.T) {
	t.Parallel()

	existing := model.Record{
		ID:               "r1",
		CompanyName:      "Acme",
		Email:            "jane@acme.com",
		ExecSearchStatus: model.ExecSearchYes,
		EmailTemplate:    "Hi {Executive_Name}",
	}
	incoming := model.Record{
		CompanyName:      "Acme Corp",
		Email:            "jane@acme.com",
		ExecutiveRole:    "CEO",
		FirmNiche:        "  retained search ",
		ExecSearchStatus: model.ExecSearchNo,
		EmailTemplate:    "Hello",
	}

	got := Merge(existing, incoming)
	assert.Equal(t, "r1", got.ID)
	assert.Equal(t, "Acme", got.CompanyName)
	assert.Equal(t, "CEO", got.ExecutiveRole)
	assert.Equal(t, "retained search", got.FirmNiche)
	assert.Equal(t, model.ExecSearchYes, got.ExecSearchStatus)
	assert.Equal(t, "Hi {Executive_Name}", got.EmailTemplate)
}

func TestMerge_FillsUnknownStatus(t *testing.T) {
	t.Parallel()

	got := Merge(
		model.Record{ExecSearchStatus: model.ExecSearchUnknown},
		model.Record{ExecSearchStatus: model.ExecSearchNo},
	)
	assert.Equal(t, model.ExecSearchNo, got.ExecSearchStatus)
}

// Importing two rows with the same identity yields the union of their
// non-empty fields, with the first row winning conflicts.
func TestMerge_TwoPassUnion(t *testing.T) {
	t.Parallel()

	first := model.Record{Email: "a@x.com", CompanyName: "X", ExecutiveRole: ""}
	second := model.Record{Email: "a@x.com", CompanyName: "X Holdings", ExecutiveRole: "Partner", FirmNiche: "Tech"}

	got := Merge(Merge(model.Record{}, first), second)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "X", got.CompanyName)
	assert.Equal(t, "Partner", got.ExecutiveRole)
	assert.Equal(t, "Tech", got.FirmNiche)

	// Re-merging either input changes nothing.
	assert.Equal(t, got, Merge(got, first))
	assert.Equal(t, got, Merge(got, second))
}

func TestSanitize_ClearsInvalidDomain(t *testing.T) {
	t.Parallel()

	got := sanitize(model.Record{Domain: "Acme Consulting", ExecSearchStatus: "maybe"})
	assert.Equal(t, "", got.Domain)
	assert.Equal(t, model.ExecSearchUnknown, got.ExecSearchStatus)

	got = sanitize(model.Record{Domain: "https://www.Acme.com/x"})
	assert.Equal(t, "acme.com", got.Domain)
}
