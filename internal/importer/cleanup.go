package importer

import (
	"strings"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
)

// Row is one mapped, not yet persisted import row.
type Row struct {
	CompanyName             string `json:"companyName,omitempty"`
	Domain                  string `json:"domain,omitempty"`
	Website                 string `json:"website,omitempty"`
	ExecutiveName           string `json:"executiveName,omitempty"`
	ExecutiveRole           string `json:"executiveRole,omitempty"`
	ExecutiveLinkedIn       string `json:"executiveLinkedIn,omitempty"`
	Email                   string `json:"email,omitempty"`
	EmailTemplate           string `json:"emailTemplate,omitempty"`
	PerplexityResearchNotes string `json:"perplexityResearchNotes,omitempty"`
	FirmNiche               string `json:"firmNiche,omitempty"`
	ExecSearchCategory      string `json:"execSearchCategory,omitempty"`
	ExecSearchStatus        string `json:"execSearchStatus,omitempty"`
	RawRowJSON              string `json:"rawRowJson,omitempty"`
}

// CleanupRow repairs common spreadsheet misplacements and derives the
// domain. Every moved or dropped value produces a warning.
func CleanupRow(in Row) (Row, []string) {
	var warnings []string
	r := Row{
		CompanyName:             normalize.Clean(in.CompanyName),
		Domain:                  normalize.Clean(in.Domain),
		Website:                 normalize.Clean(in.Website),
		ExecutiveName:           normalize.Clean(in.ExecutiveName),
		ExecutiveRole:           normalize.Clean(in.ExecutiveRole),
		ExecutiveLinkedIn:       normalize.Clean(in.ExecutiveLinkedIn),
		Email:                   normalize.Clean(in.Email),
		EmailTemplate:           normalize.Clean(in.EmailTemplate),
		PerplexityResearchNotes: normalize.Clean(in.PerplexityResearchNotes),
		FirmNiche:               normalize.Clean(in.FirmNiche),
		ExecSearchCategory:      normalize.Clean(in.ExecSearchCategory),
		ExecSearchStatus:        string(model.LooseExecSearchStatus(in.ExecSearchStatus)),
		RawRowJSON:              in.RawRowJSON,
	}

	if r.CompanyName != "" && r.Website == "" && normalize.LooksLikeURL(r.CompanyName) {
		r.Website, r.CompanyName = r.CompanyName, ""
		warnings = append(warnings, "moved companyName (looked like URL) to website")
	}

	if r.Domain != "" {
		if d := normalize.NormalizeDomain(r.Domain); d != "" && normalize.IsValidDomainLike(d) {
			r.Domain = d
		} else {
			warnings = append(warnings, "cleared domain (not domain-like): "+r.Domain)
			r.Domain = ""
		}
	}

	if r.ExecutiveName != "" && r.Email == "" && normalize.LooksLikeEmail(r.ExecutiveName) {
		r.Email, r.ExecutiveName = r.ExecutiveName, ""
		warnings = append(warnings, "moved executiveName (looked like email) to email")
	}

	if r.Email != "" && r.ExecutiveName == "" && !normalize.LooksLikeEmail(r.Email) && len(strings.Fields(r.Email)) >= 2 {
		r.ExecutiveName, r.Email = r.Email, ""
		warnings = append(warnings, "moved email (looked like name) to executiveName")
	}

	r.Email = strings.ToLower(r.Email)

	if r.Domain == "" {
		if d := normalize.NormalizeDomain(r.Website); d != "" && normalize.IsValidDomainLike(d) {
			r.Domain = d
		}
	}
	if r.Domain == "" && r.Email != "" {
		if d := normalize.NormalizeDomain(normalize.ExtractDomainFromEmail(r.Email)); d != "" && normalize.IsValidDomainLike(d) {
			r.Domain = d
		}
	}
	if r.Website != "" {
		r.Website = normalize.NormalizeDomain(r.Website)
	}

	r.ExecutiveLinkedIn = normalize.NormalizeLinkedIn(r.ExecutiveLinkedIn)
	return r, warnings
}

// Record converts a cleaned row into a record for UpsertMerged.
func (r Row) Record(sourceFile, batchID string) model.Record {
	return model.Record{
		CompanyName:             r.CompanyName,
		Domain:                  r.Domain,
		ExecSearchCategory:      r.ExecSearchCategory,
		ExecSearchStatus:        model.LooseExecSearchStatus(r.ExecSearchStatus),
		PerplexityResearchNotes: r.PerplexityResearchNotes,
		FirmNiche:               r.FirmNiche,
		ExecutiveName:           r.ExecutiveName,
		ExecutiveRole:           r.ExecutiveRole,
		ExecutiveLinkedIn:       r.ExecutiveLinkedIn,
		Email:                   r.Email,
		EmailTemplate:           r.EmailTemplate,
		SourceFile:              sourceFile,
		RawRowJSON:              r.RawRowJSON,
		ImportBatchID:           batchID,
	}
}
