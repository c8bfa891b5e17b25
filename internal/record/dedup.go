// Package record stores CRM contact records and implements the identity
// (dedup key) and non-destructive merge rules applied on every upsert.
package record

import (
	"strings"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
)

// DedupKind names the identity strategy that matched a record.
type DedupKind string

const (
	DedupEmail      DedupKind = "email"
	DedupLinkedIn   DedupKind = "linkedin"
	DedupDomainExec DedupKind = "domain_exec"
	DedupNone       DedupKind = "none"
)

// DedupKey is the identity of a record: email, then LinkedIn, then
// domain + executive name.
type DedupKey struct {
	Kind DedupKind
	Key  string
}

// ComputeDedupKey picks the strongest identity available on r.
func ComputeDedupKey(r model.Record) DedupKey {
	email := strings.ToLower(normalize.Clean(r.Email))
	li := strings.ToLower(normalize.Clean(r.ExecutiveLinkedIn))
	domain := strings.ToLower(normalize.Clean(r.Domain))
	exec := strings.ToLower(normalize.Clean(r.ExecutiveName))

	switch {
	case email != "":
		return DedupKey{Kind: DedupEmail, Key: email}
	case li != "":
		return DedupKey{Kind: DedupLinkedIn, Key: li}
	case domain != "" && exec != "":
		return DedupKey{Kind: DedupDomainExec, Key: domain + "::" + exec}
	default:
		return DedupKey{Kind: DedupNone}
	}
}

// Merge folds incoming into existing. Each text field keeps the existing
// value when it is non-empty, otherwise takes the incoming one. Exec-search
// status and email template are only filled when the existing value is
// unset. Identity, company link, batch and timestamps stay with existing.
func Merge(existing, incoming model.Record) model.Record {
	out := existing
	out.CompanyName = pickFirstNonEmpty(existing.CompanyName, incoming.CompanyName)
	out.Domain = pickFirstNonEmpty(existing.Domain, incoming.Domain)
	out.ExecSearchCategory = pickFirstNonEmpty(existing.ExecSearchCategory, incoming.ExecSearchCategory)
	out.PerplexityResearchNotes = pickFirstNonEmpty(existing.PerplexityResearchNotes, incoming.PerplexityResearchNotes)
	out.FirmNiche = pickFirstNonEmpty(existing.FirmNiche, incoming.FirmNiche)
	out.ExecutiveName = pickFirstNonEmpty(existing.ExecutiveName, incoming.ExecutiveName)
	out.ExecutiveRole = pickFirstNonEmpty(existing.ExecutiveRole, incoming.ExecutiveRole)
	out.ExecutiveLinkedIn = pickFirstNonEmpty(existing.ExecutiveLinkedIn, incoming.ExecutiveLinkedIn)
	out.Email = pickFirstNonEmpty(existing.Email, incoming.Email)
	out.SourceFile = pickFirstNonEmpty(existing.SourceFile, incoming.SourceFile)
	out.RawRowJSON = pickFirstNonEmpty(existing.RawRowJSON, incoming.RawRowJSON)
	out.EmailTemplate = pickFirstNonEmpty(existing.EmailTemplate, incoming.EmailTemplate)
	if !existing.ExecSearchStatus.IsSet() {
		out.ExecSearchStatus = model.LooseExecSearchStatus(string(incoming.ExecSearchStatus))
	}
	return out
}

func pickFirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}

// sanitize trims every field and clears a domain that is not host-shaped.
func sanitize(r model.Record) model.Record {
	r.CompanyName = normalize.Clean(r.CompanyName)
	r.Domain = normalize.NormalizeDomain(r.Domain)
	if !normalize.IsValidDomainLike(r.Domain) {
		r.Domain = ""
	}
	r.ExecSearchCategory = normalize.Clean(r.ExecSearchCategory)
	r.ExecSearchStatus = model.LooseExecSearchStatus(string(r.ExecSearchStatus))
	r.PerplexityResearchNotes = normalize.Clean(r.PerplexityResearchNotes)
	r.FirmNiche = normalize.Clean(r.FirmNiche)
	r.ExecutiveName = normalize.Clean(r.ExecutiveName)
	r.ExecutiveRole = normalize.Clean(r.ExecutiveRole)
	r.ExecutiveLinkedIn = normalize.Clean(r.ExecutiveLinkedIn)
	r.Email = normalize.Clean(r.Email)
	r.EmailTemplate = normalize.Clean(r.EmailTemplate)
	r.SourceFile = normalize.Clean(r.SourceFile)
	return r
}
