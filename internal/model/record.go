// Package model holds the CRM's persisted entity types and their enums.
package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ExecSearchStatus records whether a firm appears to be running an
// executive search.
type ExecSearchStatus string

const (
	ExecSearchUnknown ExecSearchStatus = "unknown"
	ExecSearchYes     ExecSearchStatus = "yes"
	ExecSearchNo      ExecSearchStatus = "no"
)

// ParseExecSearchStatus validates s strictly. Use LooseExecSearchStatus for
// free-form imported text.
func ParseExecSearchStatus(s string) (ExecSearchStatus, error) {
	switch ExecSearchStatus(strings.ToLower(strings.TrimSpace(s))) {
	case ExecSearchUnknown:
		return ExecSearchUnknown, nil
	case ExecSearchYes:
		return ExecSearchYes, nil
	case ExecSearchNo:
		return ExecSearchNo, nil
	}
	return "", eris.Errorf("model: invalid exec search status %q", s)
}

// LooseExecSearchStatus maps anything other than yes/no to unknown.
func LooseExecSearchStatus(s string) ExecSearchStatus {
	st, err := ParseExecSearchStatus(s)
	if err != nil {
		return ExecSearchUnknown
	}
	return st
}

// IsSet reports whether the status carries a decision.
func (s ExecSearchStatus) IsSet() bool {
	return s == ExecSearchYes || s == ExecSearchNo
}

// Record is a firm/executive contact row.
type Record struct {
	ID                      string           `json:"id" db:"id"`
	CompanyID               string           `json:"companyId" db:"company_id"`
	CompanyName             string           `json:"companyName" db:"company_name"`
	Domain                  string           `json:"domain" db:"domain"`
	ExecSearchCategory      string           `json:"execSearchCategory" db:"exec_search_category"`
	ExecSearchStatus        ExecSearchStatus `json:"execSearchStatus" db:"exec_search_status"`
	PerplexityResearchNotes string           `json:"perplexityResearchNotes" db:"perplexity_research_notes"`
	FirmNiche               string           `json:"firmNiche" db:"firm_niche"`
	ExecutiveName           string           `json:"executiveName" db:"executive_name"`
	ExecutiveRole           string           `json:"executiveRole" db:"executive_role"`
	ExecutiveLinkedIn       string           `json:"executiveLinkedIn" db:"executive_linkedin"`
	Email                   string           `json:"email" db:"email"`
	EmailTemplate           string           `json:"emailTemplate" db:"email_template"`
	SourceFile              string           `json:"sourceFile" db:"source_file"`
	RawRowJSON              string           `json:"rawRowJson" db:"raw_row_json"`
	ImportBatchID           string           `json:"importBatchId" db:"import_batch_id"`
	CreatedAt               time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time        `json:"updatedAt" db:"updated_at"`
}

// RecordPatch is a partial update. Nil fields are left unchanged.
type RecordPatch struct {
	CompanyName             *string           `json:"companyName,omitempty"`
	Domain                  *string           `json:"domain,omitempty"`
	ExecSearchCategory      *string           `json:"execSearchCategory,omitempty"`
	ExecSearchStatus        *ExecSearchStatus `json:"execSearchStatus,omitempty"`
	PerplexityResearchNotes *string           `json:"perplexityResearchNotes,omitempty"`
	FirmNiche               *string           `json:"firmNiche,omitempty"`
	ExecutiveName           *string           `json:"executiveName,omitempty"`
	ExecutiveRole           *string           `json:"executiveRole,omitempty"`
	ExecutiveLinkedIn       *string           `json:"executiveLinkedIn,omitempty"`
	Email                   *string           `json:"email,omitempty"`
	EmailTemplate           *string           `json:"emailTemplate,omitempty"`
	SourceFile              *string           `json:"sourceFile,omitempty"`
}

// Validate rejects enum values outside the allowed set.
func (p RecordPatch) Validate() error {
	if p.ExecSearchStatus != nil {
		if _, err := ParseExecSearchStatus(string(*p.ExecSearchStatus)); err != nil {
			return err
		}
	}
	return nil
}

// ImportBatch groups the records created by one import so they can be
// undone together.
type ImportBatch struct {
	ID         string    `json:"id" db:"id"`
	SourceFile string    `json:"sourceFile" db:"source_file"`
	RowCount   int       `json:"rowCount" db:"row_count"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
}

// Snippet is a named text block referenced from email templates.
type Snippet struct {
	Key       string    `json:"key" yaml:"key" db:"key"`
	Value     string    `json:"value" yaml:"value" db:"value"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-" db:"updated_at"`
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }
