// Package company keeps firm-level entities unique by domain (or by
// normalized name when no domain is known) and consolidates companies that
// ended up sharing a domain.
package company

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/model"
)

// ErrInvalidDomain is returned when a domain does not normalize to a host.
var ErrInvalidDomain = eris.New("company: invalid domain")

// Store defines persistence operations for companies.
type Store interface {
	EnsureForDomain(ctx context.Context, companyName, domain string) (*model.Company, error)
	Upsert(ctx context.Context, companyName, domain string) (*model.Company, error)
	Get(ctx context.Context, id string) (*model.Company, error)
	ExistingDomains(ctx context.Context, domains []string) (map[string]bool, error)
	MergeLog(ctx context.Context, domain string, limit int) ([]model.CompanyMergeLog, error)
}
