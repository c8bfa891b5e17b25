package company

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/model"
)

// RecordLinker points a record at its company.
type RecordLinker interface {
	LinkCompany(ctx context.Context, recordID, companyID string) error
}

// Resolver attaches records to their owning company.
type Resolver struct {
	store   Store
	records RecordLinker
}

// NewResolver creates a company resolver.
func NewResolver(store Store, records RecordLinker) *Resolver {
	return &Resolver{store: store, records: records}
}

// Resolve ensures a company exists for the record's domain and links the
// record to it. Records without a usable domain are left unlinked and an
// empty id is returned.
func (r *Resolver) Resolve(ctx context.Context, rec model.Record) (string, error) {
	c, err := r.store.EnsureForDomain(ctx, rec.CompanyName, rec.Domain)
	if err != nil {
		return "", eris.Wrapf(err, "company: resolve record %s", rec.ID)
	}
	if c == nil {
		return "", nil
	}
	if c.ID == rec.CompanyID {
		return c.ID, nil
	}
	if err := r.records.LinkCompany(ctx, rec.ID, c.ID); err != nil {
		return "", eris.Wrapf(err, "company: link record %s", rec.ID)
	}

	zap.L().Debug("resolve: linked record to company",
		zap.String("record_id", rec.ID),
		zap.String("company_id", c.ID),
		zap.String("domain", c.Domain),
	)
	return c.ID, nil
}
