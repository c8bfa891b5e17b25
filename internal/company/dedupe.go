package company

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
)

// DomainDuplicate lists the companies and records sharing one domain.
type DomainDuplicate struct {
	Domain       string   `json:"domain"`
	CompanyIDs   []string `json:"companyIds"`
	RecordIDs    []string `json:"recordIds"`
	CompanyCount int      `json:"companyCount"`
	RecordCount  int      `json:"recordCount"`
}

// MergeResult describes a merge, applied or intended.
type MergeResult struct {
	Domain             string   `json:"domain"`
	CanonicalCompanyID string   `json:"canonicalCompanyId,omitempty"`
	MergedCompanyIDs   []string `json:"mergedCompanyIds"`
	MovedRecordIDs     []string `json:"movedRecordIds"`
	DeletedCompanyIDs  []string `json:"deletedCompanyIds"`
	DryRun             bool     `json:"dryRun"`
}

// Deduper finds and consolidates companies that share a domain.
type Deduper struct {
	pool db.Pool
}

// NewDeduper creates a Deduper.
func NewDeduper(pool db.Pool) *Deduper {
	return &Deduper{pool: pool}
}

// FindDuplicateDomains groups live companies and records by lowercase
// domain and returns every domain with more than one of either, largest
// groups first.
func (d *Deduper) FindDuplicateDomains(ctx context.Context, limit int) ([]DomainDuplicate, error) {
	if limit <= 0 {
		limit = 200
	}

	var companyGroups, recordGroups []domainGroup
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		companyGroups, err = d.groupByDomain(gctx, `
			SELECT lower(domain), array_agg(id::text), count(*)::int
			FROM companies
			WHERE deleted_at IS NULL AND domain IS NOT NULL AND domain <> ''
			GROUP BY lower(domain)
			HAVING count(*) > 1
			ORDER BY count(*) DESC
			LIMIT $1`, limit)
		return eris.Wrap(err, "company: group companies by domain")
	})
	g.Go(func() error {
		var err error
		recordGroups, err = d.groupByDomain(gctx, `
			SELECT lower(domain), array_agg(id::text), count(*)::int
			FROM records
			WHERE domain <> ''
			GROUP BY lower(domain)
			HAVING count(*) > 1
			ORDER BY count(*) DESC
			LIMIT $1`, limit)
		return eris.Wrap(err, "company: group records by domain")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byDomain := make(map[string]*DomainDuplicate)
	for _, cg := range companyGroups {
		byDomain[cg.domain] = &DomainDuplicate{
			Domain:       cg.domain,
			CompanyIDs:   cg.ids,
			RecordIDs:    []string{},
			CompanyCount: cg.count,
		}
	}
	for _, rg := range recordGroups {
		cur, ok := byDomain[rg.domain]
		if !ok {
			cur = &DomainDuplicate{Domain: rg.domain, CompanyIDs: []string{}}
			byDomain[rg.domain] = cur
		}
		cur.RecordIDs = rg.ids
		cur.RecordCount = rg.count
	}

	out := make([]DomainDuplicate, 0, len(byDomain))
	for _, dup := range byDomain {
		out = append(out, *dup)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti := out[i].CompanyCount + out[i].RecordCount
		tj := out[j].CompanyCount + out[j].RecordCount
		if ti != tj {
			return ti > tj
		}
		return out[i].Domain < out[j].Domain
	})
	return out[:min(len(out), limit)], nil
}

type domainGroup struct {
	domain string
	ids    []string
	count  int
}

func (d *Deduper) groupByDomain(ctx context.Context, query string, limit int) ([]domainGroup, error) {
	rows, err := d.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domainGroup
	for rows.Next() {
		var g domainGroup
		if err := rows.Scan(&g.domain, &g.ids, &g.count); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// MergeByDomain collapses every live company sharing domain into the most
// recently updated one. Records pointing at a participant, or carrying the
// domain, are moved to the survivor and the others are tombstoned. A merge
// log row is always written; with dryRun nothing else changes.
func (d *Deduper) MergeByDomain(ctx context.Context, domain string, dryRun bool) (*MergeResult, error) {
	dom := normalize.NormalizeDomain(domain)
	if dom == "" || !normalize.IsValidDomainLike(dom) {
		return nil, eris.Wrapf(ErrInvalidDomain, "company: merge %q", domain)
	}
	log := zap.L().With(zap.String("component", "company.dedupe"), zap.String("domain", dom))

	rows, err := d.pool.Query(ctx, `
		SELECT `+companyColumns+`
		FROM companies
		WHERE deleted_at IS NULL AND lower(domain) = lower($1)
		ORDER BY updated_at DESC NULLS LAST, created_at DESC`, dom)
	if err != nil {
		return nil, eris.Wrapf(err, "company: load companies for %s", dom)
	}
	companies, err := scanCompanies(rows)
	if err != nil {
		return nil, err
	}

	res := &MergeResult{
		Domain:            dom,
		MergedCompanyIDs:  companyIDs(companies),
		MovedRecordIDs:    []string{},
		DeletedCompanyIDs: []string{},
		DryRun:            dryRun,
	}
	if len(companies) <= 1 {
		if len(companies) == 1 {
			res.CanonicalCompanyID = companies[0].ID
		}
		return res, nil
	}

	canonical, dupes := companies[0], companies[1:]
	mergedName := canonical.CompanyName
	if mergedName == "" {
		for _, dup := range dupes {
			if dup.CompanyName != "" {
				mergedName = dup.CompanyName
				break
			}
		}
	}
	mergedNormalized := canonical.NormalizedName
	if mergedNormalized == "" {
		mergedNormalized = normalize.NormalizeCompanyName(mergedName)
	}

	after := canonical
	after.CompanyName = mergedName
	after.NormalizedName = mergedNormalized
	before := model.MergeSnapshot{Canonical: canonical, Dupes: dupes}

	moved, err := d.affectedRecordIDs(ctx, res.MergedCompanyIDs, dom)
	if err != nil {
		return nil, err
	}
	res.CanonicalCompanyID = canonical.ID
	res.MovedRecordIDs = moved
	res.DeletedCompanyIDs = companyIDs(dupes)

	entry := model.CompanyMergeLog{
		ID:                 uuid.NewString(),
		Domain:             dom,
		CanonicalCompanyID: canonical.ID,
		MergedCompanyIDs:   res.MergedCompanyIDs,
		Before:             before,
		After:              after,
		DryRun:             dryRun,
	}

	if dryRun {
		if err := insertMergeLog(ctx, d.pool, entry); err != nil {
			return nil, err
		}
		log.Info("company merge planned",
			zap.String("canonical_id", canonical.ID),
			zap.Int("dupes", len(dupes)),
			zap.Int("records", len(moved)),
		)
		return res, nil
	}

	dupeIDs := res.DeletedCompanyIDs
	err = db.RunInTx(ctx, d.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE companies SET company_name = $2, normalized_name = nullif($3, ''), updated_at = now(), deleted_at = NULL
			WHERE id = $1`, canonical.ID, mergedName, mergedNormalized); err != nil {
			return eris.Wrap(err, "company: update canonical")
		}
		if _, err := tx.Exec(ctx, `
			UPDATE records SET company_id = $2
			WHERE company_id = any($1::uuid[]) OR lower(domain) = lower($3)`, dupeIDs, canonical.ID, dom); err != nil {
			return eris.Wrap(err, "company: reassign records")
		}
		if _, err := tx.Exec(ctx, `
			UPDATE companies SET deleted_at = now(), updated_at = now()
			WHERE id = any($1::uuid[])`, dupeIDs); err != nil {
			return eris.Wrap(err, "company: tombstone dupes")
		}
		return insertMergeLog(ctx, tx, entry)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "company: merge %s", dom)
	}

	log.Info("company merge applied",
		zap.String("canonical_id", canonical.ID),
		zap.Strings("deleted_ids", dupeIDs),
		zap.Int("records", len(moved)),
	)
	return res, nil
}

func (d *Deduper) affectedRecordIDs(ctx context.Context, companyIDs []string, domain string) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id::text FROM records
		WHERE company_id = any($1::uuid[]) OR lower(domain) = lower($2)`, companyIDs, domain)
	if err != nil {
		return nil, eris.Wrap(err, "company: load affected records")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "company: scan affected record")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "company: iterate affected records")
}

func insertMergeLog(ctx context.Context, q db.Querier, e model.CompanyMergeLog) error {
	merged, err := json.Marshal(e.MergedCompanyIDs)
	if err != nil {
		return eris.Wrap(err, "company: encode merged ids")
	}
	before, err := json.Marshal(e.Before)
	if err != nil {
		return eris.Wrap(err, "company: encode before snapshot")
	}
	after, err := json.Marshal(e.After)
	if err != nil {
		return eris.Wrap(err, "company: encode after snapshot")
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO company_merge_log (id, domain, canonical_company_id, merged_company_ids, before, after, dry_run)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Domain, e.CanonicalCompanyID, merged, before, after, e.DryRun); err != nil {
		return eris.Wrap(err, "company: insert merge log")
	}
	return nil
}

func companyIDs(cs []model.Company) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}
