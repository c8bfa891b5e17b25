package company

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
)

const companyColumns = `id::text, company_name, coalesce(domain, ''), coalesce(normalized_name, ''),
	created_at, updated_at, deleted_at`

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureForDomain upserts the company owning domain, reviving it if it was
// merged away. Non-empty incoming names replace stored ones. Returns nil
// when domain is empty or not host-shaped.
func (s *PostgresStore) EnsureForDomain(ctx context.Context, companyName, domain string) (*model.Company, error) {
	d := normalize.NormalizeDomain(domain)
	if d == "" || !normalize.IsValidDomainLike(d) {
		return nil, nil
	}
	name := normalize.Clean(companyName)

	c := &model.Company{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO companies (id, company_name, domain, normalized_name, updated_at)
		VALUES ($1, $2, $3, nullif($4, ''), now())
		ON CONFLICT (domain) DO UPDATE SET
			company_name = coalesce(nullif(excluded.company_name, ''), companies.company_name),
			normalized_name = coalesce(excluded.normalized_name, companies.normalized_name),
			updated_at = now(),
			deleted_at = NULL
		RETURNING `+companyColumns,
		uuid.NewString(), name, d, normalize.NormalizeCompanyName(name),
	).Scan(companyDests(c)...)
	if err != nil {
		return nil, eris.Wrapf(err, "company: ensure for domain %s", d)
	}
	return c, nil
}

// Upsert creates or refreshes a company. Domain is the unique key when
// present, otherwise the normalized name. A company with neither is
// inserted bare.
func (s *PostgresStore) Upsert(ctx context.Context, companyName, domain string) (*model.Company, error) {
	name := normalize.Clean(companyName)
	d := normalize.NormalizeDomain(domain)
	if d != "" && !normalize.IsValidDomainLike(d) {
		return nil, eris.Wrapf(ErrInvalidDomain, "company: upsert %q", domain)
	}
	nn := normalize.NormalizeCompanyName(name)

	var query string
	switch {
	case d != "":
		query = `
		INSERT INTO companies (id, company_name, domain, normalized_name, updated_at)
		VALUES ($1, $2, $3, nullif($4, ''), now())
		ON CONFLICT (domain) DO UPDATE SET
			company_name = coalesce(nullif(excluded.company_name, ''), companies.company_name),
			normalized_name = coalesce(excluded.normalized_name, companies.normalized_name),
			updated_at = now()
		RETURNING ` + companyColumns
	case nn != "":
		query = `
		INSERT INTO companies (id, company_name, domain, normalized_name, updated_at)
		VALUES ($1, $2, nullif($3, ''), $4, now())
		ON CONFLICT (normalized_name) WHERE domain IS NULL DO UPDATE SET
			company_name = coalesce(nullif(excluded.company_name, ''), companies.company_name),
			updated_at = now()
		RETURNING ` + companyColumns
	default:
		query = `
		INSERT INTO companies (id, company_name, domain, normalized_name, updated_at)
		VALUES ($1, $2, nullif($3, ''), nullif($4, ''), now())
		RETURNING ` + companyColumns
	}

	c := &model.Company{}
	if err := s.pool.QueryRow(ctx, query, uuid.NewString(), name, d, nn).Scan(companyDests(c)...); err != nil {
		return nil, eris.Wrap(err, "company: upsert")
	}
	return c, nil
}

// Get fetches a company by ID, live or tombstoned. Returns nil when absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Company, error) {
	c := &model.Company{}
	err := s.pool.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id).
		Scan(companyDests(c)...)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "company: get %s", id)
	}
	return c, nil
}

// ExistingDomains returns the subset of domains (lowercased) that already
// belong to a live company.
func (s *PostgresStore) ExistingDomains(ctx context.Context, domains []string) (map[string]bool, error) {
	out := make(map[string]bool)
	if len(domains) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT lower(domain) FROM companies
		WHERE deleted_at IS NULL AND lower(domain) = any($1::text[])`, domains)
	if err != nil {
		return nil, eris.Wrap(err, "company: existing domains")
	}
	defer rows.Close()

	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "company: scan existing domain")
		}
		out[d] = true
	}
	return out, eris.Wrap(rows.Err(), "company: iterate existing domains")
}

// MergeLog lists audit entries for a domain, newest first. An empty domain
// lists every entry.
func (s *PostgresStore) MergeLog(ctx context.Context, domain string, limit int) ([]model.CompanyMergeLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, domain, canonical_company_id::text, merged_company_ids, before, after, dry_run, created_at
		FROM company_merge_log
		WHERE $1 = '' OR domain = $1
		ORDER BY created_at DESC
		LIMIT $2`, normalize.NormalizeDomain(domain), limit)
	if err != nil {
		return nil, eris.Wrap(err, "company: list merge log")
	}
	defer rows.Close()

	var entries []model.CompanyMergeLog
	for rows.Next() {
		var (
			e                     model.CompanyMergeLog
			merged, before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.Domain, &e.CanonicalCompanyID, &merged, &before, &after, &e.DryRun, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "company: scan merge log")
		}
		if err := json.Unmarshal(merged, &e.MergedCompanyIDs); err != nil {
			return nil, eris.Wrapf(err, "company: decode merged ids of log %s", e.ID)
		}
		if err := json.Unmarshal(before, &e.Before); err != nil {
			return nil, eris.Wrapf(err, "company: decode before of log %s", e.ID)
		}
		if err := json.Unmarshal(after, &e.After); err != nil {
			return nil, eris.Wrapf(err, "company: decode after of log %s", e.ID)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "company: iterate merge log")
}

func companyDests(c *model.Company) []any {
	return []any{&c.ID, &c.CompanyName, &c.Domain, &c.NormalizedName, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt}
}

func scanCompanies(rows pgx.Rows) ([]model.Company, error) {
	defer rows.Close()
	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(companyDests(&c)...); err != nil {
			return nil, eris.Wrap(err, "company: scan")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "company: iterate")
}
