package record

import (
	"context"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/db"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/normalize"
)

var (
	// ErrNotFound is returned when a record id does not exist.
	ErrNotFound = eris.New("record: not found")
	// ErrInvalid is returned for patch values that violate record invariants.
	ErrInvalid = eris.New("record: invalid value")
)

const recordColumns = `id::text AS id, coalesce(company_id::text, '') AS company_id, company_name, domain,
	exec_search_category, exec_search_status, perplexity_research_notes, firm_niche,
	executive_name, executive_role, executive_linkedin, email, email_template,
	source_file, raw_row_json, coalesce(import_batch_id::text, '') AS import_batch_id,
	created_at, updated_at`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implements Store on the records and import_batches tables.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindExisting returns the most recently updated record sharing r's dedup
// key, or nil when r has no key or nothing matches.
func (s *PostgresStore) FindExisting(ctx context.Context, r model.Record) (*model.Record, error) {
	return findExisting(ctx, s.pool, ComputeDedupKey(sanitize(r)))
}

func findExisting(ctx context.Context, q db.Querier, key DedupKey) (*model.Record, error) {
	var where string
	var args []any
	switch key.Kind {
	case DedupEmail:
		where, args = "lower(email) = $1", []any{key.Key}
	case DedupLinkedIn:
		where, args = "lower(executive_linkedin) = $1", []any{key.Key}
	case DedupDomainExec:
		domain, exec, _ := strings.Cut(key.Key, "::")
		where, args = "lower(domain) = $1 AND lower(executive_name) = $2", []any{domain, exec}
	default:
		return nil, nil
	}

	var rec model.Record
	err := pgxscan.Get(ctx, q, &rec,
		`SELECT `+recordColumns+` FROM records WHERE `+where+` ORDER BY updated_at DESC LIMIT 1`, args...)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "record: find existing by %s", key.Kind)
	}
	return &rec, nil
}

// UpsertMerged inserts r, or merges it into the record that shares its
// dedup key. A decided exec-search status and a non-empty email template
// on the stored row are never overwritten.
func (s *PostgresStore) UpsertMerged(ctx context.Context, r model.Record) (*UpsertResult, error) {
	in := sanitize(r)
	key := ComputeDedupKey(in)

	existing, err := findExisting(ctx, s.pool, key)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		rec, err := s.insert(ctx, in)
		if err != nil {
			return nil, err
		}
		return &UpsertResult{Record: *rec, Created: true, DedupKind: ComputeDedupKey(*rec).Kind}, nil
	}

	merged := Merge(*existing, in)
	var rec model.Record
	err = pgxscan.Get(ctx, s.pool, &rec, `UPDATE records SET
			company_name = $2, domain = $3, exec_search_category = $4,
			perplexity_research_notes = $5, firm_niche = $6, executive_name = $7,
			executive_role = $8, executive_linkedin = $9, email = $10,
			source_file = $11, raw_row_json = $12,
			exec_search_status = CASE WHEN records.exec_search_status = 'unknown' THEN $13 ELSE records.exec_search_status END,
			email_template = CASE WHEN records.email_template = '' THEN $14 ELSE records.email_template END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+recordColumns,
		existing.ID, merged.CompanyName, merged.Domain, merged.ExecSearchCategory,
		merged.PerplexityResearchNotes, merged.FirmNiche, merged.ExecutiveName,
		merged.ExecutiveRole, merged.ExecutiveLinkedIn, merged.Email,
		merged.SourceFile, merged.RawRowJSON, string(merged.ExecSearchStatus), merged.EmailTemplate,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "record: merge into %s", existing.ID)
	}

	zap.L().Debug("record merged",
		zap.String("record_id", rec.ID),
		zap.String("dedup_kind", string(key.Kind)),
	)
	return &UpsertResult{Record: rec, Created: false, DedupKind: key.Kind}, nil
}

func (s *PostgresStore) insert(ctx context.Context, r model.Record) (*model.Record, error) {
	var rec model.Record
	err := pgxscan.Get(ctx, s.pool, &rec, `INSERT INTO records (
			id, company_name, domain, exec_search_category, exec_search_status,
			perplexity_research_notes, firm_niche, executive_name, executive_role,
			executive_linkedin, email, email_template, source_file, raw_row_json,
			import_batch_id, company_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING `+recordColumns,
		uuid.NewString(), r.CompanyName, r.Domain, r.ExecSearchCategory, string(r.ExecSearchStatus),
		r.PerplexityResearchNotes, r.FirmNiche, r.ExecutiveName, r.ExecutiveRole,
		r.ExecutiveLinkedIn, r.Email, r.EmailTemplate, r.SourceFile, r.RawRowJSON,
		nullIfEmpty(r.ImportBatchID), nullIfEmpty(r.CompanyID),
	)
	if err != nil {
		return nil, eris.Wrap(err, "record: insert")
	}
	return &rec, nil
}

// Get loads one record.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Record, error) {
	var rec model.Record
	err := pgxscan.Get(ctx, s.pool, &rec, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, eris.Wrapf(ErrNotFound, "record: get %s", id)
		}
		return nil, eris.Wrapf(err, "record: get %s", id)
	}
	return &rec, nil
}

// GetMany loads the records with the given ids, in no particular order.
func (s *PostgresStore) GetMany(ctx context.Context, ids []string) ([]model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var recs []model.Record
	if err := pgxscan.Select(ctx, s.pool, &recs,
		`SELECT `+recordColumns+` FROM records WHERE id = any($1::uuid[])`, ids); err != nil {
		return nil, eris.Wrap(err, "record: get many")
	}
	return recs, nil
}

// List returns the most recently touched records first.
func (s *PostgresStore) List(ctx context.Context, limit int) ([]model.Record, error) {
	b := psql.Select(recordColumns).
		From("records").
		OrderBy("updated_at DESC NULLS LAST", "created_at DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "record: build list query")
	}

	var recs []model.Record
	if err := pgxscan.Select(ctx, s.pool, &recs, query, args...); err != nil {
		return nil, eris.Wrap(err, "record: list")
	}
	return recs, nil
}

// Update applies a partial patch. A domain value is normalized and must be
// host-shaped or empty.
func (s *PostgresStore) Update(ctx context.Context, id string, patch model.RecordPatch) (*model.Record, error) {
	if err := patch.Validate(); err != nil {
		return nil, eris.Wrap(ErrInvalid, err.Error())
	}

	b := psql.Update("records")
	set := func(col string, v *string) {
		if v != nil {
			b = b.Set(col, strings.TrimSpace(*v))
		}
	}
	set("company_name", patch.CompanyName)
	set("exec_search_category", patch.ExecSearchCategory)
	set("perplexity_research_notes", patch.PerplexityResearchNotes)
	set("firm_niche", patch.FirmNiche)
	set("executive_name", patch.ExecutiveName)
	set("executive_role", patch.ExecutiveRole)
	set("executive_linkedin", patch.ExecutiveLinkedIn)
	set("email", patch.Email)
	set("email_template", patch.EmailTemplate)
	set("source_file", patch.SourceFile)
	if patch.Domain != nil {
		d := normalize.NormalizeDomain(*patch.Domain)
		if !normalize.IsValidDomainLike(d) {
			return nil, eris.Wrapf(ErrInvalid, "record: domain %q is not a valid host", *patch.Domain)
		}
		b = b.Set("domain", d)
	}
	if patch.ExecSearchStatus != nil {
		b = b.Set("exec_search_status", string(model.LooseExecSearchStatus(string(*patch.ExecSearchStatus))))
	}

	query, args, err := b.Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + recordColumns).
		ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "record: build update query")
	}

	var rec model.Record
	if err := pgxscan.Get(ctx, s.pool, &rec, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, eris.Wrapf(ErrNotFound, "record: update %s", id)
		}
		return nil, eris.Wrapf(err, "record: update %s", id)
	}
	return &rec, nil
}

// Delete removes records by id. Their jobs cascade.
func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE id = any($1::uuid[])`, ids)
	if err != nil {
		return 0, eris.Wrap(err, "record: delete")
	}
	return tag.RowsAffected(), nil
}

// LinkCompany points a record at a company.
func (s *PostgresStore) LinkCompany(ctx context.Context, recordID, companyID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE records SET company_id = $2 WHERE id = $1`, recordID, companyID); err != nil {
		return eris.Wrapf(err, "record: link %s to company %s", recordID, companyID)
	}
	return nil
}

// CreateBatch opens a new import batch.
func (s *PostgresStore) CreateBatch(ctx context.Context, sourceFile string) (*model.ImportBatch, error) {
	var b model.ImportBatch
	err := pgxscan.Get(ctx, s.pool, &b,
		`INSERT INTO import_batches (id, source_file) VALUES ($1, $2)
		RETURNING id::text AS id, source_file, row_count, created_at`,
		uuid.NewString(), sourceFile)
	if err != nil {
		return nil, eris.Wrap(err, "record: create import batch")
	}
	return &b, nil
}

// SetBatchRowCount records how many rows an import wrote.
func (s *PostgresStore) SetBatchRowCount(ctx context.Context, batchID string, n int) error {
	if _, err := s.pool.Exec(ctx, `UPDATE import_batches SET row_count = $2 WHERE id = $1`, batchID, n); err != nil {
		return eris.Wrapf(err, "record: set row count on batch %s", batchID)
	}
	return nil
}

// UndoLatestImport deletes the newest import batch and the records created
// under it. Records that were only merged into by that import keep their
// original batch and survive. Returns nil when there is no batch.
func (s *PostgresStore) UndoLatestImport(ctx context.Context) (*UndoResult, error) {
	var res *UndoResult
	err := db.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		var batch model.ImportBatch
		err := pgxscan.Get(ctx, tx, &batch,
			`SELECT id::text AS id, source_file, row_count, created_at
			FROM import_batches ORDER BY created_at DESC LIMIT 1`)
		if err != nil {
			if pgxscan.NotFound(err) {
				return nil
			}
			return eris.Wrap(err, "record: find latest import batch")
		}

		tag, err := tx.Exec(ctx, `DELETE FROM records WHERE import_batch_id = $1`, batch.ID)
		if err != nil {
			return eris.Wrapf(err, "record: delete records of batch %s", batch.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM import_batches WHERE id = $1`, batch.ID); err != nil {
			return eris.Wrapf(err, "record: delete batch %s", batch.ID)
		}

		res = &UndoResult{BatchID: batch.ID, SourceFile: batch.SourceFile, DeletedRecords: tag.RowsAffected()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res != nil {
		zap.L().Info("import undone",
			zap.String("batch_id", res.BatchID),
			zap.Int64("deleted_records", res.DeletedRecords),
		)
	}
	return res, nil
}

// SelectIDs returns the ids matching f, most recently updated first.
func (s *PostgresStore) SelectIDs(ctx context.Context, f SelectFilter) ([]string, error) {
	b := psql.Select("id::text").From("records")
	if len(f.IDs) > 0 {
		b = b.Where("id = any(?::uuid[])", f.IDs)
	}
	if f.ImportBatchID != "" {
		b = b.Where(sq.Eq{"import_batch_id": f.ImportBatchID})
	}
	if f.HasDomain {
		b = b.Where("coalesce(nullif(trim(domain), ''), '') <> ''")
	}
	if f.MissingResearchNotes {
		b = b.Where("coalesce(nullif(trim(perplexity_research_notes), ''), '') = ''")
	}
	if f.MissingExecSearchStatus {
		b = b.Where("coalesce(nullif(trim(exec_search_status), ''), 'unknown') = 'unknown'")
	}

	query, args, err := b.OrderBy("updated_at DESC").ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "record: build select ids query")
	}

	var ids []string
	if err := pgxscan.Select(ctx, s.pool, &ids, query, args...); err != nil {
		return nil, eris.Wrap(err, "record: select ids")
	}
	return ids, nil
}

// Search filters records for export.
func (s *PostgresStore) Search(ctx context.Context, f SearchFilter) ([]model.Record, error) {
	b := psql.Select(recordColumns).From("records")
	switch f.ExecSearchStatus {
	case "", "any":
	case "unknown", "yes", "no":
		b = b.Where(sq.Eq{"exec_search_status": f.ExecSearchStatus})
	default:
		return nil, eris.Wrapf(ErrInvalid, "record: exec search filter %q", f.ExecSearchStatus)
	}
	if f.HasEmail {
		b = b.Where("email <> ''")
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		like := "%" + q + "%"
		b = b.Where(sq.Or{
			sq.ILike{"company_name": like},
			sq.ILike{"domain": like},
			sq.ILike{"executive_name": like},
			sq.ILike{"executive_role": like},
			sq.ILike{"email": like},
		})
	}

	b = b.OrderBy("updated_at DESC NULLS LAST", "created_at DESC")
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "record: build search query")
	}

	var recs []model.Record
	if err := pgxscan.Select(ctx, s.pool, &recs, query, args...); err != nil {
		return nil, eris.Wrap(err, "record: search")
	}
	return recs, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
