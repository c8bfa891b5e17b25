package importer

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

// Records is the record-store surface an import needs.
type Records interface {
	UpsertMerged(ctx context.Context, r model.Record) (*record.UpsertResult, error)
	CreateBatch(ctx context.Context, sourceFile string) (*model.ImportBatch, error)
	SetBatchRowCount(ctx context.Context, batchID string, n int) error
	UndoLatestImport(ctx context.Context) (*record.UndoResult, error)
}

// CompanyResolver links a stored record to its company.
type CompanyResolver interface {
	Resolve(ctx context.Context, rec model.Record) (string, error)
}

// RowWarning carries the cleanup notes for one input row.
type RowWarning struct {
	Row      int      `json:"row"`
	Messages []string `json:"messages"`
}

// RowError reports a row that could not be stored.
type RowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// Result summarizes one import.
type Result struct {
	BatchID     string         `json:"batchId"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Failed      int            `json:"failed"`
	DedupCounts map[string]int `json:"dedupCounts"`
	Warnings    []RowWarning   `json:"warnings,omitempty"`
	Errors      []RowError     `json:"errors,omitempty"`
	Records     []model.Record `json:"records,omitempty"`
}

// Importer writes cleaned rows into the record store.
type Importer struct {
	records   Records
	companies CompanyResolver
	log       *zap.Logger
}

// New creates an Importer. companies may be nil to skip company linking.
func New(records Records, companies CompanyResolver) *Importer {
	return &Importer{
		records:   records,
		companies: companies,
		log:       zap.L().With(zap.String("component", "importer")),
	}
}

// Import stores rows under a new import batch. A failing row is counted and
// reported; it never aborts the rest of the import.
func (im *Importer) Import(ctx context.Context, rows []Row, sourceFile string) (*Result, error) {
	start := time.Now()
	batch, err := im.records.CreateBatch(ctx, sourceFile)
	if err != nil {
		return nil, eris.Wrap(err, "importer: create batch")
	}

	res := &Result{BatchID: batch.ID, DedupCounts: map[string]int{}}
	for i, in := range rows {
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "importer: cancelled")
		}

		row, warnings := CleanupRow(in)
		if len(warnings) > 0 {
			res.Warnings = append(res.Warnings, RowWarning{Row: i, Messages: warnings})
		}

		rec, err := im.importRow(ctx, row, sourceFile, batch.ID, res)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Row: i, Error: err.Error()})
			im.log.Warn("import row failed", zap.Int("row", i), zap.Error(err))
			continue
		}
		res.Records = append(res.Records, *rec)
	}

	if err := im.records.SetBatchRowCount(ctx, batch.ID, res.Created); err != nil {
		im.log.Warn("set batch row count failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}

	im.log.Info("import complete",
		zap.String("batch_id", batch.ID),
		zap.String("source_file", sourceFile),
		zap.Int("rows", len(rows)),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (im *Importer) importRow(ctx context.Context, row Row, sourceFile, batchID string, res *Result) (*model.Record, error) {
	up, err := im.records.UpsertMerged(ctx, row.Record(sourceFile, batchID))
	if err != nil {
		return nil, err
	}
	if up.Created {
		res.Created++
	} else {
		res.Updated++
	}
	res.DedupCounts[string(up.DedupKind)]++

	rec := up.Record
	if im.companies != nil {
		id, err := im.companies.Resolve(ctx, rec)
		if err != nil {
			// The record itself is stored; only the link is missing.
			im.log.Warn("company link failed", zap.String("record_id", rec.ID), zap.Error(err))
		} else if id != "" {
			rec.CompanyID = id
		}
	}
	return &rec, nil
}

// UndoLatest removes the newest import batch and the records it created.
// It returns nil when there is no batch.
func (im *Importer) UndoLatest(ctx context.Context) (*record.UndoResult, error) {
	return im.records.UndoLatestImport(ctx)
}
