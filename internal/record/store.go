package record

import (
	"context"

	"github.com/sells-group/sheets-crm/internal/model"
)

// UpsertResult reports what UpsertMerged did.
type UpsertResult struct {
	Record    model.Record
	Created   bool
	DedupKind DedupKind
}

// UndoResult reports the batch removed by UndoLatestImport.
type UndoResult struct {
	BatchID        string `json:"batchId"`
	SourceFile     string `json:"sourceFile"`
	DeletedRecords int64  `json:"deletedRecords"`
}

// SelectFilter narrows a record selection for job enqueueing. All set
// conditions are ANDed.
type SelectFilter struct {
	IDs                     []string `json:"ids,omitempty"`
	ImportBatchID           string   `json:"importBatchId,omitempty"`
	HasDomain               bool     `json:"hasDomain,omitempty"`
	MissingResearchNotes    bool     `json:"missingResearchNotes,omitempty"`
	MissingExecSearchStatus bool     `json:"missingExecSearchStatus,omitempty"`
}

// SearchFilter drives the export query.
type SearchFilter struct {
	// ExecSearchStatus is any, unknown, yes or no.
	ExecSearchStatus string
	HasEmail         bool
	Q                string
	Limit            int
}

// Store persists records.
type Store interface {
	FindExisting(ctx context.Context, r model.Record) (*model.Record, error)
	UpsertMerged(ctx context.Context, r model.Record) (*UpsertResult, error)
	Get(ctx context.Context, id string) (*model.Record, error)
	GetMany(ctx context.Context, ids []string) ([]model.Record, error)
	List(ctx context.Context, limit int) ([]model.Record, error)
	Update(ctx context.Context, id string, patch model.RecordPatch) (*model.Record, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	LinkCompany(ctx context.Context, recordID, companyID string) error
	CreateBatch(ctx context.Context, sourceFile string) (*model.ImportBatch, error)
	SetBatchRowCount(ctx context.Context, batchID string, n int) error
	UndoLatestImport(ctx context.Context) (*UndoResult, error)
	SelectIDs(ctx context.Context, f SelectFilter) ([]string, error)
	Search(ctx context.Context, f SearchFilter) ([]model.Record, error)
}
