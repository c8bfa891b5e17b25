// Package server exposes the CRM over a JSON HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/sheets-crm/internal/company"
	"github.com/sells-group/sheets-crm/internal/enrich"
	"github.com/sells-group/sheets-crm/internal/importer"
	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
	"github.com/sells-group/sheets-crm/internal/research"
	"github.com/sells-group/sheets-crm/internal/snippet"
)

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Records is the record store surface the API uses.
type Records interface {
	Get(ctx context.Context, id string) (*model.Record, error)
	List(ctx context.Context, limit int) ([]model.Record, error)
	Update(ctx context.Context, id string, patch model.RecordPatch) (*model.Record, error)
	Delete(ctx context.Context, ids []string) (int64, error)
	Search(ctx context.Context, f record.SearchFilter) ([]model.Record, error)
}

// Importer writes mapped spreadsheet rows.
type Importer interface {
	Import(ctx context.Context, rows []importer.Row, sourceFile string) (*importer.Result, error)
	UndoLatest(ctx context.Context) (*record.UndoResult, error)
}

// JobQueue is the ai_jobs surface the API reads and cancels through.
type JobQueue interface {
	StatusByRecordIDs(ctx context.Context, recordIDs []string) (map[string]model.JobStatusView, error)
	Cancel(ctx context.Context, statuses []model.JobStatus) (int64, error)
}

// Enqueuer fingerprints and enqueues records matching a filter.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType model.JobType, f record.SelectFilter) (*jobs.EnqueueResult, error)
}

// BatchRunner runs one bounded batch of queued jobs.
type BatchRunner interface {
	BatchSize(requested int) (int, error)
	RunBatch(ctx context.Context, max int) (*jobs.BatchResult, error)
}

// StepRunner runs one AI step on a record.
type StepRunner interface {
	Run(ctx context.Context, step, recordID string) (*enrich.Result, error)
}

// Researcher discovers and adds firms.
type Researcher interface {
	Suggest(ctx context.Context, command string) (*research.SuggestResult, error)
	Add(ctx context.Context, command string, suggestions []research.Suggestion, domains []string) (*research.AddResult, error)
}

// Deduper reports and merges duplicate companies.
type Deduper interface {
	FindDuplicateDomains(ctx context.Context, limit int) ([]company.DomainDuplicate, error)
	MergeByDomain(ctx context.Context, domain string, dryRun bool) (*company.MergeResult, error)
}

// Deps are the services behind the routes.
type Deps struct {
	DB       Pinger
	Records  Records
	Importer Importer
	Jobs     JobQueue
	Enqueuer Enqueuer
	Runner   BatchRunner
	Steps    StepRunner
	Research Researcher
	Snippets snippet.Store
	Deduper  Deduper
}

// Config tunes the API.
type Config struct {
	CORSOrigins      []string
	MaintenanceToken string
	ListLimit        int
	ExportMax        int
	MinDelay         time.Duration
}

type handler struct {
	Deps
	cfg Config
}

// New builds the router.
func New(deps Deps, cfg Config) http.Handler {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 2000
	}
	if cfg.ExportMax <= 0 {
		cfg.ExportMax = 20000
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	h := &handler{Deps: deps, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Maintenance-Token", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", h.handleHealth)

		api.Get("/records", h.handleListRecords)
		api.Post("/records/import", h.handleImport)
		api.Post("/records/delete", h.handleDeleteRecords)
		api.Post("/records/undo-latest-import", h.handleUndoImport)
		api.Get("/records/jobs", h.handleRecordJobs)
		api.Post("/records/export", h.handleExport)
		api.Post("/records/ai/{step}", h.handleAIStep)
		api.Patch("/records/{id}", h.handleUpdateRecord)
		api.Get("/records/{id}/email", h.handleRenderEmail)

		api.Post("/import/map", h.handleImportMap)

		api.Post("/jobs/enqueue", h.handleEnqueue)
		api.Get("/jobs/run", h.handleRunJobs)
		api.Post("/jobs/cancel", h.handleCancelJobs)

		api.Post("/research/suggest", h.handleSuggest)
		api.Post("/research/add", h.handleResearchAdd)

		api.Get("/snippets", h.handleListSnippets)
		api.Put("/snippets", h.handleUpsertSnippet)
		api.Delete("/snippets/{key}", h.handleDeleteSnippet)

		api.With(h.requireMaintenance).Get("/maintenance/dedupe", h.handleDedupeReport)
		api.With(h.requireMaintenance).Post("/maintenance/dedupe", h.handleDedupeMerge)
	})

	return r
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
