package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/importer"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

const defaultExportLimit = 5000

// queryInt parses an optional integer query parameter bounded to [lo, hi].
func queryInt(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, eris.Wrapf(errBadRequest, "%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}

func (h *handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", h.cfg.ListLimit, 1, h.cfg.ExportMax)
	if err != nil {
		fail(w, r, err)
		return
	}
	recs, err := h.Records.List(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	if recs == nil {
		recs = []model.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": recs})
}

type importRequest struct {
	Rows       []importer.Row `json:"rows"`
	SourceFile string         `json:"sourceFile"`
}

func (h *handler) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.Rows) == 0 {
		fail(w, r, eris.Wrap(errBadRequest, "rows are required"))
		return
	}
	res, err := h.Importer.Import(r.Context(), req.Rows, req.SourceFile)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) handleImportMap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Headers []string `json:"headers"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.Headers) == 0 {
		fail(w, r, eris.Wrap(errBadRequest, "headers are required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mapping": importer.GuessMapping(req.Headers)})
}

func (h *handler) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		fail(w, r, eris.Wrapf(errBadRequest, "invalid record id %q", id))
		return
	}
	var patch model.RecordPatch
	if err := decode(r, &patch); err != nil {
		fail(w, r, err)
		return
	}
	rec, err := h.Records.Update(r.Context(), id, patch)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"record": rec})
}

func (h *handler) handleDeleteRecords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		fail(w, r, eris.Wrap(errBadRequest, "ids are required"))
		return
	}
	for _, id := range req.IDs {
		if _, err := uuid.Parse(id); err != nil {
			fail(w, r, eris.Wrapf(errBadRequest, "invalid record id %q", id))
			return
		}
	}
	n, err := h.Records.Delete(r.Context(), req.IDs)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (h *handler) handleUndoImport(w http.ResponseWriter, r *http.Request) {
	res, err := h.Importer.UndoLatest(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]any{"undone": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"undone": true, "batch": res})
}

// handleRecordJobs projects the latest job status onto the listed records.
// Records without a job map to null.
func (h *handler) handleRecordJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", h.cfg.ListLimit, 1, 5000)
	if err != nil {
		fail(w, r, err)
		return
	}
	recs, err := h.Records.List(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	views, err := h.Jobs.StatusByRecordIDs(r.Context(), ids)
	if err != nil {
		fail(w, r, err)
		return
	}

	statuses := make(map[string]*model.JobStatusView, len(ids))
	for _, id := range ids {
		if v, ok := views[id]; ok {
			statuses[id] = &v
		} else {
			statuses[id] = nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "statuses": statuses})
}

type exportRequest struct {
	Format string `json:"format"`
	Filter struct {
		ExecSearchStatus string `json:"execSearchStatus"`
		HasEmail         bool   `json:"hasEmail"`
		Q                string `json:"q"`
		Limit            int    `json:"limit"`
	} `json:"filter"`
}

func (h *handler) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Format == "" {
		req.Format = record.FormatCSV
	}
	if req.Format != record.FormatCSV && req.Format != record.FormatTSV {
		fail(w, r, eris.Wrapf(errBadRequest, "format must be csv or tsv, got %q", req.Format))
		return
	}
	limit := req.Filter.Limit
	if limit == 0 {
		limit = min(defaultExportLimit, h.cfg.ExportMax)
	}
	if limit < 1 || limit > h.cfg.ExportMax {
		fail(w, r, eris.Wrapf(errBadRequest, "filter.limit must be between 1 and %d", h.cfg.ExportMax))
		return
	}

	recs, err := h.Records.Search(r.Context(), record.SearchFilter{
		ExecSearchStatus: req.Filter.ExecSearchStatus,
		HasEmail:         req.Filter.HasEmail,
		Q:                req.Filter.Q,
		Limit:            limit,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := record.WriteExport(&buf, req.Format, recs); err != nil {
		fail(w, r, err)
		return
	}

	contentType := "text/csv; charset=utf-8"
	if req.Format == record.FormatTSV {
		contentType = "text/tab-separated-values; charset=utf-8"
	}
	name := fmt.Sprintf("crm-export-%s.%s", time.Now().UTC().Format("20060102-150405"), req.Format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *handler) handleAIStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if _, err := uuid.Parse(req.ID); err != nil {
		fail(w, r, eris.Wrapf(errBadRequest, "invalid record id %q", req.ID))
		return
	}
	res, err := h.Steps.Run(r.Context(), chi.URLParam(r, "step"), req.ID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
