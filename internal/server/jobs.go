package server

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/record"
)

// Enqueue actions accepted by /api/jobs/enqueue.
const (
	actionEnrichAll = "enrich_all"
	actionVerifyAll = "verify_all"
)

type enqueueRequest struct {
	Action string              `json:"action"`
	Filter record.SelectFilter `json:"filter"`
}

type enqueueResponse struct {
	OK      bool          `json:"ok"`
	Action  string        `json:"action"`
	JobType model.JobType `json:"jobType"`
	*jobs.EnqueueResult
}

func (h *handler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	var jobType model.JobType
	switch req.Action {
	case actionEnrichAll:
		jobType = model.JobEnrichRecord
	case actionVerifyAll:
		jobType = model.JobVerifyRecord
	default:
		fail(w, r, eris.Wrapf(errBadRequest, "action must be %s or %s", actionEnrichAll, actionVerifyAll))
		return
	}
	if err := validateSelectFilter(req.Filter); err != nil {
		fail(w, r, err)
		return
	}

	res, err := h.Enqueuer.Enqueue(r.Context(), jobType, req.Filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enqueueResponse{OK: true, Action: req.Action, JobType: jobType, EnqueueResult: res})
}

// validateSelectFilter rejects ids that would otherwise fail the uuid cast
// in the database.
func validateSelectFilter(f record.SelectFilter) error {
	for _, id := range f.IDs {
		if _, err := uuid.Parse(id); err != nil {
			return eris.Wrapf(errBadRequest, "invalid record id %q", id)
		}
	}
	if f.ImportBatchID != "" {
		if _, err := uuid.Parse(f.ImportBatchID); err != nil {
			return eris.Wrapf(errBadRequest, "invalid import batch id %q", f.ImportBatchID)
		}
	}
	return nil
}

func (h *handler) handleRunJobs(w http.ResponseWriter, r *http.Request) {
	requested, err := queryInt(r, "max", 0, 1, 1<<20)
	if err != nil {
		fail(w, r, err)
		return
	}
	n, err := h.Runner.BatchSize(requested)
	if err != nil {
		fail(w, r, eris.Wrap(errBadRequest, err.Error()))
		return
	}

	res, err := h.Runner.RunBatch(r.Context(), n)
	if err != nil {
		fail(w, r, err)
		return
	}
	processed := res.Processed
	if processed == nil {
		processed = []jobs.JobResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"processed":  processed,
		"minDelayMs": h.cfg.MinDelay.Milliseconds(),
	})
}

func (h *handler) handleCancelJobs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Statuses []string `json:"statuses"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	var statuses []model.JobStatus
	for _, s := range req.Statuses {
		st, err := model.ParseJobStatus(s)
		if err != nil {
			fail(w, r, eris.Wrap(errBadRequest, err.Error()))
			return
		}
		if !st.CanTransition(model.JobCancelled) {
			fail(w, r, eris.Wrapf(errBadRequest, "status %q cannot be cancelled", st))
			return
		}
		statuses = append(statuses, st)
	}

	n, err := h.Jobs.Cancel(r.Context(), statuses)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "cancelled": n})
}
