package server

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/company"
)

func (h *handler) handleDedupeReport(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 200, 1, 1000)
	if err != nil {
		fail(w, r, err)
		return
	}
	dups, err := h.Deduper.FindDuplicateDomains(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	if dups == nil {
		dups = []company.DomainDuplicate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"duplicates": dups})
}

// handleDedupeMerge previews a merge unless apply is true.
func (h *handler) handleDedupeMerge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
		Apply  bool   `json:"apply"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Domain) == "" {
		fail(w, r, eris.Wrap(errBadRequest, "domain is required"))
		return
	}
	res, err := h.Deduper.MergeByDomain(r.Context(), req.Domain, !req.Apply)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "applied": req.Apply})
}
