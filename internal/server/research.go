package server

import (
	"net/http"

	"github.com/sells-group/sheets-crm/internal/research"
)

func (h *handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Research.Suggest(r.Context(), req.Command)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) handleResearchAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command     string                `json:"command"`
		Suggestions []research.Suggestion `json:"suggestions"`
		Domains     []string              `json:"domains"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Research.Add(r.Context(), req.Command, req.Suggestions, req.Domains)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
