package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sheets-crm/internal/model"
	"github.com/sells-group/sheets-crm/internal/snippet"
)

func (h *handler) handleListSnippets(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.Snippets.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snippets": snippets})
}

func (h *handler) handleUpsertSnippet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	sn, err := h.Snippets.Upsert(r.Context(), req.Key, req.Value)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snippet": sn})
}

func (h *handler) handleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	if err := h.Snippets.Delete(r.Context(), chi.URLParam(r, "key")); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleRenderEmail expands the record's email template with its fields and
// the stored snippets.
func (h *handler) handleRenderEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		fail(w, r, eris.Wrapf(errBadRequest, "invalid record id %q", id))
		return
	}
	rec, err := h.Records.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	list, err := h.Snippets.List(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       rec.ID,
		"template": rec.EmailTemplate,
		"rendered": snippet.Render(rec.EmailTemplate, *rec, snippet.Map(list)),
	})
}
