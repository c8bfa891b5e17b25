package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheets-crm/internal/company"
	"github.com/sells-group/sheets-crm/internal/enrich"
	"github.com/sells-group/sheets-crm/internal/jobs"
	"github.com/sells-group/sheets-crm/internal/record"
	"github.com/sells-group/sheets-crm/internal/research"
	"github.com/sells-group/sheets-crm/internal/snippet"
)

const maxBodyBytes = 32 << 20

// errBadRequest marks malformed input caught by a handler.
var errBadRequest = eris.New("bad request")

// APIError is the body of every non-2xx JSON response.
type APIError struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	var e APIError
	e.Error.Code = code
	e.Error.Message = message
	e.Error.RequestID = middleware.GetReqID(r.Context())
	writeJSON(w, status, e)
}

// fail maps err onto a status and writes it.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, r, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, record.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, errBadRequest),
		errors.Is(err, record.ErrInvalid),
		errors.Is(err, company.ErrInvalidDomain),
		errors.Is(err, enrich.ErrUnknownStep),
		errors.Is(err, snippet.ErrEmptyKey),
		errors.Is(err, research.ErrEmptyCommand):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, enrich.ErrLLMNotConfigured),
		errors.Is(err, enrich.ErrResearchNotConfigured),
		errors.Is(err, research.ErrNotConfigured):
		return http.StatusServiceUnavailable, "not_configured"
	}

	switch status := jobs.StatusOf(err); {
	case status == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "rate_limited"
	case status >= 400:
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal"
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return eris.Wrapf(errBadRequest, "decode body: %v", err)
	}
	return nil
}
