package server

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maintenanceHeader = "X-Maintenance-Token"

// requireMaintenance admits requests carrying the configured maintenance
// token in the header or the token query parameter. With no token
// configured the routes are disabled.
func (h *handler) requireMaintenance(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.MaintenanceToken == "" {
			writeError(w, r, http.StatusServiceUnavailable, "not_configured", "maintenance token is not configured")
			return
		}
		got := r.Header.Get(maintenanceHeader)
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.MaintenanceToken)) != 1 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid maintenance token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
