// Package handlers exposes the session, scan history and scheduled jobs as a
// JSON API with a server-sent progress stream.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/config"
	"github.com/lyallcooper/dupdeleter/internal/db"
	"github.com/lyallcooper/dupdeleter/internal/forest"
	"github.com/lyallcooper/dupdeleter/internal/scan"
	"github.com/lyallcooper/dupdeleter/internal/scheduler"
	"github.com/lyallcooper/dupdeleter/internal/services"
)

const maxBodyBytes = 1 << 20

// Handler holds all HTTP handlers
type Handler struct {
	db          *db.DB
	cfg         *config.Config
	session     *services.Session
	parser      cron.Parser
	disableCSRF bool
}

// New creates a new Handler
func New(database *db.DB, cfg *config.Config, session *services.Session, disableCSRF bool) *Handler {
	return &Handler{
		db:          database,
		cfg:         cfg,
		session:     session,
		parser:      scheduler.NewParser(),
		disableCSRF: disableCSRF,
	}
}

// RegisterRoutes registers all HTTP routes
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/csrf", h.CSRFToken)
	mux.HandleFunc("GET /api/stats", h.Dashboard)

	// Scans
	mux.HandleFunc("POST /api/scans", h.csrfProtect(h.StartScan))
	mux.HandleFunc("GET /api/scans/progress", h.ScanProgress)
	mux.HandleFunc("POST /api/scans/cancel", h.csrfProtect(h.CancelScan))
	mux.HandleFunc("POST /api/scans/drain", h.csrfProtect(h.DrainResults))

	// Groups
	mux.HandleFunc("GET /api/groups", h.Groups)
	mux.HandleFunc("GET /api/groups/{group}/members", h.Members)
	mux.HandleFunc("POST /api/groups/{group}/members/{member}/toggle", h.csrfProtect(h.ToggleMark))
	mux.HandleFunc("POST /api/groups/{group}/representative/{member}", h.csrfProtect(h.SetRepresentative))

	// Prune
	mux.HandleFunc("POST /api/prune/marked", h.csrfProtect(h.DeleteMarked))
	mux.HandleFunc("POST /api/prune/auto", h.csrfProtect(h.AutoPrune))

	// History
	mux.HandleFunc("GET /api/history", h.History)
	mux.HandleFunc("GET /api/history/{id}", h.ScanRunDetail)
	mux.HandleFunc("GET /api/actions", h.Actions)

	// Jobs
	mux.HandleFunc("GET /api/jobs", h.Jobs)
	mux.HandleFunc("POST /api/jobs", h.csrfProtect(h.CreateJob))
	mux.HandleFunc("PUT /api/jobs/{id}", h.csrfProtect(h.UpdateJob))
	mux.HandleFunc("DELETE /api/jobs/{id}", h.csrfProtect(h.DeleteJob))
	mux.HandleFunc("POST /api/jobs/{id}/toggle", h.csrfProtect(h.ToggleJob))

	// Settings
	mux.HandleFunc("GET /api/settings", h.Settings)
	mux.HandleFunc("PUT /api/settings", h.csrfProtect(h.UpdateSettings))

	// SSE
	mux.HandleFunc("GET /sse/scan", h.ScanProgressSSE)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("handlers: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps session and forest errors onto status codes
func writeErr(w http.ResponseWriter, err error) {
	var rootErr *scan.InvalidRootError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrConcurrencyMisuse):
		status = http.StatusConflict
	case errors.Is(err, services.ErrPathNotAllowed):
		status = http.StatusForbidden
	case errors.As(err, &rootErr):
		status = http.StatusBadRequest
	case errors.Is(err, forest.ErrOutOfRange):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("handlers: request failed")
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue(name))
	return n, err == nil && n >= 0
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// queryInt reads a non-negative query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v >= 0 {
		return v
	}
	return def
}
