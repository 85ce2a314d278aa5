package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/lyallcooper/dupdeleter/internal/db"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

func pageParams(r *http.Request) (limit, offset int) {
	limit = queryInt(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return limit, queryInt(r, "offset", 0)
}

// History handles GET /api/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	runs, err := h.db.ListScanRuns(limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}

	views := make([]ScanRunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toScanRunView(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   views,
		"limit":  limit,
		"offset": offset,
	})
}

// ScanRunDetail handles GET /api/history/{id}
func (h *Handler) ScanRunDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid scan run id")
		return
	}
	run, err := h.db.GetScanRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "scan run not found")
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanRunView(run))
}

// Actions handles GET /api/actions
func (h *Handler) Actions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	actions, err := h.db.ListActions(limit, offset)
	if err != nil {
		writeErr(w, err)
		return
	}
	if actions == nil {
		actions = []*db.Action{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": actions,
		"limit":   limit,
		"offset":  offset,
	})
}
