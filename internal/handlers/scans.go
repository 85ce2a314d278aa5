package handlers

import (
	"net/http"
	"strings"

	"github.com/lyallcooper/dupdeleter/internal/services"
)

type startScanRequest struct {
	Root       string   `json:"root"`
	Strategy   string   `json:"strategy"`
	Threshold  *int     `json:"threshold"`
	Extensions []string `json:"extensions"`
}

// StartScan handles POST /api/scans
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req.Root = strings.TrimSpace(req.Root)
	if req.Root == "" {
		writeError(w, http.StatusBadRequest, "root is required")
		return
	}

	strategy, err := h.session.ResolveStrategy(req.Strategy, req.Threshold)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var exts []string
	for _, e := range req.Extensions {
		if e = strings.TrimSpace(e); e != "" {
			exts = append(exts, e)
		}
	}

	if _, err := h.session.StartScan(r.Context(), services.ScanRequest{
		Root:       req.Root,
		Strategy:   strategy,
		Extensions: exts,
	}); err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id":   h.session.LastRunID(),
		"progress": toProgressData(h.session.PollProgress()),
	})
}

// ScanProgress handles GET /api/scans/progress
func (h *Handler) ScanProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toProgressData(h.session.PollProgress()))
}

// CancelScan handles POST /api/scans/cancel
func (h *Handler) CancelScan(w http.ResponseWriter, r *http.Request) {
	if !h.session.CancelScan() {
		writeError(w, http.StatusConflict, "no scan is running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
}

// DrainResults handles POST /api/scans/drain
func (h *Handler) DrainResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"drained": h.session.DrainResults()})
}

// Groups handles GET /api/groups?ext=
func (h *Handler) Groups(w http.ResponseWriter, r *http.Request) {
	ext := r.URL.Query().Get("ext")
	writeJSON(w, http.StatusOK, toGroupsResponse(h.session.ListGroups(ext), ext))
}

// Members handles GET /api/groups/{group}/members
func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	g, ok := pathInt(r, "group")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid group index")
		return
	}
	members, err := h.session.Members(g)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

// ToggleMark handles POST /api/groups/{group}/members/{member}/toggle
func (h *Handler) ToggleMark(w http.ResponseWriter, r *http.Request) {
	g, okG := pathInt(r, "group")
	m, okM := pathInt(r, "member")
	if !okG || !okM {
		writeError(w, http.StatusBadRequest, "invalid group or member index")
		return
	}
	marked, err := h.session.ToggleMark(g, m)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"marked": marked})
}

// SetRepresentative handles POST /api/groups/{group}/representative/{member}
func (h *Handler) SetRepresentative(w http.ResponseWriter, r *http.Request) {
	g, okG := pathInt(r, "group")
	m, okM := pathInt(r, "member")
	if !okG || !okM {
		writeError(w, http.StatusBadRequest, "invalid group or member index")
		return
	}
	if err := h.session.SetRepresentative(g, m); err != nil {
		writeErr(w, err)
		return
	}
	members, err := h.session.Members(g)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}
