package handlers

import (
	"net/http"

	"github.com/lyallcooper/dupdeleter/internal/prune"
)

// DeleteMarked handles POST /api/prune/marked
func (h *Handler) DeleteMarked(w http.ResponseWriter, r *http.Request) {
	h.prune(w, h.session.DeleteMarked)
}

// AutoPrune handles POST /api/prune/auto
func (h *Handler) AutoPrune(w http.ResponseWriter, r *http.Request) {
	h.prune(w, h.session.AutoPrune)
}

func (h *Handler) prune(w http.ResponseWriter, fn func() (prune.Result, error)) {
	res, err := fn()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPruneResponse(res))
}
