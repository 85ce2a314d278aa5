package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lyallcooper/dupdeleter/internal/types"
)

// ScanProgressSSE handles GET /sse/scan. It streams "progress" events and
// ends with a "complete" event once no scan is running.
func (h *Handler) ScanProgressSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before polling so a finish in between is not missed
	updates := h.session.Subscribe()
	defer h.session.Unsubscribe(updates)

	active := h.session.Active()
	initial := h.session.PollProgress()
	h.sendScanProgress(w, flusher, initial)
	if !active {
		h.sendComplete(w, flusher, initial.Status)
		return
	}

	// A full subscriber buffer can drop the final update
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !h.session.Active() {
				final := h.session.PollProgress()
				h.sendScanProgress(w, flusher, final)
				h.sendComplete(w, flusher, final.Status)
				return
			}
		case update, ok := <-updates:
			if !ok {
				h.sendComplete(w, flusher, types.StatusCancelled)
				return
			}
			h.sendScanProgress(w, flusher, *update)
			if update.Done {
				h.sendComplete(w, flusher, update.Status)
				return
			}
		}
	}
}

func (h *Handler) sendScanProgress(w http.ResponseWriter, flusher http.Flusher, p types.ScanProgress) {
	data, _ := json.Marshal(toProgressData(p))
	h.sendEvent(w, flusher, "progress", string(data))
}

func (h *Handler) sendComplete(w http.ResponseWriter, flusher http.Flusher, status string) {
	data, _ := json.Marshal(map[string]string{"status": status})
	h.sendEvent(w, flusher, "complete", string(data))
}

func (h *Handler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
