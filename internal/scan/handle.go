package scan

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/forest"
	"github.com/lyallcooper/dupdeleter/internal/types"
)

// Handle is the caller's view of a running scan
type Handle struct {
	queue   *forest.Queue
	cancel  context.CancelFunc
	done    chan struct{}
	updates chan types.ScanProgress

	mu       sync.RWMutex
	progress types.ScanProgress
	stats    Stats
	err      error
}

func newHandle(cancel context.CancelFunc) *Handle {
	return &Handle{
		queue:    forest.NewQueue(),
		cancel:   cancel,
		done:     make(chan struct{}),
		updates:  make(chan types.ScanProgress, 16),
		progress: types.ScanProgress{Status: types.StatusRunning},
	}
}

// report records the latest progress and offers it to the updates channel.
// A full channel drops the update.
func (h *Handle) report(current string, stats *Stats) {
	p := stats.snapshot(current, types.StatusRunning, false)

	h.mu.Lock()
	h.progress = p
	h.mu.Unlock()

	select {
	case h.updates <- p:
	default:
	}
}

func (h *Handle) finish(stats *Stats, err error) {
	status := types.StatusCompleted
	switch {
	case errors.Is(err, context.Canceled):
		status = types.StatusCancelled
	case err != nil:
		status = types.StatusFailed
		log.Error().Err(err).Msg("scanner: scan failed")
	}

	p := stats.snapshot("", status, true)

	h.mu.Lock()
	h.progress = p
	h.stats = Stats{
		DirsVisited:  stats.DirsVisited,
		FilesSeen:    stats.FilesSeen,
		FilesScanned: p.FilesScanned,
		Warnings:     p.Warnings,
		GroupsFound:  p.GroupsFound,
	}
	h.err = err
	h.mu.Unlock()

	select {
	case h.updates <- p:
	default:
	}
	close(h.updates)
	close(h.done)
	h.cancel()
}

// Progress returns the latest advisory state without blocking
func (h *Handle) Progress() types.ScanProgress {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.progress
}

// Updates delivers progress on a best-effort basis and is closed when the
// scan ends. Updates are dropped while the receiver is not ready.
func (h *Handle) Updates() <-chan types.ScanProgress {
	return h.updates
}

// Drain moves queued groups into f without waiting and returns how many
// were appended
func (h *Handle) Drain(f *forest.Forest) int {
	return f.Drain(h.queue)
}

// Pending returns the number of groups waiting to be drained
func (h *Handle) Pending() int {
	return h.queue.Len()
}

// Done is closed once the scan has finished and all its groups are queued
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel asks the scan to stop at the next file boundary
func (h *Handle) Cancel() {
	h.cancel()
}

// Wait blocks until the scan finishes or ctx is done
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.Err()
	}
}

// Err returns the scan's terminal error, nil while running or on success
func (h *Handle) Err() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

// Stats returns the final counters, zero until the scan is done
func (h *Handle) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}
