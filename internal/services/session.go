// Package services holds the session that ties a scan, its result forest and
// the prune engine together for one operator.
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/config"
	"github.com/lyallcooper/dupdeleter/internal/db"
	"github.com/lyallcooper/dupdeleter/internal/fingerprint"
	"github.com/lyallcooper/dupdeleter/internal/forest"
	"github.com/lyallcooper/dupdeleter/internal/prune"
	"github.com/lyallcooper/dupdeleter/internal/scan"
	"github.com/lyallcooper/dupdeleter/internal/types"
)

// ErrConcurrencyMisuse is the root of every rejected overlapping operation
var ErrConcurrencyMisuse = errors.New("concurrency misuse")

var (
	ErrScanInProgress  = fmt.Errorf("%w: a scan is already running", ErrConcurrencyMisuse)
	ErrPruneDuringScan = fmt.Errorf("%w: cannot prune while a scan is running", ErrConcurrencyMisuse)
	ErrPruneInProgress = fmt.Errorf("%w: a prune is already running", ErrConcurrencyMisuse)
)

// ErrPathNotAllowed is returned for scan roots outside the allowed paths
var ErrPathNotAllowed = errors.New("path is not in the allowed list")

// ScanRequest describes one scan. Zero fields fall back to the session config.
type ScanRequest struct {
	Root       string
	Strategy   fingerprint.Config
	Extensions []string
	JobID      *int64
}

type activeScan struct {
	handle   *scan.Handle
	runID    int64
	finished chan struct{}
}

// Session owns one result forest and at most one running scan.
// The database is optional; a nil db disables history.
type Session struct {
	db     *db.DB
	cfg    *config.Config
	engine *prune.Engine
	forest *forest.Forest

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	active    *activeScan
	pruning   bool
	last      types.ScanProgress
	lastRunID int64

	subMu       sync.RWMutex
	subscribers []*subscriber
}

// NewSession creates an idle session
func NewSession(database *db.DB, cfg *config.Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		db:     database,
		cfg:    cfg,
		engine: prune.New(),
		forest: forest.New(),
		ctx:    ctx,
		cancel: cancel,
		last:   types.ScanProgress{Status: types.StatusIdle},
	}
}

// StartScan resets the forest and begins a background scan. ctx only guards
// the start; the scan runs until it completes, CancelScan or Close.
func (s *Session) StartScan(ctx context.Context, req ScanRequest) (*scan.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(config.ExpandPath(req.Root))
	if err != nil {
		return nil, &scan.InvalidRootError{Path: req.Root, Err: err}
	}
	if !s.cfg.IsPathAllowed(root) {
		return nil, fmt.Errorf("%w: %s", ErrPathNotAllowed, root)
	}

	fpCfg := req.Strategy
	if fpCfg.Kind == 0 {
		if fpCfg, err = s.cfg.StrategyConfig(); err != nil {
			return nil, err
		}
	}
	strategy, err := fingerprint.New(fpCfg)
	if err != nil {
		return nil, err
	}
	exts := req.Extensions
	if len(exts) == 0 {
		exts = s.cfg.Extensions
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return nil, ErrScanInProgress
	}
	if s.pruning {
		return nil, ErrPruneInProgress
	}

	scanCtx := s.ctx
	var cancelTimeout context.CancelFunc
	if s.cfg.ScanTimeout > 0 {
		scanCtx, cancelTimeout = context.WithTimeout(scanCtx, s.cfg.ScanTimeout)
	}

	h, err := scan.Start(scanCtx, scan.Options{
		Root:       root,
		Strategy:   strategy,
		Extensions: exts,
		Workers:    s.cfg.Workers,
	})
	if err != nil {
		if cancelTimeout != nil {
			cancelTimeout()
		}
		return nil, err
	}

	s.forest.Reset()
	a := &activeScan{handle: h, finished: make(chan struct{})}
	if s.db != nil {
		run, err := s.db.CreateScanRun(req.JobID, root, fpCfg.String(), exts)
		if err != nil {
			log.Warn().Err(err).Msg("session: failed to record scan run")
		} else {
			a.runID = run.ID
		}
	}
	s.active = a
	s.lastRunID = a.runID

	log.Info().Str("root", root).Str("strategy", fpCfg.String()).Int64("run", a.runID).Msg("session: scan started")

	go func() {
		if cancelTimeout != nil {
			defer cancelTimeout()
		}
		s.consume(a)
	}()

	return h, nil
}

// ResolveStrategy applies per-request overrides to the configured strategy.
// An empty name keeps the configured kind.
func (s *Session) ResolveStrategy(name string, threshold *int) (fingerprint.Config, error) {
	fc, err := s.cfg.StrategyConfig()
	if err != nil {
		return fingerprint.Config{}, err
	}
	if name != "" {
		kind, err := fingerprint.ParseKind(name)
		if err != nil {
			return fingerprint.Config{}, err
		}
		fc.Kind = kind
	}
	if threshold != nil {
		fc.Threshold = *threshold
	}
	if err := fc.Validate(); err != nil {
		return fingerprint.Config{}, err
	}
	return fc, nil
}

// consume drains the hand-off queue on a ticker and once more on completion,
// forwarding progress to subscribers
// consume owns the active scan until it ends. Waiters are released only
// after everything, including the final log line, has been written.
func (s *Session) consume(a *activeScan) {
	defer close(a.finished)

	interval := s.cfg.DrainInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	updates := a.handle.Updates()
	var recorded types.ScanProgress

	for done := false; !done; {
		select {
		case p, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.broadcast(&p)
		case <-ticker.C:
			a.handle.Drain(s.forest)
			if p := a.handle.Progress(); s.db != nil && a.runID != 0 && p != recorded {
				s.db.UpdateScanRunProgress(a.runID, p.FilesScanned, p.GroupsFound, p.Warnings)
				recorded = p
			}
		case <-a.handle.Done():
			done = true
		}
	}

	a.handle.Drain(s.forest)
	final := a.handle.Progress()
	s.recordCompletion(a, final)

	s.mu.Lock()
	s.last = final
	s.active = nil
	s.mu.Unlock()

	s.broadcast(&final)

	log.Info().
		Str("status", final.Status).
		Int64("files", final.FilesScanned).
		Int64("groups", final.GroupsFound).
		Int64("warnings", final.Warnings).
		Msg("session: scan finished")
}

func (s *Session) recordCompletion(a *activeScan, p types.ScanProgress) {
	if s.db == nil || a.runID == 0 {
		return
	}
	s.db.UpdateScanRunProgress(a.runID, p.FilesScanned, p.GroupsFound, p.Warnings)

	var status db.ScanRunStatus
	var errMsg *string
	switch p.Status {
	case types.StatusCancelled:
		status = db.ScanRunStatusCancelled
		msg := "Scan cancelled"
		errMsg = &msg
	case types.StatusFailed:
		status = db.ScanRunStatusFailed
		msg := "scan failed"
		if err := a.handle.Err(); err != nil {
			msg = err.Error()
			if errors.Is(err, context.DeadlineExceeded) {
				msg = "scan timed out"
			}
		}
		errMsg = &msg
	default:
		status = db.ScanRunStatusCompleted
	}
	if err := s.db.CompleteScanRun(a.runID, status, errMsg); err != nil {
		log.Warn().Err(err).Int64("run", a.runID).Msg("session: failed to record scan completion")
	}
}

// Active reports whether a scan is running
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// LastRunID returns the history ID of the most recent scan, 0 if none
func (s *Session) LastRunID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRunID
}

// PollProgress returns the running scan's progress, or the last scan's final state
func (s *Session) PollProgress() types.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return s.active.handle.Progress()
	}
	return s.last
}

// DrainResults moves any queued groups into the forest without waiting
func (s *Session) DrainResults() int {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.handle.Drain(s.forest)
}

// CancelScan stops the running scan at the next file boundary. Groups found
// so far are kept.
func (s *Session) CancelScan() bool {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		return false
	}
	a.handle.Cancel()
	return true
}

// Wait blocks until the running scan has finished and been fully drained.
// It returns immediately when idle.
func (s *Session) Wait(ctx context.Context) error {
	s.mu.Lock()
	a := s.active
	s.mu.Unlock()
	if a == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.finished:
		return a.handle.Err()
	}
}

// ListGroups snapshots the forest, keeping groups whose representative ends
// with ext; an empty ext keeps all
func (s *Session) ListGroups(ext string) []forest.GroupView {
	return forest.FilterByExtension(s.forest.Groups(), ext)
}

// Members lists one group's members with their marks
func (s *Session) Members(g int) ([]forest.Member, error) {
	return s.forest.Members(g)
}

// ToggleMark flips a member's deletion mark and returns the new value
func (s *Session) ToggleMark(g, m int) (bool, error) {
	return s.forest.ToggleMark(g, m)
}

// SetRepresentative makes member m the parent of group g
func (s *Session) SetRepresentative(g, m int) error {
	return s.forest.SetRepresentative(g, m)
}

// DeleteMarked removes every marked file. Rejected while a scan is running.
func (s *Session) DeleteMarked() (prune.Result, error) {
	return s.runPrune(db.ActionTypeDeleteMarked, s.engine.DeleteMarked)
}

// AutoPrune removes every non-representative file. Rejected while a scan is running.
func (s *Session) AutoPrune() (prune.Result, error) {
	return s.runPrune(db.ActionTypeAutoPrune, s.engine.AutoPrune)
}

func (s *Session) runPrune(actionType db.ActionType, fn func(*forest.Forest) prune.Result) (prune.Result, error) {
	s.mu.Lock()
	if s.active != nil {
		s.mu.Unlock()
		return prune.Result{}, ErrPruneDuringScan
	}
	if s.pruning {
		s.mu.Unlock()
		return prune.Result{}, ErrPruneInProgress
	}
	s.pruning = true
	runID := s.lastRunID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pruning = false
		s.mu.Unlock()
	}()

	var action *db.Action
	if s.db != nil {
		var runRef *int64
		if runID != 0 {
			runRef = &runID
		}
		var err error
		if action, err = s.db.CreateAction(runRef, actionType); err != nil {
			log.Warn().Err(err).Msg("session: failed to record action")
		}
	}

	res := fn(s.forest)

	log.Info().
		Str("action", string(actionType)).
		Int("deleted", res.Deleted).
		Int("failed", len(res.Failures)).
		Int("groups_removed", res.GroupsRemoved).
		Msg("session: prune finished")

	if action != nil {
		failed := make([]string, 0, len(res.Failures))
		for _, f := range res.Failures {
			failed = append(failed, f.Path)
		}
		status := db.ActionStatusCompleted
		var errMsg *string
		if res.Deleted == 0 && len(res.Failures) > 0 {
			status = db.ActionStatusFailed
			msg := res.Failures[0].Error()
			errMsg = &msg
		}
		if err := s.db.CompleteAction(action.ID, res.Deleted, res.GroupsRemoved, failed, status, errMsg); err != nil {
			log.Warn().Err(err).Int64("action", action.ID).Msg("session: failed to record action result")
		}
	}

	return res, nil
}

// Close cancels any running scan, waits for it to drain and closes subscribers
func (s *Session) Close() {
	s.cancel()
	s.Wait(context.Background())
	s.closeSubscribers()
}
