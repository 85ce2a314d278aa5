// Package scheduler runs scans, and optionally auto-prunes, on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/db"
	"github.com/lyallcooper/dupdeleter/internal/services"
	"github.com/lyallcooper/dupdeleter/internal/types"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	db      *db.DB
	session *services.Session
	parser  cron.Parser
	tick    time.Duration

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	cancel   context.CancelFunc // Cancel function for running jobs
	wg       sync.WaitGroup     // Tracks spawned job goroutines
}

// New creates a new scheduler
func New(database *db.DB, session *services.Session) *Scheduler {
	return &Scheduler{
		db:      database,
		session: session,
		parser:  NewParser(),
		tick:    time.Minute,
	}
}

// NewParser returns the 5-field cron parser used for job schedules
func NewParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})

	// Create cancellable context for all spawned jobs
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, s.stopChan)
}

// Stop stops the scheduler and waits for running jobs to complete
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)

	// Cancel all running job contexts
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// Wait for all spawned job goroutines to finish
	s.wg.Wait()
}

// run is the main scheduler loop
func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	// Check immediately on start
	s.checkJobs(ctx)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.checkJobs(ctx)
		}
	}
}

// checkJobs starts every enabled job whose next run is due
func (s *Scheduler) checkJobs(ctx context.Context) {
	jobs, err := s.db.GetEnabledJobs()
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to get jobs")
		return
	}

	now := time.Now()

	for _, job := range jobs {
		if job.NextRunAt == nil || job.NextRunAt.After(now) {
			continue
		}

		// Advance first; a skipped run waits for its next slot
		schedule, err := s.parser.Parse(job.CronExpression)
		if err != nil {
			log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: invalid cron expression, disabling job")
			s.db.SetJobEnabled(job.ID, false)
			continue
		}
		nextRun := schedule.Next(now)
		if err := s.db.UpdateJobLastRun(job.ID, now, nextRun); err != nil {
			log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: failed to update job last run")
			continue
		}

		s.wg.Add(1)
		go s.runJob(ctx, job, nextRun)
	}
}

// runJob executes a scheduled job
func (s *Scheduler) runJob(ctx context.Context, job *db.ScheduledJob, nextRun time.Time) {
	defer s.wg.Done()

	log.Info().Int64("job", job.ID).Str("name", job.Name).Msg("scheduler: running job")

	// Check if context is already cancelled
	if ctx.Err() != nil {
		log.Info().Int64("job", job.ID).Msg("scheduler: job cancelled before start")
		return
	}

	if job.Root == "" {
		log.Warn().Int64("job", job.ID).Msg("scheduler: no root configured for job")
		return
	}

	strategy, err := s.session.ResolveStrategy(job.Strategy, job.Threshold)
	if err != nil {
		log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: invalid strategy for job")
		return
	}

	_, err = s.session.StartScan(ctx, services.ScanRequest{
		Root:       job.Root,
		Strategy:   strategy,
		Extensions: job.Extensions,
		JobID:      &job.ID,
	})
	if errors.Is(err, services.ErrConcurrencyMisuse) {
		log.Warn().Int64("job", job.ID).Time("next_run", nextRun).Msg("scheduler: session busy, skipping job")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: failed to start scan")
		return
	}
	runID := s.session.LastRunID()

	log.Info().Int64("run", runID).Int64("job", job.ID).Time("next_run", nextRun).Msg("scheduler: started scan")

	// Stop the scan with the scheduler
	stop := context.AfterFunc(ctx, func() { s.session.CancelScan() })
	defer stop()

	if job.Action == db.JobActionScanAutoPrune {
		s.waitAndExecuteAction(ctx, runID, job)
	} else {
		s.session.Wait(ctx)
	}
}

// waitAndExecuteAction waits for the job's scan to finish and auto-prunes
// its results if it completed
func (s *Scheduler) waitAndExecuteAction(ctx context.Context, runID int64, job *db.ScheduledJob) {
	if err := s.session.Wait(ctx); err != nil {
		log.Info().Err(err).Int64("run", runID).Msg("scheduler: scan did not complete, skipping auto-prune")
		return
	}

	if s.session.LastRunID() != runID {
		log.Warn().Int64("run", runID).Msg("scheduler: session moved on to another scan, skipping auto-prune")
		return
	}
	if p := s.session.PollProgress(); p.Status != types.StatusCompleted {
		log.Info().Int64("run", runID).Str("status", p.Status).Msg("scheduler: scan did not complete successfully, skipping auto-prune")
		return
	}
	if len(s.session.ListGroups("")) == 0 {
		log.Info().Int64("run", runID).Msg("scheduler: no duplicate groups found")
		return
	}

	res, err := s.session.AutoPrune()
	if err != nil {
		log.Error().Err(err).Int64("job", job.ID).Msg("scheduler: auto-prune failed")
		return
	}
	log.Info().
		Int64("job", job.ID).
		Int("deleted", res.Deleted).
		Int("failed", len(res.Failures)).
		Msg("scheduler: auto-pruned scan results")
}

// UpdateNextRun recomputes and stores the next run time for a job
func (s *Scheduler) UpdateNextRun(job *db.ScheduledJob) error {
	schedule, err := s.parser.Parse(job.CronExpression)
	if err != nil {
		return err
	}

	nextRun := schedule.Next(time.Now())
	job.NextRunAt = &nextRun

	return s.db.UpdateScheduledJob(job)
}
