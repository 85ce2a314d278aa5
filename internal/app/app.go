// Package app wires configuration, storage, the scan session, the scheduler
// and the HTTP API into one server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/config"
	"github.com/lyallcooper/dupdeleter/internal/db"
	"github.com/lyallcooper/dupdeleter/internal/handlers"
	"github.com/lyallcooper/dupdeleter/internal/logging"
	"github.com/lyallcooper/dupdeleter/internal/scheduler"
	"github.com/lyallcooper/dupdeleter/internal/services"
)

// ServerConfig contains options for creating the application server.
type ServerConfig struct {
	// Port to listen on. If 0, uses config default.
	Port int

	// Version string for display.
	Version string

	// Commit hash for display.
	Commit string

	// BindAddress is the address to bind to. Defaults to "" (all interfaces).
	BindAddress string

	// DisableCSRF disables CSRF protection for trusted local clients.
	DisableCSRF bool
}

// Server wraps the HTTP server and associated resources.
type Server struct {
	HTTP      *http.Server
	Config    *config.Config
	Database  *db.DB
	Session   *services.Session
	Scheduler *scheduler.Scheduler
	Version   string

	stopCSRF context.CancelFunc
}

// CreateServer initializes all application components and returns a Server.
// Call Server.Cleanup() when done to release resources.
func CreateServer(cfg ServerConfig) (*Server, error) {
	appCfg := config.Load()
	if cfg.Port > 0 {
		appCfg.Port = cfg.Port
	}

	if err := logging.Setup(logging.Options{Level: appCfg.LogLevel, File: appCfg.LogFile}); err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	if _, err := appCfg.StrategyConfig(); err != nil {
		return nil, fmt.Errorf("invalid strategy configuration: %w", err)
	}

	versionStr := buildVersionString(cfg.Version, cfg.Commit)
	log.Info().
		Str("version", versionStr).
		Str("database", appCfg.DBPath).
		Int("port", appCfg.Port).
		Str("strategy", appCfg.Strategy).
		Strs("allowed_paths", appCfg.AllowedPaths).
		Msg("dupdeleter starting")

	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	session := services.NewSession(database, appCfg)

	sched := scheduler.New(database, session)
	sched.Start()

	h := handlers.New(database, appCfg, session, cfg.DisableCSRF)

	csrfCtx, stopCSRF := context.WithCancel(context.Background())
	handlers.StartCSRFCleanup(csrfCtx)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.BindAddress, appCfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // No timeout for SSE
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		HTTP:      server,
		Config:    appCfg,
		Database:  database,
		Session:   session,
		Scheduler: sched,
		Version:   versionStr,
		stopCSRF:  stopCSRF,
	}, nil
}

// Cleanup releases all resources held by the server.
func (s *Server) Cleanup() {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	if s.Session != nil {
		s.Session.Close()
	}
	if s.stopCSRF != nil {
		s.stopCSRF()
	}
	if s.Database != nil {
		s.Database.Close()
	}
	logging.Close()
}

// RetentionDays returns the environment value when set, otherwise the stored setting
func (s *Server) RetentionDays() int {
	if s.Config.RetentionDaysFromEnv {
		return s.Config.RetentionDays
	}
	days := s.Database.GetSettingInt("retention_days", s.Config.RetentionDays)
	if days < 1 || days > 365 {
		return s.Config.RetentionDays
	}
	return days
}

// RunCleanup deletes history older than the retention period
func (s *Server) RunCleanup() {
	days := s.RetentionDays()
	log.Info().Int("retention_days", days).Msg("app: running cleanup")
	if err := s.Database.CleanupOldData(days); err != nil {
		log.Error().Err(err).Msg("app: cleanup failed")
	}
}

// StartCleanupLoop starts a background goroutine that periodically cleans up old data.
// Returns a cancel function and a done channel.
func (s *Server) StartCleanupLoop() (cancel func(), done <-chan struct{}) {
	cleanupDone := make(chan struct{})
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())

	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				s.RunCleanup()
			}
		}
	}()

	return cleanupCancel, cleanupDone
}

func buildVersionString(version, commit string) string {
	if strings.HasPrefix(version, "v") {
		return version
	}
	shortCommit := commit
	if len(shortCommit) > 7 {
		shortCommit = shortCommit[:7]
	}
	if shortCommit == "" {
		shortCommit = "unknown"
	}
	return version + "-" + shortCommit
}
