package db

import (
	"time"
)

// ScanRunStatus represents the status of a scan run
type ScanRunStatus string

const (
	ScanRunStatusRunning   ScanRunStatus = "running"
	ScanRunStatusCompleted ScanRunStatus = "completed"
	ScanRunStatusFailed    ScanRunStatus = "failed"
	ScanRunStatusCancelled ScanRunStatus = "cancelled"
)

// ScanRun records one scan over a root directory
type ScanRun struct {
	ID             int64         `json:"id"`
	ScheduledJobID *int64        `json:"scheduled_job_id,omitempty"`
	Root           string        `json:"root"`
	Strategy       string        `json:"strategy"`
	Extensions     []string      `json:"extensions"`
	Status         ScanRunStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	FilesScanned   int64         `json:"files_scanned"`
	GroupsFound    int64         `json:"groups_found"`
	Warnings       int64         `json:"warnings"`
	ErrorMessage   *string       `json:"error_message,omitempty"`
}

// ActionStatus represents the status of a prune action
type ActionStatus string

const (
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// ActionType identifies which prune operation ran
type ActionType string

const (
	ActionTypeDeleteMarked ActionType = "delete_marked"
	ActionTypeAutoPrune    ActionType = "auto_prune"
)

// Action is one entry of the prune audit log
type Action struct {
	ID            int64        `json:"id"`
	ScanRunID     *int64       `json:"scan_run_id,omitempty"`
	ActionType    ActionType   `json:"action_type"`
	FilesDeleted  int          `json:"files_deleted"`
	GroupsRemoved int          `json:"groups_removed"`
	FailedPaths   []string     `json:"failed_paths"`
	StartedAt     time.Time    `json:"started_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Status        ActionStatus `json:"status"`
	ErrorMessage  *string      `json:"error_message,omitempty"`
}

// Job actions
const (
	JobActionScan          = "scan"
	JobActionScanAutoPrune = "scan_autoprune"
)

// ScheduledJob is a cron-driven scan of one root
type ScheduledJob struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Root           string     `json:"root"`
	Strategy       string     `json:"strategy"` // empty = server default
	Threshold      *int       `json:"threshold,omitempty"`
	Extensions     []string   `json:"extensions"`
	CronExpression string     `json:"cron_expression"`
	Action         string     `json:"action"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Stats aggregates history for the status endpoint
type Stats struct {
	TotalFilesDeleted int64 `json:"total_files_deleted"`
	RecentScans       int   `json:"recent_scans"`
	EnabledJobs       int   `json:"enabled_jobs"`
}
