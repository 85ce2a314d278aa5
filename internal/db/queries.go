package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ScanRun queries

const scanRunColumns = `id, scheduled_job_id, root, strategy, extensions, status, started_at, completed_at,
	files_scanned, groups_found, warnings, error_message`

// CreateScanRun records the start of a scan
func (db *DB) CreateScanRun(jobID *int64, root, strategy string, extensions []string) (*ScanRun, error) {
	extJSON, _ := json.Marshal(nonNil(extensions))

	result, err := db.Exec(`
		INSERT INTO scan_runs (scheduled_job_id, root, strategy, extensions, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		jobID, root, strategy, string(extJSON), ScanRunStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScanRun(id)
}

// GetScanRun retrieves a scan run by ID
func (db *DB) GetScanRun(id int64) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+` FROM scan_runs WHERE id = ?`, id)
	return scanScanRun(row)
}

// ListScanRuns returns scan runs, newest first, with pagination
func (db *DB) ListScanRuns(limit, offset int) ([]*ScanRun, error) {
	rows, err := db.Query(`SELECT `+scanRunColumns+`
		FROM scan_runs ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*ScanRun
	for rows.Next() {
		r, err := scanScanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetLastRunForJob returns the most recent scan run for a scheduled job
func (db *DB) GetLastRunForJob(jobID int64) (*ScanRun, error) {
	row := db.QueryRow(`SELECT `+scanRunColumns+`
		FROM scan_runs WHERE scheduled_job_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, jobID)
	return scanScanRun(row)
}

// UpdateScanRunProgress updates the counters of a running scan
func (db *DB) UpdateScanRunProgress(id int64, filesScanned, groups, warnings int64) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET files_scanned = ?, groups_found = ?, warnings = ?
		WHERE id = ?`,
		filesScanned, groups, warnings, id,
	)
	return err
}

// CompleteScanRun marks a scan run as finished
func (db *DB) CompleteScanRun(id int64, status ScanRunStatus, errorMsg *string) error {
	_, err := db.Exec(`
		UPDATE scan_runs SET status = ?, completed_at = ?, error_message = ?
		WHERE id = ?`,
		status, time.Now().UTC(), errorMsg, id,
	)
	return err
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRun(row rowScanner) (*ScanRun, error) {
	var r ScanRun
	var jobID sql.NullInt64
	var extJSON string
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&r.ID, &jobID, &r.Root, &r.Strategy, &extJSON, &r.Status, &r.StartedAt, &completedAt,
		&r.FilesScanned, &r.GroupsFound, &r.Warnings, &errorMsg)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(extJSON), &r.Extensions)
	if jobID.Valid {
		r.ScheduledJobID = &jobID.Int64
	}
	if completedAt.Valid {
		r.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		r.ErrorMessage = &errorMsg.String
	}

	return &r, nil
}

// ScheduledJob queries

const jobColumns = `id, name, root, strategy, threshold, extensions, cron_expression, action, enabled,
	last_run_at, next_run_at, created_at`

// CreateScheduledJob creates a new scheduled job
func (db *DB) CreateScheduledJob(job *ScheduledJob) (*ScheduledJob, error) {
	extJSON, _ := json.Marshal(nonNil(job.Extensions))
	if job.Action == "" {
		job.Action = JobActionScan
	}

	result, err := db.Exec(`
		INSERT INTO scheduled_jobs (name, root, strategy, threshold, extensions, cron_expression, action, enabled, next_run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.Name, job.Root, job.Strategy, job.Threshold, string(extJSON),
		job.CronExpression, job.Action, job.Enabled, utcPtr(job.NextRunAt),
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetScheduledJob(id)
}

// GetScheduledJob retrieves a scheduled job by ID
func (db *DB) GetScheduledJob(id int64) (*ScheduledJob, error) {
	row := db.QueryRow(`SELECT `+jobColumns+` FROM scheduled_jobs WHERE id = ?`, id)
	return scanScheduledJob(row)
}

// ListScheduledJobs returns all scheduled jobs
func (db *DB) ListScheduledJobs() ([]*ScheduledJob, error) {
	return db.queryJobs(`SELECT ` + jobColumns + ` FROM scheduled_jobs ORDER BY name`)
}

// GetEnabledJobs returns enabled jobs that have a next run time
func (db *DB) GetEnabledJobs() ([]*ScheduledJob, error) {
	return db.queryJobs(`SELECT ` + jobColumns + `
		FROM scheduled_jobs WHERE enabled = 1 AND next_run_at IS NOT NULL ORDER BY next_run_at`)
}

func (db *DB) queryJobs(query string) ([]*ScheduledJob, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*ScheduledJob
	for rows.Next() {
		j, err := scanScheduledJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// UpdateScheduledJob updates a scheduled job
func (db *DB) UpdateScheduledJob(job *ScheduledJob) error {
	extJSON, _ := json.Marshal(nonNil(job.Extensions))

	_, err := db.Exec(`
		UPDATE scheduled_jobs SET
			name = ?, root = ?, strategy = ?, threshold = ?, extensions = ?,
			cron_expression = ?, action = ?, enabled = ?, next_run_at = ?
		WHERE id = ?`,
		job.Name, job.Root, job.Strategy, job.Threshold, string(extJSON),
		job.CronExpression, job.Action, job.Enabled, utcPtr(job.NextRunAt), job.ID,
	)
	return err
}

// UpdateJobLastRun updates the last run time and next run time
func (db *DB) UpdateJobLastRun(id int64, lastRun, nextRun time.Time) error {
	_, err := db.Exec(`
		UPDATE scheduled_jobs SET last_run_at = ?, next_run_at = ?
		WHERE id = ?`,
		lastRun.UTC(), nextRun.UTC(), id,
	)
	return err
}

// SetJobEnabled enables or disables a job
func (db *DB) SetJobEnabled(id int64, enabled bool) error {
	_, err := db.Exec("UPDATE scheduled_jobs SET enabled = ? WHERE id = ?", enabled, id)
	return err
}

// DeleteScheduledJob deletes a scheduled job
func (db *DB) DeleteScheduledJob(id int64) error {
	_, err := db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	return err
}

func scanScheduledJob(row rowScanner) (*ScheduledJob, error) {
	var j ScheduledJob
	var extJSON string
	var threshold sql.NullInt64
	var lastRun, nextRun sql.NullTime

	err := row.Scan(&j.ID, &j.Name, &j.Root, &j.Strategy, &threshold, &extJSON,
		&j.CronExpression, &j.Action, &j.Enabled, &lastRun, &nextRun, &j.CreatedAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(extJSON), &j.Extensions)
	if threshold.Valid {
		v := int(threshold.Int64)
		j.Threshold = &v
	}
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}

	return &j, nil
}

// Action queries

const actionColumns = `id, scan_run_id, action_type, files_deleted, groups_removed, failed_paths,
	started_at, completed_at, status, error_message`

// CreateAction creates a running action record
func (db *DB) CreateAction(scanRunID *int64, actionType ActionType) (*Action, error) {
	result, err := db.Exec(`
		INSERT INTO actions (scan_run_id, action_type, started_at, status)
		VALUES (?, ?, ?, ?)`,
		scanRunID, actionType, time.Now().UTC(), ActionStatusRunning,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetAction(id)
}

// GetAction retrieves an action by ID
func (db *DB) GetAction(id int64) (*Action, error) {
	row := db.QueryRow(`SELECT `+actionColumns+` FROM actions WHERE id = ?`, id)
	return scanAction(row)
}

// ListActions returns actions, newest first, with pagination
func (db *DB) ListActions(limit, offset int) ([]*Action, error) {
	rows, err := db.Query(`SELECT `+actionColumns+`
		FROM actions ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []*Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CompleteAction records the outcome of an action
func (db *DB) CompleteAction(id int64, filesDeleted, groupsRemoved int, failedPaths []string, status ActionStatus, errorMsg *string) error {
	failedJSON, _ := json.Marshal(nonNil(failedPaths))

	_, err := db.Exec(`
		UPDATE actions SET
			files_deleted = ?, groups_removed = ?, failed_paths = ?,
			completed_at = ?, status = ?, error_message = ?
		WHERE id = ?`,
		filesDeleted, groupsRemoved, string(failedJSON), time.Now().UTC(), status, errorMsg, id,
	)
	return err
}

func scanAction(row rowScanner) (*Action, error) {
	var a Action
	var scanRunID sql.NullInt64
	var failedJSON string
	var completedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(&a.ID, &scanRunID, &a.ActionType, &a.FilesDeleted, &a.GroupsRemoved, &failedJSON,
		&a.StartedAt, &completedAt, &a.Status, &errorMsg)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(failedJSON), &a.FailedPaths)
	if scanRunID.Valid {
		a.ScanRunID = &scanRunID.Int64
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.Time
	}
	if errorMsg.Valid {
		a.ErrorMessage = &errorMsg.String
	}

	return &a, nil
}

// Settings queries

// GetSetting returns the value for key, or "" if unset
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return val, err
}

// SetSetting inserts or replaces a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetSettingInt returns an integer setting, or def if unset or malformed
func (db *DB) GetSettingInt(key string, def int) int {
	val, err := db.GetSetting(key)
	if err != nil || val == "" {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return i
}

// Stats queries

// GetStats returns aggregate history statistics
func (db *DB) GetStats() (*Stats, error) {
	var s Stats

	row := db.QueryRow("SELECT COALESCE(SUM(files_deleted), 0) FROM actions WHERE status = 'completed'")
	if err := row.Scan(&s.TotalFilesDeleted); err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	row = db.QueryRow("SELECT COUNT(*) FROM scan_runs WHERE started_at > ?", cutoff)
	if err := row.Scan(&s.RecentScans); err != nil {
		return nil, err
	}

	row = db.QueryRow("SELECT COUNT(*) FROM scheduled_jobs WHERE enabled = 1")
	if err := row.Scan(&s.EnabledJobs); err != nil {
		return nil, err
	}
	return &s, nil
}

// CleanupOldData removes history older than the retention period
func (db *DB) CleanupOldData(retentionDays int) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	_, err := db.Exec("DELETE FROM scan_runs WHERE completed_at < ? AND status != 'running'", cutoff)
	if err != nil {
		return err
	}

	_, err = db.Exec("DELETE FROM actions WHERE completed_at < ?", cutoff)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
