package db

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// testDB creates a temporary database for testing
func testDB(t *testing.T) *DB {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first.SetSetting("retention_days", "7")
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	if got := second.GetSettingInt("retention_days", 30); got != 7 {
		t.Errorf("retention_days = %d after reopen, want 7", got)
	}
}

// ============================================================================
// ScanRun Tests
// ============================================================================

func TestScanRun_BasicFields(t *testing.T) {
	db := testDB(t)

	exts := []string{".jpg", ".png"}
	created, err := db.CreateScanRun(nil, "/photos", "perceptual 9x8 threshold=10", exts)
	if err != nil {
		t.Fatalf("CreateScanRun failed: %v", err)
	}

	got, err := db.GetScanRun(created.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}

	if got.Root != "/photos" {
		t.Errorf("Root mismatch: got %q", got.Root)
	}
	if got.Strategy != "perceptual 9x8 threshold=10" {
		t.Errorf("Strategy mismatch: got %q", got.Strategy)
	}
	if !reflect.DeepEqual(got.Extensions, exts) {
		t.Errorf("Extensions mismatch: got %v, want %v", got.Extensions, exts)
	}
	if got.Status != ScanRunStatusRunning {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, ScanRunStatusRunning)
	}
	if got.ScheduledJobID != nil || got.CompletedAt != nil || got.ErrorMessage != nil {
		t.Error("nullable fields should be nil on a fresh run")
	}
	if time.Since(got.StartedAt) > time.Minute {
		t.Errorf("StartedAt = %v, want roughly now", got.StartedAt)
	}
}

func TestScanRun_ProgressAndCompletion(t *testing.T) {
	db := testDB(t)

	jobID := int64(9)
	run, _ := db.CreateScanRun(&jobID, "/photos", "exact", nil)

	if err := db.UpdateScanRunProgress(run.ID, 120, 4, 2); err != nil {
		t.Fatalf("UpdateScanRunProgress failed: %v", err)
	}
	msg := "walk failed"
	if err := db.CompleteScanRun(run.ID, ScanRunStatusFailed, &msg); err != nil {
		t.Fatalf("CompleteScanRun failed: %v", err)
	}

	got, _ := db.GetScanRun(run.ID)
	if got.FilesScanned != 120 || got.GroupsFound != 4 || got.Warnings != 2 {
		t.Errorf("counters = %d/%d/%d, want 120/4/2", got.FilesScanned, got.GroupsFound, got.Warnings)
	}
	if got.Status != ScanRunStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msg {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, msg)
	}
	if got.ScheduledJobID == nil || *got.ScheduledJobID != jobID {
		t.Errorf("ScheduledJobID = %v, want %d", got.ScheduledJobID, jobID)
	}
	if got.Extensions == nil || len(got.Extensions) != 0 {
		t.Errorf("Extensions = %#v, want empty slice", got.Extensions)
	}

	last, err := db.GetLastRunForJob(jobID)
	if err != nil {
		t.Fatalf("GetLastRunForJob failed: %v", err)
	}
	if last.ID != run.ID {
		t.Errorf("GetLastRunForJob = %d, want %d", last.ID, run.ID)
	}
}

func TestScanRun_RowAndRowsConsistency(t *testing.T) {
	db := testDB(t)

	created, _ := db.CreateScanRun(nil, "/consistency", "exact", []string{".gif"})
	db.UpdateScanRunProgress(created.ID, 3, 1, 0)
	db.CompleteScanRun(created.ID, ScanRunStatusCompleted, nil)

	single, err := db.GetScanRun(created.ID)
	if err != nil {
		t.Fatalf("GetScanRun failed: %v", err)
	}
	list, err := db.ListScanRuns(10, 0)
	if err != nil {
		t.Fatalf("ListScanRuns failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 run, got %d", len(list))
	}
	multi := list[0]

	if single.ID != multi.ID || single.Root != multi.Root || single.Strategy != multi.Strategy {
		t.Error("identity fields mismatch")
	}
	if !reflect.DeepEqual(single.Extensions, multi.Extensions) {
		t.Error("Extensions mismatch")
	}
	if single.Status != multi.Status || single.FilesScanned != multi.FilesScanned || single.GroupsFound != multi.GroupsFound {
		t.Error("status or counters mismatch")
	}
	if !single.StartedAt.Equal(multi.StartedAt) {
		t.Error("StartedAt mismatch")
	}
	if (single.CompletedAt == nil) != (multi.CompletedAt == nil) {
		t.Error("CompletedAt nil mismatch")
	} else if single.CompletedAt != nil && !single.CompletedAt.Equal(*multi.CompletedAt) {
		t.Error("CompletedAt value mismatch")
	}
}

func TestPagination(t *testing.T) {
	db := testDB(t)

	for i := 0; i < 5; i++ {
		db.CreateScanRun(nil, "/test", "exact", nil)
	}

	tests := []struct {
		name      string
		limit     int
		offset    int
		wantCount int
	}{
		{"first page", 2, 0, 2},
		{"second page", 2, 2, 2},
		{"last page (partial)", 2, 4, 1},
		{"offset beyond count", 2, 10, 0},
		{"large limit", 100, 0, 5},
		// Note: LIMIT 0 returns 0 rows in SQL, not "all"
		{"zero limit returns zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := db.ListScanRuns(tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("ListScanRuns failed: %v", err)
			}
			if len(runs) != tt.wantCount {
				t.Errorf("got %d runs, want %d", len(runs), tt.wantCount)
			}
		})
	}

	runs, _ := db.ListScanRuns(5, 0)
	for i := 1; i < len(runs); i++ {
		if runs[i].ID > runs[i-1].ID {
			t.Errorf("runs not newest first: %d before %d", runs[i-1].ID, runs[i].ID)
		}
	}
}

// ============================================================================
// Action Tests
// ============================================================================

func TestAction_Lifecycle(t *testing.T) {
	db := testDB(t)

	run, _ := db.CreateScanRun(nil, "/photos", "exact", nil)
	action, err := db.CreateAction(&run.ID, ActionTypeDeleteMarked)
	if err != nil {
		t.Fatalf("CreateAction failed: %v", err)
	}
	if action.Status != ActionStatusRunning {
		t.Errorf("Status = %s, want running", action.Status)
	}
	if action.FailedPaths == nil || len(action.FailedPaths) != 0 {
		t.Errorf("FailedPaths = %#v, want empty", action.FailedPaths)
	}

	failed := []string{"/photos/a.jpg", "/photos/it's \"quoted\".png"}
	if err := db.CompleteAction(action.ID, 3, 1, failed, ActionStatusCompleted, nil); err != nil {
		t.Fatalf("CompleteAction failed: %v", err)
	}

	got, _ := db.GetAction(action.ID)
	if got.FilesDeleted != 3 || got.GroupsRemoved != 1 {
		t.Errorf("counts = %d/%d, want 3/1", got.FilesDeleted, got.GroupsRemoved)
	}
	if !reflect.DeepEqual(got.FailedPaths, failed) {
		t.Errorf("FailedPaths = %v, want %v", got.FailedPaths, failed)
	}
	if got.ScanRunID == nil || *got.ScanRunID != run.ID {
		t.Errorf("ScanRunID = %v, want %d", got.ScanRunID, run.ID)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	list, err := db.ListActions(10, 0)
	if err != nil {
		t.Fatalf("ListActions failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListActions returned %d actions, want 1", len(list))
	}
	if list[0].ID != got.ID || !reflect.DeepEqual(list[0].FailedPaths, got.FailedPaths) || list[0].ActionType != ActionTypeDeleteMarked {
		t.Errorf("ListActions = %+v, want %+v", list[0], got)
	}
}

// ============================================================================
// ScheduledJob Tests
// ============================================================================

func TestScheduledJob_BasicFields(t *testing.T) {
	db := testDB(t)

	nextRun := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	threshold := 4
	job := &ScheduledJob{
		Name:           "Nightly photos",
		Root:           "/photos",
		Strategy:       "perceptual",
		Threshold:      &threshold,
		Extensions:     []string{".jpg"},
		CronExpression: "0 2 * * *",
		Action:         JobActionScanAutoPrune,
		Enabled:        true,
		NextRunAt:      &nextRun,
	}

	created, err := db.CreateScheduledJob(job)
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}

	got, err := db.GetScheduledJob(created.ID)
	if err != nil {
		t.Fatalf("GetScheduledJob failed: %v", err)
	}
	if got.Name != job.Name || got.Root != job.Root || got.Strategy != job.Strategy {
		t.Errorf("got %+v, want fields of %+v", got, job)
	}
	if got.Threshold == nil || *got.Threshold != 4 {
		t.Errorf("Threshold = %v, want 4", got.Threshold)
	}
	if !reflect.DeepEqual(got.Extensions, job.Extensions) {
		t.Errorf("Extensions = %v", got.Extensions)
	}
	if got.Action != JobActionScanAutoPrune || !got.Enabled {
		t.Errorf("Action/Enabled = %s/%v", got.Action, got.Enabled)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(nextRun) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, nextRun)
	}
	if got.LastRunAt != nil {
		t.Error("LastRunAt should be nil")
	}
}

func TestScheduledJob_DefaultAction(t *testing.T) {
	db := testDB(t)

	created, err := db.CreateScheduledJob(&ScheduledJob{Name: "x", Root: "/x", CronExpression: "* * * * *"})
	if err != nil {
		t.Fatalf("CreateScheduledJob failed: %v", err)
	}
	if created.Action != JobActionScan {
		t.Errorf("Action = %q, want %q", created.Action, JobActionScan)
	}
	if created.Threshold != nil {
		t.Errorf("Threshold = %v, want nil", *created.Threshold)
	}
}

func TestScheduledJob_UpdateAndLastRun(t *testing.T) {
	db := testDB(t)

	job, _ := db.CreateScheduledJob(&ScheduledJob{
		Name: "a", Root: "/a", CronExpression: "0 * * * *", Enabled: true,
	})

	job.Name = "b"
	job.Root = "/b"
	job.Extensions = []string{".png", ".gif"}
	if err := db.UpdateScheduledJob(job); err != nil {
		t.Fatalf("UpdateScheduledJob failed: %v", err)
	}

	last := time.Now().UTC().Truncate(time.Second)
	next := last.Add(time.Hour)
	if err := db.UpdateJobLastRun(job.ID, last, next); err != nil {
		t.Fatalf("UpdateJobLastRun failed: %v", err)
	}

	got, _ := db.GetScheduledJob(job.ID)
	if got.Name != "b" || got.Root != "/b" || len(got.Extensions) != 2 {
		t.Errorf("update not applied: %+v", got)
	}
	if got.LastRunAt == nil || !got.LastRunAt.Equal(last) {
		t.Errorf("LastRunAt = %v, want %v", got.LastRunAt, last)
	}
	if got.NextRunAt == nil || !got.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, next)
	}

	if err := db.SetJobEnabled(job.ID, false); err != nil {
		t.Fatalf("SetJobEnabled failed: %v", err)
	}
	got, _ = db.GetScheduledJob(job.ID)
	if got.Enabled {
		t.Error("job should be disabled")
	}
}

func TestGetEnabledJobs(t *testing.T) {
	db := testDB(t)

	nextRun := time.Now().Add(-time.Hour)
	db.CreateScheduledJob(&ScheduledJob{
		Name: "Enabled", Root: "/test", CronExpression: "0 * * * *", Enabled: true, NextRunAt: &nextRun,
	})
	db.CreateScheduledJob(&ScheduledJob{
		Name: "Disabled", Root: "/test", CronExpression: "0 * * * *", Enabled: false, NextRunAt: &nextRun,
	})
	db.CreateScheduledJob(&ScheduledJob{
		Name: "Enabled No Next", Root: "/test", CronExpression: "0 * * * *", Enabled: true,
	})

	jobs, err := db.GetEnabledJobs()
	if err != nil {
		t.Fatalf("GetEnabledJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "Enabled" {
		t.Errorf("GetEnabledJobs = %v, want only the enabled job with a next run", jobs)
	}

	all, _ := db.ListScheduledJobs()
	if len(all) != 3 {
		t.Errorf("ListScheduledJobs returned %d jobs, want 3", len(all))
	}
}

func TestDeleteScheduledJob(t *testing.T) {
	db := testDB(t)

	job, _ := db.CreateScheduledJob(&ScheduledJob{Name: "gone", Root: "/x", CronExpression: "* * * * *"})
	if err := db.DeleteScheduledJob(job.ID); err != nil {
		t.Fatalf("DeleteScheduledJob failed: %v", err)
	}
	if _, err := db.GetScheduledJob(job.ID); err == nil {
		t.Error("job should be deleted")
	}
}

// ============================================================================
// Settings, stats and cleanup
// ============================================================================

func TestSettings(t *testing.T) {
	db := testDB(t)

	if got := db.GetSettingInt("retention_days", 0); got != 30 {
		t.Errorf("default retention_days = %d, want 30", got)
	}

	val, err := db.GetSetting("missing")
	if err != nil || val != "" {
		t.Errorf("GetSetting(missing) = %q, %v; want empty, nil", val, err)
	}

	db.SetSetting("retention_days", "14")
	db.SetSetting("retention_days", "15")
	if got := db.GetSettingInt("retention_days", 0); got != 15 {
		t.Errorf("retention_days = %d, want 15", got)
	}

	db.SetSetting("bad", "abc")
	if got := db.GetSettingInt("bad", 5); got != 5 {
		t.Errorf("malformed setting = %d, want default 5", got)
	}
}

func TestGetStats(t *testing.T) {
	db := testDB(t)

	db.CreateScanRun(nil, "/a", "exact", nil)
	a1, _ := db.CreateAction(nil, ActionTypeAutoPrune)
	db.CompleteAction(a1.ID, 4, 2, nil, ActionStatusCompleted, nil)
	a2, _ := db.CreateAction(nil, ActionTypeDeleteMarked)
	db.CompleteAction(a2.ID, 0, 0, []string{"/a/x.jpg"}, ActionStatusFailed, nil)
	db.CreateScheduledJob(&ScheduledJob{Name: "j", Root: "/a", CronExpression: "* * * * *", Enabled: true})

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.TotalFilesDeleted != 4 {
		t.Errorf("TotalFilesDeleted = %d, want 4", stats.TotalFilesDeleted)
	}
	if stats.RecentScans != 1 {
		t.Errorf("RecentScans = %d, want 1", stats.RecentScans)
	}
	if stats.EnabledJobs != 1 {
		t.Errorf("EnabledJobs = %d, want 1", stats.EnabledJobs)
	}
}

func TestCleanupOldData(t *testing.T) {
	db := testDB(t)

	oldRun, _ := db.CreateScanRun(nil, "/old", "exact", nil)
	db.CompleteScanRun(oldRun.ID, ScanRunStatusCompleted, nil)
	oldAction, _ := db.CreateAction(&oldRun.ID, ActionTypeAutoPrune)
	db.CompleteAction(oldAction.ID, 1, 1, nil, ActionStatusCompleted, nil)

	past := time.Now().UTC().AddDate(0, 0, -60)
	if _, err := db.Exec(`UPDATE scan_runs SET completed_at = ? WHERE id = ?`, past, oldRun.ID); err != nil {
		t.Fatalf("failed to backdate scan run: %v", err)
	}
	if _, err := db.Exec(`UPDATE actions SET completed_at = ? WHERE id = ?`, past, oldAction.ID); err != nil {
		t.Fatalf("failed to backdate action: %v", err)
	}

	recentRun, _ := db.CreateScanRun(nil, "/recent", "exact", nil)
	db.CompleteScanRun(recentRun.ID, ScanRunStatusCompleted, nil)
	runningRun, _ := db.CreateScanRun(nil, "/running", "exact", nil)

	if err := db.CleanupOldData(30); err != nil {
		t.Fatalf("CleanupOldData failed: %v", err)
	}

	if _, err := db.GetScanRun(oldRun.ID); err == nil {
		t.Error("old scan run should have been deleted")
	}
	if _, err := db.GetAction(oldAction.ID); err == nil {
		t.Error("old action should have been deleted")
	}
	if _, err := db.GetScanRun(recentRun.ID); err != nil {
		t.Error("recent scan run should still exist")
	}
	if _, err := db.GetScanRun(runningRun.ID); err != nil {
		t.Error("running scan run should still exist")
	}
}
