package handlers

import (
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/dupdeleter/internal/db"
	"github.com/lyallcooper/dupdeleter/internal/forest"
	"github.com/lyallcooper/dupdeleter/internal/prune"
	"github.com/lyallcooper/dupdeleter/internal/types"
)

// ScanProgressData is sent by the progress endpoint and via SSE
type ScanProgressData struct {
	CurrentPath  string `json:"current_path,omitempty"`
	FilesScanned int64  `json:"files_scanned"`
	FilesText    string `json:"files_text"`
	GroupsFound  int64  `json:"groups_found"`
	Warnings     int64  `json:"warnings"`
	Status       string `json:"status"`
	Done         bool   `json:"done"`
}

func toProgressData(p types.ScanProgress) ScanProgressData {
	return ScanProgressData{
		CurrentPath:  p.CurrentPath,
		FilesScanned: p.FilesScanned,
		FilesText:    humanize.Comma(p.FilesScanned) + " files",
		GroupsFound:  p.GroupsFound,
		Warnings:     p.Warnings,
		Status:       p.Status,
		Done:         p.Done,
	}
}

// GroupsResponse lists the forest's groups
type GroupsResponse struct {
	Groups     []forest.GroupView `json:"groups"`
	Total      int                `json:"total"`
	Duplicates int                `json:"duplicates"`
	Summary    string             `json:"summary"`
	Filter     string             `json:"filter,omitempty"`
}

func toGroupsResponse(groups []forest.GroupView, ext string) GroupsResponse {
	if groups == nil {
		groups = []forest.GroupView{}
	}
	dups := 0
	for _, g := range groups {
		dups += g.DupCount
	}
	return GroupsResponse{
		Groups:     groups,
		Total:      len(groups),
		Duplicates: dups,
		Summary:    humanize.Comma(int64(len(groups))) + " groups, " + humanize.Comma(int64(dups)) + " duplicates",
		Filter:     ext,
	}
}

// FailureView is one file a prune could not remove
type FailureView struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// PruneResponse reports a prune pass
type PruneResponse struct {
	Deleted       int           `json:"deleted"`
	GroupsRemoved int           `json:"groups_removed"`
	Failures      []FailureView `json:"failures"`
	Summary       string        `json:"summary"`
}

func toPruneResponse(res prune.Result) PruneResponse {
	failures := make([]FailureView, 0, len(res.Failures))
	for _, f := range res.Failures {
		failures = append(failures, FailureView{Path: f.Path, Error: f.Err.Error()})
	}
	summary := humanize.Comma(int64(res.Deleted)) + " deleted"
	if len(failures) > 0 {
		summary += ", " + humanize.Comma(int64(len(failures))) + " failed"
	}
	return PruneResponse{
		Deleted:       res.Deleted,
		GroupsRemoved: res.GroupsRemoved,
		Failures:      failures,
		Summary:       summary,
	}
}

// ScanRunView adds display fields to a history entry
type ScanRunView struct {
	*db.ScanRun
	StartedAgo string `json:"started_ago"`
	Duration   string `json:"duration,omitempty"`
}

func toScanRunView(run *db.ScanRun) ScanRunView {
	v := ScanRunView{ScanRun: run, StartedAgo: humanize.Time(run.StartedAt)}
	if run.CompletedAt != nil {
		v.Duration = formatDuration(run.CompletedAt.Sub(run.StartedAt))
	}
	return v
}

// JobView adds display fields to a scheduled job
type JobView struct {
	*db.ScheduledJob
	NextRunIn string `json:"next_run_in,omitempty"`
	LastRun   string `json:"last_run,omitempty"`
}

func toJobView(job *db.ScheduledJob) JobView {
	v := JobView{ScheduledJob: job}
	if job.NextRunAt != nil && job.Enabled {
		v.NextRunIn = humanize.Time(*job.NextRunAt)
	}
	if job.LastRunAt != nil {
		v.LastRun = humanize.Time(*job.LastRunAt)
	}
	return v
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	if d < time.Hour {
		return strconv.Itoa(int(d.Minutes())) + "m " + strconv.Itoa(int(d.Seconds())%60) + "s"
	}
	return strconv.Itoa(int(d.Hours())) + "h " + strconv.Itoa(int(d.Minutes())%60) + "m"
}
