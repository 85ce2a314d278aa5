package types

// Scan status values carried by ScanProgress
const (
	StatusIdle      = "idle"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// ScanProgress is advisory scan state for pollers and SSE updates
type ScanProgress struct {
	CurrentPath  string `json:"current_path"`
	FilesScanned int64  `json:"files_scanned"`
	GroupsFound  int64  `json:"groups_found"`
	Warnings     int64  `json:"warnings"`
	Status       string `json:"status"`
	Done         bool   `json:"done"`
}
