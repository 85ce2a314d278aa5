package handlers

import (
	"net/http"

	"github.com/dustin/go-humanize"
)

// DashboardData is the status summary
type DashboardData struct {
	TotalFilesDeleted int64            `json:"total_files_deleted"`
	DeletedText       string           `json:"deleted_text"`
	RecentScans       int              `json:"recent_scans"`
	EnabledJobs       int              `json:"enabled_jobs"`
	Groups            int              `json:"groups"`
	Scanning          bool             `json:"scanning"`
	Progress          ScanProgressData `json:"progress"`
}

// Dashboard handles GET /api/stats
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DashboardData{
		TotalFilesDeleted: stats.TotalFilesDeleted,
		DeletedText:       humanize.Comma(stats.TotalFilesDeleted) + " files deleted",
		RecentScans:       stats.RecentScans,
		EnabledJobs:       stats.EnabledJobs,
		Groups:            len(h.session.ListGroups("")),
		Scanning:          h.session.Active(),
		Progress:          toProgressData(h.session.PollProgress()),
	})
}
