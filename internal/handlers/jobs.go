package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lyallcooper/dupdeleter/internal/config"
	"github.com/lyallcooper/dupdeleter/internal/db"
)

type jobRequest struct {
	Name           string   `json:"name"`
	Root           string   `json:"root"`
	Strategy       string   `json:"strategy"`
	Threshold      *int     `json:"threshold"`
	Extensions     []string `json:"extensions"`
	CronExpression string   `json:"cron_expression"`
	Action         string   `json:"action"`
	Enabled        *bool    `json:"enabled"`
}

// Jobs handles GET /api/jobs
func (h *Handler) Jobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.db.ListScheduledJobs()
	if err != nil {
		writeErr(w, err)
		return
	}
	views := make([]JobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, toJobView(j))
	}
	writeJSON(w, http.StatusOK, views)
}

// parseJob validates a request into a job with its next run computed
func (h *Handler) parseJob(req jobRequest) (*db.ScheduledJob, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New("name is required")
	}

	root := strings.TrimSpace(req.Root)
	if root == "" {
		return nil, errors.New("root is required")
	}
	root, err := filepath.Abs(config.ExpandPath(root))
	if err != nil {
		return nil, fmt.Errorf("invalid root: %w", err)
	}
	if !h.cfg.IsPathAllowed(root) {
		return nil, fmt.Errorf("root %s is not in the allowed list", root)
	}

	if _, err := h.session.ResolveStrategy(req.Strategy, req.Threshold); err != nil {
		return nil, err
	}

	cronExpr := strings.TrimSpace(req.CronExpression)
	schedule, err := h.parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	action := req.Action
	switch action {
	case "":
		action = db.JobActionScan
	case db.JobActionScan, db.JobActionScanAutoPrune:
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}

	var exts []string
	for _, e := range req.Extensions {
		if e = strings.TrimSpace(e); e != "" {
			exts = append(exts, e)
		}
	}

	enabled := req.Enabled == nil || *req.Enabled
	job := &db.ScheduledJob{
		Name:           name,
		Root:           root,
		Strategy:       req.Strategy,
		Threshold:      req.Threshold,
		Extensions:     exts,
		CronExpression: cronExpr,
		Action:         action,
		Enabled:        enabled,
	}
	if enabled {
		next := schedule.Next(time.Now())
		job.NextRunAt = &next
	}
	return job, nil
}

// CreateJob handles POST /api/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	job, err := h.parseJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.db.CreateScheduledJob(job)
	if err != nil {
		writeErr(w, err)
		return
	}
	log.Info().Int64("job", created.ID).Str("name", created.Name).Msg("handlers: scheduled job created")
	writeJSON(w, http.StatusCreated, toJobView(created))
}

// UpdateJob handles PUT /api/jobs/{id}
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	var req jobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	job, err := h.parseJob(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job.ID = existing.ID

	if err := h.db.UpdateScheduledJob(job); err != nil {
		writeErr(w, err)
		return
	}
	updated, err := h.db.GetScheduledJob(job.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(updated))
}

// ToggleJob handles POST /api/jobs/{id}/toggle
func (h *Handler) ToggleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	job.Enabled = !job.Enabled
	job.NextRunAt = nil
	if job.Enabled {
		schedule, err := h.parser.Parse(job.CronExpression)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid cron expression: "+err.Error())
			return
		}
		next := schedule.Next(time.Now())
		job.NextRunAt = &next
	}
	if err := h.db.UpdateScheduledJob(job); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobView(job))
}

// DeleteJob handles DELETE /api/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if err := h.db.DeleteScheduledJob(job.ID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*db.ScheduledJob, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return nil, false
	}
	job, err := h.db.GetScheduledJob(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		writeErr(w, err)
		return nil, false
	}
	return job, true
}
