package handlers

import (
	"net/http"
	"strconv"
)

// SettingsData describes the effective configuration
type SettingsData struct {
	RetentionDays       int      `json:"retention_days"`
	RetentionDaysLocked bool     `json:"retention_days_locked"`
	AllowedPaths        []string `json:"allowed_paths"`
	Strategy            string   `json:"strategy"`
	Extensions          []string `json:"extensions"`
	Workers             int      `json:"workers"`
}

type settingsRequest struct {
	RetentionDays int `json:"retention_days"`
}

// Settings handles GET /api/settings
func (h *Handler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settingsData())
}

// UpdateSettings handles PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if h.cfg.RetentionDaysFromEnv {
		writeError(w, http.StatusConflict, "retention is set by DUPDELETER_RETENTION_DAYS")
		return
	}

	var req settingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.RetentionDays < 1 || req.RetentionDays > 365 {
		writeError(w, http.StatusBadRequest, "retention_days must be between 1 and 365")
		return
	}

	if err := h.db.SetSetting("retention_days", strconv.Itoa(req.RetentionDays)); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settingsData())
}

func (h *Handler) settingsData() SettingsData {
	retention := h.cfg.RetentionDays
	if !h.cfg.RetentionDaysFromEnv {
		retention = h.db.GetSettingInt("retention_days", retention)
	}

	strategy := "invalid"
	if fc, err := h.cfg.StrategyConfig(); err == nil {
		strategy = fc.String()
	}

	paths := h.cfg.AllowedPaths
	if paths == nil {
		paths = []string{}
	}
	return SettingsData{
		RetentionDays:       retention,
		RetentionDaysLocked: h.cfg.RetentionDaysFromEnv,
		AllowedPaths:        paths,
		Strategy:            strategy,
		Extensions:          h.cfg.Extensions,
		Workers:             h.cfg.Workers,
	}
}
