package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestBuildVersionString(t *testing.T) {
	tests := []struct {
		version, commit, want string
	}{
		{"v1.2.0", "abcdef123456", "v1.2.0"},
		{"dev", "abcdef123456", "dev-abcdef1"},
		{"dev", "abc", "dev-abc"},
		{"dev", "", "dev-unknown"},
	}
	for _, tt := range tests {
		if got := buildVersionString(tt.version, tt.commit); got != tt.want {
			t.Errorf("buildVersionString(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("DUPDELETER_DB_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("DUPDELETER_STRATEGY", "exact")
	t.Setenv("DUPDELETER_LOG_LEVEL", "error")

	s, err := CreateServer(ServerConfig{Port: 18080, Version: "dev", Commit: "1234567890", DisableCSRF: true})
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	t.Cleanup(s.Cleanup)
	return s
}

func TestCreateServer(t *testing.T) {
	s := newTestServer(t)

	if s.HTTP.Addr != ":18080" {
		t.Errorf("Addr = %q, want :18080", s.HTTP.Addr)
	}
	if s.Version != "dev-1234567" {
		t.Errorf("Version = %q", s.Version)
	}

	rec := httptest.NewRecorder()
	s.HTTP.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/scans/progress", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /api/scans/progress = %d", rec.Code)
	}
}

func TestCreateServerInvalidStrategy(t *testing.T) {
	t.Setenv("DUPDELETER_DB_PATH", filepath.Join(t.TempDir(), "app.db"))
	t.Setenv("DUPDELETER_STRATEGY", "fuzzy")
	t.Setenv("DUPDELETER_LOG_LEVEL", "error")

	if _, err := CreateServer(ServerConfig{}); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestRetentionDays(t *testing.T) {
	s := newTestServer(t)

	if got := s.RetentionDays(); got != 30 {
		t.Errorf("default retention = %d, want 30", got)
	}

	if err := s.Database.SetSetting("retention_days", "7"); err != nil {
		t.Fatal(err)
	}
	if got := s.RetentionDays(); got != 7 {
		t.Errorf("stored retention = %d, want 7", got)
	}

	s.Database.SetSetting("retention_days", "9999")
	if got := s.RetentionDays(); got != 30 {
		t.Errorf("out of range retention = %d, want fallback 30", got)
	}

	s.Config.RetentionDaysFromEnv = true
	s.Config.RetentionDays = 3
	if got := s.RetentionDays(); got != 3 {
		t.Errorf("env retention = %d, want 3", got)
	}
}
