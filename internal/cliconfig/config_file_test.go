package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeConfigFile(t, `
service_url = "https://api.example.com"
auth_key = "file-key"
user_id = "alice"
peer_id = "bob"
transport = "poll"
poll_timeout = "10s"
http_timeout = "20s"
backoff_initial = "250ms"
backoff_max = "15s"
max_attempts = 5
range_limit = 200
chunk_size = 1048576
chunk_retries = 4
upload_rate_bps = 65536
state_dir = "/var/lib/chatship"
metrics_addr = ":9090"
`)

	fc, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("LoadFileConfig() error: %v", err)
	}

	if fc.ServiceURL != "https://api.example.com" {
		t.Errorf("ServiceURL = %v", fc.ServiceURL)
	}
	if fc.UserID != "alice" || fc.PeerID != "bob" {
		t.Errorf("UserID = %v, PeerID = %v", fc.UserID, fc.PeerID)
	}
	if fc.Transport != "poll" {
		t.Errorf("Transport = %v, want poll", fc.Transport)
	}
	if fc.PollTimeout != "10s" {
		t.Errorf("PollTimeout = %v, want 10s", fc.PollTimeout)
	}
	if fc.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %v, want 5", fc.MaxAttempts)
	}
	if fc.ChunkSize != 1048576 {
		t.Errorf("ChunkSize = %v, want 1048576", fc.ChunkSize)
	}
	if fc.UploadRateBps != 65536 {
		t.Errorf("UploadRateBps = %v, want 65536", fc.UploadRateBps)
	}
}

func TestLoadFileConfig_Missing(t *testing.T) {
	_, err := LoadFileConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err == nil {
		t.Error("LoadFileConfig() on missing file = nil error")
	}
}

func TestLoadFileConfig_Malformed(t *testing.T) {
	path := writeConfigFile(t, `service_url = [not toml`)
	if _, err := LoadFileConfig(path); err == nil {
		t.Error("LoadFileConfig() on malformed file = nil error")
	}
}

func TestApplyFileConfig(t *testing.T) {
	cfg := DefaultConfig()
	fc := FileConfig{
		ServiceURL:  "https://file.example.com",
		UserID:      "alice",
		Transport:   "poll",
		PollTimeout: "10s",
		MaxAttempts: 5,
		ChunkSize:   1024,
	}

	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	if cfg.ServiceURL != "https://file.example.com" {
		t.Errorf("ServiceURL = %v", cfg.ServiceURL)
	}
	if cfg.UserID != "alice" {
		t.Errorf("UserID = %v, want alice", cfg.UserID)
	}
	if cfg.PollTimeout != 10*time.Second {
		t.Errorf("PollTimeout = %v, want 10s", cfg.PollTimeout)
	}
	if cfg.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %v, want 5", cfg.MaxAttempts)
	}
}

func TestApplyFileConfig_FlagsTakePrecedence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServiceURL = "https://flag.example.com"
	cfg.MaxAttempts = 7

	fc := FileConfig{
		ServiceURL:  "https://file.example.com",
		MaxAttempts: 5,
		UserID:      "alice",
	}
	changed := map[string]bool{"service-url": true, "max-attempts": true}

	if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
		t.Fatalf("ApplyFileConfig() error: %v", err)
	}

	if cfg.ServiceURL != "https://flag.example.com" {
		t.Errorf("ServiceURL = %v, flag value should win", cfg.ServiceURL)
	}
	if cfg.MaxAttempts != 7 {
		t.Errorf("MaxAttempts = %v, flag value should win", cfg.MaxAttempts)
	}
	if cfg.UserID != "alice" {
		t.Errorf("UserID = %v, unchanged flag should take file value", cfg.UserID)
	}
}

func TestApplyFileConfig_BadDuration(t *testing.T) {
	cfg := DefaultConfig()
	fc := FileConfig{PollTimeout: "not-a-duration"}

	if err := ApplyFileConfig(&cfg, fc, map[string]bool{}); err == nil {
		t.Error("ApplyFileConfig() with bad duration = nil error")
	}
}

func TestFileExists(t *testing.T) {
	path := writeConfigFile(t, "")
	if !FileExists(path) {
		t.Error("FileExists() = false for existing file")
	}
	if FileExists(filepath.Join(t.TempDir(), "missing")) {
		t.Error("FileExists() = true for missing file")
	}
}
