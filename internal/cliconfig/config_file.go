package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	ServiceURL     string `toml:"service_url"`
	WSURL          string `toml:"ws_url"`
	AuthKey        string `toml:"auth_key"`
	UserID         string `toml:"user_id"`
	PeerID         string `toml:"peer_id"`
	Transport      string `toml:"transport"`
	PollTimeout    string `toml:"poll_timeout"`
	HTTPTimeout    string `toml:"http_timeout"`
	BackoffInitial string `toml:"backoff_initial"`
	BackoffMax     string `toml:"backoff_max"`
	MaxAttempts    int    `toml:"max_attempts"`
	RangeLimit     int    `toml:"range_limit"`
	ChunkSize      int    `toml:"chunk_size"`
	ChunkRetries   int    `toml:"chunk_retries"`
	UploadRateBps  int    `toml:"upload_rate_bps"`
	StateDir       string `toml:"state_dir"`
	MetricsAddr    string `toml:"metrics_addr"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.chatship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".chatship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("ws-url", fc.WSURL, &cfg.WSURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("user-id", fc.UserID, &cfg.UserID)
	s.setString("peer-id", fc.PeerID, &cfg.PeerID)
	s.setString("transport", fc.Transport, &cfg.Transport)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	if err := s.setDuration("poll-timeout", fc.PollTimeout, &cfg.PollTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("backoff-initial", fc.BackoffInitial, &cfg.BackoffInitial); err != nil {
		return err
	}
	if err := s.setDuration("backoff-max", fc.BackoffMax, &cfg.BackoffMax); err != nil {
		return err
	}

	s.setInt("max-attempts", fc.MaxAttempts, &cfg.MaxAttempts)
	s.setInt("range-limit", fc.RangeLimit, &cfg.RangeLimit)
	s.setInt("chunk-size", fc.ChunkSize, &cfg.ChunkSize)
	s.setInt("chunk-retries", fc.ChunkRetries, &cfg.ChunkRetries)
	s.setInt("upload-rate", fc.UploadRateBps, &cfg.UploadRateBps)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
