package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (CHATSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("service-url", os.Getenv("CHATSHIP_SERVICE_URL"), &cfg.ServiceURL)
	s.setString("ws-url", os.Getenv("CHATSHIP_WS_URL"), &cfg.WSURL)
	s.setString("auth-key", os.Getenv("CHATSHIP_AUTH_KEY"), &cfg.AuthKey)
	s.setString("user-id", os.Getenv("CHATSHIP_USER_ID"), &cfg.UserID)
	s.setString("peer-id", os.Getenv("CHATSHIP_PEER_ID"), &cfg.PeerID)
	s.setString("transport", os.Getenv("CHATSHIP_TRANSPORT"), &cfg.Transport)
	s.setString("state-dir", os.Getenv("CHATSHIP_STATE_DIR"), &cfg.StateDir)
	s.setString("metrics-addr", os.Getenv("CHATSHIP_METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setDuration("poll-timeout", os.Getenv("CHATSHIP_POLL_TIMEOUT"), &cfg.PollTimeout); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("CHATSHIP_HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setDuration("backoff-initial", os.Getenv("CHATSHIP_BACKOFF_INITIAL"), &cfg.BackoffInitial); err != nil {
		return err
	}
	if err := s.setDuration("backoff-max", os.Getenv("CHATSHIP_BACKOFF_MAX"), &cfg.BackoffMax); err != nil {
		return err
	}

	if err := s.setIntFromString("max-attempts", os.Getenv("CHATSHIP_MAX_ATTEMPTS"), &cfg.MaxAttempts); err != nil {
		return err
	}
	if err := s.setIntFromString("range-limit", os.Getenv("CHATSHIP_RANGE_LIMIT"), &cfg.RangeLimit); err != nil {
		return err
	}
	if err := s.setIntFromString("chunk-size", os.Getenv("CHATSHIP_CHUNK_SIZE"), &cfg.ChunkSize); err != nil {
		return err
	}
	if err := s.setIntFromString("chunk-retries", os.Getenv("CHATSHIP_CHUNK_RETRIES"), &cfg.ChunkRetries); err != nil {
		return err
	}
	if err := s.setIntFromString("upload-rate", os.Getenv("CHATSHIP_UPLOAD_RATE_BPS"), &cfg.UploadRateBps); err != nil {
		return err
	}

	return s.setUint64FromString("start-offset", os.Getenv("CHATSHIP_START_OFFSET"), &cfg.StartOffset)
}
