package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultServiceURL is the default chat transfer endpoint.
const DefaultServiceURL = "https://api.chatship.io"

// Transport mode names accepted by the --transport flag.
const (
	TransportWS   = "ws"
	TransportPoll = "poll"
)

// Config holds CLI configuration for chatship.
type Config struct {
	ServiceURL string
	WSURL      string
	AuthKey    string

	UserID string
	PeerID string

	Transport   string
	StartOffset uint64

	PollTimeout    time.Duration
	HTTPTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxAttempts    int
	RangeLimit     int

	ChunkSize     int
	ChunkRetries  int
	UploadRateBps int

	StateDir    string
	MetricsAddr string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ServiceURL:     DefaultServiceURL,
		Transport:      TransportWS,
		PollTimeout:    25 * time.Second,
		HTTPTimeout:    30 * time.Second,
		BackoffInitial: 500 * time.Millisecond,
		BackoffMax:     30 * time.Second,
		MaxAttempts:    10,
		RangeLimit:     500,
		ChunkSize:      5 << 20, // 5MB
		ChunkRetries:   5,
		StateDir:       "", // Derived during Validate
		AuthKey:        os.Getenv("CHATSHIP_AUTH_KEY"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user-id is required")
	}

	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}

	// Ensure no trailing slash
	if len(c.ServiceURL) > 0 && c.ServiceURL[len(c.ServiceURL)-1] == '/' {
		c.ServiceURL = c.ServiceURL[:len(c.ServiceURL)-1]
	}

	switch c.Transport {
	case TransportWS, TransportPoll:
	case "":
		c.Transport = TransportWS
	default:
		return fmt.Errorf("transport must be %q or %q", TransportWS, TransportPoll)
	}

	if c.WSURL == "" {
		c.WSURL = deriveWSURL(c.ServiceURL)
	}

	if c.StateDir == "" {
		if h, err := os.UserHomeDir(); err == nil {
			c.StateDir = h + "/.chatship/state"
		} else {
			return fmt.Errorf("state-dir is required when no home directory is available")
		}
	}

	if c.PollTimeout <= 0 {
		return fmt.Errorf("poll timeout must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}

	return nil
}

// deriveWSURL maps the HTTP service URL onto the websocket stream endpoint.
func deriveWSURL(serviceURL string) string {
	ws := serviceURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/v1/stream/subscribe"
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setUint64FromString parses a string to uint64 and sets the destination.
// Used for environment variables that come as strings.
func (s *configSetter) setUint64FromString(flag, value string, dst *uint64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	u, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = u
	return nil
}
