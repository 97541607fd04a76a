package cliconfig

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Console logger shared by the chatship commands. Library code logs
// through ports.Logger; zerolog surfaces only here and in the log adapter.
var logger zerolog.Logger

func init() {
	logger = zerolog.New(os.Stderr).
		Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// Logger returns the CLI console logger.
func Logger() zerolog.Logger {
	return logger
}
