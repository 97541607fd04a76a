package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the public API. Check with errors.Is.
var (
	// ErrAlreadyConnected is returned when Connect() is called on a
	// connector that already has a live or pending connection.
	ErrAlreadyConnected = errors.New("chatship: already connected")

	// ErrNotConnected is returned for operations requiring an active
	// connection.
	ErrNotConnected = errors.New("chatship: not connected")

	// ErrRetriesExhausted wraps the terminal error surfaced after the
	// capped attempt count is spent. Automatic retries halt; a fresh
	// Connect() (or a new upload session) is required to resume.
	ErrRetriesExhausted = errors.New("chatship: retry attempts exhausted")

	// ErrSessionNotFound indicates resume discovery found no matching
	// upload session. Treated as "start fresh", not a failure.
	ErrSessionNotFound = errors.New("chatship: upload session not found")

	// ErrSessionTerminal is returned when pause, resume or abort is called
	// on a session that already reached a terminal state.
	ErrSessionTerminal = errors.New("chatship: upload session already terminal")

	// ErrSessionNotActive is returned when pause or resume is called before
	// the session has entered transfer.
	ErrSessionNotActive = errors.New("chatship: upload session not active")

	// ErrPushUnsupported is returned by Subscribe on transports that only
	// provide the bounded-timeout poll data plane. The connector then
	// drives Poll with identical consumer-visible semantics.
	ErrPushUnsupported = errors.New("chatship: push subscription unsupported")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("chatship: invalid configuration")

	// ErrClientClosed is returned for operations on a closed client.
	ErrClientClosed = errors.New("chatship: client closed")
)

// TransportError wraps a connection-level failure: refused, reset, timed
// out. Transport errors are transient and retryable via backoff.
type TransportError struct {
	Op  string
	Err error
}

// NewTransportError wraps err as a retryable transport failure of op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed event or an invalid offset from the
// remote endpoint. Protocol errors are never retried.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "protocol: " + e.Reason }

// CapacityError reports a remote-side quota rejection. Surfaced to the
// caller, never retried.
type CapacityError struct {
	Detail string
}

func (e *CapacityError) Error() string { return "capacity exceeded: " + e.Detail }

// Retryable reports whether err may be retried with backoff. Only transport
// failures qualify; protocol and capacity errors surface immediately.
func Retryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
