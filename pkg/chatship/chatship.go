package chatship

import (
	"context"
	"fmt"
	"sync"
	"time"

	logAdapter "github.com/chatship-io/chatship/internal/adapters/log"
	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/metrics"
	"github.com/chatship-io/chatship/internal/ports"
	"github.com/chatship-io/chatship/internal/stream"
	"github.com/chatship-io/chatship/internal/upload"
)

// Re-export domain types so embedders never import internal packages.
type (
	// Event is one entry of the remote event log.
	Event = domain.StreamEvent

	// EventKind classifies an Event.
	EventKind = domain.EventKind

	// SendReceipt acknowledges an appended event.
	SendReceipt = domain.SendReceipt

	// Transport is the wire-level dependency a Client runs over.
	Transport = ports.Transport

	// Logger is the structured logging interface.
	Logger = ports.Logger

	// UploadSession is a live file transfer handle.
	UploadSession = upload.Session

	// UploadCallbacks carries progress and terminal notifications for one
	// upload session.
	UploadCallbacks = upload.Callbacks
)

// Config holds the client configuration.
type Config struct {
	// UserID identifies the local user; it scopes the stream and stamps
	// outgoing events. Required.
	UserID string

	// PeerID narrows the stream to one conversation. Empty means the
	// user's whole stream.
	PeerID string

	// StartOffset is the cursor position to resume from, typically the
	// persisted offset of a previous run.
	StartOffset uint64

	// MaxAttempts, BackoffInitial and BackoffMax control reconnect retries.
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// PollTimeout bounds each request on the poll fallback data plane.
	PollTimeout time.Duration

	// RangeLimit pages catch-up and resync range reads.
	RangeLimit int

	// ChunkSize, ChunkRetries and UploadRateBps control file uploads.
	ChunkSize     int
	ChunkRetries  int
	UploadRateBps int
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidConfig)
	}
	return nil
}

// Client is the embeddable chat transport client. Use New to create an
// instance, then Connect to begin streaming.
type Client struct {
	cfg       Config
	transport ports.Transport
	logger    ports.Logger

	cursor    *stream.Cursor
	disp      *stream.Dispatcher
	connector *stream.Connector
	uploads   *upload.Manager

	mu     sync.Mutex
	closed bool
}

// New creates a new Client over transport.
// The client starts disconnected; call Connect to begin streaming.
func New(transport ports.Transport, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var logger ports.Logger
	if o.logger != nil {
		logger = o.logger
	} else {
		logger = logAdapter.NewNoopLogger()
	}

	var streamMetrics *metrics.Stream
	var uploadMetrics *metrics.Upload
	if o.registry != nil {
		streamMetrics = metrics.NewStream(o.registry)
		uploadMetrics = metrics.NewUpload(o.registry)
	}

	scope := domain.ScopeFilter{OwnerID: cfg.UserID, PeerID: cfg.PeerID}

	cursor := stream.NewCursor(scope.Key(), cfg.StartOffset)
	disp := stream.NewDispatcher()
	connector := stream.NewConnector(transport, cursor, disp, logger, streamMetrics, stream.Config{
		Scope:          scope,
		MaxAttempts:    cfg.MaxAttempts,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		PollTimeout:    cfg.PollTimeout,
		RangeLimit:     cfg.RangeLimit,
	})

	if o.eventHandler != nil {
		handler := o.eventHandler
		connector.OnError(handler.OnStreamError)
		connector.OnOffset(handler.OnConnected)
	}

	uploads := upload.NewManager(transport, logger, uploadMetrics, upload.Config{
		ChunkSize:       int64(cfg.ChunkSize),
		MaxChunkRetries: cfg.ChunkRetries,
		BytesPerSecond:  cfg.UploadRateBps,
	})

	return &Client{
		cfg:       cfg,
		transport: transport,
		logger:    logger,
		cursor:    cursor,
		disp:      disp,
		connector: connector,
		uploads:   uploads,
	}, nil
}

// Subscribe registers a handler for stream events and returns its
// unregister function. Handlers receive events strictly in offset order,
// each exactly once. Safe to call before or after Connect.
func (c *Client) Subscribe(handler func(Event)) func() {
	id := c.disp.Register(handler)
	return func() { c.disp.Unregister(id) }
}

// Connect opens the stream in the background from the current offset.
// Transport failures surface through the EventHandler, not here.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrClientClosed
	}
	return c.connector.Connect(ctx)
}

// Disconnect tears down the stream. Idempotent; no handler fires after it
// returns.
func (c *Client) Disconnect() {
	c.connector.Disconnect()
}

// State returns the current connection state.
func (c *Client) State() stream.ConnectionState {
	return c.connector.State()
}

// Offset returns the highest contiguous offset passed to subscribers,
// suitable for persisting and feeding back as StartOffset.
func (c *Client) Offset() uint64 {
	return c.cursor.Offset()
}

// Send appends one event to the log and returns the remote's receipt.
func (c *Client) Send(ctx context.Context, recipientID string, content []byte, kind EventKind) (SendReceipt, error) {
	return c.transport.SendEvent(ctx, c.cfg.UserID, recipientID, content, kind)
}

// Upload starts a resumable file transfer and returns its session handle.
// An interrupted transfer of the same file resumes where the remote left
// off.
func (c *Client) Upload(ctx context.Context, path string, meta map[string]string, cb UploadCallbacks) (*UploadSession, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, domain.ErrClientClosed
	}
	c.mu.Unlock()
	return c.uploads.Start(ctx, path, meta, cb)
}

// SetUploadRate adjusts the upload bandwidth cap at runtime. Only
// effective when UploadRateBps was set at construction.
func (c *Client) SetUploadRate(bytesPerSecond int) {
	c.uploads.SetRate(bytesPerSecond)
}

// Close disconnects the stream and releases the dispatcher. The client is
// unusable afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.connector.Disconnect()
	c.disp.Close()
}
