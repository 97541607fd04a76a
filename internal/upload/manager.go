package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/metrics"
	"github.com/chatship-io/chatship/internal/ports"
	"github.com/chatship-io/chatship/internal/stream"
)

// Default transfer configuration values.
const (
	DefaultChunkSize    = 5 << 20 // 5MB
	DefaultChunkRetries = 5
	DefaultRetryInitial = 250 * time.Millisecond
	DefaultRetryMax     = 10 * time.Second
)

// Config controls the upload manager.
type Config struct {
	// ChunkSize is the fixed chunk size in bytes.
	ChunkSize int64

	// MaxChunkRetries caps retries of one chunk (and of session
	// establishment) before the session fails.
	MaxChunkRetries int

	// RetryInitial and RetryMax bound the doubling retry delay.
	RetryInitial time.Duration
	RetryMax     time.Duration

	// BytesPerSecond throttles outbound chunk bandwidth. Zero disables
	// throttling.
	BytesPerSecond int
}

func (c *Config) setDefaults() {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxChunkRetries <= 0 {
		c.MaxChunkRetries = DefaultChunkRetries
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = DefaultRetryInitial
	}
	if c.RetryMax <= 0 {
		c.RetryMax = DefaultRetryMax
	}
}

// Callbacks receives progress and terminal notifications for one session.
// They fire on the session's transfer goroutine. At most one terminal
// callback (success or error) fires per session, and none after Abort
// returns. Callbacks must not call back into the session.
type Callbacks struct {
	OnProgress func(percent float64, uploaded, total int64)
	OnSuccess  func(sessionID, location string)
	OnError    func(err error)
}

// Manager drives resumable chunked file transfers over the shared
// transport. metrics may be nil.
type Manager struct {
	transport ports.Transport
	logger    ports.Logger
	metrics   *metrics.Upload
	cfg       Config
	limiter   *rate.Limiter
}

// NewManager creates an upload manager.
func NewManager(transport ports.Transport, logger ports.Logger, m *metrics.Upload, cfg Config) *Manager {
	cfg.setDefaults()
	mgr := &Manager{
		transport: transport,
		logger:    logger,
		metrics:   m,
		cfg:       cfg,
	}
	if cfg.BytesPerSecond > 0 {
		burst := int(cfg.ChunkSize)
		if burst < cfg.BytesPerSecond {
			burst = cfg.BytesPerSecond
		}
		mgr.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSecond), burst)
	}
	return mgr
}

// SetRate adjusts the outbound bandwidth cap on a throttled manager.
// Takes effect on the next chunk; zero or negative lifts the cap. No-op
// when the manager was created unthrottled.
func (m *Manager) SetRate(bytesPerSecond int) {
	if m.limiter == nil {
		return
	}
	if bytesPerSecond <= 0 {
		m.limiter.SetLimit(rate.Inf)
		return
	}
	m.limiter.SetLimit(rate.Limit(bytesPerSecond))
}

// Session is the handle on one upload: pause, resume, abort, and the
// session id once the remote assigns it.
type Session struct {
	m    *Manager
	path string
	sig  domain.FileSignature
	meta map[string]string
	cb   Callbacks

	mu       sync.Mutex
	cond     *sync.Cond
	state    domain.UploadState
	id       string
	uploaded int64
	total    int64
	reprobe  bool

	// cbMu serializes callback delivery against Abort. Held around the
	// terminal-state check and the invocation as one unit; acquired before
	// mu everywhere both are taken.
	cbMu sync.Mutex

	cancel context.CancelFunc
}

// Start begins (or resumes) uploading the file at path. The returned
// session is already running; callbacks report progress and the terminal
// outcome. Start fails synchronously only on local file errors.
func (m *Manager) Start(ctx context.Context, path string, meta map[string]string, cb Callbacks) (*Session, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload file: %w", err)
	}

	if meta == nil {
		meta = make(map[string]string)
	}
	if _, ok := meta["client_ref"]; !ok {
		meta["client_ref"] = uuid.NewString()
	}

	s := &Session{
		m:     m,
		path:  path,
		sig:   Signature(path, fi.Size()),
		meta:  meta,
		cb:    cb,
		state: domain.UploadPending,
		total: fi.Size(),
	}
	s.cond = sync.NewCond(&s.mu)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if m.metrics != nil {
		m.metrics.Started.Inc()
	}
	go func() {
		defer cancel()
		s.run(runCtx)
	}()
	return s, nil
}

// ID returns the remote-assigned session id, empty until known.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current session state.
func (s *Session) State() domain.UploadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns acknowledged and total bytes.
func (s *Session) Progress() (uploaded, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploaded, s.total
}

// Pause suspends chunk transfer after the in-flight chunk, if any,
// completes. Pausing a paused session is a no-op; only a session in
// transfer can pause.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.UploadPaused {
		return nil
	}
	if !s.state.CanTransition(domain.UploadPaused) {
		if s.state.Terminal() {
			return domain.ErrSessionTerminal
		}
		return domain.ErrSessionNotActive
	}
	s.state = domain.UploadPaused
	return nil
}

// Resume continues a paused session. The remote offset is re-probed first:
// a chunk acknowledged while pausing may have advanced it past local
// bookkeeping.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case domain.UploadUploading:
		return nil
	case domain.UploadPaused:
		s.state = domain.UploadUploading
		s.reprobe = true
		s.cond.Broadcast()
		return nil
	default:
		if s.state.Terminal() {
			return domain.ErrSessionTerminal
		}
		return domain.ErrSessionNotActive
	}
}

// Abort terminates the session irreversibly. No progress, success or error
// callback fires after Abort returns; a result arriving from an in-flight
// chunk is discarded. Uploading the same file again requires a brand-new
// session.
func (s *Session) Abort() error {
	s.mu.Lock()
	if s.state == domain.UploadAborted {
		s.mu.Unlock()
		s.drainCallbacks()
		return nil
	}
	if !s.state.CanTransition(domain.UploadAborted) {
		s.mu.Unlock()
		return domain.ErrSessionTerminal
	}
	s.state = domain.UploadAborted
	s.cond.Broadcast()
	s.mu.Unlock()

	s.cancel()
	s.drainCallbacks()
	if s.m.metrics != nil {
		s.m.metrics.Aborted.Inc()
	}
	return nil
}

// drainCallbacks waits out a callback already in delivery. Once it returns,
// any later delivery attempt observes the terminal state and skips.
func (s *Session) drainCallbacks() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
}

// run is the transfer loop. It owns all callback invocations.
func (s *Session) run(ctx context.Context) {
	// Wake a paused transfer when the context ends so the loop can exit.
	go func() {
		<-ctx.Done()
		s.cond.Broadcast()
	}()

	f, err := os.Open(s.path)
	if err != nil {
		s.fail(fmt.Errorf("open upload file: %w", err))
		return
	}
	defer f.Close()

	grant, err := s.establish(ctx)
	if err != nil {
		s.fail(err)
		return
	}

	s.mu.Lock()
	s.id = grant.SessionID
	s.uploaded = grant.ResumeOffset
	if s.state == domain.UploadPending {
		s.state = domain.UploadUploading
	}
	s.mu.Unlock()

	if _, err := f.Seek(grant.ResumeOffset, io.SeekStart); err != nil {
		s.fail(fmt.Errorf("seek to resume offset: %w", err))
		return
	}

	buf := make([]byte, s.m.cfg.ChunkSize)
	renewed := false
	for {
		if !s.waitUploading(ctx) {
			return
		}

		if s.takeReprobe() {
			grant, err := s.establish(ctx)
			if err != nil {
				s.fail(err)
				return
			}
			s.mu.Lock()
			s.id = grant.SessionID
			s.uploaded = grant.ResumeOffset
			s.mu.Unlock()
			if _, err := f.Seek(grant.ResumeOffset, io.SeekStart); err != nil {
				s.fail(fmt.Errorf("seek to resume offset: %w", err))
				return
			}
		}

		uploaded, total := s.Progress()
		if uploaded >= total {
			// Resume discovery reported every byte already received; an
			// empty chunk collects the completion acknowledgement.
			res, err := s.sendChunk(ctx, uploaded, nil)
			if err != nil {
				if s.renewOnExpiry(err, &renewed) {
					continue
				}
				s.finishSendError(ctx, err)
				return
			}
			s.complete(ctx, res.Location)
			return
		}

		n, err := f.Read(buf)
		if n == 0 {
			if err == nil {
				continue
			}
			s.fail(fmt.Errorf("read upload file: %w", err))
			return
		}

		if s.m.limiter != nil {
			if err := s.m.limiter.WaitN(ctx, n); err != nil {
				return
			}
		}

		res, err := s.sendChunk(ctx, uploaded, buf[:n])
		if err != nil {
			if s.renewOnExpiry(err, &renewed) {
				continue
			}
			s.finishSendError(ctx, err)
			return
		}

		s.mu.Lock()
		s.uploaded = res.NextOffset
		uploaded, total = s.uploaded, s.total
		s.mu.Unlock()

		if s.m.metrics != nil {
			s.m.metrics.BytesUploaded.Add(float64(n))
		}
		s.fireProgress(uploaded, total)

		if res.Completed {
			s.complete(ctx, res.Location)
			return
		}
		if uploaded >= total {
			s.fail(&domain.ProtocolError{
				Reason: "remote did not complete session at final offset",
			})
			return
		}
	}
}

// establish creates or resumes the remote session, retrying transient
// failures with bounded backoff.
func (s *Session) establish(ctx context.Context) (domain.UploadGrant, error) {
	bo := stream.NewBackoff(s.m.cfg.RetryInitial, s.m.cfg.RetryMax, s.m.cfg.MaxChunkRetries)
	for {
		grant, err := s.m.transport.CreateOrResumeUploadSession(ctx, s.sig, s.total, s.meta)
		if err == nil {
			return grant, nil
		}
		if ctx.Err() != nil {
			return domain.UploadGrant{}, ctx.Err()
		}
		if !domain.Retryable(err) {
			return domain.UploadGrant{}, err
		}

		delay, ok := bo.Next()
		if !ok {
			return domain.UploadGrant{}, fmt.Errorf("%w establishing session: %v",
				domain.ErrRetriesExhausted, err)
		}
		s.m.logger.Warn("upload session probe failed, retrying",
			ports.Err(err),
			ports.Int("attempt", bo.Attempts()),
			ports.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return domain.UploadGrant{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// sendChunk transmits one chunk, retrying transient transport failures with
// doubling backoff inside the chunk-transfer primitive. Only an exhausted
// retry budget or a non-retryable error escapes.
func (s *Session) sendChunk(ctx context.Context, offset int64, chunk []byte) (ports.ChunkResult, error) {
	bo := stream.NewBackoff(s.m.cfg.RetryInitial, s.m.cfg.RetryMax, s.m.cfg.MaxChunkRetries)
	for {
		res, err := s.m.transport.UploadChunk(ctx, s.ID(), offset, chunk)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return ports.ChunkResult{}, ctx.Err()
		}
		if !domain.Retryable(err) {
			return ports.ChunkResult{}, err
		}

		if s.m.metrics != nil {
			s.m.metrics.ChunkRetries.Inc()
		}
		delay, ok := bo.Next()
		if !ok {
			return ports.ChunkResult{}, fmt.Errorf("%w sending chunk at offset %d: %v",
				domain.ErrRetriesExhausted, offset, err)
		}
		s.m.logger.Warn("chunk send failed, retrying",
			ports.Err(err),
			ports.Int64("offset", offset),
			ports.Int("attempt", bo.Attempts()),
			ports.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ports.ChunkResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// waitUploading blocks while the session is paused. It returns false when
// the session reached a terminal state or the context ended.
func (s *Session) waitUploading(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return false
		}
		switch s.state {
		case domain.UploadUploading:
			return true
		case domain.UploadPaused:
			s.cond.Wait()
		default:
			return false
		}
	}
}

// renewOnExpiry handles a session that expired server side mid-transfer:
// one round of resume discovery establishes a fresh session before the
// error is allowed to become terminal.
func (s *Session) renewOnExpiry(err error, renewed *bool) bool {
	if !errors.Is(err, domain.ErrSessionNotFound) || *renewed {
		return false
	}
	*renewed = true
	s.m.logger.Warn("upload session expired, renewing",
		ports.String("session", s.ID()),
		ports.Err(err),
	)
	s.mu.Lock()
	s.reprobe = true
	s.mu.Unlock()
	return true
}

func (s *Session) takeReprobe() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reprobe
	s.reprobe = false
	return r
}

// finishSendError distinguishes cancellation (abort or parent context,
// nothing fires) from a genuine transfer failure.
func (s *Session) finishSendError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.fail(err)
}

// fireProgress reports chunk completion unless the session already reached
// a terminal state: in-flight completions racing an abort are discarded.
// The delivery mutex spans the terminal check and the invocation, so an
// Abort observed terminal here stays terminal for the whole delivery.
func (s *Session) fireProgress(uploaded, total int64) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	terminal := s.state.Terminal()
	s.mu.Unlock()
	if terminal || s.cb.OnProgress == nil {
		return
	}

	percent := 100.0
	if total > 0 {
		percent = 100 * float64(uploaded) / float64(total)
	}
	s.cb.OnProgress(percent, uploaded, total)
}

// complete moves the session to Completed and fires the success callback
// exactly once. A completion racing an abort is discarded by the
// transition table.
func (s *Session) complete(ctx context.Context, location string) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	for s.state == domain.UploadPaused && ctx.Err() == nil {
		// The final chunk was in flight when Pause was called; completion
		// waits until the caller resumes or aborts.
		s.cond.Wait()
	}
	if !s.state.CanTransition(domain.UploadCompleted) {
		s.mu.Unlock()
		return
	}
	s.state = domain.UploadCompleted
	id := s.id
	s.mu.Unlock()

	if s.m.metrics != nil {
		s.m.metrics.Completed.Inc()
	}
	s.m.logger.Info("upload completed",
		ports.String("session", id),
		ports.String("location", location),
	)
	if s.cb.OnSuccess != nil {
		s.cb.OnSuccess(id, location)
	}
}

// fail moves the session to Failed and fires the error callback exactly
// once. Failures racing an abort are discarded by the transition table.
func (s *Session) fail(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}

	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	s.mu.Lock()
	if !s.state.CanTransition(domain.UploadFailed) {
		s.mu.Unlock()
		return
	}
	s.state = domain.UploadFailed
	id := s.id
	s.mu.Unlock()

	if s.m.metrics != nil {
		s.m.metrics.Failed.Inc()
	}
	s.m.logger.Error("upload failed",
		ports.String("session", id),
		ports.Err(err),
	)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
}
