package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/metrics"
	"github.com/chatship-io/chatship/internal/ports"
)

// Default paging and polling values.
const (
	DefaultPollTimeout = 25 * time.Second
	DefaultRangeLimit  = 500
)

// Config controls one Connector instance.
type Config struct {
	// Scope selects the stream: the owner's global stream or one peer
	// conversation.
	Scope domain.ScopeFilter

	// MaxAttempts caps consecutive failed connection attempts before one
	// terminal error is surfaced. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// BackoffInitial and BackoffMax bound the doubling reconnect delay.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// PollTimeout bounds each poll request on the fallback data plane.
	PollTimeout time.Duration

	// RangeLimit is the page size for catch-up and resync range reads.
	RangeLimit int
}

func (c *Config) setDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = DefaultBackoffInitial
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.RangeLimit <= 0 {
		c.RangeLimit = DefaultRangeLimit
	}
}

// ErrorHandler receives connection errors. The terminal error surfaced when
// the retry budget is exhausted wraps domain.ErrRetriesExhausted.
type ErrorHandler func(err error)

// OffsetHandler receives the authoritative offset acknowledged by the
// remote on each successful connect.
type OffsetHandler func(offset uint64)

// Connector owns the connection lifecycle for one stream scope: reconnect
// with backoff, gap detection, resync orchestration, and ordered,
// deduplicated delivery into the Dispatcher.
//
// A Connector permits one logical connection at a time; callers serialize
// concurrent Connect calls.
type Connector struct {
	transport ports.Transport
	cursor    *Cursor
	disp      *Dispatcher
	logger    ports.Logger
	metrics   *metrics.Stream
	cfg       Config

	onError  ErrorHandler
	onOffset OffsetHandler

	mu     sync.Mutex
	state  ConnectionState
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// NewConnector creates a connector delivering into disp and recording
// progress on cursor. metrics may be nil.
func NewConnector(transport ports.Transport, cursor *Cursor, disp *Dispatcher, logger ports.Logger, m *metrics.Stream, cfg Config) *Connector {
	cfg.setDefaults()
	return &Connector{
		transport: transport,
		cursor:    cursor,
		disp:      disp,
		logger:    logger,
		metrics:   m,
		cfg:       cfg,
		state:     StateDisconnected,
	}
}

// OnError registers the error handler. Set before Connect. Handlers run
// synchronously on the connection goroutine and must not call Connect or
// Disconnect.
func (c *Connector) OnError(fn ErrorHandler) { c.onError = fn }

// OnOffset registers the connection-offset handler. Set before Connect.
// Same invocation rules as OnError.
func (c *Connector) OnOffset(fn OffsetHandler) { c.onOffset = fn }

// State returns the current connection state.
func (c *Connector) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the stream in the background, beginning at the cursor
// position. Transport failures never surface synchronously; they reach the
// error handler, as one terminal error once the retry budget is spent.
// Connect fails only when a connection is already live or pending.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDisconnected {
		return domain.ErrAlreadyConnected
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	c.done = make(chan struct{})
	c.setStateLocked(StateConnecting)

	gen := c.gen
	done := c.done
	go func() {
		defer cancel()
		c.run(runCtx, gen, done)
	}()
	return nil
}

// Disconnect tears down the active subscription and cancels any pending
// reconnect timer. Idempotent. No event, offset or error handler fires
// after it returns; results of in-flight network operations are discarded.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	if c.state == StateDisconnected {
		// A terminal failure flips the state before its error handler runs;
		// the connection goroutine is still live until done closes.
		done := c.done
		c.mu.Unlock()
		if done != nil {
			<-done
		}
		c.disp.DiscardPending()
		return
	}
	c.gen++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	done := c.done
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if done != nil {
		<-done
	}
	c.disp.DiscardPending()
}

// run is the connection loop: subscribe (or poll), consume, and on any
// retryable failure back off and reconnect until the attempt cap is spent.
func (c *Connector) run(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)

	bo := NewBackoff(c.cfg.BackoffInitial, c.cfg.BackoffMax, c.cfg.MaxAttempts)

	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(gen, StateConnecting)

		err := c.consumeSubscription(ctx, gen, bo)
		if errors.Is(err, domain.ErrPushUnsupported) {
			err = c.consumePoll(ctx, gen, bo)
		}
		if err == nil || ctx.Err() != nil {
			// Clean shutdown via Disconnect or parent cancellation.
			return
		}

		if !domain.Retryable(err) {
			c.fail(gen, err)
			return
		}

		delay, ok := bo.Next()
		if !ok {
			c.fail(gen, fmt.Errorf("%w after %d attempts: %v",
				domain.ErrRetriesExhausted, bo.Attempts(), err))
			return
		}

		if c.metrics != nil {
			c.metrics.Reconnects.Inc()
		}
		c.logger.Warn("stream disconnected, reconnecting",
			ports.Err(err),
			ports.Int("attempt", bo.Attempts()),
			ports.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// consumeSubscription drives the push data plane until the feed fails or
// ctx is done. A nil return means ctx is done.
func (c *Connector) consumeSubscription(ctx context.Context, gen uint64, bo *Backoff) error {
	sub, err := c.transport.Subscribe(ctx, c.cursor.Offset(), c.cfg.Scope)
	if err != nil {
		return err
	}
	defer sub.Close()

	// The first message is the ack carrying the authoritative start offset.
	msg, err := sub.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if msg.Kind != ports.MessageAck {
		return &domain.ProtocolError{Reason: "subscription did not begin with ack"}
	}

	// Events between the cursor and the push start exist only on the log;
	// bridge them with the same range-read machinery used for gap resync.
	if msg.Offset > c.cursor.Offset() {
		if err := c.resync(ctx, gen, msg.Offset); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	c.setState(gen, StateConnected)
	bo.Reset()
	c.notifyOffset(gen, msg.Offset)

	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		switch msg.Kind {
		case ports.MessageEvent:
			if err := c.accept(gen, *msg.Event); err != nil {
				return err
			}
		case ports.MessageGap:
			if c.metrics != nil {
				c.metrics.Gaps.Inc()
			}
			c.setState(gen, StateResyncing)
			if err := c.resync(ctx, gen, 0); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			c.setState(gen, StateConnected)
		default:
			return &domain.ProtocolError{Reason: "unexpected ack mid-stream"}
		}
	}
}

// consumePoll drives the bounded-timeout poll data plane with the same
// ordering, dedup and backoff contract as the push path.
func (c *Connector) consumePoll(ctx context.Context, gen uint64, bo *Backoff) error {
	connected := false
	for {
		if ctx.Err() != nil {
			return nil
		}

		batch, err := c.transport.Poll(ctx, c.cursor.Offset(), c.cfg.Scope, c.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if !connected {
			c.setState(gen, StateConnected)
			bo.Reset()
			c.notifyOffset(gen, batch.NextOffset)
			connected = true
		}

		for _, ev := range batch.Events {
			if err := c.accept(gen, ev); err != nil {
				return err
			}
		}

		// The remote's next-poll position is authoritative; it moves past
		// compacted history the events alone would not cover.
		c.cursor.Advance(batch.NextOffset)
	}
}

// resync bridges a detected gap with explicit range reads from the cursor
// position. end == 0 reads to the log head. A further gap opening during
// resync re-enters through the reconnect loop, so the same attempt cap
// bounds the recursion.
func (c *Connector) resync(ctx context.Context, gen uint64, end uint64) error {
	if c.metrics != nil {
		c.metrics.Resyncs.Inc()
	}
	for {
		res, err := c.transport.RangeRead(ctx, c.cursor.Offset(), end, c.cfg.RangeLimit)
		if err != nil {
			return err
		}
		for _, ev := range res.Events {
			if err := c.accept(gen, ev); err != nil {
				return err
			}
		}
		if !res.HasMore {
			return nil
		}
	}
}

// accept validates, deduplicates and dispatches one event. Events at or
// below the cursor were already passed and are dropped; the cursor only
// ever advances.
func (c *Connector) accept(gen uint64, ev domain.StreamEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// Result of an operation that outlived a disconnect: discard.
		c.mu.Unlock()
		return nil
	}
	if !c.cursor.Advance(ev.Offset) {
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.Duplicates.Inc()
		}
		c.logger.Debug("dropped duplicate event",
			ports.Uint64("offset", ev.Offset),
			ports.String("id", ev.ID),
		)
		return nil
	}
	c.disp.Dispatch(ev)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.Dispatched.Inc()
	}
	return nil
}

// fail surfaces one terminal error and halts automatic retries. A fresh
// Connect call is required to resume.
func (c *Connector) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected)
	c.cancel = nil
	fn := c.onError
	c.mu.Unlock()

	c.logger.Error("stream terminally failed", ports.Err(err))
	if fn != nil {
		fn(err)
	}
}

func (c *Connector) notifyOffset(gen uint64, offset uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	fn := c.onOffset
	c.mu.Unlock()

	if fn != nil {
		fn(offset)
	}
}

// setState transitions gen's connection to s unless a newer generation took
// over.
func (c *Connector) setState(gen uint64, s ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.setStateLocked(s)
}

func (c *Connector) setStateLocked(s ConnectionState) {
	if !canTransition(c.state, s) {
		return
	}
	old := c.state
	c.state = s
	if c.metrics != nil {
		c.metrics.State.Set(float64(s))
	}
	c.logger.Debug("connection state changed",
		ports.String("from", old.String()),
		ports.String("to", s.String()),
	)
}
