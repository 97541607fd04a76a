package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chatship-io/chatship/internal/domain"
	"github.com/chatship-io/chatship/internal/ports"
)

// nopLogger implements ports.Logger for testing.
type nopLogger struct{}

func (nopLogger) Debug(msg string, fields ...ports.Field) {}
func (nopLogger) Info(msg string, fields ...ports.Field)  {}
func (nopLogger) Warn(msg string, fields ...ports.Field)  {}
func (nopLogger) Error(msg string, fields ...ports.Field) {}

func ackMsg(offset uint64) ports.SubscriptionMessage {
	return ports.SubscriptionMessage{Kind: ports.MessageAck, Offset: offset}
}

func eventMsg(offset uint64) ports.SubscriptionMessage {
	ev := testEvent(offset)
	return ports.SubscriptionMessage{Kind: ports.MessageEvent, Offset: offset, Event: &ev}
}

func gapMsg() ports.SubscriptionMessage {
	return ports.SubscriptionMessage{Kind: ports.MessageGap}
}

// subScript is the canned behavior of one subscription: deliver msgs in
// order, then return err, or block until ctx is done when err is nil.
type subScript struct {
	msgs []ports.SubscriptionMessage
	err  error
}

type fakeSub struct {
	script subScript
	idx    int
}

func (s *fakeSub) Next(ctx context.Context) (ports.SubscriptionMessage, error) {
	if s.idx < len(s.script.msgs) {
		msg := s.script.msgs[s.idx]
		s.idx++
		return msg, nil
	}
	if s.script.err != nil {
		return ports.SubscriptionMessage{}, s.script.err
	}
	<-ctx.Done()
	return ports.SubscriptionMessage{}, ctx.Err()
}

func (s *fakeSub) Close() error { return nil }

type pollStep struct {
	batch ports.EventBatch
	err   error
}

// fakeTransport plays back scripted subscriptions and polls.
type fakeTransport struct {
	mu              sync.Mutex
	pushUnsupported bool
	subs            []subScript
	subErr          error
	subscribeCalls  int
	polls           []pollStep
	pollCalls       int
	rangeFn         func(start, end uint64, limit int) (ports.RangeResult, error)
	rangeCalls      [][2]uint64
}

func (f *fakeTransport) Subscribe(ctx context.Context, offset uint64, scope domain.ScopeFilter) (ports.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.pushUnsupported {
		return nil, domain.ErrPushUnsupported
	}
	if f.subscribeCalls <= len(f.subs) {
		return &fakeSub{script: f.subs[f.subscribeCalls-1]}, nil
	}
	if f.subErr != nil {
		return nil, f.subErr
	}
	return &fakeSub{}, nil
}

func (f *fakeTransport) Poll(ctx context.Context, offset uint64, scope domain.ScopeFilter, timeout time.Duration) (ports.EventBatch, error) {
	f.mu.Lock()
	i := f.pollCalls
	f.pollCalls++
	f.mu.Unlock()
	if i < len(f.polls) {
		return f.polls[i].batch, f.polls[i].err
	}
	<-ctx.Done()
	return ports.EventBatch{}, ctx.Err()
}

func (f *fakeTransport) RangeRead(ctx context.Context, start, end uint64, limit int) (ports.RangeResult, error) {
	f.mu.Lock()
	f.rangeCalls = append(f.rangeCalls, [2]uint64{start, end})
	fn := f.rangeFn
	f.mu.Unlock()
	if fn == nil {
		return ports.RangeResult{}, nil
	}
	return fn(start, end, limit)
}

func (f *fakeTransport) SendEvent(ctx context.Context, senderID, recipientID string, content []byte, kind domain.EventKind) (domain.SendReceipt, error) {
	return domain.SendReceipt{}, nil
}

func (f *fakeTransport) CreateOrResumeUploadSession(ctx context.Context, sig domain.FileSignature, totalBytes int64, meta map[string]string) (domain.UploadGrant, error) {
	return domain.UploadGrant{}, nil
}

func (f *fakeTransport) UploadChunk(ctx context.Context, sessionID string, offset int64, chunk []byte) (ports.ChunkResult, error) {
	return ports.ChunkResult{}, nil
}

func (f *fakeTransport) subscribes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls
}

func newTestConnector(ft *fakeTransport, start uint64) (*Connector, *Cursor, *collector, *Dispatcher) {
	cursor := NewCursor("alice", start)
	disp := NewDispatcher()
	var c collector
	disp.Register(c.handle)

	conn := NewConnector(ft, cursor, disp, nopLogger{}, nil, Config{
		Scope:          domain.ScopeFilter{OwnerID: "alice"},
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     2 * time.Millisecond,
		RangeLimit:     100,
	})
	return conn, cursor, &c, disp
}

func offsetsEqual(got, want []uint64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestConnector_DeliversOrderedEvents(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{
			{msgs: []ports.SubscriptionMessage{ackMsg(0), eventMsg(1), eventMsg(2)}},
		},
	}
	conn, cursor, c, disp := newTestConnector(ft, 0)
	defer disp.Close()

	var gotOffset uint64
	offsetCh := make(chan uint64, 1)
	conn.OnOffset(func(off uint64) { offsetCh <- off })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	waitFor(t, func() bool { return offsetsEqual(c.offsets(), []uint64{1, 2}) }, "events not delivered")
	waitFor(t, func() bool { return conn.State() == StateConnected }, "state not Connected")

	gotOffset = <-offsetCh
	if gotOffset != 0 {
		t.Errorf("connection offset = %d, want 0", gotOffset)
	}
	if cursor.Offset() != 2 {
		t.Errorf("cursor = %d, want 2", cursor.Offset())
	}

	conn.Disconnect()
	if conn.State() != StateDisconnected {
		t.Errorf("state after Disconnect = %v, want Disconnected", conn.State())
	}
}

func TestConnector_ReconnectCatchesUpViaRangeRead(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{
			{
				msgs: []ports.SubscriptionMessage{ackMsg(0), eventMsg(1), eventMsg(2)},
				err:  domain.NewTransportError("read feed", errors.New("connection reset")),
			},
			{msgs: []ports.SubscriptionMessage{ackMsg(3)}},
		},
	}
	ft.rangeFn = func(start, end uint64, limit int) (ports.RangeResult, error) {
		return ports.RangeResult{
			Events:    []domain.StreamEvent{testEvent(3)},
			EndOffset: 3,
		}, nil
	}

	conn, cursor, c, disp := newTestConnector(ft, 0)
	defer disp.Close()
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	// Events 1, 2 arrive live, the feed drops, and the missed event 3 is
	// bridged by a range read on reconnect. No duplicates, no reordering.
	waitFor(t, func() bool { return offsetsEqual(c.offsets(), []uint64{1, 2, 3}) }, "events not delivered")

	ft.mu.Lock()
	ranges := append([][2]uint64{}, ft.rangeCalls...)
	ft.mu.Unlock()
	if len(ranges) != 1 || ranges[0] != [2]uint64{2, 3} {
		t.Errorf("range reads = %v, want [[2 3]]", ranges)
	}
	if cursor.Offset() != 3 {
		t.Errorf("cursor = %d, want 3", cursor.Offset())
	}
}

func TestConnector_GapTriggersResync(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{
			{msgs: []ports.SubscriptionMessage{ackMsg(0), eventMsg(1), gapMsg(), eventMsg(4)}},
		},
	}
	ft.rangeFn = func(start, end uint64, limit int) (ports.RangeResult, error) {
		return ports.RangeResult{
			Events:    []domain.StreamEvent{testEvent(2), testEvent(3)},
			EndOffset: 3,
		}, nil
	}

	conn, cursor, c, disp := newTestConnector(ft, 0)
	defer disp.Close()
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	waitFor(t, func() bool { return offsetsEqual(c.offsets(), []uint64{1, 2, 3, 4}) }, "events not delivered")

	ft.mu.Lock()
	ranges := append([][2]uint64{}, ft.rangeCalls...)
	ft.mu.Unlock()
	if len(ranges) != 1 || ranges[0] != [2]uint64{1, 0} {
		t.Errorf("range reads = %v, want [[1 0]]", ranges)
	}
	if cursor.Offset() != 4 {
		t.Errorf("cursor = %d, want 4", cursor.Offset())
	}
}

func TestConnector_PollFallbackDeduplicatesOverlap(t *testing.T) {
	ft := &fakeTransport{
		pushUnsupported: true,
		polls: []pollStep{
			{batch: ports.EventBatch{Events: []domain.StreamEvent{testEvent(1), testEvent(2)}, NextOffset: 2}},
			{batch: ports.EventBatch{Events: []domain.StreamEvent{testEvent(2), testEvent(3)}, NextOffset: 3}},
		},
	}

	conn, cursor, c, disp := newTestConnector(ft, 0)
	defer disp.Close()
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	// The second batch overlaps the first at offset 2; the duplicate must
	// be dropped, not redelivered.
	waitFor(t, func() bool { return offsetsEqual(c.offsets(), []uint64{1, 2, 3}) }, "events not delivered")
	waitFor(t, func() bool { return conn.State() == StateConnected }, "state not Connected")

	if cursor.Offset() != 3 {
		t.Errorf("cursor = %d, want 3", cursor.Offset())
	}
}

func TestConnector_RetriesExhausted(t *testing.T) {
	ft := &fakeTransport{
		subErr: domain.NewTransportError("subscribe", errors.New("connection refused")),
	}

	conn, _, _, disp := newTestConnector(ft, 0)
	defer disp.Close()

	errCh := make(chan error, 2)
	conn.OnError(func(err error) { errCh <- err })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	var got error
	select {
	case got = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal error surfaced")
	}

	if !errors.Is(got, domain.ErrRetriesExhausted) {
		t.Errorf("terminal error = %v, want ErrRetriesExhausted", got)
	}
	if calls := ft.subscribes(); calls != 3 {
		t.Errorf("subscribe attempts = %d, want 3", calls)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state = %v, want Disconnected", conn.State())
	}

	// Exactly one terminal error.
	select {
	case err := <-errCh:
		t.Errorf("second terminal error surfaced: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	// A fresh Connect starts a new retry budget.
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after terminal error: %v", err)
	}
	select {
	case got = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal error after reconnect")
	}
	if !errors.Is(got, domain.ErrRetriesExhausted) {
		t.Errorf("terminal error = %v, want ErrRetriesExhausted", got)
	}
}

func TestConnector_NonRetryableFailsImmediately(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{
			{
				msgs: []ports.SubscriptionMessage{ackMsg(0)},
				err:  &domain.ProtocolError{Reason: "bad frame"},
			},
		},
	}

	conn, _, _, disp := newTestConnector(ft, 0)
	defer disp.Close()

	errCh := make(chan error, 1)
	conn.OnError(func(err error) { errCh <- err })

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	var got error
	select {
	case got = <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("no terminal error surfaced")
	}

	var pe *domain.ProtocolError
	if !errors.As(got, &pe) {
		t.Errorf("terminal error = %v, want ProtocolError", got)
	}
	if calls := ft.subscribes(); calls != 1 {
		t.Errorf("subscribe attempts = %d, want 1", calls)
	}
}

func TestConnector_ConnectWhileConnected(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{{msgs: []ports.SubscriptionMessage{ackMsg(0)}}},
	}

	conn, _, _, disp := newTestConnector(ft, 0)
	defer disp.Close()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); !errors.Is(err, domain.ErrAlreadyConnected) {
		t.Errorf("second Connect() = %v, want ErrAlreadyConnected", err)
	}
}

func TestConnector_DisconnectWaitsForErrorHandler(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{
			{
				msgs: []ports.SubscriptionMessage{ackMsg(0)},
				err:  &domain.ProtocolError{Reason: "bad frame"},
			},
		},
	}

	conn, _, _, disp := newTestConnector(ft, 0)
	defer disp.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	conn.OnError(func(err error) {
		close(entered)
		<-release
	})

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	<-entered

	returned := make(chan struct{})
	go func() {
		conn.Disconnect()
		close(returned)
	}()

	// The handler is still executing; Disconnect must not return yet.
	select {
	case <-returned:
		t.Fatal("Disconnect returned while the error handler was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect did not return after the handler finished")
	}
}

func TestConnector_DisconnectStopsDelivery(t *testing.T) {
	ft := &fakeTransport{
		subs: []subScript{
			{msgs: []ports.SubscriptionMessage{ackMsg(0), eventMsg(1)}},
			{msgs: []ports.SubscriptionMessage{ackMsg(1), eventMsg(2)}},
		},
	}

	conn, _, c, disp := newTestConnector(ft, 0)
	defer disp.Close()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	waitFor(t, func() bool { return offsetsEqual(c.offsets(), []uint64{1}) }, "event not delivered")

	conn.Disconnect()
	conn.Disconnect() // idempotent

	before := len(c.offsets())
	time.Sleep(10 * time.Millisecond)
	if got := len(c.offsets()); got != before {
		t.Errorf("events delivered after Disconnect: %d -> %d", before, got)
	}

	// Reconnecting resumes from the cursor with a fresh generation.
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after Disconnect: %v", err)
	}
	defer conn.Disconnect()
	waitFor(t, func() bool { return offsetsEqual(c.offsets(), []uint64{1, 2}) }, "event not delivered after reconnect")
}
