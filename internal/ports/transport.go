package ports

import (
	"context"
	"time"

	"github.com/chatship-io/chatship/internal/domain"
)

// MessageKind discriminates subscription messages.
type MessageKind int

const (
	// MessageAck is the first message on a subscription. Offset carries the
	// authoritative position the push feed begins after.
	MessageAck MessageKind = iota

	// MessageEvent carries one stream event.
	MessageEvent

	// MessageGap signals that delivery of all events since the subscribed
	// offset cannot be guaranteed; the consumer must range-read to catch up.
	MessageGap
)

// SubscriptionMessage is one delivery from a push subscription.
type SubscriptionMessage struct {
	Kind   MessageKind
	Offset uint64              // set for MessageAck
	Event  *domain.StreamEvent // set for MessageEvent
}

// Subscription is a live push feed of stream events.
type Subscription interface {
	// Next blocks until the next message arrives, ctx is done, or the feed
	// fails. A failed feed returns a retryable TransportError; the caller
	// reconnects.
	Next(ctx context.Context) (SubscriptionMessage, error)

	// Close tears down the subscription. Safe to call more than once.
	Close() error
}

// EventBatch is one page of events returned by Poll.
type EventBatch struct {
	Events     []domain.StreamEvent
	NextOffset uint64
	HasMore    bool
}

// RangeResult is one page of events returned by RangeRead.
type RangeResult struct {
	Events      []domain.StreamEvent
	StartOffset uint64
	EndOffset   uint64
	TotalOffset uint64
	HasMore     bool
}

// ChunkResult acknowledges one uploaded chunk. The remote endpoint is
// authoritative: a deduplicated retry still advances NextOffset.
type ChunkResult struct {
	NextOffset int64
	Completed  bool
	Location   string // set when Completed
}

// Transport abstracts the two data-plane styles used to reach the remote
// transfer endpoint. Implementations that cannot provide a push feed return
// domain.ErrPushUnsupported from Subscribe; consumers then drive Poll, which
// carries identical ordering guarantees.
type Transport interface {
	// Subscribe opens a push feed of events after offset for the given
	// scope. The first message on the feed is a MessageAck.
	Subscribe(ctx context.Context, offset uint64, scope domain.ScopeFilter) (Subscription, error)

	// RangeRead returns events in (start, end], up to limit per page.
	// end == 0 means no upper bound. Used for initial catch-up and for gap
	// resync.
	RangeRead(ctx context.Context, start, end uint64, limit int) (RangeResult, error)

	// Poll returns events after offset, waiting up to timeout when none are
	// available so a caller with no new data regains control
	// deterministically.
	Poll(ctx context.Context, offset uint64, scope domain.ScopeFilter, timeout time.Duration) (EventBatch, error)

	// SendEvent appends one event to the log and returns the
	// remote-assigned id, offset and timestamp.
	SendEvent(ctx context.Context, senderID, recipientID string, content []byte, kind domain.EventKind) (domain.SendReceipt, error)

	// CreateOrResumeUploadSession probes for a resumable session matching
	// sig and creates a fresh one if none exists. A probe miss is not an
	// error.
	CreateOrResumeUploadSession(ctx context.Context, sig domain.FileSignature, totalBytes int64, meta map[string]string) (domain.UploadGrant, error)

	// UploadChunk transmits one chunk at the given byte offset.
	UploadChunk(ctx context.Context, sessionID string, offset int64, chunk []byte) (ChunkResult, error)
}
