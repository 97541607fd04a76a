package domain

import (
	"encoding/json"
	"time"
)

// EventKind identifies the payload type of a StreamEvent.
type EventKind string

// Known event kinds.
const (
	KindText            EventKind = "text"
	KindFileMeta        EventKind = "file-meta"
	KindImage           EventKind = "image"
	KindTyping          EventKind = "typing"
	KindReadReceipt     EventKind = "read-receipt"
	KindDeliveryReceipt EventKind = "delivery-receipt"
	KindSystem          EventKind = "system"
	KindPresence        EventKind = "presence"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindText, KindFileMeta, KindImage, KindTyping,
		KindReadReceipt, KindDeliveryReceipt, KindSystem, KindPresence:
		return true
	}
	return false
}

// StreamEvent is one entry of the ordered event log. Offsets are assigned by
// the remote endpoint and are strictly increasing within one stream scope.
type StreamEvent struct {
	// ID is the remote-assigned event identifier.
	ID string `json:"id"`

	// Offset is the position of the event within the ordered log.
	Offset uint64 `json:"offset"`

	// Kind selects the payload schema.
	Kind EventKind `json:"kind"`

	// Payload holds the kind-specific fields, left opaque to this core.
	Payload json.RawMessage `json:"payload,omitempty"`

	// SenderID identifies the originating user.
	SenderID string `json:"sender_id"`

	// RecipientID identifies the receiving user or conversation.
	RecipientID string `json:"recipient_id,omitempty"`

	// Timestamp is the remote-assigned event time.
	Timestamp time.Time `json:"ts"`
}

// Validate checks the fields a well-formed remote event must carry.
// A violation is a ProtocolError: surfaced immediately, never retried.
func (e StreamEvent) Validate() error {
	if e.ID == "" {
		return &ProtocolError{Reason: "event missing id"}
	}
	if e.Offset == 0 {
		return &ProtocolError{Reason: "event offset must be positive"}
	}
	if !e.Kind.Valid() {
		return &ProtocolError{Reason: "unknown event kind " + string(e.Kind)}
	}
	return nil
}

// SendReceipt is the remote acknowledgement of an appended event.
type SendReceipt struct {
	ID        string    `json:"id"`
	Offset    uint64    `json:"offset"`
	Timestamp time.Time `json:"ts"`
}

// ScopeFilter narrows a stream to one peer conversation.
// An empty PeerID selects the owner's global stream.
type ScopeFilter struct {
	OwnerID string
	PeerID  string
}

// Key returns a stable identifier for the scope, used as the cursor scope
// and for caller-side cursor persistence.
func (s ScopeFilter) Key() string {
	if s.PeerID == "" {
		return s.OwnerID
	}
	return s.OwnerID + ":" + s.PeerID
}
