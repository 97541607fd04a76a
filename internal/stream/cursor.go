package stream

import "sync"

// Cursor is the in-memory offset ledger for one stream scope: the sole
// authoritative record of "last synchronized position". It lives only for
// the session; persistence across process restarts is a caller concern.
//
// Two producers write it, live push delivery and resync range reads, so
// every mutation serializes on the internal mutex and a lower offset can
// never overwrite a higher one already recorded.
type Cursor struct {
	mu         sync.Mutex
	scope      string
	lastOffset uint64
	versionTag string
}

// NewCursor creates a cursor for the given scope starting at offset start.
func NewCursor(scope string, start uint64) *Cursor {
	return &Cursor{scope: scope, lastOffset: start}
}

// Scope returns the stream scope identifier.
func (c *Cursor) Scope() string { return c.scope }

// Offset returns the last synchronized offset.
func (c *Cursor) Offset() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastOffset
}

// Advance records offset as synchronized. It is a no-op returning false
// when offset is not beyond the current position: the event was already
// passed and must be dropped, not redispatched.
func (c *Cursor) Advance(offset uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset <= c.lastOffset {
		return false
	}
	c.lastOffset = offset
	return true
}

// Reset forces the cursor to offset. Only resync orchestration uses this,
// after the remote reported an authoritative position that supersedes the
// local ledger.
func (c *Cursor) Reset(offset uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastOffset = offset
}

// SetVersionTag records the version tag reported by the remote.
func (c *Cursor) SetVersionTag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versionTag = tag
}

// VersionTag returns the last recorded version tag.
func (c *Cursor) VersionTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versionTag
}
