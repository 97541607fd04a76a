// Package stream is the application layer of the event-log sync path.
//
// It delivers events to consumers in strictly ascending offset order, with
// no gaps silently skipped and no duplicates surfaced, across arbitrarily
// many reconnects.
//
// # Components
//
//   - [Cursor]: The offset ledger, the sole authoritative record of
//     synchronization progress for one stream scope
//   - [Backoff]: Exponentially increasing reconnect delays with a capped
//     attempt count
//   - [Dispatcher]: Asynchronous fan-out of accepted events to registered
//     handlers
//   - [Connector]: Connection lifecycle, reconnect orchestration, gap
//     detection and resync
//
// The connector is transport-agnostic: it consumes the push subscription
// when the adapter provides one and falls back to bounded-timeout polling
// otherwise, with identical consumer-visible semantics.
package stream
