// Package domain contains the core entities and value objects for chatship.
//
// This package represents the innermost layer of the architecture. It has no
// dependencies on infrastructure concerns (HTTP, websockets, logging) and
// contains only the data model and error taxonomy of the transport core.
//
// # Entities
//
//   - [StreamEvent]: One entry of the ordered event log (message, typing
//     signal, receipt, presence change)
//   - [ScopeFilter]: Identifies the stream scope, global or peer-scoped
//   - [UploadState]: Lifecycle states of a resumable upload session with the
//     legal transition table
//   - [FileSignature]: Stable identity used for upload resume discovery
//
// # Errors
//
// Sentinel errors are checked with errors.Is. Typed errors carry the retry
// decision: [TransportError] is retryable with backoff, [ProtocolError] and
// [CapacityError] never are. Use [Retryable] to classify.
package domain
