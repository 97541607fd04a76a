// Package upload drives resumable chunked file transfers to the remote
// transfer endpoint.
//
// A [Manager] starts one [Session] per file. The session first performs
// resume discovery, probing the remote for a partial session matching the
// file's stable signature, and continues from the remote-reported byte
// offset, so an interrupted transfer never retransmits acknowledged bytes.
// Sessions expose pause, resume and abort; transient per-chunk failures are
// retried with bounded backoff inside the chunk-transfer primitive, and at
// most one terminal callback (success or error) fires per session.
package upload
