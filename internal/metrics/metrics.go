// Package metrics defines the prometheus instruments for the transport core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stream instruments the connector path.
type Stream struct {
	Reconnects prometheus.Counter
	Dispatched prometheus.Counter
	Duplicates prometheus.Counter
	Gaps       prometheus.Counter
	Resyncs    prometheus.Counter
	State      prometheus.Gauge
}

// NewStream registers and returns the stream instruments on reg.
func NewStream(reg prometheus.Registerer) *Stream {
	factory := promauto.With(reg)
	return &Stream{
		Reconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_stream_reconnects_total",
			Help: "Reconnection attempts after a transport failure.",
		}),
		Dispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_stream_events_dispatched_total",
			Help: "Events accepted and handed to the dispatcher.",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_stream_duplicates_dropped_total",
			Help: "Redelivered events dropped by the offset ledger.",
		}),
		Gaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_stream_gaps_total",
			Help: "Gap signals received from the transport.",
		}),
		Resyncs: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_stream_resyncs_total",
			Help: "Range-read resync rounds performed.",
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatship_stream_connection_state",
			Help: "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 resyncing).",
		}),
	}
}

// Upload instruments the upload session manager.
type Upload struct {
	BytesUploaded prometheus.Counter
	ChunkRetries  prometheus.Counter
	Started       prometheus.Counter
	Completed     prometheus.Counter
	Failed        prometheus.Counter
	Aborted       prometheus.Counter
}

// NewUpload registers and returns the upload instruments on reg.
func NewUpload(reg prometheus.Registerer) *Upload {
	factory := promauto.With(reg)
	return &Upload{
		BytesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_upload_bytes_total",
			Help: "Bytes acknowledged by the remote endpoint.",
		}),
		ChunkRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_upload_chunk_retries_total",
			Help: "Chunk transmissions retried after a transient failure.",
		}),
		Started: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_upload_sessions_started_total",
			Help: "Upload sessions started, including resumed ones.",
		}),
		Completed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_upload_sessions_completed_total",
			Help: "Upload sessions that reached Completed.",
		}),
		Failed: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_upload_sessions_failed_total",
			Help: "Upload sessions that reached Failed.",
		}),
		Aborted: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatship_upload_sessions_aborted_total",
			Help: "Upload sessions aborted by the caller.",
		}),
	}
}
