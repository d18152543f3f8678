// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FramesTotal counts frames handed to a decode session by link type
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktt_decoder_frames_total",
			Help: "Total number of frames decoded",
		},
		[]string{"link_type"},
	)

	// FramesFilteredTotal counts frames rejected by the source filter
	FramesFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pktt_source_frames_filtered_total",
			Help: "Total number of frames rejected by the capture filter",
		},
	)

	// DecodeErrorsTotal counts packets whose decode stopped on an error
	DecodeErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktt_decoder_errors_total",
			Help: "Total number of packets that stopped decoding on an error",
		},
		[]string{"reason"},
	)

	// LayersTotal counts registered layers by layer name
	LayersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktt_decoder_layers_total",
			Help: "Total number of decoded layers",
		},
		[]string{"layer"},
	)

	// RPCRepliesTotal counts replies by correlation outcome (matched/unmatched)
	RPCRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktt_decoder_rpc_replies_total",
			Help: "Total number of RPC replies by correlation outcome",
		},
		[]string{"result"},
	)

	// DiagnosticsTotal counts non-fatal decode failures by stage
	DiagnosticsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktt_decoder_diagnostics_total",
			Help: "Total number of non-fatal decode failures",
		},
		[]string{"stage"},
	)

	// SinkMessagesTotal counts packets published to a sink by result (ok/error)
	SinkMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktt_sink_messages_total",
			Help: "Total number of packets published to a sink",
		},
		[]string{"sink", "result"},
	)

	// DecodeLatencySeconds measures per-frame decode latency
	DecodeLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pktt_decoder_latency_seconds",
			Help:    "Latency of decoding one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 2, 16), // 1µs to ~33ms
		},
	)
)
