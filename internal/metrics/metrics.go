package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame type label values.
const (
	FrameList  = "attendance_list"
	FrameEvent = "new_attendance"
	FrameError = "error"
)

// Submission result label values.
const (
	SubmitOK       = "ok"
	SubmitRejected = "rejected"
	SubmitFailed   = "failed"
)

var (
	ConnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendstream_connects_total",
		Help: "Successful websocket connections established.",
	})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendstream_reconnects_total",
		Help: "Reconnection attempts scheduled after a failure or close.",
	})

	ConnectionUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendstream_connection_up",
		Help: "1 while the stream connection is established, else 0.",
	})

	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendstream_frames_total",
		Help: "Inbound frames dispatched, by envelope type.",
	}, []string{"type"})

	FramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendstream_frames_dropped_total",
		Help: "Inbound frames dropped as malformed or unrecognized.",
	})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendstream_submissions_total",
		Help: "Outbound attendance submissions, by result.",
	}, []string{"result"})

	WindowSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendstream_window_size",
		Help: "Events currently held in the attendance window.",
	})
)
