package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Feed metrics
	EventsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_events_received_total",
			Help: "Total number of events received from the feed",
		},
	)

	EventBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_event_bytes_total",
			Help: "Total bytes of event data received",
		},
	)

	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_decode_errors_total",
			Help: "Total number of events that could not be decoded",
		},
	)

	FeedErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_feed_errors_total",
			Help: "Total number of feed status notices and connection errors",
		},
		[]string{"kind"},
	)

	FeedConnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_feed_connects_total",
			Help: "Total number of successful feed connections",
		},
	)

	// Publish metrics
	EventsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_events_queued_total",
			Help: "Total number of events acknowledged by the queue",
		},
		[]string{"backend"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_publish_errors_total",
			Help: "Total number of failed queue publishes",
		},
		[]string{"backend"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "telhawk_streamer_publish_duration_seconds",
			Help:    "Duration of queue publishes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	// Liveness metrics
	SecondsSinceLastEvent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_streamer_seconds_since_last_event",
			Help: "Seconds since the current session last accepted an event",
		},
	)

	SessionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_streamer_session_state",
			Help: "Current session state (0=starting, 1=running, 2=stalled, 3=terminating)",
		},
	)

	Stalls = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_stalls_total",
			Help: "Total number of sessions terminated by the watchdog",
		},
	)

	// Supervisor metrics
	Restarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_restarts_total",
			Help: "Total number of pipeline restarts",
		},
		[]string{"reason"},
	)

	RestartBackoff = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_streamer_restart_backoff_seconds",
			Help: "Backoff applied before the most recent restart",
		},
	)

	TrackTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "telhawk_streamer_track_targets",
			Help: "Number of targets in the current track criteria",
		},
	)

	// Health server metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telhawk_streamer_http_requests_total",
			Help: "Total number of health server requests",
		},
		[]string{"path", "code"},
	)
)

// Restart reasons.
const (
	ReasonStall  = "stall"
	ReasonError  = "error"
	ReasonReload = "reload"
	ReasonClosed = "closed"
)
