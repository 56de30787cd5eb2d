package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsActive only decrements when a session is observed closing or
	// expiring. A record the store evicts by TTL before the lazy expiry
	// check ever sees it leaves the gauge high until restart; treat it as
	// an upper bound, not an exact count.
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_sessions_active",
		Help: "Upper bound of currently active interview sessions",
	})

	SessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_total",
		Help: "Total sessions created",
	})

	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_expired_total",
		Help: "Sessions expired by the lazy idle check",
	})

	ChunksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_audio_chunks_total",
		Help: "Audio chunks accepted for transcription",
	})

	QuestionsStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_questions_streamed_total",
		Help: "Question streams completed and committed",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_stage_duration_seconds",
		Help:    "Per-stage adapter latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0},
	}, []string{"stage"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
