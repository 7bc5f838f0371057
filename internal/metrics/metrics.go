package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollRuns       *prometheus.CounterVec
	ItemsChecked   *prometheus.CounterVec
	ItemsNeedReply prometheus.Counter
	DraftsCreated  prometheus.Counter
	AutoApproved   prometheus.Counter
	ItemErrors     prometheus.Counter
	Sends          *prometheus.CounterVec
	Reviews        *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	PendingDrafts  prometheus.Gauge
}

// NewMetrics creates metrics registered with the default Prometheus registry
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New creates metrics registered with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PollRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoreply_poll_runs_total",
			Help: "Total number of polling runs by outcome",
		}, []string{"status"}),
		ItemsChecked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoreply_items_checked_total",
			Help: "Total number of orders and tickets examined",
		}, []string{"source_type"}),
		ItemsNeedReply: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_items_needing_reply_total",
			Help: "Total number of conversations whose latest public message was from the client",
		}),
		DraftsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_drafts_created_total",
			Help: "Total number of drafts written to the queue",
		}),
		AutoApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_drafts_auto_approved_total",
			Help: "Total number of high-confidence drafts approved without review",
		}),
		ItemErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_item_errors_total",
			Help: "Total number of per-item failures during polling runs",
		}),
		Sends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoreply_sends_total",
			Help: "Total number of reply deliveries by result",
		}, []string{"result"}),
		Reviews: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "autoreply_reviews_total",
			Help: "Total number of review decisions by action",
		}, []string{"action"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoreply_poll_run_duration_seconds",
			Help:    "Time spent in polling runs",
			Buckets: prometheus.DefBuckets,
		}),
		PendingDrafts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "autoreply_pending_drafts",
			Help: "Number of drafts awaiting review at the last stats refresh",
		}),
	}
}
