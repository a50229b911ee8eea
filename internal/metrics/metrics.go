// Package metrics holds the pipeline's prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cinesync"

// Detail outcomes.
const (
	DetailCreated   = "created"
	DetailChanged   = "changed"
	DetailUnchanged = "unchanged"
	DetailError     = "error"
)

type Metrics struct {
	discovered     *prometheus.CounterVec
	details        *prometheus.CounterVec
	syncs          *prometheus.CounterVec
	mergeFallbacks prometheus.Counter
	syncDuration   prometheus.Histogram
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		discovered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_items_total",
			Help:      "Source items upserted from list pages.",
		}, []string{"source"}),
		details: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_fetches_total",
			Help:      "Detail fetches by outcome.",
		}, []string{"source", "outcome"}),
		syncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Source item syncs by result.",
		}, []string{"result"}),
		mergeFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_fallbacks_total",
			Help:      "Syncs that wrote the triggering record because no merge candidates were found.",
		}),
		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of one source item sync.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Discovered(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discovered.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) Detail(source, outcome string) {
	if m == nil {
		return
	}
	m.details.WithLabelValues(source, outcome).Inc()
}

// Sync records one finished sync and its duration.
func (m *Metrics) Sync(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.syncs.WithLabelValues(result).Inc()
	m.syncDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) MergeFallback() {
	if m == nil {
		return
	}
	m.mergeFallbacks.Inc()
}
