// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal      *prometheus.CounterVec
	crawlItemsSavedTotal *prometheus.CounterVec
	crawlMediaBytesTotal *prometheus.CounterVec
	crawlBlockedTotal    prometheus.Counter
	crawlRunsTotal       *prometheus.CounterVec
	crawlInFlightFetches prometheus.Gauge
	crawlItemErrorsTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_pages_total",
				Help: "Total listing pages fetched, labeled by crawl mode.",
			},
			[]string{"mode"},
		)

		crawlItemsSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_items_saved_total",
				Help: "Total records upserted, labeled by kind (video/creator).",
			},
			[]string{"kind"},
		)

		crawlMediaBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_media_bytes_total",
				Help: "Total media bytes written, labeled by kind (video/image).",
			},
			[]string{"kind"},
		)

		crawlBlockedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawl_blocked_total",
				Help: "Total responses classified as account blocks.",
			},
		)

		crawlRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_runs_total",
				Help: "Total crawl runs, labeled by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		)

		crawlInFlightFetches = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawl_in_flight_detail_fetches",
				Help: "Detail fetches currently holding a concurrency slot.",
			},
		)

		crawlItemErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawl_item_errors_total",
				Help: "Per-item failures, labeled by reason.",
			},
			[]string{"reason"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts a fetched listing page for the given mode.
func ObservePage(mode string) {
	Init()
	crawlPagesTotal.WithLabelValues(mode).Inc()
}

// ObserveItemSaved counts a persisted record of the given kind.
func ObserveItemSaved(kind string) {
	Init()
	crawlItemsSavedTotal.WithLabelValues(kind).Inc()
}

// ObserveMediaBytes adds written media bytes for the given kind.
func ObserveMediaBytes(kind string, n int) {
	Init()
	if n > 0 {
		crawlMediaBytesTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveBlocked counts a response classified as an account block.
func ObserveBlocked() {
	Init()
	crawlBlockedTotal.Inc()
}

// ObserveRun counts a finished crawl run.
func ObserveRun(mode, outcome string) {
	Init()
	crawlRunsTotal.WithLabelValues(mode, outcome).Inc()
}

// IncInFlight marks a detail fetch as holding a slot.
func IncInFlight() {
	Init()
	crawlInFlightFetches.Inc()
}

// DecInFlight marks a detail fetch as done with its slot.
func DecInFlight() {
	Init()
	crawlInFlightFetches.Dec()
}

// ObserveItemError counts a per-item failure by reason.
func ObserveItemError(reason string) {
	Init()
	crawlItemErrorsTotal.WithLabelValues(reason).Inc()
}
