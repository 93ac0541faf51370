// Package metrics holds the Prometheus collectors shared across the bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pricebot"

var (
	Extractions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extractions_total",
		Help:      "Price-list extractions by profile and outcome (ok, empty, error).",
	}, []string{"profile", "outcome"})

	ExtractedRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "extracted_rows_total",
		Help:      "Rows kept after normalization, by profile.",
	}, []string{"profile"})

	Forwards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "forwards_total",
		Help:      "Per-destination deliveries by result (forwarded, fallback, skipped, failed).",
	}, []string{"result"})

	CollectedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collected_files_total",
		Help:      "PDF price lists downloaded by collection runs.",
	})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Collection runs by terminal status.",
	}, []string{"status"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "run_queue_depth",
		Help:      "Runs waiting for a worker.",
	})

	ScrapedProducts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scraped_products_total",
		Help:      "Catalog products saved by the scraper.",
	})

	TelegramRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "telegram_request_seconds",
		Help:      "Bot API call latency by method and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "outcome"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
