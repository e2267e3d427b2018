package main

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the run's progress. A nil *Metrics is valid and
// records nothing, so the pipeline can run without an exporter.
type Metrics struct {
	rowsTotal       *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amica_anonymiser_rows_total",
			Help: "Rows processed, by final status",
		}, []string{"status"}),
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amica_anonymiser_requests_total",
			Help: "Annotation service requests, by outcome",
		}, []string{"outcome"}),
		requestDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "amica_anonymiser_request_duration_seconds",
			Help:    "Annotation service request duration",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (m *Metrics) RowDone(status string) {
	if m == nil {
		return
	}
	m.rowsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RequestDone(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.requestsTotal.WithLabelValues(outcome).Inc()
	m.requestDuration.Observe(elapsed.Seconds())
}

// serveMetrics exposes /metrics and /health for the duration of the run.
// Batch runs are long enough that scraping them is worthwhile.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	go func() {
		log.Printf("Metrics listening on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("Warning: metrics server stopped: %v", err)
		}
	}()
}
