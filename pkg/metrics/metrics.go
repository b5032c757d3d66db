package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total number of requests",
		},
		[]string{"service", "method", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)

	ActiveRecordingSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_recording_sessions",
			Help: "Number of recording sessions currently holding a device",
		},
	)

	StorageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of object storage operations",
		},
		[]string{"operation", "status"},
	)

	TranscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcriptions_total",
			Help: "Total number of transcription attempts",
		},
		[]string{"policy", "status"},
	)

	TranscriptionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "transcription_duration_seconds",
			Help: "Transcription round-trip latency in seconds",
		},
	)

	KafkaMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_total",
			Help: "Total number of Kafka messages",
		},
		[]string{"topic", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		ActiveRecordingSessions,
		StorageOperationsTotal,
		TranscriptionsTotal,
		TranscriptionDuration,
		KafkaMessagesTotal,
	)
}

// StartMetricsServer starts the standalone metrics HTTP server.
func StartMetricsServer(port string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":"+port, nil); err != nil {
			panic("failed to start metrics server: " + err.Error())
		}
	}()
}

// RecordRequest records request metrics.
func RecordRequest(service, method, status string, duration time.Duration) {
	RequestsTotal.WithLabelValues(service, method, status).Inc()
	RequestDuration.WithLabelValues(service, method).Observe(duration.Seconds())
}
