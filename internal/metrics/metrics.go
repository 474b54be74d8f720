package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    pagesRepaired = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfmend",
            Name:      "pages_repaired_total",
            Help:      "Pages processed by outcome (clean, recovered, placeholder, skipped)",
        },
        []string{"outcome"},
    )

    ocrReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfmend",
            Name:      "ocr_requests_total",
            Help:      "OCR invocations by engine and result",
        },
        []string{"engine", "result"},
    )

    ocrLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "pdfmend",
            Name:      "ocr_request_duration_seconds",
            Help:      "Duration of OCR invocations by engine",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"engine"},
    )

    jobsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfmend",
            Name:      "jobs_total",
            Help:      "Repair jobs by result (success, failed, cancelled, dlq)",
        },
        []string{"result"},
    )

    retriesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfmend",
            Name:      "retries_total",
            Help:      "Total number of job retries",
        },
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "pdfmend",
            Name:      "queue_depth",
            Help:      "Queue depth gauges for stream, delayed and dlq",
        },
        []string{"type"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(pagesRepaired, ocrReqs, ocrLatency, jobsTotal, retriesTotal, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func IncPage(outcome string) { pagesRepaired.WithLabelValues(outcome).Inc() }

func ObserveOCR(engine, result string, dur time.Duration) {
    ocrReqs.WithLabelValues(engine, result).Inc()
    ocrLatency.WithLabelValues(engine).Observe(dur.Seconds())
}

func IncJob(result string) { jobsTotal.WithLabelValues(result).Inc() }
func IncRetry()            { retriesTotal.Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }
