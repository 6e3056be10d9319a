package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/psilva81/inferq/pkg/models"
	"github.com/psilva81/inferq/pkg/scheduler"
)

// StatsSource exposes current scheduler state for scraping.
type StatsSource interface {
	Stats() scheduler.Stats
}

// Exporter serves Prometheus metrics for the scheduler at /metrics. It
// doubles as the scheduler's event sink: submit/dispatch/completion hooks
// feed the registered counters and histograms, while gauges for queue and
// worker state are read from the stats source at scrape time.
type Exporter struct {
	source    StatsSource
	startTime time.Time

	registry       *promclient.Registry
	submitted      *promclient.CounterVec
	dispatched     *promclient.CounterVec
	finished       *promclient.CounterVec
	waitSeconds    *promclient.HistogramVec
	processSeconds *promclient.HistogramVec
}

// NewExporter creates an exporter reading scrape-time state from source.
// A nil source limits the output to the event-driven series.
func NewExporter(source StatsSource) *Exporter {
	e := &Exporter{
		source:    source,
		startTime: time.Now(),
		registry:  promclient.NewRegistry(),
		submitted: promclient.NewCounterVec(
			promclient.CounterOpts{
				Name: "inferq_requests_submitted_total",
				Help: "Total analysis requests admitted to the queue",
			},
			[]string{"priority"},
		),
		dispatched: promclient.NewCounterVec(
			promclient.CounterOpts{
				Name: "inferq_requests_dispatched_total",
				Help: "Total analysis requests handed to a worker",
			},
			[]string{"priority"},
		),
		finished: promclient.NewCounterVec(
			promclient.CounterOpts{
				Name: "inferq_requests_finished_total",
				Help: "Total analysis requests by terminal outcome",
			},
			[]string{"priority", "outcome"},
		),
		waitSeconds: promclient.NewHistogramVec(
			promclient.HistogramOpts{
				Name:    "inferq_request_wait_seconds",
				Help:    "Time requests spent queued before dispatch",
				Buckets: promclient.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"priority"},
		),
		processSeconds: promclient.NewHistogramVec(
			promclient.HistogramOpts{
				Name:    "inferq_request_processing_seconds",
				Help:    "Time requests spent executing on a worker",
				Buckets: promclient.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"priority"},
		),
	}

	e.registry.MustRegister(e.submitted)
	e.registry.MustRegister(e.dispatched)
	e.registry.MustRegister(e.finished)
	e.registry.MustRegister(e.waitSeconds)
	e.registry.MustRegister(e.processSeconds)

	return e
}

// SetSource attaches the scrape-time stats source. Set it before the
// exporter starts serving scrapes.
func (e *Exporter) SetSource(source StatsSource) {
	e.source = source
}

// RecordSubmit implements scheduler.Sink.
func (e *Exporter) RecordSubmit(priority models.Priority) {
	e.submitted.WithLabelValues(priority.String()).Inc()
}

// RecordDispatch implements scheduler.Sink.
func (e *Exporter) RecordDispatch(priority models.Priority, wait time.Duration) {
	e.dispatched.WithLabelValues(priority.String()).Inc()
	e.waitSeconds.WithLabelValues(priority.String()).Observe(wait.Seconds())
}

// RecordCompletion implements scheduler.Sink.
func (e *Exporter) RecordCompletion(priority models.Priority, outcome models.RequestStatus, processing time.Duration) {
	e.finished.WithLabelValues(priority.String(), string(outcome)).Inc()
	if processing > 0 {
		e.processSeconds.WithLabelValues(priority.String()).Observe(processing.Seconds())
	}
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	if e.source != nil {
		st := e.source.Stats()

		fmt.Fprintf(w, "# HELP inferq_queue_length Number of requests waiting in the queue\n")
		fmt.Fprintf(w, "# TYPE inferq_queue_length gauge\n")
		fmt.Fprintf(w, "inferq_queue_length %d\n", st.CurrentQueueSize)

		fmt.Fprintf(w, "\n# HELP inferq_queue_depth Queued requests by priority lane\n")
		fmt.Fprintf(w, "# TYPE inferq_queue_depth gauge\n")
		// Always export all lanes (even if count is 0)
		for _, p := range models.Priorities {
			fmt.Fprintf(w, "inferq_queue_depth{priority=\"%s\"} %d\n", p, st.LaneDepths[p.String()])
		}

		fmt.Fprintf(w, "\n# HELP inferq_queue_peak_length High-water mark of the queue length\n")
		fmt.Fprintf(w, "# TYPE inferq_queue_peak_length gauge\n")
		fmt.Fprintf(w, "inferq_queue_peak_length %d\n", st.PeakQueueSize)

		fmt.Fprintf(w, "\n# HELP inferq_active_workers Workers currently executing a request\n")
		fmt.Fprintf(w, "# TYPE inferq_active_workers gauge\n")
		fmt.Fprintf(w, "inferq_active_workers %d\n", st.ActiveWorkers)

		fmt.Fprintf(w, "\n# HELP inferq_max_workers Configured worker pool size\n")
		fmt.Fprintf(w, "# TYPE inferq_max_workers gauge\n")
		fmt.Fprintf(w, "inferq_max_workers %d\n", st.MaxWorkers)

		fmt.Fprintf(w, "\n# HELP inferq_worker_utilization Fraction of workers busy (0-1)\n")
		fmt.Fprintf(w, "# TYPE inferq_worker_utilization gauge\n")
		fmt.Fprintf(w, "inferq_worker_utilization %.4f\n", st.Utilization)

		fmt.Fprintf(w, "\n# HELP inferq_requests_total Lifetime request counts by outcome\n")
		fmt.Fprintf(w, "# TYPE inferq_requests_total counter\n")
		fmt.Fprintf(w, "inferq_requests_total{outcome=\"submitted\"} %d\n", st.Submitted)
		fmt.Fprintf(w, "inferq_requests_total{outcome=\"completed\"} %d\n", st.Completed)
		fmt.Fprintf(w, "inferq_requests_total{outcome=\"failed\"} %d\n", st.Failed)
		fmt.Fprintf(w, "inferq_requests_total{outcome=\"canceled\"} %d\n", st.Canceled)
		fmt.Fprintf(w, "inferq_requests_total{outcome=\"timed_out\"} %d\n", st.TimedOut)

		fmt.Fprintf(w, "\n# HELP inferq_completed_last_hour Requests finished in the trailing hour\n")
		fmt.Fprintf(w, "# TYPE inferq_completed_last_hour gauge\n")
		fmt.Fprintf(w, "inferq_completed_last_hour %d\n", st.CompletedLastHour)

		fmt.Fprintf(w, "\n# HELP inferq_avg_wait_seconds Average queue wait over the stats window\n")
		fmt.Fprintf(w, "# TYPE inferq_avg_wait_seconds gauge\n")
		fmt.Fprintf(w, "inferq_avg_wait_seconds %.4f\n", st.AvgWaitSeconds)

		fmt.Fprintf(w, "\n# HELP inferq_avg_processing_seconds Average processing time over the stats window\n")
		fmt.Fprintf(w, "# TYPE inferq_avg_processing_seconds gauge\n")
		fmt.Fprintf(w, "inferq_avg_processing_seconds %.4f\n", st.AvgProcessingSeconds)
	}

	fmt.Fprintf(w, "\n# HELP inferq_uptime_seconds Scheduler uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE inferq_uptime_seconds gauge\n")
	fmt.Fprintf(w, "inferq_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	fmt.Fprintf(w, "\n")

	metricFamilies, err := e.registry.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}
