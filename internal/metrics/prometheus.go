package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exporter publishes a finished report as Prometheus metrics on a private
// registry, suitable for the node_exporter textfile collector.
type Exporter struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	statusTotal     *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	iterationsTotal *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	latency         *prometheus.GaugeVec
	users           prometheus.Gauge
	abandonedUsers  prometheus.Gauge
	duration        prometheus.Gauge
	rps             prometheus.Gauge
	errorRate       prometheus.Gauge
	aborted         prometheus.Gauge
}

// NewExporter creates an exporter with its own registry.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Exporter{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_loadtest_requests_total",
				Help: "Total number of transactions executed",
			},
			[]string{"result"},
		),
		statusTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_loadtest_responses_total",
				Help: "Received responses by status code",
			},
			[]string{"code"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_loadtest_failures_total",
				Help: "Transactions without a received response by error kind",
			},
			[]string{"kind"},
		),
		iterationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tms_loadtest_iterations_total",
				Help: "Completed scenario iterations",
			},
			[]string{"scenario"},
		),
		bytesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tms_loadtest_received_bytes_total",
				Help: "Response body bytes received",
			},
		),
		latency: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_latency_seconds",
				Help: "Transaction latency quantiles",
			},
			[]string{"transaction", "quantile"},
		),
		users: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_users",
				Help: "Virtual users spawned",
			},
		),
		abandonedUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_users_abandoned",
				Help: "Virtual users still running when the grace period expired",
			},
		),
		duration: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_duration_seconds",
				Help: "Wall-clock duration of the attack",
			},
		),
		rps: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_requests_per_second",
				Help: "Average throughput over the attack",
			},
		),
		errorRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_error_rate",
				Help: "Fraction of transactions without a received response",
			},
		),
		aborted: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tms_loadtest_aborted",
				Help: "1 when a fatal error stopped the attack, 0 otherwise",
			},
		),
	}
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Export loads report into the exporter's metrics. It is meant to be called
// once per exporter.
func (e *Exporter) Export(report *Report) {
	e.requestsTotal.WithLabelValues("received").Add(float64(report.ReceivedRequests))
	e.requestsTotal.WithLabelValues("failed").Add(float64(report.FailedRequests))

	for code, n := range report.StatusCodes {
		e.statusTotal.WithLabelValues(strconv.Itoa(code)).Add(float64(n))
	}
	for kind, n := range report.Failures {
		e.failuresTotal.WithLabelValues(kind).Add(float64(n))
	}
	for scenario, n := range report.Iterations {
		e.iterationsTotal.WithLabelValues(scenario).Add(float64(n))
	}
	e.bytesTotal.Add(float64(report.TotalBytes))

	e.setLatency("all", report.Latency)
	for name, stats := range report.Transactions {
		e.setLatency(name, stats)
	}

	e.users.Set(float64(report.Users))
	e.abandonedUsers.Set(float64(report.Abandoned))
	e.duration.Set(report.Duration.Seconds())
	e.rps.Set(report.RPS)
	e.errorRate.Set(report.ErrorRate)
	if report.Aborted() {
		e.aborted.Set(1)
	} else {
		e.aborted.Set(0)
	}
}

func (e *Exporter) setLatency(transaction string, stats LatencyStats) {
	e.latency.WithLabelValues(transaction, "0.5").Set(stats.P50.Seconds())
	e.latency.WithLabelValues(transaction, "0.9").Set(stats.P90.Seconds())
	e.latency.WithLabelValues(transaction, "0.95").Set(stats.P95.Seconds())
	e.latency.WithLabelValues(transaction, "0.99").Set(stats.P99.Seconds())
}

// WriteTextfile writes the registry in the text exposition format to path.
func (e *Exporter) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, e.registry)
}
