// Package metrics records convergence run metrics with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"signal_backend/internal/feature/convergence/domain/entity"
	"signal_backend/internal/feature/convergence/usecase"
)

// Recorder implements usecase.Metrics using Prometheus.
type Recorder struct {
	reg *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	signalsTotal  *prometheus.CounterVec
	warningsTotal *prometheus.CounterVec
	sinkErrors    *prometheus.CounterVec
	publishErrors prometheus.Counter
}

var _ usecase.Metrics = (*Recorder)(nil)

// New creates a recorder on its own registry, with Go and process collectors attached.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergence_runs_total",
				Help: "Convergence runs by result",
			},
			[]string{"symbol", "timeframe", "result"},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convergence_run_duration_seconds",
				Help:    "Duration of convergence runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		signalsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergence_signals_written_total",
				Help: "Signals written to the store",
			},
			[]string{"symbol", "timeframe"},
		),
		warningsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergence_warnings_total",
				Help: "Recoverable per-record warnings by kind",
			},
			[]string{"kind"},
		),
		sinkErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convergence_sink_errors_total",
				Help: "Signal store failures by SQLSTATE",
			},
			[]string{"code"},
		),
		publishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "convergence_publish_errors_total",
			Help: "Failed signal event publishes",
		}),
	}
}

// ObserveRun records one finished run.
func (r *Recorder) ObserveRun(pair entity.Pair, result string, d time.Duration) {
	r.runsTotal.WithLabelValues(pair.Symbol, pair.Timeframe, result).Inc()
	r.runDuration.WithLabelValues(result).Observe(d.Seconds())
}

// AddSignals counts signals written for a pair.
func (r *Recorder) AddSignals(pair entity.Pair, n int) {
	r.signalsTotal.WithLabelValues(pair.Symbol, pair.Timeframe).Add(float64(n))
}

// AddWarnings counts warnings of one kind.
func (r *Recorder) AddWarnings(kind entity.WarningKind, n int) {
	r.warningsTotal.WithLabelValues(string(kind)).Add(float64(n))
}

// IncSinkError counts a store failure. An empty code is reported as "unknown".
func (r *Recorder) IncSinkError(code string) {
	if code == "" {
		code = "unknown"
	}
	r.sinkErrors.WithLabelValues(code).Inc()
}

// IncPublishError counts a failed publish.
func (r *Recorder) IncPublishError() {
	r.publishErrors.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
