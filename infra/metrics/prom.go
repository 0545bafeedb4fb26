// Package metrics provides concrete recorders for planning events:
// Prometheus for live scrape, InfluxDB for per-period persistence.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/ncharlet/bessopt/core/metrics"
)

// PromSink records planning events in Prometheus metrics.
type PromSink struct {
	solves     *prometheus.CounterVec
	solveTime  prometheus.Histogram
	periods    prometheus.Counter
	moneySaved prometheus.Gauge
}

// NewPromSink registers planning metrics on the default Prometheus
// registerer. The scrape server is started separately with
// StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	solves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bessopt_solves_total",
		Help: "Total number of MILP solves by status",
	}, []string{"status"})
	solveTime := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "bessopt_solve_duration_seconds",
		Help:    "Wall-clock duration of MILP solves",
		Buckets: prometheus.DefBuckets,
	})
	periods := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bessopt_periods_completed_total",
		Help: "Number of optimization periods completed",
	})
	moneySaved := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bessopt_run_money_saved",
		Help: "Money saved by the latest completed horizon run",
	})

	if err := reg.Register(solves); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			solves = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(solveTime); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			solveTime = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(periods); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			periods = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(moneySaved); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			moneySaved = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{solves: solves, solveTime: solveTime, periods: periods, moneySaved: moneySaved}, nil
}

// RecordSolve counts the solve and observes its duration.
func (s *PromSink) RecordSolve(ev coremetrics.SolveEvent) error {
	s.solves.WithLabelValues(ev.Status).Inc()
	s.solveTime.Observe(ev.Duration.Seconds())
	return nil
}

// RecordPeriod counts a completed period.
func (s *PromSink) RecordPeriod(coremetrics.PeriodEvent) error {
	s.periods.Inc()
	return nil
}

// RecordRun publishes the run aggregate.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.moneySaved.Set(ev.MoneySaved)
	return nil
}

// StartPromServer exposes /metrics on the given port and blocks.
func StartPromServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
