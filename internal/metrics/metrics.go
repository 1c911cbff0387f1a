// Package metrics exports list operation counters to Prometheus.
//
// A Recorder satisfies engine.Metrics and is handed to the engine with
// engine.WithMetrics. Each outcome of an operation (ok, noop, error) is
// counted separately; rows moved by bulk shifts and operation latency are
// tracked per operation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ranklist"

// Recorder holds the collectors for one registry.
type Recorder struct {
	operations *prometheus.CounterVec
	shifted    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// New creates a Recorder and registers its collectors with reg. A nil reg
// skips registration, which is what tests use when they only read values.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "List operations by name and outcome (ok, noop, error).",
		}, []string{"op", "outcome"}),
		shifted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_shifted_total",
			Help:      "Rows whose position was changed as a side effect of an operation.",
		}, []string{"op"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of list operations, including the transaction.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"op"}),
	}
	if reg == nil {
		return r, nil
	}
	for _, c := range []prometheus.Collector{r.operations, r.shifted, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is New that panics on a registration error.
func MustNew(reg prometheus.Registerer) *Recorder {
	r, err := New(reg)
	if err != nil {
		panic(err)
	}
	return r
}

// ObserveOperation records one finished operation.
func (r *Recorder) ObserveOperation(op, outcome string, shifted int64, elapsed time.Duration) {
	r.operations.WithLabelValues(op, outcome).Inc()
	if shifted > 0 {
		r.shifted.WithLabelValues(op).Add(float64(shifted))
	}
	if elapsed > 0 {
		r.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}
