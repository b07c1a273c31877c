package manager

import (
	"github.com/prometheus/client_golang/prometheus"

	"fleet/target"
)

const namespace = "fleet"

// Metrics are registered on their own registry so several managers can live
// in one process.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	units         *prometheus.CounterVec
	projectedRate prometheus.Gauge
	pending       prometheus.Gauge
	cycleDuration prometheus.Histogram
	dispatches    *prometheus.CounterVec
	commissions   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "cycles_total",
			Help:      "Scheduling cycles run, by result.",
		}, []string{"result"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "allocated_units_total",
			Help:      "Units committed, by action.",
		}, []string{"action"}),
		projectedRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "projected_rate",
			Help:      "Yield per second the last cycle's allocations project.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "pending_orders",
			Help:      "Orders waiting to be sent to a worker.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "cycle_seconds",
			Help:      "Time spent in one scheduling cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "dispatches_total",
			Help:      "Order dispatch attempts, by result.",
		}, []string{"result"}),
		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "manager",
			Name:      "commissions_total",
			Help:      "Hosts the commissioning step visited, by outcome.",
		}, []string{"outcome"}),
	}

	m.Registry.MustRegister(
		m.cycles, m.units, m.projectedRate, m.pending, m.cycleDuration, m.dispatches, m.commissions,
	)
	for _, a := range target.Actions {
		m.units.WithLabelValues(a.String())
	}
	return m
}

// timeCycle starts a timer; call the result when the cycle ends.
func (m *Metrics) timeCycle() func() {
	t := prometheus.NewTimer(m.cycleDuration)
	return func() { t.ObserveDuration() }
}

func (m *Metrics) observeCycle(r *CycleReport, err error) {
	if err != nil {
		m.cycles.WithLabelValues("error").Inc()
		return
	}
	m.cycles.WithLabelValues("ok").Inc()
	for _, a := range r.Allocations {
		m.units.WithLabelValues(a.Action.String()).Add(float64(a.Units))
	}
	m.projectedRate.Set(r.ProjectedRate)
}
