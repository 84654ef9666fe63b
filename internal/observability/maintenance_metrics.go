package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Swap actions recorded by MaintenanceCollector.
const (
	SwapEvicted  = "evicted"
	SwapPromoted = "promoted"
	SwapToppedUp = "topped_up"
	SwapRefined  = "refined"
)

// MaintenanceCollector exposes metrics for the pool maintenance loop.
type MaintenanceCollector struct {
	gatherer prometheus.Gatherer

	CycleDuration prometheus.Histogram
	Cycles        prometheus.Counter
	Swaps         *prometheus.CounterVec
	Generation    prometheus.Gauge
}

// NewMaintenanceCollector registers maintenance metrics against the provided registerer.
func NewMaintenanceCollector(reg prometheus.Registerer) (*MaintenanceCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycleHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "poolselect_maintenance_cycle_duration_seconds",
		Help:    "Duration of a maintenance cycle including candidate recomputation.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
	cycleHistogram, err := registerHistogram(reg, cycleHistogram, "poolselect_maintenance_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poolselect_maintenance_cycles_total",
		Help: "Completed maintenance cycles.",
	})
	cycles, err = registerCounter(reg, cycles, "poolselect_maintenance_cycles_total")
	if err != nil {
		return nil, err
	}

	swaps, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poolselect_maintenance_swaps_total",
		Help: "Pool membership changes, labeled by constellation and action.",
	}, []string{"constellation", "action"}), "poolselect_maintenance_swaps_total")
	if err != nil {
		return nil, err
	}

	generation := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poolselect_maintenance_cycle",
		Help: "Cycle number of the pool snapshot currently published.",
	})
	generation, err = registerGauge(reg, generation, "poolselect_maintenance_cycle")
	if err != nil {
		return nil, err
	}

	return &MaintenanceCollector{
		gatherer:      gatherer,
		CycleDuration: cycleHistogram,
		Cycles:        cycles,
		Swaps:         swaps,
		Generation:    generation,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *MaintenanceCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveCycle records a completed cycle.
func (c *MaintenanceCollector) ObserveCycle(cycle int, d time.Duration) {
	if c == nil {
		return
	}
	if c.CycleDuration != nil {
		c.CycleDuration.Observe(d.Seconds())
	}
	if c.Cycles != nil {
		c.Cycles.Inc()
	}
	if c.Generation != nil {
		c.Generation.Set(float64(cycle))
	}
}

// AddSwaps counts membership changes of one kind.
func (c *MaintenanceCollector) AddSwaps(constellation, action string, n int) {
	if c == nil || c.Swaps == nil || n <= 0 {
		return
	}
	c.Swaps.WithLabelValues(constellation, action).Add(float64(n))
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
