package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector bundles Prometheus metrics for pipeline runs and exposes
// them over HTTP. All methods are safe on a nil receiver.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	Runs                *prometheus.CounterVec
	StageDurations      *prometheus.HistogramVec
	SatellitesProcessed prometheus.Counter
	PropagationFailures prometheus.Counter
	Events              *prometheus.CounterVec
	Warnings            *prometheus.CounterVec

	PoolSize      *prometheus.GaugeVec
	BackupSize    *prometheus.GaugeVec
	MaxGapSeconds *prometheus.GaugeVec
	CatalogSize   prometheus.Gauge
}

// NewPipelineCollector registers pipeline metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poolselect_runs_total",
		Help: "Pipeline runs, labeled by outcome (ok, cancelled, error).",
	}, []string{"outcome"}), "poolselect_runs_total")
	if err != nil {
		return nil, err
	}

	stages, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poolselect_stage_duration_seconds",
		Help:    "Wall time spent in each pipeline stage.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"stage"}), "poolselect_stage_duration_seconds")
	if err != nil {
		return nil, err
	}

	processed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poolselect_satellites_processed_total",
		Help: "Satellites whose time series was computed.",
	}), "poolselect_satellites_processed_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "poolselect_propagation_failures_total",
		Help: "Time series truncated because propagation failed.",
	}), "poolselect_propagation_failures_total")
	if err != nil {
		return nil, err
	}

	events, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poolselect_events_total",
		Help: "Detected measurement event intervals, labeled by event type.",
	}, []string{"type"}), "poolselect_events_total")
	if err != nil {
		return nil, err
	}

	warnings, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "poolselect_warnings_total",
		Help: "Warnings reported in pipeline output, labeled by kind.",
	}, []string{"kind"}), "poolselect_warnings_total")
	if err != nil {
		return nil, err
	}

	poolSize, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poolselect_pool_size",
		Help: "Current pool size per constellation.",
	}, []string{"constellation"}), "poolselect_pool_size")
	if err != nil {
		return nil, err
	}

	backupSize, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poolselect_backup_size",
		Help: "Current backup list length per constellation.",
	}, []string{"constellation"}), "poolselect_backup_size")
	if err != nil {
		return nil, err
	}

	maxGap, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "poolselect_max_gap_seconds",
		Help: "Longest coverage gap of the current pool per constellation.",
	}, []string{"constellation"}), "poolselect_max_gap_seconds")
	if err != nil {
		return nil, err
	}

	catalog, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "poolselect_catalog_satellites",
		Help: "Satellites currently held in the catalog.",
	}), "poolselect_catalog_satellites")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:            gatherer,
		Runs:                runs,
		StageDurations:      stages,
		SatellitesProcessed: processed,
		PropagationFailures: failures,
		Events:              events,
		Warnings:            warnings,
		PoolSize:            poolSize,
		BackupSize:          backupSize,
		MaxGapSeconds:       maxGap,
		CatalogSize:         catalog,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// IncRun counts a finished run.
func (c *PipelineCollector) IncRun(outcome string) {
	if c == nil || c.Runs == nil {
		return
	}
	c.Runs.WithLabelValues(outcome).Inc()
}

// ObserveStage records how long a stage took.
func (c *PipelineCollector) ObserveStage(stage string, d time.Duration) {
	if c == nil || c.StageDurations == nil {
		return
	}
	c.StageDurations.WithLabelValues(stage).Observe(d.Seconds())
}

// AddSatellites counts processed satellites and how many of them failed to
// propagate over the whole window.
func (c *PipelineCollector) AddSatellites(processed, failed int) {
	if c == nil {
		return
	}
	if c.SatellitesProcessed != nil {
		c.SatellitesProcessed.Add(float64(processed))
	}
	if c.PropagationFailures != nil {
		c.PropagationFailures.Add(float64(failed))
	}
}

// AddEvents counts detected intervals of one type.
func (c *PipelineCollector) AddEvents(eventType string, n int) {
	if c == nil || c.Events == nil || n == 0 {
		return
	}
	c.Events.WithLabelValues(eventType).Add(float64(n))
}

// IncWarning counts a reported warning.
func (c *PipelineCollector) IncWarning(kind string) {
	if c == nil || c.Warnings == nil {
		return
	}
	c.Warnings.WithLabelValues(kind).Inc()
}

// SetPool publishes the current pool state of one constellation.
func (c *PipelineCollector) SetPool(constellation string, poolSize, backupSize int, maxGapSeconds float64) {
	if c == nil {
		return
	}
	if c.PoolSize != nil {
		c.PoolSize.WithLabelValues(constellation).Set(float64(poolSize))
	}
	if c.BackupSize != nil {
		c.BackupSize.WithLabelValues(constellation).Set(float64(backupSize))
	}
	if c.MaxGapSeconds != nil {
		c.MaxGapSeconds.WithLabelValues(constellation).Set(maxGapSeconds)
	}
}

// SetCatalogSize satisfies the catalog size hook used when the catalog
// changes.
func (c *PipelineCollector) SetCatalogSize(n int) {
	if c == nil || c.CatalogSize == nil {
		return
	}
	c.CatalogSize.Set(float64(n))
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
