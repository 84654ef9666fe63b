// Package config handles loading, defaulting, and validation of the pool
// selector's TOML configuration. The loaded Config is treated as immutable:
// every component receives the values it needs from it explicitly.
package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/model"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Observer    model.Observer    `toml:"observer"    json:"observer"`
	Window      WindowConfig      `toml:"window"      json:"window"`
	Visibility  VisibilityConfig  `toml:"visibility"  json:"visibility"`
	Signal      SignalConfig      `toml:"signal"      json:"signal"`
	Events      EventsConfig      `toml:"events"      json:"events"`
	Selection   SelectionConfig   `toml:"selection"   json:"selection"`
	Maintenance MaintenanceConfig `toml:"maintenance" json:"maintenance"`
	Catalog     CatalogConfig     `toml:"catalog"     json:"catalog"`
	Runtime     RuntimeConfig     `toml:"runtime"     json:"runtime"`
	Logging     LoggingConfig     `toml:"logging"     json:"logging"`
	Metrics     MetricsConfig     `toml:"metrics"     json:"metrics"`
	Tracing     TracingConfig     `toml:"tracing"     json:"tracing"`
}

// WindowConfig is the analysis horizon. A zero Start means "now", resolved
// once by the caller.
type WindowConfig struct {
	Start          time.Time `toml:"start"           json:"start"`
	HorizonSeconds int       `toml:"horizon_seconds" json:"horizon_seconds"`
	StepSeconds    int       `toml:"step_seconds"    json:"step_seconds"`
}

type VisibilityConfig struct {
	MinElevationDeg float64 `toml:"min_elevation_deg" json:"min_elevation_deg"`
	// CrossCheck re-predicts passes of pool members with an independent SGP4
	// implementation and reports disagreements as warnings.
	CrossCheck                 bool `toml:"cross_check"                   json:"cross_check"`
	CrossCheckToleranceSeconds int  `toml:"cross_check_tolerance_seconds" json:"cross_check_tolerance_seconds"`
}

type SignalConfig struct {
	CarrierFrequencyGHz     float64 `toml:"carrier_frequency_ghz"      json:"carrier_frequency_ghz"`
	TxPowerDBm              float64 `toml:"tx_power_dbm"               json:"tx_power_dbm"`
	AntennaGainDBi          float64 `toml:"antenna_gain_dbi"           json:"antenna_gain_dbi"`
	ZenithAtmosphericLossDB float64 `toml:"zenith_atmospheric_loss_db" json:"zenith_atmospheric_loss_db"`
}

type EventsConfig struct {
	A4 A4Config `toml:"a4" json:"a4"`
	A5 A5Config `toml:"a5" json:"a5"`
	D2 D2Config `toml:"d2" json:"d2"`
	// NeighborCount is how many phase neighbours on each side a satellite is
	// paired with for A5 and D2.
	NeighborCount int `toml:"neighbor_count" json:"neighbor_count"`
}

type A4Config struct {
	ThresholdDBm float64 `toml:"threshold_dbm" json:"threshold_dbm"`
	HysteresisDB float64 `toml:"hysteresis_db" json:"hysteresis_db"`
}

type A5Config struct {
	Threshold1DBm float64 `toml:"threshold1_dbm" json:"threshold1_dbm"`
	Threshold2DBm float64 `toml:"threshold2_dbm" json:"threshold2_dbm"`
	HysteresisDB  float64 `toml:"hysteresis_db"  json:"hysteresis_db"`
}

type D2Config struct {
	Threshold1Km float64 `toml:"threshold1_km" json:"threshold1_km"`
	Threshold2Km float64 `toml:"threshold2_km" json:"threshold2_km"`
	HysteresisKm float64 `toml:"hysteresis_km" json:"hysteresis_km"`
}

type SelectionConfig struct {
	// TargetSize maps constellation name to pool size. Constellations not
	// listed use DefaultTargetSize.
	TargetSize             map[string]int `toml:"target_size"               json:"target_size"`
	DefaultTargetSize      int            `toml:"default_target_size"       json:"default_target_size"`
	MinVisibleDurationS    float64        `toml:"min_visible_duration_s"    json:"min_visible_duration_s"`
	MinEventDiversity      int            `toml:"min_event_diversity"       json:"min_event_diversity"`
	MinPhaseSeparationDeg  float64        `toml:"min_phase_separation_deg"  json:"min_phase_separation_deg"`
	PhaseRelaxationStepDeg float64        `toml:"phase_relaxation_step_deg" json:"phase_relaxation_step_deg"`
	MaxGapSeconds          float64        `toml:"max_gap_seconds"           json:"max_gap_seconds"`
	MaxPasses              int            `toml:"max_passes"                json:"max_passes"`
	Strategy               string         `toml:"strategy"                  json:"strategy"`
	// EventWeightS is the score credit, in seconds of visibility, for each
	// supported event type.
	EventWeightS float64 `toml:"event_weight_s" json:"event_weight_s"`
	BackupLimit  int     `toml:"backup_limit"   json:"backup_limit"`
}

type MaintenanceConfig struct {
	CycleIntervalSeconds int    `toml:"cycle_interval_seconds" json:"cycle_interval_seconds"`
	Cycles               int    `toml:"cycles"                 json:"cycles"`
	Mode                 string `toml:"mode"                   json:"mode"`
	Refine               bool   `toml:"refine"                 json:"refine"`
}

// ConstellationRule assigns satellites whose name starts with Prefix to the
// named constellation.
type ConstellationRule struct {
	Name   string `toml:"name"   json:"name"`
	Prefix string `toml:"prefix" json:"prefix"`
}

type CatalogConfig struct {
	Path                 string              `toml:"path"                  json:"path"`
	Format               string              `toml:"format"                json:"format"`
	Constellations       []ConstellationRule `toml:"constellations"        json:"constellations"`
	DefaultConstellation string              `toml:"default_constellation" json:"default_constellation"`
}

type RuntimeConfig struct {
	// Workers is the size of the time-series worker pool; 0 uses GOMAXPROCS.
	Workers           int    `toml:"workers"            json:"workers"`
	OutputPath        string `toml:"output_path"        json:"output_path"`
	OutputFormat      string `toml:"output_format"      json:"output_format"`
	IncludeTimeseries bool   `toml:"include_timeseries" json:"include_timeseries"`
}

type LoggingConfig struct {
	Level  string `toml:"level"  json:"level"`
	Format string `toml:"format" json:"format"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr"    json:"addr"`
}

type TracingConfig struct {
	Enabled     bool    `toml:"enabled"      json:"enabled"`
	ServiceName string  `toml:"service_name" json:"service_name"`
	Exporter    string  `toml:"exporter"     json:"exporter"`
	Endpoint    string  `toml:"endpoint"     json:"endpoint"`
	SampleRatio float64 `toml:"sample_ratio" json:"sample_ratio"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	lb := core.DefaultLinkBudget()
	th := core.DefaultEventThresholds()
	return Config{
		Window: WindowConfig{
			HorizonSeconds: 7200,
			StepSeconds:    10,
		},
		Visibility: VisibilityConfig{
			MinElevationDeg:            core.DefaultMinElevationDeg,
			CrossCheckToleranceSeconds: 60,
		},
		Signal: SignalConfig{
			CarrierFrequencyGHz:     lb.CarrierFrequencyGHz,
			TxPowerDBm:              lb.TxPowerDBm,
			AntennaGainDBi:          lb.AntennaGainDBi,
			ZenithAtmosphericLossDB: lb.ZenithAtmosphericLossDB,
		},
		Events: EventsConfig{
			A4:            A4Config{ThresholdDBm: th.A4ThresholdDBm, HysteresisDB: th.A4HysteresisDB},
			A5:            A5Config{Threshold1DBm: th.A5Threshold1DBm, Threshold2DBm: th.A5Threshold2DBm, HysteresisDB: th.A5HysteresisDB},
			D2:            D2Config{Threshold1Km: th.D2Threshold1Km, Threshold2Km: th.D2Threshold2Km, HysteresisKm: th.D2HysteresisKm},
			NeighborCount: 2,
		},
		Selection: SelectionConfig{
			TargetSize:             map[string]int{},
			DefaultTargetSize:      10,
			MinVisibleDurationS:    120,
			MinEventDiversity:      2,
			MinPhaseSeparationDeg:  15,
			PhaseRelaxationStepDeg: 5,
			MaxGapSeconds:          60,
			MaxPasses:              50,
			Strategy:               "local_search",
			EventWeightS:           60,
			BackupLimit:            20,
		},
		Maintenance: MaintenanceConfig{
			CycleIntervalSeconds: 600,
			Cycles:               6,
			Mode:                 "accelerated",
			Refine:               true,
		},
		Catalog: CatalogConfig{
			Format: "auto",
			Constellations: []ConstellationRule{
				{Name: "STARLINK", Prefix: "STARLINK"},
				{Name: "ONEWEB", Prefix: "ONEWEB"},
			},
			DefaultConstellation: "OTHER",
		},
		Runtime: RuntimeConfig{
			OutputFormat: "json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9090",
		},
		Tracing: TracingConfig{
			ServiceName: "poolselect",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := Decode(b, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode layers TOML data over cfg. Unknown keys are rejected so typos do not
// silently fall back to defaults.
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%w: %v", model.ErrConfigurationInvalid, err)
	}
	return nil
}

// Validate rejects inconsistent configurations. Every error wraps
// model.ErrConfigurationInvalid.
func (c Config) Validate() error {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Observer.LatitudeDeg < -90 || c.Observer.LatitudeDeg > 90 {
		fail("observer.latitude_deg must be between -90 and 90")
	}
	if c.Observer.LongitudeDeg < -180 || c.Observer.LongitudeDeg > 180 {
		fail("observer.longitude_deg must be between -180 and 180")
	}
	if c.Window.StepSeconds <= 0 {
		fail("window.step_seconds must be > 0")
	}
	if c.Window.HorizonSeconds < c.Window.StepSeconds {
		fail("window.horizon_seconds must be >= window.step_seconds")
	}
	if c.Visibility.MinElevationDeg < 0 || c.Visibility.MinElevationDeg > 90 {
		fail("visibility.min_elevation_deg must be between 0 and 90")
	}
	if c.Signal.CarrierFrequencyGHz <= 0 {
		fail("signal.carrier_frequency_ghz must be > 0")
	}

	e := c.Events
	if e.A4.HysteresisDB < 0 || e.A5.HysteresisDB < 0 || e.D2.HysteresisKm < 0 {
		fail("events hysteresis values must be >= 0")
	}
	if e.A5.Threshold1DBm <= e.A5.Threshold2DBm {
		fail("events.a5.threshold1_dbm (%g) must be greater than threshold2_dbm (%g)",
			e.A5.Threshold1DBm, e.A5.Threshold2DBm)
	}
	if e.D2.Threshold1Km <= e.D2.Threshold2Km {
		fail("events.d2.threshold1_km (%g) must be greater than threshold2_km (%g)",
			e.D2.Threshold1Km, e.D2.Threshold2Km)
	}
	if e.D2.Threshold2Km-e.D2.HysteresisKm < 0 {
		fail("events.d2.threshold2_km minus hysteresis must be >= 0")
	}
	if e.NeighborCount < 0 {
		fail("events.neighbor_count must be >= 0")
	}

	s := c.Selection
	if s.DefaultTargetSize < 1 {
		fail("selection.default_target_size must be >= 1")
	}
	for _, name := range sortedKeys(s.TargetSize) {
		if s.TargetSize[name] < 1 {
			fail("selection.target_size[%q] must be >= 1", name)
		}
	}
	if s.MinVisibleDurationS < 0 {
		fail("selection.min_visible_duration_s must be >= 0")
	}
	if s.MinEventDiversity < 0 || s.MinEventDiversity > len(model.AllEventTypes) {
		fail("selection.min_event_diversity must be between 0 and %d", len(model.AllEventTypes))
	}
	if s.MinPhaseSeparationDeg < 0 || s.MinPhaseSeparationDeg > 180 {
		fail("selection.min_phase_separation_deg must be between 0 and 180")
	}
	if s.PhaseRelaxationStepDeg < 0 {
		fail("selection.phase_relaxation_step_deg must be >= 0")
	}
	if s.MaxGapSeconds < 0 {
		fail("selection.max_gap_seconds must be >= 0")
	}
	if s.MaxPasses < 1 {
		fail("selection.max_passes must be >= 1")
	}
	switch s.Strategy {
	case "greedy", "local_search":
	default:
		fail("selection.strategy must be greedy or local_search, got %q", s.Strategy)
	}
	if s.BackupLimit < 0 {
		fail("selection.backup_limit must be >= 0")
	}

	if c.Maintenance.CycleIntervalSeconds <= 0 {
		fail("maintenance.cycle_interval_seconds must be > 0")
	}
	if c.Maintenance.Cycles < 0 {
		fail("maintenance.cycles must be >= 0")
	}
	switch c.Maintenance.Mode {
	case "accelerated", "realtime":
	default:
		fail("maintenance.mode must be accelerated or realtime, got %q", c.Maintenance.Mode)
	}

	switch c.Catalog.Format {
	case "auto", "tle", "yaml":
	default:
		fail("catalog.format must be auto, tle or yaml, got %q", c.Catalog.Format)
	}
	for i, r := range c.Catalog.Constellations {
		if r.Name == "" || r.Prefix == "" {
			fail("catalog.constellations[%d] needs both name and prefix", i)
		}
	}
	if c.Catalog.DefaultConstellation == "" {
		fail("catalog.default_constellation must not be empty")
	}

	if c.Runtime.Workers < 0 {
		fail("runtime.workers must be >= 0")
	}
	switch c.Runtime.OutputFormat {
	case "json", "yaml":
	default:
		fail("runtime.output_format must be json or yaml, got %q", c.Runtime.OutputFormat)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		fail("tracing.sample_ratio must be between 0 and 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", model.ErrConfigurationInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Horizon returns the analysis window length.
func (c Config) Horizon() time.Duration {
	return time.Duration(c.Window.HorizonSeconds) * time.Second
}

// Step returns the sampling interval.
func (c Config) Step() time.Duration {
	return time.Duration(c.Window.StepSeconds) * time.Second
}

// CycleInterval returns how far the window slides per maintenance cycle.
func (c Config) CycleInterval() time.Duration {
	return time.Duration(c.Maintenance.CycleIntervalSeconds) * time.Second
}

// TargetFor returns the pool size for a constellation.
func (c Config) TargetFor(constellation string) int {
	if n, ok := c.Selection.TargetSize[constellation]; ok {
		return n
	}
	return c.Selection.DefaultTargetSize
}

// LinkBudget converts the signal section for core.SignalQualityEstimator.
func (c Config) LinkBudget() core.LinkBudget {
	return core.LinkBudget{
		CarrierFrequencyGHz:     c.Signal.CarrierFrequencyGHz,
		TxPowerDBm:              c.Signal.TxPowerDBm,
		AntennaGainDBi:          c.Signal.AntennaGainDBi,
		ZenithAtmosphericLossDB: c.Signal.ZenithAtmosphericLossDB,
	}
}

// Thresholds converts the events section for core.EventDetector.
func (c Config) Thresholds() core.EventThresholds {
	e := c.Events
	return core.EventThresholds{
		A4ThresholdDBm:  e.A4.ThresholdDBm,
		A4HysteresisDB:  e.A4.HysteresisDB,
		A5Threshold1DBm: e.A5.Threshold1DBm,
		A5Threshold2DBm: e.A5.Threshold2DBm,
		A5HysteresisDB:  e.A5.HysteresisDB,
		D2Threshold1Km:  e.D2.Threshold1Km,
		D2Threshold2Km:  e.D2.Threshold2Km,
		D2HysteresisKm:  e.D2.HysteresisKm,
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
