// Package pipeline wires the visibility, event, candidate and selection
// stages into one canonical, versioned run over an analysis window.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/internal/config"
	"github.com/signalsfoundry/satpool/internal/logging"
	"github.com/signalsfoundry/satpool/internal/observability"
	"github.com/signalsfoundry/satpool/internal/passcheck"
	"github.com/signalsfoundry/satpool/internal/selection"
	"github.com/signalsfoundry/satpool/kb"
	"github.com/signalsfoundry/satpool/model"
)

// Version identifies the stage layout and semantics of this pipeline. It is
// written into every report.
const Version = "v1"

// Stage names, used for spans, logs and metrics.
const (
	StageVisibility = "visibility"
	StageEvents     = "events"
	StageCandidates = "candidates"
	StageSelection  = "selection"
	StageCrossCheck = "crosscheck"
)

// Options carries the collaborators of a Pipeline. Zero values are valid.
type Options struct {
	// Provider defaults to a go-satellite SGP4 provider.
	Provider core.OrbitalStateProvider
	Logger   logging.Logger
	Metrics  *observability.PipelineCollector
	// Checker overrides the cross-check used when visibility.cross_check is
	// enabled.
	Checker *passcheck.Checker
}

// Pipeline runs the stages for one window at a time. It holds no per-run
// state and is safe for concurrent use.
type Pipeline struct {
	cfg      config.Config
	provider core.OrbitalStateProvider
	vis      *core.VisibilityCalculator
	detector *core.EventDetector
	builder  *selection.CandidatePoolBuilder
	strategy selection.Strategy
	checker  *passcheck.Checker
	workers  int

	log     logging.Logger
	metrics *observability.PipelineCollector
}

// New validates cfg and builds the stage components from it.
func New(cfg config.Config, opts Options) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := selection.New(cfg.Selection.Strategy, cfg.Selection.EventWeightS)
	if err != nil {
		return nil, err
	}

	provider := opts.Provider
	if provider == nil {
		provider = core.NewSGP4Provider()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	workers := cfg.Runtime.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pipeline{
		cfg:      cfg,
		provider: provider,
		vis: core.NewVisibilityCalculator(cfg.Observer, cfg.Visibility.MinElevationDeg,
			core.NewSignalQualityEstimator(cfg.LinkBudget())),
		detector: core.NewEventDetector(cfg.Thresholds(), cfg.Events.NeighborCount),
		builder: selection.NewCandidatePoolBuilder(selection.Criteria{
			MinVisibleDuration: time.Duration(cfg.Selection.MinVisibleDurationS * float64(time.Second)),
			MinEventDiversity:  cfg.Selection.MinEventDiversity,
		}, strategy),
		strategy: strategy,
		workers:  workers,
		log:      log.With(logging.String("pipeline_version", Version)),
		metrics:  opts.Metrics,
	}
	if cfg.Visibility.CrossCheck {
		p.checker = opts.Checker
		if p.checker == nil {
			p.checker = passcheck.New(cfg.Observer, cfg.Visibility.MinElevationDeg,
				time.Duration(cfg.Visibility.CrossCheckToleranceSeconds)*time.Second)
		}
	}
	return p, nil
}

// Config returns the configuration the pipeline was built from.
func (p *Pipeline) Config() config.Config { return p.cfg }

// Strategy returns the configured selection strategy.
func (p *Pipeline) Strategy() selection.Strategy { return p.strategy }

// Builder returns the candidate pool builder.
func (p *Pipeline) Builder() *selection.CandidatePoolBuilder { return p.builder }

// Window returns the analysis window starting at start.
func (p *Pipeline) Window(start time.Time) model.Window {
	return model.Window{Start: start, End: start.Add(p.cfg.Horizon())}
}

// Constraints returns the selection constraints for one constellation.
func (p *Pipeline) Constraints(constellation string, window model.Window) selection.Constraints {
	s := p.cfg.Selection
	return selection.Constraints{
		Constellation:          constellation,
		TargetSize:             p.cfg.TargetFor(constellation),
		WindowStart:            window.Start,
		WindowEnd:              window.End,
		MaxGap:                 time.Duration(s.MaxGapSeconds * float64(time.Second)),
		MinPhaseSeparationDeg:  s.MinPhaseSeparationDeg,
		PhaseRelaxationStepDeg: s.PhaseRelaxationStepDeg,
		MaxPasses:              s.MaxPasses,
	}
}

// Analysis is everything computed for one window before selection.
type Analysis struct {
	Window     model.Window
	Satellites map[string]model.Satellite
	Series     map[string]*model.TimeSeries
	Phases     map[string]float64
	Events     []model.EventInterval
	// Evaluated holds every scored satellite per constellation, qualifying
	// or not; Candidates only the qualifying ones. Both are in phase order.
	Evaluated  map[string][]model.CandidateScore
	Candidates map[string][]model.CandidateScore
	Warnings   []model.Warning
}

// Constellations returns the constellation names present, sorted.
func (a *Analysis) Constellations() []string {
	names := make([]string, 0, len(a.Evaluated))
	for name := range a.Evaluated {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeriesList returns the time series ordered by satellite ID.
func (a *Analysis) SeriesList() []*model.TimeSeries {
	out := make([]*model.TimeSeries, 0, len(a.Series))
	for _, ts := range a.Series {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SatelliteID < out[j].SatelliteID })
	return out
}

// Outcome is a complete run: the analysis and each constellation's selection.
type Outcome struct {
	Analysis *Analysis
	Results  map[string]selection.Result
	// Backups ranks each constellation's unselected candidates as of the
	// window start.
	Backups map[string][]model.BackupEntry
	// Warnings holds run-level warnings not tied to a single selection.
	Warnings []model.Warning
}

// Report assembles the run report, with pools and backups from the outcome.
func (o *Outcome) Report(extra []model.Warning, includeTimeSeries bool) *Report {
	r := NewReport(o.Analysis, o.Results, nil, extra, includeTimeSeries)
	for name, entries := range o.Backups {
		r.Backups[name] = append([]model.BackupEntry{}, entries...)
	}
	return r
}

// Run executes every stage for the window starting at start.
func (p *Pipeline) Run(ctx context.Context, sats []model.Satellite, start time.Time) (*Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.String("pipeline.version", Version),
		attribute.Int("satellites", len(sats)),
	)
	defer span.End()

	out, err := p.run(ctx, sats, start)
	switch {
	case err == nil:
		p.metrics.IncRun("ok")
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		p.metrics.IncRun("cancelled")
	default:
		p.metrics.IncRun("error")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (p *Pipeline) run(ctx context.Context, sats []model.Satellite, start time.Time) (*Outcome, error) {
	a, err := p.Analyze(ctx, sats, start)
	if err != nil {
		return nil, err
	}
	results, err := p.Select(ctx, a)
	if err != nil {
		return nil, err
	}
	warnings, err := p.CrossCheck(ctx, a, results)
	if err != nil {
		return nil, err
	}
	backups := make(map[string][]model.BackupEntry, len(results))
	for name, res := range results {
		backups[name] = selection.RankBackups(res, nil, a.Window.Start,
			p.cfg.Selection.BackupLimit, p.cfg.Selection.MinPhaseSeparationDeg)
	}
	return &Outcome{Analysis: a, Results: results, Backups: backups, Warnings: warnings}, nil
}

// Analyze runs the visibility, event and candidate stages.
func (p *Pipeline) Analyze(ctx context.Context, sats []model.Satellite, start time.Time) (*Analysis, error) {
	a := &Analysis{
		Window:     p.Window(start),
		Satellites: make(map[string]model.Satellite, len(sats)),
		Series:     make(map[string]*model.TimeSeries, len(sats)),
		Phases:     make(map[string]float64, len(sats)),
		Evaluated:  make(map[string][]model.CandidateScore),
		Candidates: make(map[string][]model.CandidateScore),
	}
	byConstellation := make(map[string][]model.Satellite)
	for _, sat := range sats {
		a.Satellites[sat.ID] = sat
		a.Phases[sat.ID] = core.OrbitalPhaseDeg(sat.Elements, start)
		byConstellation[sat.Constellation] = append(byConstellation[sat.Constellation], sat)
	}

	err := p.stage(ctx, StageVisibility, func(ctx context.Context) error {
		series, errs, err := p.computeSeries(ctx, sats, start)
		if err != nil {
			return err
		}
		failed := 0
		for i, sat := range sats {
			a.Series[sat.ID] = series[i]
			if errs[i] != nil {
				failed++
				a.Warnings = append(a.Warnings, model.Warning{
					Kind:          model.WarnPropagationUnavailable,
					Constellation: sat.Constellation,
					SatelliteID:   sat.ID,
					Message:       errs[i].Error(),
				})
			}
		}
		p.metrics.AddSatellites(len(sats), failed)
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(byConstellation))
	for name := range byConstellation {
		names = append(names, name)
	}
	sort.Strings(names)

	eventsByConstellation := make(map[string][]model.EventInterval, len(names))
	err = p.stage(ctx, StageEvents, func(ctx context.Context) error {
		for _, name := range names {
			if err := ctx.Err(); err != nil {
				return err
			}
			group := make([]core.PhasedSeries, 0, len(byConstellation[name]))
			for _, sat := range byConstellation[name] {
				group = append(group, core.PhasedSeries{Series: a.Series[sat.ID], PhaseDeg: a.Phases[sat.ID]})
			}
			evs := p.detector.Detect(group)
			eventsByConstellation[name] = evs
			a.Events = append(a.Events, evs...)
		}
		core.SortEvents(a.Events)
		counts := make(map[model.EventType]int)
		for _, ev := range a.Events {
			counts[ev.Type]++
		}
		for _, typ := range model.AllEventTypes {
			p.metrics.AddEvents(string(typ), counts[typ])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(ctx, StageCandidates, func(ctx context.Context) error {
		for _, name := range names {
			inputs := make([]selection.Input, 0, len(byConstellation[name]))
			for _, sat := range byConstellation[name] {
				inputs = append(inputs, selection.Input{
					Satellite: sat,
					Series:    a.Series[sat.ID],
					PhaseDeg:  a.Phases[sat.ID],
				})
			}
			all := p.builder.Evaluate(inputs, eventsByConstellation[name])
			a.Evaluated[name] = all
			qualified := make([]model.CandidateScore, 0, len(all))
			for _, c := range all {
				if p.builder.Qualifies(c) {
					qualified = append(qualified, c)
				}
			}
			a.Candidates[name] = qualified
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.log.Info(ctx, "analysis complete",
		logging.Time("window_start", a.Window.Start),
		logging.Int("satellites", len(sats)),
		logging.Int("events", len(a.Events)),
		logging.Int("constellations", len(names)),
	)
	return a, nil
}

// Select runs the configured strategy for every constellation in a.
func (p *Pipeline) Select(ctx context.Context, a *Analysis) (map[string]selection.Result, error) {
	results := make(map[string]selection.Result, len(a.Candidates))
	err := p.stage(ctx, StageSelection, func(ctx context.Context) error {
		for _, name := range a.Constellations() {
			if err := ctx.Err(); err != nil {
				return err
			}
			res := p.strategy.Select(a.Candidates[name], p.Constraints(name, a.Window))
			results[name] = res
			p.log.Info(ctx, "pool selected",
				logging.String("constellation", name),
				logging.String("strategy", res.Strategy),
				logging.Int("candidates", len(a.Candidates[name])),
				logging.Int("pool", len(res.Selected)),
				logging.Float("max_gap_s", res.Coverage.MaxGapSecondsObserved),
				logging.Int("passes", res.Passes),
				logging.Int("warnings", len(res.Warnings)),
			)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// CrossCheck re-predicts the passes of selected satellites when enabled. It
// returns no warnings when cross-checking is off.
func (p *Pipeline) CrossCheck(ctx context.Context, a *Analysis, results map[string]selection.Result) ([]model.Warning, error) {
	if p.checker == nil {
		return nil, nil
	}
	var warnings []model.Warning
	err := p.stage(ctx, StageCrossCheck, func(ctx context.Context) error {
		var sats []model.Satellite
		windows := make(map[string][]model.Window)
		for _, name := range a.Constellations() {
			for _, c := range results[name].Selected {
				sats = append(sats, a.Satellites[c.SatelliteID])
				windows[c.SatelliteID] = c.Windows
			}
		}
		var err error
		warnings, err = p.checker.CheckAll(ctx, sats, windows, a.Window.Start, a.Window.End)
		return err
	})
	if err != nil {
		return nil, err
	}
	return warnings, nil
}

// Watch keeps provider caches in step with catalog changes and publishes the
// catalog size. The returned function stops watching.
func (p *Pipeline) Watch(c *kb.Catalog) (unsubscribe func()) {
	forgetter, _ := p.provider.(interface{ Forget(id string) })
	p.metrics.SetCatalogSize(c.Len())
	return c.Subscribe(func(ev kb.Event) {
		if forgetter != nil && ev.Type != kb.EventSatelliteAdded {
			forgetter.Forget(ev.Satellite.ID)
		}
		p.metrics.SetCatalogSize(c.Len())
		p.log.Debug(context.Background(), "catalog changed",
			logging.String("change", ev.Type.String()),
			logging.String("satellite_id", ev.Satellite.ID),
		)
	})
}

// Publish records a finished report's pool state and warnings in metrics.
func (p *Pipeline) Publish(r *Report) {
	for name, pool := range r.Pool {
		maxGap := 0.0
		if cov, ok := r.Coverage[name]; ok {
			maxGap = cov.MaxGapSecondsObserved
		}
		p.metrics.SetPool(name, len(pool), len(r.Backups[name]), maxGap)
	}
	for _, w := range r.Warnings {
		p.metrics.IncWarning(string(w.Kind))
	}
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := observability.StartSpan(ctx, "pipeline."+name, attribute.String("stage", name))
	defer span.End()

	started := time.Now()
	err := fn(ctx)
	elapsed := time.Since(started)
	p.metrics.ObserveStage(name, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s stage: %w", name, err)
	}
	p.log.Debug(ctx, "stage finished",
		logging.String("stage", name),
		logging.Duration("elapsed", elapsed),
	)
	return nil
}
