// Package maintenance keeps each constellation's pool at its target size as
// the analysis window slides: members that lose visibility or stop
// qualifying are evicted, backups are promoted, and the result is published
// as a new immutable snapshot.
package maintenance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/signalsfoundry/satpool/internal/logging"
	"github.com/signalsfoundry/satpool/internal/observability"
	"github.com/signalsfoundry/satpool/internal/pipeline"
	"github.com/signalsfoundry/satpool/internal/selection"
	"github.com/signalsfoundry/satpool/kb"
	"github.com/signalsfoundry/satpool/model"
	"github.com/signalsfoundry/satpool/timectrl"
)

// Change actions.
const (
	ActionSelected = "selected"
	ActionEvicted  = "evicted"
	ActionPromoted = "promoted"
	ActionToppedUp = "topped_up"
	ActionRefined  = "refined"
	ActionRemoved  = "removed"
)

// Eviction reasons.
const (
	ReasonNoVisibility   = "no_visibility"
	ReasonNotQualified   = "no_longer_qualified"
	ReasonRefinedOut     = "refined_out"
	ReasonCoverageRepair = "coverage_repair"
)

// Change is one pool membership change made during a cycle.
type Change struct {
	Constellation string `json:"constellation" yaml:"constellation"`
	SatelliteID   string `json:"satellite_id" yaml:"satellite_id"`
	Action        string `json:"action" yaml:"action"`
	Reason        string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// CycleResult is everything one cycle produced.
type CycleResult struct {
	Snapshot *model.PoolSnapshot
	Analysis *pipeline.Analysis
	Results  map[string]selection.Result
	Changes  []Change
	// Warnings are run-level warnings such as cross-check disagreements.
	Warnings []model.Warning
}

// Report builds the output document for the cycle.
func (r *CycleResult) Report(includeTimeSeries bool) *pipeline.Report {
	return pipeline.NewReport(r.Analysis, r.Results, r.Snapshot, r.Warnings, includeTimeSeries)
}

// Options configures an Engine.
type Options struct {
	Logger  logging.Logger
	Metrics *observability.MaintenanceCollector
	// Refine lets a strategy that implements selection.Refiner improve the
	// maintained pool after evictions and promotions.
	Refine bool
}

// Engine is the single coordinator that writes the PoolStore. Cycles are
// serialised by a mutex.
type Engine struct {
	pipe    *pipeline.Pipeline
	catalog *kb.Catalog
	store   *PoolStore
	backups *BackupManager
	refine  bool

	log     logging.Logger
	metrics *observability.MaintenanceCollector

	mu    sync.Mutex
	cycle int
	last  *CycleResult
}

// NewEngine wires an engine around a pipeline, the catalog it reads and the
// store it publishes to.
func NewEngine(pipe *pipeline.Pipeline, catalog *kb.Catalog, store *PoolStore, opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	cfg := pipe.Config()
	return &Engine{
		pipe:    pipe,
		catalog: catalog,
		store:   store,
		backups: NewBackupManager(cfg.Selection.BackupLimit, cfg.Selection.MinPhaseSeparationDeg),
		refine:  opts.Refine,
		log:     log.With(logging.String("component", "maintenance")),
		metrics: opts.Metrics,
	}
}

// Last returns the most recent successful cycle, or nil.
func (e *Engine) Last() *CycleResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Attach runs a cycle on every tick of tc. onCycle, if not nil, is called
// after each cycle with its outcome.
func (e *Engine) Attach(ctx context.Context, tc *timectrl.TimeController, onCycle func(*CycleResult, error)) {
	tc.AddListener(func(now time.Time) {
		res, err := e.Cycle(ctx, now)
		if err != nil {
			e.log.Warn(ctx, "maintenance cycle failed", logging.Time("window_start", now), logging.Err(err))
		}
		if onCycle != nil {
			onCycle(res, err)
		}
	})
}

// Cycle recomputes candidates for the window starting at start, maintains
// every constellation's pool against the previous snapshot, and publishes
// the new snapshot. Nothing is published if the cycle fails.
func (e *Engine) Cycle(ctx context.Context, start time.Time) (*CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cycle := e.cycle + 1
	ctx, span := observability.StartSpan(ctx, "maintenance.cycle",
		attribute.Int("cycle", cycle),
		attribute.String("window_start", start.UTC().Format(time.RFC3339)),
	)
	defer span.End()
	started := time.Now()

	a, err := e.pipe.Analyze(ctx, e.catalog.ListSatellites(), start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	cfg := e.pipe.Config()
	prev := e.store.Load()
	next := &model.PoolSnapshot{
		Cycle:                 cycle,
		WindowStart:           start,
		Pools:                 make(map[string][]string),
		Backups:               make(map[string][]model.BackupEntry),
		TargetSize:            make(map[string]int),
		MinPhaseSeparationDeg: cfg.Selection.MinPhaseSeparationDeg,
	}
	result := &CycleResult{
		Snapshot: next,
		Analysis: a,
		Results:  make(map[string]selection.Result),
	}

	for _, name := range a.Constellations() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cons := e.pipe.Constraints(name, a.Window)

		var (
			res       selection.Result
			changes   []Change
			displaced map[string]bool
		)
		if members, ok := previousPool(prev, name); ok {
			res, changes, displaced = e.maintain(name, members, prev.Backups[name], a, cons)
		} else {
			res = e.pipe.Strategy().Select(a.Candidates[name], cons)
			for _, id := range res.SelectedIDs() {
				changes = append(changes, Change{Constellation: name, SatelliteID: id, Action: ActionSelected})
			}
		}

		result.Results[name] = res
		result.Changes = append(result.Changes, changes...)
		next.Pools[name] = res.SelectedIDs()
		next.Backups[name] = e.backups.Rank(res, displaced, start)
		next.TargetSize[name] = cons.TargetSize
	}
	if prev != nil {
		result.Changes = append(result.Changes, droppedConstellations(prev, next)...)
	}

	warnings, err := e.pipe.CrossCheck(ctx, a, result.Results)
	if err != nil {
		return nil, err
	}
	result.Warnings = warnings

	next.Generation = uuid.NewString()
	e.store.Swap(next)
	e.cycle = cycle
	e.last = result

	e.record(ctx, result, time.Since(started))
	return result, nil
}

func previousPool(prev *model.PoolSnapshot, name string) ([]string, bool) {
	if prev == nil {
		return nil, false
	}
	members, ok := prev.Pools[name]
	return members, ok
}

// maintain carries the previous pool into the new window.
func (e *Engine) maintain(
	name string,
	members []string,
	prevBackups []model.BackupEntry,
	a *pipeline.Analysis,
	cons selection.Constraints,
) (selection.Result, []Change, map[string]bool) {
	candidates := a.Candidates[name]
	qualified := make(map[string]model.CandidateScore, len(candidates))
	for _, c := range candidates {
		qualified[c.SatelliteID] = c
	}
	evaluated := make(map[string]model.CandidateScore, len(a.Evaluated[name]))
	for _, c := range a.Evaluated[name] {
		evaluated[c.SatelliteID] = c
	}

	var (
		changes []Change
		kept    []model.CandidateScore
	)
	inPool := make(map[string]bool)
	note := func(id, action, reason string) {
		changes = append(changes, Change{Constellation: name, SatelliteID: id, Action: action, Reason: reason})
	}

	// Evict members that lost visibility or no longer qualify.
	for _, id := range members {
		c, ok := qualified[id]
		if !ok || c.VisibilityDurationS <= 0 {
			reason := ReasonNotQualified
			if ev, seen := evaluated[id]; !seen || ev.VisibilityDurationS <= 0 {
				reason = ReasonNoVisibility
			}
			note(id, ActionEvicted, reason)
			continue
		}
		kept = append(kept, c)
		inPool[id] = true
	}

	// Promote previous backups that still qualify, best current score first,
	// skipping ones that would crowd a member.
	var promotable []model.CandidateScore
	for _, b := range prevBackups {
		if c, ok := qualified[b.SatelliteID]; ok && !inPool[c.SatelliteID] {
			promotable = append(promotable, c)
		}
	}
	selection.SortByScore(promotable)
	for _, c := range promotable {
		if len(kept) >= cons.TargetSize {
			break
		}
		if inPool[c.SatelliteID] {
			continue
		}
		if !selection.RespectsSeparation(c.OrbitalPhaseDeg, phases(kept), cons.MinPhaseSeparationDeg) {
			continue
		}
		kept = append(kept, c)
		inPool[c.SatelliteID] = true
		note(c.SatelliteID, ActionPromoted, "")
	}

	// Top up from the remaining candidates by score, preferring ones that
	// keep the separation.
	if len(kept) < cons.TargetSize {
		var rest []model.CandidateScore
		for _, c := range candidates {
			if !inPool[c.SatelliteID] {
				rest = append(rest, c)
			}
		}
		selection.SortByScore(rest)
		for len(kept) < cons.TargetSize && len(rest) > 0 {
			pick := 0
			for i, c := range rest {
				if selection.RespectsSeparation(c.OrbitalPhaseDeg, phases(kept), cons.MinPhaseSeparationDeg) {
					pick = i
					break
				}
			}
			c := rest[pick]
			rest = append(rest[:pick], rest[pick+1:]...)
			kept = append(kept, c)
			inPool[c.SatelliteID] = true
			note(c.SatelliteID, ActionToppedUp, "")
		}
	}

	ids := make([]string, len(kept))
	for i, c := range kept {
		ids[i] = c.SatelliteID
	}

	var res selection.Result
	refiner, canRefine := e.pipe.Strategy().(selection.Refiner)
	if e.refine && canRefine {
		res = refiner.Refine(ids, candidates, cons)
	} else {
		res = selection.Report(e.pipe.Strategy().Name(), ids, candidates, cons)
	}

	final := make(map[string]bool, len(res.Selected))
	for _, id := range res.SelectedIDs() {
		final[id] = true
		if !inPool[id] {
			note(id, ActionRefined, ReasonCoverageRepair)
		}
	}
	displaced := make(map[string]bool)
	for _, id := range ids {
		if !final[id] {
			note(id, ActionRefined, ReasonRefinedOut)
		}
	}
	for _, id := range members {
		if !final[id] {
			if _, ok := qualified[id]; ok {
				displaced[id] = true
			}
		}
	}
	return res, changes, displaced
}

// droppedConstellations reports pools that vanished because their
// constellation left the catalog.
func droppedConstellations(prev, next *model.PoolSnapshot) []Change {
	var names []string
	for name := range prev.Pools {
		if _, ok := next.Pools[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var out []Change
	for _, name := range names {
		for _, id := range prev.Pools[name] {
			out = append(out, Change{Constellation: name, SatelliteID: id, Action: ActionRemoved, Reason: ReasonNoVisibility})
		}
	}
	return out
}

func phases(cs []model.CandidateScore) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.OrbitalPhaseDeg
	}
	return out
}

func (e *Engine) record(ctx context.Context, res *CycleResult, elapsed time.Duration) {
	snap := res.Snapshot
	counts := make(map[string]map[string]int)
	for _, ch := range res.Changes {
		if counts[ch.Constellation] == nil {
			counts[ch.Constellation] = make(map[string]int)
		}
		counts[ch.Constellation][ch.Action]++
		e.log.Debug(ctx, "pool change",
			logging.String("constellation", ch.Constellation),
			logging.String("satellite_id", ch.SatelliteID),
			logging.String("action", ch.Action),
			logging.String("reason", ch.Reason),
		)
	}
	for name, byAction := range counts {
		e.metrics.AddSwaps(name, observability.SwapEvicted, byAction[ActionEvicted]+byAction[ActionRemoved])
		e.metrics.AddSwaps(name, observability.SwapPromoted, byAction[ActionPromoted])
		e.metrics.AddSwaps(name, observability.SwapToppedUp, byAction[ActionToppedUp])
		e.metrics.AddSwaps(name, observability.SwapRefined, byAction[ActionRefined])
	}
	e.metrics.ObserveCycle(snap.Cycle, elapsed)

	e.log.Info(ctx, "pool snapshot swapped",
		logging.String("generation", snap.Generation),
		logging.Int("cycle", snap.Cycle),
		logging.Time("window_start", snap.WindowStart),
		logging.Int("changes", len(res.Changes)),
		logging.Duration("elapsed", elapsed),
	)
}
