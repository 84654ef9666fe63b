// Package selection picks a bounded, phase-diverse pool per constellation
// from scored candidates while keeping the union of their visibility windows
// free of long gaps.
package selection

import (
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// Strategy names accepted by New.
const (
	StrategyGreedy      = "greedy"
	StrategyLocalSearch = "local_search"
)

// Constraints bound one constellation's selection.
type Constraints struct {
	Constellation          string
	TargetSize             int
	WindowStart            time.Time
	WindowEnd              time.Time
	MaxGap                 time.Duration
	MinPhaseSeparationDeg  float64
	PhaseRelaxationStepDeg float64
	MaxPasses              int
}

// Strategy selects a pool from candidates sorted by phase.
type Strategy interface {
	Name() string
	Score(c model.CandidateScore) float64
	Select(candidates []model.CandidateScore, cons Constraints) Result
}

// Refiner improves an existing selection instead of starting from scratch.
type Refiner interface {
	Refine(initial []string, candidates []model.CandidateScore, cons Constraints) Result
}

// New returns the named strategy.
func New(name string, eventWeightS float64) (Strategy, error) {
	scorer := VisibilityScorer{EventWeightS: eventWeightS}
	switch name {
	case StrategyGreedy:
		return &Greedy{scorer: scorer}, nil
	case StrategyLocalSearch, "":
		return &LocalSearch{scorer: scorer}, nil
	default:
		return nil, fmt.Errorf("%w: unknown selection strategy %q", model.ErrConfigurationInvalid, name)
	}
}

// CoverageReport summarises a selection's coverage and phase spacing.
type CoverageReport struct {
	MaxGapSecondsObserved          float64        `json:"max_gap_seconds_observed" yaml:"max_gap_seconds_observed"`
	Gaps                           []model.Window `json:"gaps,omitempty" yaml:"gaps,omitempty"`
	PhaseSeparationsDeg            []float64      `json:"phase_separations_deg" yaml:"phase_separations_deg"`
	MinPhaseSeparationDeg          float64        `json:"min_phase_separation_deg" yaml:"min_phase_separation_deg"`
	EffectiveMinPhaseSeparationDeg float64        `json:"effective_min_phase_separation_deg" yaml:"effective_min_phase_separation_deg"`
	PhaseViolation                 bool           `json:"phase_violation" yaml:"phase_violation"`
}

// Result is one constellation's selection.
type Result struct {
	Constellation string
	Strategy      string
	// Selected is ordered by phase.
	Selected []model.CandidateScore
	// Unselected holds the remaining candidates ordered by descending score.
	Unselected []model.CandidateScore
	Coverage   CoverageReport
	Warnings   []model.Warning
	Passes     int
}

// SelectedIDs returns the selected satellite IDs in phase order.
func (r Result) SelectedIDs() []string {
	ids := make([]string, len(r.Selected))
	for i, c := range r.Selected {
		ids[i] = c.SatelliteID
	}
	return ids
}

// objective is compared lexicographically; lower is better.
type objective struct {
	gapExcess  float64
	violations int
	maxGap     float64
}

func (o objective) less(other objective) bool {
	const eps = 1e-9
	if math.Abs(o.gapExcess-other.gapExcess) > eps {
		return o.gapExcess < other.gapExcess
	}
	if o.violations != other.violations {
		return o.violations < other.violations
	}
	return other.maxGap-o.maxGap > eps
}

// evaluate scores a selection under the given constraints.
func evaluate(sel []model.CandidateScore, cons Constraints, minSep float64) (objective, []model.Window) {
	gaps := CoverageGaps(sel, cons.WindowStart, cons.WindowEnd)
	limit := cons.MaxGap.Seconds()
	var o objective
	for _, g := range gaps {
		d := g.Duration().Seconds()
		if d > limit {
			o.gapExcess += d - limit
		}
		if d > o.maxGap {
			o.maxGap = d
		}
	}
	o.violations = PhaseViolations(phasesOf(sel), minSep)
	return o, gaps
}

func phasesOf(cs []model.CandidateScore) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.OrbitalPhaseDeg
	}
	return out
}

// Report builds the result for a fixed selection. Unselected candidates are
// ranked by score.
func Report(strategy string, selected []string, candidates []model.CandidateScore, cons Constraints) Result {
	in := make(map[string]bool, len(selected))
	for _, id := range selected {
		in[id] = true
	}
	var sel, rest []model.CandidateScore
	for _, c := range candidates {
		if in[c.SatelliteID] {
			sel = append(sel, c)
		} else {
			rest = append(rest, c)
		}
	}
	return finish(strategy, sel, rest, cons, cons.MinPhaseSeparationDeg, len(candidates))
}

// finish assembles the Result and its warnings.
func finish(strategy string, sel, rest []model.CandidateScore, cons Constraints, effectiveSep float64, available int) Result {
	SortByPhase(sel)
	rest = append([]model.CandidateScore(nil), rest...)
	SortByScore(rest)

	obj, gaps := evaluate(sel, cons, effectiveSep)
	res := Result{
		Constellation: cons.Constellation,
		Strategy:      strategy,
		Selected:      sel,
		Unselected:    rest,
		Coverage: CoverageReport{
			MaxGapSecondsObserved:          obj.maxGap,
			Gaps:                           gaps,
			PhaseSeparationsDeg:            PhaseSeparations(phasesOf(sel)),
			MinPhaseSeparationDeg:          cons.MinPhaseSeparationDeg,
			EffectiveMinPhaseSeparationDeg: effectiveSep,
			PhaseViolation:                 obj.violations > 0,
		},
	}

	insufficient := available < cons.TargetSize
	if insufficient {
		res.Warnings = append(res.Warnings, model.Warning{
			Kind:          model.WarnInsufficientCandidates,
			Constellation: cons.Constellation,
			Message: fmt.Sprintf("%d qualifying candidates for a target of %d; pool holds %d",
				available, cons.TargetSize, len(sel)),
		})
	}
	if obj.violations > 0 {
		res.Warnings = append(res.Warnings, model.Warning{
			Kind:          model.WarnPhaseConstraintUnsatisfiable,
			Constellation: cons.Constellation,
			Message: fmt.Sprintf("%d pool pairs closer than %.2f deg; best-effort pool reported",
				obj.violations, effectiveSep),
		})
	} else if effectiveSep < cons.MinPhaseSeparationDeg {
		res.Warnings = append(res.Warnings, model.Warning{
			Kind:          model.WarnPhaseConstraintUnsatisfiable,
			Constellation: cons.Constellation,
			Message: fmt.Sprintf("min phase separation %.2f deg unsatisfiable; relaxed to %.2f deg",
				cons.MinPhaseSeparationDeg, effectiveSep),
		})
	}
	if obj.gapExcess > 0 && !insufficient {
		res.Warnings = append(res.Warnings, model.Warning{
			Kind:          model.WarnCoverageGapUnresolved,
			Constellation: cons.Constellation,
			Message: fmt.Sprintf("max coverage gap %.0fs exceeds %.0fs",
				obj.maxGap, cons.MaxGap.Seconds()),
		})
	}
	return res
}

// strideIndices picks target indices spread evenly over n sorted candidates.
func strideIndices(n, target int) []int {
	if target >= n {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, target)
	for i := range idx {
		idx[i] = i * n / target
	}
	return idx
}

// split partitions candidates into the chosen indices and the rest.
func split(candidates []model.CandidateScore, idx []int) (sel, rest []model.CandidateScore) {
	chosen := make(map[int]bool, len(idx))
	for _, i := range idx {
		chosen[i] = true
	}
	for i, c := range candidates {
		if chosen[i] {
			sel = append(sel, c)
		} else {
			rest = append(rest, c)
		}
	}
	return sel, rest
}

func sortedCopy(candidates []model.CandidateScore) []model.CandidateScore {
	cs := append([]model.CandidateScore(nil), candidates...)
	SortByPhase(cs)
	return cs
}
