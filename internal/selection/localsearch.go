package selection

import (
	"math"
	"sort"

	"github.com/signalsfoundry/satpool/model"
)

const defaultMaxPasses = 50

// LocalSearch starts from the greedy stride and applies improving swaps.
// Every accepted swap strictly lowers the (gap excess, phase violations,
// max gap) objective, and the number of passes is bounded, so the search
// always terminates.
type LocalSearch struct {
	scorer VisibilityScorer
}

func (l *LocalSearch) Name() string { return StrategyLocalSearch }

func (l *LocalSearch) Score(c model.CandidateScore) float64 { return l.scorer.Score(c) }

// Select implements Strategy.
func (l *LocalSearch) Select(candidates []model.CandidateScore, cons Constraints) Result {
	cs := sortedCopy(candidates)
	sel, rest := split(cs, strideIndices(len(cs), cons.TargetSize))
	return l.optimise(sel, rest, cons, len(cs))
}

// Refine implements Refiner. Initial members that are no longer candidates
// are dropped; the selection is topped up or trimmed to the target first.
func (l *LocalSearch) Refine(initial []string, candidates []model.CandidateScore, cons Constraints) Result {
	cs := sortedCopy(candidates)
	keep := make(map[string]bool, len(initial))
	for _, id := range initial {
		keep[id] = true
	}
	var sel, rest []model.CandidateScore
	for _, c := range cs {
		if keep[c.SatelliteID] {
			sel = append(sel, c)
		} else {
			rest = append(rest, c)
		}
	}
	sel, rest = fitToTarget(sel, rest, cons)
	return l.optimise(sel, rest, cons, len(cs))
}

// fitToTarget trims the lowest-scoring members or adds the best-scoring
// candidates, preferring ones that keep the phase separation.
func fitToTarget(sel, rest []model.CandidateScore, cons Constraints) ([]model.CandidateScore, []model.CandidateScore) {
	sel = append([]model.CandidateScore(nil), sel...)
	rest = append([]model.CandidateScore(nil), rest...)

	if len(sel) > cons.TargetSize {
		SortByScore(sel)
		rest = append(rest, sel[cons.TargetSize:]...)
		sel = sel[:cons.TargetSize]
	}
	SortByScore(rest)
	for len(sel) < cons.TargetSize && len(rest) > 0 {
		pick := 0
		for i, c := range rest {
			if RespectsSeparation(c.OrbitalPhaseDeg, phasesOf(sel), cons.MinPhaseSeparationDeg) {
				pick = i
				break
			}
		}
		sel = append(sel, rest[pick])
		rest = append(rest[:pick], rest[pick+1:]...)
	}
	SortByPhase(sel)
	return sel, rest
}

func (l *LocalSearch) optimise(sel, rest []model.CandidateScore, cons Constraints, available int) Result {
	sep := cons.MinPhaseSeparationDeg
	bestSel, bestRest, passes := l.search(sel, rest, cons, sep)

	if obj, _ := evaluate(bestSel, cons, sep); obj.violations > 0 && cons.PhaseRelaxationStepDeg > 0 {
		sep = math.Max(0, sep-cons.PhaseRelaxationStepDeg)
		var more int
		bestSel, bestRest, more = l.search(sel, rest, cons, sep)
		passes += more
	}

	res := finish(l.Name(), bestSel, bestRest, cons, sep, available)
	res.Passes = passes
	return res
}

// search runs improvement passes until no swap helps or the pass budget is
// spent. It never mutates its inputs.
func (l *LocalSearch) search(sel, rest []model.CandidateScore, cons Constraints, sep float64) ([]model.CandidateScore, []model.CandidateScore, int) {
	sel = append([]model.CandidateScore(nil), sel...)
	rest = append([]model.CandidateScore(nil), rest...)

	maxPasses := cons.MaxPasses
	if maxPasses <= 0 {
		maxPasses = defaultMaxPasses
	}

	cur, gaps := evaluate(sel, cons, sep)
	passes := 0
	for passes < maxPasses {
		passes++
		nextSel, nextRest, ok := l.gapRepair(sel, rest, cons, sep, cur, gaps)
		if !ok {
			nextSel, nextRest, ok = l.phaseRepair(sel, rest, cons, sep, cur)
		}
		if !ok {
			break
		}
		sel, rest = nextSel, nextRest
		cur, gaps = evaluate(sel, cons, sep)
	}
	return sel, rest, passes
}

// gapRepair tries, worst gap first, to swap in the highest-scoring unselected
// candidate overlapping the gap, evicting the lowest-scoring member for which
// the objective still improves.
func (l *LocalSearch) gapRepair(
	sel, rest []model.CandidateScore,
	cons Constraints,
	sep float64,
	cur objective,
	gaps []model.Window,
) ([]model.CandidateScore, []model.CandidateScore, bool) {
	limit := cons.MaxGap.Seconds()
	var open []model.Window
	for _, g := range gaps {
		if g.Duration().Seconds() > limit {
			open = append(open, g)
		}
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].Duration() > open[j].Duration() })

	evict := byScoreAscending(sel)
	for _, gap := range open {
		for _, j := range byScoreDescending(rest) {
			if !coversAny(rest[j], gap) {
				continue
			}
			for _, i := range evict {
				trialSel, trialRest := swap(sel, rest, i, j)
				if obj, _ := evaluate(trialSel, cons, sep); obj.less(cur) {
					return trialSel, trialRest, true
				}
			}
		}
	}
	return nil, nil, false
}

// phaseRepair replaces a member involved in a separation violation with the
// best-scoring unselected candidate that improves the objective.
func (l *LocalSearch) phaseRepair(
	sel, rest []model.CandidateScore,
	cons Constraints,
	sep float64,
	cur objective,
) ([]model.CandidateScore, []model.CandidateScore, bool) {
	if cur.violations == 0 {
		return nil, nil, false
	}
	violating := make(map[int]bool)
	for i := range sel {
		for k := i + 1; k < len(sel); k++ {
			if !RespectsSeparation(sel[i].OrbitalPhaseDeg, []float64{sel[k].OrbitalPhaseDeg}, sep) {
				violating[i] = true
				violating[k] = true
			}
		}
	}
	for _, i := range byScoreAscending(sel) {
		if !violating[i] {
			continue
		}
		for _, j := range byScoreDescending(rest) {
			trialSel, trialRest := swap(sel, rest, i, j)
			if obj, _ := evaluate(trialSel, cons, sep); obj.less(cur) {
				return trialSel, trialRest, true
			}
		}
	}
	return nil, nil, false
}

func coversAny(c model.CandidateScore, gap model.Window) bool {
	for _, w := range c.Windows {
		if w.Overlaps(gap) {
			return true
		}
	}
	return false
}

// swap moves rest[j] into the selection in place of sel[i] and returns new
// slices, keeping the selection in phase order.
func swap(sel, rest []model.CandidateScore, i, j int) ([]model.CandidateScore, []model.CandidateScore) {
	newSel := make([]model.CandidateScore, 0, len(sel))
	for k, c := range sel {
		if k != i {
			newSel = append(newSel, c)
		}
	}
	newSel = append(newSel, rest[j])
	SortByPhase(newSel)

	newRest := make([]model.CandidateScore, 0, len(rest))
	for k, c := range rest {
		if k != j {
			newRest = append(newRest, c)
		}
	}
	newRest = append(newRest, sel[i])
	return newSel, newRest
}

func byScoreAscending(cs []model.CandidateScore) []int {
	idx := indices(len(cs))
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := cs[idx[a]], cs[idx[b]]
		if ca.Score != cb.Score {
			return ca.Score < cb.Score
		}
		return ca.SatelliteID < cb.SatelliteID
	})
	return idx
}

func byScoreDescending(cs []model.CandidateScore) []int {
	idx := indices(len(cs))
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := cs[idx[a]], cs[idx[b]]
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		return ca.SatelliteID < cb.SatelliteID
	})
	return idx
}

func indices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
