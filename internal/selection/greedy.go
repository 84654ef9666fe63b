package selection

import (
	"math"

	"github.com/signalsfoundry/satpool/model"
)

// Greedy picks candidates at an even stride through phase order and does not
// try to improve on it.
type Greedy struct {
	scorer VisibilityScorer
}

func (g *Greedy) Name() string { return StrategyGreedy }

func (g *Greedy) Score(c model.CandidateScore) float64 { return g.scorer.Score(c) }

func (g *Greedy) Select(candidates []model.CandidateScore, cons Constraints) Result {
	cs := sortedCopy(candidates)
	sel, rest := split(cs, strideIndices(len(cs), cons.TargetSize))

	sep := cons.MinPhaseSeparationDeg
	if PhaseViolations(phasesOf(sel), sep) > 0 && cons.PhaseRelaxationStepDeg > 0 {
		sep = math.Max(0, sep-cons.PhaseRelaxationStepDeg)
	}
	return finish(g.Name(), sel, rest, cons, sep, len(cs))
}
