package selection

import (
	"sort"
	"time"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/model"
)

// Criteria are the qualification thresholds for a candidate.
type Criteria struct {
	MinVisibleDuration time.Duration
	MinEventDiversity  int
}

// Input is one satellite's computed series for a selection cycle.
type Input struct {
	Satellite model.Satellite
	Series    *model.TimeSeries
	PhaseDeg  float64
}

// Scorer assigns the ranking value of a candidate.
type Scorer interface {
	Score(c model.CandidateScore) float64
}

// CandidatePoolBuilder turns per-satellite series and events into scored
// candidates and filters them by the qualification criteria. It is a pure
// function of its inputs.
type CandidatePoolBuilder struct {
	criteria Criteria
	scorer   Scorer
}

// NewCandidatePoolBuilder returns a builder. A nil scorer ranks by visible
// duration alone.
func NewCandidatePoolBuilder(criteria Criteria, scorer Scorer) *CandidatePoolBuilder {
	if scorer == nil {
		scorer = VisibilityScorer{}
	}
	return &CandidatePoolBuilder{criteria: criteria, scorer: scorer}
}

// Criteria returns the builder's qualification thresholds.
func (b *CandidatePoolBuilder) Criteria() Criteria { return b.criteria }

// Evaluate scores every input of one constellation, qualifying or not.
// Events may cover several constellations; only intervals involving a
// given satellite count towards it. The result is sorted by (phase, ID).
func (b *CandidatePoolBuilder) Evaluate(inputs []Input, events []model.EventInterval) []model.CandidateScore {
	support := core.SupportedEventTypes(events)
	counts := make(map[string]int)
	for _, ev := range events {
		counts[ev.SatelliteID]++
		if ev.NeighborID != "" && ev.NeighborID != ev.SatelliteID {
			counts[ev.NeighborID]++
		}
	}

	out := make([]model.CandidateScore, 0, len(inputs))
	for _, in := range inputs {
		if in.Series == nil {
			continue
		}
		id := in.Satellite.ID
		c := model.CandidateScore{
			SatelliteID:         id,
			Constellation:       in.Satellite.Constellation,
			VisibilityDurationS: in.Series.VisibleDuration().Seconds(),
			EventSupportCount:   counts[id],
			OrbitalPhaseDeg:     in.PhaseDeg,
			Windows:             in.Series.VisibleWindows(),
			Incomplete:          in.Series.Incomplete,
		}
		for _, typ := range model.AllEventTypes {
			if _, ok := support[id][typ]; ok {
				c.EventTypes = append(c.EventTypes, typ)
			}
		}
		c.Score = b.scorer.Score(c)
		out = append(out, c)
	}
	SortByPhase(out)
	return out
}

// Qualifies reports whether a candidate meets the criteria.
func (b *CandidatePoolBuilder) Qualifies(c model.CandidateScore) bool {
	return c.VisibilityDurationS >= b.criteria.MinVisibleDuration.Seconds() &&
		len(c.EventTypes) >= b.criteria.MinEventDiversity
}

// Build evaluates the inputs and keeps the qualifying candidates.
func (b *CandidatePoolBuilder) Build(inputs []Input, events []model.EventInterval) []model.CandidateScore {
	all := b.Evaluate(inputs, events)
	out := all[:0:0]
	for _, c := range all {
		if b.Qualifies(c) {
			out = append(out, c)
		}
	}
	return out
}

// SortByPhase orders candidates by orbital phase, then ID.
func SortByPhase(cs []model.CandidateScore) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].OrbitalPhaseDeg != cs[j].OrbitalPhaseDeg {
			return cs[i].OrbitalPhaseDeg < cs[j].OrbitalPhaseDeg
		}
		return cs[i].SatelliteID < cs[j].SatelliteID
	})
}

// SortByScore orders candidates by descending score, then ID.
func SortByScore(cs []model.CandidateScore) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		return cs[i].SatelliteID < cs[j].SatelliteID
	})
}

// VisibilityScorer ranks candidates by visible seconds plus a fixed credit
// per supported event type.
type VisibilityScorer struct {
	EventWeightS float64
}

// Score implements Scorer.
func (s VisibilityScorer) Score(c model.CandidateScore) float64 {
	return c.VisibilityDurationS + s.EventWeightS*float64(len(c.EventTypes))
}
