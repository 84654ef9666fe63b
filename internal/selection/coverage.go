package selection

import (
	"sort"
	"time"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/model"
)

// MergeWindows returns the union of windows clipped to [start, end), as
// sorted, non-overlapping windows. Touching windows are merged.
func MergeWindows(windows []model.Window, start, end time.Time) []model.Window {
	clipped := make([]model.Window, 0, len(windows))
	for _, w := range windows {
		if w.Start.Before(start) {
			w.Start = start
		}
		if w.End.After(end) {
			w.End = end
		}
		if w.End.After(w.Start) {
			clipped = append(clipped, w)
		}
	}
	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start.Before(clipped[j].Start) })

	var out []model.Window
	for _, w := range clipped {
		if n := len(out); n > 0 && !w.Start.After(out[n-1].End) {
			if w.End.After(out[n-1].End) {
				out[n-1].End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

// Gaps returns the uncovered stretches of [start, end) given a merged union,
// including any leading and trailing gap.
func Gaps(union []model.Window, start, end time.Time) []model.Window {
	var gaps []model.Window
	cursor := start
	for _, w := range union {
		if w.Start.After(cursor) {
			gaps = append(gaps, model.Window{Start: cursor, End: w.Start})
		}
		if w.End.After(cursor) {
			cursor = w.End
		}
	}
	if end.After(cursor) {
		gaps = append(gaps, model.Window{Start: cursor, End: end})
	}
	return gaps
}

// MaxGap returns the longest gap.
func MaxGap(gaps []model.Window) time.Duration {
	var max time.Duration
	for _, g := range gaps {
		if d := g.Duration(); d > max {
			max = d
		}
	}
	return max
}

// CoverageGaps merges the windows of the given candidates and returns the
// gaps over [start, end).
func CoverageGaps(selected []model.CandidateScore, start, end time.Time) []model.Window {
	var all []model.Window
	for _, c := range selected {
		all = append(all, c.Windows...)
	}
	return Gaps(MergeWindows(all, start, end), start, end)
}

// PhaseSeparations returns the circular separation between consecutive
// phases after sorting, including the wrap from the last back to the first.
// Fewer than two phases yield nil.
func PhaseSeparations(phases []float64) []float64 {
	if len(phases) < 2 {
		return nil
	}
	sorted := make([]float64, len(phases))
	for i, p := range phases {
		sorted[i] = core.NormalizeDeg(p)
	}
	sort.Float64s(sorted)
	out := make([]float64, len(sorted))
	for i := range sorted {
		next := sorted[(i+1)%len(sorted)]
		d := next - sorted[i]
		if i == len(sorted)-1 {
			d = next + 360 - sorted[i]
		}
		if d > 180 {
			d = 360 - d
		}
		out[i] = d
	}
	if len(sorted) == 2 {
		// Both entries describe the same pair.
		out = out[:1]
	}
	return out
}

// PhaseViolations counts pairs whose separation is below minSep.
func PhaseViolations(phases []float64, minSep float64) int {
	n := 0
	for i := 0; i < len(phases); i++ {
		for j := i + 1; j < len(phases); j++ {
			if core.PhaseSeparationDeg(phases[i], phases[j]) < minSep {
				n++
			}
		}
	}
	return n
}

// RespectsSeparation reports whether phase keeps at least minSep from every
// phase in pool.
func RespectsSeparation(phase float64, pool []float64, minSep float64) bool {
	for _, p := range pool {
		if core.PhaseSeparationDeg(phase, p) < minSep {
			return false
		}
	}
	return true
}
