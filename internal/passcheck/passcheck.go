// Package passcheck re-predicts passes with an independent SGP4
// implementation and reports where it disagrees with the sampled visibility
// windows. Disagreements are warnings; they never change a selection.
package passcheck

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/akhenakh/sgp4"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/model"
)

// Pass is one predicted overhead pass.
type Pass struct {
	AOS             time.Time
	LOS             time.Time
	MaxElevationDeg float64
}

// Predictor returns the passes of sat over obs within [start, end).
type Predictor func(sat model.Satellite, obs model.Observer, start, end time.Time, stepSeconds int) ([]Pass, error)

// SGP4Passes predicts passes with github.com/akhenakh/sgp4.
func SGP4Passes(sat model.Satellite, obs model.Observer, start, end time.Time, stepSeconds int) ([]Pass, error) {
	if err := core.ValidateTLELines(sat.Line1, sat.Line2); err != nil {
		return nil, fmt.Errorf("%s: %w", sat.ID, err)
	}
	name := sat.Name
	if name == "" {
		name = sat.ID
	}
	tle, err := sgp4.ParseTLE(name + "\n" + sat.Line1 + "\n" + sat.Line2)
	if err != nil {
		return nil, fmt.Errorf("parse TLE for %s: %w", sat.ID, err)
	}
	raw, err := tle.GeneratePasses(obs.LatitudeDeg, obs.LongitudeDeg, obs.AltitudeM, start, end, stepSeconds)
	if err != nil {
		return nil, fmt.Errorf("generate passes for %s: %w", sat.ID, err)
	}
	out := make([]Pass, 0, len(raw))
	for _, rp := range raw {
		out = append(out, Pass{AOS: rp.AOS, LOS: rp.LOS, MaxElevationDeg: rp.MaxElevation})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AOS.Before(out[j].AOS) })
	return out, nil
}

// Checker compares sampled windows with independently predicted passes.
type Checker struct {
	observer        model.Observer
	minElevationDeg float64
	tolerance       time.Duration
	stepSeconds     int
	predict         Predictor
}

// New returns a Checker using SGP4Passes.
func New(obs model.Observer, minElevationDeg float64, tolerance time.Duration) *Checker {
	return NewWithPredictor(obs, minElevationDeg, tolerance, nil)
}

// NewWithPredictor returns a Checker using predict, or SGP4Passes if nil.
func NewWithPredictor(obs model.Observer, minElevationDeg float64, tolerance time.Duration, predict Predictor) *Checker {
	if predict == nil {
		predict = SGP4Passes
	}
	return &Checker{
		observer:        obs,
		minElevationDeg: minElevationDeg,
		tolerance:       tolerance,
		stepSeconds:     10,
		predict:         predict,
	}
}

// Check compares one satellite's windows over [start, end) with predicted
// passes. Two disagreements are reported: a window that no predicted pass
// contains within the tolerance, and a predicted pass that clears the
// elevation mask entirely inside the range but overlaps no window.
func (c *Checker) Check(sat model.Satellite, windows []model.Window, start, end time.Time) ([]model.Warning, error) {
	passes, err := c.predict(sat, c.observer, start, end, c.stepSeconds)
	if err != nil {
		return nil, err
	}

	var warnings []model.Warning
	warn := func(format string, args ...any) {
		warnings = append(warnings, model.Warning{
			Kind:          model.WarnVisibilityCrossCheck,
			Constellation: sat.Constellation,
			SatelliteID:   sat.ID,
			Message:       fmt.Sprintf(format, args...),
		})
	}

	for _, w := range windows {
		if !c.confirmed(w, passes, start, end) {
			warn("window %s to %s not confirmed by independent pass prediction",
				w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
		}
	}
	for _, p := range passes {
		if p.MaxElevationDeg < c.minElevationDeg || p.AOS.Before(start) || p.LOS.After(end) {
			continue
		}
		pw := model.Window{Start: p.AOS, End: p.LOS}
		hit := false
		for _, w := range windows {
			if w.Overlaps(pw) {
				hit = true
				break
			}
		}
		if !hit {
			warn("predicted pass %s to %s (max elevation %.1f deg) missing from sampled visibility",
				p.AOS.Format(time.RFC3339), p.LOS.Format(time.RFC3339), p.MaxElevationDeg)
		}
	}
	return warnings, nil
}

// confirmed reports whether some pass contains w within the tolerance.
// Window edges that sit on the range boundary are not compared, since a pass
// in progress at the boundary is clipped differently by each predictor.
func (c *Checker) confirmed(w model.Window, passes []Pass, start, end time.Time) bool {
	for _, p := range passes {
		startOK := !w.Start.After(start) || !w.Start.Before(p.AOS.Add(-c.tolerance))
		endOK := !w.End.Before(end) || !w.End.After(p.LOS.Add(c.tolerance))
		if startOK && endOK && w.Overlaps(model.Window{Start: p.AOS.Add(-c.tolerance), End: p.LOS.Add(c.tolerance)}) {
			return true
		}
	}
	return false
}

// CheckAll runs Check for every satellite, skipping ones whose prediction
// fails (the failure is itself reported as a warning). It stops early if ctx
// is cancelled.
func (c *Checker) CheckAll(ctx context.Context, sats []model.Satellite, windows map[string][]model.Window, start, end time.Time) ([]model.Warning, error) {
	var out []model.Warning
	for _, sat := range sats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ws, err := c.Check(sat, windows[sat.ID], start, end)
		if err != nil {
			out = append(out, model.Warning{
				Kind:          model.WarnVisibilityCrossCheck,
				Constellation: sat.Constellation,
				SatelliteID:   sat.ID,
				Message:       fmt.Sprintf("cross-check unavailable: %v", err),
			})
			continue
		}
		out = append(out, ws...)
	}
	return out, nil
}
