package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// DefaultMinElevationDeg is the elevation mask applied when none is configured.
const DefaultMinElevationDeg = 10.0

// VisibilityCalculator turns inertial states into observer-relative
// StatePoints. It holds no mutable state and may be shared between workers.
type VisibilityCalculator struct {
	observer        model.Observer
	frame           ObserverFrame
	minElevationDeg float64
	signal          *SignalQualityEstimator
}

// NewVisibilityCalculator builds a calculator for one ground observer. A nil
// estimator falls back to DefaultLinkBudget.
func NewVisibilityCalculator(obs model.Observer, minElevationDeg float64, sig *SignalQualityEstimator) *VisibilityCalculator {
	if sig == nil {
		sig = NewSignalQualityEstimator(DefaultLinkBudget())
	}
	return &VisibilityCalculator{
		observer:        obs,
		frame:           NewObserverFrame(obs.LatitudeDeg, obs.LongitudeDeg, obs.AltitudeM),
		minElevationDeg: minElevationDeg,
		signal:          sig,
	}
}

// Observer returns the ground observer this calculator measures from.
func (v *VisibilityCalculator) Observer() model.Observer { return v.observer }

// MinElevationDeg returns the elevation mask.
func (v *VisibilityCalculator) MinElevationDeg() float64 { return v.minElevationDeg }

// Point converts one inertial state into a StatePoint. Earth rotation is
// applied at the state's own timestamp.
func (v *VisibilityCalculator) Point(state model.InertialState) model.StatePoint {
	ecef := ECIToECEF(state.Position, state.Time)
	look := v.frame.LookAnglesTo(ecef)

	return model.StatePoint{
		Time:            state.Time,
		ElevationDeg:    look.ElevationDeg,
		AzimuthDeg:      look.AzimuthDeg,
		RangeKm:         look.RangeKm,
		NadirDistanceKm: v.frame.NadirDistanceKm(ecef),
		ECIPosition:     state.Position,
		ECIVelocity:     state.Velocity,
		RSRPDBm:         v.signal.RSRP(look.RangeKm, look.ElevationDeg),
		Visible:         look.ElevationDeg >= v.minElevationDeg,
	}
}

// SampleCount is the number of samples taken over a horizon: horizon/step,
// rounded down.
func SampleCount(horizon, step time.Duration) int {
	if step <= 0 || horizon <= 0 {
		return 0
	}
	return int(horizon / step)
}

// BuildTimeSeries samples sat every step over [start, start+horizon). When the
// provider fails for a sample the series stops there, is marked Incomplete,
// and the returned error wraps model.ErrPropagationUnavailable; the series
// built so far is still returned. Context cancellation returns ctx.Err() and
// no series.
func (v *VisibilityCalculator) BuildTimeSeries(
	ctx context.Context,
	provider OrbitalStateProvider,
	sat model.Satellite,
	start time.Time,
	horizon, step time.Duration,
) (*model.TimeSeries, error) {
	n := SampleCount(horizon, step)
	ts := &model.TimeSeries{
		SatelliteID:   sat.ID,
		Constellation: sat.Constellation,
		Start:         start,
		Step:          step,
		Points:        make([]model.StatePoint, 0, n),
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := start.Add(time.Duration(i) * step)
		state, err := provider.StateAt(sat, at)
		if err != nil {
			ts.Incomplete = true
			truncated := at
			ts.TruncatedAt = &truncated
			if !errors.Is(err, model.ErrPropagationUnavailable) {
				err = fmt.Errorf("%w: %s at %s: %v", model.ErrPropagationUnavailable,
					sat.ID, at.Format(time.RFC3339), err)
			}
			return ts, err
		}
		if state.Time.IsZero() {
			state.Time = at
		}
		ts.Points = append(ts.Points, v.Point(state))
	}
	return ts, nil
}
