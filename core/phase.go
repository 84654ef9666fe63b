package core

import (
	"math"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// OrbitalPhaseDeg returns a satellite's orbital phase at t: its RAAN plus its
// mean argument of latitude (argument of perigee plus mean anomaly), with the
// mean anomaly advanced from the element epoch by the mean motion. Satellites
// sharing a plane are ordered by where they are along it; planes are offset
// by their node.
func OrbitalPhaseDeg(el model.OrbitalElements, t time.Time) float64 {
	days := t.Sub(el.Epoch).Hours() / 24
	meanAnomaly := el.MeanAnomalyDeg + 360*el.MeanMotionRevPerDay*days
	return NormalizeDeg(el.RAANDeg + el.ArgPerigeeDeg + meanAnomaly)
}

// PhaseSeparationDeg is the circular distance between two phases, in [0, 180].
func PhaseSeparationDeg(a, b float64) float64 {
	d := math.Abs(NormalizeDeg(a) - NormalizeDeg(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
