package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/akhenakh/sgp4"

	"github.com/signalsfoundry/satpool/model"
)

// ElementsFromTLE returns the mean elements of a parsed TLE.
func ElementsFromTLE(tle *sgp4.TLE) (model.OrbitalElements, error) {
	if tle == nil {
		return model.OrbitalElements{}, errors.New("nil TLE")
	}
	if tle.MeanMotion <= 0 {
		return model.OrbitalElements{}, fmt.Errorf("non-positive mean motion %g", tle.MeanMotion)
	}
	return model.OrbitalElements{
		Epoch:               tle.EpochTime(),
		InclinationDeg:      tle.Inclination,
		RAANDeg:             tle.RightAscension,
		Eccentricity:        tle.Eccentricity,
		ArgPerigeeDeg:       tle.ArgOfPerigee,
		MeanAnomalyDeg:      tle.MeanAnomaly,
		MeanMotionRevPerDay: tle.MeanMotion,
	}, nil
}

// ParseElements parses a two-line element set and returns its mean elements.
func ParseElements(line1, line2 string) (model.OrbitalElements, error) {
	tle, err := sgp4.ParseTLE(strings.TrimSpace(line1) + "\n" + strings.TrimSpace(line2))
	if err != nil {
		return model.OrbitalElements{}, fmt.Errorf("parse TLE: %w", err)
	}
	return ElementsFromTLE(tle)
}
