package core

import "math"

const speedOfLightMps = 299792458.0

// minLossElevationDeg floors the elevation used by the atmospheric model so
// the cosecant stays finite at and below the horizon.
const minLossElevationDeg = 1.0

// LinkBudget describes the downlink used to estimate RSRP. Zero values fall
// back to the defaults in DefaultLinkBudget.
type LinkBudget struct {
	// CarrierFrequencyGHz is the downlink carrier.
	CarrierFrequencyGHz float64
	// TxPowerDBm is the per-reference-signal transmit power.
	TxPowerDBm float64
	// AntennaGainDBi is the combined transmit and receive antenna gain.
	AntennaGainDBi float64
	// ZenithAtmosphericLossDB is the gaseous attenuation looking straight up.
	// Slant paths scale it by the cosecant of the elevation.
	ZenithAtmosphericLossDB float64
}

// DefaultLinkBudget is an S-band NTN downlink.
func DefaultLinkBudget() LinkBudget {
	return LinkBudget{
		CarrierFrequencyGHz:     2.0,
		TxPowerDBm:              43,
		AntennaGainDBi:          10,
		ZenithAtmosphericLossDB: 0.5,
	}
}

// SignalQualityEstimator derives an RSRP-like metric from geometry. It is a
// pure function of its inputs: identical range and elevation always give the
// identical RSRP, which keeps event detection reproducible.
type SignalQualityEstimator struct {
	budget LinkBudget
}

// NewSignalQualityEstimator returns an estimator for the given link budget.
func NewSignalQualityEstimator(b LinkBudget) *SignalQualityEstimator {
	def := DefaultLinkBudget()
	if b.CarrierFrequencyGHz <= 0 {
		b.CarrierFrequencyGHz = def.CarrierFrequencyGHz
	}
	return &SignalQualityEstimator{budget: b}
}

// Budget returns the effective link budget.
func (e *SignalQualityEstimator) Budget() LinkBudget { return e.budget }

// RSRP returns tx_power - FSPL(range, f) - atmospheric_loss(elevation) + gain.
func (e *SignalQualityEstimator) RSRP(rangeKm, elevationDeg float64) float64 {
	return e.budget.TxPowerDBm -
		FreeSpacePathLossDB(rangeKm, e.budget.CarrierFrequencyGHz) -
		AtmosphericLossDB(elevationDeg, e.budget.ZenithAtmosphericLossDB) +
		e.budget.AntennaGainDBi
}

// FreeSpacePathLossDB is 20*log10(4*pi*d/lambda).
func FreeSpacePathLossDB(rangeKm, frequencyGHz float64) float64 {
	d := rangeKm * 1000
	if d < 1 {
		d = 1
	}
	lambda := speedOfLightMps / (frequencyGHz * 1e9)
	return 20 * math.Log10(4*math.Pi*d/lambda)
}

// AtmosphericLossDB scales the zenith loss by the cosecant of the elevation.
// It increases monotonically as the elevation falls.
func AtmosphericLossDB(elevationDeg, zenithLossDB float64) float64 {
	if zenithLossDB <= 0 {
		return 0
	}
	el := math.Max(elevationDeg, minLossElevationDeg)
	if el > 90 {
		el = 90
	}
	return zenithLossDB / math.Sin(el*deg2rad)
}
