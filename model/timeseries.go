package model

import "time"

// StatePoint is the observer-relative state of one satellite at one sampled
// instant. Points are immutable once produced.
type StatePoint struct {
	Time            time.Time `json:"time" yaml:"time"`
	ElevationDeg    float64   `json:"elevation_deg" yaml:"elevation_deg"`
	AzimuthDeg      float64   `json:"azimuth_deg" yaml:"azimuth_deg"`
	RangeKm         float64   `json:"range_km" yaml:"range_km"`
	NadirDistanceKm float64   `json:"nadir_distance_km" yaml:"nadir_distance_km"`
	ECIPosition     Vector    `json:"eci_position" yaml:"eci_position"`
	ECIVelocity     Vector    `json:"eci_velocity" yaml:"eci_velocity"`
	RSRPDBm         float64   `json:"rsrp_dbm" yaml:"rsrp_dbm"`
	Visible         bool      `json:"is_visible" yaml:"is_visible"`
}

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Duration returns the window length, or zero for inverted windows.
func (w Window) Duration() time.Duration {
	if !w.End.After(w.Start) {
		return 0
	}
	return w.End.Sub(w.Start)
}

// Overlaps reports whether w and other share any instant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// TimeSeries is the fixed-step sequence of StatePoints for one satellite over
// the analysis window. A series whose propagation failed part way is cut at
// the failing sample and marked Incomplete.
type TimeSeries struct {
	SatelliteID   string        `json:"satellite_id" yaml:"satellite_id"`
	Constellation string        `json:"constellation" yaml:"constellation"`
	Start         time.Time     `json:"start" yaml:"start"`
	Step          time.Duration `json:"step" yaml:"step"`
	Points        []StatePoint  `json:"points" yaml:"points"`
	Incomplete    bool          `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
	TruncatedAt   *time.Time    `json:"truncated_at,omitempty" yaml:"truncated_at,omitempty"`
}

// VisibleWindows groups consecutive visible samples into windows. Each
// visible sample covers one step, so a window runs from its first visible
// sample to one step past its last.
func (ts *TimeSeries) VisibleWindows() []Window {
	if ts == nil {
		return nil
	}
	var (
		windows []Window
		open    bool
		start   time.Time
	)
	for _, p := range ts.Points {
		if p.Visible {
			if !open {
				start = p.Time
				open = true
			}
			continue
		}
		if open {
			windows = append(windows, Window{Start: start, End: p.Time})
			open = false
		}
	}
	if open {
		last := ts.Points[len(ts.Points)-1].Time
		windows = append(windows, Window{Start: start, End: last.Add(ts.Step)})
	}
	return windows
}

// VisibleDuration is the total time covered by visible samples.
func (ts *TimeSeries) VisibleDuration() time.Duration {
	var total time.Duration
	for _, w := range ts.VisibleWindows() {
		total += w.Duration()
	}
	return total
}

// End returns the instant just past the last sample.
func (ts *TimeSeries) End() time.Time {
	if ts == nil || len(ts.Points) == 0 {
		if ts == nil {
			return time.Time{}
		}
		return ts.Start
	}
	return ts.Points[len(ts.Points)-1].Time.Add(ts.Step)
}
