package model

// CandidateScore summarises one satellite for a single selection cycle. It is
// derived from the satellite's TimeSeries and EventIntervals and is never
// persisted.
type CandidateScore struct {
	SatelliteID         string      `json:"satellite_id" yaml:"satellite_id"`
	Constellation       string      `json:"constellation" yaml:"constellation"`
	VisibilityDurationS float64     `json:"visibility_duration_s" yaml:"visibility_duration_s"`
	EventSupportCount   int         `json:"event_support_count" yaml:"event_support_count"`
	EventTypes          []EventType `json:"event_types" yaml:"event_types"`
	OrbitalPhaseDeg     float64     `json:"orbital_phase_deg" yaml:"orbital_phase_deg"`
	Windows             []Window    `json:"windows" yaml:"windows"`
	Incomplete          bool        `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`

	// Score is the ranking value assigned by the active selection strategy.
	Score float64 `json:"score" yaml:"score"`
}

// HasEvent reports whether the candidate supports the given event type.
func (c CandidateScore) HasEvent(t EventType) bool {
	for _, et := range c.EventTypes {
		if et == t {
			return true
		}
	}
	return false
}
