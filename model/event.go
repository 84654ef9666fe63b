package model

import "time"

// EventType is a 3GPP measurement event.
type EventType string

const (
	// EventA4 fires when a neighbour's signal exceeds a threshold.
	EventA4 EventType = "A4"
	// EventA5 fires when the serving signal degrades while a neighbour's improves.
	EventA5 EventType = "A5"
	// EventD2 fires on the distance-based serving/neighbour condition.
	EventD2 EventType = "D2"
)

// AllEventTypes lists the supported event types in canonical order.
var AllEventTypes = []EventType{EventA4, EventA5, EventD2}

// TriggerValues are the measurements that caused a state transition. For A4
// only Neighbor is meaningful.
type TriggerValues struct {
	Serving  float64 `json:"serving" yaml:"serving"`
	Neighbor float64 `json:"neighbor" yaml:"neighbor"`
}

// EventInterval is a period during which an event's state machine was in the
// Triggered state. A nil LeaveTime means the interval was still open when the
// analysis window ended.
type EventInterval struct {
	Type        EventType      `json:"event_type" yaml:"event_type"`
	SatelliteID string         `json:"satellite_id" yaml:"satellite_id"`
	NeighborID  string         `json:"neighbor_id,omitempty" yaml:"neighbor_id,omitempty"`
	EnterTime   time.Time      `json:"enter_time" yaml:"enter_time"`
	LeaveTime   *time.Time     `json:"leave_time,omitempty" yaml:"leave_time,omitempty"`
	EnterValues TriggerValues  `json:"enter_values" yaml:"enter_values"`
	LeaveValues *TriggerValues `json:"leave_values,omitempty" yaml:"leave_values,omitempty"`
}

// Open reports whether the interval never left the Triggered state.
func (e EventInterval) Open() bool { return e.LeaveTime == nil }

// Involves reports whether id takes part in the interval in any role.
func (e EventInterval) Involves(id string) bool {
	return e.SatelliteID == id || (e.NeighborID != "" && e.NeighborID == id)
}
