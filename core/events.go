package core

import (
	"sort"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// EventThresholds configures the A4, A5 and D2 state machines. Signal values
// are in dBm/dB, distances in km.
type EventThresholds struct {
	A4ThresholdDBm float64
	A4HysteresisDB float64

	A5Threshold1DBm float64
	A5Threshold2DBm float64
	A5HysteresisDB  float64

	D2Threshold1Km float64
	D2Threshold2Km float64
	D2HysteresisKm float64
}

// DefaultEventThresholds matches the S-band link in DefaultLinkBudget.
func DefaultEventThresholds() EventThresholds {
	return EventThresholds{
		A4ThresholdDBm:  -110,
		A4HysteresisDB:  2,
		A5Threshold1DBm: -105,
		A5Threshold2DBm: -110,
		A5HysteresisDB:  2,
		D2Threshold1Km:  1200,
		D2Threshold2Km:  900,
		D2HysteresisKm:  50,
	}
}

// eventState is the per-relationship state of a detector.
type eventState int

const (
	stateIdle eventState = iota
	stateTriggered
)

// measurement is one sample as seen by a state machine. ok is false when a
// participant is not visible and the sample cannot be measured.
type measurement struct {
	at       time.Time
	serving  float64
	neighbor float64
	ok       bool
}

// trigger holds the enter and leave conditions of one event type.
type trigger struct {
	enter func(serving, neighbor float64) bool
	leave func(serving, neighbor float64) bool
}

// EventDetector runs the measurement-event state machines over time series.
// Every relationship (a satellite for A4, an ordered serving/neighbour pair
// for A5 and D2) has its own independent state.
type EventDetector struct {
	th            EventThresholds
	neighborCount int

	a4, a5, d2 trigger
}

// NewEventDetector returns a detector evaluating each satellite against its
// neighborCount nearest satellites in orbital phase on either side.
func NewEventDetector(th EventThresholds, neighborCount int) *EventDetector {
	if neighborCount < 0 {
		neighborCount = 0
	}
	d := &EventDetector{th: th, neighborCount: neighborCount}

	d.a4 = trigger{
		enter: func(_, n float64) bool { return n > th.A4ThresholdDBm+th.A4HysteresisDB },
		leave: func(_, n float64) bool { return n < th.A4ThresholdDBm-th.A4HysteresisDB },
	}
	d.a5 = trigger{
		enter: func(s, n float64) bool {
			return s < th.A5Threshold1DBm-th.A5HysteresisDB && n > th.A5Threshold2DBm+th.A5HysteresisDB
		},
		leave: func(s, n float64) bool {
			return s > th.A5Threshold1DBm+th.A5HysteresisDB || n < th.A5Threshold2DBm-th.A5HysteresisDB
		},
	}
	d.d2 = trigger{
		enter: func(s, n float64) bool {
			return s > th.D2Threshold1Km+th.D2HysteresisKm && n < th.D2Threshold2Km-th.D2HysteresisKm
		},
		leave: func(s, n float64) bool {
			return s < th.D2Threshold1Km-th.D2HysteresisKm || n > th.D2Threshold2Km+th.D2HysteresisKm
		},
	}
	return d
}

// Thresholds returns the detector's configuration.
func (d *EventDetector) Thresholds() EventThresholds { return d.th }

// DetectA4 evaluates the A4 machine on a single satellite, treating it as the
// neighbour whose signal is compared with the threshold.
func (d *EventDetector) DetectA4(ts *model.TimeSeries) []model.EventInterval {
	if ts == nil {
		return nil
	}
	samples := make([]measurement, len(ts.Points))
	for i, p := range ts.Points {
		samples[i] = measurement{at: p.Time, neighbor: p.RSRPDBm, ok: p.Visible}
	}
	return run(model.EventA4, ts.SatelliteID, "", samples, d.a4)
}

// DetectA5 evaluates A5 for one ordered pair.
func (d *EventDetector) DetectA5(serving, neighbor *model.TimeSeries) []model.EventInterval {
	return d.detectPair(model.EventA5, serving, neighbor, d.a5, func(p model.StatePoint) float64 {
		return p.RSRPDBm
	})
}

// DetectD2 evaluates D2 for one ordered pair using nadir distances.
func (d *EventDetector) DetectD2(serving, neighbor *model.TimeSeries) []model.EventInterval {
	return d.detectPair(model.EventD2, serving, neighbor, d.d2, func(p model.StatePoint) float64 {
		return p.NadirDistanceKm
	})
}

func (d *EventDetector) detectPair(
	typ model.EventType,
	serving, neighbor *model.TimeSeries,
	tr trigger,
	value func(model.StatePoint) float64,
) []model.EventInterval {
	if serving == nil || neighbor == nil {
		return nil
	}
	n := len(serving.Points)
	if len(neighbor.Points) < n {
		n = len(neighbor.Points)
	}
	samples := make([]measurement, n)
	for i := 0; i < n; i++ {
		s, nb := serving.Points[i], neighbor.Points[i]
		samples[i] = measurement{
			at:       s.Time,
			serving:  value(s),
			neighbor: value(nb),
			ok:       s.Visible && nb.Visible,
		}
	}
	return run(typ, serving.SatelliteID, neighbor.SatelliteID, samples, tr)
}

// run drives one two-state machine across the samples.
func run(typ model.EventType, satID, neighborID string, samples []measurement, tr trigger) []model.EventInterval {
	var (
		out   []model.EventInterval
		state = stateIdle
		cur   model.EventInterval
	)
	for _, m := range samples {
		switch state {
		case stateIdle:
			if m.ok && tr.enter(m.serving, m.neighbor) {
				cur = model.EventInterval{
					Type:        typ,
					SatelliteID: satID,
					NeighborID:  neighborID,
					EnterTime:   m.at,
					EnterValues: model.TriggerValues{Serving: m.serving, Neighbor: m.neighbor},
				}
				state = stateTriggered
			}
		case stateTriggered:
			if !m.ok || tr.leave(m.serving, m.neighbor) {
				leave := m.at
				cur.LeaveTime = &leave
				cur.LeaveValues = &model.TriggerValues{Serving: m.serving, Neighbor: m.neighbor}
				out = append(out, cur)
				state = stateIdle
			}
		}
	}
	if state == stateTriggered {
		out = append(out, cur)
	}
	return out
}

// PhasedSeries is a time series tagged with the satellite's orbital phase,
// used to pick neighbours.
type PhasedSeries struct {
	Series   *model.TimeSeries
	PhaseDeg float64
}

// NeighborPairs returns the ordered (serving, neighbour) index pairs to
// evaluate: after sorting by phase, each satellite is paired with up to k
// satellites on each side, wrapping around the orbit. A k larger than the
// ring pairs each satellite with every other one once. The input must already
// be sorted by phase.
func NeighborPairs(n, k int) [][2]int {
	if n < 2 || k <= 0 {
		return nil
	}
	var pairs [][2]int
	for i := 0; i < n; i++ {
		seen := make(map[int]struct{}, 2*k)
		for off := 1; off <= k; off++ {
			for _, j := range []int{(i + off) % n, ((i-off)%n + n) % n} {
				if j == i {
					continue
				}
				if _, dup := seen[j]; dup {
					continue
				}
				seen[j] = struct{}{}
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

// Detect runs every state machine over one constellation's series. The
// result is sorted deterministically regardless of input order.
func (d *EventDetector) Detect(series []PhasedSeries) []model.EventInterval {
	sorted := make([]PhasedSeries, 0, len(series))
	for _, s := range series {
		if s.Series != nil {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PhaseDeg != sorted[j].PhaseDeg {
			return sorted[i].PhaseDeg < sorted[j].PhaseDeg
		}
		return sorted[i].Series.SatelliteID < sorted[j].Series.SatelliteID
	})

	var events []model.EventInterval
	for _, s := range sorted {
		events = append(events, d.DetectA4(s.Series)...)
	}
	for _, p := range NeighborPairs(len(sorted), d.neighborCount) {
		serving, neighbor := sorted[p[0]].Series, sorted[p[1]].Series
		events = append(events, d.DetectA5(serving, neighbor)...)
		events = append(events, d.DetectD2(serving, neighbor)...)
	}
	SortEvents(events)
	return events
}

// SortEvents orders intervals by enter time, then type, satellite and
// neighbour.
func SortEvents(events []model.EventInterval) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.EnterTime.Equal(b.EnterTime) {
			return a.EnterTime.Before(b.EnterTime)
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		if a.SatelliteID != b.SatelliteID {
			return a.SatelliteID < b.SatelliteID
		}
		return a.NeighborID < b.NeighborID
	})
}

// SupportedEventTypes returns, per satellite, the set of event types it took
// part in under any role.
func SupportedEventTypes(events []model.EventInterval) map[string]map[model.EventType]struct{} {
	out := make(map[string]map[model.EventType]struct{})
	add := func(id string, typ model.EventType) {
		if id == "" {
			return
		}
		set, ok := out[id]
		if !ok {
			set = make(map[model.EventType]struct{}, len(model.AllEventTypes))
			out[id] = set
		}
		set[typ] = struct{}{}
	}
	for _, ev := range events {
		add(ev.SatelliteID, ev.Type)
		add(ev.NeighborID, ev.Type)
	}
	return out
}
