package selection

import (
	"reflect"
	"testing"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// seriesVisibleFor builds a 10 s step series whose first n samples are
// visible out of total.
func seriesVisibleFor(id string, n, total int) *model.TimeSeries {
	ts := &model.TimeSeries{SatelliteID: id, Constellation: "TEST", Start: base, Step: 10 * time.Second}
	for i := 0; i < total; i++ {
		ts.Points = append(ts.Points, model.StatePoint{
			Time:    base.Add(time.Duration(i) * ts.Step),
			Visible: i < n,
		})
	}
	return ts
}

func input(id string, phase float64, visibleSamples int) Input {
	return Input{
		Satellite: model.Satellite{ID: id, Constellation: "TEST"},
		Series:    seriesVisibleFor(id, visibleSamples, 60),
		PhaseDeg:  phase,
	}
}

func TestCandidatePoolBuilder_Build(t *testing.T) {
	inputs := []Input{
		input("c", 200, 30), // 300 s, A4 + A5
		input("a", 10, 30),  // 300 s, A4 only
		input("b", 90, 6),   // 60 s, too short
		input("d", 45, 20),  // 200 s, D2 as neighbour + A4
	}
	events := []model.EventInterval{
		{Type: model.EventA4, SatelliteID: "a", EnterTime: base},
		{Type: model.EventA4, SatelliteID: "c", EnterTime: base},
		{Type: model.EventA5, SatelliteID: "c", NeighborID: "b", EnterTime: base},
		{Type: model.EventA4, SatelliteID: "b", EnterTime: base},
		{Type: model.EventD2, SatelliteID: "b", NeighborID: "d", EnterTime: base},
		{Type: model.EventA4, SatelliteID: "d", EnterTime: base},
	}
	builder := NewCandidatePoolBuilder(Criteria{MinVisibleDuration: 120 * time.Second, MinEventDiversity: 2}, VisibilityScorer{EventWeightS: 60})

	all := builder.Evaluate(inputs, events)
	var ids []string
	for _, c := range all {
		ids = append(ids, c.SatelliteID)
	}
	if want := []string{"a", "d", "b", "c"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("Evaluate order = %v, want %v", ids, want)
	}

	got := builder.Build(inputs, events)
	if len(got) != 2 || got[0].SatelliteID != "d" || got[1].SatelliteID != "c" {
		t.Fatalf("Build = %+v, want [d c]", got)
	}
	c := got[1]
	if c.VisibilityDurationS != 300 {
		t.Fatalf("VisibilityDurationS = %v, want 300", c.VisibilityDurationS)
	}
	if want := []model.EventType{model.EventA4, model.EventA5}; !reflect.DeepEqual(c.EventTypes, want) {
		t.Fatalf("EventTypes = %v, want %v", c.EventTypes, want)
	}
	if c.EventSupportCount != 2 {
		t.Fatalf("EventSupportCount = %d, want 2", c.EventSupportCount)
	}
	if c.Score != 420 {
		t.Fatalf("Score = %v, want 420", c.Score)
	}
	if len(c.Windows) != 1 || c.Windows[0].Duration() != 300*time.Second {
		t.Fatalf("Windows = %v", c.Windows)
	}
}

func TestCandidatePoolBuilder_DeterministicOrder(t *testing.T) {
	inputs := []Input{input("z", 10, 30), input("y", 10, 30), input("x", 5, 30)}
	builder := NewCandidatePoolBuilder(Criteria{}, nil)
	first := builder.Evaluate(inputs, nil)
	second := builder.Evaluate([]Input{inputs[2], inputs[0], inputs[1]}, nil)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Evaluate depends on input order")
	}
	if first[0].SatelliteID != "x" || first[1].SatelliteID != "y" {
		t.Fatalf("phase ties should break on ID: %+v", first)
	}
}

func TestCandidatePoolBuilder_IncompleteSeriesStaysEligible(t *testing.T) {
	in := input("p", 0, 20)
	in.Series.Points = in.Series.Points[:15]
	in.Series.Incomplete = true
	builder := NewCandidatePoolBuilder(Criteria{MinVisibleDuration: 100 * time.Second}, nil)
	got := builder.Build([]Input{in}, nil)
	if len(got) != 1 || !got[0].Incomplete || got[0].VisibilityDurationS != 150 {
		t.Fatalf("Build = %+v, want one incomplete candidate with 150 s", got)
	}
}
