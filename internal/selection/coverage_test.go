package selection

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

func win(startS, endS float64) model.Window {
	return model.Window{Start: sec(startS), End: sec(endS)}
}

func TestMergeWindows(t *testing.T) {
	got := MergeWindows([]model.Window{
		win(500, 700),
		win(-100, 100),
		win(100, 200), // touches the previous window
		win(650, 900),
		win(950, 1200), // clipped at the end
		win(300, 300),  // empty
	}, base, sec(1000))

	want := []model.Window{win(0, 200), win(500, 900), win(950, 1000)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeWindows = %v, want %v", got, want)
	}
}

func TestGapsIncludesLeadingAndTrailing(t *testing.T) {
	union := []model.Window{win(100, 200), win(500, 900)}
	got := Gaps(union, base, sec(1000))
	want := []model.Window{win(0, 100), win(200, 500), win(900, 1000)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Gaps = %v, want %v", got, want)
	}
	if d := MaxGap(got); d != 300*time.Second {
		t.Fatalf("MaxGap = %v, want 5m0s", d)
	}
}

func TestGapsWithoutCoverage(t *testing.T) {
	got := Gaps(nil, base, sec(600))
	if len(got) != 1 || got[0] != win(0, 600) {
		t.Fatalf("Gaps(nil) = %v, want the whole window", got)
	}
}

func TestCoverageGaps(t *testing.T) {
	sel := []model.CandidateScore{
		cand("a", 0, 0, 400, 0),
		cand("b", 90, 350, 800, 0),
	}
	gaps := CoverageGaps(sel, base, sec(1000))
	if len(gaps) != 1 || gaps[0] != win(800, 1000) {
		t.Fatalf("CoverageGaps = %v, want [800s, 1000s)", gaps)
	}
}

func TestPhaseSeparations(t *testing.T) {
	got := PhaseSeparations([]float64{350, 10, 100})
	// Sorted phases are 10, 100, 350; 100 to 350 is 110 the short way.
	want := []float64{90, 110, 20}
	if len(got) != len(want) {
		t.Fatalf("PhaseSeparations = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("PhaseSeparations[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if got := PhaseSeparations([]float64{0, 200}); len(got) != 1 || math.Abs(got[0]-160) > 1e-9 {
		t.Fatalf("two phases = %v, want [160]", got)
	}
	if got := PhaseSeparations([]float64{42}); got != nil {
		t.Fatalf("single phase = %v, want nil", got)
	}
}

func TestPhaseViolationsAndRespectsSeparation(t *testing.T) {
	phases := []float64{0, 10, 355, 180}
	// 0-10, 0-355, 10-355 are all below 16 deg.
	if n := PhaseViolations(phases, 16); n != 3 {
		t.Fatalf("PhaseViolations = %d, want 3", n)
	}
	if n := PhaseViolations(phases, 5); n != 0 {
		t.Fatalf("PhaseViolations(5) = %d, want 0", n)
	}
	if !RespectsSeparation(90, phases, 15) {
		t.Fatalf("90 deg should respect 15 deg")
	}
	if RespectsSeparation(190, phases, 15) {
		t.Fatalf("190 deg is within 10 deg of 180")
	}
}
