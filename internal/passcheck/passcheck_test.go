package passcheck

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

var t0 = time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)

func at(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

func fixedPasses(passes ...Pass) Predictor {
	return func(model.Satellite, model.Observer, time.Time, time.Time, int) ([]Pass, error) {
		return passes, nil
	}
}

func TestCheckReportsUnconfirmedWindowsAndMissedPasses(t *testing.T) {
	checker := NewWithPredictor(model.Observer{LatitudeDeg: 45}, 10, time.Minute, fixedPasses(
		Pass{AOS: at(-300), LOS: at(150), MaxElevationDeg: 30},
		Pass{AOS: at(550), LOS: at(950), MaxElevationDeg: 40},
		Pass{AOS: at(1500), LOS: at(1600), MaxElevationDeg: 5},
		Pass{AOS: at(3000), LOS: at(3300), MaxElevationDeg: 25},
	))
	sat := model.Satellite{ID: "44713", Constellation: "STARLINK"}
	windows := []model.Window{
		{Start: at(0), End: at(120)},
		{Start: at(600), End: at(900)},
		{Start: at(2000), End: at(2100)},
	}

	warnings, err := checker.Check(sat, windows, at(0), at(3600))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(warnings) != 2 {
		t.Fatalf("len(warnings) = %d, want 2: %+v", len(warnings), warnings)
	}
	if !strings.Contains(warnings[0].Message, "not confirmed") {
		t.Fatalf("first warning = %q, want the unconfirmed window", warnings[0].Message)
	}
	if !strings.Contains(warnings[1].Message, "missing from sampled visibility") {
		t.Fatalf("second warning = %q, want the missed pass", warnings[1].Message)
	}
	for _, w := range warnings {
		if w.Kind != model.WarnVisibilityCrossCheck || w.SatelliteID != "44713" {
			t.Fatalf("unexpected warning %+v", w)
		}
	}
}

func TestCheckToleratesSmallEdgeDifferences(t *testing.T) {
	checker := NewWithPredictor(model.Observer{}, 10, 30*time.Second, fixedPasses(
		Pass{AOS: at(620), LOS: at(880), MaxElevationDeg: 20},
	))
	windows := []model.Window{{Start: at(600), End: at(900)}}
	warnings, err := checker.Check(model.Satellite{ID: "a"}, windows, at(0), at(3600))
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("20 s edge differences within a 30 s tolerance should pass: %+v", warnings)
	}
}

func TestCheckAllReportsPredictorFailures(t *testing.T) {
	boom := errors.New("decayed")
	checker := NewWithPredictor(model.Observer{}, 10, time.Minute, func(sat model.Satellite, _ model.Observer, _, _ time.Time, _ int) ([]Pass, error) {
		if sat.ID == "bad" {
			return nil, boom
		}
		return nil, nil
	})
	sats := []model.Satellite{{ID: "good"}, {ID: "bad"}}

	warnings, err := checker.CheckAll(context.Background(), sats, nil, at(0), at(600))
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if len(warnings) != 1 || warnings[0].SatelliteID != "bad" {
		t.Fatalf("warnings = %+v, want one for the failing satellite", warnings)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := checker.CheckAll(ctx, sats, nil, at(0), at(600)); !errors.Is(err, context.Canceled) {
		t.Fatalf("CheckAll after cancel = %v, want context.Canceled", err)
	}
}

func TestSGP4PassesRejectsMalformedTLE(t *testing.T) {
	sat := model.Satellite{ID: "junk", Line1: "1 junk", Line2: "2 junk"}
	if _, err := SGP4Passes(sat, model.Observer{}, at(0), at(3600), 10); err == nil {
		t.Fatalf("expected an error for a malformed TLE")
	}
}
