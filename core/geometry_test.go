package core

import (
	"math"
	"testing"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestObserverFrame_EquatorECEF(t *testing.T) {
	o := NewObserverFrame(0, 0, 0)
	if !approx(o.ECEF.X, wgs84A, 1e-9) || !approx(o.ECEF.Y, 0, 1e-9) || !approx(o.ECEF.Z, 0, 1e-9) {
		t.Fatalf("ECEF = %+v, want (%v, 0, 0)", o.ECEF, wgs84A)
	}
}

func TestLookAngles_Zenith(t *testing.T) {
	o := NewObserverFrame(0, 0, 0)
	sat := Vec3{X: wgs84A + 550, Y: 0, Z: 0}

	la := o.LookAnglesTo(sat)
	if !approx(la.ElevationDeg, 90, 1e-6) {
		t.Fatalf("ElevationDeg = %v, want 90", la.ElevationDeg)
	}
	if !approx(la.RangeKm, 550, 1e-6) {
		t.Fatalf("RangeKm = %v, want 550", la.RangeKm)
	}
}

func TestLookAngles_AzimuthQuadrants(t *testing.T) {
	o := NewObserverFrame(0, 0, 0)
	base := wgs84A + 10

	cases := []struct {
		name   string
		target Vec3
		wantAz float64
	}{
		{"north", Vec3{X: base, Y: 0, Z: 500}, 0},
		{"east", Vec3{X: base, Y: 500, Z: 0}, 90},
		{"south", Vec3{X: base, Y: 0, Z: -500}, 180},
		{"west", Vec3{X: base, Y: -500, Z: 0}, 270},
	}
	for _, tc := range cases {
		la := o.LookAnglesTo(tc.target)
		if !approx(la.AzimuthDeg, tc.wantAz, 1e-6) {
			t.Errorf("%s: AzimuthDeg = %v, want %v", tc.name, la.AzimuthDeg, tc.wantAz)
		}
		if la.AzimuthDeg < 0 || la.AzimuthDeg >= 360 {
			t.Errorf("%s: AzimuthDeg %v outside [0, 360)", tc.name, la.AzimuthDeg)
		}
	}
}

func TestLookAngles_BelowHorizon(t *testing.T) {
	o := NewObserverFrame(0, 0, 0)
	// Antipodal point: straight through the Earth.
	la := o.LookAnglesTo(Vec3{X: -wgs84A - 550})
	if la.ElevationDeg > -89 {
		t.Fatalf("ElevationDeg = %v, want about -90", la.ElevationDeg)
	}
}

func TestGeodeticOf_RoundTrip(t *testing.T) {
	for _, tc := range []struct{ lat, lon, alt float64 }{
		{0, 0, 0},
		{25.03, 121.56, 100},
		{-33.9, 18.4, 0},
		{60, -150, 2000},
	} {
		o := NewObserverFrame(tc.lat, tc.lon, tc.alt)
		lat, lon := GeodeticOf(o.ECEF)
		if !approx(lat, tc.lat, 1e-6) || !approx(lon, tc.lon, 1e-6) {
			t.Errorf("GeodeticOf(%v,%v) = (%v,%v)", tc.lat, tc.lon, lat, lon)
		}
	}
}

func TestGreatCircleKm(t *testing.T) {
	if d := GreatCircleKm(0, 0, 0, 0); d != 0 {
		t.Fatalf("same point distance = %v, want 0", d)
	}
	// A quarter of the equator.
	want := math.Pi / 2 * EarthRadiusKm
	if d := GreatCircleKm(0, 0, 0, 90); !approx(d, want, 1e-6) {
		t.Fatalf("GreatCircleKm = %v, want %v", d, want)
	}
}

func TestNadirDistanceKm_Overhead(t *testing.T) {
	o := NewObserverFrame(10, 20, 0)
	up := NewObserverFrame(10, 20, 550000)
	if d := o.NadirDistanceKm(up.ECEF); d > 1e-3 {
		t.Fatalf("NadirDistanceKm = %v, want ~0", d)
	}
}

func TestNormalizeDeg(t *testing.T) {
	for in, want := range map[float64]float64{
		0: 0, 360: 0, 370: 10, -10: 350, -720: 0, 359.5: 359.5,
	} {
		if got := NormalizeDeg(in); !approx(got, want, 1e-9) {
			t.Errorf("NormalizeDeg(%v) = %v, want %v", in, got, want)
		}
	}
}
