package core

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/satpool/model"
)

// OrbitalStateProvider returns the inertial state of a satellite at an
// instant. Implementations must be safe for concurrent use.
type OrbitalStateProvider interface {
	StateAt(sat model.Satellite, t time.Time) (model.InertialState, error)
}

// ProviderFunc adapts a plain function to OrbitalStateProvider.
type ProviderFunc func(sat model.Satellite, t time.Time) (model.InertialState, error)

// StateAt calls f.
func (f ProviderFunc) StateAt(sat model.Satellite, t time.Time) (model.InertialState, error) {
	return f(sat, t)
}

// Bounds on a plausible propagated radius; anything outside is treated as a
// propagation failure (decayed or diverged elements).
const (
	minOrbitRadiusKm = 6200.0
	maxOrbitRadiusKm = 50000.0
)

// SGP4Provider propagates TLEs with go-satellite. The initialised SGP4 record
// for each satellite is cached on first use.
type SGP4Provider struct {
	gravity satellite.Gravity

	mu    sync.RWMutex
	cache map[string]sgp4Record
}

type sgp4Record struct {
	sat satellite.Satellite
	err error
}

// NewSGP4Provider constructs a provider using the WGS72 gravity model.
func NewSGP4Provider() *SGP4Provider {
	return &SGP4Provider{
		gravity: satellite.GravityWGS72,
		cache:   make(map[string]sgp4Record),
	}
}

// StateAt propagates sat to t. go-satellite works in kilometres and km/s in
// the TEME frame.
func (p *SGP4Provider) StateAt(sat model.Satellite, t time.Time) (model.InertialState, error) {
	rec := p.record(sat)
	if rec.err != nil {
		return model.InertialState{}, rec.err
	}

	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	pos, vel := satellite.Propagate(rec.sat, year, int(month), day, hour, min, sec)

	if !finite(pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z) {
		return model.InertialState{}, fmt.Errorf("%w: %s at %s: non-finite state",
			model.ErrPropagationUnavailable, sat.ID, t.Format(time.RFC3339))
	}
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if r < minOrbitRadiusKm || r > maxOrbitRadiusKm {
		return model.InertialState{}, fmt.Errorf("%w: %s at %s: implausible radius %.1f km",
			model.ErrPropagationUnavailable, sat.ID, t.Format(time.RFC3339), r)
	}

	return model.InertialState{
		Time:     t,
		Position: model.Vector{X: pos.X, Y: pos.Y, Z: pos.Z},
		Velocity: model.Vector{X: vel.X, Y: vel.Y, Z: vel.Z},
	}, nil
}

// Reset drops every cached SGP4 record.
func (p *SGP4Provider) Reset() {
	p.mu.Lock()
	p.cache = make(map[string]sgp4Record)
	p.mu.Unlock()
}

// Forget drops the cached record for one satellite, e.g. after its TLE was
// replaced.
func (p *SGP4Provider) Forget(id string) {
	p.mu.Lock()
	delete(p.cache, id)
	p.mu.Unlock()
}

func (p *SGP4Provider) record(sat model.Satellite) sgp4Record {
	p.mu.RLock()
	rec, ok := p.cache[sat.ID]
	p.mu.RUnlock()
	if ok {
		return rec
	}

	rec = p.initialise(sat)

	p.mu.Lock()
	p.cache[sat.ID] = rec
	p.mu.Unlock()
	return rec
}

func (p *SGP4Provider) initialise(sat model.Satellite) sgp4Record {
	// go-satellite calls log.Fatal on malformed lines, so they are checked
	// before the library sees them.
	if err := ValidateTLELines(sat.Line1, sat.Line2); err != nil {
		return sgp4Record{err: fmt.Errorf("%w: %s: %v", model.ErrPropagationUnavailable, sat.ID, err)}
	}
	s := satellite.TLEToSat(strings.TrimSpace(sat.Line1), strings.TrimSpace(sat.Line2), p.gravity)
	if s.Error != 0 {
		return sgp4Record{err: fmt.Errorf("%w: %s: sgp4 init code=%d %s",
			model.ErrPropagationUnavailable, sat.ID, s.Error, s.ErrorStr)}
	}
	return sgp4Record{sat: s}
}

// ValidateTLELines performs the fixed-width format checks SGP4 relies on.
func ValidateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// ECIToECEF rotates an inertial position into the Earth-fixed frame using the
// Greenwich sidereal angle at t.
func ECIToECEF(pos model.Vector, t time.Time) Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)

	ecef := satellite.ECIToECEF(satellite.Vector3{X: pos.X, Y: pos.Y, Z: pos.Z}, gmst)
	return Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
