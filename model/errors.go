package model

import "errors"

var (
	// ErrPropagationUnavailable indicates the ephemeris could not produce a
	// state for a sample. The affected series is truncated, not discarded.
	ErrPropagationUnavailable = errors.New("propagation unavailable")
	// ErrInsufficientCandidates indicates fewer qualifying satellites than the
	// target pool size.
	ErrInsufficientCandidates = errors.New("insufficient candidates")
	// ErrPhaseConstraintUnsatisfiable indicates no arrangement met the minimum
	// phase separation.
	ErrPhaseConstraintUnsatisfiable = errors.New("phase constraint unsatisfiable")
	// ErrConfigurationInvalid rejects a configuration before any computation.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)

// WarningKind classifies a non-fatal condition surfaced in the output.
type WarningKind string

const (
	WarnPropagationUnavailable       WarningKind = "PropagationUnavailable"
	WarnInsufficientCandidates       WarningKind = "InsufficientCandidates"
	WarnPhaseConstraintUnsatisfiable WarningKind = "PhaseConstraintUnsatisfiable"
	WarnCoverageGapUnresolved        WarningKind = "CoverageGapUnresolved"
	WarnVisibilityCrossCheck         WarningKind = "VisibilityCrossCheck"
)

// Warning is a non-fatal condition. Warnings are always reported, never
// silently dropped.
type Warning struct {
	Kind          WarningKind `json:"kind" yaml:"kind"`
	Constellation string      `json:"constellation,omitempty" yaml:"constellation,omitempty"`
	SatelliteID   string      `json:"satellite_id,omitempty" yaml:"satellite_id,omitempty"`
	Message       string      `json:"message" yaml:"message"`
}

// WarningsOf returns the warnings of the given kind.
func WarningsOf(ws []Warning, kind WarningKind) []Warning {
	var out []Warning
	for _, w := range ws {
		if w.Kind == kind {
			out = append(out, w)
		}
	}
	return out
}
