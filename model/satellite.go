package model

import "time"

// OrbitalElements are the mean Keplerian elements carried by a TLE.
type OrbitalElements struct {
	Epoch               time.Time `json:"epoch" yaml:"epoch"`
	InclinationDeg      float64   `json:"inclination_deg" yaml:"inclination_deg"`
	RAANDeg             float64   `json:"raan_deg" yaml:"raan_deg"`
	Eccentricity        float64   `json:"eccentricity" yaml:"eccentricity"`
	ArgPerigeeDeg       float64   `json:"arg_perigee_deg" yaml:"arg_perigee_deg"`
	MeanAnomalyDeg      float64   `json:"mean_anomaly_deg" yaml:"mean_anomaly_deg"`
	MeanMotionRevPerDay float64   `json:"mean_motion_rev_per_day" yaml:"mean_motion_rev_per_day"`
}

// Satellite is a catalog entry. It is owned by the catalog and treated as
// read-only by every pipeline stage.
type Satellite struct {
	ID            string
	Name          string
	NoradID       int
	Constellation string

	// Line1 and Line2 are the raw TLE lines the elements were parsed from.
	// Propagators consume them directly.
	Line1 string
	Line2 string

	Elements OrbitalElements
}

// Observer is a fixed ground location in geodetic coordinates.
type Observer struct {
	LatitudeDeg  float64 `json:"latitude_deg" toml:"latitude_deg" yaml:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg" toml:"longitude_deg" yaml:"longitude_deg"`
	AltitudeM    float64 `json:"altitude_m" toml:"altitude_m" yaml:"altitude_m"`
}

// Vector is a cartesian triple. Units depend on context (km or km/s).
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// InertialState is a propagated TEME/ECI state in km and km/s.
type InertialState struct {
	Time     time.Time
	Position Vector
	Velocity Vector
}
