package core

import "math"

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// Vec3 is a cartesian vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// ObserverFrame is a ground observer with its ECEF position and the
// trigonometry of its local frame precomputed, so it can be reused across
// every sample of every satellite.
type ObserverFrame struct {
	LatRad, LonRad float64
	AltKm          float64
	ECEF           Vec3

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewObserverFrame builds a frame from geodetic coordinates (degrees, metres
// above the WGS-84 ellipsoid).
func NewObserverFrame(latDeg, lonDeg, altM float64) ObserverFrame {
	lat := latDeg * deg2rad
	lon := lonDeg * deg2rad
	altKm := altM / 1000.0

	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ObserverFrame{
		LatRad: lat,
		LonRad: lon,
		AltKm:  altKm,
		ECEF: Vec3{
			X: (n + altKm) * cosLat * cosLon,
			Y: (n + altKm) * cosLat * sinLon,
			Z: (n*(1-wgs84E2) + altKm) * sinLat,
		},
		sinLat: sinLat,
		cosLat: cosLat,
		sinLon: sinLon,
		cosLon: cosLon,
	}
}

// LookAngles are the topocentric angles and range from an observer to a target.
type LookAngles struct {
	AzimuthDeg   float64 // 0 = North, clockwise, in [0, 360)
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
}

// ToENU rotates the ECEF range vector from the observer to target into the
// observer's East-North-Up frame.
func (o ObserverFrame) ToENU(target Vec3) (east, north, up float64) {
	r := target.Sub(o.ECEF)
	east = -o.sinLon*r.X + o.cosLon*r.Y
	north = -o.sinLat*o.cosLon*r.X - o.sinLat*o.sinLon*r.Y + o.cosLat*r.Z
	up = o.cosLat*o.cosLon*r.X + o.cosLat*o.sinLon*r.Y + o.sinLat*r.Z
	return east, north, up
}

// LookAnglesTo computes azimuth, elevation and range from the observer to a
// target given in ECEF kilometres.
func (o ObserverFrame) LookAnglesTo(target Vec3) LookAngles {
	east, north, up := o.ToENU(target)

	horiz := math.Hypot(east, north)
	el := math.Atan2(up, horiz) * rad2deg

	az := math.Atan2(east, north) * rad2deg
	if az < 0 {
		az += 360
	}
	if az >= 360 {
		az -= 360
	}

	return LookAngles{
		AzimuthDeg:   az,
		ElevationDeg: el,
		RangeKm:      math.Sqrt(east*east + north*north + up*up),
	}
}

// GeodeticOf converts an ECEF position in kilometres to geodetic latitude and
// longitude in degrees using Bowring's iteration. Altitude is not needed by
// any caller and is not returned.
func GeodeticOf(p Vec3) (latDeg, lonDeg float64) {
	lon := math.Atan2(p.Y, p.X)
	horiz := math.Hypot(p.X, p.Y)

	lat := math.Atan2(p.Z, horiz*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(p.Z+wgs84E2*n*sinLat, horiz)
	}
	return lat * rad2deg, lon * rad2deg
}

// GreatCircleKm returns the haversine distance between two geodetic points on
// a sphere of radius EarthRadiusKm.
func GreatCircleKm(lat1Deg, lon1Deg, lat2Deg, lon2Deg float64) float64 {
	lat1 := lat1Deg * deg2rad
	lat2 := lat2Deg * deg2rad
	dLat := lat2 - lat1
	dLon := (lon2Deg - lon1Deg) * deg2rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// NadirDistanceKm is the ground distance from the observer to the point
// directly beneath a satellite at ECEF position sat.
func (o ObserverFrame) NadirDistanceKm(sat Vec3) float64 {
	lat, lon := GeodeticOf(sat)
	return GreatCircleKm(o.LatRad*rad2deg, o.LonRad*rad2deg, lat, lon)
}

// NormalizeDeg wraps an angle into [0, 360).
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}
