package utils

import (
	"math"

	"precinct-nav/model"

	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// EarthRadius WGS84 semi-major axis in meters (same value orb/geo uses)
const EarthRadius = 6378137.0

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

// HaversineDistance great-circle distance between two points in meters.
// Used as the edge weight and A* heuristic for outdoor nodes.
func HaversineDistance(p1, p2 model.GeoPoint) float64 {
	return geo.DistanceHaversine(p1.Orb(), p2.Orb())
}

// PlanarDistance Euclidean distance in render space.
func PlanarDistance(p1, p2 model.PlanarPoint) float64 {
	return planar.Distance(p1.Orb(), p2.Orb())
}

// scale-bug thresholds: anything above these is treated as an integer-encoded
// coordinate (e.g. microdegrees) and divided down by 10 until plausible
const (
	maxPlausibleLat = 180.0
	maxPlausibleLng = 360.0
)

// NormalizeLatitude divides scale-factor bugs down, then clamps to [-90, 90].
func NormalizeLatitude(lat float64) float64 {
	for math.Abs(lat) > maxPlausibleLat {
		lat /= 10
	}
	return math.Max(-90, math.Min(90, lat))
}

// NormalizeLongitude divides scale-factor bugs down, then wraps into
// (-180, 180].
func NormalizeLongitude(lng float64) float64 {
	for math.Abs(lng) > maxPlausibleLng {
		lng /= 10
	}
	lng = math.Mod(lng+180, 360)
	if lng < 0 {
		lng += 360
	}
	lng -= 180
	if lng == -180 {
		lng = 180
	}
	return lng
}

// NormalizeGeo repairs an upstream coordinate. ok is false when the point has
// no canonical form (NaN or infinite components).
func NormalizeGeo(p model.GeoPoint) (model.GeoPoint, bool) {
	if !IsFinite(p.Lat) || !IsFinite(p.Lng) {
		return p, false
	}
	return model.GeoPoint{
		Lat: NormalizeLatitude(p.Lat),
		Lng: NormalizeLongitude(p.Lng),
	}, true
}

// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
