// Package geo holds the small amount of planar geometry the map overlay
// needs: converting metre offsets into degree offsets and laying points out
// evenly on a ring.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/spatial/r2"
)

// MetersPerDegree is the length of one degree of latitude at the equator.
const MetersPerDegree = 111_320.0

// Offset is a displacement in metres; North is +lat, East is +lon.
type Offset struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// MetersToDegreeOffset converts a metric distance into degree offsets for
// both axes.  The same scale is used for latitude and longitude with no
// cos(refLat) correction, so east-west displacements are stretched at high
// latitudes.  The second argument is the reference latitude; it does not
// affect the result and is kept so callers can switch to a corrected
// projection without changing call sites.
func MetersToDegreeOffset(meters, _ float64) (dLat, dLon float64) {
	d := meters / MetersPerDegree
	return d, d
}

// RingPositions returns n offsets evenly spaced on a circle of the given
// radius.  Position i sits at angle 2πi/n measured counter-clockwise from
// east.  n == 1 yields the origin; n <= 0 yields an empty slice.
func RingPositions(n int, radius float64) []Offset {
	if n <= 0 {
		return []Offset{}
	}
	if n == 1 {
		return []Offset{{}}
	}

	out := make([]Offset, n)
	start := r2.Vec{X: radius}
	step := 2 * math.Pi / float64(n)
	for i := range out {
		v := r2.Rotate(start, step*float64(i), r2.Vec{})
		out[i] = Offset{North: v.Y, East: v.X}
	}
	return out
}

// Degrees converts the offset to (dLat, dLon) using MetersToDegreeOffset.
func (o Offset) Degrees(refLat float64) (dLat, dLon float64) {
	dLat, _ = MetersToDegreeOffset(o.North, refLat)
	_, dLon = MetersToDegreeOffset(o.East, refLat)
	return dLat, dLon
}

// Length is the euclidean length of the offset in metres.
func (o Offset) Length() float64 {
	return r2.Norm(r2.Vec{X: o.East, Y: o.North})
}

// Apply moves the point (lat, lon) by the offset.
func (o Offset) Apply(lat, lon float64) (float64, float64) {
	dLat, dLon := o.Degrees(lat)
	return lat + dLat, lon + dLon
}

// Point builds an orb.Point from latitude and longitude.  orb stores
// coordinates as [lon, lat].
func Point(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// ValidLatLon reports whether lat and lon are finite and within range.
func ValidLatLon(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
