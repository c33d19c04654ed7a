// Package geofence decides whether a coordinate lies inside any of a set of
// circular regions, using great-circle distance on a spherical Earth.
package geofence

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distance.
const EarthRadiusMeters = 6371008.8

// ErrInvalidInput is returned for coordinates that are not finite degrees
// within the valid latitude/longitude ranges.
var ErrInvalidInput = errors.New("geofence: invalid coordinates")

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate checks the point is finite and inside the degree ranges.
func (p Point) Validate() error {
	if !finite(p.Latitude) || !finite(p.Longitude) {
		return ErrInvalidInput
	}
	if math.Abs(p.Latitude) > 90 || math.Abs(p.Longitude) > 180 {
		return ErrInvalidInput
	}
	return nil
}

// Region is a circular geofence around a named site.
type Region struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Center       Point   `json:"center"`
	RadiusMeters float64 `json:"radius_meters"`
}

// Contains reports whether p lies within the region, boundary inclusive.
func (r Region) Contains(p Point) bool {
	return Distance(r.Center, p) <= r.RadiusMeters
}

// Distance returns the haversine great-circle distance between a and b in meters.
func Distance(a, b Point) float64 {
	φ1 := radians(a.Latitude)
	φ2 := radians(b.Latitude)
	Δφ := radians(b.Latitude - a.Latitude)
	Δλ := radians(b.Longitude - a.Longitude)

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	// rounding can push h a hair past 1 for antipodal points
	h = math.Min(1, math.Max(0, h))
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinPremises reports whether p is inside at least one region.
// An empty region set never matches. Invalid coordinates return false
// together with ErrInvalidInput.
func WithinPremises(p Point, regions []Region) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, err
	}
	for _, r := range regions {
		if r.Contains(p) {
			return true, nil
		}
	}
	return false, nil
}

// Matching returns every region that contains p, in input order.
func Matching(p Point, regions []Region) []Region {
	if p.Validate() != nil {
		return nil
	}
	var out []Region
	for _, r := range regions {
		if r.Contains(p) {
			out = append(out, r)
		}
	}
	return out
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
