// Package geo parses coordinates found in branch/ATM locator payloads and measures
// distances between them.
package geo

import (
	"math"
	"regexp"
	"strconv"
)

var reLatLng = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseLatLng parses "lat,lng" with optional whitespace around either number.
// Values outside the valid latitude/longitude ranges are rejected.
func ParseLatLng(s string) (Point, bool) {
	m := reLatLng.FindStringSubmatch(s)
	if len(m) != 3 {
		return Point{}, false
	}
	lat, lng, ok := parse2(m[1], m[2])
	if !ok || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

func parse2(a, b string) (lat, lng float64, ok bool) {
	la, err1 := strconv.ParseFloat(a, 64)
	lo, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return la, lo, true
}

// Haversine distance (meters) between two WGS84 lat/lng points (degrees).
func DistanceMeters(a, b Point) float64 {
	const R = 6371008.8 // mean Earth radius (m)
	φ1 := a.Lat * math.Pi / 180.0
	φ2 := b.Lat * math.Pi / 180.0
	dφ := (b.Lat - a.Lat) * math.Pi / 180.0
	dλ := (b.Lng - a.Lng) * math.Pi / 180.0

	sinDφ := math.Sin(dφ / 2)
	sinDλ := math.Sin(dλ / 2)

	h := sinDφ*sinDφ + math.Cos(φ1)*math.Cos(φ2)*sinDλ*sinDλ
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return R * c
}

// DistanceKm is DistanceMeters rounded to two decimals in kilometres, the unit the
// locator backend reports.
func DistanceKm(a, b Point) float64 {
	return math.Round(DistanceMeters(a, b)/10) / 100
}
