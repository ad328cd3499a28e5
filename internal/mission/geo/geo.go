// Package geo converts between the global frame (latitude, longitude) and
// the local frame (metres east and north of home), and measures distances.
package geo

import (
	"math"

	"github.com/autopeer-io/houston/internal/mission/core"
)

const (
	// meanEarthRadius is used for great-circle distances.
	meanEarthRadius = 6371009.0

	// flatEarthRadius is used for small local offsets around home.
	flatEarthRadius = 6378000.0
)

// Home is the default home position of the simulated vehicle.
var Home = core.Position{Latitude: -35.3632607, Longitude: 149.1652351}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }

// GreatCircle returns the haversine distance in metres between two points,
// ignoring altitude.
func GreatCircle(a, b core.Position) float64 {
	lat1, lat2 := radians(a.Latitude), radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * meanEarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Offset returns the global position reached by moving p metres east (X)
// and north (Y) of origin. Z becomes the altitude.
func Offset(origin core.Position, p core.LocalPoint) core.Position {
	return core.Position{
		Latitude:  origin.Latitude + degrees(p.Y/flatEarthRadius),
		Longitude: origin.Longitude + degrees(p.X/flatEarthRadius)/math.Cos(radians(origin.Latitude)),
		Altitude:  p.Z,
	}
}

// ToLocal is the inverse of Offset.
func ToLocal(origin, p core.Position) core.LocalPoint {
	return core.LocalPoint{
		X: radians(p.Longitude-origin.Longitude) * flatEarthRadius * math.Cos(radians(origin.Latitude)),
		Y: radians(p.Latitude-origin.Latitude) * flatEarthRadius,
		Z: p.Altitude,
	}
}

// Displacement is the great-circle distance between a and b, or the
// altitude change when they share latitude and longitude.
func Displacement(a, b core.Position) float64 {
	if d := GreatCircle(a, b); d > 0 {
		return d
	}
	return math.Abs(b.Altitude - a.Altitude)
}
