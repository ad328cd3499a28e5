package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autopeer-io/houston/internal/mission/core"
)

func TestGreatCircle(t *testing.T) {
	assert.Zero(t, GreatCircle(Home, Home))

	// One degree of latitude is roughly 111.2 km.
	north := core.Position{Latitude: Home.Latitude + 1, Longitude: Home.Longitude}
	assert.InDelta(t, 111195, GreatCircle(Home, north), 50)
	assert.InDelta(t, GreatCircle(Home, north), GreatCircle(north, Home), 1e-9)
}

func TestOffsetRoundTrip(t *testing.T) {
	for _, p := range []core.LocalPoint{
		{X: 0, Y: 0, Z: 10},
		{X: 25, Y: -40, Z: 5},
		{X: -300, Y: 120, Z: 30},
	} {
		g := Offset(Home, p)
		back := ToLocal(Home, g)
		assert.InDelta(t, p.X, back.X, 1e-6)
		assert.InDelta(t, p.Y, back.Y, 1e-6)
		assert.Equal(t, p.Z, back.Z)
	}
}

func TestOffsetMatchesGreatCircle(t *testing.T) {
	g := Offset(Home, core.LocalPoint{X: 30, Y: 40})
	// Flat-earth and haversine agree to well within a centimetre at this range.
	assert.InDelta(t, 50, GreatCircle(Home, g), 0.1)
}

func TestDisplacement(t *testing.T) {
	ground := Home
	up := Home
	up.Altitude = 12
	assert.InDelta(t, 12, Displacement(ground, up), 1e-12)
	assert.InDelta(t, 12, Displacement(up, ground), 1e-12)

	away := Offset(Home, core.LocalPoint{X: 0, Y: 100, Z: 12})
	assert.InDelta(t, 100, Displacement(up, away), 0.2)
}
