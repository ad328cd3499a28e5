package budget

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/geo"
)

func TestStats(t *testing.T) {
	mean, stdev, err := Stats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	require.NoError(t, err)
	assert.InDelta(t, 5, mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7.0), stdev, 1e-12)

	_, _, err = Stats([]float64{1})
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
	_, _, err = Stats(nil)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestEstimatorVertical(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEstimator(History{Battery: []float64{0.04, 0.06, 0.05}, Time: []float64{1, 1}}, cfg)

	ground := geo.Home
	up := geo.Home
	up.Altitude = 10

	b, err := e.ExpectedBattery(ground, up)
	require.NoError(t, err)
	// mean 0.05 + stdev 0.01 + margin 0.025
	assert.InDelta(t, 0.85, b, 1e-9)

	tm, err := e.ExpectedTime(up, ground)
	require.NoError(t, err)
	assert.InDelta(t, (1+0+2)*10, tm, 1e-9)
}

func TestEstimatorInsufficientHistory(t *testing.T) {
	e := NewEstimator(History{Battery: []float64{0.05}}, DefaultConfig())
	_, err := e.ExpectedBattery(geo.Home, geo.Home)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
	_, err = e.ExpectedTime(geo.Home, geo.Home)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestLoadFallsBackToSeeds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	cfg := DefaultConfig()

	h, err := Load(ctx, store, cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.SeedBattery, h.Battery)
	assert.Equal(t, cfg.SeedTime, h.Time)

	require.NoError(t, store.Append(ctx, Battery, 0.1, 0.2, 0.3))
	h, err = Load(ctx, store, cfg)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.3, 0.2, 0.1}, h.Battery)
	assert.Equal(t, cfg.SeedTime, h.Time)

	cfg.SeedTime = nil
	h, err = Load(ctx, store, cfg)
	require.NoError(t, err)
	_, err = NewEstimator(h, cfg).ExpectedTime(geo.Home, geo.Home)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	n, err := Ingest(ctx, store, []Observation{
		{Distance: 100, BatteryUsed: 5, Elapsed: 50 * time.Second},
		{Distance: 0.5, BatteryUsed: 1, Elapsed: time.Second},
		{Distance: 20, BatteryUsed: 2, Elapsed: 40 * time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	battery, _ := store.Samples(ctx, Battery, 0)
	assert.Equal(t, []float64{0.1, 0.05}, battery)
	elapsed, _ := store.Samples(ctx, Time, 1)
	assert.Equal(t, []float64{2}, elapsed)
}

func TestMemoryStoreWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, Time, 1, 2, 3, 4, 5))

	got, err := s.Samples(ctx, Time, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 4, 3}, got)

	got[0] = 99
	again, _ := s.Samples(ctx, Time, 3)
	assert.Equal(t, 5.0, again[0])
}

func TestExpectedBatteryUsesGreatCircle(t *testing.T) {
	e := NewEstimator(History{Battery: []float64{1, 1}, Time: []float64{1, 1}}, Config{})
	to := geo.Offset(geo.Home, core.LocalPoint{X: 0, Y: 200, Z: 10})
	from := geo.Home
	from.Altitude = 10

	b, err := e.ExpectedBattery(from, to)
	require.NoError(t, err)
	assert.InDelta(t, geo.GreatCircle(from, to), b, 1e-9)
}
