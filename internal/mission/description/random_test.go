package description

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/houston/internal/mission/executor"
)

func TestGeneratorKinds(t *testing.T) {
	g := NewGenerator(DefaultGeneratorConfig(), 7)

	for kind, want := range map[string]executor.Kind{
		RandomPTP:        executor.PTP,
		RandomMPTP:       executor.MPTP,
		RandomExtraction: executor.Extraction,
		"ptp":            executor.PTP,
	} {
		doc, err := g.Generate(kind)
		require.NoError(t, err, kind)
		m := doc.Plan()
		assert.Equal(t, want, m.Kind, kind)
		assert.NoError(t, executor.Validate(m), kind)
	}

	_, err := g.Generate("SURVEY")
	assert.ErrorIs(t, err, ErrUnsupportedMissionType)
}

func TestGeneratorStaysInBounds(t *testing.T) {
	cfg := DefaultGeneratorConfig()
	g := NewGenerator(cfg, 42)

	for range 200 {
		doc, err := g.Generate(RandomAny)
		require.NoError(t, err)
		for _, wp := range doc.Plan().Waypoints {
			assert.LessOrEqual(t, math.Hypot(wp.X, wp.Y), cfg.Radius+0.01)
			assert.GreaterOrEqual(t, wp.Z, cfg.MinAltitude)
			assert.LessOrEqual(t, wp.Z, cfg.MaxAltitude)
		}
	}
}

func TestGeneratorIsDeterministic(t *testing.T) {
	a, err := NewGenerator(DefaultGeneratorConfig(), 1).Generate(RandomAny)
	require.NoError(t, err)
	b, err := NewGenerator(DefaultGeneratorConfig(), 1).Generate(RandomAny)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
