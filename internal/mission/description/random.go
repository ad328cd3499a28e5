package description

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/autopeer-io/houston/internal/mission/monitor"
)

// Random mission kinds accepted by the generator. RDM picks one of the others.
const (
	RandomPTP        = "PTP"
	RandomMPTP       = "MPTP"
	RandomExtraction = "EXTR"
	RandomAny        = "RDM"
)

// GeneratorConfig bounds the random missions.
type GeneratorConfig struct {
	// Radius is the largest horizontal distance from home, in metres.
	Radius       float64
	MinAltitude  float64
	MaxAltitude  float64
	MaxLocations int
	// MaxWait is the longest extraction wait, in seconds.
	MaxWait    float64
	ReportRate float64
	Intents    monitor.Thresholds
	Failure    monitor.Thresholds
	RobotType  string
}

func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Radius:       50,
		MinAltitude:  5,
		MaxAltitude:  20,
		MaxLocations: 4,
		MaxWait:      10,
		ReportRate:   1,
		Intents:      monitor.Thresholds{Time: 120, Battery: 30, MaxHeight: 30, MinHeight: 1},
		Failure:      monitor.Thresholds{Time: 600, Battery: 80, MaxHeight: 60, MinHeight: -5},
		RobotType:    "ardupilot",
	}
}

// Generator produces random mission descriptions.
type Generator struct {
	cfg GeneratorConfig
	rnd *rand.Rand
	n   int
}

// NewGenerator creates a Generator. The same seed yields the same missions.
func NewGenerator(cfg GeneratorConfig, seed uint64) *Generator {
	def := DefaultGeneratorConfig()
	if cfg.Radius <= 0 {
		cfg.Radius = def.Radius
	}
	if cfg.MinAltitude <= 0 {
		cfg.MinAltitude = def.MinAltitude
	}
	if cfg.MaxAltitude < cfg.MinAltitude {
		cfg.MaxAltitude = cfg.MinAltitude
	}
	if cfg.MaxLocations <= 0 {
		cfg.MaxLocations = def.MaxLocations
	}
	if cfg.ReportRate <= 0 {
		cfg.ReportRate = def.ReportRate
	}
	return &Generator{cfg: cfg, rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate returns a validated mission of the given kind.
func (g *Generator) Generate(kind string) (*Document, error) {
	kind = strings.ToUpper(kind)
	if kind == RandomAny {
		kind = []string{RandomPTP, RandomMPTP, RandomExtraction}[g.rnd.IntN(3)]
	}

	var action Action
	switch kind {
	case RandomPTP:
		action = g.single(TypePTP)
	case RandomExtraction:
		action = g.single(TypeExtraction)
		wait := math.Round(g.rnd.Float64()*g.cfg.MaxWait*10) / 10
		action.Wait = &wait
	case RandomMPTP, "MTP":
		action = Action{Type: TypeMPTP}
		for range 1 + g.rnd.IntN(g.cfg.MaxLocations) {
			x, y, alt := g.point()
			action.Locations = append(action.Locations, Location{X: x, Y: y, Alt: alt})
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMissionType, kind)
	}

	g.n++
	doc := &Document{MDescription: Description{
		RobotType:  g.cfg.RobotType,
		LaunchFile: "random",
		Map:        "random",
		Mission: Mission{
			Name:              fmt.Sprintf("random-%s-%d", strings.ToLower(action.Type), g.n),
			Action:            action,
			QualityAttributes: QualityAttributes{ReportRate: g.cfg.ReportRate},
			Intents:           g.cfg.Intents,
			FailureFlags:      g.cfg.Failure,
		},
	}}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (g *Generator) single(typ string) Action {
	x, y, alt := g.point()
	return Action{Type: typ, X: &x, Y: &y, Alt: &alt}
}

// point draws a target uniformly over the disc of the configured radius.
func (g *Generator) point() (x, y, alt float64) {
	r := g.cfg.Radius * math.Sqrt(g.rnd.Float64())
	theta := 2 * math.Pi * g.rnd.Float64()
	x = math.Round(r*math.Cos(theta)*100) / 100
	y = math.Round(r*math.Sin(theta)*100) / 100
	alt = math.Round((g.cfg.MinAltitude+g.rnd.Float64()*(g.cfg.MaxAltitude-g.cfg.MinAltitude))*10) / 10
	return x, y, alt
}
