// Package description reads mission description files.
package description

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/internal/mission/executor"
	"github.com/autopeer-io/houston/internal/mission/monitor"
)

var (
	ErrMalformedMission       = errors.New("malformed mission description")
	ErrUnsupportedMissionType = errors.New("unsupported mission type")
)

// Mission types as written in description files.
const (
	TypePTP        = "PTP"
	TypeMPTP       = "MPTP"
	TypeExtraction = "Extraction"
)

// Document is the top-level object of a description file.
type Document struct {
	MDescription Description `json:"MDescription" yaml:"MDescription"`
}

type Description struct {
	RobotType  string  `json:"RobotType" yaml:"RobotType"`
	LaunchFile string  `json:"LaunchFile" yaml:"LaunchFile"`
	Map        string  `json:"Map" yaml:"Map"`
	Mission    Mission `json:"Mission" yaml:"Mission"`
}

type Mission struct {
	Name              string             `json:"Name" yaml:"Name"`
	Action            Action             `json:"Action" yaml:"Action"`
	QualityAttributes QualityAttributes  `json:"QualityAttributes" yaml:"QualityAttributes"`
	Intents           monitor.Thresholds `json:"Intents" yaml:"Intents"`
	FailureFlags      monitor.Thresholds `json:"FailureFlags" yaml:"FailureFlags"`
	// Invariants are CEL expressions that must hold while any action runs.
	Invariants []Invariant `json:"Invariants,omitempty" yaml:"Invariants,omitempty"`
}

// Action holds the flight plan. x and y are metres east and north of home.
type Action struct {
	Type      string     `json:"Type" yaml:"Type"`
	X         *float64   `json:"x,omitempty" yaml:"x,omitempty"`
	Y         *float64   `json:"y,omitempty" yaml:"y,omitempty"`
	Alt       *float64   `json:"alt,omitempty" yaml:"alt,omitempty"`
	Wait      *float64   `json:"wait,omitempty" yaml:"wait,omitempty"`
	Locations []Location `json:"Locations,omitempty" yaml:"Locations,omitempty"`
}

type Location struct {
	X   float64 `json:"x" yaml:"x"`
	Y   float64 `json:"y" yaml:"y"`
	Alt float64 `json:"alt" yaml:"alt"`
}

type QualityAttributes struct {
	// ReportRate is the sampling period in seconds.
	ReportRate float64 `json:"ReportRate" yaml:"ReportRate"`
}

type Invariant struct {
	Name       string `json:"Name" yaml:"Name"`
	Expression string `json:"Expression" yaml:"Expression"`
}

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://houston.autopeer.io/schemas/mission.schema.json"

var compiled = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("mission schema load failed: %w", err)
	}
	return c.Compile(schemaURL)
})

// LoadFile reads a description from path. Files ending in .yaml or .yml
// are read as YAML, anything else as JSON.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return Parse(data)
	}
}

// Parse reads a JSON description and validates it.
func Parse(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMission, err)
	}
	return decode(raw, data)
}

// ParseYAML reads a YAML description and validates it.
func ParseYAML(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMission, err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMission, err)
	}
	return Parse(normalized)
}

func decode(raw any, data []byte) (*Document, error) {
	schema, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMission, err)
	}

	doc := &Document{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMission, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Validate checks the parts of a description the schema cannot express.
func (d *Document) Validate() error {
	a := d.MDescription.Mission.Action
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s action: %s", ErrMalformedMission, a.Type, fmt.Sprintf(format, args...))
	}

	switch a.Type {
	case TypePTP, TypeExtraction:
		if a.X == nil || a.Y == nil || a.Alt == nil {
			return malformed("x, y and alt are required")
		}
		if *a.Alt <= 0 {
			return malformed("alt must be positive")
		}
		if a.Type == TypeExtraction && a.Wait == nil {
			return malformed("wait is required")
		}
	case TypeMPTP:
		if len(a.Locations) == 0 {
			return malformed("at least one location is required")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMissionType, a.Type)
	}

	if d.MDescription.Mission.QualityAttributes.ReportRate <= 0 {
		return fmt.Errorf("%w: ReportRate must be positive", ErrMalformedMission)
	}
	return nil
}

// Plan converts the action into the executor's mission.
func (d *Document) Plan() executor.Mission {
	a := d.MDescription.Mission.Action
	switch a.Type {
	case TypeMPTP:
		m := executor.Mission{Kind: executor.MPTP}
		for _, l := range a.Locations {
			m.Waypoints = append(m.Waypoints, core.LocalPoint{X: l.X, Y: l.Y, Z: l.Alt})
		}
		return m
	case TypeExtraction:
		return executor.Mission{
			Kind:      executor.Extraction,
			Waypoints: []core.LocalPoint{{X: deref(a.X), Y: deref(a.Y), Z: deref(a.Alt)}},
			Wait:      time.Duration(deref(a.Wait) * float64(time.Second)),
		}
	default:
		return executor.Mission{
			Kind:      executor.PTP,
			Waypoints: []core.LocalPoint{{X: deref(a.X), Y: deref(a.Y), Z: deref(a.Alt)}},
		}
	}
}

// ReportRate returns the quality-attribute sampling period.
func (d *Document) ReportRate() time.Duration {
	return time.Duration(d.MDescription.Mission.QualityAttributes.ReportRate * float64(time.Second))
}

// JSON encodes d as indented JSON.
func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "    ")
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
