package contract

import (
	"context"
	"fmt"

	"github.com/autopeer-io/houston/internal/mission/core"
	"github.com/autopeer-io/houston/pkg/log"
)

// Env is what dispatch and completion steps may use.
type Env struct {
	Commander core.Commander
	Registry  *Registry
	Session   *core.Session
	Poller    *Poller
	Budget    Budget
	// Home is the origin of the local frame used for setpoints.
	Home core.Position
	Log  log.Logger
}

// Completion is the outcome of waiting for an action to take effect.
type Completion struct {
	Reached bool
	Message string
	// Gap is the last measured distance to the target.
	Gap float64
	Err error
}

// DispatchFunc issues the command of an action, once.
type DispatchFunc func(ctx context.Context, env *Env, in Inputs) error

// AwaitFunc blocks until the action has taken effect or the mission ends.
type AwaitFunc func(ctx context.Context, env *Env, in Inputs) Completion

// Schema is the static description of an action: its parameters, its
// contract and how it is carried out.
type Schema struct {
	Name           string
	Parameters     []Parameter
	Preconditions  []Predicate
	Invariants     []Predicate
	Postconditions []Predicate
	Dispatch       DispatchFunc
	Await          AwaitFunc
}

// Instance is a schema with its parameters bound for one dispatch.
type Instance struct {
	Schema *Schema
	Params Bindings
}

// Bind creates an instance of s.
func (s *Schema) Bind(values map[string]any) (*Instance, error) {
	b, err := Bind(s.Parameters, values)
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", s.Name, err)
	}
	return &Instance{Schema: s, Params: b}, nil
}

// MustBind is Bind for parameters known to be valid.
func (s *Schema) MustBind(values map[string]any) *Instance {
	inst, err := s.Bind(values)
	if err != nil {
		panic(err)
	}
	return inst
}

func (i *Instance) Name() string {
	return i.Schema.Name
}

// Catalog indexes schemas by name.
type Catalog map[string]*Schema

// NewCatalog builds a catalog, rejecting duplicate names.
func NewCatalog(schemas ...*Schema) (Catalog, error) {
	c := make(Catalog, len(schemas))
	for _, s := range schemas {
		if _, dup := c[s.Name]; dup {
			return nil, fmt.Errorf("duplicate action schema %q", s.Name)
		}
		c[s.Name] = s
	}
	return c, nil
}

// Instantiate binds values to the schema called name.
func (c Catalog) Instantiate(name string, values map[string]any) (*Instance, error) {
	s, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("unknown action %q", name)
	}
	return s.Bind(values)
}
