package contract

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/autopeer-io/houston/internal/mission/core"
)

// Snapshot is an immutable set of variable readings taken together.
type Snapshot struct {
	// Taken is the engine clock time at which the readings completed.
	Taken time.Time

	values map[string]core.Value
	errs   map[string]error
}

// NewSnapshot builds a snapshot from known values.
func NewSnapshot(taken time.Time, values map[string]core.Value) Snapshot {
	return Snapshot{Taken: taken, values: maps.Clone(values), errs: map[string]error{}}
}

// WithError returns a copy of s in which name failed to read with err.
func (s Snapshot) WithError(name string, err error) Snapshot {
	out := Snapshot{Taken: s.Taken, values: maps.Clone(s.values), errs: maps.Clone(s.errs)}
	if out.errs == nil {
		out.errs = map[string]error{}
	}
	delete(out.values, name)
	out.errs[name] = err
	return out
}

// Value returns the reading for name, or the error that prevented it.
func (s Snapshot) Value(name string) (core.Value, error) {
	if v, ok := s.values[name]; ok {
		return v, nil
	}
	if err, ok := s.errs[name]; ok {
		return core.Value{}, err
	}
	return core.Value{}, fmt.Errorf("%w: %s", core.ErrUnknownVariable, name)
}

// Has reports whether name was read successfully.
func (s Snapshot) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

func (s Snapshot) Float(name string) (float64, error) {
	v, err := s.Value(name)
	return v.Float, err
}

func (s Snapshot) Bool(name string) (bool, error) {
	v, err := s.Value(name)
	return v.Bool, err
}

func (s Snapshot) String(name string) (string, error) {
	v, err := s.Value(name)
	return v.Str, err
}

// Clock returns the live system's own time reading.
func (s Snapshot) Clock() (time.Time, error) {
	v, err := s.Value(core.VarTime)
	return v.Time, err
}

// Position assembles the global position.
func (s Snapshot) Position() (core.Position, error) {
	lat, err1 := s.Float(core.VarLatitude)
	lon, err2 := s.Float(core.VarLongitude)
	alt, err3 := s.Float(core.VarAltitude)
	if err := errors.Join(err1, err2, err3); err != nil {
		return core.Position{}, err
	}
	return core.Position{Latitude: lat, Longitude: lon, Altitude: alt}, nil
}

// Err joins every read error, in variable-name order.
func (s Snapshot) Err() error {
	keys := slices.Sorted(maps.Keys(s.errs))
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, s.errs[k])
	}
	return errors.Join(errs...)
}
