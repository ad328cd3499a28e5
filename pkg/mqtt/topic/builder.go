package topic

import (
	"strings"
)

// Builder encapsulates the logic for constructing MQTT topic strings.
// Every topic follows the pattern {root}/{segment}/{vehicleID}.
type Builder struct {
	// root is the base namespace for all topics (e.g., "houston/v1").
	root string
}

// NewBuilder creates a new Builder with the specified root namespace.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.TrimSuffix(root, "/")}
}

// Build returns {root}/{segment}/{id}.
func (b *Builder) Build(segment, id string) string {
	return b.root + "/" + segment + "/" + id
}

// Wildcard returns {root}/{segment}/+, matching every vehicle.
func (b *Builder) Wildcard(segment string) string {
	return b.Build(segment, Wildcard)
}

// Root returns the namespace prefix.
func (b *Builder) Root() string {
	return b.root
}
