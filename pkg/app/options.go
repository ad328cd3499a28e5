package app

import (
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/houston/pkg/log"
)

// NamedFlagSetOptions is implemented by the options aggregate of a command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in the fields derived from other fields.
	Complete() error

	// Validate checks the options, aggregating every problem found.
	Validate() error
}

// loggerOptions is implemented by options aggregates that configure the
// process logger.
type loggerOptions interface {
	LogOptions() *log.Options
}
