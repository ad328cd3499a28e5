package app

import (
	"github.com/spf13/cobra"
)

// Command is a subcommand of an App. It shares the App's options and
// lifecycle (complete, validate, logger initialisation).
type Command struct {
	use     string
	short   string
	long    string
	example string
	args    cobra.PositionalArgs
	runFunc CommandRunFunc
}

// CommandOption configures a Command.
type CommandOption func(*Command)

// WithCommandDescription sets the long description of a subcommand.
func WithCommandDescription(desc string) CommandOption {
	return func(c *Command) {
		c.long = desc
	}
}

// WithCommandExample sets the usage example of a subcommand.
func WithCommandExample(example string) CommandOption {
	return func(c *Command) {
		c.example = example
	}
}

// WithCommandArgs sets the positional argument validator of a subcommand.
func WithCommandArgs(args cobra.PositionalArgs) CommandOption {
	return func(c *Command) {
		c.args = args
	}
}

// WithCommandRunFunc sets the callback of a subcommand.
func WithCommandRunFunc(run CommandRunFunc) CommandOption {
	return func(c *Command) {
		c.runFunc = run
	}
}

// NewCommand creates a subcommand.
func NewCommand(use string, short string, opts ...CommandOption) *Command {
	c := &Command{
		use:   use,
		short: short,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Command) cobraCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           c.use,
		Short:         c.short,
		Long:          c.long,
		Example:       c.example,
		Args:          c.args,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	if c.runFunc != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			return a.run(func() error { return c.runFunc(args) })
		}
	}
	return cmd
}
