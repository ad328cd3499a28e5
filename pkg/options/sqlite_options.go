package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SQLiteOptions)(nil)

// SQLiteOptions locates the sqlite sample store.
type SQLiteOptions struct {
	Path string `json:"path" mapstructure:"path"`
}

func NewSQLiteOptions() *SQLiteOptions {
	return &SQLiteOptions{Path: "houston.db"}
}

func (o *SQLiteOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Path == "" {
		return []error{fmt.Errorf("--sqlite.path must not be empty")}
	}
	return nil
}

func (o *SQLiteOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "sqlite.path", o.Path, "Database file of the sqlite sample store.")
}
