package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const configFlagName = "config"

var cfgFile string

// AddConfigFlag registers --config/-c and arranges for the file to be read
// before the command runs. Values from the file are overridden by flags
// explicitly set on the command line.
func AddConfigFlag(fs *pflag.FlagSet, name string) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from specified `FILE`, "+
		"support JSON, TOML, YAML, HCL, or Java properties formats.")

	viper.AutomaticEnv()
	viper.SetEnvPrefix(strings.ReplaceAll(strings.ToUpper(name), "-", "_"))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(".")
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(filepath.Join(home, "."+name))
			}
			viper.SetConfigName(name)
		}

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
				return
			}
			fmt.Fprintf(os.Stderr, "Error: failed to read configuration file(%s): %v\n", cfgFile, err)
			os.Exit(1)
		}
	})
}

// bindFlags makes viper aware of every flag so that file and environment
// values reach flags that were not set explicitly.
func bindFlags(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if bErr := viper.BindPFlag(f.Name, f); bErr != nil {
			err = bErr
		}
	})
	return err
}

// applyConfig copies values known to viper into flags the user did not set.
func applyConfig(fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed || !viper.IsSet(f.Name) {
			return
		}
		var value string
		switch v := viper.Get(f.Name).(type) {
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			value = strings.Join(parts, ",")
		default:
			value = viper.GetString(f.Name)
		}
		if sErr := fs.Set(f.Name, value); sErr != nil {
			err = fmt.Errorf("invalid value for %s from configuration: %w", f.Name, sErr)
		}
	})
	return err
}
