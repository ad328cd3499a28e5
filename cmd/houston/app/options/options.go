package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/houston/internal/mission"
	"github.com/autopeer-io/houston/pkg/app"
	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/options"
)

type HoustonOptions struct {
	EngineOptions  *options.EngineOptions  `json:"engine" mapstructure:"engine"`
	VehicleOptions *options.VehicleOptions `json:"vehicle" mapstructure:"vehicle"`
	StoreOptions   *options.StoreOptions   `json:"store" mapstructure:"store"`
	SQLiteOptions  *options.SQLiteOptions  `json:"sqlite" mapstructure:"sqlite"`
	RedisOptions   *options.RedisOptions   `json:"redis" mapstructure:"redis"`
	MqttOptions    *options.MqttOptions    `json:"mqtt" mapstructure:"mqtt"`
	S3Options      *options.S3Options      `json:"s3" mapstructure:"s3"`
	HttpOptions    *options.HttpOptions    `json:"http" mapstructure:"http"`
	ReportOptions  *options.ReportOptions  `json:"report" mapstructure:"report"`
	Log            *log.Options            `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*HoustonOptions)(nil)

func NewHoustonOptions() *HoustonOptions {
	o := &HoustonOptions{
		EngineOptions:  options.NewEngineOptions(),
		VehicleOptions: options.NewVehicleOptions(),
		StoreOptions:   options.NewStoreOptions(),
		SQLiteOptions:  options.NewSQLiteOptions(),
		RedisOptions:   options.NewRedisOptions(),
		MqttOptions:    options.NewMqttOptions(),
		S3Options:      options.NewS3Options(),
		HttpOptions:    options.NewHttpOptions(),
		ReportOptions:  options.NewReportOptions(),
		Log:            log.NewOptions(),
	}

	return o
}

func (o *HoustonOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.EngineOptions.AddFlags(fss.FlagSet("engine"))
	o.VehicleOptions.AddFlags(fss.FlagSet("vehicle"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.SQLiteOptions.AddFlags(fss.FlagSet("store"))
	o.RedisOptions.AddFlags(fss.FlagSet("store"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.ReportOptions.AddFlags(fss.FlagSet("report"))
	o.S3Options.AddFlags(fss.FlagSet("report"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("Log"))
	return fss
}

func (o *HoustonOptions) Complete() error {
	return o.Log.Complete()
}

func (o *HoustonOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.EngineOptions.Validate()...)
	errs = append(errs, o.VehicleOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.SQLiteOptions.Validate()...)
	errs = append(errs, o.RedisOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.S3Options.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.ReportOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// LogOptions hands the logging options to the application runner.
func (o *HoustonOptions) LogOptions() *log.Options {
	return o.Log
}

func (o *HoustonOptions) Config() (*mission.Config, error) {
	return &mission.Config{
		EngineOptions:  o.EngineOptions,
		VehicleOptions: o.VehicleOptions,
		StoreOptions:   o.StoreOptions,
		SQLiteOptions:  o.SQLiteOptions,
		RedisOptions:   o.RedisOptions,
		MqttOptions:    o.MqttOptions,
		S3Options:      o.S3Options,
		HttpOptions:    o.HttpOptions,
		ReportOptions:  o.ReportOptions,
		Quiet:          o.Log.Quiet,
	}, nil
}
