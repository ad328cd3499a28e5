package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ReportOptions)(nil)

// ReportOptions selects where mission reports go.
type ReportOptions struct {
	// File is appended with every report. Empty disables it.
	File string `json:"file" mapstructure:"file"`
	// PublishMQTT publishes reports on {root}/report/{vehicleID}.
	PublishMQTT bool `json:"publish-mqtt" mapstructure:"publish-mqtt"`
	// Table prints a summary table after each mission.
	Table bool `json:"table" mapstructure:"table"`
	// Keep is the number of recent reports served over HTTP.
	Keep int `json:"keep" mapstructure:"keep"`
}

func NewReportOptions() *ReportOptions {
	return &ReportOptions{
		File:  "report.json",
		Table: true,
		Keep:  20,
	}
}

func (o *ReportOptions) Validate() []error {
	if o == nil {
		return nil
	}
	if o.Keep < 1 {
		return []error{fmt.Errorf("--report.keep must be at least 1")}
	}
	return nil
}

func (o *ReportOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.File, "report.file", o.File, "File every report is appended to. Empty disables it.")
	fs.BoolVar(&o.PublishMQTT, "report.publish-mqtt", o.PublishMQTT, "Publish reports over MQTT.")
	fs.BoolVar(&o.Table, "report.table", o.Table, "Print a summary table after each mission.")
	fs.IntVar(&o.Keep, "report.keep", o.Keep, "Number of recent reports kept for the HTTP server.")
}
