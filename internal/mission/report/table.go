package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/gosuri/uitable"
)

// TableSink prints a human readable summary.
type TableSink struct {
	w io.Writer
}

func NewTableSink(w io.Writer) *TableSink {
	return &TableSink{w: w}
}

func (s *TableSink) Name() string { return "table" }

func (s *TableSink) Write(_ context.Context, r *Report) error {
	_, err := fmt.Fprintln(s.w, Table(r))
	return err
}

// Table renders r as aligned columns.
func Table(r *Report) string {
	summary := uitable.New()
	summary.MaxColWidth = 80
	summary.Wrap = true
	summary.AddRow("MISSION:", r.Name)
	summary.AddRow("RUN:", r.RunID)
	summary.AddRow("TYPE:", r.MissionType)
	summary.AddRow("ROBOT:", r.RobotType)
	summary.AddRow("OVERALL TIME:", fmt.Sprintf("%.1fs", r.OverallTime))
	summary.AddRow("BATTERY USED:", fmt.Sprintf("%.2f", r.BatteryUsed))
	summary.AddRow("HEIGHT:", fmt.Sprintf("min %.2f / max %.2f", r.MinHeight, r.MaxHeight))
	summary.AddRow("FAILURE FLAGS:", r.FailureFlags)

	intents := uitable.New()
	intents.AddRow("INTENT", "SUCCESS", "TIME", "VALUE")
	names := make([]string, 0, len(r.Intents))
	for name := range r.Intents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o := r.Intents[name]
		intents.AddRow(name, o.Success, optional(o.Time), optional(o.Value))
	}

	actions := uitable.New()
	actions.MaxColWidth = 60
	actions.AddRow("LEG", "ACTION", "STATUS", "ELAPSED", "REASON")
	for _, leg := range r.Actions {
		for _, a := range leg.Results {
			actions.AddRow(leg.Name, a.Action, a.Status, a.Elapsed.Round(100*time.Millisecond).String(), a.Reason)
		}
	}

	var b strings.Builder
	b.WriteString(summary.String())
	b.WriteString("\n\n")
	b.WriteString(intents.String())
	b.WriteString("\n\n")
	b.WriteString(actions.String())
	return b.String()
}

func optional(f *float64) string {
	if f == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *f)
}
