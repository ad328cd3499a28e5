package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every Houston collector. It is served on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// MissionActive is 1 while a mission is running.
	MissionActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "houston_mission_active",
			Help: "Whether a mission is currently running (1=running, 0=idle).",
		},
	)

	// VehicleConnectivityStatus records the link to the vehicle bridge.
	// 1 = Connected, 0 = Not connected
	VehicleConnectivityStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "houston_vehicle_connectivity_status",
			Help: "The connectivity status to the vehicle (1=Connected, 0=NotConnected).",
		},
	)

	MissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "houston_missions_total",
			Help: "Total number of missions run.",
		},
		[]string{"type", "outcome"}, // outcome: completed/stopped
	)

	MissionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "houston_mission_duration_seconds",
			Help:    "Duration of missions from start to the last action.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 9),
		},
		[]string{"type"},
	)

	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "houston_actions_total",
			Help: "Total number of actions by outcome.",
		},
		[]string{"action", "status"},
	)

	ActionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "houston_action_duration_seconds",
			Help:    "Time from dispatch to completion of actions.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"action"},
	)

	// MissionStops counts missions ended early, by cause.
	MissionStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "houston_mission_stops_total",
			Help: "Total number of missions ended by the monitor or the user.",
		},
		[]string{"cause"},
	)

	SamplesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "houston_budget_samples_ingested_total",
			Help: "Historical samples added to the budget store.",
		},
		[]string{"kind"},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "houston_vehicle_commands_total",
			Help: "Total number of commands sent to the vehicle bridge.",
		},
		[]string{"command", "status"}, // status: success/failed
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		MissionActive,
		VehicleConnectivityStatus,
		MissionsTotal,
		MissionDuration,
		ActionsTotal,
		ActionDuration,
		MissionStops,
		SamplesIngested,
		CommandsTotal,
	)
}

// ObserveAction records one action outcome. Skipped actions have no duration.
func ObserveAction(action, status string, elapsed time.Duration, dispatched bool) {
	ActionsTotal.WithLabelValues(action, status).Inc()
	if dispatched {
		ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	}
}

// ObserveMission records a finished mission. cause is empty when it completed.
func ObserveMission(kind, cause string, d time.Duration) {
	outcome := "completed"
	if cause != "" {
		outcome = "stopped"
		MissionStops.WithLabelValues(cause).Inc()
	}
	MissionsTotal.WithLabelValues(kind, outcome).Inc()
	MissionDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveCommand records a command sent to the vehicle.
func ObserveCommand(command string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	CommandsTotal.WithLabelValues(command, status).Inc()
}
