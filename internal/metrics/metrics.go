// Package metrics exposes netvault's Prometheus instruments.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup queue metrics
	ExecutionsClaimedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netvault_executions_claimed_total",
			Help: "Total number of executions handed to automation workers",
		},
	)

	ClaimFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netvault_claim_failures_total",
			Help: "Total number of claim transactions that failed and returned an empty batch",
		},
	)

	ReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_backup_reports_total",
			Help: "Total number of backup reports by outcome",
		},
		[]string{"status"},
	)

	ExecutionsReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_executions_reaped_total",
			Help: "Total number of stale executions failed by the reaper, by prior status",
		},
		[]string{"from"},
	)

	// Alarm lifecycle metrics
	AlarmsRaisedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_alarms_raised_total",
			Help: "Total number of alarms raised by severity and type",
		},
		[]string{"severity", "type"},
	)

	AlarmsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_alarms_resolved_total",
			Help: "Total number of alarms resolved by type",
		},
		[]string{"type"},
	)

	AlarmsAcknowledgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netvault_alarms_acknowledged_total",
			Help: "Total number of alarms acknowledged",
		},
	)

	// Polling metrics
	DevicePollFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_device_poll_failures_total",
			Help: "Total number of failed device reads by signal",
		},
		[]string{"signal"}, // session, uptime, cpu, memory, interfaces
	)

	CycleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netvault_cycle_duration_seconds",
			Help:    "Duration of a full collection or scan cycle",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"component"},
	)
)

// RecordClaim records a claim call that granted n executions.
func RecordClaim(n int) {
	ExecutionsClaimedTotal.Add(float64(n))
}

// RecordClaimFailure records a claim transaction that was rolled back.
func RecordClaimFailure() {
	ClaimFailuresTotal.Inc()
}

// RecordReport records a completed report.
func RecordReport(status string) {
	ReportsTotal.WithLabelValues(status).Inc()
}

// RecordReaped records a stale sweep.
func RecordReaped(pending, running int64) {
	ExecutionsReapedTotal.WithLabelValues("pending").Add(float64(pending))
	ExecutionsReapedTotal.WithLabelValues("running").Add(float64(running))
}

// RecordAlarmRaised records a newly inserted alarm.
func RecordAlarmRaised(severity, alarmType string) {
	AlarmsRaisedTotal.WithLabelValues(severity, alarmType).Inc()
}

// RecordAlarmResolved records a resolved alarm.
func RecordAlarmResolved(alarmType string) {
	AlarmsResolvedTotal.WithLabelValues(alarmType).Inc()
}

// RecordAlarmAcknowledged records a human acknowledgement.
func RecordAlarmAcknowledged() {
	AlarmsAcknowledgedTotal.Inc()
}

// RecordPollFailure records a failed read of one signal.
func RecordPollFailure(signal string) {
	DevicePollFailuresTotal.WithLabelValues(signal).Inc()
}

// ObserveCycle records how long a component's cycle took.
func ObserveCycle(component string, start time.Time) {
	CycleDurationSeconds.WithLabelValues(component).Observe(time.Since(start).Seconds())
}
