// Package observability exposes Prometheus metrics for the event pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	EventsReceived  *prometheus.CounterVec
	EventsDecoded   *prometheus.CounterVec
	DecodeFailures  *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	AttendanceSaved prometheus.Counter
	VehiclesCounted *prometheus.CounterVec
	DispatchErrors  prometheus.Counter
}

// NewMetrics builds and registers the collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visiongate_events_received_total",
			Help: "Raw analyzer callbacks received, by channel and kind.",
		}, []string{"channel", "kind"}),
		EventsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visiongate_events_decoded_total",
			Help: "Events successfully decoded, by channel and kind.",
		}, []string{"channel", "kind"}),
		DecodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visiongate_decode_failures_total",
			Help: "Analyzer payloads that failed to decode, by channel.",
		}, []string{"channel"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visiongate_events_dropped_total",
			Help: "Events dropped because a channel queue was full.",
		}, []string{"channel"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "visiongate_channel_queue_depth",
			Help: "Current depth of each channel's event queue.",
		}, []string{"channel"}),
		AttendanceSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visiongate_attendance_records_total",
			Help: "Attendance records persisted.",
		}),
		VehiclesCounted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visiongate_vehicles_counted_total",
			Help: "Vehicles counted, by type and direction.",
		}, []string{"vehicle_type", "direction"}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "visiongate_dispatch_errors_total",
			Help: "Subscriber delivery failures.",
		}),
	}
	reg.MustRegister(
		m.EventsReceived, m.EventsDecoded, m.DecodeFailures,
		m.EventsDropped, m.QueueDepth, m.AttendanceSaved,
		m.VehiclesCounted, m.DispatchErrors,
	)
	return m
}

// NewTestMetrics builds metrics on a throwaway registry for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
