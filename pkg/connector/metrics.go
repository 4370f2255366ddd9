// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the bridge's Prometheus collectors, registered with the
// default registry.
var Metrics = struct {
	MatrixEvents     *prometheus.CounterVec
	SlackMessages    *prometheus.CounterVec
	DeliveryFailures *prometheus.CounterVec
	AdminCommands    *prometheus.CounterVec
	LinkedChannels   prometheus.Gauge
	BoundRooms       prometheus.Gauge
}{
	MatrixEvents: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slackbridge",
		Name:      "matrix_events_total",
		Help:      "Matrix events received, by outcome.",
	}, []string{"outcome"}),
	SlackMessages: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slackbridge",
		Name:      "slack_messages_total",
		Help:      "Slack webhook messages received, by outcome.",
	}, []string{"outcome"}),
	DeliveryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slackbridge",
		Name:      "delivery_failures_total",
		Help:      "Failed deliveries, by destination network.",
	}, []string{"destination"}),
	AdminCommands: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slackbridge",
		Name:      "admin_commands_total",
		Help:      "Admin commands dispatched, by command and result.",
	}, []string{"command", "result"}),
	LinkedChannels: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slackbridge",
		Name:      "linked_channels",
		Help:      "Slack channels with an active link.",
	}),
	BoundRooms: promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "slackbridge",
		Name:      "bound_rooms",
		Help:      "Matrix rooms bound to a Slack channel.",
	}),
}
