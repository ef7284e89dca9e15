// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package animstate

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for request metrics.
const (
	OutcomeTaken     = "taken"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
	OutcomeQueueFull = "queue_full"
)

// InstancesActive tracks live instances per layer.
// Use RegisterMetrics to register this with a Prometheus registry.
var InstancesActive = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "animstate_instances_active",
		Help: "Number of live state instances",
	},
	[]string{"layer"},
)

// TracksActive tracks live tracks per layer.
var TracksActive = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "animstate_tracks_active",
		Help: "Number of live instance tracks",
	},
	[]string{"layer"},
)

// TransitionRequests counts processed transition requests by outcome.
var TransitionRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "animstate_transition_requests_total",
		Help: "Total number of processed transition requests",
	},
	[]string{"layer", "outcome"},
)

// AutoTransitions counts auto transitions taken.
var AutoTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "animstate_auto_transitions_total",
		Help: "Total number of auto transitions taken",
	},
	[]string{"layer"},
)

// PoolReclaims counts evictions from the instance and track pools.
var PoolReclaims = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "animstate_pool_reclaims_total",
		Help: "Total number of pool slots reclaimed from live instances or tracks",
	},
	[]string{"layer", "pool"},
)

// PoolExhausted counts allocations that failed after reclaim.
var PoolExhausted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "animstate_pool_exhausted_total",
		Help: "Total number of allocations that failed after reclaim",
	},
	[]string{"layer", "pool"},
)

// RegisterMetrics registers animstate metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(InstancesActive)
	reg.MustRegister(TracksActive)
	reg.MustRegister(TransitionRequests)
	reg.MustRegister(AutoTransitions)
	reg.MustRegister(PoolReclaims)
	reg.MustRegister(PoolExhausted)
}

func recordRequest(layer, outcome string) {
	TransitionRequests.WithLabelValues(layer, outcome).Inc()
}
