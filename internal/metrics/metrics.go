// Copyright 2024 The Smart Garden Authors. This file is licensed under the Apache Software License, v. 2
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the Prometheus collectors exported on /metrics,
// covering the operating surface of the single instance the spec's
// Non-goals describe (no cross-instance aggregation).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// AttachedClients is the current count of OPEN client channels.
	AttachedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gardenbroker",
		Name:      "attached_clients",
		Help:      "Number of currently attached client channels.",
	})

	// BoundControllers is the current count of OPEN controller channels.
	BoundControllers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gardenbroker",
		Name:      "bound_controllers",
		Help:      "Number of currently bound controller channels.",
	})

	// PendingCorrelations tracks live correlation count per family, as
	// sampled on each Lifecycle Supervisor sweep.
	PendingCorrelations = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "gardenbroker",
		Name:      "pending_correlations",
		Help:      "Live pending correlation entries per operation family.",
	}, []string{"family"})

	// BroadcastsSent counts successful broadcast writes per event type.
	BroadcastsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gardenbroker",
		Name:      "broadcasts_sent_total",
		Help:      "Broadcast frames successfully written, by event type.",
	}, []string{"type"})

	// ControllerResponses counts controller frames processed, by type and
	// outcome (ok/unknown).
	ControllerResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gardenbroker",
		Name:      "controller_responses_total",
		Help:      "Controller response frames processed, by type and outcome.",
	}, []string{"type", "outcome"})

	// SweepEvictions counts pending correlations evicted by the Lifecycle
	// Supervisor, by family.
	SweepEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gardenbroker",
		Name:      "sweep_evictions_total",
		Help:      "Pending correlations evicted by the sweep, by family.",
	}, []string{"family"})
)

// MustRegister registers every collector against the default registry. It
// panics on a duplicate registration, which can only happen on a
// programming error (calling it twice), so it is safe to call once at
// startup.
func MustRegister() {
	prometheus.MustRegister(
		AttachedClients,
		BoundControllers,
		PendingCorrelations,
		BroadcastsSent,
		ControllerResponses,
		SweepEvictions,
	)
}
