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

// Package supervisor implements the Lifecycle Supervisor (§4.7): it sweeps
// expired pending correlations on a fixed tick and, optionally, evicts
// controllers whose heartbeat has gone stale.
package supervisor

import (
	"context"
	"time"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/metrics"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// Supervisor owns the sweep ticker; startup registers it, shutdown cancels it
// (the Design Notes' "Unbounded background tasks" rework: every
// timer-driven sweeper is an explicit, cancellable task).
type Supervisor struct {
	b *broker.Broker
}

// New constructs a Supervisor over b.
func New(b *broker.Broker) *Supervisor {
	return &Supervisor{b: b}
}

// Run blocks, sweeping every b.Config.SweepInterval until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.b.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
			if s.b.Config.StaleControllerEviction {
				s.evictStaleControllers()
			}
		}
	}
}

func (s *Supervisor) sweepOnce(ctx context.Context) {
	now := time.Now()
	for _, table := range s.b.Pending.All() {
		expired := table.Sweep(now)
		metrics.PendingCorrelations.WithLabelValues(table.Name()).Set(float64(table.Len()))
		if len(expired) == 0 {
			continue
		}
		metrics.SweepEvictions.WithLabelValues(table.Name()).Add(float64(len(expired)))
		for _, e := range expired {
			if e.Email == "" || e.TimeoutFrameType == "" {
				continue
			}
			s.b.Fail(ctx, e.Email, e.TimeoutFrameType, "the request timed out waiting for the controller", transport.CodeTimeout)
		}
	}
}

// evictStaleControllers closes controller channels whose last-seen exceeds
// the configured threshold; disabled by default per §4.7/§9.
func (s *Supervisor) evictStaleControllers() {
	for _, ch := range s.b.Registry.StaleControllers(s.b.Config.StaleControllerThreshold) {
		s.b.Log.Info("evicting stale controller", "garden", ch.GardenID, "channel", ch.ID())
		s.b.Registry.UnbindController(ch)
		_ = ch.Close("STALE_CONTROLLER_EVICTED")
	}
}

// OnClientClose detaches a client channel from the Registry. Wired as the
// transport.Server's OnClientClose hook.
func (s *Supervisor) OnClientClose(ch *transport.Channel) {
	attached := s.b.Registry.EmailByChannel(ch) != ""
	s.b.Registry.DetachClient(ch)
	if attached {
		metrics.AttachedClients.Dec()
	}
}

// OnControllerClose unbinds a controller channel from the Registry. Wired as
// the transport.Server's OnControllerClose hook. In-flight correlations for
// its garden are left to expire (§5 Cancellation); clients receive timeouts
// via the next sweep.
func (s *Supervisor) OnControllerClose(ch *transport.Channel) {
	bound := ch.GardenID != ""
	s.b.Registry.UnbindController(ch)
	if bound {
		metrics.BoundControllers.Dec()
	}
}
