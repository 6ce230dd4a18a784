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

// Package broadcast implements the Garden Broadcaster (§4.3): fan-out of an
// event to every active client sharing membership with a garden.
package broadcast

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/hashicorp/go-multierror"

	"github.com/smartgarden/gardenbroker/internal/metrics"
	"github.com/smartgarden/gardenbroker/internal/store"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// EventType enumerates the garden-wide event types §4.3 defines.
type EventType string

const (
	PlantAddedToGarden     EventType = "PLANT_ADDED_TO_GARDEN"
	PlantDeletedFromGarden EventType = "PLANT_DELETED_FROM_GARDEN"
	GardenIrrigationStarted EventType = "GARDEN_IRRIGATION_STARTED"
	GardenIrrigationStopped EventType = "GARDEN_IRRIGATION_STOPPED"
	GardenValveBlocked     EventType = "GARDEN_VALVE_BLOCKED"
	GardenValveUnblocked   EventType = "GARDEN_VALVE_UNBLOCKED"
	GardenMoistureUpdate   EventType = "GARDEN_MOISTURE_UPDATE"
	ScheduleReminder       EventType = "SCHEDULE_REMINDER"
)

// Registry is the subset of registry.Registry the broadcaster needs; kept as
// an interface so tests can supply a fake without a real transport.
type Registry interface {
	ChannelByEmail(email string) *transport.Channel
}

// Broadcaster publishes events to every active member of a garden.
type Broadcaster struct {
	memberships store.Memberships
	users       store.Users
	registry    Registry
	log         logr.Logger
}

// New constructs a Broadcaster.
func New(memberships store.Memberships, users store.Users, registry Registry, log logr.Logger) *Broadcaster {
	return &Broadcaster{memberships: memberships, users: users, registry: registry, log: log}
}

// Broadcast loads gardenID's active-member email set, resolves each member's
// channel via the registry, and writes the serialized envelope to every
// resolved channel except, optionally, exceptEmail. Writes are best-effort
// and non-blocking; per-channel failures are logged, never propagated,
// matching §4.3's step 3.
func (b *Broadcaster) Broadcast(ctx context.Context, gardenID string, eventType EventType, payload any, exceptEmail string) {
	members, err := b.memberships.ActiveMembersOf(ctx, gardenID)
	if err != nil {
		b.log.Error(err, "broadcast: failed to load active members", "garden", gardenID, "type", eventType)
		return
	}

	frame, err := transport.NewFrame(string(eventType), payload)
	if err != nil {
		b.log.Error(err, "broadcast: failed to build frame", "type", eventType)
		return
	}

	var errs error
	sent := 0
	for _, m := range members {
		u, err := b.users.GetByID(ctx, m.UserID)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if exceptEmail != "" && u.Email == exceptEmail {
			continue
		}
		ch := b.registry.ChannelByEmail(u.Email)
		if ch == nil {
			continue
		}
		if err := ch.Send(ctx, frame); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		sent++
	}
	metrics.BroadcastsSent.WithLabelValues(string(eventType)).Add(float64(sent))
	if errs != nil {
		b.log.V(1).Info("broadcast: some channels failed", "garden", gardenID, "type", eventType, "error", errs.Error())
	}
}
