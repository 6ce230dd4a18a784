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

package clienthandler

import (
	"context"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

func handleGetPlantMoisture(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_PLANT_MOISTURE_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "GET_PLANT_MOISTURE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, ok := plantForIrrigation(ctx, b, ch, u.ID, req.PlantID, "GET_PLANT_MOISTURE_FAIL")
	if !ok {
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "GET_PLANT_MOISTURE_FAIL")
	if cch == nil {
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Moisture.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "GET_PLANT_MOISTURE_FAIL",
	})
	_ = cch.SendTyped(ctx, "GET_PLANT_MOISTURE", map[string]any{"plant_id": p.ID})
}

// handleGetAllMoisture keys the pending correlation by garden-id rather than
// plant-id, since ALL_MOISTURE_RESPONSE fans out to every active client on
// reply instead of resolving to a single originator (§4.5.4).
func handleGetAllMoisture(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_ALL_MOISTURE_FAIL")
	if !ok {
		return
	}
	var req gardenScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "GET_ALL_MOISTURE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, req.GardenID, "GET_ALL_MOISTURE_FAIL") {
		return
	}
	cch := controllerFor(ctx, b, ch, req.GardenID, "GET_ALL_MOISTURE_FAIL")
	if cch == nil {
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Moisture.Register(req.GardenID, pending.Context{
		ChannelID: ch.ID(), Email: email, TimeoutFrameType: "GET_ALL_MOISTURE_FAIL",
	})
	_ = cch.SendTyped(ctx, "GET_ALL_MOISTURE", map[string]any{"garden_id": req.GardenID})
}
