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

package controllerhandler

import (
	"context"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/metrics"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

func handleHelloPi(ctx context.Context, _ *broker.Broker, ch *transport.Channel, _ transport.Frame) {
	_ = ch.SendTyped(ctx, "WELCOME", map[string]string{"channelId": ch.ID()})
}

type piConnectRequest struct {
	FamilyCode string `json:"family_code"`
}

// handlePiConnect resolves the garden by invite code, binds the controller
// in the Session Registry, and replies with a GARDEN_SYNC snapshot (§4.6).
func handlePiConnect(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	var req piConnectRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "PI_CONNECT_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	g, err := b.Store.Gardens().GetByInviteCode(ctx, req.FamilyCode)
	if err != nil {
		_ = ch.SendTyped(ctx, "PI_CONNECT_FAIL", transport.FailPayload{Reason: "no garden matches that family code", Code: "NOT_FOUND"})
		return
	}

	b.Registry.BindController(g.ID, ch)
	metrics.BoundControllers.Inc()

	plants, err := b.Store.Plants().ListForGarden(ctx, g.ID)
	if err != nil {
		b.Log.Error(err, "pi_connect: failed to list plants for sync", "garden", g.ID)
		plants = nil
	}
	_ = ch.SendTyped(ctx, "GARDEN_SYNC", gardenSyncPayload(g, plants))
}

// gardenSyncPayload includes only plants whose sensor-port and valve-id are
// both non-null (§8's boundary behavior for controller reconnection).
func gardenSyncPayload(g *model.Garden, plants []*model.Plant) map[string]any {
	synced := make([]map[string]any, 0, len(plants))
	for _, p := range plants {
		if !p.HasHardware() {
			continue
		}
		synced = append(synced, map[string]any{
			"plant_id":       p.ID,
			"display_name":   p.DisplayName,
			"ideal_moisture": p.IdealMoisture,
			"water_limit":    p.WaterLimitL,
			"dripper_type":   p.DripperType,
			"sensor_port":    *p.SensorPort,
			"valve_id":       *p.ValveID,
			"valve_blocked":  p.ValveBlocked,
			"schedule": map[string]any{
				"days": p.Schedule.Days,
				"time": p.Schedule.Time,
			},
		})
	}
	return map[string]any{
		"garden_id": g.ID,
		"name":      g.Name,
		"country":   g.Country,
		"city":      g.City,
		"plants":    synced,
	}
}

func handlePing(ctx context.Context, b *broker.Broker, ch *transport.Channel, _ transport.Frame) {
	b.Registry.Heartbeat(ch.GardenID, ch)
	_ = ch.SendTyped(ctx, "PONG", nil)
}
