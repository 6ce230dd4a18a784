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

	"github.com/smartgarden/gardenbroker/internal/broadcast"
	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

type plantMoistureResponse struct {
	PlantID     string  `json:"plant_id"`
	Status      string  `json:"status"`
	Moisture    float64 `json:"moisture"`
	Temperature float64 `json:"temperature"`
}

func handlePlantMoistureResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp plantMoistureResponse
	if err := f.Decode(&resp); err != nil {
		b.Log.V(1).Info("controller: malformed PLANT_MOISTURE_RESPONSE", "error", err.Error())
		return
	}
	pctx, ok := b.Pending.Moisture.Complete(resp.PlantID)
	if !ok {
		return
	}
	payload := map[string]any{"plantId": resp.PlantID, "moisture": resp.Moisture, "temperature": resp.Temperature}
	b.NotifyEmail(ctx, pctx.Email, "PLANT_MOISTURE_SUCCESS", payload)

	p, err := b.Store.Plants().Get(ctx, resp.PlantID)
	if err != nil {
		return
	}
	b.Broadcaster.Broadcast(ctx, p.GardenID, broadcast.GardenMoistureUpdate, payload, pctx.Email)
}

type allMoistureResponse struct {
	GardenID string `json:"garden_id"`
	Readings []struct {
		PlantID     string  `json:"plant_id"`
		Moisture    float64 `json:"moisture"`
		Temperature float64 `json:"temperature"`
	} `json:"readings"`
}

// handleAllMoistureResponse fans out to every active client of the garden,
// since GET_ALL_MOISTURE has no single originator (§4.5.4, §4.6).
func handleAllMoistureResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp allMoistureResponse
	if err := f.Decode(&resp); err != nil {
		b.Log.V(1).Info("controller: malformed ALL_MOISTURE_RESPONSE", "error", err.Error())
		return
	}
	b.Pending.Moisture.Complete(resp.GardenID)

	readings := make([]map[string]any, 0, len(resp.Readings))
	for _, r := range resp.Readings {
		readings = append(readings, map[string]any{"plantId": r.PlantID, "moisture": r.Moisture, "temperature": r.Temperature})
	}
	b.Broadcaster.Broadcast(ctx, resp.GardenID, broadcast.GardenMoistureUpdate, map[string]any{"readings": readings}, "")
}
