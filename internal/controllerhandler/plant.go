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
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

func plantPayload(p *model.Plant) map[string]any {
	payload := map[string]any{
		"id":            p.ID,
		"gardenId":      p.GardenID,
		"displayName":   p.DisplayName,
		"idealMoisture": p.IdealMoisture,
		"waterLimitL":   p.WaterLimitL,
		"dripperType":   p.DripperType,
		"valveBlocked":  p.ValveBlocked,
		"version":       p.Version,
	}
	if p.SensorPort != nil {
		payload["sensorPort"] = *p.SensorPort
	}
	if p.ValveID != nil {
		payload["valveId"] = *p.ValveID
	}
	return payload
}

type addPlantResponse struct {
	Status        string `json:"status"`
	PlantID       string `json:"plant_id"`
	SensorPort    int    `json:"sensor_port"`
	AssignedValve int    `json:"assigned_valve"`
	ErrorMessage  string `json:"error_message"`
}

func handleAddPlantResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp addPlantResponse
	if err := f.Decode(&resp); err != nil {
		b.Log.V(1).Info("controller: malformed ADD_PLANT_RESPONSE", "error", err.Error())
		return
	}
	pctx, ok := b.Pending.Assignment.Complete(resp.PlantID)
	if !ok {
		// Replaying a response for an unknown plant-id is a no-op (§8).
		return
	}
	if resp.Status != "success" {
		b.Fail(ctx, pctx.Email, "ADD_PLANT_FAIL", resp.ErrorMessage, "HARDWARE_ASSIGNMENT_FAILED")
		return
	}

	if err := b.Store.Plants().SetHardware(ctx, resp.PlantID, resp.SensorPort, resp.AssignedValve); err != nil {
		b.Fail(ctx, pctx.Email, "ADD_PLANT_FAIL", "hardware was assigned but could not be persisted", transport.CodeDatabase)
		return
	}
	p, err := b.Store.Plants().Get(ctx, resp.PlantID)
	if err != nil {
		b.Log.Error(err, "add_plant_response: refetch failed", "plant", resp.PlantID)
		return
	}
	b.NotifyEmail(ctx, pctx.Email, "ADD_PLANT_SUCCESS", plantPayload(p))
	b.Broadcaster.Broadcast(ctx, p.GardenID, broadcast.PlantAddedToGarden, plantPayload(p), pctx.Email)
}

type updatePlantResponse struct {
	Success bool   `json:"success"`
	PlantID string `json:"plant_id"`
	Message string `json:"message"`
}

func handleUpdatePlantResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp updatePlantResponse
	if err := f.Decode(&resp); err != nil {
		b.Log.V(1).Info("controller: malformed UPDATE_PLANT_RESPONSE", "error", err.Error())
		return
	}
	pctx, ok := b.Pending.Update.Complete(resp.PlantID)
	if !ok {
		return
	}
	if !resp.Success {
		b.Fail(ctx, pctx.Email, "UPDATE_PLANT_DETAILS_FAIL", resp.Message, "HARDWARE_UPDATE_FAILED")
		return
	}
	p, err := b.Store.Plants().Get(ctx, resp.PlantID)
	if err != nil {
		b.Log.Error(err, "update_plant_response: refetch failed", "plant", resp.PlantID)
		return
	}
	b.NotifyEmail(ctx, pctx.Email, "UPDATE_PLANT_DETAILS_SUCCESS", plantPayload(p))
}

type removePlantResponse struct {
	Status       string `json:"status"`
	PlantID      string `json:"plant_id"`
	ErrorMessage string `json:"error_message"`
}

// handleRemovePlantResponse deletes the plant row and its irrigation
// history only once the controller confirms removal (§4.5.2, scenario 4).
func handleRemovePlantResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp removePlantResponse
	if err := f.Decode(&resp); err != nil {
		b.Log.V(1).Info("controller: malformed REMOVE_PLANT_RESPONSE", "error", err.Error())
		return
	}
	pctx, ok := b.Pending.Deletion.Complete(resp.PlantID)
	if !ok {
		return
	}
	if resp.Status != "success" {
		b.Fail(ctx, pctx.Email, "DELETE_PLANT_FAIL", resp.ErrorMessage, "HARDWARE_REMOVAL_FAILED")
		return
	}

	p, err := b.Store.Plants().Get(ctx, resp.PlantID)
	gardenID := ""
	if err == nil {
		gardenID = p.GardenID
	}
	if err := b.Store.IrrigationEvents().DeleteForPlant(ctx, resp.PlantID); err != nil {
		b.Log.Error(err, "remove_plant_response: failed to delete event history", "plant", resp.PlantID)
	}
	if err := b.Store.Plants().Delete(ctx, resp.PlantID); err != nil {
		b.Fail(ctx, pctx.Email, "DELETE_PLANT_FAIL", "plant hardware was removed but the record could not be deleted", transport.CodeDatabase)
		return
	}
	b.NotifyEmail(ctx, pctx.Email, "DELETE_PLANT_SUCCESS", map[string]string{"plantId": resp.PlantID})
	if gardenID != "" {
		b.Broadcaster.Broadcast(ctx, gardenID, broadcast.PlantDeletedFromGarden, map[string]string{"plantId": resp.PlantID}, pctx.Email)
	}
}
