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

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/transport"
	"github.com/smartgarden/gardenbroker/internal/validation"
)

func plantPayload(p *model.Plant) map[string]any {
	payload := map[string]any{
		"id":            p.ID,
		"gardenId":      p.GardenID,
		"displayName":   p.DisplayName,
		"idealMoisture": p.IdealMoisture,
		"waterLimitL":   p.WaterLimitL,
		"dripperType":   p.DripperType,
		"schedule": map[string]any{
			"days": p.Schedule.Days,
			"time": p.Schedule.Time,
		},
		"valveBlocked": p.ValveBlocked,
		"version":      p.Version,
	}
	if p.SensorPort != nil {
		payload["sensorPort"] = *p.SensorPort
	}
	if p.ValveID != nil {
		payload["valveId"] = *p.ValveID
	}
	return payload
}

// controllerFor resolves the OPEN controller channel bound to a garden, or
// reports a hardware-classified failure if none is bound.
func controllerFor(ctx context.Context, b *broker.Broker, ch *transport.Channel, gardenID, failType string) *transport.Channel {
	cch := b.Registry.ControllerByGarden(gardenID)
	if cch == nil {
		_ = ch.SendTyped(ctx, failType, transport.FailPayload{Reason: "the garden's controller is not connected", Code: "CONTROLLER_DISCONNECTED"})
	}
	return cch
}

type addPlantRequest struct {
	GardenID      string         `json:"gardenId"`
	DisplayName   string         `json:"displayName"`
	IdealMoisture int            `json:"idealMoisture"`
	WaterLimitL   float64        `json:"waterLimitL"`
	DripperType   string         `json:"dripperType"`
	Schedule      model.Schedule `json:"schedule"`
}

// handleAddPlant persists the plant record first, then sends ADD_PLANT to
// the controller and registers a pending hardware-assignment correlation;
// success is only reported once the controller returns the assigned
// sensor-port/valve-id (§4.5.2).
func handleAddPlant(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "ADD_PLANT_FAIL")
	if !ok {
		return
	}
	var req addPlantRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "ADD_PLANT_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, req.GardenID, "ADD_PLANT_FAIL") {
		return
	}

	p := &model.Plant{
		ID:            uuid.NewString(),
		GardenID:      req.GardenID,
		UserID:        u.ID,
		DisplayName:   req.DisplayName,
		IdealMoisture: req.IdealMoisture,
		WaterLimitL:   req.WaterLimitL,
		DripperType:   req.DripperType,
		Schedule:      req.Schedule,
		Version:       1,
		Irrigation:    model.NoneState(),
	}
	if errs := validation.ValidatePlant(p, field.NewPath("plant")); len(errs) > 0 {
		_ = ch.SendTyped(ctx, "ADD_PLANT_FAIL", transport.FailPayload{Reason: errs.ToAggregate().Error(), Code: "VALIDATION_ERROR"})
		return
	}

	cch := controllerFor(ctx, b, ch, req.GardenID, "ADD_PLANT_FAIL")
	if cch == nil {
		return
	}
	if err := b.Store.Plants().Create(ctx, p); err != nil {
		_ = ch.SendTyped(ctx, "ADD_PLANT_FAIL", transport.FailPayload{Reason: "could not persist plant", Code: transport.CodeDatabase})
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Assignment.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "ADD_PLANT_FAIL",
	})
	_ = cch.SendTyped(ctx, "ADD_PLANT", map[string]any{
		"plant_id":       p.ID,
		"display_name":   p.DisplayName,
		"ideal_moisture": p.IdealMoisture,
		"water_limit":    p.WaterLimitL,
		"dripper_type":   p.DripperType,
	})
}

type updatePlantDetailsRequest struct {
	PlantID       string  `json:"plantId"`
	DisplayName   string  `json:"displayName"`
	IdealMoisture int     `json:"idealMoisture"`
	WaterLimitL   float64 `json:"waterLimitL"`
	DripperType   string  `json:"dripperType"`
}

func handleUpdatePlantDetails(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "UPDATE_PLANT_DETAILS_FAIL")
	if !ok {
		return
	}
	var req updatePlantDetailsRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "UPDATE_PLANT_DETAILS_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "UPDATE_PLANT_DETAILS_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "UPDATE_PLANT_DETAILS_FAIL") {
		return
	}

	if req.DisplayName != "" {
		p.DisplayName = req.DisplayName
	}
	if req.IdealMoisture > 0 {
		p.IdealMoisture = req.IdealMoisture
	}
	if req.WaterLimitL > 0 {
		p.WaterLimitL = req.WaterLimitL
	}
	if req.DripperType != "" {
		p.DripperType = req.DripperType
	}
	if errs := validation.ValidatePlant(p, field.NewPath("plant")); len(errs) > 0 {
		_ = ch.SendTyped(ctx, "UPDATE_PLANT_DETAILS_FAIL", transport.FailPayload{Reason: errs.ToAggregate().Error(), Code: "VALIDATION_ERROR"})
		return
	}

	cch := controllerFor(ctx, b, ch, p.GardenID, "UPDATE_PLANT_DETAILS_FAIL")
	if cch == nil {
		return
	}
	p.Version++
	if err := b.Store.Plants().Update(ctx, p); err != nil {
		_ = ch.SendTyped(ctx, "UPDATE_PLANT_DETAILS_FAIL", transport.FailPayload{Reason: "could not persist plant", Code: transport.CodeDatabase})
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Update.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "UPDATE_PLANT_DETAILS_FAIL",
	})
	_ = cch.SendTyped(ctx, "UPDATE_PLANT", map[string]any{
		"plant_id":       p.ID,
		"display_name":   p.DisplayName,
		"ideal_moisture": p.IdealMoisture,
		"water_limit":    p.WaterLimitL,
		"dripper_type":   p.DripperType,
	})
}

type plantScopedRequest struct {
	PlantID string `json:"plantId"`
}

// handleDeletePlant persists nothing itself: it forwards REMOVE_PLANT and
// registers a pending deletion; the row and its event history are only
// removed once REMOVE_PLANT_RESPONSE confirms (§4.5.2, scenario 4).
func handleDeletePlant(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "DELETE_PLANT_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "DELETE_PLANT_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "DELETE_PLANT_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "DELETE_PLANT_FAIL") {
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "DELETE_PLANT_FAIL")
	if cch == nil {
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Deletion.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "DELETE_PLANT_FAIL",
	})
	_ = cch.SendTyped(ctx, "REMOVE_PLANT", map[string]any{"plant_id": p.ID})
}

type updateScheduleRequest struct {
	PlantID  string         `json:"plantId"`
	Schedule model.Schedule `json:"schedule"`
}

// handleUpdatePlantSchedule stores the schedule and forwards it; no
// correlation is kept, per §4.5.5.
func handleUpdatePlantSchedule(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "UPDATE_PLANT_SCHEDULE_FAIL")
	if !ok {
		return
	}
	var req updateScheduleRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "UPDATE_PLANT_SCHEDULE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	if errs := validation.ValidateSchedule(req.Schedule, field.NewPath("schedule")); len(errs) > 0 {
		_ = ch.SendTyped(ctx, "UPDATE_PLANT_SCHEDULE_FAIL", transport.FailPayload{Reason: errs.ToAggregate().Error(), Code: "VALIDATION_ERROR"})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "UPDATE_PLANT_SCHEDULE_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "UPDATE_PLANT_SCHEDULE_FAIL") {
		return
	}

	p.Schedule = req.Schedule
	p.Version++
	if err := b.Store.Plants().Update(ctx, p); err != nil {
		_ = ch.SendTyped(ctx, "UPDATE_PLANT_SCHEDULE_FAIL", transport.FailPayload{Reason: "could not persist schedule", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "UPDATE_PLANT_SCHEDULE_SUCCESS", plantPayload(p))

	if cch := b.Registry.ControllerByGarden(p.GardenID); cch != nil {
		_ = cch.SendTyped(ctx, "UPDATE_PLANT_SCHEDULE", map[string]any{
			"plant_id": p.ID,
			"days":     p.Schedule.Days,
			"time":     p.Schedule.Time,
		})
	}
}
