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

	"github.com/smartgarden/gardenbroker/internal/broadcast"
	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// plantForIrrigation loads the plant and verifies membership and hardware
// assignment, the shared precondition for every irrigation command.
func plantForIrrigation(ctx context.Context, b *broker.Broker, ch *transport.Channel, userID, plantID, failType string) (*model.Plant, bool) {
	p, err := b.Store.Plants().Get(ctx, plantID)
	if err != nil {
		notFoundFail(ctx, ch, failType, "plant not found", err)
		return nil, false
	}
	if !requireActiveMembership(ctx, b, ch, userID, p.GardenID, failType) {
		return nil, false
	}
	if !p.HasHardware() {
		_ = ch.SendTyped(ctx, failType, transport.FailPayload{Reason: "plant has no assigned hardware yet", Code: "HARDWARE_NOT_ASSIGNED"})
		return nil, false
	}
	return p, true
}

func handleIrrigatePlant(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "IRRIGATE_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "IRRIGATE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, ok := plantForIrrigation(ctx, b, ch, u.ID, req.PlantID, "IRRIGATE_FAIL")
	if !ok {
		return
	}
	if p.ValveBlocked {
		_ = ch.SendTyped(ctx, "IRRIGATE_FAIL", transport.FailPayload{Reason: "the valve is blocked", Code: "VALVE_BLOCKED"})
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "IRRIGATE_FAIL")
	if cch == nil {
		return
	}

	sessionID := uuid.NewString()
	email := b.Registry.EmailByChannel(ch)
	b.Pending.Irrigation.RegisterBySession(sessionID, p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "IRRIGATE_FAIL",
	})
	_ = cch.SendTyped(ctx, "IRRIGATE_PLANT", map[string]any{"plant_id": p.ID, "session_id": sessionID})
}

func handleStopIrrigation(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "STOP_IRRIGATION_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "STOP_IRRIGATION_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, ok := plantForIrrigation(ctx, b, ch, u.ID, req.PlantID, "STOP_IRRIGATION_FAIL")
	if !ok {
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "STOP_IRRIGATION_FAIL")
	if cch == nil {
		return
	}

	// Client-initiated stop clears state best-effort before forwarding, so a
	// lost controller response cannot leave the UI indefinitely armed (§4.4).
	_ = b.States.Clear(ctx, p.ID)

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Irrigation.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "STOP_IRRIGATION_FAIL",
	})
	_ = cch.SendTyped(ctx, "STOP_IRRIGATION", map[string]any{"plant_id": p.ID})
}

type openValveRequest struct {
	PlantID     string `json:"plantId"`
	TimeMinutes int    `json:"timeMinutes"`
}

func handleOpenValve(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "OPEN_VALVE_FAIL")
	if !ok {
		return
	}
	var req openValveRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "OPEN_VALVE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, ok := plantForIrrigation(ctx, b, ch, u.ID, req.PlantID, "OPEN_VALVE_FAIL")
	if !ok {
		return
	}
	if p.ValveBlocked {
		_ = ch.SendTyped(ctx, "OPEN_VALVE_FAIL", transport.FailPayload{Reason: "the valve is blocked", Code: "VALVE_BLOCKED"})
		return
	}
	if req.TimeMinutes <= 0 {
		_ = ch.SendTyped(ctx, "OPEN_VALVE_FAIL", transport.FailPayload{Reason: "timeMinutes must be positive", Code: "VALIDATION_ERROR"})
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "OPEN_VALVE_FAIL")
	if cch == nil {
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Irrigation.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "OPEN_VALVE_FAIL",
	})
	_ = cch.SendTyped(ctx, "OPEN_VALVE", map[string]any{"plant_id": p.ID, "time_minutes": req.TimeMinutes})
}

func handleCloseValve(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "CLOSE_VALVE_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "CLOSE_VALVE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, ok := plantForIrrigation(ctx, b, ch, u.ID, req.PlantID, "CLOSE_VALVE_FAIL")
	if !ok {
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "CLOSE_VALVE_FAIL")
	if cch == nil {
		return
	}

	_ = b.States.Clear(ctx, p.ID)

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Irrigation.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "CLOSE_VALVE_FAIL",
	})
	_ = cch.SendTyped(ctx, "CLOSE_VALVE", map[string]any{"plant_id": p.ID})
}

func handleRestartValve(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "RESTART_VALVE_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "RESTART_VALVE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "RESTART_VALVE_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "RESTART_VALVE_FAIL") {
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "RESTART_VALVE_FAIL")
	if cch == nil {
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Irrigation.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "RESTART_VALVE_FAIL",
	})
	_ = cch.SendTyped(ctx, "RESTART_VALVE", map[string]any{"plant_id": p.ID})
}

func handleGetValveStatus(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_VALVE_STATUS_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "GET_VALVE_STATUS_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, ok := plantForIrrigation(ctx, b, ch, u.ID, req.PlantID, "GET_VALVE_STATUS_FAIL")
	if !ok {
		return
	}
	cch := controllerFor(ctx, b, ch, p.GardenID, "GET_VALVE_STATUS_FAIL")
	if cch == nil {
		return
	}

	email := b.Registry.EmailByChannel(ch)
	b.Pending.Irrigation.Register(p.ID, pending.Context{
		ChannelID: ch.ID(), Email: email, Snapshot: p, TimeoutFrameType: "GET_VALVE_STATUS_FAIL",
	})
	_ = cch.SendTyped(ctx, "GET_VALVE_STATUS", map[string]any{"plant_id": p.ID})
}

// handleUnblockValve and handleTestValveBlock are local operations (§4.5.3:
// "UNBLOCK_VALVE (local), TEST_VALVE_BLOCK (local)") — they mutate the
// plant's flag directly without a controller round trip.
func handleUnblockValve(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "UNBLOCK_VALVE_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "UNBLOCK_VALVE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "UNBLOCK_VALVE_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "UNBLOCK_VALVE_FAIL") {
		return
	}
	if err := b.Store.Plants().SetValveBlocked(ctx, p.ID, false); err != nil {
		_ = ch.SendTyped(ctx, "UNBLOCK_VALVE_FAIL", transport.FailPayload{Reason: "could not clear valve-blocked flag", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "UNBLOCK_VALVE_SUCCESS", map[string]string{"plantId": p.ID})
	b.Broadcaster.Broadcast(ctx, p.GardenID, broadcast.GardenValveUnblocked, map[string]string{"plantId": p.ID}, "")
}

func handleTestValveBlock(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "TEST_VALVE_BLOCK_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "TEST_VALVE_BLOCK_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "TEST_VALVE_BLOCK_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "TEST_VALVE_BLOCK_FAIL") {
		return
	}
	if err := b.Store.Plants().SetValveBlocked(ctx, p.ID, true); err != nil {
		_ = ch.SendTyped(ctx, "TEST_VALVE_BLOCK_FAIL", transport.FailPayload{Reason: "could not set valve-blocked flag", Code: transport.CodeDatabase})
		return
	}
	_ = b.States.Clear(ctx, p.ID)
	_ = ch.SendTyped(ctx, "TEST_VALVE_BLOCK_SUCCESS", map[string]string{"plantId": p.ID})
	b.Broadcaster.Broadcast(ctx, p.GardenID, broadcast.GardenValveBlocked, map[string]string{"plantId": p.ID}, "")
}

func handleGetIrrigationResult(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_IRRIGATION_RESULT_FAIL")
	if !ok {
		return
	}
	var req plantScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "GET_IRRIGATION_RESULT_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	p, err := b.Store.Plants().Get(ctx, req.PlantID)
	if err != nil {
		notFoundFail(ctx, ch, "GET_IRRIGATION_RESULT_FAIL", "plant not found", err)
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, p.GardenID, "GET_IRRIGATION_RESULT_FAIL") {
		return
	}
	st, err := b.States.Get(ctx, p.ID)
	if err != nil {
		_ = ch.SendTyped(ctx, "GET_IRRIGATION_RESULT_FAIL", transport.FailPayload{Reason: "could not load irrigation state", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "GET_IRRIGATION_RESULT_SUCCESS", map[string]any{
		"plantId":   p.ID,
		"mode":      st.Mode,
		"startAt":   st.StartAt,
		"endAt":     st.EndAt,
		"sessionId": st.SessionID,
	})
}
