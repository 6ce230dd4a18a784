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
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartgarden/gardenbroker/internal/broadcast"
	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

type irrigationDecision struct {
	PlantID     string  `json:"plant_id"`
	SessionID   string  `json:"session_id"`
	WillIrrigate bool   `json:"will_irrigate"`
	Current     float64 `json:"current"`
	Target      float64 `json:"target"`
	Gap         float64 `json:"gap"`
	Reason      string  `json:"reason"`
}

// handleIrrigationDecision is the none->smart transition. It completes the
// pending correlation first, whatever the decision. A negative decision then
// clears any stray state and notifies IRRIGATION_SKIPPED; a positive one
// re-registers the correlation by session, persists the smart state,
// notifies the originator and broadcasts the start to the rest of the garden.
func handleIrrigationDecision(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var d irrigationDecision
	if err := f.Decode(&d); err != nil {
		b.Log.V(1).Info("controller: malformed IRRIGATION_DECISION", "error", err.Error())
		return
	}
	pctx, ok := completeIrrigation(b, d.SessionID, d.PlantID)
	if !ok {
		return
	}

	if !d.WillIrrigate {
		_ = b.States.Clear(ctx, d.PlantID)
		b.NotifyEmail(ctx, pctx.Email, "IRRIGATION_SKIPPED", map[string]any{
			"plantId": d.PlantID, "current": d.Current, "target": d.Target, "reason": d.Reason,
		})
		return
	}

	// will_irrigate=true re-registers the correlation: the terminal
	// IRRIGATE_PLANT_RESPONSE and any IRRIGATION_PROGRESS frames still need
	// to find this originator.
	b.Pending.Irrigation.RegisterBySession(d.SessionID, d.PlantID, pending.Context{
		ChannelID: pctx.ChannelID, Email: pctx.Email, Snapshot: pctx.Snapshot, TimeoutFrameType: "IRRIGATE_FAIL",
	})
	if err := b.States.Set(ctx, d.PlantID, model.IrrigationState{Mode: model.ModeSmart, StartAt: time.Now(), SessionID: d.SessionID}); err != nil {
		b.Log.Error(err, "irrigation_decision: failed to persist smart state", "plant", d.PlantID)
	}
	b.NotifyEmail(ctx, pctx.Email, "IRRIGATION_STARTED", map[string]any{
		"plantId": d.PlantID, "sessionId": d.SessionID, "current": d.Current, "target": d.Target, "gap": d.Gap,
	})
	plantGardenBroadcast(ctx, b, d.PlantID, broadcast.GardenIrrigationStarted, map[string]any{"plantId": d.PlantID, "mode": model.ModeSmart}, pctx.Email)
}

// completeIrrigation applies the session-id-wins tie-break (§4.2): try the
// session index first, falling back to the plant-id key.
func completeIrrigation(b *broker.Broker, sessionID, plantID string) (pending.Context, bool) {
	if sessionID != "" {
		if pctx, ok := b.Pending.Irrigation.CompleteBySession(sessionID); ok {
			return pctx, true
		}
	}
	if plantID != "" {
		if pctx, ok := b.Pending.Irrigation.Complete(plantID); ok {
			return pctx, true
		}
	}
	return pending.Context{}, false
}

// peekIrrigation is like completeIrrigation but non-destructive, for
// messages that do not terminate the correlation (IRRIGATION_PROGRESS).
func peekIrrigation(b *broker.Broker, sessionID, plantID string) (pending.Context, bool) {
	if sessionID != "" {
		if pctx, ok := b.Pending.Irrigation.PeekBySession(sessionID); ok {
			return pctx, true
		}
	}
	if plantID != "" {
		return b.Pending.Irrigation.Peek(plantID)
	}
	return pending.Context{}, false
}

// refreshIrrigation resets the correlation's idle ceiling (§4.2: "progress
// messages refresh the liveness"), preferring the session index per the
// same tie-break as completeIrrigation/peekIrrigation.
func refreshIrrigation(b *broker.Broker, sessionID, plantID string, now time.Time) {
	if sessionID != "" {
		if _, ok := b.Pending.Irrigation.PeekBySession(sessionID); ok {
			b.Pending.Irrigation.RefreshBySession(sessionID, now)
			return
		}
	}
	if plantID != "" {
		b.Pending.Irrigation.Refresh(plantID, now)
	}
}

func plantGardenBroadcast(ctx context.Context, b *broker.Broker, plantID string, evt broadcast.EventType, payload any, exceptEmail string) {
	p, err := b.Store.Plants().Get(ctx, plantID)
	if err != nil {
		return
	}
	b.Broadcaster.Broadcast(ctx, p.GardenID, evt, payload, exceptEmail)
}

// handleIrrigationStarted covers scheduled (controller-initiated) runs that
// were never preceded by a client command: there is no originator, only a
// garden-wide broadcast.
func handleIrrigationStarted(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var payload struct {
		PlantID string `json:"plant_id"`
	}
	if err := f.Decode(&payload); err != nil {
		return
	}
	plantGardenBroadcast(ctx, b, payload.PlantID, broadcast.GardenIrrigationStarted, map[string]any{"plantId": payload.PlantID, "mode": model.ModeSmart}, "")
}

func handleIrrigationProgress(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var payload struct {
		PlantID   string  `json:"plant_id"`
		SessionID string  `json:"session_id"`
		Stage     string  `json:"stage"`
		Pulse     int     `json:"pulse"`
		Current   float64 `json:"current"`
		Target    float64 `json:"target"`
		TotalWater float64 `json:"total_water"`
	}
	if err := f.Decode(&payload); err != nil {
		b.Log.V(1).Info("controller: malformed IRRIGATION_PROGRESS", "error", err.Error())
		return
	}
	pctx, ok := peekIrrigation(b, payload.SessionID, payload.PlantID)
	if !ok {
		return
	}
	// A live progress frame refreshes the correlation's idle ceiling so a
	// run longer than the 120s deadline is not swept out from under it
	// (§4.2).
	refreshIrrigation(b, payload.SessionID, payload.PlantID, time.Now())
	// Forward verbatim to the originator (§4.6); the payload shape is the
	// controller's own, not reinterpreted here.
	b.NotifyEmail(ctx, pctx.Email, "IRRIGATION_PROGRESS", json.RawMessage(f.Data))
}

type irrigatePlantResponse struct {
	Status          string  `json:"status"`
	PlantID         string  `json:"plant_id"`
	SessionID       string  `json:"session_id"`
	ErrorMessage    string  `json:"error_message"`
	Moisture        float64 `json:"moisture"`
	FinalMoisture   float64 `json:"final_moisture"`
	WaterAddedLiters float64 `json:"water_added_liters"`
}

func isValveBlockedError(msg string) bool {
	return strings.Contains(msg, "water_limit_reached") || strings.Contains(msg, "valve_blocked") || strings.Contains(msg, "valve_stuck")
}

// handleIrrigatePlantResponse is the smart->none transition: it appends an
// IrrigationEvent, notifies the originator, clears state, and — for
// valve-blocked classified errors — sets the plant flag and broadcasts the
// block/stop pair (§4.6, §7, end-to-end scenarios 1 & 2).
func handleIrrigatePlantResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp irrigatePlantResponse
	if err := f.Decode(&resp); err != nil {
		b.Log.V(1).Info("controller: malformed IRRIGATE_PLANT_RESPONSE", "error", err.Error())
		return
	}
	pctx, _ := completeIrrigation(b, resp.SessionID, resp.PlantID)

	status := model.EventDone
	switch resp.Status {
	case "skipped":
		status = model.EventSkipped
	case "cancelled":
		status = model.EventCancelled
	case "error":
		status = model.EventError
	}
	event := &model.IrrigationEvent{
		ID:              uuid.NewString(),
		PlantID:         resp.PlantID,
		Status:          status,
		Reason:          resp.ErrorMessage,
		InitialMoisture: resp.Moisture,
		FinalMoisture:   resp.FinalMoisture,
		Liters:          resp.WaterAddedLiters,
		HardwareTime:    time.Now(),
	}
	if err := b.Store.IrrigationEvents().Append(ctx, event); err != nil {
		b.Log.Error(err, "irrigate_plant_response: failed to append event", "plant", resp.PlantID)
	}
	_ = b.States.Clear(ctx, resp.PlantID)

	switch resp.Status {
	case "success":
		b.NotifyEmail(ctx, pctx.Email, "IRRIGATE_SUCCESS", map[string]any{
			"plantId": resp.PlantID, "initialMoisture": resp.Moisture, "finalMoisture": resp.FinalMoisture, "litersAdded": resp.WaterAddedLiters,
		})
		// The original IRRIGATION_STARTED broadcast already announced the
		// session; success emits no further garden-wide event.
	case "skipped":
		b.NotifyEmail(ctx, pctx.Email, "IRRIGATE_SKIPPED", map[string]any{"plantId": resp.PlantID, "reason": resp.ErrorMessage})
	case "cancelled":
		b.NotifyEmail(ctx, pctx.Email, "IRRIGATION_CANCELLED", map[string]any{"plantId": resp.PlantID})
	default:
		if isValveBlockedError(resp.ErrorMessage) {
			if err := b.Store.Plants().SetValveBlocked(ctx, resp.PlantID, true); err != nil {
				b.Log.Error(err, "irrigate_plant_response: failed to set valve-blocked", "plant", resp.PlantID)
			}
			b.NotifyEmail(ctx, pctx.Email, "VALVE_BLOCKED", map[string]any{"plantId": resp.PlantID, "reason": resp.ErrorMessage})
			plantGardenBroadcast(ctx, b, resp.PlantID, broadcast.GardenValveBlocked, map[string]string{"plantId": resp.PlantID}, "")
			plantGardenBroadcast(ctx, b, resp.PlantID, broadcast.GardenIrrigationStopped, map[string]string{"plantId": resp.PlantID}, "")
			return
		}
		b.Fail(ctx, pctx.Email, "IRRIGATE_FAIL", resp.ErrorMessage, "HARDWARE_ERROR")
	}
}

type stopIrrigationResponse struct {
	PlantID string `json:"plant_id"`
}

func handleStopIrrigationResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp stopIrrigationResponse
	if err := f.Decode(&resp); err != nil {
		return
	}
	pctx, hadOriginator := b.Pending.Irrigation.Complete(resp.PlantID)
	st, _ := b.States.Get(ctx, resp.PlantID)
	// A second STOP_IRRIGATION for an already-stopped session has neither a
	// pending correlation nor a live state to clear; skip the duplicate
	// event/broadcast so at most one `stopped` row is persisted per active
	// session (§8 idempotence law).
	if !hadOriginator && st.Mode == model.ModeNone {
		return
	}
	event := &model.IrrigationEvent{ID: uuid.NewString(), PlantID: resp.PlantID, Status: model.EventStopped, HardwareTime: time.Now()}
	if err := b.Store.IrrigationEvents().Append(ctx, event); err != nil {
		b.Log.Error(err, "stop_irrigation_response: failed to append event", "plant", resp.PlantID)
	}
	_ = b.States.Clear(ctx, resp.PlantID)
	b.NotifyEmail(ctx, pctx.Email, "STOP_IRRIGATION_SUCCESS", map[string]string{"plantId": resp.PlantID})
	plantGardenBroadcast(ctx, b, resp.PlantID, broadcast.GardenIrrigationStopped, map[string]string{"plantId": resp.PlantID}, "")
}

type openValveResponse struct {
	PlantID     string `json:"plant_id"`
	TimeMinutes int    `json:"time_minutes"`
}

func handleOpenValveResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp openValveResponse
	if err := f.Decode(&resp); err != nil {
		return
	}
	pctx, _ := b.Pending.Irrigation.Complete(resp.PlantID)
	now := time.Now()
	endAt := now.Add(time.Duration(resp.TimeMinutes) * time.Minute)
	if err := b.States.Set(ctx, resp.PlantID, model.IrrigationState{Mode: model.ModeManual, StartAt: now, EndAt: endAt}); err != nil {
		b.Log.Error(err, "open_valve_response: failed to persist manual state", "plant", resp.PlantID)
	}
	event := &model.IrrigationEvent{ID: uuid.NewString(), PlantID: resp.PlantID, Status: model.EventValveOpened, HardwareTime: now}
	if err := b.Store.IrrigationEvents().Append(ctx, event); err != nil {
		b.Log.Error(err, "open_valve_response: failed to append event", "plant", resp.PlantID)
	}
	b.NotifyEmail(ctx, pctx.Email, "OPEN_VALVE_SUCCESS", map[string]any{"plantId": resp.PlantID, "endAt": endAt})
	plantGardenBroadcast(ctx, b, resp.PlantID, broadcast.GardenIrrigationStarted, map[string]any{"plantId": resp.PlantID, "mode": model.ModeManual}, "")
}

type closeValveResponse struct {
	PlantID string `json:"plant_id"`
}

// handleCloseValveResponse appends a valve_closed event, clears the plant's
// state, notifies the originator when one is known, and broadcasts the stop
// to the garden in every case — the controller may close a valve whose open
// request was never routed through this server instance (§4.6).
func handleCloseValveResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp closeValveResponse
	if err := f.Decode(&resp); err != nil {
		return
	}
	pctx, hadOriginator := b.Pending.Irrigation.Complete(resp.PlantID)
	event := &model.IrrigationEvent{ID: uuid.NewString(), PlantID: resp.PlantID, Status: model.EventValveClosed, HardwareTime: time.Now()}
	if err := b.Store.IrrigationEvents().Append(ctx, event); err != nil {
		b.Log.Error(err, "close_valve_response: failed to append event", "plant", resp.PlantID)
	}
	_ = b.States.Clear(ctx, resp.PlantID)
	if hadOriginator && pctx.Email != "" {
		b.NotifyEmail(ctx, pctx.Email, "CLOSE_VALVE_SUCCESS", map[string]string{"plantId": resp.PlantID})
	}
	plantGardenBroadcast(ctx, b, resp.PlantID, broadcast.GardenIrrigationStopped, map[string]string{"plantId": resp.PlantID}, "")
}

type restartValveResponse struct {
	Success      bool   `json:"success"`
	PlantID      string `json:"plant_id"`
	ErrorMessage string `json:"error_message"`
}

func handleRestartValveResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp restartValveResponse
	if err := f.Decode(&resp); err != nil {
		return
	}
	pctx, _ := b.Pending.Irrigation.Complete(resp.PlantID)
	if !resp.Success {
		b.Fail(ctx, pctx.Email, "RESTART_VALVE_FAIL", resp.ErrorMessage, "HARDWARE_ERROR")
		return
	}
	if err := b.Store.Plants().SetValveBlocked(ctx, resp.PlantID, false); err != nil {
		b.Log.Error(err, "restart_valve_response: failed to clear valve-blocked", "plant", resp.PlantID)
	}
	b.NotifyEmail(ctx, pctx.Email, "RESTART_VALVE_SUCCESS", map[string]string{"plantId": resp.PlantID})
	plantGardenBroadcast(ctx, b, resp.PlantID, broadcast.GardenValveUnblocked, map[string]string{"plantId": resp.PlantID}, "")
}

type valveStatusResponse struct {
	PlantID string `json:"plant_id"`
	Open    bool   `json:"open"`
	Blocked bool   `json:"blocked"`
}

func handleValveStatusResponse(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp valveStatusResponse
	if err := f.Decode(&resp); err != nil {
		return
	}
	pctx, _ := b.Pending.Irrigation.Complete(resp.PlantID)
	if resp.Blocked {
		b.NotifyEmail(ctx, pctx.Email, "VALVE_BLOCKED", map[string]any{"plantId": resp.PlantID})
		return
	}
	b.NotifyEmail(ctx, pctx.Email, "VALVE_STATUS", map[string]any{"plantId": resp.PlantID, "open": resp.Open})
}

type passthroughCheckResponse struct {
	PlantID      string `json:"plant_id"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message"`
}

// handlePassthroughCheck covers the three CHECK_*_RESPONSE frames, which all
// pass through to the originator with the same success/error mapping
// (§4.6). The originator is looked up in the Assignment table by plant id;
// no handler in this module registers CHECK correlations there, so a
// response without a matching entry is dropped.
func handlePassthroughCheck(ctx context.Context, b *broker.Broker, _ *transport.Channel, f transport.Frame) {
	var resp passthroughCheckResponse
	if err := f.Decode(&resp); err != nil {
		return
	}
	pctx, ok := b.Pending.Assignment.Complete(resp.PlantID)
	if !ok {
		return
	}
	if resp.Success {
		b.NotifyEmail(ctx, pctx.Email, "CHECK_SUCCESS", map[string]string{"plantId": resp.PlantID})
		return
	}
	b.Fail(ctx, pctx.Email, "CHECK_FAIL", resp.ErrorMessage, "HARDWARE_ERROR")
}

func handlePiLog(_ context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	var payload struct {
		Message string `json:"message"`
		Level   string `json:"level"`
	}
	_ = f.Decode(&payload)
	b.Log.V(1).Info("controller log", "garden", ch.GardenID, "level", payload.Level, "message", payload.Message)
}
