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

// Package controllerhandler implements the Controller Protocol Handler
// (§4.6): the authoritative integrator of hardware events into persisted
// irrigation state, pending-correlation resolution, and broadcasts.
package controllerhandler

import (
	"context"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/metrics"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// Handler reacts to one decoded controller frame.
type Handler func(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame)

var table = map[string]Handler{
	"HELLO_PI":    handleHelloPi,
	"PI_CONNECT":  handlePiConnect,
	"PING":        handlePing,

	"ADD_PLANT_RESPONSE":    handleAddPlantResponse,
	"UPDATE_PLANT_RESPONSE": handleUpdatePlantResponse,
	"REMOVE_PLANT_RESPONSE": handleRemovePlantResponse,

	"IRRIGATION_DECISION":       handleIrrigationDecision,
	"IRRIGATION_STARTED":        handleIrrigationStarted,
	"IRRIGATION_PROGRESS":       handleIrrigationProgress,
	"IRRIGATE_PLANT_RESPONSE":   handleIrrigatePlantResponse,
	"STOP_IRRIGATION_RESPONSE":  handleStopIrrigationResponse,
	"OPEN_VALVE_RESPONSE":       handleOpenValveResponse,
	"CLOSE_VALVE_RESPONSE":      handleCloseValveResponse,
	"RESTART_VALVE_RESPONSE":    handleRestartValveResponse,
	"GET_VALVE_STATUS_RESPONSE": handleValveStatusResponse,
	"VALVE_STATUS_RESPONSE":     handleValveStatusResponse,

	"PLANT_MOISTURE_RESPONSE": handlePlantMoistureResponse,
	"ALL_MOISTURE_RESPONSE":   handleAllMoistureResponse,

	"CHECK_POWER_SUPPLY_RESPONSE":      handlePassthroughCheck,
	"CHECK_SENSOR_CONNECTION_RESPONSE": handlePassthroughCheck,
	"CHECK_VALVE_MECHANISM_RESPONSE":   handlePassthroughCheck,

	"PI_LOG": handlePiLog,
}

// Dispatch adapts the table into a transport.FrameHandler for
// transport.Server.OnControllerFrame. Unrecognized types are counted and
// dropped (§7: "Unknown message types produce UNKNOWN_TYPE"; the controller
// channel has no originator to answer, so this is forensic-only).
func Dispatch(b *broker.Broker) transport.FrameHandler {
	return func(ctx context.Context, ch *transport.Channel, f transport.Frame) {
		h, ok := table[f.Type]
		if !ok {
			metrics.ControllerResponses.WithLabelValues(f.Type, "unknown").Inc()
			b.Log.V(1).Info("controller: unknown message type", "type", f.Type, "channel", ch.ID())
			return
		}
		h(ctx, b, ch, f)
		metrics.ControllerResponses.WithLabelValues(f.Type, "ok").Inc()
	}
}
