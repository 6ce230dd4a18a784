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
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// Handler reacts to one decoded client frame.
type Handler func(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame)

// table is the compile-time dispatch table from message-type token to
// handler, built once at package init per the Design Notes' rework of the
// source's dynamic handler maps.
var table = map[string]Handler{
	"HELLO_USER": handleHelloUser,
	"LOGIN":      handleLogin,

	"CREATE_GARDEN":         handleCreateGarden,
	"GET_USER_GARDENS":      handleGetUserGardens,
	"GET_GARDEN_DETAILS":    handleGetGardenDetails,
	"SEARCH_GARDEN_BY_CODE": handleSearchGardenByCode,
	"JOIN_GARDEN":           handleJoinGarden,
	"GET_GARDEN_MEMBERS":    handleGetGardenMembers,
	"LEAVE_GARDEN":          handleLeaveGarden,
	"UPDATE_GARDEN":         handleUpdateGarden,

	"ADD_PLANT":             handleAddPlant,
	"UPDATE_PLANT_DETAILS":  handleUpdatePlantDetails,
	"DELETE_PLANT":          handleDeletePlant,
	"UPDATE_PLANT_SCHEDULE": handleUpdatePlantSchedule,

	"IRRIGATE_PLANT":        handleIrrigatePlant,
	"STOP_IRRIGATION":       handleStopIrrigation,
	"OPEN_VALVE":            handleOpenValve,
	"CLOSE_VALVE":           handleCloseValve,
	"RESTART_VALVE":         handleRestartValve,
	"GET_VALVE_STATUS":      handleGetValveStatus,
	"UNBLOCK_VALVE":         handleUnblockValve,
	"TEST_VALVE_BLOCK":      handleTestValveBlock,
	"GET_IRRIGATION_RESULT": handleGetIrrigationResult,

	"GET_PLANT_MOISTURE": handleGetPlantMoisture,
	"GET_ALL_MOISTURE":   handleGetAllMoisture,
}

// Dispatch adapts the table into a transport.FrameHandler, the shape
// transport.Server.OnClientFrame expects. An unrecognized type produces
// UNKNOWN_TYPE at the dispatch layer rather than reaching any handler.
func Dispatch(b *broker.Broker) transport.FrameHandler {
	return func(ctx context.Context, ch *transport.Channel, f transport.Frame) {
		h, ok := table[f.Type]
		if !ok {
			_ = ch.SendTyped(ctx, "UNKNOWN_TYPE", transport.FailPayload{
				Reason: "no handler registered for type " + f.Type,
				Code:   transport.CodeUnknownType,
			})
			return
		}
		h(ctx, b, ch, f)
	}
}
