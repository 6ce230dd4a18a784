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

package model

import "time"

// IrrigationMode is the per-plant watering mode. The zero value, ModeNone, is
// the terminal/idle state.
type IrrigationMode string

const (
	ModeNone   IrrigationMode = "none"
	ModeSmart  IrrigationMode = "smart"
	ModeManual IrrigationMode = "manual"
)

// IrrigationState is the per-plant record used to rehydrate the client's
// active-watering overlay after reconnect. The invariant
// mode=none <=> (sessionID=="" && endAt.IsZero()) must hold at every write.
type IrrigationState struct {
	Mode      IrrigationMode
	StartAt   time.Time
	EndAt     time.Time // zero unless Mode==ModeManual
	SessionID string    // empty unless Mode==ModeSmart
}

// IsNone reports whether the state is idle.
func (s IrrigationState) IsNone() bool {
	return s.Mode == ModeNone || s.Mode == ""
}

// NoneState is the canonical cleared state.
func NoneState() IrrigationState {
	return IrrigationState{Mode: ModeNone}
}
