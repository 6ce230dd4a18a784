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

// Package store defines the persistence boundary. The relational store
// itself is an external dependency (§1 Non-goals: "storage engine internals");
// this package only specifies the contracts the core transacts across, the
// way the teacher's pkg/client package specifies typed clients in front of
// an external apiserver.
package store

import (
	"context"
	"errors"

	"github.com/smartgarden/gardenbroker/internal/model"
)

// ErrNotFound is returned by Get-style methods when no row matches.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned for invariant violations the store itself must
// enforce atomically (e.g. a second active admin garden, a duplicate invite
// code reservation).
var ErrConflict = errors.New("store: conflict")

// Users is the persistence contract for User rows.
type Users interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

// Gardens is the persistence contract for Garden rows.
type Gardens interface {
	Create(ctx context.Context, g *model.Garden) error
	Get(ctx context.Context, id string) (*model.Garden, error)
	GetByInviteCode(ctx context.Context, code string) (*model.Garden, error)
	InviteCodeTaken(ctx context.Context, code string) (bool, error)
	ListForAdmin(ctx context.Context, adminUserID string) ([]*model.Garden, error)
	// ListAllActive returns every active garden, used by the schedule
	// reminder sweep.
	ListAllActive(ctx context.Context) ([]*model.Garden, error)
	Update(ctx context.Context, g *model.Garden) error
}

// Memberships is the persistence contract for Membership rows.
type Memberships interface {
	// Upsert creates a membership or reactivates a previously-left one,
	// rather than inserting a duplicate row (§8 round-trip law).
	Upsert(ctx context.Context, m *model.Membership) error
	Get(ctx context.Context, userID, gardenID string) (*model.Membership, error)
	// ActiveForUser returns the user's single active membership, if any.
	ActiveForUser(ctx context.Context, userID string) (*model.Membership, error)
	ActiveMembersOf(ctx context.Context, gardenID string) ([]*model.Membership, error)
	ListGardensForUser(ctx context.Context, userID string) ([]*model.Garden, error)
	SetActive(ctx context.Context, userID, gardenID string, active bool) error
}

// Plants is the persistence contract for Plant rows.
type Plants interface {
	Create(ctx context.Context, p *model.Plant) error
	Get(ctx context.Context, id string) (*model.Plant, error)
	Update(ctx context.Context, p *model.Plant) error
	Delete(ctx context.Context, id string) error
	ListForGarden(ctx context.Context, gardenID string) ([]*model.Plant, error)
	// SetHardware persists controller-assigned sensor/valve identifiers.
	SetHardware(ctx context.Context, plantID string, sensorPort, valveID int) error
	SetValveBlocked(ctx context.Context, plantID string, blocked bool) error
}

// IrrigationEvents is the persistence contract for the append-only
// irrigation_events history.
type IrrigationEvents interface {
	Append(ctx context.Context, e *model.IrrigationEvent) error
	DeleteForPlant(ctx context.Context, plantID string) error
	ListForPlant(ctx context.Context, plantID string) ([]*model.IrrigationEvent, error)
}

// IrrigationStates is the persistence contract for the per-plant
// IrrigationState row (§4.4).
type IrrigationStates interface {
	Set(ctx context.Context, plantID string, s model.IrrigationState) error
	Get(ctx context.Context, plantID string) (model.IrrigationState, error)
}

// Store bundles every persistence contract the core depends on.
type Store interface {
	Users() Users
	Gardens() Gardens
	Memberships() Memberships
	Plants() Plants
	IrrigationEvents() IrrigationEvents
	IrrigationStates() IrrigationStates
	Close()
}
