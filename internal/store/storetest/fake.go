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

// Package storetest provides an in-memory store.Store for tests, grounded
// on the teacher's controller-runtime fake client pattern (a real
// implementation of the production interface, backed by plain maps instead
// of a database, used across its botanist/component test suites instead of
// a per-method mock for broad handler-level tests).
package storetest

import (
	"context"
	"sync"

	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/store"
)

// Fake is an in-memory store.Store. All methods are safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	users       map[string]*model.User // by id
	usersByMail map[string]string      // email -> id
	gardens     map[string]*model.Garden
	invites     map[string]string // code -> garden id
	memberships map[string]*model.Membership // userID+"/"+gardenID
	plants      map[string]*model.Plant
	events      map[string][]*model.IrrigationEvent // by plant id
	states      map[string]model.IrrigationState
}

// New constructs an empty Fake.
func New() *Fake {
	return &Fake{
		users:       make(map[string]*model.User),
		usersByMail: make(map[string]string),
		gardens:     make(map[string]*model.Garden),
		invites:     make(map[string]string),
		memberships: make(map[string]*model.Membership),
		plants:      make(map[string]*model.Plant),
		events:      make(map[string][]*model.IrrigationEvent),
		states:      make(map[string]model.IrrigationState),
	}
}

func membershipKey(userID, gardenID string) string { return userID + "/" + gardenID }

func (f *Fake) Close() {}

func (f *Fake) Users() store.Users                       { return fakeUsers{f} }
func (f *Fake) Gardens() store.Gardens                   { return fakeGardens{f} }
func (f *Fake) Memberships() store.Memberships           { return fakeMemberships{f} }
func (f *Fake) Plants() store.Plants                     { return fakePlants{f} }
func (f *Fake) IrrigationEvents() store.IrrigationEvents { return fakeEvents{f} }
func (f *Fake) IrrigationStates() store.IrrigationStates { return fakeStates{f} }

// PutUser seeds a user directly, bypassing Create, for test setup.
func (f *Fake) PutUser(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = model.NormalizeEmail(u.Email)
	f.users[u.ID] = u
	f.usersByMail[u.Email] = u.ID
}

// PutGarden seeds a garden directly, for test setup.
func (f *Fake) PutGarden(g *model.Garden) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gardens[g.ID] = g
	if g.Active {
		f.invites[model.NormalizeInviteCode(g.InviteCode)] = g.ID
	}
}

// PutMembership seeds a membership directly, for test setup.
func (f *Fake) PutMembership(m *model.Membership) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.memberships[membershipKey(m.UserID, m.GardenID)] = &cp
}

// PutPlant seeds a plant directly, for test setup.
func (f *Fake) PutPlant(p *model.Plant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plants[p.ID] = p
}

type fakeUsers struct{ f *Fake }

func (u fakeUsers) Create(_ context.Context, usr *model.User) error {
	u.f.mu.Lock()
	defer u.f.mu.Unlock()
	usr.Email = model.NormalizeEmail(usr.Email)
	if _, ok := u.f.usersByMail[usr.Email]; ok {
		return store.ErrConflict
	}
	u.f.users[usr.ID] = usr
	u.f.usersByMail[usr.Email] = usr.ID
	return nil
}

func (u fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u.f.mu.Lock()
	defer u.f.mu.Unlock()
	usr, ok := u.f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return usr, nil
}

func (u fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	u.f.mu.Lock()
	defer u.f.mu.Unlock()
	id, ok := u.f.usersByMail[model.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u.f.users[id], nil
}

type fakeGardens struct{ f *Fake }

func (g fakeGardens) Create(_ context.Context, gd *model.Garden) error {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	code := model.NormalizeInviteCode(gd.InviteCode)
	if _, ok := g.f.invites[code]; ok {
		return store.ErrConflict
	}
	g.f.gardens[gd.ID] = gd
	g.f.invites[code] = gd.ID
	return nil
}

func (g fakeGardens) Get(_ context.Context, id string) (*model.Garden, error) {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	gd, ok := g.f.gardens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return gd, nil
}

func (g fakeGardens) GetByInviteCode(_ context.Context, code string) (*model.Garden, error) {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	id, ok := g.f.invites[model.NormalizeInviteCode(code)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return g.f.gardens[id], nil
}

func (g fakeGardens) InviteCodeTaken(_ context.Context, code string) (bool, error) {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	_, ok := g.f.invites[model.NormalizeInviteCode(code)]
	return ok, nil
}

func (g fakeGardens) ListForAdmin(_ context.Context, adminUserID string) ([]*model.Garden, error) {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	var out []*model.Garden
	for _, gd := range g.f.gardens {
		if gd.AdminUserID == adminUserID && gd.Active {
			out = append(out, gd)
		}
	}
	return out, nil
}

func (g fakeGardens) ListAllActive(_ context.Context) ([]*model.Garden, error) {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	var out []*model.Garden
	for _, gd := range g.f.gardens {
		if gd.Active {
			out = append(out, gd)
		}
	}
	return out, nil
}

func (g fakeGardens) Update(_ context.Context, gd *model.Garden) error {
	g.f.mu.Lock()
	defer g.f.mu.Unlock()
	if _, ok := g.f.gardens[gd.ID]; !ok {
		return store.ErrNotFound
	}
	g.f.gardens[gd.ID] = gd
	return nil
}

type fakeMemberships struct{ f *Fake }

func (m fakeMemberships) Upsert(_ context.Context, mem *model.Membership) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	key := membershipKey(mem.UserID, mem.GardenID)
	if existing, ok := m.f.memberships[key]; ok {
		existing.Active = mem.Active
		existing.Role = mem.Role
		return nil
	}
	cp := *mem
	m.f.memberships[key] = &cp
	return nil
}

func (m fakeMemberships) Get(_ context.Context, userID, gardenID string) (*model.Membership, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	mem, ok := m.f.memberships[membershipKey(userID, gardenID)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return mem, nil
}

func (m fakeMemberships) ActiveForUser(_ context.Context, userID string) (*model.Membership, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	for _, mem := range m.f.memberships {
		if mem.UserID == userID && mem.Active {
			return mem, nil
		}
	}
	return nil, nil
}

func (m fakeMemberships) ActiveMembersOf(_ context.Context, gardenID string) ([]*model.Membership, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	var out []*model.Membership
	for _, mem := range m.f.memberships {
		if mem.GardenID == gardenID && mem.Active {
			out = append(out, mem)
		}
	}
	return out, nil
}

func (m fakeMemberships) ListGardensForUser(_ context.Context, userID string) ([]*model.Garden, error) {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	var out []*model.Garden
	for _, mem := range m.f.memberships {
		if mem.UserID == userID && mem.Active {
			if gd, ok := m.f.gardens[mem.GardenID]; ok {
				out = append(out, gd)
			}
		}
	}
	return out, nil
}

func (m fakeMemberships) SetActive(_ context.Context, userID, gardenID string, active bool) error {
	m.f.mu.Lock()
	defer m.f.mu.Unlock()
	mem, ok := m.f.memberships[membershipKey(userID, gardenID)]
	if !ok {
		return store.ErrNotFound
	}
	mem.Active = active
	return nil
}

type fakePlants struct{ f *Fake }

func (p fakePlants) Create(_ context.Context, pl *model.Plant) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	p.f.plants[pl.ID] = pl
	return nil
}

func (p fakePlants) Get(_ context.Context, id string) (*model.Plant, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	pl, ok := p.f.plants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *pl
	return &cp, nil
}

func (p fakePlants) Update(_ context.Context, pl *model.Plant) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	if _, ok := p.f.plants[pl.ID]; !ok {
		return store.ErrNotFound
	}
	p.f.plants[pl.ID] = pl
	return nil
}

func (p fakePlants) Delete(_ context.Context, id string) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	delete(p.f.plants, id)
	return nil
}

func (p fakePlants) ListForGarden(_ context.Context, gardenID string) ([]*model.Plant, error) {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	var out []*model.Plant
	for _, pl := range p.f.plants {
		if pl.GardenID == gardenID {
			out = append(out, pl)
		}
	}
	return out, nil
}

func (p fakePlants) SetHardware(_ context.Context, plantID string, sensorPort, valveID int) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	pl, ok := p.f.plants[plantID]
	if !ok {
		return store.ErrNotFound
	}
	pl.SensorPort = &sensorPort
	pl.ValveID = &valveID
	pl.Version++
	return nil
}

func (p fakePlants) SetValveBlocked(_ context.Context, plantID string, blocked bool) error {
	p.f.mu.Lock()
	defer p.f.mu.Unlock()
	pl, ok := p.f.plants[plantID]
	if !ok {
		return store.ErrNotFound
	}
	pl.ValveBlocked = blocked
	return nil
}

type fakeEvents struct{ f *Fake }

func (e fakeEvents) Append(_ context.Context, ev *model.IrrigationEvent) error {
	e.f.mu.Lock()
	defer e.f.mu.Unlock()
	e.f.events[ev.PlantID] = append(e.f.events[ev.PlantID], ev)
	return nil
}

func (e fakeEvents) DeleteForPlant(_ context.Context, plantID string) error {
	e.f.mu.Lock()
	defer e.f.mu.Unlock()
	delete(e.f.events, plantID)
	return nil
}

func (e fakeEvents) ListForPlant(_ context.Context, plantID string) ([]*model.IrrigationEvent, error) {
	e.f.mu.Lock()
	defer e.f.mu.Unlock()
	return append([]*model.IrrigationEvent(nil), e.f.events[plantID]...), nil
}

type fakeStates struct{ f *Fake }

func (s fakeStates) Set(_ context.Context, plantID string, st model.IrrigationState) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.states[plantID] = st
	return nil
}

func (s fakeStates) Get(_ context.Context, plantID string) (model.IrrigationState, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	return s.f.states[plantID], nil
}
