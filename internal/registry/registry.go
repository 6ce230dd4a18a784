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

// Package registry implements the Session Registry (§4.1): the sole owner of
// channel references, translating identities to channels and enforcing
// single-controller-per-garden / single-channel-per-email.
package registry

import (
	"sync"
	"time"

	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// Registry is process-wide state guarded by a single mutex. Reads
// (channelByEmail, controllerByGarden) are cheap map lookups; writes never
// hold the lock across network I/O — Close is called after releasing it.
type Registry struct {
	mu sync.RWMutex

	clientByEmail map[string]*transport.Channel
	emailByChan   map[string]string // channel id -> email

	controllerByGarden map[string]*transport.Channel
	gardenByChan        map[string]string // channel id -> garden id

	lastSeen map[string]time.Time // controller channel id -> heartbeat
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		clientByEmail:      make(map[string]*transport.Channel),
		emailByChan:        make(map[string]string),
		controllerByGarden: make(map[string]*transport.Channel),
		gardenByChan:       make(map[string]string),
		lastSeen:           make(map[string]time.Time),
	}
}

// AttachClient normalizes email and binds the channel to it. If a different
// channel was already bound to this email, it is replaced and closed with a
// replacement code — at most one OPEN client channel per email holds.
func (r *Registry) AttachClient(ch *transport.Channel, email string) {
	email = model.NormalizeEmail(email)

	r.mu.Lock()
	old, existed := r.clientByEmail[email]
	r.clientByEmail[email] = ch
	r.emailByChan[ch.ID()] = email
	r.mu.Unlock()

	if existed && old.ID() != ch.ID() {
		_ = old.Close("REPLACED_BY_NEW_SESSION")
	}
}

// DetachClient idempotently removes both directions for ch.
func (r *Registry) DetachClient(ch *transport.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.emailByChan[ch.ID()]
	if !ok {
		return
	}
	delete(r.emailByChan, ch.ID())
	if cur, ok := r.clientByEmail[email]; ok && cur.ID() == ch.ID() {
		delete(r.clientByEmail, email)
	}
}

// ChannelByEmail returns the OPEN client channel for email, or nil.
func (r *Registry) ChannelByEmail(email string) *transport.Channel {
	email = model.NormalizeEmail(email)
	r.mu.RLock()
	ch, ok := r.clientByEmail[email]
	r.mu.RUnlock()
	if !ok || !ch.Open() {
		return nil
	}
	return ch
}

// EmailByChannel returns the email a channel is attached to, or "".
func (r *Registry) EmailByChannel(ch *transport.Channel) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emailByChan[ch.ID()]
}

// BindController binds ch as the controller for gardenID. A previously bound,
// different controller is closed with a replacement code first, enforcing at
// most one OPEN controller channel per garden.
func (r *Registry) BindController(gardenID string, ch *transport.Channel) {
	r.mu.Lock()
	old, existed := r.controllerByGarden[gardenID]
	r.controllerByGarden[gardenID] = ch
	r.gardenByChan[ch.ID()] = gardenID
	r.lastSeen[ch.ID()] = time.Now()
	ch.GardenID = gardenID
	r.mu.Unlock()

	if existed && old.ID() != ch.ID() {
		_ = old.Close("REPLACED_BY_NEW_CONTROLLER")
	}
}

// ControllerByGarden returns the OPEN controller channel for gardenID, or nil.
func (r *Registry) ControllerByGarden(gardenID string) *transport.Channel {
	r.mu.RLock()
	ch, ok := r.controllerByGarden[gardenID]
	r.mu.RUnlock()
	if !ok || !ch.Open() {
		return nil
	}
	return ch
}

// Heartbeat refreshes ch's last-seen timestamp for gardenID.
func (r *Registry) Heartbeat(gardenID string, ch *transport.Channel) {
	ch.Touch()
	r.mu.Lock()
	r.lastSeen[ch.ID()] = time.Now()
	r.mu.Unlock()
}

// UnbindController removes ch via reverse lookup by channel metadata.
func (r *Registry) UnbindController(ch *transport.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gardenID, ok := r.gardenByChan[ch.ID()]
	if !ok {
		return
	}
	delete(r.gardenByChan, ch.ID())
	delete(r.lastSeen, ch.ID())
	if cur, ok := r.controllerByGarden[gardenID]; ok && cur.ID() == ch.ID() {
		delete(r.controllerByGarden, gardenID)
	}
}

// StaleControllers returns every bound controller channel whose last-seen
// timestamp is older than threshold, for the Lifecycle Supervisor's optional
// eviction sweep.
func (r *Registry) StaleControllers(threshold time.Duration) []*transport.Channel {
	cutoff := time.Now().Add(-threshold)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stale []*transport.Channel
	for id, seen := range r.lastSeen {
		if seen.Before(cutoff) {
			gardenID := r.gardenByChan[id]
			if ch, ok := r.controllerByGarden[gardenID]; ok && ch.ID() == id {
				stale = append(stale, ch)
			}
		}
	}
	return stale
}
