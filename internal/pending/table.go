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

// Package pending implements the Pending Correlation Tables (§4.2): one
// table per operation family, mapping a correlation key (plant-id or
// session-id) to the context needed to route the controller's eventual
// asynchronous response back to the originating client.
package pending

import (
	"sync"
	"time"
)

// Context is the record stored per pending correlation. It holds only the
// originating channel's weak identifier (email, resolved through the Session
// Registry at delivery time) per the Design Notes' "channels captured by
// closures" rework — a pending record never retains a live channel.
type Context struct {
	ChannelID string
	Email     string
	Snapshot  any
	CreatedAt time.Time

	// TimeoutFrameType, when non-empty, is the `*_FAIL` frame type the
	// Lifecycle Supervisor synthesizes on eviction (§7: "an implementation
	// may elect to synthesize a `*_FAIL` on eviction").
	TimeoutFrameType string
}

type entry struct {
	ctx       Context
	key       string
	sessionID string // "" unless registered via RegisterBySession
}

// Table is one operation family's correlation map. All operations are
// serialized by a single mutex per table; tables are small and short-lived
// enough that this never becomes a bottleneck, and it keeps the tie-break
// between key and session lookups trivially consistent.
type Table struct {
	name     string
	deadline time.Duration

	mu        sync.RWMutex
	byKey     map[string]*entry
	bySession map[string]*entry
}

// NewTable constructs an empty table for one operation family with the given
// idle-eviction deadline (§4.2).
func NewTable(name string, deadline time.Duration) *Table {
	return &Table{
		name:      name,
		deadline:  deadline,
		byKey:     make(map[string]*entry),
		bySession: make(map[string]*entry),
	}
}

// Name is the family name, used for metrics and log fields.
func (t *Table) Name() string { return t.name }

// Register creates a correlation keyed only by key (plant-id for most
// families).
func (t *Table) Register(key string, ctx Context) {
	if ctx.CreatedAt.IsZero() {
		ctx.CreatedAt = time.Now()
	}
	e := &entry{ctx: ctx, key: key}
	t.mu.Lock()
	t.byKey[key] = e
	t.mu.Unlock()
}

// RegisterBySession additionally indexes the same correlation under
// sessionID, so a controller response carrying only the session token can
// still be routed (§4.2's registerBySession).
func (t *Table) RegisterBySession(sessionID, key string, ctx Context) {
	if ctx.CreatedAt.IsZero() {
		ctx.CreatedAt = time.Now()
	}
	e := &entry{ctx: ctx, key: key, sessionID: sessionID}
	t.mu.Lock()
	t.byKey[key] = e
	t.bySession[sessionID] = e
	t.mu.Unlock()
}

// Peek returns the correlation for key without removing it, or ok=false.
func (t *Table) Peek(key string) (Context, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byKey[key]
	if !ok {
		return Context{}, false
	}
	return e.ctx, true
}

// Complete atomically reads and removes the correlation for key, evicting its
// session index too if one exists.
func (t *Table) Complete(key string) (Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byKey[key]
	if !ok {
		return Context{}, false
	}
	delete(t.byKey, key)
	if e.sessionID != "" {
		delete(t.bySession, e.sessionID)
	}
	return e.ctx, true
}

// CompleteBySession atomically reads and removes the correlation registered
// under sessionID. Per §4.2's tie-break rule, callers that have both a
// session-id and a plant-id on an incoming response should try this first:
// "if both a session-id and a plant-id correlation exist for the same
// controller response, the session-id match wins."
func (t *Table) CompleteBySession(sessionID string) (Context, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.bySession[sessionID]
	if !ok {
		return Context{}, false
	}
	delete(t.bySession, sessionID)
	delete(t.byKey, e.key)
	return e.ctx, true
}

// PeekBySession returns the correlation registered under sessionID without
// removing it, or ok=false. Mirrors CompleteBySession for callers that only
// need to read the correlation (e.g. progress frames), preserving the same
// session-id-wins tie-break.
func (t *Table) PeekBySession(sessionID string) (Context, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.bySession[sessionID]
	if !ok {
		return Context{}, false
	}
	return e.ctx, true
}

// Refresh resets CreatedAt to now for the correlation at key, keeping it
// alive past the family's idle ceiling. Used by handlers for progress
// frames that refresh liveness without completing the correlation (§4.2).
func (t *Table) Refresh(key string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byKey[key]
	if !ok {
		return
	}
	e.ctx.CreatedAt = now
}

// RefreshBySession is Refresh addressed by sessionID instead of key.
func (t *Table) RefreshBySession(sessionID string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.bySession[sessionID]
	if !ok {
		return
	}
	e.ctx.CreatedAt = now
}

// Sweep removes every entry whose CreatedAt is older than the family's
// deadline and returns their contexts, for the Lifecycle Supervisor to
// optionally notify before discarding.
func (t *Table) Sweep(now time.Time) []Context {
	t.mu.Lock()
	defer t.mu.Unlock()

	var expired []Context
	for k, e := range t.byKey {
		if now.Sub(e.ctx.CreatedAt) > t.deadline {
			expired = append(expired, e.ctx)
			delete(t.byKey, k)
			if e.sessionID != "" {
				delete(t.bySession, e.sessionID)
			}
		}
	}
	return expired
}

// Len reports the number of live correlations, for metrics.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byKey)
}
