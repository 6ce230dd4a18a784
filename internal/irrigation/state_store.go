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

// Package irrigation implements the Irrigation State Store (§4.4): the
// persistent per-plant record used to rehydrate the client's active-watering
// overlay after reconnect.
package irrigation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/store"
)

// cacheTTL bounds how long a Redis mirror entry survives without a refresh;
// it is deliberately generous relative to any irrigation session so a cache
// miss just falls through to Postgres, never serving stale data past a
// plant's lifetime.
const cacheTTL = 24 * time.Hour

// StateStore wraps the durable store.IrrigationStates with an optional Redis
// read-through mirror for low-latency UI rehydration on reconnect storms.
// Postgres remains the single source of truth; the cache is best-effort and
// never the reason a write fails.
type StateStore struct {
	durable store.IrrigationStates
	cache   *redis.Client // nil disables the mirror
	log     logr.Logger
}

// New constructs a StateStore. Pass a nil cache to run durable-only.
func New(durable store.IrrigationStates, cache *redis.Client, log logr.Logger) *StateStore {
	return &StateStore{durable: durable, cache: cache, log: log}
}

// Set unconditionally writes state for plantID, discipline enforced by
// callers per §4.4: only the Controller Handler writes smart/manual
// starts and clears; client-initiated stop/close additionally clear
// best-effort before forwarding the command.
func (s *StateStore) Set(ctx context.Context, plantID string, st model.IrrigationState) error {
	if err := s.durable.Set(ctx, plantID, st); err != nil {
		return err
	}
	s.mirror(ctx, plantID, st)
	return nil
}

// Clear is shorthand for Set with the canonical idle state.
func (s *StateStore) Clear(ctx context.Context, plantID string) error {
	return s.Set(ctx, plantID, model.NoneState())
}

// Get returns the plant's irrigation state, preferring the cache mirror when
// present and falling back to Postgres on a miss or cache error.
func (s *StateStore) Get(ctx context.Context, plantID string) (model.IrrigationState, error) {
	if s.cache != nil {
		if st, ok := s.getCached(ctx, plantID); ok {
			return st, nil
		}
	}
	st, err := s.durable.Get(ctx, plantID)
	if err != nil {
		return model.IrrigationState{}, err
	}
	s.mirror(ctx, plantID, st)
	return st, nil
}

func (s *StateStore) getCached(ctx context.Context, plantID string) (model.IrrigationState, bool) {
	raw, err := s.cache.Get(ctx, cacheKey(plantID)).Bytes()
	if err != nil {
		return model.IrrigationState{}, false
	}
	var st model.IrrigationState
	if err := json.Unmarshal(raw, &st); err != nil {
		return model.IrrigationState{}, false
	}
	return st, true
}

func (s *StateStore) mirror(ctx context.Context, plantID string, st model.IrrigationState) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(plantID), raw, cacheTTL).Err(); err != nil {
		s.log.V(1).Info("irrigation state cache mirror failed", "plant", plantID, "error", err.Error())
	}
}

func cacheKey(plantID string) string { return "irrstate:" + plantID }
