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

// Package broker wires the Session Registry, Pending Correlation Tables,
// Garden Broadcaster, Irrigation State Store, and persistence behind one
// façade. Per the Design Notes ("Cyclical controller-handler/client-handler
// references"), both the Client and Controller Protocol Handlers depend on
// *Broker, never on each other directly.
package broker

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/smartgarden/gardenbroker/internal/broadcast"
	"github.com/smartgarden/gardenbroker/internal/config"
	"github.com/smartgarden/gardenbroker/internal/irrigation"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/registry"
	"github.com/smartgarden/gardenbroker/internal/store"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// Broker is the shared façade injected into both protocol handlers.
type Broker struct {
	Log    logr.Logger
	Config *config.Config

	Registry    *registry.Registry
	Pending     *pending.Families
	Broadcaster *broadcast.Broadcaster
	States      *irrigation.StateStore
	Store       store.Store
}

// New wires the dependency-ordered components: Registry, then Pending
// Tables, then Broadcaster/State Store, as §2 prescribes.
func New(log logr.Logger, cfg *config.Config, st store.Store, cache *irrigation.StateStore) *Broker {
	reg := registry.New()
	return &Broker{
		Log:         log,
		Config:      cfg,
		Registry:    reg,
		Pending:     pending.NewFamilies(),
		Broadcaster: broadcast.New(st.Memberships(), st.Users(), reg, log),
		States:      cache,
		Store:       st,
	}
}

// NotifyEmail resolves email's currently attached client channel via the
// Registry and sends a typed frame, best-effort. If the client is not
// attached (it disconnected while a correlation was pending, §5
// Cancellation), this is a silent no-op — the terminal event was still
// persisted and/or broadcast by the caller.
func (b *Broker) NotifyEmail(ctx context.Context, email, msgType string, payload any) {
	if email == "" {
		return
	}
	ch := b.Registry.ChannelByEmail(email)
	if ch == nil {
		return
	}
	if err := ch.SendTyped(ctx, msgType, payload); err != nil {
		b.Log.V(1).Info("notify: send failed", "email", email, "type", msgType, "error", err.Error())
	}
}

// Fail sends a `*_FAIL` frame with the given reason/code to email.
func (b *Broker) Fail(ctx context.Context, email, msgType, reason string, code transport.ErrCode) {
	b.NotifyEmail(ctx, email, msgType, transport.FailPayload{Reason: reason, Code: code})
}
