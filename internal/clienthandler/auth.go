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

// Package clienthandler implements the Client Protocol Handler (§4.5): it
// dispatches typed client requests to command handlers, each of which
// validates, persists pre-conditions, and (for controller-bound commands)
// registers a pending correlation before forwarding to the controller.
package clienthandler

import (
	"context"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/store"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

// requireAttached resolves the channel's attached user. All handlers require
// the channel to be attached; absent attachment returns UNAUTHORIZED (§4.5).
func requireAttached(ctx context.Context, b *broker.Broker, ch *transport.Channel, failType string) (*model.User, bool) {
	email := b.Registry.EmailByChannel(ch)
	if email == "" {
		_ = ch.SendTyped(ctx, failType, transport.FailPayload{Reason: "channel is not attached to a user", Code: transport.CodeUnauthorized})
		return nil, false
	}
	u, err := b.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		_ = ch.SendTyped(ctx, failType, transport.FailPayload{Reason: "attached user not found", Code: transport.CodeUnauthorized})
		return nil, false
	}
	return u, true
}

// requireActiveMembership verifies the user has an active membership in
// gardenID, the check every garden-scoped operation in §4.5 performs.
func requireActiveMembership(ctx context.Context, b *broker.Broker, ch *transport.Channel, userID, gardenID, failType string) bool {
	m, err := b.Store.Memberships().Get(ctx, userID, gardenID)
	if err != nil || !m.Active {
		_ = ch.SendTyped(ctx, failType, transport.FailPayload{Reason: "not an active member of this garden", Code: "NOT_MEMBER"})
		return false
	}
	return true
}

// notFoundFail centralizes the not-found vs. storage-error distinction §7
// draws between error kinds.
func notFoundFail(ctx context.Context, ch *transport.Channel, failType, reason string, err error) {
	code := transport.ErrCode("NOT_FOUND")
	if err != nil && err != store.ErrNotFound {
		code = transport.CodeDatabase
	}
	_ = ch.SendTyped(ctx, failType, transport.FailPayload{Reason: reason, Code: code})
}
