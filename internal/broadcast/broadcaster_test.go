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

package broadcast_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/broadcast"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/store"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

func TestBroadcast(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Garden Broadcaster Suite")
}

type fakeMemberships struct {
	store.Memberships
	active []*model.Membership
}

func (f *fakeMemberships) ActiveMembersOf(context.Context, string) ([]*model.Membership, error) {
	return f.active, nil
}

type fakeUsers struct {
	store.Users
	byID map[string]*model.User
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

type fakeRegistry struct {
	channels map[string]*transport.Channel
}

func (f *fakeRegistry) ChannelByEmail(email string) *transport.Channel {
	return f.channels[email]
}

var _ = Describe("Broadcaster", func() {
	It("delivers to every active member except the excluded email", func() {
		memberships := &fakeMemberships{active: []*model.Membership{
			{UserID: "u1", GardenID: "g1", Active: true},
			{UserID: "u2", GardenID: "g1", Active: true},
		}}
		users := &fakeUsers{byID: map[string]*model.User{
			"u1": {ID: "u1", Email: "alice@example.com"},
			"u2": {ID: "u2", Email: "bob@example.com"},
		}}

		recorder := newRecordingRegistry("alice@example.com", "bob@example.com")
		b := broadcast.New(memberships, users, recorder, discardLogger())

		b.Broadcast(context.Background(), "g1", broadcast.GardenMoistureUpdate, map[string]string{"plantId": "p1"}, "alice@example.com")

		Eventually(recorder.received("bob@example.com")).Should(HaveLen(1))
		Consistently(recorder.received("alice@example.com")).Should(BeEmpty())
	})

	It("skips members with no attached channel without failing the whole fan-out", func() {
		memberships := &fakeMemberships{active: []*model.Membership{
			{UserID: "u1", GardenID: "g1", Active: true},
		}}
		users := &fakeUsers{byID: map[string]*model.User{
			"u1": {ID: "u1", Email: "offline@example.com"},
		}}
		b := broadcast.New(memberships, users, &fakeRegistry{channels: map[string]*transport.Channel{}}, discardLogger())

		Expect(func() {
			b.Broadcast(context.Background(), "g1", broadcast.GardenMoistureUpdate, nil, "")
		}).NotTo(Panic())
	})
})
