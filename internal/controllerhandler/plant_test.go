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

package controllerhandler_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/controllerhandler"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

var _ = Describe("Plant lifecycle responses", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("persists assigned hardware and broadcasts to the rest of the garden on success", func() {
		brk, fake := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		controller := newChannel(transport.KindController)
		client := newChannel(transport.KindClient)
		otherMember := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutUser(&model.User{ID: "u2", Email: "sibling@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", InviteCode: "ROSE24", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		fake.PutMembership(&model.Membership{UserID: "u2", GardenID: "g1", Role: model.RoleMember, Active: true})
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", DisplayName: "Tomato"})

		brk.Registry.AttachClient(client.Channel, "grower@example.com")
		brk.Registry.AttachClient(otherMember.Channel, "sibling@example.com")
		brk.Pending.Assignment.Register("p1", pending.Context{Email: "grower@example.com"})

		resp, _ := transport.NewFrame("ADD_PLANT_RESPONSE", map[string]any{
			"status": "success", "plant_id": "p1", "sensor_port": 4, "assigned_valve": 5,
		})
		dispatch(ctx, controller.Channel, resp)

		Eventually(func() bool { _, ok := client.lastOfType("ADD_PLANT_SUCCESS"); return ok }).Should(BeTrue())
		Eventually(func() bool { _, ok := otherMember.lastOfType("PLANT_ADDED_TO_GARDEN"); return ok }).Should(BeTrue())
		Expect(client.received()).NotTo(ContainElement(HaveField("Type", "PLANT_ADDED_TO_GARDEN")), "the originator is excluded from its own broadcast")

		p, err := fake.Plants().Get(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.HasHardware()).To(BeTrue())
		Expect(*p.SensorPort).To(Equal(4))
		Expect(*p.ValveID).To(Equal(5))
	})

	It("ignores a replayed ADD_PLANT_RESPONSE for a plant with no pending assignment", func() {
		brk, fake := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		controller := newChannel(transport.KindController)

		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", InviteCode: "ROSE24", Active: true})
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", DisplayName: "Tomato"})

		resp, _ := transport.NewFrame("ADD_PLANT_RESPONSE", map[string]any{
			"status": "success", "plant_id": "p1", "sensor_port": 4, "assigned_valve": 5,
		})
		dispatch(ctx, controller.Channel, resp)
		Consistently(controller.received).Should(BeEmpty())

		p, err := fake.Plants().Get(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.HasHardware()).To(BeFalse())
	})

	// Scenario 4 (§8): the plant row and its event history are deleted only
	// once REMOVE_PLANT_RESPONSE confirms hardware removal.
	It("deletes the plant and its event history once removal is confirmed", func() {
		brk, fake := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		controller := newChannel(transport.KindController)
		client := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", InviteCode: "ROSE24", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", DisplayName: "Tomato"})

		brk.Registry.AttachClient(client.Channel, "grower@example.com")
		brk.Pending.Deletion.Register("p1", pending.Context{Email: "grower@example.com"})

		resp, _ := transport.NewFrame("REMOVE_PLANT_RESPONSE", map[string]any{"status": "success", "plant_id": "p1"})
		dispatch(ctx, controller.Channel, resp)

		Eventually(func() bool { _, ok := client.lastOfType("DELETE_PLANT_SUCCESS"); return ok }).Should(BeTrue())

		_, err := fake.Plants().Get(ctx, "p1")
		Expect(err).To(HaveOccurred())
		events, err := fake.IrrigationEvents().ListForPlant(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
	})
})
