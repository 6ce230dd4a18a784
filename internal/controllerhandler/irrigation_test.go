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
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/controllerhandler"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/pending"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

var _ = Describe("Irrigation lifecycle", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// Scenario 1 (§8): a positive IRRIGATION_DECISION notifies the
	// originator, persists smart state, and broadcasts the garden-wide
	// start; the terminal IRRIGATE_PLANT_RESPONSE then appends an event,
	// notifies success, and clears state.
	It("drives the smart-irrigation happy path end to end", func() {
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
		sensorPort, valveID := 1, 1
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID})

		brk.Registry.AttachClient(client.Channel, "grower@example.com")
		brk.Registry.AttachClient(otherMember.Channel, "sibling@example.com")
		brk.Pending.Irrigation.RegisterBySession("sess-1", "p1", pending.Context{Email: "grower@example.com"})

		decision, _ := transport.NewFrame("IRRIGATION_DECISION", map[string]any{
			"plant_id": "p1", "session_id": "sess-1", "will_irrigate": true, "current": 20.0, "target": 60.0, "gap": 40.0,
		})
		dispatch(ctx, controller.Channel, decision)

		Eventually(func() bool { _, ok := client.lastOfType("IRRIGATION_STARTED"); return ok }).Should(BeTrue())
		Eventually(func() bool { _, ok := otherMember.lastOfType("GARDEN_IRRIGATION_STARTED"); return ok }).Should(BeTrue())

		st, err := brk.States.Get(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Mode).To(Equal(model.ModeSmart))
		Expect(st.SessionID).To(Equal("sess-1"))

		response, _ := transport.NewFrame("IRRIGATE_PLANT_RESPONSE", map[string]any{
			"status": "success", "plant_id": "p1", "session_id": "sess-1",
			"moisture": 20.0, "final_moisture": 62.0, "water_added_liters": 1.1,
		})
		dispatch(ctx, controller.Channel, response)

		Eventually(func() bool { _, ok := client.lastOfType("IRRIGATE_SUCCESS"); return ok }).Should(BeTrue())

		cleared, err := brk.States.Get(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(cleared.IsNone()).To(BeTrue())

		events, err := fake.IrrigationEvents().ListForPlant(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Status).To(Equal(model.EventDone))
	})

	// Scenario 2 (§8): an error response classified as valve-blocked sets
	// the plant's flag, notifies VALVE_BLOCKED, and broadcasts the
	// block/stop pair instead of a generic hardware failure.
	It("classifies a water_limit_reached error as a valve block and broadcasts the stop pair", func() {
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
		sensorPort, valveID := 1, 1
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID})

		brk.Registry.AttachClient(client.Channel, "grower@example.com")
		brk.Registry.AttachClient(otherMember.Channel, "sibling@example.com")
		brk.Pending.Irrigation.RegisterBySession("sess-2", "p1", pending.Context{Email: "grower@example.com"})

		response, _ := transport.NewFrame("IRRIGATE_PLANT_RESPONSE", map[string]any{
			"status": "error", "plant_id": "p1", "session_id": "sess-2", "error_message": "water_limit_reached",
		})
		dispatch(ctx, controller.Channel, response)

		Eventually(func() bool { _, ok := client.lastOfType("VALVE_BLOCKED"); return ok }).Should(BeTrue())
		Eventually(func() bool { _, ok := otherMember.lastOfType("GARDEN_VALVE_BLOCKED"); return ok }).Should(BeTrue())
		Eventually(func() bool { _, ok := otherMember.lastOfType("GARDEN_IRRIGATION_STOPPED"); return ok }).Should(BeTrue())

		p, err := fake.Plants().Get(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.ValveBlocked).To(BeTrue())

		events, err := fake.IrrigationEvents().ListForPlant(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].Status).To(Equal(model.EventError))
	})

	// §8 idempotence law: a second STOP_IRRIGATION_RESPONSE for the same
	// plant must not persist a spurious extra `stopped` row once the
	// correlation is gone and the state is already none.
	It("persists at most one stopped event across a double STOP_IRRIGATION_RESPONSE", func() {
		brk, fake := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		controller := newChannel(transport.KindController)
		client := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", InviteCode: "ROSE24", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		sensorPort, valveID := 1, 1
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID})

		brk.Registry.AttachClient(client.Channel, "grower@example.com")
		brk.Pending.Irrigation.Register("p1", pending.Context{Email: "grower@example.com"})
		Expect(brk.States.Set(ctx, "p1", model.IrrigationState{Mode: model.ModeSmart, SessionID: "sess-3"})).To(Succeed())

		stop, _ := transport.NewFrame("STOP_IRRIGATION_RESPONSE", map[string]any{"plant_id": "p1"})
		dispatch(ctx, controller.Channel, stop)
		Eventually(func() bool { _, ok := client.lastOfType("STOP_IRRIGATION_SUCCESS"); return ok }).Should(BeTrue())

		dispatch(ctx, controller.Channel, stop)

		events, err := fake.IrrigationEvents().ListForPlant(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1), "a replayed STOP_IRRIGATION_RESPONSE must not persist a second stopped row")
		Expect(events[0].Status).To(Equal(model.EventStopped))
	})

	// §4.2: "progress messages refresh the liveness" — a long-running smart
	// irrigation must still be resolvable by the terminal response even
	// after its original registration would have aged past the deadline,
	// as long as progress frames kept touching it.
	It("keeps a long-running correlation resolvable after a progress frame refreshes it", func() {
		brk, fake := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		controller := newChannel(transport.KindController)
		client := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", InviteCode: "ROSE24", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		sensorPort, valveID := 1, 1
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID})

		brk.Registry.AttachClient(client.Channel, "grower@example.com")
		brk.Pending.Irrigation.RegisterBySession("sess-4", "p1", pending.Context{
			Email: "grower@example.com", CreatedAt: time.Now().Add(-time.Hour),
		})

		progress, _ := transport.NewFrame("IRRIGATION_PROGRESS", map[string]any{
			"plant_id": "p1", "session_id": "sess-4", "stage": "pulse", "pulse": 1, "current": 30.0, "target": 60.0,
		})
		dispatch(ctx, controller.Channel, progress)
		Eventually(func() bool { _, ok := client.lastOfType("IRRIGATION_PROGRESS"); return ok }).Should(BeTrue())

		expired := brk.Pending.Irrigation.Sweep(time.Now())
		Expect(expired).To(BeEmpty(), "the progress frame must have refreshed the correlation past its original age")

		response, _ := transport.NewFrame("IRRIGATE_PLANT_RESPONSE", map[string]any{
			"status": "success", "plant_id": "p1", "session_id": "sess-4",
			"moisture": 30.0, "final_moisture": 61.0, "water_added_liters": 0.9,
		})
		dispatch(ctx, controller.Channel, response)

		Eventually(func() bool { _, ok := client.lastOfType("IRRIGATE_SUCCESS"); return ok }).Should(BeTrue())

		events, err := fake.IrrigationEvents().ListForPlant(ctx, "p1")
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
	})
})
