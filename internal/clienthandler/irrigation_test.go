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

package clienthandler_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/clienthandler"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

var _ = Describe("Irrigation commands", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("rejects IRRIGATE_PLANT with VALVE_BLOCKED when the plant's valve is flagged blocked", func() {
		brk, fake := newBroker()
		dispatch := clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)
		controller := newChannel(transport.KindController)

		sensorPort, valveID := 1, 1
		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID, ValveBlocked: true})
		brk.Registry.BindController("g1", controller.Channel)
		loginAs(ctx, dispatch, ch, "grower@example.com")

		f, _ := transport.NewFrame("IRRIGATE_PLANT", map[string]string{"plantId": "p1"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("IRRIGATE_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("IRRIGATE_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("VALVE_BLOCKED")))
		Expect(controller.received()).To(BeEmpty(), "a blocked valve must never reach the controller")
	})

	// §4.5.3: a successful IRRIGATE_PLANT registers a pending correlation
	// under a fresh session id; the table indexes it by plant id as well, so
	// a later response carrying either id resolves it.
	It("forwards IRRIGATE_PLANT to the controller with a fresh session id", func() {
		brk, fake := newBroker()
		dispatch := clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)
		controller := newChannel(transport.KindController)

		sensorPort, valveID := 1, 1
		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID})
		brk.Registry.BindController("g1", controller.Channel)
		loginAs(ctx, dispatch, ch, "grower@example.com")

		f, _ := transport.NewFrame("IRRIGATE_PLANT", map[string]string{"plantId": "p1"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := controller.lastOfType("IRRIGATE_PLANT"); return ok }).Should(BeTrue())
		fr, _ := controller.lastOfType("IRRIGATE_PLANT")
		var payload struct {
			PlantID   string `json:"plant_id"`
			SessionID string `json:"session_id"`
		}
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.PlantID).To(Equal("p1"))
		Expect(payload.SessionID).NotTo(BeEmpty())

		_, ok := brk.Pending.Irrigation.Peek("p1")
		Expect(ok).To(BeTrue(), "the pending table must resolve the session-registered correlation by plant id too")
	})

	It("rejects irrigation commands for a plant with no assigned hardware", func() {
		brk, fake := newBroker()
		dispatch := clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1"})
		loginAs(ctx, dispatch, ch, "grower@example.com")

		f, _ := transport.NewFrame("IRRIGATE_PLANT", map[string]string{"plantId": "p1"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("IRRIGATE_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("IRRIGATE_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("HARDWARE_NOT_ASSIGNED")))
	})
})
