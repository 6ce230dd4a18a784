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

var _ = Describe("Plant lifecycle commands", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("fails ADD_PLANT with CONTROLLER_DISCONNECTED when no controller is bound for the garden", func() {
		brk, fake := newBroker()
		dispatch := clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		loginAs(ctx, dispatch, ch, "grower@example.com")

		f, _ := transport.NewFrame("ADD_PLANT", map[string]any{
			"gardenId": "g1", "displayName": "Tomato", "idealMoisture": 60, "waterLimitL": 1.2, "dripperType": "drip",
		})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("ADD_PLANT_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("ADD_PLANT_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("CONTROLLER_DISCONNECTED")))
	})

	// §4.5.2: ADD_PLANT persists the record, then forwards to the
	// controller and registers a pending hardware-assignment correlation;
	// the client only sees ADD_PLANT_SUCCESS once the controller responds
	// (exercised in the controller handler suite), so here we assert the
	// persist-and-forward half of the contract.
	It("persists the plant and forwards ADD_PLANT to the bound controller", func() {
		brk, fake := newBroker()
		dispatch := clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)
		controller := newChannel(transport.KindController)

		fake.PutUser(&model.User{ID: "u1", Email: "grower@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})
		brk.Registry.BindController("g1", controller.Channel)
		loginAs(ctx, dispatch, ch, "grower@example.com")

		f, _ := transport.NewFrame("ADD_PLANT", map[string]any{
			"gardenId": "g1", "displayName": "Tomato", "idealMoisture": 60, "waterLimitL": 1.2, "dripperType": "drip",
		})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := controller.lastOfType("ADD_PLANT"); return ok }).Should(BeTrue())
		Expect(ch.received()).NotTo(ContainElement(HaveField("Type", HavePrefix("ADD_PLANT"))), "no terminal response until the controller answers")

		plants, err := fake.Plants().ListForGarden(ctx, "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(plants).To(HaveLen(1))
		Expect(plants[0].DisplayName).To(Equal("Tomato"))
	})

	It("rejects DELETE_PLANT from a non-member of the plant's garden", func() {
		brk, fake := newBroker()
		dispatch := clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "outsider", Email: "outsider@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})
		sensorPort, valveID := 1, 1
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", SensorPort: &sensorPort, ValveID: &valveID})
		loginAs(ctx, dispatch, ch, "outsider@example.com")

		f, _ := transport.NewFrame("DELETE_PLANT", map[string]string{"plantId": "p1"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("DELETE_PLANT_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("DELETE_PLANT_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("NOT_MEMBER")))
	})
})
