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
	"github.com/smartgarden/gardenbroker/internal/transport"
)

var _ = Describe("Handshake", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// §8 boundary behavior: GARDEN_SYNC must omit plants the controller has
	// never finished assigning hardware to.
	It("binds the controller and syncs only hardware-assigned plants", func() {
		brk, fake := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		ch := newChannel(transport.KindController)

		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", InviteCode: "ROSE24", Country: "NL", City: "Utrecht", Active: true})
		sensorPort, valveID := 2, 3
		fake.PutPlant(&model.Plant{ID: "p1", GardenID: "g1", DisplayName: "Tomato", SensorPort: &sensorPort, ValveID: &valveID})
		fake.PutPlant(&model.Plant{ID: "p2", GardenID: "g1", DisplayName: "Basil"})

		f, _ := transport.NewFrame("PI_CONNECT", map[string]string{"family_code": "rose24"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("GARDEN_SYNC"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("GARDEN_SYNC")
		var payload struct {
			GardenID string           `json:"garden_id"`
			Plants   []map[string]any `json:"plants"`
		}
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.GardenID).To(Equal("g1"))
		Expect(payload.Plants).To(HaveLen(1))
		Expect(payload.Plants[0]["plant_id"]).To(Equal("p1"))

		Expect(brk.Registry.ControllerByGarden("g1")).To(Equal(ch.Channel))
	})

	It("fails PI_CONNECT when no garden matches the family code", func() {
		brk, _ := newBroker()
		dispatch := controllerhandler.Dispatch(brk)
		ch := newChannel(transport.KindController)

		f, _ := transport.NewFrame("PI_CONNECT", map[string]string{"family_code": "NOPE99"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("PI_CONNECT_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("PI_CONNECT_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("NOT_FOUND")))
	})
})
