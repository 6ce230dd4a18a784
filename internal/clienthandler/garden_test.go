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

func loginAs(ctx context.Context, dispatch transport.FrameHandler, ch *recordingChannel, email string) {
	f, err := transport.NewFrame("LOGIN", map[string]string{"email": email})
	Expect(err).NotTo(HaveOccurred())
	dispatch(ctx, ch.Channel, f)
}

var _ = Describe("Garden commands", func() {
	var (
		ctx      context.Context
		dispatch transport.FrameHandler
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("rejects CREATE_GARDEN from an unattached channel with UNAUTHORIZED", func() {
		brk, _ := newBroker()
		dispatch = clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		f, _ := transport.NewFrame("CREATE_GARDEN", map[string]any{"name": "Rose Garden", "country": "NL", "city": "Utrecht"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("CREATE_GARDEN_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("CREATE_GARDEN_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.CodeUnauthorized))
	})

	It("rejects a second CREATE_GARDEN from a user who already administers an active garden", func() {
		brk, fake := newBroker()
		dispatch = clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "admin@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Existing", AdminUserID: "u1", InviteCode: "ABCD12", Active: true})

		loginAs(ctx, dispatch, ch, "admin@example.com")

		f, _ := transport.NewFrame("CREATE_GARDEN", map[string]any{"name": "Second Garden", "country": "NL", "city": "Utrecht"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("CREATE_GARDEN_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("CREATE_GARDEN_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("USER_ALREADY_ADMIN")))
	})

	// Scenario 5 (§8): JOIN_GARDEN on a garden previously left by the same
	// user reactivates the prior membership row rather than inserting a
	// duplicate.
	It("reactivates a previously-left membership on rejoin instead of duplicating it", func() {
		brk, fake := newBroker()
		dispatch = clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u2", Email: "member@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", AdminUserID: "u1", InviteCode: "ROSE24", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u2", GardenID: "g1", Role: model.RoleMember, Active: false})

		loginAs(ctx, dispatch, ch, "member@example.com")

		f, _ := transport.NewFrame("JOIN_GARDEN", map[string]string{"inviteCode": "rose24"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("JOIN_GARDEN_SUCCESS"); return ok }).Should(BeTrue())

		m, err := fake.Memberships().Get(ctx, "u2", "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Active).To(BeTrue())
		Expect(m.Role).To(Equal(model.RoleMember))
	})

	It("refuses to let the admin leave their own garden", func() {
		brk, fake := newBroker()
		dispatch = clienthandler.Dispatch(brk)
		ch := newChannel(transport.KindClient)

		fake.PutUser(&model.User{ID: "u1", Email: "admin@example.com"})
		fake.PutGarden(&model.Garden{ID: "g1", Name: "Rose Garden", AdminUserID: "u1", InviteCode: "ROSE24", Active: true})
		fake.PutMembership(&model.Membership{UserID: "u1", GardenID: "g1", Role: model.RoleAdmin, Active: true})

		loginAs(ctx, dispatch, ch, "admin@example.com")

		f, _ := transport.NewFrame("LEAVE_GARDEN", map[string]string{"gardenId": "g1"})
		dispatch(ctx, ch.Channel, f)

		Eventually(func() bool { _, ok := ch.lastOfType("LEAVE_GARDEN_FAIL"); return ok }).Should(BeTrue())
		fr, _ := ch.lastOfType("LEAVE_GARDEN_FAIL")
		var payload transport.FailPayload
		Expect(fr.Decode(&payload)).To(Succeed())
		Expect(payload.Code).To(Equal(transport.ErrCode("ADMIN_CANNOT_LEAVE")))
	})
})
