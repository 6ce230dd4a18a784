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

package registry_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/registry"
	"github.com/smartgarden/gardenbroker/internal/transport"
)

var _ = Describe("Registry", func() {
	var reg *registry.Registry

	BeforeEach(func() {
		reg = registry.New()
	})

	Describe("client attachment", func() {
		It("resolves a channel attached under a normalized email", func() {
			ch, cleanup := newChannel(transport.KindClient)
			defer cleanup()

			reg.AttachClient(ch, "User@Example.com")

			Expect(reg.ChannelByEmail("user@example.com")).To(Equal(ch))
			Expect(reg.EmailByChannel(ch)).To(Equal("user@example.com"))
		})

		It("closes the previous channel when the same email re-attaches elsewhere", func() {
			first, cleanupFirst := newChannel(transport.KindClient)
			defer cleanupFirst()
			second, cleanupSecond := newChannel(transport.KindClient)
			defer cleanupSecond()

			reg.AttachClient(first, "user@example.com")
			reg.AttachClient(second, "user@example.com")

			Eventually(first.Open).Should(BeFalse())
			Expect(reg.ChannelByEmail("user@example.com")).To(Equal(second))
		})

		It("detaches idempotently and leaves ChannelByEmail returning nil", func() {
			ch, cleanup := newChannel(transport.KindClient)
			defer cleanup()

			reg.AttachClient(ch, "user@example.com")
			reg.DetachClient(ch)
			reg.DetachClient(ch)

			Expect(reg.ChannelByEmail("user@example.com")).To(BeNil())
		})
	})

	Describe("controller binding", func() {
		It("binds at most one open controller per garden, replacing an older one", func() {
			first, cleanupFirst := newChannel(transport.KindController)
			defer cleanupFirst()
			second, cleanupSecond := newChannel(transport.KindController)
			defer cleanupSecond()

			reg.BindController("garden-1", first)
			reg.BindController("garden-1", second)

			Eventually(first.Open).Should(BeFalse())
			Expect(reg.ControllerByGarden("garden-1")).To(Equal(second))
		})

		It("unbinds via reverse lookup from the channel's own metadata", func() {
			ch, cleanup := newChannel(transport.KindController)
			defer cleanup()

			reg.BindController("garden-1", ch)
			reg.UnbindController(ch)

			Expect(reg.ControllerByGarden("garden-1")).To(BeNil())
		})

		It("reports a controller stale once its heartbeat exceeds the threshold", func() {
			ch, cleanup := newChannel(transport.KindController)
			defer cleanup()

			reg.BindController("garden-1", ch)
			Expect(reg.StaleControllers(time.Millisecond)).To(BeEmpty())

			time.Sleep(5 * time.Millisecond)
			Expect(reg.StaleControllers(time.Millisecond)).To(ConsistOf(ch))

			reg.Heartbeat("garden-1", ch)
			Expect(reg.StaleControllers(time.Millisecond)).To(BeEmpty())
		})
	})
})
