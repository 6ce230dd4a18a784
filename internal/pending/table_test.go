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

package pending_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/smartgarden/gardenbroker/internal/pending"
)

var _ = Describe("Table", func() {
	var table *pending.Table

	BeforeEach(func() {
		table = pending.NewTable("irrigation", 120*time.Second)
	})

	It("completes a correlation registered by key", func() {
		table.Register("plant-1", pending.Context{Email: "u@example.com"})

		ctx, ok := table.Complete("plant-1")
		Expect(ok).To(BeTrue())
		Expect(ctx.Email).To(Equal("u@example.com"))

		_, ok = table.Complete("plant-1")
		Expect(ok).To(BeFalse(), "Complete must remove the entry")
	})

	It("resolves a session-registered correlation by session id, and clears the plant-id index on completion", func() {
		table.RegisterBySession("session-1", "plant-1", pending.Context{Email: "u@example.com"})

		ctx, ok := table.CompleteBySession("session-1")
		Expect(ok).To(BeTrue())
		Expect(ctx.Email).To(Equal("u@example.com"))

		_, ok = table.Peek("plant-1")
		Expect(ok).To(BeFalse(), "completing by session must also evict the plant-id index")
	})

	It("lets Peek observe a correlation without consuming it", func() {
		table.Register("plant-1", pending.Context{Email: "u@example.com"})

		_, ok := table.Peek("plant-1")
		Expect(ok).To(BeTrue())

		ctx, ok := table.Complete("plant-1")
		Expect(ok).To(BeTrue())
		Expect(ctx.Email).To(Equal("u@example.com"))
	})

	It("sweeps entries older than the family deadline and reports their contexts", func() {
		table = pending.NewTable("irrigation", 10*time.Millisecond)
		table.Register("plant-1", pending.Context{Email: "u@example.com", CreatedAt: time.Now().Add(-time.Hour)})
		table.Register("plant-2", pending.Context{Email: "fresh@example.com"})

		expired := table.Sweep(time.Now())
		Expect(expired).To(HaveLen(1))
		Expect(expired[0].Email).To(Equal("u@example.com"))
		Expect(table.Len()).To(Equal(1))
	})

	It("reports Len as the number of live correlations", func() {
		Expect(table.Len()).To(Equal(0))
		table.Register("plant-1", pending.Context{})
		table.Register("plant-2", pending.Context{})
		Expect(table.Len()).To(Equal(2))
	})

	It("lets PeekBySession observe a session-registered correlation without consuming it", func() {
		table.RegisterBySession("session-1", "plant-1", pending.Context{Email: "u@example.com"})

		ctx, ok := table.PeekBySession("session-1")
		Expect(ok).To(BeTrue())
		Expect(ctx.Email).To(Equal("u@example.com"))

		_, ok = table.CompleteBySession("session-1")
		Expect(ok).To(BeTrue(), "PeekBySession must not consume the entry")
	})

	It("keeps a correlation alive past the deadline once Refresh resets its CreatedAt", func() {
		table = pending.NewTable("irrigation", 50*time.Millisecond)
		table.Register("plant-1", pending.Context{Email: "u@example.com", CreatedAt: time.Now().Add(-time.Hour)})

		table.Refresh("plant-1", time.Now())

		expired := table.Sweep(time.Now())
		Expect(expired).To(BeEmpty(), "a refreshed entry must survive a sweep against its old age")
		_, ok := table.Peek("plant-1")
		Expect(ok).To(BeTrue())
	})

	It("keeps a session-registered correlation alive via RefreshBySession", func() {
		table = pending.NewTable("irrigation", 50*time.Millisecond)
		table.RegisterBySession("session-1", "plant-1", pending.Context{Email: "u@example.com", CreatedAt: time.Now().Add(-time.Hour)})

		table.RefreshBySession("session-1", time.Now())

		expired := table.Sweep(time.Now())
		Expect(expired).To(BeEmpty())
	})
})

var _ = Describe("Families", func() {
	It("builds all five operation-family tables under their family names", func() {
		f := pending.NewFamilies()
		Expect(f.Irrigation.Name()).To(Equal("irrigation"))
		Expect(f.Moisture.Name()).To(Equal("moisture"))
		Expect(f.Assignment.Name()).To(Equal("assignment"))
		Expect(f.Update.Name()).To(Equal("update"))
		Expect(f.Deletion.Name()).To(Equal("deletion"))
		Expect(f.All()).To(HaveLen(5))
	})
})
