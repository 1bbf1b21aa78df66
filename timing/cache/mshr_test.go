package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/cache"
)

var _ = Describe("MSHRTable", func() {
	var table *cache.MSHRTable

	BeforeEach(func() {
		table = cache.NewMSHRTable(2, 2)
	})

	It("reports no entry for an unprobed line", func() {
		Expect(table.Probe(0x1000)).To(BeFalse())
	})

	It("creates then merges entries for the same line, preserving insertion order (P3)", func() {
		f1 := mem.New(mem.MemAccess{Address: 0x1000}, 0, 0, 0)
		f2 := mem.New(mem.MemAccess{Address: 0x1000}, 1, 0, 0)
		table.Add(0x1000, f1)
		Expect(table.Probe(0x1000)).To(BeTrue())
		Expect(table.Full(0x1000)).To(BeFalse())

		table.Add(0x1000, f2)
		Expect(table.MergeCount(0x1000)).To(Equal(2))
		Expect(table.Full(0x1000)).To(BeTrue()) // max_merge=2

		table.MarkReady(0x1000)
		Expect(table.NextAccess()).To(Equal(f1))
		Expect(table.NextAccess()).To(Equal(f2))
		Expect(table.NextAccess()).To(BeNil())
		Expect(table.Probe(0x1000)).To(BeFalse())
	})

	It("reports full once the total entry limit is reached for a new line", func() {
		table.Add(0x1000, mem.New(mem.MemAccess{Address: 0x1000}, 0, 0, 0))
		table.Add(0x2000, mem.New(mem.MemAccess{Address: 0x2000}, 0, 0, 0))
		Expect(table.Full(0x3000)).To(BeTrue()) // entries=2, both lines occupied
	})

	It("has_ready_accesses reflects only ready entries with remaining fetches", func() {
		table.Add(0x1000, mem.New(mem.MemAccess{Address: 0x1000}, 0, 0, 0))
		Expect(table.HasReadyAccesses()).To(BeFalse())
		table.MarkReady(0x1000)
		Expect(table.HasReadyAccesses()).To(BeTrue())
		table.NextAccess()
		Expect(table.HasReadyAccesses()).To(BeFalse())
	})
})
