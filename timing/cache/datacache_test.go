package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/cache"
)

var _ = Describe("DataCache", func() {
	var (
		cfg  *config.CacheConfig
		port *fakePort
		dc   *cache.DataCache
	)

	newFetch := func(addr uint64, isWrite bool) *mem.MemFetch {
		kind := mem.GlobalRead
		if isWrite {
			kind = mem.GlobalWrite
		}
		return mem.New(mem.MemAccess{
			Address:     addr,
			RequestSize: 32,
			Kind:        kind,
			IsWrite:     isWrite,
		}, 0, 0, 0)
	}

	BeforeEach(func() {
		var err error
		cfg, err = config.Parse("N:4:128:2,L:B:m:W:L,A:8:4,4")
		Expect(err).NotTo(HaveOccurred())
		port = &fakePort{}
		dc = cache.NewDataCache(cfg, port, mem.L1Writeback)
	})

	It("misses then hits on the same address (B1-adjacent single-fetch path)", func() {
		f1 := newFetch(0x1000, false)
		out1 := dc.Access(f1, 1)
		Expect(out1.Status).To(Equal(cache.Miss))
		dc.Cycle() // the miss queue drains to the port in Cycle
		Expect(port.pushed).To(HaveLen(1))

		dc.Fill(0, f1, 2) // fill the first installed index

		f2 := newFetch(0x1000, false)
		out2 := dc.Access(f2, 3)
		Expect(out2.Status).To(Equal(cache.Hit))
	})

	It("returns RESERVATION_FAIL and leaves the tag array unchanged when the miss queue is full (B2)", func() {
		small, err := config.Parse("N:4:128:2,L:B:m:W:L,A:8:4,1")
		Expect(err).NotTo(HaveOccurred())
		dcSmall := cache.NewDataCache(small, port, mem.L1Writeback)

		f1 := newFetch(0x1000, false)
		out1 := dcSmall.Access(f1, 1)
		Expect(out1.Status).To(Equal(cache.Miss))

		f2 := newFetch(0x2000, false)
		out2 := dcSmall.Access(f2, 1)
		Expect(out2.Status).To(Equal(cache.ReservationFail))
		Expect(out2.FailReason).To(Equal(cache.MissQueueFull))

		_, probeStatus := dcSmall.Tags.Probe(0x2000, "x", false, 0)
		Expect(probeStatus).To(Equal(cache.Miss))
	})

	It("never modifies the tag array on a NO_WRITE_ALLOCATE write miss (B3)", func() {
		noAlloc, err := config.Parse("N:4:128:2,L:T:m:N:L,A:8:4,4")
		Expect(err).NotTo(HaveOccurred())
		dcNoAlloc := cache.NewDataCache(noAlloc, port, mem.L1Writeback)

		f := newFetch(0x1000, true)
		out := dcNoAlloc.Access(f, 1)
		Expect(out.Status).To(Equal(cache.Miss))

		_, probeStatus := dcNoAlloc.Tags.Probe(0x1000, "x", false, 0)
		Expect(probeStatus).To(Equal(cache.Miss))
	})

	It("marks a block MODIFIED on a write hit under WRITE_BACK and increments dirty once", func() {
		f1 := newFetch(0x1000, false)
		dc.Access(f1, 1)
		dc.Fill(0, f1, 2)

		w := newFetch(0x1000, true)
		w.Access.ByteMask.SetRange(0, 4)
		out := dc.Access(w, 3)
		Expect(out.Status).To(Equal(cache.Hit))
		Expect(dc.Tags.NumDirty()).To(Equal(1))
	})
})
