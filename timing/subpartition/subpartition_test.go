package subpartition_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/cache"
	"github.com/sarchlab/m2gpusim/timing/subpartition"
)

type nullPort struct{}

func (nullPort) Push(*mem.MemFetch) bool { return true }

func newTestL2() *cache.DataCache {
	cfg, err := config.Parse("N:8:128:4,L:B:m:N:L,A:16:8,8")
	Expect(err).NotTo(HaveOccurred())
	return cache.NewDataCache(cfg, nullPort{}, mem.L2Writeback)
}

func mkFetch(addr uint64, size int, kind mem.AccessKind, isWrite bool) *mem.MemFetch {
	access := mem.MemAccess{
		Address:     addr,
		RequestSize: size,
		Kind:        kind,
		IsWrite:     isWrite,
	}
	access.SectorMask.Set(int((addr % 128) / mem.SectorSize))
	return mem.New(access, 0, 0, 0)
}

var _ = Describe("MemorySubPartition", func() {
	var sizes subpartition.Sizes

	BeforeEach(func() {
		sizes = subpartition.Sizes{ICNTToL2: 4, L2ToDRAM: 4, DRAMToL2: 4, L2ToICNT: 4}
	})

	It("breaks a 128-byte push into NumSectors sub-requests and tracks each", func() {
		p := subpartition.NewMemorySubPartition(0, sizes, 10, newTestL2())
		fetch := mkFetch(0x1000, 128, mem.GlobalRead, false)
		fetch.Access.SectorMask = 0xF

		Expect(p.Push(fetch, 0)).To(Succeed())
		Expect(p.NumPendingRequests()).To(Equal(mem.NumSectors))
	})

	It("routes texture accesses directly to icnt-to-L2, bypassing the ROP delay", func() {
		p := subpartition.NewMemorySubPartition(0, sizes, 1000, newTestL2())
		fetch := mkFetch(0x2000, 32, mem.TexRead, false)

		Expect(p.Push(fetch, 0)).To(Succeed())

		// ROP latency is huge; a texture access reaches L2 on the very
		// next cycle's admission step regardless, and a cold miss
		// reaches l2-to-dram well before 1000 cycles would elapse.
		p.Cycle(0)
		p.Cycle(1)
		Expect(p.PopToDRAM()).NotTo(BeNil())
	})

	It("delays a non-texture access in the ROP queue until its ready cycle", func() {
		p := subpartition.NewMemorySubPartition(0, sizes, 5, newTestL2())
		fetch := mkFetch(0x3000, 32, mem.GlobalRead, false)

		Expect(p.Push(fetch, 0)).To(Succeed())

		for t := uint64(0); t < 5; t++ {
			p.Cycle(t)
			Expect(p.PopToDRAM()).To(BeNil())
		}
		p.Cycle(5) // ROP releases the entry into icnt-to-L2
		p.Cycle(6) // L2 admits it, a cold miss enqueues internally
		p.Cycle(7) // L2's own Cycle drains its miss queue to l2-to-dram
		Expect(p.PopToDRAM()).NotTo(BeNil())
	})

	It("skips writeback-only entries on pop and untracks them", func() {
		p := subpartition.NewMemorySubPartition(0, sizes, 0, newTestL2())
		wb := mkFetch(0x4000, 32, mem.L2Writeback, true)
		real := mkFetch(0x5000, 32, mem.GlobalRead, false)

		// Neither fetch has a matching L2 MSHR entry, so stepDRAMToL2
		// forwards each straight toward the interconnect, the same
		// path a genuine dram response with no pending read takes.
		Expect(p.PushFromDRAM(wb)).To(BeTrue())
		p.Cycle(0)

		Expect(p.PushFromDRAM(real)).To(BeTrue())
		p.Cycle(1)

		got := p.Pop()
		Expect(got).NotTo(BeNil())
		Expect(got.Access.Kind.IsWriteback()).To(BeFalse())
	})

	It("admits a new icnt-to-L2 access into the L2 and forwards a miss toward DRAM", func() {
		p := subpartition.NewMemorySubPartition(0, sizes, 0, newTestL2())
		fetch := mkFetch(0x6000, 32, mem.GlobalRead, false)

		Expect(p.PushFromICNT(fetch)).To(BeTrue())
		p.Cycle(0) // admits into L2, cold miss enqueues internally
		p.Cycle(1) // L2's own Cycle drains the miss queue to l2-to-dram

		Expect(p.PopToDRAM()).NotTo(BeNil())
	})

	It("runs the dram-to-L2 hand-off without panicking when nothing is pending", func() {
		p := subpartition.NewMemorySubPartition(0, sizes, 0, newTestL2())
		p.Cycle(0)
		Expect(p.Top()).To(BeNil())
	})
})
