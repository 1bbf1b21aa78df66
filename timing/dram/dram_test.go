package dram_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/dram"
)

func mkFetch(bank, row uint32) *mem.MemFetch {
	return &mem.MemFetch{ID: "f", Physical: mem.PhysicalAddress{Bank: bank, Row: row}}
}

var _ = Describe("DRAM", func() {
	It("completes a request after its row-miss latency under FIFO scheduling", func() {
		d := dram.NewDRAM(dram.Config{NumBanks: 1, RowHitLatency: 2, RowMissLatency: 10, QueueSize: 4, Scheduler: dram.FIFO})
		Expect(d.Push(mkFetch(0, 5), 0)).To(BeTrue())

		for t := uint64(0); t < 10; t++ {
			d.Cycle(t)
			Expect(d.HasCompletion()).To(BeFalse())
		}
		d.Cycle(10)
		Expect(d.HasCompletion()).To(BeTrue())
	})

	It("serves a row-buffer hit faster than a row-buffer miss under FR-FCFS", func() {
		d := dram.NewDRAM(dram.Config{NumBanks: 1, RowHitLatency: 2, RowMissLatency: 10, QueueSize: 4, Scheduler: dram.FRFCFS})

		Expect(d.Push(mkFetch(0, 5), 0)).To(BeTrue())
		for t := uint64(0); t <= 10; t++ {
			d.Cycle(t)
		}
		Expect(d.PopCompletion()).NotTo(BeNil())

		Expect(d.Push(mkFetch(0, 5), 10)).To(BeTrue())
		for t := uint64(10); t < 12; t++ {
			d.Cycle(t)
			Expect(d.HasCompletion()).To(BeFalse())
		}
		d.Cycle(12)
		Expect(d.HasCompletion()).To(BeTrue())
	})

	It("rejects a push once a bank's queue is full", func() {
		d := dram.NewDRAM(dram.Config{NumBanks: 1, RowHitLatency: 1, RowMissLatency: 1, QueueSize: 1, Scheduler: dram.FIFO})
		Expect(d.Push(mkFetch(0, 0), 0)).To(BeTrue())
		Expect(d.Push(mkFetch(0, 1), 0)).To(BeFalse())
	})

	It("reports no pending work only once the queue and completions both drain", func() {
		d := dram.NewDRAM(dram.Config{NumBanks: 1, RowHitLatency: 1, RowMissLatency: 1, QueueSize: 1, Scheduler: dram.FIFO})
		Expect(d.HasAnyPending()).To(BeFalse())

		Expect(d.Push(mkFetch(0, 0), 0)).To(BeTrue())
		Expect(d.HasAnyPending()).To(BeTrue())

		d.Cycle(0)
		d.Cycle(1)
		Expect(d.HasAnyPending()).To(BeTrue())
		d.PopCompletion()
		Expect(d.HasAnyPending()).To(BeFalse())
	})
})
