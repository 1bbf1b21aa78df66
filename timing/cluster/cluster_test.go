package cluster_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/cache"
	"github.com/sarchlab/m2gpusim/timing/cluster"
	"github.com/sarchlab/m2gpusim/timing/core"
	"github.com/sarchlab/m2gpusim/timing/pipeline"
	"github.com/sarchlab/m2gpusim/trace"
)

type nullPort struct{}

func (nullPort) Push(*mem.MemFetch) bool { return true }

func newTestL1() *cache.DataCache {
	cfg, err := config.Parse("N:4:128:2,L:B:m:N:L,A:8:4,4")
	Expect(err).NotTo(HaveOccurred())
	return cache.NewDataCache(cfg, nullPort{}, mem.L1Writeback)
}

type fakeInterconnect struct{}

func (fakeInterconnect) HasPendingForCluster(int) bool       { return false }
func (fakeInterconnect) PopForCluster(int) *mem.MemFetch { return nil }

type fakeKernels struct {
	kernels []*trace.KernelInfo
	i       int
}

func (k *fakeKernels) NextKernel() *trace.KernelInfo {
	if k.i >= len(k.kernels) {
		return nil
	}
	next := k.kernels[k.i]
	k.i++
	return next
}

func mkBlockWarp(id int, n int) *pipeline.Warp {
	insts := make([]*pipeline.WarpInstruction, n)
	for i := range insts {
		insts[i] = &pipeline.WarpInstruction{WarpID: id, OpCategory: pipeline.SP, DstRegs: []pipeline.OperandBank{pipeline.OperandBank(i)}}
	}
	return pipeline.NewWarp(id, uint64(id), insts)
}

var _ = Describe("Cluster", func() {
	It("round-robins block issuance across cores with free schedulers", func() {
		c0 := core.NewCore(0, 1, pipeline.LRR, 1, newTestL1())
		c1 := core.NewCore(1, 1, pipeline.LRR, 1, newTestL1())

		kernel := &trace.KernelInfo{
			LaunchID: 0,
			Blocks: []*trace.Block{
				{ID: 0, Warps: []*pipeline.Warp{mkBlockWarp(0, 1)}},
				{ID: 1, Warps: []*pipeline.Warp{mkBlockWarp(1, 1)}},
			},
		}
		kernels := &fakeKernels{kernels: []*trace.KernelInfo{kernel}}

		cl := cluster.NewCluster(0, []*core.Core{c0, c1}, fakeInterconnect{}, kernels, 4)

		// One block issues per cycle (c1 at cycle 0, c0 at cycle 1) and a
		// one-scheduler core retires an SP instruction 7 cycles after its
		// warp arrives, so c0 retires at cycle 9.
		for i := 0; i < 12; i++ {
			Expect(cl.Cycle(uint64(i))).To(Succeed())
		}

		Expect(c0.Stats().Instructions + c1.Stats().Instructions).To(Equal(uint64(2)))
	})

	It("accepts a fill response and routes it to the originating core", func() {
		c0 := core.NewCore(0, 1, pipeline.LRR, 1, newTestL1())
		cl := cluster.NewCluster(0, []*core.Core{c0}, fakeInterconnect{}, &fakeKernels{}, 4)

		ok := cl.PushResponse(&mem.MemFetch{ID: "x", CoreID: 0})
		Expect(ok).To(BeTrue())

		Expect(cl.Cycle(0)).To(Succeed())
	})
})
