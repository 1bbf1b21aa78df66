package sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/sim"
	"github.com/sarchlab/m2gpusim/timing/pipeline"
	"github.com/sarchlab/m2gpusim/trace"

	"github.com/go-logr/logr"
)

// fakeReader replays a fixed, deterministic synthetic kernel: one
// block of two warps, each issuing a handful of global loads of
// varying addresses so requests fan out across sub-partitions and
// DRAM banks.
type fakeReader struct{}

func newSyntheticWarp(id int) *pipeline.Warp {
	var insts []*pipeline.WarpInstruction
	for i := 0; i < 6; i++ {
		access := mem.MemAccess{
			Address:     uint64(id*4096 + i*128),
			RequestSize: 32,
			Kind:        mem.GlobalRead,
		}
		access.SectorMask.Set(0)
		insts = append(insts, &pipeline.WarpInstruction{
			WarpID:     id,
			PC:         uint64(i * 4),
			OpCategory: pipeline.MEM,
			IsMemoryOp: true,
			Access:     access,
		})
	}
	return pipeline.NewWarp(id, uint64(id), insts)
}

func (fakeReader) ReadKernel(launchID int) (*trace.KernelInfo, error) {
	if launchID != 0 {
		return nil, nil
	}
	return &trace.KernelInfo{
		LaunchID: 0,
		Name:     "synthetic",
		Blocks: []*trace.Block{
			{ID: 0, Warps: []*pipeline.Warp{newSyntheticWarp(0), newSyntheticWarp(1)}},
		},
	}, nil
}

func testConfig() *config.GPUConfig {
	cfg := config.DefaultGPUConfig()
	cfg.NumClusters = 1
	cfg.CoresPerCluster = 1
	cfg.NumSubPartitions = 2
	cfg.MaxWarpsPerCore = 4
	cfg.NumSchedulersPerCore = 2
	cfg.DRAMNumBanks = 2
	cfg.WatchdogIdleCycles = 0
	return cfg
}

var _ = Describe("Driver", func() {
	It("builds without error from a default configuration", func() {
		d, err := sim.NewDriver(testConfig(), fakeReader{}, []int{0}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Clusters).To(HaveLen(1))
		Expect(d.Partitions).To(HaveLen(2))
	})

	It("replays the same synthetic trace twice to identical cycle counts", func() {
		d1, err := sim.NewDriver(testConfig(), fakeReader{}, []int{0}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		cycles1 := d1.Run(5000)

		d2, err := sim.NewDriver(testConfig(), fakeReader{}, []int{0}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		cycles2 := d2.Run(5000)

		Expect(cycles1).To(Equal(cycles2))
		Expect(cycles1).To(BeNumerically(">", 0))
	})

	It("eventually quiesces once every warp has issued its instructions", func() {
		d, err := sim.NewDriver(testConfig(), fakeReader{}, []int{0}, logr.Discard())
		Expect(err).NotTo(HaveOccurred())
		cycles := d.Run(5000)

		Expect(cycles).To(BeNumerically("<", 5000))
	})
})
