// Package sim wires the timing model's independently-developed pieces
// -- clusters, memory sub-partitions, the interconnect, and DRAM --
// into one cycle-accurate driver, and layers an optional deadlock
// watchdog and a per-kernel statistics registry on top. Spec §2's
// top-level composition, §5's global ordering contract.
package sim

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/stats"
	"github.com/sarchlab/m2gpusim/timing/cache"
	"github.com/sarchlab/m2gpusim/timing/cluster"
	"github.com/sarchlab/m2gpusim/timing/core"
	"github.com/sarchlab/m2gpusim/timing/dram"
	"github.com/sarchlab/m2gpusim/timing/interconnect"
	"github.com/sarchlab/m2gpusim/timing/pipeline"
	"github.com/sarchlab/m2gpusim/timing/subpartition"
	"github.com/sarchlab/m2gpusim/trace"
)

// kernelSource hands out the same in-progress *trace.KernelInfo to
// every cluster that asks, advancing to the next queued launch id only
// once the current kernel has no blocks left. Driver.Cycle iterates
// clusters sequentially (only cores within one cluster run
// concurrently, via cluster.Cycle's errgroup), so mutating
// nextBlock/current here without a mutex is safe: nothing else ever
// calls NextKernel concurrently with it.
type kernelSource struct {
	reader  trace.Reader
	queue   []int
	current *trace.KernelInfo
}

func (k *kernelSource) NextKernel() *trace.KernelInfo {
	if k.current != nil && k.current.HasMoreBlocks() {
		return k.current
	}
	for len(k.queue) > 0 {
		id := k.queue[0]
		k.queue = k.queue[1:]
		kernel, err := k.reader.ReadKernel(id)
		if err != nil || kernel == nil || !kernel.HasMoreBlocks() {
			continue
		}
		k.current = kernel
		return k.current
	}
	return nil
}

// l1DownstreamPort adapts a core's L1 miss queue to the interconnect,
// stamping the fetch's routing address on its way out. now points at
// the driver's current cycle counter: cache.DownstreamPort.Push takes
// no time parameter, so the pointer lets every L1 across every
// cluster see the same live cycle value without threading it through
// BaseCache.Cycle's signature.
type l1DownstreamPort struct {
	network   *interconnect.Network
	decoder   addressDecoder
	clusterID int
	coreID    int
	now       *uint64
}

func (p l1DownstreamPort) Push(f *mem.MemFetch) bool {
	p.decoder.decode(f)
	f.ClusterID = p.clusterID
	f.CoreID = p.coreID
	return p.network.InjectRequest(f, *p.now)
}

// Driver is the top-level cycle-accurate simulation loop, composing
// the cluster/core/cache stack with the interconnect and DRAM
// reference collaborators. Grounded on the teacher's single-pipeline
// Run loop (cmd/m2sim/main.go), generalized to a multi-component
// fixed-point tick rather than one pipeline's linear Tick.
type Driver struct {
	cfg *config.GPUConfig

	Clusters   []*cluster.Cluster
	Partitions []*subpartition.MemorySubPartition
	Network    *interconnect.Network
	DRAM       *dram.DRAM
	Stats      *stats.Registry
	Watchdog   *Watchdog

	kernels *kernelSource
	decoder addressDecoder
	logger  logr.Logger
	cycle   uint64
}

// NewDriver builds a Driver from cfg, ready to replay the kernels
// named by launchIDs against reader.
func NewDriver(cfg *config.GPUConfig, reader trace.Reader, launchIDs []int, logger logr.Logger) (*Driver, error) {
	l1dCfg, err := cfg.L1D()
	if err != nil {
		return nil, fmt.Errorf("sim: parsing l1d config: %w", err)
	}
	l2dCfg, err := cfg.L2D()
	if err != nil {
		return nil, fmt.Errorf("sim: parsing l2d config: %w", err)
	}

	policy := schedulerPolicyFromString(cfg.SchedulerPolicy)
	decoder := addressDecoder{numBanks: cfg.DRAMNumBanks}

	d := &Driver{
		cfg:     cfg,
		decoder: decoder,
		logger:  logger,
		Stats:   stats.NewRegistry(),
	}

	d.Network = interconnect.NewNetwork(interconnect.Config{
		NumClusters:     cfg.NumClusters,
		NumPartitions:   cfg.NumSubPartitions,
		RequestLatency:  cfg.InterconnectRequestLatency,
		ResponseLatency: cfg.InterconnectResponseLatency,
		LaneCapacity:    cfg.InterconnectLaneCapacity,
	})

	d.DRAM = dram.NewDRAM(dram.Config{
		NumBanks:       cfg.DRAMNumBanks,
		RowHitLatency:  cfg.DRAMRowHitLatency,
		RowMissLatency: cfg.DRAMRowMissLatency,
		QueueSize:      cfg.DRAMQueueSize,
		Scheduler:      dramSchedulerFromString(cfg.DRAMScheduler),
	})

	d.kernels = &kernelSource{reader: reader, queue: append([]int(nil), launchIDs...)}

	sizes := subpartition.Sizes{
		ICNTToL2: cfg.ICNTToL2QueueSize,
		L2ToDRAM: cfg.L2ToDRAMQueueSize,
		DRAMToL2: cfg.DRAMToL2QueueSize,
		L2ToICNT: cfg.L2ToICNTQueueSize,
	}
	for i := 0; i < cfg.NumSubPartitions; i++ {
		l2 := cache.NewDataCache(l2dCfg, nil, mem.L2Writeback)
		d.Partitions = append(d.Partitions, subpartition.NewMemorySubPartition(i, sizes, cfg.L2ROPLatency, l2))
	}

	for cid := 0; cid < cfg.NumClusters; cid++ {
		var cores []*core.Core
		for coreID := 0; coreID < cfg.CoresPerCluster; coreID++ {
			l1d := cache.NewDataCache(l1dCfg, nil, mem.L1Writeback)
			opts := []core.CoreOption{core.WithClusterID(cid)}
			if cfg.SubCoreMode {
				opts = append(opts, core.WithSubCoreMode())
			}
			c := core.NewCore(coreID, cfg.NumSchedulersPerCore, policy, cfg.MaxIssuePerScheduler, l1d, opts...)
			l1d.Downstream = l1DownstreamPort{
				network:   d.Network,
				decoder:   decoder,
				clusterID: cid,
				coreID:    coreID,
				now:       &d.cycle,
			}
			cores = append(cores, c)
		}
		d.Clusters = append(d.Clusters, cluster.NewCluster(cid, cores, d.Network, d.kernels, cfg.ClusterResponseFIFOCapacity))
	}

	if cfg.WatchdogIdleCycles > 0 {
		d.Watchdog = NewWatchdog(cfg.WatchdogIdleCycles, logger)
	}

	return d, nil
}

func schedulerPolicyFromString(s string) pipeline.SchedulerPolicy {
	switch s {
	case "lrr":
		return pipeline.LRR
	case "two_level":
		return pipeline.TwoLevelActive
	default:
		return pipeline.GTO
	}
}

func dramSchedulerFromString(s string) dram.SchedulerKind {
	if s == "fifo" {
		return dram.FIFO
	}
	return dram.FRFCFS
}

// Cycle advances every component by one tick, in the order spec §5
// requires: consumers drain before producers push, at every level of
// the composition, so nothing within a single cycle observes a
// same-cycle arrival it should only see next cycle.
func (d *Driver) Cycle() {
	now := d.cycle

	d.DRAM.Cycle(now)
	d.drainDRAMCompletions()

	for _, p := range d.Partitions {
		p.Cycle(now)
	}
	d.drainPartitionReplies(now)

	d.Network.Cycle(now)

	for _, cl := range d.Clusters {
		_ = cl.Cycle(now)
	}

	d.drainNetworkToPartitions(now)
	d.drainPartitionsToDRAM(now)

	if d.Watchdog != nil {
		d.Watchdog.Observe(now, d.totalPending())
	}

	d.cycle++
}

// Run advances the driver until every kernel the reader was told
// about has issued its last block and every component has drained,
// bounded by maxCycles as a non-terminating-trace backstop.
func (d *Driver) Run(maxCycles uint64) uint64 {
	for d.cycle < maxCycles {
		if d.quiescent() {
			break
		}
		d.Cycle()
	}
	return d.cycle
}

func (d *Driver) quiescent() bool {
	if d.kernels.NextKernel() != nil {
		return false
	}
	for _, cl := range d.Clusters {
		for _, c := range cl.Cores {
			if !c.CanIssueBlock() {
				return false
			}
		}
	}
	return d.totalPending() == 0 && !d.Network.HasAnyPending() && !d.DRAM.HasAnyPending()
}

// CollectStats rolls every core's counters into a stats.KernelStats
// entry keyed by launchID, for a caller to report once a kernel (or
// the whole run, for a single-kernel trace) has finished. Cache and
// DRAM hit/miss counters stay with their owning DataCache and DRAM
// instances (spec.md's statistics record is an external-collaborator
// interface, §8) rather than being duplicated here.
func (d *Driver) CollectStats(launchID int, name string) *stats.KernelStats {
	ks := d.Stats.ForKernel(launchID, name)
	ks.Cycles = d.cycle
	for _, cl := range d.Clusters {
		for _, c := range cl.Cores {
			s := c.Stats()
			ks.Instructions += s.Instructions
			ks.StallCycles += s.Stalls
		}
	}
	return ks
}

func (d *Driver) totalPending() int {
	total := 0
	for _, p := range d.Partitions {
		total += p.NumPendingRequests()
	}
	return total
}

func (d *Driver) partitionFor(f *mem.MemFetch) int {
	if len(d.Partitions) == 0 {
		return 0
	}
	return int(f.PartitionAddr % uint64(len(d.Partitions)))
}

func (d *Driver) drainDRAMCompletions() {
	for {
		f := d.DRAM.PeekCompletion()
		if f == nil {
			break
		}
		idx := d.partitionFor(f)
		if !d.Partitions[idx].PushFromDRAM(f) {
			break
		}
		d.DRAM.PopCompletion()
	}
}

func (d *Driver) drainPartitionReplies(now uint64) {
	for _, p := range d.Partitions {
		for {
			f := p.Top()
			if f == nil {
				break
			}
			if !d.Network.InjectResponse(f, now) {
				break
			}
			p.Pop()
		}
	}
}

func (d *Driver) drainNetworkToPartitions(now uint64) {
	for idx, p := range d.Partitions {
		for d.Network.HasPendingForPartition(idx) {
			f := d.Network.PopForPartition(idx)
			if f == nil {
				break
			}
			if err := p.Push(f, now); err != nil {
				d.logger.Error(err, "dropping malformed request at sub-partition", "partition", idx, "fetch", f.ID)
			}
		}
	}
}

func (d *Driver) drainPartitionsToDRAM(now uint64) {
	for _, p := range d.Partitions {
		for {
			f := p.TopToDRAM()
			if f == nil || !d.DRAM.Push(f, now) {
				break
			}
			p.PopToDRAM()
		}
	}
}
