// Package cluster implements the GPU's per-cluster container: a group
// of cores sharing one response path to the interconnect, and the
// round-robin block-issue policy that keeps them fed. Spec.md §4.9.
package cluster

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/core"
	"github.com/sarchlab/m2gpusim/trace"
)

// Interconnect is the subset of the interconnect's interface a cluster
// needs: whether it has a pending packet destined for this cluster,
// and popping it.
type Interconnect interface {
	HasPendingForCluster(clusterID int) bool
	PopForCluster(clusterID int) *mem.MemFetch
}

// KernelSource is the outer driver's kernel-launch interface: the
// cluster asks it for a new kernel when a core's current one runs out
// of blocks. Spec §4.9 issue_block_to_core's "request a new kernel
// from the outer driver".
type KernelSource interface {
	NextKernel() *trace.KernelInfo
}

// Cluster groups cores, owns the response FIFO from the interconnect,
// and round-robins block issuance across its cores. Grounded on
// spec.md §4.9 directly (the teacher has no multi-core notion) plus
// the original's `ported/cluster.rs` round-robin start-index
// bookkeeping (`block_issue_next_core`).
type Cluster struct {
	ID    int
	Cores []*core.Core

	interconnect Interconnect
	kernels      KernelSource

	responseFIFO     []*mem.MemFetch
	responseCapacity int
	responseMu       sync.Mutex

	blockIssueNextCore int

	currentKernel *trace.KernelInfo
}

// NewCluster builds a Cluster over the given cores.
func NewCluster(id int, cores []*core.Core, icnt Interconnect, kernels KernelSource, responseCapacity int) *Cluster {
	return &Cluster{
		ID:               id,
		Cores:            cores,
		interconnect:     icnt,
		kernels:          kernels,
		responseCapacity: responseCapacity,
	}
}

// Cycle advances the cluster by one tick: cores cycle in parallel
// (their state is disjoint except for the interconnect, spec §5),
// followed by the single-threaded interconnect hand-off and the
// round-robin block-issue attempt.
func (cl *Cluster) Cycle(time uint64) error {
	if err := cl.cycleCores(time); err != nil {
		return err
	}
	cl.interconnCycle()
	cl.issueBlockToCore()
	return nil
}

// cycleCores fans cores out through an errgroup, since a core's
// per-cycle state transition touches nothing outside itself except
// through the methods this package serializes (PushResponse,
// interconnect access). Spec §5's parallel-mode contract.
func (cl *Cluster) cycleCores(time uint64) error {
	var g errgroup.Group
	for _, c := range cl.Cores {
		c := c
		g.Go(func() error {
			c.Cycle(time)
			return nil
		})
	}
	return g.Wait()
}

// PushResponse enqueues a fetch returning from the interconnect into
// the cluster's response FIFO, if there is room. Safe for concurrent
// use by the single-threaded sim driver and by core goroutines that
// might read (but never write) concurrently in the same cycle.
func (cl *Cluster) PushResponse(f *mem.MemFetch) bool {
	cl.responseMu.Lock()
	defer cl.responseMu.Unlock()
	if len(cl.responseFIFO) >= cl.responseCapacity {
		return false
	}
	cl.responseFIFO = append(cl.responseFIFO, f)
	return true
}

// interconnCycle implements spec §4.9 interconn_cycle(): hand the
// response FIFO's head to its destination core's OnFill, otherwise
// pull one more pending packet from the interconnect into the FIFO if
// there is room. There is no acceptance check on the core: a head with
// a valid core id is always handed off; one with an out-of-range core
// id stays at the front of the FIFO.
func (cl *Cluster) interconnCycle() {
	cl.responseMu.Lock()
	defer cl.responseMu.Unlock()

	if len(cl.responseFIFO) > 0 {
		head := cl.responseFIFO[0]
		if head.CoreID >= 0 && head.CoreID < len(cl.Cores) {
			cl.Cores[head.CoreID].OnFill(head, 0)
			cl.responseFIFO = cl.responseFIFO[1:]
			return
		}
	}

	if len(cl.responseFIFO) < cl.responseCapacity && cl.interconnect != nil && cl.interconnect.HasPendingForCluster(cl.ID) {
		if f := cl.interconnect.PopForCluster(cl.ID); f != nil {
			cl.responseFIFO = append(cl.responseFIFO, f)
		}
	}
}

// issueBlockToCore implements spec §4.9 issue_block_to_core():
// round-robin over cores starting from block_issue_next_core+1,
// reusing the current kernel's remaining blocks or requesting a new
// kernel once it runs dry.
func (cl *Cluster) issueBlockToCore() int {
	n := len(cl.Cores)
	if n == 0 {
		return 0
	}
	for i := 1; i <= n; i++ {
		idx := (cl.blockIssueNextCore + i) % n
		c := cl.Cores[idx]
		if !c.CanIssueBlock() {
			continue
		}

		if cl.currentKernel == nil || !cl.currentKernel.HasMoreBlocks() {
			if cl.kernels == nil {
				return 0
			}
			cl.currentKernel = cl.kernels.NextKernel()
			if cl.currentKernel == nil {
				return 0
			}
		}

		block := cl.currentKernel.NextBlock()
		if block == nil {
			continue
		}
		if c.IssueBlock(block) {
			cl.blockIssueNextCore = idx
			return 1
		}
	}
	return 0
}
