package cache

import (
	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
)

// DownstreamPort is the memory port a BaseCache drains its miss queue
// into (the interconnect's icnt-to-L2 queue for an L1, or the
// sub-partition's L2-to-DRAM queue for an L2). Spec §4.3 cycle().
type DownstreamPort interface {
	Push(*mem.MemFetch) bool
}

// EventKind names the bookkeeping-only statistics events of spec §4.3
// send_read_request Case B and §4.4 write_miss. BaseCache and DataCache
// do not record these events; there is no event log.
type EventKind int

// Event kinds.
const (
	ReadRequestSent EventKind = iota
	WriteAllocateSent
)

// BaseCache composes TagArray + MSHRTable + BandwidthManager + a
// bounded miss queue and downstream port. Spec §4.3. Generalizes the
// teacher's timing/cache.Cache (which calls its BackingStore directly
// on every miss) into the MSHR-gated admission control the spec
// requires.
type BaseCache struct {
	Tags       *TagArray
	MSHR       *MSHRTable
	Bandwidth  *BandwidthManager
	missQueue  []*mem.MemFetch
	missQSize  int
	Downstream DownstreamPort
	atomPerAccessSize int
	cfg        *config.CacheConfig
}

// NewBaseCache builds a BaseCache from a parsed CacheConfig and a
// downstream port.
func NewBaseCache(cfg *config.CacheConfig, downstream DownstreamPort) *BaseCache {
	return &BaseCache{
		Tags:       NewTagArray(cfg),
		MSHR:       NewMSHRTable(cfg.MSHREntries, cfg.MSHRMerge),
		Bandwidth:  NewBandwidthManager(cfg.DataPortWidth),
		missQSize:  cfg.MissQueueSize,
		Downstream: downstream,
		atomPerAccessSize: mem.SectorSize,
		cfg:        cfg,
	}
}

// MissQueueLen returns the current miss-queue occupancy, for P5.
func (c *BaseCache) MissQueueLen() int { return len(c.missQueue) }

// MissQueueFull reports whether the miss queue has no room for one
// more fetch.
func (c *BaseCache) MissQueueFull() bool { return len(c.missQueue) >= c.missQSize }

// BlockAddress truncates addr to this cache's line size, the same
// truncation TagArray.blockAddr and config.CacheConfig.BlockAddress
// perform, exposed for callers outside the package (e.g.
// timing/subpartition matching a dram→L2 fill against the L2's MSHR).
func (c *BaseCache) BlockAddress(addr uint64) uint64 { return c.cfg.BlockAddress(addr) }

// SendReadRequest implements spec §4.3's four-way MSHR/miss-queue
// admission decision.
func (c *BaseCache) SendReadRequest(fetch *mem.MemFetch, time uint64, readOnly, writeAllocate bool) (shouldMiss, writeback bool, evicted *EvictedBlock) {
	blockAddr := c.cfg.BlockAddress(fetch.Access.Address)
	mshrHit := c.MSHR.Probe(blockAddr)
	mshrFull := c.MSHR.Full(blockAddr)

	switch {
	case mshrHit && !mshrFull:
		// Case A: merge into existing MSHR.
		c.MSHR.Add(blockAddr, fetch)
		if readOnly {
			idx, _ := c.Tags.Probe(blockAddr, fetch.ID, fetch.Access.IsWrite, fetch.Access.SectorMask)
			fetch.TagIndex = idx
		} else {
			access := c.Tags.Access(blockAddr, fetch.ID, fetch.Access.AllocationID, time)
			writeback = access.Writeback
			fetch.TagIndex = access.Index
			if access.Evicted != nil {
				evicted = access.Evicted
			}
		}
		return true, writeback, evicted

	case !mshrHit && !mshrFull && !c.MissQueueFull():
		// Case B: allocate MSHR, update tag array, enqueue.
		access := c.Tags.Access(blockAddr, fetch.ID, fetch.Access.AllocationID, time)
		writeback = access.Writeback
		evicted = access.Evicted
		fetch.TagIndex = access.Index

		c.MSHR.Add(blockAddr, fetch)
		fetch.DataSize = c.atomPerAccessSize
		fetch.Access.Address = blockAddr
		fetch.Status = mem.FetchInMissQueue
		c.missQueue = append(c.missQueue, fetch)
		return true, writeback, evicted

	case mshrHit && mshrFull:
		// Case C: merge-entry exhausted.
		return false, false, nil

	default:
		// Case D: no free MSHR entry.
		return false, false, nil
	}
}

// Cycle drains the miss queue's head into the downstream port if it
// fits, then ticks the bandwidth manager. Spec §4.3 cycle().
func (c *BaseCache) Cycle() {
	if len(c.missQueue) > 0 {
		head := c.missQueue[0]
		if c.Downstream != nil && c.Downstream.Push(head) {
			c.missQueue = c.missQueue[1:]
		}
	}
	c.Bandwidth.Cycle()
}

// Fill locates the originating MSHR entry for fetch, invokes
// TagArray.Fill, marks the MSHR ready, and uses one fill-port cycle.
// Spec §4.3 fill().
func (c *BaseCache) Fill(index int, fetch *mem.MemFetch, time uint64) {
	blockAddr := c.cfg.BlockAddress(fetch.Access.Address)
	hasAtomic := c.MSHR.MarkReady(blockAddr)
	c.Tags.Fill(index, fetch.Access.SectorMask, hasAtomic, time)
	c.Bandwidth.UseFillPort()
}
