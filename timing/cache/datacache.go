package cache

import (
	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
)

// KindCounts is the per-(access_kind, allocation_id) status histogram
// spec §4.4 requires for statistics.
type KindCounts struct {
	Hits             uint64
	Misses           uint64
	SectorMisses     uint64
	HitReserved      uint64
	ReservationFails map[ReservationFailReason]uint64
}

func newKindCounts() *KindCounts {
	return &KindCounts{ReservationFails: make(map[ReservationFailReason]uint64)}
}

type statKey struct {
	kind mem.AccessKind
	alloc int
}

// AccessOutcome is the terminal result of a DataCache.Access call.
type AccessOutcome struct {
	Status     ProbeStatus
	FailReason ReservationFailReason
}

// DataCache layers the write-policy/write-allocate decision matrix
// (spec §4.4) on top of BaseCache. L1 and L2 both use this type; only
// their CacheConfig and writeback access kind differ (spec §2).
type DataCache struct {
	*BaseCache

	writePolicy      config.WritePolicy
	writeAllocPolicy config.WriteAllocatePolicy
	writebackKind    mem.AccessKind

	stats map[statKey]*KindCounts
}

// NewDataCache builds a DataCache. writebackKind should be
// mem.L1Writeback for an L1 instance and mem.L2Writeback for L2, per
// spec §4.4 read_miss's "this cache's write-back kind".
func NewDataCache(cfg *config.CacheConfig, downstream DownstreamPort, writebackKind mem.AccessKind) *DataCache {
	return &DataCache{
		BaseCache:        NewBaseCache(cfg, downstream),
		writePolicy:      cfg.Write,
		writeAllocPolicy: cfg.WriteAlloc,
		writebackKind:    writebackKind,
		stats:            make(map[statKey]*KindCounts),
	}
}

func (c *DataCache) counts(fetch *mem.MemFetch) *KindCounts {
	key := statKey{fetch.Access.Kind, fetch.Access.AllocationID}
	k, ok := c.stats[key]
	if !ok {
		k = newKindCounts()
		c.stats[key] = k
	}
	return k
}

// Stats returns the per-(kind, allocation id) histogram recorded so
// far.
func (c *DataCache) Stats() map[statKey]*KindCounts { return c.stats }

// Access dispatches fetch through the 2x2 {is_write, probe_status}
// matrix of spec §4.4, consuming one data-port cycle afterward.
func (c *DataCache) Access(fetch *mem.MemFetch, time uint64) AccessOutcome {
	blockAddr := c.blockAddrOf(fetch)
	idx, probe := c.Tags.Probe(blockAddr, fetch.ID, fetch.Access.IsWrite, fetch.Access.SectorMask)

	var out AccessOutcome
	switch {
	case fetch.Access.IsWrite && !isAtomicKind(fetch.Access.Kind):
		out = c.dispatchWrite(fetch, idx, probe, time)
	default:
		// Atomics set IsWrite on a GlobalRead/LocalRead access
		// (isAtomicKind, mshr.go) and go through the read path so
		// they reach readHit's MODIFIED bump and the read-miss/MSHR
		// machinery rather than the write-hit/write-allocate policy.
		out = c.dispatchRead(fetch, idx, probe, time)
	}

	c.recordOutcome(fetch, out)
	c.Bandwidth.UseDataPort()
	return out
}

func (c *DataCache) blockAddrOf(fetch *mem.MemFetch) uint64 {
	return fetch.Access.Address &^ (uint64(c.Tags.blockSize) - 1)
}

func (c *DataCache) recordOutcome(fetch *mem.MemFetch, out AccessOutcome) {
	k := c.counts(fetch)
	switch out.Status {
	case Hit:
		k.Hits++
	case HitReserved:
		k.HitReserved++
	case Miss:
		k.Misses++
	case SectorMiss:
		k.SectorMisses++
	case ReservationFail:
		k.ReservationFails[out.FailReason]++
	}
}

func (c *DataCache) dispatchRead(fetch *mem.MemFetch, idx int, probe ProbeStatus, time uint64) AccessOutcome {
	switch probe {
	case Hit:
		c.readHit(fetch, idx, time)
		return AccessOutcome{Status: Hit}
	case HitReserved:
		return AccessOutcome{Status: HitReserved}
	case SectorMiss:
		return AccessOutcome{Status: SectorMiss}
	default:
		return c.readMiss(fetch, time)
	}
}

// readHit updates LRU and, for atomics, marks the block MODIFIED
// (B4). Spec §4.4.
func (c *DataCache) readHit(fetch *mem.MemFetch, idx int, time uint64) {
	c.Tags.Access(c.blockAddrOf(fetch), fetch.ID, fetch.Access.AllocationID, time)
	if isAtomicKind(fetch.Access.Kind) && fetch.Access.IsWrite {
		c.Tags.MarkModified(idx, fetch.Access.ByteMask, time)
	}
}

// readMiss handles a read miss, synthesizing a writeback fetch on
// dirty eviction when the write policy is not WRITE_THROUGH. Spec
// §4.4.
func (c *DataCache) readMiss(fetch *mem.MemFetch, time uint64) AccessOutcome {
	if c.MissQueueFull() {
		return AccessOutcome{Status: ReservationFail, FailReason: MissQueueFull}
	}

	shouldMiss, writeback, evicted := c.SendReadRequest(fetch, time, false, false)
	if !shouldMiss {
		return AccessOutcome{Status: ReservationFail, FailReason: LineAllocFail}
	}

	if writeback && c.writePolicy != config.WriteThrough && evicted != nil {
		c.sendWriteback(fetch, evicted, time)
	}

	return AccessOutcome{Status: Miss}
}

func (c *DataCache) sendWriteback(fetch *mem.MemFetch, evicted *EvictedBlock, time uint64) {
	access := mem.MemAccess{
		Address:      evicted.BlockAddr,
		RequestSize:  c.Tags.blockSize,
		ByteMask:     evicted.ByteMask,
		SectorMask:   evicted.SectorMask,
		Kind:         c.writebackKind,
		IsWrite:      true,
		AllocationID: evicted.AllocationID,
		WarpID:       fetch.WarpID,
		CoreID:       fetch.CoreID,
		ClusterID:    fetch.ClusterID,
	}
	wb := fetch.SubRequest(access)
	if c.Downstream != nil {
		c.Downstream.Push(wb)
	}
}

func (c *DataCache) dispatchWrite(fetch *mem.MemFetch, idx int, probe ProbeStatus, time uint64) AccessOutcome {
	switch probe {
	case Hit:
		c.writeHit(fetch, idx, time)
		return AccessOutcome{Status: Hit}
	case HitReserved:
		return AccessOutcome{Status: HitReserved}
	case SectorMiss:
		return AccessOutcome{Status: SectorMiss}
	default:
		return c.writeMiss(fetch, time)
	}
}

// writeHit dispatches to the configured write policy. Spec §4.4.
func (c *DataCache) writeHit(fetch *mem.MemFetch, idx int, time uint64) {
	policy := c.writePolicy
	if policy == config.LocalWBGlobalWT {
		if fetch.Access.Kind == mem.LocalRead || fetch.Access.Kind == mem.LocalWrite {
			policy = config.WriteBack
		} else {
			policy = config.WriteThrough
		}
	}

	switch policy {
	case config.WriteBack:
		c.Tags.MarkModified(idx, fetch.Access.ByteMask, time)

	case config.WriteThrough:
		c.Tags.MarkModified(idx, fetch.Access.ByteMask, time)
		if c.Downstream != nil {
			c.Downstream.Push(fetch)
		}

	case config.WriteEvict:
		c.Tags.Invalidate(idx)
		if c.Downstream != nil {
			c.Downstream.Push(fetch)
		}

	default:
		// READ_ONLY is undefined for writable caches; spec §4.4
		// leaves this branch unreachable for a correctly configured
		// cache, so there is nothing to do here.
	}
}

// writeMiss dispatches to the configured write-allocate policy. Spec
// §4.4.
func (c *DataCache) writeMiss(fetch *mem.MemFetch, time uint64) AccessOutcome {
	switch c.writeAllocPolicy {
	case config.NoWriteAllocate:
		if c.MissQueueFull() {
			return AccessOutcome{Status: ReservationFail, FailReason: MissQueueFull}
		}
		if c.Downstream != nil {
			c.Downstream.Push(fetch)
		}
		return AccessOutcome{Status: Miss}

	default:
		// WRITE_ALLOCATE / FETCH_ON_WRITE / LAZY_FETCH_ON_READ: all
		// three synthesize an allocation read after pushing the
		// write, conservatively requiring room for up to 3 messages
		// (write-through, read-for-allocate, optional writeback).
		// Spec §4.4.
		if c.MissQueueLen()+3 > c.cachedMissQueueCapacity() {
			return AccessOutcome{Status: ReservationFail, FailReason: MissQueueFull}
		}
		blockAddr := c.blockAddrOf(fetch)
		if c.MSHR.Full(blockAddr) {
			return AccessOutcome{Status: ReservationFail, FailReason: MSHRMergeEntryFail}
		}

		if c.Downstream != nil {
			c.Downstream.Push(fetch)
		}

		readAccess := fetch.Access
		readAccess.Kind = mem.L2WriteAllocateRead
		if c.writebackKind == mem.L1Writeback {
			readAccess.Kind = mem.L1WriteAllocateRead
		}
		readAccess.IsWrite = false
		readAccess.RequestSize = mem.SectorSize
		readFetch := fetch.SubRequest(readAccess)
		readFetch.WriteAllocateShortCircuit = c.writeAllocPolicy == config.FetchOnWrite || c.writeAllocPolicy == config.LazyFetchOnRead

		shouldMiss, writeback, evicted := c.SendReadRequest(readFetch, time, false, true)
		if writeback && c.writePolicy != config.WriteThrough && evicted != nil {
			c.sendWriteback(fetch, evicted, time)
		}
		if !shouldMiss {
			return AccessOutcome{Status: ReservationFail, FailReason: LineAllocFail}
		}
		return AccessOutcome{Status: Miss}
	}
}

func (c *DataCache) cachedMissQueueCapacity() int { return c.missQSize }
