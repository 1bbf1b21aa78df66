// Package cache implements the cache hierarchy's tag/MSHR/bandwidth
// machinery shared by L1 and L2 (spec §4.1-§4.4).
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/m2gpusim/config"
	"github.com/sarchlab/m2gpusim/mem"
)

// BlockStatus is a CacheBlock's state, spec §3.
type BlockStatus int

// Block statuses.
const (
	Invalid BlockStatus = iota
	Valid
	Modified
	Reserved
)

// ProbeStatus is the result of TagArray.Probe, spec §4.1.
type ProbeStatus int

// Probe statuses.
const (
	Hit ProbeStatus = iota
	HitReserved
	Miss
	SectorMiss
	ReservationFail
)

func (s ProbeStatus) String() string {
	switch s {
	case Hit:
		return "HIT"
	case HitReserved:
		return "HIT_RESERVED"
	case Miss:
		return "MISS"
	case SectorMiss:
		return "SECTOR_MISS"
	case ReservationFail:
		return "RESERVATION_FAIL"
	default:
		return "UNKNOWN"
	}
}

// ReservationFailReason refines a ReservationFail outcome for
// statistics (spec §4.4's per-sub-reason accounting).
type ReservationFailReason int

// Reservation failure reasons.
const (
	NoFailure ReservationFailReason = iota
	LineAllocFail
	MissQueueFull
	MSHRMergeEntryFail
	MSHREntryFail
)

// blockMeta is the per-block side state the spec's CacheBlock needs
// beyond what akitacache.Block tracks (Tag/IsValid/IsDirty): RESERVED
// status, per-sector readable bits, and the two tie-break clocks
// (LRU last-access, FIFO insertion order).
type blockMeta struct {
	status          BlockStatus
	sectorReadable  [mem.NumSectors]bool
	dirtyByteMask   mem.ByteMask
	reservedFetchID string
	allocationID    int
	lastAccess      uint64
	insertOrder     uint64
}

// EvictedBlock describes a line evicted to make room for a miss,
// spec §4.1 access().
type EvictedBlock struct {
	BlockAddr    uint64
	ModifiedSize int
	ByteMask     mem.ByteMask
	SectorMask   mem.SectorMask
	AllocationID int
}

// AccessStatus is the result of TagArray.Access, spec §4.1.
type AccessStatus struct {
	Index     int
	Writeback bool
	Evicted   *EvictedBlock
}

// TagArray is the storage directory of a cache: sets x ways of
// blocks. Built on akitacache.DirectoryImpl purely as typed Tag/
// IsValid/IsDirty storage (the same akitacache.Block the teacher's
// timing/cache.Cache uses) indexed directly by setID*assoc+wayID, with
// set/way selection driven entirely by config.SetIndex -- never by
// DirectoryImpl's own internal address hashing, which has no way to
// learn a cache's configured SetIndexFunction and would otherwise
// desync from it for every hash but Linear. Extended with the richer
// per-block state spec §3 requires.
type TagArray struct {
	numSets   int
	assoc     int
	blockSize int
	sectored  bool
	repl      config.ReplacementPolicy
	setIndex  config.SetIndexFunction

	directory *akitacache.DirectoryImpl
	blocks    []*akitacache.Block
	meta      []blockMeta

	clock       uint64
	insertClock uint64

	numDirty      int
	numAccess     uint64
	numMiss       uint64
	numPendingHit uint64
}

// NewTagArray builds a TagArray from a parsed CacheConfig.
func NewTagArray(cfg *config.CacheConfig) *TagArray {
	total := cfg.NumSets * cfg.Assoc
	t := &TagArray{
		numSets:   cfg.NumSets,
		assoc:     cfg.Assoc,
		blockSize: cfg.BlockSize,
		sectored:  cfg.Kind == config.Sector,
		repl:      cfg.Replacement,
		setIndex:  cfg.SetIndexFn,
		directory: akitacache.NewDirectory(cfg.NumSets, cfg.Assoc, cfg.BlockSize, akitacache.NewLRUVictimFinder()),
		blocks:    make([]*akitacache.Block, total),
		meta:      make([]blockMeta, total),
	}
	for _, set := range t.directory.GetSets() {
		for _, b := range set.Blocks {
			t.blocks[b.SetID*t.assoc+b.WayID] = b
		}
	}
	return t
}

// blockAddr truncates addr to this array's line size.
func (t *TagArray) blockAddr(addr uint64) uint64 {
	return addr &^ (uint64(t.blockSize) - 1)
}

// NumDirty returns the number of blocks currently MODIFIED (P2).
func (t *TagArray) NumDirty() int { return t.numDirty }

// NumAccess, NumMiss, NumPendingHit return the running counters.
func (t *TagArray) NumAccess() uint64     { return t.numAccess }
func (t *TagArray) NumMiss() uint64       { return t.numMiss }
func (t *TagArray) NumPendingHit() uint64 { return t.numPendingHit }

// Probe looks up blockAddr without mutating any LRU/FIFO state.
// Spec §4.1.
func (t *TagArray) Probe(blockAddr uint64, fetchID string, isWrite bool, sectorMask mem.SectorMask) (int, ProbeStatus) {
	setID, err := config.SetIndex(t.setIndex, blockAddr, t.blockSize, t.numSets)
	if err != nil {
		return -1, Miss
	}

	idx := t.findWay(setID, blockAddr)
	if idx < 0 {
		if t.allWaysReservedInSet(setID) {
			return -1, ReservationFail
		}
		return -1, Miss
	}

	m := &t.meta[idx]

	switch m.status {
	case Reserved:
		return idx, HitReserved
	case Valid, Modified:
		if t.sectored && !t.sectorsReadable(idx, sectorMask) {
			return idx, SectorMiss
		}
		return idx, Hit
	default:
		return -1, Miss
	}
}

// findWay scans setID's ways for a non-INVALID block tagged blockAddr,
// the sole lookup path TagArray uses -- set membership always comes
// from config.SetIndex, so FermiHash/IPolyHash/BitwiseXor caches see
// the same set on lookup that they filled into.
func (t *TagArray) findWay(setID int, blockAddr uint64) int {
	base := setID * t.assoc
	for way := 0; way < t.assoc; way++ {
		idx := base + way
		if t.meta[idx].status == Invalid {
			continue
		}
		if block := t.blocks[idx]; block != nil && block.Tag == blockAddr {
			return idx
		}
	}
	return -1
}

func (t *TagArray) sectorsReadable(idx int, mask mem.SectorMask) bool {
	for i := 0; i < mem.NumSectors; i++ {
		if mask.Has(i) && !t.meta[idx].sectorReadable[i] {
			return false
		}
	}
	return true
}

// allWaysReservedInSet reports whether every way in setID is currently
// RESERVED, i.e. a MISS there can never find a victim (spec §4.1
// RESERVATION_FAIL).
func (t *TagArray) allWaysReservedInSet(setID int) bool {
	for way := 0; way < t.assoc; way++ {
		idx := setID*t.assoc + way
		if t.meta[idx].status != Reserved {
			return false
		}
	}
	return true
}

// findVictimInSet picks a victim way in setID, restricted to ways
// that are not RESERVED, per spec §4.1's replacement procedure.
// Returns -1 if every way is RESERVED.
func (t *TagArray) findVictimInSet(setID int) int {
	best := -1
	var bestKey uint64 = ^uint64(0)
	for way := 0; way < t.assoc; way++ {
		idx := setID*t.assoc + way
		m := &t.meta[idx]
		if m.status == Reserved {
			continue
		}
		if m.status == Invalid {
			return idx
		}
		var key uint64
		switch t.repl {
		case config.FIFO:
			key = m.insertOrder
		default:
			key = m.lastAccess
		}
		if key < bestKey {
			bestKey = key
			best = idx
		}
	}
	return best
}

// blockAt returns the akitacache.Block backing a given linear index.
func (t *TagArray) blockAt(idx int) *akitacache.Block {
	if idx < 0 || idx >= len(t.blocks) {
		return nil
	}
	return t.blocks[idx]
}

// Access applies a non-probe access to blockAddr: updates LRU on a
// hit, or installs a new RESERVED block on a miss, evicting a dirty
// victim if necessary. Spec §4.1.
func (t *TagArray) Access(blockAddr uint64, fetchID string, allocationID int, time uint64) AccessStatus {
	t.numAccess++
	t.clock = time

	setID, err := config.SetIndex(t.setIndex, blockAddr, t.blockSize, t.numSets)
	if err != nil {
		return AccessStatus{Index: -1}
	}

	if idx := t.findWay(setID, blockAddr); idx >= 0 {
		m := &t.meta[idx]
		if m.status == Valid || m.status == Modified {
			m.lastAccess = time
			return AccessStatus{Index: idx}
		}
		if m.status == Reserved {
			return AccessStatus{Index: idx}
		}
	}

	t.numMiss++

	victimIdx := t.findVictimInSet(setID)
	if victimIdx < 0 {
		return AccessStatus{Index: -1}
	}

	status := AccessStatus{Index: victimIdx}
	m := &t.meta[victimIdx]
	victimBlock := t.blockAt(victimIdx)

	if m.status != Invalid && victimBlock != nil {
		evicted := &EvictedBlock{
			BlockAddr:    victimBlock.Tag,
			AllocationID: m.allocationID,
			ByteMask:     m.dirtyByteMask,
		}
		if t.sectored {
			for i := 0; i < mem.NumSectors; i++ {
				if m.sectorReadable[i] {
					evicted.SectorMask.Set(i)
				}
			}
		}
		status.Evicted = evicted

		if m.status == Modified {
			status.Writeback = true
			t.numDirty--
		}
	}

	if victimBlock != nil {
		victimBlock.Tag = blockAddr
		victimBlock.IsValid = false
		victimBlock.IsDirty = false
	}

	t.insertClock++
	*m = blockMeta{
		status:          Reserved,
		reservedFetchID: fetchID,
		allocationID:    allocationID,
		lastAccess:      time,
		insertOrder:     t.insertClock,
	}

	return status
}

// Fill transitions a RESERVED block to VALID (or MODIFIED if a
// pending atomic write was recorded against it), marking the sectors
// named by sectorMask readable. Spec §4.1.
func (t *TagArray) Fill(idx int, sectorMask mem.SectorMask, hadAtomic bool, time uint64) {
	if idx < 0 || idx >= len(t.meta) {
		return
	}
	m := &t.meta[idx]
	if m.status != Reserved {
		return
	}

	for i := 0; i < mem.NumSectors; i++ {
		if sectorMask.Has(i) || !t.sectored {
			m.sectorReadable[i] = true
		}
	}

	if hadAtomic {
		m.status = Modified
		t.numDirty++
	} else {
		m.status = Valid
	}
	m.lastAccess = time

	block := t.blockAt(idx)
	if block != nil {
		block.IsValid = true
		block.IsDirty = hadAtomic
	}
}

// MarkModified marks an already-VALID/MODIFIED block MODIFIED,
// recording the written byte mask and recomputing sector-readable
// bits (write_hit WRITE_BACK path, spec §4.4). Returns true if the
// block transitioned from clean to dirty (for dirty-counter/B4
// bookkeeping).
func (t *TagArray) MarkModified(idx int, written mem.ByteMask, time uint64) bool {
	m := &t.meta[idx]
	wasClean := m.status != Modified
	if wasClean {
		t.numDirty++
	}
	m.status = Modified
	m.dirtyByteMask[0] |= written[0]
	m.dirtyByteMask[1] |= written[1]
	m.lastAccess = time

	if t.sectored {
		for i := 0; i < mem.NumSectors; i++ {
			var window mem.ByteMask
			window.SetRange(i*mem.SectorSize, mem.SectorSize)
			if m.dirtyByteMask.Intersect(window) == window {
				m.sectorReadable[i] = true
			}
		}
	}

	block := t.blockAt(idx)
	if block != nil {
		block.IsDirty = true
	}
	return wasClean
}

// Invalidate marks idx's block INVALID without writeback.
func (t *TagArray) Invalidate(idx int) {
	m := &t.meta[idx]
	if m.status == Modified {
		t.numDirty--
	}
	*m = blockMeta{}
	block := t.blockAt(idx)
	if block != nil {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Status returns the current BlockStatus at idx.
func (t *TagArray) Status(idx int) BlockStatus {
	if idx < 0 || idx >= len(t.meta) {
		return Invalid
	}
	return t.meta[idx].status
}

// AllocationID returns the allocation owner recorded for idx.
func (t *TagArray) AllocationID(idx int) int { return t.meta[idx].allocationID }

// Flush invalidates all blocks, returning the number of evicted dirty
// lines (spec §4.1, P6: a subsequent probe of any resident address
// then returns MISS).
func (t *TagArray) Flush() int {
	evicted := 0
	for i := range t.meta {
		if t.meta[i].status == Modified {
			evicted++
		}
	}
	for _, set := range t.directory.GetSets() {
		for _, b := range set.Blocks {
			b.IsValid = false
			b.IsDirty = false
		}
	}
	for i := range t.meta {
		t.meta[i] = blockMeta{}
	}
	t.numDirty = 0
	t.numAccess = 0
	t.numMiss = 0
	t.numPendingHit = 0
	return evicted
}

// InvalidateAll clears all block state without writeback, unlike
// Flush which reports dirty lines for the caller to write back
// itself. Spec §4.1.
func (t *TagArray) InvalidateAll() {
	for _, set := range t.directory.GetSets() {
		for _, b := range set.Blocks {
			b.IsValid = false
			b.IsDirty = false
		}
	}
	for i := range t.meta {
		t.meta[i] = blockMeta{}
	}
	t.numDirty = 0
	t.numAccess = 0
	t.numMiss = 0
	t.numPendingHit = 0
}
