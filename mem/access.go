// Package mem defines the memory-access and in-flight-request types
// shared by the cache hierarchy and the memory sub-partition.
package mem

import "fmt"

// AccessKind classifies a MemAccess by the memory space and direction
// it targets.
type AccessKind int

// Access kinds, per spec §3.
const (
	GlobalRead AccessKind = iota
	GlobalWrite
	LocalRead
	LocalWrite
	ConstRead
	TexRead
	InstRead
	L1Writeback
	L2Writeback
	L1WriteAllocateRead
	L2WriteAllocateRead
)

func (k AccessKind) String() string {
	switch k {
	case GlobalRead:
		return "GLOBAL_R"
	case GlobalWrite:
		return "GLOBAL_W"
	case LocalRead:
		return "LOCAL_R"
	case LocalWrite:
		return "LOCAL_W"
	case ConstRead:
		return "CONST_R"
	case TexRead:
		return "TEX_R"
	case InstRead:
		return "INST_R"
	case L1Writeback:
		return "L1_WRBK"
	case L2Writeback:
		return "L2_WRBK"
	case L1WriteAllocateRead:
		return "L1_WR_ALLOC_R"
	case L2WriteAllocateRead:
		return "L2_WR_ALLOC_R"
	default:
		return "UNKNOWN"
	}
}

// IsWriteback reports whether this kind is accounting-only traffic
// that the interconnect must silently discard on the way back to a
// core (spec §4.8 pop()/top()).
func (k AccessKind) IsWriteback() bool {
	return k == L1Writeback || k == L2Writeback
}

// NumSectors is the number of 32-byte sectors per cache line (spec §6,
// glossary "Sector"); named after the original's
// mem_sub_partition.rs::NUM_SECTORS constant.
const NumSectors = 4

// SectorSize is the size in bytes of one sector.
const SectorSize = 32

// MaxAccessSize is the largest request size a MemAccess may carry
// (spec §3 invariant, §7 fatal-if-exceeded).
const MaxAccessSize = 128

// ByteMask is a 128-bit per-byte mask, modeled as two uint64 words
// rather than math/big, matching the teacher's preference for
// fixed-width register state (emu.RegFile) over general containers.
type ByteMask [2]uint64

// SetRange marks bytes [start, start+size) as set.
func (m *ByteMask) SetRange(start, size int) {
	for i := start; i < start+size && i < 128; i++ {
		m[i/64] |= 1 << uint(i%64)
	}
}

// Intersect returns the bitwise AND of two byte masks.
func (m ByteMask) Intersect(o ByteMask) ByteMask {
	return ByteMask{m[0] & o[0], m[1] & o[1]}
}

// IsZero reports whether no byte is set.
func (m ByteMask) IsZero() bool {
	return m[0] == 0 && m[1] == 0
}

// SectorMask is a 4-bit mask, one bit per 32-byte sector of a line.
type SectorMask uint8

// Set sets sector bit i.
func (m *SectorMask) Set(i int) { *m |= SectorMask(1 << uint(i)) }

// Has reports whether sector bit i is set.
func (m SectorMask) Has(i int) bool { return m&(1<<uint(i)) != 0 }

// PopCount returns the number of set sector bits.
func (m SectorMask) PopCount() int {
	n := 0
	for i := 0; i < NumSectors; i++ {
		if m.Has(i) {
			n++
		}
	}
	return n
}

// AllSet reports whether every sector bit is set.
func (m SectorMask) AllSet() bool { return m == (1<<NumSectors)-1 }

// WarpMask is the 32-lane active-thread / participating-warp mask.
type WarpMask uint32

// MemAccess describes one logical memory request issued by a warp
// instruction, before it is broken into per-sector sub-requests.
// Spec §3.
type MemAccess struct {
	Address         uint64
	RequestSize     int
	ByteMask        ByteMask
	SectorMask      SectorMask
	WarpMask        WarpMask
	Kind            AccessKind
	IsWrite         bool
	AllocationID    int
	WarpID          int
	CoreID          int
	ClusterID       int
}

// Validate enforces the spec §3 invariants that are cheap to check at
// construction time. Violations are configuration/trace mismatches
// and must abort per spec §7, never be silently downgraded.
func (a *MemAccess) Validate(sectored bool) error {
	if a.RequestSize > MaxAccessSize {
		return fmt.Errorf("mem: access request_size %d exceeds max %d", a.RequestSize, MaxAccessSize)
	}
	if sectored && a.SectorMask == 0 {
		return fmt.Errorf("mem: sectored access at 0x%x has empty sector_mask", a.Address)
	}
	return nil
}

// BlockAddress returns the address truncated to a line of the given
// size (spec L2: block_addr(addr) == block_addr(block_addr(addr))).
func BlockAddress(addr uint64, lineSize int) uint64 {
	return addr &^ (uint64(lineSize) - 1)
}

// SectorIndex returns which 32-byte sector within its line an address
// falls into.
func SectorIndex(addr uint64) int {
	return int((addr % 128) / SectorSize)
}

// Breakdown splits a MemAccess into per-sector sub-accesses following
// the sector rules of spec §6. MemorySubPartition.Push applies it to
// every fetch it admits, whatever kind of L2 sits behind it.
func Breakdown(a MemAccess) ([]MemAccess, error) {
	if a.RequestSize > MaxAccessSize {
		return nil, fmt.Errorf("mem: breakdown request_size %d exceeds max %d", a.RequestSize, MaxAccessSize)
	}

	base := BlockAddress(a.Address, 128)

	switch {
	case a.RequestSize == 32 && a.SectorMask.PopCount() == 1:
		return []MemAccess{a}, nil

	case a.RequestSize == 128:
		out := make([]MemAccess, 0, NumSectors)
		for i := 0; i < NumSectors; i++ {
			var window ByteMask
			window.SetRange(i*SectorSize, SectorSize)
			sub := a
			sub.Address = base + uint64(i*SectorSize)
			sub.RequestSize = SectorSize
			sub.ByteMask = a.ByteMask.Intersect(window)
			sub.SectorMask = 0
			sub.SectorMask.Set(i)
			out = append(out, sub)
		}
		return out, nil

	case a.RequestSize == 64 && (a.SectorMask.AllSet() || a.SectorMask == 0):
		start := 0
		if a.Address%128 != 0 {
			start = 2
		}
		out := make([]MemAccess, 0, 2)
		for i := start; i < start+2; i++ {
			var window ByteMask
			window.SetRange(i*SectorSize, SectorSize)
			sub := a
			sub.Address = base + uint64(i*SectorSize)
			sub.RequestSize = SectorSize
			sub.ByteMask = a.ByteMask.Intersect(window)
			sub.SectorMask = 0
			sub.SectorMask.Set(i)
			out = append(out, sub)
		}
		return out, nil

	default:
		out := make([]MemAccess, 0, NumSectors)
		for i := 0; i < NumSectors; i++ {
			if !a.SectorMask.Has(i) {
				continue
			}
			var window ByteMask
			window.SetRange(i*SectorSize, SectorSize)
			sub := a
			sub.Address = base + uint64(i*SectorSize)
			sub.RequestSize = SectorSize
			sub.ByteMask = a.ByteMask.Intersect(window)
			sub.SectorMask = 0
			sub.SectorMask.Set(i)
			out = append(out, sub)
		}
		return out, nil
	}
}
