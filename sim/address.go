package sim

import "github.com/sarchlab/m2gpusim/mem"

// addressDecoder derives the routing fields an interconnect/DRAM
// collaborator needs from a raw request address: which sub-partition
// owns the address's channel, and which bank/row within that channel.
// Spec §6 leaves memory partition indexing to an external address
// decoder; this is a fixed, reversible block-interleaved mapping good
// enough to drive the reference interconnect/DRAM models.
type addressDecoder struct {
	numBanks int
}

const lineSize = 128

func blockIndex(addr uint64) uint64 { return addr / lineSize }

// decode stamps a fetch's PartitionAddr and Physical fields from its
// access address. Called once, on the fetch leaving an L1 toward the
// interconnect; sub-requests derived from it via MemFetch.SubRequest
// inherit these fields unchanged.
func (d addressDecoder) decode(f *mem.MemFetch) {
	idx := blockIndex(f.Access.Address)
	f.PartitionAddr = idx

	banks := d.numBanks
	if banks <= 0 {
		banks = 1
	}
	f.Physical = mem.PhysicalAddress{
		Bank: uint32(idx % uint64(banks)),
		Row:  uint32(idx / uint64(banks)),
	}
}
