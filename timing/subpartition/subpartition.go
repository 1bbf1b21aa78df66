// Package subpartition implements the memory sub-partition: the ROP
// delay queue, the four bounded interconnect/DRAM FIFOs, the L2 data
// cache, and the request tracker that together move a MemFetch from
// the interconnect down to DRAM and back. Spec.md §4.8. Grounded on
// _examples/original_source/src/mem_sub_partition.rs.
package subpartition

import (
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/cache"
)

// boundedFIFO is a fixed-capacity FIFO of in-flight fetches.
type boundedFIFO struct {
	items []*mem.MemFetch
	cap   int
}

func newBoundedFIFO(capacity int) *boundedFIFO {
	return &boundedFIFO{cap: capacity}
}

func (f *boundedFIFO) HasRoom() bool { return len(f.items) < f.cap }
func (f *boundedFIFO) Len() int      { return len(f.items) }
func (f *boundedFIFO) Top() *mem.MemFetch {
	if len(f.items) == 0 {
		return nil
	}
	return f.items[0]
}
func (f *boundedFIFO) Pop() *mem.MemFetch {
	if len(f.items) == 0 {
		return nil
	}
	head := f.items[0]
	f.items = f.items[1:]
	return head
}
func (f *boundedFIFO) Push(fetch *mem.MemFetch) bool {
	if !f.HasRoom() {
		return false
	}
	f.items = append(f.items, fetch)
	return true
}

// ropEntry is one fetch waiting in the ROP delay queue, spec §4.8
// push()'s "push onto ROP queue with ready_cycle = now +
// l2_rop_latency".
type ropEntry struct {
	readyCycle uint64
	fetch      *mem.MemFetch
}

// MemorySubPartition is one DRAM channel's L2 slice plus its
// surrounding queues. Spec §4.8.
type MemorySubPartition struct {
	ID int

	icntToL2 *boundedFIFO
	l2ToDRAM *boundedFIFO
	dramToL2 *boundedFIFO
	l2ToICNT *boundedFIFO

	rop       []ropEntry
	ropLatency uint64

	L2 *cache.DataCache

	requestTracker     map[string]*mem.MemFetch
	numPendingRequests int
}

// Sizes bundles the four bounded-FIFO capacities, spec §2's "four
// bounded FIFOs (capacities from config)".
type Sizes struct {
	ICNTToL2 int
	L2ToDRAM int
	DRAMToL2 int
	L2ToICNT int
}

// l2DownstreamPort adapts a MemorySubPartition's l2-to-dram FIFO to
// the cache.DownstreamPort interface the L2's own BaseCache drains its
// internal miss queue into (spec §4.3 cycle()).
type l2DownstreamPort struct{ fifo *boundedFIFO }

func (d l2DownstreamPort) Push(f *mem.MemFetch) bool { return d.fifo.Push(f) }

// NewMemorySubPartition builds a MemorySubPartition. l2 may be nil to
// model an L2-disabled configuration (spec §4.8 step 4's "if L2 is
// enabled"). If non-nil, l2's downstream port is rewired to this
// sub-partition's l2-to-dram queue regardless of what it was
// constructed with, since only the owning sub-partition can supply
// that queue.
func NewMemorySubPartition(id int, sizes Sizes, ropLatency uint64, l2 *cache.DataCache) *MemorySubPartition {
	p := &MemorySubPartition{
		ID:             id,
		icntToL2:       newBoundedFIFO(sizes.ICNTToL2),
		l2ToDRAM:       newBoundedFIFO(sizes.L2ToDRAM),
		dramToL2:       newBoundedFIFO(sizes.DRAMToL2),
		l2ToICNT:       newBoundedFIFO(sizes.L2ToICNT),
		ropLatency:     ropLatency,
		L2:             l2,
		requestTracker: make(map[string]*mem.MemFetch),
	}
	if l2 != nil {
		l2.Downstream = l2DownstreamPort{p.l2ToDRAM}
	}
	return p
}

// Push implements spec §4.8 push(fetch, time): breaks fetch into up to
// NUM_SECTORS sub-requests and routes each either directly to
// icnt→L2 (texture accesses) or through the ROP delay queue.
func (p *MemorySubPartition) Push(fetch *mem.MemFetch, now uint64) error {
	subs, err := mem.Breakdown(fetch.Access)
	if err != nil {
		return err
	}
	for _, access := range subs {
		sub := fetch.SubRequest(access)
		p.track(sub)

		if access.Kind == mem.TexRead {
			p.icntToL2.Push(sub)
			continue
		}
		p.rop = append(p.rop, ropEntry{readyCycle: now + p.ropLatency, fetch: sub})
	}
	return nil
}

func (p *MemorySubPartition) track(fetch *mem.MemFetch) {
	p.requestTracker[fetch.ID] = fetch
	p.numPendingRequests++
}

func (p *MemorySubPartition) untrack(fetch *mem.MemFetch) {
	if _, ok := p.requestTracker[fetch.ID]; ok {
		delete(p.requestTracker, fetch.ID)
		p.numPendingRequests--
	}
}

// NumPendingRequests returns the in-flight request count, used by an
// optional deadlock watchdog (spec §5).
func (p *MemorySubPartition) NumPendingRequests() int { return p.numPendingRequests }

// Cycle implements spec §4.8 cycle(now)'s five steps, in order.
func (p *MemorySubPartition) Cycle(now uint64) {
	p.stepL2FillResponse()
	p.stepDRAMToL2()
	if p.L2 != nil {
		p.L2.Cycle()
	}
	p.stepNewL2Access(now)
	p.stepROPDrain(now)
}

// stepL2FillResponse is step 1: if L2's MSHR has a ready access and
// L2→icnt has room, pop it; an L2_WR_ALLOC_R fetch short-circuits to
// its original writer (mem.MemFetch.WriteAllocateShortCircuit, spec
// §9 design note) instead of replying to the requesting core.
func (p *MemorySubPartition) stepL2FillResponse() {
	if p.L2 == nil || !p.l2ToICNT.HasRoom() || !p.L2.MSHR.HasReadyAccesses() {
		return
	}
	fetch := p.L2.MSHR.NextAccess()
	if fetch == nil {
		return
	}

	if fetch.Access.Kind == mem.L2WriteAllocateRead && fetch.WriteAllocateShortCircuit {
		if orig := fetch.OriginalFetch; orig != nil {
			orig.IsReply = true
			p.deliver(orig)
			return
		}
	}

	fetch.IsReply = true
	p.deliver(fetch)
}

// stepDRAMToL2 is step 2: hand the head of dram→L2 to L2.Fill if the
// L2 is waiting for it and has a free fill port; otherwise forward it
// toward the interconnect if room allows, else stall.
func (p *MemorySubPartition) stepDRAMToL2() {
	head := p.dramToL2.Top()
	if head == nil {
		return
	}

	if p.L2 != nil && p.L2.MSHR.Probe(p.L2.BlockAddress(head.Access.Address)) && p.L2.Bandwidth.FillPortFree() {
		p.dramToL2.Pop()
		p.L2.Fill(head.TagIndex, head, 0)
		p.untrack(head)
		return
	}

	if p.l2ToICNT.HasRoom() {
		p.dramToL2.Pop()
		head.IsReply = true
		p.deliver(head)
	}
}

// stepNewL2Access is step 4: admit the head of icnt→L2 into the L2,
// branching on the resulting status.
func (p *MemorySubPartition) stepNewL2Access(now uint64) {
	if !p.l2ToDRAM.HasRoom() {
		return
	}
	head := p.icntToL2.Top()
	if head == nil {
		return
	}
	if p.L2 == nil {
		p.icntToL2.Pop()
		p.l2ToDRAM.Push(head)
		return
	}

	outcome := p.L2.Access(head, now)
	switch outcome.Status {
	case cache.Hit, cache.HitReserved:
		if head.Access.IsWrite || head.Access.Kind.IsWriteback() {
			p.icntToL2.Pop()
			p.untrack(head)
			return
		}
		if !p.l2ToICNT.HasRoom() {
			// leave in place; the access already completed against
			// the cache, so retry here only re-checks queue room.
			return
		}
		p.icntToL2.Pop()
		head.IsReply = true
		p.deliver(head)

	case cache.Miss, cache.SectorMiss:
		p.icntToL2.Pop()

	case cache.ReservationFail:
		// leave in place; retry next cycle.
	}
}

func (p *MemorySubPartition) deliver(fetch *mem.MemFetch) {
	if !p.l2ToICNT.Push(fetch) {
		return
	}
}

// stepROPDrain is step 5: while the ROP head's ready_cycle has
// elapsed and icnt→L2 has room, pop it into icnt→L2.
func (p *MemorySubPartition) stepROPDrain(now uint64) {
	for len(p.rop) > 0 && p.rop[0].readyCycle <= now && p.icntToL2.HasRoom() {
		entry := p.rop[0]
		p.rop = p.rop[1:]
		p.icntToL2.Push(entry.fetch)
	}
}

// Top returns the head of L2→icnt without removing it, silently
// skipping writeback-only entries. Spec §4.8 pop()/top().
func (p *MemorySubPartition) Top() *mem.MemFetch {
	p.skipWritebacks()
	return p.l2ToICNT.Top()
}

// Pop removes and returns the head of L2→icnt, silently discarding
// writeback-only entries first. Spec §4.8 pop()/top().
func (p *MemorySubPartition) Pop() *mem.MemFetch {
	p.skipWritebacks()
	return p.l2ToICNT.Pop()
}

func (p *MemorySubPartition) skipWritebacks() {
	for {
		head := p.l2ToICNT.Top()
		if head == nil || !head.Access.Kind.IsWriteback() {
			return
		}
		p.l2ToICNT.Pop()
		p.untrack(head)
	}
}

// PushFromICNT admits a fetch arriving from the interconnect directly
// into icnt→L2, bypassing Push's sector breakdown; used by callers
// that have already broken the fetch down (e.g. a retried sub-request).
func (p *MemorySubPartition) PushFromICNT(fetch *mem.MemFetch) bool {
	return p.icntToL2.Push(fetch)
}

// PushFromDRAM admits a response arriving from DRAM into dram→L2.
func (p *MemorySubPartition) PushFromDRAM(fetch *mem.MemFetch) bool {
	return p.dramToL2.Push(fetch)
}

// TopToDRAM returns the head of l2→dram without removing it, so a
// caller can confirm the downstream DRAM model has room before
// committing to PopToDRAM.
func (p *MemorySubPartition) TopToDRAM() *mem.MemFetch {
	return p.l2ToDRAM.Top()
}

// PopToDRAM removes and returns the head of l2→dram, for the DRAM
// model to consume.
func (p *MemorySubPartition) PopToDRAM() *mem.MemFetch {
	return p.l2ToDRAM.Pop()
}
