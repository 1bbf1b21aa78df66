// Package dram models the off-chip DRAM backing store as an external
// collaborator (spec.md §1 scopes its internals out, specifying only
// its push/pop interface toward the memory sub-partitions). This is a
// minimal reference implementation: a per-bank row buffer with an
// FR-FCFS scheduler, grounded on the original's
// dram_scheduler/TimingOptions surface.
package dram

import "github.com/sarchlab/m2gpusim/mem"

// SchedulerKind selects the bank scheduler's request ordering.
type SchedulerKind int

// Scheduler kinds, mirroring the original's DRAMSchedulerKind (0 =
// FIFO, 1 = FR-FCFS).
const (
	FIFO SchedulerKind = iota
	FRFCFS
)

// Config bundles the per-bank timing and queueing parameters.
type Config struct {
	NumBanks int
	// RowHitLatency is the response delay when a request targets the
	// bank's currently open row (no activate/precharge needed).
	RowHitLatency uint64
	// RowMissLatency is the response delay when the bank must close
	// the open row and activate a new one first.
	RowMissLatency uint64
	QueueSize      int
	Scheduler      SchedulerKind
}

type pendingRequest struct {
	fetch      *mem.MemFetch
	row        uint32
	readyCycle uint64
	scheduled  bool
}

type bank struct {
	openRow   uint32
	hasOpen   bool
	queue     []*pendingRequest
	queueSize int
}

func (b *bank) full() bool { return len(b.queue) >= b.queueSize }

// DRAM is a fixed number of independently-scheduled banks plus a
// shared completion FIFO the caller drains in arrival order.
type DRAM struct {
	banks     []*bank
	scheduler SchedulerKind
	rowHit    uint64
	rowMiss   uint64
	done      []*mem.MemFetch
}

// NewDRAM builds a DRAM model from cfg.
func NewDRAM(cfg Config) *DRAM {
	d := &DRAM{scheduler: cfg.Scheduler, rowHit: cfg.RowHitLatency, rowMiss: cfg.RowMissLatency}
	d.banks = make([]*bank, cfg.NumBanks)
	for i := range d.banks {
		d.banks[i] = &bank{queueSize: cfg.QueueSize}
	}
	return d
}

func (d *DRAM) bankFor(fetch *mem.MemFetch) int {
	if len(d.banks) == 0 {
		return 0
	}
	return int(fetch.Physical.Bank) % len(d.banks)
}

// Push admits fetch into its target bank's queue, false if full (spec
// §4.8 stepDRAMToL2's downstream-push-fails-means-stall contract
// extends one hop further here).
func (d *DRAM) Push(fetch *mem.MemFetch, now uint64) bool {
	b := d.banks[d.bankFor(fetch)]
	if b.full() {
		return false
	}
	b.queue = append(b.queue, &pendingRequest{fetch: fetch, row: fetch.Physical.Row})
	return true
}

// Cycle schedules one ready request per bank and advances completion
// timers. A FIFO scheduler always picks the queue head; FR-FCFS
// prefers any queued request that hits the bank's open row over the
// head, mirroring row-buffer locality exploitation.
func (d *DRAM) Cycle(now uint64) {
	for _, b := range d.banks {
		d.scheduleBank(b, now)
	}
	d.collectCompletions(now)
}

func (d *DRAM) scheduleBank(b *bank, now uint64) {
	idx := d.pickRequest(b)
	if idx < 0 {
		return
	}
	req := b.queue[idx]
	if req.scheduled {
		return
	}

	latency := d.rowMiss
	if b.hasOpen && b.openRow == req.row {
		latency = d.rowHit
	}
	b.openRow = req.row
	b.hasOpen = true

	req.scheduled = true
	req.readyCycle = now + latency
}

// pickRequest returns the index of the next request to schedule, or
// -1 if none is eligible (all already scheduled, or queue empty).
func (d *DRAM) pickRequest(b *bank) int {
	if d.scheduler == FRFCFS && b.hasOpen {
		for i, req := range b.queue {
			if !req.scheduled && req.row == b.openRow {
				return i
			}
		}
	}
	for i, req := range b.queue {
		if !req.scheduled {
			return i
		}
	}
	return -1
}

func (d *DRAM) collectCompletions(now uint64) {
	for _, b := range d.banks {
		kept := b.queue[:0]
		for _, req := range b.queue {
			if req.scheduled && req.readyCycle <= now {
				req.fetch.IsReply = true
				d.done = append(d.done, req.fetch)
				continue
			}
			kept = append(kept, req)
		}
		b.queue = kept
	}
}

// HasAnyPending reports whether any bank queue or completion slot
// still holds a request, used by the driver's quiescence check.
func (d *DRAM) HasAnyPending() bool {
	if len(d.done) > 0 {
		return true
	}
	for _, b := range d.banks {
		if len(b.queue) > 0 {
			return true
		}
	}
	return false
}

// HasCompletion reports whether a response is ready to be popped.
func (d *DRAM) HasCompletion() bool { return len(d.done) > 0 }

// PeekCompletion returns the oldest completed fetch without removing
// it, so a caller can confirm the destination has room before
// committing to PopCompletion.
func (d *DRAM) PeekCompletion() *mem.MemFetch {
	if len(d.done) == 0 {
		return nil
	}
	return d.done[0]
}

// PopCompletion removes and returns the oldest completed fetch.
func (d *DRAM) PopCompletion() *mem.MemFetch {
	if len(d.done) == 0 {
		return nil
	}
	f := d.done[0]
	d.done = d.done[1:]
	return f
}
