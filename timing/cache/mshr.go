package cache

import "github.com/sarchlab/m2gpusim/mem"

// mshrEntry merges outstanding misses that target the same line.
// Spec §4.2/§3 MSHREntry.
type mshrEntry struct {
	lineAddr  uint64
	fetches   []*mem.MemFetch
	ready     bool
	hasAtomic bool
}

// MSHRTable merges outstanding misses targeting the same line, per
// spec §4.2. The teacher's simple Cache has no MSHR equivalent (one
// in-flight miss at a time); this is built directly from spec §4.2's
// procedure and the original's merge-table references
// (_examples/original_source/src/cache/data.rs).
type MSHRTable struct {
	maxEntries int
	maxMerge   int

	// order preserves FIFO entry order for deterministic has_ready
	// iteration (spec §5 L4 determinism).
	order   []uint64
	entries map[uint64]*mshrEntry
}

// NewMSHRTable builds an MSHRTable bounded by (entries, maxMerge).
func NewMSHRTable(entries, maxMerge int) *MSHRTable {
	return &MSHRTable{
		maxEntries: entries,
		maxMerge:   maxMerge,
		entries:    make(map[uint64]*mshrEntry),
	}
}

// Probe reports whether an entry exists for lineAddr.
func (t *MSHRTable) Probe(lineAddr uint64) bool {
	_, ok := t.entries[lineAddr]
	return ok
}

// Full reports whether adding to lineAddr would exceed limits: the
// total-entries limit for a new line, or the per-entry merge limit
// for an existing one. Spec §4.2.
func (t *MSHRTable) Full(lineAddr uint64) bool {
	if e, ok := t.entries[lineAddr]; ok {
		return len(e.fetches) >= t.maxMerge
	}
	return len(t.entries) >= t.maxEntries
}

// Add creates or appends an entry for lineAddr with fetch, preserving
// insertion order within the entry (spec §5: "MSHR-merged requests are
// served in insertion order").
func (t *MSHRTable) Add(lineAddr uint64, fetch *mem.MemFetch) {
	e, ok := t.entries[lineAddr]
	if !ok {
		e = &mshrEntry{lineAddr: lineAddr}
		t.entries[lineAddr] = e
		t.order = append(t.order, lineAddr)
	}
	e.fetches = append(e.fetches, fetch)
	if fetch.Access.IsWrite && isAtomicKind(fetch.Access.Kind) {
		e.hasAtomic = true
	}
}

// isAtomicKind reports whether an access kind represents an atomic
// read-modify-write. Global/local reads issued with IsWrite set model
// atomics in this trace-driven simulator (spec leaves atomics as a
// flag on otherwise-ordinary read accesses, per §4.4's "atomics").
func isAtomicKind(k mem.AccessKind) bool {
	return k == mem.GlobalRead || k == mem.LocalRead
}

// MarkReady flips lineAddr's ready flag once its fill has arrived,
// returning whether any merged fetch was atomic. Spec §4.2.
func (t *MSHRTable) MarkReady(lineAddr uint64) (hasAtomic bool) {
	e, ok := t.entries[lineAddr]
	if !ok {
		return false
	}
	e.ready = true
	return e.hasAtomic
}

// NextAccess pops one merged fetch from the front of a ready entry,
// dropping the entry once it is empty. Spec §4.2.
func (t *MSHRTable) NextAccess() *mem.MemFetch {
	for _, lineAddr := range t.order {
		e, ok := t.entries[lineAddr]
		if !ok || !e.ready || len(e.fetches) == 0 {
			continue
		}
		fetch := e.fetches[0]
		e.fetches = e.fetches[1:]
		if len(e.fetches) == 0 {
			delete(t.entries, lineAddr)
			t.removeOrder(lineAddr)
		}
		return fetch
	}
	return nil
}

func (t *MSHRTable) removeOrder(lineAddr uint64) {
	for i, a := range t.order {
		if a == lineAddr {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}

// HasReadyAccesses reports whether any entry is ready with fetches
// remaining.
func (t *MSHRTable) HasReadyAccesses() bool {
	for _, lineAddr := range t.order {
		if e := t.entries[lineAddr]; e != nil && e.ready && len(e.fetches) > 0 {
			return true
		}
	}
	return false
}

// NumEntries returns the current entry count, for P3.
func (t *MSHRTable) NumEntries() int { return len(t.entries) }

// MergeCount returns the number of fetches merged into lineAddr's
// entry, for P3.
func (t *MSHRTable) MergeCount(lineAddr uint64) int {
	if e, ok := t.entries[lineAddr]; ok {
		return len(e.fetches)
	}
	return 0
}
