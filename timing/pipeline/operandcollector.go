package pipeline

// CollectorUnitSet names a group of collector units, spec §4.5.
type CollectorUnitSet int

// Collector unit sets.
const (
	SetSP CollectorUnitSet = iota
	SetDP
	SetSFU
	SetINT
	SetMEM
	SetTENSOR
	SetGEN
)

// collectorUnit holds one in-flight instruction's operand-collection
// state: which of its source banks are still outstanding
// (notReadyMask bit i == source i not yet read).
type collectorUnit struct {
	set          CollectorUnitSet
	busy         bool
	inst         *WarpInstruction
	notReadyMask uint32
}

func (c *collectorUnit) allReady() bool { return c.busy && c.notReadyMask == 0 }

// InputPort feeds one or more collector-unit sets from one pipeline
// stage's register set.
type InputPort struct {
	Source *RegisterSet
	Sets   []CollectorUnitSet
}

// OutputPort is where a dispatched collector unit's instruction is
// written, into one downstream pipeline register set.
type OutputPort struct {
	Dest *RegisterSet
	Set  CollectorUnitSet
}

// OperandCollector is the bank-arbitrated register-file read stage,
// spec §4.5. Grounded on
// _examples/original_source/playground/src/collector_unit.rs's
// CollectorUnit/InputPort/Arbiter naming and round-robin dispatch
// shape; the teacher has no equivalent (its register reads are
// unconditional in timing/pipeline/stages.go's DecodeStage).
type OperandCollector struct {
	numBanks int
	units    []*collectorUnit

	inputs  []InputPort
	outputs []OutputPort

	dispatchCursor int
	bankCursor     int

	subCoreMode bool
}

// NewOperandCollector builds an OperandCollector with the given
// number of collector units (spread across the sets named in
// unitSets) and register-file banks.
func NewOperandCollector(unitSets []CollectorUnitSet, numBanks int, subCoreMode bool) *OperandCollector {
	oc := &OperandCollector{numBanks: numBanks, subCoreMode: subCoreMode}
	for _, set := range unitSets {
		oc.units = append(oc.units, &collectorUnit{set: set})
	}
	return oc
}

// AddInputPort registers an input port feeding the given collector
// unit sets.
func (oc *OperandCollector) AddInputPort(source *RegisterSet, sets ...CollectorUnitSet) {
	oc.inputs = append(oc.inputs, InputPort{Source: source, Sets: sets})
}

// AddOutputPort registers an output port for the given set, writing
// into dest.
func (oc *OperandCollector) AddOutputPort(dest *RegisterSet, set CollectorUnitSet) {
	oc.outputs = append(oc.outputs, OutputPort{Dest: dest, Set: set})
}

// Cycle runs the three-phase per-cycle procedure of spec §4.5: (1)
// dispatch ready units to their output port, (2) allocate bank reads
// for busy units' outstanding operands, (3) allocate new units from
// input ports.
func (oc *OperandCollector) Cycle(schedulerID int) {
	oc.dispatch(schedulerID)
	oc.allocateReads()
	oc.allocateUnits(schedulerID)
}

// dispatch scans collector units round-robin and moves any unit whose
// reads have all completed to its output port, if that port's slot is
// free.
func (oc *OperandCollector) dispatch(schedulerID int) {
	n := len(oc.units)
	if n == 0 {
		return
	}
	for i := 0; i < n; i++ {
		idx := (oc.dispatchCursor + i) % n
		u := oc.units[idx]
		if !u.allReady() {
			continue
		}
		for _, out := range oc.outputs {
			if out.Set != u.set {
				continue
			}
			if out.Dest.MoveIn(u.inst, schedulerID) {
				u.busy = false
				u.inst = nil
				oc.dispatchCursor = (idx + 1) % n
				break
			}
		}
	}
}

// allocateReads requests a bank read for each un-allocated operand of
// each busy unit; each bank grants at most one read per cycle,
// breaking ties by round-robin over requesting units.
func (oc *OperandCollector) allocateReads() {
	bankGranted := make(map[int]bool, oc.numBanks)
	n := len(oc.units)
	for i := 0; i < n; i++ {
		idx := (oc.bankCursor + i) % n
		u := oc.units[idx]
		if !u.busy || u.notReadyMask == 0 {
			continue
		}
		for bit := 0; bit < 32; bit++ {
			if u.notReadyMask&(1<<uint(bit)) == 0 {
				continue
			}
			bank := oc.bankOf(u.inst.SrcRegs, bit)
			if bankGranted[bank] {
				continue
			}
			bankGranted[bank] = true
			u.notReadyMask &^= 1 << uint(bit)
		}
	}
	oc.bankCursor = (oc.bankCursor + 1) % maxInt(n, 1)
}

func (oc *OperandCollector) bankOf(srcs []OperandBank, i int) int {
	if i >= len(srcs) || oc.numBanks == 0 {
		return 0
	}
	return int(srcs[i]) % oc.numBanks
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// allocateUnits moves a ready upstream instruction into a free
// collector unit of its own category's set when the input port is
// configured with that set, otherwise of any of the port's sets.
func (oc *OperandCollector) allocateUnits(schedulerID int) {
	for _, in := range oc.inputs {
		idx := schedulerID
		if !oc.subCoreMode {
			idx = -1
		}
		slotIdx := in.Source.ReadySlot(idx)
		if slotIdx < 0 {
			continue
		}
		inst := in.Source.At(slotIdx)
		if inst == nil {
			continue
		}

		// SetSP..SetTENSOR follow the order of FunctionalUnitKind, so an
		// instruction's category names its own set.
		sets := in.Sets
		for _, s := range in.Sets {
			if s == CollectorUnitSet(inst.OpCategory) {
				sets = []CollectorUnitSet{s}
				break
			}
		}
		unit := oc.freeUnitFor(sets)
		if unit == nil {
			continue
		}

		in.Source.Clear(slotIdx)
		unit.busy = true
		unit.inst = inst
		unit.notReadyMask = 0
		for i := range inst.SrcRegs {
			unit.notReadyMask |= 1 << uint(i)
		}
	}
}

func (oc *OperandCollector) freeUnitFor(sets []CollectorUnitSet) *collectorUnit {
	for _, u := range oc.units {
		if u.busy {
			continue
		}
		for _, s := range sets {
			if u.set == s {
				return u
			}
		}
	}
	return nil
}
