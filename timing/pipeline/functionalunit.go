package pipeline

// FunctionalUnitKind categorizes a functional unit for opcode gating,
// spec §2/§4.7.
type FunctionalUnitKind int

// Functional unit kinds.
const (
	SP FunctionalUnitKind = iota
	DP
	SFU
	INT
	MEM
	TENSOR
)

func (k FunctionalUnitKind) String() string {
	switch k {
	case SP:
		return "SP"
	case DP:
		return "DP"
	case SFU:
		return "SFU"
	case INT:
		return "INT"
	case MEM:
		return "MEM"
	case TENSOR:
		return "TENSOR"
	default:
		return "UNKNOWN"
	}
}

// FunctionalUnit is a fixed-latency pipelined stage modeled as a
// shift register of length Depth, spec §4.7. Generalizes the
// teacher's latency.Table (a pure lookup) into a stage that actually
// holds instructions in flight.
type FunctionalUnit struct {
	Kind  FunctionalUnitKind
	Depth int
	// InitiationInterval is the minimum number of cycles between two
	// accepted issues into this unit.
	InitiationInterval int
	// Stallable marks units (MEM) that stall when their result port
	// is congested; arithmetic units never stall once issued.
	Stallable bool

	slots           []*WarpInstruction
	cyclesSinceIssue int
	resultPortFree  func() bool
}

// NewFunctionalUnit builds a FunctionalUnit. resultPortFree should
// return true when the downstream result register set has room; pass
// nil for unstallable arithmetic units.
func NewFunctionalUnit(kind FunctionalUnitKind, depth, initiationInterval int, stallable bool, resultPortFree func() bool) *FunctionalUnit {
	return &FunctionalUnit{
		Kind:               kind,
		Depth:              depth,
		InitiationInterval: initiationInterval,
		Stallable:          stallable,
		slots:              make([]*WarpInstruction, depth),
		cyclesSinceIssue:   initiationInterval,
		resultPortFree:     resultPortFree,
	}
}

// CanIssue gates by opcode category: this unit only accepts
// instructions whose OpCategory matches its Kind, and only if the
// initiation interval since the last accepted issue has elapsed and
// stage 0 is free. Spec §4.7.
func (u *FunctionalUnit) CanIssue(inst *WarpInstruction) bool {
	if inst.OpCategory != u.Kind {
		return false
	}
	if u.slots[0] != nil {
		return false
	}
	return u.cyclesSinceIssue >= u.InitiationInterval
}

// Issue places inst at stage 0, provided CanIssue(inst) holds.
// Returns false otherwise.
func (u *FunctionalUnit) Issue(inst *WarpInstruction) bool {
	if !u.CanIssue(inst) {
		return false
	}
	u.slots[0] = inst
	u.cyclesSinceIssue = 0
	return true
}

// Cycle advances the shift register by one stage. If the unit is
// stallable and its result port is congested, the whole pipeline
// holds in place (the oldest instruction is not retired) per spec
// §4.7; otherwise the instruction at the last stage is returned for
// writeback and every slot shifts down by one.
func (u *FunctionalUnit) Cycle() *WarpInstruction {
	u.cyclesSinceIssue++

	if u.Stallable && u.resultPortFree != nil && u.slots[u.Depth-1] != nil && !u.resultPortFree() {
		return nil
	}

	result := u.slots[u.Depth-1]
	for i := u.Depth - 1; i > 0; i-- {
		u.slots[i] = u.slots[i-1]
	}
	u.slots[0] = nil
	return result
}
