// Package core provides the per-SM timing model: one or more warp
// schedulers, a scoreboard, an operand collector, a bank of functional
// units, and an L1 data cache, wired together into a cycle-accurate
// pipeline. Spec §2/§4.
package core

import (
	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/cache"
	"github.com/sarchlab/m2gpusim/timing/pipeline"
	"github.com/sarchlab/m2gpusim/trace"
)

// Stats holds per-core performance counters.
type Stats struct {
	Cycles       uint64
	Instructions uint64
	Stalls       uint64
}

// unitSpec describes one functional unit this core instantiates.
type unitSpec struct {
	kind               pipeline.FunctionalUnitKind
	depth              int
	initiationInterval int
	stallable          bool
}

// pendingMem tracks a memory instruction whose fetch is still being
// retried against the L1 admission path.
type pendingMem struct {
	inst  *pipeline.WarpInstruction
	fetch *mem.MemFetch
}

// Core is the SM timing model, spec §2/§4. Generalizes the teacher's
// Core (timing/core/core.go), a thin single-pipeline wrapper, into a
// composition of many independently ticking SIMT pipeline components.
type Core struct {
	ID int

	Schedulers []*pipeline.WarpScheduler
	Scoreboard *pipeline.Scoreboard
	Collector  *pipeline.OperandCollector
	L1D        *cache.DataCache

	issueRS *pipeline.RegisterSet

	units     []*pipeline.FunctionalUnit
	unitInRS  map[pipeline.FunctionalUnitKind]*pipeline.RegisterSet
	unitOutRS map[pipeline.FunctionalUnitKind]*pipeline.RegisterSet

	subCoreMode bool
	clusterID   int

	memRetry []*pendingMem
	// inFlight maps a miss fetch's id to the instruction that issued
	// it; OnFill retires the instruction once the line actually fills.
	inFlight map[string]*pipeline.WarpInstruction

	stats Stats
}

// CoreOption configures a Core at construction time.
type CoreOption func(*Core)

// WithSubCoreMode enables sub-core mode (P9): each scheduler owns its
// own slot in the ID_OC register set and in every functional unit's
// input and output register sets. Collector units, register banks and
// functional units (one per kind) stay shared.
func WithSubCoreMode() CoreOption {
	return func(c *Core) { c.subCoreMode = true }
}

// WithClusterID records which cluster owns this core, stamped onto
// every fetch the core issues so a response can find its way home
// through the interconnect.
func WithClusterID(id int) CoreOption {
	return func(c *Core) { c.clusterID = id }
}

var defaultUnits = []unitSpec{
	{kind: pipeline.SP, depth: 4, initiationInterval: 1, stallable: false},
	{kind: pipeline.DP, depth: 8, initiationInterval: 2, stallable: false},
	{kind: pipeline.SFU, depth: 8, initiationInterval: 4, stallable: false},
	{kind: pipeline.INT, depth: 4, initiationInterval: 1, stallable: false},
	{kind: pipeline.MEM, depth: 1, initiationInterval: 1, stallable: true},
	{kind: pipeline.TENSOR, depth: 8, initiationInterval: 1, stallable: false},
}

// NewCore builds a Core with numSchedulers warp schedulers (each of
// the given policy), one functional unit per kind, and the given L1
// data cache.
func NewCore(id int, numSchedulers int, policy pipeline.SchedulerPolicy, maxIssuePerCycle int, l1d *cache.DataCache, opts ...CoreOption) *Core {
	c := &Core{
		ID:         id,
		Scoreboard: pipeline.NewScoreboard(),
		L1D:        l1d,
		unitInRS:   make(map[pipeline.FunctionalUnitKind]*pipeline.RegisterSet),
		unitOutRS:  make(map[pipeline.FunctionalUnitKind]*pipeline.RegisterSet),
		inFlight:   make(map[string]*pipeline.WarpInstruction),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.subCoreMode {
		c.issueRS = pipeline.NewSubCoreRegisterSet("ID_OC", numSchedulers)
	} else {
		c.issueRS = pipeline.NewRegisterSet("ID_OC", numSchedulers)
	}

	unitSets := make([]pipeline.CollectorUnitSet, 0, len(defaultUnits))
	for _, spec := range defaultUnits {
		unitSets = append(unitSets, kindToSet(spec.kind))
	}
	c.Collector = pipeline.NewOperandCollector(unitSets, 16, c.subCoreMode)
	c.Collector.AddInputPort(c.issueRS, unitSets...)

	for _, spec := range defaultUnits {
		var in, out *pipeline.RegisterSet
		if c.subCoreMode {
			in = pipeline.NewSubCoreRegisterSet(spec.kind.String()+"_IN", numSchedulers)
			out = pipeline.NewSubCoreRegisterSet(spec.kind.String()+"_OUT", numSchedulers)
		} else {
			in = pipeline.NewRegisterSet(spec.kind.String()+"_IN", numSchedulers)
			out = pipeline.NewRegisterSet(spec.kind.String()+"_OUT", numSchedulers)
		}
		c.unitInRS[spec.kind] = in
		c.unitOutRS[spec.kind] = out
		c.Collector.AddOutputPort(in, kindToSet(spec.kind))

		var portFree func() bool
		if spec.stallable {
			outRS := out
			portFree = func() bool { return outRS.HasFree() }
		}
		c.units = append(c.units, pipeline.NewFunctionalUnit(spec.kind, spec.depth, spec.initiationInterval, spec.stallable, portFree))
	}

	for i := 0; i < numSchedulers; i++ {
		c.Schedulers = append(c.Schedulers, pipeline.NewWarpScheduler(i, policy, maxIssuePerCycle))
	}

	return c
}

func kindToSet(k pipeline.FunctionalUnitKind) pipeline.CollectorUnitSet {
	switch k {
	case pipeline.SP:
		return pipeline.SetSP
	case pipeline.DP:
		return pipeline.SetDP
	case pipeline.SFU:
		return pipeline.SetSFU
	case pipeline.INT:
		return pipeline.SetINT
	case pipeline.MEM:
		return pipeline.SetMEM
	case pipeline.TENSOR:
		return pipeline.SetTENSOR
	default:
		return pipeline.SetGEN
	}
}

// Supervise assigns warps to scheduler schedulerID.
func (c *Core) Supervise(schedulerID int, warps ...*pipeline.Warp) {
	c.Schedulers[schedulerID].Supervise(warps...)
}

// CanIssueBlock reports whether this core has a free scheduler to take
// on another block's worth of warps. Spec §4.9 issue_block_to_core's
// "core is not fully occupied" check.
func (c *Core) CanIssueBlock() bool {
	for _, s := range c.Schedulers {
		if len(s.Supervised()) == 0 {
			return true
		}
	}
	return false
}

// IssueBlock assigns block's warps round-robin across this core's free
// schedulers. Returns false if no scheduler had room.
func (c *Core) IssueBlock(block *trace.Block) bool {
	if !c.CanIssueBlock() {
		return false
	}
	var free []*pipeline.WarpScheduler
	for _, s := range c.Schedulers {
		if len(s.Supervised()) == 0 {
			free = append(free, s)
		}
	}
	for i, w := range block.Warps {
		free[i%len(free)].Supervise(w)
	}
	return true
}

// CanIssue implements pipeline.WarpIssuer: the shared (or sub-core
// dedicated) ID_OC stage must have room for this scheduler.
func (c *Core) CanIssue(schedulerID int, inst *pipeline.WarpInstruction) bool {
	return c.issueRS.FreeSlot(c.slotOwner(schedulerID)) >= 0
}

// Issue implements pipeline.WarpIssuer.
func (c *Core) Issue(schedulerID int, inst *pipeline.WarpInstruction) bool {
	return c.issueRS.MoveIn(inst, c.slotOwner(schedulerID))
}

func (c *Core) slotOwner(schedulerID int) int {
	if c.subCoreMode {
		return schedulerID
	}
	return -1
}

// Stats returns the core's performance counters.
func (c *Core) Stats() Stats { return c.stats }

// Cycle advances the core by one cycle. Stages run in reverse order —
// writeback, memory retry, execute, operand collection, issue — so
// that a slot a later stage frees is visible to an earlier stage
// within the same cycle (P9), mirroring the teacher's reverse-order
// Tick in timing/pipeline/pipeline.go.
func (c *Core) Cycle(time uint64) {
	c.stats.Cycles++

	c.doWriteback()
	c.retryPendingMem()
	c.doExecute()
	for i := 0; i < len(c.Schedulers); i++ {
		c.Collector.Cycle(c.schedulerIdxFor(i))
	}
	c.doIssue()

	if c.L1D != nil {
		c.L1D.Cycle()
	}
}

func (c *Core) schedulerIdxFor(i int) int {
	if c.subCoreMode {
		return i
	}
	return -1
}

func (c *Core) doIssue() {
	for _, s := range c.Schedulers {
		if n := s.Cycle(c.Scoreboard, c); n == 0 {
			c.stats.Stalls++
		}
	}
}

// doExecute issues a ready instruction from each unit's input register
// set into the unit (opcode-category gated), then advances every
// unit's internal shift register and forwards any retired result to
// its output register set.
func (c *Core) doExecute() {
	for _, spec := range defaultUnits {
		u := c.unitFor(spec.kind)
		in := c.unitInRS[spec.kind]
		c.tryIssueUnit(u, in)

		result := u.Cycle()
		if result == nil {
			continue
		}

		out := c.unitOutRS[spec.kind]
		owner := -1
		if c.subCoreMode {
			owner = result.SchedulerID
		}
		out.MoveIn(result, owner)
	}
}

func (c *Core) tryIssueUnit(u *pipeline.FunctionalUnit, in *pipeline.RegisterSet) {
	for sid := -1; sid < in.Width(); sid++ {
		slot := in.ReadySlot(sid)
		if slot < 0 {
			continue
		}
		cand := in.At(slot)
		if cand == nil || !u.CanIssue(cand) {
			continue
		}
		in.Clear(slot)
		u.Issue(cand)
		return
	}
}

func (c *Core) unitFor(kind pipeline.FunctionalUnitKind) *pipeline.FunctionalUnit {
	for _, u := range c.units {
		if u.Kind == kind {
			return u
		}
	}
	return nil
}

// doWriteback drains each functional unit's output register set. Pure
// arithmetic results release the scoreboard immediately; memory
// results dispatch to the L1 (spec §4.4/§4.7).
func (c *Core) doWriteback() {
	for _, spec := range defaultUnits {
		out := c.unitOutRS[spec.kind]
		for {
			inst := out.MoveOutOldest()
			if inst == nil {
				break
			}
			if inst.IsMemoryOp {
				c.dispatchMemory(inst)
				continue
			}
			c.retire(inst)
		}
	}
}

func (c *Core) retire(inst *pipeline.WarpInstruction) {
	c.Scoreboard.Release(inst)
	c.stats.Instructions++
}

func (c *Core) dispatchMemory(inst *pipeline.WarpInstruction) {
	fetch := mem.New(inst.Access, inst.WarpID, c.ID, c.clusterID)
	c.tryAccess(inst, fetch)
}

// tryAccess probes the L1. A hit retires the issuing instruction right
// away. A newly admitted miss keeps the scoreboard's memory-barrier
// bit (P8) set until OnFill reports the line has actually filled. A
// reservation failure (no MSHR entry, full miss queue) requires
// re-probing next cycle instead.
func (c *Core) tryAccess(inst *pipeline.WarpInstruction, fetch *mem.MemFetch) {
	outcome := c.L1D.Access(fetch, c.stats.Cycles)
	switch outcome.Status {
	case cache.Hit, cache.HitReserved:
		c.retire(inst)
	case cache.Miss:
		c.inFlight[fetch.ID] = inst
	default:
		c.memRetry = append(c.memRetry, &pendingMem{inst: inst, fetch: fetch})
	}
}

func (c *Core) retryPendingMem() {
	if len(c.memRetry) == 0 {
		return
	}
	retry := c.memRetry
	c.memRetry = nil
	for _, p := range retry {
		c.tryAccess(p.inst, p.fetch)
	}
}

// OnFill notifies the core that fetch, a prior read miss at this
// core's L1, has returned data from downstream. Called by the cluster
// when a response arrives from the interconnect; retires the
// instruction that issued the miss, clearing its scoreboard entry.
func (c *Core) OnFill(fetch *mem.MemFetch, time uint64) {
	c.L1D.Fill(fetch.TagIndex, fetch, time)
	root := fetch.Root()
	if inst, ok := c.inFlight[root.ID]; ok {
		delete(c.inFlight, root.ID)
		c.retire(inst)
	}
}
