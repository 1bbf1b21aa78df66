// Package pipeline provides the per-core SIMT pipeline stages: warp
// state, register sets, the scoreboard, warp schedulers, the operand
// collector, and functional units (spec §2, §4.5-§4.7).
package pipeline

import "github.com/sarchlab/m2gpusim/mem"

// OperandBank identifies a physical register-file bank an instruction
// operand lives in, for operand-collector bank arbitration.
type OperandBank int

// WarpInstruction is a single decoded instruction belonging to a warp,
// annotated with the memory access it will issue (if any) and the
// register-bank ids of its operands. The out-of-scope trace loader
// resolves these fields before handing instructions to a Core (spec
// §6).
type WarpInstruction struct {
	WarpID     int
	DynamicWarpID uint64
	PC         uint64
	OpCategory FunctionalUnitKind

	SrcRegs []OperandBank
	DstRegs []OperandBank

	IsMemoryOp bool
	Access     mem.MemAccess

	IsBarrier bool

	// SchedulerID is filled in by the scheduler that issues this
	// instruction, used by sub-core mode to pick the right register
	// set slot (spec §4.6/§4.9, P9).
	SchedulerID int
}

// Warp is a group of lanes scheduled together, spec glossary. Owned
// exclusively by the Core it runs on.
type Warp struct {
	ID             int
	DynamicID      uint64
	PC             uint64
	ActiveMask     mem.WarpMask
	instructions   []*WarpInstruction
	nextInst       int
	waitingBarrier bool
	done           bool
}

// NewWarp creates a Warp with the given trace-supplied instruction
// stream.
func NewWarp(id int, dynamicID uint64, instructions []*WarpInstruction) *Warp {
	return &Warp{ID: id, DynamicID: dynamicID, instructions: instructions}
}

// Next returns the next not-yet-issued instruction, or nil if the
// warp has no more instructions.
func (w *Warp) Next() *WarpInstruction {
	if w.nextInst >= len(w.instructions) {
		return nil
	}
	return w.instructions[w.nextInst]
}

// Advance moves past the instruction just issued.
func (w *Warp) Advance() {
	w.nextInst++
	if w.nextInst >= len(w.instructions) {
		w.done = true
	}
}

// Done reports whether the warp has issued all of its instructions.
func (w *Warp) Done() bool { return w.done }

// WaitingBarrier reports whether the warp is blocked at a barrier.
func (w *Warp) WaitingBarrier() bool { return w.waitingBarrier }

// SetWaitingBarrier sets/clears the warp's barrier-wait state.
func (w *Warp) SetWaitingBarrier(waiting bool) { w.waitingBarrier = waiting }

// Issuable reports whether this warp currently has an instruction
// that could be considered for issue (not done, not at a barrier).
// Scoreboard/register-set/functional-unit checks happen separately in
// the scheduler (spec §4.6).
func (w *Warp) Issuable() bool {
	return !w.done && !w.waitingBarrier && w.Next() != nil
}
