// Package trace defines the boundary to the out-of-scope trace loader
// (spec.md §6): a KernelInfo/Block grouping over the warp instruction
// streams a Core consumes, and the Reader interface an external
// collaborator implements to supply them. Trace parsing and kernel
// launching are themselves out of scope; this package only fixes the
// shape of what crosses that boundary.
package trace

import "github.com/sarchlab/m2gpusim/timing/pipeline"

// WarpInstruction is the trace-loader's unit of work, already resolved
// to addresses and opcode categories by the time it reaches a Core.
// Alias of pipeline.WarpInstruction: the pipeline package owns the
// mechanism (issue, scoreboard, collector), trace owns how instruction
// streams are grouped into kernels and blocks before a Core ever sees
// them.
type WarpInstruction = pipeline.WarpInstruction

// Dim3 is a grid or block shape, spec.md §6 "resolved addresses and
// opcode category" context (launch geometry feeds address resolution
// upstream of the boundary this package defines).
type Dim3 struct {
	X, Y, Z uint32
}

// Block is one thread block's warps, already split and interleaved by
// the trace loader.
type Block struct {
	ID    int
	Warps []*pipeline.Warp
}

// KernelInfo describes one kernel launch: its id (used as the
// statistics keying dimension, spec.md §6 "per-kernel launch
// statistics keyed by launch id"), launch geometry, and its not-yet-
// issued blocks.
type KernelInfo struct {
	LaunchID   int
	Name       string
	GridDim    Dim3
	BlockDim   Dim3
	Blocks     []*Block
	nextBlock  int
}

// NextBlock returns the next not-yet-issued block, or nil once all
// blocks have been handed out.
func (k *KernelInfo) NextBlock() *Block {
	if k.nextBlock >= len(k.Blocks) {
		return nil
	}
	b := k.Blocks[k.nextBlock]
	k.nextBlock++
	return b
}

// HasMoreBlocks reports whether any block remains to be issued.
func (k *KernelInfo) HasMoreBlocks() bool {
	return k.nextBlock < len(k.Blocks)
}

// Reader is implemented by the out-of-scope trace loader: given a
// kernel launch id, it produces the kernel's full block/warp/
// instruction structure. Spec.md §6.
type Reader interface {
	ReadKernel(launchID int) (*KernelInfo, error)
}
