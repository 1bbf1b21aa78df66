// Package stats collects per-kernel simulation statistics and
// serializes them as JSON, in the teacher's JSON-tagged config style.
package stats

import "encoding/json"

// KernelStats is one kernel launch's summary, keyed by launch id.
// Grounded on the original's stats::sim::Sim record.
type KernelStats struct {
	KernelName string `json:"kernel_name"`
	LaunchID   int    `json:"kernel_launch_id"`

	Cycles       uint64 `json:"cycles"`
	Instructions uint64 `json:"instructions"`
	NumBlocks    uint64 `json:"num_blocks"`

	L1Hits      uint64 `json:"l1_hits"`
	L1Misses    uint64 `json:"l1_misses"`
	L2Hits      uint64 `json:"l2_hits"`
	L2Misses    uint64 `json:"l2_misses"`
	DRAMReads   uint64 `json:"dram_reads"`
	DRAMWrites  uint64 `json:"dram_writes"`
	StallCycles uint64 `json:"stall_cycles"`
}

// Add accumulates other's counters into ks, for merging per-core or
// per-cluster partial stats into one kernel-wide total.
func (ks *KernelStats) Add(other KernelStats) {
	ks.Cycles += other.Cycles
	ks.Instructions += other.Instructions
	ks.NumBlocks += other.NumBlocks
	ks.L1Hits += other.L1Hits
	ks.L1Misses += other.L1Misses
	ks.L2Hits += other.L2Hits
	ks.L2Misses += other.L2Misses
	ks.DRAMReads += other.DRAMReads
	ks.DRAMWrites += other.DRAMWrites
	ks.StallCycles += other.StallCycles
}

// IPC returns instructions retired per cycle, 0 if no cycles elapsed.
func (ks *KernelStats) IPC() float64 {
	if ks.Cycles == 0 {
		return 0
	}
	return float64(ks.Instructions) / float64(ks.Cycles)
}

// Registry accumulates KernelStats across one or more kernel
// launches and serializes the whole run.
type Registry struct {
	Kernels []*KernelStats `json:"kernels"`
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// ForKernel returns the KernelStats for launchID, creating it with
// name if it does not exist yet.
func (c *Registry) ForKernel(launchID int, name string) *KernelStats {
	for _, ks := range c.Kernels {
		if ks.LaunchID == launchID {
			return ks
		}
	}
	ks := &KernelStats{LaunchID: launchID, KernelName: name}
	c.Kernels = append(c.Kernels, ks)
	return ks
}

// MarshalJSON is satisfied by the default struct encoding; ToJSON
// wraps it with indentation for human-readable report files.
func (c *Registry) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}
