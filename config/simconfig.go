package config

import "encoding/json"

// GPUConfig is the top-level simulator configuration: JSON-tagged,
// loaded with encoding/json and overridable by functional options,
// matching the teacher's timing/latency.TimingConfig pattern.
type GPUConfig struct {
	NumClusters    int `json:"num_clusters"`
	CoresPerCluster int `json:"cores_per_cluster"`
	NumSubPartitions int `json:"num_sub_partitions"`

	WarpSize         int `json:"warp_size"`
	MaxWarpsPerCore  int `json:"max_warps_per_core"`
	RegisterSetWidth int `json:"register_set_width"`
	SubCoreMode      bool `json:"sub_core_mode"`
	NumSchedulersPerCore int `json:"num_schedulers_per_core"`

	L1DConfigString string `json:"l1d_config"`
	L1IConfigString string `json:"l1i_config"`
	L1CConfigString string `json:"l1c_config"`
	L1TConfigString string `json:"l1t_config"`
	L2DConfigString string `json:"l2d_config"`

	ICNTToL2QueueSize int `json:"icnt_to_l2_queue_size"`
	L2ToDRAMQueueSize int `json:"l2_to_dram_queue_size"`
	DRAMToL2QueueSize int `json:"dram_to_l2_queue_size"`
	L2ToICNTQueueSize int `json:"l2_to_icnt_queue_size"`
	L2ROPLatency      uint64 `json:"l2_rop_latency"`

	OperandCollectorUnitsSP  int `json:"oc_units_sp"`
	OperandCollectorUnitsMEM int `json:"oc_units_mem"`
	NumRegisterBanks         int `json:"num_register_banks"`

	// SchedulerPolicy selects each core's warp-scheduling discipline:
	// "lrr", "gto", or "two_level" (spec.md §4.6). Kept as a plain
	// string and interpreted by sim.NewDriver rather than as a
	// pipeline.SchedulerPolicy directly, so this package stays free of
	// a dependency on timing/pipeline.
	SchedulerPolicy      string `json:"scheduler_policy"`
	MaxIssuePerScheduler int    `json:"max_issue_per_scheduler"`

	InterconnectRequestLatency  uint64 `json:"icnt_request_latency"`
	InterconnectResponseLatency uint64 `json:"icnt_response_latency"`
	InterconnectLaneCapacity    int    `json:"icnt_lane_capacity"`

	DRAMNumBanks       int    `json:"dram_num_banks"`
	DRAMRowHitLatency  uint64 `json:"dram_row_hit_latency"`
	DRAMRowMissLatency uint64 `json:"dram_row_miss_latency"`
	DRAMQueueSize      int    `json:"dram_queue_size"`
	DRAMScheduler      string `json:"dram_scheduler"`

	ClusterResponseFIFOCapacity int `json:"cluster_response_fifo_capacity"`

	// WatchdogIdleCycles is the number of consecutive cycles allowed
	// to pass with no decrease in outstanding memory requests before
	// the watchdog logs a stall warning. 0 disables the watchdog.
	WatchdogIdleCycles uint64 `json:"watchdog_idle_cycles"`
}

// DefaultGPUConfig returns a reference configuration using the
// example cache strings verbatim from spec §6.
func DefaultGPUConfig() *GPUConfig {
	return &GPUConfig{
		NumClusters:          1,
		CoresPerCluster:      1,
		NumSubPartitions:     1,
		WarpSize:             32,
		MaxWarpsPerCore:      48,
		RegisterSetWidth:     2,
		SubCoreMode:          false,
		NumSchedulersPerCore: 2,
		L1DConfigString:      L1DConfigString,
		L1IConfigString:      L1IConfigString,
		L1CConfigString:      L1CConfigString,
		L1TConfigString:      L1TConfigString,
		L2DConfigString:      L2DConfigString,
		ICNTToL2QueueSize:    16,
		L2ToDRAMQueueSize:    16,
		DRAMToL2QueueSize:    16,
		L2ToICNTQueueSize:    16,
		L2ROPLatency:         120,
		OperandCollectorUnitsSP:  4,
		OperandCollectorUnitsMEM: 2,
		NumRegisterBanks:         16,

		SchedulerPolicy:      "gto",
		MaxIssuePerScheduler: 1,

		InterconnectRequestLatency:  40,
		InterconnectResponseLatency: 40,
		InterconnectLaneCapacity:    16,

		DRAMNumBanks:       16,
		DRAMRowHitLatency:  100,
		DRAMRowMissLatency: 300,
		DRAMQueueSize:      16,
		DRAMScheduler:      "frfcfs",

		ClusterResponseFIFOCapacity: 16,
		WatchdogIdleCycles:          100000,
	}
}

// GPUConfigOption is a functional option for overriding GPUConfig
// fields at construction time, the same pattern the teacher uses for
// PipelineOption/EmulatorOption.
type GPUConfigOption func(*GPUConfig)

// WithClusterTopology overrides cluster/core/sub-partition counts.
func WithClusterTopology(numClusters, coresPerCluster, numSubPartitions int) GPUConfigOption {
	return func(c *GPUConfig) {
		c.NumClusters = numClusters
		c.CoresPerCluster = coresPerCluster
		c.NumSubPartitions = numSubPartitions
	}
}

// WithL2Config overrides the L2 cache DSL string.
func WithL2Config(dsl string) GPUConfigOption {
	return func(c *GPUConfig) { c.L2DConfigString = dsl }
}

// WithL1DConfig overrides the L1 data cache DSL string.
func WithL1DConfig(dsl string) GPUConfigOption {
	return func(c *GPUConfig) { c.L1DConfigString = dsl }
}

// WithSubCoreMode enables sub-core mode scheduling (spec §4.6/§4.9,
// P9).
func WithSubCoreMode(enabled bool) GPUConfigOption {
	return func(c *GPUConfig) { c.SubCoreMode = enabled }
}

// New builds a GPUConfig starting from defaults and applying opts.
func New(opts ...GPUConfigOption) *GPUConfig {
	c := DefaultGPUConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoadJSON parses a JSON-encoded GPUConfig, starting from defaults
// for any field the document omits.
func LoadJSON(data []byte) (*GPUConfig, error) {
	c := DefaultGPUConfig()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

// L1D parses this config's L1 data cache DSL string.
func (c *GPUConfig) L1D() (*CacheConfig, error) { return Parse(c.L1DConfigString) }

// L1I parses this config's L1 instruction cache DSL string.
func (c *GPUConfig) L1I() (*CacheConfig, error) { return Parse(c.L1IConfigString) }

// L1C parses this config's constant cache DSL string.
func (c *GPUConfig) L1C() (*CacheConfig, error) { return Parse(c.L1CConfigString) }

// L1T parses this config's texture cache DSL string.
func (c *GPUConfig) L1T() (*CacheConfig, error) { return Parse(c.L1TConfigString) }

// L2D parses this config's L2 cache DSL string.
func (c *GPUConfig) L2D() (*CacheConfig, error) { return Parse(c.L2DConfigString) }
