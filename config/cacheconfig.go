package config

import (
	"fmt"
	"strconv"
	"strings"
)

// CacheKind distinguishes a normal (line-granular) cache from a
// sectored one.
type CacheKind int

// Cache kinds.
const (
	Normal CacheKind = iota
	Sector
)

// ReplacementPolicy selects the victim-selection rule.
type ReplacementPolicy int

// Replacement policies.
const (
	LRU ReplacementPolicy = iota
	FIFO
)

// WritePolicy selects the write-hit behavior of a DataCache.
type WritePolicy int

// Write policies.
const (
	ReadOnly WritePolicy = iota
	WriteBack
	WriteThrough
	WriteEvict
	LocalWBGlobalWT
)

// AllocationPolicy selects when a fetched line becomes valid.
type AllocationPolicy int

// Allocation policies.
const (
	OnMiss AllocationPolicy = iota
	OnFill
	Streaming
)

// WriteAllocatePolicy selects the write-miss behavior.
type WriteAllocatePolicy int

// Write-allocate policies.
const (
	NoWriteAllocate WriteAllocatePolicy = iota
	WriteAllocate
	FetchOnWrite
	LazyFetchOnRead
)

// MSHRKind selects the MSHR table's internal organization.
type MSHRKind int

// MSHR kinds.
const (
	MSHRAssoc MSHRKind = iota
	MSHRSectorAssoc
	MSHRTexFIFO
)

// CacheConfig is the parsed form of the cache DSL string from spec §6.
type CacheConfig struct {
	Raw string

	Kind      CacheKind
	NumSets   int
	BlockSize int
	Assoc     int

	Replacement ReplacementPolicy
	Write       WritePolicy
	Allocation  AllocationPolicy
	WriteAlloc  WriteAllocatePolicy
	SetIndexFn  SetIndexFunction

	MSHRKind    MSHRKind
	MSHREntries int
	MSHRMerge   int

	MissQueueSize int
	// MSHRFIFOEntries is the optional trailing <fifo> field, used by
	// the TexFIFO mshr kind (e.g. L1T's "F:128:4,128:2").
	MSHRFIFOEntries int
	// DataPortWidth is the optional trailing data-port-width field
	// (e.g. L2D's trailing ",32").
	DataPortWidth int
}

// Parse parses a cache DSL string per spec §6:
//
//	<kind>:<nsets>:<block>:<assoc>,<rep>:<wr>:<alloc>:<wr_alloc>:<set_index_fn>,
//	<mshr>:<entries>:<merge>,<miss_q>[:<fifo>][,<data_port_width>]
func Parse(s string) (*CacheConfig, error) {
	commaParts := strings.Split(s, ",")
	if len(commaParts) < 4 {
		return nil, fmt.Errorf("config: cache DSL %q: expected 4 comma-separated groups, got %d", s, len(commaParts))
	}

	cfg := &CacheConfig{Raw: s}

	if err := parseShape(cfg, commaParts[0]); err != nil {
		return nil, err
	}
	if err := parsePolicy(cfg, commaParts[1]); err != nil {
		return nil, err
	}
	if err := parseMSHR(cfg, commaParts[2]); err != nil {
		return nil, err
	}
	if err := parseMissQueue(cfg, strings.Join(commaParts[3:], ",")); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseShape(cfg *CacheConfig, group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 4 {
		return fmt.Errorf("config: cache DSL shape group %q: expected 4 fields", group)
	}
	switch fields[0] {
	case "N":
		cfg.Kind = Normal
	case "S":
		cfg.Kind = Sector
	default:
		return fmt.Errorf("config: cache DSL unknown kind %q", fields[0])
	}
	var err error
	if cfg.NumSets, err = strconv.Atoi(fields[1]); err != nil {
		return fmt.Errorf("config: cache DSL nsets: %w", err)
	}
	if cfg.BlockSize, err = strconv.Atoi(fields[2]); err != nil {
		return fmt.Errorf("config: cache DSL block size: %w", err)
	}
	if cfg.Assoc, err = strconv.Atoi(fields[3]); err != nil {
		return fmt.Errorf("config: cache DSL assoc: %w", err)
	}
	return nil
}

func parsePolicy(cfg *CacheConfig, group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 5 {
		return fmt.Errorf("config: cache DSL policy group %q: expected 5 fields", group)
	}

	switch fields[0] {
	case "L":
		cfg.Replacement = LRU
	case "F":
		cfg.Replacement = FIFO
	default:
		return fmt.Errorf("config: cache DSL unknown replacement %q", fields[0])
	}

	switch fields[1] {
	case "R":
		cfg.Write = ReadOnly
	case "B":
		cfg.Write = WriteBack
	case "T":
		cfg.Write = WriteThrough
	case "E":
		cfg.Write = WriteEvict
	case "L":
		cfg.Write = LocalWBGlobalWT
	default:
		return fmt.Errorf("config: cache DSL unknown write policy %q", fields[1])
	}

	switch fields[2] {
	case "m":
		cfg.Allocation = OnMiss
	case "f":
		cfg.Allocation = OnFill
	case "s":
		cfg.Allocation = Streaming
	default:
		return fmt.Errorf("config: cache DSL unknown allocation policy %q", fields[2])
	}

	switch fields[3] {
	case "N":
		cfg.WriteAlloc = NoWriteAllocate
	case "W":
		cfg.WriteAlloc = WriteAllocate
	case "F":
		cfg.WriteAlloc = FetchOnWrite
	case "L":
		cfg.WriteAlloc = LazyFetchOnRead
	default:
		return fmt.Errorf("config: cache DSL unknown write-allocate policy %q", fields[3])
	}

	switch fields[4] {
	case "L":
		cfg.SetIndexFn = Linear
	case "H":
		cfg.SetIndexFn = FermiHash
	case "P":
		cfg.SetIndexFn = IPolyHash
	case "X":
		cfg.SetIndexFn = BitwiseXor
	default:
		return fmt.Errorf("config: cache DSL unknown set-index function %q", fields[4])
	}

	return nil
}

func parseMSHR(cfg *CacheConfig, group string) error {
	fields := strings.Split(group, ":")
	if len(fields) != 3 {
		return fmt.Errorf("config: cache DSL mshr group %q: expected 3 fields", group)
	}
	switch fields[0] {
	case "A":
		cfg.MSHRKind = MSHRAssoc
	case "S":
		cfg.MSHRKind = MSHRSectorAssoc
	case "F":
		cfg.MSHRKind = MSHRTexFIFO
	default:
		return fmt.Errorf("config: cache DSL unknown mshr kind %q", fields[0])
	}
	var err error
	if cfg.MSHREntries, err = strconv.Atoi(fields[1]); err != nil {
		return fmt.Errorf("config: cache DSL mshr entries: %w", err)
	}
	if cfg.MSHRMerge, err = strconv.Atoi(fields[2]); err != nil {
		return fmt.Errorf("config: cache DSL mshr merge: %w", err)
	}
	return nil
}

// parseMissQueue parses the remaining comma-joined tail:
// <miss_q>[:<fifo>][,<data_port_width>]
func parseMissQueue(cfg *CacheConfig, tail string) error {
	groups := strings.Split(tail, ",")
	first := strings.Split(groups[0], ":")

	var err error
	if cfg.MissQueueSize, err = strconv.Atoi(first[0]); err != nil {
		return fmt.Errorf("config: cache DSL miss queue size: %w", err)
	}
	if len(first) > 1 {
		if cfg.MSHRFIFOEntries, err = strconv.Atoi(first[1]); err != nil {
			return fmt.Errorf("config: cache DSL mshr fifo entries: %w", err)
		}
	}
	if len(groups) > 1 {
		if cfg.DataPortWidth, err = strconv.Atoi(groups[1]); err != nil {
			return fmt.Errorf("config: cache DSL data port width: %w", err)
		}
	}
	return nil
}

// validate enforces the spec §7 configuration-error set. These are
// fatal and must abort the simulation, never be silently downgraded.
func (c *CacheConfig) validate() error {
	if !isPowerOfTwo(c.NumSets) {
		return fmt.Errorf("config: nsets %d must be a power of two", c.NumSets)
	}
	if c.SetIndexFn == FermiHash && c.NumSets != 32 && c.NumSets != 64 {
		return fmt.Errorf("config: fermi hash requires nsets in {32,64}, got %d", c.NumSets)
	}
	if c.Kind == Sector && c.BlockSize%32 != 0 {
		return fmt.Errorf("config: sector cache block size %d must be a multiple of 32", c.BlockSize)
	}
	if c.Allocation == OnFill && c.Write == WriteBack {
		return fmt.Errorf("config: ON_FILL allocation combined with WRITE_BACK is a documented deadlock")
	}
	if c.Allocation == OnFill && (c.WriteAlloc == FetchOnWrite || c.WriteAlloc == LazyFetchOnRead) {
		return fmt.Errorf("config: ON_FILL allocation combined with FETCH_ON_WRITE/LAZY_FETCH_ON_READ is invalid")
	}
	return nil
}

// BlockAddress truncates addr to this cache's line size.
func (c *CacheConfig) BlockAddress(addr uint64) uint64 {
	return addr &^ (uint64(c.BlockSize) - 1)
}

// Reference configurations verbatim from spec §6, used by tests
// (S1-S6) and available to callers assembling a GPU config.
var (
	L1DConfigString = "N:64:128:6,L:L:m:N:H,A:128:8,8"
	L2DConfigString = "N:64:128:16,L:B:m:W:L,A:1024:1024,4:0,32"
	L1IConfigString = "N:8:128:4,L:R:f:N:L,A:2:48,4"
	L1CConfigString = "N:128:64:2,L:R:f:N:L,A:2:64,4"
	L1TConfigString = "N:16:128:24,L:R:m:N:L,F:128:4,128:2"
)
