package mem

import "github.com/rs/xid"

// FetchStatus enumerates the pipeline stages a MemFetch moves through
// monotonically, per spec §3's MemFetch lifecycle.
type FetchStatus int

// Fetch statuses.
const (
	FetchCreated FetchStatus = iota
	FetchInMSHR
	FetchInMissQueue
	FetchInICNTToL2Queue
	FetchInL2ToDRAMQueue
	FetchInDRAM
	FetchInDRAMToL2Queue
	FetchInL2ToICNTQueue
	FetchReturnedToCore
	FetchDropped
)

func (s FetchStatus) String() string {
	switch s {
	case FetchCreated:
		return "CREATED"
	case FetchInMSHR:
		return "IN_MSHR"
	case FetchInMissQueue:
		return "IN_MISS_QUEUE"
	case FetchInICNTToL2Queue:
		return "IN_ICNT_TO_L2_QUEUE"
	case FetchInL2ToDRAMQueue:
		return "IN_L2_TO_DRAM_QUEUE"
	case FetchInDRAM:
		return "IN_DRAM"
	case FetchInDRAMToL2Queue:
		return "IN_DRAM_TO_L2_QUEUE"
	case FetchInL2ToICNTQueue:
		return "IN_L2_TO_ICNT_QUEUE"
	case FetchReturnedToCore:
		return "RETURNED_TO_CORE"
	case FetchDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// PhysicalAddress breaks a raw address into the fields the DRAM timing
// model needs. Its internals are owned by the out-of-scope DRAM
// collaborator; the core only ever threads this value through.
type PhysicalAddress struct {
	Channel uint32
	Bank    uint32
	Row     uint32
	Col     uint32
}

// MemFetch is a request in flight through the cache/interconnect/DRAM
// pipeline. Spec §3.
type MemFetch struct {
	ID       string
	Access   MemAccess
	Physical PhysicalAddress

	// PartitionAddr is the address within a memory sub-partition's
	// channel, used to route the fetch to the right subpartition.
	PartitionAddr uint64

	ControlSize int
	DataSize    int

	WarpID    int
	CoreID    int
	ClusterID int

	Status FetchStatus

	// OriginalFetch is set on sub-requests produced by sector
	// breakdown or write-allocate reads; nil for top-level fetches.
	OriginalFetch *MemFetch

	// WriteAllocateShortCircuit marks an allocation read issued on
	// behalf of a write-miss (FETCH_ON_WRITE / LAZY_FETCH_ON_READ).
	// MemorySubPartition's L2 fill-response step redirects such
	// fetches to the original writer instead of the requesting core;
	// this is the single authoritative short-circuit path (spec §9
	// design note), and L1 reuses the same flag.
	WriteAllocateShortCircuit bool

	// IsReply marks a response fetch traveling back toward the core.
	IsReply bool

	// TagIndex is the tag-array way this fetch reserved at miss time
	// (SetID*Associativity+WayID), round-tripped so the eventual fill
	// response can locate the same block without re-probing.
	TagIndex int
}

// New creates a MemFetch for the given access with a fresh unique id.
func New(access MemAccess, warpID, coreID, clusterID int) *MemFetch {
	return &MemFetch{
		ID:        xid.New().String(),
		Access:    access,
		DataSize:  access.RequestSize,
		WarpID:    warpID,
		CoreID:    coreID,
		ClusterID: clusterID,
		Status:    FetchCreated,
	}
}

// SubRequest creates a sector/allocation sub-request that back-points
// to this fetch as its original. PartitionAddr and Physical carry over
// unchanged: routing downstream of the point a request is broken into
// sub-requests (subpartition-to-DRAM, DRAM completion-to-subpartition)
// must still land on the same sub-partition and bank the parent fetch
// was addressed to.
func (f *MemFetch) SubRequest(access MemAccess) *MemFetch {
	sub := New(access, f.WarpID, f.CoreID, f.ClusterID)
	sub.OriginalFetch = f
	sub.PartitionAddr = f.PartitionAddr
	sub.Physical = f.Physical
	return sub
}

// Root returns the top-level fetch this one was broken out from, or
// itself if it has no parent.
func (f *MemFetch) Root() *MemFetch {
	cur := f
	for cur.OriginalFetch != nil {
		cur = cur.OriginalFetch
	}
	return cur
}
