// Package interconnect models the fixed-latency crossbar between
// clusters and memory sub-partitions. Spec.md §1 scopes the real
// interconnect out as an "external collaborator specified only by its
// interfaces"; this is a minimal reference implementation of that
// interface, not the GPU's interconnect fabric.
package interconnect

import "github.com/sarchlab/m2gpusim/mem"

type delayedFetch struct {
	readyCycle uint64
	fetch      *mem.MemFetch
}

// boundedQueue is a fixed-latency, fixed-capacity delay line: a fetch
// injected at cycle t is not visible to the consumer before
// t+latency, and injection is rejected once occupancy hits capacity.
// Grounded on the original's injection-buffer-full check
// (interconn_injection_buffer_full) ahead of every push.
type boundedQueue struct {
	latency  uint64
	capacity int
	pending  []delayedFetch
	ready    []*mem.MemFetch
}

func newBoundedQueue(latency uint64, capacity int) *boundedQueue {
	return &boundedQueue{latency: latency, capacity: capacity}
}

func (q *boundedQueue) occupancy() int { return len(q.pending) + len(q.ready) }

func (q *boundedQueue) full() bool { return q.occupancy() >= q.capacity }

func (q *boundedQueue) push(fetch *mem.MemFetch, now uint64) bool {
	if q.full() {
		return false
	}
	q.pending = append(q.pending, delayedFetch{readyCycle: now + q.latency, fetch: fetch})
	return true
}

// advance promotes any pending fetch whose latency has elapsed into
// the ready FIFO. Called once per cycle.
func (q *boundedQueue) advance(now uint64) {
	i := 0
	for i < len(q.pending) && q.pending[i].readyCycle <= now {
		q.ready = append(q.ready, q.pending[i].fetch)
		i++
	}
	q.pending = q.pending[i:]
}

func (q *boundedQueue) hasReady() bool { return len(q.ready) > 0 }

func (q *boundedQueue) pop() *mem.MemFetch {
	if len(q.ready) == 0 {
		return nil
	}
	f := q.ready[0]
	q.ready = q.ready[1:]
	return f
}

// Network is the crossbar: one request lane per sub-partition, one
// response lane per cluster. Routing keys off mem.MemFetch.ClusterID
// and PartitionAddr rather than topology-aware hop counts, since the
// spec leaves the interconnect's internal routing unspecified.
type Network struct {
	numPartitions int
	toPartition   []*boundedQueue
	toCluster     []*boundedQueue
}

// Config bundles the crossbar's shape and per-direction latency.
type Config struct {
	NumClusters      int
	NumPartitions    int
	RequestLatency   uint64
	ResponseLatency  uint64
	LaneCapacity     int
}

// NewNetwork builds a Network with one request lane per partition and
// one response lane per cluster.
func NewNetwork(cfg Config) *Network {
	n := &Network{numPartitions: cfg.NumPartitions}
	n.toPartition = make([]*boundedQueue, cfg.NumPartitions)
	for i := range n.toPartition {
		n.toPartition[i] = newBoundedQueue(cfg.RequestLatency, cfg.LaneCapacity)
	}
	n.toCluster = make([]*boundedQueue, cfg.NumClusters)
	for i := range n.toCluster {
		n.toCluster[i] = newBoundedQueue(cfg.ResponseLatency, cfg.LaneCapacity)
	}
	return n
}

// partitionFor maps a fetch's sub-partition address to a lane index.
func (n *Network) partitionFor(fetch *mem.MemFetch) int {
	if n.numPartitions == 0 {
		return 0
	}
	return int(fetch.PartitionAddr % uint64(n.numPartitions))
}

// InjectRequest offers fetch from a cluster toward its target
// sub-partition's lane, mirroring interconn_inject_request_packet.
// Returns false (injection-buffer-full) if the lane is saturated.
func (n *Network) InjectRequest(fetch *mem.MemFetch, now uint64) bool {
	return n.toPartition[n.partitionFor(fetch)].push(fetch, now)
}

// InjectResponse offers fetch from a sub-partition back toward the
// cluster named by fetch.ClusterID.
func (n *Network) InjectResponse(fetch *mem.MemFetch, now uint64) bool {
	if fetch.ClusterID < 0 || fetch.ClusterID >= len(n.toCluster) {
		return false
	}
	return n.toCluster[fetch.ClusterID].push(fetch, now)
}

// Cycle advances every lane's delay line by one cycle.
func (n *Network) Cycle(now uint64) {
	for _, q := range n.toPartition {
		q.advance(now)
	}
	for _, q := range n.toCluster {
		q.advance(now)
	}
}

// HasPendingForPartition reports whether partitionID's request lane
// has a fetch ready to be popped.
func (n *Network) HasPendingForPartition(partitionID int) bool {
	return n.toPartition[partitionID].hasReady()
}

// PopForPartition pops the next ready fetch bound for partitionID.
func (n *Network) PopForPartition(partitionID int) *mem.MemFetch {
	return n.toPartition[partitionID].pop()
}

// HasAnyPending reports whether any lane, request or response, still
// holds an in-flight packet. Used by the driver to confirm the
// network has fully drained before declaring the run quiescent.
func (n *Network) HasAnyPending() bool {
	for _, q := range n.toPartition {
		if q.occupancy() > 0 {
			return true
		}
	}
	for _, q := range n.toCluster {
		if q.occupancy() > 0 {
			return true
		}
	}
	return false
}

// HasPendingForCluster implements cluster.Interconnect.
func (n *Network) HasPendingForCluster(clusterID int) bool {
	if clusterID < 0 || clusterID >= len(n.toCluster) {
		return false
	}
	return n.toCluster[clusterID].hasReady()
}

// PopForCluster implements cluster.Interconnect.
func (n *Network) PopForCluster(clusterID int) *mem.MemFetch {
	if clusterID < 0 || clusterID >= len(n.toCluster) {
		return nil
	}
	return n.toCluster[clusterID].pop()
}
