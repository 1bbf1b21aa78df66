package interconnect_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/timing/interconnect"
)

var _ = Describe("Network", func() {
	It("delivers a request to its target partition only after the request latency elapses", func() {
		n := interconnect.NewNetwork(interconnect.Config{
			NumClusters: 1, NumPartitions: 2, RequestLatency: 3, ResponseLatency: 3, LaneCapacity: 4,
		})
		fetch := &mem.MemFetch{ID: "a", PartitionAddr: 1, ClusterID: 0}

		Expect(n.InjectRequest(fetch, 0)).To(BeTrue())

		for t := uint64(0); t < 3; t++ {
			n.Cycle(t)
			Expect(n.HasPendingForPartition(1)).To(BeFalse())
		}
		n.Cycle(3)
		Expect(n.HasPendingForPartition(1)).To(BeTrue())
		Expect(n.PopForPartition(1).ID).To(Equal("a"))
	})

	It("routes a response back to the fetch's origin cluster", func() {
		n := interconnect.NewNetwork(interconnect.Config{
			NumClusters: 2, NumPartitions: 1, RequestLatency: 1, ResponseLatency: 1, LaneCapacity: 4,
		})
		reply := &mem.MemFetch{ID: "r", ClusterID: 1}

		Expect(n.InjectResponse(reply, 0)).To(BeTrue())
		n.Cycle(1)

		Expect(n.HasPendingForCluster(0)).To(BeFalse())
		Expect(n.HasPendingForCluster(1)).To(BeTrue())
		Expect(n.PopForCluster(1).ID).To(Equal("r"))
	})

	It("rejects injection once a lane's capacity is saturated", func() {
		n := interconnect.NewNetwork(interconnect.Config{
			NumClusters: 1, NumPartitions: 1, RequestLatency: 100, ResponseLatency: 100, LaneCapacity: 2,
		})
		Expect(n.InjectRequest(&mem.MemFetch{ID: "1"}, 0)).To(BeTrue())
		Expect(n.InjectRequest(&mem.MemFetch{ID: "2"}, 0)).To(BeTrue())
		Expect(n.InjectRequest(&mem.MemFetch{ID: "3"}, 0)).To(BeFalse())
	})

	It("reports no pending traffic only once every lane has drained", func() {
		n := interconnect.NewNetwork(interconnect.Config{
			NumClusters: 1, NumPartitions: 1, RequestLatency: 2, ResponseLatency: 2, LaneCapacity: 4,
		})
		Expect(n.HasAnyPending()).To(BeFalse())

		Expect(n.InjectRequest(&mem.MemFetch{ID: "a"}, 0)).To(BeTrue())
		Expect(n.HasAnyPending()).To(BeTrue())

		n.Cycle(0)
		n.Cycle(1)
		n.Cycle(2)
		Expect(n.HasAnyPending()).To(BeTrue())
		n.PopForPartition(0)
		Expect(n.HasAnyPending()).To(BeFalse())
	})
})
