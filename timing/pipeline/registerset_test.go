package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/timing/pipeline"
)

var _ = Describe("RegisterSet", func() {
	It("reports free slots and fills them in order", func() {
		rs := pipeline.NewRegisterSet("ID_OC", 2)
		Expect(rs.HasFree()).To(BeTrue())
		Expect(rs.Ready()).To(BeFalse())

		i1 := &pipeline.WarpInstruction{WarpID: 0}
		Expect(rs.MoveIn(i1, -1)).To(BeTrue())
		Expect(rs.Ready()).To(BeTrue())
		Expect(rs.HasFree()).To(BeTrue())

		i2 := &pipeline.WarpInstruction{WarpID: 1}
		Expect(rs.MoveIn(i2, -1)).To(BeTrue())
		Expect(rs.HasFree()).To(BeFalse())

		i3 := &pipeline.WarpInstruction{WarpID: 2}
		Expect(rs.MoveIn(i3, -1)).To(BeFalse())
	})

	It("moves out the oldest occupied slot", func() {
		rs := pipeline.NewRegisterSet("EX_WB", 2)
		i1 := &pipeline.WarpInstruction{WarpID: 5}
		rs.MoveIn(i1, -1)

		out := rs.MoveOutOldest()
		Expect(out).To(Equal(i1))
		Expect(rs.Ready()).To(BeFalse())
		Expect(rs.MoveOutOldest()).To(BeNil())
	})

	It("dedicates one slot per scheduler in sub-core mode", func() {
		rs := pipeline.NewSubCoreRegisterSet("SP_IN", 4)
		i0 := &pipeline.WarpInstruction{WarpID: 0}

		Expect(rs.FreeSlot(1)).To(Equal(1))
		Expect(rs.MoveIn(i0, 1)).To(BeTrue())

		Expect(rs.FreeSlot(1)).To(Equal(-1))
		Expect(rs.FreeSlot(2)).To(Equal(2))

		Expect(rs.ReadySlot(1)).To(Equal(1))
		Expect(rs.ReadySlot(2)).To(Equal(-1))

		Expect(rs.Clear(1)).To(Equal(i0))
		Expect(rs.ReadySlot(1)).To(Equal(-1))
	})
})
