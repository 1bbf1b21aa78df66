package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/timing/pipeline"
)

var _ = Describe("Scoreboard", func() {
	var sb *pipeline.Scoreboard

	BeforeEach(func() {
		sb = pipeline.NewScoreboard()
	})

	It("reports empty for a warp with no reservations", func() {
		Expect(sb.Empty(0)).To(BeTrue())
	})

	It("blocks issue on a pending destination register (P8)", func() {
		producer := &pipeline.WarpInstruction{WarpID: 0, DstRegs: []pipeline.OperandBank{3}}
		sb.Reserve(producer)
		Expect(sb.Empty(0)).To(BeFalse())

		consumer := &pipeline.WarpInstruction{WarpID: 0, SrcRegs: []pipeline.OperandBank{3}}
		Expect(sb.CanIssue(consumer)).To(BeFalse())

		sb.Release(producer)
		Expect(sb.CanIssue(consumer)).To(BeTrue())
		Expect(sb.Empty(0)).To(BeTrue())
	})

	It("blocks a second memory op on the same warp until the first clears", func() {
		ld := &pipeline.WarpInstruction{WarpID: 1, IsMemoryOp: true}
		sb.Reserve(ld)

		ld2 := &pipeline.WarpInstruction{WarpID: 1, IsMemoryOp: true}
		Expect(sb.CanIssue(ld2)).To(BeFalse())

		sb.Release(ld)
		Expect(sb.CanIssue(ld2)).To(BeTrue())
	})

	It("does not block unrelated warps", func() {
		producer := &pipeline.WarpInstruction{WarpID: 0, DstRegs: []pipeline.OperandBank{1}}
		sb.Reserve(producer)

		other := &pipeline.WarpInstruction{WarpID: 1, SrcRegs: []pipeline.OperandBank{1}}
		Expect(sb.CanIssue(other)).To(BeTrue())
	})
})
