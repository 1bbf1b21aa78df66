package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/timing/pipeline"
)

var _ = Describe("FunctionalUnit", func() {
	It("rejects instructions whose category does not match its kind", func() {
		fu := pipeline.NewFunctionalUnit(pipeline.SP, 2, 1, false, nil)
		memInst := &pipeline.WarpInstruction{OpCategory: pipeline.MEM}
		Expect(fu.CanIssue(memInst)).To(BeFalse())
	})

	It("produces a result after Depth cycles", func() {
		fu := pipeline.NewFunctionalUnit(pipeline.SP, 3, 1, false, nil)
		inst := &pipeline.WarpInstruction{OpCategory: pipeline.SP}
		Expect(fu.CanIssue(inst)).To(BeTrue())
		Expect(fu.Issue(inst)).To(BeTrue())

		Expect(fu.Cycle()).To(BeNil())
		Expect(fu.Cycle()).To(BeNil())
		Expect(fu.Cycle()).To(Equal(inst))
	})

	It("enforces the initiation interval between accepted issues", func() {
		fu := pipeline.NewFunctionalUnit(pipeline.INT, 2, 2, false, nil)
		i1 := &pipeline.WarpInstruction{OpCategory: pipeline.INT}
		i2 := &pipeline.WarpInstruction{OpCategory: pipeline.INT}

		Expect(fu.Issue(i1)).To(BeTrue())
		fu.Cycle()
		Expect(fu.CanIssue(i2)).To(BeFalse())
		fu.Cycle()
		Expect(fu.CanIssue(i2)).To(BeTrue())
	})

	It("holds its pipeline in place when a stallable unit's result port is congested", func() {
		portFree := false
		fu := pipeline.NewFunctionalUnit(pipeline.MEM, 2, 1, true, func() bool { return portFree })
		inst := &pipeline.WarpInstruction{OpCategory: pipeline.MEM}
		fu.Issue(inst)
		fu.Cycle()

		Expect(fu.Cycle()).To(BeNil())

		portFree = true
		Expect(fu.Cycle()).To(Equal(inst))
	})
})
