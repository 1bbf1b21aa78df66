package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/timing/pipeline"
)

var _ = Describe("OperandCollector", func() {
	It("moves an instruction from an input port into a free unit, collects its operands, and dispatches it", func() {
		oc := pipeline.NewOperandCollector([]pipeline.CollectorUnitSet{pipeline.SetSP}, 4, false)

		in := pipeline.NewRegisterSet("ID_OC", 1)
		out := pipeline.NewRegisterSet("OC_EX", 1)
		oc.AddInputPort(in, pipeline.SetSP)
		oc.AddOutputPort(out, pipeline.SetSP)

		inst := &pipeline.WarpInstruction{
			WarpID:  0,
			SrcRegs: []pipeline.OperandBank{0, 1},
		}
		in.MoveIn(inst, -1)

		oc.Cycle(-1)
		Expect(in.Ready()).To(BeFalse())
		Expect(out.Ready()).To(BeFalse())

		oc.Cycle(-1)
		Expect(out.Ready()).To(BeFalse())

		oc.Cycle(-1)
		Expect(out.Ready()).To(BeTrue())
		Expect(out.At(0)).To(Equal(inst))
	})

	It("does not allocate a unit when none matching the input port's sets is free", func() {
		oc := pipeline.NewOperandCollector([]pipeline.CollectorUnitSet{pipeline.SetSFU}, 4, false)

		in := pipeline.NewRegisterSet("ID_OC", 1)
		oc.AddInputPort(in, pipeline.SetSP)

		inst := &pipeline.WarpInstruction{WarpID: 0}
		in.MoveIn(inst, -1)

		oc.Cycle(-1)
		Expect(in.Ready()).To(BeTrue())
	})
})
