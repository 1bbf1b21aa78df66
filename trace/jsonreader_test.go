package trace_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2gpusim/mem"
	"github.com/sarchlab/m2gpusim/trace"
)

const sampleTrace = `{
  "kernels": [
    {
      "launch_id": 0,
      "name": "vecadd",
      "grid_dim": {"X": 1, "Y": 1, "Z": 1},
      "block_dim": {"X": 32, "Y": 1, "Z": 1},
      "blocks": [
        {
          "id": 0,
          "warps": [
            {
              "id": 0,
              "instructions": [
                {"pc": 0, "op_category": "MEM", "is_memory_op": true,
                 "access": {"address": 4096, "request_size": 32, "kind": "GLOBAL_R"}},
                {"pc": 4, "op_category": "SP", "is_memory_op": false}
              ]
            }
          ]
        }
      ]
    }
  ]
}`

var _ = Describe("JSONReader", func() {
	var path string

	BeforeEach(func() {
		f, err := os.CreateTemp("", "trace-*.json")
		Expect(err).NotTo(HaveOccurred())
		defer f.Close()
		_, err = f.WriteString(sampleTrace)
		Expect(err).NotTo(HaveOccurred())
		path = f.Name()
	})

	AfterEach(func() {
		os.Remove(path)
	})

	It("parses a kernel's blocks, warps, and instructions", func() {
		r, err := trace.LoadJSONReader(path)
		Expect(err).NotTo(HaveOccurred())

		kernel, err := r.ReadKernel(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(kernel.Name).To(Equal("vecadd"))
		Expect(kernel.Blocks).To(HaveLen(1))
		Expect(kernel.Blocks[0].Warps).To(HaveLen(1))

		warp := kernel.Blocks[0].Warps[0]
		first := warp.Next()
		Expect(first.IsMemoryOp).To(BeTrue())
		Expect(first.Access.Address).To(Equal(uint64(4096)))
		Expect(first.Access.Kind).To(Equal(mem.GlobalRead))
	})

	It("returns an error for an unknown launch id", func() {
		r, err := trace.LoadJSONReader(path)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.ReadKernel(99)
		Expect(err).To(HaveOccurred())
	})

	It("returns an error when the file cannot be read", func() {
		_, err := trace.LoadJSONReader(filepath.Join(os.TempDir(), "does-not-exist.json"))
		Expect(err).To(HaveOccurred())
	})
})
