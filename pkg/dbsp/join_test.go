package dbsp

import (
	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/l7mp/viewstore/pkg/types"
)

var _ = Describe("IncrementalJoinOp", func() {
	var join *IncrementalJoinOp

	Context("inner join", func() {
		BeforeEach(func() {
			join = NewIncrementalJoin(InnerJoin, articleCols, 0, voteCols, 0)
		})

		It("should describe itself", func() {
			gomega.Expect(join.Columns()).To(gomega.HaveLen(5))
			gomega.Expect(join.Columns()[3].Name).To(gomega.Equal("article_id"))
			gomega.Expect(join.OpType()).To(gomega.Equal(OpTypeBilinear))
			gomega.Expect(join.String()).To(gomega.Equal("⋈[inner](id = article_id)"))
		})

		It("should emit nothing for unmatched rows", func() {
			out, err := join.Process(delta(row(1, "t1", "a1"), 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.IsZero()).To(gomega.BeTrue())

			out, err = join.Process(nil, delta(row(2, "u1"), 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.IsZero()).To(gomega.BeTrue())
		})

		It("should join incrementally from both sides", func() {
			out, err := join.Process(delta(row(1, "t1", "a1"), 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.IsZero()).To(gomega.BeTrue())

			out, err = join.Process(nil, delta(row(1, "u1"), 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u1"))).To(gomega.Equal(1))

			out, err = join.Process(nil, delta(row(1, "u2"), 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Entries()).To(gomega.HaveLen(1))
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u2"))).To(gomega.Equal(1))

			// deleting the left row retracts every joined row
			out, err = join.Process(delta(row(1, "t1", "a1"), -1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Entries()).To(gomega.HaveLen(2))
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u1"))).To(gomega.Equal(-1))
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u2"))).To(gomega.Equal(-1))
		})

		It("should handle deltas on both ports at once", func() {
			out, err := join.Process(delta(row(1, "t1", "a1"), 1), delta(row(1, "u1"), 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u1"))).To(gomega.Equal(1))
		})

		It("should multiply multiplicities of duplicate rows", func() {
			_, err := join.Process(nil, delta(row(1, "u1"), 2))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			out, err := join.Process(delta(row(1, "t1", "a1"), 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u1"))).To(gomega.Equal(2))
		})

		It("should never match null keys", func() {
			out, err := join.Process(delta(types.Row{types.Null(), types.Text("t"), types.Text("a")}, 1),
				delta(types.Row{types.Null(), types.Text("u")}, 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.IsZero()).To(gomega.BeTrue())
		})

		It("should reject retracting a right row that is not there", func() {
			_, err := join.Process(nil, delta(row(1, "u1"), -1))
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(IsInternalInvariant(err)).To(gomega.BeTrue())
		})

		It("should reject rows of the wrong width", func() {
			_, err := join.Process(delta(row(1), 1), nil)
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(IsInternalInvariant(err)).To(gomega.BeTrue())
		})
	})

	Context("left join", func() {
		padded := func(id int, title, author string) types.Row {
			return types.Row{types.Int(int64(id)), types.Text(title), types.Text(author), types.Null(), types.Null()}
		}

		BeforeEach(func() {
			join = NewIncrementalJoin(LeftJoin, articleCols, 0, voteCols, 0)
		})

		It("should pad unmatched left rows", func() {
			out, err := join.Process(delta(row(1, "t1", "a1"), 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(padded(1, "t1", "a1"))).To(gomega.Equal(1))
		})

		It("should swap the padded row for the first match and back", func() {
			_, err := join.Process(delta(row(1, "t1", "a1"), 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			out, err := join.Process(nil, delta(row(1, "u1"), 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(padded(1, "t1", "a1"))).To(gomega.Equal(-1))
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u1"))).To(gomega.Equal(1))

			out, err = join.Process(nil, delta(row(1, "u2"), 1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(padded(1, "t1", "a1"))).To(gomega.Equal(0))
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u2"))).To(gomega.Equal(1))

			out, err = join.Process(nil, delta(row(1, "u1"), -1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(padded(1, "t1", "a1"))).To(gomega.Equal(0))

			out, err = join.Process(nil, delta(row(1, "u2"), -1))
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(row(1, "t1", "a1", 1, "u2"))).To(gomega.Equal(-1))
			gomega.Expect(out.Multiplicity(padded(1, "t1", "a1"))).To(gomega.Equal(1))
		})

		It("should retract the padded row of a deleted left row", func() {
			_, err := join.Process(delta(row(1, "t1", "a1"), 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			out, err := join.Process(delta(row(1, "t1", "a1"), -1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(padded(1, "t1", "a1"))).To(gomega.Equal(-1))
		})

		It("should pad left rows with a null key", func() {
			r := types.Row{types.Null(), types.Text("t"), types.Text("a")}
			out, err := join.Process(delta(r, 1), nil)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(out.Multiplicity(append(r.Copy(), types.Null(), types.Null()))).To(gomega.Equal(1))
		})
	})
})
