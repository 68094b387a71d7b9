package dbsp

import (
	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/l7mp/viewstore/pkg/types"
)

var _ = Describe("IncrementalCountOp", func() {
	var count *IncrementalCountOp

	BeforeEach(func() {
		// SELECT article_id, COUNT(*) AS votes FROM Vote GROUP BY article_id
		count = NewIncrementalCount(voteCols, []int{0}, CountStar, "votes")
	})

	It("should describe itself", func() {
		gomega.Expect(count.Columns()).To(gomega.Equal([]types.Column{
			{Name: "article_id", Kind: types.KindInt},
			{Name: "votes", Kind: types.KindInt},
		}))
		gomega.Expect(count.OpType()).To(gomega.Equal(OpTypeNonLinear))
		gomega.Expect(count.String()).To(gomega.Equal("γ[article_id](votes)"))
	})

	It("should emit a new group", func() {
		out, err := count.Process(delta(row(1, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Entries()).To(gomega.HaveLen(1))
		gomega.Expect(out.Multiplicity(row(1, 1))).To(gomega.Equal(1))

		c, ok := count.Count(row(1))
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(c).To(gomega.Equal(int64(1)))
	})

	It("should emit a replace on update with the retraction first", func() {
		_, err := count.Process(delta(row(1, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		out, err := count.Process(delta(row(1, "u2"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		entries := out.Entries()
		gomega.Expect(entries).To(gomega.HaveLen(2))
		gomega.Expect(entries[0]).To(gomega.Equal(Change{Row: row(1, 1), Multiplicity: -1}))
		gomega.Expect(entries[1]).To(gomega.Equal(Change{Row: row(1, 2), Multiplicity: 1}))
	})

	It("should fold several changes to the same group", func() {
		out, err := count.Process(delta(row(1, "u1"), 1, row(1, "u2"), 1, row(2, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Multiplicity(row(1, 1))).To(gomega.Equal(0))
		gomega.Expect(out.Multiplicity(row(1, 2))).To(gomega.Equal(1))
		gomega.Expect(out.Multiplicity(row(2, 1))).To(gomega.Equal(1))
	})

	It("should keep a group at zero", func() {
		_, err := count.Process(delta(row(1, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		out, err := count.Process(delta(row(1, "u1"), -1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Multiplicity(row(1, 1))).To(gomega.Equal(-1))
		gomega.Expect(out.Multiplicity(row(1, 0))).To(gomega.Equal(1))

		c, ok := count.Count(row(1))
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(c).To(gomega.Equal(int64(0)))
	})

	It("should refuse to go below zero and keep its state", func() {
		_, err := count.Process(delta(row(1, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		_, err = count.Process(delta(row(2, "u1"), 1, row(1, "u1"), -2))
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(IsInternalInvariant(err)).To(gomega.BeTrue())

		c, _ := count.Count(row(1))
		gomega.Expect(c).To(gomega.Equal(int64(1)))
		_, ok := count.Count(row(2))
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	It("should reject a retraction for an unknown group", func() {
		_, err := count.Process(delta(row(7, "u1"), -1))
		gomega.Expect(err).To(gomega.HaveOccurred())
		gomega.Expect(IsInternalInvariant(err)).To(gomega.BeTrue())
	})

	It("should skip nulls in COUNT(column)", func() {
		count = NewIncrementalCount(articleCols, []int{2}, 1, "titles")
		out, err := count.Process(delta(
			row(1, "t1", "a1"), 1,
			types.Row{types.Int(2), types.Null(), types.Text("a1")}, 1,
		))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Multiplicity(row("a1", 1))).To(gomega.Equal(1))
	})

	It("should emit a zero count for a group holding only nulls", func() {
		// SELECT article_id, COUNT(user) AS votes FROM Vote GROUP BY article_id
		count = NewIncrementalCount(voteCols, []int{0}, 1, "votes")
		out, err := count.Process(delta(types.Row{types.Int(7), types.Null()}, 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Entries()).To(gomega.HaveLen(1))
		gomega.Expect(out.Multiplicity(row(7, 0))).To(gomega.Equal(1))

		c, ok := count.Count(row(7))
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(c).To(gomega.Equal(int64(0)))

		// another null row leaves the group alone
		out, err = count.Process(delta(types.Row{types.Int(7), types.Null()}, 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.IsZero()).To(gomega.BeTrue())

		out, err = count.Process(delta(row(7, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Multiplicity(row(7, 0))).To(gomega.Equal(-1))
		gomega.Expect(out.Multiplicity(row(7, 1))).To(gomega.Equal(1))

		// retracting a null row of an unknown group is a no-op
		out, err = count.Process(delta(types.Row{types.Int(8), types.Null()}, -1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.IsZero()).To(gomega.BeTrue())
	})

	It("should count a global group without group columns", func() {
		count = NewIncrementalCount(voteCols, []int{}, CountStar, "total")
		out, err := count.Process(delta(row(1, "u1"), 1, row(2, "u1"), 1))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(out.Multiplicity(row(2))).To(gomega.Equal(1))
	})
})
