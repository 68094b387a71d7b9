package dbsp

import (
	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/l7mp/viewstore/pkg/types"
)

var _ = Describe("ZSet", func() {
	It("should start empty", func() {
		zs := NewZSet()
		gomega.Expect(zs.IsZero()).To(gomega.BeTrue())
		gomega.Expect(zs.Size()).To(gomega.Equal(0))
		gomega.Expect(zs.Entries()).To(gomega.BeEmpty())
		gomega.Expect(zs.String()).To(gomega.Equal("∅"))

		var nilZS *ZSet
		gomega.Expect(nilZS.IsZero()).To(gomega.BeTrue())
	})

	It("should add up multiplicities", func() {
		zs := NewZSet()
		zs.AddRow(row(1, "a"), 1)
		zs.AddRow(row(1, "a"), 2)
		zs.AddRow(row(2, "b"), 1)

		gomega.Expect(zs.Multiplicity(row(1, "a"))).To(gomega.Equal(3))
		gomega.Expect(zs.Multiplicity(row(2, "b"))).To(gomega.Equal(1))
		gomega.Expect(zs.Multiplicity(row(3, "c"))).To(gomega.Equal(0))
		gomega.Expect(zs.Size()).To(gomega.Equal(4))
		gomega.Expect(zs.Rows()).To(gomega.HaveLen(4))
	})

	It("should drop rows that cancel out", func() {
		zs := NewZSet()
		zs.AddRow(row(1, "a"), 1)
		zs.AddRow(row(1, "a"), -1)
		gomega.Expect(zs.IsZero()).To(gomega.BeTrue())
		gomega.Expect(zs.Entries()).To(gomega.BeEmpty())
	})

	It("should keep insertion order", func() {
		zs := delta(row(2, "new"), 1, row(1, "old"), -1)
		entries := zs.Entries()
		gomega.Expect(entries).To(gomega.HaveLen(2))
		gomega.Expect(entries[0].Row).To(gomega.Equal(row(2, "new")))
		gomega.Expect(entries[0].Multiplicity).To(gomega.Equal(1))
		gomega.Expect(entries[1].Row).To(gomega.Equal(row(1, "old")))
		gomega.Expect(entries[1].Multiplicity).To(gomega.Equal(-1))
	})

	It("should move re-added rows to the end", func() {
		zs := delta(row(1), 1, row(2), 1)
		zs.AddRow(row(1), -1)
		zs.AddRow(row(1), 1)

		entries := zs.Entries()
		gomega.Expect(entries).To(gomega.HaveLen(2))
		gomega.Expect(entries[0].Row).To(gomega.Equal(row(2)))
		gomega.Expect(entries[1].Row).To(gomega.Equal(row(1)))
	})

	It("should keep order across compaction", func() {
		zs := NewZSet()
		for i := 0; i < 100; i++ {
			zs.AddRow(row(i), 1)
		}
		for i := 0; i < 80; i++ {
			zs.AddRow(row(i), -1)
		}

		entries := zs.Entries()
		gomega.Expect(entries).To(gomega.HaveLen(20))
		for i, c := range entries {
			gomega.Expect(c.Row).To(gomega.Equal(row(80 + i)))
		}
		gomega.Expect(zs.Size()).To(gomega.Equal(20))
	})

	It("should add", func() {
		a := delta(row(1), 1, row(2), 2)
		b := delta(row(2), -2, row(3), 1)
		a.Add(b)
		gomega.Expect(a.Multiplicity(row(1))).To(gomega.Equal(1))
		gomega.Expect(a.Multiplicity(row(2))).To(gomega.Equal(0))
		gomega.Expect(a.Multiplicity(row(3))).To(gomega.Equal(1))

		a.Add(delta(row(1), -1, row(3), -1))
		gomega.Expect(a.IsZero()).To(gomega.BeTrue())
	})

	It("should only count positive rows", func() {
		zs := delta(row(1), 2, row(2), -1)
		gomega.Expect(zs.Size()).To(gomega.Equal(2))
		gomega.Expect(zs.Rows()).To(gomega.Equal([]types.Row{row(1), row(1)}))
	})

	It("should tell nulls and values apart", func() {
		zs := delta(types.Row{types.Null()}, 1, row(0), 1, row(""), 1)
		gomega.Expect(zs.Entries()).To(gomega.HaveLen(3))
	})

	It("should print", func() {
		gomega.Expect(delta(row(1, "a"), 2).String()).To(gomega.Equal(`{(1, "a")×2}`))
	})
})
