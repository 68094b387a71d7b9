package visualize

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/l7mp/viewstore/pkg/dbsp"
	"github.com/l7mp/viewstore/pkg/types"
)

func TestVisualize(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Visualize")
}

var _ = Describe("Visualize", func() {
	var g *Graph

	BeforeEach(func() {
		cols := []types.Column{{Name: "aid", Kind: types.KindInt}, {Name: "uid", Kind: types.KindInt}}
		dg := dbsp.NewGraph(GinkgoLogr)
		in, err := dg.AddNode(dbsp.NewInput("Vote", cols))
		Expect(err).NotTo(HaveOccurred())
		cnt := dbsp.NewIncrementalCount(cols, []int{0}, 1, "votes")
		c, err := dg.AddNode(cnt, in)
		Expect(err).NotTo(HaveOccurred())
		root, err := dg.AddNode(dbsp.NewProjection(&dbsp.ColumnProjector{Indices: []int{0, 1},
			Labels: []string{"aid", "votes"}}, cnt.Columns()), c)
		Expect(err).NotTo(HaveOccurred())
		Expect(dg.Activate(in, c)).To(Succeed())

		g = BuildGraph("recipe", dg, []ViewRef{{Name: "VoteCount", Root: root}})
	})

	It("should build the graph", func() {
		Expect(g.Nodes).To(HaveLen(3))
		Expect(g.Nodes[0].Table).To(Equal("Vote"))
		Expect(g.Nodes[1].Label).To(Equal("γ[aid](votes)"))
		Expect(g.Nodes[2].Active).To(BeFalse())
		Expect(g.Edges).To(Equal([]Connection{{From: 0, To: 1}, {From: 1, To: 2}}))
		Expect(g.String()).To(ContainSubstring("1: γ[aid](votes) <- [0]"))
	})

	It("should render DOT", func() {
		gen, ok := NewGenerator("dot")
		Expect(ok).To(BeTrue())
		out := gen.Generate(g)
		Expect(out).To(ContainSubstring("digraph"))
		Expect(out).To(ContainSubstring("VoteCount"))
		Expect(out).To(ContainSubstring("0: Vote"))
	})

	It("should render Mermaid", func() {
		gen, ok := NewGenerator("mermaid")
		Expect(ok).To(BeTrue())
		out := gen.Generate(g)
		Expect(out).NotTo(HavePrefix("```"))
		Expect(out).To(ContainSubstring("-->"))

		gen, ok = NewGenerator("markdown")
		Expect(ok).To(BeTrue())
		Expect(gen.Generate(g)).To(HavePrefix("```mermaid\n"))
	})

	It("should reject unknown formats", func() {
		_, ok := NewGenerator("svg")
		Expect(ok).To(BeFalse())
	})
})
