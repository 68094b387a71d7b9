package dbsp

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/l7mp/viewstore/pkg/types"
)

// testSink integrates the deltas it receives.
type testSink struct {
	name    string
	mu      sync.Mutex
	content *ZSet
	calls   int
	fault   error
	fail    error
}

func newTestSink(name string) *testSink { return &testSink{name: name, content: NewZSet()} }

func (s *testSink) Apply(delta *ZSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.calls++
	s.content.Add(delta)
	return nil
}

func (s *testSink) Fault(err error) { s.mu.Lock(); s.fault = err; s.mu.Unlock() }
func (s *testSink) Name() string    { return s.name }

var _ = Describe("Graph", func() {
	var (
		g                 *Graph
		articles, votes   NodeID
		join, sel, counts NodeID
		joinSink, cntSink *testSink
	)

	BeforeEach(func() {
		var err error
		g = NewGraph(logger)

		articles, err = g.AddNode(NewInput("Article", articleCols))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		votes, err = g.AddNode(NewInput("Vote", voteCols))
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		j := NewIncrementalJoin(InnerJoin, articleCols, 0, voteCols, 0)
		join, err = g.AddNode(j, articles, votes)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		s := NewSelection(&ColumnEquals{Index: 2, Value: types.Text("a1"), Label: "author"}, j.Columns())
		sel, err = g.AddNode(s, join)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		counts, err = g.AddNode(NewIncrementalCount(s.Columns(), []int{0}, CountStar, "votes"), sel)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		joinSink, cntSink = newTestSink("joined"), newTestSink("counts")
		gomega.Expect(g.AddSink(join, joinSink)).To(gomega.Succeed())
		gomega.Expect(g.AddSink(counts, cntSink)).To(gomega.Succeed())
	})

	It("should reject malformed nodes", func() {
		_, err := g.AddNode(NewInput("X", voteCols), articles)
		gomega.Expect(err).To(gomega.HaveOccurred())
		_, err = g.AddNode(NewIncrementalJoin(InnerJoin, articleCols, 0, voteCols, 0), articles)
		gomega.Expect(err).To(gomega.HaveOccurred())
		_, err = g.AddNode(NewSelection(And{}, voteCols), NodeID(42))
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	It("should keep stable ids in creation order", func() {
		gomega.Expect(g.Len()).To(gomega.Equal(5))
		for i, n := range g.Nodes() {
			gomega.Expect(n.ID).To(gomega.Equal(NodeID(i)))
		}
		n, ok := g.Node(join)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(n.Inputs).To(gomega.Equal([]NodeID{articles, votes}))
		gomega.Expect(n.Downstream()).To(gomega.Equal([]NodeID{sel}))
		gomega.Expect(n.Sinks()).To(gomega.Equal([]string{"joined"}))
		gomega.Expect(n.Label()).To(gomega.Equal("⋈[inner](id = article_id)"))
		gomega.Expect(g.String()).To(gomega.ContainSubstring("Graph with 5 nodes"))
	})

	It("should not propagate along inactive edges", func() {
		gomega.Expect(g.Push(articles, delta(row(1, "t1", "a1"), 1))).To(gomega.Succeed())
		gomega.Expect(joinSink.calls).To(gomega.Equal(0))
	})

	Context("when active", func() {
		BeforeEach(func() {
			gomega.Expect(g.Activate(articles, votes, join, sel, counts)).To(gomega.Succeed())
			n, _ := g.Node(counts)
			gomega.Expect(n.IsActive()).To(gomega.BeTrue())
		})

		It("should propagate deltas depth first to all sinks", func() {
			gomega.Expect(g.Push(articles, delta(row(1, "t1", "a1"), 1, row(2, "t2", "a2"), 1))).To(gomega.Succeed())
			gomega.Expect(joinSink.content.IsZero()).To(gomega.BeTrue())

			gomega.Expect(g.Push(votes, delta(row(1, "u1"), 1))).To(gomega.Succeed())
			gomega.Expect(g.Push(votes, delta(row(1, "u2"), 1))).To(gomega.Succeed())
			gomega.Expect(g.Push(votes, delta(row(2, "u1"), 1))).To(gomega.Succeed())

			gomega.Expect(joinSink.content.Size()).To(gomega.Equal(3))
			gomega.Expect(cntSink.content.Entries()).To(gomega.Equal([]Change{{Row: row(1, 2), Multiplicity: 1}}))

			gomega.Expect(g.Push(votes, delta(row(1, "u2"), -1))).To(gomega.Succeed())
			gomega.Expect(cntSink.content.Entries()).To(gomega.Equal([]Change{{Row: row(1, 1), Multiplicity: 1}}))
		})

		It("should skip sinks when nothing changes", func() {
			gomega.Expect(g.Push(votes, delta(row(9, "u1"), 1))).To(gomega.Succeed())
			gomega.Expect(joinSink.calls).To(gomega.Equal(0))
			gomega.Expect(cntSink.calls).To(gomega.Equal(0))
		})

		It("should fault the sinks downstream of a failing node", func() {
			err := g.Push(votes, delta(row(1, "u1"), -1))
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(IsInternalInvariant(err)).To(gomega.BeTrue())

			var perr *PropagationError
			gomega.Expect(errors.As(err, &perr)).To(gomega.BeTrue())
			gomega.Expect(perr.Node).To(gomega.Equal(join))

			gomega.Expect(joinSink.fault).To(gomega.HaveOccurred())
			gomega.Expect(cntSink.fault).To(gomega.HaveOccurred())
		})

		It("should report failing sinks as engine faults", func() {
			joinSink.fail = types.NewInternalInvariantError("boom", nil)
			gomega.Expect(g.Push(articles, delta(row(1, "t1", "a1"), 1))).To(gomega.Succeed())
			err := g.Push(votes, delta(row(1, "u1"), 1))
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(IsInternalInvariant(err)).To(gomega.BeTrue())
			gomega.Expect(cntSink.fault).To(gomega.HaveOccurred())
		})

		It("should run concurrent pushes safely", func() {
			gomega.Expect(g.Push(articles, delta(row(1, "t1", "a1"), 1))).To(gomega.Succeed())

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					gomega.Expect(g.Push(votes, delta(row(1, i), 1))).To(gomega.Succeed())
				}(i)
			}
			wg.Wait()

			gomega.Expect(cntSink.content.Entries()).To(gomega.Equal([]Change{{Row: row(1, 50), Multiplicity: 1}}))
		})
	})

	Context("when extended", func() {
		It("should replay existing state into new nodes only", func() {
			gomega.Expect(g.Activate(articles, votes, join, sel, counts)).To(gomega.Succeed())
			gomega.Expect(g.Push(articles, delta(row(1, "t1", "a1"), 1))).To(gomega.Succeed())
			gomega.Expect(g.Push(votes, delta(row(1, "u1"), 1))).To(gomega.Succeed())
			callsBefore := joinSink.calls

			// a new view over the existing count node
			proj := NewProjection(&ColumnProjector{Indices: []int{1}, Labels: []string{"votes"}},
				[]types.Column{{Name: "votes", Kind: types.KindInt}})
			root, err := g.AddNode(proj, counts)
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			newSink := newTestSink("new")
			gomega.Expect(g.AddSink(root, newSink)).To(gomega.Succeed())

			gomega.Expect(g.Replay(counts, cntSink.content)).To(gomega.Succeed())
			gomega.Expect(newSink.content.Entries()).To(gomega.Equal([]Change{{Row: row(1), Multiplicity: 1}}))
			gomega.Expect(joinSink.calls).To(gomega.Equal(callsBefore))

			gomega.Expect(g.Activate(root)).To(gomega.Succeed())
			gomega.Expect(g.Push(votes, delta(row(1, "u2"), 1))).To(gomega.Succeed())
			gomega.Expect(newSink.content.Entries()).To(gomega.Equal([]Change{{Row: row(2), Multiplicity: 1}}))

			// replay after activation is a no-op
			gomega.Expect(g.Replay(counts, cntSink.content)).To(gomega.Succeed())
			gomega.Expect(newSink.content.Entries()).To(gomega.Equal([]Change{{Row: row(2), Multiplicity: 1}}))
		})
	})
})
