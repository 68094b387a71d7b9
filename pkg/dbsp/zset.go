package dbsp

import (
	"strconv"
	"strings"

	"github.com/l7mp/viewstore/pkg/types"
)

// Change is a single signed row: a positive multiplicity is an insertion, a negative one a
// deletion.
type Change struct {
	Row          types.Row
	Multiplicity int
}

// ZSet is a multiset of rows with integer multiplicities, used as the unit of change propagated
// through the dataflow graph and as the state of stateful operators. Unlike a plain Z-set it
// remembers the order in which rows were added, so that the negative half of a replace is
// delivered before the positive half.
type ZSet struct {
	order  []string             // row keys in insertion order, may hold stale slots
	pos    map[string]int       // row key -> live slot in order
	rows   map[string]types.Row // row key -> row
	counts map[string]int       // row key -> multiplicity
	dead   int                  // number of stale slots in order
}

// NewZSet creates an empty ZSet.
func NewZSet() *ZSet {
	return &ZSet{
		order:  []string{},
		pos:    make(map[string]int),
		rows:   make(map[string]types.Row),
		counts: make(map[string]int),
	}
}

// SingletonZSet creates a ZSet holding a single row with the given multiplicity.
func SingletonZSet(row types.Row, mult int) *ZSet {
	zs := NewZSet()
	zs.AddRow(row, mult)
	return zs
}

// AddRow adds a row with the given multiplicity in place. Rows whose multiplicity drops to zero
// are removed; re-adding them later places them at the end of the order.
func (zs *ZSet) AddRow(row types.Row, mult int) {
	if mult == 0 {
		return
	}

	key := row.Key()
	if _, exists := zs.counts[key]; !exists {
		zs.pos[key] = len(zs.order)
		zs.order = append(zs.order, key)
		zs.rows[key] = row
	}
	zs.counts[key] += mult

	if zs.counts[key] == 0 {
		delete(zs.counts, key)
		delete(zs.rows, key)
		delete(zs.pos, key)
		zs.dead++
		zs.compact()
	}
}

// compact drops stale slots once they dominate the order list.
func (zs *ZSet) compact() {
	if zs.dead < 32 || zs.dead*2 < len(zs.order) {
		return
	}
	order := make([]string, 0, len(zs.counts))
	for i, key := range zs.order {
		if p, ok := zs.pos[key]; ok && p == i {
			zs.pos[key] = len(order)
			order = append(order, key)
		}
	}
	zs.order = order
	zs.dead = 0
}

// Add performs Z-set addition in place.
func (zs *ZSet) Add(other *ZSet) {
	if other == nil {
		return
	}
	for _, c := range other.Entries() {
		zs.AddRow(c.Row, c.Multiplicity)
	}
}

// Entries returns the non-zero rows with their multiplicities in insertion order.
func (zs *ZSet) Entries() []Change {
	ret := make([]Change, 0, len(zs.counts))
	for i, key := range zs.order {
		if p, ok := zs.pos[key]; ok && p == i {
			ret = append(ret, Change{Row: zs.rows[key], Multiplicity: zs.counts[key]})
		}
	}
	return ret
}

// Multiplicity returns the multiplicity of a row, zero if absent.
func (zs *ZSet) Multiplicity(row types.Row) int {
	return zs.counts[row.Key()]
}

// IsZero checks whether the ZSet is empty.
func (zs *ZSet) IsZero() bool {
	return zs == nil || len(zs.counts) == 0
}

// Size returns the number of rows counting only positive multiplicities.
func (zs *ZSet) Size() int {
	total := 0
	for _, count := range zs.counts {
		if count > 0 {
			total += count
		}
	}
	return total
}

// Rows expands the positive part of the ZSet into a row list: a row with multiplicity n appears
// n times.
func (zs *ZSet) Rows() []types.Row {
	ret := []types.Row{}
	for _, c := range zs.Entries() {
		for i := 0; i < c.Multiplicity; i++ {
			ret = append(ret, c.Row)
		}
	}
	return ret
}

// String returns a string representation of the ZSet for debugging.
func (zs *ZSet) String() string {
	if zs.IsZero() {
		return "∅"
	}

	parts := []string{}
	for _, c := range zs.Entries() {
		parts = append(parts, c.Row.String()+"×"+strconv.Itoa(c.Multiplicity))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
