package view

import (
	"fmt"
	"slices"

	toolscache "k8s.io/client-go/tools/cache"

	"github.com/l7mp/viewstore/pkg/dbsp"
	"github.com/l7mp/viewstore/pkg/types"
)

const lookupIndex = "lookup"

// entry is a stored row with its multiplicity. Entries are immutable: an update stores a new
// entry, so a reader holding an old one is never affected.
type entry struct {
	key  string
	row  types.Row
	mult int
}

// Store is a multiset of rows on top of a toolscache.Indexer, keyed by the row identity and
// indexed by the lookup-key columns.
type Store struct {
	indexer toolscache.Indexer
	keyCols []int
}

// NewStore creates an empty store indexed by the given key columns.
func NewStore(keyCols []int) *Store {
	s := &Store{keyCols: append([]int(nil), keyCols...)}
	s.indexer = toolscache.NewIndexer(entryKeyFunc, toolscache.Indexers{lookupIndex: s.indexFunc})
	return s
}

func entryKeyFunc(obj any) (string, error) {
	e, ok := obj.(*entry)
	if !ok {
		return "", fmt.Errorf("unexpected object of type %T in view store", obj)
	}
	return e.key, nil
}

func (s *Store) indexFunc(obj any) ([]string, error) {
	e, ok := obj.(*entry)
	if !ok {
		return nil, fmt.Errorf("unexpected object of type %T in view store", obj)
	}
	return []string{e.row.Project(s.keyCols).Key()}, nil
}

// Multiplicity returns the multiplicity of a row, zero if absent.
func (s *Store) Multiplicity(row types.Row) int {
	item, exists, err := s.indexer.GetByKey(row.Key())
	if err != nil || !exists {
		return 0
	}
	return item.(*entry).mult
}

// Apply folds a delta into the store. The delta is checked as a whole first: if any row would end
// up with a negative multiplicity the store is left untouched and an ErrInternalInvariant is
// returned.
func (s *Store) Apply(delta *dbsp.ZSet) error {
	changes := delta.Entries()
	next := make(map[string]*entry, len(changes))
	order := make([]string, 0, len(changes))

	for _, c := range changes {
		key := c.Row.Key()
		e, ok := next[key]
		if !ok {
			e = &entry{key: key, row: c.Row, mult: s.Multiplicity(c.Row)}
			next[key] = e
			order = append(order, key)
		}
		e.mult += c.Multiplicity
		if e.mult < 0 {
			return types.NewInternalInvariantError(
				fmt.Sprintf("row %s would have multiplicity %d", c.Row, e.mult), nil)
		}
	}

	for _, key := range order {
		e := next[key]
		var err error
		if e.mult == 0 {
			err = s.indexer.Delete(e)
		} else {
			err = s.indexer.Update(e)
		}
		if err != nil {
			return types.NewInternalInvariantError("view store update failed", err)
		}
	}

	return nil
}

// ByKey returns the rows whose key columns equal key, a row with multiplicity n repeated n times,
// sorted.
func (s *Store) ByKey(key types.Row) ([]types.Row, error) {
	items, err := s.indexer.ByIndex(lookupIndex, key.Key())
	if err != nil {
		return nil, err
	}
	return expand(items), nil
}

// List returns all rows, sorted.
func (s *Store) List() []types.Row { return expand(s.indexer.List()) }

// Len returns the number of rows counting duplicates.
func (s *Store) Len() int {
	n := 0
	for _, item := range s.indexer.List() {
		n += item.(*entry).mult
	}
	return n
}

// ZSet returns the content of the store as a Z-set in row order.
func (s *Store) ZSet() *dbsp.ZSet {
	items := s.indexer.List()
	entries := make([]*entry, len(items))
	for i, item := range items {
		entries[i] = item.(*entry)
	}
	sortEntries(entries)

	zs := dbsp.NewZSet()
	for _, e := range entries {
		zs.AddRow(e.row, e.mult)
	}
	return zs
}

func expand(items []any) []types.Row {
	ret := []types.Row{}
	for _, item := range items {
		e := item.(*entry)
		for i := 0; i < e.mult; i++ {
			ret = append(ret, e.row)
		}
	}
	types.SortRows(ret)
	return ret
}

func sortEntries(es []*entry) {
	slices.SortFunc(es, func(a, b *entry) int { return a.row.Compare(b.row) })
}
