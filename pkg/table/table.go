// Package table implements base tables: named relations with a fixed schema and an optional
// primary key that accept row insertions and deletions and emit every change into the dataflow
// graph.
//
// Every mutation is validated before it touches any state, then recorded, then propagated
// synchronously: Insert, Delete and DeleteRow return only after the change has been pushed through
// all dependent views. Mutations of a single table are serialized, so changes are propagated in the
// order the calls return.
package table

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/l7mp/viewstore/pkg/dbsp"
	"github.com/l7mp/viewstore/pkg/types"
)

// NoPrimaryKey marks a table without a declared primary key. Such tables hold a multiset of rows.
const NoPrimaryKey = -1

// Emitter hands a change to the dataflow graph and returns once it has been propagated.
type Emitter func(delta *dbsp.ZSet) error

// Options defines the table configuration.
type Options struct {
	// Emit is called with every change. A nil Emit drops changes.
	Emit Emitter
	// Logger is the base logger.
	Logger logr.Logger
}

// Table is a base relation.
type Table struct {
	name    string
	columns []types.Column
	pk      int
	emit    Emitter

	mu    sync.Mutex            // serializes mutations and their propagation
	rows  *dbsp.ZSet            // live rows
	index map[string]types.Row // primary key -> live row

	seq  atomic.Uint64 // sequence number of the last accepted mutation
	pmu  sync.Mutex
	cond *sync.Cond
	done uint64 // sequence number of the last propagated mutation, guarded by pmu

	log logr.Logger
}

// New creates a new table. The primary key is given as a column index, or NoPrimaryKey.
func New(name string, columns []types.Column, primaryKey int, opts Options) (*Table, error) {
	if name == "" {
		return nil, types.NewSchemaError("empty table name")
	}
	if len(columns) == 0 {
		return nil, types.NewSchemaErrorf("table %q has no columns", name)
	}
	if primaryKey != NoPrimaryKey && (primaryKey < 0 || primaryKey >= len(columns)) {
		return nil, types.NewSchemaErrorf("table %q: primary key index %d out of range", name, primaryKey)
	}

	seen := map[string]bool{}
	for _, c := range columns {
		if c.Name == "" {
			return nil, types.NewSchemaErrorf("table %q: empty column name", name)
		}
		if seen[c.Name] {
			return nil, types.NewSchemaErrorf("table %q: duplicate column %q", name, c.Name)
		}
		seen[c.Name] = true
	}

	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	emit := opts.Emit
	if emit == nil {
		emit = func(*dbsp.ZSet) error { return nil }
	}

	t := &Table{
		name:    name,
		columns: append([]types.Column(nil), columns...),
		pk:      primaryKey,
		emit:    emit,
		rows:    dbsp.NewZSet(),
		index:   map[string]types.Row{},
		log:     logger.WithName("table").WithValues("name", name),
	}
	t.cond = sync.NewCond(&t.pmu)

	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the table schema.
func (t *Table) Columns() []types.Column { return append([]types.Column(nil), t.columns...) }

// PrimaryKey returns the index of the primary-key column, or NoPrimaryKey.
func (t *Table) PrimaryKey() int { return t.pk }

// Insert adds a row to the table.
func (t *Table) Insert(row types.Row) error {
	if err := types.CheckRow(t.columns, row); err != nil {
		return fmt.Errorf("insert into %q: %w", t.name, err)
	}
	row = row.Copy()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pk != NoPrimaryKey {
		key := row[t.pk]
		if key.IsNull() {
			return fmt.Errorf("insert into %q: %w", t.name,
				types.NewSchemaErrorf("null primary key in column %q", t.columns[t.pk].Name))
		}
		if _, exists := t.index[pkKey(key)]; exists {
			return types.NewDuplicateKeyError(t.name, key)
		}
		t.index[pkKey(key)] = row
	}
	t.rows.AddRow(row, 1)

	t.log.V(2).Info("insert", "row", row.String())

	return t.propagate(dbsp.SingletonZSet(row, 1))
}

// Delete removes the row with the given primary key.
func (t *Table) Delete(key types.DataType) error {
	if t.pk == NoPrimaryKey {
		return types.NewSchemaErrorf("delete from %q: table has no primary key", t.name)
	}
	if err := t.columns[t.pk].Kind.Check(key); err != nil {
		return fmt.Errorf("delete from %q: %w", t.name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	row, ok := t.index[pkKey(key)]
	if !ok {
		return types.NewNotFoundError(fmt.Sprintf("table %q has no row with key %s", t.name, key))
	}
	return t.remove(row)
}

// DeleteRow removes one occurrence of an exact row. This is the only way to delete from a table
// without a primary key.
func (t *Table) DeleteRow(row types.Row) error {
	if err := types.CheckRow(t.columns, row); err != nil {
		return fmt.Errorf("delete from %q: %w", t.name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rows.Multiplicity(row) <= 0 {
		return types.NewNotFoundError(fmt.Sprintf("table %q has no row %s", t.name, row))
	}
	return t.remove(row)
}

func (t *Table) remove(row types.Row) error {
	if t.pk != NoPrimaryKey {
		delete(t.index, pkKey(row[t.pk]))
	}
	t.rows.AddRow(row, -1)

	t.log.V(2).Info("delete", "row", row.String())

	return t.propagate(dbsp.SingletonZSet(row, -1))
}

// propagate must be called with the table lock held.
func (t *Table) propagate(delta *dbsp.ZSet) error {
	seq := t.seq.Add(1)
	err := t.emit(delta)

	t.pmu.Lock()
	t.done = seq
	t.cond.Broadcast()
	t.pmu.Unlock()

	if err != nil {
		t.log.Error(err, "propagation failed", "seq", seq)
		return fmt.Errorf("table %q: %w", t.name, err)
	}
	return nil
}

// Get returns the live row with the given primary key.
func (t *Table) Get(key types.DataType) (types.Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	row, ok := t.index[pkKey(key)]
	return row, ok
}

// Rows returns a snapshot of the live rows.
func (t *Table) Rows() []types.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows.Rows()
}

// Snapshot returns the live rows as a Z-set.
func (t *Table) Snapshot() *dbsp.ZSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	ret := dbsp.NewZSet()
	ret.Add(t.rows)
	return ret
}

// Len returns the number of live rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rows.Size()
}

// Seq returns the sequence number of the last accepted mutation.
func (t *Table) Seq() uint64 { return t.seq.Load() }

// WaitPropagated blocks until every mutation up to seq has been propagated.
func (t *Table) WaitPropagated(seq uint64) {
	t.pmu.Lock()
	defer t.pmu.Unlock()
	for t.done < seq {
		t.cond.Wait()
	}
}

// Sync waits for the propagation of every mutation accepted before the call.
func (t *Table) Sync() { t.WaitPropagated(t.Seq()) }

func pkKey(v types.DataType) string { return types.Row{v}.Key() }
