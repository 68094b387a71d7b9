// Package view implements materialized views: the result of a view definition kept current by
// the dataflow graph and served through point lookups on the lookup-key columns.
package view

import (
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/l7mp/viewstore/pkg/dbsp"
	"github.com/l7mp/viewstore/pkg/types"
	"github.com/l7mp/viewstore/pkg/util"
)

// Upstream is a source of writes a view depends on. Blocking lookups wait until every write
// accepted by an upstream has been propagated.
type Upstream interface {
	Name() string
	Seq() uint64
	WaitPropagated(seq uint64)
}

// Options defines the view configuration.
type Options struct {
	// Columns is the schema of the view rows.
	Columns []types.Column
	// KeyColumns are the indices of the lookup-key columns.
	KeyColumns []int
	// Upstream lists the base tables the view transitively depends on.
	Upstream []Upstream
	// Logger is the base logger.
	Logger logr.Logger
}

// View is a materialized view. A View is a dbsp.Sink: the graph feeds it the output deltas of the
// view's root node.
type View struct {
	name     string
	columns  []types.Column
	keyCols  []int
	upstream []Upstream

	mu    sync.RWMutex // Apply is exclusive, lookups share
	store *Store
	err   error // set once the view is faulted

	log logr.Logger
}

var _ dbsp.Sink = &View{}

// New creates an empty view.
func New(name string, opts Options) (*View, error) {
	if name == "" {
		return nil, types.NewSchemaError("empty view name")
	}
	if len(opts.Columns) == 0 {
		return nil, types.NewSchemaErrorf("view %q has no columns", name)
	}
	for _, i := range opts.KeyColumns {
		if i < 0 || i >= len(opts.Columns) {
			return nil, types.NewSchemaErrorf("view %q: key column index %d out of range", name, i)
		}
	}

	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &View{
		name:     name,
		columns:  append([]types.Column(nil), opts.Columns...),
		keyCols:  append([]int(nil), opts.KeyColumns...),
		upstream: append([]Upstream(nil), opts.Upstream...),
		store:    NewStore(opts.KeyColumns),
		log:      logger.WithName("view").WithValues("name", name),
	}, nil
}

// Name returns the view name.
func (v *View) Name() string { return v.name }

// Columns returns the view schema.
func (v *View) Columns() []types.Column { return append([]types.Column(nil), v.columns...) }

// KeyColumns returns the lookup-key columns.
func (v *View) KeyColumns() []types.Column {
	ret := make([]types.Column, len(v.keyCols))
	for i, c := range v.keyCols {
		ret[i] = v.columns[c]
	}
	return ret
}

// Apply folds an output delta of the root node into the view.
func (v *View) Apply(delta *dbsp.ZSet) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.err != nil {
		// a faulted view no longer follows its definition
		v.log.V(4).Info("ignoring delta on faulted view", "delta", delta.String())
		return nil
	}

	for _, c := range delta.Entries() {
		if len(c.Row) != len(v.columns) {
			return types.NewInternalInvariantError(
				fmt.Sprintf("view %q: row %s has %d columns, expected %d", v.name, c.Row,
					len(c.Row), len(v.columns)), nil)
		}
	}

	if err := v.store.Apply(delta); err != nil {
		return fmt.Errorf("view %q: %w", v.name, err)
	}

	v.log.V(3).Info("applied delta", "delta", delta.String())

	return nil
}

// Fault marks the view as inconsistent. Lookups on a faulted view fail with ErrInternalInvariant.
func (v *View) Fault(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err == nil {
		v.err = err
		v.log.Error(err, "view faulted")
	}
}

// Err returns the fault of the view, if any.
func (v *View) Err() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.err
}

// Lookup returns the rows whose lookup-key columns equal key, in row order. An absent key yields
// an empty result. With blocking set, Lookup first waits until every write accepted by the
// upstream tables has been propagated, so the result reflects all writes that returned before the
// call.
func (v *View) Lookup(key types.Row, blocking bool) ([]types.Row, error) {
	if len(key) != len(v.keyCols) {
		return nil, fmt.Errorf("lookup on view %q: %w", v.name, types.NewArityError(len(v.keyCols), len(key)))
	}
	for i, c := range v.keyCols {
		if err := v.columns[c].Kind.Check(key[i]); err != nil {
			return nil, fmt.Errorf("lookup on view %q: key column %q: %w", v.name, v.columns[c].Name, err)
		}
	}

	if blocking {
		v.Sync()
	}

	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.err != nil {
		return nil, v.faultError()
	}

	rows, err := v.store.ByKey(key)
	if err != nil {
		return nil, types.NewInternalInvariantError(fmt.Sprintf("lookup on view %q", v.name), err)
	}

	if v.log.V(4).Enabled() {
		v.log.V(4).Info("lookup", "key", util.Stringify(key.Native()), "blocking", blocking, "rows", len(rows))
	}

	return rows, nil
}

// LookupOne is Lookup for views with a single lookup-key column.
func (v *View) LookupOne(key types.DataType, blocking bool) ([]types.Row, error) {
	return v.Lookup(types.Row{key}, blocking)
}

// Sync waits until every write accepted by the upstream tables has been propagated.
func (v *View) Sync() {
	for _, u := range v.upstream {
		u.WaitPropagated(u.Seq())
	}
}

// Rows returns the full content of the view in row order.
func (v *View) Rows() ([]types.Row, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.err != nil {
		return nil, v.faultError()
	}
	return v.store.List(), nil
}

// Len returns the number of rows in the view.
func (v *View) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.store.Len()
}

// Snapshot returns the content of the view as a Z-set. Used to fill views defined on top of this
// one.
func (v *View) Snapshot() (*dbsp.ZSet, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.err != nil {
		return nil, v.faultError()
	}
	return v.store.ZSet(), nil
}

// Upstream returns the names of the tables the view depends on.
func (v *View) Upstream() []string {
	ret := make([]string, len(v.upstream))
	for i, u := range v.upstream {
		ret[i] = u.Name()
	}
	return ret
}

func (v *View) faultError() error {
	return types.NewInternalInvariantError(fmt.Sprintf("view %q is faulted", v.name), v.err)
}
