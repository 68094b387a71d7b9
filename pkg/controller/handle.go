package controller

import (
	"github.com/l7mp/viewstore/pkg/recipe"
	"github.com/l7mp/viewstore/pkg/table"
	"github.com/l7mp/viewstore/pkg/types"
	"github.com/l7mp/viewstore/pkg/view"
)

// TableHandle is a reference to a base table. Handles are safe for concurrent use.
type TableHandle struct {
	c    *Controller
	t    *table.Table
	info *recipe.TableInfo
}

// Name returns the table name.
func (h *TableHandle) Name() string { return h.t.Name() }

// Columns returns the table schema.
func (h *TableHandle) Columns() []types.Column { return h.t.Columns() }

// PrimaryKey returns the name of the primary-key column, empty if the table has none.
func (h *TableHandle) PrimaryKey() string { return h.info.Def.PrimaryKey }

// Insert adds a row and returns once the change has reached every dependent view.
func (h *TableHandle) Insert(row types.Row) error {
	h.c.mu.RLock()
	defer h.c.mu.RUnlock()
	return h.c.report(h.t.Insert(row))
}

// Delete removes the row with the given primary key.
func (h *TableHandle) Delete(key types.DataType) error {
	h.c.mu.RLock()
	defer h.c.mu.RUnlock()
	return h.c.report(h.t.Delete(key))
}

// DeleteRow removes one occurrence of an exact row.
func (h *TableHandle) DeleteRow(row types.Row) error {
	h.c.mu.RLock()
	defer h.c.mu.RUnlock()
	return h.c.report(h.t.DeleteRow(row))
}

// Get returns the live row with the given primary key.
func (h *TableHandle) Get(key types.DataType) (types.Row, bool) { return h.t.Get(key) }

// Rows returns the live rows in insertion order.
func (h *TableHandle) Rows() []types.Row { return h.t.Rows() }

// Len returns the number of live rows.
func (h *TableHandle) Len() int { return h.t.Len() }

// ViewHandle is a reference to a materialized view. Handles are safe for concurrent use.
type ViewHandle struct {
	c    *Controller
	v    *view.View
	info *recipe.ViewInfo
}

// Name returns the view name.
func (h *ViewHandle) Name() string { return h.v.Name() }

// Query reports whether the view was declared as a query.
func (h *ViewHandle) Query() bool { return h.info.Query }

// Columns returns the view schema.
func (h *ViewHandle) Columns() []types.Column { return h.v.Columns() }

// KeyColumns returns the lookup-key columns.
func (h *ViewHandle) KeyColumns() []types.Column { return h.v.KeyColumns() }

// Lookup returns the rows matching a lookup key. With blocking set the result reflects every
// write that returned before the call.
func (h *ViewHandle) Lookup(key types.Row, blocking bool) ([]types.Row, error) {
	return h.v.Lookup(key, blocking)
}

// LookupOne is Lookup for a single-column key.
func (h *ViewHandle) LookupOne(key types.DataType, blocking bool) ([]types.Row, error) {
	return h.v.LookupOne(key, blocking)
}

// Rows returns the full content of the view.
func (h *ViewHandle) Rows() ([]types.Row, error) { return h.v.Rows() }

// Len returns the number of rows in the view.
func (h *ViewHandle) Len() int { return h.v.Len() }

// Err returns the fault of the view, if any.
func (h *ViewHandle) Err() error { return h.v.Err() }
