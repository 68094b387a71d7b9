// Package controller implements the engine front end: it owns the base tables, the materialized
// views and the dataflow graph connecting them, installs and extends recipes, and hands out table
// and view handles.
//
// Writes go through table handles and return only once their effect has been propagated to every
// dependent view. Lookups go through view handles. Recipe changes are exclusive: they wait for
// in-flight writes to finish and hold off new ones until the new views are filled and live.
//
// Example usage:
//
//	c := controller.New(controller.Options{Logger: logger})
//	_ = c.InstallRecipeYAML(recipe)
//	article, _ := c.Table("Article")
//	_ = article.Insert(types.MustRow(42, "I love Soup", "https://pdos.csail.mit.edu"))
//	awvc, _ := c.View("ArticleWithVoteCount")
//	rows, _ := awvc.LookupOne(types.Int(42), true)
package controller

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"github.com/l7mp/viewstore/pkg/dbsp"
	"github.com/l7mp/viewstore/pkg/recipe"
	"github.com/l7mp/viewstore/pkg/table"
	"github.com/l7mp/viewstore/pkg/types"
	"github.com/l7mp/viewstore/pkg/view"
	"github.com/l7mp/viewstore/pkg/visualize"
)

// Options defines the controller configuration.
type Options struct {
	// ErrorChan is a channel to receive the engine faults raised during propagation.
	ErrorChan chan error
	// Logger is the base logger.
	Logger logr.Logger
}

// Controller is the engine instance.
type Controller struct {
	mu       sync.RWMutex // exclusive for recipe changes, shared for writes
	graph    *dbsp.Graph
	compiler *recipe.Compiler
	tables   map[string]*TableHandle
	views    map[string]*ViewHandle
	tableSeq []string
	viewSeq  []string
	recipe   *recipe.Plan
	faults   *errorReporter

	logger, log logr.Logger
}

// New creates an empty controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	graph := dbsp.NewGraph(logger)
	return &Controller{
		graph:    graph,
		compiler: recipe.NewCompiler(graph, logger),
		tables:   map[string]*TableHandle{},
		views:    map[string]*ViewHandle{},
		faults:   NewErrorReporter(opts.ErrorChan),
		logger:   logger,
		log:      logger.WithName("controller"),
	}
}

// InstallRecipe installs the first recipe. It fails with ErrSchema if a recipe is already
// installed or the plan is invalid.
func (c *Controller) InstallRecipe(plan *recipe.Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recipe != nil {
		return types.NewSchemaError("a recipe is already installed, use extend")
	}
	return c.apply(plan)
}

// ExtendRecipe adds the tables and views of a plan to the installed recipe. New views are filled
// from the current content of the tables and views they read before they become visible; existing
// views are not affected. On a controller without a recipe ExtendRecipe installs the plan.
func (c *Controller) ExtendRecipe(plan *recipe.Plan) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apply(plan)
}

// InstallRecipeYAML parses and installs a recipe.
func (c *Controller) InstallRecipeYAML(data []byte) error {
	plan, err := recipe.Parse(data)
	if err != nil {
		return err
	}
	return c.InstallRecipe(plan)
}

// ExtendRecipeYAML parses a recipe and extends the installed one with it.
func (c *Controller) ExtendRecipeYAML(data []byte) error {
	plan, err := recipe.Parse(data)
	if err != nil {
		return err
	}
	return c.ExtendRecipe(plan)
}

// apply must be called with the exclusive lock held.
func (c *Controller) apply(plan *recipe.Plan) error {
	if plan == nil {
		return types.NewSchemaError("empty recipe")
	}
	for _, def := range plan.Views {
		refs := []string{def.From}
		if def.Join != nil {
			refs = append(refs, def.Join.With)
		}
		for _, ref := range refs {
			if h, ok := c.views[ref]; ok && h.v.Err() != nil {
				return types.NewInternalInvariantError(
					fmt.Sprintf("view %q reads faulted view %q", def.Name, ref), h.v.Err())
			}
		}
	}

	res, err := c.compiler.Compile(plan)
	if err != nil {
		c.log.Info("recipe rejected", "error", err.Error())
		return err
	}

	newTables := map[string]*TableHandle{}
	for _, info := range res.Tables {
		node := info.Node
		t, err := table.New(info.Name, info.Columns, info.PrimaryKey, table.Options{
			Emit:   func(delta *dbsp.ZSet) error { return c.graph.Push(node, delta) },
			Logger: c.logger,
		})
		if err != nil {
			return types.NewInternalInvariantError(fmt.Sprintf("cannot create table %q", info.Name), err)
		}
		newTables[info.Name] = &TableHandle{c: c, t: t, info: info}
	}

	lookupTable := func(name string) *table.Table {
		if h, ok := newTables[name]; ok {
			return h.t
		}
		return c.tables[name].t
	}

	newViews := make([]*ViewHandle, 0, len(res.Views))
	for _, info := range res.Views {
		upstream := make([]view.Upstream, 0, len(info.Tables))
		for _, name := range info.Tables {
			upstream = append(upstream, lookupTable(name))
		}
		v, err := view.New(info.Name, view.Options{
			Columns:    info.Columns,
			KeyColumns: info.KeyColumns,
			Upstream:   upstream,
			Logger:     c.logger,
		})
		if err != nil {
			return types.NewInternalInvariantError(fmt.Sprintf("cannot create view %q", info.Name), err)
		}
		if err := c.graph.AddSink(info.Root, v); err != nil {
			return types.NewInternalInvariantError(fmt.Sprintf("cannot attach view %q", info.Name), err)
		}
		newViews = append(newViews, &ViewHandle{c: c, v: v, info: info})
	}

	// initial fill: replay the content of existing tables and views into the new nodes
	var fillErr error
	for _, src := range res.Sources {
		var content *dbsp.ZSet
		if src.View {
			content, err = c.views[src.Name].v.Snapshot()
			if err != nil {
				return fmt.Errorf("cannot fill from view %q: %w", src.Name, err)
			}
		} else {
			content = c.tables[src.Name].t.Snapshot()
		}

		c.log.V(2).Info("replaying", "source", src.Name, "node", src.Node, "rows", content.Size())

		if err := c.graph.Replay(src.Node, content); err != nil {
			// the views reachable from the failing node are faulted by now, register them anyway
			c.faults.Push(err)
			fillErr = fmt.Errorf("initial fill from %q failed: %w", src.Name, err)
			break
		}
	}

	if err := c.graph.Activate(res.Nodes...); err != nil {
		return types.NewInternalInvariantError("cannot activate nodes", err)
	}

	for _, info := range res.Tables {
		c.tables[info.Name] = newTables[info.Name]
		c.tableSeq = append(c.tableSeq, info.Name)
	}
	for _, h := range newViews {
		c.views[h.info.Name] = h
		c.viewSeq = append(c.viewSeq, h.info.Name)
	}

	if c.recipe == nil {
		c.recipe = &recipe.Plan{}
	}
	c.recipe.Append(plan.DeepCopy())

	c.log.Info("recipe applied", "tables", len(res.Tables), "views", len(res.Views),
		"nodes", len(res.Nodes), "graph-size", c.graph.Len())

	return fillErr
}

// Table returns the handle of a base table.
func (c *Controller) Table(name string) (*TableHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.tables[name]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("unknown table %q", name))
	}
	return h, nil
}

// View returns the handle of a view.
func (c *Controller) View(name string) (*ViewHandle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.views[name]
	if !ok {
		return nil, types.NewNotFoundError(fmt.Sprintf("unknown view %q", name))
	}
	return h, nil
}

// Tables returns the names of the base tables in definition order.
func (c *Controller) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tableSeq...)
}

// Views returns the names of the views in definition order.
func (c *Controller) Views() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.viewSeq...)
}

// Recipe returns a copy of the installed recipe, nil if none is installed.
func (c *Controller) Recipe() *recipe.Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.recipe == nil {
		return nil
	}
	return c.recipe.DeepCopy()
}

// Errors returns the most recent engine faults, oldest first.
func (c *Controller) Errors() []error { return c.faults.Errors() }

// Graph returns a visualization graph of the dataflow.
func (c *Controller) Graph() *visualize.Graph {
	c.mu.RLock()
	defer c.mu.RUnlock()

	views := make([]visualize.ViewRef, 0, len(c.viewSeq))
	for _, name := range c.viewSeq {
		info := c.views[name].info
		views = append(views, visualize.ViewRef{Name: name, Root: info.Root, Query: info.Query})
	}
	return visualize.BuildGraph("recipe", c.graph, views)
}

// Graphviz returns the dataflow graph in Graphviz DOT format.
func (c *Controller) Graphviz() string {
	return (&visualize.DotGenerator{}).Generate(c.Graph())
}

// report records engine faults raised by a write.
func (c *Controller) report(err error) error {
	if err != nil && errors.Is(err, types.ErrInternalInvariant) {
		c.faults.Push(err)
	}
	return err
}
