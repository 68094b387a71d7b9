package recipe

import (
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"

	"github.com/l7mp/viewstore/internal/dag"
	"github.com/l7mp/viewstore/pkg/dbsp"
	"github.com/l7mp/viewstore/pkg/types"
	"github.com/l7mp/viewstore/pkg/util"
)

// TableInfo describes a compiled base table.
type TableInfo struct {
	Name       string
	Columns    []types.Column
	PrimaryKey int
	Node       dbsp.NodeID
	Def        TableDef
}

// ViewInfo describes a compiled view.
type ViewInfo struct {
	Name       string
	Query      bool
	Columns    []types.Column
	KeyColumns []int
	Root       dbsp.NodeID
	// Tables lists the base tables the view transitively depends on.
	Tables []string
	Def    ViewDef
}

// Source is an existing node feeding newly compiled nodes. Its current content has to be replayed
// into the new nodes before they go live.
type Source struct {
	Name string
	View bool
	Node dbsp.NodeID
}

// Result lists what a compilation added to the graph. The new nodes are inactive.
type Result struct {
	Tables  []*TableInfo
	Views   []*ViewInfo
	Nodes   []dbsp.NodeID
	Sources []Source
}

// Compiler turns recipe plans into dataflow nodes. It keeps the catalog of compiled tables and
// views. Compiler is not safe for concurrent use.
type Compiler struct {
	graph  *dbsp.Graph
	tables map[string]*TableInfo
	views  map[string]*ViewInfo
	log    logr.Logger
}

// NewCompiler creates a compiler that extends the given graph.
func NewCompiler(graph *dbsp.Graph, log logr.Logger) *Compiler {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &Compiler{
		graph:  graph,
		tables: map[string]*TableInfo{},
		views:  map[string]*ViewInfo{},
		log:    log.WithName("compiler"),
	}
}

// Table returns a compiled table.
func (c *Compiler) Table(name string) (*TableInfo, bool) {
	t, ok := c.tables[name]
	return t, ok
}

// View returns a compiled view.
func (c *Compiler) View(name string) (*ViewInfo, bool) {
	v, ok := c.views[name]
	return v, ok
}

// relation is something a view can read from: a table or a view.
type relation struct {
	name    string
	columns []types.Column
	tables  []string
	view    bool
	pending bool
}

type joinPlan struct {
	kind              dbsp.JoinKind
	right             *relation
	leftCol, rightCol int
}

type countPlan struct {
	groupCols []int
	col       int
	name      string
}

// viewPlan is a fully resolved view definition. Building it cannot fail on user input.
type viewPlan struct {
	info    *ViewInfo
	from    *relation
	join    *joinPlan
	filter  dbsp.And
	count   *countPlan
	project []int
	labels  []string
}

// Compile validates a plan against the catalog and, only if the whole plan is valid, adds the
// nodes of its tables and views to the graph. Tables get an input node, views a chain of
// [join] -> [filter] -> [count] -> projection nodes ending in a root node of their own.
func (c *Compiler) Compile(plan *Plan) (*Result, error) {
	if plan == nil {
		return nil, types.NewSchemaError("empty recipe")
	}

	relations := map[string]*relation{}
	for name, t := range c.tables {
		relations[name] = &relation{name: name, columns: t.Columns, tables: []string{name}}
	}
	for name, v := range c.views {
		relations[name] = &relation{name: name, columns: v.Columns, tables: v.Tables, view: true}
	}

	tables, err := c.checkTables(plan.Tables, relations)
	if err != nil {
		return nil, err
	}

	order, err := c.orderViews(plan.Views, relations)
	if err != nil {
		return nil, err
	}

	plans := make([]*viewPlan, 0, len(order))
	for _, def := range order {
		vp, err := c.resolveView(def, relations)
		if err != nil {
			return nil, fmt.Errorf("view %q: %w", def.Name, err)
		}
		relations[def.Name] = &relation{name: def.Name, columns: vp.info.Columns,
			tables: vp.info.Tables, view: true, pending: true}
		plans = append(plans, vp)
	}

	return c.build(tables, plans)
}

func (c *Compiler) checkTables(defs []TableDef, relations map[string]*relation) ([]*TableInfo, error) {
	ret := make([]*TableInfo, 0, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return nil, types.NewSchemaError("table with empty name")
		}
		if _, exists := relations[def.Name]; exists {
			return nil, types.NewSchemaErrorf("duplicate table name %q", def.Name)
		}
		if len(def.Columns) == 0 {
			return nil, types.NewSchemaErrorf("table %q has no columns", def.Name)
		}

		info := &TableInfo{Name: def.Name, PrimaryKey: -1, Def: def}
		seen := map[string]bool{}
		for i, col := range def.Columns {
			if col.Name == "" || strings.Contains(col.Name, ".") {
				return nil, types.NewSchemaErrorf("table %q: invalid column name %q", def.Name, col.Name)
			}
			if seen[col.Name] {
				return nil, types.NewSchemaErrorf("table %q: duplicate column %q", def.Name, col.Name)
			}
			seen[col.Name] = true

			kind, err := types.ParseKind(col.Type)
			if err != nil {
				return nil, fmt.Errorf("table %q column %q: %w", def.Name, col.Name, err)
			}
			info.Columns = append(info.Columns, types.Column{Name: col.Name, Kind: kind})
			if col.Name == def.PrimaryKey {
				info.PrimaryKey = i
			}
		}
		if def.PrimaryKey != "" && info.PrimaryKey < 0 {
			return nil, types.NewSchemaErrorf("table %q: unknown primary key column %q", def.Name, def.PrimaryKey)
		}

		relations[def.Name] = &relation{name: def.Name, columns: info.Columns,
			tables: []string{def.Name}, pending: true}
		ret = append(ret, info)
	}
	return ret, nil
}

// orderViews checks view names and sorts the definitions so that every view comes after the
// views of the same plan it reads from.
func (c *Compiler) orderViews(defs []ViewDef, relations map[string]*relation) ([]ViewDef, error) {
	byName := map[string]ViewDef{}
	deps := dag.New()
	for _, def := range defs {
		if def.Name == "" {
			return nil, types.NewSchemaError("view with empty name")
		}
		if _, exists := relations[def.Name]; exists {
			return nil, types.NewSchemaErrorf("duplicate view name %q", def.Name)
		}
		if !deps.AddNode(def.Name) {
			return nil, types.NewSchemaErrorf("duplicate view name %q", def.Name)
		}
		byName[def.Name] = def
	}

	for _, def := range defs {
		refs := []string{def.From}
		if def.Join != nil {
			refs = append(refs, def.Join.With)
		}
		for _, ref := range refs {
			if deps.HasNode(ref) {
				deps.AddEdge(ref, def.Name)
			}
		}
	}

	names, err := deps.TopoSort()
	if err != nil {
		return nil, types.NewSchemaErrorf("invalid view definitions: %s", err)
	}

	ret := make([]ViewDef, len(names))
	for i, name := range names {
		ret[i] = byName[name]
	}
	return ret, nil
}

func (c *Compiler) resolveView(def ViewDef, relations map[string]*relation) (*viewPlan, error) {
	from, ok := relations[def.From]
	if !ok || def.From == "" {
		return nil, types.NewSchemaErrorf("unknown relation %q", def.From)
	}

	vp := &viewPlan{from: from}
	sc := newScope(from.name, from.columns)
	upstream := slices.Clone(from.tables)

	// join
	if def.Join != nil {
		right, ok := relations[def.Join.With]
		if !ok || def.Join.With == "" {
			return nil, types.NewSchemaErrorf("unknown relation %q", def.Join.With)
		}

		var kind dbsp.JoinKind
		switch strings.ToLower(def.Join.Type) {
		case "", "inner":
			kind = dbsp.InnerJoin
		case "left":
			kind = dbsp.LeftJoin
		default:
			return nil, types.NewSchemaErrorf("unsupported join type %q", def.Join.Type)
		}

		leftCol, err := sc.resolve(def.Join.Condition.Left)
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		rightScope := newScope(right.name, right.columns)
		rightCol, err := rightScope.resolve(def.Join.Condition.Right)
		if err != nil {
			return nil, fmt.Errorf("join: %w", err)
		}
		if sc[leftCol].kind != rightScope[rightCol].kind {
			return nil, types.NewSchemaErrorf("join: cannot compare %s column %q with %s column %q",
				sc[leftCol].kind, def.Join.Condition.Left, rightScope[rightCol].kind, def.Join.Condition.Right)
		}

		vp.join = &joinPlan{kind: kind, right: right, leftCol: leftCol, rightCol: rightCol}
		sc = append(sc, rightScope...)
		for _, t := range right.tables {
			if !slices.Contains(upstream, t) {
				upstream = append(upstream, t)
			}
		}
	}

	// where
	params := []int{}
	for _, w := range def.Where {
		col, err := sc.resolve(w.Column)
		if err != nil {
			return nil, fmt.Errorf("where: %w", err)
		}
		switch {
		case w.Param && w.Value != nil:
			return nil, types.NewSchemaErrorf("where: column %q is both a parameter and a constant", w.Column)
		case w.Param:
			params = append(params, col)
		case w.Value == nil:
			return nil, types.NewSchemaErrorf("where: column %q needs a value or a parameter", w.Column)
		default:
			if err := sc[col].kind.Check(*w.Value); err != nil {
				return nil, types.NewSchemaErrorf("where: column %q: %s", w.Column, err)
			}
			vp.filter = append(vp.filter, &dbsp.ColumnEquals{Index: col, Value: *w.Value, Label: w.Column})
		}
	}

	// group by / count
	if len(def.GroupBy) > 0 && def.Count == nil {
		return nil, types.NewSchemaError("GROUP BY without an aggregate")
	}
	if def.Count != nil {
		cp := &countPlan{col: dbsp.CountStar, name: def.Count.As, groupCols: []int{}}
		if cp.name == "" {
			cp.name = "count"
		}
		if def.Count.Column != "" && def.Count.Column != "*" {
			col, err := sc.resolve(def.Count.Column)
			if err != nil {
				return nil, fmt.Errorf("count: %w", err)
			}
			cp.col = col
		}

		grouped := scope{}
		for _, ref := range def.GroupBy {
			col, err := sc.resolve(ref)
			if err != nil {
				return nil, fmt.Errorf("group by: %w", err)
			}
			if slices.Contains(cp.groupCols, col) {
				return nil, types.NewSchemaErrorf("group by: duplicate column %q", ref)
			}
			cp.groupCols = append(cp.groupCols, col)
			grouped = append(grouped, sc[col])
		}

		// parameters must survive the aggregation
		for i, p := range params {
			j := slices.Index(cp.groupCols, p)
			if j < 0 {
				return nil, types.NewSchemaErrorf("where: parameter column %q is not grouped", sc[p].name)
			}
			params[i] = j
		}

		vp.count = cp
		sc = append(grouped, scopeColumn{qualifier: def.Name, name: cp.name, kind: types.KindInt})
	}

	// select
	var columns []types.Column
	if len(def.Select) == 0 {
		for i, col := range sc {
			vp.project = append(vp.project, i)
			vp.labels = append(vp.labels, col.name)
			columns = append(columns, types.Column{Name: col.name, Kind: col.kind})
		}
	} else {
		for _, s := range def.Select {
			col, err := sc.resolve(s.Column)
			if err != nil {
				return nil, fmt.Errorf("select: %w", err)
			}
			name := s.As
			if name == "" {
				name = sc[col].name
			}
			vp.project = append(vp.project, col)
			vp.labels = append(vp.labels, s.Column)
			columns = append(columns, types.Column{Name: name, Kind: sc[col].kind})
		}
	}

	names := map[string]bool{}
	for _, col := range columns {
		if strings.Contains(col.Name, ".") {
			return nil, types.NewSchemaErrorf("select: invalid output column name %q", col.Name)
		}
		if names[col.Name] {
			return nil, types.NewSchemaErrorf("select: duplicate output column %q, use an alias", col.Name)
		}
		names[col.Name] = true
	}

	keys, err := lookupKey(def, sc, vp, columns, params)
	if err != nil {
		return nil, err
	}

	vp.info = &ViewInfo{
		Name:       def.Name,
		Query:      def.Query,
		Columns:    columns,
		KeyColumns: keys,
		Tables:     upstream,
		Def:        def,
	}

	return vp, nil
}

// lookupKey picks the lookup-key columns of a view: the explicit key, else the parameter
// columns, else the grouping columns, else the first output column.
func lookupKey(def ViewDef, sc scope, vp *viewPlan, columns []types.Column, params []int) ([]int, error) {
	if len(def.Key) > 0 {
		keys := []int{}
		for _, name := range def.Key {
			i := slices.IndexFunc(columns, func(c types.Column) bool { return c.Name == name })
			if i < 0 {
				return nil, types.NewSchemaErrorf("key: unknown output column %q", name)
			}
			keys = append(keys, i)
		}
		return keys, nil
	}

	if len(params) > 0 {
		keys := []int{}
		for _, p := range params {
			i := slices.Index(vp.project, p)
			if i < 0 {
				return nil, types.NewSchemaErrorf("where: parameter column %q is not selected", sc[p].name)
			}
			keys = append(keys, i)
		}
		return keys, nil
	}

	if vp.count != nil && len(vp.count.groupCols) > 0 {
		keys := []int{}
		for j := range vp.count.groupCols {
			i := slices.Index(vp.project, j)
			if i < 0 {
				keys = nil
				break
			}
			keys = append(keys, i)
		}
		if keys != nil {
			return keys, nil
		}
	}

	return []int{0}, nil
}

func (c *Compiler) build(tables []*TableInfo, plans []*viewPlan) (*Result, error) {
	res := &Result{}
	sources := map[string]bool{}

	add := func(op dbsp.Operator, inputs ...dbsp.NodeID) (dbsp.NodeID, error) {
		id, err := c.graph.AddNode(op, inputs...)
		if err != nil {
			return -1, types.NewInternalInvariantError("cannot add node", err)
		}
		res.Nodes = append(res.Nodes, id)
		return id, nil
	}

	for _, t := range tables {
		id, err := add(dbsp.NewInput(t.Name, t.Columns))
		if err != nil {
			return nil, err
		}
		t.Node = id
		c.tables[t.Name] = t
		res.Tables = append(res.Tables, t)

		c.log.V(1).Info("table compiled", "name", t.Name, "sql", t.Def.String(), "node", id)
	}

	// node of a relation: the input node of a table or the root of a view
	nodeOf := func(r *relation) dbsp.NodeID {
		var id dbsp.NodeID
		if r.view {
			id = c.views[r.name].Root
		} else {
			id = c.tables[r.name].Node
		}
		if !r.pending && !sources[r.name] {
			sources[r.name] = true
			res.Sources = append(res.Sources, Source{Name: r.name, View: r.view, Node: id})
		}
		return id
	}

	for _, vp := range plans {
		cur := nodeOf(vp.from)
		cols := vp.from.columns

		if vp.join != nil {
			op := dbsp.NewIncrementalJoin(vp.join.kind, cols, vp.join.leftCol, vp.join.right.columns, vp.join.rightCol)
			id, err := add(op, cur, nodeOf(vp.join.right))
			if err != nil {
				return nil, err
			}
			cur, cols = id, op.Columns()
		}

		if len(vp.filter) > 0 {
			var pred dbsp.Predicate = vp.filter
			if len(vp.filter) == 1 {
				pred = vp.filter[0]
			}
			id, err := add(dbsp.NewSelection(pred, cols), cur)
			if err != nil {
				return nil, err
			}
			cur = id
		}

		if vp.count != nil {
			op := dbsp.NewIncrementalCount(cols, vp.count.groupCols, vp.count.col, vp.count.name)
			id, err := add(op, cur)
			if err != nil {
				return nil, err
			}
			cur, cols = id, op.Columns()
		}

		proj := dbsp.NewProjection(&dbsp.ColumnProjector{Indices: vp.project, Labels: vp.labels}, vp.info.Columns)
		root, err := add(proj, cur)
		if err != nil {
			return nil, err
		}

		vp.info.Root = root
		c.views[vp.info.Name] = vp.info
		res.Views = append(res.Views, vp.info)

		c.log.V(1).Info("view compiled", "name", vp.info.Name, "sql", vp.info.Def.String(), "root", root,
			"key", util.Stringify(keyNames(vp.info)), "tables", vp.info.Tables)
	}

	return res, nil
}

func keyNames(v *ViewInfo) []string {
	return util.Map(func(i int) string { return v.Columns[i].Name }, v.KeyColumns)
}
