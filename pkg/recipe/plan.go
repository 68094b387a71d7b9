// Package recipe defines recipes, the schema of base tables and the definitions of the views
// derived from them, and compiles them into the dataflow graph.
package recipe

import (
	"fmt"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/l7mp/viewstore/pkg/types"
)

// Plan is a structured recipe: a list of table definitions and a list of view definitions.
type Plan struct {
	Tables []TableDef `json:"tables,omitempty"`
	Views  []ViewDef  `json:"views,omitempty"`
}

// TableDef is a CREATE TABLE statement.
type TableDef struct {
	Name    string      `json:"name"`
	Columns []ColumnDef `json:"columns"`
	// PrimaryKey names the primary-key column. Tables without a primary key are multisets.
	PrimaryKey string `json:"primaryKey,omitempty"`
}

// ColumnDef is a column of a table definition. Type is one of int, integer, bigint, smallint,
// text, string, char, varchar, varchar(N), timestamp or datetime.
type ColumnDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ViewDef is a view definition:
//
//	SELECT <select> FROM <from> [LEFT] JOIN <join.with> ON <join.on.left> = <join.on.right>
//	WHERE <where> GROUP BY <groupBy>
//
// with an optional COUNT column. Column references are either bare ("aid") or qualified with the
// name of a table or view ("Vote.aid").
type ViewDef struct {
	Name string `json:"name"`
	// Query marks views meant to be looked up by clients. Other views can be looked up as well.
	Query   bool        `json:"query,omitempty"`
	From    string      `json:"from"`
	Join    *JoinDef    `json:"join,omitempty"`
	Where   []WhereDef  `json:"where,omitempty"`
	GroupBy []string    `json:"groupBy,omitempty"`
	Count   *CountDef   `json:"count,omitempty"`
	Select  []SelectDef `json:"select,omitempty"`
	// Key lists the output columns that make up the lookup key.
	Key []string `json:"key,omitempty"`
}

// JoinDef is an equi-join on one column per side. Type is "inner" (default) or "left".
//
// The condition is keyed "condition" rather than "on": YAML 1.1 reads a bare on as the boolean
// true.
type JoinDef struct {
	Type      string        `json:"type,omitempty"`
	With      string        `json:"with"`
	Condition JoinCondition `json:"condition"`
}

// JoinCondition is the equality between a column of each side.
type JoinCondition struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

// WhereDef is an equality condition. A parameter condition ("aid = ?") makes the column part of
// the lookup key, a constant condition filters rows.
type WhereDef struct {
	Column string          `json:"column"`
	Param  bool            `json:"param,omitempty"`
	Value  *types.DataType `json:"value,omitempty"`
}

// CountDef is a COUNT(column) aggregate, COUNT(*) if column is empty or "*".
type CountDef struct {
	Column string `json:"column,omitempty"`
	As     string `json:"as,omitempty"`
}

// SelectDef is an output column with an optional alias.
type SelectDef struct {
	Column string `json:"column"`
	As     string `json:"as,omitempty"`
}

// Parse parses a YAML or JSON recipe. Unknown fields are rejected.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.UnmarshalStrict(data, &p); err != nil {
		return nil, types.NewSchemaErrorf("invalid recipe: %s", err)
	}
	return &p, nil
}

// YAML returns the recipe in YAML format.
func (p *Plan) YAML() ([]byte, error) { return yaml.Marshal(p) }

// Append adds the definitions of another plan.
func (p *Plan) Append(other *Plan) {
	p.Tables = append(p.Tables, other.Tables...)
	p.Views = append(p.Views, other.Views...)
}

// DeepCopy returns a copy of the plan.
func (p *Plan) DeepCopy() *Plan {
	ret := &Plan{}
	for _, t := range p.Tables {
		t.Columns = append([]ColumnDef(nil), t.Columns...)
		ret.Tables = append(ret.Tables, t)
	}
	for _, v := range p.Views {
		if v.Join != nil {
			j := *v.Join
			v.Join = &j
		}
		if v.Count != nil {
			c := *v.Count
			v.Count = &c
		}
		v.Where = append([]WhereDef(nil), v.Where...)
		v.GroupBy = append([]string(nil), v.GroupBy...)
		v.Select = append([]SelectDef(nil), v.Select...)
		v.Key = append([]string(nil), v.Key...)
		ret.Views = append(ret.Views, v)
	}
	return ret
}

// String renders the table definition as SQL.
func (t TableDef) String() string {
	cols := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		cols = append(cols, c.Name+" "+c.Type)
	}
	if t.PrimaryKey != "" {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY(%s)", t.PrimaryKey))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", t.Name, strings.Join(cols, ", "))
}

// String renders the view definition as SQL.
func (v ViewDef) String() string {
	var b strings.Builder
	if v.Query {
		b.WriteString("QUERY ")
	} else {
		b.WriteString("VIEW ")
	}
	fmt.Fprintf(&b, "%s: SELECT ", v.Name)

	cols := []string{}
	for _, s := range v.Select {
		if s.As != "" {
			cols = append(cols, s.Column+" AS "+s.As)
		} else {
			cols = append(cols, s.Column)
		}
	}
	if len(cols) == 0 {
		cols = append(cols, "*")
	}
	b.WriteString(strings.Join(cols, ", "))
	fmt.Fprintf(&b, " FROM %s", v.From)

	if v.Join != nil {
		if strings.EqualFold(v.Join.Type, "left") {
			b.WriteString(" LEFT")
		}
		fmt.Fprintf(&b, " JOIN %s ON (%s = %s)", v.Join.With, v.Join.Condition.Left, v.Join.Condition.Right)
	}

	if len(v.Where) > 0 {
		conds := make([]string, len(v.Where))
		for i, w := range v.Where {
			switch {
			case w.Param:
				conds[i] = w.Column + " = ?"
			case w.Value != nil:
				conds[i] = w.Column + " = " + w.Value.String()
			default:
				conds[i] = w.Column + " = NULL"
			}
		}
		fmt.Fprintf(&b, " WHERE %s", strings.Join(conds, " AND "))
	}

	if len(v.GroupBy) > 0 {
		fmt.Fprintf(&b, " GROUP BY %s", strings.Join(v.GroupBy, ", "))
	}

	if v.Count != nil {
		col := v.Count.Column
		if col == "" {
			col = "*"
		}
		fmt.Fprintf(&b, " COUNT(%s)", col)
		if v.Count.As != "" {
			fmt.Fprintf(&b, " AS %s", v.Count.As)
		}
	}

	b.WriteString(";")
	return b.String()
}
