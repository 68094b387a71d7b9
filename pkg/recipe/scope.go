package recipe

import (
	"strings"

	"github.com/l7mp/viewstore/pkg/types"
)

// scopeColumn is a column visible to a view definition: a column of a source relation qualified
// by the relation name, or an aggregate output.
type scopeColumn struct {
	qualifier string
	name      string
	kind      types.Kind
}

type scope []scopeColumn

func newScope(qualifier string, columns []types.Column) scope {
	s := make(scope, len(columns))
	for i, c := range columns {
		s[i] = scopeColumn{qualifier: qualifier, name: c.Name, kind: c.Kind}
	}
	return s
}

// resolve finds a column reference: "name" or "qualifier.name". Bare names must be unambiguous.
func (s scope) resolve(ref string) (int, error) {
	qualifier, name, qualified := strings.Cut(ref, ".")
	if !qualified {
		name, qualifier = qualifier, ""
	}
	if name == "" {
		return -1, types.NewSchemaErrorf("invalid column reference %q", ref)
	}

	found := -1
	for i, c := range s {
		if c.name != name || (qualified && c.qualifier != qualifier) {
			continue
		}
		if found >= 0 {
			return -1, types.NewSchemaErrorf("ambiguous column reference %q", ref)
		}
		found = i
	}
	if found < 0 {
		return -1, types.NewSchemaErrorf("unknown column %q", ref)
	}
	return found, nil
}
