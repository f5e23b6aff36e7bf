package cypher

import (
	"fmt"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// Variable-length relationships compile to one recursive CTE per segment:
//
//	path_0(start_id, end_id, depth, edge_ids) AS (...)
//
// edge_ids is a JSON array of edge objects; the recursive step refuses to
// re-traverse an edge already in it, which keeps recursion finite even with
// no upper bound. One emitter covers every directed/undirected ×
// minHops∈{0,≥1} × type-filter combination.

// edgeObjectSQL renders one edge row as the JSON object stored in edge_ids.
func edgeObjectSQL(alias string) string {
	return fmt.Sprintf(
		"json_object('id', %s.id, 'type', %s.type, 'source_id', %s.source_id, 'target_id', %s.target_id, 'properties', json(%s.properties))",
		alias, alias, alias, alias, alias)
}

// emitVarLengthCTE renders `name(start_id, end_id, depth, edge_ids) AS
// (...)` for one variable-length segment. boundEdges are outer edge aliases
// whose rows must not be traversed again.
func (t *Translator) emitVarLengthCTE(name string, edge *ast.EdgePattern, boundEdges []string) (fragment, error) {
	maxHops := -1
	if edge.MaxHops != nil {
		maxHops = *edge.MaxHops
	}
	minHops := 1
	if edge.MinHops != nil {
		minHops = *edge.MinHops
	}

	// Shared edge filters for the base and recursive arms. Parameters are
	// re-emitted per arm, keeping placeholder order aligned.
	edgeFilters := func() ([]fragment, error) {
		var out []fragment
		typePred, err := t.edgeTypePredicate(edge, "e")
		if err != nil {
			return nil, err
		}
		if !typePred.empty() {
			out = append(out, typePred)
		}
		props, err := t.propertyPredicates(edge.Properties, edge.PropertyOrder, "e")
		if err != nil {
			return nil, err
		}
		out = append(out, props...)
		for _, b := range boundEdges {
			out = append(out, frag(fmt.Sprintf("e.id <> %s.id", b)))
		}
		return out, nil
	}

	var w sqlBuilder
	w.write(name + "(start_id, end_id, depth, edge_ids) AS (")

	if minHops == 0 {
		// Zero-hop seed: every node reaches itself through an empty path.
		w.write("SELECT id, id, 0, json('[]') FROM nodes UNION ALL ")
	}

	writeBase := func(startCol, endCol string) error {
		w.writef("SELECT e.%s, e.%s, 1, json_array(%s) FROM edges e", startCol, endCol, edgeObjectSQL("e"))
		filters, err := edgeFilters()
		if err != nil {
			return err
		}
		if len(filters) > 0 {
			w.write(" WHERE ")
			w.writeJoined(" AND ", filters)
		}
		return nil
	}

	switch edge.Direction {
	case ast.DirectionRight:
		if err := writeBase("source_id", "target_id"); err != nil {
			return fragment{}, err
		}
	case ast.DirectionLeft:
		if err := writeBase("target_id", "source_id"); err != nil {
			return fragment{}, err
		}
	default:
		if err := writeBase("source_id", "target_id"); err != nil {
			return fragment{}, err
		}
		w.write(" UNION ALL ")
		if err := writeBase("target_id", "source_id"); err != nil {
			return fragment{}, err
		}
	}

	w.write(" UNION ALL SELECT p.start_id, ")
	switch edge.Direction {
	case ast.DirectionRight:
		w.write("e.target_id")
	case ast.DirectionLeft:
		w.write("e.source_id")
	default:
		w.write("CASE WHEN e.source_id = p.end_id THEN e.target_id ELSE e.source_id END")
	}
	w.writef(", p.depth + 1, json_insert(p.edge_ids, '$[#]', %s) FROM %s p JOIN edges e ON ", edgeObjectSQL("e"), name)
	switch edge.Direction {
	case ast.DirectionRight:
		w.write("e.source_id = p.end_id")
	case ast.DirectionLeft:
		w.write("e.target_id = p.end_id")
	default:
		w.write("(e.source_id = p.end_id OR e.target_id = p.end_id)")
	}

	var recFilters []fragment
	if maxHops >= 0 {
		recFilters = append(recFilters, frag(fmt.Sprintf("p.depth < %d", maxHops)))
	}
	recFilters = append(recFilters, frag(
		"NOT EXISTS (SELECT 1 FROM json_each(p.edge_ids) WHERE json_extract(value, '$.id') = e.id)"))
	extra, err := edgeFilters()
	if err != nil {
		return fragment{}, err
	}
	recFilters = append(recFilters, extra...)
	w.write(" WHERE ")
	w.writeJoined(" AND ", recFilters)
	w.write(")")
	return w.fragment(), nil
}

// varLengthDegenerate reports the two shapes that bypass CTE generation:
// *0..0 collapses to an endpoint equality, min>max can never match.
func varLengthDegenerate(edge *ast.EdgePattern) (selfOnly, empty bool) {
	if edge.MinHops == nil || edge.MaxHops == nil {
		return false, false
	}
	min, max := *edge.MinHops, *edge.MaxHops
	if min == 0 && max == 0 {
		return true, false
	}
	if min > max {
		return false, true
	}
	return false, false
}
