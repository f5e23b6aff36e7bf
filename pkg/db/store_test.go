package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := Open(Config{Path: ":memory:", ForeignKeys: false})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateAndMatchRoundTrip(t *testing.T) {
	store := openTestDB(t)

	create := &ast.Query{Clauses: []ast.Clause{
		&ast.CreateClause{Patterns: []*ast.Pattern{{
			Node: &ast.NodePattern{
				Variable:      "n",
				Labels:        []string{"Person"},
				Properties:    map[string]ast.Expression{"name": &ast.Literal{Value: "Alice"}, "age": &ast.Literal{Value: int64(30)}},
				PropertyOrder: []string{"name", "age"},
			},
		}}},
	}}
	_, err := store.Run(create, nil)
	require.NoError(t, err)

	read := &ast.Query{Clauses: []ast.Clause{
		&ast.MatchClause{Patterns: []*ast.Pattern{{
			Node: &ast.NodePattern{
				Variable:      "n",
				Labels:        []string{"Person"},
				Properties:    map[string]ast.Expression{"name": &ast.Literal{Value: "Alice"}},
				PropertyOrder: []string{"name"},
			},
		}}},
		&ast.ReturnClause{Items: []*ast.ReturnItem{
			{Expression: &ast.Property{Variable: "n", Key: "age"}, Alias: "age"},
		}},
	}}
	result, err := store.Run(read, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"age"}, result.Columns)
	require.Len(t, result.Rows, 1)
	require.EqualValues(t, 30, result.Rows[0][0])
}

func TestRelationshipTraversal(t *testing.T) {
	store := openTestDB(t)

	create := &ast.Query{Clauses: []ast.Clause{
		&ast.CreateClause{Patterns: []*ast.Pattern{{
			Chain: []*ast.RelationshipPattern{{
				Source: &ast.NodePattern{Variable: "a", Labels: []string{"A"}, Properties: map[string]ast.Expression{"k": &ast.Literal{Value: "src"}}, PropertyOrder: []string{"k"}},
				Edge:   &ast.EdgePattern{Direction: ast.DirectionRight, Types: []string{"LINKS"}},
				Target: &ast.NodePattern{Variable: "b", Labels: []string{"B"}, Properties: map[string]ast.Expression{"k": &ast.Literal{Value: "dst"}}, PropertyOrder: []string{"k"}},
			}},
		}}},
	}}
	_, err := store.Run(create, nil)
	require.NoError(t, err)

	read := &ast.Query{Clauses: []ast.Clause{
		&ast.MatchClause{Patterns: []*ast.Pattern{{
			Chain: []*ast.RelationshipPattern{{
				Source: &ast.NodePattern{Variable: "x", Labels: []string{"A"}},
				Edge:   &ast.EdgePattern{Direction: ast.DirectionRight, Types: []string{"LINKS"}},
				Target: &ast.NodePattern{Variable: "y"},
			}},
		}}},
		&ast.ReturnClause{Items: []*ast.ReturnItem{
			{Expression: &ast.Property{Variable: "y", Key: "k"}, Alias: "k"},
		}},
	}}
	result, err := store.Run(read, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	require.Equal(t, "dst", result.Rows[0][0])
}

func TestNodeProjectionDecodesToMap(t *testing.T) {
	store := openTestDB(t)

	_, err := store.Run(&ast.Query{Clauses: []ast.Clause{
		&ast.CreateClause{Patterns: []*ast.Pattern{{
			Node: &ast.NodePattern{Variable: "n", Labels: []string{"T"}, Properties: map[string]ast.Expression{"v": &ast.Literal{Value: int64(7)}}, PropertyOrder: []string{"v"}},
		}}},
	}}, nil)
	require.NoError(t, err)

	result, err := store.Run(&ast.Query{Clauses: []ast.Clause{
		&ast.MatchClause{Patterns: []*ast.Pattern{{Node: &ast.NodePattern{Variable: "n", Labels: []string{"T"}}}}},
		&ast.ReturnClause{Items: []*ast.ReturnItem{{Expression: &ast.Variable{Name: "n"}, Alias: "n"}}},
	}}, nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)

	obj, ok := result.Rows[0][0].(map[string]any)
	require.True(t, ok, "projected node should decode to a map, got %T", result.Rows[0][0])
	require.EqualValues(t, 7, obj["v"])
	require.NotEmpty(t, obj["_nf_id"], "projected node must carry its identity key")
}

func TestRegisteredFunctionsAvailable(t *testing.T) {
	store := openTestDB(t)

	rows, err := store.RawQuery("SELECT cypher_and(1, NULL), cypher_equals('[1,2]', '[1,2]'), cypher_lt(1, 2)")
	require.NoError(t, err)
	defer rows.Close()
	require.True(t, rows.Next())
	var and, eq, lt any
	require.NoError(t, rows.Scan(&and, &eq, &lt))
	require.Nil(t, and)
	require.EqualValues(t, 1, eq)
	require.EqualValues(t, 1, lt)
}

func TestNormalizeParams(t *testing.T) {
	out := normalizeParams(map[string]any{
		"big":   float64(1 << 54),
		"small": 3,
		"list":  []any{1, 2.5},
	})
	require.IsType(t, int64(0), out["big"])
	require.IsType(t, int64(0), out["small"])
	list := out["list"].([]any)
	require.IsType(t, int64(0), list[0])
	require.IsType(t, float64(0), list[1])
}
