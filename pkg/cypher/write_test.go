package cypher

import (
	"strings"
	"testing"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

func TestCreateNode(t *testing.T) {
	query := q(&ast.CreateClause{Patterns: []*ast.Pattern{
		nodePat(nodeWithProps("n", []string{"Person"}, []string{"name"}, lit("Alice"))),
	}})
	result := mustTranslate(t, query, nil)
	if len(result.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(result.Statements))
	}
	stmt := result.Statements[0]
	if stmt.SQL != "INSERT INTO nodes (id, label, properties) VALUES (?, ?, ?)" {
		t.Errorf("SQL = %s", stmt.SQL)
	}
	if len(stmt.Params) != 3 {
		t.Fatalf("params = %v", stmt.Params)
	}
	if id, ok := stmt.Params[0].(string); !ok || len(id) != 36 {
		t.Errorf("first param should be a UUID, got %v", stmt.Params[0])
	}
	if stmt.Params[1] != `["Person"]` {
		t.Errorf("label param = %v", stmt.Params[1])
	}
	if stmt.Params[2] != `{"name":"Alice"}` {
		t.Errorf("properties param = %v", stmt.Params[2])
	}
	if result.ReturnColumns != nil {
		t.Errorf("pure write should have nil returnColumns")
	}
	checkParity(t, result)
}

func TestCreateRelationshipChain(t *testing.T) {
	query := q(&ast.CreateClause{Patterns: []*ast.Pattern{
		chainPat(hop(node("a"), edge("", ast.DirectionRight, "KNOWS"), node("b"))),
	}})
	result := mustTranslate(t, query, nil)
	if len(result.Statements) != 3 {
		t.Fatalf("expected 3 statements (2 nodes + 1 edge), got %d", len(result.Statements))
	}
	edgeStmt := result.Statements[2]
	if !strings.HasPrefix(edgeStmt.SQL, "INSERT INTO edges") {
		t.Errorf("third statement should insert the edge: %s", edgeStmt.SQL)
	}
	// source/target ids must reference the freshly created node UUIDs
	aID := result.Statements[0].Params[0]
	bID := result.Statements[1].Params[0]
	if edgeStmt.Params[2] != aID || edgeStmt.Params[3] != bID {
		t.Errorf("edge endpoints %v/%v do not match node ids %v/%v",
			edgeStmt.Params[2], edgeStmt.Params[3], aID, bID)
	}
	checkParity(t, result)
}

func TestCreateDirectionLeftSwapsEndpoints(t *testing.T) {
	query := q(&ast.CreateClause{Patterns: []*ast.Pattern{
		chainPat(hop(node("a"), edge("", ast.DirectionLeft, "KNOWS"), node("b"))),
	}})
	result := mustTranslate(t, query, nil)
	edgeStmt := result.Statements[2]
	aID := result.Statements[0].Params[0]
	bID := result.Statements[1].Params[0]
	if edgeStmt.Params[2] != bID || edgeStmt.Params[3] != aID {
		t.Errorf("direction=left should swap source and target")
	}
}

func TestCreateAfterMatch(t *testing.T) {
	query := q(
		match(nodePat(node("a", "Person"))),
		&ast.CreateClause{Patterns: []*ast.Pattern{
			chainPat(hop(node("a"), edge("", ast.DirectionRight, "OWNS"), node("b"))),
		}},
	)
	result := mustTranslate(t, query, nil)
	var edgeStmt *Statement
	for i := range result.Statements {
		if strings.HasPrefix(result.Statements[i].SQL, "INSERT INTO edges") {
			edgeStmt = &result.Statements[i]
		}
	}
	if edgeStmt == nil {
		t.Fatalf("no edge insert emitted")
	}
	if !strings.Contains(edgeStmt.SQL, "SELECT") || !strings.Contains(edgeStmt.SQL, "n0.id") {
		t.Errorf("edge insert should select the matched endpoint:\n%s", edgeStmt.SQL)
	}
	checkParity(t, result)
}

func TestCreateRebindRejected(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.CreateClause{Patterns: []*ast.Pattern{
			nodePat(node("n", "Extra")),
		}},
	)
	_, err := Translate(query, nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrVariableAlreadyBound {
		t.Errorf("error = %v, want VariableAlreadyBound", err)
	}
}

func TestMergeNode(t *testing.T) {
	query := q(&ast.MergeClause{Pattern: nodePat(
		nodeWithProps("n", []string{"Person"}, []string{"name"}, lit("Bob")),
	)})
	result := mustTranslate(t, query, nil)
	stmt := result.Statements[0]
	for _, want := range []string{
		"INSERT OR IGNORE INTO nodes",
		"WHERE NOT EXISTS (SELECT 1 FROM nodes WHERE label = ?",
		"json_extract(properties, '$.name') = ?",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	checkParity(t, result)
}

func TestMergeNullPropertyRejected(t *testing.T) {
	query := q(&ast.MergeClause{Pattern: nodePat(
		nodeWithProps("n", nil, []string{"name"}, lit(nil)),
	)})
	_, err := Translate(query, nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrInvalidArgument {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestMergeRelationshipUnsupported(t *testing.T) {
	query := q(&ast.MergeClause{Pattern: chainPat(
		hop(node("a"), edge("", ast.DirectionRight, "R"), node("b")),
	)})
	_, err := Translate(query, nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrUnsupportedFeature {
		t.Errorf("error = %v, want UnsupportedFeature", err)
	}
}

func TestSetProperty(t *testing.T) {
	query := q(
		match(nodePat(node("n", "Person"))),
		&ast.SetClause{Items: []*ast.SetItem{
			{Variable: "n", Property: "age", Value: lit(42)},
		}},
	)
	result := mustTranslate(t, query, nil)
	stmt := result.Statements[0]
	for _, want := range []string{
		"UPDATE nodes SET properties = json_set(properties, '$.age', 42)",
		"WHERE id IN (SELECT n0.id FROM nodes n0",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	checkParity(t, result)
}

func TestSetLabels(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.SetClause{Items: []*ast.SetItem{
			{Variable: "n", Labels: []string{"Admin", "Active"}},
		}},
	)
	result := mustTranslate(t, query, nil)
	stmt := result.Statements[0]
	for _, want := range []string{
		"UPDATE nodes SET label = (SELECT json_group_array(value) FROM (SELECT value FROM json_each(label) UNION SELECT ? UNION SELECT ?))",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	checkParity(t, result)
}

func TestSetLabelsOnRelationshipRejected(t *testing.T) {
	query := q(
		match(chainPat(hop(node("a"), edge("r", ast.DirectionRight), node("b")))),
		&ast.SetClause{Items: []*ast.SetItem{
			{Variable: "r", Labels: []string{"X"}},
		}},
	)
	_, err := Translate(query, nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrTypeMismatch {
		t.Errorf("error = %v, want TypeMismatch", err)
	}
}

func TestSetMapMerge(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.SetClause{Items: []*ast.SetItem{
			{Variable: "n", Merge: true, Value: &ast.MapLiteral{
				Entries:    map[string]ast.Expression{"a": lit(1)},
				EntryOrder: []string{"a"},
			}},
		}},
	)
	result := mustTranslate(t, query, nil)
	if !strings.Contains(result.Statements[0].SQL, "json_patch(properties, ") {
		t.Errorf("map merge should use json_patch:\n%s", result.Statements[0].SQL)
	}
}

func TestRemoveProperty(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.RemoveClause{Items: []*ast.RemoveItem{{Variable: "n", Property: "age"}}},
	)
	result := mustTranslate(t, query, nil)
	if !strings.Contains(result.Statements[0].SQL, "json_remove(properties, '$.age')") {
		t.Errorf("REMOVE property should use json_remove:\n%s", result.Statements[0].SQL)
	}
}

func TestRemoveLabels(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.RemoveClause{Items: []*ast.RemoveItem{{Variable: "n", Labels: []string{"Admin"}}}},
	)
	result := mustTranslate(t, query, nil)
	stmt := result.Statements[0]
	if !strings.Contains(stmt.SQL, "FROM json_each(label) WHERE value NOT IN (?)") {
		t.Errorf("REMOVE label shape wrong:\n%s", stmt.SQL)
	}
	checkParity(t, result)
}

func TestDetachDeleteOrdersEdgeDeleteFirst(t *testing.T) {
	query := q(
		match(nodePat(node("n", "Gone"))),
		&ast.DeleteClause{Variables: []string{"n"}, Detach: true},
	)
	result := mustTranslate(t, query, nil)
	if len(result.Statements) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(result.Statements))
	}
	if !strings.HasPrefix(result.Statements[0].SQL, "DELETE FROM edges") {
		t.Errorf("edges must be deleted before nodes:\n%s", result.Statements[0].SQL)
	}
	if !strings.HasPrefix(result.Statements[1].SQL, "DELETE FROM nodes") {
		t.Errorf("second statement should delete the node:\n%s", result.Statements[1].SQL)
	}
	checkParity(t, result)
}

func TestWriteStatementOrderPreserved(t *testing.T) {
	query := q(
		&ast.CreateClause{Patterns: []*ast.Pattern{nodePat(node("a", "A"))}},
		&ast.SetClause{Items: []*ast.SetItem{{Variable: "a", Property: "x", Value: lit(1)}}},
		&ast.DeleteClause{Variables: []string{"a"}},
	)
	result := mustTranslate(t, query, nil)
	if len(result.Statements) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(result.Statements))
	}
	prefixes := []string{"INSERT INTO nodes", "UPDATE nodes", "DELETE FROM nodes"}
	for i, p := range prefixes {
		if !strings.HasPrefix(result.Statements[i].SQL, p) {
			t.Errorf("statement %d should start with %q:\n%s", i, p, result.Statements[i].SQL)
		}
	}
	checkParity(t, result)
}
