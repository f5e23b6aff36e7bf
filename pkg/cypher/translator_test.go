package cypher

import (
	"strings"
	"testing"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// AST builders shared by the package tests.

func q(clauses ...ast.Clause) *ast.Query {
	return &ast.Query{Clauses: clauses}
}

func node(variable string, labels ...string) *ast.NodePattern {
	return &ast.NodePattern{Variable: variable, Labels: labels}
}

func nodeWithProps(variable string, labels []string, keys []string, values ...ast.Expression) *ast.NodePattern {
	props := map[string]ast.Expression{}
	for i, k := range keys {
		props[k] = values[i]
	}
	return &ast.NodePattern{Variable: variable, Labels: labels, Properties: props, PropertyOrder: keys}
}

func edge(variable string, dir ast.Direction, types ...string) *ast.EdgePattern {
	return &ast.EdgePattern{Variable: variable, Direction: dir, Types: types}
}

func varEdge(variable string, dir ast.Direction, min, max *int, types ...string) *ast.EdgePattern {
	return &ast.EdgePattern{Variable: variable, Direction: dir, Types: types, MinHops: min, MaxHops: max, VarLength: true}
}

func hop(src *ast.NodePattern, e *ast.EdgePattern, tgt *ast.NodePattern) *ast.RelationshipPattern {
	return &ast.RelationshipPattern{Source: src, Edge: e, Target: tgt}
}

func chainPat(hops ...*ast.RelationshipPattern) *ast.Pattern {
	return &ast.Pattern{Chain: hops}
}

func nodePat(np *ast.NodePattern) *ast.Pattern {
	return &ast.Pattern{Node: np}
}

func match(patterns ...*ast.Pattern) *ast.MatchClause {
	return &ast.MatchClause{Patterns: patterns}
}

func optMatch(patterns ...*ast.Pattern) *ast.MatchClause {
	return &ast.MatchClause{Patterns: patterns, Optional: true}
}

func lit(v any) ast.Expression {
	if i, ok := v.(int); ok {
		return &ast.Literal{Value: int64(i)}
	}
	return &ast.Literal{Value: v}
}

func vr(name string) ast.Expression { return &ast.Variable{Name: name} }

func prop(variable, key string) ast.Expression {
	return &ast.Property{Variable: variable, Key: key}
}

func item(e ast.Expression, alias string) *ast.ReturnItem {
	return &ast.ReturnItem{Expression: e, Alias: alias}
}

func ret(items ...*ast.ReturnItem) *ast.ReturnClause {
	return &ast.ReturnClause{Items: items}
}

func fn(name string, args ...ast.Expression) ast.Expression {
	return &ast.FunctionCall{Name: name, Args: args}
}

func countStar() ast.Expression {
	return &ast.FunctionCall{Name: "count", Star: true}
}

func mustTranslate(t *testing.T, query *ast.Query, params map[string]any) *Result {
	t.Helper()
	result, err := Translate(query, params)
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	return result
}

func checkParity(t *testing.T, result *Result) {
	t.Helper()
	for i, stmt := range result.Statements {
		if got, want := strings.Count(stmt.SQL, "?"), len(stmt.Params); got != want {
			t.Errorf("statement %d: %d placeholders but %d params\nSQL: %s", i, got, want, stmt.SQL)
		}
	}
}

func singleStatement(t *testing.T, result *Result) Statement {
	t.Helper()
	if len(result.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(result.Statements))
	}
	return result.Statements[0]
}

func TestSimpleMatch(t *testing.T) {
	query := q(
		match(nodePat(nodeWithProps("n", []string{"Person"}, []string{"name"}, lit("Alice")))),
		ret(item(prop("n", "age"), "age")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)

	wantSQL := `SELECT json_extract(n0.properties, '$.age') AS "age" FROM nodes n0 WHERE EXISTS (SELECT 1 FROM json_each(n0.label) WHERE value = ?) AND json_extract(n0.properties, '$.name') = ?`
	if stmt.SQL != wantSQL {
		t.Errorf("SQL mismatch:\nGot:  %s\nWant: %s", stmt.SQL, wantSQL)
	}
	if len(stmt.Params) != 2 || stmt.Params[0] != "Person" || stmt.Params[1] != "Alice" {
		t.Errorf("params = %v, want [Person Alice]", stmt.Params)
	}
	if len(result.ReturnColumns) != 1 || result.ReturnColumns[0] != "age" {
		t.Errorf("returnColumns = %v, want [age]", result.ReturnColumns)
	}
	checkParity(t, result)
}

func TestOptionalMatchLabelPlacement(t *testing.T) {
	query := q(
		match(nodePat(node("a", "A"))),
		optMatch(chainPat(hop(node("a"), edge("", ast.DirectionRight, "R"), node("b", "B")))),
		ret(item(vr("a"), "a"), item(vr("b"), "b")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)

	for _, want := range []string{
		"FROM nodes n0",
		"LEFT JOIN edges e2 ON e2.source_id = n0.id AND e2.type = ?",
		"LEFT JOIN nodes n1 ON e2.target_id = n1.id AND EXISTS (SELECT 1 FROM json_each(n1.label) WHERE value = ?)",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	// The new target's label predicate must not leak into the top-level
	// WHERE, where it would filter rows of the required MATCH.
	whereAt := strings.LastIndex(stmt.SQL, " WHERE ")
	if whereAt < 0 {
		t.Fatalf("no WHERE in SQL:\n%s", stmt.SQL)
	}
	wherePart := stmt.SQL[whereAt:]
	if strings.Contains(wherePart, "n1.label") {
		t.Errorf("optional target label predicate leaked into WHERE:\n%s", stmt.SQL)
	}
	if got, want := stmt.Params, []any{"R", "B", "A"}; len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("params = %v, want %v", got, want)
	}
	checkParity(t, result)
}

func TestVariableLengthPath(t *testing.T) {
	query := q(
		match(chainPat(hop(node("a"), varEdge("", ast.DirectionRight, ast.Int(1), ast.Int(3), "KNOWS"), node("b")))),
		ret(item(vr("b"), "b")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)

	for _, want := range []string{
		"WITH RECURSIVE path_0(start_id, end_id, depth, edge_ids) AS (",
		"NOT EXISTS (SELECT 1 FROM json_each(p.edge_ids) WHERE json_extract(value, '$.id') = e.id)",
		"p.depth < 3",
		"FROM nodes n0, path_0, nodes n1",
		"n0.id = path_0.start_id",
		"n1.id = path_0.end_id",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	// Type filter parameterized once per CTE arm.
	if len(stmt.Params) != 2 || stmt.Params[0] != "KNOWS" || stmt.Params[1] != "KNOWS" {
		t.Errorf("params = %v, want [KNOWS KNOWS]", stmt.Params)
	}
	checkParity(t, result)
}

func TestVariableLengthDegenerate(t *testing.T) {
	// *0..0 collapses to endpoint equality.
	query := q(
		match(chainPat(hop(node("a"), varEdge("", ast.DirectionRight, ast.Int(0), ast.Int(0)), node("b")))),
		ret(item(vr("b"), "b")),
	)
	stmt := singleStatement(t, mustTranslate(t, query, nil))
	if strings.Contains(stmt.SQL, "WITH RECURSIVE") {
		t.Errorf("*0..0 should not emit a CTE:\n%s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, "n0.id = n1.id") {
		t.Errorf("*0..0 should emit endpoint equality:\n%s", stmt.SQL)
	}

	// min > max can never match.
	query = q(
		match(chainPat(hop(node("a"), varEdge("", ast.DirectionRight, ast.Int(3), ast.Int(1)), node("b")))),
		ret(item(vr("b"), "b")),
	)
	stmt = singleStatement(t, mustTranslate(t, query, nil))
	if stmt.SQL != "SELECT 1 WHERE 0" {
		t.Errorf("min>max should emit SELECT 1 WHERE 0, got:\n%s", stmt.SQL)
	}
}

func TestAggregationAfterWithLimit(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.WithClause{ReturnClause: ast.ReturnClause{
			Items: []*ast.ReturnItem{item(vr("n"), "n")},
			Limit: lit(2),
		}},
		ret(item(countStar(), "c")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)

	wantSQL := `SELECT COUNT(*) AS "c" FROM (SELECT * FROM nodes n0 LIMIT ?) __with_subquery__`
	if stmt.SQL != wantSQL {
		t.Errorf("SQL mismatch:\nGot:  %s\nWant: %s", stmt.SQL, wantSQL)
	}
	if len(stmt.Params) != 1 || stmt.Params[0] != 2 {
		t.Errorf("params = %v, want [2]", stmt.Params)
	}
	checkParity(t, result)
}

func TestListPredicateOverWithAggregate(t *testing.T) {
	query := q(
		match(nodePat(node("n"))),
		&ast.WithClause{ReturnClause: ast.ReturnClause{
			Items: []*ast.ReturnItem{item(fn("collect", prop("n", "age")), "ages")},
		}},
		ret(item(&ast.ListPredicate{
			Kind:     ast.PredicateAll,
			Variable: "x",
			List:     vr("ages"),
			Where:    ast.CondCompare(">", vr("x"), lit(0)),
		}, "ok")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)

	for _, want := range []string{
		`__aggregates__ AS (SELECT`,
		`json_group_array`,
		`AS "ages"`,
		`FROM nodes n0`,
		`json_each(__aggregates__."ages")`,
		`cypher_gt(__lp__.value, 0)`,
		`FROM __aggregates__`,
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	checkParity(t, result)
}

func TestPatternComprehension(t *testing.T) {
	query := q(
		match(nodePat(node("a", "A"))),
		ret(item(&ast.PatternComprehension{
			Pattern:    hop(node("a"), edge("", ast.DirectionRight, "T"), node("b", "B")),
			Projection: prop("b", "name"),
		}, "names")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)

	for _, want := range []string{
		`(SELECT COALESCE(json_group_array(json_extract(__pc_t_.properties, '$.name')), json('[]'))`,
		`FROM edges __pc_e_ JOIN nodes __pc_t_ ON __pc_e_.target_id = __pc_t_.id`,
		`EXISTS (SELECT 1 FROM json_each(__pc_t_.label) WHERE value = ?)`,
		`__pc_e_.source_id = n0.id`,
		`__pc_e_.type = ?`,
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	checkParity(t, result)
}

func TestEdgeUniqueness(t *testing.T) {
	// (a)-[e1]->(b)-[e2]->(c): two distinct edges in one connected group.
	query := q(
		match(chainPat(
			hop(node("a"), edge("e1", ast.DirectionRight), node("b")),
			hop(node("b"), edge("e2", ast.DirectionRight), node("c")),
		)),
		ret(item(vr("c"), "c")),
	)
	stmt := singleStatement(t, mustTranslate(t, query, nil))
	if !strings.Contains(stmt.SQL, "e2.id <> e4.id") {
		t.Errorf("missing edge uniqueness constraint:\n%s", stmt.SQL)
	}
}

func TestUndirectedDirectionMultiplier(t *testing.T) {
	query := q(
		match(chainPat(hop(node("a"), edge("", ast.DirectionNone, "R"), node("b")))),
		ret(item(vr("b"), "b")),
	)
	stmt := singleStatement(t, mustTranslate(t, query, nil))
	for _, want := range []string{
		"(SELECT 1 AS _d UNION ALL SELECT 2 AS _d)",
		"_d = 1",
		"_d = 2",
		"NOT (e2.source_id = e2.target_id AND __dir0._d = 2)",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
}

func TestUnion(t *testing.T) {
	query := q(
		match(nodePat(node("a", "A"))),
		ret(item(prop("a", "name"), "name")),
		&ast.UnionClause{All: true},
		match(nodePat(node("b", "B"))),
		ret(item(prop("b", "name"), "name")),
	)
	result := mustTranslate(t, query, nil)
	stmt := singleStatement(t, result)
	if !strings.Contains(stmt.SQL, " UNION ALL ") {
		t.Errorf("missing UNION ALL:\n%s", stmt.SQL)
	}
	if len(stmt.Params) != 2 || stmt.Params[0] != "A" || stmt.Params[1] != "B" {
		t.Errorf("params = %v, want [A B]", stmt.Params)
	}
	checkParity(t, result)
}

func TestUnionColumnMismatch(t *testing.T) {
	query := q(
		match(nodePat(node("a"))),
		ret(item(prop("a", "name"), "name")),
		&ast.UnionClause{},
		match(nodePat(node("b"))),
		ret(item(prop("b", "name"), "other")),
	)
	_, err := Translate(query, nil)
	if err == nil {
		t.Fatal("expected error for mismatched UNION columns")
	}
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrSyntax {
		t.Errorf("error = %v, want SyntaxError", err)
	}
}

func TestStandaloneCall(t *testing.T) {
	result := mustTranslate(t, q(&ast.CallClause{Procedure: "db.labels"}), nil)
	stmt := singleStatement(t, result)
	want := `SELECT DISTINCT value AS "label" FROM nodes, json_each(nodes.label) WHERE value <> ''`
	if stmt.SQL != want {
		t.Errorf("SQL mismatch:\nGot:  %s\nWant: %s", stmt.SQL, want)
	}
	if result.ReturnColumns[0] != "label" {
		t.Errorf("returnColumns = %v", result.ReturnColumns)
	}

	result = mustTranslate(t, q(&ast.CallClause{Procedure: "db.relationshipTypes"}), nil)
	stmt = singleStatement(t, result)
	if !strings.Contains(stmt.SQL, "SELECT DISTINCT type AS \"relationshipType\" FROM edges") {
		t.Errorf("unexpected SQL:\n%s", stmt.SQL)
	}
}

func TestUnknownProcedure(t *testing.T) {
	_, err := Translate(q(&ast.CallClause{Procedure: "apoc.load.json"}), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrUnsupportedFeature {
		t.Errorf("error = %v, want UnsupportedFeature", err)
	}
}

func TestUnknownVariable(t *testing.T) {
	_, err := Translate(q(
		match(nodePat(node("n"))),
		ret(item(prop("m", "x"), "x")),
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrUnknownVariable {
		t.Errorf("error = %v, want UnknownVariable", err)
	}
}

func TestVariableAlreadyBound(t *testing.T) {
	_, err := Translate(q(
		match(
			nodePat(node("n")),
			chainPat(hop(node("a"), edge("n", ast.DirectionRight), node("b"))),
		),
		ret(item(vr("n"), "n")),
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrVariableAlreadyBound {
		t.Errorf("error = %v, want VariableAlreadyBound", err)
	}
}

func TestDuplicateColumns(t *testing.T) {
	_, err := Translate(q(
		match(nodePat(node("n"))),
		ret(item(prop("n", "a"), "x"), item(prop("n", "b"), "x")),
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrSyntax {
		t.Errorf("error = %v, want SyntaxError", err)
	}
}

func TestOrderByUnderDistinct(t *testing.T) {
	// Sorting by a column that is returned is fine.
	result := mustTranslate(t, q(
		match(nodePat(node("n"))),
		&ast.ReturnClause{
			Items:    []*ast.ReturnItem{item(prop("n", "name"), "name")},
			Distinct: true,
			OrderBy:  []*ast.SortItem{{Expression: vr("name")}},
		},
	), nil)
	stmt := singleStatement(t, result)
	if !strings.Contains(stmt.SQL, `ORDER BY "name"`) {
		t.Errorf("expected ORDER BY on alias:\n%s", stmt.SQL)
	}

	// Sorting by something not returned under DISTINCT is an error.
	_, err := Translate(q(
		match(nodePat(node("n"))),
		&ast.ReturnClause{
			Items:    []*ast.ReturnItem{item(prop("n", "name"), "name")},
			Distinct: true,
			OrderBy:  []*ast.SortItem{{Expression: prop("n", "age")}},
		},
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrSyntax {
		t.Errorf("error = %v, want SyntaxError", err)
	}
}

func TestSkipLimitNegative(t *testing.T) {
	_, err := Translate(q(
		match(nodePat(node("n"))),
		&ast.ReturnClause{
			Items: []*ast.ReturnItem{item(vr("n"), "n")},
			Limit: lit(-1),
		},
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrInvalidArgument {
		t.Errorf("error = %v, want InvalidArgument", err)
	}
}

func TestGroupByOnMixedAggregation(t *testing.T) {
	query := q(
		match(nodePat(node("n", "Person"))),
		ret(item(prop("n", "city"), "city"), item(countStar(), "c")),
	)
	stmt := singleStatement(t, mustTranslate(t, query, nil))
	if !strings.Contains(stmt.SQL, "GROUP BY json_extract(n0.properties, '$.city')") {
		t.Errorf("missing GROUP BY:\n%s", stmt.SQL)
	}
}

func TestReturnStar(t *testing.T) {
	query := q(
		match(chainPat(hop(node("a"), edge("r", ast.DirectionRight), node("b")))),
		&ast.ReturnClause{Items: []*ast.ReturnItem{{Star: true}}},
	)
	result := mustTranslate(t, query, nil)
	if got := result.ReturnColumns; len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "r" {
		t.Errorf("returnColumns = %v, want [a b r]", got)
	}
}

func TestParameterBinding(t *testing.T) {
	query := q(
		match(nodePat(nodeWithProps("n", nil, []string{"name"}, &ast.Parameter{Name: "who"}))),
		ret(item(vr("n"), "n")),
	)
	result := mustTranslate(t, query, map[string]any{"who": "Bob"})
	stmt := singleStatement(t, result)
	if len(stmt.Params) != 1 || stmt.Params[0] != "Bob" {
		t.Errorf("params = %v, want [Bob]", stmt.Params)
	}
	checkParity(t, result)

	_, err := Translate(query, nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrInvalidArgument {
		t.Errorf("missing parameter should be InvalidArgument, got %v", err)
	}
}

func TestUnwind(t *testing.T) {
	query := q(
		&ast.UnwindClause{Expression: &ast.ListLiteral{Items: []ast.Expression{lit(1), lit(2), lit(3)}}, Variable: "x"},
		ret(item(vr("x"), "x")),
	)
	stmt := singleStatement(t, mustTranslate(t, query, nil))
	if !strings.Contains(stmt.SQL, "json_each(json_array(1, 2, 3))") {
		t.Errorf("missing json_each over list:\n%s", stmt.SQL)
	}
	if !strings.Contains(stmt.SQL, ".value AS \"x\"") {
		t.Errorf("unwound variable should project the element value:\n%s", stmt.SQL)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}
