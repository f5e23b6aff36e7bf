package cypher

import (
	"strings"
	"testing"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// whereStmt translates `MATCH (n) WHERE <cond> RETURN n` and returns the
// statement.
func whereStmt(t *testing.T, cond *ast.WhereCondition, params map[string]any) Statement {
	t.Helper()
	m := match(nodePat(node("n")))
	m.Where = cond
	result := mustTranslate(t, q(m, ret(item(vr("n"), "n"))), params)
	checkParity(t, result)
	return singleStatement(t, result)
}

func TestWhereBooleanOperators(t *testing.T) {
	cond := ast.CondAnd(
		ast.CondCompare("=", prop("n", "a"), lit(1)),
		ast.CondOr(
			ast.CondCompare(">", prop("n", "b"), lit(2)),
			ast.CondNot(ast.CondCompare("<", prop("n", "c"), lit(3))),
		),
	)
	stmt := whereStmt(t, cond, nil)
	for _, want := range []string{"cypher_and(", "cypher_or(", "cypher_not(", "cypher_gt(", "cypher_lt("} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
}

func TestWhereXorExpansion(t *testing.T) {
	cond := &ast.WhereCondition{
		Op: ast.WhereXor,
		Conditions: []*ast.WhereCondition{
			ast.CondCompare("=", prop("n", "a"), lit(1)),
			ast.CondCompare("=", prop("n", "b"), lit(2)),
		},
	}
	stmt := whereStmt(t, cond, nil)
	// (a AND NOT b) OR (NOT a AND b)
	if !strings.Contains(stmt.SQL, "cypher_or(cypher_and(") || !strings.Contains(stmt.SQL, "cypher_and(cypher_not(") {
		t.Errorf("XOR should expand to and/or/not:\n%s", stmt.SQL)
	}
}

func TestWhereIsNull(t *testing.T) {
	cond := &ast.WhereCondition{Op: ast.WhereIsNull, Expr: prop("n", "x"), Negated: true}
	stmt := whereStmt(t, cond, nil)
	if !strings.Contains(stmt.SQL, "IS NOT NULL") {
		t.Errorf("missing IS NOT NULL:\n%s", stmt.SQL)
	}
}

func TestWhereExistsPattern(t *testing.T) {
	cond := &ast.WhereCondition{
		Op: ast.WhereExists,
		Pattern: chainPat(
			hop(node("n"), edge("", ast.DirectionRight, "KNOWS"), node("", "Person")),
		),
	}
	stmt := whereStmt(t, cond, nil)
	for _, want := range []string{
		"EXISTS (SELECT 1 FROM",
		"__pp_e",
		".source_id = n0.id",
		".type = ?",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	if stmt.Params[0] != "Person" && stmt.Params[0] != "KNOWS" {
		t.Errorf("params = %v", stmt.Params)
	}
}

func TestWhereVarLengthReachability(t *testing.T) {
	cond := &ast.WhereCondition{
		Op: ast.WherePattern,
		Pattern: chainPat(
			hop(node("n"), varEdge("", ast.DirectionRight, ast.Int(1), ast.Int(4), "LINKS"), node("", "Hub")),
		),
	}
	stmt := whereStmt(t, cond, nil)
	for _, want := range []string{
		"EXISTS (WITH RECURSIVE __pp_vl",
		"(start_id, end_id, depth, edge_ids) AS (",
		"json_each(p.edge_ids)",
	} {
		if !strings.Contains(stmt.SQL, want) {
			t.Errorf("SQL missing %q:\n%s", want, stmt.SQL)
		}
	}
	checkParityOne(t, stmt)
}

func TestWhereBareGraphVariableRejected(t *testing.T) {
	cond := &ast.WhereCondition{Op: ast.WhereExpression, Expr: vr("n")}
	m := match(nodePat(node("n")))
	m.Where = cond
	_, err := Translate(q(m, ret(item(vr("n"), "n"))), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrSyntax {
		t.Errorf("bare graph variable predicate should be SyntaxError, got %v", err)
	}
}

func TestOptionalMatchWhereGoesToOn(t *testing.T) {
	om := optMatch(chainPat(hop(node("a"), edge("", ast.DirectionRight, "R"), node("b"))))
	om.Where = ast.CondCompare(">", prop("b", "score"), lit(5))
	result := mustTranslate(t, q(
		match(nodePat(node("a"))),
		om,
		ret(item(vr("a"), "a"), item(vr("b"), "b")),
	), nil)
	stmt := singleStatement(t, result)
	onPart := stmt.SQL[strings.Index(stmt.SQL, "LEFT JOIN nodes"):]
	if i := strings.LastIndex(onPart, " WHERE "); i >= 0 {
		onPart = onPart[:i]
	}
	if !strings.Contains(onPart, "cypher_gt(json_extract(") {
		t.Errorf("OPTIONAL MATCH WHERE should sit in the target's ON clause:\n%s", stmt.SQL)
	}
	checkParity(t, result)
}

func checkParityOne(t *testing.T, stmt Statement) {
	t.Helper()
	if got, want := strings.Count(stmt.SQL, "?"), len(stmt.Params); got != want {
		t.Errorf("%d placeholders but %d params\nSQL: %s", got, want, stmt.SQL)
	}
}
