package cypher

import (
	"strings"
	"testing"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// exprStmt translates `MATCH (n) RETURN <expr> AS x` and returns the
// statement.
func exprStmt(t *testing.T, e ast.Expression, params map[string]any) Statement {
	t.Helper()
	result := mustTranslate(t, q(match(nodePat(node("n"))), ret(item(e, "x"))), params)
	checkParity(t, result)
	return singleStatement(t, result)
}

func exprSelect(t *testing.T, e ast.Expression, params map[string]any) string {
	t.Helper()
	stmt := exprStmt(t, e, params)
	sql := strings.TrimPrefix(stmt.SQL, "SELECT ")
	end := strings.Index(sql, ` AS "x"`)
	if end < 0 {
		t.Fatalf("no item alias in SQL: %s", stmt.SQL)
	}
	return sql[:end]
}

func TestIntegerLiteralsInlined(t *testing.T) {
	// Integer division must survive parameter binding, so integers are
	// inlined as SQL literals.
	got := exprSelect(t, &ast.Binary{Op: "/", Left: lit(7), Right: lit(2)}, nil)
	if got != "(7 / 2)" {
		t.Errorf("got %q, want (7 / 2)", got)
	}
}

func TestFloatKeepsText(t *testing.T) {
	got := exprSelect(t, &ast.Literal{Value: float64(2), IsFloat: true, Text: "2.0"}, nil)
	if got != "2.0" {
		t.Errorf("got %q, want 2.0", got)
	}
}

func TestStringLiteralParameterized(t *testing.T) {
	stmt := exprStmt(t, lit("hello"), nil)
	if !strings.Contains(stmt.SQL, "SELECT ?") || stmt.Params[0] != "hello" {
		t.Errorf("string literal should bind as parameter: %s %v", stmt.SQL, stmt.Params)
	}
}

func TestOrderingComparisonUsesCypherFunctions(t *testing.T) {
	got := exprSelect(t, &ast.Comparison{Op: "<", Left: prop("n", "age"), Right: lit(30)}, nil)
	if got != "cypher_lt(json_extract(n0.properties, '$.age'), 30)" {
		t.Errorf("got %q", got)
	}
}

func TestNaNGuardOnDivision(t *testing.T) {
	// A division in an operand wraps the comparison in COALESCE.
	got := exprSelect(t, &ast.Comparison{
		Op:   ">",
		Left: &ast.Binary{Op: "/", Left: prop("n", "a"), Right: prop("n", "b")},
		Right: lit(0),
	}, nil)
	if !strings.HasPrefix(got, "COALESCE(cypher_gt(") || !strings.HasSuffix(got, ", 0)") {
		t.Errorf("division should add a NaN guard, got %q", got)
	}
}

func TestSimpleCaseUsesTypeTags(t *testing.T) {
	got := exprSelect(t, &ast.Case{
		Test:  prop("n", "kind"),
		Whens: []*ast.CaseWhen{{When: lit(1), Then: lit("one")}},
		Else:  lit("other"),
	}, nil)
	if !strings.Contains(got, "cypher_case_eq(json_extract(n0.properties, '$.kind'), 'unknown', 1, 'integer')") {
		t.Errorf("simple CASE should route through cypher_case_eq, got %q", got)
	}
}

func TestCaseBranchBooleansAreJSON(t *testing.T) {
	got := exprSelect(t, &ast.Case{
		Whens: []*ast.CaseWhen{{
			When: &ast.Comparison{Op: "=", Left: prop("n", "a"), Right: lit(1)},
			Then: lit(true),
		}},
		Else: lit(false),
	}, nil)
	if !strings.Contains(got, "json('true')") || !strings.Contains(got, "json('false')") {
		t.Errorf("CASE branch booleans should be JSON booleans, got %q", got)
	}
}

func TestListConcatenation(t *testing.T) {
	list := func(items ...ast.Expression) ast.Expression { return &ast.ListLiteral{Items: items} }
	got := exprSelect(t, &ast.Binary{Op: "+", Left: list(lit(1)), Right: list(lit(2))}, nil)
	if !strings.Contains(got, "UNION ALL") || !strings.Contains(got, "json_group_array") {
		t.Errorf("list+list should concatenate via UNION ALL, got %q", got)
	}
}

func TestStringConcatenation(t *testing.T) {
	got := exprSelect(t, &ast.Binary{Op: "+", Left: lit("a"), Right: prop("n", "s")}, nil)
	if !strings.Contains(got, "||") {
		t.Errorf("string + should use ||, got %q", got)
	}
}

func TestInEmptyList(t *testing.T) {
	got := exprSelect(t, &ast.In{Needle: prop("n", "x"), List: &ast.ListLiteral{}}, nil)
	if got != "0" {
		t.Errorf("IN empty list should be 0, got %q", got)
	}
}

func TestInLiteralList(t *testing.T) {
	stmt := exprStmt(t, &ast.In{
		Needle: prop("n", "x"),
		List:   &ast.ListLiteral{Items: []ast.Expression{lit("a"), lit("b")}},
	}, nil)
	if !strings.Contains(stmt.SQL, "IN (?, ?)") {
		t.Errorf("literal scalar list should use IN, got %s", stmt.SQL)
	}
}

func TestInListWithNull(t *testing.T) {
	got := exprSelect(t, &ast.In{
		Needle: prop("n", "x"),
		List:   &ast.ListLiteral{Items: []ast.Expression{lit(1), lit(nil)}},
	}, nil)
	if !strings.Contains(got, "THEN 1 ELSE NULL END") {
		t.Errorf("null in list adopts unknown semantics, got %q", got)
	}
}

func TestListComprehension(t *testing.T) {
	got := exprSelect(t, &ast.ListComprehension{
		Variable:   "v",
		List:       prop("n", "items"),
		Where:      ast.CondCompare(">", vr("v"), lit(0)),
		Projection: &ast.Binary{Op: "*", Left: vr("v"), Right: lit(2)},
	}, nil)
	for _, want := range []string{
		"json_each(json_extract(n0.properties, '$.items')) AS __lc__",
		"(__lc__.value * 2)",
		"WHERE cypher_gt(__lc__.value, 0)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("list comprehension missing %q:\n%s", want, got)
		}
	}
}

func TestListPredicateThreeValued(t *testing.T) {
	pred := func(kind ast.ListPredicateKind) ast.Expression {
		return &ast.ListPredicate{
			Kind:     kind,
			Variable: "v",
			List:     prop("n", "xs"),
			Where:    ast.CondCompare(">", vr("v"), lit(0)),
		}
	}
	tests := []struct {
		kind ast.ListPredicateKind
		want []string
	}{
		{ast.PredicateAll, []string{"> 0 THEN 0", "> 0 THEN NULL ELSE 1 END"}},
		{ast.PredicateAny, []string{"> 0 THEN 1", "> 0 THEN NULL ELSE 0 END"}},
		{ast.PredicateNone, []string{"> 0 THEN 0", "THEN NULL ELSE 1 END"}},
		{ast.PredicateSingle, []string{"> 1 THEN 0", "= 0 THEN 1", "< 1 THEN 0 ELSE NULL END"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			got := exprSelect(t, pred(tt.kind), nil)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("%s missing %q:\n%s", tt.kind, want, got)
				}
			}
		})
	}
}

func TestStringOpsGuardNonStrings(t *testing.T) {
	got := exprSelect(t, &ast.StringOp{Op: ast.StringContains, Left: prop("n", "s"), Right: lit("x")}, nil)
	for _, want := range []string{"typeof(", "INSTR(", "ELSE NULL END"} {
		if !strings.Contains(got, want) {
			t.Errorf("CONTAINS missing %q:\n%s", want, got)
		}
	}
}

func TestFunctionLibrary(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expression
		want string
	}{
		{"toUpper", fn("toUpper", prop("n", "s")), "UPPER(json_extract(n0.properties, '$.s'))"},
		{"trim", fn("trim", lit("  x ")), "TRIM(?)"},
		{"substring", fn("substring", prop("n", "s"), lit(1), lit(3)), "SUBSTR(json_extract(n0.properties, '$.s'), (1) + 1, 3)"},
		{"head", fn("head", prop("n", "xs")), "json_extract(json_extract(n0.properties, '$.xs'), '$[0]')"},
		{"last", fn("last", prop("n", "xs")), "json_extract(json_extract(n0.properties, '$.xs'), '$[#-1]')"},
		{"labels", fn("labels", vr("n")), "json(n0.label)"},
		{"id", fn("id", vr("n")), "n0.id"},
		{"properties", fn("properties", vr("n")), "json(n0.properties)"},
		{"sqrt", fn("sqrt", lit(2)), "SQRT(2)"},
		{"abs", fn("abs", lit(-2)), "ABS"},
		{"coalesce", fn("coalesce", prop("n", "a"), lit(0)), "COALESCE(json_extract(n0.properties, '$.a'), 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exprSelect(t, tt.expr, nil)
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestUnknownFunction(t *testing.T) {
	_, err := Translate(q(match(nodePat(node("n"))), ret(item(fn("frobnicate", vr("n")), "x"))), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrSyntax {
		t.Errorf("unknown function should be SyntaxError, got %v", err)
	}
}

func TestRandInsideAggregateRejected(t *testing.T) {
	_, err := Translate(q(
		match(nodePat(node("n"))),
		ret(item(fn("sum", fn("rand")), "x")),
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrSyntax {
		t.Errorf("rand() inside sum() should be SyntaxError, got %v", err)
	}
}

func TestPercentileValidation(t *testing.T) {
	_, err := Translate(q(
		match(nodePat(node("n"))),
		ret(item(fn("percentileDisc", prop("n", "age"), &ast.Literal{Value: float64(1.5), IsFloat: true}), "x")),
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrInvalidArgument {
		t.Errorf("percentile 1.5 should be InvalidArgument, got %v", err)
	}

	_, err = Translate(q(
		match(nodePat(node("n"))),
		ret(item(fn("percentileDisc", lit(0.5), lit("age")), "x")),
	), nil)
	if !asError(err, &terr) || terr.Kind != ErrInvalidArgument {
		t.Errorf("swapped percentile args should be InvalidArgument, got %v", err)
	}
}

func TestRangeValidation(t *testing.T) {
	_, err := Translate(q(
		match(nodePat(node("n"))),
		ret(item(fn("range", lit(0), lit(10), lit(0)), "x")),
	), nil)
	var terr *Error
	if !asError(err, &terr) || terr.Kind != ErrInvalidArgument {
		t.Errorf("range step 0 should be InvalidArgument, got %v", err)
	}
}

func TestTemporalConstruction(t *testing.T) {
	stmt := exprStmt(t, fn("date", lit("2020-06-05")), nil)
	if stmt.Params[len(stmt.Params)-1] != "2020-06-05" {
		t.Errorf("date() should bind the normalized ISO string, params = %v", stmt.Params)
	}

	stmt = exprStmt(t, fn("date", lit("2020W23")), nil)
	if stmt.Params[len(stmt.Params)-1] != "2020-06-01" {
		t.Errorf("compact week date should normalize, params = %v", stmt.Params)
	}

	stmt = exprStmt(t, fn("duration", lit("P1DT2H")), nil)
	if stmt.Params[len(stmt.Params)-1] != "P1DT2H" {
		t.Errorf("duration params = %v", stmt.Params)
	}
}

func TestTemporalArithmetic(t *testing.T) {
	got := exprSelect(t, &ast.Binary{
		Op:   "+",
		Left: fn("date", lit("2020-01-01")),
		Right: fn("duration", &ast.MapLiteral{
			Entries:    map[string]ast.Expression{"days": lit(3)},
			EntryOrder: []string{"days"},
		}),
	}, nil)
	if !strings.Contains(got, "DATETIME(?") || !strings.Contains(got, "'+3 days'") {
		t.Errorf("temporal + duration should use DATETIME modifiers, got %q", got)
	}
}

func TestLabelPredicateExpression(t *testing.T) {
	got := exprSelect(t, &ast.LabelPredicate{Variable: "n", Labels: []string{"Admin"}}, nil)
	if !strings.Contains(got, "EXISTS (SELECT 1 FROM json_each(n0.label) WHERE value = ?)") {
		t.Errorf("label predicate shape wrong: %q", got)
	}
}

func TestSubscriptNegativeIndex(t *testing.T) {
	got := exprSelect(t, &ast.Subscript{Base: prop("n", "xs"), Index: lit(-1)}, nil)
	if !strings.Contains(got, "'$[#'") {
		t.Errorf("negative index should use $[#-n] paths, got %q", got)
	}
}

func TestNodeProjectionCarriesIdentity(t *testing.T) {
	got := exprSelect(t, vr("n"), nil)
	if got != "json_set(n0.properties, '$._nf_id', n0.id)" {
		t.Errorf("node projection should inject _nf_id, got %q", got)
	}
}
