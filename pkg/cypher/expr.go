package cypher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// exprKind is the statically-known type of a translated expression. Most
// dispatch decisions (list vs scalar +, string concatenation, CASE equality
// tags) are made here at translation time; what cannot be decided statically
// is deferred to runtime CASE json_type/typeof guards.
type exprKind int

const (
	kUnknown exprKind = iota
	kNull
	kBool
	kInt
	kFloat
	kString
	kList
	kMap
	kNode
	kEdge
	kPath
	kTemporal
	kDuration
)

func (k exprKind) numeric() bool { return k == kInt || k == kFloat }

// typeTag is the compile-time tag handed to cypher_case_eq so the host can
// distinguish integer from boolean equality.
func (k exprKind) typeTag() string {
	switch k {
	case kNull:
		return "null"
	case kBool:
		return "boolean"
	case kInt:
		return "integer"
	case kFloat:
		return "float"
	case kString:
		return "string"
	case kList:
		return "list"
	case kMap:
		return "map"
	case kNode:
		return "node"
	case kEdge:
		return "relationship"
	case kTemporal:
		return "temporal"
	case kDuration:
		return "duration"
	}
	return "unknown"
}

// piece is a translated expression: SQL, its parameters, and the static
// facts later stages need.
type piece struct {
	fragment
	kind exprKind
	// agg marks an expression containing an aggregate function call.
	agg bool
	// divides marks an expression containing `/`, the static proxy for
	// "could produce NaN at runtime".
	divides bool
}

func mkPiece(f fragment, kind exprKind) piece {
	return piece{fragment: f, kind: kind}
}

// translateExpr walks one expression tree.
func (t *Translator) translateExpr(e ast.Expression) (piece, error) {
	switch x := e.(type) {
	case *ast.Literal:
		return t.translateLiteral(x)
	case *ast.Parameter:
		return t.translateParameter(x)
	case *ast.Variable:
		return t.translateVariable(x)
	case *ast.Property:
		return t.translateProperty(x)
	case *ast.PropertyAccess:
		return t.translatePropertyAccess(x)
	case *ast.Subscript:
		return t.translateSubscript(x)
	case *ast.FunctionCall:
		return t.translateFunction(x)
	case *ast.Binary:
		return t.translateBinary(x)
	case *ast.Unary:
		return t.translateUnary(x)
	case *ast.Comparison:
		return t.translateComparison(x)
	case *ast.Case:
		return t.translateCase(x)
	case *ast.MapLiteral:
		return t.translateMapLiteral(x)
	case *ast.ListLiteral:
		return t.translateListLiteral(x)
	case *ast.ListComprehension:
		return t.translateListComprehension(x)
	case *ast.PatternComprehension:
		return t.translatePatternComprehension(x)
	case *ast.ListPredicate:
		return t.translateListPredicate(x)
	case *ast.LabelPredicate:
		return t.translateLabelPredicate(x.Variable, x.Labels)
	case *ast.In:
		return t.translateIn(x.Needle, x.List)
	case *ast.StringOp:
		return t.translateStringOp(x.Op, x.Left, x.Right)
	case *ast.IsNull:
		return t.translateIsNullExpr(x)
	case nil:
		return piece{}, malformedf("missing expression")
	}
	return piece{}, malformedf("unhandled expression type %q", e.ExprType())
}

func (t *Translator) translateLiteral(x *ast.Literal) (piece, error) {
	switch v := x.Value.(type) {
	case nil:
		return mkPiece(frag("NULL"), kNull), nil
	case bool:
		// JSON booleans survive round-trips through arrays and CASE
		// branches; plain 1/0 is used in predicate position.
		if t.jsonBool {
			if v {
				return mkPiece(frag("json('true')"), kBool), nil
			}
			return mkPiece(frag("json('false')"), kBool), nil
		}
		if v {
			return mkPiece(frag("1"), kBool), nil
		}
		return mkPiece(frag("0"), kBool), nil
	case int64:
		// Integers are inlined so integer division semantics survive
		// parameter binding.
		return mkPiece(frag(strconv.FormatInt(v, 10)), kInt), nil
	case int:
		return mkPiece(frag(strconv.Itoa(v)), kInt), nil
	case float64:
		if x.IsFloat || v != float64(int64(v)) {
			text := x.Text
			if text == "" {
				text = strconv.FormatFloat(v, 'g', -1, 64)
				if !strings.ContainsAny(text, ".eE") {
					text += ".0"
				}
			}
			return mkPiece(frag(text), kFloat), nil
		}
		return mkPiece(frag(strconv.FormatInt(int64(v), 10)), kInt), nil
	case string:
		return mkPiece(frag("?", v), kString), nil
	}
	return piece{}, typeMismatchf("unsupported literal value %T", x.Value)
}

func (t *Translator) translateParameter(x *ast.Parameter) (piece, error) {
	val, ok := t.ctx.params[x.Name]
	if !ok {
		return piece{}, invalidArgumentf("missing parameter $%s", x.Name)
	}
	return t.bindValue(val)
}

// bindValue binds a Go value as one parameter, choosing the SQL shape by
// the value's type. Lists and maps travel as JSON text wrapped in json().
func (t *Translator) bindValue(val any) (piece, error) {
	switch v := val.(type) {
	case nil:
		return mkPiece(frag("NULL"), kNull), nil
	case bool:
		if t.jsonBool {
			if v {
				return mkPiece(frag("json('true')"), kBool), nil
			}
			return mkPiece(frag("json('false')"), kBool), nil
		}
		n := 0
		if v {
			n = 1
		}
		return mkPiece(frag("?", n), kBool), nil
	case int, int64, int32:
		return mkPiece(frag("?", v), kInt), nil
	case float64, float32:
		return mkPiece(frag("?", v), kFloat), nil
	case string:
		return mkPiece(frag("?", v), kString), nil
	case []any:
		text, err := marshalJSONValue(v)
		if err != nil {
			return piece{}, err
		}
		return mkPiece(frag("json(?)", text), kList), nil
	case map[string]any:
		text, err := marshalJSONValue(v)
		if err != nil {
			return piece{}, err
		}
		return mkPiece(frag("json(?)", text), kMap), nil
	}
	return piece{}, typeMismatchf("unsupported parameter value of type %T", val)
}

func (t *Translator) translateVariable(x *ast.Variable) (piece, error) {
	if sub, ok := t.ctx.exprSubs[x.Name]; ok {
		return mkPiece(frag(sub), kUnknown), nil
	}
	if v, ok := t.ctx.lookup(x.Name); ok {
		return t.projectScopeVar(v)
	}
	if expr, ok := t.ctx.lookupWithAlias(x.Name, t.ctx.selfRefDepth[x.Name]); ok {
		return t.translateAliasedExpr(x.Name, expr)
	}
	return piece{}, unknownVariable(x.Name)
}

// translateAliasedExpr inlines a WITH alias's defining expression. A
// materialized aggregate alias instead reads its column from the
// __aggregates__ CTE.
func (t *Translator) translateAliasedExpr(name string, expr ast.Expression) (piece, error) {
	if t.ctx.materialized[name] {
		return mkPiece(frag(aggregatesCTE+"."+quoteIdent(name)), kUnknown), nil
	}
	t.ctx.selfRefDepth[name]++
	defer func() { t.ctx.selfRefDepth[name]-- }()
	return t.translateExpr(expr)
}

// projectScopeVar renders a bare graph variable as a value: node and edge
// objects carry the hidden _nf_id identity key, paths their Neo4j 3.5 shape.
func (t *Translator) projectScopeVar(v *scopeVar) (piece, error) {
	switch v.kind {
	case kindNode:
		if v.id != "" && v.alias == "" {
			// Created in this query; no FROM alias to address.
			return mkPiece(frag("(SELECT json_set(properties, '$._nf_id', id) FROM nodes WHERE id = ?)", v.id), kNode), nil
		}
		return mkPiece(frag(fmt.Sprintf("json_set(%s.properties, '$._nf_id', %s.id)", v.alias, v.alias)), kNode), nil
	case kindEdge:
		if v.id != "" && v.alias == "" {
			return mkPiece(frag("(SELECT json_set(properties, '$._nf_id', id) FROM edges WHERE id = ?)", v.id), kEdge), nil
		}
		return mkPiece(frag(fmt.Sprintf("json_set(%s.properties, '$._nf_id', %s.id)", v.alias, v.alias)), kEdge), nil
	case kindVarLengthEdge:
		return mkPiece(frag(fmt.Sprintf("json(%s.edge_ids)", v.pathCTE)), kList), nil
	case kindPath:
		return t.projectPath(v.name)
	}
	return piece{}, unknownVariable(v.name)
}

func (t *Translator) translateProperty(x *ast.Property) (piece, error) {
	if sub, ok := t.ctx.exprSubs[x.Variable]; ok {
		return mkPiece(frag(fmt.Sprintf("json_extract(%s, '$.%s')", sub, x.Key)), kUnknown), nil
	}
	if v, ok := t.ctx.lookup(x.Variable); ok {
		switch v.kind {
		case kindNode, kindEdge:
			if v.id != "" && v.alias == "" {
				table := "nodes"
				if v.kind == kindEdge {
					table = "edges"
				}
				return mkPiece(frag(fmt.Sprintf("(SELECT json_extract(properties, '$.%s') FROM %s WHERE id = ?)", x.Key, table), v.id), kUnknown), nil
			}
			return mkPiece(frag(fmt.Sprintf("json_extract(%s.properties, '$.%s')", v.alias, x.Key)), kUnknown), nil
		default:
			return piece{}, typeMismatchf("property access on %s variable `%s`", v.kind, x.Variable)
		}
	}
	if expr, ok := t.ctx.lookupWithAlias(x.Variable, t.ctx.selfRefDepth[x.Variable]); ok {
		base, err := t.translateAliasedExpr(x.Variable, expr)
		if err != nil {
			return piece{}, err
		}
		return t.extractKey(base, x.Key)
	}
	return piece{}, unknownVariable(x.Variable)
}

func (t *Translator) extractKey(base piece, key string) (piece, error) {
	switch base.kind {
	case kInt, kFloat, kString, kBool:
		return piece{}, malformedf("property access on a non-map value")
	}
	out := wrapFragment("json_extract(", base.fragment, fmt.Sprintf(", '$.%s')", key))
	return piece{fragment: out, kind: kUnknown, agg: base.agg, divides: base.divides}, nil
}

func (t *Translator) translatePropertyAccess(x *ast.PropertyAccess) (piece, error) {
	base, err := t.translateExpr(x.Base)
	if err != nil {
		return piece{}, err
	}
	return t.extractKey(base, x.Key)
}

func (t *Translator) translateSubscript(x *ast.Subscript) (piece, error) {
	base, err := t.translateExpr(x.Base)
	if err != nil {
		return piece{}, err
	}
	switch base.kind {
	case kInt, kFloat, kString, kBool:
		return piece{}, typeMismatchf("cannot subscript a %s value", base.kind.typeTag())
	}
	idx, err := t.translateExpr(x.Index)
	if err != nil {
		return piece{}, err
	}
	if idx.kind == kString || isStringExpr(x.Index) {
		// Map key access.
		var w sqlBuilder
		w.write("json_extract(")
		w.writeFragment(base.fragment)
		w.write(", '$.' || ")
		w.writeFragment(idx.fragment)
		w.write(")")
		return piece{fragment: w.fragment(), kind: kUnknown, agg: base.agg || idx.agg, divides: base.divides || idx.divides}, nil
	}
	if idx.kind != kInt && idx.kind != kUnknown {
		return piece{}, typeMismatchf("list index must be an integer")
	}
	// Negative indexes count from the end, as Cypher requires.
	var w sqlBuilder
	w.write("json_extract(")
	w.writeFragment(base.fragment)
	w.write(", CASE WHEN (")
	w.writeFragment(idx.fragment)
	w.write(") < 0 THEN '$[#' || (")
	w.writeFragment(idx.fragment)
	w.write(") || ']' ELSE '$[' || (")
	w.writeFragment(idx.fragment)
	w.write(") || ']' END)")
	return piece{fragment: w.fragment(), kind: kUnknown, agg: base.agg || idx.agg, divides: base.divides || idx.divides}, nil
}

func isStringExpr(e ast.Expression) bool {
	if l, ok := e.(*ast.Literal); ok {
		_, isStr := l.Value.(string)
		return isStr
	}
	return false
}

func (t *Translator) translateBinary(x *ast.Binary) (piece, error) {
	if x.Left == nil || x.Right == nil {
		return piece{}, malformedf("binary operator %q is missing an operand", x.Op)
	}
	left, err := t.translateExpr(x.Left)
	if err != nil {
		return piece{}, err
	}
	right, err := t.translateExpr(x.Right)
	if err != nil {
		return piece{}, err
	}
	if x.Op == "+" {
		return t.translatePlus(x, left, right)
	}
	// Temporal arithmetic: temporal ± duration.
	if (x.Op == "-" || x.Op == "+") && (left.kind == kTemporal || right.kind == kTemporal) {
		return t.translateTemporalArith(x.Op, left, right)
	}
	var sqlOp string
	switch x.Op {
	case "-", "*", "/", "%":
		sqlOp = x.Op
	case "^":
		out := joinFragments(", ", []fragment{left.fragment, right.fragment})
		return piece{
			fragment: wrapFragment("POWER(", out, ")"),
			kind:     kFloat,
			agg:      left.agg || right.agg,
			divides:  left.divides || right.divides,
		}, nil
	default:
		return piece{}, malformedf("unknown binary operator %q", x.Op)
	}
	kind := kInt
	if left.kind == kFloat || right.kind == kFloat {
		kind = kFloat
	}
	if left.kind == kUnknown || right.kind == kUnknown {
		kind = kUnknown
	}
	var w sqlBuilder
	w.write("(")
	w.writeFragment(left.fragment)
	w.write(" " + sqlOp + " ")
	w.writeFragment(right.fragment)
	w.write(")")
	return piece{
		fragment: w.fragment(),
		kind:     kind,
		agg:      left.agg || right.agg,
		divides:  x.Op == "/" || left.divides || right.divides,
	}, nil
}

// translatePlus dispatches Cypher's overloaded + on compile-time typing:
// list concatenation, list append/prepend, string concatenation, numeric
// addition, temporal+duration, and a runtime CASE json_type fallback when
// both sides are untyped properties.
func (t *Translator) translatePlus(x *ast.Binary, left, right piece) (piece, error) {
	switch {
	case left.kind == kList && right.kind == kList:
		return concatLists(left, right), nil
	case left.kind == kList:
		return appendToList(left, right), nil
	case right.kind == kList:
		return prependToList(left, right), nil
	case left.kind == kString || right.kind == kString:
		var w sqlBuilder
		w.write("(")
		w.writeFragment(left.fragment)
		w.write(" || ")
		w.writeFragment(right.fragment)
		w.write(")")
		return piece{fragment: w.fragment(), kind: kString, agg: left.agg || right.agg, divides: left.divides || right.divides}, nil
	case left.kind == kTemporal || right.kind == kTemporal || left.kind == kDuration && right.kind == kDuration:
		return t.translateTemporalArith("+", left, right)
	case left.kind.numeric() || right.kind.numeric():
		kind := kInt
		if left.kind == kFloat || right.kind == kFloat || left.kind == kUnknown || right.kind == kUnknown {
			kind = kFloat
		}
		var w sqlBuilder
		w.write("(")
		w.writeFragment(left.fragment)
		w.write(" + ")
		w.writeFragment(right.fragment)
		w.write(")")
		return piece{fragment: w.fragment(), kind: kind, agg: left.agg || right.agg, divides: left.divides || right.divides}, nil
	}
	// Both sides untyped: decide list concatenation vs arithmetic at runtime.
	var w sqlBuilder
	w.write("(CASE WHEN json_valid(")
	w.writeFragment(left.fragment)
	w.write(") AND json_type(")
	w.writeFragment(left.fragment)
	w.write(") = 'array' THEN ")
	cat := concatLists(left, right)
	w.writeFragment(cat.fragment)
	w.write(" ELSE ")
	w.writeFragment(left.fragment)
	w.write(" + ")
	w.writeFragment(right.fragment)
	w.write(" END)")
	return piece{fragment: w.fragment(), kind: kUnknown, agg: left.agg || right.agg, divides: left.divides || right.divides}, nil
}

func concatLists(left, right piece) piece {
	var w sqlBuilder
	w.write("(SELECT json_group_array(__cc__.value) FROM (SELECT value FROM json_each(")
	w.writeFragment(left.fragment)
	w.write(") UNION ALL SELECT value FROM json_each(")
	w.writeFragment(right.fragment)
	w.write(")) AS __cc__)")
	return piece{fragment: w.fragment(), kind: kList, agg: left.agg || right.agg, divides: left.divides || right.divides}
}

func appendToList(list, scalar piece) piece {
	var w sqlBuilder
	w.write("(SELECT json_group_array(__cc__.value) FROM (SELECT value FROM json_each(")
	w.writeFragment(list.fragment)
	w.write(") UNION ALL SELECT json_quote(")
	w.writeFragment(scalar.fragment)
	w.write(")) AS __cc__)")
	return piece{fragment: w.fragment(), kind: kList, agg: list.agg || scalar.agg, divides: list.divides || scalar.divides}
}

func prependToList(scalar, list piece) piece {
	var w sqlBuilder
	w.write("(SELECT json_group_array(__cc__.value) FROM (SELECT json_quote(")
	w.writeFragment(scalar.fragment)
	w.write(") AS value UNION ALL SELECT value FROM json_each(")
	w.writeFragment(list.fragment)
	w.write(")) AS __cc__)")
	return piece{fragment: w.fragment(), kind: kList, agg: list.agg || scalar.agg, divides: list.divides || scalar.divides}
}

func (t *Translator) translateUnary(x *ast.Unary) (piece, error) {
	if x.Operand == nil {
		return piece{}, malformedf("unary operator %q is missing its operand", x.Op)
	}
	operand, err := t.translateExpr(x.Operand)
	if err != nil {
		return piece{}, err
	}
	switch strings.ToUpper(x.Op) {
	case "-":
		if !operand.kind.numeric() && operand.kind != kUnknown {
			return piece{}, typeMismatchf("cannot negate a %s value", operand.kind.typeTag())
		}
		out := wrapFragment("(-", operand.fragment, ")")
		return piece{fragment: out, kind: operand.kind, agg: operand.agg, divides: operand.divides}, nil
	case "NOT":
		if err := requireBooleanOperand(x.Operand, operand); err != nil {
			return piece{}, err
		}
		out := wrapFragment("cypher_not(", operand.fragment, ")")
		return piece{fragment: out, kind: kBool, agg: operand.agg, divides: operand.divides}, nil
	}
	return piece{}, malformedf("unknown unary operator %q", x.Op)
}

// requireBooleanOperand statically validates that an expression can be a
// boolean: a comparison, boolean literal or null, a known-boolean function,
// or something whose type is unknowable before runtime.
func requireBooleanOperand(e ast.Expression, p piece) error {
	if p.kind == kBool || p.kind == kNull || p.kind == kUnknown {
		return nil
	}
	switch e.(type) {
	case *ast.Comparison, *ast.In, *ast.StringOp, *ast.ListPredicate, *ast.LabelPredicate, *ast.IsNull:
		return nil
	}
	return syntaxErrorf("expected a boolean operand, got %s", p.kind.typeTag())
}

func (t *Translator) translateComparison(x *ast.Comparison) (piece, error) {
	if x.Left == nil || x.Right == nil {
		return piece{}, malformedf("comparison %q is missing a side", x.Op)
	}
	left, err := t.translateExpr(x.Left)
	if err != nil {
		return piece{}, err
	}
	right, err := t.translateExpr(x.Right)
	if err != nil {
		return piece{}, err
	}
	return t.comparisonPiece(x.Op, left, right)
}

func (t *Translator) comparisonPiece(op string, left, right piece) (piece, error) {
	agg := left.agg || right.agg
	div := left.divides || right.divides
	deep := left.kind == kList || left.kind == kMap || right.kind == kList || right.kind == kMap ||
		left.kind == kNode || left.kind == kEdge || right.kind == kNode || right.kind == kEdge
	var w sqlBuilder
	switch op {
	case "=", "<>":
		if deep || left.kind == kUnknown || right.kind == kUnknown {
			w.write("cypher_equals(")
			w.writeFragment(left.fragment)
			w.write(", ")
			w.writeFragment(right.fragment)
			w.write(")")
			f := w.fragment()
			if op == "<>" {
				f = wrapFragment("cypher_not(", f, ")")
			}
			return piece{fragment: f, kind: kBool, agg: agg, divides: div}, nil
		}
		sqlOp := "="
		if op == "<>" {
			sqlOp = "<>"
		}
		w.write("(")
		w.writeFragment(left.fragment)
		w.write(" " + sqlOp + " ")
		w.writeFragment(right.fragment)
		w.write(")")
		return piece{fragment: w.fragment(), kind: kBool, agg: agg, divides: div}, nil
	case "<", "<=", ">", ">=":
		fn := map[string]string{"<": "cypher_lt", "<=": "cypher_lte", ">": "cypher_gt", ">=": "cypher_gte"}[op]
		w.write(fn + "(")
		w.writeFragment(left.fragment)
		w.write(", ")
		w.writeFragment(right.fragment)
		w.write(")")
		f := w.fragment()
		if div {
			// A division in either operand can produce NaN, which compares
			// false against everything.
			f = wrapFragment("COALESCE(", f, ", 0)")
		}
		return piece{fragment: f, kind: kBool, agg: agg, divides: div}, nil
	}
	return piece{}, malformedf("unknown comparator %q", op)
}

func (t *Translator) translateCase(x *ast.Case) (piece, error) {
	if len(x.Whens) == 0 {
		return piece{}, malformedf("CASE with no WHEN arms")
	}
	var w sqlBuilder
	agg, div := false, false
	w.write("CASE")
	var test piece
	var err error
	if x.Test != nil {
		test, err = t.translateExpr(x.Test)
		if err != nil {
			return piece{}, err
		}
		agg, div = test.agg, test.divides
	}
	for _, arm := range x.Whens {
		w.write(" WHEN ")
		if x.Test != nil {
			// Simple form: SQLite cannot tell integer from boolean
			// equality, so route through cypher_case_eq with type tags.
			when, err := t.translateExpr(arm.When)
			if err != nil {
				return piece{}, err
			}
			w.write("cypher_case_eq(")
			w.writeFragment(test.fragment)
			w.write(", " + quoteString(test.kind.typeTag()) + ", ")
			w.writeFragment(when.fragment)
			w.write(", " + quoteString(when.kind.typeTag()) + ")")
			agg = agg || when.agg
			div = div || when.divides
		} else {
			cond, err := t.translateBooleanExpr(arm.When)
			if err != nil {
				return piece{}, err
			}
			w.writeFragment(cond.fragment)
			agg = agg || cond.agg
			div = div || cond.divides
		}
		w.write(" THEN ")
		then, err := t.translateJSONValue(arm.Then)
		if err != nil {
			return piece{}, err
		}
		w.writeFragment(then.fragment)
		agg = agg || then.agg
		div = div || then.divides
	}
	if x.Else != nil {
		w.write(" ELSE ")
		els, err := t.translateJSONValue(x.Else)
		if err != nil {
			return piece{}, err
		}
		w.writeFragment(els.fragment)
		agg = agg || els.agg
		div = div || els.divides
	}
	w.write(" END")
	return piece{fragment: w.fragment(), kind: kUnknown, agg: agg, divides: div}, nil
}

// translateBooleanExpr translates an expression used in predicate position,
// validating that it can be boolean.
func (t *Translator) translateBooleanExpr(e ast.Expression) (piece, error) {
	p, err := t.translateExpr(e)
	if err != nil {
		return piece{}, err
	}
	if err := requireBooleanOperand(e, p); err != nil {
		return piece{}, err
	}
	return p, nil
}

// translateJSONValue translates an expression in a position whose result
// must survive a round-trip through JSON: boolean literals become
// json('true')/json('false') instead of 1/0.
func (t *Translator) translateJSONValue(e ast.Expression) (piece, error) {
	prev := t.jsonBool
	t.jsonBool = true
	defer func() { t.jsonBool = prev }()
	return t.translateExpr(e)
}

func (t *Translator) translateMapLiteral(x *ast.MapLiteral) (piece, error) {
	keys := x.EntryOrder
	if keys == nil {
		keys = sortedKeys(x.Entries)
	}
	var w sqlBuilder
	agg, div := false, false
	w.write("json_object(")
	for i, k := range keys {
		if i > 0 {
			w.write(", ")
		}
		w.write(quoteString(k) + ", ")
		v, err := t.translateJSONValue(x.Entries[k])
		if err != nil {
			return piece{}, err
		}
		if v.kind == kList || v.kind == kMap || v.kind == kNode || v.kind == kEdge {
			v.fragment = wrapFragment("json(", v.fragment, ")")
		}
		w.writeFragment(v.fragment)
		agg = agg || v.agg
		div = div || v.divides
	}
	w.write(")")
	return piece{fragment: w.fragment(), kind: kMap, agg: agg, divides: div}, nil
}

func (t *Translator) translateListLiteral(x *ast.ListLiteral) (piece, error) {
	var w sqlBuilder
	agg, div := false, false
	w.write("json_array(")
	for i, item := range x.Items {
		if i > 0 {
			w.write(", ")
		}
		v, err := t.translateJSONValue(item)
		if err != nil {
			return piece{}, err
		}
		if v.kind == kList || v.kind == kMap || v.kind == kNode || v.kind == kEdge {
			v.fragment = wrapFragment("json(", v.fragment, ")")
		}
		w.writeFragment(v.fragment)
		agg = agg || v.agg
		div = div || v.divides
	}
	w.write(")")
	return piece{fragment: w.fragment(), kind: kList, agg: agg, divides: div}, nil
}

// lcAlias returns the json_each alias for the current comprehension nesting
// depth: __lc__, __lc__i, __lc__ii, ...
func lcAlias(depth int) string {
	return "__lc__" + strings.Repeat("i", depth)
}

func (t *Translator) translateListComprehension(x *ast.ListComprehension) (piece, error) {
	list, err := t.translateExpr(x.List)
	if err != nil {
		return piece{}, err
	}
	alias := lcAlias(t.lcDepth)
	t.lcDepth++
	prev, had := t.ctx.exprSubs[x.Variable]
	t.ctx.exprSubs[x.Variable] = alias + ".value"
	defer func() {
		t.lcDepth--
		if had {
			t.ctx.exprSubs[x.Variable] = prev
		} else {
			delete(t.ctx.exprSubs, x.Variable)
		}
	}()

	var proj piece
	if x.Projection != nil {
		proj, err = t.translateJSONValue(x.Projection)
		if err != nil {
			return piece{}, err
		}
		if proj.kind == kList || proj.kind == kMap || proj.kind == kNode || proj.kind == kEdge {
			proj.fragment = wrapFragment("json(", proj.fragment, ")")
		}
	} else {
		proj = mkPiece(frag(alias+".value"), kUnknown)
	}

	var w sqlBuilder
	w.write("(SELECT json_group_array(")
	w.writeFragment(proj.fragment)
	w.write(") FROM json_each(")
	w.writeFragment(list.fragment)
	w.write(") AS " + alias)
	if x.Where != nil {
		cond, err := t.translateWhere(x.Where)
		if err != nil {
			return piece{}, err
		}
		w.write(" WHERE ")
		w.writeFragment(cond.fragment)
	}
	w.write(")")
	return piece{fragment: w.fragment(), kind: kList, agg: list.agg || proj.agg, divides: list.divides || proj.divides}, nil
}

func (t *Translator) translateLabelPredicate(variable string, labels []string) (piece, error) {
	v, ok := t.ctx.lookup(variable)
	if !ok {
		return piece{}, unknownVariable(variable)
	}
	if v.kind != kindNode {
		return piece{}, typeMismatchf("label predicate on non-node variable `%s`", variable)
	}
	frags := make([]fragment, 0, len(labels))
	for _, l := range labels {
		frags = append(frags, frag(
			fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.label) WHERE value = ?)", v.alias), l))
	}
	return mkPiece(joinFragments(" AND ", frags), kBool), nil
}

func (t *Translator) translateStringOp(op ast.StringOpKind, leftE, rightE ast.Expression) (piece, error) {
	left, err := t.translateExpr(leftE)
	if err != nil {
		return piece{}, err
	}
	right, err := t.translateExpr(rightE)
	if err != nil {
		return piece{}, err
	}
	// Non-string operands yield NULL, per Cypher. The typeof/json_valid
	// guard defers the check to runtime for untyped properties.
	var core sqlBuilder
	switch op {
	case ast.StringContains:
		core.write("INSTR(")
		core.writeFragment(left.fragment)
		core.write(", ")
		core.writeFragment(right.fragment)
		core.write(") > 0")
	case ast.StringStartsWith:
		core.write("SUBSTR(")
		core.writeFragment(left.fragment)
		core.write(", 1, LENGTH(")
		core.writeFragment(right.fragment)
		core.write(")) = ")
		core.writeFragment(right.fragment)
	case ast.StringEndsWith:
		core.write("SUBSTR(")
		core.writeFragment(left.fragment)
		core.write(", -LENGTH(")
		core.writeFragment(right.fragment)
		core.write(")) = ")
		core.writeFragment(right.fragment)
	default:
		return piece{}, malformedf("unknown string operator %q", op)
	}
	var w sqlBuilder
	w.write("(CASE WHEN typeof(")
	w.writeFragment(left.fragment)
	w.write(") = 'text' AND typeof(")
	w.writeFragment(right.fragment)
	w.write(") = 'text' THEN ")
	w.writeFragment(core.fragment())
	w.write(" ELSE NULL END)")
	return piece{fragment: w.fragment(), kind: kBool, agg: left.agg || right.agg, divides: left.divides || right.divides}, nil
}

func (t *Translator) translateIsNullExpr(x *ast.IsNull) (piece, error) {
	inner, err := t.translateExpr(x.Expr)
	if err != nil {
		return piece{}, err
	}
	op := " IS NULL"
	if x.Negated {
		op = " IS NOT NULL"
	}
	// Comparisons composed over IS NULL results need JSON booleans so they
	// keep their type through json round-trips.
	var w sqlBuilder
	w.write("(CASE WHEN (")
	w.writeFragment(inner.fragment)
	w.write(")" + op + " THEN json('true') ELSE json('false') END)")
	return piece{fragment: w.fragment(), kind: kBool, agg: inner.agg, divides: inner.divides}, nil
}

func (t *Translator) translateIn(needleE, listE ast.Expression) (piece, error) {
	needle, err := t.translateExpr(needleE)
	if err != nil {
		return piece{}, err
	}
	if lit, ok := listE.(*ast.ListLiteral); ok {
		return t.translateInLiteral(needle, lit)
	}
	list, err := t.translateExpr(listE)
	if err != nil {
		return piece{}, err
	}
	// Dynamic list: three-valued membership over json_each with deep
	// equality, so nested lists and null elements behave per Cypher.
	var w sqlBuilder
	w.write("(SELECT CASE WHEN MAX(cypher_equals(")
	w.writeFragment(needle.fragment)
	w.write(", __in__.value)) = 1 THEN 1 WHEN SUM(CASE WHEN cypher_equals(")
	w.writeFragment(needle.fragment)
	w.write(", __in__.value) IS NULL THEN 1 ELSE 0 END) > 0 THEN NULL ELSE 0 END FROM json_each(")
	w.writeFragment(list.fragment)
	w.write(") AS __in__)")
	return piece{fragment: w.fragment(), kind: kBool, agg: needle.agg || list.agg, divides: needle.divides || list.divides}, nil
}

func (t *Translator) translateInLiteral(needle piece, lit *ast.ListLiteral) (piece, error) {
	if len(lit.Items) == 0 {
		return mkPiece(frag("0"), kBool), nil
	}
	hasNull := false
	scalar := true
	for _, item := range lit.Items {
		switch it := item.(type) {
		case *ast.Literal:
			if it.Value == nil {
				hasNull = true
			}
		case *ast.ListLiteral:
			scalar = false
		default:
		}
	}
	if !scalar {
		// List-of-lists membership needs deep comparison.
		list, err := t.translateListLiteral(lit)
		if err != nil {
			return piece{}, err
		}
		var w sqlBuilder
		w.write("(SELECT CASE WHEN MAX(cypher_equals(")
		w.writeFragment(needle.fragment)
		w.write(", __in__.value)) = 1 THEN 1 WHEN SUM(CASE WHEN cypher_equals(")
		w.writeFragment(needle.fragment)
		w.write(", __in__.value) IS NULL THEN 1 ELSE 0 END) > 0 THEN NULL ELSE 0 END FROM json_each(")
		w.writeFragment(list.fragment)
		w.write(") AS __in__)")
		return mkPiece(w.fragment(), kBool), nil
	}
	var w sqlBuilder
	if hasNull {
		w.write("(CASE WHEN ")
	} else {
		w.write("(")
	}
	w.writeFragment(needle.fragment)
	w.write(" IN (")
	first := true
	for _, item := range lit.Items {
		if lit2, ok := item.(*ast.Literal); ok && lit2.Value == nil {
			continue
		}
		if !first {
			w.write(", ")
		}
		first = false
		p, err := t.translateExpr(item)
		if err != nil {
			return piece{}, err
		}
		w.writeFragment(p.fragment)
	}
	if hasNull {
		// An unmatched needle against a list containing null is unknown.
		w.write(") THEN 1 ELSE NULL END)")
	} else {
		w.write("))")
	}
	return mkPiece(w.fragment(), kBool), nil
}

// lpAlias is the json_each alias for list predicates, depth-suffixed like
// comprehension aliases.
func lpAlias(depth int) string {
	return "__lp__" + strings.Repeat("i", depth)
}

func (t *Translator) translateListPredicate(x *ast.ListPredicate) (piece, error) {
	if x.Where == nil {
		return piece{}, malformedf("%s(...) requires a WHERE", x.Kind)
	}
	t.markMaterializedAggregates(x.List)
	list, err := t.translateExpr(x.List)
	if err != nil {
		return piece{}, err
	}
	alias := lpAlias(t.lcDepth)
	t.lcDepth++
	prev, had := t.ctx.exprSubs[x.Variable]
	t.ctx.exprSubs[x.Variable] = alias + ".value"
	defer func() {
		t.lcDepth--
		if had {
			t.ctx.exprSubs[x.Variable] = prev
		} else {
			delete(t.ctx.exprSubs, x.Variable)
		}
	}()
	cond, err := t.translateWhere(x.Where)
	if err != nil {
		return piece{}, err
	}

	p := cond.fragment
	matches := wrapFragment("COALESCE(SUM(CASE WHEN (", p, ") = 1 THEN 1 ELSE 0 END), 0)")
	fails := wrapFragment("COALESCE(SUM(CASE WHEN (", p, ") = 0 THEN 1 ELSE 0 END), 0)")
	unknown := wrapFragment("COALESCE(SUM(CASE WHEN (", p, ") IS NULL THEN 1 ELSE 0 END), 0)")

	var w sqlBuilder
	w.write("(SELECT CASE")
	switch x.Kind {
	case ast.PredicateAll:
		w.write(" WHEN ")
		w.writeFragment(fails)
		w.write(" > 0 THEN 0 WHEN ")
		w.writeFragment(unknown)
		w.write(" > 0 THEN NULL ELSE 1 END")
	case ast.PredicateAny:
		w.write(" WHEN ")
		w.writeFragment(matches)
		w.write(" > 0 THEN 1 WHEN ")
		w.writeFragment(unknown)
		w.write(" > 0 THEN NULL ELSE 0 END")
	case ast.PredicateNone:
		w.write(" WHEN ")
		w.writeFragment(matches)
		w.write(" > 0 THEN 0 WHEN ")
		w.writeFragment(unknown)
		w.write(" > 0 THEN NULL ELSE 1 END")
	case ast.PredicateSingle:
		w.write(" WHEN ")
		w.writeFragment(matches)
		w.write(" > 1 THEN 0 WHEN ")
		w.writeFragment(matches)
		w.write(" = 1 AND ")
		w.writeFragment(unknown)
		w.write(" = 0 THEN 1 WHEN ")
		w.writeFragment(matches)
		w.write(" + ")
		w.writeFragment(unknown)
		w.write(" < 1 THEN 0 ELSE NULL END")
	default:
		return piece{}, malformedf("unknown list predicate %q", x.Kind)
	}
	w.write(" FROM json_each(")
	w.writeFragment(list.fragment)
	w.write(") AS " + alias + ")")
	return piece{fragment: w.fragment(), kind: kBool, agg: list.agg, divides: list.divides || cond.divides}, nil
}

// markMaterializedAggregates flags WITH aliases referenced by a list
// predicate whose definitions aggregate: those must be computed in the
// __aggregates__ CTE so the predicate's correlated subquery can read them.
func (t *Translator) markMaterializedAggregates(e ast.Expression) {
	v, ok := e.(*ast.Variable)
	if !ok {
		return
	}
	if t.ctx.aggAliases[v.Name] {
		t.ctx.materialized[v.Name] = true
		t.ctx.useAggCTE = true
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// insertion sort; maps here are tiny
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
