package cypher

import (
	"fmt"
	"strings"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// translateWhere compiles a WhereCondition tree to a boolean SQL expression
// (1 / 0 / NULL). Three-valued logic flows through the cypher_* functions
// the host registers.
func (t *Translator) translateWhere(w *ast.WhereCondition) (piece, error) {
	if w == nil {
		return piece{}, malformedf("missing WHERE condition")
	}
	switch w.Op {
	case ast.WhereComparison:
		if w.Left == nil || w.Right == nil {
			return piece{}, malformedf("comparison %q is missing a side", w.Comparator)
		}
		left, err := t.translateExpr(w.Left)
		if err != nil {
			return piece{}, err
		}
		right, err := t.translateExpr(w.Right)
		if err != nil {
			return piece{}, err
		}
		return t.comparisonPiece(w.Comparator, left, right)

	case ast.WhereAnd, ast.WhereOr:
		fn := "cypher_and"
		if w.Op == ast.WhereOr {
			fn = "cypher_or"
		}
		if len(w.Conditions) == 0 {
			return piece{}, malformedf("empty %s condition", w.Op)
		}
		out, err := t.translateWhere(w.Conditions[0])
		if err != nil {
			return piece{}, err
		}
		for _, c := range w.Conditions[1:] {
			next, err := t.translateWhere(c)
			if err != nil {
				return piece{}, err
			}
			combined := joinFragments(", ", []fragment{out.fragment, next.fragment})
			out = piece{
				fragment: wrapFragment(fn+"(", combined, ")"),
				kind:     kBool,
				agg:      out.agg || next.agg,
				divides:  out.divides || next.divides,
			}
		}
		return out, nil

	case ast.WhereXor:
		if len(w.Conditions) != 2 {
			return piece{}, malformedf("XOR expects exactly two operands")
		}
		a, err := t.translateWhere(w.Conditions[0])
		if err != nil {
			return piece{}, err
		}
		b, err := t.translateWhere(w.Conditions[1])
		if err != nil {
			return piece{}, err
		}
		// (a AND NOT b) OR (NOT a AND b)
		var lhs, rhs sqlBuilder
		lhs.write("cypher_and(")
		lhs.writeFragment(a.fragment)
		lhs.write(", cypher_not(")
		lhs.writeFragment(b.fragment)
		lhs.write("))")
		rhs.write("cypher_and(cypher_not(")
		rhs.writeFragment(a.fragment)
		rhs.write("), ")
		rhs.writeFragment(b.fragment)
		rhs.write(")")
		out := joinFragments(", ", []fragment{lhs.fragment(), rhs.fragment()})
		return piece{fragment: wrapFragment("cypher_or(", out, ")"), kind: kBool, agg: a.agg || b.agg, divides: a.divides || b.divides}, nil

	case ast.WhereNot:
		inner, err := t.translateWhere(w.Condition)
		if err != nil {
			return piece{}, err
		}
		return piece{fragment: wrapFragment("cypher_not(", inner.fragment, ")"), kind: kBool, agg: inner.agg, divides: inner.divides}, nil

	case ast.WhereStringOp:
		return t.translateStringOp(w.StringOp, w.Left, w.Right)

	case ast.WhereIsNull:
		expr := w.Expr
		if expr == nil {
			expr = w.Left
		}
		inner, err := t.translateExpr(expr)
		if err != nil {
			return piece{}, err
		}
		op := " IS NULL"
		if w.Negated {
			op = " IS NOT NULL"
		}
		out := wrapFragment("((", inner.fragment, ")"+op+")")
		return piece{fragment: out, kind: kBool, agg: inner.agg, divides: inner.divides}, nil

	case ast.WhereExists, ast.WherePattern:
		return t.translatePatternPredicate(w.Pattern)

	case ast.WhereIn:
		return t.translateIn(w.Left, w.List)

	case ast.WhereListPred:
		return t.translateListPredicate(w.Predicate)

	case ast.WhereLabel:
		return t.translateLabelPredicate(w.Variable, w.Labels)

	case ast.WhereExpression:
		if v, ok := w.Expr.(*ast.Variable); ok {
			if sv, found := t.ctx.lookup(v.Name); found && sv.kind != kindPath {
				return piece{}, syntaxErrorf("cannot use a %s variable `%s` as a predicate", sv.kind, v.Name)
			}
		}
		return t.translateBooleanExpr(w.Expr)
	}
	return piece{}, malformedf("unhandled WHERE condition %q", w.Op)
}

// patternRef is how a pattern-predicate node slot is addressed in SQL: a
// correlated outer alias, a local table alias, or an expression derived
// from an adjacent edge column.
type patternRef struct {
	idSQL string // expression yielding the node id
	alias string // local nodes alias, "" when the slot has no table
}

// translatePatternPredicate compiles EXISTS(pattern) and bare pattern
// predicates to a correlated EXISTS subquery. Variable-length hops inline a
// recursive CTE inside the EXISTS.
func (t *Translator) translatePatternPredicate(p *ast.Pattern) (piece, error) {
	if p == nil {
		return piece{}, malformedf("pattern predicate without a pattern")
	}
	if p.Node != nil && len(p.Chain) == 0 {
		return t.translateNodeExists(p.Node)
	}

	var w sqlBuilder
	var tables []string
	var conj []fragment
	var ctes []fragment
	local := map[string]string{} // fresh pattern variables -> local alias

	nodeRef := func(np *ast.NodePattern) (patternRef, error) {
		if np.Variable != "" {
			if sv, ok := t.ctx.lookup(np.Variable); ok {
				if sv.kind != kindNode {
					return patternRef{}, typeMismatchf("`%s` is not a node", np.Variable)
				}
				if sv.id != "" && sv.alias == "" {
					return patternRef{idSQL: quoteString(sv.id)}, nil
				}
				return patternRef{idSQL: sv.alias + ".id", alias: sv.alias}, nil
			}
			if alias, ok := local[np.Variable]; ok {
				return patternRef{idSQL: alias + ".id", alias: alias}, nil
			}
		}
		alias := fmt.Sprintf("__pp_n%d", t.ppCount)
		t.ppCount++
		if np.Variable != "" {
			local[np.Variable] = alias
		}
		tables = append(tables, "nodes "+alias)
		preds, err := t.nodePredicates(np, alias)
		if err != nil {
			return patternRef{}, err
		}
		conj = append(conj, preds...)
		return patternRef{idSQL: alias + ".id", alias: alias}, nil
	}

	for _, hop := range p.Chain {
		src, err := nodeRef(hop.Source)
		if err != nil {
			return piece{}, err
		}
		tgt, err := nodeRef(hop.Target)
		if err != nil {
			return piece{}, err
		}
		if hop.Edge.VarLength || hop.Edge.MinHops != nil || hop.Edge.MaxHops != nil {
			cteName := fmt.Sprintf("__pp_vl%d", t.ppCount)
			t.ppCount++
			cte, err := t.emitVarLengthCTE(cteName, hop.Edge, nil)
			if err != nil {
				return piece{}, err
			}
			ctes = append(ctes, cte)
			tables = append(tables, cteName)
			conj = append(conj,
				frag(fmt.Sprintf("%s.start_id = %s", cteName, src.idSQL)),
				frag(fmt.Sprintf("%s.end_id = %s", cteName, tgt.idSQL)))
			minHops := 1
			if hop.Edge.MinHops != nil {
				minHops = *hop.Edge.MinHops
			}
			if minHops > 1 {
				conj = append(conj, frag(fmt.Sprintf("%s.depth >= %d", cteName, minHops)))
			}
			continue
		}
		eAlias := fmt.Sprintf("__pp_e%d", t.ppCount)
		t.ppCount++
		tables = append(tables, "edges "+eAlias)
		switch hop.Edge.Direction {
		case ast.DirectionRight:
			conj = append(conj,
				frag(fmt.Sprintf("%s.source_id = %s", eAlias, src.idSQL)),
				frag(fmt.Sprintf("%s.target_id = %s", eAlias, tgt.idSQL)))
		case ast.DirectionLeft:
			conj = append(conj,
				frag(fmt.Sprintf("%s.source_id = %s", eAlias, tgt.idSQL)),
				frag(fmt.Sprintf("%s.target_id = %s", eAlias, src.idSQL)))
		default:
			conj = append(conj, frag(fmt.Sprintf(
				"((%s.source_id = %s AND %s.target_id = %s) OR (%s.source_id = %s AND %s.target_id = %s))",
				eAlias, src.idSQL, eAlias, tgt.idSQL, eAlias, tgt.idSQL, eAlias, src.idSQL)))
		}
		typePred, err := t.edgeTypePredicate(hop.Edge, eAlias)
		if err != nil {
			return piece{}, err
		}
		if !typePred.empty() {
			conj = append(conj, typePred)
		}
		propPreds, err := t.propertyPredicates(hop.Edge.Properties, hop.Edge.PropertyOrder, eAlias)
		if err != nil {
			return piece{}, err
		}
		conj = append(conj, propPreds...)
		if hop.Edge.Variable != "" {
			local[hop.Edge.Variable] = eAlias
		}
	}

	// Pattern-local variables shadow outer scope inside an inner WHERE.
	var cleanup []func()
	for name, alias := range local {
		prev, had := t.ctx.exprSubs[name]
		t.ctx.exprSubs[name] = alias + ".properties"
		n, p2, h := name, prev, had
		cleanup = append(cleanup, func() {
			if h {
				t.ctx.exprSubs[n] = p2
			} else {
				delete(t.ctx.exprSubs, n)
			}
		})
	}
	defer func() {
		for _, f := range cleanup {
			f()
		}
	}()

	w.write("EXISTS (")
	if len(ctes) > 0 {
		w.write("WITH RECURSIVE ")
		w.writeJoined(", ", ctes)
		w.write(" ")
	}
	w.write("SELECT 1")
	if len(tables) > 0 {
		w.write(" FROM ")
		for i, tb := range tables {
			if i > 0 {
				w.write(", ")
			}
			w.write(tb)
		}
	}
	if len(conj) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", conj)
	}
	w.write(")")
	return mkPiece(w.fragment(), kBool), nil
}

func (t *Translator) translateNodeExists(np *ast.NodePattern) (piece, error) {
	if np.Variable != "" {
		if sv, ok := t.ctx.lookup(np.Variable); ok {
			// Bound variable: the predicate reduces to its label/property
			// conditions on the existing alias.
			preds, err := t.nodePredicates(np, sv.alias)
			if err != nil {
				return piece{}, err
			}
			if len(preds) == 0 {
				return mkPiece(frag(fmt.Sprintf("(%s.id IS NOT NULL)", sv.alias)), kBool), nil
			}
			return mkPiece(wrapFragment("(", joinFragments(" AND ", preds), ")"), kBool), nil
		}
	}
	alias := fmt.Sprintf("__pp_n%d", t.ppCount)
	t.ppCount++
	preds, err := t.nodePredicates(np, alias)
	if err != nil {
		return piece{}, err
	}
	var w sqlBuilder
	w.write("EXISTS (SELECT 1 FROM nodes " + alias)
	if len(preds) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", preds)
	}
	w.write(")")
	return mkPiece(w.fragment(), kBool), nil
}

// nodePredicates renders a node pattern's label and property conditions
// against an alias.
func (t *Translator) nodePredicates(np *ast.NodePattern, alias string) ([]fragment, error) {
	var out []fragment
	for _, l := range np.Labels {
		out = append(out, frag(
			fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s.label) WHERE value = ?)", alias), l))
	}
	props, err := t.propertyPredicates(np.Properties, np.PropertyOrder, alias)
	if err != nil {
		return nil, err
	}
	return append(out, props...), nil
}

// propertyPredicates renders {k: expr} pattern properties as equality
// conditions on alias.properties.
func (t *Translator) propertyPredicates(props map[string]ast.Expression, order []string, alias string) ([]fragment, error) {
	if len(props) == 0 {
		return nil, nil
	}
	keys := order
	if keys == nil {
		keys = sortedKeys(props)
	}
	var out []fragment
	for _, k := range keys {
		val, err := t.translateExpr(props[k])
		if err != nil {
			return nil, err
		}
		var w sqlBuilder
		w.writef("json_extract(%s.properties, '$.%s') = ", alias, k)
		w.writeFragment(val.fragment)
		out = append(out, w.fragment())
	}
	return out, nil
}

// edgeTypePredicate renders the edge type filter; multiple types become an
// IN list.
func (t *Translator) edgeTypePredicate(e *ast.EdgePattern, alias string) (fragment, error) {
	switch len(e.Types) {
	case 0:
		return fragment{}, nil
	case 1:
		return frag(alias+".type = ?", e.Types[0]), nil
	}
	var w sqlBuilder
	w.write(alias + ".type IN (")
	for i, ty := range e.Types {
		if i > 0 {
			w.write(", ")
		}
		w.writeParam(ty)
	}
	w.write(")")
	return w.fragment(), nil
}

// pcAliases returns the edge and target aliases for a pattern
// comprehension. The first comprehension in a statement uses the bare
// __pc_e_/__pc_t_ names; later ones are numbered.
func (t *Translator) pcAliases() (string, string) {
	if t.pcCount == 0 {
		t.pcCount++
		return "__pc_e_", "__pc_t_"
	}
	n := t.pcCount
	t.pcCount++
	return fmt.Sprintf("__pc_e_%d", n), fmt.Sprintf("__pc_t_%d", n)
}

// translatePatternComprehension compiles [(a)-[e:T]->(b) WHERE P | M] to a
// correlated scalar subquery collecting M per match.
func (t *Translator) translatePatternComprehension(x *ast.PatternComprehension) (piece, error) {
	if x.Pattern == nil || x.Pattern.Edge == nil {
		return piece{}, malformedf("pattern comprehension without a relationship pattern")
	}
	hop := x.Pattern
	eAlias, tAlias := t.pcAliases()

	srcVar, srcOK := t.boundNodeAlias(hop.Source)
	tgtVar, tgtOK := t.boundNodeAlias(hop.Target)
	if !srcOK && !tgtOK {
		return piece{}, unknownVariable(hop.Source.Variable)
	}

	// Local bindings for the edge and the fresh endpoint.
	subs := map[string]string{}
	if hop.Edge.Variable != "" {
		subs[hop.Edge.Variable] = eAlias
	}
	freshTarget := !tgtOK
	freshSource := !srcOK
	if freshTarget && hop.Target.Variable != "" {
		subs[hop.Target.Variable] = tAlias
	}
	if freshSource && hop.Source.Variable != "" {
		subs[hop.Source.Variable] = tAlias
	}
	var cleanup []func()
	for name, alias := range subs {
		sv := &scopeVar{name: name, kind: kindNode, alias: alias}
		if alias == eAlias {
			sv.kind = kindEdge
		}
		prev, had := t.ctx.vars[name]
		t.ctx.vars[name] = sv
		n, p2, h := name, prev, had
		cleanup = append(cleanup, func() {
			if h {
				t.ctx.vars[n] = p2
			} else {
				delete(t.ctx.vars, n)
			}
		})
	}
	defer func() {
		for _, f := range cleanup {
			f()
		}
	}()

	var conj []fragment
	joinNode := ""
	var joinOn fragment
	anchor := func(col, ref string) {
		conj = append(conj, frag(fmt.Sprintf("%s.%s = %s", eAlias, col, ref)))
	}
	srcCol, tgtCol := "source_id", "target_id"
	if hop.Edge.Direction == ast.DirectionLeft {
		srcCol, tgtCol = tgtCol, srcCol
	}
	undirected := hop.Edge.Direction == ast.DirectionNone

	switch {
	case srcOK && tgtOK:
		if undirected {
			conj = append(conj, frag(fmt.Sprintf(
				"((%s.source_id = %s AND %s.target_id = %s) OR (%s.source_id = %s AND %s.target_id = %s))",
				eAlias, srcVar, eAlias, tgtVar, eAlias, tgtVar, eAlias, srcVar)))
		} else {
			anchor(srcCol, srcVar)
			anchor(tgtCol, tgtVar)
		}
	case srcOK:
		joinNode = tAlias
		if undirected {
			joinOn = frag(fmt.Sprintf(
				"(%s.target_id = %s.id AND %s.source_id = %s) OR (%s.source_id = %s.id AND %s.target_id = %s)",
				eAlias, tAlias, eAlias, srcVar, eAlias, tAlias, eAlias, srcVar))
		} else {
			joinOn = frag(fmt.Sprintf("%s.%s = %s.id", eAlias, tgtCol, tAlias))
			anchor(srcCol, srcVar)
		}
	default:
		joinNode = tAlias
		if undirected {
			joinOn = frag(fmt.Sprintf(
				"(%s.source_id = %s.id AND %s.target_id = %s) OR (%s.target_id = %s.id AND %s.source_id = %s)",
				eAlias, tAlias, eAlias, tgtVar, eAlias, tAlias, eAlias, tgtVar))
		} else {
			joinOn = frag(fmt.Sprintf("%s.%s = %s.id", eAlias, srcCol, tAlias))
			anchor(tgtCol, tgtVar)
		}
	}

	typePred, err := t.edgeTypePredicate(hop.Edge, eAlias)
	if err != nil {
		return piece{}, err
	}
	if !typePred.empty() {
		conj = append(conj, typePred)
	}
	propPreds, err := t.propertyPredicates(hop.Edge.Properties, hop.Edge.PropertyOrder, eAlias)
	if err != nil {
		return piece{}, err
	}
	conj = append(conj, propPreds...)

	if joinNode != "" {
		freshPattern := hop.Target
		if freshSource {
			freshPattern = hop.Source
		}
		nodePreds, err := t.nodePredicates(freshPattern, tAlias)
		if err != nil {
			return piece{}, err
		}
		joinOn = joinFragments(" AND ", append([]fragment{joinOn}, nodePreds...))
	}

	if x.Where != nil {
		cond, err := t.translateWhere(x.Where)
		if err != nil {
			return piece{}, err
		}
		conj = append(conj, cond.fragment)
	}

	var proj piece
	if x.PathVariable != "" {
		// p = pattern | p projects the property bags of the chain.
		srcSQL := nodePropsRef(srcVar, tAlias, srcOK)
		tgtSQL := nodePropsRef(tgtVar, tAlias, tgtOK)
		proj = mkPiece(frag(fmt.Sprintf("json_array(%s, json(%s.properties), %s)", srcSQL, eAlias, tgtSQL)), kList)
	} else {
		proj, err = t.translateJSONValue(x.Projection)
		if err != nil {
			return piece{}, err
		}
		if proj.kind == kList || proj.kind == kMap || proj.kind == kNode || proj.kind == kEdge {
			proj.fragment = wrapFragment("json(", proj.fragment, ")")
		}
	}

	var w sqlBuilder
	w.write("(SELECT COALESCE(json_group_array(")
	w.writeFragment(proj.fragment)
	w.write("), json('[]')) FROM edges " + eAlias)
	if joinNode != "" {
		w.write(" JOIN nodes " + joinNode + " ON ")
		w.writeFragment(joinOn)
	}
	if len(conj) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", conj)
	}
	w.write(")")
	return mkPiece(w.fragment(), kList), nil
}

func nodePropsRef(idRef, freshAlias string, bound bool) string {
	if bound && strings.HasSuffix(idRef, ".id") {
		// idRef is "<alias>.id"; the property bag sits next to it.
		return "json(" + strings.TrimSuffix(idRef, ".id") + ".properties)"
	}
	if bound {
		// A created node is addressed by its UUID literal.
		return "(SELECT json(properties) FROM nodes WHERE id = " + idRef + ")"
	}
	return "json(" + freshAlias + ".properties)"
}

// boundNodeAlias resolves a pattern endpoint to an outer "<alias>.id"
// reference when the variable is already bound.
func (t *Translator) boundNodeAlias(np *ast.NodePattern) (string, bool) {
	if np == nil || np.Variable == "" {
		return "", false
	}
	sv, ok := t.ctx.lookup(np.Variable)
	if !ok || sv.kind != kindNode {
		return "", false
	}
	if sv.id != "" && sv.alias == "" {
		return quoteString(sv.id), true
	}
	return sv.alias + ".id", true
}
