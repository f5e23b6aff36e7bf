package cypher

import (
	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// buildReturn synthesizes the one composite SELECT for a RETURN clause (or
// a terminal WITH acting as one).
func (t *Translator) buildReturn(ret *ast.ReturnClause) (Statement, []string, error) {
	items, err := t.expandStar(ret.Items)
	if err != nil {
		return Statement{}, nil, err
	}
	if len(items) == 0 {
		return Statement{}, nil, syntaxErrorf("RETURN requires at least one item")
	}
	if err := checkDuplicateColumns(items); err != nil {
		return Statement{}, nil, err
	}

	// List predicates over WITH aggregates force the __aggregates__ CTE.
	for _, item := range items {
		t.scanForMaterialization(item.Expression)
	}
	for _, si := range ret.OrderBy {
		t.scanForMaterialization(si.Expression)
	}
	for _, f := range t.ctx.withFilters {
		t.scanCondForMaterialization(f.cond)
	}
	if t.ctx.useAggCTE {
		return t.buildAggregatesCTEReturn(ret, items)
	}

	pureAgg := true
	anyAgg := false
	refsGraph := false
	for _, item := range items {
		agg := exprHasAggregate(item.Expression)
		if agg {
			anyAgg = true
		} else {
			pureAgg = false
		}
		if t.exprReferencesGraphVars(item.Expression) {
			refsGraph = true
		}
	}
	withModifiers := t.ctx.withLimit != nil || t.ctx.withSkip != nil || t.ctx.withDistinct || len(t.ctx.withOrderBy) > 0
	if withModifiers && pureAgg && anyAgg {
		return t.buildWrappedAggReturn(ret, items, refsGraph)
	}

	ctes, err := t.buildVarLenCTEs()
	if err != nil {
		return Statement{}, nil, err
	}

	sel, cols, err := t.translateItems(items)
	if err != nil {
		return Statement{}, nil, err
	}

	rs, err := t.buildRowSource(ctes)
	if err != nil {
		return Statement{}, nil, err
	}
	if rs.emptyResult {
		return Statement{SQL: "SELECT 1 WHERE 0"}, cols, nil
	}

	where, having, err := t.splitWithFilters(rs.where)
	if err != nil {
		return Statement{}, nil, err
	}

	hasAgg := false
	allAgg := true
	for _, si := range sel {
		if si.isAgg {
			hasAgg = true
		} else {
			allAgg = false
		}
	}
	var groupKeys []fragment
	if hasAgg && !allAgg {
		for _, si := range sel {
			if si.isAgg {
				continue
			}
			if si.groupBy != "" {
				groupKeys = append(groupKeys, frag(si.groupBy))
			} else {
				groupKeys = append(groupKeys, si.p.fragment)
			}
		}
	}
	if !hasAgg && len(having) > 0 {
		// HAVING without grouping would be invalid; those filters came from
		// WITH aggregates that were never projected.
		where = append(where, having...)
		having = nil
	}

	orderBy, err := t.resolveOrderBy(ret, sel, hasAgg)
	if err != nil {
		return Statement{}, nil, err
	}
	skip, limit, err := t.effectiveSkipLimit(ret)
	if err != nil {
		return Statement{}, nil, err
	}
	distinct := ret.Distinct || (t.ctx.withDistinct && !anyAgg)

	var w sqlBuilder
	if len(rs.ctes) > 0 {
		w.write("WITH RECURSIVE ")
		w.writeJoined(", ", rs.ctes)
		w.write(" ")
	}
	w.write("SELECT ")
	if distinct {
		w.write("DISTINCT ")
	}
	for i, si := range sel {
		if i > 0 {
			w.write(", ")
		}
		w.writeFragment(si.p.fragment)
		w.write(" AS " + quoteIdent(si.alias))
	}
	w.writeFragment(rs.from)
	if len(where) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", where)
	}
	if len(groupKeys) > 0 {
		w.write(" GROUP BY ")
		w.writeJoined(", ", groupKeys)
	}
	if len(having) > 0 {
		w.write(" HAVING ")
		w.writeJoined(" AND ", having)
	}
	if len(orderBy) > 0 {
		w.write(" ORDER BY ")
		w.writeJoined(", ", orderBy)
	}
	t.writeSkipLimit(&w, skip, limit)

	f := w.fragment()
	return Statement{SQL: f.sql, Params: f.params}, cols, nil
}

func (t *Translator) translateItems(items []*ast.ReturnItem) ([]selectItem, []string, error) {
	sel := make([]selectItem, 0, len(items))
	cols := make([]string, 0, len(items))
	for _, item := range items {
		alias := item.Alias
		if alias == "" {
			alias = exprText(item.Expression)
		}
		p, err := t.translateJSONValue(item.Expression)
		if err != nil {
			return nil, nil, err
		}
		si := selectItem{
			expr:  item.Expression,
			alias: alias,
			p:     p,
			isAgg: p.agg || exprHasAggregate(item.Expression),
		}
		// A pattern comprehension groups by the identity of its anchor
		// node, not by the whole correlated subquery.
		if pc, ok := item.Expression.(*ast.PatternComprehension); ok && pc.Pattern != nil {
			if ref, ok := t.boundNodeAlias(pc.Pattern.Source); ok {
				si.groupBy = ref
			} else if ref, ok := t.boundNodeAlias(pc.Pattern.Target); ok {
				si.groupBy = ref
			}
		}
		sel = append(sel, si)
		cols = append(cols, alias)
	}
	return sel, cols, nil
}

// splitWithFilters routes accumulated WITH WHERE conditions: those touching
// aggregate aliases become HAVING, the rest join the WHERE.
func (t *Translator) splitWithFilters(base []fragment) (where, having []fragment, err error) {
	where = base
	for _, f := range t.ctx.withFilters {
		p, err := t.translateWhere(f.cond)
		if err != nil {
			return nil, nil, err
		}
		if condReferencesAliases(f.cond, f.aggAliases) {
			having = append(having, p.fragment)
		} else {
			where = append(where, p.fragment)
		}
	}
	return where, having, nil
}

// resolveOrderBy validates and translates the effective ORDER BY under the
// DISTINCT and aggregation scoping rules.
func (t *Translator) resolveOrderBy(ret *ast.ReturnClause, sel []selectItem, hasAgg bool) ([]fragment, error) {
	sortItems := ret.OrderBy
	if len(sortItems) == 0 {
		sortItems = t.ctx.withOrderBy
	}
	if len(sortItems) == 0 {
		return nil, nil
	}
	returnedVars := map[string]bool{}
	aliasSet := map[string]bool{}
	for _, si := range sel {
		aliasSet[si.alias] = true
		if v, ok := si.expr.(*ast.Variable); ok {
			returnedVars[v.Name] = true
		}
	}
	var out []fragment
	for _, s := range sortItems {
		var f fragment
		matched := false
		if v, ok := s.Expression.(*ast.Variable); ok && aliasSet[v.Name] {
			f = frag(quoteIdent(v.Name))
			matched = true
		}
		if !matched {
			p, err := t.translateExpr(s.Expression)
			if err != nil {
				return nil, err
			}
			for _, si := range sel {
				if si.p.sql == p.sql {
					matched = true
					break
				}
			}
			if !matched {
				switch x := s.Expression.(type) {
				case *ast.Property:
					if returnedVars[x.Variable] {
						matched = true
					}
				default:
					if hasAgg && exprHasAggregate(s.Expression) {
						matched = true
					}
				}
			}
			if !matched {
				if ret.Distinct {
					return nil, syntaxErrorf("ORDER BY with DISTINCT may only reference returned columns")
				}
				if hasAgg {
					return nil, syntaxErrorf("ORDER BY with aggregation may only reference projected expressions or aggregates")
				}
				matched = true // plain RETURN may sort by anything in scope
			}
			f = p.fragment
		}
		if s.Descending {
			f = wrapFragment("", f, " DESC")
		}
		out = append(out, f)
	}
	return out, nil
}

// effectiveSkipLimit picks RETURN's modifiers over WITH's.
func (t *Translator) effectiveSkipLimit(ret *ast.ReturnClause) (skip, limit fragment, err error) {
	skipExpr := ret.Skip
	if skipExpr == nil {
		skipExpr = t.ctx.withSkip
	}
	limitExpr := ret.Limit
	if limitExpr == nil {
		limitExpr = t.ctx.withLimit
	}
	if skipExpr != nil {
		skip, err = t.bindCount(skipExpr, "SKIP")
		if err != nil {
			return fragment{}, fragment{}, err
		}
	}
	if limitExpr != nil {
		limit, err = t.bindCount(limitExpr, "LIMIT")
		if err != nil {
			return fragment{}, fragment{}, err
		}
	}
	return skip, limit, nil
}

// bindCount binds a SKIP/LIMIT operand as a parameter, rejecting negative
// static values.
func (t *Translator) bindCount(e ast.Expression, what string) (fragment, error) {
	if v, ok := t.staticValue(e); ok {
		n, isInt := staticInt(v)
		if !isInt {
			return fragment{}, invalidArgumentf("%s must be an integer", what)
		}
		if n < 0 {
			return fragment{}, invalidArgumentf("%s cannot be negative", what)
		}
		return frag("?", n), nil
	}
	p, err := t.translateExpr(e)
	if err != nil {
		return fragment{}, err
	}
	return p.fragment, nil
}

func (t *Translator) writeSkipLimit(w *sqlBuilder, skip, limit fragment) {
	switch {
	case !limit.empty() && !skip.empty():
		w.write(" LIMIT ")
		w.writeFragment(limit)
		w.write(" OFFSET ")
		w.writeFragment(skip)
	case !limit.empty():
		w.write(" LIMIT ")
		w.writeFragment(limit)
	case !skip.empty():
		w.write(" LIMIT -1 OFFSET ")
		w.writeFragment(skip)
	}
}

// buildWrappedAggReturn handles a purely-aggregating RETURN after a WITH
// that carried LIMIT/SKIP/DISTINCT/ORDER BY: those modifiers apply to the
// raw rows in an inner subquery, and the aggregates run over it.
func (t *Translator) buildWrappedAggReturn(ret *ast.ReturnClause, items []*ast.ReturnItem, refsGraph bool) (Statement, []string, error) {
	ctes, err := t.buildVarLenCTEs()
	if err != nil {
		return Statement{}, nil, err
	}

	// When the aggregates dereference graph variables, the subquery keeps
	// the single base table's alias so those references stay valid.
	subAlias := "__with_subquery__"
	if refsGraph {
		if len(t.allPatterns()) == 0 && len(t.ctx.standaloneNodes) == 1 && len(t.ctx.unwinds) == 0 {
			subAlias = t.ctx.standaloneNodes[0]
		}
	}

	sel, cols, err := t.translateItems(items)
	if err != nil {
		return Statement{}, nil, err
	}

	rs, err := t.buildRowSource(ctes)
	if err != nil {
		return Statement{}, nil, err
	}
	if rs.emptyResult {
		return Statement{SQL: "SELECT 1 WHERE 0"}, cols, nil
	}
	where, having, err := t.splitWithFilters(rs.where)
	if err != nil {
		return Statement{}, nil, err
	}
	where = append(where, having...) // pre-aggregation rows carry no groups yet

	var inner sqlBuilder
	if len(rs.ctes) > 0 {
		inner.write("WITH RECURSIVE ")
		inner.writeJoined(", ", rs.ctes)
		inner.write(" ")
	}
	inner.write("SELECT ")
	if t.ctx.withDistinct {
		inner.write("DISTINCT ")
	}
	inner.write("*")
	inner.writeFragment(rs.from)
	if len(where) > 0 {
		inner.write(" WHERE ")
		inner.writeJoined(" AND ", where)
	}
	if len(t.ctx.withOrderBy) > 0 {
		var order []fragment
		for _, s := range t.ctx.withOrderBy {
			p, err := t.translateExpr(s.Expression)
			if err != nil {
				return Statement{}, nil, err
			}
			f := p.fragment
			if s.Descending {
				f = wrapFragment("", f, " DESC")
			}
			order = append(order, f)
		}
		inner.write(" ORDER BY ")
		inner.writeJoined(", ", order)
	}
	var withSkip, withLimit fragment
	if t.ctx.withSkip != nil {
		withSkip, err = t.bindCount(t.ctx.withSkip, "SKIP")
		if err != nil {
			return Statement{}, nil, err
		}
	}
	if t.ctx.withLimit != nil {
		withLimit, err = t.bindCount(t.ctx.withLimit, "LIMIT")
		if err != nil {
			return Statement{}, nil, err
		}
	}
	t.writeSkipLimit(&inner, withSkip, withLimit)

	var w sqlBuilder
	w.write("SELECT ")
	for i, si := range sel {
		if i > 0 {
			w.write(", ")
		}
		w.writeFragment(si.p.fragment)
		w.write(" AS " + quoteIdent(si.alias))
	}
	w.write(" FROM (")
	w.writeFragment(inner.fragment())
	w.write(") " + subAlias)

	// RETURN's own ORDER BY / SKIP / LIMIT still apply outside.
	orderBy, err := t.resolveOrderBy(&ast.ReturnClause{Items: ret.Items, OrderBy: ret.OrderBy}, sel, true)
	if err != nil {
		return Statement{}, nil, err
	}
	if len(orderBy) > 0 {
		w.write(" ORDER BY ")
		w.writeJoined(", ", orderBy)
	}
	var retSkip, retLimit fragment
	if ret.Skip != nil {
		retSkip, err = t.bindCount(ret.Skip, "SKIP")
		if err != nil {
			return Statement{}, nil, err
		}
	}
	if ret.Limit != nil {
		retLimit, err = t.bindCount(ret.Limit, "LIMIT")
		if err != nil {
			return Statement{}, nil, err
		}
	}
	t.writeSkipLimit(&w, retSkip, retLimit)

	f := w.fragment()
	return Statement{SQL: f.sql, Params: f.params}, cols, nil
}

// buildAggregatesCTEReturn materializes the last WITH's aliases in an
// __aggregates__ CTE so list predicates can take correlated access to the
// aggregate values.
func (t *Translator) buildAggregatesCTEReturn(ret *ast.ReturnClause, items []*ast.ReturnItem) (Statement, []string, error) {
	if len(t.ctx.withAliases) == 0 {
		return Statement{}, nil, syntaxErrorf("list predicate over an aggregate requires a preceding WITH")
	}
	top := t.ctx.withAliases[len(t.ctx.withAliases)-1]
	names := sortedKeys(top)

	ctes, err := t.buildVarLenCTEs()
	if err != nil {
		return Statement{}, nil, err
	}

	// Inner projection: every alias of the WITH becomes a CTE column; the
	// non-aggregating ones double as grouping keys.
	saved := t.ctx.materialized
	t.ctx.materialized = map[string]bool{}
	var innerItems sqlBuilder
	var groupKeys []fragment
	anyAgg := false
	for i, name := range names {
		if i > 0 {
			innerItems.write(", ")
		}
		p, err := t.translateJSONValue(top[name])
		if err != nil {
			t.ctx.materialized = saved
			return Statement{}, nil, err
		}
		innerItems.writeFragment(p.fragment)
		innerItems.write(" AS " + quoteIdent(name))
		if t.ctx.aggAliases[name] {
			anyAgg = true
		} else {
			groupKeys = append(groupKeys, p.fragment)
		}
	}
	rs, err := t.buildRowSource(nil)
	t.ctx.materialized = saved
	if err != nil {
		return Statement{}, nil, err
	}

	var cte sqlBuilder
	cte.write(aggregatesCTE + " AS (SELECT ")
	cte.writeFragment(innerItems.fragment())
	cte.writeFragment(rs.from)
	if len(rs.where) > 0 {
		cte.write(" WHERE ")
		cte.writeJoined(" AND ", rs.where)
	}
	if anyAgg && len(groupKeys) > 0 {
		cte.write(" GROUP BY ")
		cte.writeJoined(", ", groupKeys)
	}
	cte.write(")")

	// Outer query: every WITH alias resolves to its CTE column.
	for _, name := range names {
		t.ctx.materialized[name] = true
	}
	sel, cols, err := t.translateItems(items)
	if err != nil {
		return Statement{}, nil, err
	}

	var w sqlBuilder
	w.write("WITH ")
	if len(ctes) > 0 {
		w.write("RECURSIVE ")
		w.writeJoined(", ", ctes)
		w.write(", ")
	}
	w.writeFragment(cte.fragment())
	w.write(" SELECT ")
	if ret.Distinct {
		w.write("DISTINCT ")
	}
	for i, si := range sel {
		if i > 0 {
			w.write(", ")
		}
		w.writeFragment(si.p.fragment)
		w.write(" AS " + quoteIdent(si.alias))
	}
	w.write(" FROM " + aggregatesCTE)

	var where []fragment
	for _, f := range t.ctx.withFilters {
		p, err := t.translateWhere(f.cond)
		if err != nil {
			return Statement{}, nil, err
		}
		where = append(where, p.fragment)
	}
	if len(where) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", where)
	}

	orderBy, err := t.resolveOrderBy(ret, sel, false)
	if err != nil {
		return Statement{}, nil, err
	}
	if len(orderBy) > 0 {
		w.write(" ORDER BY ")
		w.writeJoined(", ", orderBy)
	}
	skip, limit, err := t.effectiveSkipLimit(ret)
	if err != nil {
		return Statement{}, nil, err
	}
	t.writeSkipLimit(&w, skip, limit)

	f := w.fragment()
	return Statement{SQL: f.sql, Params: f.params}, cols, nil
}
