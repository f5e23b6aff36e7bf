package cypher

import (
	"fmt"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// selectItem is one translated RETURN/WITH column.
type selectItem struct {
	expr    ast.Expression
	alias   string
	p       piece
	isAgg   bool
	groupBy string // overrides p.sql as the GROUP BY key when set
}

// handleWith mutates scope for a WITH clause; no SQL is emitted here. The
// terminal RETURN folds the accumulated modifiers into one SELECT.
func (t *Translator) handleWith(w *ast.WithClause) error {
	items, err := t.expandStar(w.Items)
	if err != nil {
		return err
	}
	if err := checkDuplicateColumns(items); err != nil {
		return err
	}

	newMap := map[string]ast.Expression{}
	keepGraph := map[string]bool{}
	referencesGraph := false

	for _, item := range items {
		alias := item.Alias
		if alias == "" {
			alias = exprText(item.Expression)
		}
		if v, ok := item.Expression.(*ast.Variable); ok {
			if sv, bound := t.ctx.lookup(v.Name); bound {
				// Graph passthrough, possibly renamed.
				if alias != v.Name {
					renamed := *sv
					renamed.name = alias
					t.ctx.vars[alias] = &renamed
				}
				keepGraph[alias] = true
				continue
			}
		}
		if t.exprReferencesGraphVars(item.Expression) {
			referencesGraph = true
		}
		newMap[alias] = item.Expression
		if exprHasAggregate(item.Expression) {
			t.ctx.aggAliases[alias] = true
		}
	}

	t.ctx.withAliases = append(t.ctx.withAliases, newMap)

	if len(keepGraph) == 0 {
		// No graph variable crosses this WITH: patterns registered so far
		// become a pre-WITH row source, and — when nothing even references
		// them — a fresh edge scope opens for uniqueness purposes.
		t.ctx.preWithPatterns = append(t.ctx.preWithPatterns, t.ctx.relPatterns...)
		t.ctx.relPatterns = nil
		if !referencesGraph {
			t.ctx.edgeScope++
		}
	}
	// Bindings stay while an alias definition still references them: the
	// definitions are inlined at RETURN time and must resolve then.
	if !referencesGraph {
		t.ctx.clearGraphVars(keepGraph)
	}

	if w.Distinct {
		t.ctx.withDistinct = true
	}
	if len(w.OrderBy) > 0 {
		t.ctx.withOrderBy = w.OrderBy
	}
	if w.Skip != nil {
		t.ctx.withSkip = w.Skip
	}
	if w.Limit != nil {
		t.ctx.withLimit = w.Limit
	}
	if w.Where != nil {
		snapshot := map[string]bool{}
		for k, v := range t.ctx.aggAliases {
			snapshot[k] = v
		}
		t.ctx.withFilters = append(t.ctx.withFilters, withFilter{cond: w.Where, aggAliases: snapshot})
	}
	return nil
}

// handleUnwind records an UNWIND; its list expression is translated now so
// it sees the current scope, even if a later WITH rebinds names.
func (t *Translator) handleUnwind(u *ast.UnwindClause) error {
	if u.Variable == "" {
		return malformedf("UNWIND without a variable")
	}
	if _, bound := t.ctx.lookup(u.Variable); bound {
		return alreadyBound(u.Variable)
	}
	expr, err := t.translateExpr(u.Expression)
	if err != nil {
		return err
	}
	alias := t.ctx.nextAlias("u")
	t.ctx.unwinds = append(t.ctx.unwinds, &unwindRecord{
		alias:    alias,
		variable: u.Variable,
		expr:     expr.fragment,
	})
	t.ctx.exprSubs[u.Variable] = alias + ".value"
	return nil
}

// handleCall records a CALL clause. Only the two schema procedures exist.
func (t *Translator) handleCall(c *ast.CallClause) error {
	switch c.Procedure {
	case "db.labels":
		yield := c.Yield
		if yield == "" {
			yield = "label"
		}
		t.ctx.call = &callRecord{yield: yield, table: "nodes, json_each(nodes.label)", columnSQL: "value", where: c.Where}
		t.ctx.exprSubs[yield] = "__call__." + quoteIdent(yield)
	case "db.relationshipTypes":
		yield := c.Yield
		if yield == "" {
			yield = "relationshipType"
		}
		t.ctx.call = &callRecord{yield: yield, table: "edges", columnSQL: "type", where: c.Where}
		t.ctx.exprSubs[yield] = "__call__." + quoteIdent(yield)
	default:
		return unsupportedf("unknown procedure %s", c.Procedure)
	}
	return nil
}

// standaloneCall emits the SELECT for a CALL with no following RETURN.
func (t *Translator) standaloneCall() (Statement, []string, error) {
	c := t.ctx.call
	var w sqlBuilder
	w.writef("SELECT DISTINCT %s AS %s FROM %s WHERE %s <> ''", c.columnSQL, quoteIdent(c.yield), c.table, c.columnSQL)
	if c.where != nil {
		prev, had := t.ctx.exprSubs[c.yield]
		t.ctx.exprSubs[c.yield] = c.columnSQL
		cond, err := t.translateWhere(c.where)
		if had {
			t.ctx.exprSubs[c.yield] = prev
		} else {
			delete(t.ctx.exprSubs, c.yield)
		}
		if err != nil {
			return Statement{}, nil, err
		}
		w.write(" AND ")
		w.writeFragment(cond.fragment)
	}
	f := w.fragment()
	return Statement{SQL: f.sql, Params: f.params}, []string{c.yield}, nil
}

// expandStar replaces a `*` item with the currently-bound names: WITH
// aliases first, then graph variables, explicit items after the star kept.
func (t *Translator) expandStar(items []*ast.ReturnItem) ([]*ast.ReturnItem, error) {
	starAt := -1
	for i, item := range items {
		if item.Star {
			starAt = i
			break
		}
	}
	if starAt < 0 {
		return items, nil
	}
	var expanded []*ast.ReturnItem
	expanded = append(expanded, items[:starAt]...)
	seen := map[string]bool{}
	for _, item := range items {
		if !item.Star && item.Alias != "" {
			seen[item.Alias] = true
		}
	}
	if len(t.ctx.withAliases) > 0 {
		top := t.ctx.withAliases[len(t.ctx.withAliases)-1]
		for _, name := range sortedKeys(top) {
			if seen[name] {
				continue
			}
			expanded = append(expanded, &ast.ReturnItem{Expression: &ast.Variable{Name: name}, Alias: name})
			seen[name] = true
		}
	}
	var graphNames []string
	for name := range t.ctx.vars {
		graphNames = append(graphNames, name)
	}
	for i := 1; i < len(graphNames); i++ {
		for j := i; j > 0 && graphNames[j] < graphNames[j-1]; j-- {
			graphNames[j], graphNames[j-1] = graphNames[j-1], graphNames[j]
		}
	}
	for _, name := range graphNames {
		if seen[name] {
			continue
		}
		expanded = append(expanded, &ast.ReturnItem{Expression: &ast.Variable{Name: name}, Alias: name})
		seen[name] = true
	}
	if len(expanded) == len(items[:starAt]) && starAt == len(items)-1 {
		return nil, syntaxErrorf("RETURN * with no variables in scope")
	}
	expanded = append(expanded, items[starAt+1:]...)
	return expanded, nil
}

func checkDuplicateColumns(items []*ast.ReturnItem) error {
	seen := map[string]bool{}
	for _, item := range items {
		name := item.Alias
		if name == "" {
			name = exprText(item.Expression)
		}
		if seen[name] {
			return syntaxErrorf("duplicate column name `%s`", name)
		}
		seen[name] = true
	}
	return nil
}

// scanForMaterialization walks an expression for list predicates whose list
// is a WITH aggregate alias; those aliases must be materialized in the
// __aggregates__ CTE.
func (t *Translator) scanForMaterialization(e ast.Expression) {
	switch x := e.(type) {
	case nil:
	case *ast.ListPredicate:
		t.markMaterializedAggregates(x.List)
	case *ast.Binary:
		t.scanForMaterialization(x.Left)
		t.scanForMaterialization(x.Right)
	case *ast.Unary:
		t.scanForMaterialization(x.Operand)
	case *ast.Comparison:
		t.scanForMaterialization(x.Left)
		t.scanForMaterialization(x.Right)
	case *ast.FunctionCall:
		for _, a := range x.Args {
			t.scanForMaterialization(a)
		}
	case *ast.Case:
		t.scanForMaterialization(x.Test)
		for _, arm := range x.Whens {
			t.scanForMaterialization(arm.When)
			t.scanForMaterialization(arm.Then)
		}
		t.scanForMaterialization(x.Else)
	case *ast.ListComprehension:
		t.scanForMaterialization(x.List)
	case *ast.In:
		t.scanForMaterialization(x.Needle)
		t.scanForMaterialization(x.List)
	}
}

func (t *Translator) scanCondForMaterialization(w *ast.WhereCondition) {
	if w == nil {
		return
	}
	if w.Predicate != nil {
		t.markMaterializedAggregates(w.Predicate.List)
	}
	for _, e := range []ast.Expression{w.Left, w.Right, w.List, w.Expr} {
		t.scanForMaterialization(e)
	}
	t.scanCondForMaterialization(w.Condition)
	for _, c := range w.Conditions {
		t.scanCondForMaterialization(c)
	}
}

// rowSource is the assembled FROM/JOIN topology plus loose WHERE conjuncts
// and the recursive CTEs it needs.
type rowSource struct {
	ctes        []fragment
	from        fragment
	where       []fragment
	emptyResult bool
}

// buildVarLenCTEs pre-renders the recursive CTEs in pattern order, so their
// parameters lead the statement's parameter list the way the CTE text leads
// the SQL.
func (t *Translator) buildVarLenCTEs() ([]fragment, error) {
	var out []fragment
	patterns := t.allPatterns()
	for _, rp := range patterns {
		if !rp.varLen {
			continue
		}
		if selfOnly, empty := varLengthDegenerate(rp.edgePattern); selfOnly || empty {
			continue
		}
		var bound []string
		for _, other := range patterns {
			if !other.varLen && !other.edgeNew && other.edgeScope == rp.edgeScope {
				bound = append(bound, other.edgeAlias)
			}
		}
		cte, err := t.emitVarLengthCTE(rp.cteName, rp.edgePattern, bound)
		if err != nil {
			return nil, err
		}
		out = append(out, cte)
	}
	return out, nil
}

func (t *Translator) allPatterns() []*relPattern {
	return append(append([]*relPattern{}, t.ctx.preWithPatterns...), t.ctx.relPatterns...)
}

// buildRowSource assembles FROM/JOINs per §4.4 step 5: required patterns
// join inner, optional patterns LEFT JOIN with their predicates in ON,
// undirected non-optional patterns go through a direction-multiplier
// subquery, variable-length segments join their CTE.
func (t *Translator) buildRowSource(ctes []fragment) (*rowSource, error) {
	rs := &rowSource{ctes: ctes}
	var from sqlBuilder
	inFrom := map[string]bool{}
	started := false

	ensureBase := func(alias string, optional bool, preds []fragment) {
		if inFrom[alias] {
			return
		}
		inFrom[alias] = true
		if !started {
			from.write("nodes " + alias)
			started = true
			rs.where = append(rs.where, preds...)
			return
		}
		if optional {
			on := append([]fragment{frag("1=1")}, preds...)
			from.write(" LEFT JOIN nodes " + alias + " ON ")
			from.writeJoined(" AND ", on)
			return
		}
		from.write(", nodes " + alias)
		rs.where = append(rs.where, preds...)
	}

	// Required standalone nodes anchor the FROM before any optional
	// pattern references them.
	for _, alias := range t.ctx.standaloneNodes {
		meta := t.ctx.nodeMetas[alias]
		if meta == nil || meta.optional {
			continue
		}
		preds, err := t.nodePredicates(meta.pattern, alias)
		if err != nil {
			return nil, err
		}
		ensureBase(alias, false, preds)
	}

	dirCount := 0
	for _, rp := range t.allPatterns() {
		if err := t.addPatternToFrom(rp, &from, inFrom, &started, rs, &dirCount, ensureBase); err != nil {
			return nil, err
		}
		if rs.emptyResult {
			return rs, nil
		}
	}

	// Uniqueness: distinct edges within one connected component, one clause
	// optionality and one edge scope.
	rs.where = append(rs.where, t.edgeUniquenessConstraints()...)

	// Optional standalone nodes.
	for _, alias := range t.ctx.standaloneNodes {
		meta := t.ctx.nodeMetas[alias]
		if meta == nil || !meta.optional {
			continue
		}
		preds, err := t.nodePredicates(meta.pattern, alias)
		if err != nil {
			return nil, err
		}
		if w, ok := t.ctx.optionalNodeWhere[alias]; ok {
			cond, err := t.translateWhere(w)
			if err != nil {
				return nil, err
			}
			preds = append(preds, cond.fragment)
		}
		if !started {
			ensureBase(alias, false, preds)
		} else {
			ensureBase(alias, true, preds)
		}
	}

	// CALL row source.
	if t.ctx.call != nil {
		c := t.ctx.call
		seg := fmt.Sprintf("(SELECT DISTINCT %s AS %s FROM %s WHERE %s <> '') AS __call__",
			c.columnSQL, quoteIdent(c.yield), c.table, c.columnSQL)
		if !started {
			from.write(seg)
			started = true
		} else {
			from.write(" CROSS JOIN " + seg)
		}
		if c.where != nil {
			cond, err := t.translateWhere(c.where)
			if err != nil {
				return nil, err
			}
			rs.where = append(rs.where, cond.fragment)
		}
	}

	// UNWIND expansion.
	for _, u := range t.ctx.unwinds {
		if u.consumed {
			continue
		}
		if !started {
			from.write("json_each(")
			from.writeFragment(u.expr)
			from.write(") AS " + u.alias)
			started = true
			continue
		}
		from.write(" CROSS JOIN json_each(")
		from.writeFragment(u.expr)
		from.write(") AS " + u.alias)
	}

	// MATCH WHERE conditions.
	for _, cond := range t.ctx.matchWhere {
		p, err := t.translateWhere(cond)
		if err != nil {
			return nil, err
		}
		rs.where = append(rs.where, p.fragment)
	}

	if started {
		rs.from = wrapFragment(" FROM ", from.fragment(), "")
	}
	return rs, nil
}

func (t *Translator) hopNodePreds(rp *relPattern, np *ast.NodePattern, alias string, isNew bool) ([]fragment, error) {
	if np == nil {
		return nil, nil
	}
	if !isNew {
		meta := t.ctx.nodeMetas[alias]
		if meta != nil && meta.pattern == np {
			return nil, nil // predicates already emitted where the alias was introduced
		}
		if len(np.Labels) == 0 && len(np.Properties) == 0 {
			return nil, nil
		}
	}
	return t.nodePredicates(np, alias)
}

func (t *Translator) addPatternToFrom(rp *relPattern, from *sqlBuilder, inFrom map[string]bool, started *bool, rs *rowSource, dirCount *int, ensureBase func(string, bool, []fragment)) error {
	srcPreds, err := t.hopNodePreds(rp, rp.srcPattern, rp.srcAlias, rp.srcNew)
	if err != nil {
		return err
	}
	tgtPreds, err := t.hopNodePreds(rp, rp.tgtPattern, rp.tgtAlias, rp.tgtNew)
	if err != nil {
		return err
	}
	var edgePreds []fragment
	typePred, err := t.edgeTypePredicate(&ast.EdgePattern{Types: rp.types}, rp.edgeAlias)
	if err != nil {
		return err
	}
	if !typePred.empty() {
		edgePreds = append(edgePreds, typePred)
	}
	propPreds, err := t.propertyPredicates(rp.props, rp.propOrder, rp.edgeAlias)
	if err != nil {
		return err
	}
	edgePreds = append(edgePreds, propPreds...)

	var optWhere fragment
	if rp.where != nil {
		cond, err := t.translateWhere(rp.where)
		if err != nil {
			return err
		}
		optWhere = cond.fragment
	}

	if rp.varLen {
		return t.addVarLenToFrom(rp, from, inFrom, started, rs, srcPreds, tgtPreds, ensureBase)
	}

	if !rp.edgeNew {
		// Reused edge variable: verify its endpoints instead of joining a
		// second copy.
		ensureBase(rp.srcAlias, false, srcPreds)
		ensureBase(rp.tgtAlias, false, tgtPreds)
		srcCol, tgtCol := "source_id", "target_id"
		if rp.direction == ast.DirectionLeft {
			srcCol, tgtCol = tgtCol, srcCol
		}
		if rp.direction == ast.DirectionNone {
			rs.where = append(rs.where, frag(fmt.Sprintf(
				"((%s.source_id = %s.id AND %s.target_id = %s.id) OR (%s.source_id = %s.id AND %s.target_id = %s.id))",
				rp.edgeAlias, rp.srcAlias, rp.edgeAlias, rp.tgtAlias,
				rp.edgeAlias, rp.tgtAlias, rp.edgeAlias, rp.srcAlias)))
		} else {
			rs.where = append(rs.where,
				frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, srcCol, rp.srcAlias)),
				frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, tgtCol, rp.tgtAlias)))
		}
		rs.where = append(rs.where, edgePreds...)
		if !optWhere.empty() {
			rs.where = append(rs.where, optWhere)
		}
		return nil
	}

	if rp.optional {
		return t.addOptionalPattern(rp, from, inFrom, started, rs, srcPreds, tgtPreds, edgePreds, optWhere, ensureBase)
	}

	// Required pattern.
	ensureBase(rp.srcAlias, false, srcPreds)
	srcCol, tgtCol := "source_id", "target_id"
	if rp.direction == ast.DirectionLeft {
		srcCol, tgtCol = tgtCol, srcCol
	}
	switch rp.direction {
	case ast.DirectionRight, ast.DirectionLeft:
		from.writef(" JOIN edges %s ON %s.%s = %s.id", rp.edgeAlias, rp.edgeAlias, srcCol, rp.srcAlias)
		if inFrom[rp.tgtAlias] {
			rs.where = append(rs.where, frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, tgtCol, rp.tgtAlias)))
			rs.where = append(rs.where, tgtPreds...)
		} else {
			from.writef(" JOIN nodes %s ON %s.%s = %s.id", rp.tgtAlias, rp.edgeAlias, tgtCol, rp.tgtAlias)
			inFrom[rp.tgtAlias] = true
			rs.where = append(rs.where, tgtPreds...)
		}
	default:
		// Undirected: a two-row multiplier subquery picks one orientation
		// per row; the self-loop duplicate is suppressed.
		dAlias := fmt.Sprintf("__dir%d", *dirCount)
		*dirCount++
		from.writef(" JOIN (SELECT 1 AS _d UNION ALL SELECT 2 AS _d) %s", dAlias)
		from.writef(" JOIN edges %s ON ((%s._d = 1 AND %s.source_id = %s.id) OR (%s._d = 2 AND %s.target_id = %s.id))",
			rp.edgeAlias, dAlias, rp.edgeAlias, rp.srcAlias, dAlias, rp.edgeAlias, rp.srcAlias)
		if inFrom[rp.tgtAlias] {
			rs.where = append(rs.where, frag(fmt.Sprintf(
				"((%s._d = 1 AND %s.target_id = %s.id) OR (%s._d = 2 AND %s.source_id = %s.id))",
				dAlias, rp.edgeAlias, rp.tgtAlias, dAlias, rp.edgeAlias, rp.tgtAlias)))
			rs.where = append(rs.where, tgtPreds...)
		} else {
			from.writef(" JOIN nodes %s ON ((%s._d = 1 AND %s.target_id = %s.id) OR (%s._d = 2 AND %s.source_id = %s.id))",
				rp.tgtAlias, dAlias, rp.edgeAlias, rp.tgtAlias, dAlias, rp.edgeAlias, rp.tgtAlias)
			inFrom[rp.tgtAlias] = true
			rs.where = append(rs.where, tgtPreds...)
		}
		rs.where = append(rs.where, frag(fmt.Sprintf(
			"NOT (%s.source_id = %s.target_id AND %s._d = 2)", rp.edgeAlias, rp.edgeAlias, dAlias)))
	}
	inFrom[rp.edgeAlias] = true
	rs.where = append(rs.where, edgePreds...)
	if !optWhere.empty() {
		rs.where = append(rs.where, optWhere)
	}
	return nil
}

// addOptionalPattern emits LEFT JOINs whose ON clauses carry every
// predicate that may not eliminate rows of prior required MATCHes.
func (t *Translator) addOptionalPattern(rp *relPattern, from *sqlBuilder, inFrom map[string]bool, started *bool, rs *rowSource, srcPreds, tgtPreds, edgePreds []fragment, optWhere fragment, ensureBase func(string, bool, []fragment)) error {
	srcCol, tgtCol := "source_id", "target_id"
	if rp.direction == ast.DirectionLeft {
		srcCol, tgtCol = tgtCol, srcCol
	}
	undirected := rp.direction == ast.DirectionNone

	srcBound := inFrom[rp.srcAlias] || !rp.srcNew
	tgtBound := inFrom[rp.tgtAlias] || !rp.tgtNew

	if rp.srcNew && tgtBound {
		// New source with a bound target: key the edge on the bound target
		// first, then join the source off the edge.
		ensureBase(rp.tgtAlias, false, nil)
		on := []fragment{frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, tgtCol, rp.tgtAlias))}
		if undirected {
			on = []fragment{frag(fmt.Sprintf("(%s.source_id = %s.id OR %s.target_id = %s.id)",
				rp.edgeAlias, rp.tgtAlias, rp.edgeAlias, rp.tgtAlias))}
		}
		on = append(on, edgePreds...)
		on = append(on, tgtPreds...)
		from.writef(" LEFT JOIN edges %s ON ", rp.edgeAlias)
		from.writeJoined(" AND ", on)
		inFrom[rp.edgeAlias] = true

		srcOn := []fragment{frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, srcCol, rp.srcAlias))}
		if undirected {
			srcOn = []fragment{frag(fmt.Sprintf(
				"CASE WHEN %s.source_id = %s.id THEN %s.target_id ELSE %s.source_id END = %s.id",
				rp.edgeAlias, rp.tgtAlias, rp.edgeAlias, rp.edgeAlias, rp.srcAlias))}
		}
		srcOn = append(srcOn, srcPreds...)
		if !optWhere.empty() {
			srcOn = append(srcOn, optWhere)
		}
		from.writef(" LEFT JOIN nodes %s ON ", rp.srcAlias)
		from.writeJoined(" AND ", srcOn)
		inFrom[rp.srcAlias] = true
		return nil
	}

	if !srcBound {
		ensureBase(rp.srcAlias, true, srcPreds)
	} else {
		ensureBase(rp.srcAlias, false, srcPreds)
	}

	on := []fragment{}
	if undirected {
		// Optional undirected: one symmetric OR in the ON clause.
		on = append(on, frag(fmt.Sprintf("(%s.source_id = %s.id OR %s.target_id = %s.id)",
			rp.edgeAlias, rp.srcAlias, rp.edgeAlias, rp.srcAlias)))
	} else {
		on = append(on, frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, srcCol, rp.srcAlias)))
	}
	on = append(on, edgePreds...)
	if tgtBound {
		// Predicates on a bound target belong in the edge's ON so an
		// unmatched row yields NULLs instead of elimination.
		if undirected {
			on = append(on, frag(fmt.Sprintf(
				"CASE WHEN %s.source_id = %s.id THEN %s.target_id ELSE %s.source_id END = %s.id",
				rp.edgeAlias, rp.srcAlias, rp.edgeAlias, rp.edgeAlias, rp.tgtAlias)))
		} else {
			on = append(on, frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, tgtCol, rp.tgtAlias)))
		}
		on = append(on, tgtPreds...)
		if !optWhere.empty() {
			on = append(on, optWhere)
		}
		from.writef(" LEFT JOIN edges %s ON ", rp.edgeAlias)
		from.writeJoined(" AND ", on)
		inFrom[rp.edgeAlias] = true
		return nil
	}
	from.writef(" LEFT JOIN edges %s ON ", rp.edgeAlias)
	from.writeJoined(" AND ", on)
	inFrom[rp.edgeAlias] = true

	tgtOn := []fragment{}
	if undirected {
		tgtOn = append(tgtOn, frag(fmt.Sprintf(
			"CASE WHEN %s.source_id = %s.id THEN %s.target_id ELSE %s.source_id END = %s.id",
			rp.edgeAlias, rp.srcAlias, rp.edgeAlias, rp.edgeAlias, rp.tgtAlias)))
	} else {
		tgtOn = append(tgtOn, frag(fmt.Sprintf("%s.%s = %s.id", rp.edgeAlias, tgtCol, rp.tgtAlias)))
	}
	tgtOn = append(tgtOn, tgtPreds...)
	if !optWhere.empty() {
		tgtOn = append(tgtOn, optWhere)
	}
	from.writef(" LEFT JOIN nodes %s ON ", rp.tgtAlias)
	from.writeJoined(" AND ", tgtOn)
	inFrom[rp.tgtAlias] = true
	return nil
}

func (t *Translator) addVarLenToFrom(rp *relPattern, from *sqlBuilder, inFrom map[string]bool, started *bool, rs *rowSource, srcPreds, tgtPreds []fragment, ensureBase func(string, bool, []fragment)) error {
	selfOnly, empty := varLengthDegenerate(rp.edgePattern)
	if empty {
		rs.emptyResult = true
		return nil
	}
	ensureBase(rp.srcAlias, false, srcPreds)
	if selfOnly {
		ensureBase(rp.tgtAlias, false, tgtPreds)
		rs.where = append(rs.where, frag(fmt.Sprintf("%s.id = %s.id", rp.srcAlias, rp.tgtAlias)))
		return nil
	}
	if rp.optional {
		on := []fragment{frag(fmt.Sprintf("%s.id = %s.start_id", rp.srcAlias, rp.cteName))}
		if rp.minHops > 1 {
			on = append(on, frag(fmt.Sprintf("%s.depth >= %d", rp.cteName, rp.minHops)))
		}
		from.write(" LEFT JOIN " + rp.cteName + " ON ")
		from.writeJoined(" AND ", on)
		if inFrom[rp.tgtAlias] {
			rs.where = append(rs.where, frag(fmt.Sprintf(
				"(%s.id = %s.end_id OR %s.start_id IS NULL)", rp.tgtAlias, rp.cteName, rp.cteName)))
		} else {
			tgtOn := append([]fragment{frag(fmt.Sprintf("%s.id = %s.end_id", rp.tgtAlias, rp.cteName))}, tgtPreds...)
			from.writef(" LEFT JOIN nodes %s ON ", rp.tgtAlias)
			from.writeJoined(" AND ", tgtOn)
			inFrom[rp.tgtAlias] = true
		}
		inFrom[rp.cteName] = true
		return nil
	}
	from.write(", " + rp.cteName)
	inFrom[rp.cteName] = true
	rs.where = append(rs.where, frag(fmt.Sprintf("%s.id = %s.start_id", rp.srcAlias, rp.cteName)))
	if inFrom[rp.tgtAlias] {
		rs.where = append(rs.where, frag(fmt.Sprintf("%s.id = %s.end_id", rp.tgtAlias, rp.cteName)))
		rs.where = append(rs.where, tgtPreds...)
	} else {
		from.write(", nodes " + rp.tgtAlias)
		inFrom[rp.tgtAlias] = true
		rs.where = append(rs.where, frag(fmt.Sprintf("%s.id = %s.end_id", rp.tgtAlias, rp.cteName)))
		rs.where = append(rs.where, tgtPreds...)
	}
	if rp.minHops > 1 {
		rs.where = append(rs.where, frag(fmt.Sprintf("%s.depth >= %d", rp.cteName, rp.minHops)))
	}
	return nil
}

// edgeUniquenessConstraints emits pairwise edge-id inequalities for
// connected pattern groups sharing a clause optionality and edge scope.
func (t *Translator) edgeUniquenessConstraints() []fragment {
	type groupKey struct {
		optional  bool
		edgeScope int
	}
	groups := map[groupKey][]*relPattern{}
	var order []groupKey
	for _, rp := range t.allPatterns() {
		if rp.varLen || !rp.edgeNew {
			continue
		}
		k := groupKey{rp.optional, rp.edgeScope}
		if groups[k] == nil {
			order = append(order, k)
		}
		groups[k] = append(groups[k], rp)
	}
	var out []fragment
	for _, k := range order {
		patterns := groups[k]
		// Union-find over node aliases to find connected components.
		parent := map[string]string{}
		var find func(string) string
		find = func(s string) string {
			if parent[s] == "" || parent[s] == s {
				parent[s] = s
				return s
			}
			root := find(parent[s])
			parent[s] = root
			return root
		}
		union := func(a, b string) {
			parent[find(a)] = find(b)
		}
		for _, rp := range patterns {
			union(rp.srcAlias, rp.tgtAlias)
		}
		for i := 0; i < len(patterns); i++ {
			for j := i + 1; j < len(patterns); j++ {
				a, b := patterns[i], patterns[j]
				if a.edgeAlias == b.edgeAlias {
					continue
				}
				if find(a.srcAlias) != find(b.srcAlias) {
					continue
				}
				if k.optional {
					out = append(out, frag(fmt.Sprintf(
						"(%s.id <> %s.id OR %s.id IS NULL OR %s.id IS NULL)",
						a.edgeAlias, b.edgeAlias, a.edgeAlias, b.edgeAlias)))
				} else {
					out = append(out, frag(fmt.Sprintf("%s.id <> %s.id", a.edgeAlias, b.edgeAlias)))
				}
			}
		}
	}
	return out
}

// projectPath renders a path variable: Neo4j 3.5's alternating
// [node, edge, node, ...] array for fixed-length paths, a {nodes, edges}
// object for variable-length ones.
func (t *Translator) projectPath(name string) (piece, error) {
	pe := t.findPathExpr(name)
	if pe == nil {
		return piece{}, unknownVariable(name)
	}
	if pe.varLength {
		var w sqlBuilder
		w.writef("json_object('nodes', (SELECT json_group_array(__pn__.v) FROM (SELECT -1 AS k, %s.start_id AS v UNION ALL SELECT key, json_extract(value, '$.target_id') FROM json_each(%s.edge_ids) ORDER BY k) AS __pn__), 'edges', json(%s.edge_ids))",
			pe.cteName, pe.cteName, pe.cteName)
		return mkPiece(w.fragment(), kPath), nil
	}
	var w sqlBuilder
	w.write("json_array(")
	for i, nodeAlias := range pe.nodeSeq {
		if i > 0 {
			w.write(", ")
			edgeAlias := pe.edgeAliases[i-1]
			w.writef("json_set(%s.properties, '$._nf_id', %s.id), ", edgeAlias, edgeAlias)
		}
		w.writef("json_set(%s.properties, '$._nf_id', %s.id)", nodeAlias, nodeAlias)
	}
	w.write(")")
	return mkPiece(w.fragment(), kPath), nil
}
