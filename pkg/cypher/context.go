package cypher

import (
	"fmt"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// varKind classifies a scope variable.
type varKind int

const (
	kindNode varKind = iota
	kindEdge
	kindVarLengthEdge
	kindPath
)

func (k varKind) String() string {
	switch k {
	case kindNode:
		return "node"
	case kindEdge:
		return "edge"
	case kindVarLengthEdge:
		return "varLengthEdge"
	case kindPath:
		return "path"
	}
	return "unknown"
}

// scopeVar binds a Cypher identifier to an SQL source.
type scopeVar struct {
	name  string
	kind  varKind
	alias string
	// id is set for rows created earlier in the same query (CREATE/MERGE);
	// such rows have no FROM alias and are addressed by their generated UUID.
	id string
	// pathCTE names the recursive CTE backing a variable-length edge or path.
	pathCTE string
}

// nodeMeta records per-alias facts the plan builder needs after the pattern
// registrar ran: the original pattern (for label/property predicates) and
// whether the alias was introduced by an OPTIONAL MATCH.
type nodeMeta struct {
	pattern  *ast.NodePattern
	optional bool
}

// edgeMeta is the edge-alias counterpart of nodeMeta.
type edgeMeta struct {
	pattern  *ast.EdgePattern
	optional bool
}

// relPattern is the plan builder's input: one registered relationship
// pattern with its aliases resolved.
type relPattern struct {
	srcAlias  string
	tgtAlias  string
	edgeAlias string

	srcNew  bool // alias introduced by this pattern, not reused
	tgtNew  bool
	edgeNew bool

	direction ast.Direction
	types     []string
	props     map[string]ast.Expression
	propOrder []string

	// srcPattern/tgtPattern are this hop's written node patterns; a reused
	// variable can still add labels or properties at a later occurrence.
	srcPattern *ast.NodePattern
	tgtPattern *ast.NodePattern

	// edgePattern is the hop's written edge pattern (variable-length CTE
	// emission re-reads its filters).
	edgePattern *ast.EdgePattern

	// Variable-length segment: cteName is pre-allocated at registration.
	varLen  bool
	minHops int
	maxHops int // -1 = unbounded
	cteName string

	optional    bool
	edgeScope   int
	clauseIndex int

	// where is the OPTIONAL MATCH WHERE owned by this pattern, pushed into
	// the pattern's ON clause by the plan builder.
	where *ast.WhereCondition

	// boundEdgeSrc/Tgt remember the original endpoints of a reused edge
	// variable. The plan builder does not read them: it checks the edge
	// against this pattern's own srcAlias/tgtAlias.
	boundEdgeSrc string
	boundEdgeTgt string

	targetHasLabel bool
}

// pathExpr records `p = (...)` so projections of p, nodes(p),
// relationships(p) and length(p) can be synthesized.
type pathExpr struct {
	variable string
	alias    string
	// nodeSeq preserves the written node order, duplicates included, for
	// the projected alternating array; nodeAliases is deduplicated for
	// join synthesis.
	nodeSeq     []string
	nodeAliases []string
	edgeAliases []string
	varLength   bool
	cteName     string
	optional    bool
}

// unwindRecord is one UNWIND awaiting projection.
type unwindRecord struct {
	alias    string
	variable string
	expr     fragment
	// consumed is set when an outer aggregate subquery took over the
	// expansion, so the projection must not add the json_each join again.
	consumed bool
	// columnRename carries a subquery column alias when the unwound
	// expression was rewritten through a pre-aggregation subquery.
	columnRename string
}

// callRecord is a CALL clause awaiting its RETURN (or standalone emission).
type callRecord struct {
	yield     string
	table     string
	columnSQL string
	where     *ast.WhereCondition
}

// withFilter is an accumulated WITH WHERE condition, kept until the terminal
// projection decides whether it belongs in WHERE or HAVING.
type withFilter struct {
	cond *ast.WhereCondition
	// aggAliases lists WITH aliases bound to aggregate expressions at the
	// time the filter was recorded; referencing one routes it to HAVING.
	aggAliases map[string]bool
}

// transCtx is the mutable state of one translation. One Translator owns one
// transCtx; nothing is shared between translators.
type transCtx struct {
	vars   map[string]*scopeVar
	params map[string]any

	aliasCounter int
	cteCounter   int
	edgeScope    int
	clauseIndex  int

	// withAliases maps a user alias to its defining expression, one map per
	// WITH, innermost last. Lookup walks the stack from the top;
	// selfRefDepth tracks how many stack levels a self-referential alias
	// (WITH x+1 AS x) must skip while resolving its own definition.
	withAliases  []map[string]ast.Expression
	selfRefDepth map[string]int

	// aggAliases marks WITH aliases whose definition aggregates;
	// materialized marks those that must be evaluated in the
	// __aggregates__ CTE because a later list predicate needs correlated
	// access to them.
	aggAliases   map[string]bool
	materialized map[string]bool
	useAggCTE    bool

	withFilters []withFilter

	// Pending WITH modifiers applied by the next terminal projection.
	withDistinct bool
	withOrderBy  []*ast.SortItem
	withSkip     ast.Expression
	withLimit    ast.Expression

	relPatterns     []*relPattern
	preWithPatterns []*relPattern
	standaloneNodes []string // aliases, in registration order
	pathExprs       []*pathExpr
	unwinds         []*unwindRecord
	call            *callRecord

	// matchWhere accumulates non-optional MATCH WHERE conditions.
	matchWhere []*ast.WhereCondition

	// optionalNodeWhere holds the WHERE of an OPTIONAL MATCH whose pattern
	// is a standalone node, keyed by that node's alias; it joins the LEFT
	// JOIN's ON clause.
	optionalNodeWhere map[string]*ast.WhereCondition

	nodeMetas map[string]*nodeMeta
	edgeMetas map[string]*edgeMeta

	// exprSubs substitutes a variable with raw SQL while translating
	// comprehension bodies (v -> __lc__.value).
	exprSubs map[string]string

	// createdProps maps a CREATE-clause variable to its literal property
	// expressions so later elements of the same clause can resolve them
	// without a FROM source.
	createdProps map[string]map[string]ast.Expression
}

func newTransCtx(params map[string]any) *transCtx {
	if params == nil {
		params = map[string]any{}
	}
	return &transCtx{
		vars:         map[string]*scopeVar{},
		params:       params,
		selfRefDepth: map[string]int{},
		aggAliases:   map[string]bool{},
		materialized: map[string]bool{},
		nodeMetas:    map[string]*nodeMeta{},
		edgeMetas:    map[string]*edgeMeta{},
		exprSubs:          map[string]string{},
		createdProps:      map[string]map[string]ast.Expression{},
		optionalNodeWhere: map[string]*ast.WhereCondition{},
	}
}

// nextAlias allocates a fresh SQL alias with the given prefix.
func (c *transCtx) nextAlias(prefix string) string {
	a := fmt.Sprintf("%s%d", prefix, c.aliasCounter)
	c.aliasCounter++
	return a
}

// nextCTE allocates a fresh recursive-CTE name.
func (c *transCtx) nextCTE() string {
	n := fmt.Sprintf("path_%d", c.cteCounter)
	c.cteCounter++
	return n
}

// lookup resolves a scope variable.
func (c *transCtx) lookup(name string) (*scopeVar, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// bind declares a scope variable, rejecting cross-kind re-declaration.
func (c *transCtx) bind(name string, kind varKind, alias string) (*scopeVar, error) {
	if prev, ok := c.vars[name]; ok {
		if prev.kind != kind {
			return nil, alreadyBound(name)
		}
		return prev, nil
	}
	v := &scopeVar{name: name, kind: kind, alias: alias}
	c.vars[name] = v
	return v, nil
}

// lookupWithAlias resolves a WITH alias to its defining expression, walking
// the alias stack from the innermost scope. The fromDepth argument skips
// that many innermost scopes, which is how a self-referential alias
// (WITH x+1 AS x) reaches the previous definition of x.
func (c *transCtx) lookupWithAlias(name string, fromDepth int) (ast.Expression, bool) {
	for i := len(c.withAliases) - 1 - fromDepth; i >= 0; i-- {
		if e, ok := c.withAliases[i][name]; ok {
			return e, true
		}
	}
	return nil, false
}

// clearGraphVars drops node/edge/path bindings, keeping WITH aliases. Used
// by a WITH that projects no graph variable: the following clauses see a
// fresh graph scope.
func (c *transCtx) clearGraphVars(keep map[string]bool) {
	for name, v := range c.vars {
		if keep[name] {
			continue
		}
		switch v.kind {
		case kindNode, kindEdge, kindVarLengthEdge, kindPath:
			delete(c.vars, name)
		}
	}
}
