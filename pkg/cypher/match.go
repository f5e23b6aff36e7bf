package cypher

import (
	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// registerMatch records a MATCH/OPTIONAL MATCH clause. Nothing is emitted
// here: aliases are assigned, patterns stored, and the terminal projection
// later synthesizes the JOIN topology.
func (t *Translator) registerMatch(clause *ast.MatchClause) error {
	firstPattern := len(t.ctx.relPatterns)
	for _, p := range clause.Patterns {
		if err := t.registerPattern(p, clause.Optional); err != nil {
			return err
		}
	}
	if clause.Where != nil {
		if clause.Optional {
			// An OPTIONAL MATCH WHERE belongs to its own pattern: the plan
			// builder pushes it into the pattern's ON clause so it cannot
			// filter rows of prior required MATCHes.
			if len(t.ctx.relPatterns) > firstPattern {
				last := t.ctx.relPatterns[len(t.ctx.relPatterns)-1]
				last.where = clause.Where
			} else {
				// Optional standalone node: the WHERE still may not
				// eliminate outer rows; it joins the node predicates.
				t.attachStandaloneOptionalWhere(clause.Where)
			}
		} else {
			t.ctx.matchWhere = append(t.ctx.matchWhere, clause.Where)
		}
	}
	t.ctx.clauseIndex++
	return nil
}

// attachStandaloneOptionalWhere records the WHERE for the most recent
// optional standalone node; the plan builder adds it to that node's LEFT
// JOIN. Without such a node the WHERE joins the MATCH WHERE conditions.
func (t *Translator) attachStandaloneOptionalWhere(w *ast.WhereCondition) {
	if len(t.ctx.standaloneNodes) == 0 {
		t.ctx.matchWhere = append(t.ctx.matchWhere, w)
		return
	}
	alias := t.ctx.standaloneNodes[len(t.ctx.standaloneNodes)-1]
	if meta := t.ctx.nodeMetas[alias]; meta != nil && meta.optional {
		t.ctx.optionalNodeWhere[alias] = w
		return
	}
	t.ctx.matchWhere = append(t.ctx.matchWhere, w)
}

func (t *Translator) registerPattern(p *ast.Pattern, optional bool) error {
	if p.Node != nil && len(p.Chain) == 0 {
		return t.registerStandaloneNode(p.Node, optional)
	}
	if len(p.Chain) == 0 {
		return malformedf("empty pattern")
	}

	var pe *pathExpr
	if p.PathVariable != "" {
		if _, exists := t.ctx.lookup(p.PathVariable); exists {
			return alreadyBound(p.PathVariable)
		}
		pe = &pathExpr{variable: p.PathVariable, optional: optional}
	}

	var prevTargetAlias string
	for i, hop := range p.Chain {
		rp, err := t.registerHop(hop, optional, i > 0, prevTargetAlias)
		if err != nil {
			return err
		}
		prevTargetAlias = rp.tgtAlias
		t.ctx.relPatterns = append(t.ctx.relPatterns, rp)
		if pe != nil {
			if i == 0 {
				pe.nodeSeq = append(pe.nodeSeq, rp.srcAlias)
				pe.nodeAliases = append(pe.nodeAliases, rp.srcAlias)
			}
			pe.nodeSeq = append(pe.nodeSeq, rp.tgtAlias)
			if !containsString(pe.nodeAliases, rp.tgtAlias) {
				pe.nodeAliases = append(pe.nodeAliases, rp.tgtAlias)
			}
			pe.edgeAliases = append(pe.edgeAliases, rp.edgeAlias)
			if rp.varLen {
				pe.varLength = true
				pe.cteName = rp.cteName
			}
		}
	}
	if pe != nil {
		v, err := t.ctx.bind(pe.variable, kindPath, "")
		if err != nil {
			return err
		}
		v.pathCTE = pe.cteName
		t.ctx.pathExprs = append(t.ctx.pathExprs, pe)
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (t *Translator) registerStandaloneNode(np *ast.NodePattern, optional bool) error {
	if np.Variable != "" {
		if sv, ok := t.ctx.lookup(np.Variable); ok {
			if sv.kind != kindNode {
				return alreadyBound(np.Variable)
			}
			// Re-matching a bound variable adds its new predicates as plain
			// WHERE conditions.
			t.appendBoundNodeConditions(np)
			return nil
		}
	}
	alias := t.ctx.nextAlias("n")
	if np.Variable != "" {
		if _, err := t.ctx.bind(np.Variable, kindNode, alias); err != nil {
			return err
		}
	}
	t.ctx.standaloneNodes = append(t.ctx.standaloneNodes, alias)
	t.ctx.nodeMetas[alias] = &nodeMeta{pattern: np, optional: optional}
	return nil
}

// appendBoundNodeConditions turns extra labels/properties on an already
// bound node into MATCH WHERE conditions.
func (t *Translator) appendBoundNodeConditions(np *ast.NodePattern) {
	if len(np.Labels) > 0 {
		t.ctx.matchWhere = append(t.ctx.matchWhere, &ast.WhereCondition{
			Op: ast.WhereLabel, Variable: np.Variable, Labels: np.Labels,
		})
	}
	keys := np.PropertyOrder
	if keys == nil {
		keys = sortedKeys(np.Properties)
	}
	for _, k := range keys {
		t.ctx.matchWhere = append(t.ctx.matchWhere, ast.CondCompare("=",
			&ast.Property{Variable: np.Variable, Key: k}, np.Properties[k]))
	}
}

// resolveNode gives a chain endpoint its alias, covering the four
// resolutions: new, bound variable, chain reuse of the previous hop's
// target, and anonymous chain sharing.
func (t *Translator) resolveNode(np *ast.NodePattern, chained bool, prevTarget string, optional bool) (alias string, isNew bool, err error) {
	if chained {
		// The written source of hop i is the target of hop i-1.
		return prevTarget, false, nil
	}
	if np.Variable != "" {
		if sv, ok := t.ctx.lookup(np.Variable); ok {
			if sv.kind != kindNode {
				return "", false, alreadyBound(np.Variable)
			}
			return sv.alias, false, nil
		}
	}
	alias = t.ctx.nextAlias("n")
	if np.Variable != "" {
		if _, err := t.ctx.bind(np.Variable, kindNode, alias); err != nil {
			return "", false, err
		}
	}
	t.ctx.nodeMetas[alias] = &nodeMeta{pattern: np, optional: optional}
	return alias, true, nil
}

func (t *Translator) registerHop(hop *ast.RelationshipPattern, optional, chained bool, prevTarget string) (*relPattern, error) {
	if hop.Source == nil || hop.Edge == nil || hop.Target == nil {
		return nil, malformedf("relationship pattern is missing a part")
	}
	srcAlias, srcNew, err := t.resolveNode(hop.Source, chained, prevTarget, optional)
	if err != nil {
		return nil, err
	}
	tgtAlias, tgtNew, err := t.resolveNode(hop.Target, false, "", optional)
	if err != nil {
		return nil, err
	}

	rp := &relPattern{
		srcAlias:    srcAlias,
		tgtAlias:    tgtAlias,
		srcNew:      srcNew,
		tgtNew:      tgtNew,
		direction:   hop.Edge.Direction,
		types:       hop.Edge.Types,
		props:       hop.Edge.Properties,
		propOrder:   hop.Edge.PropertyOrder,
		srcPattern:  hop.Source,
		tgtPattern:  hop.Target,
		optional:    optional,
		edgeScope:   t.ctx.edgeScope,
		clauseIndex: t.ctx.clauseIndex,
	}
	rp.targetHasLabel = len(hop.Target.Labels) > 0

	varLen := hop.Edge.VarLength || hop.Edge.MinHops != nil || hop.Edge.MaxHops != nil
	if varLen {
		rp.varLen = true
		rp.minHops = 1
		rp.maxHops = -1
		if hop.Edge.MinHops != nil {
			rp.minHops = *hop.Edge.MinHops
		}
		if hop.Edge.MaxHops != nil {
			rp.maxHops = *hop.Edge.MaxHops
		}
		rp.cteName = t.ctx.nextCTE()
		rp.edgePattern = hop.Edge
		if hop.Edge.Variable != "" {
			v, err := t.ctx.bind(hop.Edge.Variable, kindVarLengthEdge, "")
			if err != nil {
				return nil, err
			}
			v.pathCTE = rp.cteName
			rp.edgeAlias = rp.cteName
		} else {
			rp.edgeAlias = rp.cteName
		}
		return rp, nil
	}

	if hop.Edge.Variable != "" {
		if sv, ok := t.ctx.lookup(hop.Edge.Variable); ok {
			if sv.kind != kindEdge {
				return nil, alreadyBound(hop.Edge.Variable)
			}
			// Reused edge variable: keep the alias and record the
			// original endpoints. The plan builder checks the edge's
			// endpoints against this hop's nodes, not these fields.
			rp.edgeAlias = sv.alias
			rp.edgeNew = false
			if orig := t.findRelPattern(sv.alias); orig != nil {
				rp.boundEdgeSrc = orig.srcAlias
				rp.boundEdgeTgt = orig.tgtAlias
			}
			return rp, nil
		}
	}
	rp.edgeAlias = t.ctx.nextAlias("e")
	rp.edgeNew = true
	if hop.Edge.Variable != "" {
		if _, err := t.ctx.bind(hop.Edge.Variable, kindEdge, rp.edgeAlias); err != nil {
			return nil, err
		}
	}
	t.ctx.edgeMetas[rp.edgeAlias] = &edgeMeta{pattern: hop.Edge, optional: optional}
	return rp, nil
}

func (t *Translator) findRelPattern(edgeAlias string) *relPattern {
	for _, rp := range t.ctx.relPatterns {
		if rp.edgeAlias == edgeAlias {
			return rp
		}
	}
	for _, rp := range t.ctx.preWithPatterns {
		if rp.edgeAlias == edgeAlias {
			return rp
		}
	}
	return nil
}
