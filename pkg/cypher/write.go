package cypher

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// Write clauses emit their own statements immediately, in clause order. The
// caller must execute them in that order: later statements reference rows
// created by earlier ones.

// marshalJSONValue renders a Go value as JSON text for parameter binding.
func marshalJSONValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", typeMismatchf("value cannot be represented as JSON: %v", err)
	}
	return string(b), nil
}

func (t *Translator) translateCreate(c *ast.CreateClause) error {
	for _, p := range c.Patterns {
		if p.Node != nil && len(p.Chain) == 0 {
			if _, err := t.createNode(p.Node); err != nil {
				return err
			}
			continue
		}
		for _, hop := range p.Chain {
			if err := t.createHop(hop); err != nil {
				return err
			}
		}
	}
	return nil
}

// createNode inserts one node, or resolves an endpoint reuse. CREATE cannot
// rebind a variable with new labels or properties.
func (t *Translator) createNode(np *ast.NodePattern) (*scopeVar, error) {
	if np.Variable != "" {
		if sv, bound := t.ctx.lookup(np.Variable); bound {
			if sv.kind != kindNode {
				return nil, alreadyBound(np.Variable)
			}
			if len(np.Labels) > 0 || len(np.Properties) > 0 {
				return nil, alreadyBound(np.Variable)
			}
			return sv, nil
		}
	}
	id := uuid.NewString()
	labelJSON, err := marshalJSONValue(np.Labels)
	if err != nil {
		return nil, err
	}
	if np.Labels == nil {
		labelJSON = "[]"
	}
	props, err := t.createProperties(np.Properties, np.PropertyOrder)
	if err != nil {
		return nil, err
	}

	var w sqlBuilder
	w.write("INSERT INTO nodes (id, label, properties) VALUES (")
	w.writeParam(id)
	w.write(", ")
	w.writeParam(labelJSON)
	w.write(", ")
	w.writeFragment(props)
	w.write(")")
	f := w.fragment()
	t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})

	sv := &scopeVar{kind: kindNode, id: id}
	if np.Variable != "" {
		sv.name = np.Variable
		t.ctx.vars[np.Variable] = sv
		t.ctx.createdProps[np.Variable] = np.Properties
	}
	return sv, nil
}

// createProperties renders a pattern's property map as one fragment: a
// single JSON parameter when every value is static, a json_set chain when
// any value needs SQL evaluation.
func (t *Translator) createProperties(props map[string]ast.Expression, order []string) (fragment, error) {
	keys := order
	if keys == nil {
		keys = sortedKeys(props)
	}
	static := map[string]any{}
	allStatic := true
	for _, k := range keys {
		if v, ok := t.resolveCreateValue(props[k]); ok {
			if f, isF := v.(float64); isF && (math.IsInf(f, 0) || math.IsNaN(f)) {
				return fragment{}, typeMismatchf("property `%s` is not a finite number", k)
			}
			static[k] = v
		} else {
			allStatic = false
		}
	}
	if allStatic {
		text, err := marshalJSONValue(static)
		if err != nil {
			return fragment{}, err
		}
		if len(static) == 0 {
			text = "{}"
		}
		return frag("?", text), nil
	}
	var w sqlBuilder
	w.write("json_set('{}'")
	for _, k := range keys {
		w.write(", '$." + k + "', ")
		if v, ok := static[k]; ok {
			p, err := t.bindValue(v)
			if err != nil {
				return fragment{}, err
			}
			w.writeFragment(p.fragment)
			continue
		}
		p, err := t.translateJSONValue(props[k])
		if err != nil {
			return fragment{}, err
		}
		if p.kind == kList || p.kind == kMap {
			p.fragment = wrapFragment("json(", p.fragment, ")")
		}
		w.writeFragment(p.fragment)
	}
	w.write(")")
	return w.fragment(), nil
}

// resolveCreateValue resolves a property value statically: literals,
// parameters, and property references to nodes created earlier in the same
// clause sequence.
func (t *Translator) resolveCreateValue(e ast.Expression) (any, bool) {
	if v, ok := t.staticValue(e); ok {
		return v, true
	}
	if prop, ok := e.(*ast.Property); ok {
		if props, created := t.ctx.createdProps[prop.Variable]; created {
			if inner, exists := props[prop.Key]; exists {
				return t.resolveCreateValue(inner)
			}
			return nil, true
		}
	}
	return nil, false
}

func (t *Translator) createHop(hop *ast.RelationshipPattern) error {
	if hop.Edge == nil || len(hop.Edge.Types) != 1 {
		return syntaxErrorf("CREATE requires exactly one relationship type")
	}
	if hop.Edge.VarLength || hop.Edge.MinHops != nil {
		return unsupportedf("cannot CREATE a variable-length relationship")
	}
	src, err := t.createEndpoint(hop.Source)
	if err != nil {
		return err
	}
	tgt, err := t.createEndpoint(hop.Target)
	if err != nil {
		return err
	}
	if hop.Edge.Direction == ast.DirectionLeft {
		src, tgt = tgt, src
	}
	id := uuid.NewString()
	props, err := t.createProperties(hop.Edge.Properties, hop.Edge.PropertyOrder)
	if err != nil {
		return err
	}

	if src.alias != "" || tgt.alias != "" {
		// An endpoint bound by MATCH has no known id at translation time:
		// the insert selects it from the match topology.
		ctes, err := t.buildVarLenCTEs()
		if err != nil {
			return err
		}
		rs, err := t.buildRowSource(ctes)
		if err != nil {
			return err
		}
		var w sqlBuilder
		w.write("INSERT INTO edges (id, type, source_id, target_id, properties) ")
		if len(rs.ctes) > 0 {
			w.write("WITH RECURSIVE ")
			w.writeJoined(", ", rs.ctes)
			w.write(" ")
		}
		w.write("SELECT ")
		w.writeParam(id)
		w.write(", ")
		w.writeParam(hop.Edge.Types[0])
		w.write(", ")
		w.writeFragment(endpointRef(src))
		w.write(", ")
		w.writeFragment(endpointRef(tgt))
		w.write(", ")
		w.writeFragment(props)
		w.writeFragment(rs.from)
		if len(rs.where) > 0 {
			w.write(" WHERE ")
			w.writeJoined(" AND ", rs.where)
		}
		f := w.fragment()
		t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
	} else {
		var w sqlBuilder
		w.write("INSERT INTO edges (id, type, source_id, target_id, properties) VALUES (")
		w.writeParam(id)
		w.write(", ")
		w.writeParam(hop.Edge.Types[0])
		w.write(", ")
		w.writeParam(src.id)
		w.write(", ")
		w.writeParam(tgt.id)
		w.write(", ")
		w.writeFragment(props)
		w.write(")")
		f := w.fragment()
		t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
	}

	if hop.Edge.Variable != "" {
		if _, bound := t.ctx.lookup(hop.Edge.Variable); bound {
			return alreadyBound(hop.Edge.Variable)
		}
		t.ctx.vars[hop.Edge.Variable] = &scopeVar{name: hop.Edge.Variable, kind: kindEdge, id: id}
	}
	return nil
}

func endpointRef(sv *scopeVar) fragment {
	if sv.alias != "" {
		return frag(sv.alias + ".id")
	}
	return frag("?", sv.id)
}

func (t *Translator) createEndpoint(np *ast.NodePattern) (*scopeVar, error) {
	if np.Variable != "" {
		if sv, bound := t.ctx.lookup(np.Variable); bound {
			if sv.kind != kindNode {
				return nil, alreadyBound(np.Variable)
			}
			if len(np.Labels) > 0 || len(np.Properties) > 0 {
				return nil, alreadyBound(np.Variable)
			}
			return sv, nil
		}
	}
	return t.createNode(np)
}

// translateMerge emits match-or-create for a single node pattern.
// Relationship MERGE is the executor's job.
func (t *Translator) translateMerge(m *ast.MergeClause) error {
	if m.Pattern == nil {
		return malformedf("MERGE without a pattern")
	}
	if len(m.Pattern.Chain) > 0 {
		return unsupportedf("MERGE on a relationship pattern is handled by the executor")
	}
	np := m.Pattern.Node
	if np == nil {
		return malformedf("MERGE without a pattern")
	}
	keys := np.PropertyOrder
	if keys == nil {
		keys = sortedKeys(np.Properties)
	}
	for _, k := range keys {
		if v, ok := t.staticValue(np.Properties[k]); ok && v == nil {
			return invalidArgumentf("cannot MERGE on null property `%s`", k)
		}
	}

	id := uuid.NewString()
	labelJSON, err := marshalJSONValue(np.Labels)
	if err != nil {
		return err
	}
	if np.Labels == nil {
		labelJSON = "[]"
	}
	props, err := t.createProperties(np.Properties, np.PropertyOrder)
	if err != nil {
		return err
	}

	var w sqlBuilder
	w.write("INSERT OR IGNORE INTO nodes (id, label, properties) SELECT ")
	w.writeParam(id)
	w.write(", ")
	w.writeParam(labelJSON)
	w.write(", ")
	w.writeFragment(props)
	w.write(" WHERE NOT EXISTS (SELECT 1 FROM nodes WHERE label = ")
	w.writeParam(labelJSON)
	for _, k := range keys {
		val, err := t.translateExpr(np.Properties[k])
		if err != nil {
			return err
		}
		w.write(fmt.Sprintf(" AND json_extract(properties, '$.%s') = ", k))
		w.writeFragment(val.fragment)
	}
	w.write(")")
	f := w.fragment()
	t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})

	if np.Variable != "" {
		if _, bound := t.ctx.lookup(np.Variable); bound {
			return alreadyBound(np.Variable)
		}
		t.ctx.vars[np.Variable] = &scopeVar{name: np.Variable, kind: kindNode, id: id}
		t.ctx.createdProps[np.Variable] = np.Properties
	}
	return nil
}

// targetTable names the table a SET/REMOVE/DELETE variable lives in.
func targetTable(kind varKind) (string, error) {
	switch kind {
	case kindNode:
		return "nodes", nil
	case kindEdge:
		return "edges", nil
	}
	return "", typeMismatchf("cannot write through a %s variable", kind)
}

// updateTarget renders the WHERE restricting an UPDATE/DELETE to the rows a
// variable matches: a UUID equality for created rows, an id IN (SELECT ...)
// over the match topology otherwise.
func (t *Translator) updateTarget(sv *scopeVar) (fragment, error) {
	if sv.alias == "" {
		if sv.id == "" {
			return fragment{}, unknownVariable(sv.name)
		}
		return frag("id = ?", sv.id), nil
	}
	sel, err := t.rowSourceSelect(sv.alias + ".id")
	if err != nil {
		return fragment{}, err
	}
	return wrapFragment("id IN (", sel, ")"), nil
}

// rowSourceSelect renders `SELECT <what> FROM <match topology>`.
func (t *Translator) rowSourceSelect(what string) (fragment, error) {
	ctes, err := t.buildVarLenCTEs()
	if err != nil {
		return fragment{}, err
	}
	rs, err := t.buildRowSource(ctes)
	if err != nil {
		return fragment{}, err
	}
	var w sqlBuilder
	if len(rs.ctes) > 0 {
		w.write("WITH RECURSIVE ")
		w.writeJoined(", ", rs.ctes)
		w.write(" ")
	}
	w.write("SELECT " + what)
	w.writeFragment(rs.from)
	if len(rs.where) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", rs.where)
	}
	return w.fragment(), nil
}

// setValueFragment translates a SET value. Values over matched rows that
// dereference graph variables become a correlated subquery against the
// match topology keyed on the updated row; values over created rows use the
// created-row resolution built into the expression translator.
func (t *Translator) setValueFragment(sv *scopeVar, table string, value ast.Expression) (fragment, error) {
	if sv.alias != "" && t.exprReferencesGraphVars(value) {
		p, err := t.translateJSONValue(value)
		if err != nil {
			return fragment{}, err
		}
		var w sqlBuilder
		w.write("(")
		sel, err := t.rowSourceSelectFragment(p.fragment, sv.alias+".id = "+table+".id")
		if err != nil {
			return fragment{}, err
		}
		w.writeFragment(sel)
		w.write(")")
		return w.fragment(), nil
	}
	p, err := t.translateJSONValue(value)
	if err != nil {
		return fragment{}, err
	}
	if p.kind == kList || p.kind == kMap {
		p.fragment = wrapFragment("json(", p.fragment, ")")
	}
	return p.fragment, nil
}

func (t *Translator) rowSourceSelectFragment(what fragment, extraWhere string) (fragment, error) {
	ctes, err := t.buildVarLenCTEs()
	if err != nil {
		return fragment{}, err
	}
	rs, err := t.buildRowSource(ctes)
	if err != nil {
		return fragment{}, err
	}
	var w sqlBuilder
	if len(rs.ctes) > 0 {
		w.write("WITH RECURSIVE ")
		w.writeJoined(", ", rs.ctes)
		w.write(" ")
	}
	w.write("SELECT ")
	w.writeFragment(what)
	w.writeFragment(rs.from)
	where := append([]fragment{}, rs.where...)
	if extraWhere != "" {
		where = append(where, frag(extraWhere))
	}
	if len(where) > 0 {
		w.write(" WHERE ")
		w.writeJoined(" AND ", where)
	}
	return w.fragment(), nil
}

func (t *Translator) translateSet(s *ast.SetClause) error {
	for _, item := range s.Items {
		sv, ok := t.ctx.lookup(item.Variable)
		if !ok {
			return unknownVariable(item.Variable)
		}
		table, err := targetTable(sv.kind)
		if err != nil {
			return err
		}
		if len(item.Labels) > 0 {
			if sv.kind == kindEdge {
				return typeMismatchf("cannot SET labels on a relationship")
			}
			if err := t.setLabels(sv, item.Labels); err != nil {
				return err
			}
			continue
		}

		target, err := t.updateTarget(sv)
		if err != nil {
			return err
		}
		var w sqlBuilder
		switch {
		case item.Property != "":
			val, err := t.setValueFragment(sv, table, item.Value)
			if err != nil {
				return err
			}
			w.write("UPDATE " + table + " SET properties = json_set(properties, '$." + item.Property + "', ")
			w.writeFragment(val)
			w.write(")")
		case item.Replace:
			val, err := t.setValueFragment(sv, table, item.Value)
			if err != nil {
				return err
			}
			w.write("UPDATE " + table + " SET properties = ")
			w.writeFragment(val)
		case item.Merge:
			// json_patch applies the merge and drops null-valued keys.
			val, err := t.setValueFragment(sv, table, item.Value)
			if err != nil {
				return err
			}
			w.write("UPDATE " + table + " SET properties = json_patch(properties, ")
			w.writeFragment(val)
			w.write(")")
		default:
			return malformedf("SET item on `%s` has no assignment", item.Variable)
		}
		w.write(" WHERE ")
		w.writeFragment(target)
		f := w.fragment()
		t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
	}
	return nil
}

// setLabels adds labels as a JSON array union: existing labels plus the new
// ones, deduplicated.
func (t *Translator) setLabels(sv *scopeVar, labels []string) error {
	target, err := t.updateTarget(sv)
	if err != nil {
		return err
	}
	var w sqlBuilder
	w.write("UPDATE nodes SET label = (SELECT json_group_array(value) FROM (SELECT value FROM json_each(label)")
	for _, l := range labels {
		w.write(" UNION SELECT ")
		w.writeParam(l)
	}
	w.write(")) WHERE ")
	w.writeFragment(target)
	f := w.fragment()
	t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
	return nil
}

func (t *Translator) translateRemove(r *ast.RemoveClause) error {
	for _, item := range r.Items {
		sv, ok := t.ctx.lookup(item.Variable)
		if !ok {
			return unknownVariable(item.Variable)
		}
		table, err := targetTable(sv.kind)
		if err != nil {
			return err
		}
		target, err := t.updateTarget(sv)
		if err != nil {
			return err
		}
		var w sqlBuilder
		switch {
		case item.Property != "":
			w.write("UPDATE " + table + " SET properties = json_remove(properties, '$." + item.Property + "') WHERE ")
			w.writeFragment(target)
		case len(item.Labels) > 0:
			if sv.kind == kindEdge {
				return typeMismatchf("cannot REMOVE labels from a relationship")
			}
			w.write("UPDATE nodes SET label = (SELECT COALESCE(json_group_array(value), json('[]')) FROM json_each(label) WHERE value NOT IN (")
			for i, l := range item.Labels {
				if i > 0 {
					w.write(", ")
				}
				w.writeParam(l)
			}
			w.write(")) WHERE ")
			w.writeFragment(target)
		default:
			return malformedf("REMOVE item on `%s` names nothing to remove", item.Variable)
		}
		f := w.fragment()
		t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
	}
	return nil
}

func (t *Translator) translateDelete(d *ast.DeleteClause) error {
	for _, name := range d.Variables {
		sv, ok := t.ctx.lookup(name)
		if !ok {
			return unknownVariable(name)
		}
		table, err := targetTable(sv.kind)
		if err != nil {
			return err
		}
		target, err := t.updateTarget(sv)
		if err != nil {
			return err
		}
		if d.Detach && sv.kind == kindNode {
			// Incident edges go first.
			var inner fragment
			if sv.alias == "" {
				inner = frag("source_id = ? OR target_id = ?", sv.id, sv.id)
			} else {
				sel, err := t.rowSourceSelect(sv.alias + ".id")
				if err != nil {
					return err
				}
				var b sqlBuilder
				b.write("source_id IN (")
				b.writeFragment(sel)
				b.write(") OR target_id IN (")
				sel2, err := t.rowSourceSelect(sv.alias + ".id")
				if err != nil {
					return err
				}
				b.writeFragment(sel2)
				b.write(")")
				inner = b.fragment()
			}
			var w sqlBuilder
			w.write("DELETE FROM edges WHERE ")
			w.writeFragment(inner)
			f := w.fragment()
			t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
		}
		var w sqlBuilder
		w.write("DELETE FROM " + table + " WHERE ")
		w.writeFragment(target)
		f := w.fragment()
		t.statements = append(t.statements, Statement{SQL: f.sql, Params: f.params})
	}
	return nil
}
