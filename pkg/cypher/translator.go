// Package cypher translates Cypher query trees into parameterized SQL for a
// SQLite-class engine whose schema is the fixed pair of tables
// nodes(id, label, properties) and edges(id, type, source_id, target_id,
// properties), with label a JSON array and properties a JSON object.
//
// The translator is a single-threaded, synchronous transformation: one
// Translator owns one mutable context and processes one query from first
// clause to last. Run concurrent queries with one Translator each.
//
// The emitted SQL relies on scalar functions the host registers on its
// SQLite connection: cypher_not, cypher_and, cypher_or, cypher_lt,
// cypher_lte, cypher_gt, cypher_gte, cypher_equals, cypher_case_eq and
// cypher_duration_seconds. The db package registers all of them.
package cypher

import (
	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// Statement is one parameterized SQL statement. Params holds exactly one
// value per `?` in SQL, in left-to-right order.
type Statement struct {
	SQL    string
	Params []any
}

// Result is a translated query: the statements to execute in order, and the
// result column names of the final projection (nil for a pure write query).
type Result struct {
	Statements    []Statement
	ReturnColumns []string
}

// Translator translates one query. Not safe for concurrent use; create one
// per query.
type Translator struct {
	ctx *transCtx

	// Transient expression-translation state.
	jsonBool    bool
	inAggregate bool
	lcDepth     int
	pcCount     int
	ppCount     int

	statements []Statement
	returnCols []string
	projected  bool
}

// NewTranslator returns a translator bound to one set of parameter values.
func NewTranslator(params map[string]any) *Translator {
	return &Translator{ctx: newTransCtx(params)}
}

// Translate converts a query with its parameter bindings into SQL. It is
// shorthand for NewTranslator(params).Translate(query).
func Translate(query *ast.Query, params map[string]any) (*Result, error) {
	return NewTranslator(params).Translate(query)
}

// Translate runs the clause dispatcher over the query. On error no SQL is
// returned: a failing clause never leaks partial statements.
func (t *Translator) Translate(query *ast.Query) (*Result, error) {
	if query == nil || len(query.Clauses) == 0 {
		return nil, syntaxErrorf("empty query")
	}
	// UNION splits the clause list; each side translates independently
	// against the same parameters.
	for i, c := range query.Clauses {
		if u, ok := c.(*ast.UnionClause); ok {
			return t.translateUnion(query.Clauses[:i], query.Clauses[i+1:], u.All)
		}
	}
	for _, c := range query.Clauses {
		if err := t.dispatch(c); err != nil {
			return nil, err
		}
	}
	if !t.projected && t.ctx.call != nil {
		stmt, cols, err := t.standaloneCall()
		if err != nil {
			return nil, err
		}
		t.statements = append(t.statements, stmt)
		t.returnCols = cols
	}
	return &Result{Statements: t.statements, ReturnColumns: t.returnCols}, nil
}

func (t *Translator) dispatch(c ast.Clause) error {
	switch x := c.(type) {
	case *ast.MatchClause:
		return t.registerMatch(x)
	case *ast.CreateClause:
		return t.translateCreate(x)
	case *ast.MergeClause:
		return t.translateMerge(x)
	case *ast.SetClause:
		return t.translateSet(x)
	case *ast.RemoveClause:
		return t.translateRemove(x)
	case *ast.DeleteClause:
		return t.translateDelete(x)
	case *ast.WithClause:
		return t.handleWith(x)
	case *ast.UnwindClause:
		return t.handleUnwind(x)
	case *ast.CallClause:
		return t.handleCall(x)
	case *ast.ReturnClause:
		stmt, cols, err := t.buildReturn(x)
		if err != nil {
			return err
		}
		t.statements = append(t.statements, stmt)
		t.returnCols = cols
		t.projected = true
		return nil
	case *ast.UnionClause:
		return syntaxErrorf("misplaced UNION")
	}
	return unsupportedf("unhandled clause %s", c.ClauseType())
}

func (t *Translator) translateUnion(left, right []ast.Clause, all bool) (*Result, error) {
	if len(left) == 0 || len(right) == 0 {
		return nil, syntaxErrorf("UNION requires a query on both sides")
	}
	lres, err := NewTranslator(t.ctx.params).Translate(&ast.Query{Clauses: left})
	if err != nil {
		return nil, err
	}
	rres, err := NewTranslator(t.ctx.params).Translate(&ast.Query{Clauses: right})
	if err != nil {
		return nil, err
	}
	if len(lres.Statements) != 1 || len(rres.Statements) != 1 {
		return nil, unsupportedf("UNION sides must each be a single read query")
	}
	if !sameColumns(lres.ReturnColumns, rres.ReturnColumns) {
		return nil, syntaxErrorf("all sub queries in a UNION must have the same column names")
	}
	op := " UNION "
	if all {
		op = " UNION ALL "
	}
	combined := Statement{
		SQL:    lres.Statements[0].SQL + op + rres.Statements[0].SQL,
		Params: append(append([]any{}, lres.Statements[0].Params...), rres.Statements[0].Params...),
	}
	return &Result{Statements: []Statement{combined}, ReturnColumns: lres.ReturnColumns}, nil
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
