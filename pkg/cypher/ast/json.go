package ast

import (
	"encoding/json"
	"fmt"
)

// Clauses and expressions are interfaces, so JSON documents carry a "type"
// discriminator alongside the payload fields. DecodeQuery reads the envelope
// form:
//
//	{"clauses": [{"type": "MATCH", "patterns": [...]}, ...]}

// DecodeQuery parses a JSON-encoded query document.
func DecodeQuery(data []byte) (*Query, error) {
	var raw struct {
		Clauses []json.RawMessage `json:"clauses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse query document: %w", err)
	}
	q := &Query{}
	for i, rc := range raw.Clauses {
		c, err := decodeClause(rc)
		if err != nil {
			return nil, fmt.Errorf("clause %d: %w", i, err)
		}
		q.Clauses = append(q.Clauses, c)
	}
	return q, nil
}

func decodeClause(data []byte) (Clause, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var c Clause
	switch head.Type {
	case "MATCH":
		c = &MatchClause{}
	case "OPTIONAL MATCH":
		c = &MatchClause{Optional: true}
	case "CREATE":
		c = &CreateClause{}
	case "MERGE":
		c = &MergeClause{}
	case "SET":
		c = &SetClause{}
	case "REMOVE":
		c = &RemoveClause{}
	case "DELETE":
		c = &DeleteClause{}
	case "RETURN":
		c = &ReturnClause{}
	case "WITH":
		c = &WithClause{}
	case "UNWIND":
		c = &UnwindClause{}
	case "UNION":
		c = &UnionClause{}
	case "CALL":
		c = &CallClause{}
	default:
		return nil, fmt.Errorf("unknown clause type %q", head.Type)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	// The envelope type wins over the payload's own optional flag.
	if m, ok := c.(*MatchClause); ok {
		m.Optional = head.Type == "OPTIONAL MATCH"
	}
	return c, nil
}

// exprEnvelope mirrors every concrete expression payload; Type selects which
// fields are meaningful. Decoding through one struct avoids a RawMessage
// re-parse per nested expression.
type exprEnvelope struct {
	Type string `json:"type"`

	Value   any    `json:"value"`
	IsFloat bool   `json:"isFloat"`
	Text    string `json:"text"`

	Name     string            `json:"name"`
	Variable string            `json:"variable"`
	Key      string            `json:"key"`
	Base     *ExpressionJSON   `json:"base"`
	Index    *ExpressionJSON   `json:"index"`
	Args     []*ExpressionJSON `json:"args"`
	Distinct bool              `json:"distinct"`
	Star     bool              `json:"star"`

	Op      string          `json:"op"`
	Left    *ExpressionJSON `json:"left"`
	Right   *ExpressionJSON `json:"right"`
	Operand *ExpressionJSON `json:"operand"`

	Test  *ExpressionJSON `json:"test"`
	Whens []struct {
		When *ExpressionJSON `json:"when"`
		Then *ExpressionJSON `json:"then"`
	} `json:"whens"`
	Else *ExpressionJSON `json:"else"`

	Entries    map[string]*ExpressionJSON `json:"entries"`
	EntryOrder []string                   `json:"entryOrder"`
	Items      []*ExpressionJSON          `json:"items"`

	List         *ExpressionJSON      `json:"list"`
	Where        *WhereCondition      `json:"where"`
	Projection   *ExpressionJSON      `json:"projection"`
	Pattern      *RelationshipPattern `json:"pattern"`
	PathVariable string               `json:"pathVariable"`
	Kind         ListPredicateKind    `json:"kind"`
	Labels       []string             `json:"labels"`
	Needle       *ExpressionJSON      `json:"needle"`
	Expr         *ExpressionJSON      `json:"expr"`
	Negated      bool                 `json:"negated"`
}

// ExpressionJSON wraps an Expression so interface-typed fields can round-trip
// through encoding/json. ast struct fields of type Expression are declared as
// the interface; hosts building ASTs in Go assign concrete types directly,
// while JSON documents decode via this wrapper.
type ExpressionJSON struct {
	Expression
}

// UnmarshalJSON decodes the discriminated envelope into a concrete expression.
func (w *ExpressionJSON) UnmarshalJSON(data []byte) error {
	var env exprEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	e, err := env.build()
	if err != nil {
		return err
	}
	w.Expression = e
	return nil
}

// MarshalJSON re-emits the envelope form.
func (w ExpressionJSON) MarshalJSON() ([]byte, error) {
	return marshalExpr(w.Expression)
}

func unwrap(w *ExpressionJSON) Expression {
	if w == nil {
		return nil
	}
	return w.Expression
}

func unwrapAll(ws []*ExpressionJSON) []Expression {
	if ws == nil {
		return nil
	}
	out := make([]Expression, len(ws))
	for i, w := range ws {
		out[i] = unwrap(w)
	}
	return out
}

func (env *exprEnvelope) build() (Expression, error) {
	switch env.Type {
	case "literal":
		v := env.Value
		// JSON numbers decode as float64; integral values without a float
		// marker are Cypher integers.
		if f, ok := v.(float64); ok && !env.IsFloat && f == float64(int64(f)) {
			v = int64(f)
		}
		return &Literal{Value: v, IsFloat: env.IsFloat, Text: env.Text}, nil
	case "parameter":
		return &Parameter{Name: env.Name}, nil
	case "variable":
		return &Variable{Name: env.Name}, nil
	case "property":
		return &Property{Variable: env.Variable, Key: env.Key}, nil
	case "propertyAccess":
		return &PropertyAccess{Base: unwrap(env.Base), Key: env.Key}, nil
	case "subscript":
		return &Subscript{Base: unwrap(env.Base), Index: unwrap(env.Index)}, nil
	case "function":
		return &FunctionCall{Name: env.Name, Args: unwrapAll(env.Args), Distinct: env.Distinct, Star: env.Star}, nil
	case "binary":
		return &Binary{Op: env.Op, Left: unwrap(env.Left), Right: unwrap(env.Right)}, nil
	case "unary":
		return &Unary{Op: env.Op, Operand: unwrap(env.Operand)}, nil
	case "comparison":
		return &Comparison{Op: env.Op, Left: unwrap(env.Left), Right: unwrap(env.Right)}, nil
	case "case":
		c := &Case{Test: unwrap(env.Test), Else: unwrap(env.Else)}
		for _, wh := range env.Whens {
			c.Whens = append(c.Whens, &CaseWhen{When: unwrap(wh.When), Then: unwrap(wh.Then)})
		}
		return c, nil
	case "object":
		m := &MapLiteral{Entries: map[string]Expression{}, EntryOrder: env.EntryOrder}
		for k, v := range env.Entries {
			m.Entries[k] = unwrap(v)
		}
		return m, nil
	case "list":
		return &ListLiteral{Items: unwrapAll(env.Items)}, nil
	case "listComprehension":
		return &ListComprehension{Variable: env.Variable, List: unwrap(env.List), Where: env.Where, Projection: unwrap(env.Projection)}, nil
	case "patternComprehension":
		return &PatternComprehension{Pattern: env.Pattern, PathVariable: env.PathVariable, Where: env.Where, Projection: unwrap(env.Projection)}, nil
	case "listPredicate":
		return &ListPredicate{Kind: env.Kind, Variable: env.Variable, List: unwrap(env.List), Where: env.Where}, nil
	case "labelPredicate":
		return &LabelPredicate{Variable: env.Variable, Labels: env.Labels}, nil
	case "in":
		return &In{Needle: unwrap(env.Needle), List: unwrap(env.List)}, nil
	case "stringOp":
		return &StringOp{Op: StringOpKind(env.Op), Left: unwrap(env.Left), Right: unwrap(env.Right)}, nil
	case "isNull":
		return &IsNull{Expr: unwrap(env.Expr), Negated: env.Negated}, nil
	}
	return nil, fmt.Errorf("unknown expression type %q", env.Type)
}

func marshalExpr(e Expression) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	// Splice the discriminator into the payload object.
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("expression %T did not marshal to an object", e)
	}
	head := fmt.Sprintf(`{"type":%q`, e.ExprType())
	if len(body) == 2 { // empty object
		return []byte(head + "}"), nil
	}
	return append([]byte(head+","), body[1:]...), nil
}
