package ast

import "encoding/json"

// UnmarshalJSON decoders for every struct that holds interface-typed
// Expression fields. Each decodes into a shadow struct whose expression
// fields are *ExpressionJSON, then unwraps. Encoding of query documents is a
// host/parser concern; this package only decodes them.

func decodeExprMap(m map[string]*ExpressionJSON) map[string]Expression {
	if m == nil {
		return nil
	}
	out := make(map[string]Expression, len(m))
	for k, v := range m {
		out[k] = unwrap(v)
	}
	return out
}

// UnmarshalJSON decodes a node pattern.
func (n *NodePattern) UnmarshalJSON(data []byte) error {
	var raw struct {
		Variable      string                     `json:"variable"`
		Labels        []string                   `json:"labels"`
		Properties    map[string]*ExpressionJSON `json:"properties"`
		PropertyOrder []string                   `json:"propertyOrder"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	n.Variable = raw.Variable
	n.Labels = raw.Labels
	n.Properties = decodeExprMap(raw.Properties)
	n.PropertyOrder = raw.PropertyOrder
	return nil
}

// UnmarshalJSON decodes an edge pattern.
func (e *EdgePattern) UnmarshalJSON(data []byte) error {
	var raw struct {
		Variable      string                     `json:"variable"`
		Types         []string                   `json:"types"`
		Direction     Direction                  `json:"direction"`
		Properties    map[string]*ExpressionJSON `json:"properties"`
		PropertyOrder []string                   `json:"propertyOrder"`
		MinHops       *int                       `json:"minHops"`
		MaxHops       *int                       `json:"maxHops"`
		VarLength     bool                       `json:"varLength"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Variable = raw.Variable
	e.Types = raw.Types
	e.Direction = raw.Direction
	if e.Direction == "" {
		e.Direction = DirectionNone
	}
	e.Properties = decodeExprMap(raw.Properties)
	e.PropertyOrder = raw.PropertyOrder
	e.MinHops = raw.MinHops
	e.MaxHops = raw.MaxHops
	e.VarLength = raw.VarLength || raw.MinHops != nil || raw.MaxHops != nil
	return nil
}

// UnmarshalJSON decodes a SET item.
func (s *SetItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Variable string          `json:"variable"`
		Property string          `json:"property"`
		Value    *ExpressionJSON `json:"value"`
		Labels   []string        `json:"labels"`
		Replace  bool            `json:"replace"`
		Merge    bool            `json:"merge"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Variable = raw.Variable
	s.Property = raw.Property
	s.Value = unwrap(raw.Value)
	s.Labels = raw.Labels
	s.Replace = raw.Replace
	s.Merge = raw.Merge
	return nil
}

// UnmarshalJSON decodes a sort key.
func (s *SortItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Expression *ExpressionJSON `json:"expression"`
		Descending bool            `json:"descending"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Expression = unwrap(raw.Expression)
	s.Descending = raw.Descending
	return nil
}

// UnmarshalJSON decodes a return item.
func (r *ReturnItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Expression *ExpressionJSON `json:"expression"`
		Alias      string          `json:"alias"`
		Star       bool            `json:"star"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Expression = unwrap(raw.Expression)
	r.Alias = raw.Alias
	r.Star = raw.Star
	return nil
}

// UnmarshalJSON decodes a RETURN clause.
func (r *ReturnClause) UnmarshalJSON(data []byte) error {
	var raw struct {
		Items    []*ReturnItem   `json:"items"`
		Distinct bool            `json:"distinct"`
		OrderBy  []*SortItem     `json:"orderBy"`
		Skip     *ExpressionJSON `json:"skip"`
		Limit    *ExpressionJSON `json:"limit"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Items = raw.Items
	r.Distinct = raw.Distinct
	r.OrderBy = raw.OrderBy
	r.Skip = unwrap(raw.Skip)
	r.Limit = unwrap(raw.Limit)
	return nil
}

// UnmarshalJSON decodes a WITH clause.
func (w *WithClause) UnmarshalJSON(data []byte) error {
	if err := w.ReturnClause.UnmarshalJSON(data); err != nil {
		return err
	}
	var raw struct {
		Where *WhereCondition `json:"where"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.Where = raw.Where
	return nil
}

// UnmarshalJSON decodes an UNWIND clause.
func (u *UnwindClause) UnmarshalJSON(data []byte) error {
	var raw struct {
		Expression *ExpressionJSON `json:"expression"`
		Variable   string          `json:"variable"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Expression = unwrap(raw.Expression)
	u.Variable = raw.Variable
	return nil
}

// UnmarshalJSON decodes a list predicate.
func (p *ListPredicate) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind     ListPredicateKind `json:"kind"`
		Variable string            `json:"variable"`
		List     *ExpressionJSON   `json:"list"`
		Where    *WhereCondition   `json:"where"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Kind = raw.Kind
	p.Variable = raw.Variable
	p.List = unwrap(raw.List)
	p.Where = raw.Where
	return nil
}

// UnmarshalJSON decodes a WHERE condition node.
func (w *WhereCondition) UnmarshalJSON(data []byte) error {
	var raw struct {
		Op         WhereOp           `json:"op"`
		Comparator string            `json:"comparator"`
		Left       *ExpressionJSON   `json:"left"`
		Right      *ExpressionJSON   `json:"right"`
		Conditions []*WhereCondition `json:"conditions"`
		Condition  *WhereCondition   `json:"condition"`
		StringOp   StringOpKind      `json:"stringOp"`
		Negated    bool              `json:"negated"`
		Pattern    *Pattern          `json:"pattern"`
		List       *ExpressionJSON   `json:"list"`
		Predicate  *ListPredicate    `json:"predicate"`
		Variable   string            `json:"variable"`
		Labels     []string          `json:"labels"`
		Expr       *ExpressionJSON   `json:"expr"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	w.Op = raw.Op
	w.Comparator = raw.Comparator
	w.Left = unwrap(raw.Left)
	w.Right = unwrap(raw.Right)
	w.Conditions = raw.Conditions
	w.Condition = raw.Condition
	w.StringOp = raw.StringOp
	w.Negated = raw.Negated
	w.Pattern = raw.Pattern
	w.List = unwrap(raw.List)
	w.Predicate = raw.Predicate
	w.Variable = raw.Variable
	w.Labels = raw.Labels
	w.Expr = unwrap(raw.Expr)
	return nil
}
