package ast

// WhereOp tags the shape of a WhereCondition.
type WhereOp string

const (
	WhereComparison WhereOp = "comparison" // Left op Right
	WhereAnd        WhereOp = "and"
	WhereOr         WhereOp = "or"
	WhereXor        WhereOp = "xor"
	WhereNot        WhereOp = "not"
	WhereStringOp   WhereOp = "stringOp" // CONTAINS / STARTS WITH / ENDS WITH
	WhereIsNull     WhereOp = "isNull"
	WhereExists     WhereOp = "exists"         // EXISTS((a)-[:R]->(b))
	WherePattern    WhereOp = "pattern"        // bare pattern predicate
	WhereIn         WhereOp = "in"             // needle IN list
	WhereListPred   WhereOp = "listPredicate"  // all/any/none/single(...)
	WhereLabel      WhereOp = "labelPredicate" // n:Label
	WhereExpression WhereOp = "expression"     // bare boolean expression
)

// WhereCondition is one node of a WHERE predicate tree. Exactly the fields
// implied by Op are set; the rest are nil. Keeping this a single struct
// (rather than one type per shape) matches the JSON document form hosts
// ship and keeps the translator's dispatch in one switch.
type WhereCondition struct {
	Op WhereOp `json:"op"`

	// WhereComparison: Comparator one of = <> < <= > >=.
	Comparator string     `json:"comparator,omitempty"`
	Left       Expression `json:"left,omitempty"`
	Right      Expression `json:"right,omitempty"`

	// WhereAnd / WhereOr / WhereXor.
	Conditions []*WhereCondition `json:"conditions,omitempty"`

	// WhereNot.
	Condition *WhereCondition `json:"condition,omitempty"`

	// WhereStringOp.
	StringOp StringOpKind `json:"stringOp,omitempty"`

	// WhereIsNull.
	Negated bool `json:"negated,omitempty"`

	// WhereExists / WherePattern.
	Pattern *Pattern `json:"pattern,omitempty"`

	// WhereIn.
	List Expression `json:"list,omitempty"`

	// WhereListPred.
	Predicate *ListPredicate `json:"predicate,omitempty"`

	// WhereLabel.
	Variable string   `json:"variable,omitempty"`
	Labels   []string `json:"labels,omitempty"`

	// WhereExpression and the operand of WhereIsNull.
	Expr Expression `json:"expr,omitempty"`
}

// CondAnd joins conditions with AND.
func CondAnd(conds ...*WhereCondition) *WhereCondition {
	return &WhereCondition{Op: WhereAnd, Conditions: conds}
}

// CondOr joins conditions with OR.
func CondOr(conds ...*WhereCondition) *WhereCondition {
	return &WhereCondition{Op: WhereOr, Conditions: conds}
}

// CondNot negates a condition.
func CondNot(cond *WhereCondition) *WhereCondition {
	return &WhereCondition{Op: WhereNot, Condition: cond}
}

// CondCompare builds a comparison condition.
func CondCompare(op string, left, right Expression) *WhereCondition {
	return &WhereCondition{Op: WhereComparison, Comparator: op, Left: left, Right: right}
}
