package ast

// Expression is one node of the Cypher expression tree. The concrete types
// below are the only implementations.
type Expression interface {
	ExprType() string
}

// Literal is an inline scalar, list or null. Lists arrive as ListLiteral,
// maps as MapLiteral; Value here is a string, bool, int64, float64 or nil.
// IsFloat marks a numeric literal written with a decimal point or exponent so
// 2.0 keeps float semantics even when its value is integral; Text preserves
// the original spelling of float literals.
type Literal struct {
	Value   any    `json:"value"`
	IsFloat bool   `json:"isFloat,omitempty"`
	Text    string `json:"text,omitempty"`
}

func (*Literal) ExprType() string { return "literal" }

// Parameter references a query parameter ($name).
type Parameter struct {
	Name string `json:"name"`
}

func (*Parameter) ExprType() string { return "parameter" }

// Variable references a bound name: graph variable, WITH alias, UNWIND
// variable or comprehension variable.
type Variable struct {
	Name string `json:"name"`
}

func (*Variable) ExprType() string { return "variable" }

// Property is direct property access on a variable: v.key.
type Property struct {
	Variable string `json:"variable"`
	Key      string `json:"key"`
}

func (*Property) ExprType() string { return "property" }

// PropertyAccess is property access on an arbitrary base expression:
// (expr).key, including chained obj.k1.k2 where Base is itself a
// PropertyAccess or Property.
type PropertyAccess struct {
	Base Expression `json:"base"`
	Key  string     `json:"key"`
}

func (*PropertyAccess) ExprType() string { return "propertyAccess" }

// Subscript indexes a list or map: base[index].
type Subscript struct {
	Base  Expression `json:"base"`
	Index Expression `json:"index"`
}

func (*Subscript) ExprType() string { return "subscript" }

// FunctionCall invokes a built-in function or aggregation. Star marks
// count(*).
type FunctionCall struct {
	Name     string       `json:"name"`
	Args     []Expression `json:"args,omitempty"`
	Distinct bool         `json:"distinct,omitempty"`
	Star     bool         `json:"star,omitempty"`
}

func (*FunctionCall) ExprType() string { return "function" }

// Binary is an arithmetic or concatenation operator: + - * / % ^.
type Binary struct {
	Op    string     `json:"op"`
	Left  Expression `json:"left"`
	Right Expression `json:"right"`
}

func (*Binary) ExprType() string { return "binary" }

// Unary is a prefix operator: - or NOT.
type Unary struct {
	Op      string     `json:"op"`
	Operand Expression `json:"operand"`
}

func (*Unary) ExprType() string { return "unary" }

// Comparison is an (in)equality or ordering operator: = <> < <= > >=.
type Comparison struct {
	Op    string     `json:"op"`
	Left  Expression `json:"left"`
	Right Expression `json:"right"`
}

func (*Comparison) ExprType() string { return "comparison" }

// CaseWhen is one WHEN arm of a CASE expression.
type CaseWhen struct {
	When Expression `json:"when"`
	Then Expression `json:"then"`
}

// Case is a CASE expression. Test is nil for the searched form
// (CASE WHEN cond THEN ...); non-nil for the simple form (CASE x WHEN v ...).
type Case struct {
	Test  Expression  `json:"test,omitempty"`
	Whens []*CaseWhen `json:"whens"`
	Else  Expression  `json:"else,omitempty"`
}

func (*Case) ExprType() string { return "case" }

// MapLiteral is an inline map: {k1: expr, k2: expr}.
type MapLiteral struct {
	Entries map[string]Expression `json:"entries"`
	// EntryOrder preserves written key order for deterministic SQL.
	EntryOrder []string `json:"entryOrder,omitempty"`
}

func (*MapLiteral) ExprType() string { return "object" }

// ListLiteral is an inline list: [expr, expr, ...].
type ListLiteral struct {
	Items []Expression `json:"items"`
}

func (*ListLiteral) ExprType() string { return "list" }

// ListComprehension is [v IN list WHERE cond | projection]. Where and
// Projection are both optional.
type ListComprehension struct {
	Variable   string          `json:"variable"`
	List       Expression      `json:"list"`
	Where      *WhereCondition `json:"where,omitempty"`
	Projection Expression      `json:"projection,omitempty"`
}

func (*ListComprehension) ExprType() string { return "listComprehension" }

// PatternComprehension is [(a)-[e:T]->(b) WHERE cond | projection], with an
// optional path variable binding `p = pattern | p`.
type PatternComprehension struct {
	Pattern      *RelationshipPattern `json:"pattern"`
	PathVariable string               `json:"pathVariable,omitempty"`
	Where        *WhereCondition      `json:"where,omitempty"`
	Projection   Expression           `json:"projection"`
}

func (*PatternComprehension) ExprType() string { return "patternComprehension" }

// ListPredicateKind selects the quantifier of a ListPredicate.
type ListPredicateKind string

const (
	PredicateAll    ListPredicateKind = "all"
	PredicateAny    ListPredicateKind = "any"
	PredicateNone   ListPredicateKind = "none"
	PredicateSingle ListPredicateKind = "single"
)

// ListPredicate is all/any/none/single(v IN list WHERE cond).
type ListPredicate struct {
	Kind     ListPredicateKind `json:"kind"`
	Variable string            `json:"variable"`
	List     Expression        `json:"list"`
	Where    *WhereCondition   `json:"where"`
}

func (*ListPredicate) ExprType() string { return "listPredicate" }

// LabelPredicate tests node labels in expression position: n:Label.
type LabelPredicate struct {
	Variable string   `json:"variable"`
	Labels   []string `json:"labels"`
}

func (*LabelPredicate) ExprType() string { return "labelPredicate" }

// In tests list membership: needle IN list.
type In struct {
	Needle Expression `json:"needle"`
	List   Expression `json:"list"`
}

func (*In) ExprType() string { return "in" }

// StringOpKind selects the operator of a StringOp.
type StringOpKind string

const (
	StringContains   StringOpKind = "contains"
	StringStartsWith StringOpKind = "startsWith"
	StringEndsWith   StringOpKind = "endsWith"
)

// StringOp is CONTAINS / STARTS WITH / ENDS WITH in expression position.
type StringOp struct {
	Op    StringOpKind `json:"op"`
	Left  Expression   `json:"left"`
	Right Expression   `json:"right"`
}

func (*StringOp) ExprType() string { return "stringOp" }

// IsNull tests expr IS NULL / IS NOT NULL in expression position.
type IsNull struct {
	Expr    Expression `json:"expr"`
	Negated bool       `json:"negated,omitempty"`
}

func (*IsNull) ExprType() string { return "isNull" }
