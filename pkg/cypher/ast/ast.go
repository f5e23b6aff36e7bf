// Package ast defines the query tree consumed by the Cypher-to-SQL translator.
//
// The tree is produced by an external parser (or shipped as a JSON document by
// a host) and handed to cypher.Translate. Nothing in this package emits SQL.
package ast

// Query is a complete Cypher query: an ordered list of clauses.
type Query struct {
	Clauses []Clause `json:"clauses"`
}

// Clause is one top-level Cypher clause. The concrete types below are the
// only implementations.
type Clause interface {
	ClauseType() string
}

// Direction of a relationship pattern.
type Direction string

const (
	DirectionLeft  Direction = "left"  // (a)<-[r]-(b)
	DirectionRight Direction = "right" // (a)-[r]->(b)
	DirectionNone  Direction = "none"  // (a)-[r]-(b)
)

// NodePattern is a `(v:Label {prop: expr})` fragment.
type NodePattern struct {
	Variable   string                `json:"variable,omitempty"`
	Labels     []string              `json:"labels,omitempty"`
	Properties map[string]Expression `json:"properties,omitempty"`
	// PropertyOrder preserves the written order of Properties keys so the
	// emitted SQL and its parameters are deterministic.
	PropertyOrder []string `json:"propertyOrder,omitempty"`
}

// EdgePattern is the `-[r:TYPE*min..max {prop: expr}]->` fragment of a
// relationship pattern. MinHops/MaxHops are nil for a single-hop edge;
// MaxHops nil with VarLength set means unbounded depth.
type EdgePattern struct {
	Variable      string                `json:"variable,omitempty"`
	Types         []string              `json:"types,omitempty"`
	Direction     Direction             `json:"direction"`
	Properties    map[string]Expression `json:"properties,omitempty"`
	PropertyOrder []string              `json:"propertyOrder,omitempty"`
	MinHops       *int                  `json:"minHops,omitempty"`
	MaxHops       *int                  `json:"maxHops,omitempty"`
	VarLength     bool                  `json:"varLength,omitempty"`
}

// RelationshipPattern is one hop of a pattern chain: source, edge, target.
// A longer chain (a)-[e1]->(b)-[e2]->(c) arrives as two RelationshipPatterns
// sharing the middle node.
type RelationshipPattern struct {
	Source *NodePattern `json:"source"`
	Edge   *EdgePattern `json:"edge"`
	Target *NodePattern `json:"target"`
}

// Pattern is one comma-separated element of a MATCH/CREATE/MERGE pattern
// list: either a bare node or a relationship chain, optionally bound to a
// path variable (`p = (...)-[...]->(...)`).
type Pattern struct {
	Node         *NodePattern           `json:"node,omitempty"`
	Chain        []*RelationshipPattern `json:"chain,omitempty"`
	PathVariable string                 `json:"pathVariable,omitempty"`
}

// MatchClause covers MATCH and OPTIONAL MATCH.
type MatchClause struct {
	Patterns []*Pattern      `json:"patterns"`
	Optional bool            `json:"optional,omitempty"`
	Where    *WhereCondition `json:"where,omitempty"`
}

func (c *MatchClause) ClauseType() string {
	if c.Optional {
		return "OPTIONAL MATCH"
	}
	return "MATCH"
}

// CreateClause creates the nodes and relationships of its patterns.
type CreateClause struct {
	Patterns []*Pattern `json:"patterns"`
}

func (c *CreateClause) ClauseType() string { return "CREATE" }

// MergeClause matches-or-creates a single pattern.
type MergeClause struct {
	Pattern *Pattern `json:"pattern"`
}

func (c *MergeClause) ClauseType() string { return "MERGE" }

// SetItem is one assignment of a SET clause: a property set
// (Variable.Property = Value), a label addition (Labels non-empty), a map
// replace (Replace) or a map merge (Merge).
type SetItem struct {
	Variable string     `json:"variable"`
	Property string     `json:"property,omitempty"`
	Value    Expression `json:"value,omitempty"`
	Labels   []string   `json:"labels,omitempty"`
	Replace  bool       `json:"replace,omitempty"`
	Merge    bool       `json:"merge,omitempty"`
}

// SetClause covers SET in all four forms.
type SetClause struct {
	Items []*SetItem `json:"items"`
}

func (c *SetClause) ClauseType() string { return "SET" }

// RemoveItem removes a property or labels from a variable.
type RemoveItem struct {
	Variable string   `json:"variable"`
	Property string   `json:"property,omitempty"`
	Labels   []string `json:"labels,omitempty"`
}

// RemoveClause covers REMOVE.
type RemoveClause struct {
	Items []*RemoveItem `json:"items"`
}

func (c *RemoveClause) ClauseType() string { return "REMOVE" }

// DeleteClause deletes the named variables. Detach first deletes edges
// incident to deleted nodes.
type DeleteClause struct {
	Variables []string `json:"variables"`
	Detach    bool     `json:"detach,omitempty"`
}

func (c *DeleteClause) ClauseType() string { return "DELETE" }

// SortItem is one ORDER BY key.
type SortItem struct {
	Expression Expression `json:"expression"`
	Descending bool       `json:"descending,omitempty"`
}

// ReturnItem is one projected column. Star marks a bare `*`.
type ReturnItem struct {
	Expression Expression `json:"expression,omitempty"`
	Alias      string     `json:"alias,omitempty"`
	Star       bool       `json:"star,omitempty"`
}

// ReturnClause is the terminal projection of a query part.
type ReturnClause struct {
	Items    []*ReturnItem `json:"items"`
	Distinct bool          `json:"distinct,omitempty"`
	OrderBy  []*SortItem   `json:"orderBy,omitempty"`
	Skip     Expression    `json:"skip,omitempty"`
	Limit    Expression    `json:"limit,omitempty"`
}

func (c *ReturnClause) ClauseType() string { return "RETURN" }

// WithClause rebinds the scope between query parts. Structurally a
// ReturnClause plus an optional WHERE on the projected values.
type WithClause struct {
	ReturnClause
	Where *WhereCondition `json:"where,omitempty"`
}

func (c *WithClause) ClauseType() string { return "WITH" }

// UnwindClause expands a list expression into rows.
type UnwindClause struct {
	Expression Expression `json:"expression"`
	Variable   string     `json:"variable"`
}

func (c *UnwindClause) ClauseType() string { return "UNWIND" }

// UnionClause splits the query into two sides combined by UNION [ALL].
// Clauses before it form the left side, clauses after it the right.
type UnionClause struct {
	All bool `json:"all,omitempty"`
}

func (c *UnionClause) ClauseType() string { return "UNION" }

// CallClause invokes a built-in procedure (db.labels, db.relationshipTypes).
type CallClause struct {
	Procedure string          `json:"procedure"`
	Yield     string          `json:"yield,omitempty"`
	Where     *WhereCondition `json:"where,omitempty"`
}

func (c *CallClause) ClauseType() string { return "CALL" }

// Int returns a pointer to v, for EdgePattern hop bounds.
func Int(v int) *int { return &v }
