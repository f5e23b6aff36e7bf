package cypher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// exprText renders an expression back to Cypher-ish text. Used for default
// column names (`RETURN n.age` yields a column named "n.age") and duplicate
// column detection; not a full pretty-printer.
func exprText(e ast.Expression) string {
	switch x := e.(type) {
	case *ast.Literal:
		switch v := x.Value.(type) {
		case nil:
			return "null"
		case string:
			return "'" + v + "'"
		case bool:
			return strconv.FormatBool(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case float64:
			if x.Text != "" {
				return x.Text
			}
			return strconv.FormatFloat(v, 'g', -1, 64)
		}
		return fmt.Sprintf("%v", x.Value)
	case *ast.Parameter:
		return "$" + x.Name
	case *ast.Variable:
		return x.Name
	case *ast.Property:
		return x.Variable + "." + x.Key
	case *ast.PropertyAccess:
		return exprText(x.Base) + "." + x.Key
	case *ast.Subscript:
		return exprText(x.Base) + "[" + exprText(x.Index) + "]"
	case *ast.FunctionCall:
		if x.Star {
			return x.Name + "(*)"
		}
		parts := make([]string, len(x.Args))
		for i, a := range x.Args {
			parts[i] = exprText(a)
		}
		inner := strings.Join(parts, ", ")
		if x.Distinct {
			inner = "DISTINCT " + inner
		}
		return x.Name + "(" + inner + ")"
	case *ast.Binary:
		return exprText(x.Left) + " " + x.Op + " " + exprText(x.Right)
	case *ast.Unary:
		return x.Op + exprText(x.Operand)
	case *ast.Comparison:
		return exprText(x.Left) + " " + x.Op + " " + exprText(x.Right)
	case *ast.Case:
		return "CASE"
	case *ast.MapLiteral:
		return "{...}"
	case *ast.ListLiteral:
		parts := make([]string, len(x.Items))
		for i, item := range x.Items {
			parts[i] = exprText(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *ast.ListComprehension:
		return "[" + x.Variable + " IN " + exprText(x.List) + " ...]"
	case *ast.PatternComprehension:
		return "[pattern]"
	case *ast.ListPredicate:
		return string(x.Kind) + "(" + x.Variable + " IN " + exprText(x.List) + " ...)"
	case *ast.LabelPredicate:
		return x.Variable + ":" + strings.Join(x.Labels, ":")
	case *ast.In:
		return exprText(x.Needle) + " IN " + exprText(x.List)
	case *ast.StringOp:
		return exprText(x.Left) + " " + string(x.Op) + " " + exprText(x.Right)
	case *ast.IsNull:
		if x.Negated {
			return exprText(x.Expr) + " IS NOT NULL"
		}
		return exprText(x.Expr) + " IS NULL"
	}
	return "expr"
}

// exprHasAggregate reports whether an expression contains an aggregate
// function call anywhere in its tree.
func exprHasAggregate(e ast.Expression) bool {
	switch x := e.(type) {
	case *ast.FunctionCall:
		if def, ok := functionTable[strings.ToLower(x.Name)]; ok && def.aggregate {
			return true
		}
		for _, a := range x.Args {
			if exprHasAggregate(a) {
				return true
			}
		}
	case *ast.Binary:
		return exprHasAggregate(x.Left) || exprHasAggregate(x.Right)
	case *ast.Unary:
		return exprHasAggregate(x.Operand)
	case *ast.Comparison:
		return exprHasAggregate(x.Left) || exprHasAggregate(x.Right)
	case *ast.PropertyAccess:
		return exprHasAggregate(x.Base)
	case *ast.Subscript:
		return exprHasAggregate(x.Base) || exprHasAggregate(x.Index)
	case *ast.Case:
		if x.Test != nil && exprHasAggregate(x.Test) {
			return true
		}
		for _, arm := range x.Whens {
			if exprHasAggregate(arm.When) || exprHasAggregate(arm.Then) {
				return true
			}
		}
		return x.Else != nil && exprHasAggregate(x.Else)
	case *ast.MapLiteral:
		for _, v := range x.Entries {
			if exprHasAggregate(v) {
				return true
			}
		}
	case *ast.ListLiteral:
		for _, v := range x.Items {
			if exprHasAggregate(v) {
				return true
			}
		}
	case *ast.ListComprehension:
		return exprHasAggregate(x.List)
	case *ast.In:
		return exprHasAggregate(x.Needle) || exprHasAggregate(x.List)
	case *ast.StringOp:
		return exprHasAggregate(x.Left) || exprHasAggregate(x.Right)
	case *ast.IsNull:
		return exprHasAggregate(x.Expr)
	}
	return false
}

// condReferencesAliases reports whether a WHERE tree references any of the
// given alias names as variables.
func condReferencesAliases(w *ast.WhereCondition, aliases map[string]bool) bool {
	if w == nil {
		return false
	}
	for _, e := range []ast.Expression{w.Left, w.Right, w.List, w.Expr} {
		if exprReferencesAliases(e, aliases) {
			return true
		}
	}
	if w.Predicate != nil && exprReferencesAliases(w.Predicate.List, aliases) {
		return true
	}
	if condReferencesAliases(w.Condition, aliases) {
		return true
	}
	for _, c := range w.Conditions {
		if condReferencesAliases(c, aliases) {
			return true
		}
	}
	return false
}

func exprReferencesAliases(e ast.Expression, aliases map[string]bool) bool {
	switch x := e.(type) {
	case nil:
		return false
	case *ast.Variable:
		return aliases[x.Name]
	case *ast.Property:
		return aliases[x.Variable]
	case *ast.PropertyAccess:
		return exprReferencesAliases(x.Base, aliases)
	case *ast.Subscript:
		return exprReferencesAliases(x.Base, aliases) || exprReferencesAliases(x.Index, aliases)
	case *ast.FunctionCall:
		for _, a := range x.Args {
			if exprReferencesAliases(a, aliases) {
				return true
			}
		}
	case *ast.Binary:
		return exprReferencesAliases(x.Left, aliases) || exprReferencesAliases(x.Right, aliases)
	case *ast.Unary:
		return exprReferencesAliases(x.Operand, aliases)
	case *ast.Comparison:
		return exprReferencesAliases(x.Left, aliases) || exprReferencesAliases(x.Right, aliases)
	case *ast.Case:
		if x.Test != nil && exprReferencesAliases(x.Test, aliases) {
			return true
		}
		for _, arm := range x.Whens {
			if exprReferencesAliases(arm.When, aliases) || exprReferencesAliases(arm.Then, aliases) {
				return true
			}
		}
		return x.Else != nil && exprReferencesAliases(x.Else, aliases)
	case *ast.MapLiteral:
		for _, v := range x.Entries {
			if exprReferencesAliases(v, aliases) {
				return true
			}
		}
	case *ast.ListLiteral:
		for _, v := range x.Items {
			if exprReferencesAliases(v, aliases) {
				return true
			}
		}
	case *ast.ListComprehension:
		return exprReferencesAliases(x.List, aliases)
	case *ast.ListPredicate:
		return exprReferencesAliases(x.List, aliases)
	case *ast.In:
		return exprReferencesAliases(x.Needle, aliases) || exprReferencesAliases(x.List, aliases)
	case *ast.StringOp:
		return exprReferencesAliases(x.Left, aliases) || exprReferencesAliases(x.Right, aliases)
	case *ast.IsNull:
		return exprReferencesAliases(x.Expr, aliases)
	}
	return false
}

// exprReferencesGraphVars reports whether the expression mentions any bound
// graph variable.
func (t *Translator) exprReferencesGraphVars(e ast.Expression) bool {
	names := map[string]bool{}
	for name := range t.ctx.vars {
		names[name] = true
	}
	return exprReferencesAliases(e, names)
}
