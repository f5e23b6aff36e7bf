package db

import (
	"encoding/json"
	"strings"

	"github.com/co-l/nicefox/pkg/temporal"
)

// Scalar functions the translator's SQL depends on. All are deterministic
// and registered on every connection by the driver's ConnectHook.
//
// Boolean values cross the SQL boundary as integers (0/1), JSON booleans
// ('true'/'false') or NULL; the ternary helpers below accept all three.

// ternary is SQL three-valued logic: true, false or unknown.
type ternary int

const (
	tUnknown ternary = iota
	tFalse
	tTrue
)

func (t ternary) value() any {
	switch t {
	case tTrue:
		return int64(1)
	case tFalse:
		return int64(0)
	}
	return nil
}

func toTernary(v any) ternary {
	switch x := v.(type) {
	case nil:
		return tUnknown
	case bool:
		if x {
			return tTrue
		}
		return tFalse
	case int64:
		if x != 0 {
			return tTrue
		}
		return tFalse
	case float64:
		if x != 0 {
			return tTrue
		}
		return tFalse
	case []byte:
		return toTernary(string(x))
	case string:
		switch strings.ToLower(x) {
		case "true":
			return tTrue
		case "false":
			return tFalse
		}
	}
	return tUnknown
}

func cypherNot(v any) any {
	switch toTernary(v) {
	case tTrue:
		return int64(0)
	case tFalse:
		return int64(1)
	}
	return nil
}

func cypherAnd(a, b any) any {
	ta, tb := toTernary(a), toTernary(b)
	switch {
	case ta == tFalse || tb == tFalse:
		return int64(0)
	case ta == tTrue && tb == tTrue:
		return int64(1)
	}
	return nil
}

func cypherOr(a, b any) any {
	ta, tb := toTernary(a), toTernary(b)
	switch {
	case ta == tTrue || tb == tTrue:
		return int64(1)
	case ta == tFalse && tb == tFalse:
		return int64(0)
	}
	return nil
}

// orderCategory groups values into Cypher's ordering families. Only values
// of the same category compare; everything else is unknown.
type orderCategory int

const (
	catNone orderCategory = iota
	catNumber
	catString
	catBoolean
	catTemporal
)

type orderKey struct {
	cat orderCategory
	num float64
	str string
}

func orderKeyOf(v any) orderKey {
	switch x := v.(type) {
	case nil:
		return orderKey{cat: catNone}
	case int64:
		return orderKey{cat: catNumber, num: float64(x)}
	case float64:
		return orderKey{cat: catNumber, num: x}
	case bool:
		n := 0.0
		if x {
			n = 1
		}
		return orderKey{cat: catBoolean, num: n}
	case []byte:
		return orderKeyOf(string(x))
	case string:
		// Temporal strings order by their UTC-normalized scalar key.
		if key, ok := temporal.UTCKey(x); ok {
			return orderKey{cat: catTemporal, num: float64(key)}
		}
		trimmed := strings.TrimSpace(x)
		if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') && json.Valid([]byte(trimmed)) {
			// Lists, maps, nodes and relationships are not orderable.
			return orderKey{cat: catNone}
		}
		return orderKey{cat: catString, str: x}
	}
	return orderKey{cat: catNone}
}

func cypherCompare(a, b any) (int, bool) {
	ka, kb := orderKeyOf(a), orderKeyOf(b)
	if ka.cat == catNone || kb.cat == catNone || ka.cat != kb.cat {
		return 0, false
	}
	if ka.cat == catString {
		return strings.Compare(ka.str, kb.str), true
	}
	switch {
	case ka.num < kb.num:
		return -1, true
	case ka.num > kb.num:
		return 1, true
	}
	return 0, true
}

func cypherLt(a, b any) any {
	c, ok := cypherCompare(a, b)
	if !ok {
		return nil
	}
	return boolInt(c < 0)
}

func cypherLte(a, b any) any {
	c, ok := cypherCompare(a, b)
	if !ok {
		return nil
	}
	return boolInt(c <= 0)
}

func cypherGt(a, b any) any {
	c, ok := cypherCompare(a, b)
	if !ok {
		return nil
	}
	return boolInt(c > 0)
}

func cypherGte(a, b any) any {
	c, ok := cypherCompare(a, b)
	if !ok {
		return nil
	}
	return boolInt(c >= 0)
}

func boolInt(b bool) any {
	if b {
		return int64(1)
	}
	return int64(0)
}

// cypherEquals is null-aware deep equality. JSON arrays and objects compare
// structurally; a null anywhere inside an otherwise-equal pair makes the
// result unknown, per Cypher.
func cypherEquals(a, b any) any {
	return deepEquals(decodeJSONish(a), decodeJSONish(b)).value()
}

// decodeJSONish parses JSON container text into Go structures, leaving
// scalars alone.
func decodeJSONish(v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 || (trimmed[0] != '[' && trimmed[0] != '{') {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return v
	}
	return out
}

func deepEquals(a, b any) ternary {
	if a == nil || b == nil {
		return tUnknown
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return tFalse
		}
		result := tTrue
		for i := range av {
			switch deepEquals(av[i], bv[i]) {
			case tFalse:
				return tFalse
			case tUnknown:
				result = tUnknown
			}
		}
		return result
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return tFalse
		}
		result := tTrue
		for k, v := range av {
			bvv, exists := bv[k]
			if !exists {
				return tFalse
			}
			switch deepEquals(v, bvv) {
			case tFalse:
				return tFalse
			case tUnknown:
				result = tUnknown
			}
		}
		return result
	}
	if na, aNum := toFloat(a); aNum {
		if nb, bNum := toFloat(b); bNum {
			return ternaryBool(na == nb)
		}
		return tFalse
	}
	sa, aStr := toText(a)
	sb, bStr := toText(b)
	if aStr && bStr {
		return ternaryBool(sa == sb)
	}
	return ternaryBool(a == b)
}

func ternaryBool(b bool) ternary {
	if b {
		return tTrue
	}
	return tFalse
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toText(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

// cypherCaseEq backs the simple-form CASE: equality with compile-time type
// tags, so an integer 1 never matches a boolean true the way bare SQLite
// equality would make it.
func cypherCaseEq(v1 any, t1 any, v2 any, t2 any) any {
	tag1, _ := toText(t1)
	tag2, _ := toText(t2)
	if v1 == nil || v2 == nil {
		return nil
	}
	if incompatibleTags(tag1, tag2) {
		return int64(0)
	}
	return deepEquals(decodeJSONish(v1), decodeJSONish(v2)).value()
}

func incompatibleTags(a, b string) bool {
	if a == "unknown" || b == "unknown" || a == b {
		return false
	}
	numeric := func(t string) bool { return t == "integer" || t == "float" }
	if numeric(a) && numeric(b) {
		return false
	}
	return true
}

// cypherDurationSeconds flattens an ISO-8601 duration string to seconds for
// datetime modifiers, counting a month as 30 days.
func cypherDurationSeconds(v any) any {
	s, ok := toText(v)
	if !ok {
		return nil
	}
	d, err := temporal.ParseDuration(s)
	if err != nil {
		return nil
	}
	return d.TotalSeconds()
}
