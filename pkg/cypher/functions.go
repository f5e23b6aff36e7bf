package cypher

import (
	"fmt"
	"strings"

	"github.com/co-l/nicefox/pkg/cypher/ast"
	"github.com/co-l/nicefox/pkg/temporal"
)

// funcDef describes one entry of the function table: arity bounds, whether
// it aggregates, whether it is non-deterministic (those are rejected inside
// aggregates), and the translator body.
type funcDef struct {
	minArgs, maxArgs int // maxArgs -1 = variadic
	aggregate        bool
	nondeterministic bool
	translate        func(t *Translator, call *ast.FunctionCall, args []piece) (piece, error)
}

// aggregatesCTE is the name of the materialized WITH-aggregate CTE.
const aggregatesCTE = "__aggregates__"

func (t *Translator) translateFunction(call *ast.FunctionCall) (piece, error) {
	name := strings.ToLower(call.Name)
	def, ok := functionTable[name]
	if !ok {
		return piece{}, syntaxErrorf("unknown function %s()", call.Name)
	}
	if call.Star && name != "count" {
		return piece{}, syntaxErrorf("%s(*) is not valid", call.Name)
	}
	argc := len(call.Args)
	if !call.Star && (argc < def.minArgs || (def.maxArgs >= 0 && argc > def.maxArgs)) {
		return piece{}, syntaxErrorf("wrong number of arguments to %s()", call.Name)
	}
	if def.aggregate {
		if t.inAggregate {
			return piece{}, syntaxErrorf("nested aggregation %s()", call.Name)
		}
		t.inAggregate = true
		defer func() { t.inAggregate = false }()
	} else if def.nondeterministic && t.inAggregate {
		return piece{}, syntaxErrorf("non-deterministic function %s() inside an aggregate", call.Name)
	}
	// Functions that inspect argument ASTs (labels, id, nodes, ...) receive
	// raw args; everything else gets pre-translated pieces.
	var args []piece
	if def.translate != nil && !rawArgFunctions[name] {
		args = make([]piece, argc)
		for i, a := range call.Args {
			p, err := t.translateExpr(a)
			if err != nil {
				return piece{}, err
			}
			args[i] = p
		}
	}
	p, err := def.translate(t, call, args)
	if err != nil {
		return piece{}, err
	}
	if def.aggregate {
		p.agg = true
	}
	return p, nil
}

// rawArgFunctions resolve their arguments from the AST rather than from
// translated SQL (they need the variable's alias or path record).
var rawArgFunctions = map[string]bool{
	"labels": true, "type": true, "id": true, "properties": true,
	"nodes": true, "relationships": true, "length": true,
	"keys": true, "size": true, "reverse": true, "exists": true,
	"count": true, "collect": true, "min": true, "max": true,
	"sum": true, "avg": true, "percentiledisc": true, "percentilecont": true,
	"date": true, "time": true, "localtime": true, "datetime": true,
	"localdatetime": true, "duration": true,
	"duration.between": true, "duration.inmonths": true,
	"duration.indays": true, "duration.inseconds": true,
}

var functionTable map[string]funcDef

func init() {
	functionTable = map[string]funcDef{
		// Aggregations.
		"count":          {0, 1, true, false, translateCount},
		"sum":            {1, 1, true, false, translateSimpleAgg("SUM")},
		"avg":            {1, 1, true, false, translateSimpleAgg("AVG")},
		"min":            {1, 1, true, false, translateSimpleAgg("MIN")},
		"max":            {1, 1, true, false, translateSimpleAgg("MAX")},
		"collect":        {1, 1, true, false, translateCollect},
		"percentiledisc": {2, 2, true, false, translatePercentileDisc},
		"percentilecont": {2, 2, true, false, translatePercentileCont},

		// Scalar.
		"coalesce": {1, -1, false, false, translateCoalesce},
		"exists":   {1, 1, false, false, translateExistsFn},

		// Math.
		"abs":   {1, 1, false, false, translateWrap1("ABS", kUnknown)},
		"round": {1, 1, false, false, translateWrap1("ROUND", kFloat)},
		"floor": {1, 1, false, false, translateWrap1("FLOOR", kFloat)},
		"ceil":  {1, 1, false, false, translateWrap1("CEIL", kFloat)},
		"sqrt":  {1, 1, false, false, translateWrap1("SQRT", kFloat)},
		"sign":  {1, 1, false, false, translateWrap1("SIGN", kInt)},
		"rand":  {0, 0, false, true, translateRand},

		// Lists and collections.
		"size":    {1, 1, false, false, translateSize},
		"head":    {1, 1, false, false, translateHead},
		"last":    {1, 1, false, false, translateLast},
		"tail":    {1, 1, false, false, translateTail},
		"keys":    {1, 1, false, false, translateKeys},
		"range":   {2, 3, false, false, translateRange},
		"split":   {2, 2, false, false, translateSplit},
		"reverse": {1, 1, false, false, translateReverse},

		// Strings.
		"toupper":   {1, 1, false, false, translateWrap1("UPPER", kString)},
		"tolower":   {1, 1, false, false, translateWrap1("LOWER", kString)},
		"trim":      {1, 1, false, false, translateWrap1("TRIM", kString)},
		"ltrim":     {1, 1, false, false, translateWrap1("LTRIM", kString)},
		"rtrim":     {1, 1, false, false, translateWrap1("RTRIM", kString)},
		"replace":   {3, 3, false, false, translateReplace},
		"substring": {2, 3, false, false, translateSubstring},
		"left":      {2, 2, false, false, translateLeft},
		"right":     {2, 2, false, false, translateRight},
		"tostring":  {1, 1, false, false, translateToString},
		"tointeger": {1, 1, false, false, translateToInteger},
		"tofloat":   {1, 1, false, false, translateToFloat},
		"toboolean": {1, 1, false, false, translateToBoolean},

		// Nodes, relationships, paths.
		"labels":        {1, 1, false, false, translateLabels},
		"type":          {1, 1, false, false, translateType},
		"properties":    {1, 1, false, false, translateProperties},
		"id":            {1, 1, false, false, translateID},
		"length":        {1, 1, false, false, translateLength},
		"nodes":         {1, 1, false, false, translatePathNodes},
		"relationships": {1, 1, false, false, translatePathRelationships},

		// Temporal construction and clock.
		"date":          {0, 1, false, false, temporalCtor(temporal.KindDate)},
		"localtime":     {0, 1, false, false, temporalCtor(temporal.KindLocalTime)},
		"time":          {0, 1, false, false, temporalCtor(temporal.KindTime)},
		"localdatetime": {0, 1, false, false, temporalCtor(temporal.KindLocalDateTime)},
		"datetime":      {0, 1, false, false, temporalCtor(temporal.KindDateTime)},
		"timestamp":     {0, 0, false, true, translateTimestamp},

		// Durations.
		"duration":           {1, 1, false, false, translateDuration},
		"duration.between":   {2, 2, false, false, durationPair("between")},
		"duration.inmonths":  {2, 2, false, false, durationPair("inMonths")},
		"duration.indays":    {2, 2, false, false, durationPair("inDays")},
		"duration.inseconds": {2, 2, false, false, durationPair("inSeconds")},
	}
}

func translateCount(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	if call.Star || len(call.Args) == 0 {
		return mkPiece(frag("COUNT(*)"), kInt), nil
	}
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	inner := arg.fragment
	// Counting a node/edge counts identities, not property bags.
	if v, ok := call.Args[0].(*ast.Variable); ok {
		if sv, found := t.ctx.lookup(v.Name); found && (sv.kind == kindNode || sv.kind == kindEdge) && sv.alias != "" {
			inner = frag(sv.alias + ".id")
		}
	}
	if call.Distinct {
		return mkPiece(wrapFragment("COUNT(DISTINCT ", inner, ")"), kInt), nil
	}
	return mkPiece(wrapFragment("COUNT(", inner, ")"), kInt), nil
}

func translateSimpleAgg(sqlName string) func(*Translator, *ast.FunctionCall, []piece) (piece, error) {
	return func(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
		arg, err := t.translateExpr(call.Args[0])
		if err != nil {
			return piece{}, err
		}
		inner := arg.fragment
		if call.Distinct {
			inner = wrapFragment("DISTINCT ", inner, "")
		}
		kind := kUnknown
		if sqlName == "AVG" {
			kind = kFloat
		}
		p := mkPiece(wrapFragment(sqlName+"(", inner, ")"), kind)
		p.divides = arg.divides
		return p, nil
	}
}

func translateCollect(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	arg, err := t.translateJSONValue(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	inner := arg.fragment
	if arg.kind == kList || arg.kind == kMap || arg.kind == kNode || arg.kind == kEdge {
		inner = wrapFragment("json(", inner, ")")
	}
	if call.Distinct {
		inner = wrapFragment("DISTINCT ", inner, "")
	}
	// collect ignores nulls; FILTER keeps the group array clean.
	var w sqlBuilder
	w.write("COALESCE(json_group_array(")
	w.writeFragment(inner)
	w.write(") FILTER (WHERE ")
	w.writeFragment(arg.fragment)
	w.write(" IS NOT NULL), json('[]'))")
	return mkPiece(w.fragment(), kList), nil
}

// sortedAggArray renders the group's values of expr as a sorted JSON array.
func sortedAggArray(arg piece) fragment {
	var w sqlBuilder
	w.write("(SELECT json_group_array(__s__.value) FROM (SELECT value FROM json_each(json_group_array(")
	w.writeFragment(arg.fragment)
	w.write(")) ORDER BY value) AS __s__)")
	return w.fragment()
}

func (t *Translator) percentileArg(call *ast.FunctionCall) (piece, piece, error) {
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, piece{}, err
	}
	pArg := call.Args[1]
	if lit, ok := pArg.(*ast.Literal); ok {
		switch v := lit.Value.(type) {
		case int64:
			if v < 0 || v > 1 {
				return piece{}, piece{}, invalidArgumentf("percentile must be between 0.0 and 1.0")
			}
		case float64:
			if v < 0 || v > 1 {
				return piece{}, piece{}, invalidArgumentf("percentile must be between 0.0 and 1.0")
			}
		case string:
			return piece{}, piece{}, invalidArgumentf("percentile arguments are swapped")
		}
	}
	p, err := t.translateExpr(pArg)
	if err != nil {
		return piece{}, piece{}, err
	}
	return arg, p, nil
}

func translatePercentileDisc(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	arg, p, err := t.percentileArg(call)
	if err != nil {
		return piece{}, err
	}
	sorted := sortedAggArray(arg)
	var w sqlBuilder
	w.write("json_extract(")
	w.writeFragment(sorted)
	w.write(", '$[' || MAX(0, CAST(CEIL((")
	w.writeFragment(p.fragment)
	w.write(") * json_array_length(")
	w.writeFragment(sorted)
	w.write(")) - 1 AS INTEGER)) || ']')")
	return mkPiece(w.fragment(), kUnknown), nil
}

func translatePercentileCont(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	arg, p, err := t.percentileArg(call)
	if err != nil {
		return piece{}, err
	}
	sorted := sortedAggArray(arg)
	rank := joinFragments("", []fragment{frag("(("), p.fragment, frag(") * (json_array_length("), sorted, frag(") - 1))")})
	lo := wrapFragment("CAST(", rank, " AS INTEGER)")
	// value(lo) + (value(lo+1) - value(lo)) * (rank - lo), duplicated
	// subexpressions and all; parameters repeat with them.
	var w sqlBuilder
	w.write("(json_extract(")
	w.writeFragment(sorted)
	w.write(", '$[' || ")
	w.writeFragment(lo)
	w.write(" || ']') + (COALESCE(json_extract(")
	w.writeFragment(sorted)
	w.write(", '$[' || (")
	w.writeFragment(lo)
	w.write(" + 1) || ']'), json_extract(")
	w.writeFragment(sorted)
	w.write(", '$[' || ")
	w.writeFragment(lo)
	w.write(" || ']')) - json_extract(")
	w.writeFragment(sorted)
	w.write(", '$[' || ")
	w.writeFragment(lo)
	w.write(" || ']')) * (")
	w.writeFragment(rank)
	w.write(" - ")
	w.writeFragment(lo)
	w.write("))")
	return mkPiece(w.fragment(), kFloat), nil
}

func translateCoalesce(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	frags := make([]fragment, len(args))
	kind := args[0].kind
	agg, div := false, false
	for i, a := range args {
		frags[i] = a.fragment
		agg = agg || a.agg
		div = div || a.divides
		if a.kind != kind {
			kind = kUnknown
		}
	}
	out := wrapFragment("COALESCE(", joinFragments(", ", frags), ")")
	return piece{fragment: out, kind: kind, agg: agg, divides: div}, nil
}

// exists(n.prop) — property existence; the pattern form lives in the WHERE
// translator.
func translateExistsFn(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	var w sqlBuilder
	w.write("(CASE WHEN (")
	w.writeFragment(arg.fragment)
	w.write(") IS NOT NULL THEN 1 ELSE 0 END)")
	return mkPiece(w.fragment(), kBool), nil
}

func translateWrap1(sqlName string, kind exprKind) func(*Translator, *ast.FunctionCall, []piece) (piece, error) {
	return func(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
		p := args[0]
		out := wrapFragment(sqlName+"(", p.fragment, ")")
		k := kind
		if sqlName == "ABS" {
			k = p.kind
		}
		return piece{fragment: out, kind: k, agg: p.agg, divides: p.divides}, nil
	}
}

func translateRand(_ *Translator, _ *ast.FunctionCall, _ []piece) (piece, error) {
	return mkPiece(frag("(ABS(RANDOM()) / 9223372036854775808.0)"), kFloat), nil
}

func translateSize(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	switch arg.kind {
	case kList:
		return mkPiece(wrapFragment("json_array_length(", arg.fragment, ")"), kInt), nil
	case kString:
		return mkPiece(wrapFragment("LENGTH(", arg.fragment, ")"), kInt), nil
	}
	var w sqlBuilder
	w.write("(CASE WHEN json_valid(")
	w.writeFragment(arg.fragment)
	w.write(") AND json_type(")
	w.writeFragment(arg.fragment)
	w.write(") = 'array' THEN json_array_length(")
	w.writeFragment(arg.fragment)
	w.write(") ELSE LENGTH(")
	w.writeFragment(arg.fragment)
	w.write(") END)")
	return mkPiece(w.fragment(), kInt), nil
}

func translateHead(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	return mkPiece(wrapFragment("json_extract(", args[0].fragment, ", '$[0]')"), kUnknown), nil
}

func translateLast(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	return mkPiece(wrapFragment("json_extract(", args[0].fragment, ", '$[#-1]')"), kUnknown), nil
}

func translateTail(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	var w sqlBuilder
	w.write("(SELECT COALESCE(json_group_array(__t__.value), json('[]')) FROM json_each(")
	w.writeFragment(args[0].fragment)
	w.write(") AS __t__ WHERE __t__.key > 0)")
	return mkPiece(w.fragment(), kList), nil
}

func translateKeys(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	var source fragment
	if v, ok := call.Args[0].(*ast.Variable); ok {
		if sv, found := t.ctx.lookup(v.Name); found && (sv.kind == kindNode || sv.kind == kindEdge) && sv.alias != "" {
			source = frag(sv.alias + ".properties")
		}
	}
	if source.empty() {
		arg, err := t.translateExpr(call.Args[0])
		if err != nil {
			return piece{}, err
		}
		source = arg.fragment
	}
	var w sqlBuilder
	w.write("(SELECT json_group_array(__k__.key) FROM json_each(")
	w.writeFragment(source)
	w.write(") AS __k__)")
	return mkPiece(w.fragment(), kList), nil
}

func translateRange(t *Translator, call *ast.FunctionCall, args []piece) (piece, error) {
	for i, a := range call.Args {
		if lit, ok := a.(*ast.Literal); ok {
			switch v := lit.Value.(type) {
			case int64:
				if i == 2 && v == 0 {
					return piece{}, invalidArgumentf("range() step cannot be zero")
				}
			case float64, string, bool:
				return piece{}, invalidArgumentf("range() arguments must be integers, got %v", v)
			}
		}
		if args[i].kind != kInt && args[i].kind != kUnknown {
			return piece{}, invalidArgumentf("range() arguments must be integers")
		}
	}
	step := frag("1")
	if len(args) == 3 {
		step = args[2].fragment
	}
	var w sqlBuilder
	w.write("(WITH RECURSIVE __range__(v) AS (SELECT ")
	w.writeFragment(args[0].fragment)
	w.write(" UNION ALL SELECT v + ")
	w.writeFragment(step)
	w.write(" FROM __range__ WHERE v + ")
	w.writeFragment(step)
	w.write(" <= ")
	w.writeFragment(args[1].fragment)
	w.write(") SELECT json_group_array(v) FROM __range__ WHERE v <= ")
	w.writeFragment(args[1].fragment)
	w.write(")")
	return mkPiece(w.fragment(), kList), nil
}

func translateSplit(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	s, d := args[0].fragment, args[1].fragment
	var w sqlBuilder
	w.write("(WITH RECURSIVE __split__(rest, part) AS (SELECT ")
	w.writeFragment(s)
	w.write(" || ")
	w.writeFragment(d)
	w.write(", NULL UNION ALL SELECT SUBSTR(rest, INSTR(rest, ")
	w.writeFragment(d)
	w.write(") + LENGTH(")
	w.writeFragment(d)
	w.write(")), SUBSTR(rest, 1, INSTR(rest, ")
	w.writeFragment(d)
	w.write(") - 1) FROM __split__ WHERE INSTR(rest, ")
	w.writeFragment(d)
	w.write(") > 0) SELECT json_group_array(part) FROM __split__ WHERE part IS NOT NULL)")
	return mkPiece(w.fragment(), kList), nil
}

// reverse dispatches at translation time: statically-known lists reverse by
// key order, everything else is treated as a string.
func translateReverse(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	if arg.kind == kList {
		var w sqlBuilder
		w.write("(SELECT json_group_array(__r__.value) FROM (SELECT value FROM json_each(")
		w.writeFragment(arg.fragment)
		w.write(") ORDER BY key DESC) AS __r__)")
		return mkPiece(w.fragment(), kList), nil
	}
	s := arg.fragment
	var w sqlBuilder
	w.write("(WITH RECURSIVE __rev__(i, acc) AS (SELECT LENGTH(")
	w.writeFragment(s)
	w.write("), '' UNION ALL SELECT i - 1, acc || SUBSTR(")
	w.writeFragment(s)
	w.write(", i, 1) FROM __rev__ WHERE i > 0) SELECT acc FROM __rev__ WHERE i = 0)")
	return mkPiece(w.fragment(), kString), nil
}

func translateReplace(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	out := wrapFragment("REPLACE(", joinFragments(", ", []fragment{args[0].fragment, args[1].fragment, args[2].fragment}), ")")
	return mkPiece(out, kString), nil
}

func translateSubstring(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	var w sqlBuilder
	w.write("SUBSTR(")
	w.writeFragment(args[0].fragment)
	w.write(", (")
	w.writeFragment(args[1].fragment)
	w.write(") + 1")
	if len(args) == 3 {
		w.write(", ")
		w.writeFragment(args[2].fragment)
	}
	w.write(")")
	return mkPiece(w.fragment(), kString), nil
}

func translateLeft(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	var w sqlBuilder
	w.write("SUBSTR(")
	w.writeFragment(args[0].fragment)
	w.write(", 1, ")
	w.writeFragment(args[1].fragment)
	w.write(")")
	return mkPiece(w.fragment(), kString), nil
}

func translateRight(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	var w sqlBuilder
	w.write("SUBSTR(")
	w.writeFragment(args[0].fragment)
	w.write(", -(")
	w.writeFragment(args[1].fragment)
	w.write("))")
	return mkPiece(w.fragment(), kString), nil
}

func translateToString(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	p := args[0]
	if p.kind == kBool {
		var w sqlBuilder
		w.write("(CASE WHEN (")
		w.writeFragment(p.fragment)
		w.write(") THEN 'true' ELSE 'false' END)")
		return mkPiece(w.fragment(), kString), nil
	}
	return mkPiece(wrapFragment("CAST(", p.fragment, " AS TEXT)"), kString), nil
}

func translateToInteger(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	p := args[0].fragment
	var w sqlBuilder
	w.write("(CASE WHEN typeof(")
	w.writeFragment(p)
	w.write(") IN ('integer', 'real') THEN CAST(")
	w.writeFragment(p)
	w.write(" AS INTEGER) WHEN ")
	w.writeFragment(p)
	w.write(" GLOB '-[0-9]*' OR ")
	w.writeFragment(p)
	w.write(" GLOB '[0-9]*' THEN CAST(")
	w.writeFragment(p)
	w.write(" AS INTEGER) ELSE NULL END)")
	return mkPiece(w.fragment(), kInt), nil
}

func translateToFloat(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	p := args[0].fragment
	var w sqlBuilder
	w.write("(CASE WHEN typeof(")
	w.writeFragment(p)
	w.write(") IN ('integer', 'real') THEN CAST(")
	w.writeFragment(p)
	w.write(" AS REAL) WHEN ")
	w.writeFragment(p)
	w.write(" GLOB '-[0-9]*' OR ")
	w.writeFragment(p)
	w.write(" GLOB '[0-9]*' OR ")
	w.writeFragment(p)
	w.write(" GLOB '*.[0-9]*' THEN CAST(")
	w.writeFragment(p)
	w.write(" AS REAL) ELSE NULL END)")
	return mkPiece(w.fragment(), kFloat), nil
}

func translateToBoolean(_ *Translator, _ *ast.FunctionCall, args []piece) (piece, error) {
	p := args[0].fragment
	var w sqlBuilder
	w.write("(CASE WHEN typeof(")
	w.writeFragment(p)
	w.write(") = 'integer' THEN (")
	w.writeFragment(p)
	w.write(") <> 0 WHEN LOWER(")
	w.writeFragment(p)
	w.write(") = 'true' THEN 1 WHEN LOWER(")
	w.writeFragment(p)
	w.write(") = 'false' THEN 0 ELSE NULL END)")
	return mkPiece(w.fragment(), kBool), nil
}

func (t *Translator) graphArg(call *ast.FunctionCall, want varKind) (*scopeVar, error) {
	v, ok := call.Args[0].(*ast.Variable)
	if !ok {
		return nil, typeMismatchf("%s() expects a variable argument", call.Name)
	}
	sv, ok := t.ctx.lookup(v.Name)
	if !ok {
		return nil, unknownVariable(v.Name)
	}
	if want != sv.kind && !(want == kindEdge && sv.kind == kindVarLengthEdge) {
		return nil, typeMismatchf("%s() expects a %s, `%s` is a %s", call.Name, want, v.Name, sv.kind)
	}
	return sv, nil
}

func translateLabels(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	sv, err := t.graphArg(call, kindNode)
	if err != nil {
		return piece{}, err
	}
	if sv.id != "" && sv.alias == "" {
		return mkPiece(frag("(SELECT json(label) FROM nodes WHERE id = ?)", sv.id), kList), nil
	}
	return mkPiece(frag(fmt.Sprintf("json(%s.label)", sv.alias)), kList), nil
}

func translateType(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	sv, err := t.graphArg(call, kindEdge)
	if err != nil {
		return piece{}, err
	}
	if sv.kind == kindVarLengthEdge {
		var w sqlBuilder
		w.writef("(SELECT json_group_array(json_extract(value, '$.type')) FROM json_each(%s.edge_ids))", sv.pathCTE)
		return mkPiece(w.fragment(), kList), nil
	}
	if sv.id != "" && sv.alias == "" {
		return mkPiece(frag("(SELECT type FROM edges WHERE id = ?)", sv.id), kString), nil
	}
	return mkPiece(frag(sv.alias+".type"), kString), nil
}

func translateProperties(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	if v, ok := call.Args[0].(*ast.Variable); ok {
		if sv, found := t.ctx.lookup(v.Name); found && (sv.kind == kindNode || sv.kind == kindEdge) {
			if sv.id != "" && sv.alias == "" {
				table := "nodes"
				if sv.kind == kindEdge {
					table = "edges"
				}
				return mkPiece(frag(fmt.Sprintf("(SELECT json(properties) FROM %s WHERE id = ?)", table), sv.id), kMap), nil
			}
			return mkPiece(frag(fmt.Sprintf("json(%s.properties)", sv.alias)), kMap), nil
		}
	}
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	return mkPiece(wrapFragment("json(", arg.fragment, ")"), kMap), nil
}

func translateID(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	v, ok := call.Args[0].(*ast.Variable)
	if !ok {
		return piece{}, typeMismatchf("id() expects a variable argument")
	}
	sv, found := t.ctx.lookup(v.Name)
	if !found {
		return piece{}, unknownVariable(v.Name)
	}
	switch sv.kind {
	case kindNode, kindEdge:
		if sv.id != "" && sv.alias == "" {
			return mkPiece(frag("?", sv.id), kString), nil
		}
		return mkPiece(frag(sv.alias+".id"), kString), nil
	}
	return piece{}, typeMismatchf("id() expects a node or relationship")
}

func translateLength(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	if v, ok := call.Args[0].(*ast.Variable); ok {
		if pe := t.findPathExpr(v.Name); pe != nil {
			if pe.varLength {
				return mkPiece(frag(pe.cteName+".depth"), kInt), nil
			}
			return mkPiece(frag(fmt.Sprintf("%d", len(pe.edgeAliases))), kInt), nil
		}
	}
	arg, err := t.translateExpr(call.Args[0])
	if err != nil {
		return piece{}, err
	}
	// length() over a non-path is SQL LENGTH() of the value; unlike size(),
	// it does not count the elements of a list.
	return mkPiece(wrapFragment("LENGTH(", arg.fragment, ")"), kInt), nil
}

func translatePathNodes(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	v, ok := call.Args[0].(*ast.Variable)
	if !ok {
		return piece{}, typeMismatchf("nodes() expects a path variable")
	}
	pe := t.findPathExpr(v.Name)
	if pe == nil {
		return piece{}, typeMismatchf("nodes() expects a path, `%s` is not one", v.Name)
	}
	if pe.varLength {
		var w sqlBuilder
		w.writef("(SELECT json_group_array(__pn__.v) FROM (SELECT -1 AS k, %s.start_id AS v UNION ALL SELECT key, json_extract(value, '$.target_id') FROM json_each(%s.edge_ids) ORDER BY k) AS __pn__)",
			pe.cteName, pe.cteName)
		return mkPiece(w.fragment(), kList), nil
	}
	var w sqlBuilder
	w.write("json_array(")
	for i, alias := range pe.nodeSeq {
		if i > 0 {
			w.write(", ")
		}
		w.writef("json_set(%s.properties, '$._nf_id', %s.id)", alias, alias)
	}
	w.write(")")
	return mkPiece(w.fragment(), kList), nil
}

func translatePathRelationships(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	v, ok := call.Args[0].(*ast.Variable)
	if !ok {
		return piece{}, typeMismatchf("relationships() expects a path variable")
	}
	pe := t.findPathExpr(v.Name)
	if pe == nil {
		return piece{}, typeMismatchf("relationships() expects a path, `%s` is not one", v.Name)
	}
	if pe.varLength {
		return mkPiece(frag(fmt.Sprintf("json(%s.edge_ids)", pe.cteName)), kList), nil
	}
	var w sqlBuilder
	w.write("json_array(")
	for i, alias := range pe.edgeAliases {
		if i > 0 {
			w.write(", ")
		}
		w.writef("json_set(%s.properties, '$._nf_id', %s.id)", alias, alias)
	}
	w.write(")")
	return mkPiece(w.fragment(), kList), nil
}

func (t *Translator) findPathExpr(name string) *pathExpr {
	for _, pe := range t.ctx.pathExprs {
		if pe.variable == name {
			return pe
		}
	}
	return nil
}

func translateTimestamp(_ *Translator, _ *ast.FunctionCall, _ []piece) (piece, error) {
	return mkPiece(frag("CAST((JULIANDAY('now') - 2440587.5) * 86400000 AS INTEGER)"), kInt), nil
}
