package cypher

import (
	"github.com/co-l/nicefox/pkg/cypher/ast"
	"github.com/co-l/nicefox/pkg/temporal"
)

// Temporal values travel through SQL as ISO-8601 strings. Construction from
// literals, parameters and component maps happens here at translation time
// (parameter values are part of the translator's input); only construction
// from row data falls back to SQLite's own date functions.

// staticValue resolves an expression to a Go constant when possible:
// literals, parameters, and maps/lists of those.
func (t *Translator) staticValue(e ast.Expression) (any, bool) {
	switch x := e.(type) {
	case *ast.Literal:
		return x.Value, true
	case *ast.Parameter:
		v, ok := t.ctx.params[x.Name]
		return v, ok
	case *ast.MapLiteral:
		out := map[string]any{}
		for k, v := range x.Entries {
			sv, ok := t.staticValue(v)
			if !ok {
				return nil, false
			}
			out[k] = sv
		}
		return out, true
	case *ast.ListLiteral:
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			sv, ok := t.staticValue(item)
			if !ok {
				return nil, false
			}
			out[i] = sv
		}
		return out, true
	case *ast.Unary:
		if x.Op == "-" {
			v, ok := t.staticValue(x.Operand)
			switch n := v.(type) {
			case int64:
				return -n, ok
			case float64:
				return -n, ok
			}
		}
	}
	return nil, false
}

func staticInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int64(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func staticFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func temporalCtor(kind temporal.Kind) func(*Translator, *ast.FunctionCall, []piece) (piece, error) {
	return func(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
		if len(call.Args) == 0 {
			return nowPiece(kind), nil
		}
		if v, ok := t.staticValue(call.Args[0]); ok {
			s, err := buildTemporal(kind, v)
			if err != nil {
				return piece{}, err
			}
			return mkPiece(frag("?", s), kTemporal), nil
		}
		// Row data: normalize through SQLite's own conversions.
		arg, err := t.translateExpr(call.Args[0])
		if err != nil {
			return piece{}, err
		}
		var sqlFn string
		switch kind {
		case temporal.KindDate:
			sqlFn = "DATE"
		case temporal.KindLocalTime, temporal.KindTime:
			sqlFn = "TIME"
		default:
			sqlFn = "DATETIME"
		}
		p := mkPiece(wrapFragment(sqlFn+"(", arg.fragment, ")"), kTemporal)
		p.agg = arg.agg
		return p, nil
	}
}

func nowPiece(kind temporal.Kind) piece {
	switch kind {
	case temporal.KindDate:
		return mkPiece(frag("DATE('now')"), kTemporal)
	case temporal.KindLocalTime:
		return mkPiece(frag("STRFTIME('%H:%M:%f', 'now')"), kTemporal)
	case temporal.KindTime:
		return mkPiece(frag("(STRFTIME('%H:%M:%f', 'now') || 'Z')"), kTemporal)
	case temporal.KindLocalDateTime:
		return mkPiece(frag("STRFTIME('%Y-%m-%dT%H:%M:%f', 'now')"), kTemporal)
	default:
		return mkPiece(frag("(STRFTIME('%Y-%m-%dT%H:%M:%f', 'now') || 'Z')"), kTemporal)
	}
}

// buildTemporal constructs the ISO string for one temporal kind from a
// string (ISO or compact form) or a component map (calendar, week, ordinal
// or quarter based).
func buildTemporal(kind temporal.Kind, v any) (string, error) {
	switch val := v.(type) {
	case string:
		return parseTemporalString(kind, val)
	case map[string]any:
		return temporalFromMap(kind, val)
	}
	return "", invalidArgumentf("cannot construct %s from %T", kind, v)
}

func parseTemporalString(kind temporal.Kind, s string) (string, error) {
	switch kind {
	case temporal.KindDate:
		d, err := temporal.ParseDate(s)
		if err != nil {
			return "", invalidArgumentf("%v", err)
		}
		return d.String(), nil
	case temporal.KindLocalTime, temporal.KindTime:
		tod, err := temporal.ParseTimeOfDay(s)
		if err != nil {
			return "", invalidArgumentf("%v", err)
		}
		if kind == temporal.KindTime && tod.Offset == nil {
			zero := 0
			tod.Offset = &zero
		}
		if kind == temporal.KindLocalTime {
			tod.Offset = nil
		}
		return tod.String(), nil
	default:
		dt, err := temporal.ParseDateTime(s)
		if err != nil {
			return "", invalidArgumentf("%v", err)
		}
		if kind == temporal.KindDateTime && dt.Offset == nil {
			zero := 0
			dt.Offset = &zero
		}
		if kind == temporal.KindLocalDateTime {
			dt.Offset = nil
		}
		return dt.String(), nil
	}
}

func temporalFromMap(kind temporal.Kind, m map[string]any) (string, error) {
	get := func(key string, def int) (int, error) {
		v, ok := m[key]
		if !ok {
			return def, nil
		}
		n, ok := staticInt(v)
		if !ok {
			return 0, invalidArgumentf("temporal component %s must be an integer", key)
		}
		return n, nil
	}
	year, err := get("year", 0)
	if err != nil {
		return "", err
	}

	var date temporal.Date
	switch {
	case m["week"] != nil:
		week, err := get("week", 1)
		if err != nil {
			return "", err
		}
		day, err := get("dayOfWeek", 1)
		if err != nil {
			return "", err
		}
		date, err = temporal.FromWeek(year, week, day)
		if err != nil {
			return "", invalidArgumentf("%v", err)
		}
	case m["ordinalDay"] != nil:
		ord, err := get("ordinalDay", 1)
		if err != nil {
			return "", err
		}
		date, err = temporal.FromOrdinal(year, ord)
		if err != nil {
			return "", invalidArgumentf("%v", err)
		}
	case m["quarter"] != nil:
		q, err := get("quarter", 1)
		if err != nil {
			return "", err
		}
		day, err := get("dayOfQuarter", 1)
		if err != nil {
			return "", err
		}
		date, err = temporal.FromQuarter(year, q, day)
		if err != nil {
			return "", invalidArgumentf("%v", err)
		}
	default:
		month, err := get("month", 1)
		if err != nil {
			return "", err
		}
		day, err := get("day", 1)
		if err != nil {
			return "", err
		}
		date = temporal.Date{Year: year, Month: month, Day: day}
	}

	hour, err := get("hour", 0)
	if err != nil {
		return "", err
	}
	minute, err := get("minute", 0)
	if err != nil {
		return "", err
	}
	second, err := get("second", 0)
	if err != nil {
		return "", err
	}
	nano, err := get("nanosecond", 0)
	if err != nil {
		return "", err
	}
	ms, err := get("millisecond", 0)
	if err != nil {
		return "", err
	}
	us, err := get("microsecond", 0)
	if err != nil {
		return "", err
	}
	tod := temporal.TimeOfDay{Hour: hour, Minute: minute, Second: second, Nano: nano + ms*1e6 + us*1e3}

	switch kind {
	case temporal.KindDate:
		return date.String(), nil
	case temporal.KindLocalTime:
		return tod.String(), nil
	case temporal.KindTime:
		if tod.Offset == nil {
			off := 0
			if tz, ok := m["timezone"].(string); ok {
				if sec, err := offsetSeconds(tz); err == nil {
					off = sec
				}
			}
			tod.Offset = &off
		}
		return tod.String(), nil
	case temporal.KindLocalDateTime:
		return temporal.DateTime{Date: date, TimeOfDay: tod}.String(), nil
	default:
		if tod.Offset == nil {
			off := 0
			if tz, ok := m["timezone"].(string); ok {
				if sec, err := offsetSeconds(tz); err == nil {
					off = sec
				}
			}
			tod.Offset = &off
		}
		return temporal.DateTime{Date: date, TimeOfDay: tod}.String(), nil
	}
}

func offsetSeconds(tz string) (int, error) {
	if tz == "Z" || tz == "UTC" {
		return 0, nil
	}
	tod, err := temporal.ParseTimeOfDay("00:00" + tz)
	if err != nil || tod.Offset == nil {
		return 0, invalidArgumentf("unsupported timezone %q", tz)
	}
	return *tod.Offset, nil
}

func translateDuration(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
	v, ok := t.staticValue(call.Args[0])
	if !ok {
		// Dynamic duration strings pass through untouched; temporal
		// arithmetic parses them at run time via cypher_duration_seconds.
		// The ordering functions compare them as plain strings.
		arg, err := t.translateExpr(call.Args[0])
		if err != nil {
			return piece{}, err
		}
		arg.kind = kDuration
		return arg, nil
	}
	switch val := v.(type) {
	case string:
		d, err := temporal.ParseDuration(val)
		if err != nil {
			return piece{}, invalidArgumentf("%v", err)
		}
		return mkPiece(frag("?", d.String()), kDuration), nil
	case map[string]any:
		parts := map[string]float64{}
		for k, pv := range val {
			f, ok := staticFloat(pv)
			if !ok {
				return piece{}, invalidArgumentf("duration component %s must be numeric", k)
			}
			parts[k] = f
		}
		return mkPiece(frag("?", temporal.FromMap(parts).String()), kDuration), nil
	}
	return piece{}, invalidArgumentf("duration() expects a string or a map")
}

func durationPair(mode string) func(*Translator, *ast.FunctionCall, []piece) (piece, error) {
	return func(t *Translator, call *ast.FunctionCall, _ []piece) (piece, error) {
		av, aOK := t.staticValue(call.Args[0])
		bv, bOK := t.staticValue(call.Args[1])
		if aOK && bOK {
			as, aIsStr := av.(string)
			bs, bIsStr := bv.(string)
			if !aIsStr || !bIsStr {
				return piece{}, invalidArgumentf("duration.%s expects temporal values", mode)
			}
			a, err := temporal.ParseDateTime(as)
			if err != nil {
				return piece{}, invalidArgumentf("%v", err)
			}
			b, err := temporal.ParseDateTime(bs)
			if err != nil {
				return piece{}, invalidArgumentf("%v", err)
			}
			var d temporal.Duration
			switch mode {
			case "between":
				d = temporal.Between(a, b)
			case "inMonths":
				d = temporal.InMonths(a, b)
			case "inDays":
				d = temporal.InDays(a, b)
			default:
				d = temporal.InSeconds(a, b)
			}
			return mkPiece(frag("?", d.String()), kDuration), nil
		}
		// Row data: seconds-scale duration from the Julian day difference.
		a, err := t.translateExpr(call.Args[0])
		if err != nil {
			return piece{}, err
		}
		b, err := t.translateExpr(call.Args[1])
		if err != nil {
			return piece{}, err
		}
		var w sqlBuilder
		switch mode {
		case "inMonths":
			w.write("('P' || CAST(((JULIANDAY(")
			w.writeFragment(b.fragment)
			w.write(") - JULIANDAY(")
			w.writeFragment(a.fragment)
			w.write(")) / 30.436875) AS INTEGER) || 'M')")
		case "inDays":
			w.write("('P' || CAST(JULIANDAY(")
			w.writeFragment(b.fragment)
			w.write(") - JULIANDAY(")
			w.writeFragment(a.fragment)
			w.write(") AS INTEGER) || 'D')")
		default:
			w.write("('PT' || CAST((JULIANDAY(")
			w.writeFragment(b.fragment)
			w.write(") - JULIANDAY(")
			w.writeFragment(a.fragment)
			w.write(")) * 86400 AS INTEGER) || 'S')")
		}
		p := mkPiece(w.fragment(), kDuration)
		p.agg = a.agg || b.agg
		return p, nil
	}
}

// translateTemporalArith compiles temporal ± duration to DATETIME: a static
// duration gives one literal modifier per component, a dynamic one a single
// printf-built seconds modifier.
func (t *Translator) translateTemporalArith(op string, left, right piece) (piece, error) {
	base, dur := left, right
	if right.kind == kTemporal {
		if op == "-" {
			return piece{}, typeMismatchf("cannot subtract a temporal value from a duration")
		}
		base, dur = right, left
	}
	if dur.kind != kDuration && dur.kind != kUnknown {
		return piece{}, typeMismatchf("temporal arithmetic expects a duration operand")
	}
	negate := int64(1)
	if op == "-" {
		negate = -1
	}
	// The duration operand is an ISO string; its components become SQLite
	// datetime modifiers. Months and days must stay calendar-aware, so they
	// are applied as separate modifiers rather than flattened to seconds.
	if dur.sql == "?" && len(dur.params) == 1 {
		if s, ok := dur.params[0].(string); ok {
			d, err := temporal.ParseDuration(s)
			if err == nil {
				var w sqlBuilder
				w.write("DATETIME(")
				w.writeFragment(base.fragment)
				if d.Months != 0 {
					w.writef(", '%+d months'", negate*d.Months)
				}
				if d.Days != 0 {
					w.writef(", '%+d days'", negate*d.Days)
				}
				if d.Seconds != 0 || (d.Months == 0 && d.Days == 0) {
					w.writef(", '%+d seconds'", negate*d.Seconds)
				}
				w.write(")")
				return mkPiece(w.fragment(), kTemporal), nil
			}
		}
	}
	// Dynamic duration: flatten to seconds with printf.
	var w sqlBuilder
	w.write("DATETIME(")
	w.writeFragment(base.fragment)
	if negate < 0 {
		w.write(", printf('%+d seconds', -cypher_duration_seconds(")
	} else {
		w.write(", printf('%+d seconds', cypher_duration_seconds(")
	}
	w.writeFragment(dur.fragment)
	w.write(")))")
	p := mkPiece(w.fragment(), kTemporal)
	p.agg = base.agg || dur.agg
	return p, nil
}
