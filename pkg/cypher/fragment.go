package cypher

import (
	"fmt"
	"strings"
)

// fragment is a piece of SQL text plus the parameters bound to its `?`
// placeholders, in left-to-right order. Keeping text and parameters together
// makes placeholder/parameter drift impossible: fragments are only combined
// through the helpers below, which always append both sides in step.
type fragment struct {
	sql    string
	params []any
}

func frag(sql string, params ...any) fragment {
	return fragment{sql: sql, params: params}
}

// empty reports whether the fragment carries no SQL.
func (f fragment) empty() bool { return f.sql == "" }

// sqlBuilder assembles a fragment incrementally.
type sqlBuilder struct {
	b      strings.Builder
	params []any
}

func (w *sqlBuilder) write(s string) {
	w.b.WriteString(s)
}

func (w *sqlBuilder) writef(format string, args ...any) {
	fmt.Fprintf(&w.b, format, args...)
}

// writeParam emits a single `?` and binds v to it.
func (w *sqlBuilder) writeParam(v any) {
	w.b.WriteString("?")
	w.params = append(w.params, v)
}

// writeFragment appends f's SQL and parameters.
func (w *sqlBuilder) writeFragment(f fragment) {
	w.b.WriteString(f.sql)
	w.params = append(w.params, f.params...)
}

// writeJoined appends the fragments separated by sep.
func (w *sqlBuilder) writeJoined(sep string, frags []fragment) {
	for i, f := range frags {
		if i > 0 {
			w.b.WriteString(sep)
		}
		w.writeFragment(f)
	}
}

func (w *sqlBuilder) fragment() fragment {
	return fragment{sql: w.b.String(), params: w.params}
}

// joinFragments combines fragments with a separator into one fragment.
func joinFragments(sep string, frags []fragment) fragment {
	var w sqlBuilder
	w.writeJoined(sep, frags)
	return w.fragment()
}

// wrapFragment surrounds a fragment's SQL without touching its parameters.
func wrapFragment(prefix string, f fragment, suffix string) fragment {
	return fragment{sql: prefix + f.sql + suffix, params: f.params}
}

// quoteIdent quotes a result column alias for SQLite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString renders a trusted string as a single-quoted SQL literal. Only
// used for internal identifiers (JSON paths, generated aliases), never for
// user data, which always travels as a parameter.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
