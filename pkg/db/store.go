package db

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/co-l/nicefox/pkg/cypher"
	"github.com/co-l/nicefox/pkg/cypher/ast"
)

// QueryResult is a fully-materialized result set of one Cypher query.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// Run translates a query and executes its statements in order inside one
// transaction. The final projecting statement (if any) produces the rows.
func (db *DB) Run(query *ast.Query, params map[string]any) (*QueryResult, error) {
	result, err := cypher.Translate(query, normalizeParams(params))
	if err != nil {
		return nil, err
	}
	return db.Execute(result)
}

// Execute runs pre-translated statements. Statement order is preserved:
// later statements reference rows created by earlier ones.
func (db *DB) Execute(result *cypher.Result) (*QueryResult, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	out := &QueryResult{Columns: result.ReturnColumns}
	hasProjection := result.ReturnColumns != nil

	for i, stmt := range result.Statements {
		last := i == len(result.Statements)-1
		if last && hasProjection {
			rows, err := tx.Query(stmt.SQL, bindParams(stmt.Params)...)
			if err != nil {
				return nil, fmt.Errorf("query failed: %w", err)
			}
			if err := scanRows(rows, out); err != nil {
				rows.Close()
				return nil, err
			}
			rows.Close()
			continue
		}
		if _, err := tx.Exec(stmt.SQL, bindParams(stmt.Params)...); err != nil {
			return nil, fmt.Errorf("statement failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return out, nil
}

func scanRows(rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(...any) error
	Err() error
}, out *QueryResult) error {
	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	if out.Columns == nil {
		out.Columns = cols
	}
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}
		decoded := make([]any, len(raw))
		for i, v := range raw {
			decoded[i] = decodeValue(v)
		}
		out.Rows = append(out.Rows, decoded)
	}
	return rows.Err()
}

// decodeValue converts a scanned SQL value to its JSON-compatible Go shape:
// JSON container text becomes maps/slices, []byte becomes string.
func decodeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return decodeValue(string(x))
	case string:
		trimmed := strings.TrimSpace(x)
		if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
			var out any
			if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
				return out
			}
		}
		return x
	}
	return v
}

// normalizeParams applies the executor-boundary value rules before
// translation: json.Number-style floats that are really integers stay
// integers, and nested structures normalize recursively.
func normalizeParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case float64:
		// Large integers must bind as 64-bit integers, not doubles.
		if x == math.Trunc(x) && math.Abs(x) >= 1<<53 && !math.IsInf(x, 0) {
			return int64(x)
		}
		return x
	case int:
		return int64(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalizeValue(e)
		}
		return out
	}
	return v
}

// bindParams applies the boolean-to-integer rule at the driver boundary.
func bindParams(params []any) []any {
	out := make([]any, len(params))
	for i, p := range params {
		if b, ok := p.(bool); ok {
			if b {
				out[i] = int64(1)
			} else {
				out[i] = int64(0)
			}
			continue
		}
		out[i] = p
	}
	return out
}
