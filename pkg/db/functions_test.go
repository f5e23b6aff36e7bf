package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCypherNot(t *testing.T) {
	assert.Equal(t, int64(0), cypherNot(int64(1)))
	assert.Equal(t, int64(1), cypherNot(int64(0)))
	assert.Nil(t, cypherNot(nil))
	assert.Equal(t, int64(0), cypherNot("true"))
}

func TestCypherAndThreeValued(t *testing.T) {
	// false dominates unknown
	assert.Equal(t, int64(0), cypherAnd(nil, int64(0)))
	assert.Equal(t, int64(0), cypherAnd(int64(0), int64(1)))
	assert.Equal(t, int64(1), cypherAnd(int64(1), int64(1)))
	assert.Nil(t, cypherAnd(int64(1), nil))
	assert.Nil(t, cypherAnd(nil, nil))
}

func TestCypherOrThreeValued(t *testing.T) {
	// true dominates unknown
	assert.Equal(t, int64(1), cypherOr(nil, int64(1)))
	assert.Equal(t, int64(0), cypherOr(int64(0), int64(0)))
	assert.Nil(t, cypherOr(int64(0), nil))
}

func TestCypherOrderingSameCategory(t *testing.T) {
	assert.Equal(t, int64(1), cypherLt(int64(1), int64(2)))
	assert.Equal(t, int64(0), cypherGt(int64(1), int64(2)))
	assert.Equal(t, int64(1), cypherLte(int64(2), 2.0))
	assert.Equal(t, int64(1), cypherLt("apple", "banana"))
	assert.Equal(t, int64(1), cypherGte("b", "a"))
}

func TestCypherOrderingIncompatibleTypes(t *testing.T) {
	// Cross-category ordering is unknown.
	assert.Nil(t, cypherLt(int64(1), "apple"))
	assert.Nil(t, cypherLt("x", nil))
	assert.Nil(t, cypherGt(nil, nil))
	// Lists and maps are not orderable.
	assert.Nil(t, cypherLt(`[1,2]`, `[1,3]`))
	assert.Nil(t, cypherLt(`{"a":1}`, `{"a":2}`))
}

func TestCypherOrderingTemporalStrings(t *testing.T) {
	// Offsets normalize to UTC before comparing.
	assert.Equal(t, int64(1), cypherLt("2020-01-01", "2020-06-01"))
	assert.Equal(t, int64(1), cypherLt("10:00:00Z", "12:00:00Z"))
	assert.Equal(t, int64(0), cypherLt("12:00:00+02:00", "10:00:00Z"))
	assert.Equal(t, int64(1), cypherLte("12:00:00+02:00", "10:00:00Z"))
}

func TestCypherEqualsDeep(t *testing.T) {
	assert.Equal(t, int64(1), cypherEquals(`[1,2,3]`, `[1,2,3]`))
	assert.Equal(t, int64(0), cypherEquals(`[1,2]`, `[1,3]`))
	assert.Equal(t, int64(0), cypherEquals(`[1,2]`, `[1,2,3]`))
	assert.Equal(t, int64(1), cypherEquals(`{"a":1,"b":[2]}`, `{"b":[2],"a":1}`))
	assert.Equal(t, int64(1), cypherEquals(int64(1), 1.0))
	assert.Equal(t, int64(0), cypherEquals("a", "b"))
	// Nulls anywhere make the answer unknown, not false.
	assert.Nil(t, cypherEquals(nil, int64(1)))
	assert.Nil(t, cypherEquals(`[1,null]`, `[1,null]`))
	assert.Equal(t, int64(0), cypherEquals(`[1,null]`, `[2,null]`))
}

func TestCypherCaseEq(t *testing.T) {
	// Integer 1 must not match boolean true.
	assert.Equal(t, int64(0), cypherCaseEq(int64(1), "integer", int64(1), "boolean"))
	assert.Equal(t, int64(1), cypherCaseEq(int64(1), "integer", int64(1), "integer"))
	assert.Equal(t, int64(1), cypherCaseEq(int64(1), "integer", 1.0, "float"))
	assert.Equal(t, int64(1), cypherCaseEq("x", "string", "x", "string"))
	assert.Equal(t, int64(0), cypherCaseEq("1", "string", int64(1), "integer"))
	assert.Nil(t, cypherCaseEq(nil, "null", int64(1), "integer"))
	// Unknown tags defer to value comparison.
	assert.Equal(t, int64(1), cypherCaseEq(int64(1), "unknown", int64(1), "integer"))
}

func TestCypherDurationSeconds(t *testing.T) {
	assert.Equal(t, int64(86400), cypherDurationSeconds("P1D"))
	assert.Equal(t, int64(1800), cypherDurationSeconds("PT30M"))
	assert.Equal(t, int64(30*86400), cypherDurationSeconds("P1M"))
	assert.Nil(t, cypherDurationSeconds("bogus"))
	assert.Nil(t, cypherDurationSeconds(nil))
}
