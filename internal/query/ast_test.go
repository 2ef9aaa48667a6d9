package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestLowerTextContains(t *testing.T) {
	sql, args := Lower(TextContains{Key: "t", Term: "blah"}, 0)
	assert.Equal(t, "((properties->>$1) ILIKE $2)", sql)
	assert.Equal(t, []interface{}{"t", "%blah%"}, args)
}

func TestLowerNumberRange(t *testing.T) {
	sql, args := Lower(NumberRange{Key: "n", Min: floatPtr(20)}, 0)
	assert.Equal(t, "((properties->>$1)::double precision >= $2)", sql)
	assert.Equal(t, []interface{}{"n", 20.0}, args)

	sql, args = Lower(NumberRange{Key: "n", Min: floatPtr(1), Max: floatPtr(10)}, 0)
	assert.Equal(t, "((properties->>$1)::double precision >= $2 AND (properties->>$1)::double precision <= $3)", sql)
	require.Len(t, args, 3)
}

func TestLowerNumberRangeReusesKeyPlaceholder(t *testing.T) {
	// The key placeholder is emitted once per cast expression, so both
	// bounds reference the same argument index.
	sql, _ := Lower(NumberRange{Key: "n", Min: floatPtr(1), Max: floatPtr(10)}, 0)
	assert.Contains(t, sql, "$1")
	assert.Contains(t, sql, "$2")
	assert.Contains(t, sql, "$3")
}

func TestLowerTimeRangeWrapsAroundMidnight(t *testing.T) {
	sql, args := Lower(TimeRange{Key: "appointment", Min: strPtr("21:00"), Max: strPtr("03:00")}, 0)
	assert.Equal(t, "((properties->>$1) >= $2 OR (properties->>$1) <= $3)", sql)
	assert.Equal(t, []interface{}{"appointment", "21:00", "03:00"}, args)
}

func TestLowerTimeRangeConjunctive(t *testing.T) {
	sql, _ := Lower(TimeRange{Key: "appointment", Min: strPtr("10:00"), Max: strPtr("12:00")}, 0)
	assert.Equal(t, "((properties->>$1) >= $2 AND (properties->>$1) <= $3)", sql)
}

func TestLowerDateRangeUsesDateTimeLayout(t *testing.T) {
	sql, _ := Lower(DateRange{Key: "d", WithTime: true, Min: strPtr("2014-01-01 00:00")}, 0)
	assert.Contains(t, sql, "YYYY-MM-DD HH24:MI")

	sql, _ = Lower(DateRange{Key: "d", Min: strPtr("2014-01-01")}, 0)
	assert.Contains(t, sql, "'YYYY-MM-DD'")
}

func TestLowerAndComposition(t *testing.T) {
	now := time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	node := And{
		CategoryIs{ID: "cat-1"},
		CreatedBetween{Min: &now},
		NumberRange{Key: "n", Min: floatPtr(20)},
		TextContains{Key: "t", Term: "blah"},
	}
	sql, args := Lower(node, 0)
	assert.Equal(t,
		"((category_id = $1) AND (created_at >= $2) AND ((properties->>$3)::double precision >= $4) AND ((properties->>$5) ILIKE $6))",
		sql)
	require.Len(t, args, 6)
	assert.Equal(t, "%blah%", args[5])
}

func TestLowerArgOffset(t *testing.T) {
	sql, args := Lower(TextContains{Key: "t", Term: "x"}, 3)
	assert.Equal(t, "((properties->>$4) ILIKE $5)", sql)
	require.Len(t, args, 2)
}

func TestLowerEmptyCombinators(t *testing.T) {
	sql, args := Lower(And{}, 0)
	assert.Equal(t, "TRUE", sql)
	assert.Empty(t, args)

	sql, _ = Lower(Or{}, 0)
	assert.Equal(t, "FALSE", sql)

	sql, _ = Lower(Nothing{}, 0)
	assert.Equal(t, "FALSE", sql)
}

func TestLowerLookups(t *testing.T) {
	sql, args := Lower(SingleLookupIn{Key: "choice", IDs: []int64{1, 2}}, 0)
	assert.Equal(t, "((properties->>$1)::int = ANY($2))", sql)
	require.Len(t, args, 2)

	sql, _ = Lower(MultipleLookupOverlaps{Key: "tags", IDs: []int64{1, 2}}, 0)
	assert.Equal(t, "(ARRAY(SELECT jsonb_array_elements_text(properties->$1))::int[] && $2)", sql)

	sql, _ = Lower(SingleLookupIn{Key: "choice"}, 0)
	assert.Equal(t, "FALSE", sql)
}

func TestLowerSearchTokens(t *testing.T) {
	sql, args := Lower(SearchTokens{"xyz", "abc"}, 0)
	assert.Equal(t, "(search_index ILIKE $1 AND search_index ILIKE $2)", sql)
	assert.Equal(t, []interface{}{"%xyz%", "%abc%"}, args)

	sql, _ = Lower(SearchTokens{}, 0)
	assert.Equal(t, "TRUE", sql)
}
