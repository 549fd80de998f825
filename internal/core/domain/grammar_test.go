package domain

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
)

func TestCompileGrammar_Golden(t *testing.T) {
	t.Parallel()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "trips_grammar", []byte(CompileGrammar(testSchema())))
}

func TestCompileGrammar_Deterministic(t *testing.T) {
	t.Parallel()
	first := CompileGrammar(testSchema())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CompileGrammar(testSchema()))
	}
}

func TestCompileGrammar_Whitelists(t *testing.T) {
	t.Parallel()
	grammar := CompileGrammar(testSchema())

	assert.Contains(t, grammar, `TABLE: "trips"`)
	assert.Contains(t, grammar, "COLUMN: /tpep_pickup_datetime|tpep_dropoff_datetime|passenger_count|trip_distance|payment_type|fare_amount/")
	assert.Contains(t, grammar, "AGG_COLUMN: /passenger_count|trip_distance|fare_amount/")
	assert.Contains(t, grammar, "GROUP_COLUMN: /passenger_count|payment_type/")
	assert.Contains(t, grammar, "FILTER_STRING_COLUMN: /payment_type/")
	assert.Contains(t, grammar, "AGG_FUNC: /count|sum|avg|min|max/")
	assert.Contains(t, grammar, "STRING_VALUE: /CSH|CRE|NOC|DIS|UNK/")
	assert.Contains(t, grammar, `DATETIME_COL: "tpep_pickup_datetime"`)

	// Whitelists must never leak columns lacking the capability.
	assert.NotContains(t, grammar, "AGG_COLUMN: /tpep_pickup_datetime")
	assert.NotContains(t, grammar, "GROUP_COLUMN: /tpep_pickup_datetime")
}

func TestCompileGrammar_EmptyWhitelistSentinel(t *testing.T) {
	t.Parallel()
	s := testSchema()
	for i := range s.Columns {
		s.Columns[i].Groupable = false
		s.Columns[i].AllowedValues = nil
	}

	grammar := CompileGrammar(s)
	assert.Contains(t, grammar, `GROUP_COLUMN: /[^\s\S]/`)
	assert.Contains(t, grammar, `STRING_VALUE: /[^\s\S]/`)
}

func TestCompileGrammar_EscapesMetacharacters(t *testing.T) {
	t.Parallel()
	s := testSchema()
	s.Columns[4].AllowedValues = []string{"a+b", "c.d"}

	grammar := CompileGrammar(s)
	assert.Contains(t, grammar, `STRING_VALUE: /a\+b|c\.d/`)
}

func TestCompileGrammar_StatementShape(t *testing.T) {
	t.Parallel()
	grammar := CompileGrammar(testSchema())

	// The rule skeleton is fixed: single SELECT statement, AND-only
	// conjunctions, no OR anywhere.
	assert.Contains(t, grammar, "start: select_stmt")
	assert.Contains(t, grammar, "select_stmt: SELECT WS select_list WS FROM WS TABLE")
	assert.Contains(t, grammar, "where_clause: WS WHERE WS condition (WS AND WS condition)*")
	assert.NotContains(t, strings.ToUpper(grammar), "OR:")
}
