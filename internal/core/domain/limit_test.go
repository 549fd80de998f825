package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnforceLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "missing limit appended",
			in:   "SELECT count() FROM trips",
			want: "SELECT count() FROM trips LIMIT 100",
		},
		{
			name: "limit within bounds untouched",
			in:   "SELECT * FROM trips LIMIT 50",
			want: "SELECT * FROM trips LIMIT 50",
		},
		{
			name: "limit at max untouched",
			in:   "SELECT * FROM trips LIMIT 1000",
			want: "SELECT * FROM trips LIMIT 1000",
		},
		{
			name: "limit above max capped",
			in:   "SELECT * FROM trips LIMIT 5000",
			want: "SELECT * FROM trips LIMIT 1000",
		},
		{
			name: "lowercase limit recognized",
			in:   "select * from trips limit 9999",
			want: "select * from trips limit 1000",
		},
		{
			name: "trailing semicolon stripped",
			in:   "SELECT count() FROM trips;",
			want: "SELECT count() FROM trips LIMIT 100",
		},
		{
			name: "trailing comment stripped",
			in:   "SELECT count() FROM trips -- note",
			want: "SELECT count() FROM trips LIMIT 100",
		},
		{
			name: "number too large for int capped",
			in:   "SELECT * FROM trips LIMIT 99999999999999999999",
			want: "SELECT * FROM trips LIMIT 1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ok, bounded, violations := EnforceLimit(tt.in, 100, 1000)
			assert.True(t, ok)
			assert.Empty(t, violations)
			assert.Equal(t, tt.want, bounded)
		})
	}
}

func TestEnforceLimit_FirstLimitOnly(t *testing.T) {
	t.Parallel()
	ok, bounded, _ := EnforceLimit(
		"SELECT * FROM (SELECT * FROM trips LIMIT 9999) sub LIMIT 5", 100, 1000)
	assert.True(t, ok)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM trips LIMIT 1000) sub LIMIT 5", bounded)
}

func TestEnforceLimit_LimitInsideCommentIgnored(t *testing.T) {
	t.Parallel()
	ok, bounded, _ := EnforceLimit("SELECT count() FROM trips /* LIMIT 9999 */", 100, 1000)
	assert.True(t, ok)
	assert.Equal(t, "SELECT count() FROM trips LIMIT 100", bounded)
}

func TestEnforceLimit_UsesSchemaLimits(t *testing.T) {
	t.Parallel()
	ok, bounded, _ := EnforceLimit("SELECT count() FROM trips", 25, 200)
	assert.True(t, ok)
	assert.Equal(t, "SELECT count() FROM trips LIMIT 25", bounded)

	ok, bounded, _ = EnforceLimit("SELECT count() FROM trips LIMIT 500", 25, 200)
	assert.True(t, ok)
	assert.Equal(t, "SELECT count() FROM trips LIMIT 200", bounded)
}
