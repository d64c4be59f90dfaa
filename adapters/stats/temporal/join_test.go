package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mmmstudio/domain/modeling"
)

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"2024-01-01":                "2024-01-01",
		" 2024-01-01 ":              "2024-01-01",
		"2024-01-01T00:00:00":       "2024-01-01",
		"2024-01-01 00:00:00":       "2024-01-01",
		"2024-01-01T00:00:00Z":      "2024-01-01",
		"2024-01-01T12:30:00":       "2024-01-01T12:30:00Z",
		"2024-01-01T02:00:00+02:00": "2024-01-01",
		"week 7":                    "week 7",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKey(in), "NormalizeKey(%q)", in)
	}
}

func TestIndexFirstOccurrenceWins(t *testing.T) {
	idx := Index([]modeling.SeriesPoint{
		{Timestamp: "2024-01-01", Value: 1},
		{Timestamp: "2024-01-01T00:00:00", Value: 99},
		{Timestamp: "2024-01-08", Value: 2},
	})

	assert.Equal(t, []string{"2024-01-01", "2024-01-08"}, idx.Keys)
	assert.Equal(t, 1.0, idx.Values["2024-01-01"])
}

func TestJoinKeepsOnlySharedKeys(t *testing.T) {
	a := Index([]modeling.SeriesPoint{
		{Timestamp: "2024-01-01", Value: 1},
		{Timestamp: "2024-01-08", Value: 2},
		{Timestamp: "2024-01-15", Value: 3},
	})
	b := Index([]modeling.SeriesPoint{
		{Timestamp: "2024-01-15T00:00:00", Value: 30},
		{Timestamp: "2024-01-01T00:00:00", Value: 10},
		{Timestamp: "2024-02-01", Value: 40},
	})

	xs, ys := Join(a, b)
	assert.Equal(t, []float64{1, 3}, xs)
	assert.Equal(t, []float64{10, 30}, ys)
}

func TestJoinNoOverlap(t *testing.T) {
	a := Index([]modeling.SeriesPoint{{Timestamp: "2024-01-01", Value: 1}})
	b := Index([]modeling.SeriesPoint{{Timestamp: "2025-01-01", Value: 1}})

	xs, ys := Join(a, b)
	assert.Empty(t, xs)
	assert.Empty(t, ys)
}
