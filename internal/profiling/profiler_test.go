package profiling

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mmmstudio/domain/modeling"
)

func points(values ...float64) []modeling.SeriesPoint {
	out := make([]modeling.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = modeling.SeriesPoint{Timestamp: string(rune('a' + i)), Value: v}
	}
	return out
}

func TestProfile(t *testing.T) {
	p := NewProfiler().Profile("TV", points(0, 2, 4, 6, 8, 100))

	assert.Equal(t, 6, p.Count)
	assert.InDelta(t, 20.0, p.Mean, 1e-9)
	assert.Equal(t, 0.0, p.Min)
	assert.Equal(t, 100.0, p.Max)
	assert.InDelta(t, 5.0, p.Median, 1e-9)
	assert.InDelta(t, 1.0/6, p.ZeroShare, 1e-9)
	assert.Equal(t, 1, p.OutlierCount)
	assert.False(t, p.Constant)
}

func TestProfileConstantAndEmpty(t *testing.T) {
	c := NewProfiler().Profile("Price", points(3, 3, 3))
	assert.True(t, c.Constant)
	assert.Equal(t, 0.0, c.StdDev)

	e := NewProfiler().Profile("Missing", nil)
	assert.Equal(t, SeriesProfile{Variable: "Missing"}, e)
}

func TestProfileSetKeepsOrder(t *testing.T) {
	set := modeling.SeriesSet{"A": points(1, 2), "B": points(3)}
	out := NewProfiler().ProfileSet([]string{"B", "A"}, set)

	assert.Equal(t, "B", out[0].Variable)
	assert.Equal(t, "A", out[1].Variable)
}
