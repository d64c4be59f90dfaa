package correlation

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mmmstudio/domain/modeling"
	"mmmstudio/internal/testkit"
)

func series(values ...float64) []modeling.SeriesPoint {
	points := make([]modeling.SeriesPoint, len(values))
	for i, v := range values {
		points[i] = modeling.SeriesPoint{Timestamp: []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22", "2024-01-29"}[i], Value: v}
	}
	return points
}

func TestPerfectNegativeCorrelation(t *testing.T) {
	m := NewEngine(nil).Compute([]string{"A", "B"}, modeling.SeriesSet{
		"A": series(1, 2, 3),
		"B": series(3, 2, 1),
	})

	want := &Matrix{
		Variables: []string{"A", "B"},
		Values:    [][]float64{{1, -1}, {-1, 1}},
		Overlap:   [][]int{{3, 3}, {3, 3}},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("matrix mismatch (-want +got):\n%s", diff)
	}
}

func TestNoOverlapIsZero(t *testing.T) {
	m := NewEngine(nil).Compute([]string{"A", "B"}, modeling.SeriesSet{
		"A": {{Timestamp: "2024-01-01", Value: 1}, {Timestamp: "2024-01-02", Value: 2}},
		"B": {{Timestamp: "2025-01-01", Value: 1}, {Timestamp: "2025-01-02", Value: 2}},
	})

	r, ok := m.Get("A", "B")
	if !ok || r != 0 || math.Signbit(r) {
		t.Fatalf("no overlap should give exactly 0, got %v (ok=%v)", r, ok)
	}
}

func TestDegenerateInputsAreZero(t *testing.T) {
	cases := map[string]modeling.SeriesSet{
		"single pair":    {"A": series(1), "B": series(2)},
		"constant input": {"A": series(5, 5, 5), "B": series(1, 2, 3)},
		"missing series": {"A": series(1, 2, 3)},
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			m := NewEngine(nil).Compute([]string{"A", "B"}, set)
			if r, _ := m.Get("A", "B"); r != 0 {
				t.Errorf("got %v, want 0", r)
			}
			if r, _ := m.Get("A", "A"); r != 1 {
				t.Errorf("diagonal = %v, want 1", r)
			}
		})
	}
}

func TestJoinUsesNormalizedTimestamps(t *testing.T) {
	m := NewEngine(nil).Compute([]string{"A", "B"}, modeling.SeriesSet{
		"A": {{Timestamp: "2024-01-01", Value: 1}, {Timestamp: "2024-01-08", Value: 2}, {Timestamp: "2024-01-15", Value: 3}},
		"B": {{Timestamp: "2024-01-01T00:00:00", Value: 2}, {Timestamp: "2024-01-08T00:00:00", Value: 4}, {Timestamp: "2024-01-15T00:00:00", Value: 6}},
	})
	if r, _ := m.Get("A", "B"); r != 1 {
		t.Errorf("got %v, want 1", r)
	}
}

func TestMatrixIsSymmetricWithUnitDiagonal(t *testing.T) {
	kit := testkit.NewTestKit()
	vars := []string{"TV", "Radio", "Search", "Social", "Sales"}

	m := NewEngine(nil).Compute(vars, kit.Dataset.Series)

	for i := range vars {
		if m.Values[i][i] != 1 {
			t.Errorf("diagonal %s = %v", vars[i], m.Values[i][i])
		}
		for j := range vars {
			if m.Values[i][j] != m.Values[j][i] {
				t.Errorf("asymmetric at %s/%s: %v vs %v", vars[i], vars[j], m.Values[i][j], m.Values[j][i])
			}
			if m.Values[i][j] < -1 || m.Values[i][j] > 1 {
				t.Errorf("out of range at %s/%s: %v", vars[i], vars[j], m.Values[i][j])
			}
			if rounded := math.Round(m.Values[i][j]*100) / 100; rounded != m.Values[i][j] {
				t.Errorf("not rounded to 2dp at %s/%s: %v", vars[i], vars[j], m.Values[i][j])
			}
		}
	}
	if r, _ := m.Get("TV", "Sales"); r <= 0 {
		t.Errorf("TV drives Sales in the fixture, expected positive r, got %v", r)
	}
}

func TestDuplicateSelectionKeptOnce(t *testing.T) {
	m := NewEngine(nil).Compute([]string{"A", "B", "A"}, modeling.SeriesSet{
		"A": series(1, 2, 3),
		"B": series(2, 4, 7),
	})
	if diff := cmp.Diff([]string{"A", "B"}, m.Variables); diff != "" {
		t.Errorf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestRound(t *testing.T) {
	cases := map[float64]float64{
		0.996:   1,
		-0.004:  0,
		0.125:   0.13,
		-0.8749: -0.87,
		1.0001:  1,
	}
	for in, want := range cases {
		if got := Round(in); got != want {
			t.Errorf("Round(%v) = %v, want %v", in, got, want)
		}
	}
}
