package correlation

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"mmmstudio/adapters/stats/temporal"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/logging"
)

// MinPairs is the fewest matched observations a coefficient is computed from
const MinPairs = 2

// Matrix is a symmetric correlation matrix over a variable selection
type Matrix struct {
	Variables []string    `json:"variables"`
	Values    [][]float64 `json:"values"`
	// Overlap counts the matched observations behind each cell.
	Overlap [][]int `json:"overlap"`
}

// Get returns corr[a][b]
func (m *Matrix) Get(a, b string) (float64, bool) {
	i := slices.Index(m.Variables, a)
	j := slices.Index(m.Variables, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// Engine computes pairwise Pearson matrices
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates a correlation engine
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logging.OrNop(logger)}
}

// Compute builds the matrix for variables. Each unordered pair is joined on
// normalized timestamps and recomputed from scratch. A variable absent from
// series is treated as an empty series. Repeated names are kept once.
func (e *Engine) Compute(variables []string, series modeling.SeriesSet) *Matrix {
	names := dedupe(variables)
	k := len(names)

	indexed := make([]temporal.Indexed, k)
	for i, name := range names {
		indexed[i] = temporal.Index(series[name])
	}

	m := &Matrix{
		Variables: names,
		Values:    make([][]float64, k),
		Overlap:   make([][]int, k),
	}
	for i := range names {
		m.Values[i] = make([]float64, k)
		m.Overlap[i] = make([]int, k)
		m.Values[i][i] = 1
		m.Overlap[i][i] = indexed[i].Len()
	}

	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			xs, ys := temporal.Join(indexed[i], indexed[j])
			r := Round(Pearson(xs, ys))
			m.Values[i][j], m.Values[j][i] = r, r
			m.Overlap[i][j], m.Overlap[j][i] = len(xs), len(xs)
			if len(xs) < MinPairs {
				e.logger.Debug("correlation pair has too little overlap",
					zap.String("a", names[i]), zap.String("b", names[j]), zap.Int("pairs", len(xs)))
			}
		}
	}
	return m
}

// Pearson returns r = (nΣxy − ΣxΣy) / sqrt((nΣx² − (Σx)²)(nΣy² − (Σy)²)).
// It is 0 with fewer than MinPairs pairs or a zero denominator, never NaN.
func Pearson(xs, ys []float64) float64 {
	if len(xs) != len(ys) || len(xs) < MinPairs {
		return 0
	}
	n := float64(len(xs))
	sx, sy := floats.Sum(xs), floats.Sum(ys)
	sxy := floats.Dot(xs, ys)
	sxx := floats.Dot(xs, xs)
	syy := floats.Dot(ys, ys)

	den := math.Sqrt((n*sxx - sx*sx) * (n*syy - sy*sy))
	if den == 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	r := (n*sxy - sx*sy) / den
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Round rounds r to two decimals and clamps it to [-1, 1]
func Round(r float64) float64 {
	rounded, err := stats.Round(r, 2)
	if err != nil {
		return 0
	}
	rounded = math.Max(-1, math.Min(1, rounded))
	if rounded == 0 {
		// drop negative zero
		return 0
	}
	return rounded
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
