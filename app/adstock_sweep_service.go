package app

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// DefaultSweepRates are the candidate decay percentages when none are given
var DefaultSweepRates = []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}

// SweepRequest asks for one variable to be tested at several adstock rates
type SweepRequest struct {
	Model    string `json:"model"`
	Variable string `json:"variable"`
	// Rates are percentages in [0,100]. Empty means DefaultSweepRates.
	Rates []int `json:"rates,omitempty"`
}

// SweepVariant is one successful test of the swept variable
type SweepVariant struct {
	Label       string   `json:"label"`
	Rate        int      `json:"rate"`
	Column      string   `json:"column"`
	Coefficient float64  `json:"coefficient"`
	TStat       float64  `json:"tStat"`
	PValue      float64  `json:"pValue"`
	VIF         *float64 `json:"vif,omitempty"`
	Significant bool     `json:"significant"`
}

// SweepFailure is a rate whose test did not produce a result
type SweepFailure struct {
	Label string `json:"label"`
	Rate  int    `json:"rate"`
	Error string `json:"error"`
}

// SweepResult separates ranked successes from failed rates
type SweepResult struct {
	ID       core.SweepID   `json:"id"`
	Model    string         `json:"model"`
	Variable string         `json:"variable"`
	Ranked   []SweepVariant `json:"ranked"`
	Failures []SweepFailure `json:"failures"`
	// RuntimeMs is the wall time of the whole fan-out.
	RuntimeMs int64 `json:"runtimeMs"`
}

// AllFailed reports whether no rate produced a result
func (r *SweepResult) AllFailed() bool {
	return len(r.Ranked) == 0 && len(r.Failures) > 0
}

// Best returns the top-ranked variant
func (r *SweepResult) Best() (SweepVariant, bool) {
	if len(r.Ranked) == 0 {
		return SweepVariant{}, false
	}
	return r.Ranked[0], true
}

// AdstockSweepService tests a variable at each candidate decay rate concurrently
type AdstockSweepService struct {
	tests          ports.SignificancePort
	defaultRates   []int
	maxConcurrency int
	logger         *zap.Logger
}

// NewAdstockSweepService creates a sweep service. maxConcurrency <= 0 means unbounded.
func NewAdstockSweepService(tests ports.SignificancePort, defaultRates []int, maxConcurrency int, logger *zap.Logger) *AdstockSweepService {
	if len(defaultRates) == 0 {
		defaultRates = DefaultSweepRates
	}
	return &AdstockSweepService{
		tests:          tests,
		defaultRates:   slices.Clone(defaultRates),
		maxConcurrency: maxConcurrency,
		logger:         logging.OrNop(logger),
	}
}

// Run tests every rate and waits for all of them. A failing rate never
// cancels the others; it is reported in Failures. Variants are ranked by
// descending |t|, ties keeping rate order.
func (s *AdstockSweepService) Run(ctx context.Context, req SweepRequest) (*SweepResult, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	if strings.TrimSpace(req.Variable) == "" {
		return nil, errors.Validation(core.ErrEmptySelection)
	}
	rates, err := s.rates(req.Rates)
	if err != nil {
		return nil, errors.Validation(err)
	}

	start := time.Now()
	variants := make([]*SweepVariant, len(rates))
	failures := make([]*SweepFailure, len(rates))

	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, pct := range rates {
		g.Go(func() error {
			variant, err := s.testRate(ctx, req.Model, req.Variable, pct)
			if err != nil {
				failures[i] = &SweepFailure{
					Label: modeling.AdstockLabel(req.Variable, pct),
					Rate:  pct,
					Error: err.Error(),
				}
				return nil
			}
			variants[i] = variant
			return nil
		})
	}
	_ = g.Wait()

	result := &SweepResult{
		ID:        core.NewSweepID(),
		Model:     req.Model,
		Variable:  req.Variable,
		Ranked:    []SweepVariant{},
		Failures:  []SweepFailure{},
		RuntimeMs: time.Since(start).Milliseconds(),
	}
	for i := range rates {
		if variants[i] != nil {
			result.Ranked = append(result.Ranked, *variants[i])
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
		}
	}
	sort.SliceStable(result.Ranked, func(a, b int) bool {
		return math.Abs(result.Ranked[a].TStat) > math.Abs(result.Ranked[b].TStat)
	})

	s.logger.Info("adstock sweep finished",
		zap.String("sweep", result.ID.String()),
		zap.String("model", req.Model),
		zap.String("variable", req.Variable),
		zap.Int("ranked", len(result.Ranked)),
		zap.Int("failed", len(result.Failures)),
		zap.Int64("runtime_ms", result.RuntimeMs))
	return result, nil
}

func (s *AdstockSweepService) testRate(ctx context.Context, model, variable string, pct int) (*SweepVariant, error) {
	rate := modeling.RateFromPercent(pct)
	results, err := s.tests.TestVariables(ctx, model, []string{variable}, []float64{float64(rate)})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no result for %s", core.ErrRemoteCompute, variable)
	}
	res := results[0]
	if res.Failed() {
		return nil, fmt.Errorf("%w: %s", core.ErrRemoteCompute, res.Error)
	}
	return &SweepVariant{
		Label:       modeling.AdstockLabel(variable, pct),
		Rate:        pct,
		Column:      modeling.AdstockColumn(variable, pct),
		Coefficient: res.Coefficient,
		TStat:       res.TStat,
		PValue:      PValue(res),
		VIF:         res.VIF,
		Significant: modeling.IsSignificant(res.TStat),
	}, nil
}

func (s *AdstockSweepService) rates(requested []int) ([]int, error) {
	if len(requested) == 0 {
		return slices.Clone(s.defaultRates), nil
	}
	seen := make(map[int]bool, len(requested))
	out := make([]int, 0, len(requested))
	for _, pct := range requested {
		if pct < 0 || pct > 100 {
			return nil, fmt.Errorf("%w: %d%%", core.ErrInvalidAdstockRate, pct)
		}
		if seen[pct] {
			continue
		}
		seen[pct] = true
		out = append(out, pct)
	}
	return out, nil
}
