package app

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// PValue returns the service's p-value, or a two-sided normal approximation
// from the t-statistic when the service sent none.
func PValue(res modeling.TestResult) float64 {
	if res.PValue != nil && !math.IsNaN(*res.PValue) {
		return *res.PValue
	}
	if math.IsNaN(res.TStat) {
		return 1
	}
	return 2 * distuv.UnitNormal.Survival(math.Abs(res.TStat))
}

// ScreeningRequest tests each selected variable against a model
type ScreeningRequest struct {
	Model     string   `json:"model"`
	Variables []string `json:"variables"`
	// AdstockRates optionally maps a variable to a percentage.
	AdstockRates map[string]int `json:"adstockRates,omitempty"`
}

// ScreeningRow is one variable's significance test
type ScreeningRow struct {
	Variable    string   `json:"variable"`
	Column      string   `json:"column"`
	Coefficient float64  `json:"coefficient"`
	TStat       float64  `json:"tStat"`
	PValue      float64  `json:"pValue"`
	VIF         *float64 `json:"vif,omitempty"`
	Significant bool     `json:"significant"`
	InModel     bool     `json:"inModel"`
}

// ScreeningFailure is a variable the service could not test
type ScreeningFailure struct {
	Variable string `json:"variable"`
	Error    string `json:"error"`
}

// ScreeningResult keeps selection order for both lists
type ScreeningResult struct {
	Model    string             `json:"model"`
	Results  []ScreeningRow     `json:"results"`
	Failures []ScreeningFailure `json:"failures"`
}

// AllFailed reports whether no variable produced a result
func (r *ScreeningResult) AllFailed() bool {
	return len(r.Results) == 0 && len(r.Failures) > 0
}

// VariableScreeningService runs one significance test per selected variable
type VariableScreeningService struct {
	tests          ports.SignificancePort
	registry       *ModelRegistry
	maxConcurrency int
	logger         *zap.Logger
}

// NewVariableScreeningService creates a screening service. registry may be nil.
func NewVariableScreeningService(tests ports.SignificancePort, registry *ModelRegistry, maxConcurrency int, logger *zap.Logger) *VariableScreeningService {
	return &VariableScreeningService{
		tests:          tests,
		registry:       registry,
		maxConcurrency: maxConcurrency,
		logger:         logging.OrNop(logger),
	}
}

// Screen tests every variable independently so one failure does not hide the rest
func (s *VariableScreeningService) Screen(ctx context.Context, req ScreeningRequest) (*ScreeningResult, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	variables := dedupeNames(req.Variables)
	if len(variables) == 0 {
		return nil, errors.Validation(core.ErrEmptySelection)
	}
	for v, pct := range req.AdstockRates {
		if pct < 0 || pct > 100 {
			return nil, errors.Validation(fmt.Errorf("%w: %s=%d%%", core.ErrInvalidAdstockRate, v, pct))
		}
	}

	var inModel func(string) bool
	if s.registry != nil {
		if model, err := s.registry.Model(ctx, req.Model); err == nil {
			inModel = model.HasVariable
		} else {
			s.logger.Debug("screening without model snapshot", zap.String("model", req.Model), zap.Error(err))
		}
	}

	rows := make([]*ScreeningRow, len(variables))
	failures := make([]*ScreeningFailure, len(variables))

	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, v := range variables {
		g.Go(func() error {
			pct := req.AdstockRates[v]
			res, err := s.testOne(ctx, req.Model, v, pct)
			if err != nil {
				failures[i] = &ScreeningFailure{Variable: v, Error: err.Error()}
				return nil
			}
			column := modeling.AdstockColumn(v, pct)
			rows[i] = &ScreeningRow{
				Variable:    v,
				Column:      column,
				Coefficient: res.Coefficient,
				TStat:       res.TStat,
				PValue:      PValue(res),
				VIF:         res.VIF,
				Significant: modeling.IsSignificant(res.TStat),
				InModel:     inModel != nil && inModel(column),
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &ScreeningResult{Model: req.Model, Results: []ScreeningRow{}, Failures: []ScreeningFailure{}}
	for i := range variables {
		if rows[i] != nil {
			result.Results = append(result.Results, *rows[i])
		}
		if failures[i] != nil {
			result.Failures = append(result.Failures, *failures[i])
		}
	}

	s.logger.Info("screening finished",
		zap.String("model", req.Model),
		zap.Int("tested", len(result.Results)),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}

func (s *VariableScreeningService) testOne(ctx context.Context, model, variable string, pct int) (modeling.TestResult, error) {
	var rates []float64
	if pct > 0 {
		rates = []float64{float64(modeling.RateFromPercent(pct))}
	}
	results, err := s.tests.TestVariables(ctx, model, []string{variable}, rates)
	if err != nil {
		return modeling.TestResult{}, err
	}
	if len(results) == 0 {
		return modeling.TestResult{}, fmt.Errorf("%w: no result for %s", core.ErrRemoteCompute, variable)
	}
	if results[0].Failed() {
		return modeling.TestResult{}, fmt.Errorf("%w: %s", core.ErrRemoteCompute, results[0].Error)
	}
	return results[0], nil
}

func dedupeNames(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
