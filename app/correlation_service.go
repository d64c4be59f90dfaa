package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mmmstudio/adapters/stats/correlation"
	"mmmstudio/domain/core"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/internal/profiling"
	"mmmstudio/ports"
)

// CorrelationRequest selects the variables to correlate
type CorrelationRequest struct {
	Model     string   `json:"model"`
	Variables []string `json:"variables"`
}

// CorrelationReport is a matrix plus a summary of each input series
type CorrelationReport struct {
	Model    string                    `json:"model"`
	Matrix   *correlation.Matrix       `json:"matrix"`
	Profiles []profiling.SeriesProfile `json:"profiles"`
	// Missing lists selected variables the service returned no series for.
	Missing []string `json:"missing,omitempty"`
}

// CorrelationService fetches series and computes the correlation matrix
type CorrelationService struct {
	series   ports.SeriesPort
	engine   *correlation.Engine
	profiler *profiling.Profiler
	logger   *zap.Logger
}

// NewCorrelationService creates a correlation service
func NewCorrelationService(series ports.SeriesPort, engine *correlation.Engine, logger *zap.Logger) *CorrelationService {
	if engine == nil {
		engine = correlation.NewEngine(logger)
	}
	return &CorrelationService{
		series:   series,
		engine:   engine,
		profiler: profiling.NewProfiler(),
		logger:   logging.OrNop(logger),
	}
}

// Correlate fetches the selected series and recomputes the full matrix
func (s *CorrelationService) Correlate(ctx context.Context, req CorrelationRequest) (*CorrelationReport, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	variables := dedupeNames(req.Variables)
	if len(variables) == 0 {
		return nil, errors.Validation(core.ErrEmptySelection)
	}

	set, err := s.series.GetSeries(ctx, req.Model, variables)
	if err != nil {
		return nil, err
	}

	report := &CorrelationReport{
		Model:    req.Model,
		Matrix:   s.engine.Compute(variables, set),
		Profiles: s.profiler.ProfileSet(variables, set),
	}
	for _, v := range variables {
		if len(set[v]) == 0 {
			report.Missing = append(report.Missing, v)
		}
	}

	s.logger.Debug("correlation computed",
		zap.String("model", req.Model),
		zap.Int("variables", len(variables)),
		zap.Strings("missing", report.Missing))
	return report, nil
}
