package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// DecompositionService passes contribution requests through to the service,
// which applies its own extended deadline.
type DecompositionService struct {
	port   ports.DecompositionPort
	logger *zap.Logger
}

func NewDecompositionService(port ports.DecompositionPort, logger *zap.Logger) *DecompositionService {
	return &DecompositionService{port: port, logger: logging.OrNop(logger)}
}

// Decompose returns the per-period contributions of model
func (s *DecompositionService) Decompose(ctx context.Context, model string) (*modeling.Decomposition, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	d, err := s.port.Decomposition(ctx, model)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("decomposition fetched",
		zap.String("model", model),
		zap.Int("periods", len(d.Dates)),
		zap.Int("contributors", len(d.Contributions)))
	return d, nil
}
