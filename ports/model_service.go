package ports

import (
	"context"

	"mmmstudio/domain/modeling"
)

// ModelCatalogPort reads models and variables from the statistics service
type ModelCatalogPort interface {
	// ListModels returns every model plus the service-side active model
	ListModels(ctx context.Context) (*modeling.ModelList, error)

	// GetVariables returns the full variable catalog
	GetVariables(ctx context.Context) ([]modeling.Variable, error)

	// GetModelVariables returns the fitted variables of one model, intercept included
	GetModelVariables(ctx context.Context, model string) ([]modeling.Variable, error)
}

// AddVariablesRequest carries an add edit over the wire
type AddVariablesRequest struct {
	Model        string
	Variables    []string
	AdstockRates []float64
	// FixedCoefficients is optional; nil means every coefficient is estimated.
	FixedCoefficients modeling.FixedCoefficientMap
}

// ModelEditPort proposes and applies model edits. Preview calls never
// change backend state; the matching mutating call re-sends the same operation.
type ModelEditPort interface {
	PreviewAddVariables(ctx context.Context, req AddVariablesRequest) (*modeling.Comparison, error)
	AddVariables(ctx context.Context, req AddVariablesRequest) error

	PreviewRemoveVariables(ctx context.Context, model string, variables []string) (*modeling.Comparison, error)
	RemoveVariables(ctx context.Context, model string, variables []string) error

	// FixCoefficients pins coefficients. With preview set it returns the
	// comparison and leaves the model untouched; otherwise the comparison is nil.
	FixCoefficients(ctx context.Context, model string, coefficients modeling.FixedCoefficientMap, preview bool) (*modeling.Comparison, error)
}

// SignificancePort runs per-variable significance tests against a model
type SignificancePort interface {
	// TestVariables fits each variable against the model. adstockRates
	// holds one fraction per variable; nil means no adstock.
	TestVariables(ctx context.Context, model string, variables []string, adstockRates []float64) ([]modeling.TestResult, error)
}

// SeriesPort fetches raw time series for charting and correlation
type SeriesPort interface {
	GetSeries(ctx context.Context, model string, variables []string) (modeling.SeriesSet, error)
}

// WeightedVariablePort manages composite variables
type WeightedVariablePort interface {
	// CreateWeightedVariable returns the name the service assigned
	CreateWeightedVariable(ctx context.Context, model, baseName string, coefficients map[string]float64) (string, error)
	UpdateWeightedVariable(ctx context.Context, model, variableName string, coefficients map[string]float64) error
	GetWeightedVariableComponents(ctx context.Context, model, variableName string) (*modeling.WeightedComponents, error)
}

// DecompositionPort computes contribution breakdowns. Implementations use an extended deadline.
type DecompositionPort interface {
	Decomposition(ctx context.Context, model string) (*modeling.Decomposition, error)
}

// ModelServicePort is the full statistics service surface
type ModelServicePort interface {
	ModelCatalogPort
	ModelEditPort
	SignificancePort
	SeriesPort
	WeightedVariablePort
	DecompositionPort
}
