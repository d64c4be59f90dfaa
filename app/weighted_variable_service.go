package app

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// SignPolicy decides which coefficient signs may seed a weight
type SignPolicy int

const (
	SignMixed SignPolicy = iota
	SignPositiveOnly
	SignNegativeOnly
)

func (p SignPolicy) String() string {
	switch p {
	case SignMixed:
		return "mixed"
	case SignPositiveOnly:
		return "positive"
	case SignNegativeOnly:
		return "negative"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseSignPolicy accepts "mixed", "positive" and "negative". Empty means mixed.
func ParseSignPolicy(s string) (SignPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mixed", "any":
		return SignMixed, nil
	case "positive", "positive_only", "positiveonly":
		return SignPositiveOnly, nil
	case "negative", "negative_only", "negativeonly":
		return SignNegativeOnly, nil
	default:
		return 0, fmt.Errorf("unknown sign policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (p SignPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *SignPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseSignPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// InitializeWeight seeds a component weight from its test result. Anything
// at or under the one-sided threshold, or with a sign the policy rejects, is 0.
func InitializeWeight(coef, tStat float64, policy SignPolicy) float64 {
	if math.IsNaN(coef) || math.IsNaN(tStat) || math.Abs(tStat) <= modeling.WeightSeedTStat {
		return 0
	}
	switch policy {
	case SignPositiveOnly:
		if coef > 0 {
			return coef
		}
	case SignNegativeOnly:
		if coef < 0 {
			return coef
		}
	case SignMixed:
		return coef
	}
	return 0
}

// WeightedMode distinguishes a new composite from an edit of an existing one
type WeightedMode string

const (
	WeightedCreate WeightedMode = "create"
	WeightedUpdate WeightedMode = "update"
)

// WeightedDraft holds editable weights before they are sent to the service
type WeightedDraft struct {
	Model    string       `json:"model"`
	Mode     WeightedMode `json:"mode"`
	BaseName string       `json:"baseName"`
	// VariableName is set for updates and after a create.
	VariableName string             `json:"variableName,omitempty"`
	Weights      map[string]float64 `json:"weights"`
	// SeedFailures lists components whose test failed; their weight is 0.
	SeedFailures map[string]string `json:"seedFailures,omitempty"`
}

// Components returns component names in sorted order
func (d *WeightedDraft) Components() []string {
	return slices.Sorted(maps.Keys(d.Weights))
}

// SetWeight edits one component weight
func (d *WeightedDraft) SetWeight(component string, weight float64) error {
	if _, ok := d.Weights[component]; !ok {
		return errors.Validation(core.NewNotFoundError("component", component))
	}
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return errors.Validation(fmt.Errorf("%w: %s", core.ErrInvalidWeight, component))
	}
	d.Weights[component] = weight
	return nil
}

// Validate checks the draft can be submitted: a model, a name and at least
// one finite non-zero weight.
func (d *WeightedDraft) Validate() error {
	if strings.TrimSpace(d.Model) == "" {
		return core.ErrNoModelSelected
	}
	switch d.Mode {
	case WeightedCreate:
		if strings.TrimSpace(d.BaseName) == "" {
			return core.NewValidationError("baseName", "is required")
		}
	case WeightedUpdate:
		if strings.TrimSpace(d.VariableName) == "" {
			return core.NewValidationError("variableName", "is required")
		}
	default:
		return core.NewValidationError("mode", fmt.Sprintf("unknown mode %q", d.Mode))
	}
	if len(d.Weights) == 0 {
		return core.ErrEmptySelection
	}
	nonZero := false
	for name, w := range d.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s", core.ErrInvalidWeight, name)
		}
		if w != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		return fmt.Errorf("%w: every weight is zero", core.ErrInvalidWeight)
	}
	return nil
}

// SeedRequest asks for a create draft seeded from fresh significance tests
type SeedRequest struct {
	Model      string     `json:"model"`
	BaseName   string     `json:"baseName"`
	Components []string   `json:"components"`
	Policy     SignPolicy `json:"policy"`
}

// WeightedVariableService builds and submits composite variables
type WeightedVariableService struct {
	weighted       ports.WeightedVariablePort
	tests          ports.SignificancePort
	catalog        *VariableCatalog
	maxConcurrency int
	logger         *zap.Logger
}

// NewWeightedVariableService creates the builder. catalog may be nil.
func NewWeightedVariableService(weighted ports.WeightedVariablePort, tests ports.SignificancePort, catalog *VariableCatalog, maxConcurrency int, logger *zap.Logger) *WeightedVariableService {
	return &WeightedVariableService{
		weighted:       weighted,
		tests:          tests,
		catalog:        catalog,
		maxConcurrency: maxConcurrency,
		logger:         logging.OrNop(logger),
	}
}

// DraftFromResults seeds a create draft from test results already at hand
func (s *WeightedVariableService) DraftFromResults(model, baseName string, results []modeling.TestResult, policy SignPolicy) *WeightedDraft {
	draft := &WeightedDraft{
		Model:    model,
		Mode:     WeightedCreate,
		BaseName: baseName,
		Weights:  make(map[string]float64, len(results)),
	}
	for _, r := range results {
		if r.Failed() {
			draft.Weights[r.Variable] = 0
			draft.addFailure(r.Variable, r.Error)
			continue
		}
		draft.Weights[r.Variable] = InitializeWeight(r.Coefficient, r.TStat, policy)
	}
	return draft
}

// Seed tests each component against the model and seeds its weight. A
// failing component gets weight 0 and does not stop the others.
func (s *WeightedVariableService) Seed(ctx context.Context, req SeedRequest) (*WeightedDraft, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	components := dedupeNames(req.Components)
	if len(components) == 0 {
		return nil, errors.Validation(core.ErrEmptySelection)
	}

	results := make([]modeling.TestResult, len(components))
	var g errgroup.Group
	if s.maxConcurrency > 0 {
		g.SetLimit(s.maxConcurrency)
	}
	for i, c := range components {
		g.Go(func() error {
			out, err := s.tests.TestVariables(ctx, req.Model, []string{c}, nil)
			switch {
			case err != nil:
				results[i] = modeling.TestResult{Variable: c, Error: err.Error()}
			case len(out) == 0:
				results[i] = modeling.TestResult{Variable: c, Error: "no result"}
			default:
				results[i] = out[0]
				results[i].Variable = c
			}
			return nil
		})
	}
	_ = g.Wait()

	baseName := req.BaseName
	if strings.TrimSpace(baseName) == "" {
		baseName = components[0]
	}
	draft := s.DraftFromResults(req.Model, baseName, results, req.Policy)

	s.logger.Info("weighted variable seeded",
		zap.String("model", req.Model),
		zap.String("base", baseName),
		zap.Stringer("policy", req.Policy),
		zap.Int("components", len(components)),
		zap.Int("failed", len(draft.SeedFailures)))
	return draft, nil
}

// Create submits a create draft and returns the service-assigned name
func (s *WeightedVariableService) Create(ctx context.Context, draft *WeightedDraft) (string, error) {
	if draft.Mode != WeightedCreate {
		return "", errors.InvalidState("draft is not a create draft", nil)
	}
	if err := draft.Validate(); err != nil {
		return "", errors.Validation(err)
	}

	name, err := s.weighted.CreateWeightedVariable(ctx, draft.Model, draft.BaseName, maps.Clone(draft.Weights))
	if err != nil {
		return "", err
	}
	draft.VariableName = name
	s.logger.Info("weighted variable created", zap.String("model", draft.Model), zap.String("variable", name))
	s.refreshCatalog(ctx)
	return name, nil
}

// Load fetches an existing composite into an update draft
func (s *WeightedVariableService) Load(ctx context.Context, model, variableName string) (*WeightedDraft, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	if strings.TrimSpace(variableName) == "" {
		return nil, errors.Validation(core.ErrEmptySelection)
	}

	components, err := s.weighted.GetWeightedVariableComponents(ctx, model, variableName)
	if err != nil {
		return nil, err
	}
	if len(components.Components) == 0 {
		return nil, errors.NotFound(fmt.Sprintf("weighted variable %q", variableName))
	}
	return &WeightedDraft{
		Model:        model,
		Mode:         WeightedUpdate,
		BaseName:     components.BaseName,
		VariableName: variableName,
		Weights:      maps.Clone(components.Components),
	}, nil
}

// Update submits an update draft
func (s *WeightedVariableService) Update(ctx context.Context, draft *WeightedDraft) error {
	if draft.Mode != WeightedUpdate {
		return errors.InvalidState("draft is not an update draft", nil)
	}
	if err := draft.Validate(); err != nil {
		return errors.Validation(err)
	}
	if err := s.weighted.UpdateWeightedVariable(ctx, draft.Model, draft.VariableName, maps.Clone(draft.Weights)); err != nil {
		return err
	}
	s.logger.Info("weighted variable updated", zap.String("model", draft.Model), zap.String("variable", draft.VariableName))
	return nil
}

func (s *WeightedVariableService) refreshCatalog(ctx context.Context) {
	if s.catalog == nil {
		return
	}
	if err := s.catalog.Refresh(ctx); err != nil {
		s.logger.Warn("catalog refresh after create failed", zap.Error(err))
	}
}

func (d *WeightedDraft) addFailure(component, msg string) {
	if d.SeedFailures == nil {
		d.SeedFailures = make(map[string]string)
	}
	d.SeedFailures[component] = msg
}
