package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// Endpoint paths on the statistics service
const (
	PathListModels        = "/api/models/list"
	PathVariables         = "/api/data/variables"
	PathModelVariables    = "/api/models/get-variables"
	PathPreviewAdd        = "/api/models/preview-add-var"
	PathAdd               = "/api/models/add-var"
	PathPreviewRemove     = "/api/models/preview-remove-var"
	PathRemove            = "/api/models/remove-var"
	PathFixCoefficients   = "/api/models/fix-coefficients"
	PathTestVariables     = "/api/models/test-vars"
	PathChartVariables    = "/api/models/chart-vars"
	PathCreateWeighted    = "/api/models/create-weighted-variable"
	PathUpdateWeighted    = "/api/models/update-weighted-variable"
	PathGetWeighted       = "/api/models/get-weighted-variable"
	PathDecomposition     = "/api/models/decomposition"
	maxErrorBodyInMessage = 512
)

// Client talks to the remote statistics service over HTTP+JSON
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

var _ ports.ModelServicePort = (*Client)(nil)

// NewClient creates a statistics service client. Deadlines come from the
// per-call context, so the underlying http.Client carries no timeout.
func NewClient(config ClientConfig, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigInvalid(err.Error())
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     logging.OrNop(logger).Named("stats_api"),
	}, nil
}

// WithHTTPClient swaps the transport, mainly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// ListModels implements ports.ModelCatalogPort
func (c *Client) ListModels(ctx context.Context) (*modeling.ModelList, error) {
	body, err := c.call(ctx, "list models", http.MethodGet, PathListModels, nil, c.config.Timeout)
	if err != nil {
		return nil, err
	}

	var dtos []modelSummaryDTO
	if err := decodeField(body, "models", &dtos); err != nil {
		return nil, errors.RemoteCompute("list models", err)
	}
	list := &modeling.ModelList{
		Models:      make([]modeling.ModelSummary, 0, len(dtos)),
		ActiveModel: gjson.GetBytes(body, "activeModel").String(),
	}
	for _, d := range dtos {
		list.Models = append(list.Models, modeling.ModelSummary{
			Name:          d.Name,
			KPI:           d.KPI,
			VariableCount: d.Variables,
			RSquared:      d.RSquared,
		})
	}
	return list, nil
}

// GetVariables implements ports.ModelCatalogPort
func (c *Client) GetVariables(ctx context.Context) ([]modeling.Variable, error) {
	body, err := c.call(ctx, "get variables", http.MethodGet, PathVariables, nil, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return decodeVariables(body, "get variables")
}

// GetModelVariables implements ports.ModelCatalogPort
func (c *Client) GetModelVariables(ctx context.Context, model string) ([]modeling.Variable, error) {
	body, err := c.call(ctx, "get model variables", http.MethodPost, PathModelVariables,
		modelNameRequest{ModelName: model}, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return decodeVariables(body, "get model variables")
}

// PreviewAddVariables implements ports.ModelEditPort
func (c *Client) PreviewAddVariables(ctx context.Context, req ports.AddVariablesRequest) (*modeling.Comparison, error) {
	body, err := c.call(ctx, "preview add variables", http.MethodPost, PathPreviewAdd, toAddRequest(req), c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return decodeComparison(body, "preview add variables")
}

// AddVariables implements ports.ModelEditPort
func (c *Client) AddVariables(ctx context.Context, req ports.AddVariablesRequest) error {
	_, err := c.call(ctx, "add variables", http.MethodPost, PathAdd, toAddRequest(req), c.config.Timeout)
	return err
}

// PreviewRemoveVariables implements ports.ModelEditPort
func (c *Client) PreviewRemoveVariables(ctx context.Context, model string, variables []string) (*modeling.Comparison, error) {
	body, err := c.call(ctx, "preview remove variables", http.MethodPost, PathPreviewRemove,
		variablesRequest{ModelName: model, Variables: variables}, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	return decodeComparison(body, "preview remove variables")
}

// RemoveVariables implements ports.ModelEditPort
func (c *Client) RemoveVariables(ctx context.Context, model string, variables []string) error {
	_, err := c.call(ctx, "remove variables", http.MethodPost, PathRemove,
		variablesRequest{ModelName: model, Variables: variables}, c.config.Timeout)
	return err
}

// FixCoefficients implements ports.ModelEditPort
func (c *Client) FixCoefficients(ctx context.Context, model string, coefficients modeling.FixedCoefficientMap, preview bool) (*modeling.Comparison, error) {
	op := "fix coefficients"
	if preview {
		op = "preview fix coefficients"
	}
	body, err := c.call(ctx, op, http.MethodPost, PathFixCoefficients, fixCoefficientsRequest{
		ModelName:    model,
		Coefficients: coefficients,
		Preview:      preview,
	}, c.config.Timeout)
	if err != nil {
		return nil, err
	}
	if !preview {
		return nil, nil
	}
	return decodeComparison(body, op)
}

// TestVariables implements ports.SignificancePort
func (c *Client) TestVariables(ctx context.Context, model string, variables []string, adstockRates []float64) ([]modeling.TestResult, error) {
	body, err := c.call(ctx, "test variables", http.MethodPost, PathTestVariables, testVariablesRequest{
		ModelName:    model,
		Variables:    variables,
		AdstockRates: adstockRates,
	}, c.config.Timeout)
	if err != nil {
		return nil, err
	}

	var dtos []testResultDTO
	if err := decodeField(body, "results", &dtos); err != nil {
		return nil, errors.RemoteCompute("test variables", err)
	}
	results := make([]modeling.TestResult, 0, len(dtos))
	for _, d := range dtos {
		results = append(results, modeling.TestResult{
			Variable:    d.Variable,
			Coefficient: d.Coefficient,
			TStat:       d.TStat,
			PValue:      d.PValue,
			VIF:         d.VIF,
			Error:       d.Error,
		})
	}
	return results, nil
}

// GetSeries implements ports.SeriesPort. Point timestamps may arrive as
// strings or numbers; both are kept as their string form.
func (c *Client) GetSeries(ctx context.Context, model string, variables []string) (modeling.SeriesSet, error) {
	body, err := c.call(ctx, "get series", http.MethodPost, PathChartVariables,
		variablesRequest{ModelName: model, Variables: variables}, c.config.Timeout)
	if err != nil {
		return nil, err
	}

	chart := gjson.GetBytes(body, "chartData")
	if !chart.IsArray() {
		return nil, errors.RemoteCompute("get series", fmt.Errorf("response has no chartData array"))
	}
	set := make(modeling.SeriesSet, len(variables))
	chart.ForEach(func(_, series gjson.Result) bool {
		name := series.Get("name").String()
		points := series.Get("data").Array()
		out := make([]modeling.SeriesPoint, 0, len(points))
		for _, p := range points {
			out = append(out, modeling.SeriesPoint{
				Timestamp: p.Get("x").String(),
				Value:     p.Get("y").Float(),
			})
		}
		set[name] = out
		return true
	})
	return set, nil
}

// CreateWeightedVariable implements ports.WeightedVariablePort
func (c *Client) CreateWeightedVariable(ctx context.Context, model, baseName string, coefficients map[string]float64) (string, error) {
	body, err := c.call(ctx, "create weighted variable", http.MethodPost, PathCreateWeighted, createWeightedRequest{
		ModelName:    model,
		BaseName:     baseName,
		Coefficients: coefficients,
	}, c.config.Timeout)
	if err != nil {
		return "", err
	}
	name := gjson.GetBytes(body, "newVariable").String()
	if name == "" {
		name = modeling.WeightedName(baseName)
	}
	return name, nil
}

// UpdateWeightedVariable implements ports.WeightedVariablePort
func (c *Client) UpdateWeightedVariable(ctx context.Context, model, variableName string, coefficients map[string]float64) error {
	_, err := c.call(ctx, "update weighted variable", http.MethodPost, PathUpdateWeighted, weightedVariableRequest{
		ModelName:    model,
		VariableName: variableName,
		Coefficients: coefficients,
	}, c.config.Timeout)
	return err
}

// GetWeightedVariableComponents implements ports.WeightedVariablePort
func (c *Client) GetWeightedVariableComponents(ctx context.Context, model, variableName string) (*modeling.WeightedComponents, error) {
	body, err := c.call(ctx, "get weighted variable", http.MethodPost, PathGetWeighted, weightedVariableRequest{
		ModelName:    model,
		VariableName: variableName,
	}, c.config.Timeout)
	if err != nil {
		return nil, err
	}

	components := map[string]float64{}
	if err := decodeField(body, "components", &components); err != nil {
		return nil, errors.RemoteCompute("get weighted variable", err)
	}
	return &modeling.WeightedComponents{
		VariableName: variableName,
		BaseName:     gjson.GetBytes(body, "baseName").String(),
		Components:   components,
	}, nil
}

// Decomposition implements ports.DecompositionPort with the extended deadline
func (c *Client) Decomposition(ctx context.Context, model string) (*modeling.Decomposition, error) {
	body, err := c.call(ctx, "decomposition", http.MethodPost, PathDecomposition,
		modelNameRequest{ModelName: model}, c.config.LongTimeout)
	if err != nil {
		return nil, err
	}

	var dto decompositionDTO
	if err := decodeField(body, "data", &dto); err != nil {
		return nil, errors.RemoteCompute("decomposition", err)
	}
	return &modeling.Decomposition{
		Dates:         dto.Dates,
		Actual:        dto.Actual,
		Predicted:     dto.Predicted,
		Contributions: dto.Contributions,
	}, nil
}

// call issues one request under its own deadline and unwraps the envelope.
// Every failure, transport or service-side, comes back as a RemoteCompute error;
// a 404 is additionally tagged NotFound.
func (c *Client) call(ctx context.Context, op, method, path string, payload any, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.RemoteCompute(op, fmt.Errorf("failed to encode request: %w", err))
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reqBody)
	if err != nil {
		return nil, errors.RemoteCompute(op, fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("statistics service call failed",
			zap.String("op", op), zap.String("path", path), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return nil, errors.RemoteCompute(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.RemoteCompute(op, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("statistics service call",
		zap.String("op", op),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if err := envelopeError(resp.StatusCode, body); err != nil {
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.WithCode(errors.CodeNotFound, errors.RemoteCompute(op, err))
		}
		return nil, errors.RemoteCompute(op, err)
	}
	return body, nil
}

// envelopeError extracts the failure, if any, from a response
func envelopeError(status int, body []byte) error {
	if !gjson.ValidBytes(body) {
		if status >= 200 && status < 300 {
			return fmt.Errorf("status %d: response is not JSON", status)
		}
		return fmt.Errorf("status %d: %s", status, truncate(string(body)))
	}

	success := gjson.GetBytes(body, "success")
	message := gjson.GetBytes(body, "error").String()
	if success.Exists() && !success.Bool() {
		if message == "" {
			message = "service reported failure"
		}
		return stderrors.New(message)
	}
	if status < 200 || status >= 300 {
		if message == "" {
			message = truncate(string(body))
		}
		return fmt.Errorf("status %d: %s", status, message)
	}
	return nil
}

func decodeField(body []byte, path string, out any) error {
	field := gjson.GetBytes(body, path)
	if !field.Exists() {
		return fmt.Errorf("response has no %q field", path)
	}
	if err := json.Unmarshal([]byte(field.Raw), out); err != nil {
		return fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return nil
}

func decodeVariables(body []byte, op string) ([]modeling.Variable, error) {
	var dtos []variableDTO
	if err := decodeField(body, "variables", &dtos); err != nil {
		return nil, errors.RemoteCompute(op, err)
	}
	out := make([]modeling.Variable, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func decodeComparison(body []byte, op string) (*modeling.Comparison, error) {
	var rows []comparisonRowDTO
	if err := decodeField(body, "comparison", &rows); err != nil {
		return nil, errors.RemoteCompute(op, err)
	}
	cmp := &modeling.Comparison{Rows: make([]modeling.ComparisonRow, 0, len(rows))}
	for _, r := range rows {
		cmp.Rows = append(cmp.Rows, modeling.ComparisonRow(r))
	}
	if v := gjson.GetBytes(body, "rsquared"); v.Exists() && v.Type == gjson.Number {
		cmp.RSquared = modeling.Float(v.Float())
	}
	if v := gjson.GetBytes(body, "rsquared_adj"); v.Exists() && v.Type == gjson.Number {
		cmp.RSquaredAdj = modeling.Float(v.Float())
	}
	return cmp, nil
}

func toAddRequest(req ports.AddVariablesRequest) addVariablesRequest {
	rates := req.AdstockRates
	if rates == nil {
		rates = make([]float64, len(req.Variables))
	}
	return addVariablesRequest{
		ModelName:         req.Model,
		Variables:         req.Variables,
		AdstockRates:      rates,
		FixedCoefficients: req.FixedCoefficients,
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBodyInMessage {
		return s[:maxErrorBodyInMessage] + "..."
	}
	return s
}
