package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmmstudio/adapters/api"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/testkit"
)

func TestScreenVariables(t *testing.T) {
	h := newHarness(t)
	h.kit.Service.SetTestResult("Search", modeling.TestResult{Coefficient: 0.8, TStat: 2.4, PValue: modeling.Float(0.02)})
	h.kit.Service.SetTestResult("Social_adstock_30", modeling.TestResult{Coefficient: 0.1, TStat: 0.9})
	h.kit.Service.SetTestResult("TV", modeling.TestResult{Coefficient: 1.2, TStat: 3.1})

	svc := NewVariableScreeningService(h.client, h.registry, 0, nil)
	result, err := svc.Screen(context.Background(), ScreeningRequest{
		Model:        testkit.BaseModel,
		Variables:    []string{"Search", "Social", "TV", "Search"},
		AdstockRates: map[string]int{"Social": 30},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 3)
	assert.Empty(t, result.Failures)

	search := result.Results[0]
	assert.Equal(t, "Search", search.Variable)
	assert.True(t, search.Significant)
	assert.Equal(t, 0.02, search.PValue)
	assert.False(t, search.InModel)

	social := result.Results[1]
	assert.Equal(t, "Social_adstock_30", social.Column)
	assert.False(t, social.Significant)

	tv := result.Results[2]
	assert.True(t, tv.InModel)
	assert.Equal(t, 3, h.kit.Service.Calls(api.PathTestVariables))
}

func TestScreenReportsFailuresSeparately(t *testing.T) {
	h := newHarness(t)
	h.kit.Service.FailTest("Social", "singular matrix")

	svc := NewVariableScreeningService(h.client, nil, 1, nil)
	result, err := svc.Screen(context.Background(), ScreeningRequest{
		Model:     testkit.BaseModel,
		Variables: []string{"Search", "Social"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Social", result.Failures[0].Variable)
	assert.Contains(t, result.Failures[0].Error, "singular matrix")

	h.kit.Service.Fail(api.PathTestVariables, "down")
	all, err := svc.Screen(context.Background(), ScreeningRequest{Model: testkit.BaseModel, Variables: []string{"Search"}})
	require.NoError(t, err)
	assert.True(t, all.AllFailed())
}

func TestScreenValidation(t *testing.T) {
	svc := NewVariableScreeningService(&MockSignificance{}, nil, 0, nil)

	_, err := svc.Screen(context.Background(), ScreeningRequest{Variables: []string{"TV"}})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))

	_, err = svc.Screen(context.Background(), ScreeningRequest{Model: "base", Variables: []string{" "}})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))

	_, err = svc.Screen(context.Background(), ScreeningRequest{Model: "base", Variables: []string{"TV"}, AdstockRates: map[string]int{"TV": -5}})
	assert.True(t, errors.HasCode(err, errors.CodeValidationError))
}
