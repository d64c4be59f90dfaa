package api_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmmstudio/adapters/api"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/testkit"
	"mmmstudio/ports"
)

func newClient(t *testing.T) (*api.Client, *testkit.TestKit) {
	t.Helper()
	kit := testkit.NewTestKit()
	server := kit.Start()
	t.Cleanup(server.Close)
	return kit.Client(server, nil), kit
}

func TestListModelsAndCatalog(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	list, err := client.ListModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, testkit.BaseModel, list.ActiveModel)
	require.Len(t, list.Models, 2)
	assert.Equal(t, 2, list.Models[0].VariableCount)
	require.NotNil(t, list.Models[0].RSquared)

	vars, err := client.GetVariables(ctx)
	require.NoError(t, err)
	assert.Len(t, vars, 5)

	modelVars, err := client.GetModelVariables(ctx, testkit.BaseModel)
	require.NoError(t, err)
	require.Len(t, modelVars, 3)
	assert.True(t, modelVars[0].IsConstant())
	assert.Equal(t, modeling.TypeConstant, modelVars[0].Type)
	assert.Equal(t, "TV", modelVars[1].Name)
	require.NotNil(t, modelVars[1].Coefficient)
}

func TestPreviewAddDoesNotMutate(t *testing.T) {
	client, kit := newClient(t)
	ctx := context.Background()

	cmp, err := client.PreviewAddVariables(ctx, ports.AddVariablesRequest{
		Model:     testkit.BaseModel,
		Variables: []string{"Search"},
	})
	require.NoError(t, err)

	row, ok := cmp.Row("Search")
	require.True(t, ok)
	assert.Equal(t, 1.0, row.NewCoefficient)
	require.NotNil(t, cmp.RSquared)
	require.NotNil(t, cmp.RSquaredAdj)
	assert.Equal(t, []string{"TV", "Radio"}, kit.ModelFeatures())

	require.NoError(t, client.AddVariables(ctx, ports.AddVariablesRequest{
		Model:     testkit.BaseModel,
		Variables: []string{"Search"},
	}))
	assert.Equal(t, []string{"TV", "Radio", "Search"}, kit.ModelFeatures())
}

func TestFixCoefficientsPreviewAndCommit(t *testing.T) {
	client, kit := newClient(t)
	ctx := context.Background()

	cmp, err := client.FixCoefficients(ctx, testkit.BaseModel, modeling.FixedCoefficientMap{"TV": 2.5}, true)
	require.NoError(t, err)
	row, ok := cmp.Row("TV")
	require.True(t, ok)
	assert.True(t, row.Fixed)
	assert.Nil(t, row.NewTStat)

	cmp, err = client.FixCoefficients(ctx, testkit.BaseModel, modeling.FixedCoefficientMap{"TV": 2.5}, false)
	require.NoError(t, err)
	assert.Nil(t, cmp)
	coef, _ := kit.Service.Coefficient(testkit.BaseModel, "TV")
	assert.Equal(t, 2.5, coef)
}

func TestTestVariablesDecodesServiceColumns(t *testing.T) {
	client, kit := newClient(t)
	kit.Service.SetTestResult("TV_adstock_20", modeling.TestResult{
		Coefficient: 1.4, TStat: 3.2, PValue: modeling.Float(0.001),
	})

	results, err := client.TestVariables(context.Background(), testkit.BaseModel, []string{"TV"}, []float64{0.2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "TV", results[0].Variable)
	assert.Equal(t, 3.2, results[0].TStat)
	require.NotNil(t, results[0].PValue)
	assert.Nil(t, results[0].VIF)
}

func TestGetSeries(t *testing.T) {
	client, kit := newClient(t)

	set, err := client.GetSeries(context.Background(), testkit.BaseModel, []string{"TV", "Sales"})
	require.NoError(t, err)
	assert.Equal(t, kit.Series("TV"), set["TV"])
	assert.Len(t, set["Sales"], len(kit.Series("Sales")))
}

func TestWeightedVariableLifecycle(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()

	name, err := client.CreateWeightedVariable(ctx, testkit.BaseModel, "Digital", map[string]float64{"Search": 0.7, "Social": 0.3})
	require.NoError(t, err)
	assert.Equal(t, "Digital|WGTD", name)

	require.NoError(t, client.UpdateWeightedVariable(ctx, testkit.BaseModel, name, map[string]float64{"Search": 0.5}))

	comps, err := client.GetWeightedVariableComponents(ctx, testkit.BaseModel, name)
	require.NoError(t, err)
	assert.Equal(t, "Digital", comps.BaseName)
	assert.Equal(t, map[string]float64{"Search": 0.5}, comps.Components)

	_, err = client.GetWeightedVariableComponents(ctx, testkit.BaseModel, "Nope|WGTD")
	assert.True(t, errors.HasCode(err, errors.CodeRemoteCompute))
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.Contains(t, err.Error(), "No weighted variable found with name: Nope|WGTD")
}

func TestDecomposition(t *testing.T) {
	client, kit := newClient(t)

	dec, err := client.Decomposition(context.Background(), testkit.BaseModel)
	require.NoError(t, err)
	assert.Len(t, dec.Dates, len(kit.Series("Sales")))
	assert.Contains(t, dec.Contributions, "TV")
	assert.Contains(t, dec.Contributions, "Base")
}

func TestEnvelopeFailureIsRemoteCompute(t *testing.T) {
	client, kit := newClient(t)
	kit.Service.Fail(api.PathPreviewRemove, "singular matrix")

	_, err := client.PreviewRemoveVariables(context.Background(), testkit.BaseModel, []string{"TV"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteCompute))
	assert.Contains(t, err.Error(), "singular matrix")
}

func TestSuccessFalseWithOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error": "No data loaded"}`))
	}))
	defer server.Close()

	config := api.DefaultClientConfig()
	config.BaseURL = server.URL
	client, err := api.NewClient(config, nil)
	require.NoError(t, err)

	_, err = client.GetVariables(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteCompute))
	assert.Contains(t, err.Error(), "No data loaded")
}

func TestNotFoundStatusKeepsRemoteCompute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	config := api.DefaultClientConfig()
	config.BaseURL = server.URL
	client, err := api.NewClient(config, nil)
	require.NoError(t, err)

	_, err = client.ListModels(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))
	assert.True(t, errors.HasCode(err, errors.CodeRemoteCompute))
	assert.Contains(t, err.Error(), "status 404")
}

func TestCallHonorsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	config := api.DefaultClientConfig()
	config.BaseURL = server.URL
	config.Timeout = 50 * time.Millisecond
	client, err := api.NewClient(config, nil)
	require.NoError(t, err)

	_, err = client.ListModels(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeRemoteCompute))
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	config := api.DefaultClientConfig()
	config.BaseURL = "not a url"
	_, err := api.NewClient(config, nil)
	assert.True(t, errors.HasCode(err, errors.CodeConfigInvalid))
}
