package ui

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmmstudio/adapters/api"
	"mmmstudio/adapters/excel"
	"mmmstudio/internal/config"
	"mmmstudio/internal/container"
	"mmmstudio/internal/testkit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type fixture struct {
	kit    *testkit.TestKit
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kit := testkit.NewTestKit()
	stats := kit.Start()
	t.Cleanup(stats.Close)

	c, err := container.NewWithService(config.Default(), kit.Client(stats, nil), nil)
	require.NoError(t, err)
	return &fixture{kit: kit, server: NewServer(ServicesFrom(c), nil)}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListModelsLoadsOnFirstUse(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
		ActiveModel string `json:"activeModel"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testkit.BaseModel, body.ActiveModel)
	assert.Len(t, body.Models, 2)
	assert.Equal(t, 1, f.kit.Service.Calls(api.PathListModels))

	f.do(t, http.MethodGet, "/api/models", nil)
	assert.Equal(t, 1, f.kit.Service.Calls(api.PathListModels), "second list is served from the registry")
}

func TestPreviewReportExportCommit(t *testing.T) {
	f := newFixture(t)
	base := "/api/models/" + testkit.BaseModel + "/transaction"

	rec := f.do(t, http.MethodPost, base+"/preview", map[string]any{
		"mode":      "add",
		"variables": []string{"Search"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, base+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Search")

	rec = f.do(t, http.MethodGet, base+"/report?format=html", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<table>")

	rec = f.do(t, http.MethodGet, base+"/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, excel.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "base-preview.xlsx")

	rec = f.do(t, http.MethodPost, base+"/commit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, f.kit.Service.Features(testkit.BaseModel), "Search")

	rec = f.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"idle"`)
}

func TestCancelLeavesModelUnchanged(t *testing.T) {
	f := newFixture(t)
	base := "/api/models/" + testkit.BaseModel + "/transaction"
	before := f.kit.Service.Features(testkit.BaseModel)

	rec := f.do(t, http.MethodPost, base+"/preview", map[string]any{"mode": "remove", "variables": []string{before[0]}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, base+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, before, f.kit.Service.Features(testkit.BaseModel))
	assert.Equal(t, 0, f.kit.Service.Calls(api.PathRemove))
}

func TestTransactionErrors(t *testing.T) {
	base := "/api/models/" + testkit.BaseModel + "/transaction"

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown mode", http.MethodPost, base + "/preview", map[string]any{"mode": "merge", "variables": []string{"Search"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"empty selection", http.MethodPost, base + "/preview", map[string]any{"mode": "add", "variables": []string{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"commit without draft", http.MethodPost, base + "/commit", nil, http.StatusConflict, "INVALID_STATE"},
		{"cancel without draft", http.MethodPost, base + "/cancel", nil, http.StatusConflict, "INVALID_STATE"},
		{"report without draft", http.MethodGet, base + "/report", nil, http.StatusConflict, "INVALID_STATE"},
		{"bad history limit", http.MethodGet, base + "/history?limit=abc", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			env := decode(t, rec)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Code)
		})
	}
}

func TestPreviewFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.kit.Service.Fail(api.PathPreviewAdd, "singular matrix")

	rec := f.do(t, http.MethodPost, "/api/models/base/transaction/preview", map[string]any{"mode": "add", "variables": []string{"Search"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, "REMOTE_COMPUTE_ERROR", env.Code)
	assert.Contains(t, env.Error, "singular matrix")
}

func TestHistoryWithoutJournalIsEmpty(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/models/base/transaction/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"history":[]}`, rec.Body.String())
}

func TestAdstockSweep(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/models/base/adstock-sweep", map[string]any{"variable": "Search", "rates": []int{0, 30, 60}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Result struct {
			Ranked []struct {
				Rate int `json:"rate"`
			} `json:"ranked"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Result.Ranked, 3)
	assert.Equal(t, 3, f.kit.Service.Calls(api.PathTestVariables))
}

func TestAdstockSweepAllFailed(t *testing.T) {
	f := newFixture(t)
	f.kit.Service.Fail(api.PathTestVariables, "down")

	rec := f.do(t, http.MethodPost, "/api/models/base/adstock-sweep", map[string]any{"variable": "Search", "rates": []int{0, 10}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decode(t, rec)
	assert.True(t, env.Success)
	assert.Equal(t, "PARTIAL_FAILURE", env.Code)

	var body struct {
		Warning string `json:"warning"`
		Result  struct {
			Ranked   []json.RawMessage `json:"ranked"`
			Failures []struct {
				Rate int `json:"rate"`
			} `json:"failures"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Result.Ranked)
	assert.Len(t, body.Result.Failures, 2)
	assert.Contains(t, body.Warning, "2 of 2")
}

func TestScreenPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.kit.Service.FailTest("Social", "singular matrix")

	rec := f.do(t, http.MethodPost, "/api/models/base/screen", map[string]any{"variables": []string{"Search", "Social"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "PARTIAL_FAILURE", decode(t, rec).Code)

	var body struct {
		Warning string `json:"warning"`
		Result  struct {
			Results  []json.RawMessage `json:"results"`
			Failures []struct {
				Variable string `json:"variable"`
			} `json:"failures"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Result.Results, 1)
	require.Len(t, body.Result.Failures, 1)
	assert.Equal(t, "Social", body.Result.Failures[0].Variable)
	assert.Equal(t, "1 of 2 variables failed to test", body.Warning)
}

func TestScreen(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/models/base/screen", map[string]any{"variables": []string{"Search", "Social"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"variable":"Social"`)
	assert.Empty(t, decode(t, rec).Code)
}

func TestCorrelationExport(t *testing.T) {
	f := newFixture(t)
	vars := map[string]any{"variables": []string{"TV", "Radio"}}

	rec := f.do(t, http.MethodPost, "/api/models/base/correlation", vars)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/models/base/correlation?format=xlsx", vars)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, excel.ContentType, rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func TestWeightedLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/models/base/weighted/seed", map[string]any{
		"baseName":   "Digital",
		"components": []string{"Search", "Social"},
		"policy":     "mixed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/models/base/weighted", map[string]any{
		"baseName": "Digital",
		"weights":  map[string]float64{"Search": 0.7, "Social": 0.3},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"variable":"Digital|WGTD"`)

	rec = f.do(t, http.MethodGet, "/api/models/base/weighted/Digital%7CWGTD", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"mode":"update"`)

	rec = f.do(t, http.MethodPut, "/api/models/base/weighted/Digital%7CWGTD", map[string]any{
		"weights": map[string]float64{"Search": 0.5, "Social": 0.5},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/models/base/weighted", map[string]any{
		"baseName": "Zero",
		"weights":  map[string]float64{"Search": 0},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/models/base/weighted/Missing%7CWGTD", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec).Code)
}

func TestDecomposition(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/models/base/decomposition", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestVariables(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/variables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Digital"`)
}
