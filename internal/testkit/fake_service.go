package testkit

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"net/http"
	"slices"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mmmstudio/domain/modeling"
)

// Fit is a coefficient and t-statistic pair held by the fake service
type Fit struct {
	Name        string
	Coefficient float64
	TStat       float64
}

type fakeModel struct {
	name     string
	kpi      string
	features []string
	fits     map[string]Fit
	fixed    map[string]bool
	rsquared float64
	weighted map[string]modeling.WeightedComponents
}

// Gate holds requests to one path until released
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

// Entered is closed when the first held request arrives
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets every held request through
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

// FakeService is an in-memory statistics service speaking the real wire format.
// It keeps model state across calls so commit and refetch can be observed.
type FakeService struct {
	mu           sync.Mutex
	router       chi.Router
	models       map[string]*fakeModel
	order        []string
	active       string
	catalog      []modeling.Variable
	series       modeling.SeriesSet
	tests        map[string]modeling.TestResult
	testFailures map[string]string
	failures     map[string]string
	calls        map[string]int
	gates        map[string]*Gate
}

// NewFakeService creates an empty fake statistics service
func NewFakeService() *FakeService {
	f := &FakeService{
		router:       chi.NewRouter(),
		models:       make(map[string]*fakeModel),
		series:       make(modeling.SeriesSet),
		tests:        make(map[string]modeling.TestResult),
		testFailures: make(map[string]string),
		failures:     make(map[string]string),
		calls:        make(map[string]int),
		gates:        make(map[string]*Gate),
	}
	f.setupRoutes()
	return f
}

func (f *FakeService) setupRoutes() {
	f.router.Use(middleware.Recoverer)
	f.router.Use(f.intercept)

	f.router.Get("/api/models/list", f.handleList)
	f.router.Get("/api/data/variables", f.handleCatalog)
	f.router.Post("/api/models/get-variables", f.handleModelVariables)
	f.router.Post("/api/models/preview-add-var", f.handlePreviewAdd)
	f.router.Post("/api/models/add-var", f.handleAdd)
	f.router.Post("/api/models/preview-remove-var", f.handlePreviewRemove)
	f.router.Post("/api/models/remove-var", f.handleRemove)
	f.router.Post("/api/models/fix-coefficients", f.handleFixCoefficients)
	f.router.Post("/api/models/test-vars", f.handleTestVariables)
	f.router.Post("/api/models/chart-vars", f.handleChart)
	f.router.Post("/api/models/create-weighted-variable", f.handleCreateWeighted)
	f.router.Post("/api/models/get-weighted-variable", f.handleGetWeighted)
	f.router.Post("/api/models/update-weighted-variable", f.handleUpdateWeighted)
	f.router.Post("/api/models/decomposition", f.handleDecomposition)
}

// ServeHTTP implements http.Handler
func (f *FakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

// intercept counts calls, applies injected failures and waits on gates
func (f *FakeService) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.URL.Path]++
		msg, failing := f.failures[r.URL.Path]
		gate := f.gates[r.URL.Path]
		f.mu.Unlock()

		if gate != nil {
			gate.enterOnce.Do(func() { close(gate.entered) })
			select {
			case <-gate.release:
			case <-r.Context().Done():
				return
			}
		}
		if failing {
			writeFailure(w, http.StatusInternalServerError, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// AddModel registers a model with its fitted features. An intercept is added automatically.
func (f *FakeService) AddModel(name, kpi string, fits ...Fit) {
	f.mu.Lock()
	defer f.mu.Unlock()

	m := &fakeModel{
		name:     name,
		kpi:      kpi,
		fits:     map[string]Fit{modeling.ConstantName: {Name: modeling.ConstantName, Coefficient: 10, TStat: 5}},
		fixed:    make(map[string]bool),
		rsquared: 0.5,
		weighted: make(map[string]modeling.WeightedComponents),
	}
	for _, fit := range fits {
		m.features = append(m.features, fit.Name)
		m.fits[fit.Name] = fit
	}
	if _, ok := f.models[name]; !ok {
		f.order = append(f.order, name)
	}
	f.models[name] = m
	if f.active == "" {
		f.active = name
	}
}

// SetActive marks the service-side active model
func (f *FakeService) SetActive(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = name
}

// SetCatalog replaces the variable catalog
func (f *FakeService) SetCatalog(vars ...modeling.Variable) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = slices.Clone(vars)
}

// SetSeries stores the observations for one variable
func (f *FakeService) SetSeries(name string, points []modeling.SeriesPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[name] = slices.Clone(points)
}

// SetTestResult fixes the significance result for a column, e.g. "TV" or "TV_adstock_20"
func (f *FakeService) SetTestResult(column string, result modeling.TestResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tests[column] = result
}

// FailTest makes any test-vars call touching column fail with msg
func (f *FakeService) FailTest(column, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.testFailures[column] = msg
}

// Fail makes every call to path answer with a failure envelope
func (f *FakeService) Fail(path, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = msg
}

// Recover clears an injected failure
func (f *FakeService) Recover(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.failures, path)
}

// Hold installs a gate that parks requests to path until released
func (f *FakeService) Hold(path string) *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.gates[path] = g
	return g
}

// Calls returns how many requests reached path
func (f *FakeService) Calls(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

// Features returns the current features of a model, intercept excluded
func (f *FakeService) Features(model string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[model]
	if !ok {
		return nil
	}
	return slices.Clone(m.features)
}

// Coefficient returns the current coefficient of a model feature
func (f *FakeService) Coefficient(model, variable string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.models[model]
	if !ok {
		return 0, false
	}
	fit, ok := m.fits[variable]
	return fit.Coefficient, ok
}

type editBody struct {
	ModelName         string             `json:"modelName"`
	Variables         []string           `json:"variables"`
	AdstockRates      []float64          `json:"adstockRates"`
	FixedCoefficients map[string]float64 `json:"fixedCoefficients"`
	Coefficients      map[string]float64 `json:"coefficients"`
	Preview           bool               `json:"preview"`
	VariableName      string             `json:"variableName"`
	BaseName          string             `json:"baseName"`
}

func (f *FakeService) handleList(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	models := make([]map[string]any, 0, len(f.order))
	for _, name := range f.order {
		m := f.models[name]
		models = append(models, map[string]any{
			"name":      m.name,
			"kpi":       m.kpi,
			"variables": len(m.features),
			"rsquared":  m.rsquared,
			"created":   "Today",
		})
	}
	writeSuccess(w, map[string]any{"models": models, "activeModel": f.active})
}

func (f *FakeService) handleCatalog(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.catalog) == 0 {
		writeFailure(w, http.StatusBadRequest, "No data loaded")
		return
	}
	vars := make([]map[string]any, 0, len(f.catalog))
	for _, v := range f.catalog {
		base, transformed := modeling.BaseVariableOf(v.Name)
		entry := map[string]any{
			"name":           v.Name,
			"type":           string(v.Type),
			"transformation": v.Transformation,
			"group":          v.Group,
			"isTransformed":  transformed,
			"baseVariable":   nil,
		}
		if transformed {
			entry["baseVariable"] = base
		}
		vars = append(vars, entry)
	}
	writeSuccess(w, map[string]any{"variables": vars})
}

func (f *FakeService) handleModelVariables(w http.ResponseWriter, r *http.Request) {
	_, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	constFit := m.fits[modeling.ConstantName]
	vars := []map[string]any{{
		"name":           modeling.ConstantName,
		"coefficient":    constFit.Coefficient,
		"tStat":          constFit.TStat,
		"type":           string(modeling.TypeConstant),
		"transformation": "None",
		"group":          "Base",
	}}
	for _, name := range m.features {
		fit := m.fits[name]
		vars = append(vars, map[string]any{
			"name":           name,
			"coefficient":    fit.Coefficient,
			"tStat":          fit.TStat,
			"type":           string(modeling.TypeNumeric),
			"transformation": "None",
			"group":          "Other",
		})
	}
	writeSuccess(w, map[string]any{"variables": vars})
}

func (f *FakeService) handlePreviewAdd(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	after, err := f.fitsAfterAdd(m, body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, comparisonPayload(m, after, body.FixedCoefficients))
}

func (f *FakeService) handleAdd(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	after, err := f.fitsAfterAdd(m, body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	for i, v := range body.Variables {
		column := modeling.AdstockColumn(v, ratePercent(body.AdstockRates, i))
		if !slices.Contains(m.features, column) {
			m.features = append(m.features, column)
		}
	}
	m.fits = after
	for name := range body.FixedCoefficients {
		m.fixed[name] = true
	}
	m.rsquared = math.Min(0.99, m.rsquared+0.05)
	writeSuccess(w, map[string]any{"model": modelPayload(m)})
}

func (f *FakeService) handlePreviewRemove(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	after, err := fitsAfterRemove(m, body.Variables)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	writeSuccess(w, comparisonPayload(m, after, nil))
}

func (f *FakeService) handleRemove(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	after, err := fitsAfterRemove(m, body.Variables)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	m.features = slices.DeleteFunc(m.features, func(name string) bool {
		return slices.Contains(body.Variables, name)
	})
	m.fits = after
	m.rsquared = math.Max(0.01, m.rsquared-0.05)
	writeSuccess(w, map[string]any{"model": modelPayload(m)})
}

func (f *FakeService) handleFixCoefficients(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	if len(body.Coefficients) == 0 {
		writeFailure(w, http.StatusBadRequest, "Coefficients are required")
		return
	}
	after := cloneFits(m.fits)
	for name, value := range body.Coefficients {
		if _, ok := m.fits[name]; !ok {
			writeFailure(w, http.StatusBadRequest, fmt.Sprintf("Variable not in model: %s", name))
			return
		}
		after[name] = Fit{Name: name, Coefficient: value}
	}
	for _, name := range m.features {
		if _, pinned := body.Coefficients[name]; !pinned {
			fit := after[name]
			fit.Coefficient *= 1.05
			after[name] = fit
		}
	}

	if body.Preview {
		writeSuccess(w, comparisonPayload(m, after, body.Coefficients))
		return
	}
	m.fits = after
	for name := range body.Coefficients {
		m.fixed[name] = true
	}
	writeSuccess(w, map[string]any{"model": modelPayload(m)})
}

func (f *FakeService) handleTestVariables(w http.ResponseWriter, r *http.Request) {
	body, _, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	results := make([]map[string]any, 0, len(body.Variables))
	for i, v := range body.Variables {
		column := modeling.AdstockColumn(v, ratePercent(body.AdstockRates, i))
		if msg, failing := f.testFailures[column]; failing {
			writeFailure(w, http.StatusInternalServerError, msg)
			return
		}
		res, known := f.tests[column]
		if !known {
			res = modeling.TestResult{Coefficient: 0.5, TStat: 1.0, PValue: modeling.Float(0.32), VIF: modeling.Float(1.1)}
		}
		row := map[string]any{
			"Variable":    v,
			"Coefficient": res.Coefficient,
			"T-stat":      res.TStat,
		}
		if res.PValue != nil {
			row["P-value"] = *res.PValue
		}
		if res.VIF != nil {
			row["VIF"] = *res.VIF
		}
		if res.Error != "" {
			row["Error"] = res.Error
		}
		results = append(results, row)
	}
	writeSuccess(w, map[string]any{"results": results})
}

func (f *FakeService) handleChart(w http.ResponseWriter, r *http.Request) {
	var body editBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Variables) == 0 {
		writeFailure(w, http.StatusBadRequest, "No variables specified")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var missing []string
	for _, v := range body.Variables {
		if _, ok := f.series[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		writeFailure(w, http.StatusBadRequest, fmt.Sprintf("Variables not found: %v", missing))
		return
	}

	chart := make([]map[string]any, 0, len(body.Variables))
	for _, v := range body.Variables {
		data := make([]map[string]any, 0, len(f.series[v]))
		for _, p := range f.series[v] {
			data = append(data, map[string]any{"x": p.Timestamp, "y": p.Value})
		}
		chart = append(chart, map[string]any{"name": v, "data": data})
	}
	writeSuccess(w, map[string]any{"chartData": chart})
}

func (f *FakeService) handleCreateWeighted(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	if body.BaseName == "" {
		writeFailure(w, http.StatusBadRequest, "Base name is required")
		return
	}
	if len(body.Coefficients) == 0 {
		writeFailure(w, http.StatusBadRequest, "Coefficients are required")
		return
	}
	name := modeling.WeightedName(body.BaseName)
	m.weighted[name] = modeling.WeightedComponents{
		VariableName: name,
		BaseName:     body.BaseName,
		Components:   body.Coefficients,
	}
	if !slices.ContainsFunc(f.catalog, func(v modeling.Variable) bool { return v.Name == name }) {
		f.catalog = append(f.catalog, modeling.Variable{
			Name: name, Type: modeling.TypeNumeric, Transformation: "NONE", Group: "Other",
		})
	}
	writeSuccess(w, map[string]any{"newVariable": name, "message": fmt.Sprintf("Created weighted variable '%s'", name)})
}

func (f *FakeService) handleGetWeighted(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	wv, found := m.weighted[body.VariableName]
	if !found {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("No weighted variable found with name: %s", body.VariableName))
		return
	}
	writeSuccess(w, map[string]any{"components": wv.Components, "baseName": wv.BaseName})
}

func (f *FakeService) handleUpdateWeighted(w http.ResponseWriter, r *http.Request) {
	body, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	wv, found := m.weighted[body.VariableName]
	if !found {
		writeFailure(w, http.StatusNotFound, fmt.Sprintf("No weighted variable found with name: %s", body.VariableName))
		return
	}
	if len(body.Coefficients) == 0 {
		writeFailure(w, http.StatusBadRequest, "Coefficients are required")
		return
	}
	wv.Components = body.Coefficients
	m.weighted[body.VariableName] = wv
	writeSuccess(w, map[string]any{"message": fmt.Sprintf("Updated weighted variable '%s'", body.VariableName)})
}

func (f *FakeService) handleDecomposition(w http.ResponseWriter, r *http.Request) {
	_, m, ok := f.decodeModel(w, r)
	if !ok {
		return
	}
	defer f.mu.Unlock()

	kpi, ok := f.series[m.kpi]
	if !ok {
		writeFailure(w, http.StatusBadRequest, "Model has no results. Please fit the model first.")
		return
	}
	dates := make([]string, len(kpi))
	actual := make([]float64, len(kpi))
	predicted := make([]float64, len(kpi))
	base := make([]float64, len(kpi))
	constant := m.fits[modeling.ConstantName].Coefficient
	for i, p := range kpi {
		dates[i] = p.Timestamp
		actual[i] = p.Value
		base[i] = constant
		predicted[i] = constant
	}
	contributions := map[string][]float64{"Base": base}
	for _, name := range m.features {
		points, ok := f.series[name]
		if !ok {
			continue
		}
		coef := m.fits[name].Coefficient
		contrib := make([]float64, len(kpi))
		for i := range contrib {
			if i < len(points) {
				contrib[i] = coef * points[i].Value
			}
			predicted[i] += contrib[i]
		}
		contributions[name] = contrib
	}
	writeSuccess(w, map[string]any{"data": map[string]any{
		"dates":         dates,
		"actual":        actual,
		"predicted":     predicted,
		"contributions": contributions,
	}})
}

// decodeModel parses the body and resolves the model. On success the mutex is held.
func (f *FakeService) decodeModel(w http.ResponseWriter, r *http.Request) (editBody, *fakeModel, bool) {
	var body editBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid JSON body")
		return body, nil, false
	}
	f.mu.Lock()
	m, ok := f.models[body.ModelName]
	if !ok {
		f.mu.Unlock()
		writeFailure(w, http.StatusBadRequest, "Invalid model name")
		return body, nil, false
	}
	return body, m, true
}

func (f *FakeService) fitsAfterAdd(m *fakeModel, body editBody) (map[string]Fit, error) {
	after := cloneFits(m.fits)
	for _, name := range m.features {
		fit := after[name]
		fit.Coefficient *= 0.9
		fit.TStat *= 0.95
		after[name] = fit
	}
	for i, v := range body.Variables {
		if len(f.catalog) > 0 && !slices.ContainsFunc(f.catalog, func(c modeling.Variable) bool { return c.Name == v }) {
			return nil, fmt.Errorf("variable not found: %s", v)
		}
		column := modeling.AdstockColumn(v, ratePercent(body.AdstockRates, i))
		fit := Fit{Name: column, Coefficient: 1.0, TStat: 2.5}
		if res, ok := f.tests[column]; ok {
			fit.Coefficient, fit.TStat = res.Coefficient, res.TStat
		}
		after[column] = fit
	}
	for name, value := range body.FixedCoefficients {
		after[name] = Fit{Name: name, Coefficient: value}
	}
	return after, nil
}

func fitsAfterRemove(m *fakeModel, variables []string) (map[string]Fit, error) {
	var invalid []string
	for _, v := range variables {
		if !slices.Contains(m.features, v) {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("variables not in model: %v", invalid)
	}
	after := cloneFits(m.fits)
	for _, v := range variables {
		delete(after, v)
	}
	for _, name := range m.features {
		if fit, ok := after[name]; ok {
			fit.Coefficient *= 1.1
			fit.TStat *= 1.05
			after[name] = fit
		}
	}
	return after, nil
}

// comparisonPayload mirrors the service's diff, including its ratio-based
// percentage changes, so clients must normalize.
func comparisonPayload(m *fakeModel, after map[string]Fit, fixed map[string]float64) map[string]any {
	names := append([]string{modeling.ConstantName}, m.features...)
	for _, name := range slices.Sorted(maps.Keys(after)) {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	rows := make([]map[string]any, 0, len(names))
	for _, name := range names {
		newFit, ok := after[name]
		if !ok {
			continue
		}
		oldFit, existed := m.fits[name]
		_, pinned := fixed[name]
		row := map[string]any{
			"variable":             name,
			"coefficient":          oldFit.Coefficient,
			"newCoefficient":       newFit.Coefficient,
			"coefficientPctChange": ratioChange(oldFit.Coefficient, newFit.Coefficient, existed),
			"fixed":                pinned || m.fixed[name],
		}
		if !pinned {
			row["tStat"] = oldFit.TStat
			row["newTStat"] = newFit.TStat
			row["tStatPctChange"] = ratioChange(oldFit.TStat, newFit.TStat, existed)
		}
		rows = append(rows, row)
	}
	return map[string]any{
		"comparison":   rows,
		"rsquared":     math.Min(0.99, m.rsquared+0.05),
		"rsquared_adj": math.Min(0.98, m.rsquared+0.03),
	}
}

func ratioChange(old, updated float64, existed bool) float64 {
	if !existed {
		return 100
	}
	if old == 0 {
		return 0
	}
	return (updated/old - 1) * 100
}

func modelPayload(m *fakeModel) map[string]any {
	coefficients := make(map[string]float64, len(m.fits))
	for name, fit := range m.fits {
		coefficients[name] = fit.Coefficient
	}
	return map[string]any{
		"name":         m.name,
		"kpi":          m.kpi,
		"features":     slices.Clone(m.features),
		"coefficients": coefficients,
		"rsquared":     m.rsquared,
	}
}

func cloneFits(in map[string]Fit) map[string]Fit {
	out := make(map[string]Fit, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func ratePercent(rates []float64, i int) int {
	if i >= len(rates) {
		return 0
	}
	return modeling.AdstockRate(rates[i]).Percent()
}

func writeSuccess(w http.ResponseWriter, payload map[string]any) {
	payload["success"] = true
	writeJSON(w, http.StatusOK, payload)
}

func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
