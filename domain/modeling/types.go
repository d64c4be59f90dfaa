package modeling

import (
	"slices"
)

// VariableType classifies a column in the modeling dataset
type VariableType string

const (
	TypeNumeric     VariableType = "NUMERIC"
	TypeCategorical VariableType = "CATEGORICAL"
	TypeDate        VariableType = "DATE"
	// TypeConstant marks the intercept row the statistics service reports as "const".
	TypeConstant VariableType = "CONSTANT"
)

// ConstantName is the intercept's variable name in model snapshots
const ConstantName = "const"

// Variable describes one catalog column or one model feature
type Variable struct {
	Name           string       `json:"name"`
	Type           VariableType `json:"type"`
	Transformation string       `json:"transformation"`
	Group          string       `json:"group"`
	BaseVariable   string       `json:"baseVariable,omitempty"`
	IsTransformed  bool         `json:"isTransformed"`
	Coefficient    *float64     `json:"coefficient,omitempty"`
	TStat          *float64     `json:"tStat,omitempty"`
}

// IsConstant reports whether the variable is the model intercept
func (v Variable) IsConstant() bool {
	return v.Type == TypeConstant || v.Name == ConstantName
}

// Model is a read-only snapshot of one remote model
type Model struct {
	Name      string     `json:"name"`
	KPI       string     `json:"kpi"`
	Variables []Variable `json:"variables"`
}

// VariableNames returns feature names in snapshot order, intercept excluded
func (m *Model) VariableNames() []string {
	names := make([]string, 0, len(m.Variables))
	for _, v := range m.Variables {
		if v.IsConstant() {
			continue
		}
		names = append(names, v.Name)
	}
	return names
}

// HasVariable reports whether name is a feature of the model
func (m *Model) HasVariable(name string) bool {
	return slices.ContainsFunc(m.Variables, func(v Variable) bool { return v.Name == name })
}

// Clone returns a deep copy so callers can never mutate a shared snapshot
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	out := &Model{Name: m.Name, KPI: m.KPI, Variables: make([]Variable, len(m.Variables))}
	for i, v := range m.Variables {
		out.Variables[i] = v
		if v.Coefficient != nil {
			c := *v.Coefficient
			out.Variables[i].Coefficient = &c
		}
		if v.TStat != nil {
			t := *v.TStat
			out.Variables[i].TStat = &t
		}
	}
	return out
}

// ModelSummary is one entry of the remote model list
type ModelSummary struct {
	Name          string   `json:"name"`
	KPI           string   `json:"kpi"`
	VariableCount int      `json:"variables"`
	RSquared      *float64 `json:"rsquared,omitempty"`
}

// ModelList is the remote model list plus the service-side active model
type ModelList struct {
	Models      []ModelSummary `json:"models"`
	ActiveModel string         `json:"activeModel"`
}

// FixedCoefficientMap pins coefficients instead of estimating them
type FixedCoefficientMap map[string]float64

// Clone copies the map
func (m FixedCoefficientMap) Clone() FixedCoefficientMap {
	if m == nil {
		return nil
	}
	out := make(FixedCoefficientMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SeriesPoint is one observation of a time series keyed by its raw timestamp label
type SeriesPoint struct {
	Timestamp string  `json:"x"`
	Value     float64 `json:"y"`
}

// SeriesSet maps variable name to its observations
type SeriesSet map[string][]SeriesPoint

// TestResult is one row of a significance test run by the statistics service
type TestResult struct {
	Variable    string   `json:"variable"`
	Coefficient float64  `json:"coefficient"`
	TStat       float64  `json:"tStat"`
	PValue      *float64 `json:"pValue,omitempty"`
	VIF         *float64 `json:"vif,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// Failed reports whether the service could not fit this variable
func (r TestResult) Failed() bool {
	return r.Error != ""
}

// WeightedComponents is the stored definition of a composite variable
type WeightedComponents struct {
	VariableName string             `json:"variableName"`
	BaseName     string             `json:"baseName"`
	Components   map[string]float64 `json:"components"`
}

// Decomposition is the per-period contribution breakdown of a model
type Decomposition struct {
	Dates         []string             `json:"dates"`
	Actual        []float64            `json:"actual"`
	Predicted     []float64            `json:"predicted"`
	Contributions map[string][]float64 `json:"contributions"`
}
