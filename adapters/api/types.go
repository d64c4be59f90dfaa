package api

import (
	"mmmstudio/domain/modeling"
)

// Wire shapes of the statistics service. Responses are wrapped in a
// {"success": bool, "error": string} envelope; the payload fields sit beside it.

type modelNameRequest struct {
	ModelName string `json:"modelName"`
}

type variablesRequest struct {
	ModelName string   `json:"modelName"`
	Variables []string `json:"variables"`
}

type addVariablesRequest struct {
	ModelName         string             `json:"modelName"`
	Variables         []string           `json:"variables"`
	AdstockRates      []float64          `json:"adstockRates"`
	FixedCoefficients map[string]float64 `json:"fixedCoefficients,omitempty"`
}

type testVariablesRequest struct {
	ModelName    string    `json:"modelName"`
	Variables    []string  `json:"variables"`
	AdstockRates []float64 `json:"adstockRates,omitempty"`
}

type fixCoefficientsRequest struct {
	ModelName    string             `json:"modelName"`
	Coefficients map[string]float64 `json:"coefficients"`
	Preview      bool               `json:"preview"`
}

type createWeightedRequest struct {
	ModelName    string             `json:"modelName"`
	BaseName     string             `json:"baseName"`
	Coefficients map[string]float64 `json:"coefficients"`
}

type weightedVariableRequest struct {
	ModelName    string             `json:"modelName"`
	VariableName string             `json:"variableName"`
	Coefficients map[string]float64 `json:"coefficients,omitempty"`
}

type modelSummaryDTO struct {
	Name      string   `json:"name"`
	KPI       string   `json:"kpi"`
	Variables int      `json:"variables"`
	RSquared  *float64 `json:"rsquared"`
}

type variableDTO struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	Transformation string   `json:"transformation"`
	Group          string   `json:"group"`
	IsTransformed  bool     `json:"isTransformed"`
	BaseVariable   *string  `json:"baseVariable"`
	Coefficient    *float64 `json:"coefficient"`
	TStat          *float64 `json:"tStat"`
}

func (d variableDTO) toDomain() modeling.Variable {
	v := modeling.Variable{
		Name:           d.Name,
		Type:           modeling.VariableType(d.Type),
		Transformation: d.Transformation,
		Group:          d.Group,
		IsTransformed:  d.IsTransformed,
		Coefficient:    d.Coefficient,
		TStat:          d.TStat,
	}
	if v.Type == "" {
		v.Type = modeling.TypeNumeric
	}
	if v.Name == modeling.ConstantName {
		v.Type = modeling.TypeConstant
	}
	if d.BaseVariable != nil {
		v.BaseVariable = *d.BaseVariable
	} else if base, ok := modeling.BaseVariableOf(d.Name); ok {
		v.BaseVariable = base
		v.IsTransformed = true
	}
	return v
}

type comparisonRowDTO struct {
	Variable             string   `json:"variable"`
	Coefficient          float64  `json:"coefficient"`
	NewCoefficient       float64  `json:"newCoefficient"`
	CoefficientPctChange float64  `json:"coefficientPctChange"`
	TStat                *float64 `json:"tStat"`
	NewTStat             *float64 `json:"newTStat"`
	TStatPctChange       *float64 `json:"tStatPctChange"`
	Fixed                bool     `json:"fixed"`
}

type testResultDTO struct {
	Variable    string   `json:"Variable"`
	Coefficient float64  `json:"Coefficient"`
	TStat       float64  `json:"T-stat"`
	PValue      *float64 `json:"P-value"`
	VIF         *float64 `json:"VIF"`
	Error       string   `json:"Error"`
}

type decompositionDTO struct {
	Dates         []string             `json:"dates"`
	Actual        []float64            `json:"actual"`
	Predicted     []float64            `json:"predicted"`
	Contributions map[string][]float64 `json:"contributions"`
}
