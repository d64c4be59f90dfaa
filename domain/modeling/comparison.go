package modeling

import "math"

// ComparisonRow is one variable's before/after line in a preview diff
type ComparisonRow struct {
	Variable             string   `json:"variable"`
	Coefficient          float64  `json:"coefficient"`
	NewCoefficient       float64  `json:"newCoefficient"`
	CoefficientPctChange float64  `json:"coefficientPctChange"`
	TStat                *float64 `json:"tStat,omitempty"`
	NewTStat             *float64 `json:"newTStat,omitempty"`
	TStatPctChange       *float64 `json:"tStatPctChange,omitempty"`
	Fixed                bool     `json:"fixed"`
}

// Comparison is the diff returned by a preview call
type Comparison struct {
	Rows        []ComparisonRow `json:"rows"`
	RSquared    *float64        `json:"rsquared,omitempty"`
	RSquaredAdj *float64        `json:"rsquaredAdj,omitempty"`
}

// PctChange returns (new-old)/|old|*100, or 0 when old is zero.
func PctChange(old, updated float64) float64 {
	if old == 0 || math.IsNaN(old) || math.IsNaN(updated) {
		return 0
	}
	return (updated - old) / math.Abs(old) * 100
}

// Normalize recomputes percentage changes with a single formula and strips
// t-statistics from fixed rows. Fixed rows are the ones named in fixed or
// already flagged by the service.
func (c *Comparison) Normalize(fixed FixedCoefficientMap) {
	for i := range c.Rows {
		row := &c.Rows[i]
		if _, ok := fixed[row.Variable]; ok {
			row.Fixed = true
		}
		row.CoefficientPctChange = PctChange(row.Coefficient, row.NewCoefficient)
		if row.Fixed {
			row.TStat, row.NewTStat, row.TStatPctChange = nil, nil, nil
			continue
		}
		if row.TStat != nil && row.NewTStat != nil {
			pct := PctChange(*row.TStat, *row.NewTStat)
			row.TStatPctChange = &pct
		} else {
			row.TStatPctChange = nil
		}
	}
}

// Row finds the row for variable
func (c *Comparison) Row(variable string) (ComparisonRow, bool) {
	for _, r := range c.Rows {
		if r.Variable == variable {
			return r, true
		}
	}
	return ComparisonRow{}, false
}

// Clone deep-copies the comparison
func (c *Comparison) Clone() *Comparison {
	if c == nil {
		return nil
	}
	out := &Comparison{
		Rows:        make([]ComparisonRow, len(c.Rows)),
		RSquared:    cloneFloat(c.RSquared),
		RSquaredAdj: cloneFloat(c.RSquaredAdj),
	}
	for i, r := range c.Rows {
		r.TStat = cloneFloat(r.TStat)
		r.NewTStat = cloneFloat(r.NewTStat)
		r.TStatPctChange = cloneFloat(r.TStatPctChange)
		out.Rows[i] = r
	}
	return out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v, for optional numeric fields
func Float(v float64) *float64 {
	return &v
}
