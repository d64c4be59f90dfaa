package profiling

import (
	"math"

	"github.com/montanaflynn/stats"

	"mmmstudio/domain/modeling"
)

// SeriesProfile summarizes one variable's observations next to a correlation matrix
type SeriesProfile struct {
	Variable     string  `json:"variable"`
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	StdDev       float64 `json:"stdDev"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Median       float64 `json:"median"`
	ZeroShare    float64 `json:"zeroShare"`
	OutlierCount int     `json:"outlierCount"`
	// Constant series make every correlation against them 0.
	Constant bool `json:"constant"`
}

// Profiler computes series summaries
type Profiler struct{}

// NewProfiler creates a new series profiler
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Profile summarizes one series. An empty series yields a zero profile.
func (p *Profiler) Profile(variable string, points []modeling.SeriesPoint) SeriesProfile {
	profile := SeriesProfile{Variable: variable, Count: len(points)}
	if len(points) == 0 {
		return profile
	}

	data := make(stats.Float64Data, len(points))
	zeros := 0
	for i, pt := range points {
		data[i] = pt.Value
		if pt.Value == 0 {
			zeros++
		}
	}
	profile.ZeroShare = float64(zeros) / float64(len(data))

	// Errors only arise on empty input, ruled out above.
	profile.Mean, _ = data.Mean()
	profile.StdDev, _ = data.StandardDeviationSample()
	profile.Min, _ = data.Min()
	profile.Max, _ = data.Max()
	profile.Median, _ = data.Median()
	profile.Constant = profile.Min == profile.Max
	if math.IsNaN(profile.StdDev) {
		profile.StdDev = 0
	}

	if len(data) >= 4 {
		q25, err1 := data.Percentile(25)
		q75, err2 := data.Percentile(75)
		if err1 == nil && err2 == nil {
			profile.OutlierCount = detectOutliers(data, q25, q75)
		}
	}
	return profile
}

// ProfileSet summarizes each named variable in order
func (p *Profiler) ProfileSet(variables []string, set modeling.SeriesSet) []SeriesProfile {
	out := make([]SeriesProfile, 0, len(variables))
	for _, v := range variables {
		out = append(out, p.Profile(v, set[v]))
	}
	return out
}

// detectOutliers identifies outliers using the IQR method
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}
