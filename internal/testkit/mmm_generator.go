package testkit

import (
	"math"
	"math/rand"
	"time"

	"mmmstudio/domain/modeling"
)

// ChannelSpec describes one synthetic media channel
type ChannelSpec struct {
	Name        string  `json:"name"`
	Group       string  `json:"group"`
	MeanSpend   float64 `json:"mean_spend"`
	SpendJitter float64 `json:"spend_jitter"`
	// Decay is the true geometric adstock carry-over in [0,1).
	Decay float64 `json:"decay"`
	// Effect is the true KPI lift per adstocked unit.
	Effect float64 `json:"effect"`
}

// DatasetConfig configures the weekly marketing-mix generator
type DatasetConfig struct {
	KPI       string        `json:"kpi"`
	Weeks     int           `json:"weeks"`
	StartDate time.Time     `json:"start_date"`
	Baseline  float64       `json:"baseline"`
	Noise     float64       `json:"noise"`
	Channels  []ChannelSpec `json:"channels"`
	Seed      int64         `json:"seed"`
}

// DefaultDatasetConfig returns two years of weekly data with four channels
func DefaultDatasetConfig() DatasetConfig {
	return DatasetConfig{
		KPI:       "Sales",
		Weeks:     104,
		StartDate: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
		Baseline:  1000,
		Noise:     25,
		Channels: []ChannelSpec{
			{Name: "TV", Group: "Media", MeanSpend: 100, SpendJitter: 40, Decay: 0.3, Effect: 1.8},
			{Name: "Radio", Group: "Media", MeanSpend: 40, SpendJitter: 15, Decay: 0.1, Effect: 0.9},
			{Name: "Search", Group: "Digital", MeanSpend: 60, SpendJitter: 20, Decay: 0, Effect: 1.2},
			{Name: "Social", Group: "Digital", MeanSpend: 30, SpendJitter: 12, Decay: 0.2, Effect: 0.4},
		},
		Seed: 42,
	}
}

// Dataset is a generated weekly panel
type Dataset struct {
	KPI      string
	Series   modeling.SeriesSet
	Catalog  []modeling.Variable
	Channels []ChannelSpec
}

// DatasetGenerator generates deterministic weekly marketing data
type DatasetGenerator struct {
	config DatasetConfig
	rng    *rand.Rand
}

// NewDatasetGenerator creates a new dataset generator
func NewDatasetGenerator(config DatasetConfig) *DatasetGenerator {
	return &DatasetGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate builds spend series per channel and a KPI driven by their adstocked values
func (g *DatasetGenerator) Generate() *Dataset {
	weeks := g.config.Weeks
	dates := make([]string, weeks)
	for i := range dates {
		dates[i] = g.config.StartDate.AddDate(0, 0, 7*i).Format("2006-01-02")
	}

	ds := &Dataset{
		KPI:      g.config.KPI,
		Series:   make(modeling.SeriesSet, len(g.config.Channels)+1),
		Channels: g.config.Channels,
	}

	kpi := make([]float64, weeks)
	for i := range kpi {
		kpi[i] = g.config.Baseline + g.rng.NormFloat64()*g.config.Noise
	}

	for _, ch := range g.config.Channels {
		spend := make([]float64, weeks)
		for i := range spend {
			// Seasonal flighting keeps channels from being perfectly uncorrelated.
			season := 1 + 0.25*math.Sin(2*math.Pi*float64(i)/52)
			spend[i] = math.Max(0, ch.MeanSpend*season+g.rng.NormFloat64()*ch.SpendJitter)
		}
		carried := Adstock(spend, ch.Decay)
		for i := range kpi {
			kpi[i] += ch.Effect * carried[i]
		}

		ds.Series[ch.Name] = toPoints(dates, spend)
		ds.Catalog = append(ds.Catalog, modeling.Variable{
			Name:           ch.Name,
			Type:           modeling.TypeNumeric,
			Transformation: "NONE",
			Group:          ch.Group,
		})
	}

	ds.Series[g.config.KPI] = toPoints(dates, kpi)
	ds.Catalog = append(ds.Catalog, modeling.Variable{
		Name:           g.config.KPI,
		Type:           modeling.TypeNumeric,
		Transformation: "NONE",
		Group:          "KPI",
	})
	return ds
}

// Adstock applies geometric carry-over: out[t] = x[t] + decay*out[t-1]
func Adstock(values []float64, decay float64) []float64 {
	out := make([]float64, len(values))
	carry := 0.0
	for i, v := range values {
		carry = v + decay*carry
		out[i] = carry
	}
	return out
}

func toPoints(dates []string, values []float64) []modeling.SeriesPoint {
	points := make([]modeling.SeriesPoint, len(values))
	for i, v := range values {
		points[i] = modeling.SeriesPoint{Timestamp: dates[i], Value: v}
	}
	return points
}
