package testkit

import (
	"testing"
)

func TestDatasetGenerator_Basic(t *testing.T) {
	config := DefaultDatasetConfig()
	config.Weeks = 20

	ds := NewDatasetGenerator(config).Generate()

	if len(ds.Series) != len(config.Channels)+1 {
		t.Fatalf("expected %d series, got %d", len(config.Channels)+1, len(ds.Series))
	}
	for name, points := range ds.Series {
		if len(points) != config.Weeks {
			t.Errorf("series %s has %d points, want %d", name, len(points), config.Weeks)
		}
	}
	if ds.Series["TV"][1].Timestamp != "2023-01-09" {
		t.Errorf("second week = %s, want 2023-01-09", ds.Series["TV"][1].Timestamp)
	}
	for _, p := range ds.Series["Radio"] {
		if p.Value < 0 {
			t.Fatalf("spend must not be negative: %v", p)
		}
	}
}

func TestDatasetGenerator_Deterministic(t *testing.T) {
	a := NewDatasetGenerator(DefaultDatasetConfig()).Generate()
	b := NewDatasetGenerator(DefaultDatasetConfig()).Generate()

	for i := range a.Series["Sales"] {
		if a.Series["Sales"][i] != b.Series["Sales"][i] {
			t.Fatalf("same seed produced different KPI at week %d", i)
		}
	}
}

func TestAdstock(t *testing.T) {
	got := Adstock([]float64{100, 0, 0}, 0.5)
	want := []float64{100, 50, 25}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Adstock[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
