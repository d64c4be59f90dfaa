package edit

import (
	"errors"
	"math"
	"testing"
	"time"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"add":             ModeAdd,
		" Remove ":        ModeRemove,
		"fix":             ModeFixCoefficient,
		"fix_coefficient": ModeFixCoefficient,
	} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("preview"); !errors.Is(err, core.ErrUnknownEditMode) {
		t.Errorf("expected ErrUnknownEditMode, got %v", err)
	}
}

func TestModeTextRoundTrip(t *testing.T) {
	for _, m := range []Mode{ModeAdd, ModeRemove, ModeFixCoefficient} {
		text, err := m.MarshalText()
		if err != nil {
			t.Fatalf("MarshalText(%v): %v", m, err)
		}
		var back Mode
		if err := back.UnmarshalText(text); err != nil || back != m {
			t.Errorf("round trip of %v gave %v, %v", m, back, err)
		}
	}
	if _, err := Mode(0).MarshalText(); err == nil {
		t.Error("zero mode must not marshal")
	}
}

func TestRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want error
	}{
		{"no model", Request{Mode: ModeAdd, Variables: []string{"TV"}}, core.ErrNoModelSelected},
		{"empty selection", Request{Model: "m", Mode: ModeRemove}, core.ErrEmptySelection},
		{"blank name", Request{Model: "m", Mode: ModeRemove, Variables: []string{" "}}, core.ErrEmptySelection},
		{"unknown mode", Request{Model: "m", Variables: []string{"TV"}}, core.ErrUnknownEditMode},
		{"rate count mismatch", Request{Model: "m", Mode: ModeAdd, Variables: []string{"TV", "Radio"},
			Params: Params{AdstockRates: []modeling.AdstockRate{0.2}}}, core.ErrInvalidAdstockRate},
		{"rate out of range", Request{Model: "m", Mode: ModeAdd, Variables: []string{"TV"},
			Params: Params{AdstockRates: []modeling.AdstockRate{1.5}}}, core.ErrInvalidAdstockRate},
		{"fix missing value", Request{Model: "m", Mode: ModeFixCoefficient, Variables: []string{"TV"}}, core.ErrNonFiniteCoefficient},
		{"fix nan", Request{Model: "m", Mode: ModeFixCoefficient, Variables: []string{"TV"},
			Params: Params{FixedCoefficients: modeling.FixedCoefficientMap{"TV": math.NaN()}}}, core.ErrNonFiniteCoefficient},
		{"fix inf", Request{Model: "m", Mode: ModeFixCoefficient, Variables: []string{"TV"},
			Params: Params{FixedCoefficients: modeling.FixedCoefficientMap{"TV": math.Inf(1)}}}, core.ErrNonFiniteCoefficient},
		{"valid add", Request{Model: "m", Mode: ModeAdd, Variables: []string{"TV"},
			Params: Params{AdstockRates: []modeling.AdstockRate{0.3}}}, nil},
		{"valid fix", Request{Model: "m", Mode: ModeFixCoefficient, Variables: []string{"TV"},
			Params: Params{FixedCoefficients: modeling.FixedCoefficientMap{"TV": 0.4}}}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRequestRatesPadsWithZero(t *testing.T) {
	req := Request{Model: "m", Mode: ModeAdd, Variables: []string{"TV", "Radio"}}
	rates := req.Rates()
	if len(rates) != 2 || rates[0] != 0 || rates[1] != 0 {
		t.Errorf("Rates() = %v, want [0 0]", rates)
	}
}

func TestTransactionCloneAndJournal(t *testing.T) {
	req := Request{Model: "m", Mode: ModeFixCoefficient, Variables: []string{"TV"},
		Params: Params{FixedCoefficients: modeling.FixedCoefficientMap{"TV": 1.5}}}
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tx := NewTransaction(req, opened)
	tx.Draft = &modeling.Comparison{Rows: []modeling.ComparisonRow{{Variable: "TV"}}}

	clone := tx.Clone()
	clone.PendingVariables[0] = "Radio"
	clone.Params.FixedCoefficients["TV"] = 9
	if tx.PendingVariables[0] != "TV" || tx.Params.FixedCoefficients["TV"] != 1.5 {
		t.Error("Clone shares state with the original")
	}

	entry := NewJournalEntry(tx, OutcomeCancelled, nil, opened.Add(time.Minute))
	if entry.Mode != "fix_coefficient" || entry.DraftRows != 1 || entry.Error != "" {
		t.Errorf("unexpected journal entry: %+v", entry)
	}
	if got := tx.Request(); got.Mode != ModeFixCoefficient || got.FixedForCommit()["TV"] != 1.5 {
		t.Errorf("Request() did not rebuild the original: %+v", got)
	}
}
