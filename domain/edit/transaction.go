package edit

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
)

// Mode is the kind of change a transaction proposes
type Mode int

const (
	ModeAdd Mode = iota + 1
	ModeRemove
	ModeFixCoefficient
)

// String returns the wire name of the mode
func (m Mode) String() string {
	switch m {
	case ModeAdd:
		return "add"
	case ModeRemove:
		return "remove"
	case ModeFixCoefficient:
		return "fix_coefficient"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the declared modes
func (m Mode) Valid() bool {
	switch m {
	case ModeAdd, ModeRemove, ModeFixCoefficient:
		return true
	default:
		return false
	}
}

// ParseMode accepts the wire names plus a few spellings the dashboard has used
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return ModeAdd, nil
	case "remove":
		return ModeRemove, nil
	case "fix_coefficient", "fix", "fixcoefficient", "fix-coefficient":
		return ModeFixCoefficient, nil
	default:
		return 0, fmt.Errorf("%w: %q", core.ErrUnknownEditMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", core.ErrUnknownEditMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Status is the engine state for one model
type Status string

const (
	StatusIdle         Status = "idle"
	StatusPreviewing   Status = "previewing"
	StatusPreviewReady Status = "preview_ready"
	StatusApplying     Status = "applying"
)

// Busy reports whether a remote call is in flight
func (s Status) Busy() bool {
	return s == StatusPreviewing || s == StatusApplying
}

// Params carries the mode-specific arguments of an edit
type Params struct {
	// AdstockRates holds one rate per pending variable for ModeAdd. Empty means no adstock.
	AdstockRates []modeling.AdstockRate `json:"adstockRates,omitempty"`
	// FixedCoefficients pins values for ModeFixCoefficient and may constrain an add preview.
	FixedCoefficients modeling.FixedCoefficientMap `json:"fixedCoefficients,omitempty"`
}

// Request is what a caller asks the engine to preview
type Request struct {
	Model     string   `json:"model"`
	Mode      Mode     `json:"mode"`
	Variables []string `json:"variables"`
	Params    Params   `json:"params"`
}

// Validate enforces the pre-flight rules; it never touches the network.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return core.ErrNoModelSelected
	}
	if !r.Mode.Valid() {
		return fmt.Errorf("%w: %d", core.ErrUnknownEditMode, int(r.Mode))
	}
	if len(r.Variables) == 0 {
		return core.ErrEmptySelection
	}
	for _, v := range r.Variables {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: blank variable name", core.ErrEmptySelection)
		}
	}

	switch r.Mode {
	case ModeAdd:
		if n := len(r.Params.AdstockRates); n != 0 && n != len(r.Variables) {
			return fmt.Errorf("%w: %d rates for %d variables", core.ErrInvalidAdstockRate, n, len(r.Variables))
		}
		for i, rate := range r.Params.AdstockRates {
			if !rate.Valid() {
				return fmt.Errorf("%w: %s=%v", core.ErrInvalidAdstockRate, r.Variables[i], float64(rate))
			}
		}
		return validateFinite(r.Params.FixedCoefficients)
	case ModeRemove:
		return nil
	case ModeFixCoefficient:
		for _, v := range r.Variables {
			if _, ok := r.Params.FixedCoefficients[v]; !ok {
				return fmt.Errorf("%w: %s has no value", core.ErrNonFiniteCoefficient, v)
			}
		}
		return validateFinite(r.Params.FixedCoefficients)
	default:
		return fmt.Errorf("%w: %d", core.ErrUnknownEditMode, int(r.Mode))
	}
}

// Rates returns the adstock rates as plain floats, padded with zeros
func (r Request) Rates() []float64 {
	rates := make([]float64, len(r.Variables))
	for i := range rates {
		if i < len(r.Params.AdstockRates) {
			rates[i] = float64(r.Params.AdstockRates[i])
		}
	}
	return rates
}

// FixedForCommit returns only the coefficients for the pending variables
func (r Request) FixedForCommit() modeling.FixedCoefficientMap {
	out := make(modeling.FixedCoefficientMap, len(r.Variables))
	for _, v := range r.Variables {
		if c, ok := r.Params.FixedCoefficients[v]; ok {
			out[v] = c
		}
	}
	return out
}

func validateFinite(m modeling.FixedCoefficientMap) error {
	for name, c := range m {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: %s", core.ErrNonFiniteCoefficient, name)
		}
	}
	return nil
}

// Transaction is an open edit between trigger and commit/cancel
type Transaction struct {
	ID               core.TransactionID   `json:"id"`
	Mode             Mode                 `json:"mode"`
	TargetModel      string               `json:"targetModel"`
	PendingVariables []string             `json:"pendingVariables"`
	Params           Params               `json:"params"`
	Draft            *modeling.Comparison `json:"draft,omitempty"`
	Status           Status               `json:"status"`
	OpenedAt         time.Time            `json:"openedAt"`
}

// NewTransaction opens a transaction for a validated request
func NewTransaction(req Request, now time.Time) *Transaction {
	return &Transaction{
		ID:               core.NewTransactionID(),
		Mode:             req.Mode,
		TargetModel:      req.Model,
		PendingVariables: slices.Clone(req.Variables),
		Params: Params{
			AdstockRates:      slices.Clone(req.Params.AdstockRates),
			FixedCoefficients: req.Params.FixedCoefficients.Clone(),
		},
		Status:   StatusPreviewing,
		OpenedAt: now,
	}
}

// Request rebuilds the request the transaction was opened with
func (t *Transaction) Request() Request {
	return Request{
		Model:     t.TargetModel,
		Mode:      t.Mode,
		Variables: slices.Clone(t.PendingVariables),
		Params: Params{
			AdstockRates:      slices.Clone(t.Params.AdstockRates),
			FixedCoefficients: t.Params.FixedCoefficients.Clone(),
		},
	}
}

// Clone deep-copies the transaction
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	out.PendingVariables = slices.Clone(t.PendingVariables)
	out.Params.AdstockRates = slices.Clone(t.Params.AdstockRates)
	out.Params.FixedCoefficients = t.Params.FixedCoefficients.Clone()
	out.Draft = t.Draft.Clone()
	return &out
}

// Outcome is how a transaction closed
type Outcome string

const (
	OutcomeCommitted     Outcome = "committed"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomePreviewFailed Outcome = "preview_failed"
	OutcomeCommitFailed  Outcome = "commit_failed"
)

// JournalEntry records a closed transaction
type JournalEntry struct {
	ID        core.TransactionID `json:"id"`
	Model     string             `json:"model"`
	Mode      string             `json:"mode"`
	Variables []string           `json:"variables"`
	Outcome   Outcome            `json:"outcome"`
	Error     string             `json:"error,omitempty"`
	DraftRows int                `json:"draftRows"`
	OpenedAt  time.Time          `json:"openedAt"`
	ClosedAt  time.Time          `json:"closedAt"`
}

// NewJournalEntry summarizes a transaction that has just closed
func NewJournalEntry(tx *Transaction, outcome Outcome, cause error, closedAt time.Time) JournalEntry {
	entry := JournalEntry{
		ID:        tx.ID,
		Model:     tx.TargetModel,
		Mode:      tx.Mode.String(),
		Variables: slices.Clone(tx.PendingVariables),
		Outcome:   outcome,
		OpenedAt:  tx.OpenedAt,
		ClosedAt:  closedAt,
	}
	if tx.Draft != nil {
		entry.DraftRows = len(tx.Draft.Rows)
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	return entry
}
