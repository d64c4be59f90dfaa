package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mmmstudio/domain/core"
	"mmmstudio/domain/edit"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// EditSnapshot is the observable state of one model's engine
type EditSnapshot struct {
	Model       string            `json:"model"`
	Status      edit.Status       `json:"status"`
	Transaction *edit.Transaction `json:"transaction,omitempty"`
}

// CommitResult is returned by a successful commit
type CommitResult struct {
	Transaction *edit.Transaction `json:"transaction"`
	// Model is the refetched snapshot; nil when the refetch failed.
	Model *modeling.Model `json:"model,omitempty"`
	Stale bool            `json:"stale"`
}

// EditTransactionService runs the preview-before-commit protocol for one model.
// The mutex guards state transitions only and is never held across a remote call.
type EditTransactionService struct {
	model    string
	edits    ports.ModelEditPort
	registry *ModelRegistry
	journal  ports.TransactionJournal
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	status edit.Status
	tx     *edit.Transaction
}

// NewEditTransactionService creates an idle engine for model
func NewEditTransactionService(model string, edits ports.ModelEditPort, registry *ModelRegistry, journal ports.TransactionJournal, logger *zap.Logger) *EditTransactionService {
	return &EditTransactionService{
		model:    model,
		edits:    edits,
		registry: registry,
		journal:  journal,
		logger:   logging.OrNop(logger).With(zap.String("model", model)),
		now:      time.Now,
		status:   edit.StatusIdle,
	}
}

// Model returns the model this engine edits
func (s *EditTransactionService) Model() string {
	return s.model
}

// Snapshot returns the current status and a copy of the open transaction
func (s *EditTransactionService) Snapshot() EditSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EditSnapshot{Model: s.model, Status: s.status, Transaction: s.tx.Clone()}
}

// BeginPreview opens a transaction and asks the service for the diff. The
// model is never changed by a preview.
func (s *EditTransactionService) BeginPreview(ctx context.Context, req edit.Request) (*edit.Transaction, error) {
	if req.Model == "" {
		req.Model = s.model
	}
	if req.Model != s.model {
		return nil, errors.Validation(core.NewValidationError("model", fmt.Sprintf("engine edits %q, request targets %q", s.model, req.Model)))
	}
	if err := req.Validate(); err != nil {
		return nil, errors.Validation(err)
	}

	s.mu.Lock()
	if s.status != edit.StatusIdle {
		status := s.status
		s.mu.Unlock()
		s.logger.Info("preview rejected", zap.String("status", string(status)))
		return nil, errors.ConcurrencyConflict(s.model, fmt.Errorf("%w (status %s)", core.ErrEngineBusy, status))
	}
	tx := edit.NewTransaction(req, s.now())
	s.tx = tx
	s.status = edit.StatusPreviewing
	s.mu.Unlock()

	s.logger.Info("preview started",
		zap.String("transaction", tx.ID.String()),
		zap.Stringer("mode", req.Mode),
		zap.Strings("variables", req.Variables))

	comparison, err := s.preview(ctx, req)

	s.mu.Lock()
	if err != nil {
		s.status = edit.StatusIdle
		s.tx = nil
		s.mu.Unlock()
		s.logger.Warn("preview failed", zap.String("transaction", tx.ID.String()), zap.Error(err))
		s.record(ctx, tx, edit.OutcomePreviewFailed, err)
		return nil, err
	}
	tx.Draft = comparison
	tx.Status = edit.StatusPreviewReady
	s.status = edit.StatusPreviewReady
	out := tx.Clone()
	s.mu.Unlock()

	s.logger.Info("preview ready",
		zap.String("transaction", tx.ID.String()),
		zap.Int("rows", len(comparison.Rows)))
	return out, nil
}

// Commit applies the previewed edit, then refetches the model whether or not
// the apply succeeded. It is never retried.
func (s *EditTransactionService) Commit(ctx context.Context) (*CommitResult, error) {
	s.mu.Lock()
	if s.status.Busy() {
		status := s.status
		s.mu.Unlock()
		return nil, errors.ConcurrencyConflict(s.model, fmt.Errorf("%w (status %s)", core.ErrEngineBusy, status))
	}
	if s.status != edit.StatusPreviewReady || s.tx == nil {
		s.mu.Unlock()
		return nil, errors.InvalidState("commit requires a ready preview", core.ErrNoDraft)
	}
	tx := s.tx
	tx.Status = edit.StatusApplying
	s.status = edit.StatusApplying
	req := tx.Request()
	s.mu.Unlock()

	s.logger.Info("commit started", zap.String("transaction", tx.ID.String()))
	applyErr := s.apply(ctx, req)

	model, refetchErr := s.registry.Refetch(ctx, s.model)

	s.mu.Lock()
	s.status = edit.StatusIdle
	s.tx = nil
	tx.Status = edit.StatusIdle
	closed := tx.Clone()
	s.mu.Unlock()

	if applyErr != nil {
		s.logger.Warn("commit failed", zap.String("transaction", tx.ID.String()), zap.Error(applyErr))
		s.record(ctx, closed, edit.OutcomeCommitFailed, applyErr)
		return nil, applyErr
	}

	s.record(ctx, closed, edit.OutcomeCommitted, nil)
	s.logger.Info("commit applied",
		zap.String("transaction", tx.ID.String()),
		zap.Bool("stale", refetchErr != nil))
	return &CommitResult{Transaction: closed, Model: model, Stale: refetchErr != nil}, nil
}

// Cancel discards the draft. Nothing is sent to the service.
func (s *EditTransactionService) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Busy() {
		status := s.status
		s.mu.Unlock()
		return errors.ConcurrencyConflict(s.model, fmt.Errorf("%w (status %s)", core.ErrEngineBusy, status))
	}
	if s.status != edit.StatusPreviewReady || s.tx == nil {
		s.mu.Unlock()
		return errors.InvalidState("cancel requires a ready preview", core.ErrNoDraft)
	}
	tx := s.tx
	s.tx = nil
	s.status = edit.StatusIdle
	s.mu.Unlock()

	s.logger.Info("preview cancelled", zap.String("transaction", tx.ID.String()))
	s.record(ctx, tx, edit.OutcomeCancelled, nil)
	return nil
}

func (s *EditTransactionService) preview(ctx context.Context, req edit.Request) (*modeling.Comparison, error) {
	var (
		comparison *modeling.Comparison
		fixed      modeling.FixedCoefficientMap
		err        error
	)
	switch req.Mode {
	case edit.ModeAdd:
		fixed = req.Params.FixedCoefficients
		comparison, err = s.edits.PreviewAddVariables(ctx, addRequest(req))
	case edit.ModeRemove:
		comparison, err = s.edits.PreviewRemoveVariables(ctx, req.Model, req.Variables)
	case edit.ModeFixCoefficient:
		fixed = req.FixedForCommit()
		comparison, err = s.edits.FixCoefficients(ctx, req.Model, fixed, true)
	default:
		return nil, errors.Validation(fmt.Errorf("%w: %d", core.ErrUnknownEditMode, int(req.Mode)))
	}
	if err != nil {
		return nil, err
	}
	if comparison == nil {
		return nil, errors.RemoteCompute("preview", fmt.Errorf("%w: empty comparison", core.ErrRemoteCompute))
	}
	comparison.Normalize(fixed)
	return comparison, nil
}

func (s *EditTransactionService) apply(ctx context.Context, req edit.Request) error {
	switch req.Mode {
	case edit.ModeAdd:
		return s.edits.AddVariables(ctx, addRequest(req))
	case edit.ModeRemove:
		return s.edits.RemoveVariables(ctx, req.Model, req.Variables)
	case edit.ModeFixCoefficient:
		_, err := s.edits.FixCoefficients(ctx, req.Model, req.FixedForCommit(), false)
		return err
	default:
		return errors.Validation(fmt.Errorf("%w: %d", core.ErrUnknownEditMode, int(req.Mode)))
	}
}

// record journals a closed transaction. Journal failures are logged only.
func (s *EditTransactionService) record(ctx context.Context, tx *edit.Transaction, outcome edit.Outcome, cause error) {
	if s.journal == nil {
		return
	}
	entry := edit.NewJournalEntry(tx, outcome, cause, s.now())
	if err := s.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to journal transaction",
			zap.String("transaction", tx.ID.String()),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}

func addRequest(req edit.Request) ports.AddVariablesRequest {
	out := ports.AddVariablesRequest{
		Model:             req.Model,
		Variables:         req.Variables,
		FixedCoefficients: req.Params.FixedCoefficients,
	}
	if len(req.Params.AdstockRates) > 0 {
		out.AdstockRates = req.Rates()
	}
	return out
}

// TransactionManager hands out one engine per model
type TransactionManager struct {
	edits    ports.ModelEditPort
	registry *ModelRegistry
	journal  ports.TransactionJournal
	logger   *zap.Logger

	mu      sync.Mutex
	engines map[string]*EditTransactionService
}

// NewTransactionManager creates a manager with no engines
func NewTransactionManager(edits ports.ModelEditPort, registry *ModelRegistry, journal ports.TransactionJournal, logger *zap.Logger) *TransactionManager {
	return &TransactionManager{
		edits:    edits,
		registry: registry,
		journal:  journal,
		logger:   logging.OrNop(logger),
		engines:  make(map[string]*EditTransactionService),
	}
}

// Engine returns the engine for model, creating it on first use
func (m *TransactionManager) Engine(model string) (*EditTransactionService, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	engine, ok := m.engines[model]
	if !ok {
		engine = NewEditTransactionService(model, m.edits, m.registry, m.journal, m.logger)
		m.engines[model] = engine
	}
	return engine, nil
}

// History returns journaled transactions for model, newest first
func (m *TransactionManager) History(ctx context.Context, model string, limit int) ([]edit.JournalEntry, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}
	if m.journal == nil {
		return []edit.JournalEntry{}, nil
	}
	entries, err := m.journal.History(ctx, model, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []edit.JournalEntry{}
	}
	return entries, nil
}
