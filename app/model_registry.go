package app

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"mmmstudio/domain/core"
	"mmmstudio/domain/modeling"
	"mmmstudio/internal/errors"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// ModelRegistry holds the model list and per-model snapshots. It is the only
// writer of snapshots; every reader gets a deep copy.
type ModelRegistry struct {
	catalog ports.ModelCatalogPort
	logger  *zap.Logger

	mu          sync.RWMutex
	list        modeling.ModelList
	models      map[string]*modeling.Model
	stale       map[string]bool
	refreshedAt time.Time
}

// NewModelRegistry creates an empty registry backed by the statistics service
func NewModelRegistry(catalog ports.ModelCatalogPort, logger *zap.Logger) *ModelRegistry {
	return &ModelRegistry{
		catalog: catalog,
		logger:  logging.OrNop(logger),
		models:  make(map[string]*modeling.Model),
		stale:   make(map[string]bool),
	}
}

// Refresh reloads the model list. Cached snapshots of models that no longer
// exist are dropped.
func (r *ModelRegistry) Refresh(ctx context.Context) (*modeling.ModelList, error) {
	list, err := r.catalog.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.list = *cloneList(list)
	known := make(map[string]bool, len(list.Models))
	for _, m := range list.Models {
		known[m.Name] = true
	}
	for name := range r.models {
		if !known[name] {
			delete(r.models, name)
			delete(r.stale, name)
		}
	}
	r.refreshedAt = time.Now()
	r.mu.Unlock()

	r.logger.Debug("model list refreshed",
		zap.Int("models", len(list.Models)),
		zap.String("active", list.ActiveModel))
	return cloneList(list), nil
}

// List returns the last loaded model list
func (r *ModelRegistry) List() *modeling.ModelList {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneList(&r.list)
}

// ActiveModel returns the service-side active model, or "" before the first refresh
func (r *ModelRegistry) ActiveModel() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list.ActiveModel
}

// RefreshedAt returns when the model list was last loaded
func (r *ModelRegistry) RefreshedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refreshedAt
}

// Model returns the cached snapshot of name, fetching it on first use
func (r *ModelRegistry) Model(ctx context.Context, name string) (*modeling.Model, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}

	r.mu.RLock()
	cached, ok := r.models[name]
	r.mu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}
	return r.Refetch(ctx, name)
}

// Refetch replaces the snapshot of name with the service's current state.
// On failure the old snapshot is kept and marked stale.
func (r *ModelRegistry) Refetch(ctx context.Context, name string) (*modeling.Model, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.Validation(core.ErrNoModelSelected)
	}

	vars, err := r.catalog.GetModelVariables(ctx, name)
	if err != nil {
		r.mu.Lock()
		if _, ok := r.models[name]; ok {
			r.stale[name] = true
		}
		r.mu.Unlock()
		r.logger.Warn("model refetch failed", zap.String("model", name), zap.Error(err))
		return nil, err
	}

	snapshot := &modeling.Model{Name: name, KPI: r.kpiOf(name), Variables: vars}

	r.mu.Lock()
	r.models[name] = snapshot
	delete(r.stale, name)
	r.mu.Unlock()

	r.logger.Debug("model snapshot replaced",
		zap.String("model", name),
		zap.Int("variables", len(vars)))
	return snapshot.Clone(), nil
}

// IsStale reports whether the last refetch of name failed
func (r *ModelRegistry) IsStale(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stale[name]
}

// Cached returns the snapshot of name without a remote call
func (r *ModelRegistry) Cached(name string) (*modeling.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	return m.Clone(), ok
}

func (r *ModelRegistry) kpiOf(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.list.Models {
		if m.Name == name {
			return m.KPI
		}
	}
	if m, ok := r.models[name]; ok {
		return m.KPI
	}
	return ""
}

func cloneList(in *modeling.ModelList) *modeling.ModelList {
	out := &modeling.ModelList{ActiveModel: in.ActiveModel, Models: slices.Clone(in.Models)}
	for i, m := range out.Models {
		if m.RSquared != nil {
			out.Models[i].RSquared = modeling.Float(*m.RSquared)
		}
	}
	if out.Models == nil {
		out.Models = []modeling.ModelSummary{}
	}
	return out
}
