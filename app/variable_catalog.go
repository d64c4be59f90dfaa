package app

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"mmmstudio/domain/modeling"
	"mmmstudio/internal/logging"
	"mmmstudio/ports"
)

// VariableCatalog caches the full variable list of the modeling dataset
type VariableCatalog struct {
	catalog ports.ModelCatalogPort
	logger  *zap.Logger

	mu       sync.RWMutex
	vars     []modeling.Variable
	byName   map[string]int
	loadedAt time.Time
}

// NewVariableCatalog creates an empty catalog
func NewVariableCatalog(catalog ports.ModelCatalogPort, logger *zap.Logger) *VariableCatalog {
	return &VariableCatalog{
		catalog: catalog,
		logger:  logging.OrNop(logger),
		byName:  make(map[string]int),
	}
}

// Refresh replaces the cached variables with the service's list
func (c *VariableCatalog) Refresh(ctx context.Context) error {
	vars, err := c.catalog.GetVariables(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]int, len(vars))
	for i, v := range vars {
		if _, dup := byName[v.Name]; !dup {
			byName[v.Name] = i
		}
	}

	c.mu.Lock()
	c.vars = vars
	c.byName = byName
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug("variable catalog refreshed", zap.Int("variables", len(vars)))
	return nil
}

// Ensure loads the catalog if it has never been loaded
func (c *VariableCatalog) Ensure(ctx context.Context) error {
	if c.Loaded() {
		return nil
	}
	return c.Refresh(ctx)
}

// Loaded reports whether a refresh has succeeded
func (c *VariableCatalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.loadedAt.IsZero()
}

// All returns a copy of every variable in service order
func (c *VariableCatalog) All() []modeling.Variable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vars)
}

// Lookup finds a variable by name
func (c *VariableCatalog) Lookup(name string) (modeling.Variable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byName[name]
	if !ok {
		return modeling.Variable{}, false
	}
	return c.vars[i], true
}

// BaseVariable resolves the untransformed variable behind name, preferring
// catalog metadata over name parsing.
func (c *VariableCatalog) BaseVariable(name string) string {
	if v, ok := c.Lookup(name); ok && v.BaseVariable != "" {
		return v.BaseVariable
	}
	base, _ := modeling.BaseVariableOf(name)
	return base
}

// Groups returns variable names by group. Ungrouped variables are keyed by "".
func (c *VariableCatalog) Groups() map[string][]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	groups := make(map[string][]string)
	for _, v := range c.vars {
		groups[v.Group] = append(groups[v.Group], v.Name)
	}
	return groups
}
