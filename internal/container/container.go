package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"mmmstudio/adapters/api"
	"mmmstudio/adapters/journal"
	"mmmstudio/adapters/stats/correlation"
	"mmmstudio/app"
	"mmmstudio/internal/config"
	"mmmstudio/internal/logging"
	"mmmstudio/internal/migration"
	"mmmstudio/internal/scheduler"
	"mmmstudio/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	// Infrastructure
	DB      *sqlx.DB
	Stats   ports.ModelServicePort
	Journal ports.TransactionJournal

	// Application services
	Registry      *app.ModelRegistry
	Catalog       *app.VariableCatalog
	Transactions  *app.TransactionManager
	Correlation   *app.CorrelationService
	Sweep         *app.AdstockSweepService
	Screening     *app.VariableScreeningService
	Weighted      *app.WeightedVariableService
	Decomposition *app.DecompositionService

	Scheduler *scheduler.Scheduler
}

// New creates a container talking to the statistics service named in cfg
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	client, err := api.NewClient(api.ClientConfig{
		BaseURL:     cfg.StatsAPI.BaseURL,
		Timeout:     cfg.StatsAPI.Timeout,
		LongTimeout: cfg.StatsAPI.LongTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return NewWithService(cfg, client, logger)
}

// NewWithService creates a container around an existing statistics service
// port. The journal starts as a no-op until InitWithDatabase is called.
func NewWithService(cfg *config.Config, stats ports.ModelServicePort, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if stats == nil {
		return nil, fmt.Errorf("statistics service cannot be nil")
	}

	c := &Container{
		Config:  cfg,
		Logger:  logging.OrNop(logger),
		Stats:   stats,
		Journal: journal.NewNoopJournal(),
	}
	c.initServices()
	return c, nil
}

func (c *Container) initServices() {
	limit := c.Config.Sweep.MaxConcurrency

	c.Registry = app.NewModelRegistry(c.Stats, c.Logger.Named("registry"))
	c.Catalog = app.NewVariableCatalog(c.Stats, c.Logger.Named("catalog"))
	c.Transactions = app.NewTransactionManager(c.Stats, c.Registry, c.Journal, c.Logger.Named("edit"))
	c.Correlation = app.NewCorrelationService(c.Stats, correlation.NewEngine(c.Logger.Named("correlation")), c.Logger.Named("correlation"))
	c.Sweep = app.NewAdstockSweepService(c.Stats, c.Config.Sweep.Rates, limit, c.Logger.Named("sweep"))
	c.Screening = app.NewVariableScreeningService(c.Stats, c.Registry, limit, c.Logger.Named("screening"))
	c.Weighted = app.NewWeightedVariableService(c.Stats, c.Stats, c.Catalog, limit, c.Logger.Named("weighted"))
	c.Decomposition = app.NewDecompositionService(c.Stats, c.Logger.Named("decomposition"))
	c.Scheduler = scheduler.New(c.Registry, c.Catalog, c.Logger)
}

// InitWithDatabase opens the journal database, migrates it and switches the
// transaction journal over to it. It is a no-op when no database is configured.
func (c *Container) InitWithDatabase(ctx context.Context) error {
	if !c.Config.Database.Enabled() {
		c.Logger.Info("transaction journal disabled (no DATABASE_URL)")
		return nil
	}

	db, err := journal.Open(ctx, c.Config.Database.Driver, c.Config.Database.URL)
	if err != nil {
		return err
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return err
	}

	c.DB = db
	c.Journal = journal.NewSQLJournal(db)
	c.Transactions = app.NewTransactionManager(c.Stats, c.Registry, c.Journal, c.Logger.Named("edit"))
	c.Logger.Info("transaction journal ready", zap.String("driver", c.Config.Database.Driver))
	return nil
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
