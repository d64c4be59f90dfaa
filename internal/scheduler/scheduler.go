package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mmmstudio/app"
	"mmmstudio/internal/logging"
)

// DefaultRefreshTimeout bounds one scheduled refresh
const DefaultRefreshTimeout = 30 * time.Second

// Scheduler periodically reloads the model list and variable catalog so the
// dashboard notices models created outside it.
type Scheduler struct {
	cron     *cron.Cron
	registry *app.ModelRegistry
	catalog  *app.VariableCatalog
	logger   *zap.Logger
	timeout  time.Duration
	entry    cron.EntryID
}

// New creates a stopped scheduler
func New(registry *app.ModelRegistry, catalog *app.VariableCatalog, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		// Overlapping runs are skipped rather than queued.
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		registry: registry,
		catalog:  catalog,
		logger:   logging.OrNop(logger).Named("scheduler"),
		timeout:  DefaultRefreshTimeout,
	}
}

// Register schedules the refresh with a standard cron spec or descriptor
// such as "@every 5m". An empty spec leaves the refresh disabled.
func (s *Scheduler) Register(spec string) error {
	if spec == "" {
		s.logger.Info("catalog refresh disabled")
		return nil
	}
	id, err := s.cron.AddFunc(spec, s.runScheduled)
	if err != nil {
		return fmt.Errorf("register catalog refresh %q: %w", spec, err)
	}
	s.entry = id
	s.logger.Info("catalog refresh scheduled", zap.String("spec", spec))
	return nil
}

// Registered reports whether a refresh job is scheduled
func (s *Scheduler) Registered() bool {
	return s.entry != 0
}

// Next returns the next scheduled run, or the zero time when not running
func (s *Scheduler) Next() time.Time {
	if s.entry == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// Start runs the cron loop in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the loop and waits for a running refresh to finish or ctx to end
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

// RefreshNow reloads the model list and the catalog. Both are attempted even
// if the first fails.
func (s *Scheduler) RefreshNow(ctx context.Context) error {
	_, listErr := s.registry.Refresh(ctx)
	catalogErr := s.catalog.Refresh(ctx)

	switch {
	case listErr != nil:
		return listErr
	case catalogErr != nil:
		return catalogErr
	}
	return nil
}

func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.RefreshNow(ctx); err != nil {
		s.logger.Warn("scheduled refresh failed", zap.Error(err))
		return
	}
	s.logger.Debug("scheduled refresh done", zap.Duration("took", time.Since(start)))
}
