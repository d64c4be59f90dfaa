package ui

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mmmstudio/adapters/excel"
	"mmmstudio/app"
	"mmmstudio/internal/container"
	"mmmstudio/internal/logging"
	"mmmstudio/ui/middleware"
)

// Services are the application services the dashboard exposes
type Services struct {
	Registry      *app.ModelRegistry
	Catalog       *app.VariableCatalog
	Transactions  *app.TransactionManager
	Correlation   *app.CorrelationService
	Sweep         *app.AdstockSweepService
	Screening     *app.VariableScreeningService
	Weighted      *app.WeightedVariableService
	Decomposition *app.DecompositionService
}

// Server is the dashboard HTTP API
type Server struct {
	router   *gin.Engine
	services Services
	exporter *excel.Exporter
	logger   *zap.Logger
}

// NewServer creates the server and registers its routes
func NewServer(services Services, logger *zap.Logger) *Server {
	logger = logging.OrNop(logger).Named("http")

	router := gin.New()
	router.Use(middleware.Recovery(logger), middleware.RequestLogger(logger))

	s := &Server{
		router:   router,
		services: services,
		exporter: excel.NewExporter(),
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("dashboard shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api")
	api.GET("/variables", s.handleVariables)
	api.GET("/models", s.handleListModels)
	api.POST("/models/refresh", s.handleRefreshModels)

	model := api.Group("/models/:model")
	model.GET("/variables", s.handleModelVariables)

	tx := model.Group("/transaction")
	tx.GET("", s.handleTransactionSnapshot)
	tx.POST("/preview", s.handlePreview)
	tx.POST("/commit", s.handleCommit)
	tx.POST("/cancel", s.handleCancel)
	tx.GET("/report", s.handleReport)
	tx.GET("/export", s.handleExport)
	tx.GET("/history", s.handleHistory)

	model.POST("/correlation", s.handleCorrelation)
	model.POST("/adstock-sweep", s.handleSweep)
	model.POST("/screen", s.handleScreen)
	model.POST("/decomposition", s.handleDecomposition)

	model.POST("/weighted/seed", s.handleSeedWeighted)
	model.POST("/weighted", s.handleCreateWeighted)
	model.GET("/weighted/:variable", s.handleGetWeighted)
	model.PUT("/weighted/:variable", s.handleUpdateWeighted)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ServicesFrom collects the dashboard services from a container
func ServicesFrom(c *container.Container) Services {
	return Services{
		Registry:      c.Registry,
		Catalog:       c.Catalog,
		Transactions:  c.Transactions,
		Correlation:   c.Correlation,
		Sweep:         c.Sweep,
		Screening:     c.Screening,
		Weighted:      c.Weighted,
		Decomposition: c.Decomposition,
	}
}
