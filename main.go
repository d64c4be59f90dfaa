package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mmmstudio/internal/config"
	"mmmstudio/internal/container"
	"mmmstudio/internal/logging"
	"mmmstudio/ui"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(appConfig.Logging.Level, appConfig.Server.GinMode == gin.DebugMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	gin.SetMode(appConfig.Server.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(appConfig, logger)
	if err != nil {
		logger.Fatal("failed to create application container", zap.Error(err))
	}
	defer appContainer.Close()

	if err := appContainer.InitWithDatabase(ctx); err != nil {
		logger.Fatal("failed to initialize transaction journal", zap.Error(err))
	}

	// The dashboard still starts when the service is down; the list loads on first use.
	if err := appContainer.Scheduler.RefreshNow(ctx); err != nil {
		logger.Warn("initial catalog refresh failed", zap.Error(err))
	}
	if err := appContainer.Scheduler.Register(appConfig.Scheduler.CatalogRefresh); err != nil {
		logger.Fatal("invalid catalog refresh schedule", zap.Error(err))
	}
	appContainer.Scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		appContainer.Scheduler.Stop(stopCtx)
	}()

	server := ui.NewServer(ui.ServicesFrom(appContainer), logger)
	logger.Info("starting dashboard",
		zap.String("port", appConfig.Server.Port),
		zap.String("statsService", appConfig.StatsAPI.BaseURL))
	if err := server.Run(ctx, ":"+appConfig.Server.Port); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
