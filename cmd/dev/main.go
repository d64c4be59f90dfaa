package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mmmstudio/app"
	"mmmstudio/domain/edit"
	"mmmstudio/internal/config"
	"mmmstudio/internal/container"
	"mmmstudio/internal/logging"
	"mmmstudio/internal/testkit"
	"mmmstudio/ui"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mmmstudio-dev",
		Short: "Development tools backed by the synthetic statistics service",
	}

	rootCmd.AddCommand(
		newFakeCmd(),
		newDashboardCmd(),
		newSmokeTestCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFakeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "fake",
		Short: "Serve the synthetic statistics service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kit := testkit.NewTestKit()
			srv := &http.Server{Addr: addr, Handler: kit.Service, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			fmt.Printf("fake statistics service on %s (models: %s, %s)\n", addr, testkit.BaseModel, testkit.AltModel)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":5000", "Listen address")
	return cmd
}

func newDashboardCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Run the dashboard against an in-process synthetic service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, err := logging.New("DEBUG", true)
			if err != nil {
				return err
			}
			defer logger.Sync()

			kit := testkit.NewTestKit()
			stats := kit.Start()
			defer stats.Close()

			cfg := config.Default()
			cfg.StatsAPI.BaseURL = stats.URL
			cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, URL: ":memory:"}

			c, err := container.New(cfg, logger)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.InitWithDatabase(ctx); err != nil {
				return err
			}

			gin.SetMode(gin.DebugMode)
			logger.Info("synthetic statistics service", zap.String("url", stats.URL))
			return ui.NewServer(ui.ServicesFrom(c), logger).Run(ctx, ":"+port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "8080", "Dashboard port")
	return cmd
}

func newSmokeTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "smoke",
		Short: "Run smoke tests against the synthetic service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmokeTests(cmd.Context())
		},
	}
}

func runSmokeTests(ctx context.Context) error {
	fmt.Println("Running smoke tests...")

	kit := testkit.NewTestKit()
	stats := kit.Start()
	defer stats.Close()

	c, err := newSmokeContainer(stats)
	if err != nil {
		return err
	}
	defer c.Close()

	tests := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"list_models", func(ctx context.Context) error {
			list, err := c.Registry.Refresh(ctx)
			if err != nil {
				return err
			}
			if list.ActiveModel != testkit.BaseModel {
				return fmt.Errorf("active model is %q", list.ActiveModel)
			}
			return nil
		}},
		{"preview_cancel", func(ctx context.Context) error {
			engine, err := c.Transactions.Engine(testkit.BaseModel)
			if err != nil {
				return err
			}
			if _, err := engine.BeginPreview(ctx, edit.Request{Mode: edit.ModeAdd, Variables: []string{"Search"}}); err != nil {
				return err
			}
			return engine.Cancel(ctx)
		}},
		{"preview_commit", func(ctx context.Context) error {
			engine, err := c.Transactions.Engine(testkit.BaseModel)
			if err != nil {
				return err
			}
			if _, err := engine.BeginPreview(ctx, edit.Request{Mode: edit.ModeAdd, Variables: []string{"Social"}}); err != nil {
				return err
			}
			res, err := engine.Commit(ctx)
			if err != nil {
				return err
			}
			if res.Model == nil || !res.Model.HasVariable("Social") {
				return fmt.Errorf("committed variable missing from refetched model")
			}
			return nil
		}},
		{"adstock_sweep", func(ctx context.Context) error {
			res, err := c.Sweep.Run(ctx, app.SweepRequest{Model: testkit.BaseModel, Variable: "TV"})
			if err != nil {
				return err
			}
			if res.AllFailed() || len(res.Ranked) == 0 {
				return fmt.Errorf("sweep produced no ranked variants")
			}
			return nil
		}},
		{"correlation", func(ctx context.Context) error {
			_, err := c.Correlation.Correlate(ctx, app.CorrelationRequest{Model: testkit.BaseModel, Variables: []string{"TV", "Radio", "Search"}})
			return err
		}},
		{"journal_history", func(ctx context.Context) error {
			entries, err := c.Transactions.History(ctx, testkit.BaseModel, 10)
			if err != nil {
				return err
			}
			if len(entries) != 2 {
				return fmt.Errorf("expected 2 journal entries, got %d", len(entries))
			}
			return nil
		}},
	}

	passed := 0
	for _, test := range tests {
		fmt.Printf("  Running %s...", test.name)
		if err := test.fn(ctx); err != nil {
			fmt.Printf(" FAILED: %v\n", err)
		} else {
			fmt.Println(" PASSED")
			passed++
		}
	}

	fmt.Printf("\nSmoke tests: %d/%d passed\n", passed, len(tests))
	if passed < len(tests) {
		return fmt.Errorf("some smoke tests failed")
	}
	return nil
}

func newSmokeContainer(stats *httptest.Server) (*container.Container, error) {
	cfg := config.Default()
	cfg.StatsAPI.BaseURL = stats.URL
	cfg.Database = config.DatabaseConfig{Driver: config.DriverSQLite, URL: ":memory:"}

	c, err := container.New(cfg, nil)
	if err != nil {
		return nil, err
	}
	if err := c.InitWithDatabase(context.Background()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
