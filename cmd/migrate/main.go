package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"mmmstudio/adapters/journal"
	"mmmstudio/internal/config"
	"mmmstudio/internal/migration"
)

// migrate creates the transaction journal schema. The target comes from
// DATABASE_URL and DATABASE_DRIVER, or from the first two arguments.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if len(os.Args) >= 2 {
		cfg.Database.URL = os.Args[1]
	}
	if len(os.Args) >= 3 {
		cfg.Database.Driver = os.Args[2]
	}
	if !cfg.Database.Enabled() {
		log.Fatal("Usage: migrate [database_url] [postgres|sqlite] (or set DATABASE_URL)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := journal.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Journal schema at version %s (%s)", runner.Version(), cfg.Database.Driver)
}
