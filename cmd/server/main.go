/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pocket ledger server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env/environment config
  2. Parse command-line flags (flags win over environment)
  3. Initialize the store (SQLite or PostgreSQL)
  4. Create API handler with dependencies
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default from config)
  -db      SQLite database path; use ":memory:" for in-memory

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  ./server -db="./data/ledger.db"
  DB_DRIVER=postgres DATABASE_URL="postgres://..." ./server

SEE ALSO:
  - config/config.go: Environment configuration
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pocket-ledger/api"
	"github.com/warp/pocket-ledger/config"
	"github.com/warp/pocket-ledger/ledger"
	"github.com/warp/pocket-ledger/store/postgres"
	"github.com/warp/pocket-ledger/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the environment.
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	var (
		store  ledger.Store
		closer interface{ Close() error }
	)
	switch cfg.DBDriver {
	case "postgres":
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to postgres: %v", err)
		}
		if err := pg.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate postgres schema: %v", err)
		}
		store, closer = pg, pg
	default:
		sq, err := sqlite.New(*dbPath)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		store, closer = sq, sq
	}
	defer closer.Close()

	handler := api.NewHandler(store, cfg.PageSize)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
