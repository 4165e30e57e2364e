package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oracle/internal/config"
	"oracle/internal/httpapi"
	"oracle/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Missing keys degrade the pipeline at runtime rather than blocking
	// startup, so surface them loudly here.
	if cfg.AnthropicAPIKey == "" {
		log.Printf("WARNING: ANTHROPIC_API_KEY is not set; planning, critique, and writing will run on fallbacks")
	}
	if cfg.TavilyAPIKey == "" {
		log.Printf("WARNING: TAVILY_API_KEY is not set; research runs will fail at the search stage")
	}

	var database *sql.DB
	if cfg.PersistenceConfigured() {
		database, err = store.Open(cfg)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer database.Close()
		if err := store.Migrate(database); err != nil {
			log.Fatalf("migrate db: %v", err)
		}
		if cfg.EnableCaching {
			// Expired entries are invisible to reads; pruning just reclaims
			// the rows.
			pruned, err := store.NewPlanCache(database, cfg.CacheTTL).Prune(context.Background())
			if err != nil {
				log.Printf("plan cache prune failed: err=%v", err)
			} else if pruned > 0 {
				log.Printf("plan cache pruned: removed=%d", pruned)
			}
		}
	} else {
		log.Printf("DATABASE_URL not set; plan caching and report storage disabled")
	}

	handler := httpapi.NewRouter(cfg, database)

	srv := &http.Server{
		Addr:         cfg.ListenAddress(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 330 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on %s project=%s environment=%s caching=%t", cfg.ListenAddress(), cfg.ProjectTag, cfg.Environment, cfg.EnableCaching)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
