package httpapi

import (
	"database/sql"
	"net/http"

	"oracle/internal/anthropic"
	"oracle/internal/config"
	"oracle/internal/research"
	"oracle/internal/store"
	"oracle/internal/tavily"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the pipeline and mounts the API. db may be nil, which
// disables plan caching and report storage.
func NewRouter(cfg config.Config, db *sql.DB) http.Handler {
	llm := anthropic.NewClient(cfg, nil)
	gateway := research.NewGateway(tavily.NewClient(cfg, nil), research.GatewayConfig{
		MaxResults: cfg.SearchMaxResults,
		MaxRetries: cfg.SearchMaxRetries,
		RetryDelay: cfg.SearchRetryDelay,
	})

	var cache research.PlanCache
	var sink research.ReportSink
	var reports ReportReader
	if db != nil {
		reportStore := store.NewReportStore(db)
		sink = reportStore
		reports = reportStore
		if cfg.EnableCaching {
			cache = store.NewPlanCache(db, cfg.CacheTTL)
		}
	}

	engine := research.NewEngine(llm, gateway, cache, sink, research.EngineConfig{
		MaxIterations:    cfg.MaxResearchIterations,
		QualityThreshold: cfg.QualityThreshold,
	})
	h := NewHandler(cfg, engine, reports)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Post("/research", h.ResearchStream)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/research", h.ResearchSync)
		v1.Get("/reports", h.ListReports)
		v1.Get("/reports/{id}", h.GetReport)
	})

	return r
}
