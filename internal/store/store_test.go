package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"oracle/internal/research"

	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	// One connection so the in-memory database is shared across queries.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestPlanCacheRoundTrip(t *testing.T) {
	db := newTestDB(t)
	cache := NewPlanCache(db, time.Hour)
	ctx := context.Background()

	plan := research.ResearchPlan{
		Query:       "What is AI safety?",
		SubQueries:  []string{"definitions", "current approaches"},
		SearchTerms: []string{"ai safety"},
		Domains:     []string{"arxiv.org"},
	}
	if err := cache.Put(ctx, "What is AI safety?", plan); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.Get(ctx, "What is AI safety?")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if len(got.SubQueries) != 2 || got.Domains[0] != "arxiv.org" {
		t.Fatalf("unexpected cached plan: %+v", got)
	}
}

func TestPlanCacheNormalizesQueries(t *testing.T) {
	db := newTestDB(t)
	cache := NewPlanCache(db, time.Hour)
	ctx := context.Background()

	plan := research.ResearchPlan{Query: "q", SubQueries: []string{"a"}}
	if err := cache.Put(ctx, "What is   AI Safety?", plan); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := cache.Get(ctx, "  what is ai safety?  ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected hit for reworded whitespace and case")
	}
}

func TestPlanCacheMissesWhenExpired(t *testing.T) {
	db := newTestDB(t)
	cache := NewPlanCache(db, time.Hour)
	ctx := context.Background()

	plan := research.ResearchPlan{Query: "q", SubQueries: []string{"a"}}
	if err := cache.Put(ctx, "stale query", plan); err != nil {
		t.Fatalf("put: %v", err)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	if _, err := db.Exec(`UPDATE research_plans SET expires_at = ?;`, past); err != nil {
		t.Fatalf("age entry: %v", err)
	}

	got, err := cache.Get(ctx, "stale query")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss for expired entry, got %+v", got)
	}

	removed, err := cache.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
}

func TestPlanCacheUpsertRefreshesEntry(t *testing.T) {
	db := newTestDB(t)
	cache := NewPlanCache(db, time.Hour)
	ctx := context.Background()

	first := research.ResearchPlan{Query: "q", SubQueries: []string{"old"}}
	second := research.ResearchPlan{Query: "q", SubQueries: []string{"new", "extra"}}

	if err := cache.Put(ctx, "same query", first); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := cache.Put(ctx, "same query", second); err != nil {
		t.Fatalf("put second: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM research_plans;`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single upserted row, got %d", count)
	}

	got, err := cache.Get(ctx, "same query")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || len(got.SubQueries) != 2 || got.SubQueries[0] != "new" {
		t.Fatalf("expected refreshed plan, got %+v", got)
	}
}

func TestReportStoreSaveAndGet(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportStore(db)
	ctx := context.Background()

	score := 0.85
	id, err := reports.SaveReport(ctx, "what is x", research.FinalReport{
		Content:    "# Report",
		Sources:    []string{"https://example.org/a", "https://example.org/b"},
		Confidence: 0.9,
	}, &score, 1)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero report id")
	}

	err = reports.SaveSearchResults(ctx, id, []research.SearchResult{
		{Title: "A", URL: "https://example.org/a", Content: "a", Score: 0.9},
		{Title: "B", URL: "https://example.org/b", Content: "b", Score: 0.8},
	})
	if err != nil {
		t.Fatalf("save results: %v", err)
	}

	got, err := reports.GetReport(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Report != "# Report" || got.IterationCount != 1 {
		t.Fatalf("unexpected report: %+v", got)
	}
	if got.QualityScore == nil || *got.QualityScore != 0.85 {
		t.Fatalf("expected quality score, got %+v", got.QualityScore)
	}
	if len(got.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", got.Sources)
	}

	var resultCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM search_results WHERE report_id = ?;`, id).Scan(&resultCount); err != nil {
		t.Fatalf("count results: %v", err)
	}
	if resultCount != 2 {
		t.Fatalf("expected 2 stored results, got %d", resultCount)
	}
}

func TestReportStoreGetMissingReturnsErrNotFound(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportStore(db)

	_, err := reports.GetReport(context.Background(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReportStoreListNewestFirst(t *testing.T) {
	db := newTestDB(t)
	reports := NewReportStore(db)
	ctx := context.Background()

	for _, query := range []string{"first", "second", "third"} {
		if _, err := reports.SaveReport(ctx, query, research.FinalReport{Content: "r"}, nil, 0); err != nil {
			t.Fatalf("save %q: %v", query, err)
		}
	}

	listed, err := reports.ListReports(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(listed))
	}
	if listed[0].Query != "third" || listed[1].Query != "second" {
		t.Fatalf("expected newest first, got %+v", listed)
	}
	if listed[0].Report != "" {
		t.Fatal("expected list rows to omit report body")
	}

	paged, err := reports.ListReports(ctx, 2, 2)
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(paged) != 1 || paged[0].Query != "first" {
		t.Fatalf("expected oldest report on second page, got %+v", paged)
	}
}

func TestBuildDSN(t *testing.T) {
	if _, err := buildDSN("", ""); err == nil {
		t.Fatal("expected error for empty url")
	}

	dsn, err := buildDSN("file:oracle.db", "token")
	if err != nil || dsn != "file:oracle.db" {
		t.Fatalf("expected file dsn passthrough, got %q err=%v", dsn, err)
	}

	dsn, err = buildDSN("libsql://oracle.turso.io", "secret")
	if err != nil {
		t.Fatalf("libsql dsn: %v", err)
	}
	if dsn != "libsql://oracle.turso.io?authToken=secret" {
		t.Fatalf("expected auth token appended, got %q", dsn)
	}
}
