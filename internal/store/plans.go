package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"oracle/internal/research"
)

// PlanCache stores research plans keyed by a hash of the normalized query,
// so trivially reworded queries share an entry. Entries expire by TTL.
type PlanCache struct {
	db  *sql.DB
	ttl time.Duration
}

func NewPlanCache(db *sql.DB, ttl time.Duration) PlanCache {
	return PlanCache{db: db, ttl: ttl}
}

// Get returns the cached plan for the query, or nil on a miss. Expired
// entries count as misses.
func (c PlanCache) Get(ctx context.Context, query string) (*research.ResearchPlan, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT plan FROM research_plans WHERE query_hash = ? AND expires_at > ? LIMIT 1;`,
		hashQuery(query), time.Now().UTC().Format(time.RFC3339))

	var raw string
	err := row.Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup plan: %w", err)
	}

	var plan research.ResearchPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("decode cached plan: %w", err)
	}
	return &plan, nil
}

// Put stores the plan, refreshing the expiry when the query is already
// cached.
func (c PlanCache) Put(ctx context.Context, query string, plan research.ResearchPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	expiresAt := time.Now().Add(c.ttl).UTC().Format(time.RFC3339)
	_, err = c.db.ExecContext(ctx, `
INSERT INTO research_plans (query_hash, query, plan, expires_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(query_hash) DO UPDATE SET
  plan = excluded.plan,
  expires_at = excluded.expires_at;
`, hashQuery(query), strings.TrimSpace(query), string(raw), expiresAt)
	if err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	return nil
}

// Prune removes expired entries. Run at startup; reads filter expiry anyway,
// so stale rows between prunes only cost space.
func (c PlanCache) Prune(ctx context.Context) (int64, error) {
	result, err := c.db.ExecContext(ctx,
		`DELETE FROM research_plans WHERE expires_at <= ?;`,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("prune plans: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned plans: %w", err)
	}
	return removed, nil
}

func normalizeQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}
