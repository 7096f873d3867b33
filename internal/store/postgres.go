// Package store provides a Postgres backend implementing both the position
// cache and the stats recorder, for deployments where several verifier
// processes share state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certalign/internal/cache"
	"certalign/internal/stats"
)

const schema = `
CREATE TABLE IF NOT EXISTS position_cache (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verification_records (
	run_id            UUID PRIMARY KEY,
	ts                TIMESTAMPTZ NOT NULL DEFAULT now(),
	passed            BOOLEAN NOT NULL,
	attempts          INTEGER NOT NULL,
	max_difference_px DOUBLE PRECISION NOT NULL,
	detection_failed  BOOLEAN NOT NULL DEFAULT FALSE,
	tolerance_px      DOUBLE PRECISION NOT NULL,
	field_count       INTEGER NOT NULL,
	text_lengths      JSONB
);

CREATE TABLE IF NOT EXISTS field_failures (
	field TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 0
);
`

// Postgres implements cache.Store and stats.Source on a shared database.
type Postgres struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// New connects to the database, verifies the connection, and ensures the
// schema exists.
func New(ctx context.Context, databaseURL string, ttl time.Duration) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Postgres{pool: pool, ttl: ttl}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Get returns the cached payload for key, or (nil, nil) when absent or
// older than the TTL.
func (p *Postgres) Get(ctx context.Context, key string) (*cache.Payload, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM position_cache WHERE key = $1 AND created_at > now() - make_interval(secs => $2)`,
		key, p.ttl.Seconds(),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	var payload cache.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}
	return &payload, nil
}

// Set upserts the payload under key, refreshing its timestamp.
func (p *Postgres) Set(ctx context.Context, key string, payload cache.Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO position_cache (key, payload, created_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, created_at = now()`,
		key, data)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// ClearExpired removes entries older than the TTL.
func (p *Postgres) ClearExpired(ctx context.Context) (int, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM position_cache WHERE created_at <= now() - make_interval(secs => $1)`,
		p.ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("cache eviction: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClearAll empties the cache table.
func (p *Postgres) ClearAll(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM position_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats reports live cache entry counts.
func (p *Postgres) Stats(ctx context.Context) (cache.StoreStats, error) {
	var entries int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM position_cache WHERE created_at > now() - make_interval(secs => $1)`,
		p.ttl.Seconds()).Scan(&entries)
	if err != nil {
		return cache.StoreStats{}, fmt.Errorf("cache stats: %w", err)
	}

	return cache.StoreStats{
		Entries: entries,
		TTL:     p.ttl,
		Backend: "postgres",
	}, nil
}

// Record persists one verification and bumps per-field failure counters.
func (p *Postgres) Record(ctx context.Context, v stats.Verification) error {
	maxDiff := v.MaxDifferencePx
	detectionFailed := false
	if maxDiff != maxDiff || maxDiff > 1e300 {
		maxDiff = -1
		detectionFailed = true
	}

	var textLengths []byte
	if v.TextLengths != nil {
		var err error
		textLengths, err = json.Marshal(v.TextLengths)
		if err != nil {
			return err
		}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO verification_records
		 (run_id, passed, attempts, max_difference_px, detection_failed, tolerance_px, field_count, text_lengths)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), v.Passed, v.Attempts, maxDiff, detectionFailed,
		v.TolerancePx, len(v.FieldDifferences), textLengths)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	for name, fd := range v.FieldDifferences {
		if fd.Err == "" && fd.YDiff <= v.TolerancePx && fd.XDiff <= v.TolerancePx {
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO field_failures (field, count) VALUES ($1, 1)
			 ON CONFLICT (field) DO UPDATE SET count = field_failures.count + 1`,
			name)
		if err != nil {
			return fmt.Errorf("bump field failure: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Summary aggregates across all recorded verifications.
func (p *Postgres) Summary(ctx context.Context) (stats.Summary, error) {
	var s stats.Summary

	err := p.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE passed),
		       count(*) FILTER (WHERE NOT passed),
		       COALESCE(avg(attempts), 0)
		FROM verification_records`,
	).Scan(&s.TotalVerifications, &s.TotalPassed, &s.TotalFailed, &s.AverageAttempts)
	if err != nil {
		return s, fmt.Errorf("summary totals: %w", err)
	}
	if s.TotalVerifications > 0 {
		s.SuccessRate = float64(s.TotalPassed) / float64(s.TotalVerifications) * 100
	}
	s.RecordsRetained = s.TotalVerifications

	s.AttemptsDistribution = make(map[int]int)
	rows, err := p.pool.Query(ctx,
		`SELECT attempts, count(*) FROM verification_records GROUP BY attempts`)
	if err != nil {
		return s, fmt.Errorf("summary distribution: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var attempts, count int
		if err := rows.Scan(&attempts, &count); err != nil {
			return s, err
		}
		s.AttemptsDistribution[attempts] = count
	}
	if err := rows.Err(); err != nil {
		return s, err
	}

	bestCount := -1
	for attempts, count := range s.AttemptsDistribution {
		if count > bestCount || (count == bestCount && attempts < s.MostCommonAttempts) {
			s.MostCommonAttempts, bestCount = attempts, count
		}
	}

	fRows, err := p.pool.Query(ctx,
		`SELECT field, count FROM field_failures ORDER BY count DESC, field ASC LIMIT 3`)
	if err != nil {
		return s, fmt.Errorf("summary failures: %w", err)
	}
	defer fRows.Close()
	for fRows.Next() {
		var ff stats.FieldFailure
		if err := fRows.Scan(&ff.Name, &ff.Count); err != nil {
			return s, err
		}
		s.ProblemFields = append(s.ProblemFields, ff)
	}
	return s, fRows.Err()
}

// Reset truncates the stats tables. The position cache is left alone;
// use ClearAll for that.
func (p *Postgres) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `TRUNCATE verification_records, field_failures`); err != nil {
		return fmt.Errorf("stats reset: %w", err)
	}
	return nil
}

// interface conformance
var (
	_ cache.Store  = (*Postgres)(nil)
	_ stats.Source = (*Postgres)(nil)
)
