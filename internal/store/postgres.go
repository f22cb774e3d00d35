package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewPool connects a pgx pool and verifies the connection
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema migrations
func Migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// PostgresCacheStore implements CacheStore on Postgres
type PostgresCacheStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCacheStore creates a cache store backed by the given pool
func NewPostgresCacheStore(pool *pgxpool.Pool) *PostgresCacheStore {
	return &PostgresCacheStore{pool: pool}
}

func (s *PostgresCacheStore) Get(ctx context.Context, productID int64) (*CacheEntry, error) {
	var entry CacheEntry
	err := s.pool.QueryRow(ctx,
		`SELECT product_id, min_price, torob_url, search_query, found_products, last_updated, expires_at
		 FROM torob_price_cache
		 WHERE product_id = $1 AND expires_at > now()
		 ORDER BY last_updated DESC
		 LIMIT 1`,
		productID,
	).Scan(&entry.ProductID, &entry.MinPrice, &entry.TorobURL, &entry.SearchQuery,
		&entry.FoundProducts, &entry.LastUpdated, &entry.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Set deletes then inserts; the two statements are intentionally separate,
// see the CacheStore contract
func (s *PostgresCacheStore) Set(ctx context.Context, entry CacheEntry) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM torob_price_cache WHERE product_id = $1`, entry.ProductID); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO torob_price_cache
		 (product_id, min_price, torob_url, search_query, found_products, last_updated, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ProductID, entry.MinPrice, entry.TorobURL, entry.SearchQuery,
		entry.FoundProducts, entry.LastUpdated, entry.ExpiresAt)
	return err
}

func (s *PostgresCacheStore) Delete(ctx context.Context, productID int64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM torob_price_cache WHERE product_id = $1`, productID)
	return err
}

func (s *PostgresCacheStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE TABLE torob_price_cache`)
	return err
}

func (s *PostgresCacheStore) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM torob_price_cache WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresCacheStore) Stats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE expires_at < now()),
		        COUNT(*) FILTER (WHERE expires_at > now())
		 FROM torob_price_cache`,
	).Scan(&stats.Total, &stats.Expired, &stats.Valid)
	return stats, err
}

// PostgresSearchLogStore implements SearchLogStore on Postgres
type PostgresSearchLogStore struct {
	pool *pgxpool.Pool
}

// NewPostgresSearchLogStore creates a log store backed by the given pool
func NewPostgresSearchLogStore(pool *pgxpool.Pool) *PostgresSearchLogStore {
	return &PostgresSearchLogStore{pool: pool}
}

func (s *PostgresSearchLogStore) Append(ctx context.Context, entry SearchLogEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO torob_search_logs
		 (product_id, search_query, success, error_message, response_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ProductID, entry.SearchQuery, entry.Success,
		entry.ErrorMessage, entry.ResponseTimeMS, entry.CreatedAt)
	return err
}

func (s *PostgresSearchLogStore) CountFailures(ctx context.Context, productID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM torob_search_logs
		 WHERE product_id = $1 AND success = false AND created_at >= $2`,
		productID, since,
	).Scan(&count)
	return count, err
}

func (s *PostgresSearchLogStore) RecentFailures(ctx context.Context, since time.Time) ([]SearchLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, search_query, success, error_message, response_time_ms, created_at
		 FROM torob_search_logs
		 WHERE success = false AND created_at >= $1
		 ORDER BY created_at DESC`,
		since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *PostgresSearchLogStore) Stats(ctx context.Context, since time.Time) (SearchStats, error) {
	var stats SearchStats
	var avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE success),
		        COUNT(*) FILTER (WHERE NOT success),
		        AVG(response_time_ms)
		 FROM torob_search_logs
		 WHERE created_at >= $1`,
		since,
	).Scan(&stats.Total, &stats.Successful, &stats.Failed, &avg)
	if err != nil {
		return stats, err
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	if avg != nil {
		stats.AvgResponseTimeMS = *avg
	}
	return stats, nil
}

func (s *PostgresSearchLogStore) Recent(ctx context.Context, limit int) ([]SearchLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT product_id, search_query, success, error_message, response_time_ms, created_at
		 FROM torob_search_logs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLogEntries(rows)
}

func (s *PostgresSearchLogStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM torob_search_logs WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanLogEntries(rows pgx.Rows) ([]SearchLogEntry, error) {
	var entries []SearchLogEntry
	for rows.Next() {
		var e SearchLogEntry
		if err := rows.Scan(&e.ProductID, &e.SearchQuery, &e.Success,
			&e.ErrorMessage, &e.ResponseTimeMS, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
