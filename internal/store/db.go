// Package store provides the SQLite-backed persistence layer for market
// data, collection state, the screener catalog, and alerts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/aristath/kr-market-feed/internal/apperr"
)

// Profile selects a PRAGMA tuning profile for the connection.
type Profile string

const (
	// ProfileStandard balances durability and throughput; used for the
	// primary market.db.
	ProfileStandard Profile = "standard"
	// ProfileCache favors speed over durability; unused for the primary
	// store but kept for ephemeral companion databases.
	ProfileCache Profile = "cache"
)

// Config configures a Store connection.
type Config struct {
	Path    string
	Profile Profile
	Name    string
}

// Store wraps the database connection with production-grade configuration
// and exposes entity-specific repository methods in sibling files.
type Store struct {
	conn    *sql.DB
	path    string
	profile Profile
	name    string
}

// Open creates a Store, applying schema migrations before returning.
func Open(cfg Config) (*Store, error) {
	if cfg.Path != ":memory:" {
		absPath, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve database path to absolute: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		cfg.Path = absPath
	}

	if cfg.Profile == "" {
		cfg.Profile = ProfileStandard
	}
	if cfg.Name == "" {
		cfg.Name = "market"
	}

	connStr := buildConnectionString(cfg.Path, cfg.Profile)

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn, cfg.Profile)
	if cfg.Path == ":memory:" {
		// Each connection to :memory: opens its own empty database.
		conn.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	s := &Store{conn: conn, path: cfg.Path, profile: cfg.Profile, name: cfg.Name}

	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database %s: %w", cfg.Name, err)
	}

	return s, nil
}

func buildConnectionString(path string, profile Profile) string {
	connStr := path + "?_pragma=journal_mode(WAL)"

	switch profile {
	case ProfileCache:
		connStr += "&_pragma=synchronous(OFF)"
		connStr += "&_pragma=auto_vacuum(FULL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	default:
		connStr += "&_pragma=synchronous(NORMAL)"
		connStr += "&_pragma=auto_vacuum(INCREMENTAL)"
		connStr += "&_pragma=temp_store(MEMORY)"
	}

	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=wal_autocheckpoint(1000)"
	connStr += "&_pragma=cache_size(-64000)"

	return connStr
}

func configureConnectionPool(conn *sql.DB, profile Profile) {
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(1 * time.Hour)
	conn.SetConnMaxIdleTime(10 * time.Minute)

	if profile == ProfileCache {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(2)
	}
}

// migrate creates the schema if it does not already exist. The schema is
// embedded rather than read from disk: this store only ever serves one
// fixed set of tables.
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn exposes the underlying *sql.DB for cases not covered by a
// repository method.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Name returns the friendly database name used in logging.
func (s *Store) Name() string {
	return s.name
}

// HealthCheck pings the database and runs a quick integrity check.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.conn.PingContext(ctx); err != nil {
		return apperr.StoreUnavailable(err)
	}

	var result string
	if err := s.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return apperr.StoreUnavailable(err)
	}
	if result != "ok" {
		return apperr.StoreUnavailable(fmt.Errorf("quick_check: %s", result))
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint, truncating the WAL file.
func (s *Store) WALCheckpoint() error {
	_, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// DiskStats reports file-size and page-level statistics used by the stats
// endpoint.
type DiskStats struct {
	SizeBytes     int64
	WALSizeBytes  int64
	PageCount     int64
	PageSize      int64
	FreelistCount int64
}

// DiskStats retrieves storage statistics for the database file.
func (s *Store) DiskStats() (*DiskStats, error) {
	stats := &DiskStats{}

	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.SizeBytes = fileInfo.Size()
	}
	if fileInfo, err := os.Stat(s.path + "-wal"); err == nil {
		stats.WALSizeBytes = fileInfo.Size()
	}
	if err := s.conn.QueryRow("PRAGMA page_count").Scan(&stats.PageCount); err != nil {
		return nil, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.conn.QueryRow("PRAGMA page_size").Scan(&stats.PageSize); err != nil {
		return nil, fmt.Errorf("failed to get page size: %w", err)
	}
	if err := s.conn.QueryRow("PRAGMA freelist_count").Scan(&stats.FreelistCount); err != nil {
		return nil, fmt.Errorf("failed to get freelist count: %w", err)
	}

	return stats, nil
}
