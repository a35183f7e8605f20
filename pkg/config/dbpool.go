package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const poolPingTimeout = 10 * time.Second

// sqlitePragmas are applied once per sqlite pool. WAL lets the read side
// (transcript and report queries) proceed while a turn is being written;
// the busy timeout covers the window where both race for the single writer.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=10000",
	"PRAGMA synchronous=NORMAL",
}

type poolKey struct {
	driver string
	dsn    string
}

// DBPool hands out one *sql.DB per distinct database, so the session store
// and any read-side consumer share connections instead of each opening
// their own. Pools are created lazily on first use.
type DBPool struct {
	mu    sync.Mutex
	pools map[poolKey]*sql.DB
}

// NewDBPool creates an empty pool manager.
func NewDBPool() *DBPool {
	return &DBPool{pools: make(map[poolKey]*sql.DB)}
}

// Get returns the shared connection pool for cfg, opening it on first use.
func (p *DBPool) Get(cfg *DatabaseConfig) (*sql.DB, error) {
	key := poolKey{driver: cfg.DriverName(), dsn: cfg.DSN()}

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.pools[key]; ok {
		return db, nil
	}

	db, err := sql.Open(key.driver, key.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := p.tune(db, cfg); err != nil {
		db.Close()
		return nil, err
	}

	p.pools[key] = db
	return db, nil
}

// tune applies per-driver connection limits and verifies reachability.
func (p *DBPool) tune(db *sql.DB, cfg *DatabaseConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), poolPingTimeout)
	defer cancel()

	if cfg.DriverName() == "sqlite3" {
		// One writer only: a second connection hits "database is locked"
		// mid-turn, so every session write goes through the same conn.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		for _, pragma := range sqlitePragmas {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				return fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
		return nil
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// Close closes every pool. The manager is reusable afterwards.
func (p *DBPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for key, db := range p.pools {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s pool: %w", key.driver, err))
		}
	}
	p.pools = make(map[poolKey]*sql.DB)
	return errors.Join(errs...)
}
