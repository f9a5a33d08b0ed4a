// Package store implements the four durable SQLite-backed stores:
// practice_stats.db (ScoreStore), practice_rewards.db (RewardStore),
// blacklist.db (BlacklistStore), and review_list.db (ReviewListStore).
// Scores and rewards are appended and trimmed; blacklist and review-list
// entries can also be removed.
//
// Every store opens its own *sql.DB against the pure-Go modernc.org/sqlite
// driver and routes operations through its own connection Pool (pool.go)
// that bounds concurrent connections and enforces connection_timeout.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a single SQLite file with its migration set and connection pool.
type DB struct {
	db   *sql.DB
	pool *Pool
	path string
}

// Open opens (creating if absent) the SQLite database at path, applies
// migrations in order, and wires a connection Pool sized per poolCfg.
func Open(path string, poolCfg PoolConfig, migrations []string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// The modernc driver serializes writers internally; a single
	// connection avoids SQLITE_BUSY without disabling read concurrency
	// meaningfully, since our own Pool already bounds callers.
	sqlDB.SetMaxOpenConns(1)

	for _, stmt := range migrations {
		if _, err := sqlDB.Exec(stmt); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("migrate %s: %w", path, err)
		}
	}

	return &DB{
		db:   sqlDB,
		pool: NewPool(poolCfg),
		path: path,
	}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// withConn acquires a pool slot, runs fn against the raw *sql.DB, and
// releases the slot on return. Every store method funnels through this so
// the pool's capacity and timeout apply uniformly.
func (d *DB) withConn(ctx context.Context, fn func(*sql.DB) error) error {
	release, err := d.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(d.db)
}
