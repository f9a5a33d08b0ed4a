package store

import (
	"context"
	"database/sql"

	"github.com/trane-project/scheduler-core/internal/domain"
)

func blacklistMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS blacklist (
			unit_id TEXT PRIMARY KEY
		)`,
	}
}

// Blacklist is the SQLite-backed durable set of units excluded from
// candidate selection.
type Blacklist struct {
	db *DB
}

// OpenBlacklist opens (or creates) the blacklist database at path.
func OpenBlacklist(path string, poolCfg PoolConfig) (*Blacklist, error) {
	db, err := Open(path, poolCfg, blacklistMigrations())
	if err != nil {
		return nil, &domain.BlacklistError{Err: err}
	}
	return &Blacklist{db: db}, nil
}

// Close releases the underlying database handle.
func (b *Blacklist) Close() error { return b.db.Close() }

// Add inserts id into the blacklist. Idempotent.
func (b *Blacklist) Add(ctx context.Context, id domain.UnitId) error {
	err := b.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`INSERT OR IGNORE INTO blacklist (unit_id) VALUES (?)`, string(id))
		return err
	})
	if err != nil {
		return &domain.BlacklistError{Err: &domain.StoreError{Op: "Add", Err: err}}
	}
	return nil
}

// Remove deletes id from the blacklist. Idempotent.
func (b *Blacklist) Remove(ctx context.Context, id domain.UnitId) error {
	err := b.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx, `DELETE FROM blacklist WHERE unit_id = ?`, string(id))
		return err
	})
	if err != nil {
		return &domain.BlacklistError{Err: &domain.StoreError{Op: "Remove", Err: err}}
	}
	return nil
}

// RemovePrefix deletes every blacklist entry whose id starts with prefix.
func (b *Blacklist) RemovePrefix(ctx context.Context, prefix string) error {
	err := b.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`DELETE FROM blacklist WHERE unit_id LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%")
		return err
	})
	if err != nil {
		return &domain.BlacklistError{Err: &domain.StoreError{Op: "RemovePrefix", Err: err}}
	}
	return nil
}

// Contains reports whether id is blacklisted.
func (b *Blacklist) Contains(ctx context.Context, id domain.UnitId) (bool, error) {
	var found bool
	err := b.db.withConn(ctx, func(sqlDB *sql.DB) error {
		var discard string
		err := sqlDB.QueryRowContext(ctx,
			`SELECT unit_id FROM blacklist WHERE unit_id = ?`, string(id)).Scan(&discard)
		if err == sql.ErrNoRows {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, &domain.BlacklistError{Err: &domain.StoreError{Op: "Contains", Err: err}}
	}
	return found, nil
}

// Entries returns every blacklisted unit. CandidateSelector does not call
// it; its traversal checks membership per unit with Contains.
func (b *Blacklist) Entries(ctx context.Context) ([]domain.UnitId, error) {
	var ids []domain.UnitId
	err := b.db.withConn(ctx, func(sqlDB *sql.DB) error {
		rows, err := sqlDB.QueryContext(ctx, `SELECT unit_id FROM blacklist ORDER BY unit_id`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, domain.UnitId(id))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &domain.BlacklistError{Err: &domain.StoreError{Op: "Entries", Err: err}}
	}
	return ids, nil
}

var _ domain.BlacklistStore = (*Blacklist)(nil)
