package store

import (
	"context"
	"database/sql"

	"github.com/trane-project/scheduler-core/internal/domain"
)

func reviewListMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS review_list (
			unit_id TEXT PRIMARY KEY
		)`,
	}
}

// ReviewList is the SQLite-backed durable set of units marked for review.
// A batch requested with ReviewListFilter keeps only exercises that are on
// the list or under a listed lesson or course; readiness still applies.
type ReviewList struct {
	db *DB
}

// OpenReviewList opens (or creates) the review list database at path.
func OpenReviewList(path string, poolCfg PoolConfig) (*ReviewList, error) {
	db, err := Open(path, poolCfg, reviewListMigrations())
	if err != nil {
		return nil, &domain.ReviewListError{Err: err}
	}
	return &ReviewList{db: db}, nil
}

// Close releases the underlying database handle.
func (r *ReviewList) Close() error { return r.db.Close() }

// Add inserts id into the review list. Idempotent.
func (r *ReviewList) Add(ctx context.Context, id domain.UnitId) error {
	err := r.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`INSERT OR IGNORE INTO review_list (unit_id) VALUES (?)`, string(id))
		return err
	})
	if err != nil {
		return &domain.ReviewListError{Err: &domain.StoreError{Op: "Add", Err: err}}
	}
	return nil
}

// Remove deletes id from the review list. Typically called once the unit
// has been served in a batch.
func (r *ReviewList) Remove(ctx context.Context, id domain.UnitId) error {
	err := r.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx, `DELETE FROM review_list WHERE unit_id = ?`, string(id))
		return err
	})
	if err != nil {
		return &domain.ReviewListError{Err: &domain.StoreError{Op: "Remove", Err: err}}
	}
	return nil
}

// Entries returns every unit on the review list.
func (r *ReviewList) Entries(ctx context.Context) ([]domain.UnitId, error) {
	var ids []domain.UnitId
	err := r.db.withConn(ctx, func(sqlDB *sql.DB) error {
		rows, err := sqlDB.QueryContext(ctx, `SELECT unit_id FROM review_list ORDER BY unit_id`)
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
		return nil, &domain.ReviewListError{Err: &domain.StoreError{Op: "Entries", Err: err}}
	}
	return ids, nil
}

var _ domain.ReviewListStore = (*ReviewList)(nil)
