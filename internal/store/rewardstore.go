package store

import (
	"context"
	"database/sql"

	"github.com/trane-project/scheduler-core/internal/domain"
)

// rewardMigrations creates the append-only per-unit reward log backing
// practice_rewards.db.
func rewardMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS unit_rewards (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			unit_id   TEXT NOT NULL,
			value     REAL NOT NULL,
			weight    REAL NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_unit_rewards_unit
			ON unit_rewards(unit_id, id DESC)`,
	}
}

// RewardStore is the SQLite-backed, append-only log of per-unit rewards
// produced by the propagation algorithm.
type RewardStore struct {
	db *DB
}

// OpenRewardStore opens (or creates) the practice rewards database at path.
func OpenRewardStore(path string, poolCfg PoolConfig) (*RewardStore, error) {
	db, err := Open(path, poolCfg, rewardMigrations())
	if err != nil {
		return nil, &domain.PracticeRewardsError{Err: err}
	}
	return &RewardStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *RewardStore) Close() error { return s.db.Close() }

// RecordUnitReward appends one reward entry for unitID.
func (s *RewardStore) RecordUnitReward(ctx context.Context, unitID domain.UnitId, reward domain.UnitReward) error {
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`INSERT INTO unit_rewards (unit_id, value, weight, timestamp) VALUES (?, ?, ?, ?)`,
			string(unitID), float64(reward.Value), float64(reward.Weight), reward.Timestamp)
		return err
	})
	if err != nil {
		return &domain.PracticeRewardsError{Err: &domain.StoreError{Op: "RecordUnitReward", Err: err}}
	}
	return nil
}

// GetRewards returns the n most recent rewards for unitID, most recent
// first. n <= 0 means "all".
func (s *RewardStore) GetRewards(ctx context.Context, unitID domain.UnitId, n int) ([]domain.UnitReward, error) {
	var rewards []domain.UnitReward
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		query := `SELECT value, weight, timestamp FROM unit_rewards WHERE unit_id = ? ORDER BY id DESC`
		args := []any{string(unitID)}
		if n > 0 {
			query += ` LIMIT ?`
			args = append(args, n)
		}
		rows, err := sqlDB.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var r domain.UnitReward
			var value, weight float64
			if err := rows.Scan(&value, &weight, &r.Timestamp); err != nil {
				return err
			}
			r.Value, r.Weight = float32(value), float32(weight)
			rewards = append(rewards, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &domain.PracticeRewardsError{Err: &domain.StoreError{Op: "GetRewards", Err: err}}
	}
	return rewards, nil
}

// TrimRewards deletes all but the n most recent rewards per unit.
func (s *RewardStore) TrimRewards(ctx context.Context, n int) error {
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx, `
			DELETE FROM unit_rewards
			WHERE id NOT IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (
						PARTITION BY unit_id ORDER BY id DESC
					) AS rn
					FROM unit_rewards
				) WHERE rn <= ?
			)`, n)
		return err
	})
	if err != nil {
		return &domain.PracticeRewardsError{Err: &domain.StoreError{Op: "TrimRewards", Err: err}}
	}
	return nil
}

// RemoveWithPrefix deletes all rewards for units whose id starts with
// prefix.
func (s *RewardStore) RemoveWithPrefix(ctx context.Context, prefix string) error {
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`DELETE FROM unit_rewards WHERE unit_id LIKE ? ESCAPE '\'`,
			escapeLike(prefix)+"%")
		return err
	})
	if err != nil {
		return &domain.PracticeRewardsError{Err: &domain.StoreError{Op: "RemoveWithPrefix", Err: err}}
	}
	return nil
}

var _ domain.RewardStore = (*RewardStore)(nil)
