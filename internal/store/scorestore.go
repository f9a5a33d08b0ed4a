package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/trane-project/scheduler-core/internal/domain"
)

// scoreMigrations creates the append-only exercise trial log backing
// practice_stats.db.
func scoreMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS exercise_trials (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			exercise_id TEXT NOT NULL,
			score       REAL NOT NULL,
			timestamp   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exercise_trials_exercise
			ON exercise_trials(exercise_id, id DESC)`,
	}
}

// ScoreStore is the SQLite-backed, append-only log of exercise trials.
type ScoreStore struct {
	db *DB
}

// OpenScoreStore opens (or creates) the practice stats database at path.
func OpenScoreStore(path string, poolCfg PoolConfig) (*ScoreStore, error) {
	db, err := Open(path, poolCfg, scoreMigrations())
	if err != nil {
		return nil, &domain.PracticeStatsError{Err: err}
	}
	return &ScoreStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *ScoreStore) Close() error { return s.db.Close() }

// RecordExerciseScore appends one trial. Trials are never overwritten or
// deleted individually — only TrimScores or RemoveWithPrefix remove rows.
func (s *ScoreStore) RecordExerciseScore(ctx context.Context, exerciseID domain.UnitId, score domain.MasteryScore, timestamp int64) error {
	if !score.Valid() {
		return &domain.PracticeStatsError{Err: fmt.Errorf("%w: score %v is not one of the five mastery levels", domain.ErrStoreSerialization, score)}
	}
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`INSERT INTO exercise_trials (exercise_id, score, timestamp) VALUES (?, ?, ?)`,
			string(exerciseID), float64(score), timestamp)
		return err
	})
	if err != nil {
		return &domain.PracticeStatsError{Err: &domain.StoreError{Op: "RecordExerciseScore", Err: err}}
	}
	return nil
}

// GetScores returns the n most recent trials for exerciseID, most recent
// first. n <= 0 means "all".
func (s *ScoreStore) GetScores(ctx context.Context, exerciseID domain.UnitId, n int) ([]domain.ExerciseTrial, error) {
	var trials []domain.ExerciseTrial
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		query := `SELECT score, timestamp FROM exercise_trials WHERE exercise_id = ? ORDER BY id DESC`
		args := []any{string(exerciseID)}
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
			var score float64
			var ts int64
			if err := rows.Scan(&score, &ts); err != nil {
				return err
			}
			trials = append(trials, domain.ExerciseTrial{Score: domain.MasteryScore(score), Timestamp: ts})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, &domain.PracticeStatsError{Err: &domain.StoreError{Op: "GetScores", Err: err}}
	}
	return trials, nil
}

// TrimScores deletes all but the n most recent trials per exercise,
// keeping the store bounded as the graph accumulates history.
func (s *ScoreStore) TrimScores(ctx context.Context, n int) error {
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx, `
			DELETE FROM exercise_trials
			WHERE id NOT IN (
				SELECT id FROM (
					SELECT id, ROW_NUMBER() OVER (
						PARTITION BY exercise_id ORDER BY id DESC
					) AS rn
					FROM exercise_trials
				) WHERE rn <= ?
			)`, n)
		return err
	})
	if err != nil {
		return &domain.PracticeStatsError{Err: &domain.StoreError{Op: "TrimScores", Err: err}}
	}
	return nil
}

// RemoveWithPrefix deletes all trials for exercises whose id starts with
// prefix, used when a course or lesson is removed from the library.
func (s *ScoreStore) RemoveWithPrefix(ctx context.Context, prefix string) error {
	err := s.db.withConn(ctx, func(sqlDB *sql.DB) error {
		_, err := sqlDB.ExecContext(ctx,
			`DELETE FROM exercise_trials WHERE exercise_id LIKE ? ESCAPE '\'`,
			escapeLike(prefix)+"%")
		return err
	})
	if err != nil {
		return &domain.PracticeStatsError{Err: &domain.StoreError{Op: "RemoveWithPrefix", Err: err}}
	}
	return nil
}

// escapeLike escapes SQL LIKE wildcards in a literal prefix.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ domain.ScoreStore = (*ScoreStore)(nil)
