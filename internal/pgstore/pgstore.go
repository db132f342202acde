// Package pgstore keeps the answer event log in PostgreSQL.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pavelanni/assessor/internal/model"
)

// PoolConfig sizes the connection pool. Zero values keep the pgxpool
// defaults.
type PoolConfig struct {
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// DefaultPoolConfig returns a small pool suitable for a single instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxConns: 10, MaxConnLifetime: time.Hour}
}

// Store is a PostgreSQL-backed event store.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and applies the schema.
func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// withDefaults fills a missing ID and a zero answer time.
func withDefaults(e model.AnswerEvent, now time.Time) model.AnswerEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AnsweredAt.IsZero() {
		e.AnsweredAt = now
	}
	return e
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS answer_events (
		seq                BIGSERIAL PRIMARY KEY,
		id                 TEXT NOT NULL UNIQUE,
		student_id         TEXT NOT NULL,
		session_id         TEXT NOT NULL,
		question_id        TEXT NOT NULL,
		subject_id         TEXT NOT NULL,
		model_id           TEXT NOT NULL,
		selected_option    INTEGER NOT NULL,
		correct            BOOLEAN NOT NULL,
		difficulty         TEXT NOT NULL,
		time_spent_seconds INTEGER NOT NULL CHECK (time_spent_seconds >= 0),
		answered_at        TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answer_events_student ON answer_events(student_id, answered_at);
	`)
	return err
}

func (s *Store) withinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// AppendEvent inserts e atomically. Appends for one student are serialized
// with a transaction-scoped advisory lock so their timestamps stay strictly
// increasing.
func (s *Store) AppendEvent(ctx context.Context, e model.AnswerEvent) (model.AnswerEvent, error) {
	e = withDefaults(e, time.Now())
	err := s.withinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.StudentID); err != nil {
			return fmt.Errorf("lock student %s: %w", e.StudentID, err)
		}

		var last *time.Time
		err := tx.QueryRow(ctx,
			`SELECT MAX(answered_at) FROM answer_events WHERE student_id = $1`, e.StudentID,
		).Scan(&last)
		if err != nil {
			return fmt.Errorf("read last event time: %w", err)
		}
		var prev time.Time
		if last != nil {
			prev = *last
		}
		e.AnsweredAt = model.NextEventTime(prev, e.AnsweredAt.Truncate(time.Microsecond)).UTC()

		_, err = tx.Exec(ctx, `
			INSERT INTO answer_events (
				id, student_id, session_id, question_id, subject_id, model_id,
				selected_option, correct, difficulty, time_spent_seconds, answered_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, e.StudentID, e.SessionID, e.QuestionID, e.SubjectID, e.ModelID,
			e.SelectedOption, e.Correct, string(e.Difficulty), e.TimeSpentSeconds, e.AnsweredAt,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.AnswerEvent{}, err
	}
	return e, nil
}

const eventColumns = `id, student_id, session_id, question_id, subject_id, model_id,
	selected_option, correct, difficulty, time_spent_seconds, answered_at`

// StudentEvents returns a student's events in time order.
func (s *Store) StudentEvents(ctx context.Context, studentID string) ([]model.AnswerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM answer_events WHERE student_id = $1 ORDER BY answered_at, seq`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query student events: %w", err)
	}
	return collectEvents(rows)
}

// AllEvents returns every event grouped by student in time order.
func (s *Store) AllEvents(ctx context.Context) ([]model.AnswerEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM answer_events ORDER BY student_id, answered_at, seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

// EventCount returns the number of recorded events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM answer_events`).Scan(&n)
	return n, err
}

func collectEvents(rows pgx.Rows) ([]model.AnswerEvent, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AnswerEvent, error) {
		var e model.AnswerEvent
		var difficulty string
		err := row.Scan(
			&e.ID, &e.StudentID, &e.SessionID, &e.QuestionID, &e.SubjectID, &e.ModelID,
			&e.SelectedOption, &e.Correct, &difficulty, &e.TimeSpentSeconds, &e.AnsweredAt,
		)
		e.Difficulty = model.Difficulty(difficulty)
		e.AnsweredAt = e.AnsweredAt.UTC()
		return e, err
	})
}
