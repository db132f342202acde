package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/model"
)

// AppendEvent atomically records one answer event. The timestamp is moved
// forward if needed so each student's events stay strictly ordered.
// The stored event is returned.
func (s *Store) AppendEvent(ctx context.Context, e model.AnswerEvent) (model.AnswerEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.AnsweredAt.IsZero() {
		e.AnsweredAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return e, err
	}
	defer tx.Rollback()

	var last sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(answered_at) FROM answer_events WHERE student_id = ?`, e.StudentID,
	).Scan(&last)
	if err != nil {
		return e, fmt.Errorf("read last event time: %w", err)
	}
	var lastAt time.Time
	if last.Valid {
		lastAt = time.Unix(0, last.Int64)
	}
	e.AnsweredAt = model.NextEventTime(lastAt, e.AnsweredAt).UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO answer_events (id, student_id, session_id, question_id, subject_id, model_id,
			selected_option, correct, difficulty, time_spent, answered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.StudentID, e.SessionID, e.QuestionID, e.SubjectID, e.ModelID,
		e.SelectedOption, e.Correct, e.Difficulty, e.TimeSpentSeconds, e.AnsweredAt.UnixNano(),
	)
	if err != nil {
		return e, fmt.Errorf("insert event: %w", err)
	}
	return e, tx.Commit()
}

const eventColumns = `id, student_id, session_id, question_id, subject_id, model_id,
	selected_option, correct, difficulty, time_spent, answered_at`

// StudentEvents returns a student's events in answer order.
func (s *Store) StudentEvents(ctx context.Context, studentID string) ([]model.AnswerEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM answer_events WHERE student_id = ? ORDER BY answered_at, seq`, studentID,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// AllEvents returns every event grouped by student, each group in answer order.
func (s *Store) AllEvents(ctx context.Context) ([]model.AnswerEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM answer_events ORDER BY student_id, answered_at, seq`,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventCount returns the number of recorded events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM answer_events`).Scan(&count)
	return count, err
}

func scanEvents(rows *sql.Rows) ([]model.AnswerEvent, error) {
	defer rows.Close()
	var events []model.AnswerEvent
	for rows.Next() {
		var e model.AnswerEvent
		var at int64
		if err := rows.Scan(&e.ID, &e.StudentID, &e.SessionID, &e.QuestionID, &e.SubjectID, &e.ModelID,
			&e.SelectedOption, &e.Correct, &e.Difficulty, &e.TimeSpentSeconds, &at); err != nil {
			return nil, err
		}
		e.AnsweredAt = time.Unix(0, at).UTC()
		events = append(events, e)
	}
	return events, rows.Err()
}
