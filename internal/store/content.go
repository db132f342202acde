package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/assessor/internal/apperr"
	"github.com/pavelanni/assessor/internal/model"
)

// UpsertSubject inserts or updates a subject.
func (s *Store) UpsertSubject(ctx context.Context, sub model.Subject) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, description, category) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, category = excluded.category`,
		sub.ID, sub.Name, sub.Description, sub.Category,
	)
	return err
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, category FROM subjects ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Category); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// SubjectNames maps subject IDs to display names.
func (s *Store) SubjectNames(ctx context.Context) (map[string]string, error) {
	subjects, err := s.ListSubjects(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(subjects))
	for _, sub := range subjects {
		names[sub.ID] = sub.Name
	}
	return names, nil
}

// UpsertModel inserts or updates learning model metadata.
func (s *Store) UpsertModel(ctx context.Context, m model.LearningModel) error {
	labels, err := json.Marshal(m.Labels)
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO models (id, subject_id, title, description, model_url, labels) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET subject_id = excluded.subject_id, title = excluded.title,
		   description = excluded.description, model_url = excluded.model_url, labels = excluded.labels`,
		m.ID, m.SubjectID, m.Title, m.Description, m.ModelURL, string(labels),
	)
	return err
}

// GetModel returns learning model metadata by ID.
func (s *Store) GetModel(ctx context.Context, id string) (model.LearningModel, error) {
	var m model.LearningModel
	var labels string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, title, description, model_url, labels FROM models WHERE id = ?`, id,
	).Scan(&m.ID, &m.SubjectID, &m.Title, &m.Description, &m.ModelURL, &labels)
	if err == sql.ErrNoRows {
		return m, apperr.Newf(apperr.CodeNotFound, "model %s not found", id).With("model_id", id)
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(labels), &m.Labels); err != nil {
		return m, fmt.Errorf("decode labels of model %s: %w", id, err)
	}
	return m, nil
}

// UpsertStudent inserts a student or renames an existing one.
func (s *Store) UpsertStudent(ctx context.Context, st model.Student) error {
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		st.ID, st.Name, st.CreatedAt.UnixNano(),
	)
	if err != nil {
		slog.Error("failed to upsert student", "id", st.ID, "error", err)
		return err
	}
	return nil
}

// GetStudent returns a student by ID, or nil if missing.
func (s *Store) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	var st model.Student
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM students WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.CreatedAt = time.Unix(0, created).UTC()
	return &st, nil
}

// StudentNames maps student IDs to display names.
func (s *Store) StudentNames(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM students`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = name
	}
	return names, rows.Err()
}
