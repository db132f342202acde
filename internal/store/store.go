package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/model"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed content store and answer event log.
type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS models (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		model_url TEXT NOT NULL DEFAULT '',
		labels TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		text TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_option INTEGER NOT NULL,
		difficulty TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_questions_model ON questions(model_id, difficulty);

	CREATE TABLE IF NOT EXISTS answer_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		student_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		model_id TEXT NOT NULL,
		selected_option INTEGER NOT NULL,
		correct INTEGER NOT NULL,
		difficulty TEXT NOT NULL,
		time_spent INTEGER NOT NULL,
		answered_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_answer_events_student ON answer_events(student_id, answered_at);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// InsertQuestion stores a question. Questions are immutable: inserting an
// existing ID is a no-op. An empty ID is assigned a new UUID.
func (s *Store) InsertQuestion(ctx context.Context, q model.Question) (string, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return "", fmt.Errorf("encode options: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO questions (id, subject_id, model_id, text, options, correct_option, difficulty)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		q.ID, q.SubjectID, q.ModelID, q.Text, string(opts), q.CorrectOption, q.Difficulty,
	)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// Questions returns the questions of a model in authoring order.
// An empty difficulty means every tier.
func (s *Store) Questions(ctx context.Context, modelID string, difficulty model.Difficulty) ([]model.Question, error) {
	query := `SELECT id, subject_id, model_id, text, options, correct_option, difficulty FROM questions WHERE model_id = ?`
	args := []any{modelID}
	if difficulty != "" {
		query += ` AND difficulty = ?`
		args = append(args, difficulty)
	}
	query += ` ORDER BY rowid`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.Question, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, model_id, text, options, correct_option, difficulty FROM questions WHERE id = ?`, id,
	)
	return scanQuestion(row)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(sc scanner) (model.Question, error) {
	var q model.Question
	var opts string
	if err := sc.Scan(&q.ID, &q.SubjectID, &q.ModelID, &q.Text, &opts, &q.CorrectOption, &q.Difficulty); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(opts), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of question %s: %w", q.ID, err)
	}
	return q, nil
}
